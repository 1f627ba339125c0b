package remap

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/ssw/routeflow/pkg/value"
)

// FuncSignature is the compile-time shape the type-checker and parser
// consult: whether a call to this function can fail at runtime, and how
// many positional arguments it accepts. Grounded on
// original_source/lib/vrl/stdlib's per-function Function trait impl,
// collapsed to the subset this runtime needs at compile time.
type FuncSignature struct {
	MinArgs  int
	MaxArgs  int // -1 means unbounded
	Fallible bool
	// HasClosure marks functions whose final argument is a
	// "-> |params| { block }" closure (for_each and friends), evaluated
	// specially in evalCall rather than through the plain registry below.
	HasClosure bool
}

var stdlibSignatures = map[string]FuncSignature{
	"upcase":            {MinArgs: 1, MaxArgs: 1},
	"downcase":          {MinArgs: 1, MaxArgs: 1},
	"contains":          {MinArgs: 2, MaxArgs: 2},
	"starts_with":       {MinArgs: 2, MaxArgs: 2},
	"ends_with":         {MinArgs: 2, MaxArgs: 2},
	"replace":           {MinArgs: 3, MaxArgs: 3},
	"strip_whitespace":  {MinArgs: 1, MaxArgs: 1},
	"split":             {MinArgs: 2, MaxArgs: 2},
	"join":               {MinArgs: 1, MaxArgs: 2},
	"length":            {MinArgs: 1, MaxArgs: 1},
	"exists":            {MinArgs: 1, MaxArgs: 1},
	"is_nullish":        {MinArgs: 1, MaxArgs: 1},
	"to_string":         {MinArgs: 1, MaxArgs: 1},
	"to_int":            {MinArgs: 1, MaxArgs: 1, Fallible: true},
	"to_float":          {MinArgs: 1, MaxArgs: 1, Fallible: true},
	"to_bool":           {MinArgs: 1, MaxArgs: 1, Fallible: true},
	"parse_json":        {MinArgs: 1, MaxArgs: 1, Fallible: true},
	"encode_json":       {MinArgs: 1, MaxArgs: 1},
	"parse_regex":       {MinArgs: 2, MaxArgs: 2, Fallible: true},
	"match":             {MinArgs: 2, MaxArgs: 2},
	"now":               {MinArgs: 0, MaxArgs: 0},
	"to_timestamp":      {MinArgs: 1, MaxArgs: 1, Fallible: true},
	"format_timestamp":  {MinArgs: 2, MaxArgs: 2, Fallible: true},
	"parse_timestamp":   {MinArgs: 2, MaxArgs: 2, Fallible: true},
	"hash":              {MinArgs: 1, MaxArgs: 1},
	"encode_base64":     {MinArgs: 1, MaxArgs: 1},
	"decode_base64":     {MinArgs: 1, MaxArgs: 1, Fallible: true},
	"round":             {MinArgs: 1, MaxArgs: 1},
	"floor":             {MinArgs: 1, MaxArgs: 1},
	"ceil":              {MinArgs: 1, MaxArgs: 1},
	"abs":               {MinArgs: 1, MaxArgs: 1},
	"del":               {MinArgs: 1, MaxArgs: 1},
	"keys":              {MinArgs: 1, MaxArgs: 1},
	"merge":             {MinArgs: 2, MaxArgs: 2},
	"for_each":          {MinArgs: 1, MaxArgs: 1, HasClosure: true},
	"map_values":        {MinArgs: 1, MaxArgs: 1, HasClosure: true},
	"filter":            {MinArgs: 1, MaxArgs: 1, HasClosure: true},
}

// stdlibFn is a plain (non-closure) function's implementation, operating
// on already-evaluated arguments.
type stdlibFn func(args []value.Value) (value.Value, error)

var stdlibFuncs = map[string]stdlibFn{
	"upcase":           func(a []value.Value) (value.Value, error) { return strFn(a, strings.ToUpper) },
	"downcase":         func(a []value.Value) (value.Value, error) { return strFn(a, strings.ToLower) },
	"strip_whitespace": func(a []value.Value) (value.Value, error) { return strFn(a, strings.TrimSpace) },
	"contains": func(a []value.Value) (value.Value, error) {
		s, sub, err := twoStrings(a)
		if err != nil {
			return value.Value{}, err
		}
		return value.Bool(strings.Contains(s, sub)), nil
	},
	"starts_with": func(a []value.Value) (value.Value, error) {
		s, sub, err := twoStrings(a)
		if err != nil {
			return value.Value{}, err
		}
		return value.Bool(strings.HasPrefix(s, sub)), nil
	},
	"ends_with": func(a []value.Value) (value.Value, error) {
		s, sub, err := twoStrings(a)
		if err != nil {
			return value.Value{}, err
		}
		return value.Bool(strings.HasSuffix(s, sub)), nil
	},
	"replace": func(a []value.Value) (value.Value, error) {
		if len(a) != 3 {
			return value.Value{}, fmt.Errorf("replace: expects 3 arguments")
		}
		s, _ := a[0].StringValue()
		old, _ := a[1].StringValue()
		nw, _ := a[2].StringValue()
		return value.String(strings.ReplaceAll(s, old, nw)), nil
	},
	"split": func(a []value.Value) (value.Value, error) {
		s, sep, err := twoStrings(a)
		if err != nil {
			return value.Value{}, err
		}
		parts := strings.Split(s, sep)
		out := make([]value.Value, len(parts))
		for i, p := range parts {
			out[i] = value.String(p)
		}
		return value.Array(out), nil
	},
	"join": func(a []value.Value) (value.Value, error) {
		arr, ok := a[0].ArrayValue()
		if !ok {
			return value.Value{}, fmt.Errorf("join: first argument must be an array")
		}
		sep := ""
		if len(a) == 2 {
			sep, _ = a[1].StringValue()
		}
		parts := make([]string, len(arr))
		for i, e := range arr {
			s, _ := e.StringValue()
			parts[i] = s
		}
		return value.String(strings.Join(parts, sep)), nil
	},
	"length": func(a []value.Value) (value.Value, error) {
		switch a[0].Kind() {
		case value.KindArray:
			arr, _ := a[0].ArrayValue()
			return value.Int(int64(len(arr))), nil
		case value.KindObject:
			obj, _ := a[0].ObjectValue()
			return value.Int(int64(len(obj))), nil
		case value.KindBytes:
			s, _ := a[0].StringValue()
			return value.Int(int64(len(s))), nil
		default:
			return value.Int(0), nil
		}
	},
	"exists":     func(a []value.Value) (value.Value, error) { return value.Bool(!a[0].IsNull()), nil },
	"is_nullish": func(a []value.Value) (value.Value, error) { return value.Bool(isNullish(a[0])), nil },
	"to_string": func(a []value.Value) (value.Value, error) {
		return value.String(toDisplayString(a[0])), nil
	},
	"to_int": func(a []value.Value) (value.Value, error) {
		switch a[0].Kind() {
		case value.KindInteger:
			return a[0], nil
		case value.KindFloat:
			f, _ := a[0].Float64()
			return value.Int(int64(f)), nil
		case value.KindBytes:
			s, _ := a[0].StringValue()
			var i int64
			if _, err := fmt.Sscanf(s, "%d", &i); err != nil {
				return value.Value{}, fmt.Errorf("to_int: %q is not an integer", s)
			}
			return value.Int(i), nil
		}
		return value.Value{}, fmt.Errorf("to_int: unsupported type %s", a[0].Kind())
	},
	"to_float": func(a []value.Value) (value.Value, error) {
		switch a[0].Kind() {
		case value.KindFloat:
			return a[0], nil
		case value.KindInteger:
			i, _ := a[0].Integer()
			return value.MustFloat(float64(i)), nil
		case value.KindBytes:
			s, _ := a[0].StringValue()
			var f float64
			if _, err := fmt.Sscanf(s, "%g", &f); err != nil {
				return value.Value{}, fmt.Errorf("to_float: %q is not a number", s)
			}
			return value.MustFloat(f), nil
		}
		return value.Value{}, fmt.Errorf("to_float: unsupported type %s", a[0].Kind())
	},
	"to_bool": func(a []value.Value) (value.Value, error) {
		switch a[0].Kind() {
		case value.KindBoolean:
			return a[0], nil
		case value.KindBytes:
			s, _ := a[0].StringValue()
			switch strings.ToLower(s) {
			case "true", "1", "yes":
				return value.Bool(true), nil
			case "false", "0", "no":
				return value.Bool(false), nil
			}
			return value.Value{}, fmt.Errorf("to_bool: %q is not a boolean", s)
		}
		return value.Bool(a[0].Truthy()), nil
	},
	"parse_json": func(a []value.Value) (value.Value, error) {
		s, ok := a[0].StringValue()
		if !ok {
			return value.Value{}, fmt.Errorf("parse_json: argument must be a string")
		}
		var raw interface{}
		if err := json.Unmarshal([]byte(s), &raw); err != nil {
			return value.Value{}, fmt.Errorf("parse_json: %w", err)
		}
		return jsonToValue(raw), nil
	},
	"encode_json": func(a []value.Value) (value.Value, error) {
		native := valueToJSON(a[0])
		b, err := json.Marshal(native)
		if err != nil {
			return value.Value{}, fmt.Errorf("encode_json: %w", err)
		}
		return value.String(string(b)), nil
	},
	"parse_regex": func(a []value.Value) (value.Value, error) {
		s, ok := a[0].StringValue()
		re, reOk := a[1].RegexValue()
		if !ok || !reOk {
			return value.Value{}, fmt.Errorf("parse_regex: expects (string, regex)")
		}
		m := re.FindStringSubmatch(s)
		if m == nil {
			return value.Value{}, fmt.Errorf("parse_regex: no match")
		}
		names := re.SubexpNames()
		out := map[string]value.Value{}
		for i, g := range m {
			if i == 0 {
				continue
			}
			key := fmt.Sprintf("%d", i)
			if names[i] != "" {
				key = names[i]
			}
			out[key] = value.String(g)
		}
		return value.Object(out), nil
	},
	"match": func(a []value.Value) (value.Value, error) {
		s, ok := a[0].StringValue()
		re, reOk := a[1].RegexValue()
		if !ok || !reOk {
			return value.Value{}, fmt.Errorf("match: expects (string, regex)")
		}
		return value.Bool(re.MatchString(s)), nil
	},
	"now": func(a []value.Value) (value.Value, error) { return value.Timestamp(time.Now().UTC()), nil },
	"to_timestamp": func(a []value.Value) (value.Value, error) {
		switch a[0].Kind() {
		case value.KindTimestamp:
			return a[0], nil
		case value.KindInteger:
			i, _ := a[0].Integer()
			return value.Timestamp(time.Unix(i, 0)), nil
		}
		return value.Value{}, fmt.Errorf("to_timestamp: unsupported type %s", a[0].Kind())
	},
	"format_timestamp": func(a []value.Value) (value.Value, error) {
		ts, ok := a[0].TimestampValue()
		layout, lok := a[1].StringValue()
		if !ok || !lok {
			return value.Value{}, fmt.Errorf("format_timestamp: expects (timestamp, string)")
		}
		return value.String(ts.Format(goLayout(layout))), nil
	},
	"parse_timestamp": func(a []value.Value) (value.Value, error) {
		s, ok := a[0].StringValue()
		layout, lok := a[1].StringValue()
		if !ok || !lok {
			return value.Value{}, fmt.Errorf("parse_timestamp: expects (string, string)")
		}
		t, err := time.Parse(goLayout(layout), s)
		if err != nil {
			return value.Value{}, fmt.Errorf("parse_timestamp: %w", err)
		}
		return value.Timestamp(t), nil
	},
	"hash": func(a []value.Value) (value.Value, error) {
		s, ok := a[0].StringValue()
		if !ok {
			return value.Value{}, fmt.Errorf("hash: argument must be a string")
		}
		sum := xxhash.Sum64String(s)
		return value.String(fmt.Sprintf("%016x", sum)), nil
	},
	"encode_base64": func(a []value.Value) (value.Value, error) {
		s, ok := a[0].StringValue()
		if !ok {
			return value.Value{}, fmt.Errorf("encode_base64: argument must be a string")
		}
		return value.String(base64.StdEncoding.EncodeToString([]byte(s))), nil
	},
	"decode_base64": func(a []value.Value) (value.Value, error) {
		s, ok := a[0].StringValue()
		if !ok {
			return value.Value{}, fmt.Errorf("decode_base64: argument must be a string")
		}
		b, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return value.Value{}, fmt.Errorf("decode_base64: %w", err)
		}
		return value.Bytes(b), nil
	},
	"round": func(a []value.Value) (value.Value, error) { return floatFn(a, math.Round) },
	"floor": func(a []value.Value) (value.Value, error) { return floatFn(a, math.Floor) },
	"ceil":  func(a []value.Value) (value.Value, error) { return floatFn(a, math.Ceil) },
	"abs":   func(a []value.Value) (value.Value, error) { return floatFn(a, math.Abs) },
	"keys": func(a []value.Value) (value.Value, error) {
		obj, ok := a[0].ObjectValue()
		if !ok {
			return value.Value{}, fmt.Errorf("keys: argument must be an object")
		}
		out := make([]value.Value, 0, len(obj))
		for k := range obj {
			out = append(out, value.String(k))
		}
		return value.Array(out), nil
	},
	"merge": func(a []value.Value) (value.Value, error) {
		left, ok1 := a[0].ObjectValue()
		right, ok2 := a[1].ObjectValue()
		if !ok1 || !ok2 {
			return value.Value{}, fmt.Errorf("merge: both arguments must be objects")
		}
		out := make(map[string]value.Value, len(left)+len(right))
		for k, v := range left {
			out[k] = v
		}
		for k, v := range right {
			out[k] = v
		}
		return value.Object(out), nil
	},
}

func strFn(a []value.Value, f func(string) string) (value.Value, error) {
	s, ok := a[0].StringValue()
	if !ok {
		return value.Value{}, fmt.Errorf("expects a string argument")
	}
	return value.String(f(s)), nil
}

func floatFn(a []value.Value, f func(float64) float64) (value.Value, error) {
	switch a[0].Kind() {
	case value.KindFloat:
		v, _ := a[0].Float64()
		return value.MustFloat(f(v)), nil
	case value.KindInteger:
		i, _ := a[0].Integer()
		return value.Int(int64(f(float64(i)))), nil
	}
	return value.Value{}, fmt.Errorf("expects a numeric argument")
}

func twoStrings(a []value.Value) (string, string, error) {
	s1, ok1 := a[0].StringValue()
	s2, ok2 := a[1].StringValue()
	if !ok1 || !ok2 {
		return "", "", fmt.Errorf("expects two string arguments")
	}
	return s1, s2, nil
}

func isNullish(v value.Value) bool {
	if v.IsNull() {
		return true
	}
	if s, ok := v.StringValue(); ok {
		return strings.TrimSpace(s) == ""
	}
	return false
}

// DisplayString renders v the way to_string() does, for callers outside
// the stdlib table (template interpolation in pkg/transforms, admin
// introspection) that need the same coercion without going through a
// full program evaluation.
func DisplayString(v value.Value) string { return toDisplayString(v) }

func toDisplayString(v value.Value) string {
	switch v.Kind() {
	case value.KindBytes:
		s, _ := v.StringValue()
		return s
	case value.KindInteger:
		i, _ := v.Integer()
		return fmt.Sprintf("%d", i)
	case value.KindFloat:
		f, _ := v.Float64()
		return fmt.Sprintf("%g", f)
	case value.KindBoolean:
		b, _ := v.Boolean()
		return fmt.Sprintf("%t", b)
	case value.KindNull:
		return ""
	case value.KindTimestamp:
		ts, _ := v.TimestampValue()
		return ts.Format(time.RFC3339Nano)
	default:
		b, _ := json.Marshal(valueToJSON(v))
		return string(b)
	}
}

// goLayout translates a handful of common VRL-style strftime directives
// into Go's reference-time layout; unrecognized text passes through
// unchanged so a caller can also supply a literal Go layout directly.
func goLayout(layout string) string {
	replacer := strings.NewReplacer(
		"%Y", "2006", "%m", "01", "%d", "02",
		"%H", "15", "%M", "04", "%S", "05",
		"%z", "-0700", "%Z", "MST",
	)
	return replacer.Replace(layout)
}

func jsonToValue(raw interface{}) value.Value {
	switch v := raw.(type) {
	case nil:
		return value.Null()
	case bool:
		return value.Bool(v)
	case float64:
		if v == math.Trunc(v) {
			return value.Int(int64(v))
		}
		return value.MustFloat(v)
	case string:
		return value.String(v)
	case []interface{}:
		out := make([]value.Value, len(v))
		for i, e := range v {
			out[i] = jsonToValue(e)
		}
		return value.Array(out)
	case map[string]interface{}:
		out := make(map[string]value.Value, len(v))
		for k, e := range v {
			out[k] = jsonToValue(e)
		}
		return value.Object(out)
	default:
		return value.Null()
	}
}

func valueToJSON(v value.Value) interface{} {
	switch v.Kind() {
	case value.KindNull:
		return nil
	case value.KindBoolean:
		b, _ := v.Boolean()
		return b
	case value.KindInteger:
		i, _ := v.Integer()
		return i
	case value.KindFloat:
		f, _ := v.Float64()
		return f
	case value.KindBytes:
		s, _ := v.StringValue()
		return s
	case value.KindTimestamp:
		ts, _ := v.TimestampValue()
		return ts.Format(time.RFC3339Nano)
	case value.KindRegex:
		re, _ := v.RegexValue()
		return re.String()
	case value.KindArray:
		arr, _ := v.ArrayValue()
		out := make([]interface{}, len(arr))
		for i, e := range arr {
			out[i] = valueToJSON(e)
		}
		return out
	case value.KindObject:
		obj, _ := v.ObjectValue()
		out := make(map[string]interface{}, len(obj))
		for k, e := range obj {
			out[k] = valueToJSON(e)
		}
		return out
	default:
		return nil
	}
}
