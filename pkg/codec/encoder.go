package codec

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"fmt"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"github.com/ssw/routeflow/pkg/event"
	"github.com/ssw/routeflow/pkg/value"
)

// Serializer turns one event into its wire representation. Encoder wraps
// a Serializer with batch_prefix/batch_suffix framing so a whole
// event.Array can be written as one coherent request body (e.g. a JSON
// array: "[" + event,event,... + "]").
type Serializer interface {
	Serialize(e event.Event) ([]byte, error)
	BatchPrefix() []byte
	BatchDelimiter() []byte
	BatchSuffix() []byte
}

// JSONSerializer renders each event body as a JSON object/array/scalar
// and frames a batch as a JSON array.
type JSONSerializer struct{}

func (JSONSerializer) Serialize(e event.Event) ([]byte, error) {
	var body value.Value
	switch e.Kind() {
	case event.KindLog:
		body = e.AsLog().Body()
	case event.KindTrace:
		body = e.AsTrace().Body()
	default:
		return nil, fmt.Errorf("codec: json serializer does not support metric events directly")
	}
	native, err := toJSON(body)
	if err != nil {
		return nil, err
	}
	return json.Marshal(native)
}

func (JSONSerializer) BatchPrefix() []byte    { return []byte("[") }
func (JSONSerializer) BatchDelimiter() []byte { return []byte(",") }
func (JSONSerializer) BatchSuffix() []byte    { return []byte("]") }

func toJSON(v value.Value) (interface{}, error) {
	switch v.Kind() {
	case value.KindNull:
		return nil, nil
	case value.KindBoolean:
		b, _ := v.Boolean()
		return b, nil
	case value.KindInteger:
		i, _ := v.Integer()
		return i, nil
	case value.KindFloat:
		f, _ := v.Float64()
		return f, nil
	case value.KindBytes:
		s, _ := v.StringValue()
		return s, nil
	case value.KindTimestamp:
		ts, _ := v.TimestampValue()
		return ts.Format("2006-01-02T15:04:05.999999999Z07:00"), nil
	case value.KindRegex:
		re, _ := v.RegexValue()
		return re.String(), nil
	case value.KindArray:
		arr, _ := v.ArrayValue()
		out := make([]interface{}, len(arr))
		for i, e := range arr {
			native, err := toJSON(e)
			if err != nil {
				return nil, err
			}
			out[i] = native
		}
		return out, nil
	case value.KindObject:
		obj, _ := v.ObjectValue()
		out := make(map[string]interface{}, len(obj))
		for k, e := range obj {
			native, err := toJSON(e)
			if err != nil {
				return nil, err
			}
			out[k] = native
		}
		return out, nil
	default:
		return nil, fmt.Errorf("codec: unsupported value kind %s", v.Kind())
	}
}

// NewlineSerializer renders each event as one JSON line (NDJSON), the
// common shape for file and stdout sinks.
type NewlineSerializer struct {
	inner JSONSerializer
}

func (s NewlineSerializer) Serialize(e event.Event) ([]byte, error) { return s.inner.Serialize(e) }
func (NewlineSerializer) BatchPrefix() []byte                       { return nil }
func (NewlineSerializer) BatchDelimiter() []byte                    { return []byte("\n") }
func (NewlineSerializer) BatchSuffix() []byte                       { return []byte("\n") }

// ContentEncoding names a request-body compression scheme an Encoder can
// apply after framing a batch, mirroring the teacher's
// pkg/compression.Compressor selection for HTTP sink bodies.
type ContentEncoding int

const (
	EncodingNone ContentEncoding = iota
	EncodingGzip
	EncodingSnappy
	EncodingZstd
	EncodingLZ4
)

// Encoder combines a Serializer with batch framing and an optional
// content encoding, producing one finished request body from an
// event.Array. This is the shared encode step every sink in the driver
// (pkg/sinkdriver) calls from its request builder.
type Encoder struct {
	Serializer Serializer
	Encoding   ContentEncoding
}

// Encode renders arr into one request body.
func (e *Encoder) Encode(arr event.Array) ([]byte, error) {
	var buf bytes.Buffer
	buf.Write(e.Serializer.BatchPrefix())
	for i, ev := range arr.Events() {
		if i > 0 {
			buf.Write(e.Serializer.BatchDelimiter())
		}
		b, err := e.Serializer.Serialize(ev)
		if err != nil {
			return nil, fmt.Errorf("codec: encode event %d: %w", i, err)
		}
		buf.Write(b)
	}
	buf.Write(e.Serializer.BatchSuffix())
	return e.compress(buf.Bytes())
}

func (e *Encoder) compress(body []byte) ([]byte, error) {
	switch e.Encoding {
	case EncodingNone:
		return body, nil
	case EncodingGzip:
		var out bytes.Buffer
		gw := gzip.NewWriter(&out)
		if _, err := gw.Write(body); err != nil {
			return nil, fmt.Errorf("codec: gzip compress: %w", err)
		}
		if err := gw.Close(); err != nil {
			return nil, fmt.Errorf("codec: gzip close: %w", err)
		}
		return out.Bytes(), nil
	case EncodingSnappy:
		return snappy.Encode(nil, body), nil
	case EncodingZstd:
		enc, err := zstd.NewWriter(nil)
		if err != nil {
			return nil, fmt.Errorf("codec: zstd writer: %w", err)
		}
		defer enc.Close()
		return enc.EncodeAll(body, nil), nil
	case EncodingLZ4:
		var out bytes.Buffer
		lw := lz4.NewWriter(&out)
		if _, err := lw.Write(body); err != nil {
			return nil, fmt.Errorf("codec: lz4 compress: %w", err)
		}
		if err := lw.Close(); err != nil {
			return nil, fmt.Errorf("codec: lz4 close: %w", err)
		}
		return out.Bytes(), nil
	default:
		return nil, fmt.Errorf("codec: unknown content encoding %d", e.Encoding)
	}
}

// HeaderValue returns the HTTP Content-Encoding header value
// for e.Encoding, or "" for EncodingNone.
func (e ContentEncoding) HeaderValue() string {
	switch e {
	case EncodingGzip:
		return "gzip"
	case EncodingSnappy:
		return "snappy"
	case EncodingZstd:
		return "zstd"
	case EncodingLZ4:
		return "lz4"
	default:
		return ""
	}
}
