package remap

import (
	"regexp"
	"strconv"

	"github.com/ssw/routeflow/pkg/value"
)

func parseIntLiteral(text string) value.Value {
	i, err := strconv.ParseInt(text, 10, 64)
	if err != nil {
		return value.Int(0)
	}
	return value.Int(i)
}

func parseFloatLiteral(text string) value.Value {
	f, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return value.MustFloat(0)
	}
	return value.MustFloat(f)
}

// compileRegexLiteral strips the "/.../flags" wrapper a REGEX token
// carries and compiles it, translating the VRL-familiar "i" (case
// insensitive) and "m" (multiline) flags into Go's inline (?im) syntax.
func compileRegexLiteral(text string) (*regexp.Regexp, error) {
	end := len(text) - 1
	for end > 0 && text[end] != '/' {
		end--
	}
	body := text[1:end]
	flags := text[end+1:]
	pattern := body
	if flags != "" {
		pattern = "(?" + flags + ")" + body
	}
	return regexp.Compile(pattern)
}
