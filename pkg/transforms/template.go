// Package transforms holds concrete FunctionTransform/TickTransform/
// TaskTransform implementations that plug into pkg/topology's component
// registry.
package transforms

import (
	"regexp"
	"strings"

	"github.com/ssw/routeflow/pkg/event"
	"github.com/ssw/routeflow/pkg/remap"
	"github.com/ssw/routeflow/pkg/value"
)

var templatePlaceholder = regexp.MustCompile(`\{\{\s*([^}]+?)\s*\}\}`)

// Template renders a string containing "{{ field.path }}" placeholders
// against an event's body, the same surface original_source's own
// crate::template::Template exposes for key_field/request-path style
// config fields. A template with no placeholders (or an empty string)
// renders to itself/empty unconditionally. No templating library appears
// anywhere in the retrieved pack, so this stays on stdlib regexp plus
// pkg/value's own path parser rather than pulling in text/template,
// which is built around Go struct execution, not single-field event
// interpolation.
type Template struct {
	raw    string
	static bool
}

// NewTemplate compiles raw. Compilation cannot fail: an unresolvable
// placeholder renders empty at evaluation time rather than aborting.
func NewTemplate(raw string) *Template {
	return &Template{raw: raw, static: !templatePlaceholder.MatchString(raw)}
}

// Render evaluates t against e. A nil Template (key_field unset) and a
// Template with no placeholders both still render their literal text.
func (t *Template) Render(e event.Event) string {
	if t == nil {
		return ""
	}
	if t.static {
		return t.raw
	}
	return templatePlaceholder.ReplaceAllStringFunc(t.raw, func(m string) string {
		field := strings.TrimSpace(templatePlaceholder.FindStringSubmatch(m)[1])
		path := value.ParsePath(field)
		v, ok := e.Get(path)
		if !ok || v == nil {
			return ""
		}
		return remap.DisplayString(*v)
	})
}
