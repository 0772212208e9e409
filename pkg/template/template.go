// Package template renders recipe strings against a Context. Rendering uses
// text/template with the context entries as the data document, so "{{.name}}"
// interpolates the context key "name".
package template

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	texttemplate "text/template"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/robotdad/recipe-tool-sub006/pkg/engine"
)

var funcs = texttemplate.FuncMap{
	"upper": strings.ToUpper,
	"lower": strings.ToLower,
	"title": func(s string) string { return cases.Title(language.Und).String(s) },
	"trim":  strings.TrimSpace,
	"join":  joinValues,
	"json": func(v any) (string, error) {
		b, err := json.Marshal(v)
		return string(b), err
	},
}

func joinValues(items any, sep string) string {
	switch v := items.(type) {
	case []string:
		return strings.Join(v, sep)
	case []any:
		parts := make([]string, len(v))
		for i, item := range v {
			parts[i] = fmt.Sprintf("%v", item)
		}
		return strings.Join(parts, sep)
	default:
		return fmt.Sprintf("%v", items)
	}
}

// Render interpolates tmpl against the context entries. Strings with no
// template actions are returned unchanged without a parse. References to
// absent context keys are errors, not empty output: a mistyped key must not
// leak "<no value>" into paths, prompts or conditions.
func Render(tmpl string, rc *engine.Context) (string, error) {
	if !strings.Contains(tmpl, "{{") {
		return tmpl, nil
	}
	t, err := texttemplate.New("render").Funcs(funcs).Option("missingkey=error").Parse(tmpl)
	if err != nil {
		return "", fmt.Errorf("parsing template %q: %w", tmpl, err)
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, rc.Export()); err != nil {
		return "", fmt.Errorf("rendering template %q: %w", tmpl, err)
	}
	return buf.String(), nil
}

// RenderValue renders string values against the context and decodes rendered
// text that forms a JSON list or map into that structure. Non-string values
// pass through unchanged. This is the override semantics shared by
// execute_recipe and set_context.
func RenderValue(v any, rc *engine.Context) (any, error) {
	s, ok := v.(string)
	if !ok {
		return v, nil
	}
	rendered, err := Render(s, rc)
	if err != nil {
		return nil, err
	}
	return ParseStructured(rendered), nil
}

// ParseStructured decodes text that is a syntactically valid JSON list or map
// into []any or map[string]any; any other text is returned as the string it
// was.
func ParseStructured(s string) any {
	trimmed := strings.TrimSpace(s)
	if len(trimmed) == 0 {
		return s
	}
	switch trimmed[0] {
	case '[':
		var out []any
		if err := json.Unmarshal([]byte(trimmed), &out); err == nil {
			return out
		}
	case '{':
		var out map[string]any
		if err := json.Unmarshal([]byte(trimmed), &out); err == nil {
			return out
		}
	}
	return s
}
