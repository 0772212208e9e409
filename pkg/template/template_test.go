package template

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robotdad/recipe-tool-sub006/pkg/engine"
)

func newCtx(entries map[string]any) *engine.Context {
	return engine.NewContext(entries, nil)
}

func TestRenderInterpolation(t *testing.T) {
	rc := newCtx(map[string]any{"name": "world", "count": 3})

	out, err := Render("hello {{.name}} x{{.count}}", rc)
	require.NoError(t, err)
	assert.Equal(t, "hello world x3", out)
}

func TestRenderPlainStringPassthrough(t *testing.T) {
	out, err := Render("no actions here", newCtx(nil))
	require.NoError(t, err)
	assert.Equal(t, "no actions here", out)
}

func TestRenderFuncs(t *testing.T) {
	rc := newCtx(map[string]any{
		"word":  "recipe",
		"items": []any{"a", "b", "c"},
		"doc":   map[string]any{"k": 1},
	})

	cases := map[string]string{
		`{{upper .word}}`:        "RECIPE",
		`{{lower "LOUD"}}`:       "loud",
		`{{title .word}}`:        "Recipe",
		`{{trim "  x  "}}`:       "x",
		`{{join .items ", "}}`:   "a, b, c",
		`{{json .doc}}`:          `{"k":1}`,
	}
	for tmpl, want := range cases {
		out, err := Render(tmpl, rc)
		require.NoError(t, err, tmpl)
		assert.Equal(t, want, out, tmpl)
	}
}

func TestRenderErrors(t *testing.T) {
	_, err := Render("{{.name", newCtx(nil))
	require.Error(t, err)

	_, err = Render("{{unknownfunc .x}}", newCtx(nil))
	require.Error(t, err)
}

func TestRenderMissingKeyFails(t *testing.T) {
	_, err := Render("{{.absent}}", newCtx(map[string]any{"present": 1}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "absent")
}

func TestRenderValueStructuredParsing(t *testing.T) {
	rc := newCtx(map[string]any{"raw": "[1, 2, 3]"})

	v, err := RenderValue("{{.raw}}", rc)
	require.NoError(t, err)
	assert.Equal(t, []any{float64(1), float64(2), float64(3)}, v)

	v, err = RenderValue(`{"a": true}`, rc)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"a": true}, v)

	// Plain strings stay strings; non-strings pass through.
	v, err = RenderValue("just text", rc)
	require.NoError(t, err)
	assert.Equal(t, "just text", v)

	v, err = RenderValue(42, rc)
	require.NoError(t, err)
	assert.Equal(t, 42, v)
}

func TestParseStructuredRejectsMalformed(t *testing.T) {
	assert.Equal(t, "[1, 2", ParseStructured("[1, 2"))
	assert.Equal(t, "{bad}", ParseStructured("{bad}"))
	assert.Equal(t, "", ParseStructured(""))
	assert.Equal(t, []any{}, ParseStructured("[]"))
}
