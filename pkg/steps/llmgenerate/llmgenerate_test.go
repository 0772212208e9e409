package llmgenerate

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robotdad/recipe-tool-sub006/pkg/engine"
	sdkerrors "github.com/robotdad/recipe-tool-sub006/pkg/errors"
	"github.com/robotdad/recipe-tool-sub006/pkg/llm"
)

// stubGenerator records the request and returns a canned completion.
type stubGenerator struct {
	got    llm.Request
	output string
	err    error
}

func (s *stubGenerator) Generate(_ context.Context, req llm.Request) (string, error) {
	s.got = req
	return s.output, s.err
}

func buildStep(t *testing.T, gen llm.Generator, cfg Config) engine.Step {
	t.Helper()
	raw, err := json.Marshal(cfg)
	require.NoError(t, err)
	step, err := New(gen, nil)(raw)
	require.NoError(t, err)
	return step
}

func TestGenerateStoresText(t *testing.T) {
	gen := &stubGenerator{output: "a poem"}
	rc := engine.NewContext(map[string]any{"topic": "tides"}, nil)

	step := buildStep(t, gen, Config{
		Prompt:    "write about {{.topic}}",
		Model:     "gpt-test",
		OutputKey: "poem",
		MaxTokens: 64,
	})
	require.NoError(t, step.Execute(context.Background(), rc))

	v, ok := rc.Get("poem")
	require.True(t, ok)
	assert.Equal(t, "a poem", v)

	// The prompt reached the generator fully rendered.
	assert.Equal(t, "write about tides", gen.got.Prompt)
	assert.Equal(t, "gpt-test", gen.got.Model)
	assert.Equal(t, 64, gen.got.MaxTokens)
}

func TestGenerateDecodesJSONOutput(t *testing.T) {
	gen := &stubGenerator{output: ` {"items": [1, 2]} `}
	rc := engine.NewContext(nil, nil)

	step := buildStep(t, gen, Config{Prompt: "p", OutputKey: "doc", OutputFormat: FormatJSON})
	require.NoError(t, step.Execute(context.Background(), rc))

	v, ok := rc.Get("doc")
	require.True(t, ok)
	assert.Equal(t, map[string]any{"items": []any{1.0, 2.0}}, v)
}

func TestGenerateRejectsInvalidJSONOutput(t *testing.T) {
	gen := &stubGenerator{output: "not json"}
	rc := engine.NewContext(nil, nil)

	step := buildStep(t, gen, Config{Prompt: "p", OutputKey: "doc", OutputFormat: FormatJSON})
	err := step.Execute(context.Background(), rc)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not valid JSON")
	assert.False(t, rc.Has("doc"))
}

func TestGenerateFailurePropagates(t *testing.T) {
	boom := errors.New("endpoint down")
	gen := &stubGenerator{err: boom}
	rc := engine.NewContext(nil, nil)

	step := buildStep(t, gen, Config{Prompt: "p", OutputKey: "out"})
	err := step.Execute(context.Background(), rc)
	require.ErrorIs(t, err, boom)
}

func TestGenerateWithoutGenerator(t *testing.T) {
	rc := engine.NewContext(nil, nil)
	step := buildStep(t, nil, Config{Prompt: "p", OutputKey: "out"})
	err := step.Execute(context.Background(), rc)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no generator")
}

func TestGenerateConfigValidation(t *testing.T) {
	for _, raw := range []string{
		`{"output_key": "k"}`,
		`{"prompt": "p"}`,
		`{"prompt": "p", "output_key": "k", "output_format": "xml"}`,
		`{"prompt": "p", "output_key": "k", "max_tokens": -1}`,
	} {
		_, err := New(nil, nil)(json.RawMessage(raw))
		require.Error(t, err, raw)
		assert.True(t, sdkerrors.IsInvalidStepConfig(err), raw)
	}
}
