package script

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robotdad/recipe-tool-sub006/pkg/engine"
	sdkerrors "github.com/robotdad/recipe-tool-sub006/pkg/errors"
)

func buildStep(t *testing.T, cfg Config) engine.Step {
	t.Helper()
	raw, err := json.Marshal(cfg)
	require.NoError(t, err)
	step, err := New(nil)(raw)
	require.NoError(t, err)
	return step
}

func mustGet(t *testing.T, rc *engine.Context, key string) any {
	t.Helper()
	v, ok := rc.Get(key)
	require.True(t, ok, "context key %q missing", key)
	return v
}

func TestScriptEvaluatesExpression(t *testing.T) {
	rc := engine.NewContext(map[string]any{"n": 21}, nil)
	step := buildStep(t, Config{Script: "n * 2", Inputs: []string{"n"}, OutputKey: "answer"})
	require.NoError(t, step.Execute(context.Background(), rc))
	assert.EqualValues(t, 42, mustGet(t, rc, "answer"))
}

func TestScriptTransformsCollections(t *testing.T) {
	rc := engine.NewContext(map[string]any{"items": []any{1.0, 2.0, 3.0}}, nil)
	step := buildStep(t, Config{
		Script:    "items.map(function(x) { return x * 2; })",
		Inputs:    []string{"items"},
		OutputKey: "doubled",
	})
	require.NoError(t, step.Execute(context.Background(), rc))
	assert.Equal(t, []any{int64(2), int64(4), int64(6)}, mustGet(t, rc, "doubled"))
}

func TestScriptInputsAreCopies(t *testing.T) {
	rc := engine.NewContext(map[string]any{"doc": map[string]any{"x": 1.0}}, nil)
	step := buildStep(t, Config{
		Script:    "doc.x = 99; doc",
		Inputs:    []string{"doc"},
		OutputKey: "out",
	})
	require.NoError(t, step.Execute(context.Background(), rc))

	// The script mutated its own copy only.
	assert.Equal(t, map[string]any{"x": 1.0}, mustGet(t, rc, "doc"))
	out := mustGet(t, rc, "out").(map[string]any)
	assert.EqualValues(t, 99, out["x"])
}

func TestScriptMissingInputFails(t *testing.T) {
	rc := engine.NewContext(nil, nil)
	step := buildStep(t, Config{Script: "1", Inputs: []string{"ghost"}, OutputKey: "out"})
	err := step.Execute(context.Background(), rc)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ghost")
}

func TestScriptSandboxBlocksHostAccess(t *testing.T) {
	rc := engine.NewContext(nil, nil)
	for _, src := range []string{
		`require("fs")`,
		`process.exit(1)`,
		`eval("1 + 1")`,
		`new Function("return 1")()`,
		`(function(){}).constructor("return 1")()`,
	} {
		step := buildStep(t, Config{Script: src, OutputKey: "out"})
		err := step.Execute(context.Background(), rc)
		require.Error(t, err, "script %q must not run", src)
	}
	assert.False(t, rc.Has("out"))
}

func TestScriptErrorsSurface(t *testing.T) {
	rc := engine.NewContext(nil, nil)
	step := buildStep(t, Config{Script: `throw new Error("deliberate")`, OutputKey: "out"})
	err := step.Execute(context.Background(), rc)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "deliberate")
}

func TestScriptTimeout(t *testing.T) {
	rc := engine.NewContext(nil, nil)
	step := buildStep(t, Config{Script: "while (true) {}", OutputKey: "out", Timeout: 0.05})

	start := time.Now()
	err := step.Execute(context.Background(), rc)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timeout")
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestScriptHonorsCancellation(t *testing.T) {
	rc := engine.NewContext(nil, nil)
	step := buildStep(t, Config{Script: "while (true) {}", OutputKey: "out", Timeout: 30})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	err := step.Execute(ctx, rc)
	require.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestScriptConfigValidation(t *testing.T) {
	for _, raw := range []string{
		`{"output_key": "out"}`,
		`{"script": "1"}`,
		`{"script": "1", "output_key": "out", "timeout": -1}`,
	} {
		_, err := New(nil)(json.RawMessage(raw))
		require.Error(t, err, raw)
		assert.True(t, sdkerrors.IsInvalidStepConfig(err), raw)
	}
}
