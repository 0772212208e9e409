package builtin

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robotdad/recipe-tool-sub006/pkg/engine"
	"github.com/robotdad/recipe-tool-sub006/pkg/recipe"
)

func TestRegisterInstallsAllTypes(t *testing.T) {
	reg := engine.NewRegistry()
	exec := engine.NewExecutor(reg)
	require.NoError(t, Register(reg, Options{Executor: exec}))

	want := []string{
		"conditional",
		"execute_recipe",
		"llm_generate",
		"loop",
		"parallel",
		"read_files",
		"run_script",
		"set_context",
		"tool_call",
		"write_files",
	}
	assert.Equal(t, want, reg.Types())
}

func TestRegisterRequiresRegistry(t *testing.T) {
	err := Register(nil, Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "registry")
}

func TestRegisterRequiresExecutor(t *testing.T) {
	err := Register(engine.NewRegistry(), Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "executor")
}

// Steps registered without optional collaborators must still construct; they
// report the missing collaborator when executed, not before.
func TestOptionalCollaboratorsFailLazily(t *testing.T) {
	reg := engine.NewRegistry()
	exec := engine.NewExecutor(reg)
	require.NoError(t, Register(reg, Options{Executor: exec}))

	rc := engine.NewContext(nil, nil)
	for _, def := range []recipe.StepDefinition{
		{Type: "llm_generate", Config: json.RawMessage(`{"prompt": "hi", "output_key": "out"}`)},
		{Type: "tool_call", Config: json.RawMessage(`{"tool": "echo", "result_key": "out"}`)},
		{Type: "execute_recipe", Config: json.RawMessage(`{"recipe_path": "missing.json"}`)},
	} {
		step, err := reg.Resolve(def)
		require.NoError(t, err, def.Type)
		require.Error(t, step.Execute(context.Background(), rc), def.Type)
	}
}

func TestRegisteredStepsCompose(t *testing.T) {
	reg := engine.NewRegistry()
	exec := engine.NewExecutor(reg)
	require.NoError(t, Register(reg, Options{Executor: exec}))

	steps := []recipe.StepDefinition{
		{Type: "set_context", Config: json.RawMessage(`{"key": "n", "value": 21}`)},
		{Type: "run_script", Config: json.RawMessage(
			`{"script": "n > 10", "inputs": ["n"], "output_key": "big"}`)},
		{Type: "conditional", Config: json.RawMessage(`{
			"condition": "{{.big}}",
			"if_true": {"steps": [
				{"type": "set_context", "config": {"key": "verdict", "value": "large"}}
			]},
			"if_false": {"steps": [
				{"type": "set_context", "config": {"key": "verdict", "value": "small"}}
			]}
		}`)},
	}

	rc := engine.NewContext(nil, nil)
	require.NoError(t, exec.Execute(context.Background(), steps, rc))

	big, ok := rc.Get("big")
	require.True(t, ok)
	assert.Equal(t, true, big)

	verdict, ok := rc.Get("verdict")
	require.True(t, ok)
	assert.Equal(t, "large", verdict)
}
