package engine

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	sdkerrors "github.com/robotdad/recipe-tool-sub006/pkg/errors"
	"github.com/robotdad/recipe-tool-sub006/pkg/recipe"
)

// appendStep records its name into the "trace" context entry when executed.
func appendStep(name string) Constructor {
	return func(json.RawMessage) (Step, error) {
		return StepFunc(func(_ context.Context, rc *Context) error {
			var seen []any
			if v, ok := rc.Get("trace"); ok {
				seen = v.([]any)
			}
			rc.Set("trace", append(seen, name))
			return nil
		}), nil
	}
}

func failingStep(err error) Constructor {
	return func(json.RawMessage) (Step, error) {
		return StepFunc(func(context.Context, *Context) error { return err }), nil
	}
}

func defs(types ...string) []recipe.StepDefinition {
	out := make([]recipe.StepDefinition, len(types))
	for i, t := range types {
		out[i] = recipe.StepDefinition{Type: t}
	}
	return out
}

func TestExecutorRunsStepsInOrder(t *testing.T) {
	reg := NewRegistry()
	reg.Register("first", appendStep("first"))
	reg.Register("second", appendStep("second"))
	reg.Register("third", appendStep("third"))

	exec := NewExecutor(reg)
	rc := NewContext(nil, nil)

	err := exec.Execute(context.Background(), defs("first", "second", "third"), rc)
	require.NoError(t, err)
	assert.Equal(t, []any{"first", "second", "third"}, mustGet(t, rc, "trace"))
}

func TestExecutorStopsAtFirstFailure(t *testing.T) {
	boom := errors.New("boom")
	reg := NewRegistry()
	reg.Register("ok", appendStep("ok"))
	reg.Register("fail", failingStep(boom))

	exec := NewExecutor(reg)
	rc := NewContext(nil, nil)

	err := exec.Execute(context.Background(), defs("ok", "fail", "ok"), rc)
	require.Error(t, err)

	// The failure propagates unchanged.
	assert.Equal(t, boom, err)
	// The step after the failure never ran.
	assert.Equal(t, []any{"ok"}, mustGet(t, rc, "trace"))
}

func TestExecutorUnknownStepTypeAborts(t *testing.T) {
	reg := NewRegistry()
	reg.Register("ok", appendStep("ok"))

	exec := NewExecutor(reg)
	rc := NewContext(nil, nil)

	err := exec.Execute(context.Background(), defs("mystery", "ok"), rc)
	require.Error(t, err)
	assert.True(t, sdkerrors.IsUnknownStepType(err))
	assert.False(t, rc.Has("trace"))
}

func TestExecutorEmptyPlanIsNoOp(t *testing.T) {
	exec := NewExecutor(NewRegistry())
	rc := NewContext(nil, nil)
	require.NoError(t, exec.Execute(context.Background(), nil, rc))
}

func TestExecutorHonorsCancellation(t *testing.T) {
	reg := NewRegistry()
	reg.Register("ok", appendStep("ok"))

	exec := NewExecutor(reg)
	rc := NewContext(nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := exec.Execute(ctx, defs("ok"), rc)
	require.ErrorIs(t, err, context.Canceled)
	assert.False(t, rc.Has("trace"))
}

type stubLoader struct {
	recipes map[string]*recipe.Recipe
	err     error
}

func (s *stubLoader) Load(path string) (*recipe.Recipe, error) {
	if s.err != nil {
		return nil, s.err
	}
	rec, ok := s.recipes[path]
	if !ok {
		return nil, errors.New("not found: " + path)
	}
	return rec, nil
}

func TestExecutePath(t *testing.T) {
	reg := NewRegistry()
	reg.Register("mark", appendStep("mark"))

	loader := &stubLoader{recipes: map[string]*recipe.Recipe{
		"child.json": {Name: "child", Steps: defs("mark")},
	}}
	exec := NewExecutor(reg, WithLoader(loader))
	rc := NewContext(nil, nil)

	require.NoError(t, exec.ExecutePath(context.Background(), "child.json", rc))
	assert.Equal(t, []any{"mark"}, mustGet(t, rc, "trace"))

	err := exec.ExecutePath(context.Background(), "absent.json", rc)
	require.Error(t, err)
}

func TestExecutePathWithoutLoader(t *testing.T) {
	exec := NewExecutor(NewRegistry())
	err := exec.ExecutePath(context.Background(), "any.json", NewContext(nil, nil))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no recipe loader")
}
