package conditional

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robotdad/recipe-tool-sub006/pkg/engine"
	sdkerrors "github.com/robotdad/recipe-tool-sub006/pkg/errors"
	"github.com/robotdad/recipe-tool-sub006/pkg/recipe"
)

// markStep records its name into the "trace" context entry when executed.
func markStep(name string) engine.Constructor {
	return func(json.RawMessage) (engine.Step, error) {
		return engine.StepFunc(func(_ context.Context, rc *engine.Context) error {
			var seen []any
			if v, ok := rc.Get("trace"); ok {
				seen = v.([]any)
			}
			rc.Set("trace", append(seen, name))
			return nil
		}), nil
	}
}

func failingStep(err error) engine.Constructor {
	return func(json.RawMessage) (engine.Step, error) {
		return engine.StepFunc(func(context.Context, *engine.Context) error { return err }), nil
	}
}

// newHarness builds a registry with the conditional type plus the named
// helper steps, and returns the executor wired to it.
func newHarness(failure error) *engine.Executor {
	reg := engine.NewRegistry()
	exec := engine.NewExecutor(reg)
	reg.Register(Type, New(exec, nil))
	reg.Register("then", markStep("then"))
	reg.Register("else", markStep("else"))
	if failure != nil {
		reg.Register("fail", failingStep(failure))
	}
	return exec
}

func def(t *testing.T, cfg Config) []recipe.StepDefinition {
	t.Helper()
	raw, err := json.Marshal(cfg)
	require.NoError(t, err)
	return []recipe.StepDefinition{{Type: Type, Config: raw}}
}

func branch(types ...string) *Branch {
	b := &Branch{}
	for _, typ := range types {
		b.Steps = append(b.Steps, recipe.StepDefinition{Type: typ})
	}
	return b
}

func trace(rc *engine.Context) []any {
	v, ok := rc.Get("trace")
	if !ok {
		return nil
	}
	return v.([]any)
}

func TestLiteralTrueSelectsIfTrue(t *testing.T) {
	exec := newHarness(nil)
	rc := engine.NewContext(nil, nil)

	cfg := Config{Condition: true, IfTrue: branch("then"), IfFalse: branch("else")}
	require.NoError(t, exec.Execute(context.Background(), def(t, cfg), rc))

	// The branch ran against the same context: its writes are visible here.
	assert.Equal(t, []any{"then"}, trace(rc))
}

func TestLiteralFalseSelectsIfFalse(t *testing.T) {
	exec := newHarness(nil)
	rc := engine.NewContext(nil, nil)

	cfg := Config{Condition: false, IfTrue: branch("then"), IfFalse: branch("else")}
	require.NoError(t, exec.Execute(context.Background(), def(t, cfg), rc))
	assert.Equal(t, []any{"else"}, trace(rc))
}

func TestStringVerdictIsCaseInsensitive(t *testing.T) {
	exec := newHarness(nil)

	for cond, want := range map[string]string{"TRUE": "then", " False ": "else"} {
		rc := engine.NewContext(nil, nil)
		cfg := Config{Condition: cond, IfTrue: branch("then"), IfFalse: branch("else")}
		require.NoError(t, exec.Execute(context.Background(), def(t, cfg), rc))
		assert.Equal(t, []any{want}, trace(rc), "condition %q", cond)
	}
}

func TestTemplatedCondition(t *testing.T) {
	exec := newHarness(nil)
	rc := engine.NewContext(map[string]any{"flag": "true"}, nil)

	cfg := Config{Condition: "{{.flag}}", IfTrue: branch("then"), IfFalse: branch("else")}
	require.NoError(t, exec.Execute(context.Background(), def(t, cfg), rc))
	assert.Equal(t, []any{"then"}, trace(rc))
}

func TestExpressionCondition(t *testing.T) {
	dir := t.TempDir()
	present := filepath.Join(dir, "present.txt")
	require.NoError(t, os.WriteFile(present, []byte("x"), 0o644))

	exec := newHarness(nil)
	rc := engine.NewContext(map[string]any{"path": present}, nil)

	cond := fmt.Sprintf("and(file_exists(%q), not(file_exists(%q)))", present, filepath.Join(dir, "absent.txt"))
	cfg := Config{Condition: cond, IfTrue: branch("then"), IfFalse: branch("else")}
	require.NoError(t, exec.Execute(context.Background(), def(t, cfg), rc))
	assert.Equal(t, []any{"then"}, trace(rc))

	// The same predicate reads naturally through a template.
	rc2 := engine.NewContext(map[string]any{"path": present}, nil)
	cfg2 := Config{Condition: `file_exists("{{.path}}")`, IfTrue: branch("then")}
	require.NoError(t, exec.Execute(context.Background(), def(t, cfg2), rc2))
	assert.Equal(t, []any{"then"}, trace(rc2))
}

func TestExpressionRejectsArbitraryCode(t *testing.T) {
	exec := newHarness(nil)
	rc := engine.NewContext(nil, nil)

	for _, cond := range []string{
		`__import__("os").system("true")`,
		`open("/etc/passwd")`,
		`1 + 1`,
	} {
		cfg := Config{Condition: cond, IfTrue: branch("then")}
		err := exec.Execute(context.Background(), def(t, cfg), rc)
		require.Error(t, err, "condition %q", cond)
		assert.True(t, sdkerrors.IsConditionEvaluation(err), "condition %q", cond)
	}
	assert.Empty(t, trace(rc))
}

func TestUnresolvableTemplateFailsEvaluation(t *testing.T) {
	exec := newHarness(nil)
	rc := engine.NewContext(nil, nil)

	cfg := Config{Condition: "{{.missing}}", IfTrue: branch("then")}
	err := exec.Execute(context.Background(), def(t, cfg), rc)
	require.Error(t, err)
	assert.True(t, sdkerrors.IsConditionEvaluation(err))
}

func TestMissingBranchIsNoOp(t *testing.T) {
	exec := newHarness(nil)
	rc := engine.NewContext(nil, nil)

	require.NoError(t, exec.Execute(context.Background(), def(t, Config{Condition: true}), rc))
	require.NoError(t, exec.Execute(context.Background(), def(t, Config{Condition: false, IfTrue: branch("then")}), rc))
	assert.Empty(t, trace(rc))
}

func TestBranchFailurePropagatesVerbatim(t *testing.T) {
	boom := errors.New("boom")
	exec := newHarness(boom)
	rc := engine.NewContext(nil, nil)

	cfg := Config{Condition: true, IfTrue: branch("fail")}
	err := exec.Execute(context.Background(), def(t, cfg), rc)
	require.ErrorIs(t, err, boom)
}

func TestConfigValidation(t *testing.T) {
	exec := newHarness(nil)
	rc := engine.NewContext(nil, nil)

	// Missing condition.
	err := exec.Execute(context.Background(), []recipe.StepDefinition{{Type: Type, Config: json.RawMessage(`{}`)}}, rc)
	require.Error(t, err)
	assert.True(t, sdkerrors.IsInvalidStepConfig(err))

	// Condition of the wrong kind.
	err = exec.Execute(context.Background(), []recipe.StepDefinition{{Type: Type, Config: json.RawMessage(`{"condition": 3}`)}}, rc)
	require.Error(t, err)
	assert.True(t, sdkerrors.IsInvalidStepConfig(err))

	// Malformed config document.
	err = exec.Execute(context.Background(), []recipe.StepDefinition{{Type: Type, Config: json.RawMessage(`{"condition":`)}}, rc)
	require.Error(t, err)
	assert.True(t, sdkerrors.IsInvalidStepConfig(err))
}
