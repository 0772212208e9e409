// Package conditional implements the "conditional" control-flow step: it
// evaluates a boolean condition against the context and runs one of two
// optional branches through the executor. Branches run against the same
// context the step received; branching selects a path, it does not isolate
// state.
package conditional

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/robotdad/recipe-tool-sub006/pkg/condition"
	"github.com/robotdad/recipe-tool-sub006/pkg/engine"
	sdkerrors "github.com/robotdad/recipe-tool-sub006/pkg/errors"
	"github.com/robotdad/recipe-tool-sub006/pkg/recipe"
	"github.com/robotdad/recipe-tool-sub006/pkg/template"
)

// Type is the step type name this package registers.
const Type = "conditional"

// Branch is the sub-plan run when its side of the condition is selected.
type Branch struct {
	Steps []recipe.StepDefinition `json:"steps"`
}

// Config is the conditional step configuration.
type Config struct {
	// Condition is a boolean literal or a templated expression string.
	Condition any `json:"condition"`

	// IfTrue runs when the condition evaluates to true. Optional.
	IfTrue *Branch `json:"if_true,omitempty"`

	// IfFalse runs when the condition evaluates to false. Optional.
	IfFalse *Branch `json:"if_false,omitempty"`
}

// Validate checks the configuration, naming the offending field.
func (c *Config) Validate() error {
	switch c.Condition.(type) {
	case bool, string:
		return nil
	case nil:
		return sdkerrors.NewInvalidStepConfig(Type, "condition", "is required")
	default:
		return sdkerrors.NewInvalidStepConfig(Type, "condition",
			fmt.Sprintf("must be a boolean or a string, got %T", c.Condition))
	}
}

// Step is the conditional step.
type Step struct {
	cfg    Config
	exec   *engine.Executor
	logger *zap.Logger
}

// New returns the constructor for the conditional step type. The executor is
// used to run the selected branch.
func New(exec *engine.Executor, logger *zap.Logger) engine.Constructor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(config json.RawMessage) (engine.Step, error) {
		var cfg Config
		if len(config) > 0 {
			if err := json.Unmarshal(config, &cfg); err != nil {
				return nil, sdkerrors.NewInvalidStepConfig(Type, "config", err.Error())
			}
		}
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		return &Step{cfg: cfg, exec: exec, logger: logger}, nil
	}
}

// Execute evaluates the condition and runs the selected branch against rc.
// A missing or empty branch is a no-op. Branch failures propagate verbatim.
func (s *Step) Execute(ctx context.Context, rc *engine.Context) error {
	verdict, err := s.evaluate(rc)
	if err != nil {
		return err
	}

	branch := s.cfg.IfFalse
	if verdict {
		branch = s.cfg.IfTrue
	}

	s.logger.Debug("Condition evaluated",
		zap.Bool("verdict", verdict),
		zap.Bool("branchPresent", branch != nil && len(branch.Steps) > 0))

	if branch == nil || len(branch.Steps) == 0 {
		return nil
	}
	return s.exec.Execute(ctx, branch.Steps, rc)
}

// evaluate resolves the condition to a verdict. String conditions are
// template-rendered first; rendered text reading "true" or "false" (any case)
// is taken literally, anything else goes through the expression evaluator.
func (s *Step) evaluate(rc *engine.Context) (bool, error) {
	switch cond := s.cfg.Condition.(type) {
	case bool:
		return cond, nil
	case string:
		rendered, err := template.Render(cond, rc)
		if err != nil {
			return false, sdkerrors.NewConditionEvaluation(cond, cond, err)
		}
		switch strings.ToLower(strings.TrimSpace(rendered)) {
		case "true":
			return true, nil
		case "false":
			return false, nil
		}
		verdict, err := condition.Evaluate(rendered)
		if err != nil {
			return false, sdkerrors.NewConditionEvaluation(cond, rendered, err)
		}
		return verdict, nil
	default:
		return false, sdkerrors.NewInvalidStepConfig(Type, "condition", "must be a boolean or a string")
	}
}
