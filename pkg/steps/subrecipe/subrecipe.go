// Package subrecipe implements the "execute_recipe" step: it loads another
// recipe by path and runs it against the caller's context. Composition is by
// shared state: the nested recipe sees, and mutates, the same context as the
// parent, with optional overrides applied first.
package subrecipe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"sort"

	"go.uber.org/zap"

	"github.com/robotdad/recipe-tool-sub006/pkg/engine"
	sdkerrors "github.com/robotdad/recipe-tool-sub006/pkg/errors"
	"github.com/robotdad/recipe-tool-sub006/pkg/recipe"
	"github.com/robotdad/recipe-tool-sub006/pkg/template"
)

// Type is the step type name this package registers.
const Type = "execute_recipe"

// Config is the execute_recipe step configuration.
type Config struct {
	// RecipePath is the templated path of the recipe to run.
	RecipePath string `json:"recipe_path"`

	// ContextOverrides are entries written into the context before the
	// nested recipe runs. String values are template-rendered; rendered
	// text forming a JSON list or map is decoded into that structure.
	ContextOverrides map[string]any `json:"context_overrides,omitempty"`
}

// Validate checks the configuration, naming the offending field.
func (c *Config) Validate() error {
	if c.RecipePath == "" {
		return sdkerrors.NewInvalidStepConfig(Type, "recipe_path", "is required")
	}
	return nil
}

// Step is the execute_recipe step.
type Step struct {
	cfg    Config
	exec   *engine.Executor
	loader recipe.Loader
	logger *zap.Logger
}

// New returns the constructor for the execute_recipe step type. The loader
// resolves recipe paths; the executor runs the loaded steps.
func New(exec *engine.Executor, loader recipe.Loader, logger *zap.Logger) engine.Constructor {
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
		return &Step{cfg: cfg, exec: exec, loader: loader, logger: logger}, nil
	}
}

// Execute renders the recipe path, applies the overrides directly to rc, then
// loads and runs the nested recipe against rc. Override writes persist even
// if the nested recipe later fails.
func (s *Step) Execute(ctx context.Context, rc *engine.Context) error {
	if s.loader == nil {
		return errors.New("execute_recipe: no recipe loader configured")
	}

	path, err := template.Render(s.cfg.RecipePath, rc)
	if err != nil {
		return fmt.Errorf("rendering recipe_path %q: %w", s.cfg.RecipePath, err)
	}

	if err := s.applyOverrides(rc); err != nil {
		return err
	}

	rec, err := s.loader.Load(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return sdkerrors.NewSubRecipeNotFound(path, err)
		}
		return sdkerrors.NewSubRecipeExecution(path, err)
	}

	s.logger.Debug("Executing sub-recipe",
		zap.String("path", path),
		zap.Int("steps", len(rec.Steps)))

	if err := s.exec.ExecuteRecipe(ctx, rec, rc); err != nil {
		return sdkerrors.NewSubRecipeExecution(path, err)
	}
	return nil
}

// applyOverrides writes the rendered overrides into rc in sorted key order so
// runs are reproducible.
func (s *Step) applyOverrides(rc *engine.Context) error {
	if len(s.cfg.ContextOverrides) == 0 {
		return nil
	}
	keys := make([]string, 0, len(s.cfg.ContextOverrides))
	for k := range s.cfg.ContextOverrides {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		v, err := template.RenderValue(s.cfg.ContextOverrides[k], rc)
		if err != nil {
			return fmt.Errorf("rendering context override %q: %w", k, err)
		}
		rc.Set(k, v)
	}
	return nil
}
