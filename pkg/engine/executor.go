package engine

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/robotdad/recipe-tool-sub006/pkg/recipe"
)

// Executor runs ordered step lists against a Context. Steps execute strictly
// sequentially, in list order, all-or-nothing: the first failure aborts the
// remaining steps and propagates to the caller unchanged. Retry and
// partial-failure policy live in the loop and parallel steps, never here.
//
// An Executor holds no per-run state and is safe for concurrent use; the
// control-flow steps reuse one instance for their recursive invocations.
type Executor struct {
	registry *Registry
	loader   recipe.Loader
	logger   *zap.Logger
	tracer   trace.Tracer
}

// Option configures an Executor.
type Option func(*Executor)

// WithLogger sets the executor's logger. A nil logger keeps the no-op default.
func WithLogger(logger *zap.Logger) Option {
	return func(e *Executor) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithLoader sets the loader used by ExecutePath to resolve recipe paths.
func WithLoader(loader recipe.Loader) Option {
	return func(e *Executor) {
		e.loader = loader
	}
}

// NewExecutor creates an Executor resolving steps through the given registry.
func NewExecutor(registry *Registry, opts ...Option) *Executor {
	e := &Executor{
		registry: registry,
		logger:   zap.NewNop(),
		tracer:   otel.Tracer("recipetool/engine"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute runs the step definitions in order against rc. Each definition is
// resolved through the registry immediately before it runs; resolution and
// execution failures abort the list and propagate verbatim.
func (e *Executor) Execute(ctx context.Context, steps []recipe.StepDefinition, rc *Context) error {
	ctx, span := e.tracer.Start(ctx, "executor.Execute",
		trace.WithAttributes(attribute.Int("recipe.steps", len(steps))))
	defer span.End()

	for i, def := range steps {
		select {
		case <-ctx.Done():
			span.SetStatus(codes.Error, "context cancelled")
			return ctx.Err()
		default:
		}

		step, err := e.registry.Resolve(def)
		if err != nil {
			e.logger.Error("Step resolution failed",
				zap.Int("stepIndex", i),
				zap.String("stepType", def.Type),
				zap.Error(err))
			span.RecordError(err)
			span.SetStatus(codes.Error, "step resolution failed")
			return err
		}

		e.logger.Debug("Executing step",
			zap.Int("stepIndex", i),
			zap.String("stepType", def.Type))

		start := time.Now()
		stepCtx, stepSpan := e.tracer.Start(ctx, "step."+def.Type,
			trace.WithAttributes(
				attribute.Int("step.index", i),
				attribute.String("step.type", def.Type),
			))
		err = step.Execute(stepCtx, rc)
		duration := time.Since(start)
		stepSpan.SetAttributes(attribute.Int64("step.duration_ms", duration.Milliseconds()))

		if err != nil {
			stepSpan.RecordError(err)
			stepSpan.SetStatus(codes.Error, "step failed")
			stepSpan.End()
			e.logger.Error("Step failed",
				zap.Int("stepIndex", i),
				zap.String("stepType", def.Type),
				zap.Duration("duration", duration),
				zap.Error(err))
			span.SetStatus(codes.Error, "recipe aborted")
			return err
		}
		stepSpan.End()

		e.logger.Debug("Step completed",
			zap.Int("stepIndex", i),
			zap.String("stepType", def.Type),
			zap.Duration("duration", duration))
	}
	return nil
}

// ExecuteRecipe runs a parsed recipe against rc.
func (e *Executor) ExecuteRecipe(ctx context.Context, rec *recipe.Recipe, rc *Context) error {
	e.logger.Info("Executing recipe",
		zap.String("recipe", rec.Name),
		zap.Int("steps", len(rec.Steps)))
	return e.Execute(ctx, rec.Steps, rc)
}

// ExecutePath loads the recipe at path through the configured loader and runs
// it against rc.
func (e *Executor) ExecutePath(ctx context.Context, path string, rc *Context) error {
	if e.loader == nil {
		return errors.New("executor has no recipe loader configured")
	}
	rec, err := e.loader.Load(path)
	if err != nil {
		return err
	}
	return e.ExecuteRecipe(ctx, rec, rc)
}
