// Package runner assembles the engine for top-level recipe runs: recipe
// loader, step registry, executor and telemetry wired together behind a
// single Run call. One Runner serves many runs; each run gets its own
// context, seeded from the caller's artifacts and the host configuration.
package runner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/robotdad/recipe-tool-sub006/pkg/engine"
	"github.com/robotdad/recipe-tool-sub006/pkg/llm"
	"github.com/robotdad/recipe-tool-sub006/pkg/recipe"
	"github.com/robotdad/recipe-tool-sub006/pkg/steps/builtin"
	"github.com/robotdad/recipe-tool-sub006/pkg/tools"
)

// Options carries the collaborators a Runner is assembled from.
type Options struct {
	// Loader resolves the top-level recipe path and every nested
	// execute_recipe path. Required.
	Loader recipe.Loader

	// Registry receives the built-in step registrations. Optional: leave nil
	// for a fresh registry, or pass one pre-populated with custom step types;
	// the built-ins are added either way.
	Registry *engine.Registry

	// Logger is shared by the runner, the executor and every built-in step.
	// A nil logger disables logging.
	Logger *zap.Logger

	// Config is the read-only configuration available to every run through
	// Context.Config, e.g. the tool_servers list.
	Config map[string]any

	// LLM generates completions for llm_generate steps. Optional; recipes
	// without generation steps run without it.
	LLM llm.Generator

	// Tools invokes remote tool servers for tool_call steps. Optional;
	// recipes without tool steps run without it.
	Tools tools.Invoker

	// SentryDSN enables failure reporting to Sentry when non-empty.
	SentryDSN string
}

// Result is the outcome of one successful recipe run.
type Result struct {
	// RunID is the identifier assigned to the run, present in its log lines
	// and spans.
	RunID string

	// Output is the final context snapshot.
	Output map[string]any
}

// Runner executes recipes by path. It holds no per-run state and is safe for
// concurrent use.
type Runner struct {
	loader       recipe.Loader
	registry     *engine.Registry
	executor     *engine.Executor
	logger       *zap.Logger
	config       map[string]any
	tracer       trace.Tracer
	reportErrors bool
}

// New assembles a Runner: it builds the executor over the registry, installs
// the built-in step types, and initializes Sentry when a DSN is configured.
func New(opts Options) (*Runner, error) {
	if opts.Loader == nil {
		return nil, errors.New("runner: loader cannot be nil")
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	registry := opts.Registry
	if registry == nil {
		registry = engine.NewRegistry()
	}
	executor := engine.NewExecutor(registry,
		engine.WithLogger(logger),
		engine.WithLoader(opts.Loader))

	if err := builtin.Register(registry, builtin.Options{
		Executor:  executor,
		Loader:    opts.Loader,
		Generator: opts.LLM,
		Invoker:   opts.Tools,
		Logger:    logger,
	}); err != nil {
		return nil, err
	}

	reportErrors := false
	if opts.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{Dsn: opts.SentryDSN}); err != nil {
			return nil, fmt.Errorf("runner: initializing sentry: %w", err)
		}
		reportErrors = true
	}

	return &Runner{
		loader:       opts.Loader,
		registry:     registry,
		executor:     executor,
		logger:       logger,
		config:       opts.Config,
		tracer:       otel.Tracer("recipetool/runner"),
		reportErrors: reportErrors,
	}, nil
}

// Run executes the recipe at recipePath against a fresh context seeded with
// the artifacts and the Runner's configuration. On success it returns the run
// ID and the final context snapshot; on failure the engine's error propagates
// unwrapped so callers can classify it.
func (r *Runner) Run(ctx context.Context, recipePath string, artifacts map[string]any) (*Result, error) {
	if recipePath == "" {
		return nil, errors.New("runner: recipe path cannot be empty")
	}

	runID := uuid.NewString()
	rc := engine.NewContext(artifacts, r.config)

	ctx, span := r.tracer.Start(ctx, "runner.Run",
		trace.WithAttributes(
			attribute.String("run.id", runID),
			attribute.String("recipe.path", recipePath),
		))
	defer span.End()

	logger := r.logger.With(
		zap.String("runID", runID),
		zap.String("recipe", recipePath))
	logger.Info("Starting recipe run", zap.Int("artifacts", len(artifacts)))

	start := time.Now()
	if err := r.executor.ExecutePath(ctx, recipePath, rc); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "recipe run failed")
		logger.Error("Recipe run failed",
			zap.Duration("duration", time.Since(start)),
			zap.Error(err))
		r.report(err)
		return nil, err
	}

	span.SetStatus(codes.Ok, "recipe run complete")
	logger.Info("Recipe run complete",
		zap.Duration("duration", time.Since(start)),
		zap.Int("contextKeys", rc.Len()))

	return &Result{RunID: runID, Output: rc.Export()}, nil
}

// report sends the failure to Sentry when a DSN was configured, blocking
// briefly so the event leaves the process even if the caller exits next.
func (r *Runner) report(err error) {
	if !r.reportErrors {
		return
	}
	sentry.CaptureException(err)
	sentry.Flush(2 * time.Second)
}
