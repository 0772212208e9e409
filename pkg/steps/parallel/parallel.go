// Package parallel implements the "parallel" step: it runs a fixed set of
// substeps concurrently, each against its own clone of the context, and
// fails fast as a unit. Substeps produce side effects only; their context
// clones are discarded, never merged back.
package parallel

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/robotdad/recipe-tool-sub006/pkg/concurrency"
	"github.com/robotdad/recipe-tool-sub006/pkg/engine"
	sdkerrors "github.com/robotdad/recipe-tool-sub006/pkg/errors"
	"github.com/robotdad/recipe-tool-sub006/pkg/recipe"
)

// Type is the step type name this package registers.
const Type = "parallel"

// Config is the parallel step configuration.
type Config struct {
	// Substeps is the set of step definitions to run concurrently.
	Substeps []recipe.StepDefinition `json:"substeps"`

	// MaxConcurrency bounds in-flight substeps; 0 or negative is unlimited.
	MaxConcurrency int `json:"max_concurrency,omitempty"`

	// Delay is the stagger in seconds between successive launches.
	Delay float64 `json:"delay,omitempty"`

	// Timeout is the wall-clock budget in seconds for the whole set;
	// 0 means no budget.
	Timeout float64 `json:"timeout,omitempty"`
}

// Validate checks the configuration, naming the offending field.
func (c *Config) Validate() error {
	for i, def := range c.Substeps {
		if def.Type == "" {
			return sdkerrors.NewInvalidStepConfig(Type, "substeps",
				"substep "+strconv.Itoa(i)+" is missing a type")
		}
	}
	if c.Delay < 0 {
		return sdkerrors.NewInvalidStepConfig(Type, "delay", "must be >= 0")
	}
	if c.Timeout < 0 {
		return sdkerrors.NewInvalidStepConfig(Type, "timeout", "must be >= 0")
	}
	return nil
}

// Step is the parallel step.
type Step struct {
	cfg    Config
	exec   *engine.Executor
	logger *zap.Logger
}

// New returns the constructor for the parallel step type. The executor runs
// each substep.
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

type subResult struct {
	index int
	err   error
}

// Execute launches the substeps and waits for all of them, the first failure,
// or the timeout, whichever comes first. A failure cancels the rest and
// surfaces as an aggregate error naming the substep; an elapsed budget
// surfaces as a timeout error. Cancellation is cooperative: laggards finish
// in the background against their own clones and are never awaited.
func (s *Step) Execute(ctx context.Context, rc *engine.Context) error {
	if len(s.cfg.Substeps) == 0 {
		s.logger.Debug("Parallel step has no substeps")
		return nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	delay := secondsToDuration(s.cfg.Delay)
	limiter := concurrency.New(s.cfg.MaxConcurrency)
	results := make(chan subResult, len(s.cfg.Substeps))
	launched := make(chan int, 1)

	s.logger.Debug("Starting parallel step",
		zap.Int("substeps", len(s.cfg.Substeps)),
		zap.Int("maxConcurrency", s.cfg.MaxConcurrency),
		zap.Float64("timeoutSeconds", s.cfg.Timeout))

	// The launcher clones the parent synchronously before each substep
	// goroutine starts; the collector waits for the launch count before
	// returning, so nothing touches the parent after the step hands it back.
	go func() {
		count := 0
		for i, def := range s.cfg.Substeps {
			if count > 0 && delay > 0 {
				if err := concurrency.Sleep(runCtx, delay); err != nil {
					break
				}
			}
			if err := limiter.Acquire(runCtx); err != nil {
				break
			}
			clone := rc.Clone()
			count++
			go func(i int, def recipe.StepDefinition, clone *engine.Context) {
				defer limiter.Release()
				err := s.exec.Execute(runCtx, []recipe.StepDefinition{def}, clone)
				results <- subResult{index: i, err: err}
			}(i, def, clone)
		}
		launched <- count
	}()

	var timeoutCh <-chan time.Time
	timeout := secondsToDuration(s.cfg.Timeout)
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		timeoutCh = timer.C
	}

	total, received := -1, 0
	for total < 0 || received < total {
		select {
		case n := <-launched:
			total = n
		case r := <-results:
			received++
			if r.err != nil {
				cancel()
				if total < 0 {
					total = <-launched
				}
				s.logger.Debug("Parallel substep failed",
					zap.Int("substepIndex", r.index),
					zap.Error(r.err))
				return sdkerrors.NewAggregateFailure(r.index, r.err)
			}
		case <-timeoutCh:
			cancel()
			if total < 0 {
				total = <-launched
			}
			s.logger.Debug("Parallel step timed out",
				zap.Duration("timeout", timeout))
			return sdkerrors.NewTimeoutExceeded(timeout)
		}
	}

	s.logger.Debug("Parallel step completed", zap.Int("substeps", total))
	return ctx.Err()
}

func secondsToDuration(seconds float64) time.Duration {
	return time.Duration(seconds * float64(time.Second))
}
