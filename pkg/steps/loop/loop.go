// Package loop implements the "loop" step: it fans a sub-plan out over the
// items of a collection, each item against its own clone of the context, and
// collects results, failures and a launch-order history into the parent.
//
// Concurrency is opt-in. The default runs items strictly sequentially; a
// max_concurrency of 0 launches everything at once, any other value bounds
// the number in flight. Items never share state: each gets a clone taken
// from the parent at launch, and only the collected outputs flow back.
package loop

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/robotdad/recipe-tool-sub006/pkg/concurrency"
	"github.com/robotdad/recipe-tool-sub006/pkg/engine"
	sdkerrors "github.com/robotdad/recipe-tool-sub006/pkg/errors"
)

// Type is the step type name this package registers.
const Type = "loop"

// Context keys bound inside each item clone alongside the item value.
const (
	indexKey = "__index"
	mapKey   = "__key"
)

// Step is the loop step.
type Step struct {
	cfg    Config
	exec   *engine.Executor
	logger *zap.Logger
}

// New returns the constructor for the loop step type. The executor runs each
// item's sub-plan.
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
		cfg.ApplyDefaults()
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		return &Step{cfg: cfg, exec: exec, logger: logger}, nil
	}
}

// itemOutcome records how one launched item ended.
type itemOutcome struct {
	result any
	err    error
}

// posOutcome pairs an outcome with its launch position for the collector.
type posOutcome struct {
	pos     int
	outcome *itemOutcome
}

// Execute iterates the resolved collection. The three output keys are always
// written, even when a fail-fast abort cuts the iteration short: whatever
// completed before the step returned is recorded.
func (s *Step) Execute(ctx context.Context, rc *engine.Context) error {
	resolved, err := s.resolveItems(rc)
	if err != nil {
		return err
	}
	items, shape, err := collectItems(resolved)
	if err != nil {
		return err
	}

	maxConcurrency := *s.cfg.MaxConcurrency
	failFast := *s.cfg.FailFast
	delay := secondsToDuration(s.cfg.Delay)

	s.logger.Debug("Starting loop",
		zap.Int("items", len(items)),
		zap.Int("maxConcurrency", maxConcurrency),
		zap.Bool("failFast", failFast))

	outcomes := make([]*itemOutcome, len(items))
	var failure error
	switch {
	case len(items) == 0:
		// Nothing to run; the empty outputs are still published below.
	case maxConcurrency == 1:
		failure = s.runSequential(ctx, items, rc, outcomes, failFast, delay)
	default:
		failure = s.runConcurrent(ctx, items, rc, outcomes, maxConcurrency, failFast, delay)
	}

	succeeded, failed := s.writeOutputs(rc, shape, items, outcomes)
	s.logger.Debug("Loop finished",
		zap.Int("items", len(items)),
		zap.Int("succeeded", succeeded),
		zap.Int("failed", failed))

	if failure != nil {
		return failure
	}
	return ctx.Err()
}

// runItem binds the item into its clone, runs the sub-plan against it, and
// reads the result back out of the item key.
func (s *Step) runItem(ctx context.Context, it workItem, clone *engine.Context) *itemOutcome {
	clone.Set(s.cfg.ItemKey, it.value)
	if it.index >= 0 {
		clone.Set(indexKey, it.index)
	} else {
		clone.Set(mapKey, it.key)
	}
	if err := s.exec.Execute(ctx, s.cfg.Substeps, clone); err != nil {
		return &itemOutcome{err: sdkerrors.NewItemProcessing(fmt.Sprint(it.key), err)}
	}
	result, _ := clone.Get(s.cfg.ItemKey)
	return &itemOutcome{result: result}
}

func (s *Step) runSequential(ctx context.Context, items []workItem, rc *engine.Context, outcomes []*itemOutcome, failFast bool, delay time.Duration) error {
	for i, it := range items {
		if i > 0 && delay > 0 {
			if err := concurrency.Sleep(ctx, delay); err != nil {
				break
			}
		}
		if ctx.Err() != nil {
			break
		}
		outcome := s.runItem(ctx, it, rc.Clone())
		outcomes[it.pos] = outcome
		if outcome.err != nil && failFast {
			return outcome.err
		}
	}
	return nil
}

// runConcurrent launches items through a limiter and collects completions as
// they arrive. The launcher clones the parent context synchronously before
// each goroutine starts, and the collector always waits for the final launch
// count before returning, so no goroutine touches the parent after the step
// hands it back. Item goroutines report into a channel sized for every item:
// on a fail-fast abort the stragglers finish in the background against their
// own clones and are never awaited.
func (s *Step) runConcurrent(ctx context.Context, items []workItem, rc *engine.Context, outcomes []*itemOutcome, maxConcurrency int, failFast bool, delay time.Duration) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	limiter := concurrency.New(maxConcurrency)
	results := make(chan posOutcome, len(items))
	launched := make(chan int, 1)

	go func() {
		count := 0
		for _, it := range items {
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
			go func(it workItem, clone *engine.Context) {
				defer limiter.Release()
				results <- posOutcome{pos: it.pos, outcome: s.runItem(runCtx, it, clone)}
			}(it, clone)
		}
		launched <- count
	}()

	var firstErr error
	total, received := -1, 0
	for total < 0 || received < total {
		select {
		case n := <-launched:
			total = n
		case r := <-results:
			outcomes[r.pos] = r.outcome
			received++
			if r.outcome.err != nil && failFast && firstErr == nil {
				firstErr = r.outcome.err
				cancel()
			}
		}
		if firstErr != nil && total >= 0 {
			drainCompleted(results, outcomes)
			return firstErr
		}
	}
	return nil
}

// drainCompleted records outcomes that are already buffered without waiting
// for anything still in flight.
func drainCompleted(results <-chan posOutcome, outcomes []*itemOutcome) {
	for {
		select {
		case r := <-results:
			outcomes[r.pos] = r.outcome
		default:
			return
		}
	}
}

// writeOutputs publishes the three output keys: successes under the result
// key (input order for lists, key-indexed for maps), failures under
// result_key__errors, and the launch-order record under result_key__history.
func (s *Step) writeOutputs(rc *engine.Context, shape itemsShape, items []workItem, outcomes []*itemOutcome) (succeeded, failed int) {
	if shape == shapeMap {
		results := make(map[string]any)
		for _, it := range items {
			if oc := outcomes[it.pos]; oc != nil && oc.err == nil {
				results[it.key.(string)] = oc.result
			}
		}
		rc.Set(s.cfg.ResultKey, results)
	} else {
		results := make([]any, 0, len(items))
		for _, it := range items {
			if oc := outcomes[it.pos]; oc != nil && oc.err == nil {
				results = append(results, oc.result)
			}
		}
		rc.Set(s.cfg.ResultKey, results)
	}

	failures := make([]any, 0)
	history := make([]any, 0, len(items))
	for _, it := range items {
		oc := outcomes[it.pos]
		if oc == nil {
			continue
		}
		entry := map[string]any{"key": it.key, "result": oc.result, "error": nil}
		if oc.err != nil {
			entry["result"] = nil
			entry["error"] = oc.err.Error()
			failures = append(failures, map[string]any{"key": it.key, "error": oc.err.Error()})
			failed++
		} else {
			succeeded++
		}
		history = append(history, entry)
	}
	rc.Set(s.cfg.ResultKey+"__errors", failures)
	rc.Set(s.cfg.ResultKey+"__history", history)
	return succeeded, failed
}

func secondsToDuration(seconds float64) time.Duration {
	return time.Duration(seconds * float64(time.Second))
}
