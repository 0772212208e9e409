// Package script implements the "run_script" leaf step: it evaluates a
// JavaScript snippet in a hardened, throwaway VM and stores the script's
// final expression value. Scripts see deep copies of the context entries
// named as inputs and nothing else; the only way to affect the run is the
// returned value.
package script

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dop251/goja"
	"go.uber.org/zap"

	"github.com/robotdad/recipe-tool-sub006/pkg/engine"
	sdkerrors "github.com/robotdad/recipe-tool-sub006/pkg/errors"
)

// Type is the step type name this package registers.
const Type = "run_script"

// Config is the run_script step configuration.
type Config struct {
	// Script is the JavaScript source; its last expression is the result.
	Script string `json:"script"`

	// Inputs names the context entries exposed to the script as globals.
	Inputs []string `json:"inputs,omitempty"`

	// OutputKey is the context key that receives the result.
	OutputKey string `json:"output_key"`

	// Timeout is the execution budget in seconds. Defaults to 5.
	Timeout float64 `json:"timeout,omitempty"`
}

// ApplyDefaults fills in defaults for omitted optional fields.
func (c *Config) ApplyDefaults() {
	if c.Timeout == 0 {
		c.Timeout = 5
	}
}

// Validate checks the configuration, naming the offending field.
func (c *Config) Validate() error {
	if c.Script == "" {
		return sdkerrors.NewInvalidStepConfig(Type, "script", "is required")
	}
	if c.OutputKey == "" {
		return sdkerrors.NewInvalidStepConfig(Type, "output_key", "is required")
	}
	if c.Timeout <= 0 {
		return sdkerrors.NewInvalidStepConfig(Type, "timeout", "must be positive")
	}
	return nil
}

// Step is the run_script step.
type Step struct {
	cfg    Config
	logger *zap.Logger
}

// New returns the constructor for the run_script step type.
func New(logger *zap.Logger) engine.Constructor {
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
		return &Step{cfg: cfg, logger: logger}, nil
	}
}

// Execute runs the script in a fresh VM with the inputs bound as globals and
// stores the exported result under the output key. The VM is interrupted when
// the timeout elapses or ctx is cancelled.
func (s *Step) Execute(ctx context.Context, rc *engine.Context) (err error) {
	timeout := time.Duration(s.cfg.Timeout * float64(time.Second))
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	vm := goja.New()
	if err := harden(vm); err != nil {
		return fmt.Errorf("preparing script runtime: %w", err)
	}

	snapshot := rc.Export()
	for _, key := range s.cfg.Inputs {
		v, ok := snapshot[key]
		if !ok {
			return fmt.Errorf("run_script: input key %q not found in context", key)
		}
		if err := vm.Set(key, v); err != nil {
			return fmt.Errorf("binding input %q: %w", key, err)
		}
	}

	// Interrupts can surface as panics out of RunString.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("script panicked: %v", r)
		}
	}()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-runCtx.Done():
			vm.Interrupt("execution interrupted")
		case <-done:
		}
	}()

	start := time.Now()
	value, runErr := vm.RunString(s.cfg.Script)
	if runErr != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("script exceeded timeout of %s", timeout)
		}
		return fmt.Errorf("script failed: %w", runErr)
	}

	var result any
	if value != nil {
		result = value.Export()
	}
	rc.Set(s.cfg.OutputKey, result)

	s.logger.Debug("Script completed",
		zap.String("outputKey", s.cfg.OutputKey),
		zap.Duration("duration", time.Since(start)))
	return nil
}
