// Package setcontext implements the "set_context" step: it writes one
// rendered value into the context, with a configurable policy for keys that
// already exist.
package setcontext

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/robotdad/recipe-tool-sub006/pkg/engine"
	sdkerrors "github.com/robotdad/recipe-tool-sub006/pkg/errors"
	"github.com/robotdad/recipe-tool-sub006/pkg/template"
)

// Type is the step type name this package registers.
const Type = "set_context"

// Policies for keys that already hold a value.
const (
	PolicyOverwrite = "overwrite"
	PolicySkip      = "skip"
	PolicyMerge     = "merge"
)

// Config is the set_context step configuration.
type Config struct {
	// Key is the context key to write.
	Key string `json:"key"`

	// Value is the value to store. String values are template-rendered;
	// rendered text forming a JSON list or map is decoded into that
	// structure. Other kinds are stored as given.
	Value any `json:"value"`

	// IfExists decides what happens when the key already holds a value:
	// overwrite (the default), skip, or merge.
	IfExists string `json:"if_exists,omitempty"`
}

// ApplyDefaults fills in defaults for omitted optional fields.
func (c *Config) ApplyDefaults() {
	if c.IfExists == "" {
		c.IfExists = PolicyOverwrite
	}
}

// Validate checks the configuration, naming the offending field.
func (c *Config) Validate() error {
	if c.Key == "" {
		return sdkerrors.NewInvalidStepConfig(Type, "key", "is required")
	}
	switch c.IfExists {
	case PolicyOverwrite, PolicySkip, PolicyMerge:
		return nil
	default:
		return sdkerrors.NewInvalidStepConfig(Type, "if_exists",
			fmt.Sprintf("must be %q, %q or %q, got %q", PolicyOverwrite, PolicySkip, PolicyMerge, c.IfExists))
	}
}

// Step is the set_context step.
type Step struct {
	cfg    Config
	logger *zap.Logger
}

// New returns the constructor for the set_context step type.
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

// Execute renders the value and applies the if_exists policy.
func (s *Step) Execute(_ context.Context, rc *engine.Context) error {
	value, err := template.RenderValue(s.cfg.Value, rc)
	if err != nil {
		return fmt.Errorf("rendering value for key %q: %w", s.cfg.Key, err)
	}

	existing, exists := rc.Get(s.cfg.Key)
	switch {
	case !exists:
		rc.Set(s.cfg.Key, value)
	case s.cfg.IfExists == PolicySkip:
		s.logger.Debug("Key exists, skipping write", zap.String("key", s.cfg.Key))
	case s.cfg.IfExists == PolicyMerge:
		rc.Set(s.cfg.Key, merge(existing, value))
	default:
		rc.Set(s.cfg.Key, value)
	}
	return nil
}

// merge combines an existing value with a new one: lists concatenate (a
// non-list newcomer is appended), maps update shallowly, strings concatenate.
// Mismatched kinds fall back to replacement.
func merge(existing, incoming any) any {
	switch old := existing.(type) {
	case []any:
		if add, ok := incoming.([]any); ok {
			return append(append(make([]any, 0, len(old)+len(add)), old...), add...)
		}
		return append(append(make([]any, 0, len(old)+1), old...), incoming)
	case map[string]any:
		if add, ok := incoming.(map[string]any); ok {
			merged := make(map[string]any, len(old)+len(add))
			for k, v := range old {
				merged[k] = v
			}
			for k, v := range add {
				merged[k] = v
			}
			return merged
		}
	case string:
		if add, ok := incoming.(string); ok {
			return old + add
		}
	}
	return incoming
}
