// Package llmgenerate implements the "llm_generate" leaf step: it renders a
// prompt against the context, hands it to the configured generator, and
// stores the completion.
package llmgenerate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/robotdad/recipe-tool-sub006/pkg/engine"
	sdkerrors "github.com/robotdad/recipe-tool-sub006/pkg/errors"
	"github.com/robotdad/recipe-tool-sub006/pkg/llm"
	"github.com/robotdad/recipe-tool-sub006/pkg/template"
)

// Type is the step type name this package registers.
const Type = "llm_generate"

// Output formats.
const (
	FormatText = "text"
	FormatJSON = "json"
)

// Config is the llm_generate step configuration.
type Config struct {
	// Prompt is the templated prompt text.
	Prompt string `json:"prompt"`

	// Model overrides the generator's default model when set.
	Model string `json:"model,omitempty"`

	// OutputFormat is text (the default) or json; json output is decoded
	// before storing.
	OutputFormat string `json:"output_format,omitempty"`

	// OutputKey is the context key that receives the completion.
	OutputKey string `json:"output_key"`

	// MaxTokens caps the completion length; 0 leaves it to the endpoint.
	MaxTokens int `json:"max_tokens,omitempty"`
}

// ApplyDefaults fills in defaults for omitted optional fields.
func (c *Config) ApplyDefaults() {
	if c.OutputFormat == "" {
		c.OutputFormat = FormatText
	}
}

// Validate checks the configuration, naming the offending field.
func (c *Config) Validate() error {
	if c.Prompt == "" {
		return sdkerrors.NewInvalidStepConfig(Type, "prompt", "is required")
	}
	if c.OutputKey == "" {
		return sdkerrors.NewInvalidStepConfig(Type, "output_key", "is required")
	}
	if c.OutputFormat != FormatText && c.OutputFormat != FormatJSON {
		return sdkerrors.NewInvalidStepConfig(Type, "output_format",
			fmt.Sprintf("must be %q or %q, got %q", FormatText, FormatJSON, c.OutputFormat))
	}
	if c.MaxTokens < 0 {
		return sdkerrors.NewInvalidStepConfig(Type, "max_tokens", "must be >= 0")
	}
	return nil
}

// Step is the llm_generate step.
type Step struct {
	cfg    Config
	gen    llm.Generator
	logger *zap.Logger
}

// New returns the constructor for the llm_generate step type. A nil generator
// is tolerated at construction so recipes without generation steps need no
// endpoint; executing the step then fails.
func New(gen llm.Generator, logger *zap.Logger) engine.Constructor {
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
		return &Step{cfg: cfg, gen: gen, logger: logger}, nil
	}
}

// Execute renders the prompt, generates, and stores the completion under the
// output key: the raw text, or the decoded document in json mode.
func (s *Step) Execute(ctx context.Context, rc *engine.Context) error {
	if s.gen == nil {
		return errors.New("llm_generate: no generator configured")
	}

	prompt, err := template.Render(s.cfg.Prompt, rc)
	if err != nil {
		return fmt.Errorf("rendering prompt: %w", err)
	}

	out, err := s.gen.Generate(ctx, llm.Request{
		Model:     s.cfg.Model,
		Prompt:    prompt,
		MaxTokens: s.cfg.MaxTokens,
	})
	if err != nil {
		return fmt.Errorf("generating completion: %w", err)
	}

	if s.cfg.OutputFormat == FormatJSON {
		var decoded any
		if err := json.Unmarshal([]byte(strings.TrimSpace(out)), &decoded); err != nil {
			return fmt.Errorf("model output is not valid JSON: %w", err)
		}
		rc.Set(s.cfg.OutputKey, decoded)
	} else {
		rc.Set(s.cfg.OutputKey, out)
	}

	s.logger.Debug("Stored completion",
		zap.String("outputKey", s.cfg.OutputKey),
		zap.String("format", s.cfg.OutputFormat),
		zap.Int("bytes", len(out)))
	return nil
}
