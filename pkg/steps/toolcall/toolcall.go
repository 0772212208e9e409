// Package toolcall implements the "tool_call" leaf step: it invokes a remote
// tool server over request/reply and stores the decoded reply. Tool names map
// to subjects through the "tool_servers" entry of the context's config
// sub-store, so recipes stay portable across environments.
package toolcall

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/robotdad/recipe-tool-sub006/pkg/engine"
	sdkerrors "github.com/robotdad/recipe-tool-sub006/pkg/errors"
	"github.com/robotdad/recipe-tool-sub006/pkg/template"
	"github.com/robotdad/recipe-tool-sub006/pkg/tools"
)

// Type is the step type name this package registers.
const Type = "tool_call"

// ServersConfigKey is the config sub-store entry mapping tool names to
// subjects: a list of {"name": ..., "subject": ...} records.
const ServersConfigKey = "tool_servers"

// Config is the tool_call step configuration.
type Config struct {
	// Tool is the tool name, resolved to a subject through the config
	// sub-store.
	Tool string `json:"tool"`

	// Args are the request arguments; string values are template-rendered.
	Args map[string]any `json:"args,omitempty"`

	// Timeout bounds the round trip; accepts a duration string like
	// "30s". Defaults to 30s.
	Timeout time.Duration `json:"timeout,omitempty"`

	// ResultKey is the context key that receives the reply.
	ResultKey string `json:"result_key"`

	// ResultPath optionally narrows the stored value to one field of the
	// reply document, in gjson path syntax.
	ResultPath string `json:"result_path,omitempty"`
}

// UnmarshalJSON accepts the timeout as a duration string.
func (c *Config) UnmarshalJSON(data []byte) error {
	type Alias Config
	aux := &struct {
		Timeout string `json:"timeout,omitempty"`
		*Alias
	}{
		Alias: (*Alias)(c),
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if aux.Timeout != "" {
		duration, err := time.ParseDuration(aux.Timeout)
		if err != nil {
			return fmt.Errorf("invalid timeout format: %w", err)
		}
		c.Timeout = duration
	}
	return nil
}

// ApplyDefaults fills in defaults for omitted optional fields.
func (c *Config) ApplyDefaults() {
	if c.Timeout == 0 {
		c.Timeout = 30 * time.Second
	}
}

// Validate checks the configuration, naming the offending field.
func (c *Config) Validate() error {
	if c.Tool == "" {
		return sdkerrors.NewInvalidStepConfig(Type, "tool", "is required")
	}
	if c.ResultKey == "" {
		return sdkerrors.NewInvalidStepConfig(Type, "result_key", "is required")
	}
	if c.Timeout <= 0 {
		return sdkerrors.NewInvalidStepConfig(Type, "timeout", "must be positive")
	}
	return nil
}

// Step is the tool_call step.
type Step struct {
	cfg     Config
	invoker tools.Invoker
	logger  *zap.Logger
}

// New returns the constructor for the tool_call step type. A nil invoker is
// tolerated at construction so recipes without tool steps need no broker;
// executing the step then fails.
func New(invoker tools.Invoker, logger *zap.Logger) engine.Constructor {
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
		return &Step{cfg: cfg, invoker: invoker, logger: logger}, nil
	}
}

// Execute resolves the tool's subject, renders the args, performs the
// request, and stores the decoded reply (or the result_path field of it)
// under the result key.
func (s *Step) Execute(ctx context.Context, rc *engine.Context) error {
	if s.invoker == nil {
		return errors.New("tool_call: no tool invoker configured")
	}

	subject, err := resolveSubject(rc, s.cfg.Tool)
	if err != nil {
		return err
	}

	args, err := s.renderArgs(rc)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(map[string]any{"tool": s.cfg.Tool, "args": args})
	if err != nil {
		return fmt.Errorf("marshaling tool request: %w", err)
	}

	reply, err := s.invoker.Invoke(ctx, subject, payload, s.cfg.Timeout)
	if err != nil {
		return fmt.Errorf("calling tool %q: %w", s.cfg.Tool, err)
	}

	var value any
	if s.cfg.ResultPath != "" {
		res := gjson.GetBytes(reply, s.cfg.ResultPath)
		if !res.Exists() {
			return fmt.Errorf("tool %q reply has no field at %q", s.cfg.Tool, s.cfg.ResultPath)
		}
		value = res.Value()
	} else {
		if err := json.Unmarshal(reply, &value); err != nil {
			return fmt.Errorf("tool %q reply is not valid JSON: %w", s.cfg.Tool, err)
		}
	}

	rc.Set(s.cfg.ResultKey, value)
	s.logger.Debug("Stored tool result",
		zap.String("tool", s.cfg.Tool),
		zap.String("resultKey", s.cfg.ResultKey))
	return nil
}

// renderArgs template-renders string argument values, leaving other kinds
// as given.
func (s *Step) renderArgs(rc *engine.Context) (map[string]any, error) {
	if len(s.cfg.Args) == 0 {
		return map[string]any{}, nil
	}
	out := make(map[string]any, len(s.cfg.Args))
	for k, v := range s.cfg.Args {
		str, ok := v.(string)
		if !ok {
			out[k] = v
			continue
		}
		rendered, err := template.Render(str, rc)
		if err != nil {
			return nil, fmt.Errorf("rendering arg %q: %w", k, err)
		}
		out[k] = rendered
	}
	return out, nil
}

// resolveSubject finds the subject registered for the tool name in the
// config sub-store.
func resolveSubject(rc *engine.Context, tool string) (string, error) {
	raw, ok := rc.ConfigValue(ServersConfigKey)
	if !ok {
		return "", sdkerrors.NewInvalidStepConfig(Type, "tool",
			fmt.Sprintf("no %q entry in run config", ServersConfigKey))
	}
	servers, ok := raw.([]any)
	if !ok {
		return "", sdkerrors.NewInvalidStepConfig(Type, "tool",
			fmt.Sprintf("%q must be a list of {name, subject} records", ServersConfigKey))
	}
	for _, entry := range servers {
		m, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		name, _ := m["name"].(string)
		subject, _ := m["subject"].(string)
		if name == tool && subject != "" {
			return subject, nil
		}
	}
	return "", sdkerrors.NewInvalidStepConfig(Type, "tool",
		fmt.Sprintf("tool %q not registered in %q", tool, ServersConfigKey))
}
