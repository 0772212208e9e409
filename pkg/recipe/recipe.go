package recipe

import (
	"bytes"
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

// StepDefinition is one inert {type, config} record in a recipe. The config is
// kept raw; the step constructor registered for Type decodes and validates it.
type StepDefinition struct {
	Type   string          `json:"type"`
	Config json.RawMessage `json:"config,omitempty"`
}

// Recipe is an ordered sequence of step definitions, executed in list order.
type Recipe struct {
	Name  string           `json:"name,omitempty"`
	Steps []StepDefinition `json:"steps"`
}

// Validate checks that every step definition carries a type name.
func (r *Recipe) Validate() error {
	for i, s := range r.Steps {
		if s.Type == "" {
			return fmt.Errorf("step %d: missing type", i)
		}
	}
	return nil
}

// Parse decodes a JSON recipe. Both document form ({"name": ..., "steps":
// [...]}) and bare step-list form ([{"type": ...}, ...]) are accepted.
func Parse(data []byte) (*Recipe, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("empty recipe document")
	}

	var r Recipe
	if trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &r.Steps); err != nil {
			return nil, fmt.Errorf("parsing recipe step list: %w", err)
		}
	} else {
		if err := json.Unmarshal(trimmed, &r); err != nil {
			return nil, fmt.Errorf("parsing recipe document: %w", err)
		}
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return &r, nil
}

// ParseYAML decodes a YAML recipe in either document or bare-list form. Step
// configs are re-encoded to JSON so the constructor path is identical for both
// formats.
func ParseYAML(data []byte) (*Recipe, error) {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing recipe YAML: %w", err)
	}

	var (
		r        Recipe
		rawSteps []any
	)
	switch v := doc.(type) {
	case []any:
		rawSteps = v
	case map[string]any:
		if name, ok := v["name"].(string); ok {
			r.Name = name
		}
		steps, ok := v["steps"].([]any)
		if !ok && v["steps"] != nil {
			return nil, fmt.Errorf("recipe field %q must be a list", "steps")
		}
		rawSteps = steps
	case nil:
		return nil, fmt.Errorf("empty recipe document")
	default:
		return nil, fmt.Errorf("recipe document must be a mapping or a step list, got %T", doc)
	}

	r.Steps = make([]StepDefinition, 0, len(rawSteps))
	for i, raw := range rawSteps {
		m, ok := raw.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("step %d: must be a mapping, got %T", i, raw)
		}
		def := StepDefinition{}
		if t, ok := m["type"].(string); ok {
			def.Type = t
		}
		if cfg, ok := m["config"]; ok && cfg != nil {
			encoded, err := json.Marshal(cfg)
			if err != nil {
				return nil, fmt.Errorf("step %d: encoding config: %w", i, err)
			}
			def.Config = encoded
		}
		r.Steps = append(r.Steps, def)
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return &r, nil
}
