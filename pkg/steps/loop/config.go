package loop

import (
	sdkerrors "github.com/robotdad/recipe-tool-sub006/pkg/errors"
	"github.com/robotdad/recipe-tool-sub006/pkg/recipe"
)

// Config is the loop step configuration.
type Config struct {
	// Items is an inline list or map, or a templated string that resolves
	// to a dotted context path naming the collection to iterate.
	Items any `json:"items"`

	// ItemKey is the context key each item is bound to inside its clone.
	ItemKey string `json:"item_key"`

	// Substeps is the sub-plan run once per item.
	Substeps []recipe.StepDefinition `json:"substeps"`

	// ResultKey receives the collected results. Two companion keys,
	// ResultKey+"__errors" and ResultKey+"__history", receive the per-item
	// failures and the full launch-order record.
	ResultKey string `json:"result_key"`

	// MaxConcurrency bounds in-flight items: 1 is strictly sequential (the
	// default), 0 is unlimited, any other value is the bound.
	MaxConcurrency *int `json:"max_concurrency,omitempty"`

	// Delay is the stagger in seconds between successive launches.
	Delay float64 `json:"delay,omitempty"`

	// FailFast stops launching after the first item failure and returns it
	// as the step error. When false, every item runs and failures are
	// reported only through the companion keys. Defaults to true.
	FailFast *bool `json:"fail_fast,omitempty"`
}

// ApplyDefaults fills in defaults for omitted optional fields.
func (c *Config) ApplyDefaults() {
	if c.MaxConcurrency == nil {
		sequential := 1
		c.MaxConcurrency = &sequential
	}
	if c.FailFast == nil {
		failFast := true
		c.FailFast = &failFast
	}
}

// Validate checks the configuration, naming the offending field.
func (c *Config) Validate() error {
	if c.Items == nil {
		return sdkerrors.NewInvalidStepConfig(Type, "items", "is required")
	}
	if c.ItemKey == "" {
		return sdkerrors.NewInvalidStepConfig(Type, "item_key", "is required")
	}
	if c.ResultKey == "" {
		return sdkerrors.NewInvalidStepConfig(Type, "result_key", "is required")
	}
	if *c.MaxConcurrency < 0 {
		return sdkerrors.NewInvalidStepConfig(Type, "max_concurrency", "must be >= 0")
	}
	if c.Delay < 0 {
		return sdkerrors.NewInvalidStepConfig(Type, "delay", "must be >= 0")
	}
	return nil
}
