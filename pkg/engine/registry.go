package engine

import (
	"encoding/json"
	"sort"

	sdkerrors "github.com/robotdad/recipe-tool-sub006/pkg/errors"
	"github.com/robotdad/recipe-tool-sub006/pkg/recipe"
)

// Constructor builds a Step from a raw step config. Constructors decode and
// validate the config once, at construction; a validation failure must name
// the offending field.
type Constructor func(config json.RawMessage) (Step, error)

// Registry maps step type names to their constructors. It is an explicit
// object rather than process-global state so tests stay hermetic; populate it
// once during wiring, before execution starts. Lookup during execution is
// read-only and safe for concurrent use.
type Registry struct {
	constructors map[string]Constructor
}

// NewRegistry creates an empty step registry.
func NewRegistry() *Registry {
	return &Registry{
		constructors: make(map[string]Constructor),
	}
}

// Register binds a constructor to a step type name. Registering the same name
// again replaces the previous constructor.
func (r *Registry) Register(typeName string, c Constructor) {
	r.constructors[typeName] = c
}

// HasType checks if a constructor exists for a step type name.
func (r *Registry) HasType(typeName string) bool {
	_, ok := r.constructors[typeName]
	return ok
}

// Types returns all registered type names, sorted.
func (r *Registry) Types() []string {
	types := make([]string, 0, len(r.constructors))
	for t := range r.constructors {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// Resolve constructs the step for a definition. An unregistered type yields an
// UnknownStepType error; constructor failures surface unchanged, carrying the
// InvalidStepConfig code they were built with.
func (r *Registry) Resolve(def recipe.StepDefinition) (Step, error) {
	c, ok := r.constructors[def.Type]
	if !ok {
		return nil, sdkerrors.NewUnknownStepType(def.Type)
	}
	return c(def.Config)
}
