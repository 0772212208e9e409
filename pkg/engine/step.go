package engine

import (
	"context"
)

// Step is a resolved, executable unit of work. Execute may read and mutate the
// recipe Context it is handed, may block on the supplied context.Context, and
// reports failure through its error. A step must honor ctx cancellation at its
// own blocking points and must not retain rc past its return.
type Step interface {
	Execute(ctx context.Context, rc *Context) error
}

// StepFunc adapts a plain function to the Step interface.
type StepFunc func(ctx context.Context, rc *Context) error

// Execute implements Step.
func (f StepFunc) Execute(ctx context.Context, rc *Context) error {
	return f(ctx, rc)
}
