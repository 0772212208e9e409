// Package builtin registers every step type shipped with the engine into a
// step registry. Callers construct the registry and executor first, then hand
// the executor back in through Options so the composite steps (conditional,
// loop, parallel, execute_recipe) can re-enter it for their substeps.
package builtin

import (
	"errors"

	"go.uber.org/zap"

	"github.com/robotdad/recipe-tool-sub006/pkg/engine"
	"github.com/robotdad/recipe-tool-sub006/pkg/llm"
	"github.com/robotdad/recipe-tool-sub006/pkg/recipe"
	"github.com/robotdad/recipe-tool-sub006/pkg/steps/conditional"
	"github.com/robotdad/recipe-tool-sub006/pkg/steps/fileio"
	"github.com/robotdad/recipe-tool-sub006/pkg/steps/llmgenerate"
	"github.com/robotdad/recipe-tool-sub006/pkg/steps/loop"
	"github.com/robotdad/recipe-tool-sub006/pkg/steps/parallel"
	"github.com/robotdad/recipe-tool-sub006/pkg/steps/script"
	"github.com/robotdad/recipe-tool-sub006/pkg/steps/setcontext"
	"github.com/robotdad/recipe-tool-sub006/pkg/steps/subrecipe"
	"github.com/robotdad/recipe-tool-sub006/pkg/steps/toolcall"
	"github.com/robotdad/recipe-tool-sub006/pkg/tools"
)

// Options carries the collaborators shared by the built-in steps.
//
// Executor is required: composite steps delegate their substeps to it. The
// remaining collaborators are optional; a step whose collaborator is absent
// still registers and fails only when a recipe actually executes it, so
// recipes that never touch the LLM, tool bus or sub-recipes run without them.
type Options struct {
	Executor  *engine.Executor
	Loader    recipe.Loader
	Generator llm.Generator
	Invoker   tools.Invoker
	Logger    *zap.Logger
}

// Register installs all built-in step types into the registry.
func Register(reg *engine.Registry, opts Options) error {
	if reg == nil {
		return errors.New("builtin: registry is required")
	}
	if opts.Executor == nil {
		return errors.New("builtin: executor is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	// Composite steps.
	reg.Register(conditional.Type, conditional.New(opts.Executor, logger))
	reg.Register(loop.Type, loop.New(opts.Executor, logger))
	reg.Register(parallel.Type, parallel.New(opts.Executor, logger))
	reg.Register(subrecipe.Type, subrecipe.New(opts.Executor, opts.Loader, logger))

	// Leaf steps.
	reg.Register(setcontext.Type, setcontext.New(logger))
	reg.Register(fileio.ReadType, fileio.NewRead(logger))
	reg.Register(fileio.WriteType, fileio.NewWrite(logger))
	reg.Register(llmgenerate.Type, llmgenerate.New(opts.Generator, logger))
	reg.Register(toolcall.Type, toolcall.New(opts.Invoker, logger))
	reg.Register(script.Type, script.New(logger))

	return nil
}
