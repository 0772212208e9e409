package errors

import (
	"errors"
	"fmt"
	"time"
)

// Code is a machine-readable classification of a recipe execution failure.
type Code string

const (
	// CodeUnknownStepType indicates a registry lookup miss for a step type name.
	CodeUnknownStepType Code = "UNKNOWN_STEP_TYPE"

	// CodeInvalidStepConfig indicates a construction-time config validation failure.
	CodeInvalidStepConfig Code = "INVALID_STEP_CONFIG"

	// CodeConditionEvaluation indicates a condition render or evaluation failure.
	CodeConditionEvaluation Code = "CONDITION_EVALUATION"

	// CodeInvalidItemsType indicates loop items resolved to a non-collection.
	CodeInvalidItemsType Code = "INVALID_ITEMS_TYPE"

	// CodeItemProcessing indicates a single loop item's sub-plan failed.
	CodeItemProcessing Code = "ITEM_PROCESSING"

	// CodeSubRecipeNotFound indicates a nested recipe path did not resolve.
	CodeSubRecipeNotFound Code = "SUBRECIPE_NOT_FOUND"

	// CodeSubRecipeExecution indicates a nested recipe failed while running.
	CodeSubRecipeExecution Code = "SUBRECIPE_EXECUTION"

	// CodeAggregateFailure indicates a parallel substep failed, aborting the rest.
	CodeAggregateFailure Code = "AGGREGATE_FAILURE"

	// CodeTimeoutExceeded indicates a parallel step exceeded its wall-clock budget.
	CodeTimeoutExceeded Code = "TIMEOUT_EXCEEDED"
)

// Error is a structured execution error. Besides the code and message it
// carries the identifying fields known at the failure site (step type, config
// field, item key, substep index, recipe path) so callers can locate the
// offending step definition without an execution trace.
type Error struct {
	// Code is the machine-readable error code.
	Code Code

	// Message is a human-readable error message.
	Message string

	// Step is the step type name, when known.
	Step string

	// Field is the offending config field, for validation failures.
	Field string

	// Key is the item key, for per-item loop failures.
	Key string

	// Index is the substep index for aggregate failures; -1 when not applicable.
	Index int

	// Path is the recipe path, for sub-recipe failures.
	Path string

	// Err is the underlying error, if any.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// New creates an execution error with no underlying cause.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message, Index: -1}
}

// Wrap creates an execution error around an underlying cause.
func Wrap(code Code, message string, err error) *Error {
	return &Error{Code: code, Message: message, Index: -1, Err: err}
}

// NewUnknownStepType reports a registry miss for the given type name.
func NewUnknownStepType(typeName string) *Error {
	e := New(CodeUnknownStepType, fmt.Sprintf("no step registered for type %q", typeName))
	e.Step = typeName
	return e
}

// NewInvalidStepConfig reports a config validation failure, naming the field.
func NewInvalidStepConfig(stepType, field, reason string) *Error {
	e := New(CodeInvalidStepConfig, fmt.Sprintf("invalid config for step %q: field %q: %s", stepType, field, reason))
	e.Step = stepType
	e.Field = field
	return e
}

// NewConditionEvaluation reports a condition failure, preserving both the raw
// and the rendered expression text for diagnosis.
func NewConditionEvaluation(raw, rendered string, err error) *Error {
	msg := fmt.Sprintf("condition %q (rendered %q) could not be evaluated", raw, rendered)
	if rendered == raw {
		msg = fmt.Sprintf("condition %q could not be evaluated", raw)
	}
	return Wrap(CodeConditionEvaluation, msg, err)
}

// NewInvalidItemsType reports that loop items resolved to a non-collection.
func NewInvalidItemsType(got string) *Error {
	return New(CodeInvalidItemsType, fmt.Sprintf("loop items must resolve to a list or map, got %s", got))
}

// NewItemProcessing reports the failure of a single loop item's sub-plan.
func NewItemProcessing(key string, err error) *Error {
	e := Wrap(CodeItemProcessing, fmt.Sprintf("processing item %q failed", key), err)
	e.Key = key
	return e
}

// NewSubRecipeNotFound reports an unresolvable nested recipe path.
func NewSubRecipeNotFound(path string, err error) *Error {
	e := Wrap(CodeSubRecipeNotFound, fmt.Sprintf("sub-recipe %q not found", path), err)
	e.Path = path
	return e
}

// NewSubRecipeExecution wraps a failure from inside a nested recipe.
func NewSubRecipeExecution(path string, err error) *Error {
	e := Wrap(CodeSubRecipeExecution, fmt.Sprintf("sub-recipe %q failed", path), err)
	e.Path = path
	return e
}

// NewAggregateFailure reports the first failing substep of a parallel step.
func NewAggregateFailure(index int, err error) *Error {
	e := Wrap(CodeAggregateFailure, fmt.Sprintf("parallel substep %d failed", index), err)
	e.Index = index
	return e
}

// NewTimeoutExceeded reports that a parallel step exceeded its wall-clock budget.
func NewTimeoutExceeded(timeout time.Duration) *Error {
	return New(CodeTimeoutExceeded, fmt.Sprintf("parallel step exceeded timeout of %s", timeout))
}

// As extracts a structured execution error from err's chain.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// IsCode reports whether err's chain contains an execution error with the code.
func IsCode(err error, code Code) bool {
	e, ok := As(err)
	return ok && e.Code == code
}

// IsUnknownStepType checks if an error is a registry lookup miss.
func IsUnknownStepType(err error) bool { return IsCode(err, CodeUnknownStepType) }

// IsInvalidStepConfig checks if an error is a config validation failure.
func IsInvalidStepConfig(err error) bool { return IsCode(err, CodeInvalidStepConfig) }

// IsConditionEvaluation checks if an error is a condition evaluation failure.
func IsConditionEvaluation(err error) bool { return IsCode(err, CodeConditionEvaluation) }

// IsInvalidItemsType checks if an error is a non-collection items failure.
func IsInvalidItemsType(err error) bool { return IsCode(err, CodeInvalidItemsType) }

// IsItemProcessing checks if an error is a per-item loop failure.
func IsItemProcessing(err error) bool { return IsCode(err, CodeItemProcessing) }

// IsSubRecipeNotFound checks if an error is an unresolvable sub-recipe path.
func IsSubRecipeNotFound(err error) bool { return IsCode(err, CodeSubRecipeNotFound) }

// IsSubRecipeExecution checks if an error is a nested recipe failure.
func IsSubRecipeExecution(err error) bool { return IsCode(err, CodeSubRecipeExecution) }

// IsAggregateFailure checks if an error is a parallel substep failure.
func IsAggregateFailure(err error) bool { return IsCode(err, CodeAggregateFailure) }

// IsTimeoutExceeded checks if an error is a parallel timeout.
func IsTimeoutExceeded(err error) bool { return IsCode(err, CodeTimeoutExceeded) }
