package errors

import (
	"fmt"
	"strings"
)

// Phase indicates where in processing the error occurred
type Phase string

const (
	PhaseLoad     Phase = "load"     // bytecode validation and interpreter instantiation
	PhaseCompile  Phase = "compile"  // native code generation
	PhasePublish  Phase = "publish"  // function slot publication
	PhaseTransfer Phase = "transfer" // ownership handoff to the registries
	PhaseSchedule Phase = "schedule" // task submission
	PhaseRuntime  Phase = "runtime"  // function calls
	PhaseConfig   Phase = "config"   // configuration loading
)

// Kind categorizes the error
type Kind string

const (
	KindInvalidInput    Kind = "invalid_input"
	KindInvalidData     Kind = "invalid_data"
	KindNotFound        Kind = "not_found"
	KindUnknownID       Kind = "unknown_id"
	KindAlreadyOwned    Kind = "already_owned"
	KindMissingFunction Kind = "missing_function"
	KindBackendFailure  Kind = "backend_failure"
	KindInUse           Kind = "in_use"
	KindClosed          Kind = "closed"
	KindInstantiation   Kind = "instantiation"
	KindUnsupported     Kind = "unsupported"
)

// Error is the structured error type used throughout the module
type Error struct {
	Value  any
	Cause  error
	Phase  Phase
	Kind   Kind
	Module string
	Detail string
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if e.Module != "" {
		b.WriteString(" in module ")
		b.WriteString(e.Module)
	}

	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Phase == t.Phase && e.Kind == t.Kind
	}
	return false
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
		},
	}
}

// Module sets the name of the module involved
func (b *Builder) Module(name string) *Builder {
	b.err.Module = name
	return b
}

// Value sets the offending value
func (b *Builder) Value(v any) *Builder {
	b.err.Value = v
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// Convenience constructors for common error patterns

// Wrap wraps an existing error with additional context
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Detail: detail,
		Cause:  cause,
	}
}

// InvalidInput creates an invalid input error
func InvalidInput(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidInput,
		Detail: detail,
	}
}

// NotFound creates a not-found error
func NotFound(phase Phase, what, name string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotFound,
		Detail: fmt.Sprintf("%s %q not found", what, name),
	}
}

// UnknownID reports an identity that was never issued or has been retired.
func UnknownID(what string, id uint32) *Error {
	return &Error{
		Phase:  PhaseTransfer,
		Kind:   KindUnknownID,
		Detail: fmt.Sprintf("%s id %d was never issued", what, id),
		Value:  id,
	}
}

// AlreadyOwned reports a second transfer into a filled registry slot.
func AlreadyOwned(what string, id uint32) *Error {
	return &Error{
		Phase:  PhaseTransfer,
		Kind:   KindAlreadyOwned,
		Detail: fmt.Sprintf("%s id %d already holds a transferred object", what, id),
		Value:  id,
	}
}

// MissingFunction reports a declared function absent from a compiled artifact.
func MissingFunction(module, function string) *Error {
	return &Error{
		Phase:  PhasePublish,
		Kind:   KindMissingFunction,
		Module: module,
		Detail: fmt.Sprintf("function %q missing from compiled artifact", function),
		Value:  function,
	}
}

// BackendFailure wraps an error returned by the native code backend.
func BackendFailure(module string, cause error) *Error {
	return &Error{
		Phase:  PhaseCompile,
		Kind:   KindBackendFailure,
		Module: module,
		Detail: "backend could not produce an artifact",
		Cause:  cause,
	}
}

// InUse reports an object that still has live references.
func InUse(what string, id uint32, refs int64) *Error {
	return &Error{
		Phase:  PhaseTransfer,
		Kind:   KindInUse,
		Detail: fmt.Sprintf("%s id %d has %d live references", what, id, refs),
		Value:  id,
	}
}

// Closed reports use of a component after Close.
func Closed(phase Phase, component string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindClosed,
		Detail: fmt.Sprintf("%s is closed", component),
	}
}

// Instantiation creates an instantiation error
func Instantiation(module string, cause error) *Error {
	return &Error{
		Phase:  PhaseLoad,
		Kind:   KindInstantiation,
		Module: module,
		Detail: "instantiate module",
		Cause:  cause,
	}
}

// Load creates a module loading error
func Load(detail string, cause error) *Error {
	return &Error{
		Phase:  PhaseLoad,
		Kind:   KindInvalidData,
		Detail: detail,
		Cause:  cause,
	}
}
