// Package errors provides structured error types for the JIT manager.
//
// Errors are categorized by Phase (where the error occurred) and Kind (error category).
// The Error type carries the module name, an offending value and a cause chain.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseRuntime, errors.KindNotFound).
//		Module("scan").
//		Detail("function %q not exported", name).
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.UnknownID("module", id)
//	err := errors.BackendFailure(name, cause)
//
// All errors implement the standard error interface and support errors.Is/As.
// errors.Is matches on Phase and Kind.
package errors
