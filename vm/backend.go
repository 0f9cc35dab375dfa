package vm

import (
	"context"

	wasmjit "github.com/wippyai/wasm-jit"
	"github.com/wippyai/wasm-jit/bytecode"
)

// CompilerOptions is the fixed configuration handed to the backend for every
// compile.
type CompilerOptions struct {
	// MemoryLimitPages caps linear memory of native instances (64KiB pages).
	// 0 keeps the backend default.
	MemoryLimitPages uint32

	// DebugInfo keeps source-level stack traces in native code.
	DebugInfo bool
}

// Artifact is the native code a backend produced for one module.
// Closing it releases the machine code; functions looked up from it must not
// be called afterwards.
type Artifact interface {
	wasmjit.Releaser

	// GetFunctionPointer returns the native entry point for name, or nil.
	GetFunctionPointer(name string) wasmjit.Function
}

// Backend turns bytecode into native code. Compile is synchronous and may
// take milliseconds.
type Backend interface {
	Compile(ctx context.Context, m *bytecode.Module, opts CompilerOptions) (Artifact, error)
}
