// Package vm provides the executable module of the bytecode VM.
//
// A Module pairs an interpreted instance with a slot per function. A slot is
// nil while its function is interpreted and holds native code once the
// module has been compiled:
//
//	Uncompiled ──CAS──▶ Compiling ──▶ Published
//	                        │
//	                        └──────▶ Failed (stays interpreted)
//
// Module.Compile is the one-shot gate: the first caller compiles, every other
// caller returns at once. Publication stores each slot atomically; a reader
// that still sees nil just interprets one more call.
//
// Calls pick a tier by Mode:
//
//	ModeInterpret  always bytecode
//	ModeAdaptive   native when published, else bytecode; reports hot modules
//	ModeCompiled   compile synchronously on first call, then native
//
// Native and interpreted code run in separate instances with separate linear
// memories. Functions are expected to compute from their parameters alone,
// as query kernels do; instance state is not carried across tiers.
package vm
