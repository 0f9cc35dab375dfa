// Package bytecode is the front end of the VM: it validates WebAssembly
// binaries and describes the functions a module exports.
//
// A Module lists its functions in a fixed order; FunctionInfo.ID is the
// index of the function's slot in the executable module built by package vm.
// Signatures are exposed both as core value types and as WIT types:
//
//	Core  WIT
//	────────
//	i32   s32
//	i64   s64
//	f32   f32
//	f64   f64
package bytecode
