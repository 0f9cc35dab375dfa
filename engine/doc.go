// Package engine provides the two wazero tiers of the VM.
//
//	Interpreter  loads bytecode, owns the interpreted instances
//	Compiler     native backend implementing vm.Backend
//
// # Load Flow
//
//  1. Interpreter.Load validates the binary (bytecode.Compile)
//  2. The module is instantiated on the interpreter runtime
//  3. A region adopts the bytecode and the interpreted instance
//  4. The caller receives the module and its region, and owns both
//
// # Compile Flow
//
// Compiler.Compile creates a dedicated wazero compiler runtime, compiles and
// instantiates the module there and returns an Artifact. The module's region
// adopts the artifact, so freeing the region releases the machine code.
//
// The compilation cache is shared by all artifacts of a Compiler. Set
// Config.CacheDir to keep native code across restarts.
//
// # Thread Safety
//
// Interpreter, Compiler and Artifact are safe for concurrent use. Function
// values returned by Artifact.GetFunctionPointer may be called from many
// goroutines at once.
package engine
