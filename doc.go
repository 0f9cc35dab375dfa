// Package wasmjit provides an asynchronous JIT compilation manager for a
// WebAssembly bytecode VM embedded in a query execution engine.
//
// Modules start out interpreted. The compilation manager schedules their
// machine-code compilation on a worker pool so query execution never waits for
// the JIT, and publishes each compiled function into the module's function
// slots. Running and future calls switch to native code as soon as a slot is
// populated.
//
// # Architecture Overview
//
//	wasmjit/          Root package with the Function and Releaser interfaces
//	├── bytecode/     Validates WebAssembly and describes its functions
//	├── region/       Arena owning the memory backing a module
//	├── vm/           Executable module: function slots, compile gate, tiered calls
//	├── engine/       wazero interpreter (loader) and compiler (native backend)
//	├── registry/     Reservation-then-fill concurrent slot map
//	├── scheduler/    Fire-and-forget worker pool for compile tasks
//	├── jit/          Compilation manager and async compile task
//	├── profile/      Persisted hot-module profile
//	├── txn/          Transaction manager handle
//	├── config/       TOML configuration and logger setup
//	├── errors/       Structured error types
//	└── cmd/jitrun/   CLI and live tier dashboard
//
// # Quick Start
//
//	interp, err := engine.NewInterpreter(ctx, nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer interp.Close(ctx)
//
//	comp, err := engine.NewCompiler(ctx, nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer comp.Close(ctx)
//
//	mgr := jit.New(txn.NewManager(), comp, nil)
//	defer mgr.Close(ctx)
//
//	mod, rgn, err := interp.Load(ctx, "filter", wasmBytes)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	res := mgr.AddModule(mod)     // returns immediately
//	_ = mgr.TransferModule(mod, res.ModuleID)
//	_ = mgr.TransferRegion(rgn, res.RegionID)
//
//	out, err := mod.Call(ctx, vm.ModeAdaptive, "add", api.EncodeI32(1), api.EncodeI32(2))
//
// # Thread Safety
//
// Manager, Module and Region are safe for concurrent use. Function slots are
// written once by the compile task and read without locks by callers.
package wasmjit
