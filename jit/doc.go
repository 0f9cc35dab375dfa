// Package jit implements the asynchronous compilation manager.
//
// The manager takes interpreted modules, compiles them to native code on a
// worker pool and publishes the result into each module's function slots.
// Callers never wait for a compile:
//
//	res := mgr.AddModule(mod)               // ids reserved, task scheduled
//	_ = mgr.TransferModule(mod, res.ModuleID)
//	_ = mgr.TransferRegion(rgn, res.RegionID)
//
// AddModule and the transfers race freely. The ids are reserved in the
// manager's registries before AddModule returns, so a transfer always finds
// its slot whether or not the compile has finished.
//
// # Policies
//
//   - A module is compiled at most once, however often it is submitted.
//   - A backend failure leaves the module interpreted and is not retried.
//   - Transferring under an id that was never issued (or was retired) returns
//     an unknown_id error and leaves ownership with the caller.
//   - Transferring into a slot that is already filled returns already_owned.
//   - Retire refuses modules that still have references.
//
// Watch hooks a module's adaptive calls up to AddModule so that modules get
// compiled once they are hot, and submits modules found in the persisted
// profile straight away.
package jit
