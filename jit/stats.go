package jit

import "sync/atomic"

// Stats is a point-in-time copy of the manager counters.
type Stats struct {
	Submitted uint64 // tasks handed to the scheduler
	Dropped   uint64 // AddModule calls after Close
	Compiled  uint64 // compiles that published native code
	Skipped   uint64 // tasks that lost the compile gate
	Failed    uint64 // backend failures; the module stays interpreted
	Transfers uint64
	Rejected  uint64 // transfers refused for an unknown or owned id
	Retired   uint64
	Warm      uint64 // Watch submissions driven by the profile

	Modules int // filled module slots
	Regions int // filled region slots
}

type counters struct {
	submitted atomic.Uint64
	dropped   atomic.Uint64
	compiled  atomic.Uint64
	skipped   atomic.Uint64
	failed    atomic.Uint64
	transfers atomic.Uint64
	rejected  atomic.Uint64
	retired   atomic.Uint64
	warm      atomic.Uint64
}
