package jit

import (
	"github.com/wippyai/wasm-jit/profile"
	"github.com/wippyai/wasm-jit/vm"
)

// DefaultHotThreshold is the number of adaptive calls after which a watched
// module is submitted for compilation.
const DefaultHotThreshold = 1000

// Options configures a Manager. The zero value is usable.
type Options struct {
	// Workers bounds concurrent compiles. <= 0 uses GOMAXPROCS.
	Workers int
	// HotThreshold applies to modules registered with Watch.
	HotThreshold uint64
	// Compiler is passed unchanged to every backend compile.
	Compiler vm.CompilerOptions
	// Profile receives an entry per published module and drives warm
	// starts in Watch. nil disables both.
	Profile *profile.Profile
}

func (o *Options) withDefaults() Options {
	var out Options
	if o != nil {
		out = *o
	}
	if out.HotThreshold == 0 {
		out.HotThreshold = DefaultHotThreshold
	}
	return out
}
