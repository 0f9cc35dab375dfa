package vm

import (
	"fmt"
	"strings"

	"github.com/wippyai/wasm-jit/errors"
)

// Mode selects how Module.Call picks between bytecode and native code.
type Mode uint8

const (
	// ModeInterpret always runs bytecode.
	ModeInterpret Mode = iota
	// ModeAdaptive runs native code when published, else bytecode, and asks
	// for compilation once the module gets hot.
	ModeAdaptive
	// ModeCompiled compiles synchronously on first call.
	ModeCompiled
)

func (m Mode) String() string {
	switch m {
	case ModeInterpret:
		return "interpret"
	case ModeAdaptive:
		return "adaptive"
	case ModeCompiled:
		return "compiled"
	default:
		return fmt.Sprintf("mode(%d)", uint8(m))
	}
}

// ParseMode accepts the names returned by Mode.String.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "interpret", "interpreted":
		return ModeInterpret, nil
	case "adaptive", "":
		return ModeAdaptive, nil
	case "compiled", "jit":
		return ModeCompiled, nil
	default:
		return 0, errors.InvalidInput(errors.PhaseConfig, fmt.Sprintf("unknown execution mode %q", s))
	}
}

// State is the compile state of a module instance.
type State uint32

const (
	StateUncompiled State = iota
	StateCompiling
	StatePublished
	// StateFailed is terminal: the backend failed and the module stays
	// interpreted. Compilation is never retried.
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateUncompiled:
		return "uncompiled"
	case StateCompiling:
		return "compiling"
	case StatePublished:
		return "published"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", uint32(s))
	}
}

// Tier reports which code serves a function.
type Tier uint8

const (
	TierInterpreted Tier = iota
	TierNative
)

func (t Tier) String() string {
	if t == TierNative {
		return "native"
	}
	return "interpreted"
}
