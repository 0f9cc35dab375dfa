package vm

import (
	"context"
	"sync/atomic"

	"github.com/tetratelabs/wazero/api"

	wasmjit "github.com/wippyai/wasm-jit"
	"github.com/wippyai/wasm-jit/bytecode"
	"github.com/wippyai/wasm-jit/errors"
	"github.com/wippyai/wasm-jit/region"
)

// Native is a published native entry point.
type Native struct {
	fn wasmjit.Function
}

// Call invokes the native code.
func (n *Native) Call(ctx context.Context, params ...uint64) ([]uint64, error) {
	return n.fn.Call(ctx, params...)
}

// Tiering connects a module to a compiler. Installed by the compilation
// manager when it starts watching a module.
type Tiering struct {
	Backend Backend
	// OnHot is called once when adaptive calls reach HotThreshold.
	OnHot        func(*Module)
	Options      CompilerOptions
	HotThreshold uint64
}

type artifactRef struct {
	art Artifact
}

// Module is an executable bytecode module. Each function has a slot that is
// nil while the function is interpreted and holds native code once the
// module has been compiled. Slots only ever go from nil to populated.
type Module struct {
	bc       *bytecode.Module
	interp   api.Module
	region   *region.Region
	tiering  atomic.Pointer[Tiering]
	artifact atomic.Pointer[artifactRef]
	failure  atomic.Pointer[errors.Error]
	slots    []atomic.Pointer[Native]

	calls       atomic.Uint64
	nativeCalls atomic.Uint64
	refs        atomic.Int64
	state       atomic.Uint32
	hotFired    atomic.Bool
	closed      atomic.Bool
}

// NewModule wraps an interpreted instance of bc. rgn is the arena backing
// the module; nil creates a fresh one named after the module.
func NewModule(bc *bytecode.Module, interp api.Module, rgn *region.Region) *Module {
	if rgn == nil {
		rgn = region.New(bc.Name())
	}
	return &Module{
		bc:     bc,
		interp: interp,
		region: rgn,
		slots:  make([]atomic.Pointer[Native], bc.NumFunctions()),
	}
}

func (m *Module) Name() string {
	return m.bc.Name()
}

func (m *Module) Bytecode() *bytecode.Module {
	return m.bc
}

// Region returns the arena backing the module. The module does not own it.
func (m *Module) Region() *region.Region {
	return m.region
}

func (m *Module) State() State {
	return State(m.state.Load())
}

// Artifact returns the native artifact, or nil before publication.
func (m *Module) Artifact() Artifact {
	if ref := m.artifact.Load(); ref != nil {
		return ref.art
	}
	return nil
}

// Failure returns the backend error of a failed compile.
func (m *Module) Failure() error {
	if e := m.failure.Load(); e != nil {
		return e
	}
	return nil
}

// SetTiering installs the compiler used by adaptive and compiled calls.
func (m *Module) SetTiering(t *Tiering) {
	m.tiering.Store(t)
}

// Compile runs the one-shot compile-and-publish protocol. Only the first
// caller for a module instance gets past the gate; every other caller,
// concurrent or later, returns (false, nil) at once.
//
// A declared function missing from the artifact means the front end and the
// backend disagree. That is not recoverable and Compile panics.
func (m *Module) Compile(ctx context.Context, backend Backend, opts CompilerOptions) (bool, error) {
	if !m.state.CompareAndSwap(uint32(StateUncompiled), uint32(StateCompiling)) {
		return false, nil
	}

	if m.artifact.Load() != nil {
		m.state.Store(uint32(StatePublished))
		return false, nil
	}

	art, err := backend.Compile(ctx, m.bc, opts)
	if err == nil && art == nil {
		err = errors.InvalidInput(errors.PhaseCompile, "backend returned no artifact")
	}
	if err != nil {
		return false, m.fail(errors.BackendFailure(m.Name(), err))
	}

	if err := m.region.Adopt(art, int64(len(m.bc.Code()))); err != nil {
		_ = art.Close(ctx)
		return false, m.fail(errors.BackendFailure(m.Name(), err))
	}
	m.artifact.Store(&artifactRef{art: art})

	for _, fi := range m.bc.GetFunctionsInfo() {
		fn := art.GetFunctionPointer(fi.Name)
		if fn == nil {
			panic(errors.MissingFunction(m.Name(), fi.Name))
		}
		m.slots[fi.ID].Store(&Native{fn: fn})
	}

	m.state.Store(uint32(StatePublished))
	return true, nil
}

func (m *Module) fail(e *errors.Error) error {
	m.failure.Store(e)
	m.state.Store(uint32(StateFailed))
	return e
}

// Slot returns the native code of function id, or nil while interpreted.
func (m *Module) Slot(id bytecode.FunctionID) *Native {
	if int(id) >= len(m.slots) {
		return nil
	}
	return m.slots[id].Load()
}

// Tier reports which code currently serves function name.
func (m *Module) Tier(name string) Tier {
	fi, ok := m.bc.Function(name)
	if !ok || m.Slot(fi.ID) == nil {
		return TierInterpreted
	}
	return TierNative
}

// Call invokes function name using mode to choose the tier.
func (m *Module) Call(ctx context.Context, mode Mode, name string, params ...uint64) ([]uint64, error) {
	fi, ok := m.bc.Function(name)
	if !ok {
		return nil, errors.New(errors.PhaseRuntime, errors.KindNotFound).
			Module(m.Name()).
			Detail("function %q not exported", name).
			Build()
	}
	return m.CallID(ctx, mode, fi.ID, params...)
}

// CallID invokes the function with slot id.
func (m *Module) CallID(ctx context.Context, mode Mode, id bytecode.FunctionID, params ...uint64) ([]uint64, error) {
	if m.closed.Load() {
		return nil, errors.Closed(errors.PhaseRuntime, "module "+m.Name())
	}
	if int(id) >= len(m.slots) {
		return nil, errors.New(errors.PhaseRuntime, errors.KindNotFound).
			Module(m.Name()).
			Detail("function slot %d out of range (%d slots)", id, len(m.slots)).
			Value(id).
			Build()
	}

	n := m.calls.Add(1)
	t := m.tiering.Load()

	switch mode {
	case ModeAdaptive:
		if t != nil && t.OnHot != nil && n >= t.HotThreshold && m.hotFired.CompareAndSwap(false, true) {
			t.OnHot(m)
		}
	case ModeCompiled:
		if t == nil || t.Backend == nil {
			return nil, errors.New(errors.PhaseRuntime, errors.KindInvalidInput).
				Module(m.Name()).
				Detail("compiled mode requires an attached compiler").
				Build()
		}
		// A backend failure is recorded on the module; the call falls back
		// to bytecode.
		_, _ = m.Compile(ctx, t.Backend, t.Options)
	}

	if mode != ModeInterpret {
		if nat := m.slots[id].Load(); nat != nil {
			m.nativeCalls.Add(1)
			return nat.Call(ctx, params...)
		}
	}
	return m.interpret(ctx, id, params)
}

func (m *Module) interpret(ctx context.Context, id bytecode.FunctionID, params []uint64) ([]uint64, error) {
	name := m.bc.GetFunctionsInfo()[id].Name
	fn := m.interp.ExportedFunction(name)
	if fn == nil {
		return nil, errors.NotFound(errors.PhaseRuntime, "function", name)
	}
	return fn.Call(ctx, params...)
}

// MarkHot claims the module's one hot submission. It returns false if the
// hot hook already fired or the module was already marked; adaptive calls
// never fire the hook after a successful MarkHot.
func (m *Module) MarkHot() bool {
	return m.hotFired.CompareAndSwap(false, true)
}

// Calls returns the total and native call counts.
func (m *Module) Calls() (total, native uint64) {
	return m.calls.Load(), m.nativeCalls.Load()
}

// sealedRefs is the reference count of a module being retired.
const sealedRefs = -1

// Acquire registers an execution plan using the module. It fails once the
// module is sealed for retirement or closed.
func (m *Module) Acquire() (int64, error) {
	for {
		n := m.refs.Load()
		if n < 0 || m.closed.Load() {
			return 0, errors.Closed(errors.PhaseRuntime, "module "+m.Name())
		}
		if m.refs.CompareAndSwap(n, n+1) {
			return n + 1, nil
		}
	}
}

// Release drops a reference taken by Acquire.
func (m *Module) Release() int64 {
	return m.refs.Add(-1)
}

// Refs returns the number of execution plans holding the module.
func (m *Module) Refs() int64 {
	if n := m.refs.Load(); n > 0 {
		return n
	}
	return 0
}

// Seal stops new references if there are none, so the module can be
// retired. It returns the outstanding count and false while the module is
// in use. Sealing twice succeeds.
func (m *Module) Seal() (int64, bool) {
	for {
		n := m.refs.Load()
		switch {
		case n < 0:
			return 0, true
		case n > 0:
			return n, false
		}
		if m.refs.CompareAndSwap(0, sealedRefs) {
			return 0, true
		}
	}
}

// Sealed reports whether Seal succeeded.
func (m *Module) Sealed() bool {
	return m.refs.Load() < 0
}

// Close stops further calls. Memory is released by the module's region.
func (m *Module) Close(ctx context.Context) error {
	m.closed.Store(true)
	return nil
}
