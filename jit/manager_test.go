package jit

import (
	"context"
	stderrors "errors"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tetratelabs/wazero/api"

	"github.com/wippyai/wasm-jit/bytecode"
	"github.com/wippyai/wasm-jit/engine"
	"github.com/wippyai/wasm-jit/errors"
	"github.com/wippyai/wasm-jit/internal/wasmtest"
	"github.com/wippyai/wasm-jit/profile"
	"github.com/wippyai/wasm-jit/region"
	"github.com/wippyai/wasm-jit/registry"
	"github.com/wippyai/wasm-jit/txn"
	"github.com/wippyai/wasm-jit/vm"
)

// countingBackend wraps the real compiler and counts how often it is asked
// to compile.
type countingBackend struct {
	vm.Backend
	delay time.Duration
	err   error
	calls atomic.Int32
}

func (b *countingBackend) Compile(ctx context.Context, m *bytecode.Module, opts vm.CompilerOptions) (vm.Artifact, error) {
	b.calls.Add(1)
	if b.delay > 0 {
		time.Sleep(b.delay)
	}
	if b.err != nil {
		return nil, b.err
	}
	return b.Backend.Compile(ctx, m, opts)
}

type fixture struct {
	interp  *engine.Interpreter
	backend *countingBackend
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	interp, err := engine.NewInterpreter(ctx, nil)
	if err != nil {
		t.Fatalf("NewInterpreter: %v", err)
	}
	t.Cleanup(func() { interp.Close(ctx) })

	comp, err := engine.NewCompiler(ctx, nil)
	if err != nil {
		t.Fatalf("NewCompiler: %v", err)
	}
	t.Cleanup(func() { comp.Close(ctx) })

	return &fixture{interp: interp, backend: &countingBackend{Backend: comp}}
}

func (f *fixture) load(t *testing.T, name string, code []byte) (*vm.Module, *region.Region) {
	t.Helper()
	mod, rgn, err := f.interp.Load(context.Background(), name, code)
	if err != nil {
		t.Fatalf("Load(%s): %v", name, err)
	}
	return mod, rgn
}

func (f *fixture) manager(t *testing.T, opts *Options) *Manager {
	t.Helper()
	m := New(txn.NewManager(), f.backend, opts)
	t.Cleanup(func() { m.Close(context.Background()) })
	return m
}

func isKind(err error, phase errors.Phase, kind errors.Kind) bool {
	return stderrors.Is(err, &errors.Error{Phase: phase, Kind: kind})
}

func TestManager_ConcurrentSubmissionCompilesOnce(t *testing.T) {
	f := newFixture(t)
	f.backend.delay = 5 * time.Millisecond
	m := f.manager(t, &Options{Workers: 4})
	mod, _ := f.load(t, "arith", wasmtest.Arithmetic())

	const n = 64
	reservations := make([]Reservation, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			reservations[i] = m.AddModule(mod)
		}(i)
	}
	wg.Wait()
	m.Wait()

	if got := f.backend.calls.Load(); got != 1 {
		t.Errorf("backend compiled %d times, want 1", got)
	}
	if mod.State() != vm.StatePublished {
		t.Errorf("State = %s, want published", mod.State())
	}

	st := m.Stats()
	if st.Submitted != n || st.Compiled != 1 || st.Skipped != n-1 {
		t.Errorf("Stats = %+v", st)
	}

	mids := make([]int, n)
	rids := make([]int, n)
	for i, r := range reservations {
		mids[i] = int(r.ModuleID)
		rids[i] = int(r.RegionID)
	}
	sort.Ints(mids)
	sort.Ints(rids)
	for i := 0; i < n; i++ {
		if mids[i] != i || rids[i] != i {
			t.Fatalf("ids at %d = module %d region %d, want a dense 0..%d range", i, mids[i], rids[i], n-1)
		}
	}
}

func TestManager_AllocatedIDsAreReserved(t *testing.T) {
	m := New(txn.NewManager(), nil, nil)
	defer m.Close(context.Background())

	const n = 100
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			id := m.AllocateModuleID()
			if m.ModuleState(id) != registry.StateReserved {
				t.Errorf("module id %d returned before its slot was reserved", id)
			}
		}()
		go func() {
			defer wg.Done()
			id := m.AllocateRegionID()
			if m.RegionState(id) != registry.StateReserved {
				t.Errorf("region id %d returned before its slot was reserved", id)
			}
		}()
	}
	wg.Wait()

	if next := m.AllocateModuleID(); next != n {
		t.Errorf("next module id = %d, want %d", next, n)
	}
	if next := m.AllocateRegionID(); next != n {
		t.Errorf("next region id = %d, want %d", next, n)
	}
}

func TestManager_PublishesEveryFunction(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	m := f.manager(t, nil)

	code := wasmtest.Module(
		wasmtest.ConstI32("f0", 42),
		wasmtest.BinaryI32("f1", wasmtest.OpI32Add),
		wasmtest.BinaryI32("f2", wasmtest.OpI32Mul),
	)
	mod, rgn := f.load(t, "scenario", code)

	res := m.AddModule(mod)
	if err := m.TransferModule(mod, res.ModuleID); err != nil {
		t.Fatalf("TransferModule: %v", err)
	}
	if err := m.TransferRegion(rgn, res.RegionID); err != nil {
		t.Fatalf("TransferRegion: %v", err)
	}
	m.Wait()

	for _, fi := range mod.Bytecode().GetFunctionsInfo() {
		if mod.Slot(fi.ID) == nil {
			t.Errorf("slot %d (%s) empty after compile", fi.ID, fi.Name)
		}
	}

	tests := []struct {
		name string
		args []uint64
		want int32
	}{
		{"f0", nil, 42},
		{"f1", []uint64{api.EncodeI32(20), api.EncodeI32(22)}, 42},
		{"f2", []uint64{api.EncodeI32(6), api.EncodeI32(7)}, 42},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			native, err := mod.Call(ctx, vm.ModeAdaptive, tt.name, tt.args...)
			if err != nil {
				t.Fatalf("native call: %v", err)
			}
			interp, err := mod.Call(ctx, vm.ModeInterpret, tt.name, tt.args...)
			if err != nil {
				t.Fatalf("interpreted call: %v", err)
			}
			if api.DecodeI32(native[0]) != tt.want || api.DecodeI32(interp[0]) != tt.want {
				t.Errorf("native=%d interpreted=%d, want %d",
					api.DecodeI32(native[0]), api.DecodeI32(interp[0]), tt.want)
			}
		})
	}

	if _, native := mod.Calls(); native != 3 {
		t.Errorf("native calls = %d, want 3", native)
	}
}

func TestManager_TransferAndLookup(t *testing.T) {
	f := newFixture(t)
	m := f.manager(t, nil)
	mod, rgn := f.load(t, "arith", wasmtest.Arithmetic())

	res := m.AddModule(mod)
	if m.ModuleState(res.ModuleID) != registry.StateReserved {
		t.Errorf("module slot = %s before transfer", m.ModuleState(res.ModuleID))
	}

	if err := m.TransferModule(mod, res.ModuleID); err != nil {
		t.Fatalf("TransferModule: %v", err)
	}
	if err := m.TransferRegion(rgn, res.RegionID); err != nil {
		t.Fatalf("TransferRegion: %v", err)
	}

	got, ok := m.Module(res.ModuleID)
	if !ok || got != mod {
		t.Error("Module lookup did not return the transferred module")
	}
	gotRgn, ok := m.Region(res.RegionID)
	if !ok || gotRgn != rgn {
		t.Error("Region lookup did not return the transferred region")
	}

	other := m.AllocateModuleID()
	if err := m.TransferModule(mod, res.ModuleID); !isKind(err, errors.PhaseTransfer, errors.KindAlreadyOwned) {
		t.Errorf("second transfer = %v, want already owned", err)
	}
	if m.ModuleState(other) != registry.StateReserved {
		t.Error("rejected transfer disturbed another slot")
	}

	st := m.Stats()
	if st.Transfers != 2 || st.Rejected != 1 || st.Modules != 1 || st.Regions != 1 {
		t.Errorf("Stats = %+v", st)
	}
}

func TestManager_TransferUnknownID(t *testing.T) {
	f := newFixture(t)
	m := f.manager(t, nil)
	mod, rgn := f.load(t, "arith", wasmtest.Arithmetic())
	defer rgn.Free(context.Background())

	res := m.AddModule(mod)
	m.Wait()

	err := m.TransferModule(mod, 99)
	if !isKind(err, errors.PhaseTransfer, errors.KindUnknownID) {
		t.Errorf("TransferModule(99) = %v, want unknown id", err)
	}
	if m.ModuleState(99) != registry.StateAbsent {
		t.Error("unknown id transfer created an entry")
	}
	if m.ModuleState(res.ModuleID) != registry.StateReserved {
		t.Error("unknown id transfer disturbed the issued slot")
	}
	if _, ok := m.Module(99); ok {
		t.Error("lookup of unknown id succeeded")
	}
}

func TestManager_TransferRegionNeverAllocated(t *testing.T) {
	m := New(txn.NewManager(), nil, nil)
	defer m.Close(context.Background())

	rgn := region.New("orphan")
	err := m.TransferRegion(rgn, 5)
	if !isKind(err, errors.PhaseTransfer, errors.KindUnknownID) {
		t.Errorf("TransferRegion(5) = %v, want unknown id", err)
	}
	if m.RegionState(5) != registry.StateAbsent {
		t.Error("entry appeared for an unallocated region id")
	}
	if st := m.Stats(); st.Regions != 0 || st.Rejected != 1 {
		t.Errorf("Stats = %+v", st)
	}
	if rgn.Freed() {
		t.Error("rejected region must stay with the caller")
	}

	if err := m.TransferRegion(nil, 0); !isKind(err, errors.PhaseTransfer, errors.KindInvalidInput) {
		t.Errorf("TransferRegion(nil) = %v", err)
	}
}

func TestManager_TransferRacesCompile(t *testing.T) {
	f := newFixture(t)
	f.backend.delay = 10 * time.Millisecond
	m := f.manager(t, nil)
	mod, rgn := f.load(t, "arith", wasmtest.Arithmetic())

	res := m.AddModule(mod)
	// Transfer while the compile is still in flight.
	if err := m.TransferModule(mod, res.ModuleID); err != nil {
		t.Fatal(err)
	}
	if err := m.TransferRegion(rgn, res.RegionID); err != nil {
		t.Fatal(err)
	}
	m.Wait()

	if mod.State() != vm.StatePublished {
		t.Errorf("State = %s, want published", mod.State())
	}
	if rgn.Len() != 3 {
		t.Errorf("region owns %d resources, want bytecode, instance and artifact", rgn.Len())
	}
}

func TestManager_BackendFailure(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.backend.err = stderrors.New("out of code memory")
	m := f.manager(t, nil)
	mod, rgn := f.load(t, "arith", wasmtest.Arithmetic())
	defer rgn.Free(ctx)

	m.AddModule(mod)
	m.AddModule(mod)
	m.Wait()

	if f.backend.calls.Load() != 1 {
		t.Errorf("backend called %d times, want no retry", f.backend.calls.Load())
	}
	if mod.State() != vm.StateFailed {
		t.Errorf("State = %s, want failed", mod.State())
	}
	if !isKind(mod.Failure(), errors.PhaseCompile, errors.KindBackendFailure) {
		t.Errorf("Failure = %v", mod.Failure())
	}
	if st := m.Stats(); st.Failed != 1 || st.Skipped != 1 {
		t.Errorf("Stats = %+v", st)
	}

	res, err := mod.Call(ctx, vm.ModeAdaptive, "add", api.EncodeI32(1), api.EncodeI32(2))
	if err != nil || api.DecodeI32(res[0]) != 3 {
		t.Errorf("interpreted fallback = %v, %v", res, err)
	}
}

func TestManager_Retire(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	m := f.manager(t, nil)
	mod, rgn := f.load(t, "arith", wasmtest.Arithmetic())

	res := m.AddModule(mod)
	_ = m.TransferModule(mod, res.ModuleID)
	_ = m.TransferRegion(rgn, res.RegionID)
	m.Wait()

	if _, err := mod.Acquire(); err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if err := m.Retire(ctx, res.ModuleID, res.RegionID); !isKind(err, errors.PhaseTransfer, errors.KindInUse) {
		t.Fatalf("Retire in use = %v", err)
	}
	if m.ModuleState(res.ModuleID) != registry.StateFilled {
		t.Fatal("in-use retire removed the module")
	}
	mod.Release()

	if err := m.Retire(ctx, res.ModuleID, res.RegionID); err != nil {
		t.Fatalf("Retire: %v", err)
	}
	if m.ModuleState(res.ModuleID) != registry.StateAbsent || m.RegionState(res.RegionID) != registry.StateAbsent {
		t.Error("retired ids still present")
	}
	if !rgn.Freed() {
		t.Error("region not freed")
	}
	if _, err := mod.Call(ctx, vm.ModeAdaptive, "add", 1, 2); !isKind(err, errors.PhaseRuntime, errors.KindClosed) {
		t.Errorf("call after retire = %v", err)
	}
	if err := m.Retire(ctx, res.ModuleID, res.RegionID); !isKind(err, errors.PhaseTransfer, errors.KindUnknownID) {
		t.Errorf("second Retire = %v, want unknown id", err)
	}
	if m.Stats().Retired != 1 {
		t.Errorf("Retired = %d", m.Stats().Retired)
	}
	if _, err := mod.Acquire(); !isKind(err, errors.PhaseRuntime, errors.KindClosed) {
		t.Errorf("Acquire after retire = %v", err)
	}
}

func TestManager_RetireRacesAcquire(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	m := f.manager(t, nil)

	for i := 0; i < 100; i++ {
		mod, rgn := f.load(t, "arith", wasmtest.Arithmetic())
		res := m.AddModule(mod)
		_ = m.TransferModule(mod, res.ModuleID)
		_ = m.TransferRegion(rgn, res.RegionID)

		var retireErr, callErr error
		var acquired bool
		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			retireErr = m.Retire(ctx, res.ModuleID, res.RegionID)
		}()
		go func() {
			defer wg.Done()
			if _, err := mod.Acquire(); err != nil {
				return
			}
			acquired = true
			defer mod.Release()
			_, callErr = mod.Call(ctx, vm.ModeInterpret, "add", api.EncodeI32(1), api.EncodeI32(2))
		}()
		wg.Wait()

		switch {
		case retireErr == nil && acquired:
			t.Fatalf("iteration %d: retired a module while it was acquired", i)
		case retireErr == nil:
			if m.ModuleState(res.ModuleID) != registry.StateAbsent {
				t.Fatalf("iteration %d: retired module still registered", i)
			}
		case isKind(retireErr, errors.PhaseTransfer, errors.KindInUse):
			if !acquired || callErr != nil {
				t.Fatalf("iteration %d: in-use retire but acquired=%v call=%v", i, acquired, callErr)
			}
			if err := m.Retire(ctx, res.ModuleID, res.RegionID); err != nil {
				t.Fatalf("iteration %d: Retire after release: %v", i, err)
			}
		default:
			t.Fatalf("iteration %d: Retire = %v", i, retireErr)
		}
	}
	if m.Stats().Retired != 100 {
		t.Errorf("Retired = %d, want 100", m.Stats().Retired)
	}
}

func TestManager_RetireReservedOnly(t *testing.T) {
	m := New(txn.NewManager(), nil, nil)
	defer m.Close(context.Background())

	mid, rid := m.AllocateModuleID(), m.AllocateRegionID()
	if err := m.Retire(context.Background(), mid, rid); err != nil {
		t.Fatalf("Retire: %v", err)
	}
	if m.ModuleState(mid) != registry.StateAbsent || m.RegionState(rid) != registry.StateAbsent {
		t.Error("placeholders not removed")
	}
}

func TestManager_WatchHotModule(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	prof := profile.New()
	m := f.manager(t, &Options{HotThreshold: 3, Profile: prof})
	mod, rgn := f.load(t, "arith", wasmtest.Arithmetic())

	if m.Watch(mod) {
		t.Fatal("cold module should not be submitted by Watch")
	}
	for i := 0; i < 2; i++ {
		_, _ = mod.Call(ctx, vm.ModeAdaptive, "add", 1, 2)
	}
	if _, ok := m.Reservation(mod); ok {
		t.Fatal("submitted before reaching the threshold")
	}
	for i := 0; i < 5; i++ {
		_, _ = mod.Call(ctx, vm.ModeAdaptive, "add", 1, 2)
	}
	m.Wait()

	res, ok := m.Reservation(mod)
	if !ok {
		t.Fatal("hot module was not submitted")
	}
	if f.backend.calls.Load() != 1 || mod.State() != vm.StatePublished {
		t.Errorf("compiles=%d state=%s", f.backend.calls.Load(), mod.State())
	}
	if err := m.TransferModule(mod, res.ModuleID); err != nil {
		t.Errorf("transfer under hot reservation: %v", err)
	}
	if err := m.TransferRegion(rgn, res.RegionID); err != nil {
		t.Errorf("transfer region under hot reservation: %v", err)
	}
	if !prof.Has(mod.Bytecode().Hash()) {
		t.Error("published module not recorded in the profile")
	}
	if mod.Tier("add") != vm.TierNative {
		t.Error("add should run natively after publication")
	}
}

func TestManager_WatchWarmStart(t *testing.T) {
	f := newFixture(t)
	mod, rgn := f.load(t, "arith", wasmtest.Arithmetic())
	defer rgn.Free(context.Background())

	prof := profile.New()
	prof.Record(profile.Entry{Hash: profile.Key(mod.Bytecode().Hash()), Module: "arith"})
	m := f.manager(t, &Options{Profile: prof})

	if !m.Watch(mod) {
		t.Fatal("profiled module should be submitted by Watch")
	}
	m.Wait()

	if mod.State() != vm.StatePublished {
		t.Errorf("State = %s, want published", mod.State())
	}
	if st := m.Stats(); st.Warm != 1 || st.Compiled != 1 {
		t.Errorf("Stats = %+v", st)
	}
}

func TestManager_WarmStartThenHotCalls(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	mod, rgn := f.load(t, "arith", wasmtest.Arithmetic())
	defer rgn.Free(ctx)

	prof := profile.New()
	prof.Record(profile.Entry{Hash: profile.Key(mod.Bytecode().Hash()), Module: "arith"})
	m := f.manager(t, &Options{HotThreshold: 3, Profile: prof})

	if !m.Watch(mod) {
		t.Fatal("profiled module should be submitted by Watch")
	}
	for i := 0; i < 5; i++ {
		_, _ = mod.Call(ctx, vm.ModeAdaptive, "add", 1, 2)
	}
	m.Wait()

	if st := m.Stats(); st.Submitted != 1 {
		t.Errorf("Submitted = %d, want a single submission", st.Submitted)
	}
	res, ok := m.Reservation(mod)
	if !ok || res.ModuleID != 0 || res.RegionID != 0 {
		t.Errorf("Reservation = %v, %v", res, ok)
	}
	if next := m.AllocateModuleID(); next != 1 {
		t.Errorf("next module id = %d, want 1 (no orphaned reservation)", next)
	}
	if m.Watch(mod) {
		t.Error("watching again must not submit a second time")
	}
}

func TestManager_CompiledModeThroughWatch(t *testing.T) {
	f := newFixture(t)
	m := f.manager(t, nil)
	mod, rgn := f.load(t, "arith", wasmtest.Arithmetic())
	defer rgn.Free(context.Background())

	m.Watch(mod)
	res, err := mod.Call(context.Background(), vm.ModeCompiled, "mul", api.EncodeI32(6), api.EncodeI32(7))
	if err != nil || api.DecodeI32(res[0]) != 42 {
		t.Fatalf("compiled call = %v, %v", res, err)
	}
	if _, native := mod.Calls(); native != 1 {
		t.Errorf("native calls = %d, want 1", native)
	}

	// A later submission finds the gate consumed.
	m.AddModule(mod)
	m.Wait()
	if f.backend.calls.Load() != 1 {
		t.Errorf("backend compiled %d times", f.backend.calls.Load())
	}
}

func TestManager_Close(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	m := New(txn.NewManager(), f.backend, nil)
	mod, rgn := f.load(t, "arith", wasmtest.Arithmetic())

	res := m.AddModule(mod)
	_ = m.TransferModule(mod, res.ModuleID)
	_ = m.TransferRegion(rgn, res.RegionID)

	if err := m.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !m.Closed() {
		t.Error("Closed = false")
	}
	if !rgn.Freed() {
		t.Error("Close did not free the owned region")
	}
	if st := m.Stats(); st.Modules != 0 || st.Regions != 0 {
		t.Errorf("registries not emptied: %+v", st)
	}

	late := m.AddModule(mod)
	if late.ModuleID != res.ModuleID+1 {
		t.Errorf("ids after Close = %v", late)
	}
	if m.Stats().Dropped != 1 {
		t.Errorf("Dropped = %d, want 1", m.Stats().Dropped)
	}
	if err := m.Close(ctx); err != nil {
		t.Errorf("second Close: %v", err)
	}
}

func TestManager_GetTransactionManager(t *testing.T) {
	txm := txn.NewManager()
	m := New(txm, nil, nil)
	defer m.Close(context.Background())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if m.GetTransactionManager() != txm {
				t.Error("GetTransactionManager returned a different handle")
			}
		}()
	}
	wg.Wait()
}
