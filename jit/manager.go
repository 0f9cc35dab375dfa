package jit

import (
	"context"
	stderrors "errors"
	"sync"
	"sync/atomic"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/wippyai/wasm-jit/errors"
	"github.com/wippyai/wasm-jit/region"
	"github.com/wippyai/wasm-jit/registry"
	"github.com/wippyai/wasm-jit/scheduler"
	"github.com/wippyai/wasm-jit/txn"
	"github.com/wippyai/wasm-jit/vm"
)

// Manager compiles modules to native code in the background and owns the
// modules and regions transferred to it.
//
// Submission and ownership transfer are independent calls ordered only by
// the ids AddModule hands out. None of the Manager's methods block on a
// compile.
type Manager struct {
	txm     txn.Manager
	backend vm.Backend
	opts    Options
	pool    *scheduler.Pool

	modules *registry.Registry[ModuleID, vm.Module]
	regions *registry.Registry[RegionID, region.Region]

	nextModule atomic.Uint32
	nextRegion atomic.Uint32

	// watched maps a *vm.Module to the Reservation of its hot submission.
	watched sync.Map

	stats  counters
	closed atomic.Bool
}

// Closed reports whether Close has been called.
func (m *Manager) Closed() bool {
	return m.closed.Load()
}

// New creates a manager compiling with backend. txm is stored for callers
// and not used by the manager. opts may be nil.
func New(txm txn.Manager, backend vm.Backend, opts *Options) *Manager {
	o := opts.withDefaults()
	return &Manager{
		txm:     txm,
		backend: backend,
		opts:    o,
		pool:    scheduler.New(o.Workers),
		modules: registry.New[ModuleID, vm.Module](),
		regions: registry.New[RegionID, region.Region](),
	}
}

// AllocateModuleID issues the next module id and reserves its slot before
// returning it.
func (m *Manager) AllocateModuleID() ModuleID {
	id := ModuleID(m.nextModule.Add(1) - 1)
	m.modules.Reserve(id)
	return id
}

// AllocateRegionID issues the next region id and reserves its slot before
// returning it.
func (m *Manager) AllocateRegionID() RegionID {
	id := RegionID(m.nextRegion.Add(1) - 1)
	m.regions.Reserve(id)
	return id
}

// AddModule schedules mod for compilation and returns at once. The caller
// keeps ownership of mod and must keep it alive until it transfers it under
// the returned ids.
func (m *Manager) AddModule(mod *vm.Module) Reservation {
	res := Reservation{
		ModuleID: m.AllocateModuleID(),
		RegionID: m.AllocateRegionID(),
	}
	if mod == nil {
		Logger().Warn("nil module submitted", zap.Stringer("reservation", res))
		return res
	}

	task := &AsyncCompileTask{
		mgr:      m,
		module:   mod,
		moduleID: res.ModuleID,
		regionID: res.RegionID,
	}
	if err := m.pool.Submit(task); err != nil {
		m.stats.dropped.Add(1)
		Logger().Warn("compile task dropped",
			zap.String("module", mod.Name()),
			zap.Stringer("reservation", res),
			zap.Error(err))
		return res
	}
	m.stats.submitted.Add(1)
	return res
}

// TransferModule moves mod into the slot reserved for id. On error the
// registry is unchanged and the caller still owns mod.
func (m *Manager) TransferModule(mod *vm.Module, id ModuleID) error {
	if mod == nil {
		return errors.InvalidInput(errors.PhaseTransfer, "nil module")
	}
	if err := m.modules.Fill(id, mod); err != nil {
		return m.rejectTransfer("module", uint32(id), err)
	}
	m.stats.transfers.Add(1)
	return nil
}

// TransferRegion moves rgn into the slot reserved for id. On error the
// registry is unchanged and the caller still owns rgn.
func (m *Manager) TransferRegion(rgn *region.Region, id RegionID) error {
	if rgn == nil {
		return errors.InvalidInput(errors.PhaseTransfer, "nil region")
	}
	if err := m.regions.Fill(id, rgn); err != nil {
		return m.rejectTransfer("region", uint32(id), err)
	}
	m.stats.transfers.Add(1)
	return nil
}

func (m *Manager) rejectTransfer(what string, id uint32, cause error) error {
	m.stats.rejected.Add(1)

	var err *errors.Error
	if stderrors.Is(cause, registry.ErrFilled) {
		err = errors.AlreadyOwned(what, id)
	} else {
		err = errors.UnknownID(what, id)
	}
	Logger().Warn("transfer rejected", zap.Error(err))
	return err
}

// Module returns the module owned under id.
func (m *Manager) Module(id ModuleID) (*vm.Module, bool) {
	return m.modules.Get(id)
}

// Region returns the region owned under id.
func (m *Manager) Region(id RegionID) (*region.Region, bool) {
	return m.regions.Get(id)
}

// ModuleState reports whether id is absent, reserved or filled.
func (m *Manager) ModuleState(id ModuleID) registry.State {
	return m.modules.State(id)
}

// RegionState reports whether id is absent, reserved or filled.
func (m *Manager) RegionState(id RegionID) registry.State {
	return m.regions.State(id)
}

// Retire removes a module and its region once no execution plan references
// the module. The module is sealed first, so no reference can be taken
// between the check and the removal; it is then closed and the region
// freed. Reserved but never filled ids are simply dropped.
func (m *Manager) Retire(ctx context.Context, mid ModuleID, rid RegionID) error {
	if mod, ok := m.modules.Get(mid); ok {
		if refs, sealed := mod.Seal(); !sealed {
			return errors.InUse("module", uint32(mid), refs)
		}
	}

	mod, mst := m.modules.Remove(mid)
	rgn, rst := m.regions.Remove(rid)
	if mst == registry.StateAbsent && rst == registry.StateAbsent {
		return errors.UnknownID("module", uint32(mid))
	}

	var err error
	if mod != nil {
		m.watched.Delete(mod)
		err = multierr.Append(err, mod.Close(ctx))
	}
	if rgn != nil {
		err = multierr.Append(err, rgn.Free(ctx))
	}
	m.stats.retired.Add(1)

	Logger().Debug("retired",
		zap.Uint32("module_id", uint32(mid)),
		zap.Uint32("region_id", uint32(rid)),
		zap.Stringer("module_state", mst),
		zap.Stringer("region_state", rst),
		zap.Error(err))
	return err
}

// Watch attaches the manager's backend to mod so that adaptive calls submit
// it through AddModule once it gets hot and compiled-mode calls can compile
// it directly. A module whose bytecode is already in the profile is
// submitted right away; Watch reports whether that happened.
func (m *Manager) Watch(mod *vm.Module) bool {
	mod.SetTiering(&vm.Tiering{
		Backend:      m.backend,
		Options:      m.opts.Compiler,
		HotThreshold: m.opts.HotThreshold,
		OnHot:        m.submitHot,
	})

	if !m.opts.Profile.Has(mod.Bytecode().Hash()) || !mod.MarkHot() {
		return false
	}
	m.stats.warm.Add(1)
	m.submitHot(mod)
	return true
}

// submitHot runs at most once per module: the adaptive hook and the warm
// start both go through the module's hot flag first.
func (m *Manager) submitHot(mod *vm.Module) {
	res := m.AddModule(mod)
	m.watched.Store(mod, res)
	Logger().Info("module submitted for compilation",
		zap.String("module", mod.Name()),
		zap.Stringer("reservation", res))
}

// Reservation returns the ids issued when a watched module was submitted.
func (m *Manager) Reservation(mod *vm.Module) (Reservation, bool) {
	v, ok := m.watched.Load(mod)
	if !ok {
		return Reservation{}, false
	}
	return v.(Reservation), true
}

// Wait blocks until every compile task submitted so far has finished. It is
// safe to call while other goroutines keep adding modules.
func (m *Manager) Wait() {
	m.pool.Wait()
}

// GetTransactionManager returns the handle passed to New.
func (m *Manager) GetTransactionManager() txn.Manager {
	return m.txm
}

// Stats returns a snapshot of the manager's counters and registry sizes.
func (m *Manager) Stats() Stats {
	return Stats{
		Submitted: m.stats.submitted.Load(),
		Dropped:   m.stats.dropped.Load(),
		Compiled:  m.stats.compiled.Load(),
		Skipped:   m.stats.skipped.Load(),
		Failed:    m.stats.failed.Load(),
		Transfers: m.stats.transfers.Load(),
		Rejected:  m.stats.rejected.Load(),
		Retired:   m.stats.retired.Load(),
		Warm:      m.stats.warm.Load(),
		Modules:   m.modules.Filled(),
		Regions:   m.regions.Filled(),
	}
}

// Close refuses new compile tasks, waits for running ones (bounded by ctx)
// and then closes every owned module and frees every owned region. It can
// be called again after a ctx timeout.
func (m *Manager) Close(ctx context.Context) error {
	m.closed.Store(true)
	if err := m.pool.Close(ctx); err != nil {
		return err
	}

	var err error
	m.modules.Range(func(id ModuleID, _ *vm.Module) bool {
		if mod, st := m.modules.Remove(id); st == registry.StateFilled {
			err = multierr.Append(err, mod.Close(ctx))
		}
		return true
	})
	m.regions.Range(func(id RegionID, _ *region.Region) bool {
		if rgn, st := m.regions.Remove(id); st == registry.StateFilled {
			err = multierr.Append(err, rgn.Free(ctx))
		}
		return true
	})

	Logger().Debug("compilation manager closed", zap.Error(err))
	return err
}
