package jit

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/wippyai/wasm-jit/profile"
	"github.com/wippyai/wasm-jit/vm"
)

// AsyncCompileTask compiles one module and publishes its native code into
// the module's function slots. It reports nothing back to the submitter;
// completion shows up in the slots.
type AsyncCompileTask struct {
	mgr      *Manager
	module   *vm.Module
	moduleID ModuleID
	regionID RegionID
}

// Module returns the module the task compiles.
func (t *AsyncCompileTask) Module() *vm.Module {
	return t.module
}

// ModuleID returns the id reserved for the module at submission.
func (t *AsyncCompileTask) ModuleID() ModuleID {
	return t.moduleID
}

// RegionID returns the id reserved for the module's region at submission.
func (t *AsyncCompileTask) RegionID() RegionID {
	return t.regionID
}

// Run compiles the module through its one-shot gate. A backend failure
// leaves the module interpreted and is only logged. A declared function
// missing from the artifact panics.
func (t *AsyncCompileTask) Run(ctx context.Context) {
	log := Logger().With(
		zap.String("module", t.module.Name()),
		zap.Uint32("module_id", uint32(t.moduleID)),
		zap.Uint32("region_id", uint32(t.regionID)),
	)

	start := time.Now()
	published, err := t.module.Compile(ctx, t.mgr.backend, t.mgr.opts.Compiler)
	elapsed := time.Since(start)

	switch {
	case err != nil:
		t.mgr.stats.failed.Add(1)
		log.Warn("compile failed, module stays interpreted",
			zap.Duration("elapsed", elapsed),
			zap.Error(err))
	case !published:
		t.mgr.stats.skipped.Add(1)
		log.Debug("compile skipped", zap.Stringer("state", t.module.State()))
	default:
		t.mgr.stats.compiled.Add(1)
		log.Debug("module published",
			zap.Int("functions", t.module.Bytecode().NumFunctions()),
			zap.Duration("elapsed", elapsed))
		t.record(elapsed)
	}
}

func (t *AsyncCompileTask) record(elapsed time.Duration) {
	if t.mgr.opts.Profile == nil {
		return
	}
	bc := t.module.Bytecode()
	infos := bc.GetFunctionsInfo()
	names := make([]string, len(infos))
	for i, fi := range infos {
		names[i] = fi.Name
	}
	t.mgr.opts.Profile.Record(profile.Entry{
		Hash:        profile.Key(bc.Hash()),
		Module:      bc.Name(),
		Functions:   names,
		CompileTime: elapsed,
	})
}
