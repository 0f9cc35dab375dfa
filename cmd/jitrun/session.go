package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/multierr"

	"github.com/wippyai/wasm-jit/bytecode"
	"github.com/wippyai/wasm-jit/config"
	"github.com/wippyai/wasm-jit/engine"
	"github.com/wippyai/wasm-jit/jit"
	"github.com/wippyai/wasm-jit/profile"
	"github.com/wippyai/wasm-jit/region"
	"github.com/wippyai/wasm-jit/txn"
	"github.com/wippyai/wasm-jit/vm"
)

// session is one loaded module watched by a compilation manager.
type session struct {
	cfg    *config.Config
	interp *engine.Interpreter
	comp   *engine.Compiler
	mgr    *jit.Manager
	prof   *profile.Profile
	mod    *vm.Module
	rgn    *region.Region
	file   string
	res    jit.Reservation
	owned  bool
}

func openSession(ctx context.Context, cfg *config.Config, wasmFile string) (*session, error) {
	data, err := os.ReadFile(wasmFile)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}

	s := &session{cfg: cfg, file: wasmFile}
	if cfg.JIT.ProfilePath != "" {
		if s.prof, err = profile.LoadFile(cfg.JIT.ProfilePath); err != nil {
			return nil, err
		}
	}

	if s.interp, err = engine.NewInterpreter(ctx, cfg.Engine()); err != nil {
		return nil, fmt.Errorf("create interpreter: %w", err)
	}
	if s.comp, err = engine.NewCompiler(ctx, cfg.Engine()); err != nil {
		_ = s.interp.Close(ctx)
		return nil, fmt.Errorf("create compiler: %w", err)
	}
	s.mgr = jit.New(txn.NewManager(), s.comp, cfg.Manager(s.prof))

	name := strings.TrimSuffix(filepath.Base(wasmFile), filepath.Ext(wasmFile))
	if s.mod, s.rgn, err = s.interp.Load(ctx, name, data); err != nil {
		_ = s.close(ctx)
		return nil, fmt.Errorf("load: %w", err)
	}
	s.mgr.Watch(s.mod)
	return s, nil
}

// function resolves name, defaulting to the only export.
func (s *session) function(name string) (bytecode.FunctionInfo, error) {
	funcs := s.mod.Bytecode().GetFunctionsInfo()
	if name == "" {
		if len(funcs) == 1 {
			return funcs[0], nil
		}
		return bytecode.FunctionInfo{}, fmt.Errorf("module exports %d functions, use -func", len(funcs))
	}
	fi, ok := s.mod.Bytecode().Function(name)
	if !ok {
		return bytecode.FunctionInfo{}, fmt.Errorf("function %q not exported", name)
	}
	return fi, nil
}

// call runs fi once and reports the tier that served it.
func (s *session) call(ctx context.Context, mode vm.Mode, fi bytecode.FunctionInfo, params []uint64) (string, vm.Tier, error) {
	if _, err := s.mod.Acquire(); err != nil {
		return "", vm.TierInterpreted, err
	}
	defer s.mod.Release()

	_, before := s.mod.Calls()
	res, err := s.mod.CallID(ctx, mode, fi.ID, params...)
	tier := vm.TierInterpreted
	if _, after := s.mod.Calls(); after > before {
		tier = vm.TierNative
	}
	if err != nil {
		return "", tier, err
	}
	return formatResults(fi, res), tier, nil
}

// handOver gives the module and its region to the manager, submitting the
// module first if it never got hot.
func (s *session) handOver() (jit.Reservation, error) {
	if s.owned {
		return s.res, nil
	}
	res, ok := s.mgr.Reservation(s.mod)
	if !ok {
		res = s.mgr.AddModule(s.mod)
	}
	s.res = res
	if err := s.mgr.TransferModule(s.mod, res.ModuleID); err != nil {
		return res, err
	}
	if err := s.mgr.TransferRegion(s.rgn, res.RegionID); err != nil {
		return res, err
	}
	s.owned = true
	return res, nil
}

// close waits for compiles, saves the profile and releases everything. The
// region is freed by the manager once transferred, by close otherwise.
func (s *session) close(ctx context.Context) error {
	var err error
	if s.mgr != nil {
		s.mgr.Wait()
		if s.prof != nil {
			err = multierr.Append(err, s.prof.SaveFile(s.cfg.JIT.ProfilePath))
		}
		err = multierr.Append(err, s.mgr.Close(ctx))
	}
	if s.rgn != nil && !s.owned {
		err = multierr.Append(err, s.rgn.Free(ctx))
	}
	if s.comp != nil {
		err = multierr.Append(err, s.comp.Close(ctx))
	}
	if s.interp != nil {
		err = multierr.Append(err, s.interp.Close(ctx))
	}
	return err
}
