package engine

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	wasmjit "github.com/wippyai/wasm-jit"
	"github.com/wippyai/wasm-jit/bytecode"
	"github.com/wippyai/wasm-jit/errors"
	"github.com/wippyai/wasm-jit/vm"
)

// Compiler is the native backend. Every artifact gets its own wazero
// compiler runtime so that closing the artifact releases all of its machine
// code; the compilation cache is shared so identical bytecode is only
// translated once per process (or once per CacheDir).
type Compiler struct {
	cache    wazero.CompilationCache
	cfg      Config
	compiles atomic.Uint64
	closed   atomic.Bool
}

var _ vm.Backend = (*Compiler)(nil)

// NewCompiler creates the native backend. cfg may be nil.
func NewCompiler(ctx context.Context, cfg *Config) (*Compiler, error) {
	c := &Compiler{}
	if cfg != nil {
		c.cfg = *cfg
	}

	if c.cfg.CacheDir != "" {
		cache, err := wazero.NewCompilationCacheWithDir(c.cfg.CacheDir)
		if err != nil {
			return nil, errors.New(errors.PhaseConfig, errors.KindInvalidInput).
				Detail("compilation cache dir %q", c.cfg.CacheDir).
				Cause(err).
				Build()
		}
		c.cache = cache
	} else {
		c.cache = wazero.NewCompilationCache()
	}
	return c, nil
}

// Compile translates m to machine code and instantiates it.
func (c *Compiler) Compile(ctx context.Context, m *bytecode.Module, opts vm.CompilerOptions) (vm.Artifact, error) {
	if c.closed.Load() {
		return nil, errors.Closed(errors.PhaseCompile, "compiler")
	}

	start := time.Now()
	rc := c.cfg.apply(wazero.NewRuntimeConfigCompiler().WithCompilationCache(c.cache))
	rc = applyOptions(rc, opts)
	rt := wazero.NewRuntimeWithConfig(ctx, rc)

	compiled, err := rt.CompileModule(ctx, m.Code())
	if err != nil {
		c.closeRuntime(ctx, rt, m.Name())
		return nil, errors.New(errors.PhaseCompile, errors.KindInvalidData).
			Module(m.Name()).
			Detail("native compile").
			Cause(err).
			Build()
	}

	inst, err := rt.InstantiateModule(ctx, compiled,
		wazero.NewModuleConfig().WithName(m.Name()).WithStartFunctions())
	if err != nil {
		c.closeRuntime(ctx, rt, m.Name())
		return nil, errors.Instantiation(m.Name(), err)
	}

	c.compiles.Add(1)
	Logger().Debug("compiled module",
		zap.String("module", m.Name()),
		zap.Int("functions", m.NumFunctions()),
		zap.Duration("elapsed", time.Since(start)))

	return &Artifact{runtime: rt, instance: inst, module: m.Name()}, nil
}

func (c *Compiler) closeRuntime(ctx context.Context, rt wazero.Runtime, module string) {
	if err := rt.Close(ctx); err != nil {
		Logger().Warn("failed to close compiler runtime during cleanup",
			zap.String("module", module),
			zap.Error(err))
	}
}

// Compiles returns the number of successful compiles.
func (c *Compiler) Compiles() uint64 {
	return c.compiles.Load()
}

// Close releases the compilation cache. Artifacts stay valid until closed.
func (c *Compiler) Close(ctx context.Context) error {
	if c.closed.Swap(true) {
		return nil
	}
	return c.cache.Close(ctx)
}

// Artifact is the native code of one module.
type Artifact struct {
	runtime  wazero.Runtime
	instance api.Module
	module   string
}

var _ vm.Artifact = (*Artifact)(nil)

// GetFunctionPointer returns the native entry point for name, or nil.
func (a *Artifact) GetFunctionPointer(name string) wasmjit.Function {
	if a.instance.ExportedFunction(name) == nil {
		return nil
	}
	return &exportedFunction{instance: a.instance, name: name}
}

// Close releases the machine code. Published functions must not be called
// afterwards.
func (a *Artifact) Close(ctx context.Context) error {
	return a.runtime.Close(ctx)
}

// exportedFunction resolves the wazero function on every call:
// api.Function values are not safe for concurrent use.
type exportedFunction struct {
	instance api.Module
	name     string
}

func (f *exportedFunction) Call(ctx context.Context, params ...uint64) ([]uint64, error) {
	fn := f.instance.ExportedFunction(f.name)
	if fn == nil {
		return nil, errors.NotFound(errors.PhaseRuntime, "function", f.name)
	}
	return fn.Call(ctx, params...)
}
