package engine

import (
	"context"
	"sync/atomic"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/wippyai/wasm-jit/bytecode"
	"github.com/wippyai/wasm-jit/errors"
	"github.com/wippyai/wasm-jit/region"
	"github.com/wippyai/wasm-jit/vm"
)

const wasmPageSize = 65536

// Interpreter loads bytecode modules and runs them on the wazero interpreter.
type Interpreter struct {
	runtime wazero.Runtime
	closed  atomic.Bool
}

// NewInterpreter creates the interpreted tier. cfg may be nil.
func NewInterpreter(ctx context.Context, cfg *Config) (*Interpreter, error) {
	rc := cfg.apply(wazero.NewRuntimeConfigInterpreter())
	return &Interpreter{runtime: wazero.NewRuntimeWithConfig(ctx, rc)}, nil
}

// Load validates code and instantiates it for interpretation. The returned
// region owns the bytecode and the interpreted instance; the caller owns the
// module and the region until it transfers them to the compilation manager.
func (i *Interpreter) Load(ctx context.Context, name string, code []byte) (*vm.Module, *region.Region, error) {
	if i.closed.Load() {
		return nil, nil, errors.Closed(errors.PhaseLoad, "interpreter")
	}

	bc, err := bytecode.Compile(ctx, i.runtime, name, code)
	if err != nil {
		return nil, nil, err
	}

	inst, err := i.runtime.InstantiateModule(ctx, bc.Compiled(),
		wazero.NewModuleConfig().WithName("").WithStartFunctions())
	if err != nil {
		if closeErr := bc.Close(ctx); closeErr != nil {
			Logger().Warn("failed to close bytecode after instantiation error",
				zap.String("module", name),
				zap.Error(closeErr))
		}
		return nil, nil, errors.Instantiation(name, err)
	}

	rgn := region.New(name)
	if err := rgn.Adopt(bc, int64(len(code))); err != nil {
		return nil, nil, err
	}
	if err := rgn.Adopt(inst, memoryBytes(bc.Compiled())); err != nil {
		return nil, nil, err
	}

	Logger().Debug("loaded module",
		zap.String("module", name),
		zap.Int("functions", bc.NumFunctions()),
		zap.Int("bytes", len(code)))

	return vm.NewModule(bc, inst, rgn), rgn, nil
}

// memoryBytes is the initial linear memory the module imports or exports. The instance's Memory() cannot be used for this: on a module
// without memory it returns a non-nil interface holding a nil instance.
func memoryBytes(cm wazero.CompiledModule) int64 {
	var pages int64
	for _, def := range cm.ImportedMemories() {
		pages += int64(def.Min())
	}
	seen := make(map[api.MemoryDefinition]bool)
	for _, def := range cm.ExportedMemories() {
		if !seen[def] {
			seen[def] = true
			pages += int64(def.Min())
		}
	}
	return pages * wasmPageSize
}

// Close releases the interpreter runtime and every instance it created.
func (i *Interpreter) Close(ctx context.Context) error {
	if i.closed.Swap(true) {
		return nil
	}
	return i.runtime.Close(ctx)
}
