package bytecode

import (
	"context"
	"crypto/sha256"
	"sort"

	"fortio.org/safecast"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"

	"github.com/wippyai/wasm-jit/errors"
)

// FunctionID indexes a module's function slots.
type FunctionID uint32

// FunctionInfo describes one exported function.
type FunctionInfo struct {
	Name    string
	Params  []api.ValueType
	Results []api.ValueType
	ID      FunctionID
}

// Module is a validated bytecode program and the descriptors of its functions.
type Module struct {
	compiled wazero.CompiledModule
	byName   map[string]FunctionID
	name     string
	code     []byte
	funcs    []FunctionInfo
	hash     [sha256.Size]byte
}

// Compile validates code with rt and describes its exported functions.
// rt is normally an interpreter runtime; the returned module keeps the
// runtime's compiled form for instantiation.
// Function IDs are assigned densely in export-name order.
func Compile(ctx context.Context, rt wazero.Runtime, name string, code []byte) (*Module, error) {
	if len(code) == 0 {
		return nil, errors.InvalidInput(errors.PhaseLoad, "empty bytecode")
	}

	compiled, err := rt.CompileModule(ctx, code)
	if err != nil {
		return nil, errors.New(errors.PhaseLoad, errors.KindInvalidData).
			Module(name).
			Detail("validate bytecode").
			Cause(err).
			Build()
	}

	if imports := compiled.ImportedFunctions(); len(imports) > 0 {
		_ = compiled.Close(ctx)
		return nil, errors.New(errors.PhaseLoad, errors.KindUnsupported).
			Module(name).
			Detail("%d imported functions; query modules must be self-contained", len(imports)).
			Build()
	}

	exports := compiled.ExportedFunctions()
	names := make([]string, 0, len(exports))
	for n := range exports {
		names = append(names, n)
	}
	sort.Strings(names)

	m := &Module{
		compiled: compiled,
		byName:   make(map[string]FunctionID, len(names)),
		name:     name,
		code:     code,
		funcs:    make([]FunctionInfo, 0, len(names)),
		hash:     sha256.Sum256(code),
	}
	for i, n := range names {
		id, err := safecast.Conv[uint32](i)
		if err != nil {
			_ = compiled.Close(ctx)
			return nil, errors.Wrap(errors.PhaseLoad, errors.KindInvalidData, err, "function index overflow")
		}
		def := exports[n]
		m.funcs = append(m.funcs, FunctionInfo{
			Name:    n,
			Params:  def.ParamTypes(),
			Results: def.ResultTypes(),
			ID:      FunctionID(id),
		})
		m.byName[n] = FunctionID(id)
	}

	return m, nil
}

func (m *Module) Name() string {
	return m.name
}

// Code returns the raw WebAssembly binary.
func (m *Module) Code() []byte {
	return m.code
}

// Hash is the sha256 of the bytecode.
func (m *Module) Hash() [sha256.Size]byte {
	return m.hash
}

// Compiled returns the interpreter's compiled form.
func (m *Module) Compiled() wazero.CompiledModule {
	return m.compiled
}

// GetFunctionsInfo returns descriptors ordered by ID.
func (m *Module) GetFunctionsInfo() []FunctionInfo {
	return m.funcs
}

func (m *Module) NumFunctions() int {
	return len(m.funcs)
}

// Function looks up a descriptor by name.
func (m *Module) Function(name string) (FunctionInfo, bool) {
	id, ok := m.byName[name]
	if !ok {
		return FunctionInfo{}, false
	}
	return m.funcs[id], true
}

// Close releases the compiled form. Instances created from it stay valid.
func (m *Module) Close(ctx context.Context) error {
	return m.compiled.Close(ctx)
}
