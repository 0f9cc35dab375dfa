package bytecode

import (
	"fmt"
	"strings"

	"github.com/tetratelabs/wazero/api"
	"go.bytecodealliance.org/wit"
)

// WitType maps a core value type to the WIT type used at the call boundary.
// Reference types have no WIT counterpart and map to nil.
func WitType(t api.ValueType) wit.Type {
	switch t {
	case api.ValueTypeI32:
		return wit.S32{}
	case api.ValueTypeI64:
		return wit.S64{}
	case api.ValueTypeF32:
		return wit.F32{}
	case api.ValueTypeF64:
		return wit.F64{}
	default:
		return nil
	}
}

// WitParams returns the WIT view of the parameters.
func (f FunctionInfo) WitParams() []wit.Type {
	return witTypes(f.Params)
}

// WitResults returns the WIT view of the results.
func (f FunctionInfo) WitResults() []wit.Type {
	return witTypes(f.Results)
}

// Signature renders the function as "(s32, s32) -> s32".
func (f FunctionInfo) Signature() string {
	var b strings.Builder
	b.WriteByte('(')
	for i, p := range f.Params {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(TypeName(p))
	}
	b.WriteByte(')')

	switch len(f.Results) {
	case 0:
	case 1:
		b.WriteString(" -> ")
		b.WriteString(TypeName(f.Results[0]))
	default:
		b.WriteString(" -> (")
		for i, r := range f.Results {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(TypeName(r))
		}
		b.WriteByte(')')
	}
	return b.String()
}

// TypeName returns the WIT name of t, or the core name for reference types.
func TypeName(t api.ValueType) string {
	switch WitType(t).(type) {
	case wit.S32:
		return "s32"
	case wit.S64:
		return "s64"
	case wit.F32:
		return "f32"
	case wit.F64:
		return "f64"
	default:
		return api.ValueTypeName(t)
	}
}

func witTypes(in []api.ValueType) []wit.Type {
	out := make([]wit.Type, len(in))
	for i, t := range in {
		out[i] = WitType(t)
	}
	return out
}

func (f FunctionInfo) String() string {
	return fmt.Sprintf("#%d %s%s", f.ID, f.Name, f.Signature())
}
