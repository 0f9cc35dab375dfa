package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/tetratelabs/wazero/api"
	"go.bytecodealliance.org/wit"

	"github.com/wippyai/wasm-jit/bytecode"
)

// encodeArgs converts textual arguments to the raw stack values of fi.
func encodeArgs(fi bytecode.FunctionInfo, raw []string) ([]uint64, error) {
	types := fi.WitParams()
	if len(raw) != len(types) {
		return nil, fmt.Errorf("%s takes %d arguments, got %d", fi.Name, len(types), len(raw))
	}
	out := make([]uint64, len(raw))
	for i, s := range raw {
		v, err := convertArg(strings.TrimSpace(s), types[i])
		if err != nil {
			return nil, fmt.Errorf("argument %d: %w", i, err)
		}
		out[i] = v
	}
	return out, nil
}

func convertArg(value string, t wit.Type) (uint64, error) {
	switch t.(type) {
	case wit.S32:
		v, err := strconv.ParseInt(value, 10, 32)
		return api.EncodeI32(int32(v)), err
	case wit.S64:
		v, err := strconv.ParseInt(value, 10, 64)
		return api.EncodeI64(v), err
	case wit.F32:
		v, err := strconv.ParseFloat(value, 32)
		return api.EncodeF32(float32(v)), err
	case wit.F64:
		v, err := strconv.ParseFloat(value, 64)
		return api.EncodeF64(v), err
	default:
		return 0, fmt.Errorf("unsupported parameter type %T", t)
	}
}

// formatResults renders raw results according to fi's result types.
func formatResults(fi bytecode.FunctionInfo, res []uint64) string {
	parts := make([]string, len(res))
	for i, v := range res {
		var t api.ValueType
		if i < len(fi.Results) {
			t = fi.Results[i]
		}
		switch t {
		case api.ValueTypeI32:
			parts[i] = strconv.FormatInt(int64(api.DecodeI32(v)), 10)
		case api.ValueTypeI64:
			parts[i] = strconv.FormatInt(int64(v), 10)
		case api.ValueTypeF32:
			parts[i] = strconv.FormatFloat(float64(api.DecodeF32(v)), 'g', -1, 32)
		case api.ValueTypeF64:
			parts[i] = strconv.FormatFloat(api.DecodeF64(v), 'g', -1, 64)
		default:
			parts[i] = fmt.Sprintf("%#x", v)
		}
	}
	switch len(parts) {
	case 0:
		return "()"
	case 1:
		return parts[0]
	default:
		return "(" + strings.Join(parts, ", ") + ")"
	}
}

func splitArgs(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return strings.Split(s, ",")
}
