// Package wasmtest builds small WebAssembly binaries for tests.
package wasmtest

import (
	"bytes"

	"github.com/tetratelabs/wazero/api"
)

const (
	sectionType     = 0x01
	sectionFunction = 0x03
	sectionMemory   = 0x05
	sectionExport   = 0x07
	sectionCode     = 0x0a

	funcTypeByte = 0x60
	exportFunc   = 0x00
	exportMemory = 0x02
	opEnd        = 0x0b
	opLocalGet   = 0x20
	opI32Const   = 0x41

	OpI32Add = 0x6a
	OpI32Sub = 0x6b
	OpI32Mul = 0x6c
)

// Func is one exported function. Body holds instructions without the trailing end.
type Func struct {
	Name    string
	Params  []api.ValueType
	Results []api.ValueType
	Body    []byte
}

// BinaryI32 returns (i32, i32) -> i32 applying op to both params.
func BinaryI32(name string, op byte) Func {
	return Func{
		Name:    name,
		Params:  []api.ValueType{api.ValueTypeI32, api.ValueTypeI32},
		Results: []api.ValueType{api.ValueTypeI32},
		Body:    []byte{opLocalGet, 0, opLocalGet, 1, op},
	}
}

// ConstI32 returns () -> i32 yielding v.
func ConstI32(name string, v int32) Func {
	body := []byte{opI32Const}
	body = appendS32(body, v)
	return Func{
		Name:    name,
		Results: []api.ValueType{api.ValueTypeI32},
		Body:    body,
	}
}

// Arithmetic is a module exporting add, mul and sub over i32.
func Arithmetic() []byte {
	return Module(
		BinaryI32("add", OpI32Add),
		BinaryI32("sub", OpI32Sub),
		BinaryI32("mul", OpI32Mul),
	)
}

// Module encodes funcs into a core module, one type per function.
func Module(funcs ...Func) []byte {
	return encode(0, funcs)
}

// ModuleWithMemory is Module plus a linear memory of pages initial pages,
// exported as "memory".
func ModuleWithMemory(pages uint32, funcs ...Func) []byte {
	return encode(pages, funcs)
}

func encode(pages uint32, funcs []Func) []byte {
	var out bytes.Buffer
	out.Write([]byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00})

	var sec []byte
	sec = appendU32(sec, uint32(len(funcs)))
	for _, f := range funcs {
		sec = append(sec, funcTypeByte)
		sec = appendValTypes(sec, f.Params)
		sec = appendValTypes(sec, f.Results)
	}
	writeSection(&out, sectionType, sec)

	sec = appendU32(nil, uint32(len(funcs)))
	for i := range funcs {
		sec = appendU32(sec, uint32(i))
	}
	writeSection(&out, sectionFunction, sec)

	exports := len(funcs)
	if pages > 0 {
		sec = appendU32(nil, 1)
		sec = append(sec, 0x00) // min only
		sec = appendU32(sec, pages)
		writeSection(&out, sectionMemory, sec)
		exports++
	}

	sec = appendU32(nil, uint32(exports))
	for i, f := range funcs {
		sec = appendU32(sec, uint32(len(f.Name)))
		sec = append(sec, f.Name...)
		sec = append(sec, exportFunc)
		sec = appendU32(sec, uint32(i))
	}
	if pages > 0 {
		sec = appendU32(sec, uint32(len("memory")))
		sec = append(sec, "memory"...)
		sec = append(sec, exportMemory)
		sec = appendU32(sec, 0)
	}
	writeSection(&out, sectionExport, sec)

	sec = appendU32(nil, uint32(len(funcs)))
	for _, f := range funcs {
		body := []byte{0x00} // no locals
		body = append(body, f.Body...)
		body = append(body, opEnd)
		sec = appendU32(sec, uint32(len(body)))
		sec = append(sec, body...)
	}
	writeSection(&out, sectionCode, sec)

	return out.Bytes()
}

func writeSection(out *bytes.Buffer, id byte, payload []byte) {
	out.WriteByte(id)
	out.Write(appendU32(nil, uint32(len(payload))))
	out.Write(payload)
}

func appendValTypes(b []byte, types []api.ValueType) []byte {
	b = appendU32(b, uint32(len(types)))
	return append(b, types...)
}

func appendU32(b []byte, v uint32) []byte {
	for {
		c := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			c |= 0x80
		}
		b = append(b, c)
		if v == 0 {
			return b
		}
	}
}

func appendS32(b []byte, v int32) []byte {
	for {
		c := byte(v & 0x7f)
		v >>= 7
		if (v == 0 && c&0x40 == 0) || (v == -1 && c&0x40 != 0) {
			return append(b, c)
		}
		b = append(b, c|0x80)
	}
}
