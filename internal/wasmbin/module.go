// Package wasmbin assembles small core WebAssembly binaries in process.
//
// It exists so tests and examples can produce modules that follow the
// pipeline export convention without shipping prebuilt .wasm fixtures.
// Only the subset of the binary format needed for that is supported:
// function types, function imports, one memory, i32 globals, exports,
// code, and active data segments.
package wasmbin

import "fmt"

// ValType is a core value type
type ValType byte

const (
	I32 ValType = 0x7F
	I64 ValType = 0x7E
	F32 ValType = 0x7D
	F64 ValType = 0x7C
)

const (
	secType     = 1
	secImport   = 2
	secFunction = 3
	secMemory   = 5
	secGlobal   = 6
	secExport   = 7
	secCode     = 10
	secData     = 11

	externFunc   = 0x00
	externMemory = 0x02
	externGlobal = 0x03
)

type funcType struct {
	params  []ValType
	results []ValType
}

type funcImport struct {
	module string
	name   string
	typ    uint32
}

type function struct {
	typ    uint32
	locals []ValType
	body   []byte
}

type global struct {
	typ     ValType
	mutable bool
	init    int32
}

type export struct {
	name  string
	kind  byte
	index uint32
}

type segment struct {
	offset uint32
	data   []byte
}

// Module accumulates definitions and encodes them into a binary.
// Function imports must be declared before any function is defined
// because imports occupy the low end of the function index space.
type Module struct {
	types    []funcType
	imports  []funcImport
	funcs    []function
	globals  []global
	exports  []export
	data     []segment
	memPages uint32
	hasMem   bool
}

// New returns an empty module
func New() *Module {
	return &Module{}
}

func (m *Module) addType(params, results []ValType) uint32 {
	m.types = append(m.types, funcType{params: params, results: results})
	return uint32(len(m.types) - 1)
}

// ImportFunc declares a function import and returns its function index.
func (m *Module) ImportFunc(module, name string, params, results []ValType) uint32 {
	if len(m.funcs) > 0 {
		panic("wasmbin: function imports must precede function definitions")
	}
	m.imports = append(m.imports, funcImport{
		module: module,
		name:   name,
		typ:    m.addType(params, results),
	})
	return uint32(len(m.imports) - 1)
}

// Func defines a function. A non-empty export name also exports it.
// The body must not include the terminating end opcode.
func (m *Module) Func(exportName string, params, results, locals []ValType, body []byte) uint32 {
	m.funcs = append(m.funcs, function{
		typ:    m.addType(params, results),
		locals: locals,
		body:   body,
	})
	idx := uint32(len(m.imports) + len(m.funcs) - 1)
	if exportName != "" {
		m.exports = append(m.exports, export{name: exportName, kind: externFunc, index: idx})
	}
	return idx
}

// Memory declares the module memory with a minimum page count.
func (m *Module) Memory(minPages uint32, exportName string) {
	m.hasMem = true
	m.memPages = minPages
	if exportName != "" {
		m.exports = append(m.exports, export{name: exportName, kind: externMemory})
	}
}

// Global declares an i32 global initialized to init and returns its index.
func (m *Module) Global(mutable bool, init int32, exportName string) uint32 {
	m.globals = append(m.globals, global{typ: I32, mutable: mutable, init: init})
	idx := uint32(len(m.globals) - 1)
	if exportName != "" {
		m.exports = append(m.exports, export{name: exportName, kind: externGlobal, index: idx})
	}
	return idx
}

// Data places bytes at a fixed offset of memory 0 on instantiation.
func (m *Module) Data(offset uint32, data []byte) {
	m.data = append(m.data, segment{offset: offset, data: data})
}

// Encode returns the binary encoding of the module.
func (m *Module) Encode() []byte {
	out := &buffer{}
	out.writeBytes([]byte{0x00, 0x61, 0x73, 0x6D, 0x01, 0x00, 0x00, 0x00})

	if len(m.types) > 0 {
		sec := &buffer{}
		sec.writeU32(uint32(len(m.types)))
		for _, t := range m.types {
			sec.appendByte(0x60)
			sec.writeU32(uint32(len(t.params)))
			for _, p := range t.params {
				sec.appendByte(byte(p))
			}
			sec.writeU32(uint32(len(t.results)))
			for _, r := range t.results {
				sec.appendByte(byte(r))
			}
		}
		writeSection(out, secType, sec)
	}

	if len(m.imports) > 0 {
		sec := &buffer{}
		sec.writeU32(uint32(len(m.imports)))
		for _, imp := range m.imports {
			sec.writeString(imp.module)
			sec.writeString(imp.name)
			sec.appendByte(externFunc)
			sec.writeU32(imp.typ)
		}
		writeSection(out, secImport, sec)
	}

	if len(m.funcs) > 0 {
		sec := &buffer{}
		sec.writeU32(uint32(len(m.funcs)))
		for _, f := range m.funcs {
			sec.writeU32(f.typ)
		}
		writeSection(out, secFunction, sec)
	}

	if m.hasMem {
		sec := &buffer{}
		sec.writeU32(1)
		sec.appendByte(0x00)
		sec.writeU32(m.memPages)
		writeSection(out, secMemory, sec)
	}

	if len(m.globals) > 0 {
		sec := &buffer{}
		sec.writeU32(uint32(len(m.globals)))
		for _, g := range m.globals {
			sec.appendByte(byte(g.typ))
			if g.mutable {
				sec.appendByte(0x01)
			} else {
				sec.appendByte(0x00)
			}
			sec.writeBytes(I32Const(g.init))
			sec.appendByte(opEnd)
		}
		writeSection(out, secGlobal, sec)
	}

	if len(m.exports) > 0 {
		sec := &buffer{}
		sec.writeU32(uint32(len(m.exports)))
		for _, e := range m.exports {
			sec.writeString(e.name)
			sec.appendByte(e.kind)
			sec.writeU32(e.index)
		}
		writeSection(out, secExport, sec)
	}

	if len(m.funcs) > 0 {
		sec := &buffer{}
		sec.writeU32(uint32(len(m.funcs)))
		for _, f := range m.funcs {
			body := &buffer{}
			body.writeU32(uint32(len(f.locals)))
			for _, l := range f.locals {
				body.writeU32(1)
				body.appendByte(byte(l))
			}
			body.writeBytes(f.body)
			body.appendByte(opEnd)
			sec.writeVec(body.bytes)
		}
		writeSection(out, secCode, sec)
	}

	if len(m.data) > 0 {
		if !m.hasMem {
			panic(fmt.Sprintf("wasmbin: %d data segment(s) without a memory", len(m.data)))
		}
		sec := &buffer{}
		sec.writeU32(uint32(len(m.data)))
		for _, d := range m.data {
			sec.writeU32(0)
			sec.writeBytes(I32Const(int32(d.offset)))
			sec.appendByte(opEnd)
			sec.writeVec(d.data)
		}
		writeSection(out, secData, sec)
	}

	return out.bytes
}
