package wasmbin

const (
	opUnreachable = 0x00
	opEnd         = 0x0B
	opCall        = 0x10
	opDrop        = 0x1A
	opLocalGet    = 0x20
	opLocalSet    = 0x21
	opGlobalGet   = 0x23
	opGlobalSet   = 0x24
	opI32Load     = 0x28
	opI32Store    = 0x36
	opI32Store8   = 0x3A
	opMemoryGrow  = 0x40
	opI32Const    = 0x41
	opI32Add      = 0x6A
	opI32Mul      = 0x6C
)

// Code concatenates instruction sequences into one function body.
func Code(parts ...[]byte) []byte {
	var out []byte
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

func I32Const(v int32) []byte { return appendI32([]byte{opI32Const}, v) }

func LocalGet(idx uint32) []byte { return appendU32([]byte{opLocalGet}, idx) }

func LocalSet(idx uint32) []byte { return appendU32([]byte{opLocalSet}, idx) }

func GlobalGet(idx uint32) []byte { return appendU32([]byte{opGlobalGet}, idx) }

func GlobalSet(idx uint32) []byte { return appendU32([]byte{opGlobalSet}, idx) }

func Call(funcIdx uint32) []byte { return appendU32([]byte{opCall}, funcIdx) }

// I32Load loads with natural alignment (2^2) at the given static offset.
func I32Load(offset uint32) []byte { return appendU32([]byte{opI32Load, 0x02}, offset) }

// I32Store stores with natural alignment (2^2) at the given static offset.
func I32Store(offset uint32) []byte { return appendU32([]byte{opI32Store, 0x02}, offset) }

func I32Store8(offset uint32) []byte { return appendU32([]byte{opI32Store8, 0x00}, offset) }

func I32Add() []byte { return []byte{opI32Add} }

func I32Mul() []byte { return []byte{opI32Mul} }

func Drop() []byte { return []byte{opDrop} }

func Unreachable() []byte { return []byte{opUnreachable} }

// MemoryGrow grows memory 0 by the page count on the stack and pushes the old size.
func MemoryGrow() []byte { return []byte{opMemoryGrow, 0x00} }
