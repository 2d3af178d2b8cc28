package wasmbin

type buffer struct {
	bytes []byte
}

func (b *buffer) appendByte(v byte) {
	b.bytes = append(b.bytes, v)
}

func (b *buffer) writeBytes(v []byte) {
	b.bytes = append(b.bytes, v...)
}

// writeU32 writes unsigned LEB128 encoding.
func (b *buffer) writeU32(v uint32) {
	b.bytes = appendU32(b.bytes, v)
}

func (b *buffer) writeString(s string) {
	b.writeU32(uint32(len(s)))
	b.writeBytes([]byte(s))
}

func (b *buffer) writeVec(v []byte) {
	b.writeU32(uint32(len(v)))
	b.writeBytes(v)
}

func appendU32(dst []byte, v uint32) []byte {
	for {
		byt := byte(v & 0x7F)
		v >>= 7
		if v != 0 {
			byt |= 0x80
		}
		dst = append(dst, byt)
		if v == 0 {
			return dst
		}
	}
}

// appendI32 writes signed LEB128 encoding.
func appendI32(dst []byte, v int32) []byte {
	for {
		byt := byte(v & 0x7F)
		v >>= 7
		if (v == 0 && byt&0x40 == 0) || (v == -1 && byt&0x40 != 0) {
			return append(dst, byt)
		}
		dst = append(dst, byt|0x80)
	}
}

func writeSection(out *buffer, id byte, content *buffer) {
	out.appendByte(id)
	out.writeU32(uint32(len(content.bytes)))
	out.writeBytes(content.bytes)
}
