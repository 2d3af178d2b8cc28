package engine

import (
	"github.com/tetratelabs/wazero/api"

	wasmpipeline "github.com/wippyai/wasm-pipeline"
	"github.com/wippyai/wasm-pipeline/errors"
)

// WazeroMemory wraps wazero memory to implement wasmpipeline.Memory.
// Offsets come from the module and are untrusted: every access is checked
// against the size queried at the time of the call, since the module may
// have grown its memory since the previous one.
type WazeroMemory struct {
	mem api.Memory
}

// NewWazeroMemory wraps an exported wazero memory.
func NewWazeroMemory(mem api.Memory) *WazeroMemory {
	return &WazeroMemory{mem: mem}
}

func (m *WazeroMemory) check(phase errors.Phase, offset uint32, length uint64) error {
	size := m.Size()
	if uint64(offset)+length > uint64(size) {
		return errors.MemoryOutOfBounds(phase, uint64(offset), length, size)
	}
	return nil
}

// Read returns a copy of [offset, offset+length). The copy stays valid
// after the module frees or reallocates the range.
func (m *WazeroMemory) Read(offset uint32, length uint32) ([]byte, error) {
	if err := m.check(errors.PhaseDecode, offset, uint64(length)); err != nil {
		return nil, err
	}
	view, ok := m.mem.Read(offset, length)
	if !ok {
		return nil, errors.MemoryOutOfBounds(errors.PhaseDecode, uint64(offset), uint64(length), m.Size())
	}
	out := make([]byte, len(view))
	copy(out, view)
	return out, nil
}

func (m *WazeroMemory) Write(offset uint32, data []byte) error {
	if err := m.check(errors.PhaseEncode, offset, uint64(len(data))); err != nil {
		return err
	}
	if !m.mem.Write(offset, data) {
		return errors.MemoryOutOfBounds(errors.PhaseEncode, uint64(offset), uint64(len(data)), m.Size())
	}
	return nil
}

// Size returns the current memory size in bytes.
func (m *WazeroMemory) Size() uint32 {
	if m.mem == nil {
		return 0
	}
	return m.mem.Size()
}

var _ wasmpipeline.Memory = (*WazeroMemory)(nil)
var _ wasmpipeline.MemorySizer = (*WazeroMemory)(nil)
