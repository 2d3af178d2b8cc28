package wasmpipeline

// Memory is bounds-checked access to a module's linear memory.
// Every call re-checks offset+length against the current size; the
// module may grow its memory between calls.
type Memory interface {
	Read(offset uint32, length uint32) ([]byte, error)
	Write(offset uint32, data []byte) error
}

// MemorySizer provides the current size of WASM linear memory in bytes.
type MemorySizer interface {
	Size() uint32
}
