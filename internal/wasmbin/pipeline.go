package wasmbin

// Fixed memory layout of modules produced by Pipeline. Each input index
// owns a fixed-size slot, so the module supports indices 0 through
// MaxIndex with payloads up to the slot size.
const (
	ArrayLenTable = 256
	JSONLenTable  = 512
	ArraySlots    = 4096
	ArraySlotSize = 4096
	JSONSlots     = 20480
	JSONSlotSize  = 2048
	StaticArray   = 32768
	StaticJSON    = 49152
	MaxIndex      = 3
	PageSize      = 65536
)

// Names of the i32 globals every Pipeline module exports for inspection.
const (
	GlobalAllocCalls   = "alloc_calls"
	GlobalFreeAllCalls = "free_all_calls"
	GlobalExitCode     = "exit_code"
	GlobalLastSubIndex = "last_sub_index"
	GlobalInitialized  = "initialized"
)

// PipelineOptions shapes the behavior of a generated pipeline module.
// The zero value echoes every array and JSON input back as the output
// with the same index and reports status 0.
type PipelineOptions struct {
	// Status is returned by itk_wasm_delayed_start.
	Status int32

	// ArrayOutput, when non-nil, is served for every array output index.
	ArrayOutput []byte

	// JSONOutput, when non-empty, is served for every JSON output index.
	JSONOutput string

	// ArrayAddress and ArraySize override the array output location.
	ArrayAddress *int32
	ArraySize    *int32

	// Omit leaves the named export out of the module.
	Omit string

	// GrowPages grows memory inside itk_wasm_delayed_start.
	GrowPages int32

	// Trap makes itk_wasm_delayed_start execute unreachable.
	Trap bool

	// ProcExit makes itk_wasm_delayed_start call WASI proc_exit(Status)
	// instead of returning it.
	ProcExit bool

	// Initialize adds an _initialize export that sets the initialized global.
	Initialize bool

	// TrappingStart adds a _start export that traps if ever called.
	TrappingStart bool

	// ExtraImport adds an import the host cannot satisfy, as module#name.
	ExtraImport [2]string
}

// Pipeline builds a module that follows the pipeline export convention.
func Pipeline(opts PipelineOptions) []byte {
	m := New()
	i32 := []ValType{I32}

	var procExit uint32
	if opts.ProcExit {
		procExit = m.ImportFunc("wasi_snapshot_preview1", "proc_exit", i32, nil)
	}
	if opts.ExtraImport[0] != "" {
		m.ImportFunc(opts.ExtraImport[0], opts.ExtraImport[1], nil, nil)
	}

	if opts.Omit != "memory" {
		m.Memory(1, "memory")
	} else {
		m.Memory(1, "")
	}

	allocCalls := m.Global(true, 0, GlobalAllocCalls)
	freeAllCalls := m.Global(true, 0, GlobalFreeAllCalls)
	exitCode := m.Global(true, -1, GlobalExitCode)
	lastSub := m.Global(true, -1, GlobalLastSubIndex)
	initialized := m.Global(true, 0, GlobalInitialized)

	name := func(n string) string {
		if n == opts.Omit {
			return ""
		}
		return n
	}
	bump := func(g uint32) []byte {
		return Code(GlobalGet(g), I32Const(1), I32Add(), GlobalSet(g))
	}
	// slot computes base + local(idx)*stride
	slot := func(base, stride int32, idx uint32) []byte {
		return Code(I32Const(base), LocalGet(idx), I32Const(stride), I32Mul(), I32Add())
	}

	var start []byte
	if opts.GrowPages > 0 {
		start = Code(start, I32Const(opts.GrowPages), MemoryGrow(), Drop())
	}
	switch {
	case opts.Trap:
		start = Code(start, Unreachable())
	case opts.ProcExit:
		start = Code(start, I32Const(opts.Status), Call(procExit), I32Const(opts.Status))
	default:
		start = Code(start, I32Const(opts.Status))
	}
	m.Func(name("itk_wasm_delayed_start"), nil, i32, nil, start)

	m.Func(name("itk_wasm_delayed_exit"), i32, nil, nil,
		Code(LocalGet(0), GlobalSet(exitCode)))

	// (reserved, index, subIndex, length) -> address
	m.Func(name("itk_wasm_input_array_alloc"), []ValType{I32, I32, I32, I32}, i32, nil, Code(
		slot(ArrayLenTable, 4, 1), LocalGet(3), I32Store(0),
		LocalGet(2), GlobalSet(lastSub),
		bump(allocCalls),
		slot(ArraySlots, ArraySlotSize, 1),
	))

	// (reserved, index, length) -> address
	m.Func(name("itk_wasm_input_json_alloc"), []ValType{I32, I32, I32}, i32, nil, Code(
		slot(JSONLenTable, 4, 1), LocalGet(2), I32Store(0),
		bump(allocCalls),
		slot(JSONSlots, JSONSlotSize, 1),
	))

	jsonAddr := slot(JSONSlots, JSONSlotSize, 1)
	jsonSize := Code(slot(JSONLenTable, 4, 1), I32Load(0))
	if opts.JSONOutput != "" {
		m.Data(StaticJSON, []byte(opts.JSONOutput))
		jsonAddr = I32Const(StaticJSON)
		jsonSize = I32Const(int32(len(opts.JSONOutput)))
	}
	m.Func(name("itk_wasm_output_json_address"), []ValType{I32, I32}, i32, nil, jsonAddr)
	m.Func(name("itk_wasm_output_json_size"), []ValType{I32, I32}, i32, nil, jsonSize)

	arrayAddr := slot(ArraySlots, ArraySlotSize, 1)
	arraySize := Code(slot(ArrayLenTable, 4, 1), I32Load(0))
	if opts.ArrayOutput != nil {
		if len(opts.ArrayOutput) > 0 {
			m.Data(StaticArray, opts.ArrayOutput)
		}
		arrayAddr = I32Const(StaticArray)
		arraySize = I32Const(int32(len(opts.ArrayOutput)))
	}
	if opts.ArrayAddress != nil {
		arrayAddr = I32Const(*opts.ArrayAddress)
	}
	if opts.ArraySize != nil {
		arraySize = I32Const(*opts.ArraySize)
	}
	m.Func(name("itk_wasm_output_array_address"), []ValType{I32, I32, I32}, i32, nil,
		Code(LocalGet(2), GlobalSet(lastSub), arrayAddr))
	m.Func(name("itk_wasm_output_array_size"), []ValType{I32, I32, I32}, i32, nil, arraySize)

	m.Func(name("itk_wasm_free_all"), nil, nil, nil, bump(freeAllCalls))

	if opts.Initialize {
		m.Func("_initialize", nil, nil, nil, Code(I32Const(1), GlobalSet(initialized)))
	}
	if opts.TrappingStart {
		m.Func("_start", nil, nil, nil, Unreachable())
	}

	return m.Encode()
}

// Int32 returns a pointer to v for the override fields of PipelineOptions.
func Int32(v int32) *int32 {
	return &v
}
