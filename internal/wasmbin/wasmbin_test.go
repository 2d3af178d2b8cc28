package wasmbin

import (
	"bytes"
	"context"
	"testing"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
)

func TestAppendU32(t *testing.T) {
	tests := []struct {
		v    uint32
		want []byte
	}{
		{0, []byte{0x00}},
		{1, []byte{0x01}},
		{127, []byte{0x7F}},
		{128, []byte{0x80, 0x01}},
		{624485, []byte{0xE5, 0x8E, 0x26}},
		{0xFFFFFFFF, []byte{0xFF, 0xFF, 0xFF, 0xFF, 0x0F}},
	}
	for _, tt := range tests {
		if got := appendU32(nil, tt.v); !bytes.Equal(got, tt.want) {
			t.Errorf("appendU32(%d) = %x, want %x", tt.v, got, tt.want)
		}
	}
}

func TestAppendI32(t *testing.T) {
	tests := []struct {
		v    int32
		want []byte
	}{
		{0, []byte{0x00}},
		{1, []byte{0x01}},
		{-1, []byte{0x7F}},
		{63, []byte{0x3F}},
		{64, []byte{0xC0, 0x00}},
		{-64, []byte{0x40}},
		{-65, []byte{0xBF, 0x7F}},
		{-123456, []byte{0xC0, 0xBB, 0x78}},
	}
	for _, tt := range tests {
		if got := appendI32(nil, tt.v); !bytes.Equal(got, tt.want) {
			t.Errorf("appendI32(%d) = %x, want %x", tt.v, got, tt.want)
		}
	}
}

func TestEncode_EmptyModule(t *testing.T) {
	got := New().Encode()
	want := []byte{0x00, 0x61, 0x73, 0x6D, 0x01, 0x00, 0x00, 0x00}
	if !bytes.Equal(got, want) {
		t.Errorf("Encode() = %x, want %x", got, want)
	}
}

func TestImportAfterFuncPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic")
		}
	}()
	m := New()
	m.Func("f", nil, nil, nil, nil)
	m.ImportFunc("env", "g", nil, nil)
}

func TestEncode_Runs(t *testing.T) {
	ctx := context.Background()
	r := wazero.NewRuntime(ctx)
	defer r.Close(ctx)

	m := New()
	m.Memory(1, "memory")
	counter := m.Global(true, 0, "counter")
	m.Data(100, []byte("hi"))
	m.Func("add", []ValType{I32, I32}, []ValType{I32}, nil,
		Code(LocalGet(0), LocalGet(1), I32Add()))
	m.Func("bump", nil, nil, nil,
		Code(GlobalGet(counter), I32Const(1), I32Add(), GlobalSet(counter)))

	mod, err := r.Instantiate(ctx, m.Encode())
	if err != nil {
		t.Fatalf("Instantiate: %v", err)
	}

	res, err := mod.ExportedFunction("add").Call(ctx, api.EncodeI32(40), api.EncodeI32(2))
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if got := api.DecodeI32(res[0]); got != 42 {
		t.Errorf("add = %d, want 42", got)
	}

	for i := 0; i < 3; i++ {
		if _, err := mod.ExportedFunction("bump").Call(ctx); err != nil {
			t.Fatalf("bump: %v", err)
		}
	}
	if got := mod.ExportedGlobal("counter").Get(); got != 3 {
		t.Errorf("counter = %d, want 3", got)
	}

	data, ok := mod.Memory().Read(100, 2)
	if !ok || string(data) != "hi" {
		t.Errorf("data segment = %q, %v", data, ok)
	}
}

func TestPipeline_Compiles(t *testing.T) {
	tests := []struct {
		name string
		opts PipelineOptions
	}{
		{"echo", PipelineOptions{}},
		{"status", PipelineOptions{Status: 1}},
		{"static", PipelineOptions{ArrayOutput: []byte{1, 2, 3}, JSONOutput: `{"count": 3}`}},
		{"empty static", PipelineOptions{ArrayOutput: []byte{}}},
		{"override", PipelineOptions{ArrayAddress: Int32(PageSize - 4), ArraySize: Int32(16)}},
		{"grow", PipelineOptions{GrowPages: 2}},
		{"trap", PipelineOptions{Trap: true}},
		{"initialize", PipelineOptions{Initialize: true, TrappingStart: true}},
		{"omit", PipelineOptions{Omit: "itk_wasm_free_all"}},
		{"omit memory", PipelineOptions{Omit: "memory"}},
		{"extra import", PipelineOptions{ExtraImport: [2]string{"env", "missing"}}},
	}

	ctx := context.Background()
	r := wazero.NewRuntime(ctx)
	defer r.Close(ctx)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			compiled, err := r.CompileModule(ctx, Pipeline(tt.opts))
			if err != nil {
				t.Fatalf("CompileModule: %v", err)
			}
			defer compiled.Close(ctx)

			exports := compiled.ExportedFunctions()
			_, hasFreeAll := exports["itk_wasm_free_all"]
			if want := tt.opts.Omit != "itk_wasm_free_all"; hasFreeAll != want {
				t.Errorf("itk_wasm_free_all exported = %v, want %v", hasFreeAll, want)
			}
			_, hasMemory := compiled.ExportedMemories()["memory"]
			if want := tt.opts.Omit != "memory"; hasMemory != want {
				t.Errorf("memory exported = %v, want %v", hasMemory, want)
			}
		})
	}
}

func TestPipeline_EchoSlots(t *testing.T) {
	ctx := context.Background()
	r := wazero.NewRuntime(ctx)
	defer r.Close(ctx)

	mod, err := r.Instantiate(ctx, Pipeline(PipelineOptions{}))
	if err != nil {
		t.Fatalf("Instantiate: %v", err)
	}

	res, err := mod.ExportedFunction("itk_wasm_input_array_alloc").Call(ctx, 0, 2, 5, 3)
	if err != nil {
		t.Fatalf("alloc: %v", err)
	}
	addr := api.DecodeU32(res[0])
	if want := uint32(ArraySlots + 2*ArraySlotSize); addr != want {
		t.Errorf("alloc address = %d, want %d", addr, want)
	}

	res, err = mod.ExportedFunction("itk_wasm_output_array_size").Call(ctx, 0, 2, 0)
	if err != nil {
		t.Fatalf("size: %v", err)
	}
	if got := api.DecodeU32(res[0]); got != 3 {
		t.Errorf("output size = %d, want 3", got)
	}
	if got := mod.ExportedGlobal(GlobalLastSubIndex).Get(); got != 5 {
		t.Errorf("last sub index = %d, want 5", got)
	}
	if got := mod.ExportedGlobal(GlobalAllocCalls).Get(); got != 1 {
		t.Errorf("alloc calls = %d, want 1", got)
	}
}

func TestPreopenLister_Compiles(t *testing.T) {
	ctx := context.Background()
	r := wazero.NewRuntime(ctx)
	defer r.Close(ctx)

	compiled, err := r.CompileModule(ctx, PreopenLister())
	if err != nil {
		t.Fatalf("CompileModule: %v", err)
	}
	defer compiled.Close(ctx)

	for _, name := range []string{"prestat", "prestat_name"} {
		def, ok := compiled.ExportedFunctions()[name]
		if !ok {
			t.Fatalf("%s not exported", name)
		}
		if len(def.ParamTypes()) != 1 || len(def.ResultTypes()) != 1 {
			t.Errorf("%s signature = %v -> %v", name, def.ParamTypes(), def.ResultTypes())
		}
	}
	imports := compiled.ImportedFunctions()
	if len(imports) != 2 {
		t.Fatalf("got %d imports, want 2", len(imports))
	}
	for _, def := range imports {
		if mod, _, _ := def.Import(); mod != "wasi_snapshot_preview1" {
			t.Errorf("import from %q", mod)
		}
	}
}
