// Package wasmpipeline runs sandboxed WebAssembly processing pipelines from Go.
//
// A pipeline is a WASI module exporting a small calling convention: the host
// asks the module to allocate input buffers in its own linear memory, writes
// inputs there, calls a deferred entry point, then asks the module where its
// outputs live and copies them out.
//
// # Architecture Overview
//
//	wasmpipeline/        Root package with the Memory interfaces
//	├── engine/          wazero integration: compile, ABI validation, instances, memory
//	├── pipeline/        Run orchestration: preopens, sessions, argument and result marshaling
//	├── errors/          Structured error types
//	├── internal/wasmbin Binary module builder used by tests
//	└── cmd/run          Command line and interactive runner
//
// # Quick Start
//
//	p, err := pipeline.New(ctx, wasmBytes)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer p.Close(ctx)
//
//	outputs, err := p.Run(ctx, []string{"input.nrrd", "0"},
//	    []pipeline.OutputSpec{{Type: pipeline.JSONObject}},
//	    []pipeline.Input{pipeline.BinaryArrayInput(data)})
//
// # ABI
//
// A module must export:
//
//	itk_wasm_delayed_start        () -> i32
//	itk_wasm_delayed_exit         (i32) -> ()
//	itk_wasm_input_array_alloc    (i32, i32, i32, i32) -> i32
//	itk_wasm_input_json_alloc     (i32, i32, i32) -> i32
//	itk_wasm_output_json_address  (i32, i32) -> i32
//	itk_wasm_output_json_size     (i32, i32) -> i32
//	itk_wasm_output_array_address (i32, i32, i32) -> i32
//	itk_wasm_output_array_size    (i32, i32, i32) -> i32
//	itk_wasm_free_all             () -> ()
//	memory
//
// Missing exports are reported when the module is loaded, before any call.
//
// # Thread Safety
//
// Pipeline is safe for concurrent use. Each Run gets its own instance with
// isolated memory. A module that never returns from its entry point blocks
// the calling goroutine unless the engine was configured to close modules
// when their context is done.
package wasmpipeline
