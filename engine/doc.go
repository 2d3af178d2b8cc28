// Package engine provides the sandboxed execution layer for pipeline modules.
//
// This package wraps wazero to compile a module once, validate it against
// the pipeline export table, and create isolated instances on demand.
//
// # Architecture
//
// The engine package provides three main types:
//
//	WazeroEngine   - Owns the wazero runtime, WASI host module, and instance counter
//	WazeroModule   - A compiled, validated module; instantiates any number of times
//	WazeroInstance - One live instance with its own linear memory
//
// # Load Flow
//
//  1. WazeroEngine.LoadModule() compiles the binary (errors.ErrLoad on failure)
//  2. Function imports are checked against the WASI preview1 host module
//  3. Required exports are checked by name and by flat core signature
//  4. WazeroModule.Instantiate() creates a WazeroInstance named instance<N>
//
// # Export Table
//
// PipelineExports declares the calling convention with WIT primitive types:
//
//	Export                          WIT signature                 Core
//	────────────────────────────────────────────────────────────────────────────
//	itk_wasm_delayed_start          () -> s32                     () -> (i32)
//	itk_wasm_delayed_exit           (s32)                         (i32) -> ()
//	itk_wasm_input_array_alloc      (s32, u32, u32, u32) -> u32   (i32 x4) -> (i32)
//	itk_wasm_input_json_alloc       (s32, u32, u32) -> u32        (i32 x3) -> (i32)
//	itk_wasm_output_json_address    (s32, u32) -> u32             (i32 x2) -> (i32)
//	itk_wasm_output_json_size       (s32, u32) -> u32             (i32 x2) -> (i32)
//	itk_wasm_output_array_address   (s32, u32, u32) -> u32        (i32 x3) -> (i32)
//	itk_wasm_output_array_size      (s32, u32, u32) -> u32        (i32 x3) -> (i32)
//	itk_wasm_free_all               ()                            () -> ()
//	memory                          exported linear memory
//
// # Memory Access
//
// WazeroMemory checks offset+length against the memory size on every call
// and returns errors.ErrOutOfBounds instead of truncating. Reads return
// copies, never views into module memory.
//
// # Thread Safety
//
// WazeroEngine and WazeroModule are safe for concurrent use.
// WazeroInstance is NOT thread-safe and should be used by a single goroutine.
//
// Most users should use the pipeline package for a simpler API.
// This package is for advanced use cases requiring direct control.
package engine
