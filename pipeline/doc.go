// Package pipeline runs pipeline modules: sandboxed WebAssembly programs
// that exchange inputs and outputs with the host through their own
// linear memory.
//
// # Basic Usage
//
//	p, err := pipeline.New(ctx, wasmBytes)
//	if err != nil {
//	    return err
//	}
//	defer p.Close(ctx)
//
//	outputs, err := p.Run(ctx,
//	    []string{"--threshold", "3"},
//	    []pipeline.OutputSpec{{Type: pipeline.JSONObject}},
//	    []pipeline.Input{pipeline.BinaryArrayInput(data)})
//
// # Run Sequence
//
// Each Run opens a fresh instance named instance<N>, then:
//
//  1. Directories holding declared file inputs and outputs are mounted
//     at their host paths; nothing else is visible to the module
//  2. Array and JSON inputs are copied into buffers the module allocates
//  3. itk_wasm_delayed_start runs; a non-zero status fails with
//     errors.ErrExecution and no outputs
//  4. Outputs are copied out of module memory by declared kind
//  5. itk_wasm_free_all and itk_wasm_delayed_exit(0) run
//
// The instance is closed whatever the outcome.
//
// # Kinds
//
//	Kind            Input                    Output
//	──────────────────────────────────────────────────────────
//	BinaryArray     array allocator          -
//	TextStream      array allocator (UTF-8)  array accessors, UTF-8
//	BinaryStream    array allocator          array accessors
//	JSONObject      JSON allocator           JSON accessors
//	TextFile        preopen only             declared path
//	BinaryFile      preopen only             declared path
//	Image, Mesh,    -                        errors.ErrUnsupportedOutputKind
//	PolyData
//
// JSON values are untyped: objects decode to map[string]any and numbers
// to float64.
package pipeline
