// Package errors provides structured error types for the pipeline bridge.
//
// Errors are categorized by Phase (where the error occurred) and Kind (error category).
// The Error type carries the export symbol involved, a location path, the
// offending value and a cause chain.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseDecode, errors.KindOutOfBounds).
//		Path("outputs", "1").
//		Symbol("itk_wasm_output_array_address").
//		Detail("pointer %d beyond memory", ptr).
//		Build()
//
// Or use convenience constructors for the bridge taxonomy:
//
//	err := errors.ExportMissing("itk_wasm_free_all")
//	err := errors.Execution(status)
//	err := errors.MemoryOutOfBounds(errors.PhaseDecode, offset, length, size)
//
// All errors implement the standard error interface and support errors.Is/As.
// The exported Err* values act as sentinels:
//
//	if errors.Is(err, bridgeerrors.ErrExecution) {
//		code, _ := bridgeerrors.StatusCode(err)
//	}
package errors
