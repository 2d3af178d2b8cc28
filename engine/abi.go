package engine

import (
	"strings"

	"github.com/tetratelabs/wazero/api"
	"go.bytecodealliance.org/wit"
)

// Export names of the pipeline calling convention
const (
	ExportDelayedStart      = "itk_wasm_delayed_start"
	ExportDelayedExit       = "itk_wasm_delayed_exit"
	ExportInputArrayAlloc   = "itk_wasm_input_array_alloc"
	ExportInputJSONAlloc    = "itk_wasm_input_json_alloc"
	ExportOutputJSONAddress = "itk_wasm_output_json_address"
	ExportOutputJSONSize    = "itk_wasm_output_json_size"
	ExportOutputArrayAddr   = "itk_wasm_output_array_address"
	ExportOutputArraySize   = "itk_wasm_output_array_size"
	ExportFreeAll           = "itk_wasm_free_all"
	ExportMemory            = "memory"

	// ExportInitialize is the optional reactor initializer, run on instantiation.
	ExportInitialize = "_initialize"

	// ExportStart is the implicit command entry point. It is never run.
	ExportStart = "_start"
)

// ExportSpec describes a function a module must export. Parameter and
// result types are declared as WIT primitives and flattened to core
// value types for validation. Memory marks an exported linear memory
// instead of a function.
type ExportSpec struct {
	Name    string
	Params  []wit.Type
	Results []wit.Type
	Memory  bool
}

// PipelineExports is the function table every pipeline module must
// satisfy. The leading parameter of every accessor is reserved and the
// host always passes 0.
var PipelineExports = []ExportSpec{
	{Name: ExportDelayedStart, Results: []wit.Type{wit.S32{}}},
	{Name: ExportDelayedExit, Params: []wit.Type{wit.S32{}}},
	{
		Name:    ExportInputArrayAlloc,
		Params:  []wit.Type{wit.S32{}, wit.U32{}, wit.U32{}, wit.U32{}},
		Results: []wit.Type{wit.U32{}},
	},
	{
		Name:    ExportInputJSONAlloc,
		Params:  []wit.Type{wit.S32{}, wit.U32{}, wit.U32{}},
		Results: []wit.Type{wit.U32{}},
	},
	{
		Name:    ExportOutputJSONAddress,
		Params:  []wit.Type{wit.S32{}, wit.U32{}},
		Results: []wit.Type{wit.U32{}},
	},
	{
		Name:    ExportOutputJSONSize,
		Params:  []wit.Type{wit.S32{}, wit.U32{}},
		Results: []wit.Type{wit.U32{}},
	},
	{
		Name:    ExportOutputArrayAddr,
		Params:  []wit.Type{wit.S32{}, wit.U32{}, wit.U32{}},
		Results: []wit.Type{wit.U32{}},
	},
	{
		Name:    ExportOutputArraySize,
		Params:  []wit.Type{wit.S32{}, wit.U32{}, wit.U32{}},
		Results: []wit.Type{wit.U32{}},
	},
	{Name: ExportFreeAll},
	{Name: ExportMemory, Memory: true},
}

// ExportStatus reports whether a module satisfies one required export
type ExportStatus struct {
	Name      string
	Present   bool
	Signature string
	Want      string
}

// OK reports whether the export is present with the expected signature
func (s ExportStatus) OK() bool {
	return s.Present && s.Signature == s.Want
}

// coreType maps a primitive WIT type to its flat core representation.
func coreType(t wit.Type) api.ValueType {
	switch t.(type) {
	case wit.U64, wit.S64:
		return api.ValueTypeI64
	case wit.F32:
		return api.ValueTypeF32
	case wit.F64:
		return api.ValueTypeF64
	default:
		return api.ValueTypeI32
	}
}

func coreTypes(ts []wit.Type) []api.ValueType {
	out := make([]api.ValueType, len(ts))
	for i, t := range ts {
		out[i] = coreType(t)
	}
	return out
}

// CoreSignature returns the flat signature of the export, e.g. "(i32, i32) -> (i32)".
func (s ExportSpec) CoreSignature() string {
	if s.Memory {
		return "memory"
	}
	return signature(coreTypes(s.Params), coreTypes(s.Results))
}

func signature(params, results []api.ValueType) string {
	var b strings.Builder
	writeTypes(&b, params)
	b.WriteString(" -> ")
	writeTypes(&b, results)
	return b.String()
}

func writeTypes(b *strings.Builder, ts []api.ValueType) {
	b.WriteByte('(')
	for i, t := range ts {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(api.ValueTypeName(t))
	}
	b.WriteByte(')')
}
