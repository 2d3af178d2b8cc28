package errors

import (
	"fmt"
	"strings"
)

// Phase indicates where in a pipeline call the error occurred
type Phase string

const (
	PhaseLoad     Phase = "load"     // compile and ABI validation
	PhaseLinking  Phase = "linking"  // import resolution
	PhaseValidate Phase = "validate" // caller-supplied inputs/outputs
	PhaseEncode   Phase = "encode"   // host to module memory
	PhaseDecode   Phase = "decode"   // module memory to host
	PhaseRuntime  Phase = "runtime"  // entry point and teardown exports
)

// Kind categorizes the error
type Kind string

const (
	KindInvalidData    Kind = "invalid_data"
	KindExportMissing  Kind = "export_missing"
	KindTypeMismatch   Kind = "type_mismatch"
	KindMissingImport  Kind = "missing_import"
	KindPath           Kind = "path"
	KindOutOfBounds    Kind = "out_of_bounds"
	KindExecution      Kind = "execution"
	KindTrap           Kind = "trap"
	KindUnsupported    Kind = "unsupported"
	KindInvalidInput   Kind = "invalid_input"
	KindInstantiation  Kind = "instantiation"
	KindNotInitialized Kind = "not_initialized"
	KindExited         Kind = "exited"
)

// Sentinels for errors.Is. Matching compares Phase and Kind only.
var (
	ErrLoad                  = &Error{Phase: PhaseLoad, Kind: KindInvalidData}
	ErrExportMissing         = &Error{Phase: PhaseLoad, Kind: KindExportMissing}
	ErrPath                  = &Error{Phase: PhaseValidate, Kind: KindPath}
	ErrExecution             = &Error{Phase: PhaseRuntime, Kind: KindExecution}
	ErrUnsupportedOutputKind = &Error{Phase: PhaseDecode, Kind: KindUnsupported}
	ErrMissingImport         = &Error{Phase: PhaseLinking, Kind: KindMissingImport}
	ErrExited                = &Error{Phase: PhaseRuntime, Kind: KindExited}
)

// Error is the structured error type returned by every package of the bridge
type Error struct {
	Value  any
	Cause  error
	Phase  Phase
	Kind   Kind
	Symbol string
	Detail string
	Path   []string
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if len(e.Path) > 0 {
		b.WriteString(" at ")
		b.WriteString(strings.Join(e.Path, "."))
	}

	if e.Symbol != "" {
		b.WriteString(": export ")
		b.WriteString(e.Symbol)
	}

	if e.Detail != "" {
		if e.Symbol != "" {
			b.WriteString(" - ")
		} else {
			b.WriteString(": ")
		}
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target has the same phase and kind.
// Out-of-bounds errors match across phases so a single sentinel covers
// reads and writes.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if e.Kind == KindOutOfBounds && t.Kind == KindOutOfBounds && t.Phase == "" {
		return true
	}
	return e.Phase == t.Phase && e.Kind == t.Kind
}

// ErrOutOfBounds matches any memory bounds violation, read or write.
var ErrOutOfBounds = &Error{Kind: KindOutOfBounds}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
		},
	}
}

// Path sets the location path, e.g. ("outputs", "2")
func (b *Builder) Path(path ...string) *Builder {
	b.err.Path = path
	return b
}

// Symbol sets the module export involved
func (b *Builder) Symbol(name string) *Builder {
	b.err.Symbol = name
	return b
}

// Value sets the offending value
func (b *Builder) Value(v any) *Builder {
	b.err.Value = v
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// Load creates a module loading error
func Load(detail string, cause error) *Error {
	return &Error{
		Phase:  PhaseLoad,
		Kind:   KindInvalidData,
		Detail: detail,
		Cause:  cause,
	}
}

// ExportMissing reports a required ABI export the module does not provide
func ExportMissing(name string) *Error {
	return &Error{
		Phase:  PhaseLoad,
		Kind:   KindExportMissing,
		Symbol: name,
		Detail: "required export not found",
		Value:  name,
	}
}

// ExportSignature reports a required export whose core signature differs
func ExportSignature(name, want, got string) *Error {
	return &Error{
		Phase:  PhaseLoad,
		Kind:   KindTypeMismatch,
		Symbol: name,
		Detail: fmt.Sprintf("signature %s, want %s", got, want),
	}
}

// PathInvalid reports a declared file path the sandbox cannot be given access to
func PathInvalid(path, detail string) *Error {
	return &Error{
		Phase:  PhaseValidate,
		Kind:   KindPath,
		Detail: fmt.Sprintf("%s: %s", path, detail),
		Value:  path,
	}
}

// MemoryOutOfBounds reports an (offset, length) range outside linear memory
func MemoryOutOfBounds(phase Phase, offset, length uint64, size uint32) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindOutOfBounds,
		Detail: fmt.Sprintf("range [%d, %d) exceeds memory size %d", offset, offset+length, size),
		Value:  offset,
	}
}

// Execution reports a non-zero status from the pipeline entry point
func Execution(status int32) *Error {
	return &Error{
		Phase:  PhaseRuntime,
		Kind:   KindExecution,
		Detail: fmt.Sprintf("non-zero return code: %d", status),
		Value:  status,
	}
}

// StatusCode extracts the entry point status carried by an execution error.
func StatusCode(err error) (int32, bool) {
	for err != nil {
		if e, ok := err.(*Error); ok && e.Kind == KindExecution {
			status, ok := e.Value.(int32)
			return status, ok
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return 0, false
		}
		err = u.Unwrap()
	}
	return 0, false
}

// UnsupportedOutputKind reports a declared output kind this bridge cannot decode
func UnsupportedOutputKind(kind string) *Error {
	return &Error{
		Phase:  PhaseDecode,
		Kind:   KindUnsupported,
		Detail: fmt.Sprintf("output kind %q not supported", kind),
		Value:  kind,
	}
}

// Trap wraps a failure raised while the module executes an export
func Trap(export string, cause error) *Error {
	return &Error{
		Phase:  PhaseRuntime,
		Kind:   KindTrap,
		Symbol: export,
		Cause:  cause,
	}
}

// Exited reports an export that cannot run because the module already
// exited through WASI proc_exit with the given code.
func Exited(export string, code int32) *Error {
	return &Error{
		Phase:  PhaseRuntime,
		Kind:   KindExited,
		Symbol: export,
		Value:  code,
		Detail: fmt.Sprintf("module exited with code %d", code),
	}
}

// Wrap wraps an existing error with additional context
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Detail: detail,
		Cause:  cause,
	}
}

// InvalidInput creates an error for a caller-supplied value that cannot be encoded
func InvalidInput(phase Phase, detail string, cause error) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidInput,
		Detail: detail,
		Cause:  cause,
	}
}

// NotInitialized creates a not-initialized error for a closed or missing resource
func NotInitialized(phase Phase, component string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotInitialized,
		Detail: fmt.Sprintf("%s not initialized", component),
	}
}

// Instantiation creates an instantiation error
func Instantiation(cause error) *Error {
	return &Error{
		Phase:  PhaseRuntime,
		Kind:   KindInstantiation,
		Detail: "instantiate module",
		Cause:  cause,
	}
}

// MissingImport represents a single unresolved import
type MissingImport struct {
	Namespace string // e.g., "env"
	Function  string // e.g., "emscripten_notify_memory_growth"
}

// MissingImportsError is returned at load time when the module imports
// functions the host does not provide
type MissingImportsError struct {
	Imports []MissingImport
}

// NewMissingImportsError creates an error from a list of "namespace#function" strings
func NewMissingImportsError(imports []string) *MissingImportsError {
	result := &MissingImportsError{
		Imports: make([]MissingImport, 0, len(imports)),
	}
	for _, imp := range imports {
		ns, fn, _ := strings.Cut(imp, "#")
		result.Imports = append(result.Imports, MissingImport{
			Namespace: ns,
			Function:  fn,
		})
	}
	return result
}

func (e *MissingImportsError) Error() string {
	if len(e.Imports) == 0 {
		return fmt.Sprintf("[%s] %s: no imports specified", PhaseLinking, KindMissingImport)
	}

	var b strings.Builder
	b.WriteString(fmt.Sprintf("[%s] %s: missing %d host function(s):\n", PhaseLinking, KindMissingImport, len(e.Imports)))

	byNS := make(map[string][]string)
	var nsOrder []string
	for _, imp := range e.Imports {
		if _, exists := byNS[imp.Namespace]; !exists {
			nsOrder = append(nsOrder, imp.Namespace)
		}
		byNS[imp.Namespace] = append(byNS[imp.Namespace], imp.Function)
	}

	for _, ns := range nsOrder {
		b.WriteString("\n  ")
		b.WriteString(ns)
		b.WriteString(":\n")
		for _, fn := range byNS[ns] {
			b.WriteString("    - ")
			b.WriteString(fn)
			b.WriteByte('\n')
		}
	}

	return strings.TrimSuffix(b.String(), "\n")
}

// Is matches any *MissingImportsError, and ErrMissingImport
func (e *MissingImportsError) Is(target error) bool {
	switch t := target.(type) {
	case *MissingImportsError:
		return true
	case *Error:
		return t.Phase == PhaseLinking && t.Kind == KindMissingImport
	}
	return false
}
