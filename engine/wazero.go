package engine

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/sys"
	"go.uber.org/zap"

	"github.com/wippyai/wasm-pipeline/errors"
)

// WazeroEngine compiles and instantiates modules on one wazero runtime.
// It owns the instance counter that names every instantiation, so names
// never collide across modules sharing the engine.
type WazeroEngine struct {
	runtime      wazero.Runtime
	instances    atomic.Uint64
	wasiInitMu   sync.Mutex
	wasiInitDone atomic.Bool
}

// Config holds configuration for engine creation
type Config struct {
	// MemoryLimitPages sets the maximum memory per instance in pages (64KB each).
	// 0 means default (65536 pages = 4GB).
	// 256 = 16MB, 1024 = 64MB, 4096 = 256MB
	MemoryLimitPages uint32

	// CloseOnContextDone makes a running call return when its context is
	// cancelled or times out. Without it a hung module blocks its caller.
	CloseOnContextDone bool
}

// NewWazeroEngine creates a new wazero-based engine
func NewWazeroEngine(ctx context.Context) (*WazeroEngine, error) {
	return NewWazeroEngineWithConfig(ctx, nil)
}

// NewWazeroEngineWithConfig creates a new engine with custom configuration
func NewWazeroEngineWithConfig(ctx context.Context, cfg *Config) (*WazeroEngine, error) {
	runtimeCfg := wazero.NewRuntimeConfig()

	if cfg != nil {
		if cfg.MemoryLimitPages > 0 {
			runtimeCfg = runtimeCfg.WithMemoryLimitPages(cfg.MemoryLimitPages)
		}
		if cfg.CloseOnContextDone {
			runtimeCfg = runtimeCfg.WithCloseOnContextDone(true)
		}
	}

	runtime := wazero.NewRuntimeWithConfig(ctx, runtimeCfg)
	return &WazeroEngine{runtime: runtime}, nil
}

// NextInstanceName returns a process-unique name for a new instance
func (e *WazeroEngine) NextInstanceName() string {
	return fmt.Sprintf("instance%d", e.instances.Add(1))
}

// InstanceCount returns how many instance names have been handed out
func (e *WazeroEngine) InstanceCount() uint64 {
	return e.instances.Load()
}

// InstanceConfig holds configuration for module instantiation
type InstanceConfig struct {
	// Name of the instance. Empty takes the next name from the engine counter.
	Name string

	// Args are passed as WASI argv after argv[0], which is the instance name.
	Args []string

	Env    map[string]string
	Stdout io.Writer
	Stderr io.Writer

	// FSConfig is the filesystem view. Nil exposes no host files.
	FSConfig wazero.FSConfig

	// StartFunctions run in order after instantiation; exports the module
	// lacks are skipped. Nil runs none, so _start is never implied.
	StartFunctions []string
}

// LoadModule compiles wasmBytes and validates it against the required
// export table. Every function import must be satisfiable by the host.
func (e *WazeroEngine) LoadModule(ctx context.Context, wasmBytes []byte, required []ExportSpec) (*WazeroModule, error) {
	if len(wasmBytes) == 0 {
		return nil, errors.Load("empty module", nil)
	}

	compiled, err := e.runtime.CompileModule(ctx, wasmBytes)
	if err != nil {
		return nil, errors.Load("compile failed", err)
	}

	if err := e.InitWASI(ctx); err != nil {
		_ = compiled.Close(ctx)
		return nil, err
	}

	if err := e.checkImports(compiled); err != nil {
		_ = compiled.Close(ctx)
		return nil, err
	}

	for _, st := range describe(compiled, required) {
		if !st.Present {
			_ = compiled.Close(ctx)
			return nil, errors.ExportMissing(st.Name)
		}
		if !st.OK() {
			_ = compiled.Close(ctx)
			return nil, errors.ExportSignature(st.Name, st.Want, st.Signature)
		}
	}

	Logger().Debug("module compiled",
		zap.Int("bytes", len(wasmBytes)),
		zap.Int("exports", len(compiled.ExportedFunctions())),
		zap.Int("imports", len(compiled.ImportedFunctions())))

	return &WazeroModule{engine: e, compiled: compiled}, nil
}

// checkImports fails with MissingImportsError listing every function
// import the WASI host module does not provide.
func (e *WazeroEngine) checkImports(compiled wazero.CompiledModule) error {
	var provided map[string]api.FunctionDefinition
	if wasi := e.runtime.Module(WASIModuleName); wasi != nil {
		provided = wasi.ExportedFunctionDefinitions()
	}

	var missing []string
	for _, def := range compiled.ImportedFunctions() {
		moduleName, name, _ := def.Import()
		if moduleName == WASIModuleName {
			if _, ok := provided[name]; ok {
				continue
			}
		}
		missing = append(missing, moduleName+"#"+name)
	}
	if len(missing) > 0 {
		return errors.NewMissingImportsError(missing)
	}
	return nil
}

func (e *WazeroEngine) Close(ctx context.Context) error {
	return e.runtime.Close(ctx)
}

// InitWASI instantiates the WASI singleton for this engine's runtime.
// Safe for concurrent calls from multiple modules sharing the same engine.
func (e *WazeroEngine) InitWASI(ctx context.Context) error {
	if e.wasiInitDone.Load() {
		return nil
	}

	e.wasiInitMu.Lock()
	defer e.wasiInitMu.Unlock()

	if e.wasiInitDone.Load() {
		return nil
	}

	if e.runtime.Module(WASIModuleName) != nil {
		e.wasiInitDone.Store(true)
		return nil
	}

	if _, err := instantiateWASI(ctx, e.runtime); err != nil {
		if e.runtime.Module(WASIModuleName) == nil {
			return errors.Wrap(errors.PhaseLinking, errors.KindInstantiation, err, "instantiate WASI")
		}
	}

	e.wasiInitDone.Store(true)
	return nil
}

// WazeroModule is a compiled, validated module. It is immutable and safe
// for concurrent instantiation.
type WazeroModule struct {
	engine   *WazeroEngine
	compiled wazero.CompiledModule
}

// Engine returns the engine the module was compiled on
func (m *WazeroModule) Engine() *WazeroEngine {
	return m.engine
}

// ExportNames returns the names of all exported functions, sorted
func (m *WazeroModule) ExportNames() []string {
	defs := m.compiled.ExportedFunctions()
	names := make([]string, 0, len(defs))
	for name := range defs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// HasExport reports whether the module exports a function with this name
func (m *WazeroModule) HasExport(name string) bool {
	_, ok := m.compiled.ExportedFunctions()[name]
	return ok
}

// Describe reports, for each spec, whether the module satisfies it
func (m *WazeroModule) Describe(specs []ExportSpec) []ExportStatus {
	return describe(m.compiled, specs)
}

func describe(compiled wazero.CompiledModule, specs []ExportSpec) []ExportStatus {
	funcs := compiled.ExportedFunctions()
	mems := compiled.ExportedMemories()

	out := make([]ExportStatus, 0, len(specs))
	for _, spec := range specs {
		st := ExportStatus{Name: spec.Name, Want: spec.CoreSignature()}
		if spec.Memory {
			if _, ok := mems[spec.Name]; ok {
				st.Present = true
				st.Signature = st.Want
			}
		} else if def, ok := funcs[spec.Name]; ok {
			st.Present = true
			st.Signature = signature(def.ParamTypes(), def.ResultTypes())
		}
		out = append(out, st)
	}
	return out
}

// Instantiate creates an isolated instance with its own memory
func (m *WazeroModule) Instantiate(ctx context.Context, cfg *InstanceConfig) (*WazeroInstance, error) {
	if cfg == nil {
		cfg = &InstanceConfig{}
	}
	name := cfg.Name
	if name == "" {
		name = m.engine.NextInstanceName()
	}

	modConfig := wazero.NewModuleConfig().
		WithName(name).
		WithArgs(append([]string{name}, cfg.Args...)...).
		WithStartFunctions(cfg.StartFunctions...)

	keys := make([]string, 0, len(cfg.Env))
	for k := range cfg.Env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		modConfig = modConfig.WithEnv(k, cfg.Env[k])
	}
	if cfg.Stdout != nil {
		modConfig = modConfig.WithStdout(cfg.Stdout)
	}
	if cfg.Stderr != nil {
		modConfig = modConfig.WithStderr(cfg.Stderr)
	}
	if cfg.FSConfig != nil {
		modConfig = modConfig.WithFSConfig(cfg.FSConfig)
	}

	instance, err := m.engine.runtime.InstantiateModule(ctx, m.compiled, modConfig)
	if err != nil {
		return nil, errors.Instantiation(err)
	}

	inst := &WazeroInstance{
		module:    m,
		instance:  instance,
		name:      name,
		funcCache: make(map[string]api.Function),
	}
	if mem := instance.ExportedMemory(ExportMemory); mem != nil {
		inst.memory = NewWazeroMemory(mem)
	}
	return inst, nil
}

func (m *WazeroModule) Close(ctx context.Context) error {
	if m.compiled == nil {
		return nil
	}
	err := m.compiled.Close(ctx)
	m.compiled = nil
	return err
}

// WazeroInstance is a running WASM instance.
// It is NOT safe for concurrent use from multiple goroutines.
// Each goroutine should have its own Instance, or access must be synchronized externally.
type WazeroInstance struct {
	module    *WazeroModule
	instance  api.Module
	memory    *WazeroMemory
	funcCache map[string]api.Function
	name      string
}

// Name returns the instance name, also passed as argv[0]
func (i *WazeroInstance) Name() string {
	return i.name
}

// ExportedFunction returns an exported function, or nil if absent or closed
func (i *WazeroInstance) ExportedFunction(name string) api.Function {
	if i.instance == nil {
		return nil
	}
	if fn, ok := i.funcCache[name]; ok {
		return fn
	}
	fn := i.instance.ExportedFunction(name)
	if fn != nil {
		i.funcCache[name] = fn
	}
	return fn
}

// Memory returns the exported linear memory, or nil if none
func (i *WazeroInstance) Memory() *WazeroMemory {
	return i.memory
}

// Exited reports whether the module has shut itself down, as WASI
// proc_exit does. An exited instance cannot run any export.
func (i *WazeroInstance) Exited() bool {
	return i.instance == nil || i.instance.IsClosed()
}

// Global returns the value of an exported global
func (i *WazeroInstance) Global(name string) (uint64, bool) {
	if i.instance == nil {
		return 0, false
	}
	g := i.instance.ExportedGlobal(name)
	if g == nil {
		return 0, false
	}
	return g.Get(), true
}

// Call invokes an export with flat core values. A WASI proc_exit raised
// inside the call is returned unchanged as *sys.ExitError so the caller
// can interpret the exit code; any other failure is a trap.
func (i *WazeroInstance) Call(ctx context.Context, name string, params ...uint64) ([]uint64, error) {
	if i.instance == nil {
		return nil, errors.NotInitialized(errors.PhaseRuntime, "instance "+i.name)
	}
	fn := i.ExportedFunction(name)
	if fn == nil {
		return nil, errors.ExportMissing(name)
	}
	results, err := fn.Call(ctx, params...)
	if err != nil {
		var exitErr *sys.ExitError
		if stderrors.As(err, &exitErr) {
			return nil, exitErr
		}
		return nil, errors.Trap(name, err)
	}
	return results, nil
}

// Close releases the instance memory. Calling it again is a no-op.
func (i *WazeroInstance) Close(ctx context.Context) error {
	if i.instance == nil {
		return nil
	}
	err := i.instance.Close(ctx)
	i.instance = nil
	i.memory = nil
	i.funcCache = nil
	return err
}
