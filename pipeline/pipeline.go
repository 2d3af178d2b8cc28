package pipeline

import (
	"context"
	"os"
	"strconv"

	"go.uber.org/zap"

	"github.com/wippyai/wasm-pipeline/engine"
	"github.com/wippyai/wasm-pipeline/errors"
)

// Pipeline is a compiled pipeline module. It is safe for concurrent use:
// every Run gets its own instance and memory.
type Pipeline struct {
	engine     *engine.WazeroEngine
	module     *engine.WazeroModule
	log        *zap.Logger
	opts       options
	ownsEngine bool
}

// New compiles wasmBytes and validates it against the pipeline export
// table. A module missing any required export is rejected here, before
// any run.
func New(ctx context.Context, wasmBytes []byte, opts ...Option) (*Pipeline, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	log := o.logger
	if log == nil {
		log = Logger()
	}

	p := &Pipeline{
		engine: o.engine,
		log:    log,
		opts:   o,
	}
	if p.engine == nil {
		cfg := o.engineConfig
		eng, err := engine.NewWazeroEngineWithConfig(ctx, &cfg)
		if err != nil {
			return nil, errors.Load("create engine", err)
		}
		p.engine = eng
		p.ownsEngine = true
	}

	mod, err := p.engine.LoadModule(ctx, wasmBytes, engine.PipelineExports)
	if err != nil {
		if p.ownsEngine {
			_ = p.engine.Close(ctx)
		}
		return nil, err
	}
	p.module = mod

	log.Debug("pipeline loaded", zap.Int("bytes", len(wasmBytes)))
	return p, nil
}

// NewFromFile reads a module from path and compiles it with New.
func NewFromFile(ctx context.Context, path string, opts ...Option) (*Pipeline, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Load("read module "+path, err)
	}
	return New(ctx, data, opts...)
}

// Run executes the module once. Inputs are lowered by position, the
// entry point runs, and one Output is returned per OutputSpec in
// declaration order. The instance is released on every return path.
func (p *Pipeline) Run(ctx context.Context, args []string, outputs []OutputSpec, inputs []Input) ([]Output, error) {
	if p.module == nil {
		return nil, errors.NotInitialized(errors.PhaseRuntime, "pipeline")
	}
	if err := validateInputs(inputs); err != nil {
		return nil, err
	}
	if err := validateOutputs(outputs); err != nil {
		return nil, err
	}

	dirs, err := ComputePreopens(inputs, outputs)
	if err != nil {
		return nil, err
	}
	if err := checkPreopens(dirs); err != nil {
		return nil, err
	}

	s, err := openSession(ctx, p.module, &engine.InstanceConfig{
		Args:     args,
		Env:      p.opts.env,
		Stdout:   p.opts.stdout,
		Stderr:   p.opts.stderr,
		FSConfig: fsConfig(dirs),
	}, p.log)
	if err != nil {
		return nil, err
	}
	name := s.name()
	defer func() {
		if cerr := s.Close(ctx); cerr != nil {
			p.log.Warn("close session", zap.String("instance", name), zap.Error(cerr))
		}
	}()

	if len(dirs) > 0 {
		p.log.Debug("preopens", zap.String("instance", name), zap.Strings("dirs", dirs))
	}

	if err := s.lowerInputs(ctx, inputs); err != nil {
		s.fail()
		return nil, err
	}

	if _, err := s.delayedStart(ctx); err != nil {
		return nil, err
	}

	results := make([]Output, 0, len(outputs))
	for i, spec := range outputs {
		out, err := s.liftOutput(ctx, uint32(i), spec)
		if err != nil {
			s.fail()
			return nil, withPath(err, "outputs", i)
		}
		results = append(results, out)
	}

	if err := s.finish(ctx); err != nil {
		return nil, err
	}
	return results, nil
}

// Exports reports, for each export of the calling convention, whether
// the module provides it with the expected signature.
func (p *Pipeline) Exports() []engine.ExportStatus {
	if p.module == nil {
		return nil
	}
	return p.module.Describe(engine.PipelineExports)
}

// Engine returns the engine the module is compiled on
func (p *Pipeline) Engine() *engine.WazeroEngine {
	return p.engine
}

// Close releases the compiled module, and the engine if the pipeline
// created it. Runs in progress must finish first.
func (p *Pipeline) Close(ctx context.Context) error {
	var firstErr error
	if p.module != nil {
		if err := p.module.Close(ctx); err != nil {
			firstErr = err
		}
		p.module = nil
	}
	if p.ownsEngine && p.engine != nil {
		if err := p.engine.Close(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
		p.engine = nil
	}
	return firstErr
}

func validateInputs(inputs []Input) error {
	for i, in := range inputs {
		switch in.Type {
		case BinaryArray, BinaryStream, TextStream, JSONObject, TextFile, BinaryFile:
		default:
			return unsupportedInput(i, in.Type)
		}
	}
	return nil
}

// validateOutputs refuses undecodable kinds before the module runs.
func validateOutputs(outputs []OutputSpec) error {
	for i, out := range outputs {
		switch out.Type {
		case TextStream, BinaryStream, JSONObject, TextFile, BinaryFile:
		default:
			err := errors.UnsupportedOutputKind(string(out.Type))
			err.Path = []string{"outputs", strconv.Itoa(i)}
			return err
		}
	}
	return nil
}
