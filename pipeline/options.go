package pipeline

import (
	"io"

	"go.uber.org/zap"

	"github.com/wippyai/wasm-pipeline/engine"
)

// Option configures a Pipeline
type Option func(*options)

type options struct {
	engine       *engine.WazeroEngine
	engineConfig engine.Config
	logger       *zap.Logger
	stdout       io.Writer
	stderr       io.Writer
	env          map[string]string
}

// WithEngine compiles the module on a shared engine. The engine is not
// closed by Pipeline.Close and its config takes precedence over
// WithMemoryLimitPages and WithCloseOnContextDone.
func WithEngine(e *engine.WazeroEngine) Option {
	return func(o *options) {
		o.engine = e
	}
}

// WithMemoryLimitPages caps each instance's memory, in 64KiB pages.
func WithMemoryLimitPages(pages uint32) Option {
	return func(o *options) {
		o.engineConfig.MemoryLimitPages = pages
	}
}

// WithCloseOnContextDone lets a cancelled context interrupt a running module.
func WithCloseOnContextDone(enabled bool) Option {
	return func(o *options) {
		o.engineConfig.CloseOnContextDone = enabled
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithStdout receives the module's standard output. Default discards it.
func WithStdout(w io.Writer) Option {
	return func(o *options) {
		o.stdout = w
	}
}

// WithStderr receives the module's standard error. Default discards it.
func WithStderr(w io.Writer) Option {
	return func(o *options) {
		o.stderr = w
	}
}

// WithEnv sets environment variables visible to the module.
func WithEnv(env map[string]string) Option {
	return func(o *options) {
		o.env = env
	}
}
