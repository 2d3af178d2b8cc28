package pipeline

import (
	"context"
	stderrors "errors"

	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/sys"
	"go.uber.org/zap"

	"github.com/wippyai/wasm-pipeline/engine"
	"github.com/wippyai/wasm-pipeline/errors"
)

type sessionState int

const (
	stateCreated sessionState = iota
	stateInstantiated
	stateRunning
	stateCompleted
	stateFailed
	stateClosed
)

func (s sessionState) String() string {
	switch s {
	case stateCreated:
		return "created"
	case stateInstantiated:
		return "instantiated"
	case stateRunning:
		return "running"
	case stateCompleted:
		return "completed"
	case stateFailed:
		return "failed"
	case stateClosed:
		return "closed"
	}
	return "unknown"
}

// session is one instantiation bound to one run. It is used by a single
// goroutine and must be closed on every path.
type session struct {
	inst  *engine.WazeroInstance
	mem   *engine.WazeroMemory
	log   *zap.Logger
	state sessionState
}

// openSession instantiates the module and resolves every export of the
// calling convention. The optional _initialize export runs as part of
// instantiation; _start never does.
func openSession(ctx context.Context, mod *engine.WazeroModule, cfg *engine.InstanceConfig, log *zap.Logger) (*session, error) {
	s := &session{log: log, state: stateCreated}

	cfg.StartFunctions = []string{engine.ExportInitialize}
	inst, err := mod.Instantiate(ctx, cfg)
	if err != nil {
		return nil, err
	}
	s.inst = inst
	s.state = stateInstantiated

	for _, spec := range engine.PipelineExports {
		if spec.Memory {
			if inst.Memory() == nil {
				s.Close(ctx)
				return nil, errors.ExportMissing(spec.Name)
			}
			continue
		}
		if inst.ExportedFunction(spec.Name) == nil {
			s.Close(ctx)
			return nil, errors.ExportMissing(spec.Name)
		}
	}
	s.mem = inst.Memory()

	log.Debug("session opened", zap.String("instance", inst.Name()))
	return s, nil
}

func (s *session) name() string {
	if s.inst == nil {
		return ""
	}
	return s.inst.Name()
}

// call invokes an export whose parameters and result are all i32. Only
// the entry point may exit; a proc_exit here, even with code 0, leaves
// the call without a result and is an error.
func (s *session) call(ctx context.Context, name string, params ...uint32) (uint32, error) {
	stack := make([]uint64, len(params))
	for i, p := range params {
		stack[i] = api.EncodeU32(p)
	}
	results, err := s.inst.Call(ctx, name, stack...)
	if err != nil {
		if err = interpretExit(ctx, name, err); err == nil {
			err = errors.Exited(name, 0)
		}
		return 0, err
	}
	if len(results) == 0 {
		return 0, nil
	}
	return api.DecodeU32(results[0]), nil
}

// interpretExit converts a WASI proc_exit into the status it carries.
// Exit code 0 is success; a context interruption is a trap.
func interpretExit(ctx context.Context, name string, err error) error {
	var exitErr *sys.ExitError
	if !stderrors.As(err, &exitErr) {
		return err
	}
	switch code := exitErr.ExitCode(); code {
	case 0:
		return nil
	case sys.ExitCodeContextCanceled, sys.ExitCodeDeadlineExceeded:
		cause := ctx.Err()
		if cause == nil {
			cause = err
		}
		return errors.Trap(name, cause)
	default:
		return errors.Execution(int32(code))
	}
}

// delayedStart runs the pipeline body and maps a non-zero status to an
// execution error.
func (s *session) delayedStart(ctx context.Context) (int32, error) {
	s.state = stateRunning

	var status int32
	results, err := s.inst.Call(ctx, engine.ExportDelayedStart)
	if err != nil {
		if err = interpretExit(ctx, engine.ExportDelayedStart, err); err != nil {
			s.state = stateFailed
			if code, ok := errors.StatusCode(err); ok {
				s.log.Debug("entry point exited", zap.String("instance", s.name()), zap.Int32("status", code))
			}
			return 0, err
		}
	} else if len(results) > 0 {
		status = api.DecodeI32(results[0])
	}

	s.log.Debug("entry point returned", zap.String("instance", s.name()), zap.Int32("status", status))

	if status != 0 {
		s.state = stateFailed
		return status, errors.Execution(status)
	}
	s.state = stateCompleted
	return 0, nil
}

// finish releases module-side allocations and runs the module's exit
// path. Lifted outputs are copies, so they survive the release. A module
// that already exited has nothing left to release.
func (s *session) finish(ctx context.Context) error {
	if s.exited() {
		s.log.Debug("module exited in entry point, teardown skipped", zap.String("instance", s.name()))
		return nil
	}
	if _, err := s.call(ctx, engine.ExportFreeAll); err != nil {
		s.state = stateFailed
		return err
	}
	if _, err := s.call(ctx, engine.ExportDelayedExit, 0); err != nil {
		s.state = stateFailed
		return err
	}
	return nil
}

// exited reports whether the module shut itself down in the entry point.
func (s *session) exited() bool {
	return s.inst != nil && s.inst.Exited()
}

func (s *session) fail() {
	if s.state != stateClosed {
		s.state = stateFailed
	}
}

// Close releases the instance. Calling it again is a no-op.
func (s *session) Close(ctx context.Context) error {
	if s.state == stateClosed {
		return nil
	}
	prev := s.state
	s.state = stateClosed
	if s.inst == nil {
		return nil
	}
	name := s.inst.Name()
	err := s.inst.Close(ctx)
	s.inst = nil
	s.mem = nil
	s.log.Debug("session closed", zap.String("instance", name), zap.Stringer("from", prev))
	return err
}
