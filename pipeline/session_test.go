package pipeline

import (
	"bytes"
	"context"
	stderrors "errors"
	"testing"

	"go.uber.org/zap"

	"github.com/wippyai/wasm-pipeline/engine"
	"github.com/wippyai/wasm-pipeline/errors"
	"github.com/wippyai/wasm-pipeline/internal/wasmbin"
)

func newTestSession(t *testing.T, opts wasmbin.PipelineOptions) *session {
	t.Helper()
	ctx := context.Background()

	eng, err := engine.NewWazeroEngine(ctx)
	if err != nil {
		t.Fatalf("NewWazeroEngine failed: %v", err)
	}
	t.Cleanup(func() { eng.Close(ctx) })

	mod, err := eng.LoadModule(ctx, wasmbin.Pipeline(opts), engine.PipelineExports)
	if err != nil {
		t.Fatalf("LoadModule failed: %v", err)
	}

	s, err := openSession(ctx, mod, &engine.InstanceConfig{}, zap.NewNop())
	if err != nil {
		t.Fatalf("openSession failed: %v", err)
	}
	t.Cleanup(func() { s.Close(ctx) })
	return s
}

func global(t *testing.T, s *session, name string) uint64 {
	t.Helper()
	v, ok := s.inst.Global(name)
	if !ok {
		t.Fatalf("global %q not exported", name)
	}
	return v
}

func TestSession_LowerArrayRoundTrip(t *testing.T) {
	ctx := context.Background()

	inputs := [][]byte{
		{0x00},
		[]byte("hello pipeline"),
		bytes.Repeat([]byte{0xAB, 0xCD}, 1000),
		{0xFF, 0x00, 0xFF},
	}

	for i, data := range inputs {
		s := newTestSession(t, wasmbin.PipelineOptions{})
		index := uint32(i % (wasmbin.MaxIndex + 1))

		ptr, err := s.lowerArray(ctx, index, 0, data)
		if err != nil {
			t.Fatalf("lowerArray(%d) failed: %v", i, err)
		}
		if ptr == 0 {
			t.Errorf("lowerArray(%d) returned null pointer for non-empty data", i)
		}

		got, err := s.liftArray(ctx, index, 0)
		if err != nil {
			t.Fatalf("liftArray(%d) failed: %v", i, err)
		}
		if !bytes.Equal(got, data) {
			t.Errorf("round trip %d: got %d bytes, want %d", i, len(got), len(data))
		}
	}
}

func TestSession_LowerArrayEmpty(t *testing.T) {
	ctx := context.Background()
	s := newTestSession(t, wasmbin.PipelineOptions{})

	for _, data := range [][]byte{nil, {}} {
		ptr, err := s.lowerArray(ctx, 0, 0, data)
		if err != nil {
			t.Fatalf("lowerArray failed: %v", err)
		}
		if ptr != 0 {
			t.Errorf("ptr = %d, want 0", ptr)
		}
	}
	if calls := global(t, s, wasmbin.GlobalAllocCalls); calls != 0 {
		t.Errorf("alloc calls = %d, want 0", calls)
	}
}

func TestSession_LowerArraySubIndex(t *testing.T) {
	ctx := context.Background()
	s := newTestSession(t, wasmbin.PipelineOptions{})

	inputs := []Input{TextStreamInput(""), BinaryArrayPart([]byte{1, 2}, 7)}
	if err := s.lowerInputs(ctx, inputs); err != nil {
		t.Fatalf("lowerInputs failed: %v", err)
	}
	if sub := global(t, s, wasmbin.GlobalLastSubIndex); sub != 7 {
		t.Errorf("sub index seen by module = %d, want 7", sub)
	}
}

func TestSession_LowerJSON(t *testing.T) {
	ctx := context.Background()
	s := newTestSession(t, wasmbin.PipelineOptions{})

	in := map[string]any{"name": "brain", "spacing": []any{0.5, 0.5, 1.0}, "labels": 3.0}
	if err := s.lowerJSON(ctx, 2, in); err != nil {
		t.Fatalf("lowerJSON failed: %v", err)
	}

	got, err := s.liftJSON(ctx, 2)
	if err != nil {
		t.Fatalf("liftJSON failed: %v", err)
	}
	if got["name"] != "brain" || got["labels"] != 3.0 {
		t.Errorf("liftJSON = %v", got)
	}
	spacing, ok := got["spacing"].([]any)
	if !ok || len(spacing) != 3 {
		t.Errorf("spacing = %v", got["spacing"])
	}
}

func TestSession_LowerJSONNil(t *testing.T) {
	ctx := context.Background()
	s := newTestSession(t, wasmbin.PipelineOptions{})

	if err := s.lowerJSON(ctx, 0, nil); err != nil {
		t.Fatalf("lowerJSON failed: %v", err)
	}
	got, err := s.liftJSON(ctx, 0)
	if err != nil {
		t.Fatalf("liftJSON failed: %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Errorf("nil map should lower as {}, got %v", got)
	}
}

func TestSession_LowerJSONUnencodable(t *testing.T) {
	ctx := context.Background()
	s := newTestSession(t, wasmbin.PipelineOptions{})

	err := s.lowerJSON(ctx, 0, map[string]any{"f": func() {}})
	var e *errors.Error
	if !stderrors.As(err, &e) || e.Phase != errors.PhaseEncode || e.Kind != errors.KindInvalidInput {
		t.Fatalf("error = %v, want encode invalid_input error", err)
	}
	if calls := global(t, s, wasmbin.GlobalAllocCalls); calls != 0 {
		t.Errorf("alloc calls = %d, want 0", calls)
	}
}

func TestSession_LiftOutOfBounds(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name string
		opts wasmbin.PipelineOptions
	}{
		{"address past end", wasmbin.PipelineOptions{ArrayAddress: wasmbin.Int32(wasmbin.PageSize + 8), ArraySize: wasmbin.Int32(1)}},
		{"range crosses end", wasmbin.PipelineOptions{ArrayAddress: wasmbin.Int32(wasmbin.PageSize - 4), ArraySize: wasmbin.Int32(8)}},
		{"negative size", wasmbin.PipelineOptions{ArrayAddress: wasmbin.Int32(16), ArraySize: wasmbin.Int32(-1)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestSession(t, tt.opts)
			_, err := s.liftOutput(ctx, 0, OutputSpec{Type: BinaryStream})
			if !stderrors.Is(err, errors.ErrOutOfBounds) {
				t.Fatalf("error = %v, want ErrOutOfBounds", err)
			}
		})
	}
}

func TestSession_LiftKinds(t *testing.T) {
	ctx := context.Background()
	s := newTestSession(t, wasmbin.PipelineOptions{
		ArrayOutput: []byte("héllo"),
		JSONOutput:  `{"count": 3}`,
	})

	text, err := s.liftOutput(ctx, 0, OutputSpec{Type: TextStream})
	if err != nil || text.Text != "héllo" {
		t.Errorf("TextStream = %q, %v", text.Text, err)
	}

	bin, err := s.liftOutput(ctx, 0, OutputSpec{Type: BinaryStream})
	if err != nil || !bytes.Equal(bin.Data, []byte("héllo")) {
		t.Errorf("BinaryStream = %x, %v", bin.Data, err)
	}

	js, err := s.liftOutput(ctx, 0, OutputSpec{Type: JSONObject})
	if err != nil || js.JSON["count"] != 3.0 {
		t.Errorf("JSONObject = %v, %v", js.JSON, err)
	}

	file, err := s.liftOutput(ctx, 0, OutputSpec{Type: BinaryFile, Path: "/out/x.bin"})
	if err != nil || file.Path != "/out/x.bin" {
		t.Errorf("BinaryFile = %+v, %v", file, err)
	}

	for _, kind := range []InterfaceType{Image, Mesh, PolyData, "Unknown"} {
		_, err := s.liftOutput(ctx, 0, OutputSpec{Type: kind})
		if !stderrors.Is(err, errors.ErrUnsupportedOutputKind) {
			t.Errorf("%s: error = %v, want ErrUnsupportedOutputKind", kind, err)
		}
	}
}

func TestSession_LiftInvalidText(t *testing.T) {
	ctx := context.Background()
	s := newTestSession(t, wasmbin.PipelineOptions{ArrayOutput: []byte{'a', 0xFF, 'b'}})

	out, err := s.liftOutput(ctx, 0, OutputSpec{Type: TextStream})
	if err != nil {
		t.Fatalf("liftOutput failed: %v", err)
	}
	if out.Text != "a\uFFFDb" {
		t.Errorf("Text = %q", out.Text)
	}
}

func TestSession_LiftInvalidJSON(t *testing.T) {
	ctx := context.Background()
	s := newTestSession(t, wasmbin.PipelineOptions{JSONOutput: `{"count": `})

	_, err := s.liftOutput(ctx, 0, OutputSpec{Type: JSONObject})
	var e *errors.Error
	if !stderrors.As(err, &e) || e.Phase != errors.PhaseDecode || e.Kind != errors.KindInvalidData {
		t.Errorf("error = %v, want decode invalid_data", err)
	}
}

func TestSession_States(t *testing.T) {
	ctx := context.Background()

	t.Run("completed", func(t *testing.T) {
		s := newTestSession(t, wasmbin.PipelineOptions{})
		if s.state != stateInstantiated {
			t.Fatalf("state = %s, want instantiated", s.state)
		}
		if _, err := s.delayedStart(ctx); err != nil {
			t.Fatalf("delayedStart failed: %v", err)
		}
		if s.state != stateCompleted {
			t.Errorf("state = %s, want completed", s.state)
		}
		if err := s.finish(ctx); err != nil {
			t.Fatalf("finish failed: %v", err)
		}
		if v := global(t, s, wasmbin.GlobalFreeAllCalls); v != 1 {
			t.Errorf("free_all calls = %d, want 1", v)
		}
		if v := global(t, s, wasmbin.GlobalExitCode); v != 0 {
			t.Errorf("exit code = %d, want 0", v)
		}
	})

	t.Run("failed", func(t *testing.T) {
		s := newTestSession(t, wasmbin.PipelineOptions{Status: 4})
		status, err := s.delayedStart(ctx)
		if status != 4 {
			t.Errorf("status = %d, want 4", status)
		}
		if code, ok := errors.StatusCode(err); !ok || code != 4 {
			t.Errorf("StatusCode = %d, %v", code, ok)
		}
		if s.state != stateFailed {
			t.Errorf("state = %s, want failed", s.state)
		}
	})

	t.Run("proc_exit", func(t *testing.T) {
		s := newTestSession(t, wasmbin.PipelineOptions{ProcExit: true, Status: 9})
		_, err := s.delayedStart(ctx)
		if code, ok := errors.StatusCode(err); !ok || code != 9 {
			t.Errorf("StatusCode = %d, %v (err %v)", code, ok, err)
		}
	})

	t.Run("proc_exit zero", func(t *testing.T) {
		s := newTestSession(t, wasmbin.PipelineOptions{ProcExit: true})
		if _, err := s.delayedStart(ctx); err != nil {
			t.Errorf("delayedStart failed: %v", err)
		}
		if s.state != stateCompleted {
			t.Errorf("state = %s, want completed", s.state)
		}
		if !s.exited() {
			t.Fatal("instance should be closed by proc_exit")
		}

		// nothing can be read back from an exited module
		if _, err := s.liftOutput(ctx, 0, OutputSpec{Type: BinaryStream}); !stderrors.Is(err, errors.ErrExited) {
			t.Errorf("liftOutput error = %v, want ErrExited", err)
		}
		if _, err := s.call(ctx, engine.ExportOutputArraySize, 0, 0, 0); !stderrors.Is(err, errors.ErrExited) {
			t.Errorf("call error = %v, want ErrExited", err)
		}
		out, err := s.liftOutput(ctx, 1, OutputSpec{Type: TextFile, Path: "/out/a.txt"})
		if err != nil || out.Path != "/out/a.txt" {
			t.Errorf("file output = %+v, %v", out, err)
		}
		if err := s.finish(ctx); err != nil {
			t.Errorf("finish after exit failed: %v", err)
		}
	})

	t.Run("trap", func(t *testing.T) {
		s := newTestSession(t, wasmbin.PipelineOptions{Trap: true})
		_, err := s.delayedStart(ctx)
		var e *errors.Error
		if !stderrors.As(err, &e) || e.Kind != errors.KindTrap {
			t.Errorf("error = %v, want trap", err)
		}
		if s.state != stateFailed {
			t.Errorf("state = %s, want failed", s.state)
		}
	})

	t.Run("close is idempotent", func(t *testing.T) {
		s := newTestSession(t, wasmbin.PipelineOptions{Status: 1})
		_, _ = s.delayedStart(ctx)
		if err := s.Close(ctx); err != nil {
			t.Fatalf("Close failed: %v", err)
		}
		if err := s.Close(ctx); err != nil {
			t.Errorf("second Close failed: %v", err)
		}
		if s.state != stateClosed {
			t.Errorf("state = %s, want closed", s.state)
		}
		if s.state.String() != "closed" {
			t.Errorf("String() = %q", s.state.String())
		}
	})
}

func TestOpenSession_InitializeRuns(t *testing.T) {
	s := newTestSession(t, wasmbin.PipelineOptions{Initialize: true, TrappingStart: true})
	if v := global(t, s, wasmbin.GlobalInitialized); v != 1 {
		t.Errorf("initialized = %d, want 1", v)
	}
}

func TestOpenSession_MissingExport(t *testing.T) {
	ctx := context.Background()

	eng, err := engine.NewWazeroEngine(ctx)
	if err != nil {
		t.Fatalf("NewWazeroEngine failed: %v", err)
	}
	defer eng.Close(ctx)

	// validated against an empty table, so the gap surfaces at open
	mod, err := eng.LoadModule(ctx, wasmbin.Pipeline(wasmbin.PipelineOptions{Omit: engine.ExportOutputJSONSize}), nil)
	if err != nil {
		t.Fatalf("LoadModule failed: %v", err)
	}

	_, err = openSession(ctx, mod, &engine.InstanceConfig{}, zap.NewNop())
	if !stderrors.Is(err, errors.ErrExportMissing) {
		t.Fatalf("error = %v, want ErrExportMissing", err)
	}
	var e *errors.Error
	if stderrors.As(err, &e) && e.Symbol != engine.ExportOutputJSONSize {
		t.Errorf("Symbol = %q", e.Symbol)
	}
}
