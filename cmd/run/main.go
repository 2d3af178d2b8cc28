package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/wippyai/wasm-pipeline/engine"
	"github.com/wippyai/wasm-pipeline/errors"
	"github.com/wippyai/wasm-pipeline/pipeline"
)

type listFlag []string

func (l *listFlag) String() string { return strings.Join(*l, ",") }

func (l *listFlag) Set(v string) error {
	*l = append(*l, v)
	return nil
}

func main() {
	var (
		inputs  listFlag
		outputs listFlag

		wasmFile    = flag.String("wasm", "", "Path to pipeline wasm file")
		configFile  = flag.String("config", "", "Run file (YAML); flags below are ignored when set")
		envVars     = flag.String("env", "", "Environment variables (KEY=VAL,KEY2=VAL2)")
		memPages    = flag.Uint("mem", 0, "Memory limit per instance in 64KiB pages (0 = default)")
		list        = flag.Bool("list", false, "Check the module's exports and exit")
		interactive = flag.Bool("i", false, "Interactive mode with TUI")
		verbose     = flag.Bool("v", false, "Debug logging")
	)
	flag.Var(&inputs, "in", "Input kind:value (repeatable), e.g. text:hello, binary:@in.bin, json:{\"a\":1}, binary-file:/data/in.bin")
	flag.Var(&outputs, "out", "Output kind[:path] (repeatable), e.g. json, binary-stream:out.bin, text-file:/data/out.txt")
	flag.Parse()

	if *wasmFile == "" && *configFile == "" {
		fmt.Fprintln(os.Stderr, "Usage: run -wasm <file.wasm> [-in kind:value]... [-out kind[:path]]... [-- module args]")
		fmt.Fprintln(os.Stderr, "       run -config <run.yaml>")
		fmt.Fprintln(os.Stderr, "       run -wasm <file.wasm> -list")
		fmt.Fprintln(os.Stderr, "       run -wasm <file.wasm> -i  (interactive mode)")
		os.Exit(1)
	}

	log := newLogger(*verbose)
	defer log.Sync()
	engine.SetLogger(log)
	pipeline.SetLogger(log)

	var (
		rf  *RunFile
		err error
	)
	if *configFile != "" {
		rf, err = LoadRunFile(*configFile)
	} else {
		rf, err = runFileFromFlags(*wasmFile, inputs, outputs, *envVars, uint32(*memPages), flag.Args())
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()

	if *list {
		ok, err := listExports(ctx, os.Stdout, rf.Module)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		if !ok {
			os.Exit(2)
		}
		return
	}

	if *interactive {
		if err := runInteractive(rf, log); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := run(ctx, rf, log, os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if status, ok := errors.StatusCode(err); ok && status > 0 && status < 256 {
			os.Exit(int(status))
		}
		os.Exit(1)
	}
}

func newLogger(verbose bool) *zap.Logger {
	if verbose {
		if l, err := zap.NewDevelopment(); err == nil {
			return l
		}
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	l, err := cfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return l
}

// runFileFromFlags builds the same description a run file would hold.
func runFileFromFlags(wasmFile string, inputs, outputs []string, envStr string, memPages uint32, args []string) (*RunFile, error) {
	rf := &RunFile{
		Module:           wasmFile,
		Args:             args,
		MemoryLimitPages: memPages,
	}

	if envStr != "" {
		rf.Env = make(map[string]string)
		for _, kv := range strings.Split(envStr, ",") {
			parts := strings.SplitN(kv, "=", 2)
			if len(parts) == 2 {
				rf.Env[parts[0]] = parts[1]
			}
		}
	}

	for _, s := range inputs {
		entry, err := parseInputFlag(s)
		if err != nil {
			return nil, err
		}
		rf.Inputs = append(rf.Inputs, entry)
	}
	for _, s := range outputs {
		entry, err := parseOutputFlag(s)
		if err != nil {
			return nil, err
		}
		rf.Outputs = append(rf.Outputs, entry)
	}

	if err := validate.Struct(rf); err != nil {
		return nil, fmt.Errorf("invalid flags: %w", err)
	}
	return rf, nil
}

// parseInputFlag parses kind:value. For memory kinds a value starting
// with @ names a host file to send.
func parseInputFlag(s string) (InputEntry, error) {
	kindStr, value, found := strings.Cut(s, ":")
	kind, ok := pipeline.ParseInterfaceType(kindStr)
	if !ok {
		return InputEntry{}, fmt.Errorf("input %q: unknown kind %q", s, kindStr)
	}
	entry := InputEntry{Kind: string(kind)}
	switch {
	case kind.IsFile():
		if !found || value == "" {
			return InputEntry{}, fmt.Errorf("input %q: %s requires a path", s, kind)
		}
		entry.Path = value
	case kind == pipeline.JSONObject:
		if value == "" {
			value = "{}"
		}
		if err := json.Unmarshal([]byte(value), &entry.JSON); err != nil {
			return InputEntry{}, fmt.Errorf("input %q: %w", s, err)
		}
	case strings.HasPrefix(value, "@"):
		entry.Path = value[1:]
	default:
		entry.Data = value
	}
	return entry, nil
}

func parseOutputFlag(s string) (OutputEntry, error) {
	kindStr, path, _ := strings.Cut(s, ":")
	kind, ok := pipeline.ParseInterfaceType(kindStr)
	if !ok {
		return OutputEntry{}, fmt.Errorf("output %q: unknown kind %q", s, kindStr)
	}
	if kind.IsFile() && path == "" {
		return OutputEntry{}, fmt.Errorf("output %q: %s requires a path", s, kind)
	}
	return OutputEntry{Kind: string(kind), Path: path}, nil
}

func run(ctx context.Context, rf *RunFile, log *zap.Logger, stdout, stderr io.Writer) error {
	inputs, err := rf.PipelineInputs()
	if err != nil {
		return err
	}

	p, err := pipeline.NewFromFile(ctx, rf.Module,
		pipeline.WithLogger(log),
		pipeline.WithMemoryLimitPages(rf.MemoryLimitPages),
		pipeline.WithEnv(rf.Env),
		pipeline.WithStdout(stdout),
		pipeline.WithStderr(stderr),
	)
	if err != nil {
		return err
	}
	defer p.Close(ctx)

	results, err := p.Run(ctx, rf.Args, rf.OutputSpecs(), inputs)
	if err != nil {
		return fmt.Errorf("run %s: %w", rf.Module, err)
	}
	return writeOutputs(stdout, results, rf.SaveTargets())
}

func writeOutputs(w io.Writer, results []pipeline.Output, targets []string) error {
	for i, out := range results {
		if i < len(targets) && targets[i] != "" {
			if err := saveOutput(targets[i], out); err != nil {
				return fmt.Errorf("save output %d: %w", i, err)
			}
			fmt.Fprintf(w, "[%d] %s -> %s\n", i, out.Type, targets[i])
			continue
		}
		fmt.Fprintf(w, "[%d] %s\n%s\n", i, out.Type, formatOutput(out))
	}
	return nil
}

func saveOutput(path string, out pipeline.Output) error {
	var data []byte
	switch out.Type {
	case pipeline.TextStream:
		data = []byte(out.Text)
	case pipeline.JSONObject:
		var err error
		if data, err = json.MarshalIndent(out.JSON, "", "  "); err != nil {
			return err
		}
	default:
		data = out.Data
	}
	return os.WriteFile(path, data, 0o644)
}

const previewBytes = 32

// formatOutput renders an output for display.
func formatOutput(out pipeline.Output) string {
	switch out.Type {
	case pipeline.TextStream:
		return out.Text
	case pipeline.BinaryStream:
		if len(out.Data) > previewBytes {
			return fmt.Sprintf("%d bytes: % x ...", len(out.Data), out.Data[:previewBytes])
		}
		return fmt.Sprintf("%d bytes: % x", len(out.Data), out.Data)
	case pipeline.JSONObject:
		data, err := json.MarshalIndent(out.JSON, "", "  ")
		if err != nil {
			return fmt.Sprintf("%v", out.JSON)
		}
		return string(data)
	case pipeline.TextFile, pipeline.BinaryFile:
		return out.Path
	}
	return ""
}

// listExports prints the export table check. It compiles without
// validation so modules with gaps can still be inspected.
func listExports(ctx context.Context, w io.Writer, wasmFile string) (bool, error) {
	data, err := os.ReadFile(wasmFile)
	if err != nil {
		return false, fmt.Errorf("read file: %w", err)
	}

	eng, err := engine.NewWazeroEngine(ctx)
	if err != nil {
		return false, err
	}
	defer eng.Close(ctx)

	mod, err := eng.LoadModule(ctx, data, nil)
	if err != nil {
		return false, err
	}
	defer mod.Close(ctx)

	fmt.Fprintf(w, "Module: %s\n", wasmFile)
	fmt.Fprintf(w, "Exported functions: %d\n\n", len(mod.ExportNames()))

	ok := true
	for _, st := range mod.Describe(engine.PipelineExports) {
		fmt.Fprintf(w, "  %s\n", formatStatus(st))
		if !st.OK() {
			ok = false
		}
	}
	if mod.HasExport(engine.ExportInitialize) {
		fmt.Fprintf(w, "\n  initializer: %s\n", engine.ExportInitialize)
	}
	return ok, nil
}

func formatStatus(st engine.ExportStatus) string {
	switch {
	case !st.Present:
		return fmt.Sprintf("✗ %-30s missing", st.Name)
	case !st.OK():
		return fmt.Sprintf("✗ %-30s %s, want %s", st.Name, st.Signature, st.Want)
	default:
		return fmt.Sprintf("✓ %-30s %s", st.Name, st.Signature)
	}
}
