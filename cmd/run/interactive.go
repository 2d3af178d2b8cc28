package main

import (
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/wippyai/wasm-pipeline/engine"
	"github.com/wippyai/wasm-pipeline/pipeline"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	funcStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	typeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	resultStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#90EE90"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

type modelState int

const (
	stateLoading modelState = iota
	stateReady
	stateEditArgs
	stateRunning
	stateShowResult
)

type interactiveModel struct {
	err      error
	log      *zap.Logger
	rf       *RunFile
	pipeline *pipeline.Pipeline
	statuses []engine.ExportStatus
	results  []pipeline.Output
	stdout   string
	output   *outputSink
	args     textinput.Model
	runs     int
	state    modelState
}

type loadedMsg struct {
	err      error
	pipeline *pipeline.Pipeline
	statuses []engine.ExportStatus
}

type runResultMsg struct {
	err     error
	results []pipeline.Output
	stdout  string
}

func newInteractiveModel(rf *RunFile, log *zap.Logger) *interactiveModel {
	ti := textinput.New()
	ti.Prompt = "args: "
	ti.Placeholder = "module arguments"
	ti.Width = 60
	ti.SetValue(strings.Join(rf.Args, " "))

	return &interactiveModel{
		rf:     rf,
		log:    log,
		args:   ti,
		output: &outputSink{},
		state:  stateLoading,
	}
}

func (m *interactiveModel) Init() tea.Cmd {
	return m.loadPipeline
}

func (m *interactiveModel) loadPipeline() tea.Msg {
	ctx := context.Background()

	p, err := pipeline.NewFromFile(ctx, m.rf.Module,
		pipeline.WithLogger(m.log),
		pipeline.WithMemoryLimitPages(m.rf.MemoryLimitPages),
		pipeline.WithEnv(m.rf.Env),
		// module output is shown in the result view, not written over the TUI
		pipeline.WithStdout(m.output),
		pipeline.WithStderr(m.output),
	)
	if err != nil {
		return loadedMsg{err: err}
	}
	return loadedMsg{pipeline: p, statuses: p.Exports()}
}

// runCmd snapshots the run parameters on the UI goroutine. The returned
// command writes module output only to its own buffer.
func (m *interactiveModel) runCmd() tea.Cmd {
	p := m.pipeline
	rf := m.rf
	sink := m.output
	args := strings.Fields(m.args.Value())

	return func() tea.Msg {
		ctx := context.Background()

		if p == nil {
			return runResultMsg{err: stderrors.New("pipeline not loaded")}
		}
		inputs, err := rf.PipelineInputs()
		if err != nil {
			return runResultMsg{err: err}
		}

		var buf bytes.Buffer
		sink.swap(&buf)
		results, err := p.Run(ctx, args, rf.OutputSpecs(), inputs)
		sink.swap(nil)
		return runResultMsg{err: err, results: results, stdout: buf.String()}
	}
}

// outputSink forwards module stdout and stderr to the buffer of the run
// in flight and drops anything written outside a run.
type outputSink struct {
	mu  sync.Mutex
	buf *bytes.Buffer
}

func (s *outputSink) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.buf == nil {
		return len(p), nil
	}
	return s.buf.Write(p)
}

func (s *outputSink) swap(buf *bytes.Buffer) {
	s.mu.Lock()
	s.buf = buf
	s.mu.Unlock()
}

func (m *interactiveModel) close() {
	if m.pipeline != nil {
		m.pipeline.Close(context.Background())
		m.pipeline = nil
	}
}

func (m *interactiveModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if m.state == stateEditArgs {
			switch msg.String() {
			case "enter", "esc":
				m.args.Blur()
				m.state = stateReady
				return m, nil
			case "ctrl+c":
				m.close()
				return m, tea.Quit
			}
			var cmd tea.Cmd
			m.args, cmd = m.args.Update(msg)
			return m, cmd
		}

		switch msg.String() {
		case "ctrl+c", "q":
			m.close()
			return m, tea.Quit

		case "enter", "r":
			switch m.state {
			case stateReady:
				m.state = stateRunning
				return m, m.runCmd()
			case stateShowResult:
				m.state = stateReady
				m.results = nil
				m.err = nil
			}

		case "e":
			if m.state == stateReady {
				m.state = stateEditArgs
				return m, m.args.Focus()
			}

		case "esc":
			if m.state == stateShowResult {
				m.state = stateReady
				m.results = nil
				m.err = nil
			}
		}

	case loadedMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.pipeline = msg.pipeline
		m.statuses = msg.statuses
		m.state = stateReady

	case runResultMsg:
		m.runs++
		m.results = msg.results
		m.stdout = msg.stdout
		m.err = msg.err
		m.state = stateShowResult
	}

	return m, nil
}

func (m *interactiveModel) View() string {
	if m.err != nil && m.state == stateLoading {
		return errorStyle.Render(fmt.Sprintf("Error: %v\n\nPress q to quit.", m.err))
	}
	if m.state == stateLoading {
		return "Loading pipeline..."
	}

	var b strings.Builder

	b.WriteString(titleStyle.Render("Pipeline Runner"))
	b.WriteString(" ")
	b.WriteString(m.rf.Module)
	b.WriteString("\n\n")

	switch m.state {
	case stateReady, stateEditArgs, stateRunning:
		b.WriteString("Exports:\n")
		for _, st := range m.statuses {
			b.WriteString("  ")
			if st.OK() {
				b.WriteString(funcStyle.Render(formatStatus(st)))
			} else {
				b.WriteString(errorStyle.Render(formatStatus(st)))
			}
			b.WriteString("\n")
		}

		b.WriteString("\nInputs:\n")
		if len(m.rf.Inputs) == 0 {
			b.WriteString(helpStyle.Render("  none") + "\n")
		}
		for i, in := range m.rf.Inputs {
			b.WriteString(fmt.Sprintf("  [%d] %s %s\n", i, typeStyle.Render(in.Kind), describeInput(in)))
		}

		b.WriteString("\nOutputs:\n")
		if len(m.rf.Outputs) == 0 {
			b.WriteString(helpStyle.Render("  none") + "\n")
		}
		for i, out := range m.rf.Outputs {
			b.WriteString(fmt.Sprintf("  [%d] %s %s\n", i, typeStyle.Render(out.Kind), out.Path))
		}

		b.WriteString("\n")
		b.WriteString(m.args.View())
		b.WriteString("\n\n")

		switch m.state {
		case stateRunning:
			b.WriteString(helpStyle.Render("running..."))
		case stateEditArgs:
			b.WriteString(helpStyle.Render("enter done • esc done"))
		default:
			b.WriteString(helpStyle.Render("enter run • e edit args • q quit"))
		}

	case stateShowResult:
		b.WriteString(fmt.Sprintf("Run %d:\n\n", m.runs))
		if m.err != nil {
			b.WriteString(errorStyle.Render(fmt.Sprintf("Error: %v", m.err)))
		} else {
			for i, out := range m.results {
				b.WriteString(fmt.Sprintf("[%d] %s\n", i, typeStyle.Render(string(out.Type))))
				b.WriteString(resultStyle.Render(formatOutput(out)))
				b.WriteString("\n")
			}
			if len(m.results) == 0 {
				b.WriteString(resultStyle.Render("ok, no outputs declared"))
			}
		}
		if m.stdout != "" {
			b.WriteString("\n--- stdout ---\n")
			b.WriteString(m.stdout)
		}
		b.WriteString("\n\n")
		b.WriteString(helpStyle.Render("enter continue • q quit"))
	}

	return b.String()
}

func describeInput(in InputEntry) string {
	switch {
	case in.Path != "":
		return in.Path
	case in.JSON != nil:
		return fmt.Sprintf("%v", in.JSON)
	case len(in.Data) > 40:
		return fmt.Sprintf("%q...", in.Data[:40])
	default:
		return fmt.Sprintf("%q", in.Data)
	}
}

func runInteractive(rf *RunFile, log *zap.Logger) error {
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		return stderrors.New("interactive mode requires a terminal")
	}
	p := tea.NewProgram(newInteractiveModel(rf, log), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
