package tui

import (
	"context"
	"fmt"
	"strings"

	"beatsketch/internal/analysis"
	"beatsketch/internal/transport"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
)

// ScreenType defines which screen is currently active
type ScreenType int

const (
	ProgressScreen ScreenType = iota
	SummaryScreen
)

var (
	quitKeys   = key.NewBinding(key.WithKeys("q", "ctrl+c"))
	switchKeys = key.NewBinding(key.WithKeys("tab"))
)

type eventMsg analysis.Event

type doneMsg struct {
	result *analysis.Result
	err    error
}

// ProgressModel is the Bubble Tea model that follows an analysis run: one
// line per classified onset, then the summary.
type ProgressModel struct {
	title        string
	runID        string
	traces       []analysis.Trace
	summary      *analysis.Summary
	done         bool
	err          error
	cancel       context.CancelFunc
	viewport     viewport.Model
	ready        bool
	activeScreen ScreenType
}

// NewProgressModel creates a model titled title. cancel is called when the
// user quits before the run is done.
func NewProgressModel(title string, cancel context.CancelFunc) ProgressModel {
	return ProgressModel{
		title:        title,
		cancel:       cancel,
		activeScreen: ProgressScreen,
	}
}

// Init initializes the Bubble Tea model
func (m ProgressModel) Init() tea.Cmd {
	return nil
}

func (m ProgressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var (
		cmd  tea.Cmd
		cmds []tea.Cmd
	)

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		if !m.ready {
			m.viewport = viewport.New(msg.Width, msg.Height-4)
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = msg.Height - 4
		}
		m.refresh()

	case eventMsg:
		m.runID = msg.RunID
		switch msg.Type {
		case analysis.EventOnset:
			if msg.Trace != nil {
				m.traces = append(m.traces, *msg.Trace)
			}
		case analysis.EventSummary:
			m.summary = msg.Summary
		}
		m.refresh()
		m.viewport.GotoBottom()

	case doneMsg:
		m.done = true
		m.err = msg.err
		if msg.result != nil {
			m.summary = &msg.result.Summary
			if msg.err == nil {
				m.activeScreen = SummaryScreen
			}
		}
		m.refresh()

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, quitKeys):
			if !m.done && m.cancel != nil {
				m.cancel()
			}
			return m, tea.Quit

		case key.Matches(msg, switchKeys):
			if m.activeScreen == ProgressScreen && m.summary != nil {
				m.activeScreen = SummaryScreen
			} else {
				m.activeScreen = ProgressScreen
			}
			m.refresh()
		}
	}

	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)

	return m, tea.Batch(cmds...)
}

// View renders the UI
func (m ProgressModel) View() string {
	if !m.ready {
		return "Initializing..."
	}

	title := titleStyle.Render(m.title)
	var status string
	switch {
	case m.err != nil:
		status = warnStyle.Render(fmt.Sprintf("Stopped: %v", m.err))
	case m.done:
		status = highlightStyle.Render(fmt.Sprintf("Done: %d beats", len(m.traces)))
	default:
		status = infoStyle.Render(fmt.Sprintf("Analysing... %d onsets classified", len(m.traces)))
	}

	help := infoStyle.Render("↑/↓: Scroll • Tab: Progress/Summary • q: Quit")
	if !m.done {
		help = infoStyle.Render("↑/↓: Scroll • q: Cancel")
	}

	return fmt.Sprintf("%s  %s\n\n%s\n\n%s", title, status, m.viewport.View(), help)
}

// refresh re-renders the active screen into the viewport.
func (m *ProgressModel) refresh() {
	if !m.ready {
		return
	}
	if m.activeScreen == SummaryScreen && m.summary != nil {
		m.viewport.SetContent(RenderSummary(*m.summary))
		return
	}
	m.viewport.SetContent(m.renderTraces())
}

func (m ProgressModel) renderTraces() string {
	if len(m.traces) == 0 {
		return "Waiting for the first onset..."
	}
	var sb strings.Builder
	for i, tr := range m.traces {
		line := renderTrace(tr)
		if i == len(m.traces)-1 && !m.done {
			line = highlightStyle.Render(line)
		}
		sb.WriteString(line)
		sb.WriteString("\n")
	}
	return sb.String()
}

// programTransport forwards analysis events to a running program.
type programTransport struct {
	p *tea.Program
}

func (t programTransport) Send(data any) error {
	if ev, ok := data.(analysis.Event); ok {
		t.p.Send(eventMsg(ev))
	}
	return nil
}

func (t programTransport) Close() error { return nil }

var _ transport.Transport = programTransport{}

// AnalyzeFunc runs one analysis, sending its events to t.
type AnalyzeFunc func(ctx context.Context, t transport.Transport) (*analysis.Result, error)

// RunProgress shows live progress while run executes. Quitting before the
// run is done cancels its context; whatever run returns is passed through.
func RunProgress(ctx context.Context, title string, run AnalyzeFunc) (*analysis.Result, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p := tea.NewProgram(NewProgressModel(title, cancel), tea.WithAltScreen())

	var (
		res    *analysis.Result
		runErr error
	)
	finished := make(chan struct{})
	go func() {
		defer close(finished)
		res, runErr = run(ctx, programTransport{p})
		p.Send(doneMsg{result: res, err: runErr})
	}()

	_, err := p.Run()
	cancel()
	<-finished
	if err != nil {
		return res, err
	}
	return res, runErr
}
