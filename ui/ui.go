// Package ui is the terminal transcript shown while a meeting plays.
package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	"github.com/baskills/meetingvoice/internal/ttypes"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/log"
	"github.com/muesli/reflow/ansi"
	"github.com/muesli/reflow/truncate"
)

const (
	statusMessageTimeout = 2 * time.Second
	refreshInterval      = 250 * time.Millisecond
)

// Controls is the playback surface the UI drives.
type Controls interface {
	Pause()
	Resume()
	Stop()
	Skip()
	Paused() bool
	QueueLength() int
	State() ttypes.PlaybackState
}

// SpeakingMsg reports that an utterance began playing.
type SpeakingMsg struct {
	Utterance ttypes.Utterance
}

// ScriptDoneMsg reports that every response has been delivered and played.
type ScriptDoneMsg struct{}

// ErrorMsg shows an error in the status bar.
type ErrorMsg struct {
	Err error
}

type (
	refreshMsg              struct{}
	statusMessageTimeoutMsg struct{}
)

// Model is the Bubble Tea model for the transcript.
type Model struct {
	cfg      Config
	controls Controls
	copy     func(string) error

	viewport viewport.Model
	spinner  spinner.Model
	width    int
	height   int

	entries []ttypes.Utterance
	colors  map[string]int
	state   ttypes.PlaybackState
	paused  bool
	pending int
	done    bool

	statusMessage string
	statusIsError bool
}

// NewModel returns a model driving controls.
func NewModel(cfg Config, controls Controls) Model {
	vp := viewport.New(0, 0)
	vp.MouseWheelEnabled = cfg.Mouse

	m := Model{
		cfg:      cfg,
		controls: controls,
		copy:     clipboard.WriteAll,
		viewport: vp,
		spinner: spinner.New(
			spinner.WithSpinner(spinner.Dot),
			spinner.WithStyle(spinnerStyle),
		),
		colors: make(map[string]int),
	}
	for i, name := range cfg.Speakers {
		m.colors[strings.ToLower(name)] = i
	}
	return m
}

// NewProgram returns a Bubble Tea program for the transcript.
func NewProgram(cfg Config, controls Controls) *tea.Program {
	log.Debug("Starting transcript UI", "title", cfg.Title)
	opts := []tea.ProgramOption{tea.WithAltScreen()}
	if cfg.Mouse {
		opts = append(opts, tea.WithMouseCellMotion())
	}
	return tea.NewProgram(NewModel(cfg, controls), opts...)
}

// Subscriber forwards queue notifications to p. It blocks until the program
// accepts the message or has exited, so notifications keep playback order.
func Subscriber(p *tea.Program) func(ttypes.Utterance) {
	return func(u ttypes.Utterance) {
		p.Send(SpeakingMsg{Utterance: u})
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, refresh())
}

func refresh() tea.Cmd {
	return tea.Tick(refreshInterval, func(time.Time) tea.Msg { return refreshMsg{} })
}

func waitForStatusMessageTimeout() tea.Cmd {
	return tea.Tick(statusMessageTimeout, func(time.Time) tea.Msg { return statusMessageTimeoutMsg{} })
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			m.controls.Stop()
			return m, tea.Quit

		case " ", "p":
			if m.paused {
				m.controls.Resume()
				m.paused = false
			} else {
				m.controls.Pause()
				m.paused = true
			}
			m.sync()
			return m, nil

		case "n":
			m.controls.Skip()
			return m, m.showStatusMessage("Skipped", false)

		case "s":
			m.controls.Stop()
			m.paused = false
			m.sync()
			return m, m.showStatusMessage("Stopped; cleared the queue", false)

		case "c":
			if err := m.copy(m.plainTranscript()); err != nil {
				return m, m.showStatusMessage("Copy failed: "+err.Error(), true)
			}
			return m, m.showStatusMessage("Copied transcript", false)

		case "g", "home":
			m.viewport.GotoTop()
			return m, nil

		case "G", "end":
			m.viewport.GotoBottom()
			return m, nil
		}

	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.viewport.Width = msg.Width
		m.viewport.Height = max(0, msg.Height-headerHeight-statusBarHeight)
		m.render()

	case SpeakingMsg:
		m.entries = append(m.entries, msg.Utterance)
		atBottom := m.viewport.AtBottom()
		m.render()
		if atBottom {
			m.viewport.GotoBottom()
		}
		m.sync()

	case ScriptDoneMsg:
		m.done = true
		if !m.cfg.Linger {
			return m, tea.Quit
		}
		return m, m.showStatusMessage("End of meeting", false)

	case ErrorMsg:
		return m, m.showStatusMessage(msg.Err.Error(), true)

	case refreshMsg:
		m.sync()
		return m, refresh()

	case statusMessageTimeoutMsg:
		m.statusMessage = ""
		m.statusIsError = false
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

// sync copies playback state from the controls.
func (m *Model) sync() {
	m.state = m.controls.State()
	m.paused = m.controls.Paused()
	m.pending = m.controls.QueueLength()
}

func (m *Model) showStatusMessage(s string, isError bool) tea.Cmd {
	m.statusMessage = s
	m.statusIsError = isError
	return waitForStatusMessageTimeout()
}

func (m *Model) render() {
	if m.width == 0 {
		return
	}
	m.viewport.SetContent(m.transcriptView(m.contentWidth()))
}

func (m Model) contentWidth() int {
	w := m.width
	if m.cfg.MaxWidth > 0 {
		w = min(w, int(m.cfg.MaxWidth)) //nolint:gosec
	}
	return max(20, w)
}

func (m Model) View() string {
	if m.width == 0 {
		return ""
	}
	var b strings.Builder
	m.headerView(&b)
	fmt.Fprint(&b, m.viewport.View()+"\n")
	m.statusBarView(&b)
	return b.String()
}

func (m Model) headerView(b *strings.Builder) {
	title := m.cfg.Title
	if title == "" {
		title = "Meeting"
	}

	var now string
	switch {
	case m.paused && m.state.CurrentItemID != "":
		now = pausedStyle("❚❚ paused")
	case m.paused:
		now = pausedStyle("❚❚ paused, queue held")
	case m.state.IsPlaying:
		if u, ok := m.current(); ok {
			now = m.spinner.View() + " " + m.speakerStyle(u.SpeakerName)(u.SpeakerName) + " is speaking"
		} else {
			now = m.spinner.View() + " speaking"
		}
	case m.done:
		now = roleStyle("meeting ended")
	default:
		now = roleStyle("waiting")
	}

	line := titleStyle(title) + "  " + now
	fmt.Fprintln(b, truncate.StringWithTail(line, uint(m.width), ellipsis)) //nolint:gosec
	fmt.Fprintln(b)
}

func (m Model) statusBarView(b *strings.Builder) {
	logo := logoStyle(" meetingvoice ")

	queued := statusBarQueueStyle(fmt.Sprintf(" %d queued ", m.pending))
	help := statusBarHelpStyle(" space pause · n skip · s stop · c copy · q quit ")

	note := fmt.Sprintf("%d spoken", len(m.entries))
	if m.statusMessage != "" {
		note = m.statusMessage
	}
	note = truncate.StringWithTail(" "+note+" ", uint(max(0, //nolint:gosec
		m.width-
			ansi.PrintableRuneWidth(logo)-
			ansi.PrintableRuneWidth(queued)-
			ansi.PrintableRuneWidth(help),
	)), ellipsis)

	style := statusBarNoteStyle
	if m.statusMessage != "" && !m.statusIsError {
		style = statusBarMessageStyle
	}
	if m.statusIsError {
		style = pausedStyle
	}
	note = style(note)

	padding := max(0,
		m.width-
			ansi.PrintableRuneWidth(logo)-
			ansi.PrintableRuneWidth(note)-
			ansi.PrintableRuneWidth(queued)-
			ansi.PrintableRuneWidth(help),
	)
	fmt.Fprintf(b, "%s%s%s%s%s",
		logo,
		note,
		style(strings.Repeat(" ", padding)),
		queued,
		help,
	)
}

// current returns the utterance the orchestrator holds, if it is on screen.
func (m Model) current() (ttypes.Utterance, bool) {
	id := m.state.CurrentItemID
	if id == "" {
		return ttypes.Utterance{}, false
	}
	for i := len(m.entries) - 1; i >= 0; i-- {
		if m.entries[i].ID == id {
			return m.entries[i], true
		}
	}
	return ttypes.Utterance{}, false
}
