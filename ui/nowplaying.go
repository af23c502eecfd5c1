package ui

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/truncate"
	"github.com/muesli/reflow/wordwrap"

	"github.com/dgnsrekt/versecast/internal/engine"
	"github.com/dgnsrekt/versecast/internal/events"
	"github.com/dgnsrekt/versecast/internal/voice"
)

const rateStep = 0.25

// Controller is the part of the engine the transport controls drive.
type Controller interface {
	Toggle(ctx context.Context) error
	Stop(ctx context.Context, savePosition bool) error
	Next(ctx context.Context) error
	Previous(ctx context.Context) error
	SetRate(ctx context.Context, rate float64) error
	SetVoicePreference(ctx context.Context, pref voice.Preference) error
	Snapshot() engine.Snapshot
}

type (
	snapshotMsg      engine.Snapshot
	noticeMsg        string
	feedClosedMsg    struct{}
	controlErrMsg    struct{ err error }
	statusTimeoutMsg int
)

// Model is the now-playing screen.
type Model struct {
	ctx       context.Context
	cfg       Config
	ctrl      Controller
	snapshots <-chan engine.Snapshot
	notices   <-chan events.Event

	snap     engine.Snapshot
	pref     voice.Preference
	keys     keyMap
	help     help.Model
	progress progress.Model
	width    int

	statusMessage string
	statusIsError bool
	statusID      int

	copy     func(string) error
	quitting bool
}

// New creates the model. notices may be nil.
func New(ctx context.Context, cfg Config, ctrl Controller, snapshots <-chan engine.Snapshot, notices <-chan events.Event) Model {
	if cfg.StatusTimeout == 0 {
		cfg.StatusTimeout = 3 * time.Second
	}
	if cfg.MaxWidth == 0 {
		cfg.MaxWidth = 80
	}
	pref, err := voice.ParseKind(cfg.Preference)
	if err != nil {
		pref = voice.Premium
	}
	return Model{
		ctx:       ctx,
		cfg:       cfg,
		ctrl:      ctrl,
		snapshots: snapshots,
		notices:   notices,
		snap:      ctrl.Snapshot(),
		pref:      pref,
		keys:      defaultKeyMap(),
		help:      help.New(),
		progress:  progress.New(progress.WithDefaultGradient(), progress.WithoutPercentage()),
		width:     cfg.MaxWidth,
		copy:      clipboard.WriteAll,
	}
}

// NewProgram wraps the model in a Bubble Tea program.
func NewProgram(ctx context.Context, cfg Config, ctrl Controller, snapshots <-chan engine.Snapshot, notices <-chan events.Event) *tea.Program {
	opts := []tea.ProgramOption{tea.WithContext(ctx)}
	if cfg.AltScreen {
		opts = append(opts, tea.WithAltScreen())
	}
	return tea.NewProgram(New(ctx, cfg, ctrl, snapshots, notices), opts...)
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(waitForSnapshot(m.snapshots), waitForNotice(m.notices))
}

func waitForSnapshot(ch <-chan engine.Snapshot) tea.Cmd {
	return func() tea.Msg {
		s, ok := <-ch
		if !ok {
			return feedClosedMsg{}
		}
		return snapshotMsg(s)
	}
}

func waitForNotice(ch <-chan events.Event) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		for ev := range ch {
			if ev.Kind == events.Notice {
				return noticeMsg(ev.Message)
			}
		}
		return nil
	}
}

// control runs an engine call off the UI goroutine.
func (m Model) control(fn func(context.Context) error) tea.Cmd {
	return func() tea.Msg {
		if err := fn(m.ctx); err != nil {
			return controlErrMsg{err}
		}
		return nil
	}
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = min(msg.Width, m.cfg.MaxWidth)
		m.help.Width = m.width
		m.progress.Width = max(m.width-12, 10)
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case snapshotMsg:
		prev := m.snap
		m.snap = engine.Snapshot(msg)
		if prev.State.Active() && m.snap.State == engine.StateIdle {
			m.quitting = true
			return m, tea.Quit
		}
		return m, waitForSnapshot(m.snapshots)

	case feedClosedMsg:
		m.quitting = true
		return m, tea.Quit

	case noticeMsg:
		cmd := m.showStatus(string(msg), false)
		return m, tea.Batch(cmd, waitForNotice(m.notices))

	case controlErrMsg:
		return m, m.showStatus(msg.err.Error(), true)

	case statusTimeoutMsg:
		if int(msg) == m.statusID {
			m.statusMessage = ""
			m.statusIsError = false
		}
		return m, nil
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		m.quitting = true
		return m, tea.Quit

	case key.Matches(msg, m.keys.Stop):
		m.quitting = true
		return m, tea.Sequence(m.control(func(ctx context.Context) error {
			return m.ctrl.Stop(ctx, true)
		}), tea.Quit)

	case key.Matches(msg, m.keys.Toggle):
		return m, m.control(m.ctrl.Toggle)

	case key.Matches(msg, m.keys.Next):
		return m, m.control(m.ctrl.Next)

	case key.Matches(msg, m.keys.Previous):
		return m, m.control(m.ctrl.Previous)

	case key.Matches(msg, m.keys.Faster), key.Matches(msg, m.keys.Slower):
		rate := m.snap.Rate
		if rate == 0 {
			rate = 1.0
		}
		if key.Matches(msg, m.keys.Faster) {
			rate += rateStep
		} else {
			rate -= rateStep
		}
		rate = min(max(rate, engine.MinRate), engine.MaxRate)
		status := m.showStatus("Speed "+formatRate(rate)+" from the next verse", false)
		return m, tea.Batch(status, m.control(func(ctx context.Context) error {
			return m.ctrl.SetRate(ctx, rate)
		}))

	case key.Matches(msg, m.keys.Voice):
		if m.pref == voice.Premium {
			m.pref = voice.Fallback
		} else {
			m.pref = voice.Premium
		}
		pref := m.pref
		status := m.showStatus(fmt.Sprintf("Preferring the %s voice", pref), false)
		return m, tea.Batch(status, m.control(func(ctx context.Context) error {
			return m.ctrl.SetVoicePreference(ctx, pref)
		}))

	case key.Matches(msg, m.keys.Copy):
		if !m.snap.State.Active() {
			return m, nil
		}
		ref := verseReference(m.snap)
		if err := m.copy(ref + " " + m.snap.PreviewText); err != nil {
			return m, m.showStatus("Could not copy: "+err.Error(), true)
		}
		return m, m.showStatus("Copied "+ref, false)

	case key.Matches(msg, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll
		return m, nil
	}
	return m, nil
}

func (m *Model) showStatus(text string, isErr bool) tea.Cmd {
	m.statusID++
	m.statusMessage = text
	m.statusIsError = isErr
	id := m.statusID
	return tea.Tick(m.cfg.StatusTimeout, func(time.Time) tea.Msg {
		return statusTimeoutMsg(id)
	})
}

// View implements tea.Model.
func (m Model) View() string {
	if m.quitting {
		return ""
	}
	s := m.snap
	var b strings.Builder

	header := appNameStyle.Render("versecast")
	if s.Reference != "" {
		header += referenceStyle.Render(s.Reference)
	}
	state := stateStyle(s.StateName).Render(stateIcon(s.State) + " " + s.StateName)
	gap := max(m.width-lipgloss.Width(header)-lipgloss.Width(state), 1)
	b.WriteString(header + strings.Repeat(" ", gap) + state + "\n\n")

	if s.State.Active() && s.TotalUnits > 0 {
		number := verseNumberStyle.Render(fmt.Sprintf("%d ", s.UnitIndex+1))
		text := wordwrap.String(s.PreviewText, max(m.width-4, 20))
		b.WriteString(number + text + "\n\n")

		b.WriteString(m.progress.ViewAs(s.Progress))
		b.WriteString(detailStyle.Render(fmt.Sprintf("  %d/%d", s.UnitIndex+1, s.TotalUnits)))
		b.WriteString("\n")
		b.WriteString(detailStyle.Render(s.VoiceName+" voice · "+formatRate(s.Rate)))
		b.WriteString("\n")
	} else {
		b.WriteString(detailStyle.Render("Nothing playing.") + "\n")
	}

	if s.Err != "" {
		b.WriteString(errorStyle.Render(truncate.StringWithTail(s.Err, uint(max(m.width, 1)), "…")) + "\n")
	}

	b.WriteString("\n" + m.statusBar() + "\n")
	b.WriteString(m.help.View(m.keys))
	return b.String()
}

func (m Model) statusBar() string {
	if m.statusMessage == "" {
		return statusBarNoteStyle(strings.Repeat(" ", max(m.width, 0)))
	}
	text := truncate.StringWithTail(" "+m.statusMessage, uint(max(m.width, 1)), "…")
	pad := strings.Repeat(" ", max(m.width-lipgloss.Width(text), 0))
	if m.statusIsError {
		return errorStyle.Render(text)
	}
	return statusBarMessageStyle(text + pad)
}

func stateIcon(s engine.State) string {
	switch s {
	case engine.StatePlaying:
		return "▶"
	case engine.StatePaused:
		return "⏸"
	case engine.StateLoading:
		return "⟳"
	case engine.StateFinished:
		return "✓"
	case engine.StateError:
		return "✗"
	default:
		return "■"
	}
}

func formatRate(r float64) string {
	if r == 0 {
		r = 1
	}
	return strconv.FormatFloat(r, 'f', -1, 64) + "x"
}

// verseReference renders "John 3:16" for the current unit.
func verseReference(s engine.Snapshot) string {
	return fmt.Sprintf("%s:%d", s.Reference, s.UnitIndex+1)
}
