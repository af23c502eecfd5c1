package publish

import (
	"fmt"
	"io"

	"github.com/charmbracelet/log"
	"github.com/muesli/termenv"

	"github.com/dgnsrekt/versecast/internal/engine"
)

// DefaultTitle is shown when nothing is playing.
const DefaultTitle = "versecast"

// TitleStatus shows playback in the terminal window title.
type TitleStatus struct {
	output *termenv.Output
	last   string
}

// NewTitleStatus writes title escape sequences to w.
func NewTitleStatus(w io.Writer) *TitleStatus {
	return &TitleStatus{output: termenv.NewOutput(w)}
}

// Publish implements engine.Publisher.
func (t *TitleStatus) Publish(s engine.Snapshot) {
	title := Title(s)
	if title == t.last {
		return
	}
	t.last = title
	t.output.SetWindowTitle(title)
}

// Reset restores the default title.
func (t *TitleStatus) Reset() {
	t.last = DefaultTitle
	t.output.SetWindowTitle(DefaultTitle)
}

// Title renders a snapshot as "▶ John 3 · 4/36".
func Title(s engine.Snapshot) string {
	var icon string
	switch s.State {
	case engine.StatePlaying:
		icon = "▶"
	case engine.StatePaused:
		icon = "⏸"
	case engine.StateLoading:
		icon = "…"
	case engine.StateFinished:
		icon = "✓"
	case engine.StateError:
		icon = "!"
	default:
		return DefaultTitle
	}
	if s.TotalUnits == 0 {
		return icon + " " + s.Reference
	}
	return fmt.Sprintf("%s %s · %d/%d", icon, s.Reference, s.UnitIndex+1, s.TotalUnits)
}

// LogStatus logs state and unit changes at debug level.
type LogStatus struct {
	logger    *log.Logger
	lastState engine.State
	lastIndex int
}

// NewLogStatus creates a log publisher.
func NewLogStatus(logger *log.Logger) *LogStatus {
	if logger == nil {
		logger = log.Default().WithPrefix("status")
	}
	return &LogStatus{logger: logger, lastIndex: -1}
}

// Publish implements engine.Publisher.
func (l *LogStatus) Publish(s engine.Snapshot) {
	if s.State == l.lastState && s.UnitIndex == l.lastIndex {
		return
	}
	l.lastState, l.lastIndex = s.State, s.UnitIndex
	l.logger.Debug("status",
		"state", s.StateName,
		"ref", s.Reference,
		"unit", s.UnitIndex+1,
		"of", s.TotalUnits,
		"voice", s.VoiceName,
		"progress", fmt.Sprintf("%.0f%%", s.Progress*100),
	)
}

var (
	_ engine.Publisher = (*TitleStatus)(nil)
	_ engine.Publisher = (*LogStatus)(nil)
)
