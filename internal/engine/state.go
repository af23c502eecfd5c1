package engine

import (
	"github.com/dgnsrekt/versecast/internal/passage"
	"github.com/dgnsrekt/versecast/internal/voice"
)

// State is the playback state.
type State int

const (
	// StateIdle means no session exists.
	StateIdle State = iota
	// StateLoading means the current unit's audio is being prepared.
	StateLoading
	// StatePlaying means the current unit is audible.
	StatePlaying
	// StatePaused means the current unit is held mid-playback.
	StatePaused
	// StateFinished means the last unit completed.
	StateFinished
	// StateError means a fatal failure stopped the session.
	StateError
)

// String returns the string representation of the state
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoading:
		return "loading"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	case StateFinished:
		return "finished"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// ParseState is the inverse of String. Unknown names map to StateIdle.
func ParseState(name string) State {
	for s := StateIdle; s <= StateError; s++ {
		if s.String() == name {
			return s
		}
	}
	return StateIdle
}

// Active reports whether a session exists in this state.
func (s State) Active() bool {
	return s != StateIdle
}

// Snapshot is the read-only projection of playback state pushed to every
// publisher on each transition.
type Snapshot struct {
	SessionID   string     `json:"session_id,omitempty"`
	State       State      `json:"-"`
	StateName   string     `json:"state"`
	Reference   string     `json:"reference"`
	PreviewText string     `json:"preview_text"`
	IsPlaying   bool       `json:"is_playing"`
	IsLoading   bool       `json:"is_loading"`
	UnitIndex   int        `json:"unit_index"`
	TotalUnits  int        `json:"total_units"`
	VoiceKind   voice.Kind `json:"-"`
	VoiceName   string     `json:"voice"`
	Progress    float64    `json:"progress"`
	Rate        float64    `json:"rate"`
	Err         string     `json:"error,omitempty"`
}

// Publisher receives snapshots on the engine's control goroutine. Publish
// must not block.
type Publisher interface {
	Publish(Snapshot)
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(Snapshot)

// Publish calls f(s).
func (f PublisherFunc) Publish(s Snapshot) { f(s) }

// Request starts a playback session.
type Request struct {
	Units      []passage.Unit
	StartIndex int

	// Reference is the display reference, "John 3".
	Reference string

	// LanguageCode is passed to the local backend.
	LanguageCode string

	// Preference overrides the engine's voice preference for this session.
	Preference *voice.Preference
}

// session is owned by the control goroutine.
type session struct {
	id        string
	units     []passage.Unit
	index     int
	reference string
	lang      string
	pref      voice.Preference
	voice     voice.Kind

	// forceFallback is set once the provider reports its quota exhausted.
	forceFallback bool
	quotaNoticed  bool
	err           *Error
}

func (s *session) current() passage.Unit {
	return s.units[s.index]
}

func (s *session) snapshot(state State) Snapshot {
	u := s.current()
	snap := Snapshot{
		SessionID:   s.id,
		State:       state,
		Reference:   s.reference,
		PreviewText: u.Text,
		IsPlaying:   state == StatePlaying,
		IsLoading:   state == StateLoading,
		UnitIndex:   s.index,
		TotalUnits:  len(s.units),
		VoiceKind:   s.voice,
		Progress:    float64(s.index) / float64(len(s.units)),
	}
	if state == StateFinished {
		snap.Progress = 1
	}
	if s.err != nil {
		snap.Err = s.err.Error()
	}
	return snap
}
