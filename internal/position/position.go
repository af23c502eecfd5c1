// Package position records where the listener was so playback can resume
// after the process ends.
package position

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
)

// MaxAge is how long a saved position stays valid.
const MaxAge = 30 * 24 * time.Hour

// ErrInvalid is returned when saving an incomplete position.
var ErrInvalid = errors.New("invalid playback position")

// Position is the durable "where the user was" record.
type Position struct {
	TranslationID string
	BookID        string
	BookName      string
	Chapter       int
	UnitIndex     int
	TotalUnits    int
	VoiceKind     string
	Timestamp     time.Time
}

// Reference returns the human reference, "John 3:16".
func (p Position) Reference() string {
	return fmt.Sprintf("%s %d:%d", p.BookName, p.Chapter, p.UnitIndex+1)
}

// Validate checks that p can be resumed from.
func (p Position) Validate() error {
	switch {
	case p.TranslationID == "" || p.BookID == "":
		return fmt.Errorf("%w: missing translation or book", ErrInvalid)
	case p.Chapter < 1:
		return fmt.Errorf("%w: chapter %d", ErrInvalid, p.Chapter)
	case p.TotalUnits < 1 || p.UnitIndex < 0 || p.UnitIndex >= p.TotalUnits:
		return fmt.Errorf("%w: unit %d of %d", ErrInvalid, p.UnitIndex, p.TotalUnits)
	}
	return nil
}

// Store is a single-slot durable record. Save overwrites.
type Store interface {
	SavePosition(ctx context.Context, p Position) error
	LoadPosition(ctx context.Context) (Position, bool, error)
	ClearPosition(ctx context.Context) error
	Flush(ctx context.Context) error
}

// Recorder applies the validity window on top of a Store.
type Recorder struct {
	store  Store
	now    func() time.Time
	maxAge time.Duration
	logger *log.Logger
}

// Option configures a Recorder.
type Option func(*Recorder)

// WithClock overrides the wall clock.
func WithClock(now func() time.Time) Option {
	return func(r *Recorder) { r.now = now }
}

// WithMaxAge overrides MaxAge.
func WithMaxAge(d time.Duration) Option {
	return func(r *Recorder) { r.maxAge = d }
}

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(r *Recorder) { r.logger = l }
}

// NewRecorder wraps store.
func NewRecorder(store Store, opts ...Option) *Recorder {
	r := &Recorder{
		store:  store,
		now:    time.Now,
		maxAge: MaxAge,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = log.Default().WithPrefix("position")
	}
	return r
}

// Save stamps p with the current time and writes it.
func (r *Recorder) Save(ctx context.Context, p Position) error {
	if err := p.Validate(); err != nil {
		return err
	}
	p.Timestamp = r.now()
	if err := r.store.SavePosition(ctx, p); err != nil {
		return fmt.Errorf("save position: %w", err)
	}
	r.logger.Debug("position saved", "ref", p.Reference(), "voice", p.VoiceKind)
	return nil
}

// Load returns the saved position if it is younger than the validity
// window. Expired positions are reported as absent.
func (r *Recorder) Load(ctx context.Context) (Position, bool, error) {
	p, ok, err := r.store.LoadPosition(ctx)
	if err != nil {
		return Position{}, false, fmt.Errorf("load position: %w", err)
	}
	if !ok {
		return Position{}, false, nil
	}
	if age := r.now().Sub(p.Timestamp); age > r.maxAge {
		r.logger.Debug("position expired", "ref", p.Reference(), "age", age)
		return Position{}, false, nil
	}
	return p, true, nil
}

// Clear removes the saved position.
func (r *Recorder) Clear(ctx context.Context) error {
	if err := r.store.ClearPosition(ctx); err != nil {
		return fmt.Errorf("clear position: %w", err)
	}
	return nil
}

// Flush forces pending writes to stable storage.
func (r *Recorder) Flush(ctx context.Context) error {
	return r.store.Flush(ctx)
}
