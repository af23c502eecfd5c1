package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/dgnsrekt/versecast/internal/audio"
	"github.com/dgnsrekt/versecast/internal/cache"
	"github.com/dgnsrekt/versecast/internal/events"
	"github.com/dgnsrekt/versecast/internal/position"
	"github.com/dgnsrekt/versecast/internal/synth"
	"github.com/dgnsrekt/versecast/internal/voice"
)

const (
	// MinRate is the slowest fallback speech rate.
	MinRate = 0.5
	// MaxRate is the fastest fallback speech rate.
	MaxRate = 2.0
)

// Cache is the audio store the engine reads and fills.
type Cache interface {
	Get(key cache.Key) ([]byte, bool)
	Put(key cache.Key, data []byte) error
	Exists(key cache.Key) bool
	Delete(key cache.Key) error
}

// Quota accounts premium characters.
type Quota interface {
	CanConsume(n int) bool
	Record(n int) error
}

// Positions persists the resume point.
type Positions interface {
	Save(ctx context.Context, p position.Position) error
	Clear(ctx context.Context) error
	Flush(ctx context.Context) error
}

// Events receives cross-component notifications.
type Events interface {
	Publish(events.Event)
}

// Deps are the engine's collaborators. Output and Local are required.
// Premium is optional; when set, Cache, Quota and Selector are required.
type Deps struct {
	Output     audio.Output
	Premium    synth.Premium
	Local      synth.Local
	Cache      Cache
	Quota      Quota
	Selector   *voice.Selector
	Positions  Positions
	Events     Events
	Publishers []Publisher
	Logger     *log.Logger
}

// Config holds engine settings.
type Config struct {
	// VoiceID is the premium voice; it is part of every cache key.
	VoiceID string

	// Preference is the default voice source for new sessions.
	Preference voice.Preference

	// Rate is the local speech rate, MinRate to MaxRate.
	Rate float64

	// AutoContinue requests the next chapter when one ends instead of
	// stopping.
	AutoContinue bool
}

// DefaultConfig returns a config for premium-preferred playback at normal
// speed.
func DefaultConfig() Config {
	return Config{
		VoiceID:    "narrator",
		Preference: voice.Premium,
		Rate:       1.0,
	}
}

// Stats counts engine activity.
type Stats struct {
	Sessions        int64
	UnitsStarted    int64
	UnitsCompleted  int64
	PremiumUnits    int64
	FallbackUnits   int64
	CacheHits       int64
	PremiumFailures int64
	Prefetches      int64
}

type stats struct {
	sessions, unitsStarted, unitsCompleted atomic.Int64
	premiumUnits, fallbackUnits, cacheHits atomic.Int64
	premiumFailures, prefetches            atomic.Int64
}

// Engine owns one playback session at a time.
type Engine struct {
	deps   Deps
	logger *log.Logger

	cmds    chan func()
	done    chan struct{}
	started atomic.Bool
	snap    atomic.Pointer[Snapshot]
	stats   stats

	persist *persister

	// owned by the control goroutine
	runCtx       context.Context
	config       Config
	state        State
	sess         *session
	gen          uint64
	unitCtx      context.Context
	unitCancel   context.CancelFunc
	acquired     bool
	prefetch     *prefetchJob
	lastErr      *Error
	publishersMu sync.Mutex
}

// New creates an engine. Call Run to start processing controls.
func New(config Config, deps Deps) (*Engine, error) {
	if deps.Output == nil {
		return nil, errors.New("audio output is required")
	}
	if deps.Local == nil {
		return nil, errors.New("local synthesis backend is required")
	}
	if deps.Premium != nil && (deps.Cache == nil || deps.Quota == nil || deps.Selector == nil) {
		return nil, errors.New("premium backend requires cache, quota and selector")
	}
	if config.Rate == 0 {
		config.Rate = 1.0
	}
	if err := validateRate(config.Rate); err != nil {
		return nil, err
	}
	if deps.Positions == nil {
		deps.Positions = nopPositions{}
	}
	if deps.Events == nil {
		deps.Events = nopEvents{}
	}
	if deps.Logger == nil {
		deps.Logger = log.Default().WithPrefix("engine")
	}

	e := &Engine{
		deps:    deps,
		logger:  deps.Logger,
		cmds:    make(chan func()),
		done:    make(chan struct{}),
		persist: newPersister(deps.Positions, deps.Logger),
		config:  config,
		state:   StateIdle,
	}
	idle := Snapshot{State: StateIdle, StateName: StateIdle.String(), Rate: config.Rate}
	e.snap.Store(&idle)
	return e, nil
}

// Run processes controls and background results until ctx ends. On exit
// it stops playback, releases the output and drains pending position
// writes.
func (e *Engine) Run(ctx context.Context) error {
	if !e.started.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	e.runCtx = ctx

	persistDone := make(chan struct{})
	go func() {
		e.persist.run()
		close(persistDone)
	}()

	e.logger.Debug("engine started")
	defer func() {
		close(e.done)
		e.shutdown()
		e.persist.close()
		<-persistDone
		e.logger.Debug("engine stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case fn := <-e.cmds:
			fn()
		}
	}
}

// Done is closed when Run returns.
func (e *Engine) Done() <-chan struct{} {
	return e.done
}

// do runs fn on the control goroutine and waits for its result.
func (e *Engine) do(ctx context.Context, fn func() error) error {
	reply := make(chan error, 1)
	select {
	case e.cmds <- func() { reply <- fn() }:
	case <-e.done:
		return ErrNotRunning
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// post hands a background result to the control goroutine. It is dropped
// once Run has returned.
func (e *Engine) post(fn func()) {
	select {
	case e.cmds <- fn:
	case <-e.done:
	}
}

// Play stops any current session and starts a new one at
// req.Units[req.StartIndex].
func (e *Engine) Play(ctx context.Context, req Request) error {
	if len(req.Units) == 0 {
		return fmt.Errorf("%w: no units", ErrInvalidRequest)
	}
	if req.StartIndex < 0 || req.StartIndex >= len(req.Units) {
		return fmt.Errorf("%w: start index %d of %d", ErrInvalidRequest, req.StartIndex, len(req.Units))
	}
	for _, u := range req.Units {
		if strings.TrimSpace(u.Text) == "" {
			return fmt.Errorf("%w: unit %d has no text", ErrInvalidRequest, u.Number)
		}
	}

	units := append(req.Units[:0:0], req.Units...)
	return e.do(ctx, func() error {
		// back-to-back sessions go straight to Loading and keep the output
		e.cancelUnit()
		e.cancelPrefetch()

		pref := e.config.Preference
		if req.Preference != nil {
			pref = *req.Preference
		}
		e.sess = &session{
			id:        uuid.NewString(),
			units:     units,
			index:     req.StartIndex,
			reference: req.Reference,
			lang:      req.LanguageCode,
			pref:      pref,
		}
		e.lastErr = nil
		e.stats.sessions.Add(1)
		e.logger.Info("playback started", "session", e.sess.id, "ref", req.Reference, "units", len(units), "start", req.StartIndex)
		return e.startUnit(req.StartIndex)
	})
}

// Pause holds the current unit. It is a no-op unless playing.
func (e *Engine) Pause(ctx context.Context) error {
	return e.do(ctx, e.pause)
}

// Resume continues a paused unit. It is a no-op unless paused.
func (e *Engine) Resume(ctx context.Context) error {
	return e.do(ctx, e.resume)
}

// Toggle pauses when playing, resumes when paused and retries the current
// unit after a fatal error.
func (e *Engine) Toggle(ctx context.Context) error {
	return e.do(ctx, func() error {
		switch e.state {
		case StatePlaying:
			return e.pause()
		case StatePaused:
			return e.resume()
		case StateError:
			if e.sess == nil {
				return nil
			}
			e.sess.err = nil
			return e.startUnit(e.sess.index)
		default:
			return nil
		}
	})
}

// Stop ends the session. When savePosition is set the current position is
// written first; a stop never clears the saved position.
func (e *Engine) Stop(ctx context.Context, savePosition bool) error {
	return e.do(ctx, func() error {
		if e.sess != nil && savePosition {
			e.savePosition()
		}
		e.endSession()
		return nil
	})
}

// Next moves to the following unit.
func (e *Engine) Next(ctx context.Context) error {
	return e.do(ctx, func() error {
		if e.sess == nil {
			return fmt.Errorf("%w: no session", ErrInvalidRequest)
		}
		return e.jump(e.sess.index + 1)
	})
}

// Previous moves to the preceding unit.
func (e *Engine) Previous(ctx context.Context) error {
	return e.do(ctx, func() error {
		if e.sess == nil {
			return fmt.Errorf("%w: no session", ErrInvalidRequest)
		}
		return e.jump(e.sess.index - 1)
	})
}

// JumpTo moves to unit index.
func (e *Engine) JumpTo(ctx context.Context, index int) error {
	return e.do(ctx, func() error {
		return e.jump(index)
	})
}

// SetVoicePreference changes the voice source from the next unit on.
func (e *Engine) SetVoicePreference(ctx context.Context, pref voice.Preference) error {
	return e.do(ctx, func() error {
		e.config.Preference = pref
		if e.sess != nil {
			e.sess.pref = pref
			e.sess.forceFallback = false
		}
		e.logger.Debug("voice preference changed", "voice", pref)
		return nil
	})
}

// SetRate changes the local speech rate from the next unit on.
func (e *Engine) SetRate(ctx context.Context, rate float64) error {
	if err := validateRate(rate); err != nil {
		return err
	}
	return e.do(ctx, func() error {
		e.config.Rate = rate
		e.publish()
		return nil
	})
}

// PersistPosition writes the current position and waits for the write.
func (e *Engine) PersistPosition(ctx context.Context) error {
	var done chan error
	err := e.do(ctx, func() error {
		if e.sess == nil {
			return nil
		}
		done = e.persist.submit(persistOp{pos: e.position(), wait: true})
		return nil
	})
	if err != nil || done == nil {
		return err
	}
	return waitPersist(ctx, done)
}

// Flush waits for pending position writes and syncs the store.
func (e *Engine) Flush(ctx context.Context) error {
	var done chan error
	err := e.do(ctx, func() error {
		done = e.persist.submit(persistOp{flush: true, wait: true})
		return nil
	})
	if err != nil {
		return err
	}
	return waitPersist(ctx, done)
}

// ReassertOutput re-acquires the output while playing. On failure playback
// degrades to Paused and the error is returned.
func (e *Engine) ReassertOutput(ctx context.Context) error {
	return e.do(ctx, func() error {
		if e.state != StatePlaying {
			return nil
		}
		if err := e.deps.Output.Acquire(); err != nil {
			e.acquired = false
			_ = e.deps.Output.Pause()
			e.setState(StatePaused)
			e.savePosition()
			e.logger.Warn("output lost, playback paused", "err", err)
			return &Error{Code: CodeOutputUnavailable, Message: "could not re-acquire audio output", Cause: err}
		}
		e.acquired = true
		return nil
	})
}

// ReleaseOutput gives up the output when nothing is playing.
func (e *Engine) ReleaseOutput(ctx context.Context) error {
	return e.do(ctx, func() error {
		if e.state == StatePlaying || e.state == StateLoading || !e.acquired {
			return nil
		}
		e.releaseOutput()
		return nil
	})
}

// Snapshot returns the latest published snapshot.
func (e *Engine) Snapshot() Snapshot {
	return *e.snap.Load()
}

// State returns the current state.
func (e *Engine) State() State {
	return e.snap.Load().State
}

// Stats returns activity counters.
func (e *Engine) Stats() Stats {
	return Stats{
		Sessions:        e.stats.sessions.Load(),
		UnitsStarted:    e.stats.unitsStarted.Load(),
		UnitsCompleted:  e.stats.unitsCompleted.Load(),
		PremiumUnits:    e.stats.premiumUnits.Load(),
		FallbackUnits:   e.stats.fallbackUnits.Load(),
		CacheHits:       e.stats.cacheHits.Load(),
		PremiumFailures: e.stats.premiumFailures.Load(),
		Prefetches:      e.stats.prefetches.Load(),
	}
}

// AddPublisher registers p for future snapshots.
func (e *Engine) AddPublisher(p Publisher) {
	e.publishersMu.Lock()
	defer e.publishersMu.Unlock()
	e.deps.Publishers = append(e.deps.Publishers, p)
}

func (e *Engine) pause() error {
	if e.state != StatePlaying {
		return nil
	}
	if err := e.deps.Output.Pause(); err != nil {
		return fmt.Errorf("pause output: %w", err)
	}
	e.setState(StatePaused)
	e.savePosition()
	return nil
}

func (e *Engine) resume() error {
	if e.state != StatePaused {
		return nil
	}
	if !e.acquired {
		// an output that cannot be re-acquired leaves the session paused
		if err := e.deps.Output.Acquire(); err != nil {
			e.logger.Warn("output still unavailable, staying paused", "err", err)
			return &Error{Code: CodeOutputUnavailable, Message: "could not re-acquire audio output", Cause: err}
		}
		e.acquired = true
		// the released output dropped the paused audio; restart the unit
		return e.startUnit(e.sess.index)
	}
	if err := e.deps.Output.Resume(); err != nil {
		return fmt.Errorf("resume output: %w", err)
	}
	e.setState(StatePlaying)
	return nil
}

func (e *Engine) jump(index int) error {
	if e.sess == nil {
		return fmt.Errorf("%w: no session", ErrInvalidRequest)
	}
	if index < 0 || index >= len(e.sess.units) {
		return fmt.Errorf("%w: index %d of %d", ErrInvalidRequest, index, len(e.sess.units))
	}
	e.sess.err = nil
	return e.startUnit(index)
}

// endSession stops everything and returns to Idle.
func (e *Engine) endSession() {
	e.cancelUnit()
	e.cancelPrefetch()
	if e.acquired {
		e.releaseOutput()
	}
	had := e.sess != nil
	e.sess = nil
	if had || e.state != StateIdle {
		e.setState(StateIdle)
	}
}

func (e *Engine) releaseOutput() {
	if err := e.deps.Output.Release(); err != nil {
		e.logger.Warn("release output", "err", err)
	}
	e.acquired = false
}

// shutdown runs on the control goroutine after the loop exits.
func (e *Engine) shutdown() {
	e.cancelUnit()
	e.cancelPrefetch()
	if e.acquired {
		e.releaseOutput()
	}
}

func (e *Engine) setState(s State) {
	if e.state != s {
		e.logger.Debug("state", "from", e.state, "to", s)
	}
	e.state = s
	e.publish()
}

// publish builds the snapshot for the current state and pushes it.
func (e *Engine) publish() {
	snap := Snapshot{State: e.state}
	if e.sess != nil {
		snap = e.sess.snapshot(e.state)
	} else if e.lastErr != nil {
		snap.Err = e.lastErr.Error()
	}
	snap.StateName = snap.State.String()
	snap.VoiceName = snap.VoiceKind.String()
	snap.Rate = e.config.Rate
	e.snap.Store(&snap)

	e.publishersMu.Lock()
	pubs := e.deps.Publishers
	e.publishersMu.Unlock()
	for _, p := range pubs {
		p.Publish(snap)
	}
}

func (e *Engine) position() position.Position {
	u := e.sess.current()
	return position.Position{
		TranslationID: u.TranslationID,
		BookID:        u.BookID,
		BookName:      u.BookName,
		Chapter:       u.Chapter,
		UnitIndex:     e.sess.index,
		TotalUnits:    len(e.sess.units),
		VoiceKind:     e.sess.voice.String(),
	}
}

func (e *Engine) savePosition() {
	if e.sess == nil {
		return
	}
	e.persist.submit(persistOp{pos: e.position()})
}

func (e *Engine) notice(msg string) {
	e.deps.Events.Publish(events.Event{Kind: events.Notice, Message: msg})
}

func validateRate(rate float64) error {
	if rate < MinRate || rate > MaxRate {
		return fmt.Errorf("%w: rate %.2f outside %.1f-%.1f", ErrInvalidRequest, rate, MinRate, MaxRate)
	}
	return nil
}

func waitPersist(ctx context.Context, done chan error) error {
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(persistTimeout + time.Second):
		return errors.New("position write timed out")
	}
}

type nopPositions struct{}

func (nopPositions) Save(context.Context, position.Position) error { return nil }
func (nopPositions) Clear(context.Context) error                   { return nil }
func (nopPositions) Flush(context.Context) error                   { return nil }

type nopEvents struct{}

func (nopEvents) Publish(events.Event) {}
