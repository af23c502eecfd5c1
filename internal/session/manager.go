// Package session maps process lifecycle signals (interruptions, route
// changes, backgrounding, termination) onto playback controls.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/dgnsrekt/versecast/internal/engine"
)

// DefaultGraceDelay is the pause between an interruption ending and
// playback resuming.
const DefaultGraceDelay = 500 * time.Millisecond

// Signal is a lifecycle notification.
type Signal int

const (
	InterruptionBegan Signal = iota
	InterruptionEnded
	RouteLost
	ResignActive
	EnterBackground
	BecameActive
	Terminate
)

// String returns the string representation of the signal
func (s Signal) String() string {
	switch s {
	case InterruptionBegan:
		return "interruption-began"
	case InterruptionEnded:
		return "interruption-ended"
	case RouteLost:
		return "route-lost"
	case ResignActive:
		return "resign-active"
	case EnterBackground:
		return "enter-background"
	case BecameActive:
		return "became-active"
	case Terminate:
		return "terminate"
	default:
		return "unknown"
	}
}

// Event is a signal with its options.
type Event struct {
	Signal Signal
	// ShouldResume is the resume hint carried by InterruptionEnded.
	ShouldResume bool
}

// Controller is the part of the engine the manager drives.
type Controller interface {
	State() engine.State
	Pause(ctx context.Context) error
	Resume(ctx context.Context) error
	PersistPosition(ctx context.Context) error
	ReassertOutput(ctx context.Context) error
	ReleaseOutput(ctx context.Context) error
	Flush(ctx context.Context) error
}

// Manager applies lifecycle signals to a Controller.
type Manager struct {
	ctrl   Controller
	grace  time.Duration
	logger *log.Logger

	mu               sync.Mutex
	wasPlaying       bool
	pendingReacquire bool
	cancelGrace      context.CancelFunc
	graceWG          sync.WaitGroup
}

// Option configures a Manager.
type Option func(*Manager)

// WithGraceDelay overrides DefaultGraceDelay.
func WithGraceDelay(d time.Duration) Option {
	return func(m *Manager) { m.grace = d }
}

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// NewManager creates a manager for ctrl.
func NewManager(ctrl Controller, opts ...Option) *Manager {
	m := &Manager{ctrl: ctrl, grace: DefaultGraceDelay}
	for _, opt := range opts {
		opt(m)
	}
	if m.logger == nil {
		m.logger = log.Default().WithPrefix("session")
	}
	return m
}

// Run handles events until ctx ends, the channel closes or a Terminate
// event has been handled.
func (m *Manager) Run(ctx context.Context, events <-chan Event) error {
	defer m.Wait()
	for {
		select {
		case <-ctx.Done():
			m.stopGrace()
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			err := m.Handle(ctx, ev)
			if err != nil {
				m.logger.Warn("lifecycle signal failed", "signal", ev.Signal, "err", err)
			}
			if ev.Signal == Terminate {
				return err
			}
		}
	}
}

// Handle applies one event.
func (m *Manager) Handle(ctx context.Context, ev Event) error {
	m.logger.Debug("lifecycle signal", "signal", ev.Signal, "state", m.ctrl.State())

	switch ev.Signal {
	case InterruptionBegan:
		m.stopGrace()
		if m.ctrl.State() != engine.StatePlaying {
			return nil
		}
		m.setWasPlaying(true)
		return m.ctrl.Pause(ctx)

	case InterruptionEnded:
		was := m.takeWasPlaying()
		if ev.ShouldResume && m.hasPendingReacquire() {
			return m.retryReacquire(ctx)
		}
		if !ev.ShouldResume || !was {
			return nil
		}
		m.scheduleResume(ctx)
		return nil

	case RouteLost:
		if m.ctrl.State() != engine.StatePlaying {
			return nil
		}
		return m.ctrl.Pause(ctx)

	case ResignActive, EnterBackground:
		return m.background(ctx, ev.Signal == EnterBackground)

	case BecameActive:
		return m.retryReacquire(ctx)

	case Terminate:
		m.stopGrace()
		if err := m.ctrl.PersistPosition(ctx); err != nil {
			return err
		}
		return m.ctrl.Flush(ctx)
	}
	return nil
}

// background persists the position and keeps or drops the output channel.
func (m *Manager) background(ctx context.Context, entering bool) error {
	state := m.ctrl.State()
	if state == engine.StatePlaying || state == engine.StatePaused {
		if err := m.ctrl.PersistPosition(ctx); err != nil {
			m.logger.Warn("persist position", "err", err)
		}
	}
	if state == engine.StatePlaying {
		if err := m.ctrl.ReassertOutput(ctx); err != nil {
			m.mu.Lock()
			m.pendingReacquire = true
			m.mu.Unlock()
			return err
		}
		return nil
	}
	if entering {
		return m.ctrl.ReleaseOutput(ctx)
	}
	return nil
}

func (m *Manager) hasPendingReacquire() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pendingReacquire
}

// retryReacquire makes the single retry after a failed re-acquire, on
// becoming active or on an interruption ending with a resume hint. If it
// fails again playback stays paused.
func (m *Manager) retryReacquire(ctx context.Context) error {
	m.mu.Lock()
	pending := m.pendingReacquire
	m.pendingReacquire = false
	m.mu.Unlock()

	if !pending || m.ctrl.State() != engine.StatePaused {
		return nil
	}
	if err := m.ctrl.Resume(ctx); err != nil {
		m.logger.Warn("output still unavailable, staying paused", "err", err)
		return err
	}
	return nil
}

func (m *Manager) scheduleResume(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cancelGrace != nil {
		m.cancelGrace()
	}
	gctx, cancel := context.WithCancel(ctx)
	m.cancelGrace = cancel

	m.graceWG.Add(1)
	go func() {
		defer m.graceWG.Done()
		defer cancel()
		t := time.NewTimer(m.grace)
		defer t.Stop()
		select {
		case <-t.C:
		case <-gctx.Done():
			return
		}
		if err := m.ctrl.Resume(gctx); err != nil {
			m.logger.Warn("resume after interruption", "err", err)
		}
	}()
}

func (m *Manager) stopGrace() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cancelGrace != nil {
		m.cancelGrace()
		m.cancelGrace = nil
	}
}

func (m *Manager) setWasPlaying(v bool) {
	m.mu.Lock()
	m.wasPlaying = v
	m.mu.Unlock()
}

func (m *Manager) takeWasPlaying() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	was := m.wasPlaying
	m.wasPlaying = false
	return was
}

// Wait blocks until any scheduled resume has run or been canceled.
func (m *Manager) Wait() {
	m.graceWG.Wait()
}
