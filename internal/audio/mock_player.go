package audio

import (
	"sync"
	"sync/atomic"
	"time"
)

// MockPlayer is an Output for tests. It produces no sound. Playback ends
// when the test calls Finish, or on its own after the simulated duration
// when auto-finish is enabled.
type MockPlayer struct {
	mu     sync.Mutex
	format Format

	acquired   bool
	acquireErr error
	playErr    error

	current   *Playback
	paused    bool
	played    [][]byte
	timer     *time.Timer
	remaining time.Duration
	resumedAt time.Time

	autoFinish  bool
	delayFactor float64 // < 1.0 plays faster than real time

	callbacks MockCallbacks

	acquireCount atomic.Int64
	releaseCount atomic.Int64
	playCount    atomic.Int64
	pauseCount   atomic.Int64
	resumeCount  atomic.Int64
	stopCount    atomic.Int64
}

// MockCallbacks provides hooks for testing.
type MockCallbacks struct {
	OnPlay   func(pcm []byte)
	OnPause  func()
	OnResume func()
	OnStop   func()
}

// MockPlayerMetrics contains call counts for testing.
type MockPlayerMetrics struct {
	AcquireCount int64
	ReleaseCount int64
	PlayCount    int64
	PauseCount   int64
	ResumeCount  int64
	StopCount    int64
}

// DefaultMockPlayer creates a mock player that only finishes on Finish.
func DefaultMockPlayer() *MockPlayer {
	return &MockPlayer{format: DefaultFormat, delayFactor: 1.0}
}

// NewMockPlayer creates a mock player with custom callbacks.
func NewMockPlayer(callbacks MockCallbacks) *MockPlayer {
	mp := DefaultMockPlayer()
	mp.callbacks = callbacks
	return mp
}

// SetAutoFinish makes playbacks end after their duration scaled by
// delayFactor.
func (mp *MockPlayer) SetAutoFinish(enabled bool, delayFactor float64) {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	mp.autoFinish = enabled
	if delayFactor > 0 {
		mp.delayFactor = delayFactor
	}
}

// SetAcquireError makes Acquire fail with err until cleared with nil.
func (mp *MockPlayer) SetAcquireError(err error) {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	mp.acquireErr = err
}

// SetPlayError makes Play fail with err until cleared with nil.
func (mp *MockPlayer) SetPlayError(err error) {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	mp.playErr = err
}

// Acquire implements Output.
func (mp *MockPlayer) Acquire() error {
	mp.acquireCount.Add(1)

	mp.mu.Lock()
	defer mp.mu.Unlock()
	if mp.acquireErr != nil {
		mp.acquired = false
		return mp.acquireErr
	}
	mp.acquired = true
	return nil
}

// Release implements Output.
func (mp *MockPlayer) Release() error {
	mp.releaseCount.Add(1)

	mp.mu.Lock()
	defer mp.mu.Unlock()
	mp.stopLocked()
	mp.acquired = false
	return nil
}

// Play implements Output.
func (mp *MockPlayer) Play(pcm []byte) (*Playback, error) {
	if err := mp.format.Check(pcm); err != nil {
		return nil, err
	}

	mp.mu.Lock()
	if !mp.acquired {
		mp.mu.Unlock()
		return nil, ErrNotAcquired
	}
	if mp.playErr != nil {
		err := mp.playErr
		mp.mu.Unlock()
		return nil, err
	}
	mp.stopLocked()

	data := make([]byte, len(pcm))
	copy(data, pcm)
	mp.played = append(mp.played, data)

	pb := newPlayback(mp.format.Duration(len(data)))
	mp.current = pb
	mp.paused = false
	mp.remaining = time.Duration(float64(pb.duration) * mp.delayFactor)
	mp.startTimerLocked(pb)
	onPlay := mp.callbacks.OnPlay
	mp.mu.Unlock()

	mp.playCount.Add(1)
	if onPlay != nil {
		onPlay(data)
	}
	return pb, nil
}

// Pause implements Output.
func (mp *MockPlayer) Pause() error {
	mp.mu.Lock()
	if mp.current == nil || mp.paused {
		mp.mu.Unlock()
		return nil
	}
	mp.paused = true
	if mp.timer != nil {
		mp.timer.Stop()
		mp.timer = nil
		mp.remaining -= time.Since(mp.resumedAt)
	}
	onPause := mp.callbacks.OnPause
	mp.mu.Unlock()

	mp.pauseCount.Add(1)
	if onPause != nil {
		onPause()
	}
	return nil
}

// Resume implements Output.
func (mp *MockPlayer) Resume() error {
	mp.mu.Lock()
	if mp.current == nil || !mp.paused {
		mp.mu.Unlock()
		return nil
	}
	mp.paused = false
	mp.startTimerLocked(mp.current)
	onResume := mp.callbacks.OnResume
	mp.mu.Unlock()

	mp.resumeCount.Add(1)
	if onResume != nil {
		onResume()
	}
	return nil
}

// Stop implements Output.
func (mp *MockPlayer) Stop() error {
	mp.mu.Lock()
	had := mp.current != nil
	mp.stopLocked()
	onStop := mp.callbacks.OnStop
	mp.mu.Unlock()

	if had {
		mp.stopCount.Add(1)
		if onStop != nil {
			onStop()
		}
	}
	return nil
}

// Finish ends the current playback as if the audio ran out. It reports
// whether anything was playing.
func (mp *MockPlayer) Finish() bool {
	mp.mu.Lock()
	pb := mp.current
	mp.clearLocked()
	mp.mu.Unlock()

	if pb == nil {
		return false
	}
	pb.complete(true, nil)
	return true
}

// Fail ends the current playback with a device error.
func (mp *MockPlayer) Fail(err error) bool {
	mp.mu.Lock()
	pb := mp.current
	mp.clearLocked()
	mp.mu.Unlock()

	if pb == nil {
		return false
	}
	pb.complete(false, err)
	return true
}

// IsPlaying reports whether audio is playing and not paused.
func (mp *MockPlayer) IsPlaying() bool {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	return mp.current != nil && !mp.paused
}

// IsPaused reports whether playback is paused.
func (mp *MockPlayer) IsPaused() bool {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	return mp.current != nil && mp.paused
}

// IsAcquired reports whether the channel is held.
func (mp *MockPlayer) IsAcquired() bool {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	return mp.acquired
}

// Played returns copies of everything passed to Play, in order.
func (mp *MockPlayer) Played() [][]byte {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	out := make([][]byte, len(mp.played))
	for i, b := range mp.played {
		out[i] = append([]byte(nil), b...)
	}
	return out
}

// GetMetrics returns call counts for testing.
func (mp *MockPlayer) GetMetrics() MockPlayerMetrics {
	return MockPlayerMetrics{
		AcquireCount: mp.acquireCount.Load(),
		ReleaseCount: mp.releaseCount.Load(),
		PlayCount:    mp.playCount.Load(),
		PauseCount:   mp.pauseCount.Load(),
		ResumeCount:  mp.resumeCount.Load(),
		StopCount:    mp.stopCount.Load(),
	}
}

// startTimerLocked must be called with the lock held.
func (mp *MockPlayer) startTimerLocked(pb *Playback) {
	if !mp.autoFinish {
		return
	}
	mp.resumedAt = time.Now()
	mp.timer = time.AfterFunc(max(mp.remaining, 0), func() {
		mp.mu.Lock()
		if mp.current != pb || mp.paused {
			mp.mu.Unlock()
			return
		}
		mp.clearLocked()
		mp.mu.Unlock()
		pb.complete(true, nil)
	})
}

// stopLocked must be called with the lock held.
func (mp *MockPlayer) stopLocked() {
	pb := mp.current
	mp.clearLocked()
	if pb != nil {
		pb.complete(false, nil)
	}
}

// clearLocked must be called with the lock held.
func (mp *MockPlayer) clearLocked() {
	if mp.timer != nil {
		mp.timer.Stop()
		mp.timer = nil
	}
	mp.current = nil
	mp.paused = false
}

var _ Output = (*MockPlayer)(nil)
