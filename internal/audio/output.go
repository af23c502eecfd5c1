package audio

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

var (
	// ErrChannelUnavailable is returned when the output device cannot be
	// acquired or was taken away.
	ErrChannelUnavailable = errors.New("audio output channel unavailable")

	// ErrNotAcquired is returned by Play before Acquire succeeds.
	ErrNotAcquired = errors.New("audio output not acquired")

	// ErrEmptyAudio is returned when there is nothing to play.
	ErrEmptyAudio = errors.New("audio data is empty")

	// ErrMisaligned is returned when PCM data does not end on a frame
	// boundary.
	ErrMisaligned = errors.New("audio data is not frame aligned")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("player is closed")
)

// Format describes signed 16-bit little-endian PCM.
type Format struct {
	SampleRate int
	Channels   int
}

// DefaultFormat is what both synthesis backends produce.
var DefaultFormat = Format{SampleRate: 22050, Channels: 1}

// FrameSize returns the bytes per frame.
func (f Format) FrameSize() int {
	return 2 * f.Channels
}

// Duration returns how long n bytes play for.
func (f Format) Duration(n int) time.Duration {
	if f.SampleRate <= 0 || f.Channels <= 0 {
		return 0
	}
	frames := n / f.FrameSize()
	return time.Duration(frames) * time.Second / time.Duration(f.SampleRate)
}

// Check reports whether pcm is playable in this format.
func (f Format) Check(pcm []byte) error {
	if len(pcm) == 0 {
		return ErrEmptyAudio
	}
	if len(pcm)%f.FrameSize() != 0 {
		return fmt.Errorf("%w: %d bytes, frame size %d", ErrMisaligned, len(pcm), f.FrameSize())
	}
	return nil
}

// Output is the device the engine plays through. Only one playback is
// active at a time; Play replaces whatever was playing.
type Output interface {
	// Acquire takes the output channel. It returns an error wrapping
	// ErrChannelUnavailable when the device refuses.
	Acquire() error
	// Release gives the channel back, stopping playback.
	Release() error

	Play(pcm []byte) (*Playback, error)
	Pause() error
	Resume() error
	Stop() error
}

// Playback is a single-shot completion for one Play call.
type Playback struct {
	done     chan struct{}
	once     sync.Once
	finished bool
	err      error
	duration time.Duration
}

func newPlayback(d time.Duration) *Playback {
	return &Playback{done: make(chan struct{}), duration: d}
}

// Done is closed when the audio ends or is stopped.
func (p *Playback) Done() <-chan struct{} {
	return p.done
}

// Finished reports whether playback reached the end of the audio. It is
// only meaningful after Done is closed.
func (p *Playback) Finished() bool {
	<-p.done
	return p.finished
}

// Err returns the device error that ended playback, if any.
func (p *Playback) Err() error {
	<-p.done
	return p.err
}

// Duration returns the length of the audio.
func (p *Playback) Duration() time.Duration {
	return p.duration
}

func (p *Playback) complete(finished bool, err error) {
	p.once.Do(func() {
		p.finished = finished
		p.err = err
		close(p.done)
	})
}
