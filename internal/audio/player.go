package audio

import (
	"bytes"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"
)

// Player is the oto-backed Output. Acquire and Release map onto resuming
// and suspending the oto context, which is created once per process.
type Player struct {
	context *oto.Context
	format  Format

	mu       sync.Mutex
	player   *oto.Player
	data     []byte // keeps the active buffer alive while oto reads it
	current  *Playback
	paused   bool
	acquired bool
	closed   bool
	volume   float64

	pollInterval time.Duration
}

// PlayerConfig contains configuration for the audio player.
type PlayerConfig struct {
	Format     Format
	BufferSize time.Duration
}

// DefaultPlayerConfig returns the default player configuration.
func DefaultPlayerConfig() PlayerConfig {
	return PlayerConfig{
		Format:     DefaultFormat,
		BufferSize: 100 * time.Millisecond,
	}
}

// NewPlayer opens the audio device.
func NewPlayer(config PlayerConfig) (*Player, error) {
	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	op := &oto.NewContextOptions{
		SampleRate:   config.Format.SampleRate,
		ChannelCount: config.Format.Channels,
		Format:       oto.FormatSignedInt16LE,
		BufferSize:   config.BufferSize,
	}

	ctx, ready, err := oto.NewContext(op)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrChannelUnavailable, err)
	}
	<-ready

	// Held until the engine asks for it.
	if err := ctx.Suspend(); err != nil {
		return nil, fmt.Errorf("failed to suspend audio context: %w", err)
	}

	return &Player{
		context:      ctx,
		format:       config.Format,
		volume:       1.0,
		pollInterval: 20 * time.Millisecond,
	}, nil
}

func validateConfig(config PlayerConfig) error {
	switch config.Format.SampleRate {
	case 16000, 22050, 24000, 44100, 48000:
	default:
		return fmt.Errorf("unsupported sample rate %d Hz", config.Format.SampleRate)
	}
	if config.Format.Channels != 1 && config.Format.Channels != 2 {
		return fmt.Errorf("channels must be 1 (mono) or 2 (stereo), got %d", config.Format.Channels)
	}
	if config.BufferSize < 0 {
		return errors.New("buffer size must not be negative")
	}
	return nil
}

// Format returns the PCM format the device expects.
func (p *Player) Format() Format {
	return p.format
}

// Acquire resumes the audio context.
func (p *Player) Acquire() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrClosed
	}
	if err := p.context.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrChannelUnavailable, err)
	}
	if err := p.context.Resume(); err != nil {
		return fmt.Errorf("%w: %w", ErrChannelUnavailable, err)
	}
	p.acquired = true
	return nil
}

// Release stops playback and suspends the context.
func (p *Player) Release() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.stopLocked()
	if !p.acquired || p.closed {
		return nil
	}
	p.acquired = false
	return p.context.Suspend()
}

// Play starts pcm, replacing any current playback.
func (p *Player) Play(pcm []byte) (*Playback, error) {
	if err := p.format.Check(pcm); err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, ErrClosed
	}
	if !p.acquired {
		return nil, ErrNotAcquired
	}
	p.stopLocked()

	data := make([]byte, len(pcm))
	copy(data, pcm)

	player := p.context.NewPlayer(bytes.NewReader(data))
	player.SetVolume(p.volume)
	player.Play()

	pb := newPlayback(p.format.Duration(len(data)))
	p.player = player
	p.data = data
	p.current = pb
	p.paused = false

	go p.watch(player, pb)
	return pb, nil
}

// watch completes pb once oto has drained the buffer.
func (p *Player) watch(player *oto.Player, pb *Playback) {
	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-pb.Done():
			return
		case <-ticker.C:
		}

		p.mu.Lock()
		if p.current != pb {
			p.mu.Unlock()
			return
		}
		if err := player.Err(); err != nil {
			p.releasePlayerLocked()
			p.mu.Unlock()
			pb.complete(false, fmt.Errorf("%w: %w", ErrChannelUnavailable, err))
			return
		}
		if !p.paused && !player.IsPlaying() {
			p.releasePlayerLocked()
			p.mu.Unlock()
			pb.complete(true, nil)
			return
		}
		p.mu.Unlock()
	}
}

// Pause pauses the current playback.
func (p *Player) Pause() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.player == nil || p.paused {
		return nil
	}
	p.player.Pause()
	p.paused = true
	return nil
}

// Resume continues paused playback.
func (p *Player) Resume() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.player == nil || !p.paused {
		return nil
	}
	p.player.Play()
	p.paused = false
	return nil
}

// Stop ends the current playback without finishing it.
func (p *Player) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.stopLocked()
	return nil
}

// SetVolume sets the playback volume (0.0 to 1.0).
func (p *Player) SetVolume(volume float64) error {
	if volume < 0.0 || volume > 1.0 {
		return fmt.Errorf("volume must be between 0.0 and 1.0, got %f", volume)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.volume = volume
	if p.player != nil {
		p.player.SetVolume(volume)
	}
	return nil
}

// Close stops playback and releases the device.
func (p *Player) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.stopLocked()
	p.closed = true
	// oto v3 has no context Close; suspending frees the device.
	if p.acquired {
		p.acquired = false
		return p.context.Suspend()
	}
	return nil
}

// stopLocked must be called with the lock held.
func (p *Player) stopLocked() {
	pb := p.current
	if p.player != nil {
		p.player.Pause()
	}
	p.releasePlayerLocked()
	if pb != nil {
		pb.complete(false, nil)
	}
}

// releasePlayerLocked must be called with the lock held.
func (p *Player) releasePlayerLocked() {
	if p.player != nil {
		_ = p.player.Close()
		p.player = nil
	}
	p.data = nil
	p.current = nil
	p.paused = false
}

var _ Output = (*Player)(nil)
