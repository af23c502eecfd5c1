package audio

import (
	"errors"
	"testing"
	"time"
)

// TestPlayerConfig tests the player configuration validation.
func TestPlayerConfig(t *testing.T) {
	tests := []struct {
		name      string
		config    PlayerConfig
		expectErr bool
	}{
		{
			name:   "default",
			config: DefaultPlayerConfig(),
		},
		{
			name:   "stereo 48000Hz",
			config: PlayerConfig{Format: Format{SampleRate: 48000, Channels: 2}},
		},
		{
			name:      "unsupported sample rate",
			config:    PlayerConfig{Format: Format{SampleRate: 11025, Channels: 1}},
			expectErr: true,
		},
		{
			name:      "too many channels",
			config:    PlayerConfig{Format: Format{SampleRate: 22050, Channels: 6}},
			expectErr: true,
		},
		{
			name:      "negative buffer",
			config:    PlayerConfig{Format: DefaultFormat, BufferSize: -time.Millisecond},
			expectErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateConfig(tt.config)
			if (err != nil) != tt.expectErr {
				t.Errorf("validateConfig() error = %v, expectErr %v", err, tt.expectErr)
			}
		})
	}
}

func TestFormat_Duration(t *testing.T) {
	tests := []struct {
		format Format
		bytes  int
		want   time.Duration
	}{
		{DefaultFormat, 44100, time.Second},
		{DefaultFormat, 4410, 100 * time.Millisecond},
		{Format{SampleRate: 48000, Channels: 2}, 192000, time.Second},
		{Format{}, 100, 0},
	}
	for _, tt := range tests {
		if got := tt.format.Duration(tt.bytes); got != tt.want {
			t.Errorf("%+v.Duration(%d) = %v, want %v", tt.format, tt.bytes, got, tt.want)
		}
	}
}

func TestFormat_Check(t *testing.T) {
	stereo := Format{SampleRate: 44100, Channels: 2}

	if err := DefaultFormat.Check(nil); !errors.Is(err, ErrEmptyAudio) {
		t.Errorf("Check(nil) = %v, want ErrEmptyAudio", err)
	}
	if err := DefaultFormat.Check(make([]byte, 3)); !errors.Is(err, ErrMisaligned) {
		t.Errorf("Check(3 bytes) = %v, want ErrMisaligned", err)
	}
	if err := stereo.Check(make([]byte, 6)); !errors.Is(err, ErrMisaligned) {
		t.Errorf("stereo Check(6 bytes) = %v, want ErrMisaligned", err)
	}
	if err := stereo.Check(make([]byte, 8)); err != nil {
		t.Errorf("stereo Check(8 bytes) = %v", err)
	}
}

func TestPlayback_Complete(t *testing.T) {
	pb := newPlayback(time.Second)
	pb.complete(true, nil)
	pb.complete(false, errors.New("ignored"))

	select {
	case <-pb.Done():
	default:
		t.Fatal("Done not closed")
	}
	if !pb.Finished() {
		t.Error("first completion should win")
	}
	if pb.Err() != nil {
		t.Errorf("Err = %v, want nil", pb.Err())
	}
	if pb.Duration() != time.Second {
		t.Errorf("Duration = %v", pb.Duration())
	}
}
