package synth

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dgnsrekt/versecast/internal/audio"
)

type fakeRunner struct {
	mu    sync.Mutex
	calls []runnerCall
	out   []byte
	err   error
}

type runnerCall struct {
	name  string
	args  []string
	stdin string
}

func (f *fakeRunner) run(ctx context.Context, name string, args []string, stdin string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, runnerCall{name: name, args: args, stdin: stdin})
	return f.out, f.err
}

func (f *fakeRunner) last() runnerCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[len(f.calls)-1]
}

func newTestSpeaker(t *testing.T, runner *fakeRunner) (*PiperSpeaker, *audio.MockPlayer) {
	t.Helper()
	out := audio.DefaultMockPlayer()
	if err := out.Acquire(); err != nil {
		t.Fatal(err)
	}
	s, err := NewPiperSpeaker(PiperConfig{
		Models:       map[string]string{"es-ES": "/models/es.onnx"},
		DefaultModel: "/models/en.onnx",
		Run:          runner.run,
	}, out, nil)
	if err != nil {
		t.Fatalf("NewPiperSpeaker failed: %v", err)
	}
	return s, out
}

func waitUtterance(t *testing.T, u *Utterance) error {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err := u.Wait(ctx)
	if errors.Is(err, context.DeadlineExceeded) {
		t.Fatal("utterance did not resolve")
	}
	return err
}

func TestPiperSpeaker_SpeakFinishes(t *testing.T) {
	runner := &fakeRunner{out: make([]byte, 4410)}
	s, out := newTestSpeaker(t, runner)

	u, err := s.Speak(context.Background(), LocalRequest{Text: "Jesus wept.", LanguageCode: "en", Rate: 2.0})
	if err != nil {
		t.Fatalf("Speak failed: %v", err)
	}

	call := runner.last()
	if call.name != "piper" || call.stdin != "Jesus wept." {
		t.Errorf("call = %+v", call)
	}
	args := strings.Join(call.args, " ")
	if !strings.Contains(args, "--model /models/en.onnx") {
		t.Errorf("args %q missing default model", args)
	}
	if !strings.Contains(args, "--length-scale 0.50") {
		t.Errorf("args %q missing length scale for 2x", args)
	}

	out.Finish()
	if err := waitUtterance(t, u); err != nil {
		t.Errorf("utterance err = %v, want nil", err)
	}
}

func TestPiperSpeaker_LanguageModel(t *testing.T) {
	runner := &fakeRunner{out: make([]byte, 100)}
	s, _ := newTestSpeaker(t, runner)

	if _, err := s.Speak(context.Background(), LocalRequest{Text: "Jesús lloró.", LanguageCode: "es-MX"}); err != nil {
		t.Fatalf("Speak failed: %v", err)
	}
	if args := strings.Join(runner.last().args, " "); !strings.Contains(args, "--model /models/es.onnx") {
		t.Errorf("args %q did not select the Spanish model", args)
	}
}

func TestPiperSpeaker_Cancel(t *testing.T) {
	runner := &fakeRunner{out: make([]byte, 100)}
	s, out := newTestSpeaker(t, runner)

	u, _ := s.Speak(context.Background(), LocalRequest{Text: "text"})
	u.Cancel()

	if err := waitUtterance(t, u); !errors.Is(err, ErrCanceled) {
		t.Errorf("err = %v, want ErrCanceled", err)
	}
	if out.IsPlaying() {
		t.Error("output still playing after cancel")
	}
}

func TestPiperSpeaker_ContextCancels(t *testing.T) {
	runner := &fakeRunner{out: make([]byte, 100)}
	s, _ := newTestSpeaker(t, runner)

	ctx, cancel := context.WithCancel(context.Background())
	u, _ := s.Speak(ctx, LocalRequest{Text: "text"})
	cancel()

	if err := waitUtterance(t, u); !errors.Is(err, ErrCanceled) {
		t.Errorf("err = %v, want ErrCanceled", err)
	}
}

func TestPiperSpeaker_StoppedExternally(t *testing.T) {
	runner := &fakeRunner{out: make([]byte, 100)}
	s, out := newTestSpeaker(t, runner)

	u, _ := s.Speak(context.Background(), LocalRequest{Text: "text"})
	_ = out.Stop()

	if err := waitUtterance(t, u); !errors.Is(err, ErrCanceled) {
		t.Errorf("err = %v, want ErrCanceled", err)
	}
}

func TestPiperSpeaker_Failures(t *testing.T) {
	t.Run("runner error", func(t *testing.T) {
		s, _ := newTestSpeaker(t, &fakeRunner{err: errors.New("exit status 1")})
		if _, err := s.Speak(context.Background(), LocalRequest{Text: "text"}); err == nil {
			t.Error("expected error")
		}
	})
	t.Run("no output", func(t *testing.T) {
		s, _ := newTestSpeaker(t, &fakeRunner{})
		if _, err := s.Speak(context.Background(), LocalRequest{Text: "text"}); err == nil {
			t.Error("expected error")
		}
	})
	t.Run("empty text", func(t *testing.T) {
		s, _ := newTestSpeaker(t, &fakeRunner{out: make([]byte, 10)})
		if _, err := s.Speak(context.Background(), LocalRequest{Text: " "}); !errors.Is(err, ErrEmptyText) {
			t.Errorf("err = %v, want ErrEmptyText", err)
		}
	})
	t.Run("output not acquired", func(t *testing.T) {
		out := audio.DefaultMockPlayer()
		s, _ := NewPiperSpeaker(PiperConfig{DefaultModel: "m", Run: (&fakeRunner{out: make([]byte, 10)}).run}, out, nil)
		if _, err := s.Speak(context.Background(), LocalRequest{Text: "text"}); !errors.Is(err, audio.ErrNotAcquired) {
			t.Errorf("err = %v, want ErrNotAcquired", err)
		}
	})
}

func TestNewPiperSpeaker_RequiresModel(t *testing.T) {
	_, err := NewPiperSpeaker(PiperConfig{}, audio.DefaultMockPlayer(), nil)
	if !errors.Is(err, ErrNoModel) {
		t.Errorf("err = %v, want ErrNoModel", err)
	}
}

func TestUtterance_SingleShot(t *testing.T) {
	var cancels int
	u, resolve := NewUtterance(func() { cancels++ })

	resolve(nil)
	u.Cancel()
	resolve(errors.New("late"))

	if err := u.Err(); err != nil {
		t.Errorf("Err = %v, want nil", err)
	}
	if cancels != 0 {
		t.Errorf("cancel func called %d times after resolution", cancels)
	}

	u2, _ := NewUtterance(func() { cancels++ })
	u2.Cancel()
	u2.Cancel()
	if !errors.Is(u2.Err(), ErrCanceled) || cancels != 1 {
		t.Errorf("Err = %v, cancels = %d", u2.Err(), cancels)
	}
}
