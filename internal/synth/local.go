package synth

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/text/language"

	"github.com/dgnsrekt/versecast/internal/audio"
)

// LocalRequest asks the on-device backend to speak text.
type LocalRequest struct {
	Text         string
	LanguageCode string
	// Rate is a speed multiplier; 1.0 is normal.
	Rate float64
}

// Local is the unlimited on-device backend. Speak starts speaking and
// returns an utterance that resolves when speech ends.
type Local interface {
	Speak(ctx context.Context, req LocalRequest) (*Utterance, error)
}

// Runner executes a synthesis command with text on stdin and returns its
// stdout.
type Runner func(ctx context.Context, name string, args []string, stdin string) ([]byte, error)

// PiperConfig holds configuration for the piper backend.
type PiperConfig struct {
	// Binary is the piper executable; defaults to "piper" on PATH.
	Binary string

	// Models maps a base language ("en", "es") to a model file.
	Models map[string]string

	// DefaultModel is used when no language matches.
	DefaultModel string

	// Timeout bounds one synthesis run.
	Timeout time.Duration

	// Run overrides process execution, for tests.
	Run Runner
}

// PiperSpeaker synthesizes with a fresh piper process per unit and plays
// the result through an audio.Output.
type PiperSpeaker struct {
	binary       string
	models       map[string]string
	defaultModel string
	timeout      time.Duration
	run          Runner

	output audio.Output
	logger *log.Logger
}

// NewPiperSpeaker creates the local backend.
func NewPiperSpeaker(config PiperConfig, output audio.Output, logger *log.Logger) (*PiperSpeaker, error) {
	if output == nil {
		return nil, errors.New("audio output is required")
	}
	if config.Binary == "" {
		config.Binary = "piper"
	}
	if config.Timeout == 0 {
		config.Timeout = 10 * time.Second
	}
	if config.Run == nil {
		config.Run = runCommand
	}
	if logger == nil {
		logger = log.Default().WithPrefix("synth")
	}

	models := make(map[string]string, len(config.Models))
	for lang, model := range config.Models {
		models[baseLanguage(lang)] = model
	}
	if config.DefaultModel == "" && len(models) == 0 {
		return nil, ErrNoModel
	}

	return &PiperSpeaker{
		binary:       config.Binary,
		models:       models,
		defaultModel: config.DefaultModel,
		timeout:      config.Timeout,
		run:          config.Run,
		output:       output,
		logger:       logger,
	}, nil
}

// Speak synthesizes text and plays it. Synthesis errors are returned
// directly; playback errors resolve the utterance. Ending ctx cancels the
// utterance.
func (s *PiperSpeaker) Speak(ctx context.Context, req LocalRequest) (*Utterance, error) {
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return nil, ErrEmptyText
	}

	model, err := s.modelFor(req.LanguageCode)
	if err != nil {
		return nil, err
	}

	pcm, err := s.synthesize(ctx, text, model, req.Rate)
	if err != nil {
		return nil, err
	}

	pb, err := s.output.Play(pcm)
	if err != nil {
		return nil, fmt.Errorf("play local speech: %w", err)
	}

	// stop only while this playback is current; the output is shared
	u, resolve := NewUtterance(func() {
		select {
		case <-pb.Done():
		default:
			_ = s.output.Stop()
		}
	})
	go func() {
		select {
		case <-pb.Done():
			switch {
			case pb.Err() != nil:
				resolve(pb.Err())
			case pb.Finished():
				resolve(nil)
			default:
				resolve(ErrCanceled)
			}
		case <-ctx.Done():
			u.Cancel()
		case <-u.Done():
		}
	}()
	return u, nil
}

func (s *PiperSpeaker) modelFor(code string) (string, error) {
	if m, ok := s.models[baseLanguage(code)]; ok {
		return m, nil
	}
	if s.defaultModel != "" {
		return s.defaultModel, nil
	}
	return "", fmt.Errorf("%w: %q", ErrNoModel, code)
}

func (s *PiperSpeaker) synthesize(ctx context.Context, text, model string, speed float64) ([]byte, error) {
	if speed <= 0 {
		speed = 1.0
	}
	// Speed 0.5 = half speed (scale 2.0), 2.0 = double speed (scale 0.5)
	lengthScale := 1.0 / speed

	args := []string{
		"--model", model,
		"--output-raw",
		"--length-scale", fmt.Sprintf("%.2f", lengthScale),
	}
	if cfg := model + ".json"; fileExists(cfg) {
		args = append(args, "--config", cfg)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	pcm, err := s.run(ctx, s.binary, args, text)
	if err != nil {
		return nil, fmt.Errorf("piper failed: %w", err)
	}
	if len(pcm) == 0 {
		return nil, errors.New("piper produced no audio output")
	}
	// drop a trailing odd byte rather than reject the unit
	pcm = pcm[:len(pcm)-len(pcm)%2]

	s.logger.Debug("local synthesis", "chars", len(text), "bytes", len(pcm), "took", time.Since(start))
	return pcm, nil
}

// runCommand runs a fresh process with stdin preset to the text.
func runCommand(ctx context.Context, name string, args []string, stdin string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdin = strings.NewReader(stdin)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = 100 * time.Millisecond

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("synthesis interrupted: %w", ctx.Err())
		}
		return nil, fmt.Errorf("%w, stderr: %s", err, strings.TrimSpace(stderr.String()))
	}
	return stdout.Bytes(), nil
}

func baseLanguage(code string) string {
	tag, err := language.Parse(code)
	if err != nil {
		return strings.ToLower(code)
	}
	base, _ := tag.Base()
	return base.String()
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

var _ Local = (*PiperSpeaker)(nil)
