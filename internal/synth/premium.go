package synth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/time/rate"

	"github.com/dgnsrekt/versecast/internal/audio"
)

// PremiumRequest asks the network backend for one unit of audio.
type PremiumRequest struct {
	Text    string
	VoiceID string
}

// Premium is the paid network synthesis backend. It returns raw PCM in
// audio.DefaultFormat or a *Error.
type Premium interface {
	Synthesize(ctx context.Context, req PremiumRequest) ([]byte, error)
}

const (
	// DefaultBaseURL is the provider endpoint.
	DefaultBaseURL = "https://api.elevenlabs.io"
	// DefaultModelID is the provider speech model.
	DefaultModelID = "eleven_multilingual_v2"

	maxResponseSize = 20 * 1024 * 1024
)

// HTTPConfig holds configuration for the network backend.
type HTTPConfig struct {
	BaseURL string
	APIKey  string
	ModelID string

	// Format is the PCM format requested from the provider.
	Format audio.Format

	// Timeout bounds each request, including the rate limiter wait.
	Timeout time.Duration

	// RequestsPerMinute paces requests; 0 means 120.
	RequestsPerMinute int

	// MaxTextLength rejects longer text before any request; 0 means 5000.
	MaxTextLength int

	// Client is used for requests; nil uses a default client.
	Client *http.Client
}

// HTTPProvider synthesizes speech through the provider's REST API.
type HTTPProvider struct {
	baseURL *url.URL
	apiKey  string
	modelID string
	format  audio.Format
	timeout time.Duration
	maxText int

	client      *http.Client
	rateLimiter *rate.Limiter
	logger      *log.Logger
}

// NewHTTPProvider creates the network backend.
func NewHTTPProvider(config HTTPConfig, logger *log.Logger) (*HTTPProvider, error) {
	if config.APIKey == "" {
		return nil, errors.New("premium API key is required")
	}
	if config.BaseURL == "" {
		config.BaseURL = DefaultBaseURL
	}
	base, err := url.Parse(config.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	if config.ModelID == "" {
		config.ModelID = DefaultModelID
	}
	if config.Format.SampleRate == 0 {
		config.Format = audio.DefaultFormat
	}
	if config.Timeout == 0 {
		config.Timeout = 15 * time.Second
	}
	if config.RequestsPerMinute == 0 {
		config.RequestsPerMinute = 120
	}
	if config.MaxTextLength == 0 {
		config.MaxTextLength = 5000
	}
	if config.Client == nil {
		config.Client = &http.Client{}
	}
	if logger == nil {
		logger = log.Default().WithPrefix("synth")
	}

	return &HTTPProvider{
		baseURL:     base,
		apiKey:      config.APIKey,
		modelID:     config.ModelID,
		format:      config.Format,
		timeout:     config.Timeout,
		maxText:     config.MaxTextLength,
		client:      config.Client,
		rateLimiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(config.RequestsPerMinute)), 1),
		logger:      logger,
	}, nil
}

type ttsRequest struct {
	Text    string `json:"text"`
	ModelID string `json:"model_id"`
}

type errorBody struct {
	Detail struct {
		Status  string `json:"status"`
		Message string `json:"message"`
	} `json:"detail"`
}

// Synthesize converts text to PCM.
func (p *HTTPProvider) Synthesize(ctx context.Context, req PremiumRequest) ([]byte, error) {
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return nil, ErrEmptyText
	}
	if n := len([]rune(text)); n > p.maxText {
		return nil, fmt.Errorf("%w: %d characters (max %d)", ErrTextTooLong, n, p.maxText)
	}
	if req.VoiceID == "" {
		return nil, errors.New("voice id is required")
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	if err := p.rateLimiter.Wait(ctx); err != nil {
		return nil, p.transportError(ctx, fmt.Errorf("rate limit wait: %w", err))
	}

	body, err := json.Marshal(ttsRequest{Text: text, ModelID: p.modelID})
	if err != nil {
		return nil, err
	}

	endpoint := p.baseURL.JoinPath("v1", "text-to-speech", req.VoiceID)
	q := endpoint.Query()
	q.Set("output_format", fmt.Sprintf("pcm_%d", p.format.SampleRate))
	endpoint.RawQuery = q.Encode()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint.String(), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "audio/pcm")
	httpReq.Header.Set("xi-api-key", p.apiKey)

	start := time.Now()
	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, p.transportError(ctx, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize+1))
	if err != nil {
		return nil, p.transportError(ctx, fmt.Errorf("read response: %w", err))
	}

	if resp.StatusCode != http.StatusOK {
		serr := statusError(resp.StatusCode, data)
		p.logger.Warn("premium synthesis failed", "status", resp.StatusCode, "kind", serr.Kind)
		return nil, serr
	}

	if err := p.checkAudio(resp.Header.Get("Content-Type"), data); err != nil {
		return nil, &Error{Kind: KindDecode, Status: resp.StatusCode, Err: err}
	}

	p.logger.Debug("premium synthesis", "chars", len(text), "bytes", len(data), "took", time.Since(start))
	return data, nil
}

func (p *HTTPProvider) checkAudio(contentType string, data []byte) error {
	if mt, _, err := mime.ParseMediaType(contentType); err == nil && mt == "application/json" {
		return errors.New("provider returned JSON instead of audio")
	}
	if len(data) > maxResponseSize {
		return fmt.Errorf("response exceeds %d bytes", maxResponseSize)
	}
	return p.format.Check(data)
}

// transportError keeps caller cancellation recognizable and classifies the
// rest as network failures.
func (p *HTTPProvider) transportError(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.Canceled) {
		return context.Canceled
	}
	return &Error{Kind: KindNetwork, Err: err}
}

// statusError maps a non-200 response to a typed failure. The provider
// reports exhausted accounts as 401 with a quota status in the body.
func statusError(status int, body []byte) *Error {
	var eb errorBody
	_ = json.Unmarshal(body, &eb)
	msg := eb.Detail.Message
	if msg == "" {
		msg = http.StatusText(status)
	}
	err := errors.New(msg)

	switch {
	case eb.Detail.Status == "quota_exceeded" || status == http.StatusPaymentRequired:
		return &Error{Kind: KindQuotaExceeded, Status: status, Err: err}
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return &Error{Kind: KindAuth, Status: status, Err: err}
	case status == http.StatusTooManyRequests:
		return &Error{Kind: KindRateLimited, Status: status, Err: err}
	default:
		return &Error{Kind: KindNetwork, Status: status, Err: err}
	}
}

var _ Premium = (*HTTPProvider)(nil)
