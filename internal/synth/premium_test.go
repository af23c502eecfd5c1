package synth

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func newTestProvider(t *testing.T, handler http.HandlerFunc) *HTTPProvider {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	p, err := NewHTTPProvider(HTTPConfig{
		BaseURL:           srv.URL,
		APIKey:            "test-key",
		Timeout:           2 * time.Second,
		RequestsPerMinute: 6000,
	}, nil)
	if err != nil {
		t.Fatalf("NewHTTPProvider failed: %v", err)
	}
	return p
}

func TestHTTPProvider_Success(t *testing.T) {
	want := make([]byte, 4410)
	var gotPath, gotQuery, gotKey string
	var gotBody ttsRequest

	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.Query().Get("output_format")
		gotKey = r.Header.Get("xi-api-key")
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &gotBody)

		w.Header().Set("Content-Type", "audio/pcm")
		_, _ = w.Write(want)
	})

	got, err := p.Synthesize(context.Background(), PremiumRequest{Text: " In the beginning ", VoiceID: "voice-1"})
	if err != nil {
		t.Fatalf("Synthesize failed: %v", err)
	}
	if len(got) != len(want) {
		t.Errorf("got %d bytes, want %d", len(got), len(want))
	}
	if gotPath != "/v1/text-to-speech/voice-1" {
		t.Errorf("path = %q", gotPath)
	}
	if gotQuery != "pcm_22050" {
		t.Errorf("output_format = %q", gotQuery)
	}
	if gotKey != "test-key" {
		t.Errorf("api key header = %q", gotKey)
	}
	if gotBody.Text != "In the beginning" || gotBody.ModelID != DefaultModelID {
		t.Errorf("request body = %+v", gotBody)
	}
}

func TestHTTPProvider_FailureKinds(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		contentType string
		body        string
		want        Kind
	}{
		{"unauthorized", http.StatusUnauthorized, "application/json", `{"detail":{"status":"invalid_api_key"}}`, KindAuth},
		{"forbidden", http.StatusForbidden, "", "", KindAuth},
		{"quota in body", http.StatusUnauthorized, "application/json", `{"detail":{"status":"quota_exceeded","message":"out of credits"}}`, KindQuotaExceeded},
		{"payment required", http.StatusPaymentRequired, "", "", KindQuotaExceeded},
		{"rate limited", http.StatusTooManyRequests, "", "", KindRateLimited},
		{"server error", http.StatusBadGateway, "", "", KindNetwork},
		{"json instead of audio", http.StatusOK, "application/json", `{"ok":true}`, KindDecode},
		{"misaligned audio", http.StatusOK, "audio/pcm", "abc", KindDecode},
		{"empty audio", http.StatusOK, "audio/pcm", "", KindDecode},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
				if tt.contentType != "" {
					w.Header().Set("Content-Type", tt.contentType)
				}
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			})

			_, err := p.Synthesize(context.Background(), PremiumRequest{Text: "hello", VoiceID: "v"})
			kind, ok := KindOf(err)
			if !ok {
				t.Fatalf("err = %v, want *Error", err)
			}
			if kind != tt.want {
				t.Errorf("kind = %v, want %v", kind, tt.want)
			}
		})
	}
}

func TestHTTPProvider_QuotaMessage(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"detail":{"status":"quota_exceeded","message":"out of credits"}}`)
	})

	_, err := p.Synthesize(context.Background(), PremiumRequest{Text: "hello", VoiceID: "v"})
	if !IsQuotaExceeded(err) {
		t.Fatalf("IsQuotaExceeded(%v) = false", err)
	}
	if !strings.Contains(err.Error(), "out of credits") {
		t.Errorf("error %q lacks provider message", err)
	}
}

func TestHTTPProvider_NetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	p, err := NewHTTPProvider(HTTPConfig{BaseURL: url, APIKey: "k", Timeout: time.Second}, nil)
	if err != nil {
		t.Fatal(err)
	}
	_, err = p.Synthesize(context.Background(), PremiumRequest{Text: "hello", VoiceID: "v"})
	if kind, ok := KindOf(err); !ok || kind != KindNetwork {
		t.Errorf("err = %v, want network failure", err)
	}
}

func TestHTTPProvider_Timeout(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()

	p, _ := NewHTTPProvider(HTTPConfig{BaseURL: srv.URL, APIKey: "k", Timeout: 50 * time.Millisecond}, nil)
	_, err := p.Synthesize(context.Background(), PremiumRequest{Text: "hello", VoiceID: "v"})
	if kind, ok := KindOf(err); !ok || kind != KindNetwork {
		t.Errorf("err = %v, want network failure on timeout", err)
	}
}

func TestHTTPProvider_CallerCancel(t *testing.T) {
	started := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(started)
		<-r.Context().Done()
	}))
	defer srv.Close()

	p, _ := NewHTTPProvider(HTTPConfig{BaseURL: srv.URL, APIKey: "k", Timeout: 5 * time.Second}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-started
		cancel()
	}()

	_, err := p.Synthesize(ctx, PremiumRequest{Text: "hello", VoiceID: "v"})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestHTTPProvider_InputValidation(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected")
	})

	if _, err := p.Synthesize(context.Background(), PremiumRequest{Text: "  ", VoiceID: "v"}); !errors.Is(err, ErrEmptyText) {
		t.Errorf("empty text err = %v", err)
	}
	long := strings.Repeat("a", 5001)
	if _, err := p.Synthesize(context.Background(), PremiumRequest{Text: long, VoiceID: "v"}); !errors.Is(err, ErrTextTooLong) {
		t.Errorf("long text err = %v", err)
	}
	if _, err := p.Synthesize(context.Background(), PremiumRequest{Text: "hi"}); err == nil {
		t.Error("missing voice should fail")
	}
}

func TestNewHTTPProvider_RequiresKey(t *testing.T) {
	if _, err := NewHTTPProvider(HTTPConfig{}, nil); err == nil {
		t.Error("expected error without API key")
	}
}

func TestKind_String(t *testing.T) {
	tests := map[Kind]string{
		KindNetwork:       "network",
		KindAuth:          "auth",
		KindRateLimited:   "rate-limited",
		KindQuotaExceeded: "quota-exceeded-upstream",
		KindDecode:        "decode",
		Kind(42):          "unknown",
	}
	for k, want := range tests {
		if got := k.String(); got != want {
			t.Errorf("Kind(%d).String() = %q, want %q", k, got, want)
		}
	}
}
