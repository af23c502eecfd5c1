package synth

import (
	"errors"
	"fmt"
)

// Common synthesis errors
var (
	// ErrEmptyText indicates there is nothing to synthesize
	ErrEmptyText = errors.New("text cannot be empty")

	// ErrTextTooLong indicates the text exceeds the backend limit
	ErrTextTooLong = errors.New("text too long")

	// ErrNoModel indicates no local voice model matches the language
	ErrNoModel = errors.New("no local voice model for language")

	// ErrCanceled indicates the utterance was canceled before it finished
	ErrCanceled = errors.New("utterance canceled")
)

// Kind classifies a premium backend failure.
type Kind int

const (
	// KindNetwork covers transport errors, timeouts and provider-side
	// faults. Transient.
	KindNetwork Kind = iota
	// KindAuth means the API key was rejected.
	KindAuth
	// KindRateLimited means the provider asked us to slow down.
	KindRateLimited
	// KindQuotaExceeded means the provider account is out of characters.
	KindQuotaExceeded
	// KindDecode means the response was not playable audio.
	KindDecode
)

// String returns the string representation of the kind.
func (k Kind) String() string {
	switch k {
	case KindNetwork:
		return "network"
	case KindAuth:
		return "auth"
	case KindRateLimited:
		return "rate-limited"
	case KindQuotaExceeded:
		return "quota-exceeded-upstream"
	case KindDecode:
		return "decode"
	default:
		return "unknown"
	}
}

// Error is a typed premium backend failure.
type Error struct {
	Kind   Kind
	Status int // HTTP status, 0 when no response was received
	Err    error
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("premium synthesis %s (status %d): %v", e.Kind, e.Status, e.Err)
	}
	return fmt.Sprintf("premium synthesis %s: %v", e.Kind, e.Err)
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the failure kind of err and whether err is a synthesis
// Error at all.
func KindOf(err error) (Kind, bool) {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind, true
	}
	return 0, false
}

// IsQuotaExceeded reports whether err is an upstream quota failure.
func IsQuotaExceeded(err error) bool {
	k, ok := KindOf(err)
	return ok && k == KindQuotaExceeded
}
