package engine

import (
	"errors"
	"fmt"

	"github.com/dgnsrekt/versecast/internal/synth"
)

var (
	// ErrInvalidRequest is returned for an out-of-range index or an empty
	// unit list. The engine state is unchanged.
	ErrInvalidRequest = errors.New("invalid playback request")

	// ErrNotRunning is returned when a control is sent to an engine whose
	// Run loop is not active.
	ErrNotRunning = errors.New("engine not running")

	// ErrAlreadyRunning is returned when Run is called twice.
	ErrAlreadyRunning = errors.New("engine already running")
)

// Code identifies an engine failure class.
type Code string

const (
	CodeBackendFailure    Code = "BACKEND_FAILURE"
	CodeQuotaExceeded     Code = "QUOTA_EXCEEDED"
	CodeDecodeFailure     Code = "DECODE_FAILURE"
	CodeOutputUnavailable Code = "OUTPUT_UNAVAILABLE"
	CodeFallbackFailed    Code = "FALLBACK_FAILED"
)

// Error is an engine failure with its class.
type Error struct {
	Code    Code
	Message string
	Cause   error
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// IsFatal reports whether the error ends the session in the Error state.
// Every other failure falls back and playback continues.
func (e *Error) IsFatal() bool {
	switch e.Code {
	case CodeOutputUnavailable, CodeFallbackFailed:
		return true
	default:
		return false
	}
}

// IsFatal reports whether err is a fatal *Error.
func IsFatal(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.IsFatal()
}

// premiumFailure classifies a premium backend error.
func premiumFailure(err error) *Error {
	kind, _ := synth.KindOf(err)
	switch kind {
	case synth.KindQuotaExceeded:
		return &Error{Code: CodeQuotaExceeded, Message: "premium provider quota exceeded", Cause: err}
	case synth.KindDecode:
		return &Error{Code: CodeDecodeFailure, Message: "premium audio could not be decoded", Cause: err}
	default:
		return &Error{Code: CodeBackendFailure, Message: "premium synthesis failed", Cause: err}
	}
}
