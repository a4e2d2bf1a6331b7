package asr

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
)

var (
	// ErrEmptyAudio is returned for a voice note with no bytes.
	ErrEmptyAudio = errors.New("voice note has no audio")

	// ErrRateLimited is the cause of a 429 from the transcription endpoint.
	ErrRateLimited = errors.New("transcription quota exhausted")

	// ErrUnauthorized is the cause of a 401 or 403.
	ErrUnauthorized = errors.New("transcription API key rejected")
)

// TranscriptionError reports a voice note the endpoint could not transcribe.
// Status is the HTTP status, zero when no response arrived. Code is the
// provider's error code, or the status when it sent none.
type TranscriptionError struct {
	Provider  string
	Status    int
	Code      string
	Message   string
	Cause     error
	Retryable bool
}

// NewStatusError builds the error for a non-200 response. Quota and
// server-side failures are retryable; everything else is final.
func NewStatusError(status int, code, message string) *TranscriptionError {
	if code == "" {
		code = strconv.Itoa(status)
	}
	e := &TranscriptionError{
		Provider:  providerName,
		Status:    status,
		Code:      code,
		Message:   strings.TrimSpace(message),
		Retryable: status == http.StatusTooManyRequests || status >= http.StatusInternalServerError,
	}
	switch status {
	case http.StatusTooManyRequests:
		e.Cause = ErrRateLimited
	case http.StatusUnauthorized, http.StatusForbidden:
		e.Cause = ErrUnauthorized
	}
	return e
}

// requestError wraps a transport failure. The upload never reached the
// endpoint, so it is worth retrying.
func requestError(err error) *TranscriptionError {
	return &TranscriptionError{Provider: providerName, Message: "upload failed", Cause: err, Retryable: true}
}

func (e *TranscriptionError) Error() string {
	var b strings.Builder
	b.WriteString("transcribe voice note")
	if e.Provider != "" {
		fmt.Fprintf(&b, " via %s", e.Provider)
	}
	if e.Status != 0 {
		fmt.Fprintf(&b, ": HTTP %d", e.Status)
		if e.Code != strconv.Itoa(e.Status) {
			fmt.Fprintf(&b, " (%s)", e.Code)
		}
	}
	if e.Message != "" {
		b.WriteString(": " + e.Message)
	}
	if e.Status == 0 && e.Cause != nil {
		b.WriteString(": " + e.Cause.Error())
	}
	return b.String()
}

func (e *TranscriptionError) Unwrap() error { return e.Cause }

// Is matches the cause, or a TranscriptionError whose non-zero fields
// (provider, status, code) all agree.
func (e *TranscriptionError) Is(target error) bool {
	if e.Cause != nil && errors.Is(e.Cause, target) {
		return true
	}
	t, ok := target.(*TranscriptionError)
	if !ok {
		return false
	}
	return (t.Provider == "" || t.Provider == e.Provider) &&
		(t.Status == 0 || t.Status == e.Status) &&
		(t.Code == "" || t.Code == e.Code)
}

// IsRetryable reports whether err is a transcription failure worth another
// attempt.
func IsRetryable(err error) bool {
	var te *TranscriptionError
	return errors.As(err, &te) && te.Retryable
}
