package resilience

import (
	"errors"
	"net"
	"strings"
	"syscall"
	"time"
)

// The collection pipeline classifies every failure into one of five
// kinds, which drive retry and propagation policy:
//
//	Transient   - network/timeout/5xx; retried with backoff
//	RateLimited - a source's window is exhausted; fail fast, retry after wait
//	Validation  - malformed request; rejected at the boundary, never retried
//	Parse       - unexpected answer shape; the answer is skipped, job continues
//	Persistence - store write failure; surfaces as job failure, job re-enqueued

// TransientError wraps an error that is safe to retry (e.g. 5xx, network
// timeout).
type TransientError struct {
	Err        error
	StatusCode int
}

func (e *TransientError) Error() string { return e.Err.Error() }
func (e *TransientError) Unwrap() error { return e.Err }

// NewTransientError wraps an error as transient with an optional HTTP
// status code.
func NewTransientError(err error, statusCode int) *TransientError {
	return &TransientError{Err: err, StatusCode: statusCode}
}

// RateLimitedError reports that a per-source request window is exhausted.
// It is returned immediately rather than blocking the caller.
type RateLimitedError struct {
	Source     string
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return "rate limited: " + e.Source
}

// ValidationError marks a malformed request. Never retried.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

// NewValidationError creates a ValidationError with the given message.
func NewValidationError(msg string) *ValidationError {
	return &ValidationError{Msg: msg}
}

// ParseError marks an answer whose shape could not be interpreted. The
// answer is skipped; the surrounding job continues.
type ParseError struct {
	Engine string
	Err    error
}

func (e *ParseError) Error() string {
	return "parse " + e.Engine + ": " + e.Err.Error()
}

func (e *ParseError) Unwrap() error { return e.Err }

// PersistenceError marks a store write failure. The owning job fails and
// becomes eligible for re-enqueue up to its attempt bound.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return "persistence " + e.Op + ": " + e.Err.Error()
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// IsRateLimited reports whether the error chain contains a RateLimitedError.
func IsRateLimited(err error) bool {
	var rl *RateLimitedError
	return errors.As(err, &rl)
}

// IsValidation reports whether the error chain contains a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsParse reports whether the error chain contains a ParseError.
func IsParse(err error) bool {
	var pe *ParseError
	return errors.As(err, &pe)
}

// IsPersistence reports whether the error chain contains a PersistenceError.
func IsPersistence(err error) bool {
	var pe *PersistenceError
	return errors.As(err, &pe)
}

// IsTransient returns true if the error (or any error in its chain) is a
// TransientError, or matches common transient network failure patterns.
// RateLimited, Validation, Parse and Persistence errors are never
// transient; RateLimited has its own deferral path.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if IsRateLimited(err) || IsValidation(err) || IsParse(err) || IsPersistence(err) {
		return false
	}

	var te *TransientError
	if errors.As(err, &te) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNABORTED) {
		return true
	}

	// String heuristics for errors wrapped by HTTP clients.
	msg := strings.ToLower(err.Error())
	for _, p := range []string{
		"connection reset by peer",
		"broken pipe",
		"temporary failure in name resolution",
		"no such host",
		"tls handshake timeout",
		"i/o timeout",
		"server closed idle connection",
		"transport connection broken",
	} {
		if strings.Contains(msg, p) {
			return true
		}
	}

	return false
}

// IsTransientHTTPStatus returns true for status codes indicating a
// server-side issue that is safe to retry.
func IsTransientHTTPStatus(statusCode int) bool {
	switch statusCode {
	case 408, 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}
