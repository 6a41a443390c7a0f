package resilience

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"syscall"

	"github.com/rotisserie/eris"
)

// TransientError marks an error as safe to retry (network timeout, reset,
// upstream still rendering).
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string { return e.Err.Error() }

func (e *TransientError) Unwrap() error { return e.Err }

// NewTransientError wraps err as retryable.
func NewTransientError(err error) *TransientError {
	return &TransientError{Err: err}
}

// StatusError carries an upstream HTTP status code so retry predicates can
// decide retryability. 5xx plus 408/429 count as transient, other 4xx do not.
type StatusError struct {
	Code int
	URL  string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream status %d from %s", e.Code, e.URL)
}

// NewStatusError creates a StatusError for the given code and URL.
func NewStatusError(code int, url string) *StatusError {
	return &StatusError{Code: code, URL: url}
}

// ErrCircuitOpen is returned when a call is rejected because the circuit is
// open. It is never retryable: the caller must wait out the reset window.
var ErrCircuitOpen = eris.New("circuit breaker is open")

// IsTransient reports whether the error (or anything in its chain) is safe to
// retry: an explicit TransientError, a retryable StatusError, a network
// timeout, or a connection-level failure.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, ErrCircuitOpen) {
		return false
	}

	var te *TransientError
	if errors.As(err, &te) {
		return true
	}

	var se *StatusError
	if errors.As(err, &se) {
		return IsTransientStatus(se.Code)
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
	} {
		if strings.Contains(msg, p) {
			return true
		}
	}

	return false
}

// IsTransientStatus reports whether an HTTP status code indicates a
// server-side issue worth retrying.
func IsTransientStatus(code int) bool {
	switch code {
	case 408, 429:
		return true
	}
	return code >= 500 && code < 600
}

// Canned retry predicates for RetryConfig.ShouldRetry.
var (
	// RetryTransient retries network failures and 5xx-class statuses.
	RetryTransient = IsTransient
	// RetryNever disables retries entirely.
	RetryNever = func(error) bool { return false }
	// RetryAlways retries every error until attempts run out.
	RetryAlways = func(err error) bool { return err != nil }
)

// Classify labels an error as "transient" or "permanent" for log fields.
func Classify(err error) string {
	if IsTransient(err) {
		return "transient"
	}
	return "permanent"
}
