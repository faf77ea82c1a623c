package gengate

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// retryableMarkers are inspected as a fallback when an upstream error
// does not wrap one of the sentinels. Matching error text is fragile,
// so it is confined to this one unit.
var retryableMarkers = []string{
	"503",
	"overloaded",
	"unavailable",
	"try again later",
}

// IsRetryable reports whether err signals transient upstream trouble
// that may succeed on a later attempt or another endpoint.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrOverloaded) ||
		errors.Is(err, ErrUnavailable) ||
		errors.Is(err, ErrQuotaExhausted) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range retryableMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// IsFatal reports whether err should abort the generation sequence
// immediately. Anything not retryable is fatal.
func IsFatal(err error) bool {
	return err != nil && !IsRetryable(err)
}

// retryAfterer is implemented by upstream errors that carry an explicit
// retry delay, e.g. from a RetryInfo detail on a quota response.
type retryAfterer interface {
	RetryAfter() time.Duration
}

var retryInPattern = regexp.MustCompile(`retry in\s+([0-9]+(?:\.[0-9]+)?)\s*s`)

// RetryAfter extracts an upstream-suggested retry delay from err.
// It honors the RetryAfter method when present and falls back to a
// "retry in Ns" hint in the message text.
func RetryAfter(err error) (time.Duration, bool) {
	if err == nil {
		return 0, false
	}
	var ra retryAfterer
	if errors.As(err, &ra) {
		if d := ra.RetryAfter(); d > 0 {
			return d, true
		}
	}
	if m := retryInPattern.FindStringSubmatch(strings.ToLower(err.Error())); m != nil {
		var secs float64
		if _, err := fmt.Sscanf(m[1], "%f", &secs); err == nil && secs > 0 {
			return time.Duration(secs * float64(time.Second)), true
		}
	}
	return 0, false
}

// UpstreamQuotaError is returned by upstream adapters when the service
// rejects a call for quota reasons (HTTP 429 and friends). It is
// retryable and may carry an explicit retry delay.
type UpstreamQuotaError struct {
	Endpoint string
	Message  string
	RetryIn  time.Duration
}

func (e *UpstreamQuotaError) Error() string {
	if e.RetryIn > 0 {
		return fmt.Sprintf("gengate: endpoint %q quota exhausted: %s (retry in %s)", e.Endpoint, e.Message, e.RetryIn)
	}
	return fmt.Sprintf("gengate: endpoint %q quota exhausted: %s", e.Endpoint, e.Message)
}

func (e *UpstreamQuotaError) Unwrap() error { return ErrQuotaExhausted }

// RetryAfter returns the delay suggested by the service, zero if none.
func (e *UpstreamQuotaError) RetryAfter() time.Duration { return e.RetryIn }
