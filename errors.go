package gengate

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Sentinel errors. Upstream adapters wrap these so classification can
// use errors.Is instead of message inspection.
var (
	ErrUnknownEndpoint = errors.New("gengate: unknown endpoint")
	ErrLimiterClosed   = errors.New("gengate: limiter closed")

	ErrOverloaded     = errors.New("gengate: upstream overloaded")
	ErrUnavailable    = errors.New("gengate: upstream unavailable")
	ErrQuotaExhausted = errors.New("gengate: upstream quota exhausted")
	ErrAuthFailed     = errors.New("gengate: authentication failed")
	ErrInvalidRequest = errors.New("gengate: invalid request")
)

// WouldExceedQuotaError reports a denied admission. It is a control-flow
// signal, not a failure: it carries the per-dimension waits so callers
// can decide whether to wait or switch endpoints.
type WouldExceedQuotaError struct {
	Endpoint string
	Waits    map[Dimension]time.Duration
	Backoff  time.Duration
}

func (e *WouldExceedQuotaError) Error() string {
	parts := make([]string, 0, len(e.Waits)+1)
	for dim, w := range e.Waits {
		if w > 0 {
			parts = append(parts, fmt.Sprintf("%s in %s", dim, w))
		}
	}
	sort.Strings(parts)
	if e.Backoff > 0 {
		parts = append(parts, fmt.Sprintf("backoff for %s", e.Backoff))
	}
	if len(parts) == 0 {
		return fmt.Sprintf("gengate: endpoint %q would exceed quota", e.Endpoint)
	}
	return fmt.Sprintf("gengate: endpoint %q would exceed quota (%s)", e.Endpoint, strings.Join(parts, ", "))
}

// Wait returns the maximum wait across dimensions and backoff.
func (e *WouldExceedQuotaError) Wait() time.Duration {
	wait := e.Backoff
	for _, w := range e.Waits {
		if w > wait {
			wait = w
		}
	}
	return wait
}

// ReservationError reports a reservation lifecycle violation: commit or
// release of an unknown or already-settled reservation. It always
// indicates a programming error that has drifted the quota accounting,
// so it is surfaced rather than swallowed.
type ReservationError struct {
	Op       string
	ID       string
	Endpoint string
}

func (e *ReservationError) Error() string {
	return fmt.Sprintf("gengate: %s of unknown or settled reservation %s on endpoint %q", e.Op, e.ID, e.Endpoint)
}

// GenerateError wraps the terminal error of a generation sequence with
// its attempt context.
type GenerateError struct {
	Err       error
	Endpoint  string
	Attempts  int
	Exhausted bool
}

func (e *GenerateError) Error() string {
	if e.Exhausted {
		return fmt.Sprintf("gengate: generation failed after %d attempts (last endpoint %s): %v", e.Attempts, e.Endpoint, e.Err)
	}
	return fmt.Sprintf("gengate: endpoint=%s attempts=%d: %v", e.Endpoint, e.Attempts, e.Err)
}

func (e *GenerateError) Unwrap() error {
	return e.Err
}
