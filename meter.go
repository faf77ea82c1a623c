package gengate

import "time"

// Meter observes gate activity for logging and monitoring. Callers
// never see intermediate retry or backoff states directly; a Meter is
// the supported way to surface them (e.g. for a status UI).
type Meter interface {
	// OnAttempt is called after quota is reserved, before the upstream
	// call is dispatched.
	OnAttempt(event AttemptEvent)

	// OnResult is called when an upstream call returns.
	OnResult(event ResultEvent)

	// OnBackoff is called when a delay is scheduled before a retry.
	OnBackoff(event BackoffEvent)

	// OnAbandoned is called when the sweep force-releases a reservation
	// that was never committed or released.
	OnAbandoned(event AbandonEvent)
}

// AttemptEvent describes one dispatch in a generation sequence.
type AttemptEvent struct {
	Endpoint        string
	Attempt         int
	EstimatedTokens int64
}

// ResultEvent describes the outcome of one upstream call.
type ResultEvent struct {
	Endpoint string
	Attempt  int
	Success  bool
	Duration time.Duration
	Usage    Usage
	Error    error
}

// BackoffEvent describes a scheduled retry delay.
type BackoffEvent struct {
	Endpoint string
	Attempt  int
	Delay    time.Duration
}

// AbandonEvent describes a force-released reservation.
type AbandonEvent struct {
	Endpoint        string
	ReservationID   string
	EstimatedTokens int64
	Age             time.Duration
}

// noopMeter is the default meter; it does nothing.
type noopMeter struct{}

func (noopMeter) OnAttempt(AttemptEvent)   {}
func (noopMeter) OnResult(ResultEvent)     {}
func (noopMeter) OnBackoff(BackoffEvent)   {}
func (noopMeter) OnAbandoned(AbandonEvent) {}
