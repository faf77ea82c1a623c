package gengate

import (
	"sync"
	"time"
)

const (
	healthFailureThreshold = 3
	healthFailureWindow    = 5 * time.Minute
	healthUnhealthyPeriod  = 30 * time.Second
)

// HealthState describes the recent reliability of an endpoint.
type HealthState int

const (
	HealthHealthy HealthState = iota
	HealthUnhealthy
	HealthHalfOpen
)

func (h HealthState) String() string {
	switch h {
	case HealthHealthy:
		return "healthy"
	case HealthUnhealthy:
		return "unhealthy"
	case HealthHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// HealthTracker tracks per-endpoint failures with a circuit breaker:
// repeated failures within a window mark the endpoint unhealthy, and
// after a cool-down it transitions to half-open until the next outcome.
// The orchestrator consults it when deciding whether to switch to the
// fallback endpoint early.
type HealthTracker struct {
	mu        sync.Mutex
	endpoints map[string]*endpointHealth
}

type endpointHealth struct {
	state       HealthState
	failures    []time.Time
	unhealthyAt time.Time
}

// NewHealthTracker creates an empty HealthTracker.
func NewHealthTracker() *HealthTracker {
	return &HealthTracker{endpoints: make(map[string]*endpointHealth)}
}

// State returns the current health of an endpoint. Unknown endpoints
// are healthy.
func (h *HealthTracker) State(endpoint string) HealthState {
	h.mu.Lock()
	defer h.mu.Unlock()

	eh, ok := h.endpoints[endpoint]
	if !ok {
		return HealthHealthy
	}
	if eh.state == HealthUnhealthy && time.Since(eh.unhealthyAt) >= healthUnhealthyPeriod {
		eh.state = HealthHalfOpen
	}
	return eh.state
}

// RecordSuccess marks the endpoint healthy and clears its failure
// history.
func (h *HealthTracker) RecordSuccess(endpoint string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	eh := h.getOrCreate(endpoint)
	eh.state = HealthHealthy
	eh.failures = eh.failures[:0]
}

// RecordFailure records a failed call; crossing the threshold within
// the failure window opens the breaker.
func (h *HealthTracker) RecordFailure(endpoint string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	eh := h.getOrCreate(endpoint)
	if eh.state == HealthUnhealthy {
		return
	}

	now := time.Now()
	cutoff := now.Add(-healthFailureWindow)
	recent := eh.failures[:0]
	for _, t := range eh.failures {
		if t.After(cutoff) {
			recent = append(recent, t)
		}
	}
	eh.failures = append(recent, now)

	if len(eh.failures) >= healthFailureThreshold {
		eh.state = HealthUnhealthy
		eh.unhealthyAt = now
	}
}

func (h *HealthTracker) getOrCreate(endpoint string) *endpointHealth {
	eh, ok := h.endpoints[endpoint]
	if !ok {
		eh = &endpointHealth{state: HealthHealthy}
		h.endpoints[endpoint] = eh
	}
	return eh
}
