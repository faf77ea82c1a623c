package gengate

import (
	"context"
	"sort"
	"sync"
	"time"
)

// minReserveWait bounds how long a blocked waiter sleeps before
// re-checking admission, even when no wake event arrives.
const minReserveWait = 50 * time.Millisecond

// Limiter is the unit of concurrency control: it owns one quota tracker
// per configured endpoint and admits concurrent callers in arrival
// order. Endpoints are independent; cross-endpoint selection belongs to
// the Orchestrator.
type Limiter struct {
	endpoints map[string]*endpointState
	grace     time.Duration
	meter     Meter

	stop      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// endpointState is one endpoint's tracker plus its FIFO waiter queue.
// The mutex guards both; it is never held while sleeping.
type endpointState struct {
	mu      sync.Mutex
	tracker *tracker
	waiters []*waiter
}

type waiter struct {
	ready chan struct{}
}

// LimiterOption configures a Limiter.
type LimiterOption func(*Limiter)

// WithLimiterMeter sets the meter the limiter reports abandoned
// reservations to.
func WithLimiterMeter(m Meter) LimiterOption {
	return func(l *Limiter) { l.meter = m }
}

// NewLimiter creates a Limiter for the configured endpoints and starts
// the background sweep that reclaims abandoned reservations. Close must
// be called to stop it.
func NewLimiter(cfg Config, opts ...LimiterOption) (*Limiter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	l := &Limiter{
		endpoints: make(map[string]*endpointState, len(cfg.Endpoints)),
		grace:     cfg.GracePeriod,
		meter:     noopMeter{},
		stop:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}

	for _, ep := range cfg.Endpoints {
		l.endpoints[ep.Name] = &endpointState{
			tracker: newTracker(ep, time.Now),
		}
	}

	l.wg.Add(1)
	go l.sweepLoop()

	return l, nil
}

// Close stops the sweep and fails all blocked Reserve calls with
// ErrLimiterClosed.
func (l *Limiter) Close() {
	l.closeOnce.Do(func() { close(l.stop) })
	l.wg.Wait()
}

func (l *Limiter) endpoint(name string) (*endpointState, error) {
	es, ok := l.endpoints[name]
	if !ok {
		return nil, ErrUnknownEndpoint
	}
	return es, nil
}

// TryReserve attempts a reservation without blocking. On denial it
// returns a *WouldExceedQuotaError carrying the per-dimension waits.
func (l *Limiter) TryReserve(endpoint string, estimatedTokens int64) (Reservation, error) {
	es, err := l.endpoint(endpoint)
	if err != nil {
		return Reservation{}, err
	}

	es.mu.Lock()
	defer es.mu.Unlock()

	// Blocked waiters arrived first; jumping them would break
	// arrival-order admission.
	if len(es.waiters) > 0 {
		if wErr := es.tracker.denial(estimatedTokens, es.tracker.now()); wErr != nil {
			return Reservation{}, wErr
		}
		return Reservation{}, &WouldExceedQuotaError{
			Endpoint: endpoint,
			Waits:    map[Dimension]time.Duration{},
		}
	}

	res, wErr := es.tracker.reserve(estimatedTokens)
	if wErr != nil {
		return Reservation{}, wErr
	}
	return res, nil
}

// Reserve blocks until the endpoint admits the estimate, then returns a
// pending Reservation. Waiters are admitted in arrival order. A caller
// whose ctx is cancelled leaves no state behind.
func (l *Limiter) Reserve(ctx context.Context, endpoint string, estimatedTokens int64) (Reservation, error) {
	es, err := l.endpoint(endpoint)
	if err != nil {
		return Reservation{}, err
	}

	es.mu.Lock()
	if len(es.waiters) == 0 {
		if res, wErr := es.tracker.reserve(estimatedTokens); wErr == nil {
			es.mu.Unlock()
			return res, nil
		}
	}

	w := &waiter{ready: make(chan struct{}, 1)}
	es.waiters = append(es.waiters, w)

	for {
		var wait time.Duration
		if es.waiters[0] == w {
			res, wErr := es.tracker.reserve(estimatedTokens)
			if wErr == nil {
				es.dequeueLocked(w)
				es.wakeHeadLocked()
				es.mu.Unlock()
				return res, nil
			}
			wait = wErr.Wait()
		} else {
			// Not our turn; the head will wake us when it advances.
			wait = es.tracker.timeUntilAdmit(estimatedTokens)
		}
		es.mu.Unlock()

		if wait < minReserveWait {
			wait = minReserveWait
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			es.mu.Lock()
			es.dequeueLocked(w)
			es.wakeHeadLocked()
			es.mu.Unlock()
			return Reservation{}, ctx.Err()
		case <-l.stop:
			timer.Stop()
			es.mu.Lock()
			es.dequeueLocked(w)
			es.wakeHeadLocked()
			es.mu.Unlock()
			return Reservation{}, ErrLimiterClosed
		case <-w.ready:
			timer.Stop()
		case <-timer.C:
		}
		es.mu.Lock()
	}
}

// Commit settles a reservation with the actual token usage.
func (l *Limiter) Commit(res Reservation, actualTokens int64) error {
	es, err := l.endpoint(res.Endpoint)
	if err != nil {
		return err
	}

	es.mu.Lock()
	defer es.mu.Unlock()

	if err := es.tracker.commit(res, actualTokens); err != nil {
		return err
	}
	es.wakeHeadLocked()
	return nil
}

// Release settles a reservation with zero cost recorded, freeing its
// pending estimate for other callers.
func (l *Limiter) Release(res Reservation) error {
	es, err := l.endpoint(res.Endpoint)
	if err != nil {
		return err
	}

	es.mu.Lock()
	defer es.mu.Unlock()

	if err := es.tracker.release(res); err != nil {
		return err
	}
	es.wakeHeadLocked()
	return nil
}

// WaitTime reports how long a reservation for the estimate would
// currently wait on the endpoint. It registers nothing, so concurrent
// speculative queries never perturb each other.
func (l *Limiter) WaitTime(endpoint string, estimatedTokens int64) (time.Duration, error) {
	es, err := l.endpoint(endpoint)
	if err != nil {
		return 0, err
	}

	es.mu.Lock()
	defer es.mu.Unlock()
	return es.tracker.timeUntilAdmit(estimatedTokens), nil
}

// RegisterBackoff holds the endpoint inadmissible for d, typically from
// an upstream retry-after hint.
func (l *Limiter) RegisterBackoff(endpoint string, d time.Duration) error {
	es, err := l.endpoint(endpoint)
	if err != nil {
		return err
	}

	es.mu.Lock()
	defer es.mu.Unlock()
	es.tracker.registerBackoff(d)
	return nil
}

// Snapshot returns a read-only view of every endpoint's quota state,
// ordered by endpoint name. It mutates nothing beyond lazy eviction.
func (l *Limiter) Snapshot() []EndpointSnapshot {
	snaps := make([]EndpointSnapshot, 0, len(l.endpoints))
	for _, es := range l.endpoints {
		es.mu.Lock()
		snaps = append(snaps, es.tracker.snapshot())
		es.mu.Unlock()
	}
	sort.Slice(snaps, func(i, j int) bool { return snaps[i].Endpoint < snaps[j].Endpoint })
	return snaps
}

// dequeueLocked removes w from the waiter queue.
func (es *endpointState) dequeueLocked(w *waiter) {
	for i, cur := range es.waiters {
		if cur == w {
			es.waiters = append(es.waiters[:i], es.waiters[i+1:]...)
			return
		}
	}
}

// wakeHeadLocked nudges the head waiter to re-check admission.
func (es *endpointState) wakeHeadLocked() {
	if len(es.waiters) == 0 {
		return
	}
	select {
	case es.waiters[0].ready <- struct{}{}:
	default:
	}
}

func (l *Limiter) sweepLoop() {
	defer l.wg.Done()

	interval := l.grace / 4
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-l.stop:
			return
		case <-ticker.C:
			l.sweepOnce()
		}
	}
}

// sweepOnce force-releases reservations older than the grace period on
// every endpoint and wakes any waiters that may now fit.
func (l *Limiter) sweepOnce() {
	for _, es := range l.endpoints {
		es.mu.Lock()
		swept := es.tracker.sweepAbandoned(l.grace)
		if len(swept) > 0 {
			es.wakeHeadLocked()
		}
		es.mu.Unlock()

		for _, res := range swept {
			l.meter.OnAbandoned(AbandonEvent{
				Endpoint:        res.Endpoint,
				ReservationID:   res.ID,
				EstimatedTokens: res.EstimatedTokens,
				Age:             time.Since(res.CreatedAt),
			})
		}
	}
}
