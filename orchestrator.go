// Package gengate gates outbound calls to a rate-limited generation
// service. It tracks rolling per-endpoint request and token budgets,
// admits or delays concurrent callers without overcommitting quota, and
// retries transient upstream failures with backoff and endpoint
// fallback.
package gengate

import (
	"context"
	"time"
)

// switchMargin is how much longer the primary's wait must be than the
// fallback's before an attempt switches endpoints early.
const switchMargin = 500 * time.Millisecond

// Orchestrator drives a bounded sequence of attempts for each
// generation request, reserving quota before every attempt (retries
// included) so a retry storm can never exceed the budget a single
// well-behaved caller would respect.
type Orchestrator struct {
	cfg        Config
	limiter    *Limiter
	invoker    Invoker
	meter      Meter
	health     *HealthTracker
	ownLimiter bool
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLimiter uses an externally managed Limiter instead of creating
// one. The caller remains responsible for closing it.
func WithLimiter(l *Limiter) Option {
	return func(o *Orchestrator) { o.limiter = l }
}

// WithMeter sets the meter.
func WithMeter(m Meter) Option {
	return func(o *Orchestrator) { o.meter = m }
}

// WithHealthTracker sets the health tracker.
func WithHealthTracker(h *HealthTracker) Option {
	return func(o *Orchestrator) { o.health = h }
}

// NewOrchestrator creates an Orchestrator with the given config and
// upstream invoker. A Limiter, noop meter, and health tracker are
// created unless overridden via options.
func NewOrchestrator(cfg Config, invoker Invoker, opts ...Option) (*Orchestrator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := &Orchestrator{
		cfg:     cfg,
		invoker: invoker,
	}
	for _, opt := range opts {
		opt(o)
	}

	if o.meter == nil {
		o.meter = noopMeter{}
	}
	if o.health == nil {
		o.health = NewHealthTracker()
	}
	if o.limiter == nil {
		l, err := NewLimiter(cfg, WithLimiterMeter(o.meter))
		if err != nil {
			return nil, err
		}
		o.limiter = l
		o.ownLimiter = true
	}

	return o, nil
}

// Limiter returns the orchestrator's rate limiter, e.g. for snapshots.
func (o *Orchestrator) Limiter() *Limiter {
	return o.limiter
}

// Close releases the orchestrator's own limiter. Limiters supplied via
// WithLimiter are left running.
func (o *Orchestrator) Close() {
	if o.ownLimiter {
		o.limiter.Close()
	}
}

// Generate performs one logical generation request: reserve quota,
// call the upstream, commit or release, and retry with backoff and
// endpoint fallback on transient failures. The caller sees either a
// successful Response or a single terminal error; intermediate retries
// are only visible through the Meter.
func (o *Orchestrator) Generate(ctx context.Context, req Request) (Response, error) {
	primary := req.Endpoint
	if primary == "" {
		primary = o.cfg.Routing.Primary
	}
	secondary := o.cfg.Routing.Fallback
	if secondary == primary {
		secondary = ""
	}

	maxAttempts := o.cfg.Retry.MaxAttempts
	tried := make(map[string]bool, 2)
	var lastErr error
	var lastEndpoint string

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		endpoint := o.chooseEndpoint(attempt, maxAttempts, primary, secondary, tried, req.EstimatedTokens)
		lastEndpoint = endpoint

		res, err := o.limiter.Reserve(ctx, endpoint, req.EstimatedTokens)
		if err != nil {
			return Response{}, err
		}
		tried[endpoint] = true

		o.meter.OnAttempt(AttemptEvent{
			Endpoint:        endpoint,
			Attempt:         attempt,
			EstimatedTokens: req.EstimatedTokens,
		})

		start := time.Now()
		result, err := o.invoker.Invoke(ctx, endpoint, req.Prompt)
		duration := time.Since(start)

		if err == nil {
			commitErr := o.limiter.Commit(res, result.Usage.TotalTokens)
			o.health.RecordSuccess(endpoint)
			o.meter.OnResult(ResultEvent{
				Endpoint: endpoint,
				Attempt:  attempt,
				Success:  true,
				Duration: duration,
				Usage:    result.Usage,
			})
			if commitErr != nil {
				return Response{}, commitErr
			}
			return Response{
				Content:      result.Content,
				FinishReason: result.FinishReason,
				Endpoint:     endpoint,
				Attempts:     attempt,
				Usage:        result.Usage,
			}, nil
		}

		// Failed calls consume no quota.
		if relErr := o.limiter.Release(res); relErr != nil {
			return Response{}, relErr
		}
		o.health.RecordFailure(endpoint)
		o.meter.OnResult(ResultEvent{
			Endpoint: endpoint,
			Attempt:  attempt,
			Success:  false,
			Duration: duration,
			Error:    err,
		})

		if IsFatal(err) {
			return Response{}, &GenerateError{Err: err, Endpoint: endpoint, Attempts: attempt}
		}
		lastErr = err

		retryAfter, hasRetryAfter := RetryAfter(err)
		if hasRetryAfter {
			_ = o.limiter.RegisterBackoff(endpoint, retryAfter)
		}

		if attempt == maxAttempts {
			break
		}

		delay := retryDelay(attempt, o.cfg.Retry.BaseDelay, o.cfg.Retry.MaxDelay, o.cfg.Retry.Jitter)
		if hasRetryAfter && retryAfter > delay {
			delay = retryAfter
		}
		o.meter.OnBackoff(BackoffEvent{Endpoint: endpoint, Attempt: attempt, Delay: delay})

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return Response{}, ctx.Err()
		case <-timer.C:
		}
	}

	return Response{}, &GenerateError{
		Err:       lastErr,
		Endpoint:  lastEndpoint,
		Attempts:  maxAttempts,
		Exhausted: true,
	}
}

// chooseEndpoint picks the endpoint for one attempt. Before the final
// attempt the primary is preferred unless it is unhealthy or its wait
// exceeds the fallback's by a meaningful margin; the final attempt
// always goes to the fallback if it has not been tried yet.
func (o *Orchestrator) chooseEndpoint(attempt, maxAttempts int, primary, secondary string, tried map[string]bool, tokens int64) string {
	if secondary == "" {
		return primary
	}

	if attempt == maxAttempts && attempt > 1 && !tried[secondary] {
		return secondary
	}

	if o.health.State(primary) == HealthUnhealthy && o.health.State(secondary) != HealthUnhealthy {
		return secondary
	}

	waitPrimary, err := o.limiter.WaitTime(primary, tokens)
	if err != nil || waitPrimary == 0 {
		return primary
	}
	waitSecondary, err := o.limiter.WaitTime(secondary, tokens)
	if err != nil {
		return primary
	}
	if waitPrimary > waitSecondary+switchMargin {
		return secondary
	}
	return primary
}
