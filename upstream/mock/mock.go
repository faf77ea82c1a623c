// Package mock provides a scriptable Invoker for tests and examples.
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/catalystlabs/gengate"
)

// Invoker is a mock generation upstream.
type Invoker struct {
	mu      sync.Mutex
	calls   []string
	errs    []error
	latency time.Duration
	usage   gengate.Usage
	respond func(endpoint string, prompt gengate.Prompt) (gengate.Result, error)
}

var _ gengate.Invoker = (*Invoker)(nil)

// Option configures a mock Invoker.
type Option func(*Invoker)

// New creates a mock invoker with the given options.
func New(opts ...Option) *Invoker {
	inv := &Invoker{
		usage: gengate.Usage{
			PromptTokens:     10,
			CompletionTokens: 20,
			TotalTokens:      30,
		},
	}
	for _, opt := range opts {
		opt(inv)
	}
	return inv
}

// WithLatency adds simulated latency to each call.
func WithLatency(d time.Duration) Option {
	return func(inv *Invoker) { inv.latency = d }
}

// WithErrors scripts the errors returned by successive calls; calls
// past the end of the script succeed.
func WithErrors(errs ...error) Option {
	return func(inv *Invoker) { inv.errs = errs }
}

// WithUsage sets the usage reported on success.
func WithUsage(u gengate.Usage) Option {
	return func(inv *Invoker) { inv.usage = u }
}

// WithResponseFunc sets a custom response function, overriding the
// error script.
func WithResponseFunc(fn func(endpoint string, prompt gengate.Prompt) (gengate.Result, error)) Option {
	return func(inv *Invoker) { inv.respond = fn }
}

func (inv *Invoker) Invoke(ctx context.Context, endpoint string, prompt gengate.Prompt) (gengate.Result, error) {
	if inv.latency > 0 {
		timer := time.NewTimer(inv.latency)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return gengate.Result{}, ctx.Err()
		}
	}

	inv.mu.Lock()
	call := len(inv.calls)
	inv.calls = append(inv.calls, endpoint)
	var scripted error
	if call < len(inv.errs) {
		scripted = inv.errs[call]
	}
	inv.mu.Unlock()

	if inv.respond != nil {
		return inv.respond(endpoint, prompt)
	}
	if scripted != nil {
		return gengate.Result{}, scripted
	}

	return gengate.Result{
		Content:      "Hello from mock upstream",
		FinishReason: "stop",
		Usage:        inv.usage,
	}, nil
}

// Calls returns the endpoints called so far, in order.
func (inv *Invoker) Calls() []string {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	out := make([]string, len(inv.calls))
	copy(out, inv.calls)
	return out
}

// CallCount returns the number of calls made.
func (inv *Invoker) CallCount() int {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	return len(inv.calls)
}
