package gengate

import "context"

// Invoker performs a single generation call against a named endpoint.
// Implementations live in upstream/ (or are supplied by the caller);
// the gate only inspects the returned error for retryability and the
// Usage for quota accounting.
type Invoker interface {
	Invoke(ctx context.Context, endpoint string, prompt Prompt) (Result, error)
}

// Result is the outcome of one upstream call.
type Result struct {
	Content      string
	FinishReason string
	Usage        Usage
}
