package gengate

// Dimension identifies one budgeted resource on an endpoint.
type Dimension string

const (
	DimRequestsPerMinute Dimension = "requests_per_minute"
	DimTokensPerMinute   Dimension = "tokens_per_minute"
	DimRequestsPerDay    Dimension = "requests_per_day"
)

// Message is a single turn of a prompt.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Prompt is the content sent to the generation service. The gate treats
// it as opaque; only the Invoker interprets it.
type Prompt struct {
	System   string    `json:"system,omitempty"`
	Messages []Message `json:"messages"`
}

// Usage reports token consumption for a completed call.
type Usage struct {
	PromptTokens     int64 `json:"prompt_tokens"`
	CompletionTokens int64 `json:"completion_tokens"`
	TotalTokens      int64 `json:"total_tokens"`
}

// Request is a single logical generation request.
type Request struct {
	// Endpoint is the preferred endpoint. Empty means the configured
	// primary endpoint.
	Endpoint string

	Prompt Prompt

	// EstimatedTokens is the caller-computed cost estimate used for
	// quota reservations. See EstimateTokens for a crude heuristic.
	EstimatedTokens int64
}

// Response is the result of a successful generation.
type Response struct {
	Content      string
	FinishReason string
	Endpoint     string
	Attempts     int
	Usage        Usage
}
