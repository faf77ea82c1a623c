// Package gemini adapts the Gemini generateContent API to the gengate
// Invoker contract. The endpoint name is used as the model name, and
// HTTP failures are mapped onto the gate's error taxonomy so the
// orchestrator can classify them without inspecting response bodies.
package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/catalystlabs/gengate"
)

const defaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// Invoker calls the Gemini API.
type Invoker struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

var _ gengate.Invoker = (*Invoker)(nil)

// Option configures the invoker.
type Option func(*Invoker)

// WithBaseURL sets a custom base URL.
func WithBaseURL(url string) Option {
	return func(inv *Invoker) { inv.baseURL = strings.TrimRight(url, "/") }
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(inv *Invoker) { inv.httpClient = c }
}

// New creates a Gemini invoker authenticated with apiKey.
func New(apiKey string, opts ...Option) *Invoker {
	inv := &Invoker{
		apiKey:     apiKey,
		baseURL:    defaultBaseURL,
		httpClient: http.DefaultClient,
	}
	for _, opt := range opts {
		opt(inv)
	}
	return inv
}

// Gemini API types.
type geminiRequest struct {
	Contents          []geminiContent `json:"contents"`
	SystemInstruction *geminiContent  `json:"systemInstruction,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiResponse struct {
	Candidates []struct {
		Content      geminiContent `json:"content"`
		FinishReason string        `json:"finishReason"`
	} `json:"candidates"`
	UsageMetadata struct {
		PromptTokenCount     int64 `json:"promptTokenCount"`
		CandidatesTokenCount int64 `json:"candidatesTokenCount"`
		TotalTokenCount      int64 `json:"totalTokenCount"`
	} `json:"usageMetadata"`
}

func (inv *Invoker) Invoke(ctx context.Context, endpoint string, prompt gengate.Prompt) (gengate.Result, error) {
	body := buildRequest(prompt)
	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s", inv.baseURL, endpoint, inv.apiKey)

	jsonBody, err := json.Marshal(body)
	if err != nil {
		return gengate.Result{}, fmt.Errorf("gengate: marshal gemini request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonBody))
	if err != nil {
		return gengate.Result{}, fmt.Errorf("gengate: create gemini request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := inv.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return gengate.Result{}, ctx.Err()
		}
		return gengate.Result{}, gengate.ErrUnavailable
	}
	defer httpResp.Body.Close()

	if err := mapHTTPError(endpoint, httpResp); err != nil {
		return gengate.Result{}, err
	}

	var resp geminiResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return gengate.Result{}, fmt.Errorf("gengate: decode gemini response: %w", err)
	}
	if len(resp.Candidates) == 0 {
		return gengate.Result{}, fmt.Errorf("gengate: empty candidates in gemini response")
	}

	content := ""
	if len(resp.Candidates[0].Content.Parts) > 0 {
		content = resp.Candidates[0].Content.Parts[0].Text
	}

	return gengate.Result{
		Content:      content,
		FinishReason: strings.ToLower(resp.Candidates[0].FinishReason),
		Usage: gengate.Usage{
			PromptTokens:     resp.UsageMetadata.PromptTokenCount,
			CompletionTokens: resp.UsageMetadata.CandidatesTokenCount,
			TotalTokens:      resp.UsageMetadata.TotalTokenCount,
		},
	}, nil
}

func buildRequest(prompt gengate.Prompt) geminiRequest {
	var contents []geminiContent
	for _, m := range prompt.Messages {
		role := m.Role
		if role == "assistant" {
			role = "model"
		}
		contents = append(contents, geminiContent{
			Role:  role,
			Parts: []geminiPart{{Text: m.Content}},
		})
	}

	gr := geminiRequest{Contents: contents}
	if prompt.System != "" {
		gr.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: prompt.System}}}
	}
	return gr
}

func mapHTTPError(endpoint string, resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	switch resp.StatusCode {
	case http.StatusTooManyRequests:
		message, retryIn := parseQuotaError(body)
		return &gengate.UpstreamQuotaError{
			Endpoint: endpoint,
			Message:  message,
			RetryIn:  retryIn,
		}
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %s", gengate.ErrAuthFailed, string(body))
	case http.StatusBadRequest:
		return fmt.Errorf("%w: %s", gengate.ErrInvalidRequest, string(body))
	case http.StatusServiceUnavailable:
		return fmt.Errorf("%w: %s", gengate.ErrOverloaded, string(body))
	default:
		return gengate.ErrUnavailable
	}
}

// quotaPayload is the error body shape on 429 responses. RetryInfo
// details carry a delay like "17s".
type quotaPayload struct {
	Error struct {
		Message string `json:"message"`
		Details []struct {
			Type       string `json:"@type"`
			RetryDelay string `json:"retryDelay"`
		} `json:"details"`
	} `json:"error"`
}

var retryDelayPattern = regexp.MustCompile(`([0-9]+(?:\.[0-9]+)?)s`)

func parseQuotaError(body []byte) (string, time.Duration) {
	message := "quota exceeded"
	var retryIn time.Duration

	var payload quotaPayload
	if err := json.Unmarshal(body, &payload); err == nil {
		if payload.Error.Message != "" {
			message = payload.Error.Message
		}
		for _, detail := range payload.Error.Details {
			if !strings.HasSuffix(detail.Type, "RetryInfo") || detail.RetryDelay == "" {
				continue
			}
			if m := retryDelayPattern.FindStringSubmatch(detail.RetryDelay); m != nil {
				var secs float64
				if _, err := fmt.Sscanf(m[1], "%f", &secs); err == nil {
					retryIn = time.Duration(secs * float64(time.Second))
				}
			}
		}
	}

	return message, retryIn
}
