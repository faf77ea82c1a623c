package gemini_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/catalystlabs/gengate"
	"github.com/catalystlabs/gengate/upstream/gemini"
)

func serve(t *testing.T, handler http.HandlerFunc) *gemini.Invoker {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return gemini.New("test-key", gemini.WithBaseURL(srv.URL), gemini.WithHTTPClient(srv.Client()))
}

func TestInvoke_Success(t *testing.T) {
	inv := serve(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/models/gemini-2.5-pro:generateContent", r.URL.Path)
		assert.Equal(t, "test-key", r.URL.Query().Get("key"))

		var req map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Contains(t, req, "contents")
		assert.Contains(t, req, "systemInstruction")

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"candidates": [{
				"content": {"role": "model", "parts": [{"text": "The answer is 42."}]},
				"finishReason": "STOP"
			}],
			"usageMetadata": {
				"promptTokenCount": 12,
				"candidatesTokenCount": 8,
				"totalTokenCount": 20
			}
		}`))
	})

	result, err := inv.Invoke(context.Background(), "gemini-2.5-pro", gengate.Prompt{
		System:   "Be terse.",
		Messages: []gengate.Message{{Role: "user", Content: "What is the answer?"}},
	})
	require.NoError(t, err)

	assert.Equal(t, "The answer is 42.", result.Content)
	assert.Equal(t, "stop", result.FinishReason)
	assert.Equal(t, int64(12), result.Usage.PromptTokens)
	assert.Equal(t, int64(8), result.Usage.CompletionTokens)
	assert.Equal(t, int64(20), result.Usage.TotalTokens)
}

func TestInvoke_AssistantRoleMapsToModel(t *testing.T) {
	inv := serve(t, func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Contents []struct {
				Role string `json:"role"`
			} `json:"contents"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Contents, 2)
		assert.Equal(t, "user", req.Contents[0].Role)
		assert.Equal(t, "model", req.Contents[1].Role)

		_, _ = w.Write([]byte(`{"candidates": [{"content": {"parts": [{"text": "ok"}]}, "finishReason": "STOP"}]}`))
	})

	_, err := inv.Invoke(context.Background(), "gemini-2.5-flash", gengate.Prompt{
		Messages: []gengate.Message{
			{Role: "user", Content: "hi"},
			{Role: "assistant", Content: "hello"},
		},
	})
	require.NoError(t, err)
}

func TestInvoke_QuotaErrorCarriesRetryDelay(t *testing.T) {
	inv := serve(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{
			"error": {
				"code": 429,
				"message": "Quota exceeded for model gemini-2.5-pro",
				"details": [{
					"@type": "type.googleapis.com/google.rpc.RetryInfo",
					"retryDelay": "17s"
				}]
			}
		}`))
	})

	_, err := inv.Invoke(context.Background(), "gemini-2.5-pro", gengate.Prompt{})
	require.Error(t, err)

	var quotaErr *gengate.UpstreamQuotaError
	require.ErrorAs(t, err, &quotaErr)
	assert.Equal(t, "gemini-2.5-pro", quotaErr.Endpoint)
	assert.Equal(t, 17*time.Second, quotaErr.RetryIn)

	assert.ErrorIs(t, err, gengate.ErrQuotaExhausted)
	assert.True(t, gengate.IsRetryable(err))

	d, ok := gengate.RetryAfter(err)
	require.True(t, ok)
	assert.Equal(t, 17*time.Second, d)
}

func TestInvoke_QuotaErrorWithoutRetryInfo(t *testing.T) {
	inv := serve(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error": {"code": 429, "message": "Resource exhausted"}}`))
	})

	_, err := inv.Invoke(context.Background(), "gemini-2.5-pro", gengate.Prompt{})
	var quotaErr *gengate.UpstreamQuotaError
	require.ErrorAs(t, err, &quotaErr)
	assert.Equal(t, time.Duration(0), quotaErr.RetryIn)
	_, ok := gengate.RetryAfter(err)
	assert.False(t, ok)
}

func TestInvoke_ErrorMapping(t *testing.T) {
	tests := []struct {
		status    int
		sentinel  error
		retryable bool
	}{
		{http.StatusServiceUnavailable, gengate.ErrOverloaded, true},
		{http.StatusUnauthorized, gengate.ErrAuthFailed, false},
		{http.StatusForbidden, gengate.ErrAuthFailed, false},
		{http.StatusBadRequest, gengate.ErrInvalidRequest, false},
		{http.StatusInternalServerError, gengate.ErrUnavailable, true},
	}
	for _, tt := range tests {
		inv := serve(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tt.status)
			_, _ = w.Write([]byte(`{"error": {"message": "nope"}}`))
		})

		_, err := inv.Invoke(context.Background(), "gemini-2.5-pro", gengate.Prompt{})
		require.Error(t, err, "status %d", tt.status)
		assert.ErrorIs(t, err, tt.sentinel, "status %d", tt.status)
		assert.Equal(t, tt.retryable, gengate.IsRetryable(err), "status %d", tt.status)
	}
}

func TestInvoke_ContextCancelled(t *testing.T) {
	inv := serve(t, func(w http.ResponseWriter, r *http.Request) {
		// Drain the body so the server starts its background read and can
		// observe the client disconnect; otherwise r.Context() is never
		// cancelled and the handler (and srv.Close) would hang.
		_, _ = io.Copy(io.Discard, r.Body)
		<-r.Context().Done()
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := inv.Invoke(ctx, "gemini-2.5-pro", gengate.Prompt{})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
