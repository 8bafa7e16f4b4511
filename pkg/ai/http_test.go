package ai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPCompleter_Success(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"model": "gpt-test",
			"choices": [{"message": {"role": "assistant", "content": "Hello there"}}],
			"usage": {"prompt_tokens": 7, "completion_tokens": 3, "total_tokens": 10}
		}`))
	}))
	defer srv.Close()

	temp := 0.2
	resp, err := NewHTTPCompleter(srv.Client()).Complete(context.Background(), Request{
		BaseURL:     srv.URL + "/v1/",
		APIKey:      "sk-test",
		Model:       "gpt-test",
		Temperature: &temp,
		JSONMode:    true,
		Messages: []*schema.Message{
			schema.SystemMessage("be brief"),
			schema.UserMessage("hi"),
		},
	})
	require.NoError(t, err)

	assert.Equal(t, "Hello there", resp.Content)
	assert.Equal(t, Usage{PromptTokens: 7, CompletionTokens: 3, TotalTokens: 10}, resp.Usage)
	assert.Equal(t, "gpt-test", got["model"])
	assert.Equal(t, 0.2, got["temperature"])
	assert.Equal(t, map[string]any{"type": "json_object"}, got["response_format"])
	msgs := got["messages"].([]any)
	require.Len(t, msgs, 2)
	assert.Equal(t, "system", msgs[0].(map[string]any)["role"])
}

func TestHTTPCompleter_Errors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error": {"message": "bad key", "type": "invalid_request_error"}}`))
	}))
	defer srv.Close()

	_, err := NewHTTPCompleter(nil).Complete(context.Background(), Request{BaseURL: srv.URL, Model: "m"})
	require.Error(t, err)

	var aiErr *Error
	require.True(t, errors.As(err, &aiErr))
	assert.Equal(t, http.StatusUnauthorized, aiErr.StatusCode)
	assert.Equal(t, "invalid_request_error", aiErr.Code)
	assert.Equal(t, "bad key", aiErr.Message)
	assert.True(t, IsPermanent(err))
	assert.Equal(t, "invalid_request_error", ErrorCode(err))
}

func TestErrorClassification(t *testing.T) {
	assert.False(t, IsPermanent(&Error{StatusCode: 503}))
	assert.Equal(t, 503, StatusCode(&Error{StatusCode: 503}))
	assert.Equal(t, "timeout", ErrorCode(context.DeadlineExceeded))
	assert.Equal(t, "network_error", ErrorCode(errors.New("dial tcp: refused")))

	err := classify(errors.New("error, status code: 429, message: slow down"))
	assert.Equal(t, 429, StatusCode(err))
	assert.True(t, IsPermanent(err))
}

func TestLookupPreset(t *testing.T) {
	p, ok := LookupPreset("groq")
	require.True(t, ok)
	assert.Equal(t, "https://api.groq.com/openai/v1", p.BaseURL)
}
