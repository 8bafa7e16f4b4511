package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

// HTTPCompleter calls POST {BaseURL}/chat/completions.
type HTTPCompleter struct {
	client *http.Client
}

// NewHTTPCompleter creates a completer. A nil client uses http.DefaultClient;
// deadlines come from the request context.
func NewHTTPCompleter(client *http.Client) *HTTPCompleter {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPCompleter{client: client}
}

type wireMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type wireRequest struct {
	Model            string          `json:"model"`
	Messages         []wireMessage   `json:"messages"`
	Temperature      *float64        `json:"temperature,omitempty"`
	MaxTokens        *int            `json:"max_tokens,omitempty"`
	TopP             *float64        `json:"top_p,omitempty"`
	FrequencyPenalty *float64        `json:"frequency_penalty,omitempty"`
	PresencePenalty  *float64        `json:"presence_penalty,omitempty"`
	Stop             []string        `json:"stop,omitempty"`
	Seed             *int            `json:"seed,omitempty"`
	ResponseFormat   *responseFormat `json:"response_format,omitempty"`
}

type responseFormat struct {
	Type string `json:"type"`
}

func (c *HTTPCompleter) Complete(ctx context.Context, req Request) (*Response, error) {
	body := wireRequest{
		Model:            req.Model,
		Temperature:      req.Temperature,
		MaxTokens:        req.MaxTokens,
		TopP:             req.TopP,
		FrequencyPenalty: req.FrequencyPenalty,
		PresencePenalty:  req.PresencePenalty,
		Stop:             req.Stop,
		Seed:             req.Seed,
	}
	for _, m := range req.Messages {
		body.Messages = append(body.Messages, wireMessage{Role: string(m.Role), Content: m.Content})
	}
	if req.JSONMode {
		body.ResponseFormat = &responseFormat{Type: "json_object"}
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to encode completion request: %w", err)
	}

	url := strings.TrimRight(req.BaseURL, "/") + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build completion request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+req.APIKey)

	started := time.Now()
	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("completion request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read completion response: %w", err)
	}
	latency := time.Since(started)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, parseError(resp.StatusCode, raw)
	}

	doc := gjson.ParseBytes(raw)
	out := &Response{
		Content: doc.Get("choices.0.message.content").String(),
		Model:   doc.Get("model").String(),
		Usage: Usage{
			PromptTokens:     int(doc.Get("usage.prompt_tokens").Int()),
			CompletionTokens: int(doc.Get("usage.completion_tokens").Int()),
			TotalTokens:      int(doc.Get("usage.total_tokens").Int()),
		},
		Raw:     doc.Value(),
		Latency: latency,
	}
	if out.Model == "" {
		out.Model = req.Model
	}
	return out, nil
}

func parseError(status int, raw []byte) *Error {
	e := &Error{StatusCode: status}
	doc := gjson.ParseBytes(raw)
	if doc.IsArray() {
		doc = doc.Get("0")
	}
	if msg := doc.Get("error.message"); msg.Exists() {
		e.Message = msg.String()
		e.Code = doc.Get("error.code").String()
		if e.Code == "" {
			e.Code = doc.Get("error.type").String()
		}
		return e
	}
	e.Message = strings.TrimSpace(string(raw))
	if e.Message == "" {
		e.Message = http.StatusText(status)
	}
	return e
}
