package ai

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"time"

	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/schema"
)

// EinoCompleter runs completions through the eino OpenAI chat model.
// A chat model is built per request because base URL and key vary by bot.
type EinoCompleter struct {
	timeout time.Duration
}

// NewEinoCompleter creates a completer. timeout bounds the underlying HTTP
// client; zero leaves it to the request context.
func NewEinoCompleter(timeout time.Duration) *EinoCompleter {
	return &EinoCompleter{timeout: timeout}
}

const jsonModeHint = "Respond with a single valid JSON object and nothing else."

func (c *EinoCompleter) Complete(ctx context.Context, req Request) (*Response, error) {
	cfg := &openai.ChatModelConfig{
		APIKey:  req.APIKey,
		BaseURL: req.BaseURL,
		Model:   req.Model,
		Timeout: c.timeout,
		Stop:    req.Stop,
		Seed:    req.Seed,
	}
	cfg.MaxTokens = req.MaxTokens
	cfg.Temperature = float32Ptr(req.Temperature)
	cfg.TopP = float32Ptr(req.TopP)
	cfg.FrequencyPenalty = float32Ptr(req.FrequencyPenalty)
	cfg.PresencePenalty = float32Ptr(req.PresencePenalty)

	model, err := openai.NewChatModel(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("error creating chat model: %w", err)
	}

	messages := req.Messages
	if req.JSONMode {
		messages = append([]*schema.Message{schema.SystemMessage(jsonModeHint)}, messages...)
	}

	started := time.Now()
	out, err := model.Generate(ctx, messages)
	if err != nil {
		return nil, classify(err)
	}

	resp := &Response{
		Content: out.Content,
		Model:   req.Model,
		Raw:     out,
		Latency: time.Since(started),
	}
	if out.ResponseMeta != nil && out.ResponseMeta.Usage != nil {
		u := out.ResponseMeta.Usage
		resp.Usage = Usage{
			PromptTokens:     u.PromptTokens,
			CompletionTokens: u.CompletionTokens,
			TotalTokens:      u.TotalTokens,
		}
	}
	return resp, nil
}

var statusPattern = regexp.MustCompile(`status code: (\d{3})`)

// classify recovers the HTTP status from the error text of the OpenAI client.
func classify(err error) error {
	m := statusPattern.FindStringSubmatch(err.Error())
	if m == nil {
		return fmt.Errorf("error generating completion: %w", err)
	}
	code, _ := strconv.Atoi(m[1])
	return &Error{StatusCode: code, Message: err.Error()}
}

func float32Ptr(v *float64) *float32 {
	if v == nil {
		return nil
	}
	f := float32(*v)
	return &f
}
