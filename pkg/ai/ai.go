package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/cloudwego/eino/schema"
)

// Completer produces one chat completion.
type Completer interface {
	Complete(ctx context.Context, req Request) (*Response, error)
}

// Request is a provider-neutral completion request.
type Request struct {
	BaseURL  string
	APIKey   string
	Model    string
	Messages []*schema.Message

	Temperature      *float64
	MaxTokens        *int
	TopP             *float64
	FrequencyPenalty *float64
	PresencePenalty  *float64
	Stop             []string
	Seed             *int
	JSONMode         bool
}

// Usage reports token consumption of a completion.
type Usage struct {
	PromptTokens     int `json:"promptTokens"`
	CompletionTokens int `json:"completionTokens"`
	TotalTokens      int `json:"totalTokens"`
}

// Response is a completed chat turn.
type Response struct {
	Content string
	Model   string
	Usage   Usage
	// Raw is the decoded provider payload, when available.
	Raw     any
	Latency time.Duration
}

// Error is a failed provider call with an HTTP status.
type Error struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("ai provider returned %d (%s): %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("ai provider returned %d: %s", e.StatusCode, e.Message)
}

// Permanent reports whether retrying cannot help.
func (e *Error) Permanent() bool {
	return e.StatusCode >= 400 && e.StatusCode < 500
}

// IsPermanent reports whether err is a provider error that must not be retried.
func IsPermanent(err error) bool {
	var aiErr *Error
	return errors.As(err, &aiErr) && aiErr.Permanent()
}

// StatusCode extracts the HTTP status of err, or 0.
func StatusCode(err error) int {
	var aiErr *Error
	if errors.As(err, &aiErr) {
		return aiErr.StatusCode
	}
	return 0
}

// ErrorCode returns a short classification of err for usage logs.
func ErrorCode(err error) string {
	var aiErr *Error
	switch {
	case err == nil:
		return ""
	case errors.As(err, &aiErr) && aiErr.Code != "":
		return aiErr.Code
	case errors.As(err, &aiErr):
		return http.StatusText(aiErr.StatusCode)
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	}
	return "network_error"
}
