package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/aretw0/convoflow/internal/logging"
	"github.com/aretw0/convoflow/pkg/domain"
	"github.com/sony/gobreaker"
)

const (
	// GraphAPIBase is the Cloud API root the client posts to.
	GraphAPIBase = "https://graph.facebook.com/v24.0"

	DefaultAttempts = 3
	DefaultBackoff  = time.Second
	DefaultTimeout  = 10 * time.Second
)

// APIError is a non-2xx answer of the Graph API.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("whatsapp api returned %d: %s", e.StatusCode, e.Body)
}

// Permanent reports whether retrying cannot help.
func (e *APIError) Permanent() bool {
	return e.StatusCode >= 400 && e.StatusCode < 500 && e.StatusCode != http.StatusTooManyRequests
}

// Client implements ports.Transport for one business phone number.
// Each send is attempted up to attempts times, waiting backoff*attempt
// between tries, behind a circuit breaker shared by all sends.
type Client struct {
	baseURL       string
	phoneNumberID string
	token         string
	httpClient    *http.Client
	breaker       *gobreaker.CircuitBreaker
	attempts      int
	backoff       time.Duration
	logger        *slog.Logger
}

type Option func(*Client)

func WithBaseURL(url string) Option {
	return func(c *Client) { c.baseURL = url }
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithRetry sets the attempt count and the linear backoff step.
func WithRetry(attempts int, backoff time.Duration) Option {
	return func(c *Client) {
		c.attempts = max(attempts, 1)
		c.backoff = backoff
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// NewClient creates a transport sending as phoneNumberID.
func NewClient(phoneNumberID, accessToken string, opts ...Option) *Client {
	c := &Client{
		baseURL:       GraphAPIBase,
		phoneNumberID: phoneNumberID,
		token:         accessToken,
		httpClient:    &http.Client{Timeout: DefaultTimeout},
		attempts:      DefaultAttempts,
		backoff:       DefaultBackoff,
		logger:        logging.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "whatsapp:" + phoneNumberID,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		IsSuccessful: func(err error) bool {
			var apiErr *APIError
			// 4xx answers do not count against the breaker.
			return err == nil || (errors.As(err, &apiErr) && apiErr.Permanent())
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.logger.Warn("circuit breaker state changed", "name", name, "from", from.String(), "to", to.String())
		},
	})
	return c
}

// SendText sends a plain text message.
func (c *Client) SendText(ctx context.Context, to, text string) error {
	return c.send(ctx, map[string]any{
		"messaging_product": "whatsapp",
		"recipient_type":    "individual",
		"to":                to,
		"type":              "text",
		"text":              map[string]any{"preview_url": false, "body": text},
	})
}

// SendChoiceMessage sends reply buttons or a list.
func (c *Client) SendChoiceMessage(ctx context.Context, to string, msg domain.ChoiceMessage) error {
	var interactive map[string]any
	switch msg.Kind {
	case domain.KindList:
		interactive = listPayload(msg)
	default:
		interactive = buttonPayload(msg)
	}
	return c.send(ctx, map[string]any{
		"messaging_product": "whatsapp",
		"recipient_type":    "individual",
		"to":                to,
		"type":              "interactive",
		"interactive":       interactive,
	})
}

func buttonPayload(msg domain.ChoiceMessage) map[string]any {
	buttons := make([]map[string]any, len(msg.Choices))
	for i, ch := range msg.Choices {
		buttons[i] = map[string]any{
			"type":  "reply",
			"reply": map[string]string{"id": ch.ID, "title": ch.Title},
		}
	}
	return map[string]any{
		"type":   "button",
		"body":   map[string]string{"text": msg.Body},
		"action": map[string]any{"buttons": buttons},
	}
}

func listPayload(msg domain.ChoiceMessage) map[string]any {
	sections := msg.Sections
	if len(sections) == 0 {
		sections = []domain.ChoiceSection{{Choices: msg.Choices}}
	}
	out := make([]map[string]any, len(sections))
	for i, sec := range sections {
		rows := make([]map[string]string, len(sec.Choices))
		for j, ch := range sec.Choices {
			row := map[string]string{"id": ch.ID, "title": ch.Title}
			if ch.Description != "" {
				row["description"] = ch.Description
			}
			rows[j] = row
		}
		s := map[string]any{"rows": rows}
		if sec.Title != "" {
			s["title"] = sec.Title
		}
		out[i] = s
	}
	return map[string]any{
		"type":   "list",
		"body":   map[string]string{"text": msg.Body},
		"action": map[string]any{"button": msg.ButtonText, "sections": out},
	}
}

func (c *Client) send(ctx context.Context, payload map[string]any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode message: %w", err)
	}

	var lastErr error
	for attempt := 1; attempt <= c.attempts; attempt++ {
		_, err := c.breaker.Execute(func() (any, error) {
			return nil, c.post(ctx, body)
		})
		if err == nil {
			return nil
		}
		lastErr = err

		var apiErr *APIError
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) ||
			(errors.As(err, &apiErr) && apiErr.Permanent()) {
			break
		}
		if attempt == c.attempts {
			break
		}
		c.logger.Debug("whatsapp send failed, retrying", "attempt", attempt, logging.Error(err))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.backoff * time.Duration(attempt)):
		}
	}
	return fmt.Errorf("failed to send whatsapp message: %w", lastErr)
}

func (c *Client) post(ctx context.Context, body []byte) error {
	url := c.baseURL + "/" + c.phoneNumberID + "/messages"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
