package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aretw0/convoflow/pkg/domain"
	backend "github.com/redis/go-redis/v9"
)

// Logs implements ports.LogStore with one append-only list per session and
// record kind.
type Logs struct {
	client *backend.Client
	prefix string
}

// NewLogs creates a log store sharing client.
func NewLogs(client *backend.Client, prefix string) *Logs {
	return &Logs{client: client, prefix: prefix}
}

func (l *Logs) key(kind, sessionID string) string {
	return l.prefix + "log:" + kind + ":" + sessionID
}

func push(ctx context.Context, client *backend.Client, key string, r any) error {
	b, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to encode log record: %w", err)
	}
	if err := client.RPush(ctx, key, b).Err(); err != nil {
		return fmt.Errorf("failed to append log record: %w", err)
	}
	return nil
}

func rangeOf[T any](ctx context.Context, client *backend.Client, key string, start, stop int64) ([]T, error) {
	raw, err := client.LRange(ctx, key, start, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read log: %w", err)
	}
	out := make([]T, 0, len(raw))
	for _, item := range raw {
		var r T
		if err := json.Unmarshal([]byte(item), &r); err != nil {
			return nil, fmt.Errorf("failed to decode log record: %w", err)
		}
		out = append(out, r)
	}
	return out, nil
}

func (l *Logs) AppendMessage(ctx context.Context, r domain.MessageRecord) error {
	return push(ctx, l.client, l.key("messages", r.SessionID), r)
}

func (l *Logs) Messages(ctx context.Context, sessionID string, since time.Time) ([]domain.MessageRecord, error) {
	all, err := rangeOf[domain.MessageRecord](ctx, l.client, l.key("messages", sessionID), 0, -1)
	if err != nil {
		return nil, err
	}
	var out []domain.MessageRecord
	for _, r := range all {
		if r.CreatedAt.After(since) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (l *Logs) RecentMessages(ctx context.Context, sessionID string, limit int) ([]domain.MessageRecord, error) {
	start := int64(0)
	if limit > 0 {
		start = -int64(limit)
	}
	return rangeOf[domain.MessageRecord](ctx, l.client, l.key("messages", sessionID), start, -1)
}

func (l *Logs) AppendExecution(ctx context.Context, r domain.ExecutionRecord) error {
	return push(ctx, l.client, l.key("executions", r.SessionID), r)
}

func (l *Logs) Executions(ctx context.Context, sessionID string) ([]domain.ExecutionRecord, error) {
	return rangeOf[domain.ExecutionRecord](ctx, l.client, l.key("executions", sessionID), 0, -1)
}

func (l *Logs) AppendAIUsage(ctx context.Context, r domain.AIUsageRecord) error {
	return push(ctx, l.client, l.key("usage", r.SessionID), r)
}

func (l *Logs) AIUsage(ctx context.Context, sessionID string) ([]domain.AIUsageRecord, error) {
	return rangeOf[domain.AIUsageRecord](ctx, l.client, l.key("usage", sessionID), 0, -1)
}
