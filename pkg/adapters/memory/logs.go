package memory

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/aretw0/convoflow/pkg/domain"
)

// Logs implements ports.LogStore in memory.
type Logs struct {
	mu         sync.RWMutex
	messages   map[string][]domain.MessageRecord
	executions map[string][]domain.ExecutionRecord
	usage      map[string][]domain.AIUsageRecord
}

// NewLogs creates an empty log store.
func NewLogs() *Logs {
	return &Logs{
		messages:   make(map[string][]domain.MessageRecord),
		executions: make(map[string][]domain.ExecutionRecord),
		usage:      make(map[string][]domain.AIUsageRecord),
	}
}

func (l *Logs) AppendMessage(ctx context.Context, r domain.MessageRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages[r.SessionID] = append(l.messages[r.SessionID], r)
	return nil
}

func (l *Logs) Messages(ctx context.Context, sessionID string, since time.Time) ([]domain.MessageRecord, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []domain.MessageRecord
	for _, r := range l.messages[sessionID] {
		if r.CreatedAt.After(since) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (l *Logs) RecentMessages(ctx context.Context, sessionID string, limit int) ([]domain.MessageRecord, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	all := l.messages[sessionID]
	if limit > 0 && len(all) > limit {
		all = all[len(all)-limit:]
	}
	return slices.Clone(all), nil
}

func (l *Logs) AppendExecution(ctx context.Context, r domain.ExecutionRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.executions[r.SessionID] = append(l.executions[r.SessionID], r)
	return nil
}

func (l *Logs) Executions(ctx context.Context, sessionID string) ([]domain.ExecutionRecord, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return slices.Clone(l.executions[sessionID]), nil
}

func (l *Logs) AppendAIUsage(ctx context.Context, r domain.AIUsageRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.usage[r.SessionID] = append(l.usage[r.SessionID], r)
	return nil
}

func (l *Logs) AIUsage(ctx context.Context, sessionID string) ([]domain.AIUsageRecord, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return slices.Clone(l.usage[sessionID]), nil
}
