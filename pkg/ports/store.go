package ports

import (
	"context"
	"time"

	"github.com/aretw0/convoflow/pkg/domain"
)

// SessionStore persists sessions.
type SessionStore interface {
	// Create inserts a new session. It returns domain.ErrLiveSessionExists
	// when s is live and another live session holds its (bot, address) slot.
	Create(ctx context.Context, s *domain.Session) error

	// Get returns domain.ErrSessionNotFound if the session does not exist.
	Get(ctx context.Context, id string) (*domain.Session, error)

	// FindLive returns the ACTIVE or PAUSED session of an address.
	// Returns domain.ErrSessionNotFound when there is none.
	FindLive(ctx context.Context, botID, address string) (*domain.Session, error)

	// FindLatest returns the most recently created session of an address,
	// whatever its status.
	FindLatest(ctx context.Context, botID, address string) (*domain.Session, error)

	// Save overwrites an existing session. Moving to a non-live status
	// releases the (bot, address) slot.
	Save(ctx context.Context, s *domain.Session) error

	// ClaimResume atomically moves a due PAUSED session to ACTIVE and clears
	// its resumeAt. Exactly one of any number of concurrent callers gets true.
	// A claim older than domain.ClaimLease that was never resumed may be
	// claimed again.
	ClaimResume(ctx context.Context, id string, now time.Time) (bool, error)

	// ListDue returns ids of PAUSED sessions with resumeAt <= now and of
	// stalled claims. limit <= 0 means no limit.
	ListDue(ctx context.Context, now time.Time, limit int) ([]string, error)

	// List returns all session ids.
	List(ctx context.Context) ([]string, error)

	// Delete removes a session and its slot.
	Delete(ctx context.Context, id string) error
}

// VariableStore persists bot and session variables.
type VariableStore interface {
	BotVariables(ctx context.Context, botID string) (map[string]domain.Variable, error)
	SessionVariables(ctx context.Context, sessionID string) (map[string]domain.Variable, error)
	SetBotVariable(ctx context.Context, botID string, v domain.Variable) error
	SetSessionVariables(ctx context.Context, sessionID string, vars ...domain.Variable) error
}

// MessageLog records every message exchanged with the end user.
type MessageLog interface {
	AppendMessage(ctx context.Context, r domain.MessageRecord) error
	// Messages returns the records created after since, oldest first.
	Messages(ctx context.Context, sessionID string, since time.Time) ([]domain.MessageRecord, error)
	// RecentMessages returns at most limit of the latest records, oldest first.
	RecentMessages(ctx context.Context, sessionID string, limit int) ([]domain.MessageRecord, error)
}

// ExecutionLog records one entry per node run.
type ExecutionLog interface {
	AppendExecution(ctx context.Context, r domain.ExecutionRecord) error
	Executions(ctx context.Context, sessionID string) ([]domain.ExecutionRecord, error)
}

// UsageLog records one entry per AI completion attempt.
type UsageLog interface {
	AppendAIUsage(ctx context.Context, r domain.AIUsageRecord) error
	AIUsage(ctx context.Context, sessionID string) ([]domain.AIUsageRecord, error)
}

// LogStore groups the append-only logs.
type LogStore interface {
	MessageLog
	ExecutionLog
	UsageLog
}
