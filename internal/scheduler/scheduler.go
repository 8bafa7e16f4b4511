// Package scheduler resumes sessions whose DELAY timer has elapsed.
//
// A tick is stateless: it reads the due set from the session store, claims
// each session with a conditional write and hands the winners to the engine.
// Any number of schedulers may tick the same store concurrently. A claim that
// is never resumed, for example because the process died, is taken over by a
// later tick once domain.ClaimLease has passed.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aretw0/convoflow/internal/logging"
	"github.com/aretw0/convoflow/pkg/domain"
	"github.com/aretw0/convoflow/pkg/ports"
)

const (
	DefaultInterval  = 10 * time.Second
	DefaultBatchSize = 100
)

// Resumer continues a claimed session.
type Resumer interface {
	Resume(ctx context.Context, sessionID string) (*domain.RunResult, error)
}

// Report summarises one tick.
type Report struct {
	Due     int `json:"due"`
	Resumed int `json:"resumed"`
	// Skipped counts sessions claimed by another scheduler first or gone
	// from the store.
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
}

// Scheduler sweeps due sessions on a fixed interval.
type Scheduler struct {
	store    ports.SessionStore
	resumer  Resumer
	interval time.Duration
	batch    int
	now      func() time.Time
	logger   *slog.Logger
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithInterval sets the sweep interval of Run.
func WithInterval(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithBatchSize bounds the sessions handled per tick. n <= 0 removes the bound.
func WithBatchSize(n int) Option {
	return func(s *Scheduler) {
		s.batch = n
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) {
		s.now = now
	}
}

// WithLogger sets a custom structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Scheduler) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New creates a scheduler over store that continues sessions through r.
func New(store ports.SessionStore, r Resumer, opts ...Option) *Scheduler {
	s := &Scheduler{
		store:    store,
		resumer:  r,
		interval: DefaultInterval,
		batch:    DefaultBatchSize,
		now:      time.Now,
		logger:   logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Tick resumes every session due at the current time. Per-session failures
// are logged and counted; only a failure to list the due set is returned.
func (s *Scheduler) Tick(ctx context.Context) (Report, error) {
	now := s.now()
	ids, err := s.store.ListDue(ctx, now, s.batch)
	if err != nil {
		return Report{}, fmt.Errorf("failed to list due sessions: %w", err)
	}

	rep := Report{Due: len(ids)}
	for _, id := range ids {
		if ctx.Err() != nil {
			break
		}
		claimed, err := s.store.ClaimResume(ctx, id, now)
		if errors.Is(err, domain.ErrSessionNotFound) {
			rep.Skipped++
			s.logger.DebugContext(ctx, "Due session no longer exists", logging.SessionID(id))
			continue
		}
		if err != nil {
			rep.Failed++
			s.logger.WarnContext(ctx, "Failed to claim session", logging.SessionID(id), logging.Error(err))
			continue
		}
		if !claimed {
			rep.Skipped++
			continue
		}
		if _, err := s.resumer.Resume(ctx, id); err != nil {
			rep.Failed++
			s.logger.ErrorContext(ctx, "Failed to resume session", logging.SessionID(id), logging.Error(err))
			continue
		}
		rep.Resumed++
	}

	if rep.Due > 0 {
		s.logger.DebugContext(ctx, "Resume sweep finished",
			"due", rep.Due,
			"resumed", rep.Resumed,
			"skipped", rep.Skipped,
			"failed", rep.Failed,
		)
	}
	return rep, nil
}

// Run ticks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.InfoContext(ctx, "Resume scheduler started", "interval", s.interval)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		if _, err := s.Tick(ctx); err != nil {
			s.logger.ErrorContext(ctx, "Resume sweep failed", logging.Error(err))
		}
		select {
		case <-ctx.Done():
			s.logger.InfoContext(ctx, "Resume scheduler stopped")
			return nil
		case <-ticker.C:
		}
	}
}
