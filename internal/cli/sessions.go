package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/aretw0/convoflow/internal/presentation/graph"
	"github.com/aretw0/convoflow/pkg/domain"
)

// ErrNoSessionStore is returned by session commands without a Redis store,
// since memory sessions do not outlive the process.
var ErrNoSessionStore = errors.New("session commands need a redis store (set CONVOFLOW_REDIS_ADDR)")

// SessionReport is the inspect view of a session.
type SessionReport struct {
	Session    *domain.Session          `json:"session"`
	Messages   []domain.MessageRecord   `json:"messages"`
	Executions []domain.ExecutionRecord `json:"executions"`
	AIUsage    []domain.AIUsageRecord   `json:"aiUsage"`
}

func (a *App) requireStore() error {
	if !a.cfg.RedisEnabled() {
		return ErrNoSessionStore
	}
	return nil
}

// ListSessions prints the stored session ids.
func (a *App) ListSessions(ctx context.Context, w io.Writer) error {
	if err := a.requireStore(); err != nil {
		return err
	}
	ids, err := a.Engine.Sessions().List(ctx)
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		fmt.Fprintln(w, "No sessions found.")
		return nil
	}
	for _, id := range ids {
		sess, err := a.Engine.Sessions().Get(ctx, id)
		if err != nil {
			fmt.Fprintf(w, "- %s (%v)\n", id, err)
			continue
		}
		fmt.Fprintf(w, "- %s  %-9s bot=%s address=%s node=%s updated=%s\n",
			sess.ID, sess.Status, sess.BotID, sess.Address, sess.CurrentNodeID,
			sess.UpdatedAt.Format(time.RFC3339))
	}
	return nil
}

// Report gathers a session with its logs.
func (a *App) Report(ctx context.Context, id string) (*SessionReport, error) {
	sess, err := a.Engine.Session(ctx, id)
	if err != nil {
		return nil, err
	}
	logs := a.Engine.Logs()
	rep := &SessionReport{Session: sess}
	if rep.Messages, err = logs.Messages(ctx, id, time.Time{}); err != nil {
		return nil, err
	}
	if rep.Executions, err = logs.Executions(ctx, id); err != nil {
		return nil, err
	}
	if rep.AIUsage, err = logs.AIUsage(ctx, id); err != nil {
		return nil, err
	}
	return rep, nil
}

// InspectSession prints a session and its logs as indented JSON.
func (a *App) InspectSession(ctx context.Context, w io.Writer, id string) error {
	if err := a.requireStore(); err != nil {
		return err
	}
	rep, err := a.Report(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to load session '%s': %w", id, err)
	}
	data, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(w, string(data))
	return nil
}

// SessionGraph prints the Mermaid graph of the flow a session is in, with
// the executed path highlighted.
func (a *App) SessionGraph(ctx context.Context, w io.Writer, id string) error {
	if err := a.requireStore(); err != nil {
		return err
	}
	rep, err := a.Report(ctx, id)
	if err != nil {
		return err
	}
	fv, err := a.Engine.Flows().Version(ctx, rep.Session.FlowVersionID)
	if err != nil {
		return err
	}
	var executed []domain.ExecutionRecord
	for _, r := range rep.Executions {
		if r.FlowVersionID == fv.ID {
			executed = append(executed, r)
		}
	}
	fmt.Fprint(w, graph.GenerateMermaid(fv, graph.OverlayFromExecutions(executed, rep.Session.CurrentNodeID)))
	return nil
}

// RemoveSessions deletes sessions, reporting each outcome.
func (a *App) RemoveSessions(ctx context.Context, w io.Writer, ids ...string) error {
	if err := a.requireStore(); err != nil {
		return err
	}
	var errs []error
	for _, id := range ids {
		if err := a.Engine.Sessions().Delete(ctx, id); err != nil {
			fmt.Fprintf(w, "Error removing '%s': %v\n", id, err)
			errs = append(errs, err)
			continue
		}
		fmt.Fprintf(w, "Removed session '%s'\n", id)
	}
	return errors.Join(errs...)
}
