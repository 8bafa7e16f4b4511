package observability

import (
	"context"
	"log/slog"

	"github.com/aretw0/convoflow/internal/logging"
	"github.com/aretw0/convoflow/pkg/domain"
)

// Chain calls every non-nil hook of each set, in order.
func Chain(sets ...domain.LifecycleHooks) domain.LifecycleHooks {
	var out domain.LifecycleHooks
	for _, h := range sets {
		out.OnNodeEnter = chain(out.OnNodeEnter, h.OnNodeEnter)
		out.OnNodeLeave = chain(out.OnNodeLeave, h.OnNodeLeave)
		out.OnExternalCall = chain(out.OnExternalCall, h.OnExternalCall)
		out.OnSessionEnd = chain(out.OnSessionEnd, h.OnSessionEnd)
	}
	return out
}

func chain[E any](a, b func(context.Context, E)) func(context.Context, E) {
	switch {
	case a == nil:
		return b
	case b == nil:
		return a
	}
	return func(ctx context.Context, e E) {
		a(ctx, e)
		b(ctx, e)
	}
}

// LogHooks writes one debug record per node and external call, and an info
// record per finished run.
func LogHooks(logger *slog.Logger) domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnNodeLeave: func(ctx context.Context, e *domain.NodeEvent) {
			attrs := []any{
				logging.SessionID(e.SessionID),
				logging.NodeID(e.NodeID),
				"node_type", e.NodeType,
				"outcome", e.Outcome,
				"duration", e.Duration,
			}
			if e.Err != nil {
				logger.WarnContext(ctx, "node failed", append(attrs, logging.Error(e.Err))...)
				return
			}
			logger.DebugContext(ctx, "node executed", attrs...)
		},
		OnExternalCall: func(ctx context.Context, e *domain.CallEvent) {
			logger.DebugContext(ctx, "external call",
				logging.SessionID(e.SessionID),
				logging.NodeID(e.NodeID),
				"kind", e.Kind,
				"attempt", e.Attempt,
				"status_code", e.StatusCode,
				"is_error", e.IsError,
			)
		},
		OnSessionEnd: func(ctx context.Context, e *domain.SessionEvent) {
			logger.InfoContext(ctx, "run finished",
				logging.SessionID(e.SessionID),
				logging.BotID(e.BotID),
				"status", e.Status,
				"test", e.IsTest,
			)
		},
	}
}
