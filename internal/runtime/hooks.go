package runtime

import (
	"context"
	"time"

	"github.com/aretw0/convoflow/pkg/domain"
)

func (e *Engine) emitNodeEnter(rc *runContext) {
	if e.hooks.OnNodeEnter == nil {
		return
	}
	e.hooks.OnNodeEnter(rc.ctx, &domain.NodeEvent{
		EventBase: domain.EventBase{Timestamp: e.now(), Type: domain.EventNodeEnter, SessionID: rc.session.ID},
		NodeID:    rc.node.ID,
		NodeType:  rc.node.Type,
	})
}

func (e *Engine) emitNodeLeave(rc *runContext, out outcome, d time.Duration, err error) {
	if e.hooks.OnNodeLeave == nil {
		return
	}
	ev := &domain.NodeEvent{
		EventBase: domain.EventBase{Timestamp: e.now(), Type: domain.EventNodeLeave, SessionID: rc.session.ID},
		NodeID:    rc.node.ID,
		NodeType:  rc.node.Type,
		Outcome:   out.String(),
		Duration:  d,
		Err:       err,
	}
	if err != nil {
		ev.Outcome = "error"
	}
	e.hooks.OnNodeLeave(rc.ctx, ev)
}

func (e *Engine) emitCall(rc *runContext, ev domain.CallEvent) {
	if e.hooks.OnExternalCall == nil {
		return
	}
	ev.EventBase = domain.EventBase{Timestamp: e.now(), Type: domain.EventExternalCall, SessionID: rc.session.ID}
	ev.NodeID = rc.node.ID
	ev.Kind = rc.node.Type
	e.hooks.OnExternalCall(rc.ctx, &ev)
}

func (e *Engine) emitSessionEnd(ctx context.Context, s *domain.Session) {
	if e.hooks.OnSessionEnd == nil {
		return
	}
	e.hooks.OnSessionEnd(ctx, &domain.SessionEvent{
		EventBase: domain.EventBase{Timestamp: e.now(), Type: domain.EventSessionEnd, SessionID: s.ID},
		BotID:     s.BotID,
		Status:    s.Status,
		IsTest:    s.IsTest,
	})
}
