package runtime

import (
	"context"
	"errors"

	"github.com/aretw0/convoflow/internal/logging"
	"github.com/aretw0/convoflow/internal/variables"
	"github.com/aretw0/convoflow/pkg/domain"
	"github.com/google/uuid"
)

// errNoTransport is recorded on deliveries attempted without a transport.
var errNoTransport = errors.New("no transport configured")

// runContext is the state shared by the executors of one run.
type runContext struct {
	ctx       context.Context
	engine    *Engine
	session   *domain.Session
	flow      *domain.FlowVersion
	node      *domain.Node
	scope     *variables.Scope
	input     *domain.Input
	simulated bool
	steps     int
	result    *domain.RunResult
}

func (rc *runContext) resolve(tmpl string) string {
	return rc.scope.Resolve(tmpl)
}

// resolveAny returns the first handle among handles that leads somewhere.
func (rc *runContext) resolveAny(handles ...string) string {
	for _, h := range handles {
		if target := rc.flow.Resolve(rc.node, h); target != "" {
			return target
		}
	}
	return ""
}

func (rc *runContext) loopKey() string {
	return rc.flow.ID + "/" + rc.node.ID
}

func (rc *runContext) sendText(text string) {
	if text == "" {
		return
	}
	rc.send(domain.OutboundMessage{NodeID: rc.node.ID, Kind: domain.KindText, Text: text})
}

func (rc *runContext) sendChoice(msg domain.ChoiceMessage) {
	rc.send(domain.OutboundMessage{NodeID: rc.node.ID, Kind: msg.Kind, Text: msg.Body, Choice: &msg})
}

// send appends msg to the run result, delivers it unless the run is
// simulated and records it in the message log.
func (rc *runContext) send(msg domain.OutboundMessage) {
	e := rc.engine
	rc.result.Responses = append(rc.result.Responses, msg)

	rec := domain.MessageRecord{
		ID:        newID(),
		SessionID: rc.session.ID,
		BotID:     rc.session.BotID,
		Sender:    domain.SenderBot,
		Kind:      msg.Kind,
		Content:   msg.Text,
		NodeID:    msg.NodeID,
		CreatedAt: e.now(),
	}
	if msg.Choice != nil {
		rec.Choices = msg.Choice.Choices
		for _, sec := range msg.Choice.Sections {
			rec.Choices = append(rec.Choices, sec.Choices...)
		}
	}

	var err error
	switch {
	case rc.simulated:
		rec.Status = domain.DeliverySimulated
	case e.transport == nil:
		err = errNoTransport
	case msg.Choice != nil:
		err = e.transport.SendChoiceMessage(rc.ctx, rc.session.Address, *msg.Choice)
	default:
		err = e.transport.SendText(rc.ctx, rc.session.Address, msg.Text)
	}
	if !rc.simulated {
		rec.Status = domain.DeliverySent
		if err != nil {
			rec.Status = domain.DeliveryFailed
			rec.Error = err.Error()
			e.logger.WarnContext(rc.ctx, "Message delivery failed",
				logging.SessionID(rc.session.ID),
				logging.NodeID(msg.NodeID),
				logging.Error(err),
			)
		}
	}

	if err := e.logs.AppendMessage(rc.ctx, rec); err != nil {
		e.logger.WarnContext(rc.ctx, "Failed to log outbound message", logging.SessionID(rc.session.ID), logging.Error(err))
	}
}

func newID() string {
	return uuid.NewString()
}
