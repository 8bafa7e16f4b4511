package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/aretw0/convoflow/internal/logging"
	"github.com/aretw0/convoflow/internal/variables"
	"github.com/aretw0/convoflow/pkg/ai"
	"github.com/aretw0/convoflow/pkg/domain"
	"github.com/aretw0/convoflow/pkg/ports"
	"github.com/aretw0/convoflow/pkg/session"
)

const (
	DefaultMaxSteps     = 1000
	DefaultMaxCallDepth = 10
	DefaultAPITimeout   = 10 * time.Second
	DefaultAITimeout    = 30 * time.Second
	DefaultRetryDelay   = time.Second
)

// Engine is the conversation state machine.
type Engine struct {
	flows    ports.FlowRepository
	sessions *session.Manager
	vars     ports.VariableStore
	logs     ports.LogStore

	transport ports.Transport
	providers ports.ProviderResolver
	completer ai.Completer
	client    *http.Client

	hooks  domain.LifecycleHooks
	logger *slog.Logger
	now    func() time.Time
	sleep  func(context.Context, time.Duration) error

	maxSteps        int
	maxCallDepth    int
	restartKeywords []string
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithTransport sets the outbound channel. Without one, non-simulated
// deliveries are logged as FAILED.
func WithTransport(t ports.Transport) EngineOption {
	return func(e *Engine) {
		e.transport = t
	}
}

// WithProviders sets the resolver for aiProviderId references.
func WithProviders(p ports.ProviderResolver) EngineOption {
	return func(e *Engine) {
		e.providers = p
	}
}

// WithCompleter replaces the default HTTP chat completion client.
func WithCompleter(c ai.Completer) EngineOption {
	return func(e *Engine) {
		e.completer = c
	}
}

// WithHTTPClient sets the client used by API nodes.
func WithHTTPClient(c *http.Client) EngineOption {
	return func(e *Engine) {
		e.client = c
	}
}

// WithLifecycleHooks registers observability hooks.
func WithLifecycleHooks(hooks domain.LifecycleHooks) EngineOption {
	return func(e *Engine) {
		e.hooks = hooks
	}
}

// WithLogger sets a custom structured logger.
func WithLogger(logger *slog.Logger) EngineOption {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) {
		e.now = now
	}
}

// WithSleep overrides the wait between retry attempts.
func WithSleep(sleep func(context.Context, time.Duration) error) EngineOption {
	return func(e *Engine) {
		e.sleep = sleep
	}
}

// WithMaxSteps bounds the node executions of a single run.
func WithMaxSteps(n int) EngineOption {
	return func(e *Engine) {
		if n > 0 {
			e.maxSteps = n
		}
	}
}

// WithMaxCallDepth bounds subflow nesting.
func WithMaxCallDepth(n int) EngineOption {
	return func(e *Engine) {
		if n > 0 {
			e.maxCallDepth = n
		}
	}
}

// WithRestartKeywords makes inbound texts equal to one of words (ignoring
// case) close the live session and start the flow over.
func WithRestartKeywords(words ...string) EngineOption {
	return func(e *Engine) {
		for _, w := range words {
			if w = strings.TrimSpace(w); w != "" {
				e.restartKeywords = append(e.restartKeywords, strings.ToLower(w))
			}
		}
	}
}

// NewEngine creates an engine over its collaborators.
func NewEngine(flows ports.FlowRepository, sessions *session.Manager, vars ports.VariableStore, logs ports.LogStore, opts ...EngineOption) *Engine {
	e := &Engine{
		flows:        flows,
		sessions:     sessions,
		vars:         vars,
		logs:         logs,
		completer:    ai.NewHTTPCompleter(nil),
		client:       &http.Client{},
		logger:       logging.NewNop(),
		now:          time.Now,
		sleep:        sleepContext,
		maxSteps:     DefaultMaxSteps,
		maxCallDepth: DefaultMaxCallDepth,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// HandleInbound runs the live session of the sender, creating one in the
// bot's main flow (or in.FlowID) when there is none. Simulated messages
// start test sessions on the draft version.
func (e *Engine) HandleInbound(ctx context.Context, in domain.Inbound) (*domain.RunResult, error) {
	if in.BotID == "" || in.Address == "" {
		return nil, domain.ErrInvalidInbound
	}

	if e.isRestart(in.Text) {
		if _, err := e.closeLive(ctx, in.BotID, in.Address, false); err != nil {
			return nil, err
		}
	}

	s, created, err := e.sessions.FindOrCreate(ctx, in.BotID, in.Address, func() (*domain.Session, error) {
		fv, err := e.entryVersion(ctx, in)
		if err != nil {
			return nil, err
		}
		return domain.NewSession(in.BotID, in.Address, fv, in.Simulated, e.now()), nil
	})
	if err != nil {
		return nil, err
	}
	if created {
		e.logger.InfoContext(ctx, "Session started",
			logging.SessionID(s.ID),
			logging.BotID(s.BotID),
			logging.FlowVersionID(s.FlowVersionID),
			"test", s.IsTest,
		)
	}

	e.logInbound(ctx, s, in)

	if created {
		return e.Execute(ctx, s.ID, nil, in.Simulated)
	}
	return e.Execute(ctx, s.ID, in.Input(), in.Simulated)
}

// Execute runs a session, delivering input to the node waiting for it.
//
// Terminal sessions return domain.ErrSessionClosed. Sessions waiting on a
// timer return domain.ErrSessionPaused; input is not queued. When a node
// fails the session is saved as FAILED and the error is a *NodeError; the
// result still carries the messages produced before the failure.
func (e *Engine) Execute(ctx context.Context, sessionID string, input *domain.Input, simulated bool) (*domain.RunResult, error) {
	var res *domain.RunResult
	err := e.sessions.WithLock(ctx, sessionID, func(ctx context.Context) error {
		s, err := e.sessions.Store().Get(ctx, sessionID)
		if err != nil {
			return err
		}
		switch {
		case s.Status.Terminal():
			return domain.ErrSessionClosed
		case s.Status == domain.StatusPaused || s.Waiting == domain.WaitTimer:
			return domain.ErrSessionPaused
		case s.Waiting == domain.WaitInput && input.Empty():
			res = &domain.RunResult{Session: s}
			return nil
		}
		res, err = e.run(ctx, s, input, simulated)
		return err
	})
	return res, err
}

// Resume continues a session whose timer was claimed by the scheduler.
// It is a no-op for sessions that are not waiting on a timer. When the run
// fails without saving the session it is paused again.
func (e *Engine) Resume(ctx context.Context, sessionID string) (*domain.RunResult, error) {
	var res *domain.RunResult
	err := e.sessions.WithLock(ctx, sessionID, func(ctx context.Context) error {
		s, err := e.sessions.Store().Get(ctx, sessionID)
		if err != nil {
			return err
		}
		if s.Status != domain.StatusActive || s.Waiting != domain.WaitTimer {
			e.logger.DebugContext(ctx, "Resume skipped", logging.SessionID(s.ID), "status", s.Status, "waiting", s.Waiting)
			res = &domain.RunResult{Session: s}
			return nil
		}
		res, err = e.run(ctx, s, nil, s.IsTest)
		var nodeErr *NodeError
		if err != nil && !errors.As(err, &nodeErr) {
			e.requeue(ctx, sessionID, err)
		}
		return err
	})
	return res, err
}

// requeue pauses a claimed session again when its resume failed before the
// run was saved, so the scheduler retries it after domain.ClaimLease.
func (e *Engine) requeue(ctx context.Context, sessionID string, cause error) {
	s, err := e.sessions.Store().Get(ctx, sessionID)
	if err != nil || s.Status != domain.StatusActive || s.Waiting != domain.WaitTimer {
		return
	}
	now := e.now()
	at := now.Add(domain.ClaimLease)
	s.Status = domain.StatusPaused
	s.ResumeAt = &at
	s.UpdatedAt = now
	if err := e.sessions.Store().Save(ctx, s); err != nil {
		e.logger.WarnContext(ctx, "Failed to requeue session", logging.SessionID(sessionID), logging.Error(err))
		return
	}
	e.logger.WarnContext(ctx, "Resume failed, session requeued", logging.SessionID(sessionID), "resume_at", at, logging.Error(cause))
}

// ResetSimulation closes the live test session of an address.
func (e *Engine) ResetSimulation(ctx context.Context, botID, address string) (int, error) {
	closed, err := e.closeLive(ctx, botID, address, true)
	if err != nil || !closed {
		return 0, err
	}
	return 1, nil
}

func (e *Engine) closeLive(ctx context.Context, botID, address string, onlyTest bool) (bool, error) {
	closed := false
	err := e.sessions.WithLock(ctx, "live:"+domain.LiveKey(botID, address), func(ctx context.Context) error {
		s, err := e.sessions.Store().FindLive(ctx, botID, address)
		if errors.Is(err, domain.ErrSessionNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if onlyTest && !s.IsTest {
			return nil
		}
		return e.sessions.WithLock(ctx, s.ID, func(ctx context.Context) error {
			s.Close(domain.StatusClosed, e.now())
			s.Loops = nil
			if err := e.sessions.Store().Save(ctx, s); err != nil {
				return fmt.Errorf("failed to close session: %w", err)
			}
			closed = true
			e.emitSessionEnd(ctx, s)
			return nil
		})
	})
	return closed, err
}

func (e *Engine) isRestart(text string) bool {
	if len(e.restartKeywords) == 0 {
		return false
	}
	clean := strings.ToLower(strings.TrimSpace(text))
	for _, w := range e.restartKeywords {
		if clean == w {
			return true
		}
	}
	return false
}

func (e *Engine) entryVersion(ctx context.Context, in domain.Inbound) (*domain.FlowVersion, error) {
	flowID := in.FlowID
	if flowID == "" {
		var err error
		if flowID, err = e.flows.MainFlow(ctx, in.BotID); err != nil {
			return nil, err
		}
	}
	fv, err := e.flows.Resolve(ctx, flowID, in.Simulated)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve flow %s: %w", flowID, err)
	}
	return fv, nil
}

func (e *Engine) logInbound(ctx context.Context, s *domain.Session, in domain.Inbound) {
	content := in.Text
	if content == "" {
		content = in.ChoiceID
	}
	if content == "" {
		return
	}
	rec := domain.MessageRecord{
		ID:        newID(),
		SessionID: s.ID,
		BotID:     s.BotID,
		Sender:    domain.SenderUser,
		Kind:      domain.KindText,
		Content:   content,
		NodeID:    s.CurrentNodeID,
		Status:    domain.DeliveryReceived,
		CreatedAt: e.now(),
	}
	if err := e.logs.AppendMessage(ctx, rec); err != nil {
		e.logger.WarnContext(ctx, "Failed to log inbound message", logging.SessionID(s.ID), logging.Error(err))
	}
}

// run executes nodes until the session suspends, ends or fails.
// The caller holds the session lock.
func (e *Engine) run(ctx context.Context, s *domain.Session, input *domain.Input, simulated bool) (*domain.RunResult, error) {
	rc := &runContext{
		ctx:       ctx,
		engine:    e,
		session:   s,
		input:     input,
		simulated: simulated || s.IsTest,
		result:    &domain.RunResult{Session: s},
	}

	scope, err := e.loadScope(ctx, s)
	if err != nil {
		return nil, err
	}
	rc.scope = scope

	fv, err := e.flows.Version(ctx, s.FlowVersionID)
	if err != nil {
		return e.fail(rc, &NodeError{NodeID: s.CurrentNodeID, Err: err})
	}
	rc.flow = fv

	node, ok := fv.Node(s.CurrentNodeID)
	if !ok {
		return e.fail(rc, &NodeError{NodeID: s.CurrentNodeID, Err: ErrNodeNotFound})
	}

	resuming := s.Waiting != domain.WaitNone
	s.Waiting = domain.WaitNone

	for {
		if rc.steps >= e.maxSteps {
			return e.fail(rc, &NodeError{NodeID: node.ID, NodeType: node.Type, Err: ErrStepLimit})
		}
		rc.steps++
		rc.node = node
		s.CurrentNodeID = node.ID

		out, err := e.step(rc, resuming)
		if err != nil {
			return e.fail(rc, err)
		}
		resuming = false
		rc.input = nil

		next, stop, err := e.apply(rc, out)
		if err != nil {
			return e.fail(rc, err)
		}
		if stop {
			break
		}
		node = next
	}

	if err := e.save(rc); err != nil {
		return nil, err
	}
	return rc.result, nil
}

// step executes the current node and records it.
func (e *Engine) step(rc *runContext, resuming bool) (outcome, error) {
	node := rc.node
	exec, err := executorFor(node)
	if err != nil {
		return outcome{}, &NodeError{NodeID: node.ID, NodeType: node.Type, Err: err}
	}

	before := rc.scope.Flat()
	started := e.now()
	e.emitNodeEnter(rc)

	var out outcome
	if r, ok := exec.(resumer); ok && resuming {
		out, err = r.resume(rc)
	} else {
		out, err = exec.execute(rc)
	}
	if err == nil && out.kind == outcomeAdvance && !out.direct {
		out.target = rc.flow.Resolve(node, out.handle)
	}

	duration := e.now().Sub(started)
	flushErr := e.flushVariables(rc)
	e.recordExecution(rc, out, before, duration, err)
	e.emitNodeLeave(rc, out, duration, err)

	if err != nil {
		return out, &NodeError{NodeID: node.ID, NodeType: node.Type, Err: err}
	}
	return out, flushErr
}

// apply moves the session according to out. stop reports that the run is over.
func (e *Engine) apply(rc *runContext, out outcome) (next *domain.Node, stop bool, err error) {
	s := rc.session
	switch out.kind {
	case outcomeAdvance:
		if out.target == "" {
			return e.endFlow(rc, domain.SessionKeepActive)
		}
		return e.nodeAt(rc, out.target)

	case outcomeWaitInput:
		s.Status = domain.StatusActive
		s.Waiting = domain.WaitInput
		return nil, true, nil

	case outcomePause:
		at := out.resumeAt
		s.Status = domain.StatusPaused
		s.Waiting = domain.WaitTimer
		s.ResumeAt = &at
		return nil, true, nil

	case outcomeEnd:
		return e.endFlow(rc, out.action)

	case outcomeCall:
		if len(s.CallStack) >= e.maxCallDepth {
			return nil, false, &NodeError{NodeID: rc.node.ID, NodeType: rc.node.Type, Err: ErrCallDepth}
		}
		start, ok := out.flow.StartNode()
		if !ok {
			return nil, false, &NodeError{
				NodeID:   rc.node.ID,
				NodeType: rc.node.Type,
				Err:      fmt.Errorf("%w: flow version %s has no start node", ErrNodeNotFound, out.flow.ID),
			}
		}
		s.Push(domain.Frame{FlowVersionID: rc.flow.ID, ReturnNodeID: out.returnNodeID})
		rc.flow = out.flow
		s.FlowVersionID = out.flow.ID
		return start, false, nil
	}
	return nil, false, fmt.Errorf("unexpected outcome %d", out.kind)
}

// endFlow returns to the innermost caller, or finishes the session when
// there is none. A frame without a return node ends the caller as well.
func (e *Engine) endFlow(rc *runContext, action domain.SessionAction) (*domain.Node, bool, error) {
	s := rc.session
	for {
		frame, ok := s.Pop()
		if !ok {
			status := domain.StatusCompleted
			if action == domain.SessionClose {
				status = domain.StatusClosed
			}
			s.Close(status, e.now())
			s.Loops = nil
			return nil, true, nil
		}

		fv, err := e.flows.Version(rc.ctx, frame.FlowVersionID)
		if err != nil {
			return nil, false, &NodeError{NodeID: rc.node.ID, NodeType: rc.node.Type, Err: err}
		}
		rc.flow = fv
		s.FlowVersionID = fv.ID
		if frame.ReturnNodeID != "" {
			return e.nodeAt(rc, frame.ReturnNodeID)
		}
		action = domain.SessionKeepActive
	}
}

func (e *Engine) nodeAt(rc *runContext, id string) (*domain.Node, bool, error) {
	n, ok := rc.flow.Node(id)
	if !ok {
		return nil, false, &NodeError{
			NodeID:   rc.node.ID,
			NodeType: rc.node.Type,
			Err:      fmt.Errorf("%w: %s", ErrNodeNotFound, id),
		}
	}
	return n, false, nil
}

// fail marks the session FAILED and persists it.
func (e *Engine) fail(rc *runContext, err error) (*domain.RunResult, error) {
	var nodeErr *NodeError
	if !errors.As(err, &nodeErr) {
		nodeErr = &NodeError{NodeID: rc.session.CurrentNodeID, Err: err}
		if rc.node != nil {
			nodeErr.NodeType = rc.node.Type
		}
	}

	e.logger.ErrorContext(rc.ctx, "Session failed",
		logging.SessionID(rc.session.ID),
		logging.NodeID(nodeErr.NodeID),
		logging.Error(nodeErr.Err),
	)

	rc.session.Close(domain.StatusFailed, e.now())
	if saveErr := e.save(rc); saveErr != nil {
		return rc.result, errors.Join(nodeErr, saveErr)
	}
	return rc.result, nodeErr
}

func (e *Engine) save(rc *runContext) error {
	rc.session.UpdatedAt = e.now()
	if err := e.sessions.Store().Save(rc.ctx, rc.session); err != nil {
		return fmt.Errorf("failed to save session %s: %w", rc.session.ID, err)
	}
	e.emitSessionEnd(rc.ctx, rc.session)
	return nil
}

func (e *Engine) loadScope(ctx context.Context, s *domain.Session) (*variables.Scope, error) {
	bot, err := e.vars.BotVariables(ctx, s.BotID)
	if err != nil {
		return nil, fmt.Errorf("failed to load bot variables: %w", err)
	}
	sess, err := e.vars.SessionVariables(ctx, s.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load session variables: %w", err)
	}
	return variables.NewScope(bot, sess), nil
}

func (e *Engine) flushVariables(rc *runContext) error {
	dirty := rc.scope.Dirty()
	if len(dirty) == 0 {
		return nil
	}
	if err := e.vars.SetSessionVariables(rc.ctx, rc.session.ID, dirty...); err != nil {
		return fmt.Errorf("failed to persist session variables: %w", err)
	}
	return nil
}

func (e *Engine) recordExecution(rc *runContext, out outcome, before map[string]any, d time.Duration, err error) {
	rec := domain.ExecutionRecord{
		ID:              newID(),
		SessionID:       rc.session.ID,
		FlowVersionID:   rc.flow.ID,
		NodeID:          rc.node.ID,
		NodeType:        rc.node.Type,
		Outcome:         out.String(),
		Duration:        d,
		InputVariables:  before,
		OutputVariables: domain.DiffVariables(before, rc.scope.Flat()),
		CreatedAt:       e.now(),
	}
	if out.kind == outcomeAdvance {
		rec.NextNodeID = out.target
	}
	if err != nil {
		rec.Outcome = "error"
		rec.Error = err.Error()
	}
	if logErr := e.logs.AppendExecution(rc.ctx, rec); logErr != nil {
		e.logger.WarnContext(rc.ctx, "Failed to record execution", logging.SessionID(rc.session.ID), logging.Error(logErr))
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
