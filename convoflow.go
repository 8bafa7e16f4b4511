package convoflow

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aretw0/convoflow/internal/compiler"
	"github.com/aretw0/convoflow/internal/logging"
	"github.com/aretw0/convoflow/internal/runtime"
	"github.com/aretw0/convoflow/internal/scheduler"
	"github.com/aretw0/convoflow/internal/validator"
	"github.com/aretw0/convoflow/pkg/adapters/memory"
	"github.com/aretw0/convoflow/pkg/ai"
	"github.com/aretw0/convoflow/pkg/domain"
	"github.com/aretw0/convoflow/pkg/ports"
	"github.com/aretw0/convoflow/pkg/session"
)

// Engine is the high-level entry point of the convoflow library.
// It wires the runtime to its stores and provides a simplified API for hosts.
type Engine struct {
	runtime  *runtime.Engine
	manager  *session.Manager
	flows    ports.FlowRepository
	store    ports.SessionStore
	vars     ports.VariableStore
	logs     ports.LogStore
	locker   ports.DistributedLocker
	sanitize bool
	maxInput int

	runtimeOpts []runtime.EngineOption
	logger      *slog.Logger
}

// Option defines a functional option for configuring the Engine.
type Option func(*Engine)

// WithFlows sets the flow repository. Defaults to an empty in-memory one.
func WithFlows(f ports.FlowRepository) Option {
	return func(e *Engine) {
		e.flows = f
	}
}

// WithSessionStore sets the session store. Defaults to memory.
func WithSessionStore(s ports.SessionStore) Option {
	return func(e *Engine) {
		e.store = s
	}
}

// WithVariableStore sets the variable store. Defaults to memory.
func WithVariableStore(v ports.VariableStore) Option {
	return func(e *Engine) {
		e.vars = v
	}
}

// WithLogStore sets the message, execution and AI usage logs. Defaults to memory.
func WithLogStore(l ports.LogStore) Option {
	return func(e *Engine) {
		e.logs = l
	}
}

// WithLocker serialises session runs across replicas.
func WithLocker(l ports.DistributedLocker) Option {
	return func(e *Engine) {
		e.locker = l
	}
}

// WithTransport sets the outbound channel.
func WithTransport(t ports.Transport) Option {
	return func(e *Engine) {
		e.runtimeOpts = append(e.runtimeOpts, runtime.WithTransport(t))
	}
}

// WithProviders sets the resolver for AI provider references.
func WithProviders(p ports.ProviderResolver) Option {
	return func(e *Engine) {
		e.runtimeOpts = append(e.runtimeOpts, runtime.WithProviders(p))
	}
}

// WithCompleter replaces the chat completion client used by AI nodes.
func WithCompleter(c ai.Completer) Option {
	return func(e *Engine) {
		e.runtimeOpts = append(e.runtimeOpts, runtime.WithCompleter(c))
	}
}

// WithLifecycleHooks registers observability hooks.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(e *Engine) {
		e.runtimeOpts = append(e.runtimeOpts, runtime.WithLifecycleHooks(hooks))
	}
}

// WithLogger sets a custom structured logger for the engine.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithRestartKeywords makes the given words restart the conversation.
func WithRestartKeywords(words ...string) Option {
	return func(e *Engine) {
		e.runtimeOpts = append(e.runtimeOpts, runtime.WithRestartKeywords(words...))
	}
}

// WithMaxSteps bounds the node executions of a single run.
func WithMaxSteps(n int) Option {
	return func(e *Engine) {
		e.runtimeOpts = append(e.runtimeOpts, runtime.WithMaxSteps(n))
	}
}

// WithClock overrides time.Now for the runtime.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.runtimeOpts = append(e.runtimeOpts, runtime.WithClock(now))
	}
}

// WithInputLimit sets the maximum inbound text size in bytes.
func WithInputLimit(n int) Option {
	return func(e *Engine) {
		e.maxInput = n
	}
}

// WithoutSanitizer passes inbound text to the flow unchanged.
func WithoutSanitizer() Option {
	return func(e *Engine) {
		e.sanitize = false
	}
}

// New initializes an Engine. Stores that are not configured are in memory.
func New(opts ...Option) *Engine {
	eng := &Engine{sanitize: true}
	for _, opt := range opts {
		opt(eng)
	}

	if eng.flows == nil {
		eng.flows = memory.NewFlows()
	}
	if eng.store == nil {
		eng.store = memory.NewStore()
	}
	if eng.vars == nil {
		eng.vars = memory.NewVariables()
	}
	if eng.logs == nil {
		eng.logs = memory.NewLogs()
	}
	if eng.logger == nil {
		eng.logger = logging.NewNop()
	}

	sessOpts := []session.Option{session.WithLogger(eng.logger)}
	if eng.locker != nil {
		sessOpts = append(sessOpts, session.WithLocker(eng.locker))
	}
	eng.manager = session.NewManager(eng.store, sessOpts...)

	runtimeOpts := append([]runtime.EngineOption{runtime.WithLogger(eng.logger)}, eng.runtimeOpts...)
	eng.runtime = runtime.NewEngine(eng.flows, eng.manager, eng.vars, eng.logs, runtimeOpts...)
	return eng
}

// HandleInbound runs the live session of the sender, creating it when needed.
// Inbound text is sanitized first; oversized or malformed text is rejected.
func (e *Engine) HandleInbound(ctx context.Context, in domain.Inbound) (*domain.RunResult, error) {
	if e.sanitize {
		clean, err := SanitizeInput(in.Text, e.maxInput)
		if err != nil {
			return nil, err
		}
		in.Text = clean
	}
	return e.runtime.HandleInbound(ctx, in)
}

// Execute runs a session with optional input.
func (e *Engine) Execute(ctx context.Context, sessionID string, input *domain.Input, simulated bool) (*domain.RunResult, error) {
	return e.runtime.Execute(ctx, sessionID, input, simulated)
}

// Resume continues a session whose timer was claimed.
func (e *Engine) Resume(ctx context.Context, sessionID string) (*domain.RunResult, error) {
	return e.runtime.Resume(ctx, sessionID)
}

// ResetSimulation closes the live test session of an address.
func (e *Engine) ResetSimulation(ctx context.Context, botID, address string) (int, error) {
	return e.runtime.ResetSimulation(ctx, botID, address)
}

// Scheduler returns a resume scheduler over the engine's session store.
func (e *Engine) Scheduler(interval time.Duration) *scheduler.Scheduler {
	return scheduler.New(e.store, e.runtime,
		scheduler.WithInterval(interval),
		scheduler.WithLogger(e.logger),
	)
}

// Flows returns the flow repository.
func (e *Engine) Flows() ports.FlowRepository { return e.flows }

// Sessions returns the session store.
func (e *Engine) Sessions() ports.SessionStore { return e.store }

// Session reads a session under its lock, so a run in progress is never
// observed half way.
func (e *Engine) Session(ctx context.Context, id string) (*domain.Session, error) {
	return e.manager.Load(ctx, id)
}

// Variables returns the variable store.
func (e *Engine) Variables() ports.VariableStore { return e.vars }

// Logs returns the message, execution and AI usage logs.
func (e *Engine) Logs() ports.LogStore { return e.logs }

// ValidationResult reports the errors and warnings of a flow version.
type ValidationResult = validator.Result

// Validate checks a flow version for structural and configuration problems.
func Validate(fv *domain.FlowVersion) ValidationResult {
	return validator.Validate(fv)
}

// ParseFlow decodes a JSON or YAML flow document.
func ParseFlow(data []byte) (*domain.FlowVersion, error) {
	fv, err := compiler.NewParser().Parse(data)
	if err != nil {
		return nil, fmt.Errorf("invalid flow document: %w", err)
	}
	return fv, nil
}
