package cli

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/aretw0/convoflow"
	"github.com/aretw0/convoflow/internal/config"
	"github.com/aretw0/convoflow/pkg/adapters/file"
	httpadapter "github.com/aretw0/convoflow/pkg/adapters/http"
	"github.com/aretw0/convoflow/pkg/adapters/memory"
	"github.com/aretw0/convoflow/pkg/adapters/redis"
	"github.com/aretw0/convoflow/pkg/adapters/whatsapp"
	"github.com/aretw0/convoflow/pkg/ai"
	"github.com/aretw0/convoflow/pkg/credentials"
	"github.com/aretw0/convoflow/pkg/observability"
	"github.com/aretw0/convoflow/pkg/persistence/middleware"
	"github.com/aretw0/convoflow/pkg/ports"
)

// App is a fully wired engine with the surfaces a server exposes.
type App struct {
	Engine   *convoflow.Engine
	Flows    *memory.Flows
	Registry *prometheus.Registry
	WhatsApp *whatsapp.Webhook

	cfg     *config.Config
	logger  *slog.Logger
	closers []func() error
}

// AppOption customises NewApp.
type AppOption func(*appOptions)

type appOptions struct {
	transport ports.Transport
	completer ai.Completer
	extra     []convoflow.Option
}

// WithTransport replaces the outbound channel built from the config.
func WithTransport(t ports.Transport) AppOption {
	return func(o *appOptions) { o.transport = t }
}

// WithCompleter replaces the chat completion client built from the config.
func WithCompleter(c ai.Completer) AppOption {
	return func(o *appOptions) { o.completer = c }
}

// WithEngineOptions appends raw engine options.
func WithEngineOptions(opts ...convoflow.Option) AppOption {
	return func(o *appOptions) { o.extra = append(o.extra, opts...) }
}

// NewApp loads the flows and wires stores, credentials, channels and metrics
// from cfg. Redis is used when configured, memory otherwise.
func NewApp(cfg *config.Config, logger *slog.Logger, opts ...AppOption) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	var o appOptions
	for _, opt := range opts {
		opt(&o)
	}

	flows, err := file.NewLoader(cfg.FlowsDir,
		file.WithStrict(cfg.StrictFlows),
		file.WithLogger(logger),
	).Load()
	if err != nil {
		return nil, err
	}

	app := &App{
		Flows:    flows,
		Registry: prometheus.NewRegistry(),
		cfg:      cfg,
		logger:   logger,
	}
	app.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := observability.NewMetrics(app.Registry)

	engineOpts := []convoflow.Option{
		convoflow.WithFlows(flows),
		convoflow.WithLogger(logger),
		convoflow.WithLifecycleHooks(observability.Chain(metrics.Hooks(), observability.LogHooks(logger))),
	}
	if len(cfg.RestartKeywords) > 0 {
		engineOpts = append(engineOpts, convoflow.WithRestartKeywords(cfg.RestartKeywords...))
	}

	var vars ports.VariableStore = memory.NewVariables()
	var logs ports.LogStore = memory.NewLogs()
	if cfg.RedisEnabled() {
		store := redis.New(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB,
			redis.WithPrefix(cfg.Redis.Prefix),
			redis.WithTTL(cfg.Redis.SessionTTL),
		)
		client := store.Client()
		vars = redis.NewVariables(client, cfg.Redis.Prefix)
		logs = redis.NewLogs(client, cfg.Redis.Prefix)
		engineOpts = append(engineOpts,
			convoflow.WithSessionStore(store),
			convoflow.WithLocker(redis.NewLocker(client, cfg.Redis.Prefix)),
		)
		app.closers = append(app.closers, store.Close)
		logger.Info("Using redis stores", "addr", cfg.Redis.Addr, "db", cfg.Redis.DB)
	}

	sealer, err := cfg.Sealer()
	if err != nil {
		return nil, err
	}
	if sealer != nil {
		vault := credentials.NewVault(sealer)
		for _, p := range cfg.Credentials.Providers {
			if err := vault.Add(p); err != nil {
				return nil, fmt.Errorf("invalid provider: %w", err)
			}
		}
		engineOpts = append(engineOpts, convoflow.WithProviders(vault))
		if cfg.Credentials.EncryptVars {
			vars = middleware.Variables(vars, middleware.NewEncryptionMiddleware(sealer))
		}
	}
	if len(cfg.Redact) > 0 {
		redact, err := middleware.NewRedactMiddleware(cfg.Redact)
		if err != nil {
			return nil, fmt.Errorf("invalid redact pattern: %w", err)
		}
		logs = middleware.Logs(logs, redact)
	}
	vars = middleware.Variables(vars, middleware.NewTypedMiddleware())
	engineOpts = append(engineOpts, convoflow.WithVariableStore(vars), convoflow.WithLogStore(logs))

	switch {
	case o.completer != nil:
		engineOpts = append(engineOpts, convoflow.WithCompleter(o.completer))
	case strings.EqualFold(cfg.AIBackend, "eino"):
		engineOpts = append(engineOpts, convoflow.WithCompleter(ai.NewEinoCompleter(0)))
	}

	transport := o.transport
	if transport == nil && cfg.WhatsAppEnabled() {
		clientOpts := []whatsapp.Option{whatsapp.WithLogger(logger)}
		if cfg.WhatsApp.BaseURL != "" {
			clientOpts = append(clientOpts, whatsapp.WithBaseURL(cfg.WhatsApp.BaseURL))
		}
		transport = whatsapp.NewClient(cfg.WhatsApp.PhoneNumberID, cfg.WhatsApp.AccessToken, clientOpts...)
	}
	if transport != nil {
		engineOpts = append(engineOpts, convoflow.WithTransport(transport))
	}

	app.Engine = convoflow.New(append(engineOpts, o.extra...)...)

	if cfg.WhatsAppEnabled() {
		app.WhatsApp = whatsapp.NewWebhook(app.Engine, cfg.WhatsApp.VerifyToken,
			whatsapp.WithAccount(cfg.WhatsApp.PhoneNumberID, cfg.WhatsApp.BotID),
			whatsapp.WithWebhookLogger(logger),
		)
	}
	return app, nil
}

// Handler returns the HTTP surface of the app.
func (a *App) Handler() http.Handler {
	opts := []httpadapter.Option{
		httpadapter.WithLogger(a.logger),
		httpadapter.WithGatherer(a.Registry),
		httpadapter.WithAllowedOrigins(a.cfg.AllowedOrigins...),
	}
	if a.WhatsApp != nil {
		opts = append(opts, httpadapter.WithChannel("whatsapp", a.WhatsApp))
	}
	return httpadapter.NewHandler(a.Engine, opts...)
}

// Close releases the stores.
func (a *App) Close() error {
	var errs []error
	for _, c := range a.closers {
		errs = append(errs, c())
	}
	return errors.Join(errs...)
}
