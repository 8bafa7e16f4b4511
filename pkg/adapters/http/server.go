package http

import (
	"log/slog"
	"net/http"

	"github.com/aretw0/convoflow/internal/logging"
	"github.com/aretw0/convoflow/pkg/ports"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Engine is the part of convoflow.Engine served over HTTP.
type Engine interface {
	ports.Conversations
	Sessions() ports.SessionStore
	Logs() ports.LogStore
}

// Server holds the handlers of the HTTP surface.
type Server struct {
	Engine  Engine
	Streams *StreamManager

	logger   *slog.Logger
	gatherer prometheus.Gatherer
	channels map[string]http.Handler
	origins  []string
}

type Option func(*Server)

// WithLogger sets the request logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithGatherer serves /metrics from g instead of the default registry.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) {
		s.gatherer = g
	}
}

// WithChannel mounts a channel webhook at /api/webhook/{name}. It takes
// precedence over the generic webhook for that path segment.
func WithChannel(name string, h http.Handler) Option {
	return func(s *Server) {
		s.channels[name] = h
	}
}

// WithAllowedOrigins restricts CORS. Defaults to any origin.
func WithAllowedOrigins(origins ...string) Option {
	return func(s *Server) {
		s.origins = origins
	}
}

// NewHandler creates the HTTP handler for the engine.
func NewHandler(engine Engine, opts ...Option) http.Handler {
	server := &Server{
		Engine:   engine,
		Streams:  NewStreamManager(),
		logger:   logging.NewNop(),
		gatherer: prometheus.DefaultGatherer,
		channels: make(map[string]http.Handler),
		origins:  []string{"*"},
	}
	for _, opt := range opts {
		opt(server)
	}
	return server.routes()
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.origins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
	}))

	r.Get("/health", s.GetHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	r.Route("/api", func(r chi.Router) {
		r.Post("/flows/validate", s.ValidateFlow)

		for name, h := range s.channels {
			r.Handle("/webhook/"+name, h)
		}
		r.Post("/webhook/{botID}", s.Webhook)

		r.Route("/simulator", func(r chi.Router) {
			r.Post("/message", s.SimulatorMessage)
			r.Post("/reset", s.SimulatorReset)
			r.Get("/poll", s.SimulatorPoll)
		})

		r.Get("/sessions/{sessionID}/logs", s.SessionLogs)
		r.Get("/sessions/{sessionID}/events", s.SubscribeEvents)
	})
	return r
}
