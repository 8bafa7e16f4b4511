package observability

import (
	"context"
	"strconv"

	"github.com/aretw0/convoflow/pkg/domain"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "convoflow"

// Metrics holds the engine collectors.
type Metrics struct {
	NodeVisits    *prometheus.CounterVec
	NodeDuration  *prometheus.HistogramVec
	NodeErrors    *prometheus.CounterVec
	ExternalCalls *prometheus.CounterVec
	CallDuration  *prometheus.HistogramVec
	AITokens      *prometheus.CounterVec
	// SessionsEnded counts finished runs, not only finished sessions.
	SessionsEnded *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		NodeVisits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "node_visits_total",
			Help:      "Node executions by node type.",
		}, []string{"node_type"}),
		NodeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "node_duration_seconds",
			Help:      "Time spent executing a node.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 8),
		}, []string{"node_type"}),
		NodeErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "node_errors_total",
			Help:      "Node executions that failed the session.",
		}, []string{"node_type"}),
		ExternalCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "external_calls_total",
			Help:      "API and AI call attempts by outcome.",
		}, []string{"kind", "outcome"}),
		CallDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "external_call_duration_seconds",
			Help:      "Duration of API and AI call attempts.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"kind"}),
		AITokens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ai_tokens_total",
			Help:      "Tokens consumed by AI completions.",
		}, []string{"model"}),
		SessionsEnded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_ended_total",
			Help:      "Finished runs by resulting session status.",
		}, []string{"status", "test"}),
	}
	reg.MustRegister(m.NodeVisits, m.NodeDuration, m.NodeErrors,
		m.ExternalCalls, m.CallDuration, m.AITokens, m.SessionsEnded)
	return m
}

// Hooks returns lifecycle hooks feeding the collectors.
func (m *Metrics) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnNodeEnter: func(ctx context.Context, e *domain.NodeEvent) {
			m.NodeVisits.WithLabelValues(string(e.NodeType)).Inc()
		},
		OnNodeLeave: func(ctx context.Context, e *domain.NodeEvent) {
			m.NodeDuration.WithLabelValues(string(e.NodeType)).Observe(e.Duration.Seconds())
			if e.Err != nil {
				m.NodeErrors.WithLabelValues(string(e.NodeType)).Inc()
			}
		},
		OnExternalCall: func(ctx context.Context, e *domain.CallEvent) {
			outcome := "success"
			if e.IsError {
				outcome = "error"
			}
			kind := string(e.Kind)
			m.ExternalCalls.WithLabelValues(kind, outcome).Inc()
			m.CallDuration.WithLabelValues(kind).Observe(e.Duration.Seconds())
			if e.Tokens > 0 {
				m.AITokens.WithLabelValues(e.Model).Add(float64(e.Tokens))
			}
		},
		OnSessionEnd: func(ctx context.Context, e *domain.SessionEvent) {
			m.SessionsEnded.WithLabelValues(string(e.Status), strconv.FormatBool(e.IsTest)).Inc()
		},
	}
}
