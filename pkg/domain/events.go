package domain

import (
	"context"
	"time"
)

// EventType defines the category of the event.
type EventType string

const (
	EventNodeEnter    EventType = "node_enter"
	EventNodeLeave    EventType = "node_leave"
	EventExternalCall EventType = "external_call"
	EventSessionEnd   EventType = "session_end"
)

// EventBase contains common fields for all events.
type EventBase struct {
	Timestamp time.Time `json:"timestamp"`
	Type      EventType `json:"type"`
	SessionID string    `json:"session_id"`
}

// NodeEvent represents entry or exit from a node.
type NodeEvent struct {
	EventBase
	NodeID   string   `json:"node_id"`
	NodeType NodeType `json:"node_type"`
	// Outcome and Duration are only set on leave.
	Outcome  string        `json:"outcome,omitempty"`
	Duration time.Duration `json:"duration,omitempty"`
	Err      error         `json:"-"`
}

// CallEvent represents one attempt of an API or AI call.
type CallEvent struct {
	EventBase
	NodeID     string        `json:"node_id"`
	Kind       NodeType      `json:"kind"`
	Attempt    int           `json:"attempt"`
	StatusCode int           `json:"status_code,omitempty"`
	Model      string        `json:"model,omitempty"`
	Tokens     int           `json:"tokens,omitempty"`
	Duration   time.Duration `json:"duration"`
	IsError    bool          `json:"is_error,omitempty"`
}

// SessionEvent is emitted when a run leaves a session in a new status.
type SessionEvent struct {
	EventBase
	BotID  string        `json:"bot_id"`
	Status SessionStatus `json:"status"`
	IsTest bool          `json:"is_test,omitempty"`
}

// LifecycleHooks defines callbacks for engine observability.
type LifecycleHooks struct {
	OnNodeEnter    func(context.Context, *NodeEvent)
	OnNodeLeave    func(context.Context, *NodeEvent)
	OnExternalCall func(context.Context, *CallEvent)
	OnSessionEnd   func(context.Context, *SessionEvent)
}
