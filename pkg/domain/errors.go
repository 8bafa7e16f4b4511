package domain

import "errors"

// ErrSessionNotFound is returned when a session ID cannot be found in the store.
var ErrSessionNotFound = errors.New("session not found")

// ErrLiveSessionExists is returned when creating a session would give a
// (bot, address) pair a second ACTIVE or PAUSED session.
var ErrLiveSessionExists = errors.New("a live session already exists for this address")

// ErrSessionPaused is returned when input arrives for a session that is
// waiting on a timer.
var ErrSessionPaused = errors.New("session is paused")

// ErrSessionClosed is returned when a terminal session is asked to run.
var ErrSessionClosed = errors.New("session is closed")

var (
	ErrFlowNotFound     = errors.New("flow not found")
	ErrVersionNotFound  = errors.New("flow version not found")
	ErrNoMainFlow       = errors.New("bot has no main flow")
	ErrProviderNotFound = errors.New("ai provider not found")
)

// ErrInvalidInbound is returned for inbound messages without a bot or an address.
var ErrInvalidInbound = errors.New("inbound message requires a bot and an address")
