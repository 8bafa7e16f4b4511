package domain

import (
	"time"

	"github.com/google/uuid"
)

// SessionStatus is the lifecycle state of a session.
type SessionStatus string

const (
	StatusActive    SessionStatus = "ACTIVE"
	StatusPaused    SessionStatus = "PAUSED"
	StatusCompleted SessionStatus = "COMPLETED"
	StatusClosed    SessionStatus = "CLOSED"
	StatusFailed    SessionStatus = "FAILED"
)

// Live reports whether the status holds the (bot, address) slot.
func (s SessionStatus) Live() bool {
	return s == StatusActive || s == StatusPaused
}

// Terminal reports whether the session can never run again.
func (s SessionStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusClosed || s == StatusFailed
}

// WaitKind records why the current node suspended the run.
type WaitKind string

const (
	WaitNone  WaitKind = ""
	WaitInput WaitKind = "input"
	WaitTimer WaitKind = "timer"
)

// Frame is one entry of the subflow call stack.
type Frame struct {
	FlowVersionID string `json:"flowVersionId"`
	ReturnNodeID  string `json:"returnNodeId"`
}

// LoopFrame is the persisted progress of a LOOP node.
type LoopFrame struct {
	// Iteration counts completed body passes.
	Iteration int   `json:"iteration"`
	Items     []any `json:"items,omitempty"`
	Count     int   `json:"count,omitempty"`
	Results   []any `json:"results,omitempty"`
}

// Session is a conversation between one end-user address and one bot.
type Session struct {
	ID            string        `json:"id"`
	BotID         string        `json:"botId"`
	Address       string        `json:"address"`
	FlowVersionID string        `json:"flowVersionId"`
	CurrentNodeID string        `json:"currentNodeId"`
	Status        SessionStatus `json:"status"`
	Waiting       WaitKind      `json:"waiting,omitempty"`
	ResumeAt      *time.Time    `json:"resumeAt,omitempty"`

	CallStack    []Frame               `json:"callStack,omitempty"`
	Loops        map[string]*LoopFrame `json:"loops,omitempty"`
	InputRetries int                   `json:"inputRetries,omitempty"`

	IsTest    bool       `json:"isTest"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
	ClosedAt  *time.Time `json:"closedAt,omitempty"`
}

// NewSession creates an ACTIVE session positioned at the START node of fv.
func NewSession(botID, address string, fv *FlowVersion, isTest bool, now time.Time) *Session {
	s := &Session{
		ID:            uuid.NewString(),
		BotID:         botID,
		Address:       address,
		FlowVersionID: fv.ID,
		Status:        StatusActive,
		IsTest:        isTest,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if start, ok := fv.StartNode(); ok {
		s.CurrentNodeID = start.ID
	}
	return s
}

// LiveKey identifies the uniqueness slot of a session.
func LiveKey(botID, address string) string {
	return botID + "|" + address
}

// ClaimLease is how long a claimed timer may stay unresumed before the
// session can be claimed again.
const ClaimLease = time.Minute

// Due reports whether a paused session should be resumed at now.
func (s *Session) Due(now time.Time) bool {
	return s.Status == StatusPaused && s.ResumeAt != nil && !s.ResumeAt.After(now)
}

// Stalled reports whether a claimed timer was never resumed within ClaimLease.
func (s *Session) Stalled(now time.Time) bool {
	return s.Status == StatusActive && s.Waiting == WaitTimer && !s.UpdatedAt.Add(ClaimLease).After(now)
}

// Claimable reports whether a scheduler may claim the session at now.
func (s *Session) Claimable(now time.Time) bool {
	return s.Due(now) || s.Stalled(now)
}

// TimerPending reports whether the session still owes a timer resume.
func (s *Session) TimerPending() bool {
	return (s.Status == StatusPaused && s.ResumeAt != nil) || (s.Status == StatusActive && s.Waiting == WaitTimer)
}

// Close moves the session to a terminal status and clears suspension state.
func (s *Session) Close(status SessionStatus, now time.Time) {
	s.Status = status
	s.Waiting = WaitNone
	s.ResumeAt = nil
	s.UpdatedAt = now
	if status == StatusClosed {
		s.ClosedAt = &now
	}
}

// Push records a subflow call.
func (s *Session) Push(f Frame) {
	s.CallStack = append(s.CallStack, f)
}

// Pop removes the innermost subflow call. ok is false on an empty stack.
func (s *Session) Pop() (f Frame, ok bool) {
	if len(s.CallStack) == 0 {
		return Frame{}, false
	}
	f = s.CallStack[len(s.CallStack)-1]
	s.CallStack = s.CallStack[:len(s.CallStack)-1]
	return f, true
}
