package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSession_Claimable(t *testing.T) {
	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	past := now.Add(-time.Second)
	future := now.Add(time.Second)

	tests := []struct {
		name      string
		session   Session
		claimable bool
		pending   bool
	}{
		{"paused and due", Session{Status: StatusPaused, Waiting: WaitTimer, ResumeAt: &past}, true, true},
		{"paused not yet due", Session{Status: StatusPaused, Waiting: WaitTimer, ResumeAt: &future}, false, true},
		{"fresh claim", Session{Status: StatusActive, Waiting: WaitTimer, UpdatedAt: now.Add(-time.Second)}, false, true},
		{"stalled claim", Session{Status: StatusActive, Waiting: WaitTimer, UpdatedAt: now.Add(-ClaimLease)}, true, true},
		{"waiting for input", Session{Status: StatusActive, Waiting: WaitInput, UpdatedAt: now.Add(-time.Hour)}, false, false},
		{"completed", Session{Status: StatusCompleted, UpdatedAt: now.Add(-time.Hour)}, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.claimable, tt.session.Claimable(now))
			assert.Equal(t, tt.pending, tt.session.TimerPending())
		})
	}
}
