package ports

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/convoflow/pkg/domain"
)

func contractSession(botID, address string, now time.Time) *domain.Session {
	fv := &domain.FlowVersion{ID: "contract-v1", Nodes: []*domain.Node{{ID: "start", Type: domain.NodeStart}}}
	return domain.NewSession(botID, address, fv, false, now)
}

// RunSessionStoreContract runs a suite of tests to verify that a SessionStore
// implementation adheres to the defined interface contract.
func RunSessionStoreContract(t *testing.T, store SessionStore) {
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)
	bot := "contract-bot-" + now.Format("150405.000")

	t.Run("Create and Get", func(t *testing.T) {
		s := contractSession(bot, "+100", now)
		s.CallStack = []domain.Frame{{FlowVersionID: "parent", ReturnNodeID: "after"}}
		require.NoError(t, store.Create(ctx, s))

		loaded, err := store.Get(ctx, s.ID)
		require.NoError(t, err)
		assert.Equal(t, s.ID, loaded.ID)
		assert.Equal(t, "start", loaded.CurrentNodeID)
		assert.Equal(t, domain.StatusActive, loaded.Status)
		assert.Equal(t, s.CallStack, loaded.CallStack)
	})

	t.Run("Get Non-Existent", func(t *testing.T) {
		_, err := store.Get(ctx, "non-existent-"+bot)
		assert.ErrorIs(t, err, domain.ErrSessionNotFound)
	})

	t.Run("One Live Session Per Address", func(t *testing.T) {
		first := contractSession(bot, "+200", now)
		require.NoError(t, store.Create(ctx, first))

		second := contractSession(bot, "+200", now)
		err := store.Create(ctx, second)
		assert.ErrorIs(t, err, domain.ErrLiveSessionExists)

		live, err := store.FindLive(ctx, bot, "+200")
		require.NoError(t, err)
		assert.Equal(t, first.ID, live.ID)

		first.Close(domain.StatusCompleted, now)
		require.NoError(t, store.Save(ctx, first))

		_, err = store.FindLive(ctx, bot, "+200")
		assert.ErrorIs(t, err, domain.ErrSessionNotFound)
		require.NoError(t, store.Create(ctx, second), "slot is free once the session is no longer live")

		latest, err := store.FindLatest(ctx, bot, "+200")
		require.NoError(t, err)
		assert.Equal(t, second.ID, latest.ID)
	})

	t.Run("Claim Resume", func(t *testing.T) {
		s := contractSession(bot, "+300", now)
		resumeAt := now.Add(time.Minute)
		s.Status = domain.StatusPaused
		s.Waiting = domain.WaitTimer
		s.ResumeAt = &resumeAt
		require.NoError(t, store.Create(ctx, s))

		due, err := store.ListDue(ctx, now, 0)
		require.NoError(t, err)
		assert.NotContains(t, due, s.ID)

		ok, err := store.ClaimResume(ctx, s.ID, now)
		require.NoError(t, err)
		assert.False(t, ok, "claim before resumeAt must fail")

		later := resumeAt.Add(time.Second)
		due, err = store.ListDue(ctx, later, 0)
		require.NoError(t, err)
		assert.Contains(t, due, s.ID)

		var wins atomic.Int32
		var wg sync.WaitGroup
		for range 8 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				ok, err := store.ClaimResume(ctx, s.ID, later)
				assert.NoError(t, err)
				if ok {
					wins.Add(1)
				}
			}()
		}
		wg.Wait()
		assert.Equal(t, int32(1), wins.Load())

		loaded, err := store.Get(ctx, s.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.StatusActive, loaded.Status)
		assert.Nil(t, loaded.ResumeAt)
		assert.Equal(t, domain.WaitTimer, loaded.Waiting)

		due, err = store.ListDue(ctx, later, 0)
		require.NoError(t, err)
		assert.NotContains(t, due, s.ID)
	})

	t.Run("Stalled Claim Is Taken Over", func(t *testing.T) {
		s := contractSession(bot, "+350", now)
		resumeAt := now.Add(time.Second)
		s.Status = domain.StatusPaused
		s.Waiting = domain.WaitTimer
		s.ResumeAt = &resumeAt
		require.NoError(t, store.Create(ctx, s))

		claimedAt := resumeAt
		ok, err := store.ClaimResume(ctx, s.ID, claimedAt)
		require.NoError(t, err)
		require.True(t, ok)

		expired := claimedAt.Add(domain.ClaimLease)
		due, err := store.ListDue(ctx, expired.Add(-time.Millisecond), 0)
		require.NoError(t, err)
		assert.NotContains(t, due, s.ID, "claim still within its lease")

		due, err = store.ListDue(ctx, expired, 0)
		require.NoError(t, err)
		assert.Contains(t, due, s.ID)

		ok, err = store.ClaimResume(ctx, s.ID, expired)
		require.NoError(t, err)
		assert.True(t, ok, "stalled claim is claimable again")

		loaded, err := store.Get(ctx, s.ID)
		require.NoError(t, err)
		loaded.Waiting = domain.WaitInput
		require.NoError(t, store.Save(ctx, loaded))

		due, err = store.ListDue(ctx, expired.Add(domain.ClaimLease), 0)
		require.NoError(t, err)
		assert.NotContains(t, due, s.ID, "a resumed session owes no timer")
	})

	t.Run("Delete and List", func(t *testing.T) {
		s := contractSession(bot, "+400", now)
		require.NoError(t, store.Create(ctx, s))

		ids, err := store.List(ctx)
		require.NoError(t, err)
		assert.Contains(t, ids, s.ID)

		require.NoError(t, store.Delete(ctx, s.ID))
		_, err = store.Get(ctx, s.ID)
		assert.ErrorIs(t, err, domain.ErrSessionNotFound)
		_, err = store.FindLive(ctx, bot, "+400")
		assert.ErrorIs(t, err, domain.ErrSessionNotFound)
	})
}

// RunVariableStoreContract verifies a VariableStore implementation.
func RunVariableStoreContract(t *testing.T, store VariableStore) {
	ctx := context.Background()

	t.Run("Bot Variables", func(t *testing.T) {
		require.NoError(t, store.SetBotVariable(ctx, "bot-1", domain.Variable{Name: "company", Value: "Acme", Type: domain.VarString}))
		vars, err := store.BotVariables(ctx, "bot-1")
		require.NoError(t, err)
		assert.Equal(t, "Acme", vars["company"].Value)
		assert.Equal(t, domain.VarString, vars["company"].Type)
	})

	t.Run("Session Variables Overwrite", func(t *testing.T) {
		require.NoError(t, store.SetSessionVariables(ctx, "sess-1",
			domain.Variable{Name: "x", Value: 1.0, Type: domain.VarNumber},
			domain.Variable{Name: "profile", Value: map[string]any{"city": "Lisbon"}, Type: domain.VarObject},
		))
		require.NoError(t, store.SetSessionVariables(ctx, "sess-1", domain.Variable{Name: "x", Value: 5.0, Type: domain.VarNumber}))

		vars, err := store.SessionVariables(ctx, "sess-1")
		require.NoError(t, err)
		assert.Equal(t, 5.0, vars["x"].Value)
		assert.Equal(t, map[string]any{"city": "Lisbon"}, vars["profile"].Value)
	})

	t.Run("Unknown Scope Is Empty", func(t *testing.T) {
		vars, err := store.SessionVariables(ctx, "nobody")
		require.NoError(t, err)
		assert.Empty(t, vars)
	})
}

// RunLogStoreContract verifies a LogStore implementation.
func RunLogStoreContract(t *testing.T, store LogStore) {
	ctx := context.Background()
	base := time.Now().UTC().Truncate(time.Millisecond)

	t.Run("Messages", func(t *testing.T) {
		for i, sender := range []domain.Sender{domain.SenderUser, domain.SenderBot, domain.SenderBot} {
			require.NoError(t, store.AppendMessage(ctx, domain.MessageRecord{
				ID:        string(rune('a' + i)),
				SessionID: "log-sess",
				Sender:    sender,
				Kind:      domain.KindText,
				Content:   string(rune('a' + i)),
				CreatedAt: base.Add(time.Duration(i) * time.Second),
			}))
		}

		all, err := store.Messages(ctx, "log-sess", time.Time{})
		require.NoError(t, err)
		require.Len(t, all, 3)
		assert.Equal(t, "a", all[0].Content)

		since, err := store.Messages(ctx, "log-sess", base)
		require.NoError(t, err)
		require.Len(t, since, 2)
		assert.Equal(t, "b", since[0].Content)

		recent, err := store.RecentMessages(ctx, "log-sess", 2)
		require.NoError(t, err)
		require.Len(t, recent, 2)
		assert.Equal(t, "b", recent[0].Content)
		assert.Equal(t, "c", recent[1].Content)
	})

	t.Run("Executions", func(t *testing.T) {
		require.NoError(t, store.AppendExecution(ctx, domain.ExecutionRecord{
			ID: "x1", SessionID: "log-sess", NodeID: "start", NodeType: domain.NodeStart, CreatedAt: base,
		}))
		recs, err := store.Executions(ctx, "log-sess")
		require.NoError(t, err)
		require.Len(t, recs, 1)
		assert.Equal(t, "start", recs[0].NodeID)
	})

	t.Run("AI Usage", func(t *testing.T) {
		require.NoError(t, store.AppendAIUsage(ctx, domain.AIUsageRecord{
			ID: "u1", SessionID: "log-sess", Model: "gpt", Status: domain.AISuccess, TotalTokens: 12, CreatedAt: base,
		}))
		recs, err := store.AIUsage(ctx, "log-sess")
		require.NoError(t, err)
		require.Len(t, recs, 1)
		assert.Equal(t, 12, recs[0].TotalTokens)
	})
}
