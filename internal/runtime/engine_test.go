package runtime_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aretw0/convoflow/internal/runtime"
	"github.com/aretw0/convoflow/pkg/domain"
	"github.com/aretw0/convoflow/pkg/dsl"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEngine_MessageFlowCompletes(t *testing.T) {
	b := dsl.New("main")
	b.Start("start").Go("hello")
	b.Message("hello", "Hello from {{botName || \"convoflow\"}}").Go("end")
	b.End("end")
	h := newHarness(t, []*domain.FlowVersion{b.MustBuild()})

	res := h.send(t, "hi")

	assert.Equal(t, []string{"Hello from convoflow"}, texts(res))
	assert.Equal(t, domain.StatusCompleted, res.Session.Status)
	assert.Nil(t, res.Session.ClosedAt)

	deliveries := h.outbox.Deliveries()
	require.Len(t, deliveries, 1)
	assert.Equal(t, testAddress, deliveries[0].To)

	msgs, err := h.logs.RecentMessages(context.Background(), res.Session.ID, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, domain.SenderUser, msgs[0].Sender)
	assert.Equal(t, domain.DeliveryReceived, msgs[0].Status)
	assert.Equal(t, domain.SenderBot, msgs[1].Sender)
	assert.Equal(t, domain.DeliverySent, msgs[1].Status)

	execs, err := h.logs.Executions(context.Background(), res.Session.ID)
	require.NoError(t, err)
	require.Len(t, execs, 3)
	assert.Equal(t, "hello", execs[0].NextNodeID)
	assert.Equal(t, "end", execs[2].Outcome)
}

func TestEngine_CompletedSessionStartsOver(t *testing.T) {
	b := dsl.New("main")
	b.Start("start").Go("hello")
	b.Message("hello", "Hello").Go("end")
	b.End("end")
	h := newHarness(t, []*domain.FlowVersion{b.MustBuild()})

	first := h.send(t, "hi")
	second := h.send(t, "hi again")

	assert.NotEqual(t, first.Session.ID, second.Session.ID)
	assert.Equal(t, []string{"Hello"}, texts(second))
}

func TestEngine_CloseSession(t *testing.T) {
	b := dsl.New("main")
	b.Start("start").Go("bye")
	b.Close("bye", "Bye {{name || 'there'}}")
	h := newHarness(t, []*domain.FlowVersion{b.MustBuild()})

	res := h.send(t, "hi")

	assert.Equal(t, []string{"Bye there"}, texts(res))
	stored, err := h.store.Get(context.Background(), res.Session.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusClosed, stored.Status)
	assert.NotNil(t, stored.ClosedAt)
	assert.Nil(t, stored.ResumeAt)

	_, err = h.engine.Execute(context.Background(), stored.ID, &domain.Input{Text: "more"}, false)
	assert.ErrorIs(t, err, domain.ErrSessionClosed)
}

func TestEngine_ImplicitEnd(t *testing.T) {
	b := dsl.New("main")
	b.Start("start").Go("hello")
	b.Message("hello", "Hello")
	h := newHarness(t, []*domain.FlowVersion{b.MustBuild()})

	res := h.send(t, "hi")

	assert.Equal(t, domain.StatusCompleted, res.Session.Status)
}

func TestEngine_InputContinuesLiveSession(t *testing.T) {
	b := dsl.New("main")
	b.Start("start").Go("ask")
	b.Input("ask", "What is your name?", "name").Go("greet")
	b.Message("greet", "Nice to meet you, {{name}}!").Go("end")
	b.End("end")
	h := newHarness(t, []*domain.FlowVersion{b.MustBuild()})

	first := h.send(t, "hi")
	assert.Equal(t, []string{"What is your name?"}, texts(first))
	assert.Equal(t, domain.StatusActive, first.Session.Status)
	assert.Equal(t, domain.WaitInput, first.Session.Waiting)

	second := h.send(t, "Ada")
	assert.Equal(t, first.Session.ID, second.Session.ID)
	assert.Equal(t, []string{"Nice to meet you, Ada!"}, texts(second))
	assert.Equal(t, "Ada", h.sessionVar(t, first.Session.ID, "name"))
}

func TestEngine_InputValidationRetries(t *testing.T) {
	b := dsl.New("main")
	b.Start("start").Go("ask")
	b.Node("ask", &domain.InputConfig{
		PromptText:   "Your email?",
		InputType:    domain.InputEmail,
		VariableName: "email",
		RetryConfig: &domain.InputRetry{
			MaxRetries:        1,
			RetryMessage:      "That does not look like an email.",
			FailureNextNodeID: "give_up",
		},
		SuccessNextNodeID: "ok",
	})
	b.Message("ok", "Thanks, {{email}}").Go("end")
	b.Message("give_up", "Let's skip that.").Go("end")
	b.End("end")
	fv := b.MustBuild()

	t.Run("fails after max retries", func(t *testing.T) {
		h := newHarness(t, []*domain.FlowVersion{fv})
		h.send(t, "hi")

		res := h.send(t, "nope")
		assert.Equal(t, []string{"That does not look like an email."}, texts(res))
		assert.Equal(t, 1, res.Session.InputRetries)

		res = h.send(t, "still nope")
		assert.Equal(t, []string{"Let's skip that."}, texts(res))
		assert.Equal(t, domain.StatusCompleted, res.Session.Status)
		assert.Nil(t, h.sessionVar(t, res.Session.ID, "email"))
	})

	t.Run("accepts valid input", func(t *testing.T) {
		h := newHarness(t, []*domain.FlowVersion{fv})
		h.send(t, "hi")

		res := h.send(t, "ada@example.com")
		assert.Equal(t, []string{"Thanks, ada@example.com"}, texts(res))
		assert.Equal(t, 0, res.Session.InputRetries)
	})
}

func TestEngine_InputWithoutFailureTargetKeepsAsking(t *testing.T) {
	b := dsl.New("main")
	b.Start("start").Go("ask")
	b.Node("ask", &domain.InputConfig{
		PromptText:   "Age?",
		InputType:    domain.InputNumber,
		VariableName: "age",
		RetryConfig:  &domain.InputRetry{MaxRetries: 0},
	})
	h := newHarness(t, []*domain.FlowVersion{b.MustBuild()})
	h.send(t, "hi")

	for range 3 {
		res := h.send(t, "abc")
		assert.Equal(t, domain.WaitInput, res.Session.Waiting)
		assert.Len(t, res.Responses, 1)
	}
}

func TestEngine_Buttons(t *testing.T) {
	b := dsl.New("main")
	b.Start("start").Go("ask")
	b.Node("ask", &domain.ButtonConfig{
		MessageText: "Continue?",
		StoreIn:     "answer",
		Buttons: []domain.Button{
			{ID: "btn_yes", Label: "Yes", NextNodeID: "yes"},
			{ID: "btn_no", Label: "No"},
		},
		Fallback: &domain.Fallback{Message: "Please pick an option."},
	}).On("btn_no", "no")
	b.Message("yes", "Great").Go("end")
	b.Message("no", "Ok").Go("end")
	b.End("end")
	fv := b.MustBuild()

	t.Run("prompt", func(t *testing.T) {
		h := newHarness(t, []*domain.FlowVersion{fv})
		res := h.send(t, "hi")
		require.Len(t, res.Responses, 1)
		choice := res.Responses[0].Choice
		require.NotNil(t, choice)
		assert.Equal(t, domain.KindButton, choice.Kind)
		assert.Equal(t, []domain.Choice{{ID: "btn_yes", Title: "Yes"}, {ID: "btn_no", Title: "No"}}, choice.Choices)
		assert.NotNil(t, h.outbox.Deliveries()[0].Choice)
	})

	t.Run("label match ignores case", func(t *testing.T) {
		h := newHarness(t, []*domain.FlowVersion{fv})
		first := h.send(t, "hi")
		res := h.send(t, "YES")
		assert.Equal(t, []string{"Great"}, texts(res))
		assert.Equal(t, "Yes", h.sessionVar(t, first.Session.ID, "answer"))
	})

	t.Run("choice id through edge handle", func(t *testing.T) {
		h := newHarness(t, []*domain.FlowVersion{fv})
		h.send(t, "hi")
		res, err := h.engine.HandleInbound(context.Background(), domain.Inbound{BotID: testBot, Address: testAddress, ChoiceID: "btn_no"})
		require.NoError(t, err)
		assert.Equal(t, []string{"Ok"}, texts(res))
	})

	t.Run("unmatched re-prompts", func(t *testing.T) {
		h := newHarness(t, []*domain.FlowVersion{fv})
		h.send(t, "hi")
		res := h.send(t, "maybe")
		require.Len(t, res.Responses, 2)
		assert.Equal(t, "Please pick an option.", res.Responses[0].Text)
		assert.NotNil(t, res.Responses[1].Choice)
		assert.Equal(t, domain.WaitInput, res.Session.Waiting)
	})
}

func TestEngine_ButtonFallbackTarget(t *testing.T) {
	b := dsl.New("main")
	b.Start("start").Go("ask")
	b.Buttons("ask", "Pick", domain.Button{ID: "a", Label: "A", NextNodeID: "end"}).On(domain.HandleFallback, "help")
	b.Message("help", "Talk to a human").Go("end")
	b.End("end")
	h := newHarness(t, []*domain.FlowVersion{b.MustBuild()})

	h.send(t, "hi")
	res := h.send(t, "something else")

	assert.Equal(t, []string{"Talk to a human"}, texts(res))
	assert.Equal(t, domain.StatusCompleted, res.Session.Status)
}

func TestEngine_List(t *testing.T) {
	b := dsl.New("main")
	b.Start("start").Go("menu")
	b.Node("menu", &domain.ListConfig{
		MessageText: "Menu",
		ButtonText:  "Open",
		StoreIn:     "pick",
		Sections: []domain.ListSection{
			{Title: "Food", Items: []domain.ListItem{{ID: "pizza", Title: "Pizza", NextNodeID: "done"}}},
			{Title: "Drinks", Items: []domain.ListItem{{ID: "juice", Title: "Juice", NextNodeID: "done"}}},
		},
	})
	b.Message("done", "You picked {{pick}}").Go("end")
	b.End("end")
	h := newHarness(t, []*domain.FlowVersion{b.MustBuild()})

	first := h.send(t, "hi")
	require.Len(t, first.Responses, 1)
	require.NotNil(t, first.Responses[0].Choice)
	assert.Len(t, first.Responses[0].Choice.Sections, 2)
	assert.Equal(t, "Open", first.Responses[0].Choice.ButtonText)

	res := h.send(t, "juice")
	assert.Equal(t, []string{"You picked Juice"}, texts(res))
}

func TestEngine_Condition(t *testing.T) {
	build := func() *domain.FlowVersion {
		b := dsl.New("main")
		b.Start("start").Go("check")
		b.Node("check", &domain.ConditionConfig{
			LeftOperand:  "{{age}}",
			Operator:     domain.OpGreaterThan,
			RightOperand: "17",
			Branches: []domain.ConditionBranch{
				{Expression: "{{age}} >= 13", NextNodeID: "teen"},
			},
			DefaultBranch: &domain.BranchTarget{NextNodeID: "child"},
		}).On(domain.HandleTrue, "adult")
		b.Message("adult", "adult").Go("end")
		b.Message("teen", "teen").Go("end")
		b.Message("child", "child").Go("end")
		b.End("end")
		return b.MustBuild()
	}

	tests := []struct {
		age  float64
		want string
	}{
		{age: 30, want: "adult"},
		{age: 15, want: "teen"},
		{age: 8, want: "child"},
	}
	for _, tt := range tests {
		h := newHarness(t, []*domain.FlowVersion{build()})
		h.setBotVar(t, "age", tt.age)

		res := h.send(t, "hi")
		assert.Equal(t, []string{tt.want}, texts(res), "age %v", tt.age)
	}
}

func TestEngine_DelayPausesUntilResumed(t *testing.T) {
	ctx := context.Background()
	b := dsl.New("main")
	b.Start("start").Go("wait")
	b.Delay("wait", 5, domain.DelayMinutes).Go("after")
	b.Message("after", "Back").Go("end")
	b.End("end")
	h := newHarness(t, []*domain.FlowVersion{b.MustBuild()})

	res := h.send(t, "hi")
	s := res.Session
	assert.Equal(t, domain.StatusPaused, s.Status)
	assert.Equal(t, domain.WaitTimer, s.Waiting)
	require.NotNil(t, s.ResumeAt)
	assert.Equal(t, h.now.Add(5*time.Minute), *s.ResumeAt)

	_, err := h.engine.HandleInbound(ctx, domain.Inbound{BotID: testBot, Address: testAddress, Text: "hello?"})
	assert.ErrorIs(t, err, domain.ErrSessionPaused)

	// Not claimed yet: resuming is a no-op.
	noop, err := h.engine.Resume(ctx, s.ID)
	require.NoError(t, err)
	assert.Empty(t, noop.Responses)
	assert.Equal(t, domain.StatusPaused, noop.Session.Status)

	h.now = h.now.Add(5 * time.Minute)
	claimed, err := h.store.ClaimResume(ctx, s.ID, h.now)
	require.NoError(t, err)
	require.True(t, claimed)

	_, err = h.engine.Execute(ctx, s.ID, &domain.Input{Text: "early"}, false)
	assert.ErrorIs(t, err, domain.ErrSessionPaused)

	resumed, err := h.engine.Resume(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"Back"}, texts(resumed))
	assert.Equal(t, domain.StatusCompleted, resumed.Session.Status)
	assert.Nil(t, resumed.Session.ResumeAt)
}

func TestEngine_Subflow(t *testing.T) {
	main := dsl.New("main")
	main.Start("start").Go("call")
	main.Subflow("call", "child").Go("back")
	main.Message("back", "Back in main").Go("end")
	main.End("end")

	child := dsl.New("child")
	child.Start("start").Go("hello")
	child.Message("hello", "In child").Go("end")
	child.Close("end", "")

	h := newHarness(t, []*domain.FlowVersion{main.MustBuild(), child.MustBuild()})

	res := h.send(t, "hi")

	assert.Equal(t, []string{"In child", "Back in main"}, texts(res))
	assert.Equal(t, domain.StatusCompleted, res.Session.Status)
	assert.Empty(t, res.Session.CallStack)
	assert.Equal(t, "main@1", res.Session.FlowVersionID)
}

func TestEngine_SubflowWaitsInsideChild(t *testing.T) {
	main := dsl.New("main")
	main.Start("start").Go("call")
	main.Subflow("call", "child").Go("back")
	main.Message("back", "Bye {{name}}").Go("end")
	main.End("end")

	child := dsl.New("child")
	child.Start("start").Go("ask")
	child.Input("ask", "Name?", "name").Go("end")
	child.End("end")

	h := newHarness(t, []*domain.FlowVersion{main.MustBuild(), child.MustBuild()})

	first := h.send(t, "hi")
	assert.Equal(t, "child@1", first.Session.FlowVersionID)
	assert.Len(t, first.Session.CallStack, 1)

	res := h.send(t, "Ada")
	assert.Equal(t, []string{"Bye Ada"}, texts(res))
	assert.Empty(t, res.Session.CallStack)
}

func TestEngine_SubflowDepthLimit(t *testing.T) {
	b := dsl.New("main")
	b.Start("start").Go("again")
	b.Subflow("again", "main")
	h := newHarness(t, []*domain.FlowVersion{b.MustBuild()}, runtime.WithMaxCallDepth(3))

	res, err := h.engine.HandleInbound(context.Background(), domain.Inbound{BotID: testBot, Address: testAddress, Text: "hi"})

	var nodeErr *runtime.NodeError
	require.True(t, errors.As(err, &nodeErr))
	assert.ErrorIs(t, err, runtime.ErrCallDepth)
	assert.Equal(t, "again", nodeErr.NodeID)
	assert.Equal(t, domain.StatusFailed, res.Session.Status)
}

func TestEngine_UnknownSubflowFails(t *testing.T) {
	b := dsl.New("main")
	b.Start("start").Go("call")
	b.Subflow("call", "missing")
	h := newHarness(t, []*domain.FlowVersion{b.MustBuild()})

	_, err := h.engine.HandleInbound(context.Background(), domain.Inbound{BotID: testBot, Address: testAddress, Text: "hi"})
	assert.ErrorIs(t, err, runtime.ErrFlowNotFound)
}

func TestEngine_StepLimit(t *testing.T) {
	b := dsl.New("main")
	b.Start("start").Go("spin")
	b.Message("spin", "again").Go("spin")
	h := newHarness(t, []*domain.FlowVersion{b.MustBuild()}, runtime.WithMaxSteps(20))

	res, err := h.engine.HandleInbound(context.Background(), domain.Inbound{BotID: testBot, Address: testAddress, Text: "hi"})

	assert.ErrorIs(t, err, runtime.ErrStepLimit)
	assert.Len(t, res.Responses, 19)
	stored, getErr := h.store.Get(context.Background(), res.Session.ID)
	require.NoError(t, getErr)
	assert.Equal(t, domain.StatusFailed, stored.Status)
}

func TestEngine_MissingTargetFails(t *testing.T) {
	b := dsl.New("main")
	b.Start("start").Go("ghost")
	h := newHarness(t, []*domain.FlowVersion{b.MustBuild()})

	_, err := h.engine.HandleInbound(context.Background(), domain.Inbound{BotID: testBot, Address: testAddress, Text: "hi"})

	var nodeErr *runtime.NodeError
	require.ErrorAs(t, err, &nodeErr)
	assert.ErrorIs(t, err, runtime.ErrNodeNotFound)
	assert.Equal(t, "start", nodeErr.NodeID)
}

func TestEngine_SimulatedMessages(t *testing.T) {
	prod := dsl.New("main")
	prod.Start("start").Go("hello")
	prod.Message("hello", "production").Go("end")
	prod.End("end")

	draft := dsl.New("main").Version(2).Draft()
	draft.Start("start").Go("hello")
	draft.Message("hello", "draft").Go("end")
	draft.End("end")

	h := newHarness(t, []*domain.FlowVersion{prod.MustBuild(), draft.MustBuild()})

	res, err := h.engine.HandleInbound(context.Background(), domain.Inbound{BotID: testBot, Address: "+1000000000", Text: "hi", Simulated: true})
	require.NoError(t, err)

	assert.Equal(t, []string{"draft"}, texts(res))
	assert.True(t, res.Session.IsTest)
	assert.Empty(t, h.outbox.Deliveries())

	msgs, err := h.logs.RecentMessages(context.Background(), res.Session.ID, 0)
	require.NoError(t, err)
	assert.Equal(t, domain.DeliverySimulated, msgs[len(msgs)-1].Status)
}

func TestEngine_ResetSimulation(t *testing.T) {
	ctx := context.Background()
	b := dsl.New("main")
	b.Start("start").Go("ask")
	b.Input("ask", "Name?", "name")
	h := newHarness(t, []*domain.FlowVersion{b.MustBuild()})

	_, err := h.engine.HandleInbound(ctx, domain.Inbound{BotID: testBot, Address: "+1000000000", Text: "hi", Simulated: true})
	require.NoError(t, err)
	live := h.send(t, "hi")

	n, err := h.engine.ResetSimulation(ctx, testBot, "+1000000000")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = h.engine.ResetSimulation(ctx, testBot, testAddress)
	require.NoError(t, err)
	assert.Equal(t, 0, n, "production sessions are left alone")

	stillLive, err := h.store.FindLive(ctx, testBot, testAddress)
	require.NoError(t, err)
	assert.Equal(t, live.Session.ID, stillLive.ID)
}

func TestEngine_RestartKeyword(t *testing.T) {
	b := dsl.New("main")
	b.Start("start").Go("ask")
	b.Input("ask", "Name?", "name").Go("end")
	b.End("end")
	h := newHarness(t, []*domain.FlowVersion{b.MustBuild()}, runtime.WithRestartKeywords("Restart", " "))

	first := h.send(t, "hi")
	res := h.send(t, "  RESTART ")

	assert.NotEqual(t, first.Session.ID, res.Session.ID)
	assert.Equal(t, []string{"Name?"}, texts(res))

	old, err := h.store.Get(context.Background(), first.Session.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusClosed, old.Status)
}

func TestEngine_InvalidInbound(t *testing.T) {
	h := newHarness(t, nil)
	_, err := h.engine.HandleInbound(context.Background(), domain.Inbound{Text: "hi"})
	assert.ErrorIs(t, err, domain.ErrInvalidInbound)
}

func TestEngine_LifecycleHooks(t *testing.T) {
	b := dsl.New("main")
	b.Start("start").Go("hello")
	b.Message("hello", "Hello").Go("end")
	b.End("end")

	var entered, left []string
	var ended []domain.SessionStatus
	hooks := domain.LifecycleHooks{
		OnNodeEnter: func(ctx context.Context, e *domain.NodeEvent) {
			entered = append(entered, e.NodeID)
		},
		OnNodeLeave: func(ctx context.Context, e *domain.NodeEvent) {
			left = append(left, e.NodeID+":"+e.Outcome)
		},
		OnSessionEnd: func(ctx context.Context, e *domain.SessionEvent) {
			ended = append(ended, e.Status)
		},
	}
	h := newHarness(t, []*domain.FlowVersion{b.MustBuild()}, runtime.WithLifecycleHooks(hooks))

	h.send(t, "hi")

	assert.Equal(t, []string{"start", "hello", "end"}, entered)
	assert.Equal(t, []string{"start:next", "hello:next", "end:end"}, left)
	assert.Equal(t, []domain.SessionStatus{domain.StatusCompleted}, ended)
}

func TestEngine_TransportFailureIsRecorded(t *testing.T) {
	b := dsl.New("main")
	b.Start("start").Go("hello")
	b.Message("hello", "Hello").Go("end")
	b.End("end")
	h := newHarness(t, []*domain.FlowVersion{b.MustBuild()})
	h.outbox.Err = errors.New("channel down")

	res := h.send(t, "hi")

	assert.Equal(t, domain.StatusCompleted, res.Session.Status)
	msgs, err := h.logs.RecentMessages(context.Background(), res.Session.ID, 1)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, domain.DeliveryFailed, msgs[0].Status)
	assert.Equal(t, "channel down", msgs[0].Error)
}
