package runtime_test

import (
	"context"
	"testing"
	"time"

	"github.com/aretw0/convoflow/internal/runtime"
	"github.com/aretw0/convoflow/pkg/adapters/memory"
	"github.com/aretw0/convoflow/pkg/domain"
	"github.com/aretw0/convoflow/pkg/session"
	"github.com/stretchr/testify/require"
)

const (
	testBot     = "bot-1"
	testAddress = "+5511999990000"
)

type harness struct {
	flows  *memory.Flows
	store  *memory.Store
	vars   *memory.Variables
	logs   *memory.Logs
	outbox *memory.Outbox
	engine *runtime.Engine
	now    time.Time
}

// newHarness registers versions, makes the first one the bot's main flow and
// builds an engine over in-memory adapters with a manual clock.
func newHarness(t *testing.T, versions []*domain.FlowVersion, opts ...runtime.EngineOption) *harness {
	t.Helper()
	h := &harness{
		flows:  memory.NewFlows(versions...),
		store:  memory.NewStore(),
		vars:   memory.NewVariables(),
		logs:   memory.NewLogs(),
		outbox: memory.NewOutbox(),
		now:    time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	if len(versions) > 0 {
		h.flows.SetMainFlow(testBot, versions[0].FlowID)
	}
	base := []runtime.EngineOption{
		runtime.WithTransport(h.outbox),
		runtime.WithClock(func() time.Time { return h.now }),
		runtime.WithSleep(func(context.Context, time.Duration) error { return nil }),
	}
	h.engine = runtime.NewEngine(h.flows, session.NewManager(h.store), h.vars, h.logs, append(base, opts...)...)
	return h
}

func (h *harness) send(t *testing.T, text string) *domain.RunResult {
	t.Helper()
	res, err := h.engine.HandleInbound(context.Background(), domain.Inbound{BotID: testBot, Address: testAddress, Text: text})
	require.NoError(t, err)
	return res
}

func (h *harness) sessionVar(t *testing.T, sessionID, name string) any {
	t.Helper()
	vars, err := h.vars.SessionVariables(context.Background(), sessionID)
	require.NoError(t, err)
	v, ok := vars[name]
	if !ok {
		return nil
	}
	return v.Value
}

func (h *harness) setBotVar(t *testing.T, name string, value any) {
	t.Helper()
	require.NoError(t, h.vars.SetBotVariable(context.Background(), testBot, domain.Variable{Name: name, Value: value}))
}

func texts(res *domain.RunResult) []string {
	out := make([]string, 0, len(res.Responses))
	for _, r := range res.Responses {
		out = append(out, r.Text)
	}
	return out
}
