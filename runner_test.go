package convoflow_test

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/aretw0/convoflow"
	"github.com/aretw0/convoflow/pkg/adapters/memory"
	"github.com/aretw0/convoflow/pkg/domain"
	"github.com/aretw0/convoflow/pkg/dsl"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func menuEngine(t *testing.T) (*convoflow.Engine, *memory.Outbox) {
	t.Helper()
	b := dsl.New("menu")
	b.Start("start").Go("pick")
	b.Node("pick", &domain.ButtonConfig{
		MessageText: "Coffee or tea?",
		StoreIn:     "choice",
		Buttons: []domain.Button{
			{ID: "coffee", Label: "Coffee", NextNodeID: "wait"},
			{ID: "tea", Label: "Tea", NextNodeID: "wait"},
		},
	})
	b.Delay("wait", 2, domain.DelayMinutes).Go("ready")
	b.Message("ready", "Your {{choice || 'drink'}} is ready").Go("end")
	b.End("end")

	flows := memory.NewFlows(b.MustBuild())
	flows.SetMainFlow("cafe", "menu")
	outbox := memory.NewOutbox()
	return convoflow.New(convoflow.WithFlows(flows), convoflow.WithTransport(outbox)), outbox
}

func TestRunner_Conversation(t *testing.T) {
	engine, outbox := menuEngine(t)
	var out bytes.Buffer
	r := convoflow.NewRunner("cafe")
	r.Input = strings.NewReader("hi\ntea\n")
	r.Output = &out
	r.Headless = true

	require.NoError(t, r.Run(context.Background(), engine))

	assert.Equal(t, "Coffee or tea?\n  [coffee] Coffee\n  [tea] Tea\nYour Tea is ready\n", out.String())
	assert.Empty(t, outbox.Deliveries(), "simulated sessions never reach the transport")
}

func TestRunner_KeepsDelaysWhenAsked(t *testing.T) {
	engine, _ := menuEngine(t)
	var out bytes.Buffer
	r := convoflow.NewRunner("cafe")
	r.Input = strings.NewReader("hi\ncoffee\nhello?\nexit\nignored\n")
	r.Output = &out
	r.Headless = true
	r.SkipDelays = false

	require.NoError(t, r.Run(context.Background(), engine))

	assert.Contains(t, out.String(), "(waiting on a delay)")
	assert.True(t, strings.HasSuffix(out.String(), "Bye!\n"))
	assert.NotContains(t, out.String(), "is ready")
}

func TestRunner_RequiresIO(t *testing.T) {
	engine, _ := menuEngine(t)
	assert.Error(t, convoflow.NewRunner("cafe").Run(context.Background(), engine))
}
