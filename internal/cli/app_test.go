package cli_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/aretw0/convoflow/internal/cli"
	"github.com/aretw0/convoflow/internal/config"
	"github.com/aretw0/convoflow/internal/logging"
	"github.com/aretw0/convoflow/pkg/adapters/memory"
	"github.com/aretw0/convoflow/pkg/credentials"
	"github.com/aretw0/convoflow/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const greetFlow = `
flowId: greet
versionNumber: 1
isProduction: true
nodes:
  - nodeId: start
    nodeType: START
  - nodeId: ask
    nodeType: INPUT
    config:
      promptText: "What's your *name*?"
      variableName: name
  - nodeId: hello
    nodeType: MESSAGE
    config:
      text: "Hello, {{name}}!"
  - nodeId: end
    nodeType: END
    config:
      sessionAction: CLOSE_SESSION
edges:
  - sourceNodeId: start
    targetNodeId: ask
  - sourceNodeId: ask
    targetNodeId: hello
  - sourceNodeId: hello
    targetNodeId: end
`

func flowsDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "greet.yaml"), []byte(greetFlow), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bots.yaml"), []byte("bots:\n  support: greet\n"), 0o644))
	return dir
}

func newConfig(t *testing.T) *config.Config {
	cfg := config.NewDefaultConfig()
	cfg.FlowsDir = flowsDir(t)
	cfg.ResumeInterval = 10 * time.Millisecond
	return cfg
}

func TestNewApp_InvalidConfig(t *testing.T) {
	cfg := newConfig(t)
	cfg.Addr = ""
	_, err := cli.NewApp(cfg, logging.NewNop())
	assert.ErrorIs(t, err, config.ErrMissingAddr)
}

func TestNewApp_MissingFlowsDir(t *testing.T) {
	cfg := newConfig(t)
	cfg.FlowsDir = filepath.Join(t.TempDir(), "missing")
	_, err := cli.NewApp(cfg, logging.NewNop())
	assert.Error(t, err)
}

func TestApp_SimulateHeadless(t *testing.T) {
	app, err := cli.NewApp(newConfig(t), logging.NewNop())
	require.NoError(t, err)
	defer app.Close()

	var out bytes.Buffer
	err = app.Simulate(context.Background(), cli.SimulateOptions{
		BotID:    "support",
		Headless: true,
		Input:    strings.NewReader("hi\nAda\n"),
		Output:   &out,
	})
	require.NoError(t, err)
	assert.Contains(t, out.String(), "What's your *name*?")
	assert.Contains(t, out.String(), "Hello, Ada!")
}

func TestApp_SimulateUnknownFlow(t *testing.T) {
	app, err := cli.NewApp(newConfig(t), logging.NewNop())
	require.NoError(t, err)

	err = app.Simulate(context.Background(), cli.SimulateOptions{
		BotID:    "support",
		FlowID:   "nope",
		Headless: true,
		Input:    strings.NewReader(""),
		Output:   &bytes.Buffer{},
	})
	assert.ErrorIs(t, err, domain.ErrFlowNotFound)
}

func TestApp_HandlerAndTransport(t *testing.T) {
	outbox := memory.NewOutbox()
	app, err := cli.NewApp(newConfig(t), logging.NewNop(), cli.WithTransport(outbox))
	require.NoError(t, err)

	srv := httptest.NewServer(app.Handler())
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/api/webhook/support", "application/json",
		strings.NewReader(`{"address":"+351900000000","text":"hi"}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	deliveries := outbox.Deliveries()
	require.Len(t, deliveries, 1)
	assert.Equal(t, "+351900000000", deliveries[0].To)

	resp, err = http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	var body bytes.Buffer
	_, _ = body.ReadFrom(resp.Body)
	assert.Contains(t, body.String(), "convoflow_node_visits_total")
	assert.Contains(t, body.String(), "go_goroutines")
}

func TestApp_WhatsAppChannel(t *testing.T) {
	cfg := newConfig(t)
	cfg.WhatsApp = config.WhatsAppConfig{
		PhoneNumberID: "111",
		AccessToken:   "token",
		VerifyToken:   "verify",
		BotID:         "support",
		BaseURL:       "http://127.0.0.1:1",
	}
	app, err := cli.NewApp(cfg, logging.NewNop())
	require.NoError(t, err)
	require.NotNil(t, app.WhatsApp)

	req := httptest.NewRequest(http.MethodGet,
		"/api/webhook/whatsapp?hub.mode=subscribe&hub.verify_token=verify&hub.challenge=42", nil)
	rec := httptest.NewRecorder()
	app.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "42", rec.Body.String())
}

func TestApp_RedisSessions(t *testing.T) {
	mr := miniredis.RunT(t)
	key, err := credentials.GenerateKey()
	require.NoError(t, err)

	cfg := newConfig(t)
	cfg.Redis.Addr = mr.Addr()
	cfg.Credentials.Key = key
	cfg.Credentials.EncryptVars = true
	cfg.Redact = []string{"name"}

	app, err := cli.NewApp(cfg, logging.NewNop())
	require.NoError(t, err)
	defer app.Close()
	ctx := context.Background()

	res, err := app.Engine.HandleInbound(ctx, domain.Inbound{BotID: "support", Address: "+1", Text: "hi", Simulated: true})
	require.NoError(t, err)
	_, err = app.Engine.HandleInbound(ctx, domain.Inbound{BotID: "support", Address: "+1", Text: "Ada", Simulated: true})
	require.NoError(t, err)
	id := res.Session.ID

	var list bytes.Buffer
	require.NoError(t, app.ListSessions(ctx, &list))
	assert.Contains(t, list.String(), id)
	assert.Contains(t, list.String(), "CLOSED")

	var inspect bytes.Buffer
	require.NoError(t, app.InspectSession(ctx, &inspect, id))
	var rep cli.SessionReport
	require.NoError(t, json.Unmarshal(inspect.Bytes(), &rep))
	assert.Equal(t, id, rep.Session.ID)
	assert.NotEmpty(t, rep.Messages)
	for _, r := range rep.Executions {
		if v, ok := r.OutputVariables["name"]; ok {
			assert.Equal(t, "***", v, "execution logs are redacted")
		}
	}
	raw := mr.HGet(config.DefaultRedisPrefix+"vars:session:"+id, "name")
	require.NotEmpty(t, raw)
	assert.Contains(t, raw, "__encrypted__")
	assert.NotContains(t, raw, "Ada", "variables are sealed at rest")

	var mermaid bytes.Buffer
	require.NoError(t, app.SessionGraph(ctx, &mermaid, id))
	assert.Contains(t, mermaid.String(), "class ask visited;")

	var rm bytes.Buffer
	require.NoError(t, app.RemoveSessions(ctx, &rm, id))
	assert.Contains(t, rm.String(), "Removed session")
}

func TestApp_SessionCommandsNeedRedis(t *testing.T) {
	app, err := cli.NewApp(newConfig(t), logging.NewNop())
	require.NoError(t, err)
	assert.ErrorIs(t, app.ListSessions(context.Background(), &bytes.Buffer{}), cli.ErrNoSessionStore)
}

func TestApp_ServeShutsDown(t *testing.T) {
	app, err := cli.NewApp(newConfig(t), logging.NewNop())
	require.NoError(t, err)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.Serve(ctx, ln) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + ln.Addr().String() + "/health")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
