package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/aretw0/convoflow"
	httpadapter "github.com/aretw0/convoflow/pkg/adapters/http"
	"github.com/aretw0/convoflow/pkg/adapters/memory"
	"github.com/aretw0/convoflow/pkg/domain"
	"github.com/aretw0/convoflow/pkg/dsl"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const greetingFlow = `
flowId: greet
versionNumber: 1
isProduction: true
nodes:
  - nodeId: start
    nodeType: START
  - nodeId: ask
    nodeType: INPUT
    config:
      promptText: "What's your name?"
      variableName: name
  - nodeId: hello
    nodeType: MESSAGE
    config:
      text: "Hello, {{name}}!"
edges:
  - sourceNodeId: start
    targetNodeId: ask
  - sourceNodeId: ask
    targetNodeId: hello
`

type fixture struct {
	engine  *convoflow.Engine
	outbox  *memory.Outbox
	handler http.Handler
}

func newFixture(t *testing.T, opts ...httpadapter.Option) *fixture {
	t.Helper()
	greet, err := convoflow.ParseFlow([]byte(greetingFlow))
	require.NoError(t, err)

	wait := dsl.New("wait").Version(1)
	wait.Start("start").Go("pause")
	wait.Delay("pause", 5, domain.DelayMinutes).Go("done")
	wait.Message("done", "Thanks for waiting")

	flows := memory.NewFlows(greet, wait.MustBuild())
	flows.SetMainFlow("bot", "greet")
	flows.SetMainFlow("slow", "wait")

	outbox := memory.NewOutbox()
	engine := convoflow.New(convoflow.WithFlows(flows), convoflow.WithTransport(outbox))
	return &fixture{engine: engine, outbox: outbox, handler: httpadapter.NewHandler(engine, opts...)}
}

func (f *fixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		switch b := body.(type) {
		case string:
			buf.WriteString(b)
		default:
			require.NoError(t, json.NewEncoder(&buf).Encode(b))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, req)
	return w
}

func decodeBody[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func TestHealth(t *testing.T) {
	f := newFixture(t)
	w := f.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", decodeBody[map[string]string](t, w)["status"])
}

func TestValidateFlow(t *testing.T) {
	f := newFixture(t)

	t.Run("valid", func(t *testing.T) {
		w := f.do(t, http.MethodPost, "/api/flows/validate", greetingFlow)
		require.Equal(t, http.StatusOK, w.Code)
		res := decodeBody[convoflow.ValidationResult](t, w)
		assert.True(t, res.IsValid)
	})

	t.Run("no start node", func(t *testing.T) {
		doc := "flowId: broken\nnodes:\n  - nodeId: hi\n    nodeType: MESSAGE\n    config:\n      text: hi\n"
		w := f.do(t, http.MethodPost, "/api/flows/validate", doc)
		require.Equal(t, http.StatusOK, w.Code)
		res := decodeBody[convoflow.ValidationResult](t, w)
		assert.False(t, res.IsValid)
		assert.NotEmpty(t, res.Errors)
	})

	t.Run("unparseable", func(t *testing.T) {
		w := f.do(t, http.MethodPost, "/api/flows/validate", "nodes: [")
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestSimulator_Conversation(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodPost, "/api/simulator/message", httpadapter.MessageRequest{BotID: "bot", Text: "hi"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	first := decodeBody[httpadapter.RunResponse](t, w)
	require.Len(t, first.Responses, 1)
	assert.Equal(t, "What's your name?", first.Responses[0].Text)
	assert.Equal(t, domain.StatusActive, first.Status)

	w = f.do(t, http.MethodPost, "/api/simulator/message", httpadapter.MessageRequest{BotID: "bot", Text: "Ada"})
	require.Equal(t, http.StatusOK, w.Code)
	second := decodeBody[httpadapter.RunResponse](t, w)
	require.Len(t, second.Responses, 1)
	assert.Equal(t, "Hello, Ada!", second.Responses[0].Text)
	assert.Equal(t, first.SessionID, second.SessionID)

	assert.Empty(t, f.outbox.Deliveries(), "simulated sessions never reach the transport")

	sess, err := f.engine.Sessions().Get(context.Background(), first.SessionID)
	require.NoError(t, err)
	assert.True(t, sess.IsTest)
	assert.Equal(t, convoflow.DefaultSimulatorAddress, sess.Address)
}

func TestWebhook_DeliversThroughTransport(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodPost, "/api/webhook/bot", httpadapter.MessageRequest{Address: "+5511", Text: "hi"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	deliveries := f.outbox.Deliveries()
	require.Len(t, deliveries, 1)
	assert.Equal(t, "+5511", deliveries[0].To)
}

func TestWebhook_Errors(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name   string
		path   string
		body   any
		status int
	}{
		{"malformed json", "/api/webhook/bot", "{", http.StatusBadRequest},
		{"missing text", "/api/webhook/bot", httpadapter.MessageRequest{Address: "+1"}, http.StatusBadRequest},
		{"missing address", "/api/webhook/bot", httpadapter.MessageRequest{Text: "hi"}, http.StatusBadRequest},
		{"unknown bot", "/api/webhook/ghost", httpadapter.MessageRequest{Address: "+1", Text: "hi"}, http.StatusNotFound},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			w := f.do(t, http.MethodPost, tc.path, tc.body)
			assert.Equal(t, tc.status, w.Code, w.Body.String())
			assert.NotEmpty(t, decodeBody[httpadapter.ErrorResponse](t, w).Error)
		})
	}
}

func TestSimulator_PausedSessionConflicts(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodPost, "/api/simulator/message", httpadapter.MessageRequest{BotID: "slow", Text: "go"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, domain.StatusPaused, decodeBody[httpadapter.RunResponse](t, w).Status)

	w = f.do(t, http.MethodPost, "/api/simulator/message", httpadapter.MessageRequest{BotID: "slow", Text: "again"})
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestSimulator_PollAndReset(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodGet, "/api/simulator/poll?botId=bot", nil)
	require.Equal(t, http.StatusOK, w.Code)
	empty := decodeBody[httpadapter.PollResponse](t, w)
	assert.Empty(t, empty.SessionID)
	assert.Empty(t, empty.Messages)

	f.do(t, http.MethodPost, "/api/simulator/message", httpadapter.MessageRequest{BotID: "bot", Text: "hi"})

	w = f.do(t, http.MethodGet, "/api/simulator/poll?botId=bot", nil)
	require.Equal(t, http.StatusOK, w.Code)
	poll := decodeBody[httpadapter.PollResponse](t, w)
	assert.Equal(t, domain.WaitInput, poll.Waiting)
	require.Len(t, poll.Messages, 1, "user messages are not polled")
	assert.Equal(t, "What's your name?", poll.Messages[0].Content)

	since := url.QueryEscape(poll.Now.Format(time.RFC3339Nano))
	w = f.do(t, http.MethodGet, "/api/simulator/poll?botId=bot&since="+since, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decodeBody[httpadapter.PollResponse](t, w).Messages)

	w = f.do(t, http.MethodPost, "/api/simulator/reset", httpadapter.ResetRequest{BotID: "bot"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, decodeBody[map[string]int](t, w)["closed"])

	w = f.do(t, http.MethodGet, "/api/simulator/poll?botId=bot&since=yesterday", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSessionLogs(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodPost, "/api/simulator/message", httpadapter.MessageRequest{BotID: "bot", Text: "hi"})
	id := decodeBody[httpadapter.RunResponse](t, w).SessionID

	w = f.do(t, http.MethodGet, "/api/sessions/"+id+"/logs", nil)
	require.Equal(t, http.StatusOK, w.Code)
	logs := decodeBody[httpadapter.LogsResponse](t, w)
	assert.Equal(t, id, logs.Session.ID)
	assert.Len(t, logs.Messages, 2)
	assert.NotEmpty(t, logs.Executions)
	assert.Empty(t, logs.AIUsage)

	w = f.do(t, http.MethodGet, "/api/sessions/missing/logs", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "convoflow_test_total", Help: "test"})
	reg.MustRegister(counter)
	counter.Inc()

	f := newFixture(t, httpadapter.WithGatherer(reg))
	w := f.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "convoflow_test_total 1")
}

func TestChannelWebhookTakesPrecedence(t *testing.T) {
	channel := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("channel:" + r.Method))
	})
	f := newFixture(t, httpadapter.WithChannel("whatsapp", channel))

	w := f.do(t, http.MethodGet, "/api/webhook/whatsapp", nil)
	assert.Equal(t, "channel:GET", w.Body.String())
	w = f.do(t, http.MethodPost, "/api/webhook/whatsapp", "{}")
	assert.Equal(t, "channel:POST", w.Body.String())
}

func TestCORSPreflight(t *testing.T) {
	f := newFixture(t)
	req := httptest.NewRequest(http.MethodOptions, "/api/simulator/message", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", "POST")
	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, req)

	assert.True(t, w.Code == http.StatusOK || w.Code == http.StatusNoContent)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestStreamManager(t *testing.T) {
	sm := httpadapter.NewStreamManager()
	ch, cancel := sm.Subscribe("s1")

	assert.Equal(t, 1, sm.Broadcast("s1", `{"text":"hi"}`))
	assert.Equal(t, 0, sm.Broadcast("other", "x"))
	assert.Equal(t, `{"text":"hi"}`, <-ch)

	cancel()
	assert.Equal(t, 0, sm.Broadcast("s1", "late"))
	_, open := <-ch
	assert.False(t, open)
}

func TestSubscribeEvents_ReceivesRunMessages(t *testing.T) {
	f := newFixture(t)
	srv := httptest.NewServer(f.handler)
	defer srv.Close()

	// Start a session so its id is known before subscribing.
	w := f.do(t, http.MethodPost, "/api/simulator/message", httpadapter.MessageRequest{BotID: "bot", Text: "hi"})
	id := decodeBody[httpadapter.RunResponse](t, w).SessionID

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/sessions/"+id+"/events", nil)
	require.NoError(t, err)
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	buf := make([]byte, 256)
	n, err := resp.Body.Read(buf)
	require.NoError(t, err)
	require.Contains(t, string(buf[:n]), "event: ping")

	f.do(t, http.MethodPost, "/api/simulator/message", httpadapter.MessageRequest{BotID: "bot", Text: "Ada"})

	var got strings.Builder
	for !strings.Contains(got.String(), "Hello, Ada!") {
		n, err := resp.Body.Read(buf)
		require.NoError(t, err)
		got.Write(buf[:n])
	}
	assert.Contains(t, got.String(), "event: message")
}
