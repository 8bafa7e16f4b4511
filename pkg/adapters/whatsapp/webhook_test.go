package whatsapp_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/aretw0/convoflow/pkg/adapters/whatsapp"
	"github.com/aretw0/convoflow/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	inbound []domain.Inbound
}

func (r *recorder) HandleInbound(ctx context.Context, in domain.Inbound) (*domain.RunResult, error) {
	r.inbound = append(r.inbound, in)
	return &domain.RunResult{}, nil
}

func (r *recorder) ResetSimulation(ctx context.Context, botID, address string) (int, error) {
	return 0, nil
}

func TestWebhook_Verify(t *testing.T) {
	wh := whatsapp.NewWebhook(&recorder{}, "s3cret")

	tests := []struct {
		name   string
		query  string
		status int
		body   string
	}{
		{"accepted", "hub.mode=subscribe&hub.verify_token=s3cret&hub.challenge=42", http.StatusOK, "42"},
		{"wrong token", "hub.mode=subscribe&hub.verify_token=nope&hub.challenge=42", http.StatusForbidden, "Forbidden\n"},
		{"wrong mode", "hub.mode=unsubscribe&hub.verify_token=s3cret", http.StatusForbidden, "Forbidden\n"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			wh.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/?"+tc.query, nil))
			assert.Equal(t, tc.status, w.Code)
			assert.Equal(t, tc.body, w.Body.String())
		})
	}
}

func TestWebhook_EmptyVerifyTokenRejects(t *testing.T) {
	wh := whatsapp.NewWebhook(&recorder{}, "")
	w := httptest.NewRecorder()
	wh.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/?hub.mode=subscribe&hub.verify_token=", nil))
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestWebhook_Receive(t *testing.T) {
	rec := &recorder{}
	wh := whatsapp.NewWebhook(rec, "s3cret", whatsapp.WithAccount("PN1", "bot-1"))

	w := httptest.NewRecorder()
	wh.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(notification)))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "EVENT_RECEIVED", w.Body.String())

	require.Len(t, rec.inbound, 3)
	assert.Equal(t, domain.Inbound{BotID: "bot-1", Address: "5511999", Text: "hello"}, rec.inbound[0])
	assert.Equal(t, "yes", rec.inbound[1].ChoiceID)
	assert.False(t, rec.inbound[0].Simulated)
}

func TestWebhook_UnknownAccountAndBadBodyAreAcknowledged(t *testing.T) {
	rec := &recorder{}
	wh := whatsapp.NewWebhook(rec, "s3cret")

	for _, body := range []string{notification, "{"} {
		w := httptest.NewRecorder()
		wh.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body)))
		assert.Equal(t, http.StatusOK, w.Code)
	}
	assert.Empty(t, rec.inbound)
}

func TestWebhook_MethodNotAllowed(t *testing.T) {
	wh := whatsapp.NewWebhook(&recorder{}, "s3cret")
	w := httptest.NewRecorder()
	wh.ServeHTTP(w, httptest.NewRequest(http.MethodPut, "/", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}
