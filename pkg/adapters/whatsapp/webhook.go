package whatsapp

import (
	"io"
	"log/slog"
	"net/http"

	"github.com/aretw0/convoflow/internal/logging"
	"github.com/aretw0/convoflow/pkg/domain"
	"github.com/aretw0/convoflow/pkg/ports"
)

const maxNotification = 1 << 20

// Webhook serves the WhatsApp webhook endpoint.
type Webhook struct {
	conv        ports.Conversations
	verifyToken string
	bots        map[string]string // phone number id -> bot id
	logger      *slog.Logger
}

type WebhookOption func(*Webhook)

// WithAccount routes messages received by phoneNumberID to botID.
func WithAccount(phoneNumberID, botID string) WebhookOption {
	return func(w *Webhook) {
		w.bots[phoneNumberID] = botID
	}
}

func WithWebhookLogger(logger *slog.Logger) WebhookOption {
	return func(w *Webhook) {
		w.logger = logger
	}
}

// NewWebhook creates the handler. verifyToken must match hub.verify_token
// during the subscription handshake.
func NewWebhook(conv ports.Conversations, verifyToken string, opts ...WebhookOption) *Webhook {
	w := &Webhook{
		conv:        conv,
		verifyToken: verifyToken,
		bots:        make(map[string]string),
		logger:      logging.NewNop(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

func (wh *Webhook) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		wh.verify(w, r)
	case http.MethodPost:
		wh.receive(w, r)
	default:
		w.Header().Set("Allow", "GET, POST")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (wh *Webhook) verify(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("hub.mode") != "subscribe" || wh.verifyToken == "" || q.Get("hub.verify_token") != wh.verifyToken {
		wh.logger.Warn("webhook verification failed")
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}
	w.Header().Set("Content-Type", "text/plain")
	_, _ = io.WriteString(w, q.Get("hub.challenge"))
}

// receive acknowledges every notification. Processing failures are only logged.
func (wh *Webhook) receive(w http.ResponseWriter, r *http.Request) {
	defer func() {
		_, _ = io.WriteString(w, "EVENT_RECEIVED")
	}()

	body, err := io.ReadAll(io.LimitReader(r.Body, maxNotification))
	if err != nil {
		wh.logger.Error("failed to read notification", logging.Error(err))
		return
	}
	msgs, err := ParseNotification(body)
	if err != nil {
		wh.logger.Warn("invalid notification", logging.Error(err))
		return
	}

	for _, msg := range msgs {
		botID, ok := wh.bots[msg.PhoneNumberID]
		if !ok {
			wh.logger.Warn("no bot for phone number", "phone_number_id", msg.PhoneNumberID)
			continue
		}
		_, err := wh.conv.HandleInbound(r.Context(), domain.Inbound{
			BotID:    botID,
			Address:  msg.From,
			Text:     msg.Text,
			ChoiceID: msg.ChoiceID,
		})
		if err != nil {
			wh.logger.Error("failed to handle message", logging.BotID(botID), logging.Error(err))
		}
	}
}
