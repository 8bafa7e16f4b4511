package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/aretw0/convoflow"
	"github.com/aretw0/convoflow/internal/logging"
	"github.com/aretw0/convoflow/internal/runtime"
	"github.com/aretw0/convoflow/pkg/domain"
	"github.com/go-chi/chi/v5"
)

// maxFlowDocument bounds the body of the validate route.
const maxFlowDocument = 1 << 20

// GetHealth handles GET /health.
func (s *Server) GetHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": strings.TrimSpace(convoflow.Version),
	})
}

// ValidateFlow handles POST /api/flows/validate. The body is a flow
// document in YAML or JSON.
func (s *Server) ValidateFlow(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(io.LimitReader(r.Body, maxFlowDocument))
	if err != nil {
		s.writeError(w, r, &requestError{msg: "failed to read body"})
		return
	}
	fv, err := convoflow.ParseFlow(data)
	if err != nil {
		s.writeError(w, r, &requestError{msg: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, convoflow.Validate(fv))
}

// Webhook handles POST /api/webhook/{botID} for generic channels that post
// already-normalised messages.
func (s *Server) Webhook(w http.ResponseWriter, r *http.Request) {
	var body MessageRequest
	if err := decode(r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.handle(w, r, domain.Inbound{
		BotID:    chi.URLParam(r, "botID"),
		FlowID:   body.FlowID,
		Address:  body.Address,
		Text:     body.Text,
		ChoiceID: body.ChoiceID,
	})
}

// SimulatorMessage handles POST /api/simulator/message. Simulated sessions
// run the newest draft and never reach the transport.
func (s *Server) SimulatorMessage(w http.ResponseWriter, r *http.Request) {
	var body MessageRequest
	if err := decode(r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}
	address := body.Address
	if address == "" {
		address = convoflow.DefaultSimulatorAddress
	}
	s.handle(w, r, domain.Inbound{
		BotID:     body.BotID,
		FlowID:    body.FlowID,
		Address:   address,
		Text:      body.Text,
		ChoiceID:  body.ChoiceID,
		Simulated: true,
	})
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request, in domain.Inbound) {
	res, err := s.Engine.HandleInbound(r.Context(), in)
	var nodeErr *runtime.NodeError
	if err != nil && (res == nil || res.Session == nil || !errors.As(err, &nodeErr)) {
		s.writeError(w, r, err)
		return
	}

	resp := newRunResponse(res)
	if err != nil {
		// The run failed inside a node; the session is already FAILED.
		s.logger.Warn("run failed", logging.SessionID(resp.SessionID), logging.Error(err))
		resp.Error = err.Error()
	}
	for _, msg := range res.Responses {
		if b, err := json.Marshal(msg); err == nil {
			s.Streams.Broadcast(resp.SessionID, string(b))
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// SimulatorReset handles POST /api/simulator/reset.
func (s *Server) SimulatorReset(w http.ResponseWriter, r *http.Request) {
	var body ResetRequest
	if err := decode(r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}
	address := body.Address
	if address == "" {
		address = convoflow.DefaultSimulatorAddress
	}
	closed, err := s.Engine.ResetSimulation(r.Context(), body.BotID, address)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"closed": closed})
}

// SimulatorPoll handles GET /api/simulator/poll?botId=&address=&since=.
// It returns the bot messages of the address's newest session created
// after since, so a client can pick up messages sent by delayed resumes.
func (s *Server) SimulatorPoll(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	botID := q.Get("botId")
	if botID == "" {
		s.writeError(w, r, &requestError{msg: "botid is required"})
		return
	}
	address := q.Get("address")
	if address == "" {
		address = convoflow.DefaultSimulatorAddress
	}
	var since time.Time
	if raw := q.Get("since"); raw != "" {
		t, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			s.writeError(w, r, &requestError{msg: "since must be an RFC 3339 timestamp"})
			return
		}
		since = t
	}

	resp := PollResponse{Messages: []domain.MessageRecord{}, Now: time.Now().UTC()}
	sess, err := s.Engine.Sessions().FindLatest(r.Context(), botID, address)
	if errors.Is(err, domain.ErrSessionNotFound) {
		writeJSON(w, http.StatusOK, resp)
		return
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	resp.SessionID = sess.ID
	resp.Status = sess.Status
	resp.Waiting = sess.Waiting
	resp.ResumeAt = sess.ResumeAt

	records, err := s.Engine.Logs().Messages(r.Context(), sess.ID, since)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	for _, rec := range records {
		if rec.Sender == domain.SenderBot {
			resp.Messages = append(resp.Messages, rec)
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// SessionLogs handles GET /api/sessions/{sessionID}/logs.
func (s *Server) SessionLogs(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "sessionID")

	sess, err := s.Engine.Sessions().Get(ctx, id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	logs := s.Engine.Logs()
	msgs, err := logs.Messages(ctx, id, time.Time{})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	execs, err := logs.Executions(ctx, id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	usage, err := logs.AIUsage(ctx, id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, LogsResponse{
		Session:    sess,
		Messages:   nonNil(msgs),
		Executions: nonNil(execs),
		AIUsage:    nonNil(usage),
	})
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
