package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/aretw0/convoflow"
	"github.com/aretw0/convoflow/internal/logging"
	"github.com/aretw0/convoflow/pkg/domain"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"requestId,omitempty"`
}

func statusFor(err error) int {
	var reqErr *requestError
	switch {
	case errors.As(err, &reqErr),
		errors.Is(err, domain.ErrInvalidInbound),
		errors.Is(err, convoflow.ErrInputTooLarge),
		errors.Is(err, convoflow.ErrInvalidUTF8):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrSessionPaused),
		errors.Is(err, domain.ErrSessionClosed),
		errors.Is(err, domain.ErrLiveSessionExists):
		return http.StatusConflict
	case errors.Is(err, domain.ErrSessionNotFound),
		errors.Is(err, domain.ErrFlowNotFound),
		errors.Is(err, domain.ErrVersionNotFound),
		errors.Is(err, domain.ErrNoMainFlow):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "path", r.URL.Path, logging.Error(err))
	} else {
		s.logger.Debug("request rejected", "path", r.URL.Path, "status", status, logging.Error(err))
	}
	writeJSON(w, status, ErrorResponse{
		Error:     err.Error(),
		RequestID: chimiddleware.GetReqID(r.Context()),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
