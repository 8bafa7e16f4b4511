package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/aretw0/convoflow/pkg/domain"
	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// MessageRequest is the body of the webhook and simulator message routes.
type MessageRequest struct {
	BotID    string `json:"botId" validate:"omitempty,max=128"`
	FlowID   string `json:"flowId,omitempty" validate:"omitempty,max=128"`
	Address  string `json:"address" validate:"omitempty,max=64"`
	Text     string `json:"text" validate:"required_without=ChoiceID"`
	ChoiceID string `json:"choiceId,omitempty" validate:"omitempty,max=256"`
}

// ResetRequest is the body of the simulator reset route.
type ResetRequest struct {
	BotID   string `json:"botId" validate:"required,max=128"`
	Address string `json:"address" validate:"omitempty,max=64"`
}

// PollResponse reports bot messages produced since the caller's last poll.
type PollResponse struct {
	SessionID string                 `json:"sessionId,omitempty"`
	Status    domain.SessionStatus   `json:"status,omitempty"`
	Waiting   domain.WaitKind        `json:"waiting,omitempty"`
	ResumeAt  *time.Time             `json:"resumeAt,omitempty"`
	Messages  []domain.MessageRecord `json:"messages"`
	Now       time.Time              `json:"now"`
}

// LogsResponse bundles every log of a session.
type LogsResponse struct {
	Session    *domain.Session          `json:"session"`
	Messages   []domain.MessageRecord   `json:"messages"`
	Executions []domain.ExecutionRecord `json:"executions"`
	AIUsage    []domain.AIUsageRecord   `json:"aiUsage"`
}

// RunResponse is returned by the message routes.
type RunResponse struct {
	SessionID string                   `json:"sessionId"`
	Status    domain.SessionStatus     `json:"status"`
	Waiting   domain.WaitKind          `json:"waiting,omitempty"`
	Responses []domain.OutboundMessage `json:"responses"`
	Error     string                   `json:"error,omitempty"`
}

func newRunResponse(res *domain.RunResult) RunResponse {
	out := RunResponse{Responses: res.Responses}
	if out.Responses == nil {
		out.Responses = []domain.OutboundMessage{}
	}
	if res.Session != nil {
		out.SessionID = res.Session.ID
		out.Status = res.Session.Status
		out.Waiting = res.Session.Waiting
	}
	return out
}

// decode reads a JSON body into dst and checks its validation tags.
func decode(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return &requestError{msg: "invalid request body"}
	}
	if err := validate.Struct(dst); err != nil {
		return &requestError{msg: formatValidationError(err)}
	}
	return nil
}

type requestError struct {
	msg string
}

func (e *requestError) Error() string { return e.msg }

func formatValidationError(err error) string {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err.Error()
	}
	msgs := make([]string, 0, len(verrs))
	for _, e := range verrs {
		field := strings.ToLower(e.Field())
		switch e.Tag() {
		case "required", "required_without":
			msgs = append(msgs, fmt.Sprintf("%s is required", field))
		case "max":
			msgs = append(msgs, fmt.Sprintf("%s must be at most %s characters", field, e.Param()))
		default:
			msgs = append(msgs, fmt.Sprintf("%s is invalid", field))
		}
	}
	return strings.Join(msgs, "; ")
}
