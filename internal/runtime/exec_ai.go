package runtime

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aretw0/convoflow/internal/logging"
	"github.com/aretw0/convoflow/pkg/ai"
	"github.com/aretw0/convoflow/pkg/domain"
	"github.com/cloudwego/eino/schema"
)

const (
	defaultHistoryLength  = 10
	defaultTokenUsageName = "tokenUsage"
	responseFormatJSON    = "json_object"
	customProviderName    = "custom"
)

var errNoProvider = errors.New("no ai provider configured")

type aiExecutor struct {
	cfg *domain.AIConfig
}

func (x aiExecutor) execute(rc *runContext) (outcome, error) {
	e := rc.engine
	cfg := x.cfg

	creds, err := x.credentials(rc)
	if err != nil {
		return x.failed(rc, err), nil
	}
	model := cfg.Model
	if model == "" {
		model = creds.Model
	}

	req := ai.Request{
		BaseURL:          creds.BaseURL,
		APIKey:           creds.APIKey,
		Model:            model,
		Messages:         x.messages(rc),
		Temperature:      cfg.Temperature,
		MaxTokens:        cfg.MaxTokens,
		TopP:             cfg.TopP,
		FrequencyPenalty: cfg.FrequencyPenalty,
		PresencePenalty:  cfg.PresencePenalty,
		Stop:             cfg.StopSequences,
		Seed:             cfg.Seed,
		JSONMode:         cfg.ResponseFormat == responseFormatJSON,
	}

	timeout := DefaultAITimeout
	if cfg.Timeout > 0 {
		timeout = time.Duration(cfg.Timeout) * time.Second
	}

	var resp *ai.Response
	err = e.retry(rc.ctx, policyFor(cfg.RetryEnabled, cfg.Retry), func(ctx context.Context, n int) (bool, error) {
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		started := e.now()
		r, err := e.completer.Complete(ctx, req)
		latency := e.now().Sub(started)
		x.recordUsage(rc, creds, model, n, r, latency, err)

		ev := domain.CallEvent{Attempt: n, Model: model, Duration: latency, IsError: err != nil, StatusCode: ai.StatusCode(err)}
		if r != nil {
			ev.Tokens = r.Usage.TotalTokens
		}
		e.emitCall(rc, ev)

		if err != nil {
			return !ai.IsPermanent(err), err
		}
		resp = r
		return false, nil
	})
	if err != nil {
		return x.failed(rc, err), nil
	}

	if cfg.SendToUser {
		rc.sendText(resp.Content)
	}
	rc.scope.Set(cfg.ResponseVariable, resp.Content)
	if cfg.StoreEntireResponse {
		rc.scope.Set(cfg.StoreResponseIn, map[string]any{
			"content": resp.Content,
			"model":   resp.Model,
			"usage":   usageMap(resp.Usage),
		})
	}
	applyMappings(rc, []byte(stripFences(resp.Content)), cfg.ResponseMapping)
	if cfg.StoreTokenUsage {
		name := cfg.TokenUsageVariable
		if name == "" {
			name = defaultTokenUsageName
		}
		rc.scope.Set(name, usageMap(resp.Usage))
	}
	return advance(domain.HandleSuccess), nil
}

// credentials resolves the provider of the node. A custom base URL or key
// overrides the stored provider.
func (x aiExecutor) credentials(rc *runContext) (domain.ProviderCredentials, error) {
	cfg := x.cfg
	var creds domain.ProviderCredentials
	if cfg.AIProviderID != "" {
		if rc.engine.providers == nil {
			return creds, fmt.Errorf("%w: %s", domain.ErrProviderNotFound, cfg.AIProviderID)
		}
		var err error
		creds, err = rc.engine.providers.Resolve(rc.ctx, rc.session.BotID, cfg.AIProviderID)
		if err != nil {
			return creds, err
		}
	}
	if cfg.CustomBaseURL != "" {
		creds.BaseURL = rc.resolve(cfg.CustomBaseURL)
	}
	if cfg.CustomAPIKey != "" {
		creds.APIKey = rc.resolve(cfg.CustomAPIKey)
	}
	if p, ok := ai.LookupPreset(creds.Kind); ok {
		if creds.BaseURL == "" {
			creds.BaseURL = p.BaseURL
		}
		if creds.Model == "" {
			creds.Model = p.DefaultModel
		}
	}
	if creds.BaseURL == "" {
		return creds, errNoProvider
	}
	if creds.Name == "" {
		creds.Name = customProviderName
	}
	return creds, nil
}

// messages builds the system prompt, the recent history and the user turn.
func (x aiExecutor) messages(rc *runContext) []*schema.Message {
	cfg := x.cfg
	var msgs []*schema.Message
	if sp := rc.resolve(cfg.SystemPrompt); sp != "" {
		msgs = append(msgs, schema.SystemMessage(sp))
	}
	user := rc.resolve(cfg.UserMessage)

	if cfg.IncludeHistory {
		limit := cfg.HistoryLength
		if limit <= 0 {
			limit = defaultHistoryLength
		}
		records, err := rc.engine.logs.RecentMessages(rc.ctx, rc.session.ID, limit+1)
		if err != nil {
			rc.engine.logger.WarnContext(rc.ctx, "Failed to load message history", logging.SessionID(rc.session.ID), logging.Error(err))
		}
		// The answer being processed is already logged.
		if n := len(records); n > 0 && records[n-1].Sender == domain.SenderUser && records[n-1].Content == user {
			records = records[:n-1]
		}
		if len(records) > limit {
			records = records[len(records)-limit:]
		}
		for _, r := range records {
			switch r.Sender {
			case domain.SenderUser:
				msgs = append(msgs, schema.UserMessage(r.Content))
			case domain.SenderBot:
				msgs = append(msgs, schema.AssistantMessage(r.Content, nil))
			}
		}
	}
	return append(msgs, schema.UserMessage(user))
}

func (x aiExecutor) failed(rc *runContext, err error) outcome {
	rc.engine.logger.WarnContext(rc.ctx, "AI completion failed",
		logging.SessionID(rc.session.ID),
		logging.NodeID(rc.node.ID),
		logging.Error(err),
	)
	rc.scope.Set(x.cfg.ErrorVariable, map[string]any{"message": err.Error(), "statusCode": ai.StatusCode(err)})
	rc.sendText(rc.resolve(x.cfg.FallbackMessage))
	return jump(rc.resolveAny(domain.HandleError, domain.HandleFailure))
}

func (x aiExecutor) recordUsage(rc *runContext, creds domain.ProviderCredentials, model string, attempt int, r *ai.Response, latency time.Duration, err error) {
	rec := domain.AIUsageRecord{
		ID:        newID(),
		BotID:     rc.session.BotID,
		SessionID: rc.session.ID,
		NodeID:    rc.node.ID,
		NodeLabel: rc.node.Label,
		Provider:  creds.Name,
		Model:     model,
		Attempt:   attempt,
		Status:    domain.AISuccess,
		Latency:   latency,
		CreatedAt: rc.engine.now(),
	}
	if r != nil {
		rec.PromptTokens = r.Usage.PromptTokens
		rec.CompletionTokens = r.Usage.CompletionTokens
		rec.TotalTokens = r.Usage.TotalTokens
	}
	if err != nil {
		rec.Status = domain.AIError
		rec.ErrorCode = ai.ErrorCode(err)
		rec.ErrorMessage = err.Error()
	}
	if logErr := rc.engine.logs.AppendAIUsage(rc.ctx, rec); logErr != nil {
		rc.engine.logger.WarnContext(rc.ctx, "Failed to record AI usage", logging.SessionID(rc.session.ID), logging.Error(logErr))
	}
}

func usageMap(u ai.Usage) map[string]any {
	return map[string]any{
		"promptTokens":     u.PromptTokens,
		"completionTokens": u.CompletionTokens,
		"totalTokens":      u.TotalTokens,
	}
}

// stripFences removes a markdown code fence around a JSON completion.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimPrefix(s, "json")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
