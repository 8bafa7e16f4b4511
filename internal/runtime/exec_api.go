package runtime

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/aretw0/convoflow/internal/logging"
	"github.com/aretw0/convoflow/internal/variables"
	"github.com/aretw0/convoflow/pkg/domain"
	"github.com/tidwall/gjson"
)

// maxResponseBody caps how much of an API response is read.
const maxResponseBody = 4 << 20

type apiExecutor struct {
	cfg *domain.APIConfig
}

// httpStatusError is a non-2xx API response.
type httpStatusError struct {
	code int
	body string
}

func (e *httpStatusError) Error() string {
	if e.body == "" {
		return fmt.Sprintf("request failed with status %d", e.code)
	}
	return fmt.Sprintf("request failed with status %d: %s", e.code, e.body)
}

// requestError is a request that could not be built from the node config.
type requestError struct {
	err error
}

func (e *requestError) Error() string { return e.err.Error() }
func (e *requestError) Unwrap() error { return e.err }

// retryable reports whether a failed attempt may succeed when repeated:
// transport failures and 5xx responses are, malformed requests are not.
func retryable(r *apiResponse, err error) bool {
	var reqErr *requestError
	if errors.As(err, &reqErr) {
		return false
	}
	return r == nil || r.status >= 500
}

type apiResponse struct {
	status int
	raw    []byte
}

func (x apiExecutor) execute(rc *runContext) (outcome, error) {
	e := rc.engine
	cfg := x.cfg

	timeout := DefaultAPITimeout
	if cfg.Timeout > 0 {
		timeout = time.Duration(cfg.Timeout) * time.Second
	}

	var resp *apiResponse
	err := e.retry(rc.ctx, policyFor(cfg.RetryEnabled, cfg.Retry), func(ctx context.Context, n int) (bool, error) {
		started := e.now()
		r, err := x.do(rc, ctx, timeout)
		ev := domain.CallEvent{Attempt: n, Duration: e.now().Sub(started), IsError: err != nil}
		if r != nil {
			ev.StatusCode = r.status
		}
		e.emitCall(rc, ev)
		resp = r

		if err != nil {
			e.logger.DebugContext(ctx, "API attempt failed",
				logging.SessionID(rc.session.ID),
				logging.NodeID(rc.node.ID),
				"attempt", n,
				logging.Error(err),
			)
			return retryable(r, err), err
		}
		return false, nil
	})

	if resp != nil {
		rc.scope.Set(cfg.StatusCodeVariable, resp.status)
	}

	if err != nil {
		status := 0
		if resp != nil {
			status = resp.status
		}
		rc.scope.Set(cfg.ErrorVariable, map[string]any{"message": err.Error(), "statusCode": status})
		return jump(rc.resolveAny(domain.HandleError, domain.HandleFailure)), nil
	}

	x.store(rc, resp.raw)
	return advance(domain.HandleSuccess), nil
}

// do performs one HTTP attempt. A non-nil response with an error is a
// non-2xx status.
func (x apiExecutor) do(rc *runContext, ctx context.Context, timeout time.Duration) (*apiResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := x.build(rc, ctx)
	if err != nil {
		return nil, &requestError{err: err}
	}
	res, err := rc.engine.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(res.Body, maxResponseBody))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	out := &apiResponse{status: res.StatusCode, raw: raw}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return out, &httpStatusError{code: res.StatusCode, body: truncate(string(raw), 200)}
	}
	return out, nil
}

func (x apiExecutor) build(rc *runContext, ctx context.Context) (*http.Request, error) {
	cfg := x.cfg
	method := strings.ToUpper(cfg.Method)
	if method == "" {
		method = http.MethodGet
	}

	u, err := url.Parse(rc.resolve(cfg.URL))
	if err != nil {
		return nil, fmt.Errorf("invalid url: %w", err)
	}
	q := u.Query()
	for _, kv := range cfg.QueryParams {
		if kv.Key != "" {
			q.Set(rc.resolve(kv.Key), rc.resolve(kv.Value))
		}
	}

	var body io.Reader
	contentType := ""
	if cfg.Body != "" && method != http.MethodGet && method != http.MethodHead {
		payload := rc.resolve(cfg.Body)
		switch cfg.ContentType {
		case domain.ContentForm:
			contentType = "application/x-www-form-urlencoded"
			payload = formEncode(payload)
		case domain.ContentRaw:
			contentType = "text/plain"
		default:
			contentType = "application/json"
		}
		body = bytes.NewBufferString(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("invalid request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	for _, kv := range cfg.Headers {
		if kv.Key != "" {
			req.Header.Set(rc.resolve(kv.Key), rc.resolve(kv.Value))
		}
	}

	if a := cfg.AuthConfig; a != nil {
		switch cfg.AuthType {
		case domain.AuthBearer:
			req.Header.Set("Authorization", "Bearer "+rc.resolve(a.BearerToken))
		case domain.AuthAPIKey:
			name := a.APIKeyName
			if name == "" {
				name = "X-API-Key"
			}
			if strings.EqualFold(a.APIKeyLocation, "query") {
				q.Set(name, rc.resolve(a.APIKeyValue))
			} else {
				req.Header.Set(name, rc.resolve(a.APIKeyValue))
			}
		case domain.AuthBasic:
			req.SetBasicAuth(rc.resolve(a.BasicUsername), rc.resolve(a.BasicPassword))
		case domain.AuthCustomHeader:
			if a.CustomAuthHeader != "" {
				req.Header.Set(a.CustomAuthHeader, rc.resolve(a.CustomAuthValue))
			}
		}
	}
	req.URL.RawQuery = q.Encode()
	return req, nil
}

// store writes the response into the configured variables.
func (x apiExecutor) store(rc *runContext, raw []byte) {
	cfg := x.cfg
	if target := cfg.ResponseTarget(); target != "" {
		rc.scope.Set(target, decodeBody(raw))
	}
	applyMappings(rc, raw, cfg.ResponseMapping)
}

// applyMappings copies values at JSON paths of doc into variables.
func applyMappings(rc *runContext, doc []byte, mappings []domain.FieldMapping) {
	if len(mappings) == 0 || !gjson.ValidBytes(doc) {
		return
	}
	for _, m := range mappings {
		if m.VariableName == "" {
			continue
		}
		res := gjson.GetBytes(doc, gjsonPath(m.JSONPath))
		if res.Exists() {
			rc.scope.Set(m.VariableName, res.Value())
		}
	}
}

// gjsonPath converts "$.data.items[0].name" into "data.items.0.name".
func gjsonPath(p string) string {
	p = strings.TrimPrefix(strings.TrimSpace(p), "$")
	p = strings.TrimPrefix(p, ".")
	return variables.NormalizePath(p)
}

func decodeBody(raw []byte) any {
	if gjson.ValidBytes(raw) {
		return gjson.ParseBytes(raw).Value()
	}
	return string(raw)
}

// formEncode turns a JSON object body into form fields. Other bodies are
// assumed to be encoded already.
func formEncode(payload string) string {
	var fields map[string]any
	if err := json.Unmarshal([]byte(payload), &fields); err != nil {
		return payload
	}
	values := url.Values{}
	for k, v := range fields {
		values.Set(k, variables.Stringify(v))
	}
	return values.Encode()
}

// truncate shortens s to n runes.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n]) + "..."
}
