package middleware

import (
	"context"
	"regexp"

	"github.com/aretw0/convoflow/pkg/domain"
	"github.com/aretw0/convoflow/pkg/ports"
)

// Mask replaces redacted values.
const Mask = "***"

type redactMiddleware struct {
	ports.LogStore
	patterns []*regexp.Regexp
}

// NewRedactMiddleware creates a middleware that masks the variables of
// execution records whose names match any of the patterns. Records handed
// to the engine are never modified.
func NewRedactMiddleware(patternStrings []string) (Middleware, error) {
	patterns := make([]*regexp.Regexp, len(patternStrings))
	for i, p := range patternStrings {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, err
		}
		patterns[i] = re
	}
	return func(next ports.LogStore) ports.LogStore {
		return &redactMiddleware{LogStore: next, patterns: patterns}
	}, nil
}

func (m *redactMiddleware) AppendExecution(ctx context.Context, r domain.ExecutionRecord) error {
	if r.InputVariables != nil {
		r.InputVariables = deepCopyMap(r.InputVariables)
		maskMap(r.InputVariables, m.patterns)
	}
	if r.OutputVariables != nil {
		r.OutputVariables = deepCopyMap(r.OutputVariables)
		maskMap(r.OutputVariables, m.patterns)
	}
	return m.LogStore.AppendExecution(ctx, r)
}

func deepCopyMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		switch t := v.(type) {
		case map[string]any:
			out[k] = deepCopyMap(t)
		case []any:
			out[k] = deepCopySlice(t)
		default:
			out[k] = v
		}
	}
	return out
}

func deepCopySlice(s []any) []any {
	out := make([]any, len(s))
	for i, v := range s {
		switch t := v.(type) {
		case map[string]any:
			out[i] = deepCopyMap(t)
		case []any:
			out[i] = deepCopySlice(t)
		default:
			out[i] = v
		}
	}
	return out
}

func maskMap(m map[string]any, patterns []*regexp.Regexp) {
	for k, v := range m {
		if matches(k, patterns) {
			m[k] = Mask
			continue
		}
		switch t := v.(type) {
		case map[string]any:
			maskMap(t, patterns)
		case []any:
			for _, item := range t {
				if sub, ok := item.(map[string]any); ok {
					maskMap(sub, patterns)
				}
			}
		}
	}
}

func matches(key string, patterns []*regexp.Regexp) bool {
	for _, p := range patterns {
		if p.MatchString(key) {
			return true
		}
	}
	return false
}
