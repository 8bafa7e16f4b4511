package middleware

import (
	"context"

	"github.com/aretw0/convoflow/pkg/domain"
	"github.com/aretw0/convoflow/pkg/ports"
	"github.com/aretw0/convoflow/pkg/schema"
)

type typedMiddleware struct {
	next ports.VariableStore
}

// NewTypedMiddleware checks variables against their declared type.
// Writes with mismatching non-nil values fail with a *schema.AggregateError. Values
// read back as text (seeded by other tools, or decoded from JSON text) are
// coerced into their declared type when they parse; otherwise they are
// returned as stored.
func NewTypedMiddleware() VariableMiddleware {
	return func(next ports.VariableStore) ports.VariableStore {
		return &typedMiddleware{next: next}
	}
}

func coerce(vars map[string]domain.Variable) map[string]domain.Variable {
	for name, v := range vars {
		if v.Type == "" {
			v.Type = schema.Infer(v.Value)
		}
		if value, err := schema.Coerce(schema.Decode(v), v.Type); err == nil {
			v.Value = value
		}
		vars[name] = v
	}
	return vars
}

func check(vars []domain.Variable) error {
	typed := make([]domain.Variable, 0, len(vars))
	for _, v := range vars {
		if v.Value != nil {
			typed = append(typed, v)
		}
	}
	return schema.Validate(typed)
}

func (m *typedMiddleware) BotVariables(ctx context.Context, botID string) (map[string]domain.Variable, error) {
	vars, err := m.next.BotVariables(ctx, botID)
	if err != nil {
		return nil, err
	}
	return coerce(vars), nil
}

func (m *typedMiddleware) SessionVariables(ctx context.Context, sessionID string) (map[string]domain.Variable, error) {
	vars, err := m.next.SessionVariables(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return coerce(vars), nil
}

func (m *typedMiddleware) SetBotVariable(ctx context.Context, botID string, v domain.Variable) error {
	if err := check([]domain.Variable{v}); err != nil {
		return err
	}
	return m.next.SetBotVariable(ctx, botID, v)
}

func (m *typedMiddleware) SetSessionVariables(ctx context.Context, sessionID string, vars ...domain.Variable) error {
	if err := check(vars); err != nil {
		return err
	}
	return m.next.SetSessionVariables(ctx, sessionID, vars...)
}
