package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aretw0/convoflow/pkg/domain"
	backend "github.com/redis/go-redis/v9"
)

// Variables implements ports.VariableStore with one hash per owner.
// Each field holds the JSON encoding of a domain.Variable.
type Variables struct {
	client *backend.Client
	prefix string
}

// NewVariables creates a variable store sharing client.
func NewVariables(client *backend.Client, prefix string) *Variables {
	return &Variables{client: client, prefix: prefix}
}

func (v *Variables) botKey(botID string) string {
	return v.prefix + "vars:bot:" + botID
}

func (v *Variables) sessionKey(sessionID string) string {
	return v.prefix + "vars:session:" + sessionID
}

func (v *Variables) BotVariables(ctx context.Context, botID string) (map[string]domain.Variable, error) {
	return v.read(ctx, v.botKey(botID))
}

func (v *Variables) SessionVariables(ctx context.Context, sessionID string) (map[string]domain.Variable, error) {
	return v.read(ctx, v.sessionKey(sessionID))
}

func (v *Variables) SetBotVariable(ctx context.Context, botID string, vr domain.Variable) error {
	return v.write(ctx, v.botKey(botID), vr)
}

func (v *Variables) SetSessionVariables(ctx context.Context, sessionID string, vars ...domain.Variable) error {
	return v.write(ctx, v.sessionKey(sessionID), vars...)
}

func (v *Variables) read(ctx context.Context, key string) (map[string]domain.Variable, error) {
	fields, err := v.client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read variables: %w", err)
	}
	out := make(map[string]domain.Variable, len(fields))
	for name, raw := range fields {
		var vr domain.Variable
		if err := json.Unmarshal([]byte(raw), &vr); err != nil {
			return nil, fmt.Errorf("failed to decode variable %q: %w", name, err)
		}
		out[name] = vr
	}
	return out, nil
}

func (v *Variables) write(ctx context.Context, key string, vars ...domain.Variable) error {
	if len(vars) == 0 {
		return nil
	}
	values := make([]any, 0, len(vars)*2)
	for _, vr := range vars {
		b, err := json.Marshal(vr)
		if err != nil {
			return fmt.Errorf("failed to encode variable %q: %w", vr.Name, err)
		}
		values = append(values, vr.Name, b)
	}
	if err := v.client.HSet(ctx, key, values...).Err(); err != nil {
		return fmt.Errorf("failed to write variables: %w", err)
	}
	return nil
}
