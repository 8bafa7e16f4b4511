package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aretw0/convoflow/pkg/credentials"
	"github.com/aretw0/convoflow/pkg/domain"
	"github.com/aretw0/convoflow/pkg/ports"
)

// envelopeKey holds the sealed value inside a stored variable.
const envelopeKey = "__encrypted__"

// ErrNotEncrypted is returned when a stored variable lacks the envelope.
var ErrNotEncrypted = errors.New("variable is missing encrypted data envelope")

type encryptionMiddleware struct {
	next   ports.VariableStore
	sealer *credentials.Sealer
}

// NewEncryptionMiddleware creates a middleware that seals variable values
// with AES-GCM before they reach the store. Names and types stay readable.
func NewEncryptionMiddleware(sealer *credentials.Sealer) VariableMiddleware {
	return func(next ports.VariableStore) ports.VariableStore {
		return &encryptionMiddleware{next: next, sealer: sealer}
	}
}

func (m *encryptionMiddleware) seal(v domain.Variable) (domain.Variable, error) {
	plain, err := json.Marshal(v.Value)
	if err != nil {
		return v, fmt.Errorf("failed to marshal variable %s: %w", v.Name, err)
	}
	sealed, err := m.sealer.Seal(string(plain))
	if err != nil {
		return v, fmt.Errorf("failed to encrypt variable %s: %w", v.Name, err)
	}
	v.Value = map[string]any{envelopeKey: sealed}
	return v, nil
}

func (m *encryptionMiddleware) open(vars map[string]domain.Variable) (map[string]domain.Variable, error) {
	out := make(map[string]domain.Variable, len(vars))
	for name, v := range vars {
		envelope, _ := v.Value.(map[string]any)
		sealed, ok := envelope[envelopeKey].(string)
		if !ok {
			return nil, fmt.Errorf("%s: %w", name, ErrNotEncrypted)
		}
		plain, err := m.sealer.Open(sealed)
		if err != nil {
			return nil, fmt.Errorf("failed to decrypt variable %s: %w", name, err)
		}
		var value any
		if err := json.Unmarshal([]byte(plain), &value); err != nil {
			return nil, fmt.Errorf("failed to unmarshal variable %s: %w", name, err)
		}
		v.Value = value
		out[name] = v
	}
	return out, nil
}

func (m *encryptionMiddleware) BotVariables(ctx context.Context, botID string) (map[string]domain.Variable, error) {
	vars, err := m.next.BotVariables(ctx, botID)
	if err != nil {
		return nil, err
	}
	return m.open(vars)
}

func (m *encryptionMiddleware) SessionVariables(ctx context.Context, sessionID string) (map[string]domain.Variable, error) {
	vars, err := m.next.SessionVariables(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return m.open(vars)
}

func (m *encryptionMiddleware) SetBotVariable(ctx context.Context, botID string, v domain.Variable) error {
	sealed, err := m.seal(v)
	if err != nil {
		return err
	}
	return m.next.SetBotVariable(ctx, botID, sealed)
}

func (m *encryptionMiddleware) SetSessionVariables(ctx context.Context, sessionID string, vars ...domain.Variable) error {
	sealed := make([]domain.Variable, len(vars))
	for i, v := range vars {
		s, err := m.seal(v)
		if err != nil {
			return err
		}
		sealed[i] = s
	}
	return m.next.SetSessionVariables(ctx, sessionID, sealed...)
}
