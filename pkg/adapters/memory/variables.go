package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/aretw0/convoflow/pkg/domain"
)

// Variables implements ports.VariableStore in memory.
// Values are round-tripped through JSON so they read back exactly as a
// durable store would return them.
type Variables struct {
	mu      sync.RWMutex
	bot     map[string]map[string][]byte
	session map[string]map[string][]byte
}

// NewVariables creates an empty variable store.
func NewVariables() *Variables {
	return &Variables{
		bot:     make(map[string]map[string][]byte),
		session: make(map[string]map[string][]byte),
	}
}

func (v *Variables) BotVariables(ctx context.Context, botID string) (map[string]domain.Variable, error) {
	return v.read(v.bot, botID)
}

func (v *Variables) SessionVariables(ctx context.Context, sessionID string) (map[string]domain.Variable, error) {
	return v.read(v.session, sessionID)
}

func (v *Variables) SetBotVariable(ctx context.Context, botID string, vr domain.Variable) error {
	return v.write(v.bot, botID, vr)
}

func (v *Variables) SetSessionVariables(ctx context.Context, sessionID string, vars ...domain.Variable) error {
	return v.write(v.session, sessionID, vars...)
}

func (v *Variables) read(scope map[string]map[string][]byte, owner string) (map[string]domain.Variable, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	out := make(map[string]domain.Variable, len(scope[owner]))
	for name, b := range scope[owner] {
		var vr domain.Variable
		if err := json.Unmarshal(b, &vr); err != nil {
			return nil, fmt.Errorf("failed to decode variable %q: %w", name, err)
		}
		out[name] = vr
	}
	return out, nil
}

func (v *Variables) write(scope map[string]map[string][]byte, owner string, vars ...domain.Variable) error {
	encoded := make(map[string][]byte, len(vars))
	for _, vr := range vars {
		b, err := json.Marshal(vr)
		if err != nil {
			return fmt.Errorf("failed to encode variable %q: %w", vr.Name, err)
		}
		encoded[vr.Name] = b
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	if scope[owner] == nil {
		scope[owner] = make(map[string][]byte)
	}
	for name, b := range encoded {
		scope[owner][name] = b
	}
	return nil
}
