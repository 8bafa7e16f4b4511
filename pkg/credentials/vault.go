package credentials

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/aretw0/convoflow/pkg/ai"
	"github.com/aretw0/convoflow/pkg/domain"
)

// Provider is a stored AI provider record. BotID is empty for providers
// shared by every bot.
type Provider struct {
	ID        string `yaml:"id" json:"id"`
	BotID     string `yaml:"botId,omitempty" json:"botId,omitempty"`
	Name      string `yaml:"name,omitempty" json:"name,omitempty"`
	Kind      string `yaml:"kind" json:"kind"`
	BaseURL   string `yaml:"baseUrl,omitempty" json:"baseUrl,omitempty"`
	Model     string `yaml:"model,omitempty" json:"model,omitempty"`
	SealedKey string `yaml:"sealedKey" json:"sealedKey"`
}

// Vault is an in-memory ports.ProviderResolver over sealed provider records.
type Vault struct {
	sealer *Sealer

	mu        sync.RWMutex
	providers map[string]Provider
}

// NewVault creates an empty vault.
func NewVault(sealer *Sealer) *Vault {
	return &Vault{
		sealer:    sealer,
		providers: make(map[string]Provider),
	}
}

func ref(botID, providerID string) string {
	return botID + "/" + providerID
}

// Add registers a provider whose key is already sealed. Base URL and model
// default to the preset of the provider kind.
func (v *Vault) Add(p Provider) error {
	if p.ID == "" {
		return fmt.Errorf("provider id is required")
	}
	p.Kind = strings.ToUpper(p.Kind)
	if preset, ok := ai.LookupPreset(p.Kind); ok {
		if p.BaseURL == "" {
			p.BaseURL = preset.BaseURL
		}
		if p.Model == "" {
			p.Model = preset.DefaultModel
		}
	}
	if p.BaseURL == "" {
		return fmt.Errorf("provider %s: base url is required for kind %q", p.ID, p.Kind)
	}
	if p.Name == "" {
		p.Name = p.ID
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	v.providers[ref(p.BotID, p.ID)] = p
	return nil
}

// Put seals apiKey and registers the provider.
func (v *Vault) Put(p Provider, apiKey string) error {
	sealed, err := v.sealer.Seal(apiKey)
	if err != nil {
		return fmt.Errorf("failed to seal key of provider %s: %w", p.ID, err)
	}
	p.SealedKey = sealed
	return v.Add(p)
}

// Rotate re-seals every stored key with the active key.
func (v *Vault) Rotate() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	for k, p := range v.providers {
		sealed, err := v.sealer.Rotate(p.SealedKey)
		if err != nil {
			return fmt.Errorf("failed to rotate key of provider %s: %w", p.ID, err)
		}
		p.SealedKey = sealed
		v.providers[k] = p
	}
	return nil
}

// Providers returns the stored records, keys still sealed.
func (v *Vault) Providers() []Provider {
	v.mu.RLock()
	defer v.mu.RUnlock()
	out := make([]Provider, 0, len(v.providers))
	for _, p := range v.providers {
		out = append(out, p)
	}
	return out
}

// Resolve returns the decrypted credentials of a provider. A bot-scoped
// record shadows a shared one with the same id.
func (v *Vault) Resolve(_ context.Context, botID, providerID string) (domain.ProviderCredentials, error) {
	v.mu.RLock()
	p, ok := v.providers[ref(botID, providerID)]
	if !ok {
		p, ok = v.providers[ref("", providerID)]
	}
	v.mu.RUnlock()
	if !ok {
		return domain.ProviderCredentials{}, fmt.Errorf("%w: %s", domain.ErrProviderNotFound, providerID)
	}

	key, err := v.sealer.Open(p.SealedKey)
	if err != nil {
		return domain.ProviderCredentials{}, fmt.Errorf("failed to open key of provider %s: %w", providerID, err)
	}
	return domain.ProviderCredentials{
		ID:      p.ID,
		Name:    p.Name,
		Kind:    p.Kind,
		BaseURL: p.BaseURL,
		APIKey:  key,
		Model:   p.Model,
	}, nil
}
