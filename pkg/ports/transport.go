package ports

import (
	"context"

	"github.com/aretw0/convoflow/pkg/domain"
)

// Transport delivers outbound messages to an end-user address.
// Implementations own their delivery retries.
type Transport interface {
	SendText(ctx context.Context, to, text string) error
	SendChoiceMessage(ctx context.Context, to string, msg domain.ChoiceMessage) error
}

// ProviderResolver returns decrypted AI provider credentials.
type ProviderResolver interface {
	// Resolve returns domain.ErrProviderNotFound for unknown providers.
	Resolve(ctx context.Context, botID, providerID string) (domain.ProviderCredentials, error)
}
