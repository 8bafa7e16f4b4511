package ports

import (
	"context"

	"github.com/aretw0/convoflow/pkg/domain"
)

// FlowRepository provides read access to published and draft flows.
// Deciding which version is production is outside the engine.
type FlowRepository interface {
	// Version returns domain.ErrVersionNotFound for unknown ids.
	Version(ctx context.Context, versionID string) (*domain.FlowVersion, error)

	// Resolve returns the production version of a flow. With draft set it
	// prefers the newest draft and falls back to production.
	Resolve(ctx context.Context, flowID string, draft bool) (*domain.FlowVersion, error)

	// MainFlow returns the flow id new conversations of a bot start in.
	MainFlow(ctx context.Context, botID string) (string, error)
}
