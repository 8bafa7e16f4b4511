package ports

import (
	"context"

	"github.com/aretw0/convoflow/pkg/domain"
)

// Conversations is the inbound port used by channel and simulator adapters.
type Conversations interface {
	// HandleInbound finds or creates the live session of the sender and runs it.
	HandleInbound(ctx context.Context, in domain.Inbound) (*domain.RunResult, error)

	// ResetSimulation closes the live test sessions of an address and
	// returns how many were closed.
	ResetSimulation(ctx context.Context, botID, address string) (int, error)
}
