package in

import (
	"context"

	"integration_server/core/domain"

	"github.com/google/uuid"
)

type ConnectionService interface {
	// BuildAuthorizationURL returns the consent URL and the state it embeds.
	BuildAuthorizationURL(ctx context.Context, userID uuid.UUID, provider domain.Provider) (string, string, error)

	HandleCallback(ctx context.Context, provider domain.Provider, code, state, providerError string) (*domain.ConnectionResult, error)

	Disconnect(ctx context.Context, userID uuid.UUID, provider domain.Provider) error
	Status(ctx context.Context, userID uuid.UUID) ([]domain.ConnectionStatus, error)
}

// ConnectionResolver returns a usable connection, refreshing expiring
// tokens. It fails with apperr.NotConnected when none exists.
type ConnectionResolver interface {
	ActiveConnection(ctx context.Context, userID uuid.UUID, provider domain.Provider) (*domain.ProviderConnection, error)
}
