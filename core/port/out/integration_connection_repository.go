// Package out defines outbound ports (driven ports) for the application.
package out

import (
	"context"
	"errors"
	"time"

	"integration_server/core/domain"

	"github.com/google/uuid"
)

var (
	ErrConnectionNotFound = errors.New("connection not found")
	ErrStateNotFound      = errors.New("oauth state not found or expired")
)

// ConnectionRepository is the credential store. At most one connection
// exists per (user, provider).
type ConnectionRepository interface {
	// Get returns ErrConnectionNotFound when the user never connected.
	Get(ctx context.Context, userID uuid.UUID, provider domain.Provider) (*domain.ProviderConnection, error)

	ListByUser(ctx context.Context, userID uuid.UUID) ([]*domain.ProviderConnection, error)

	// Upsert creates or replaces the connection for (UserID, Provider).
	Upsert(ctx context.Context, conn *domain.ProviderConnection) error

	// UpdateTokens rewrites the token fields of an existing connection. It
	// never creates one; ErrConnectionNotFound when absent.
	UpdateTokens(ctx context.Context, conn *domain.ProviderConnection) error

	// Delete removes the connection; ErrConnectionNotFound when absent.
	Delete(ctx context.Context, userID uuid.UUID, provider domain.Provider) error

	// TouchLastSync records a completed sync.
	TouchLastSync(ctx context.Context, userID uuid.UUID, provider domain.Provider, at time.Time) error
}

// OAuthStateStore correlates an authorization callback with the user who
// started it. States are single use.
type OAuthStateStore interface {
	Store(ctx context.Context, state string, pending *domain.PendingAuthorization, ttl time.Duration) error

	// Consume returns ErrStateNotFound for unknown, expired or used states.
	Consume(ctx context.Context, state string) (*domain.PendingAuthorization, error)
}
