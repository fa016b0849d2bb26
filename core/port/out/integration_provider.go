package out

import (
	"context"
	"time"

	"integration_server/core/domain"
)

// Provider adapters receive the connection read immediately before the
// call and return apperr.NotConnected without any I/O when it carries no
// access token.

// ChatProvider is the Slack side of the gateway.
type ChatProvider interface {
	ListChannels(ctx context.Context, conn *domain.ProviderConnection) ([]domain.Channel, error)
	PostMessage(ctx context.Context, conn *domain.ProviderConnection, destination, text string, opts domain.SendOptions) (*domain.SendResult, error)

	// History returns up to limit plain user messages, oldest first.
	History(ctx context.Context, conn *domain.ProviderConnection, destination string, limit int) ([]domain.ExternalMessage, error)
}

// MailProvider is the Gmail side of the gateway.
type MailProvider interface {
	ListInbox(ctx context.Context, conn *domain.ProviderConnection, limit int) ([]domain.ExternalMessage, error)
	Send(ctx context.Context, conn *domain.ProviderConnection, email *domain.OutgoingEmail) (string, error)
}

// CalendarProvider is the Google Calendar side of the gateway.
type CalendarProvider interface {
	CreateEvent(ctx context.Context, conn *domain.ProviderConnection, event *domain.CalendarEvent) (*domain.ExternalEvent, error)
	ListEvents(ctx context.Context, conn *domain.ProviderConnection, from, to time.Time, max int) ([]domain.ExternalEvent, error)
}
