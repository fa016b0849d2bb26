package in

import (
	"context"

	"integration_server/core/domain"

	"github.com/google/uuid"
)

type GatewayService interface {
	// Slack
	ListChannels(ctx context.Context, userID uuid.UUID) ([]domain.Channel, error)
	SendMessage(ctx context.Context, userID uuid.UUID, destination, text string, opts domain.SendOptions) (*domain.SendResult, error)
	FetchHistory(ctx context.Context, userID uuid.UUID, destination string, limit int) ([]domain.ExternalMessage, error)

	// Gmail
	FetchInbox(ctx context.Context, userID uuid.UUID, limit int) ([]domain.ExternalMessage, error)
	SendEmail(ctx context.Context, userID uuid.UUID, email *domain.OutgoingEmail) (string, error)

	// Google Calendar
	SyncEventsOut(ctx context.Context, userID uuid.UUID, events []domain.CalendarEvent) (*domain.SyncOutResult, error)
	SyncEventsIn(ctx context.Context, userID uuid.UUID) ([]domain.ExternalEvent, error)
}

type SummaryService interface {
	SummarizeChannel(ctx context.Context, userID uuid.UUID, destination string, count int) (string, error)
	SummarizeInbox(ctx context.Context, userID uuid.UUID, count int) (string, error)
}

type AIService interface {
	GenerateLearningResources(ctx context.Context, req domain.GenerationRequest) ([]domain.GeneratedResource, error)
	DraftEmail(ctx context.Context, instruction, thread string) (string, error)
	Coach(ctx context.Context, goal, progress string) (string, error)
}
