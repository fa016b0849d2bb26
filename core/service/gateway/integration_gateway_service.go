// Package gateway dispatches user requests to the connected provider.
// Every call re-resolves the connection right before the provider call,
// so a disconnect takes effect on the very next request.
package gateway

import (
	"context"
	"errors"
	"time"

	"integration_server/core/domain"
	"integration_server/core/port/in"
	"integration_server/core/port/out"
	"integration_server/pkg/apperr"
	"integration_server/pkg/logger"
	"integration_server/pkg/metrics"

	"github.com/google/uuid"
)

const (
	defaultCallTimeout = 15 * time.Second

	syncInWindow    = 30 * 24 * time.Hour
	syncInMaxEvents = 250
)

type Service struct {
	connections in.ConnectionResolver
	repo        out.ConnectionRepository
	chat        out.ChatProvider
	mail        out.MailProvider
	calendar    out.CalendarProvider
	timeout     time.Duration
	now         func() time.Time
}

var _ in.GatewayService = (*Service)(nil)

type Config struct {
	// CallTimeout bounds each provider call. Zero means 15s.
	CallTimeout time.Duration
}

func NewService(
	connections in.ConnectionResolver,
	repo out.ConnectionRepository,
	chat out.ChatProvider,
	mail out.MailProvider,
	calendar out.CalendarProvider,
	cfg Config,
) *Service {
	timeout := cfg.CallTimeout
	if timeout <= 0 {
		timeout = defaultCallTimeout
	}
	return &Service{
		connections: connections,
		repo:        repo,
		chat:        chat,
		mail:        mail,
		calendar:    calendar,
		timeout:     timeout,
		now:         time.Now,
	}
}

// call resolves the connection, then runs fn under the call timeout.
func call[T any](ctx context.Context, s *Service, userID uuid.UUID, provider domain.Provider, operation string,
	fn func(ctx context.Context, conn *domain.ProviderConnection) (T, error)) (T, error) {
	var zero T

	conn, err := s.connections.ActiveConnection(ctx, userID, provider)
	if err != nil {
		return zero, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	result, err := fn(ctx, conn)
	metrics.ObserveProviderCall(string(provider), operation, start, err)
	if err != nil {
		logger.WithContext(ctx).WithFields(map[string]any{
			"provider":  provider,
			"operation": operation,
		}).WithError(err).Warn("provider call failed")
		return zero, apperr.FromContext(err, operation)
	}
	return result, nil
}

// =============================================================================
// Slack
// =============================================================================

func (s *Service) ListChannels(ctx context.Context, userID uuid.UUID) ([]domain.Channel, error) {
	return call(ctx, s, userID, domain.ProviderSlack, "list_channels",
		func(ctx context.Context, conn *domain.ProviderConnection) ([]domain.Channel, error) {
			return s.chat.ListChannels(ctx, conn)
		})
}

func (s *Service) SendMessage(ctx context.Context, userID uuid.UUID, destination, text string, opts domain.SendOptions) (*domain.SendResult, error) {
	if destination == "" {
		return nil, apperr.MissingField("destination")
	}
	if text == "" {
		return nil, apperr.MissingField("text")
	}
	return call(ctx, s, userID, domain.ProviderSlack, "send_message",
		func(ctx context.Context, conn *domain.ProviderConnection) (*domain.SendResult, error) {
			return s.chat.PostMessage(ctx, conn, destination, text, opts)
		})
}

// FetchHistory clamps limit to 1..100. An empty channel yields an empty,
// non-nil slice.
func (s *Service) FetchHistory(ctx context.Context, userID uuid.UUID, destination string, limit int) ([]domain.ExternalMessage, error) {
	if destination == "" {
		return nil, apperr.MissingField("destination")
	}
	limit = domain.ClampHistoryLimit(limit)

	msgs, err := call(ctx, s, userID, domain.ProviderSlack, "fetch_history",
		func(ctx context.Context, conn *domain.ProviderConnection) ([]domain.ExternalMessage, error) {
			return s.chat.History(ctx, conn, destination, limit)
		})
	if err != nil {
		return nil, err
	}
	if msgs == nil {
		msgs = []domain.ExternalMessage{}
	}
	return msgs, nil
}

// =============================================================================
// Gmail
// =============================================================================

func (s *Service) FetchInbox(ctx context.Context, userID uuid.UUID, limit int) ([]domain.ExternalMessage, error) {
	limit = domain.ClampHistoryLimit(limit)

	msgs, err := call(ctx, s, userID, domain.ProviderGoogle, "fetch_inbox",
		func(ctx context.Context, conn *domain.ProviderConnection) ([]domain.ExternalMessage, error) {
			return s.mail.ListInbox(ctx, conn, limit)
		})
	if err != nil {
		return nil, err
	}
	if msgs == nil {
		msgs = []domain.ExternalMessage{}
	}
	return msgs, nil
}

func (s *Service) SendEmail(ctx context.Context, userID uuid.UUID, email *domain.OutgoingEmail) (string, error) {
	if email == nil || len(email.To) == 0 {
		return "", apperr.MissingField("to")
	}
	return call(ctx, s, userID, domain.ProviderGoogle, "send_email",
		func(ctx context.Context, conn *domain.ProviderConnection) (string, error) {
			return s.mail.Send(ctx, conn, email)
		})
}

// =============================================================================
// Google Calendar
// =============================================================================

// SyncEventsOut inserts each event into the primary calendar. Every insert
// re-resolves the connection, so a disconnect mid-batch stops the batch and
// the remaining events count as failed. A rejected event is recorded and
// skipped; when no event went out the first rejection is returned instead.
// Re-sending an event creates a duplicate on the provider side.
func (s *Service) SyncEventsOut(ctx context.Context, userID uuid.UUID, events []domain.CalendarEvent) (*domain.SyncOutResult, error) {
	if len(events) == 0 {
		if _, err := s.connections.ActiveConnection(ctx, userID, domain.ProviderGoogle); err != nil {
			return nil, err
		}
		return &domain.SyncOutResult{ExternalIDs: []string{}}, nil
	}

	log := logger.WithContext(ctx).WithField("user_id", userID.String())
	result := &domain.SyncOutResult{ExternalIDs: make([]string, 0, len(events))}
	var firstErr error

	for i := range events {
		event := &events[i]
		created, err := call(ctx, s, userID, domain.ProviderGoogle, "sync_out",
			func(ctx context.Context, conn *domain.ProviderConnection) (*domain.ExternalEvent, error) {
				return s.calendar.CreateEvent(ctx, conn, event)
			})
		if err == nil {
			result.Synced++
			result.ExternalIDs = append(result.ExternalIDs, created.ExternalID)
			continue
		}

		if errors.Is(err, apperr.ErrNotConnected) {
			if i == 0 {
				return nil, err
			}
			for _, rest := range events[i:] {
				result.Errors = append(result.Errors, syncFailure(rest.ID, err))
			}
			result.Failed += len(events) - i
			log.Warn("connection removed during sync-out, %d events not sent", len(events)-i)
			return result, nil
		}

		result.Failed++
		result.Errors = append(result.Errors, syncFailure(event.ID, err))
		if firstErr == nil {
			firstErr = err
		}
		log.WithField("event_id", event.ID).WithError(err).Warn("event sync-out failed, skipping")
	}

	log.Info("calendar sync-out finished: %d synced, %d failed", result.Synced, result.Failed)
	if result.Synced == 0 {
		return nil, firstErr
	}
	s.touchLastSync(ctx, userID, domain.ProviderGoogle)
	return result, nil
}

func syncFailure(eventID string, err error) domain.SyncFailure {
	appErr := apperr.AsAppError(err)
	return domain.SyncFailure{
		EventID:      eventID,
		Code:         appErr.Code,
		ProviderCode: appErr.Detail("provider_code"),
		Message:      appErr.Message,
	}
}

// SyncEventsIn reads the next 30 days of the primary calendar.
func (s *Service) SyncEventsIn(ctx context.Context, userID uuid.UUID) ([]domain.ExternalEvent, error) {
	from := s.now().UTC()
	to := from.Add(syncInWindow)

	events, err := call(ctx, s, userID, domain.ProviderGoogle, "sync_in",
		func(ctx context.Context, conn *domain.ProviderConnection) ([]domain.ExternalEvent, error) {
			return s.calendar.ListEvents(ctx, conn, from, to, syncInMaxEvents)
		})
	if err != nil {
		return nil, err
	}
	if events == nil {
		events = []domain.ExternalEvent{}
	}

	s.touchLastSync(ctx, userID, domain.ProviderGoogle)
	return events, nil
}

// touchLastSync never fails the sync that triggered it.
func (s *Service) touchLastSync(ctx context.Context, userID uuid.UUID, provider domain.Provider) {
	if err := s.repo.TouchLastSync(ctx, userID, provider, s.now().UTC()); err != nil {
		logger.WithContext(ctx).WithField("provider", provider).WithError(err).Warn("failed to record last sync")
	}
}
