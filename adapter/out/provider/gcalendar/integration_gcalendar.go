// Package gcalendar provides the Google Calendar adapter of the provider
// gateway.
package gcalendar

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"integration_server/adapter/out/provider/gclient"
	"integration_server/core/domain"
	"integration_server/core/port/out"
	"integration_server/pkg/apperr"
	"integration_server/pkg/resilience"

	"google.golang.org/api/calendar/v3"
)

const (
	providerName    = string(domain.ProviderGoogle)
	primaryCalendar = "primary"
	dateLayout      = "2006-01-02"

	// AppEventProperty tags events written by sync-out with the
	// application's own event id.
	AppEventProperty = "app_event_id"

	maxListResults = 250
)

type Config struct {
	Endpoint   string
	HTTPClient *http.Client
}

// Adapter implements out.CalendarProvider on the user's primary calendar.
type Adapter struct {
	endpoint string
	client   *http.Client
	breaker  *resilience.Breaker
}

var _ out.CalendarProvider = (*Adapter)(nil)

func NewAdapter(cfg Config) *Adapter {
	return &Adapter{
		endpoint: cfg.Endpoint,
		client:   cfg.HTTPClient,
		breaker:  gclient.NewBreaker("calendar-api"),
	}
}

func (a *Adapter) service(ctx context.Context, conn *domain.ProviderConnection) (*calendar.Service, error) {
	svc, err := calendar.NewService(ctx, gclient.Options(ctx, conn, a.client, a.endpoint)...)
	if err != nil {
		return nil, apperr.InternalWithError(fmt.Errorf("create calendar service: %w", err))
	}
	return svc, nil
}

// CreateEvent inserts event into the primary calendar without notifying
// attendees.
func (a *Adapter) CreateEvent(ctx context.Context, conn *domain.ProviderConnection, event *domain.CalendarEvent) (*domain.ExternalEvent, error) {
	if !conn.IsConnected() {
		return nil, apperr.NotConnected(providerName)
	}
	if event == nil || event.Start.IsZero() {
		return nil, apperr.MissingField("start")
	}

	svc, err := a.service(ctx, conn)
	if err != nil {
		return nil, err
	}

	var created *calendar.Event
	err = a.breaker.Execute(func() error {
		var err error
		created, err = svc.Events.Insert(primaryCalendar, toGoogleEvent(event)).
			SendUpdates("none").
			Context(ctx).
			Do()
		return err
	})
	if err != nil {
		return nil, gclient.WrapError("create event", err)
	}
	return convertEvent(created), nil
}

// ListEvents returns expanded single events in [from, to) ordered by start
// time. Cancelled events are skipped.
func (a *Adapter) ListEvents(ctx context.Context, conn *domain.ProviderConnection, from, to time.Time, max int) ([]domain.ExternalEvent, error) {
	if !conn.IsConnected() {
		return nil, apperr.NotConnected(providerName)
	}
	if max < 1 || max > maxListResults {
		max = maxListResults
	}

	svc, err := a.service(ctx, conn)
	if err != nil {
		return nil, err
	}

	var resp *calendar.Events
	err = a.breaker.Execute(func() error {
		var err error
		resp, err = svc.Events.List(primaryCalendar).
			TimeMin(from.UTC().Format(time.RFC3339)).
			TimeMax(to.UTC().Format(time.RFC3339)).
			SingleEvents(true).
			OrderBy("startTime").
			MaxResults(int64(max)).
			Context(ctx).
			Do()
		return err
	})
	if err != nil {
		return nil, gclient.WrapError("list events", err)
	}

	events := make([]domain.ExternalEvent, 0, len(resp.Items))
	for _, item := range resp.Items {
		if item.Status == "cancelled" {
			continue
		}
		events = append(events, *convertEvent(item))
	}
	return events, nil
}

func toGoogleEvent(event *domain.CalendarEvent) *calendar.Event {
	gcalEvent := &calendar.Event{
		Summary:     event.Title,
		Description: event.Description,
		Location:    event.Location,
	}
	if event.ID != "" {
		gcalEvent.ExtendedProperties = &calendar.EventExtendedProperties{
			Private: map[string]string{AppEventProperty: event.ID},
		}
	}

	if event.AllDay {
		start := event.Start.UTC()
		end := event.End.UTC()
		// Google treats the end date as exclusive.
		if !end.After(start) {
			end = start.AddDate(0, 0, 1)
		}
		gcalEvent.Start = &calendar.EventDateTime{Date: start.Format(dateLayout)}
		gcalEvent.End = &calendar.EventDateTime{Date: end.Format(dateLayout)}
		return gcalEvent
	}

	end := event.End
	if !end.After(event.Start) {
		end = event.Start.Add(time.Hour)
	}
	gcalEvent.Start = &calendar.EventDateTime{DateTime: event.Start.Format(time.RFC3339), TimeZone: "UTC"}
	gcalEvent.End = &calendar.EventDateTime{DateTime: end.Format(time.RFC3339), TimeZone: "UTC"}
	return gcalEvent
}

func convertEvent(event *calendar.Event) *domain.ExternalEvent {
	result := &domain.ExternalEvent{
		ExternalID:  event.Id,
		Title:       event.Summary,
		Description: event.Description,
		Location:    event.Location,
		HTMLLink:    event.HtmlLink,
	}
	result.Start, result.AllDay = parseEventTime(event.Start)
	result.End, _ = parseEventTime(event.End)
	return result
}

func parseEventTime(t *calendar.EventDateTime) (time.Time, bool) {
	if t == nil {
		return time.Time{}, false
	}
	if t.DateTime != "" {
		parsed, _ := time.Parse(time.RFC3339, t.DateTime)
		return parsed.UTC(), false
	}
	if t.Date != "" {
		parsed, _ := time.Parse(dateLayout, t.Date)
		return parsed, true
	}
	return time.Time{}, false
}
