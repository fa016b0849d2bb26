package gcalendar

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"integration_server/core/domain"
	"integration_server/pkg/apperr"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/calendar/v3"
)

func newTestAdapter(t *testing.T, handler http.HandlerFunc) (*Adapter, *atomic.Int32) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		handler(w, r)
	}))
	t.Cleanup(srv.Close)
	return NewAdapter(Config{Endpoint: srv.URL + "/", HTTPClient: srv.Client()}), &calls
}

func connected() *domain.ProviderConnection {
	return &domain.ProviderConnection{Provider: domain.ProviderGoogle, AccessToken: "ya29.test"}
}

func TestAdapter_CreateEventTimed(t *testing.T) {
	start := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

	a, _ := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.True(t, strings.HasSuffix(r.URL.Path, "/calendars/primary/events"), r.URL.Path)
		assert.Equal(t, "none", r.URL.Query().Get("sendUpdates"))

		body, _ := io.ReadAll(r.Body)
		var ev calendar.Event
		require.NoError(t, json.Unmarshal(body, &ev))
		assert.Equal(t, "Standup", ev.Summary)
		assert.Equal(t, "2024-03-01T09:00:00Z", ev.Start.DateTime)
		assert.Equal(t, "2024-03-01T10:00:00Z", ev.End.DateTime)
		require.NotNil(t, ev.ExtendedProperties)
		assert.Equal(t, "evt-1", ev.ExtendedProperties.Private[AppEventProperty])

		_, _ = w.Write([]byte(`{"id":"g-1","summary":"Standup","htmlLink":"https://calendar.google.com/e/g-1",
			"start":{"dateTime":"2024-03-01T09:00:00Z"},"end":{"dateTime":"2024-03-01T10:00:00Z"}}`))
	})

	created, err := a.CreateEvent(context.Background(), connected(), &domain.CalendarEvent{
		ID: "evt-1", Title: "Standup", Start: start,
	})
	require.NoError(t, err)
	assert.Equal(t, "g-1", created.ExternalID)
	assert.Equal(t, start, created.Start)
	assert.False(t, created.AllDay)
	assert.Equal(t, "https://calendar.google.com/e/g-1", created.HTMLLink)
}

func TestToGoogleEvent_AllDayEndIsExclusive(t *testing.T) {
	day := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	ev := toGoogleEvent(&domain.CalendarEvent{Title: "Offsite", Start: day, AllDay: true})
	assert.Equal(t, "2024-03-01", ev.Start.Date)
	assert.Equal(t, "2024-03-02", ev.End.Date)
	assert.Empty(t, ev.Start.DateTime)
	assert.Nil(t, ev.ExtendedProperties)

	ev = toGoogleEvent(&domain.CalendarEvent{Start: day, End: day.AddDate(0, 0, 3), AllDay: true})
	assert.Equal(t, "2024-03-04", ev.End.Date)
}

func TestAdapter_ListEvents(t *testing.T) {
	from := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 0, 30)

	a, _ := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.True(t, strings.HasSuffix(r.URL.Path, "/calendars/primary/events"), r.URL.Path)
		assert.Equal(t, "true", q.Get("singleEvents"))
		assert.Equal(t, "startTime", q.Get("orderBy"))
		assert.Equal(t, "250", q.Get("maxResults"))
		assert.Equal(t, "2024-03-01T00:00:00Z", q.Get("timeMin"))
		assert.Equal(t, "2024-03-31T00:00:00Z", q.Get("timeMax"))

		_, _ = w.Write([]byte(`{"items":[
			{"id":"a","summary":"Holiday","status":"confirmed","start":{"date":"2024-03-04"},"end":{"date":"2024-03-05"}},
			{"id":"b","summary":"Dropped","status":"cancelled","start":{"dateTime":"2024-03-05T10:00:00Z"}},
			{"id":"c","summary":"Review","status":"confirmed","start":{"dateTime":"2024-03-06T15:00:00+02:00"},"end":{"dateTime":"2024-03-06T16:00:00+02:00"}}
		]}`))
	})

	events, err := a.ListEvents(context.Background(), connected(), from, to, 0)
	require.NoError(t, err)
	require.Len(t, events, 2)

	assert.Equal(t, "a", events[0].ExternalID)
	assert.True(t, events[0].AllDay)
	assert.Equal(t, time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC), events[0].Start)

	assert.Equal(t, "c", events[1].ExternalID)
	assert.Equal(t, time.Date(2024, 3, 6, 13, 0, 0, 0, time.UTC), events[1].Start)
}

func TestAdapter_NotConnectedMakesNoCall(t *testing.T) {
	a, calls := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {})

	_, err := a.CreateEvent(context.Background(), nil, &domain.CalendarEvent{Start: time.Now()})
	assert.ErrorIs(t, err, apperr.ErrNotConnected)
	_, err = a.ListEvents(context.Background(), &domain.ProviderConnection{}, time.Now(), time.Now(), 10)
	assert.ErrorIs(t, err, apperr.ErrNotConnected)
	assert.Zero(t, calls.Load())
}

func TestAdapter_ServerErrorsOpenBreaker(t *testing.T) {
	a, calls := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(`{"error":{"code":502,"message":"Bad Gateway"}}`))
	})

	for i := 0; i < 6; i++ {
		_, err := a.CreateEvent(context.Background(), connected(), &domain.CalendarEvent{Start: time.Now()})
		require.ErrorIs(t, err, apperr.ErrProviderAPI)
	}
	before := calls.Load()

	_, err := a.CreateEvent(context.Background(), connected(), &domain.CalendarEvent{Start: time.Now()})
	require.ErrorIs(t, err, apperr.ErrProviderAPI)
	assert.Equal(t, "circuit_open", apperr.AsAppError(err).Detail("provider_code"))
	assert.Equal(t, before, calls.Load())
}
