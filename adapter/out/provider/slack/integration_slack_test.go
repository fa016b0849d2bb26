package slack

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"integration_server/core/domain"
	"integration_server/pkg/apperr"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAdapter(t *testing.T, handler http.HandlerFunc) (*Adapter, *atomic.Int32) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		handler(w, r)
	}))
	t.Cleanup(srv.Close)
	return NewAdapter(Config{BaseURL: srv.URL, HTTPClient: srv.Client()}), &calls
}

func connected() *domain.ProviderConnection {
	return &domain.ProviderConnection{Provider: domain.ProviderSlack, AccessToken: "xoxb-test"}
}

func TestAdapter_NotConnectedMakesNoCall(t *testing.T) {
	a, calls := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"ok":true}`))
	})
	ctx := context.Background()

	for _, conn := range []*domain.ProviderConnection{nil, {Provider: domain.ProviderSlack}} {
		_, err := a.ListChannels(ctx, conn)
		assert.ErrorIs(t, err, apperr.ErrNotConnected)
		_, err = a.PostMessage(ctx, conn, "C1", "hi", domain.SendOptions{})
		assert.ErrorIs(t, err, apperr.ErrNotConnected)
		_, err = a.History(ctx, conn, "C1", 10)
		assert.ErrorIs(t, err, apperr.ErrNotConnected)
	}
	assert.Zero(t, calls.Load())
}

func TestAdapter_HistoryFiltersAndOrders(t *testing.T) {
	a, _ := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/conversations.history", r.URL.Path)
		assert.Equal(t, "Bearer xoxb-test", r.Header.Get("Authorization"))
		assert.Equal(t, "C42", r.URL.Query().Get("channel"))
		assert.Equal(t, "5", r.URL.Query().Get("limit"))
		_, _ = w.Write([]byte(`{"ok":true,"messages":[
			{"type":"message","user":"U2","text":"second","ts":"1700000060.000200"},
			{"type":"message","subtype":"channel_join","user":"U3","text":"<@U3> has joined","ts":"1700000050.000000"},
			{"type":"message","user":"U1","text":"   ","ts":"1700000040.000000"},
			{"type":"message","subtype":"bot_message","text":"deploy done","ts":"1700000030.000000"},
			{"type":"message","user":"U1","text":"first","ts":"1700000000.000100"}
		]}`))
	})

	msgs, err := a.History(context.Background(), connected(), "C42", 5)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "first", msgs[0].Text)
	assert.Equal(t, "U1", msgs[0].AuthorID)
	assert.Equal(t, "second", msgs[1].Text)
	assert.True(t, msgs[0].Timestamp.Before(msgs[1].Timestamp))
	assert.Equal(t, time.Unix(1700000000, 100000).UTC(), msgs[0].Timestamp)
}

func TestAdapter_HistoryClampsLimit(t *testing.T) {
	var limits []string
	a, _ := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		limits = append(limits, r.URL.Query().Get("limit"))
		_, _ = w.Write([]byte(`{"ok":true,"messages":[]}`))
	})

	for _, n := range []int{0, 500} {
		msgs, err := a.History(context.Background(), connected(), "C1", n)
		require.NoError(t, err)
		assert.NotNil(t, msgs)
		assert.Empty(t, msgs)
	}
	assert.Equal(t, []string{"1", "100"}, limits)
}

func TestAdapter_ListChannelsPaginates(t *testing.T) {
	a, calls := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "true", q.Get("exclude_archived"))
		assert.Equal(t, "public_channel,private_channel,im", q.Get("types"))
		assert.Equal(t, "200", q.Get("limit"))

		switch q.Get("cursor") {
		case "":
			_, _ = w.Write([]byte(`{"ok":true,"channels":[
				{"id":"C1","name":"general","is_channel":true,"num_members":12},
				{"id":"C2","name":"old","is_channel":true,"is_archived":true}
			],"response_metadata":{"next_cursor":"page2"}}`))
		case "page2":
			_, _ = w.Write([]byte(`{"ok":true,"channels":[
				{"id":"G1","name":"secret","is_group":true,"is_private":true},
				{"id":"D1","is_im":true,"user":"U9"}
			],"response_metadata":{"next_cursor":""}}`))
		default:
			t.Errorf("unexpected cursor %q", q.Get("cursor"))
		}
	})

	channels, err := a.ListChannels(context.Background(), connected())
	require.NoError(t, err)
	require.Len(t, channels, 3)
	assert.Equal(t, int32(2), calls.Load())

	assert.Equal(t, domain.Channel{ID: "C1", Name: "general", MemberCount: 12}, channels[0])
	assert.True(t, channels[1].IsPrivate)
	assert.True(t, channels[2].IsDirect)
	assert.Equal(t, "U9", channels[2].Name)
}

func TestAdapter_ListChannelsStopsAfterMaxPages(t *testing.T) {
	page := 0
	a, calls := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		page++
		_, _ = w.Write([]byte(`{"ok":true,"channels":[{"id":"C` + strconv.Itoa(page) + `","name":"c"}],"response_metadata":{"next_cursor":"more"}}`))
	})

	channels, err := a.ListChannels(context.Background(), connected())
	require.NoError(t, err)
	assert.Len(t, channels, maxChannelPages)
	assert.Equal(t, int32(maxChannelPages), calls.Load())
}

func TestAdapter_PostMessage(t *testing.T) {
	a, _ := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/chat.postMessage", r.URL.Path)
		assert.Contains(t, r.Header.Get("Content-Type"), "application/json")

		body, _ := io.ReadAll(r.Body)
		var req postMessageRequest
		require.NoError(t, json.Unmarshal(body, &req))
		assert.Equal(t, "#general", req.Channel)
		assert.Equal(t, "hello", req.Text)
		assert.Equal(t, "1700000000.000100", req.ThreadTS)

		_, _ = w.Write([]byte(`{"ok":true,"channel":"C1","ts":"1700000001.000200"}`))
	})

	res, err := a.PostMessage(context.Background(), connected(), "#general", "hello", domain.SendOptions{ThreadTS: "1700000000.000100"})
	require.NoError(t, err)
	assert.Equal(t, &domain.SendResult{Channel: "C1", TS: "1700000001.000200"}, res)
}

func TestAdapter_OkFalseIsProviderAPIError(t *testing.T) {
	a, _ := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"ok":false,"error":"channel_not_found"}`))
	})

	_, err := a.PostMessage(context.Background(), connected(), "C404", "hi", domain.SendOptions{})
	require.ErrorIs(t, err, apperr.ErrProviderAPI)
	appErr := apperr.AsAppError(err)
	assert.Equal(t, "slack", appErr.Detail("provider"))
	assert.Equal(t, "channel_not_found", appErr.Detail("provider_code"))
}

func TestAdapter_HTTPErrorIsProviderAPIError(t *testing.T) {
	a, _ := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	_, err := a.History(context.Background(), connected(), "C1", 10)
	require.ErrorIs(t, err, apperr.ErrProviderAPI)
	assert.Equal(t, "500", apperr.AsAppError(err).Detail("provider_code"))
}

func TestAdapter_BreakerOpensOnServerErrors(t *testing.T) {
	a, calls := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	for i := 0; i < 6; i++ {
		_, _ = a.History(context.Background(), connected(), "C1", 10)
	}
	_, err := a.History(context.Background(), connected(), "C1", 10)
	require.ErrorIs(t, err, apperr.ErrProviderAPI)
	assert.Equal(t, "circuit_open", apperr.AsAppError(err).Detail("provider_code"))
	assert.Equal(t, int32(6), calls.Load())
}

func TestAdapter_OkFalseDoesNotTripBreaker(t *testing.T) {
	a, calls := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"ok":false,"error":"not_in_channel"}`))
	})

	for i := 0; i < 12; i++ {
		_, err := a.History(context.Background(), connected(), "C1", 10)
		assert.Equal(t, "not_in_channel", apperr.AsAppError(err).Detail("provider_code"))
	}
	assert.Equal(t, int32(12), calls.Load())
}

func TestParseTS(t *testing.T) {
	assert.Equal(t, time.Unix(1700000000, 100000).UTC(), parseTS("1700000000.000100"))
	assert.Equal(t, time.Unix(1700000000, 0).UTC(), parseTS("1700000000"))
	assert.True(t, parseTS("garbage").IsZero())
}
