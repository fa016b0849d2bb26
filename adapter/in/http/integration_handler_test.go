package http

import (
	"context"
	"io"
	nethttp "net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"integration_server/core/domain"
	"integration_server/core/port/in"
	"integration_server/infra/middleware"
	"integration_server/pkg/apperr"
	"integration_server/pkg/response"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testUser = uuid.MustParse("7d9f1c2e-3b4a-4c5d-8e6f-1a2b3c4d5e6f")

type fakeConnections struct {
	result       *domain.ConnectionResult
	callbackErr  error
	gotCode      string
	gotState     string
	gotProvError string
	disconnected []domain.Provider
}

func (f *fakeConnections) BuildAuthorizationURL(_ context.Context, userID uuid.UUID, provider domain.Provider) (string, string, error) {
	return "https://auth.example/" + string(provider) + "?user=" + userID.String(), "state-1", nil
}

func (f *fakeConnections) HandleCallback(_ context.Context, _ domain.Provider, code, state, providerError string) (*domain.ConnectionResult, error) {
	f.gotCode, f.gotState, f.gotProvError = code, state, providerError
	return f.result, f.callbackErr
}

func (f *fakeConnections) Disconnect(_ context.Context, _ uuid.UUID, provider domain.Provider) error {
	if provider == domain.ProviderSlack && len(f.disconnected) > 0 {
		return apperr.NotConnected(string(provider))
	}
	f.disconnected = append(f.disconnected, provider)
	return nil
}

func (f *fakeConnections) Status(context.Context, uuid.UUID) ([]domain.ConnectionStatus, error) {
	return []domain.ConnectionStatus{
		{Provider: domain.ProviderSlack, Connected: true, TeamName: "Acme"},
		{Provider: domain.ProviderGoogle},
	}, nil
}

type fakeGateway struct {
	in.GatewayService
	gotLimit  int
	gotEmail  *domain.OutgoingEmail
	gotEvents []domain.CalendarEvent
}

func (f *fakeGateway) FetchHistory(_ context.Context, _ uuid.UUID, _ string, limit int) ([]domain.ExternalMessage, error) {
	f.gotLimit = limit
	return nil, nil
}

func (f *fakeGateway) SendMessage(_ context.Context, _ uuid.UUID, destination, text string, _ domain.SendOptions) (*domain.SendResult, error) {
	if text == "" {
		return nil, apperr.MissingField("text")
	}
	return &domain.SendResult{Channel: destination, TS: "1700000000.000100"}, nil
}

func (f *fakeGateway) SendEmail(_ context.Context, _ uuid.UUID, email *domain.OutgoingEmail) (string, error) {
	f.gotEmail = email
	return "msg-1", nil
}

func (f *fakeGateway) SyncEventsOut(_ context.Context, _ uuid.UUID, events []domain.CalendarEvent) (*domain.SyncOutResult, error) {
	f.gotEvents = events
	return &domain.SyncOutResult{Synced: len(events), ExternalIDs: []string{"g-1"}}, nil
}

type fakeSummary struct{}

func (fakeSummary) SummarizeChannel(_ context.Context, _ uuid.UUID, destination string, count int) (string, error) {
	return destination + " summary", nil
}

func (fakeSummary) SummarizeInbox(context.Context, uuid.UUID, int) (string, error) {
	return "inbox summary", nil
}

type fakeAI struct {
	in.AIService
	gotReq domain.GenerationRequest
}

func (f *fakeAI) GenerateLearningResources(_ context.Context, req domain.GenerationRequest) ([]domain.GeneratedResource, error) {
	f.gotReq = req
	return []domain.GeneratedResource{domain.PlaceholderResource()}, nil
}

type denyLimiter struct{}

func (denyLimiter) Allow(context.Context, string) (bool, time.Duration) { return false, time.Minute }

type harness struct {
	app         *fiber.App
	connections *fakeConnections
	gateway     *fakeGateway
	ai          *fakeAI
}

func newHarness(t *testing.T, frontendURL string, limit fiber.Handler) *harness {
	t.Helper()
	h := &harness{
		connections: &fakeConnections{},
		gateway:     &fakeGateway{},
		ai:          &fakeAI{},
	}
	if limit == nil {
		limit = func(c *fiber.Ctx) error { return c.Next() }
	}

	app := fiber.New(fiber.Config{ErrorHandler: middleware.ErrorHandler()})
	api := app.Group("/api/v1")

	connections := NewConnectionHandler(h.connections, frontendURL)
	connections.RegisterPublic(api)

	protected := api.Group("", func(c *fiber.Ctx) error {
		if c.Get("X-Test-User") != "" {
			c.Locals("user_id", testUser)
		}
		return c.Next()
	})
	connections.Register(protected)
	NewProviderHandler(h.gateway, fakeSummary{}).Register(protected)
	NewAIHandler(h.ai).Register(protected, limit)

	h.app = app
	return h
}

func (h *harness) do(t *testing.T, method, target, body string) (*nethttp.Response, response.Response) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("X-Test-User", "1")
	if body != "" {
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	}
	resp, err := h.app.Test(req)
	require.NoError(t, err)

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var env response.Response
	if len(raw) > 0 && strings.HasPrefix(resp.Header.Get(fiber.HeaderContentType), fiber.MIMEApplicationJSON) {
		require.NoError(t, json.Unmarshal(raw, &env), string(raw))
	}
	return resp, env
}

func TestConnect(t *testing.T) {
	h := newHarness(t, "", nil)

	resp, env := h.do(t, nethttp.MethodGet, "/api/v1/integrations/gmail/connect", "")

	assert.Equal(t, nethttp.StatusOK, resp.StatusCode)
	data := env.Data.(map[string]any)
	assert.Equal(t, "state-1", data["state"])
	assert.Contains(t, data["auth_url"], "https://auth.example/google")
}

func TestConnect_UnknownProvider(t *testing.T) {
	h := newHarness(t, "", nil)

	resp, env := h.do(t, nethttp.MethodGet, "/api/v1/integrations/dropbox/connect", "")

	assert.Equal(t, nethttp.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, apperr.CodeUnsupportedProvider, env.Error.Code)
}

func TestConnect_RequiresUser(t *testing.T) {
	h := newHarness(t, "", nil)

	req := httptest.NewRequest(nethttp.MethodGet, "/api/v1/integrations/slack/connect", nil)
	resp, err := h.app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, nethttp.StatusUnauthorized, resp.StatusCode)
}

func TestCallback_JSON(t *testing.T) {
	h := newHarness(t, "", nil)
	h.connections.result = &domain.ConnectionResult{UserID: testUser, Provider: domain.ProviderSlack, TeamName: "Acme"}

	resp, env := h.do(t, nethttp.MethodGet, "/api/v1/integrations/slack/callback?code=abc&state=s1", "")

	assert.Equal(t, nethttp.StatusOK, resp.StatusCode)
	assert.True(t, env.Success)
	assert.Equal(t, "abc", h.connections.gotCode)
	assert.Equal(t, "s1", h.connections.gotState)
}

func TestCallback_ProviderDenied(t *testing.T) {
	h := newHarness(t, "", nil)
	h.connections.callbackErr = apperr.ProviderDenied("slack", "access_denied")

	resp, env := h.do(t, nethttp.MethodGet, "/api/v1/integrations/slack/callback?error=access_denied&state=s1", "")

	assert.Equal(t, nethttp.StatusForbidden, resp.StatusCode)
	assert.Equal(t, apperr.CodeProviderDenied, env.Error.Code)
	assert.Equal(t, "access_denied", h.connections.gotProvError)
}

func TestCallback_RedirectsToFrontend(t *testing.T) {
	h := newHarness(t, "https://app.example", nil)
	h.connections.callbackErr = apperr.UserNotFound("")

	resp, _ := h.do(t, nethttp.MethodGet, "/api/v1/integrations/google/callback?code=abc&state=stale", "")

	assert.Equal(t, nethttp.StatusFound, resp.StatusCode)
	assert.Equal(t, "https://app.example/settings/integrations?error=USER_NOT_FOUND&provider=google", resp.Header.Get(fiber.HeaderLocation))

	h.connections.callbackErr = nil
	h.connections.result = &domain.ConnectionResult{Provider: domain.ProviderGoogle}
	resp, _ = h.do(t, nethttp.MethodGet, "/api/v1/integrations/google/callback?code=abc&state=s2", "")
	assert.Equal(t, "https://app.example/settings/integrations?oauth=success&provider=google", resp.Header.Get(fiber.HeaderLocation))
}

func TestDisconnect(t *testing.T) {
	h := newHarness(t, "", nil)

	resp, _ := h.do(t, nethttp.MethodDelete, "/api/v1/integrations/slack", "")
	assert.Equal(t, nethttp.StatusNoContent, resp.StatusCode)

	resp, env := h.do(t, nethttp.MethodDelete, "/api/v1/integrations/slack", "")
	assert.Equal(t, nethttp.StatusConflict, resp.StatusCode)
	assert.Equal(t, apperr.CodeNotConnected, env.Error.Code)
}

func TestStatus(t *testing.T) {
	h := newHarness(t, "", nil)

	resp, env := h.do(t, nethttp.MethodGet, "/api/v1/integrations", "")

	assert.Equal(t, nethttp.StatusOK, resp.StatusCode)
	require.NotNil(t, env.Meta)
	assert.Equal(t, 2, env.Meta.Total)
}

func TestFetchHistory(t *testing.T) {
	h := newHarness(t, "", nil)

	resp, env := h.do(t, nethttp.MethodGet, "/api/v1/integrations/slack/channels/C1/history", "")
	assert.Equal(t, nethttp.StatusOK, resp.StatusCode)
	assert.Equal(t, domain.DefaultHistoryLimit, h.gateway.gotLimit)
	assert.Equal(t, []any{}, env.Data)

	_, _ = h.do(t, nethttp.MethodGet, "/api/v1/integrations/slack/channels/C1/history?limit=500", "")
	assert.Equal(t, 500, h.gateway.gotLimit, "clamping belongs to the gateway")

	resp, env = h.do(t, nethttp.MethodGet, "/api/v1/integrations/slack/channels/C1/history?limit=abc", "")
	assert.Equal(t, nethttp.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, apperr.CodeInvalidInput, env.Error.Code)
}

func TestSendMessage(t *testing.T) {
	h := newHarness(t, "", nil)

	resp, env := h.do(t, nethttp.MethodPost, "/api/v1/integrations/slack/messages", `{"channel":"C1","text":"hi"}`)
	assert.Equal(t, nethttp.StatusCreated, resp.StatusCode)
	assert.Equal(t, "C1", env.Data.(map[string]any)["channel"])

	resp, env = h.do(t, nethttp.MethodPost, "/api/v1/integrations/slack/messages", `{"channel":"C1"}`)
	assert.Equal(t, nethttp.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, apperr.CodeMissingField, env.Error.Code)

	resp, env = h.do(t, nethttp.MethodPost, "/api/v1/integrations/slack/messages", `{"channel":`)
	assert.Equal(t, nethttp.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, apperr.CodeBadRequest, env.Error.Code)
}

func TestSummarizeChannel(t *testing.T) {
	h := newHarness(t, "", nil)

	resp, env := h.do(t, nethttp.MethodPost, "/api/v1/integrations/slack/channels/C1/summary?count=5", "")

	assert.Equal(t, nethttp.StatusOK, resp.StatusCode)
	assert.Equal(t, "C1 summary", env.Data.(map[string]any)["summary"])
}

func TestSendEmail_TrimsRecipients(t *testing.T) {
	h := newHarness(t, "", nil)

	resp, env := h.do(t, nethttp.MethodPost, "/api/v1/integrations/google/emails",
		`{"to":[" ada@example.com ",""],"subject":"Hi","body":"Hello"}`)

	assert.Equal(t, nethttp.StatusCreated, resp.StatusCode)
	assert.Equal(t, "msg-1", env.Data.(map[string]any)["message_id"])
	assert.Equal(t, []string{"ada@example.com"}, h.gateway.gotEmail.To)
}

func TestSyncEventsOut(t *testing.T) {
	h := newHarness(t, "", nil)

	resp, env := h.do(t, nethttp.MethodPost, "/api/v1/integrations/google/calendar/sync-out",
		`{"events":[{"id":"e1","title":"Standup","start":"2024-03-01T09:00:00Z","end":"2024-03-01T09:15:00Z"}]}`)

	assert.Equal(t, nethttp.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(1), env.Data.(map[string]any)["synced"])
	require.Len(t, h.gateway.gotEvents, 1)
	assert.Equal(t, time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC), h.gateway.gotEvents[0].Start.UTC())
}

func TestLearningResources(t *testing.T) {
	h := newHarness(t, "", nil)

	resp, env := h.do(t, nethttp.MethodPost, "/api/v1/ai/learning-resources", `{"topic":"Go generics","difficulty":"advanced"}`)

	assert.Equal(t, nethttp.StatusOK, resp.StatusCode)
	assert.Equal(t, 1, env.Meta.Total)
	assert.Equal(t, "Go generics", h.ai.gotReq.Topic)
	assert.Equal(t, "advanced", h.ai.gotReq.Difficulty)
}

func TestAIRoutesAreRateLimited(t *testing.T) {
	h := newHarness(t, "", middleware.RateLimit(denyLimiter{}, "ai"))

	resp, env := h.do(t, nethttp.MethodPost, "/api/v1/ai/coach", `{"goal":"run 5k"}`)

	assert.Equal(t, nethttp.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, "RATE_LIMITED", env.Error.Code)
	assert.Equal(t, "60", resp.Header.Get(fiber.HeaderRetryAfter))
}
