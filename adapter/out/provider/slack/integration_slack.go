// Package slack provides the Slack Web API adapter.
package slack

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"integration_server/core/domain"
	"integration_server/core/port/out"
	"integration_server/pkg/apperr"
	"integration_server/pkg/logger"
	"integration_server/pkg/resilience"

	"github.com/goccy/go-json"
)

const (
	defaultBaseURL = "https://slack.com/api"
	providerName   = string(domain.ProviderSlack)

	channelPageSize = 200
	maxChannelPages = 5
	maxResponseSize = 4 << 20
)

type Config struct {
	BaseURL    string
	HTTPClient *http.Client
}

// Adapter implements out.ChatProvider over the Slack Web API.
type Adapter struct {
	baseURL string
	client  *http.Client
	breaker *resilience.Breaker
}

var _ out.ChatProvider = (*Adapter)(nil)

func NewAdapter(cfg Config) *Adapter {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	client := cfg.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}

	settings := resilience.DefaultSettings("slack-api")
	settings.Trips = tripsBreaker
	return &Adapter{
		baseURL: baseURL,
		client:  client,
		breaker: resilience.NewBreaker(settings),
	}
}

// ListChannels pages through conversations.list, stopping after
// maxChannelPages pages.
func (a *Adapter) ListChannels(ctx context.Context, conn *domain.ProviderConnection) ([]domain.Channel, error) {
	if !conn.IsConnected() {
		return nil, apperr.NotConnected(providerName)
	}

	channels := make([]domain.Channel, 0)
	cursor := ""
	for page := 0; page < maxChannelPages; page++ {
		params := url.Values{}
		params.Set("exclude_archived", "true")
		params.Set("types", "public_channel,private_channel,im")
		params.Set("limit", strconv.Itoa(channelPageSize))
		if cursor != "" {
			params.Set("cursor", cursor)
		}

		var resp conversationsListResponse
		if err := a.get(ctx, conn, "conversations.list", params, &resp); err != nil {
			return nil, err
		}

		for _, ch := range resp.Channels {
			if ch.IsArchived {
				continue
			}
			channels = append(channels, convertChannel(ch))
		}

		cursor = resp.ResponseMetadata.NextCursor
		if cursor == "" {
			break
		}
	}
	return channels, nil
}

// PostMessage sends text to destination as given; channel ids, user ids
// and names are all accepted by Slack.
func (a *Adapter) PostMessage(ctx context.Context, conn *domain.ProviderConnection, destination, text string, opts domain.SendOptions) (*domain.SendResult, error) {
	if !conn.IsConnected() {
		return nil, apperr.NotConnected(providerName)
	}

	body := postMessageRequest{
		Channel:     destination,
		Text:        text,
		ThreadTS:    opts.ThreadTS,
		UnfurlLinks: opts.UnfurlLinks,
	}

	var resp postMessageResponse
	if err := a.post(ctx, conn, "chat.postMessage", body, &resp); err != nil {
		return nil, err
	}
	return &domain.SendResult{Channel: resp.Channel, TS: resp.TS}, nil
}

// History returns plain user messages oldest first. Messages with a
// subtype (joins, edits, bot and system events) and empty text are dropped.
func (a *Adapter) History(ctx context.Context, conn *domain.ProviderConnection, destination string, limit int) ([]domain.ExternalMessage, error) {
	if !conn.IsConnected() {
		return nil, apperr.NotConnected(providerName)
	}

	params := url.Values{}
	params.Set("channel", destination)
	params.Set("limit", strconv.Itoa(domain.ClampHistoryLimit(limit)))

	var resp historyResponse
	if err := a.get(ctx, conn, "conversations.history", params, &resp); err != nil {
		return nil, err
	}

	messages := make([]domain.ExternalMessage, 0, len(resp.Messages))
	// Slack returns newest first.
	for i := len(resp.Messages) - 1; i >= 0; i-- {
		m := resp.Messages[i]
		if m.Subtype != "" || strings.TrimSpace(m.Text) == "" {
			continue
		}
		messages = append(messages, domain.ExternalMessage{
			ExternalID: m.TS,
			Text:       m.Text,
			AuthorID:   m.User,
			Timestamp:  parseTS(m.TS),
		})
	}
	return messages, nil
}

// =============================================================================
// HTTP
// =============================================================================

func (a *Adapter) get(ctx context.Context, conn *domain.ProviderConnection, method string, params url.Values, result any) error {
	endpoint := a.baseURL + "/" + method
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}
	return a.call(ctx, conn, method, http.MethodGet, endpoint, nil, result)
}

func (a *Adapter) post(ctx context.Context, conn *domain.ProviderConnection, method string, body, result any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return apperr.InternalWithError(fmt.Errorf("encode %s request: %w", method, err))
	}
	return a.call(ctx, conn, method, http.MethodPost, a.baseURL+"/"+method, data, result)
}

func (a *Adapter) call(ctx context.Context, conn *domain.ProviderConnection, method, httpMethod, endpoint string, body []byte, result any) error {
	err := a.breaker.Execute(func() error {
		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, httpMethod, endpoint, reader)
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+conn.AccessToken)
		if body != nil {
			req.Header.Set("Content-Type", "application/json; charset=utf-8")
		}
		return a.doRequest(req, result)
	})
	if err != nil {
		logger.WithContext(ctx).WithFields(map[string]any{
			"provider": providerName,
			"method":   method,
			"breaker":  a.breaker.State(),
		}).WithError(err).Debug("slack call failed")
		return wrapError(method, err)
	}
	return nil
}

func (a *Adapter) doRequest(req *http.Request, result any) error {
	resp, err := a.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return err
	}

	if resp.StatusCode >= 400 {
		return &statusError{status: resp.StatusCode, body: string(data)}
	}

	var status slackStatus
	if err := json.Unmarshal(data, &status); err != nil {
		return &decodeError{err: err}
	}
	if !status.OK {
		return &apiError{code: status.Error}
	}

	if result != nil {
		if err := json.Unmarshal(data, result); err != nil {
			return &decodeError{err: err}
		}
	}
	return nil
}

// =============================================================================
// Errors
// =============================================================================

type statusError struct {
	status int
	body   string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("slack http error: %d - %s", e.status, e.body)
}

// apiError is an ok:false response.
type apiError struct {
	code string
}

func (e *apiError) Error() string {
	return "slack api error: " + e.code
}

type decodeError struct {
	err error
}

func (e *decodeError) Error() string {
	return "slack response decode failed: " + e.err.Error()
}

// tripsBreaker counts rate limiting, 5xx and transport failures against
// the provider. ok:false and 4xx responses are the caller's problem.
func tripsBreaker(err error) bool {
	var se *statusError
	if errors.As(err, &se) {
		return se.status == http.StatusTooManyRequests || se.status >= 500
	}
	var ae *apiError
	var de *decodeError
	if errors.As(err, &ae) || errors.As(err, &de) {
		return false
	}
	return !errors.Is(err, context.Canceled)
}

func wrapError(method string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return apperr.Timeout("slack " + method).WithError(err)
	}
	if errors.Is(err, resilience.ErrCircuitOpen) {
		return apperr.ProviderAPIError(providerName, "circuit_open", "slack is temporarily unavailable")
	}

	var ae *apiError
	if errors.As(err, &ae) {
		return apperr.ProviderAPIError(providerName, ae.code, method+" failed: "+ae.code).WithError(err)
	}
	var se *statusError
	if errors.As(err, &se) {
		return apperr.ProviderAPIError(providerName, strconv.Itoa(se.status), method+" failed: "+http.StatusText(se.status)).WithError(err)
	}
	return apperr.ProviderAPIError(providerName, "request_failed", method+" failed").WithError(err)
}

// =============================================================================
// Wire types
// =============================================================================

type slackStatus struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

type slackChannel struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	User       string `json:"user"`
	IsChannel  bool   `json:"is_channel"`
	IsGroup    bool   `json:"is_group"`
	IsIM       bool   `json:"is_im"`
	IsPrivate  bool   `json:"is_private"`
	IsArchived bool   `json:"is_archived"`
	NumMembers int    `json:"num_members"`
}

type conversationsListResponse struct {
	Channels         []slackChannel `json:"channels"`
	ResponseMetadata struct {
		NextCursor string `json:"next_cursor"`
	} `json:"response_metadata"`
}

type postMessageRequest struct {
	Channel     string `json:"channel"`
	Text        string `json:"text"`
	ThreadTS    string `json:"thread_ts,omitempty"`
	UnfurlLinks bool   `json:"unfurl_links"`
}

type postMessageResponse struct {
	Channel string `json:"channel"`
	TS      string `json:"ts"`
}

type slackMessage struct {
	Type    string `json:"type"`
	Subtype string `json:"subtype,omitempty"`
	User    string `json:"user"`
	Text    string `json:"text"`
	TS      string `json:"ts"`
}

type historyResponse struct {
	Messages []slackMessage `json:"messages"`
	HasMore  bool           `json:"has_more"`
}

func convertChannel(ch slackChannel) domain.Channel {
	name := ch.Name
	if ch.IsIM && name == "" {
		name = ch.User
	}
	return domain.Channel{
		ID:          ch.ID,
		Name:        name,
		IsPrivate:   ch.IsPrivate || ch.IsGroup,
		IsDirect:    ch.IsIM,
		MemberCount: ch.NumMembers,
	}
}

// parseTS converts a Slack timestamp ("1700000000.000100") to time.Time.
func parseTS(ts string) time.Time {
	sec, frac, _ := strings.Cut(ts, ".")
	s, err := strconv.ParseInt(sec, 10, 64)
	if err != nil {
		return time.Time{}
	}
	var usec int64
	if frac != "" {
		if len(frac) > 6 {
			frac = frac[:6]
		}
		frac += strings.Repeat("0", 6-len(frac))
		usec, _ = strconv.ParseInt(frac, 10, 64)
	}
	return time.Unix(s, usec*int64(time.Microsecond)).UTC()
}
