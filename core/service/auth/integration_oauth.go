package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"integration_server/core/domain"
	"integration_server/core/port/in"
	"integration_server/core/port/out"
	"integration_server/pkg/apperr"
	"integration_server/pkg/logger"
	"integration_server/pkg/metrics"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

var (
	googleScopes = []string{
		"https://www.googleapis.com/auth/gmail.readonly",
		"https://www.googleapis.com/auth/gmail.send",
		"https://www.googleapis.com/auth/calendar.events",
		"https://www.googleapis.com/auth/userinfo.email",
	}

	// Slack expects a comma separated scope parameter.
	slackScopes = []string{
		"channels:read",
		"channels:history",
		"groups:read",
		"groups:history",
		"im:read",
		"im:history",
		"chat:write",
		"users:read",
	}

	slackEndpoint = oauth2.Endpoint{
		AuthURL:   "https://slack.com/oauth/v2/authorize",
		TokenURL:  "https://slack.com/api/oauth.v2.access",
		AuthStyle: oauth2.AuthStyleInParams,
	}
)

const (
	defaultUserInfoURL = "https://www.googleapis.com/oauth2/v2/userinfo"
	defaultStateTTL    = 10 * time.Minute
	stateBytes         = 32
)

// ProviderConfig holds one provider's OAuth client registration. AuthURL
// and TokenURL override the provider's public endpoints when set.
type ProviderConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	AuthURL      string
	TokenURL     string
}

func (p ProviderConfig) configured() bool {
	return p.ClientID != "" && p.ClientSecret != ""
}

type Config struct {
	Google      ProviderConfig
	Slack       ProviderConfig
	StateTTL    time.Duration
	HTTPClient  *http.Client
	UserInfoURL string
}

// OAuthService manages provider connections: consent URLs, callbacks,
// disconnects and token refresh.
type OAuthService struct {
	repo        out.ConnectionRepository
	states      out.OAuthStateStore
	configs     map[domain.Provider]*oauth2.Config
	httpClient  *http.Client
	userInfoURL string
	stateTTL    time.Duration
	now         func() time.Time
}

var (
	_ in.ConnectionService  = (*OAuthService)(nil)
	_ in.ConnectionResolver = (*OAuthService)(nil)
)

func NewOAuthService(repo out.ConnectionRepository, states out.OAuthStateStore, cfg Config) *OAuthService {
	configs := make(map[domain.Provider]*oauth2.Config)

	if cfg.Google.configured() {
		endpoint := google.Endpoint
		overrideEndpoint(&endpoint, cfg.Google)
		configs[domain.ProviderGoogle] = &oauth2.Config{
			ClientID:     cfg.Google.ClientID,
			ClientSecret: cfg.Google.ClientSecret,
			RedirectURL:  cfg.Google.RedirectURL,
			Scopes:       googleScopes,
			Endpoint:     endpoint,
		}
	}

	if cfg.Slack.configured() {
		endpoint := slackEndpoint
		overrideEndpoint(&endpoint, cfg.Slack)
		configs[domain.ProviderSlack] = &oauth2.Config{
			ClientID:     cfg.Slack.ClientID,
			ClientSecret: cfg.Slack.ClientSecret,
			RedirectURL:  cfg.Slack.RedirectURL,
			Endpoint:     endpoint,
		}
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	userInfoURL := cfg.UserInfoURL
	if userInfoURL == "" {
		userInfoURL = defaultUserInfoURL
	}
	stateTTL := cfg.StateTTL
	if stateTTL <= 0 {
		stateTTL = defaultStateTTL
	}

	return &OAuthService{
		repo:        repo,
		states:      states,
		configs:     configs,
		httpClient:  httpClient,
		userInfoURL: userInfoURL,
		stateTTL:    stateTTL,
		now:         time.Now,
	}
}

func overrideEndpoint(e *oauth2.Endpoint, p ProviderConfig) {
	if p.AuthURL != "" {
		e.AuthURL = p.AuthURL
	}
	if p.TokenURL != "" {
		e.TokenURL = p.TokenURL
	}
}

func (s *OAuthService) config(provider domain.Provider) (*oauth2.Config, error) {
	cfg, ok := s.configs[provider]
	if !ok {
		if provider != domain.ProviderGoogle && provider != domain.ProviderSlack {
			return nil, apperr.UnsupportedProvider(string(provider))
		}
		return nil, apperr.ConfigError(fmt.Sprintf("%s oauth is not configured", provider))
	}
	return cfg, nil
}

// httpContext makes oauth2 use the service's HTTP client.
func (s *OAuthService) httpContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, s.httpClient)
}

func generateState() (string, error) {
	b := make([]byte, stateBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

func shortState(state string) string {
	if len(state) > 8 {
		return state[:8]
	}
	return state
}

func (s *OAuthService) BuildAuthorizationURL(ctx context.Context, userID uuid.UUID, provider domain.Provider) (string, string, error) {
	cfg, err := s.config(provider)
	if err != nil {
		return "", "", err
	}

	state, err := generateState()
	if err != nil {
		return "", "", apperr.InternalWithError(fmt.Errorf("generate state: %w", err))
	}

	pending := &domain.PendingAuthorization{
		UserID:    userID,
		Provider:  provider,
		CreatedAt: s.now(),
	}
	if err := s.states.Store(ctx, state, pending, s.stateTTL); err != nil {
		return "", "", apperr.InternalWithError(fmt.Errorf("store oauth state: %w", err))
	}

	var authURL string
	switch provider {
	case domain.ProviderGoogle:
		authURL = cfg.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
	case domain.ProviderSlack:
		authURL = cfg.AuthCodeURL(state, oauth2.SetAuthURLParam("scope", strings.Join(slackScopes, ",")))
	}

	logger.WithContext(ctx).WithFields(map[string]any{
		"provider": provider,
		"user_id":  userID.String(),
		"state":    shortState(state),
	}).Info("authorization started")

	return authURL, state, nil
}

// HandleCallback finishes an authorization. The state is resolved before
// any token exchange; unknown states never reach the provider.
func (s *OAuthService) HandleCallback(ctx context.Context, provider domain.Provider, code, state, providerError string) (result *domain.ConnectionResult, err error) {
	defer func() { metrics.ObserveCallback(string(provider), err) }()

	log := logger.WithContext(ctx).WithFields(map[string]any{
		"provider": provider,
		"state":    shortState(state),
	})

	if providerError != "" {
		if state != "" {
			_, _ = s.states.Consume(ctx, state)
		}
		log.WithField("reason", providerError).Warn("authorization denied by provider")
		return nil, apperr.ProviderDenied(string(provider), providerError)
	}

	cfg, err := s.config(provider)
	if err != nil {
		return nil, err
	}

	pending, err := s.resolveState(ctx, provider, state)
	if err != nil {
		log.WithError(err).Warn("authorization state rejected")
		return nil, err
	}

	if strings.TrimSpace(code) == "" {
		return nil, apperr.MissingField("code")
	}

	httpCtx := s.httpContext(ctx)
	token, err := cfg.Exchange(httpCtx, code)
	if err != nil {
		log.WithError(err).Warn("token exchange failed")
		return nil, apperr.TokenExchangeFailed(string(provider), err)
	}

	now := s.now()
	conn := &domain.ProviderConnection{
		UserID:       pending.UserID,
		Provider:     provider,
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		Scope:        extraString(token, "scope"),
		UpdatedAt:    now,
	}
	if !token.Expiry.IsZero() {
		expiry := token.Expiry
		conn.TokenExpiry = &expiry
	}

	switch provider {
	case domain.ProviderGoogle:
		email, err := s.googleAccount(httpCtx, cfg, token)
		if err != nil {
			log.WithError(err).Warn("failed to resolve google account")
			return nil, apperr.TokenExchangeFailed(string(provider), err)
		}
		conn.AccountID = email
	case domain.ProviderSlack:
		conn.AccountID, conn.TeamName = slackTeam(token)
		conn.BotUserID = extraString(token, "bot_user_id")
	}

	existing, err := s.repo.Get(ctx, pending.UserID, provider)
	switch {
	case err == nil:
		conn.ConnectedAt = existing.ConnectedAt
		conn.LastSync = existing.LastSync
		if conn.RefreshToken == "" {
			conn.RefreshToken = existing.RefreshToken
		}
	case errors.Is(err, out.ErrConnectionNotFound):
		conn.ConnectedAt = now
	default:
		return nil, apperr.DatabaseError("load connection", err)
	}

	if err := s.repo.Upsert(ctx, conn); err != nil {
		return nil, apperr.DatabaseError("save connection", err)
	}

	log.WithFields(map[string]any{
		"user_id":     pending.UserID.String(),
		"account_id":  conn.AccountID,
		"reconnected": existing != nil,
	}).Info("provider connected")

	return &domain.ConnectionResult{
		UserID:      pending.UserID,
		Provider:    provider,
		AccountID:   conn.AccountID,
		TeamName:    conn.TeamName,
		Scope:       conn.Scope,
		ConnectedAt: conn.ConnectedAt,
		Reconnected: existing != nil,
	}, nil
}

func (s *OAuthService) resolveState(ctx context.Context, provider domain.Provider, state string) (*domain.PendingAuthorization, error) {
	if state == "" {
		return nil, apperr.UserNotFound("missing authorization state")
	}
	pending, err := s.states.Consume(ctx, state)
	if err != nil {
		if errors.Is(err, out.ErrStateNotFound) {
			return nil, apperr.UserNotFound("")
		}
		return nil, apperr.InternalWithError(fmt.Errorf("consume oauth state: %w", err))
	}
	if pending.UserID == uuid.Nil || pending.Provider != provider {
		return nil, apperr.UserNotFound("")
	}
	return pending, nil
}

func (s *OAuthService) googleAccount(ctx context.Context, cfg *oauth2.Config, token *oauth2.Token) (string, error) {
	client := cfg.Client(ctx, token)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.userInfoURL, nil)
	if err != nil {
		return "", err
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("userinfo returned status %d", resp.StatusCode)
	}

	var userInfo struct {
		Email string `json:"email"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&userInfo); err != nil {
		return "", fmt.Errorf("decode userinfo: %w", err)
	}
	if userInfo.Email == "" {
		return "", errors.New("userinfo has no email")
	}
	return userInfo.Email, nil
}

func extraString(token *oauth2.Token, key string) string {
	v, _ := token.Extra(key).(string)
	return v
}

// slackTeam reads team.id and team.name from an oauth.v2.access response.
func slackTeam(token *oauth2.Token) (id, name string) {
	team, ok := token.Extra("team").(map[string]interface{})
	if !ok {
		return "", ""
	}
	id, _ = team["id"].(string)
	name, _ = team["name"].(string)
	return id, name
}

func (s *OAuthService) Disconnect(ctx context.Context, userID uuid.UUID, provider domain.Provider) error {
	if err := s.repo.Delete(ctx, userID, provider); err != nil {
		if errors.Is(err, out.ErrConnectionNotFound) {
			return apperr.NotConnected(string(provider))
		}
		return apperr.DatabaseError("delete connection", err)
	}
	logger.WithContext(ctx).WithFields(map[string]any{
		"provider": provider,
		"user_id":  userID.String(),
	}).Info("provider disconnected")
	return nil
}

// Status lists every provider, connected or not. Secrets never leave here.
func (s *OAuthService) Status(ctx context.Context, userID uuid.UUID) ([]domain.ConnectionStatus, error) {
	conns, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, apperr.DatabaseError("list connections", err)
	}

	byProvider := make(map[domain.Provider]*domain.ProviderConnection, len(conns))
	for _, c := range conns {
		byProvider[c.Provider] = c
	}

	statuses := make([]domain.ConnectionStatus, 0, len(domain.Providers))
	for _, p := range domain.Providers {
		if c, ok := byProvider[p]; ok {
			statuses = append(statuses, c.Status())
			continue
		}
		statuses = append(statuses, domain.ConnectionStatus{Provider: p})
	}
	return statuses, nil
}
