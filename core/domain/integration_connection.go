package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

type Provider string

const (
	ProviderSlack  Provider = "slack"
	ProviderGoogle Provider = "google"
)

// Providers lists every provider a user can connect.
var Providers = []Provider{ProviderSlack, ProviderGoogle}

// ParseProvider accepts the provider names used in routes. "gmail" and
// "google_calendar" share the google connection.
func ParseProvider(s string) (Provider, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "slack":
		return ProviderSlack, true
	case "google", "gmail", "google_calendar":
		return ProviderGoogle, true
	default:
		return "", false
	}
}

// ProviderConnection is one user's authorization with one provider.
// A connection without an access token is treated as disconnected.
type ProviderConnection struct {
	UserID       uuid.UUID  `json:"user_id"`
	Provider     Provider   `json:"provider"`
	AccessToken  string     `json:"-"`
	RefreshToken string     `json:"-"`
	Scope        string     `json:"scope"`
	AccountID    string     `json:"account_id"`
	TeamName     string     `json:"team_name,omitempty"`
	BotUserID    string     `json:"bot_user_id,omitempty"`
	TokenExpiry  *time.Time `json:"token_expiry,omitempty"`
	ConnectedAt  time.Time  `json:"connected_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	LastSync     *time.Time `json:"last_sync,omitempty"`
}

func (c *ProviderConnection) IsConnected() bool {
	return c != nil && c.AccessToken != ""
}

// ExpiresWithin reports whether the token expires before now+d.
// Connections without a known expiry never expire.
func (c *ProviderConnection) ExpiresWithin(now time.Time, d time.Duration) bool {
	if c.TokenExpiry == nil || c.TokenExpiry.IsZero() {
		return false
	}
	return c.TokenExpiry.Before(now.Add(d))
}

// PendingAuthorization is what an OAuth state token resolves to.
type PendingAuthorization struct {
	UserID    uuid.UUID `json:"user_id"`
	Provider  Provider  `json:"provider"`
	CreatedAt time.Time `json:"created_at"`
}

// ConnectionResult is returned after a successful authorization callback.
type ConnectionResult struct {
	UserID      uuid.UUID `json:"user_id"`
	Provider    Provider  `json:"provider"`
	AccountID   string    `json:"account_id"`
	TeamName    string    `json:"team_name,omitempty"`
	Scope       string    `json:"scope"`
	ConnectedAt time.Time `json:"connected_at"`
	Reconnected bool      `json:"reconnected"`
}

// ConnectionStatus is the secret-free view of a connection.
type ConnectionStatus struct {
	Provider    Provider   `json:"provider"`
	Connected   bool       `json:"connected"`
	AccountID   string     `json:"account_id,omitempty"`
	TeamName    string     `json:"team_name,omitempty"`
	Scope       string     `json:"scope,omitempty"`
	ConnectedAt *time.Time `json:"connected_at,omitempty"`
	LastSync    *time.Time `json:"last_sync,omitempty"`
}

func (c *ProviderConnection) Status() ConnectionStatus {
	if !c.IsConnected() {
		return ConnectionStatus{Provider: c.Provider}
	}
	connectedAt := c.ConnectedAt
	return ConnectionStatus{
		Provider:    c.Provider,
		Connected:   true,
		AccountID:   c.AccountID,
		TeamName:    c.TeamName,
		Scope:       c.Scope,
		ConnectedAt: &connectedAt,
		LastSync:    c.LastSync,
	}
}
