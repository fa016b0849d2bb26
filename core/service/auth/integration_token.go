package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"integration_server/core/domain"
	"integration_server/core/port/out"
	"integration_server/pkg/apperr"
	"integration_server/pkg/logger"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
)

// Google tokens expiring within this window are refreshed before use.
const refreshLeeway = 5 * time.Minute

// ActiveConnection re-reads the connection and refreshes an expiring
// Google token. Slack bot tokens do not expire and are returned as stored.
func (s *OAuthService) ActiveConnection(ctx context.Context, userID uuid.UUID, provider domain.Provider) (*domain.ProviderConnection, error) {
	conn, err := s.repo.Get(ctx, userID, provider)
	if err != nil {
		if errors.Is(err, out.ErrConnectionNotFound) {
			return nil, apperr.NotConnected(string(provider))
		}
		return nil, apperr.DatabaseError("load connection", err)
	}
	if !conn.IsConnected() {
		return nil, apperr.NotConnected(string(provider))
	}

	if provider == domain.ProviderGoogle && conn.RefreshToken != "" && conn.ExpiresWithin(s.now(), refreshLeeway) {
		return s.refresh(ctx, conn)
	}
	return conn, nil
}

func (s *OAuthService) refresh(ctx context.Context, conn *domain.ProviderConnection) (*domain.ProviderConnection, error) {
	cfg, ok := s.configs[conn.Provider]
	if !ok {
		return conn, nil
	}

	log := logger.WithContext(ctx).WithFields(map[string]any{
		"provider": conn.Provider,
		"user_id":  conn.UserID.String(),
	})

	// Only the refresh token is passed so the token source always refreshes.
	newToken, err := cfg.TokenSource(s.httpContext(ctx), &oauth2.Token{RefreshToken: conn.RefreshToken}).Token()
	if err != nil {
		if isRevokedTokenError(err) {
			log.WithError(err).Warn("refresh token revoked, removing connection")
			if delErr := s.repo.Delete(ctx, conn.UserID, conn.Provider); delErr != nil && !errors.Is(delErr, out.ErrConnectionNotFound) {
				log.WithError(delErr).Error("failed to remove revoked connection")
			}
			return nil, apperr.NotConnected(string(conn.Provider))
		}
		return nil, apperr.ProviderAPIError(string(conn.Provider), "token_refresh_failed", err.Error())
	}

	conn.AccessToken = newToken.AccessToken
	if newToken.RefreshToken != "" {
		conn.RefreshToken = newToken.RefreshToken
	}
	if !newToken.Expiry.IsZero() {
		expiry := newToken.Expiry
		conn.TokenExpiry = &expiry
	}
	conn.UpdatedAt = s.now()

	// A disconnect during the round trip removed the row; do not bring it back.
	if err := s.repo.UpdateTokens(ctx, conn); err != nil {
		if errors.Is(err, out.ErrConnectionNotFound) {
			log.Info("connection removed during token refresh")
			return nil, apperr.NotConnected(string(conn.Provider))
		}
		return nil, apperr.DatabaseError("save refreshed token", err)
	}
	log.Debug("access token refreshed")
	return conn, nil
}

// isRevokedTokenError reports errors that require the user to re-authorize.
func isRevokedTokenError(err error) bool {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) && (re.ErrorCode == "invalid_grant" || re.ErrorCode == "invalid_client") {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "invalid_grant") ||
		strings.Contains(errStr, "invalid_client") ||
		strings.Contains(errStr, "Token has been expired or revoked") ||
		strings.Contains(errStr, "Token has been revoked")
}
