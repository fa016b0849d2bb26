// Package persistence provides database adapters.
package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"integration_server/core/domain"
	"integration_server/core/port/out"
	"integration_server/pkg/crypto"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

const connectionSchema = `
CREATE TABLE IF NOT EXISTS provider_connections (
	user_id       UUID        NOT NULL,
	provider      TEXT        NOT NULL,
	access_token  TEXT        NOT NULL,
	refresh_token TEXT        NOT NULL DEFAULT '',
	scopes        TEXT[]      NOT NULL DEFAULT '{}',
	account_id    TEXT        NOT NULL DEFAULT '',
	team_name     TEXT        NOT NULL DEFAULT '',
	bot_user_id   TEXT        NOT NULL DEFAULT '',
	token_expiry  TIMESTAMPTZ,
	connected_at  TIMESTAMPTZ NOT NULL,
	updated_at    TIMESTAMPTZ NOT NULL,
	last_sync_at  TIMESTAMPTZ,
	PRIMARY KEY (user_id, provider)
)`

const connectionColumns = `user_id, provider, access_token, refresh_token, scopes, account_id,
	team_name, bot_user_id, token_expiry, connected_at, updated_at, last_sync_at`

// connectionRow is the provider_connections row. Tokens are sealed.
type connectionRow struct {
	UserID       string         `db:"user_id"`
	Provider     string         `db:"provider"`
	AccessToken  string         `db:"access_token"`
	RefreshToken string         `db:"refresh_token"`
	Scopes       pq.StringArray `db:"scopes"`
	AccountID    string         `db:"account_id"`
	TeamName     string         `db:"team_name"`
	BotUserID    string         `db:"bot_user_id"`
	TokenExpiry  *time.Time     `db:"token_expiry"`
	ConnectedAt  time.Time      `db:"connected_at"`
	UpdatedAt    time.Time      `db:"updated_at"`
	LastSyncAt   *time.Time     `db:"last_sync_at"`
}

// ConnectionAdapter implements out.ConnectionRepository on PostgreSQL.
type ConnectionAdapter struct {
	db     *sqlx.DB
	tokens *crypto.TokenCodec
}

var _ out.ConnectionRepository = (*ConnectionAdapter)(nil)

func NewConnectionAdapter(db *sqlx.DB, tokens *crypto.TokenCodec) *ConnectionAdapter {
	return &ConnectionAdapter{db: db, tokens: tokens}
}

// EnsureSchema creates the connections table when missing.
func (a *ConnectionAdapter) EnsureSchema(ctx context.Context) error {
	if _, err := a.db.ExecContext(ctx, connectionSchema); err != nil {
		return fmt.Errorf("create provider_connections: %w", err)
	}
	return nil
}

func (a *ConnectionAdapter) Get(ctx context.Context, userID uuid.UUID, provider domain.Provider) (*domain.ProviderConnection, error) {
	var row connectionRow
	query := `SELECT ` + connectionColumns + ` FROM provider_connections WHERE user_id = $1 AND provider = $2`
	if err := a.db.GetContext(ctx, &row, query, userID, string(provider)); err != nil {
		if isNoRows(err) {
			return nil, out.ErrConnectionNotFound
		}
		return nil, err
	}
	return a.toDomain(&row)
}

func (a *ConnectionAdapter) ListByUser(ctx context.Context, userID uuid.UUID) ([]*domain.ProviderConnection, error) {
	var rows []connectionRow
	query := `SELECT ` + connectionColumns + ` FROM provider_connections WHERE user_id = $1 ORDER BY provider`
	if err := a.db.SelectContext(ctx, &rows, query, userID); err != nil {
		return nil, err
	}

	conns := make([]*domain.ProviderConnection, 0, len(rows))
	for i := range rows {
		conn, err := a.toDomain(&rows[i])
		if err != nil {
			return nil, err
		}
		conns = append(conns, conn)
	}
	return conns, nil
}

func (a *ConnectionAdapter) Upsert(ctx context.Context, conn *domain.ProviderConnection) error {
	row, err := a.toRow(conn)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO provider_connections (` + connectionColumns + `)
		VALUES (:user_id, :provider, :access_token, :refresh_token, :scopes, :account_id,
		        :team_name, :bot_user_id, :token_expiry, :connected_at, :updated_at, :last_sync_at)
		ON CONFLICT (user_id, provider) DO UPDATE SET
			access_token  = EXCLUDED.access_token,
			refresh_token = EXCLUDED.refresh_token,
			scopes        = EXCLUDED.scopes,
			account_id    = EXCLUDED.account_id,
			team_name     = EXCLUDED.team_name,
			bot_user_id   = EXCLUDED.bot_user_id,
			token_expiry  = EXCLUDED.token_expiry,
			updated_at    = EXCLUDED.updated_at,
			last_sync_at  = EXCLUDED.last_sync_at`

	_, err = a.db.NamedExecContext(ctx, query, row)
	return err
}

func (a *ConnectionAdapter) UpdateTokens(ctx context.Context, conn *domain.ProviderConnection) error {
	row, err := a.toRow(conn)
	if err != nil {
		return err
	}

	query := `
		UPDATE provider_connections SET
			access_token  = :access_token,
			refresh_token = :refresh_token,
			token_expiry  = :token_expiry,
			updated_at    = :updated_at
		WHERE user_id = :user_id AND provider = :provider`

	res, err := a.db.NamedExecContext(ctx, query, row)
	if err != nil {
		return err
	}
	return requireAffected(res.RowsAffected())
}

func (a *ConnectionAdapter) Delete(ctx context.Context, userID uuid.UUID, provider domain.Provider) error {
	res, err := a.db.ExecContext(ctx,
		`DELETE FROM provider_connections WHERE user_id = $1 AND provider = $2`, userID, string(provider))
	if err != nil {
		return err
	}
	return requireAffected(res.RowsAffected())
}

func (a *ConnectionAdapter) TouchLastSync(ctx context.Context, userID uuid.UUID, provider domain.Provider, at time.Time) error {
	res, err := a.db.ExecContext(ctx,
		`UPDATE provider_connections SET last_sync_at = $3, updated_at = $3 WHERE user_id = $1 AND provider = $2`,
		userID, string(provider), at)
	if err != nil {
		return err
	}
	return requireAffected(res.RowsAffected())
}

func requireAffected(n int64, err error) error {
	if err != nil {
		return err
	}
	if n == 0 {
		return out.ErrConnectionNotFound
	}
	return nil
}

// =============================================================================
// Conversion
// =============================================================================

func (a *ConnectionAdapter) toRow(conn *domain.ProviderConnection) (*connectionRow, error) {
	access, err := a.tokens.Seal(conn.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("seal access token: %w", err)
	}
	refresh, err := a.tokens.Seal(conn.RefreshToken)
	if err != nil {
		return nil, fmt.Errorf("seal refresh token: %w", err)
	}

	return &connectionRow{
		UserID:       conn.UserID.String(),
		Provider:     string(conn.Provider),
		AccessToken:  access,
		RefreshToken: refresh,
		Scopes:       splitScopes(conn.Scope),
		AccountID:    conn.AccountID,
		TeamName:     conn.TeamName,
		BotUserID:    conn.BotUserID,
		TokenExpiry:  conn.TokenExpiry,
		ConnectedAt:  conn.ConnectedAt,
		UpdatedAt:    conn.UpdatedAt,
		LastSyncAt:   conn.LastSync,
	}, nil
}

func (a *ConnectionAdapter) toDomain(row *connectionRow) (*domain.ProviderConnection, error) {
	userID, err := uuid.Parse(row.UserID)
	if err != nil {
		return nil, fmt.Errorf("invalid user_id %q: %w", row.UserID, err)
	}
	access, err := a.tokens.Open(row.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("open access token: %w", err)
	}
	refresh, err := a.tokens.Open(row.RefreshToken)
	if err != nil {
		return nil, fmt.Errorf("open refresh token: %w", err)
	}

	provider := domain.Provider(row.Provider)
	return &domain.ProviderConnection{
		UserID:       userID,
		Provider:     provider,
		AccessToken:  access,
		RefreshToken: refresh,
		Scope:        joinScopes(provider, row.Scopes),
		AccountID:    row.AccountID,
		TeamName:     row.TeamName,
		BotUserID:    row.BotUserID,
		TokenExpiry:  row.TokenExpiry,
		ConnectedAt:  row.ConnectedAt,
		UpdatedAt:    row.UpdatedAt,
		LastSync:     row.LastSyncAt,
	}, nil
}

// splitScopes accepts both Google (space separated) and Slack (comma
// separated) scope strings.
func splitScopes(scope string) pq.StringArray {
	fields := strings.FieldsFunc(scope, func(r rune) bool { return r == ' ' || r == ',' })
	if fields == nil {
		// A nil array is written as NULL.
		fields = []string{}
	}
	return pq.StringArray(fields)
}

func joinScopes(provider domain.Provider, scopes []string) string {
	if provider == domain.ProviderSlack {
		return strings.Join(scopes, ",")
	}
	return strings.Join(scopes, " ")
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
