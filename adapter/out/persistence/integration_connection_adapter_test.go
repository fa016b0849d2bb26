package persistence

import (
	"testing"
	"time"

	"integration_server/core/domain"
	"integration_server/core/port/out"
	"integration_server/pkg/crypto"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSealingAdapter(t *testing.T) *ConnectionAdapter {
	enc, err := crypto.NewEncryptor([]byte("test-key"))
	require.NoError(t, err)
	return NewConnectionAdapter(nil, crypto.NewTokenCodec(enc))
}

func TestConnectionAdapter_TokensAreSealedAtRest(t *testing.T) {
	a := newSealingAdapter(t)
	expiry := time.Date(2024, 3, 1, 13, 0, 0, 0, time.UTC)
	conn := &domain.ProviderConnection{
		UserID:       uuid.New(),
		Provider:     domain.ProviderGoogle,
		AccessToken:  "ya29.access",
		RefreshToken: "1//refresh",
		Scope:        "https://www.googleapis.com/auth/gmail.readonly https://www.googleapis.com/auth/gmail.send",
		AccountID:    "ada@example.com",
		TokenExpiry:  &expiry,
		ConnectedAt:  expiry.Add(-time.Hour),
		UpdatedAt:    expiry.Add(-time.Hour),
	}

	row, err := a.toRow(conn)
	require.NoError(t, err)
	assert.NotEqual(t, conn.AccessToken, row.AccessToken)
	assert.NotEqual(t, conn.RefreshToken, row.RefreshToken)
	assert.Len(t, row.Scopes, 2)

	back, err := a.toDomain(row)
	require.NoError(t, err)
	assert.Equal(t, conn, back)
}

func TestConnectionAdapter_EmptyRefreshTokenStaysEmpty(t *testing.T) {
	a := newSealingAdapter(t)

	row, err := a.toRow(&domain.ProviderConnection{UserID: uuid.New(), Provider: domain.ProviderSlack, AccessToken: "xoxb-1"})
	require.NoError(t, err)
	assert.Empty(t, row.RefreshToken)
	assert.NotNil(t, row.Scopes)
	assert.Empty(t, row.Scopes)
}

func TestConnectionAdapter_RejectsCorruptRow(t *testing.T) {
	a := newSealingAdapter(t)

	_, err := a.toDomain(&connectionRow{UserID: "not-a-uuid"})
	assert.Error(t, err)

	_, err = a.toDomain(&connectionRow{UserID: uuid.NewString(), AccessToken: "plaintext-token"})
	assert.Error(t, err)
}

func TestScopes(t *testing.T) {
	assert.Equal(t, []string{"channels:read", "chat:write"}, []string(splitScopes("channels:read,chat:write")))
	assert.Equal(t, "channels:read,chat:write", joinScopes(domain.ProviderSlack, []string{"channels:read", "chat:write"}))
	assert.Equal(t, "a b", joinScopes(domain.ProviderGoogle, []string{"a", "b"}))
}

func TestRequireAffected(t *testing.T) {
	assert.ErrorIs(t, requireAffected(0, nil), out.ErrConnectionNotFound)
	assert.NoError(t, requireAffected(1, nil))
}

func TestDecodePending(t *testing.T) {
	userID := uuid.New()

	pending, err := decodePending([]byte(`{"user_id":"` + userID.String() + `","provider":"slack"}`))
	require.NoError(t, err)
	assert.Equal(t, userID, pending.UserID)
	assert.Equal(t, domain.ProviderSlack, pending.Provider)

	_, err = decodePending([]byte(`{"provider":"slack"}`))
	assert.ErrorIs(t, err, out.ErrStateNotFound)

	_, err = decodePending([]byte(`not json`))
	assert.Error(t, err)
}
