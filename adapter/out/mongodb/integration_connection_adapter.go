// Package mongodb implements MongoDB adapters for the application.
package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"integration_server/core/domain"
	"integration_server/core/port/out"
	"integration_server/pkg/crypto"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const collectionConnections = "provider_connections"

// ConnectionAdapter implements out.ConnectionRepository using MongoDB.
// One document per (user_id, provider).
type ConnectionAdapter struct {
	collection *mongo.Collection
	tokens     *crypto.TokenCodec
}

var _ out.ConnectionRepository = (*ConnectionAdapter)(nil)

func NewConnectionAdapter(db *mongo.Database, tokens *crypto.TokenCodec) *ConnectionAdapter {
	return &ConnectionAdapter{
		collection: db.Collection(collectionConnections),
		tokens:     tokens,
	}
}

// EnsureIndexes creates the unique (user_id, provider) index.
func (a *ConnectionAdapter) EnsureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "user_id", Value: 1}, {Key: "provider", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
	}
	_, err := a.collection.Indexes().CreateMany(ctx, indexes)
	return err
}

// =============================================================================
// Document Model
// =============================================================================

type connectionDocument struct {
	UserID       string     `bson:"user_id"`
	Provider     string     `bson:"provider"`
	AccessToken  string     `bson:"access_token"`
	RefreshToken string     `bson:"refresh_token,omitempty"`
	Scope        string     `bson:"scope"`
	AccountID    string     `bson:"account_id"`
	TeamName     string     `bson:"team_name,omitempty"`
	BotUserID    string     `bson:"bot_user_id,omitempty"`
	TokenExpiry  *time.Time `bson:"token_expiry,omitempty"`
	ConnectedAt  time.Time  `bson:"connected_at"`
	UpdatedAt    time.Time  `bson:"updated_at"`
	LastSync     *time.Time `bson:"last_sync,omitempty"`
}

func key(userID uuid.UUID, provider domain.Provider) bson.M {
	return bson.M{"user_id": userID.String(), "provider": string(provider)}
}

// =============================================================================
// Operations
// =============================================================================

func (a *ConnectionAdapter) Get(ctx context.Context, userID uuid.UUID, provider domain.Provider) (*domain.ProviderConnection, error) {
	var doc connectionDocument
	err := a.collection.FindOne(ctx, key(userID, provider)).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, out.ErrConnectionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find connection: %w", err)
	}
	return a.toDomain(&doc)
}

func (a *ConnectionAdapter) ListByUser(ctx context.Context, userID uuid.UUID) ([]*domain.ProviderConnection, error) {
	opts := options.Find().SetSort(bson.D{{Key: "provider", Value: 1}})
	cursor, err := a.collection.Find(ctx, bson.M{"user_id": userID.String()}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list connections: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []connectionDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode connections: %w", err)
	}

	conns := make([]*domain.ProviderConnection, 0, len(docs))
	for i := range docs {
		conn, err := a.toDomain(&docs[i])
		if err != nil {
			return nil, err
		}
		conns = append(conns, conn)
	}
	return conns, nil
}

func (a *ConnectionAdapter) Upsert(ctx context.Context, conn *domain.ProviderConnection) error {
	doc, err := a.toDocument(conn)
	if err != nil {
		return err
	}

	opts := options.Replace().SetUpsert(true)
	if _, err := a.collection.ReplaceOne(ctx, key(conn.UserID, conn.Provider), doc, opts); err != nil {
		return fmt.Errorf("failed to upsert connection: %w", err)
	}
	return nil
}

func (a *ConnectionAdapter) UpdateTokens(ctx context.Context, conn *domain.ProviderConnection) error {
	access, err := a.tokens.Seal(conn.AccessToken)
	if err != nil {
		return fmt.Errorf("seal access token: %w", err)
	}
	refresh, err := a.tokens.Seal(conn.RefreshToken)
	if err != nil {
		return fmt.Errorf("seal refresh token: %w", err)
	}

	update := bson.M{"$set": bson.M{
		"access_token":  access,
		"refresh_token": refresh,
		"token_expiry":  utcPtr(conn.TokenExpiry),
		"updated_at":    conn.UpdatedAt.UTC(),
	}}
	res, err := a.collection.UpdateOne(ctx, key(conn.UserID, conn.Provider), update)
	if err != nil {
		return fmt.Errorf("failed to update tokens: %w", err)
	}
	if res.MatchedCount == 0 {
		return out.ErrConnectionNotFound
	}
	return nil
}

func (a *ConnectionAdapter) Delete(ctx context.Context, userID uuid.UUID, provider domain.Provider) error {
	res, err := a.collection.DeleteOne(ctx, key(userID, provider))
	if err != nil {
		return fmt.Errorf("failed to delete connection: %w", err)
	}
	if res.DeletedCount == 0 {
		return out.ErrConnectionNotFound
	}
	return nil
}

func (a *ConnectionAdapter) TouchLastSync(ctx context.Context, userID uuid.UUID, provider domain.Provider, at time.Time) error {
	update := bson.M{"$set": bson.M{"last_sync": at, "updated_at": at}}
	res, err := a.collection.UpdateOne(ctx, key(userID, provider), update)
	if err != nil {
		return fmt.Errorf("failed to update last sync: %w", err)
	}
	if res.MatchedCount == 0 {
		return out.ErrConnectionNotFound
	}
	return nil
}

// =============================================================================
// Conversion
// =============================================================================

func (a *ConnectionAdapter) toDocument(conn *domain.ProviderConnection) (*connectionDocument, error) {
	access, err := a.tokens.Seal(conn.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("seal access token: %w", err)
	}
	refresh, err := a.tokens.Seal(conn.RefreshToken)
	if err != nil {
		return nil, fmt.Errorf("seal refresh token: %w", err)
	}

	return &connectionDocument{
		UserID:       conn.UserID.String(),
		Provider:     string(conn.Provider),
		AccessToken:  access,
		RefreshToken: refresh,
		Scope:        conn.Scope,
		AccountID:    conn.AccountID,
		TeamName:     conn.TeamName,
		BotUserID:    conn.BotUserID,
		TokenExpiry:  utcPtr(conn.TokenExpiry),
		ConnectedAt:  conn.ConnectedAt.UTC(),
		UpdatedAt:    conn.UpdatedAt.UTC(),
		LastSync:     utcPtr(conn.LastSync),
	}, nil
}

func (a *ConnectionAdapter) toDomain(doc *connectionDocument) (*domain.ProviderConnection, error) {
	userID, err := uuid.Parse(doc.UserID)
	if err != nil {
		return nil, fmt.Errorf("invalid user_id %q: %w", doc.UserID, err)
	}
	access, err := a.tokens.Open(doc.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("open access token: %w", err)
	}
	refresh, err := a.tokens.Open(doc.RefreshToken)
	if err != nil {
		return nil, fmt.Errorf("open refresh token: %w", err)
	}

	return &domain.ProviderConnection{
		UserID:       userID,
		Provider:     domain.Provider(doc.Provider),
		AccessToken:  access,
		RefreshToken: refresh,
		Scope:        doc.Scope,
		AccountID:    doc.AccountID,
		TeamName:     doc.TeamName,
		BotUserID:    doc.BotUserID,
		TokenExpiry:  doc.TokenExpiry,
		ConnectedAt:  doc.ConnectedAt,
		UpdatedAt:    doc.UpdatedAt,
		LastSync:     doc.LastSync,
	}, nil
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
