package session

import (
	"context"
	"errors"
	"time"

	"codecollab-auth-svc/src/clients"
	"codecollab-auth-svc/src/internal/models"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type Repository interface {
	Insert(ctx context.Context, s *Session) error
	GetBySessionID(ctx context.Context, sessionID string) (*Session, error)
	GetByRefreshToken(ctx context.Context, refreshToken string, now time.Time) (*Session, error)
	CountActive(ctx context.Context, userID string, now time.Time) (int64, error)
	GetOldestActive(ctx context.Context, userID string, now time.Time) (*Session, error)
	GetActiveByUser(ctx context.Context, userID string, now time.Time) ([]*Session, error)
	Revoke(ctx context.Context, sessionID, reason string, now time.Time) error
	RevokeAllForUser(ctx context.Context, userID, reason string, now time.Time) (int64, error)
	UpdateAccessToken(ctx context.Context, sessionID, accessToken string, now time.Time) error
	UpdateActivity(ctx context.Context, sessionID string, now time.Time) error
	DeleteExpired(ctx context.Context, now time.Time, revokedRetention time.Duration) (int64, error)
	EnsureIndexes(ctx context.Context) error
}

type repository struct {
	collection *mongo.Collection
}

func NewSessionRepository(db *clients.MongoDB, collectionName string) Repository {
	collection := db.Database.Collection(collectionName)
	return &repository{collection: collection}
}

// activeFilter matches sessions that can still authenticate requests.
func activeFilter(now time.Time) bson.M {
	return bson.M{
		"is_active":  true,
		"expires_at": bson.M{"$gt": now},
	}
}

func (r *repository) Insert(ctx context.Context, s *Session) error {
	_, err := r.collection.InsertOne(ctx, s)
	if err != nil {
		logrus.WithError(err).WithField("session_id", s.SessionID).Error("Failed to insert session")
		return models.ErrSessionCreating
	}
	return nil
}

func (r *repository) GetBySessionID(ctx context.Context, sessionID string) (*Session, error) {
	var session Session
	filter := bson.M{"session_id": sessionID}

	err := r.collection.FindOne(ctx, filter).Decode(&session)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, models.ErrSessionNotFound
		}
		logrus.WithError(err).WithField("session_id", sessionID).Error("Failed to get session")
		return nil, models.ErrDatabaseQuery
	}

	return &session, nil
}

func (r *repository) GetByRefreshToken(ctx context.Context, refreshToken string, now time.Time) (*Session, error) {
	filter := activeFilter(now)
	filter["refresh_token"] = refreshToken

	var session Session
	err := r.collection.FindOne(ctx, filter).Decode(&session)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, models.ErrSessionNotFound
		}
		logrus.WithError(err).Error("Failed to get session by refresh token")
		return nil, models.ErrDatabaseQuery
	}

	return &session, nil
}

func (r *repository) CountActive(ctx context.Context, userID string, now time.Time) (int64, error) {
	filter := activeFilter(now)
	filter["user_id"] = userID

	count, err := r.collection.CountDocuments(ctx, filter)
	if err != nil {
		logrus.WithError(err).WithField("user_id", userID).Error("Failed to count active sessions")
		return 0, models.ErrDatabaseQuery
	}
	return count, nil
}

// GetOldestActive returns the least-recently-active session for a user.
// The (user_id, is_active) index makes the sorted query cheap.
func (r *repository) GetOldestActive(ctx context.Context, userID string, now time.Time) (*Session, error) {
	filter := activeFilter(now)
	filter["user_id"] = userID

	opts := options.FindOne().SetSort(bson.M{"last_activity": 1})

	var session Session
	err := r.collection.FindOne(ctx, filter, opts).Decode(&session)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, models.ErrSessionNotFound
		}
		logrus.WithError(err).WithField("user_id", userID).Error("Failed to get oldest active session")
		return nil, models.ErrDatabaseQuery
	}

	return &session, nil
}

// GetActiveByUser lists a user's active sessions, most recently active first.
// Token fields are excluded by projection so secrets never leave the store.
func (r *repository) GetActiveByUser(ctx context.Context, userID string, now time.Time) ([]*Session, error) {
	filter := activeFilter(now)
	filter["user_id"] = userID

	opts := options.Find().
		SetSort(bson.M{"last_activity": -1}).
		SetProjection(bson.M{"access_token": 0, "refresh_token": 0})

	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		logrus.WithError(err).WithField("user_id", userID).Error("Failed to find user sessions")
		return nil, models.ErrDatabaseQuery
	}
	defer cursor.Close(ctx)

	var sessions []*Session
	for cursor.Next(ctx) {
		var session Session
		if err := cursor.Decode(&session); err != nil {
			logrus.WithError(err).Error("Failed to decode session")
			continue
		}
		sessions = append(sessions, &session)
	}

	if err := cursor.Err(); err != nil {
		logrus.WithError(err).Error("Cursor error")
		return nil, models.ErrDatabaseQuery
	}

	return sessions, nil
}

// Revoke flips a session inactive. Filtering on is_active makes the
// operation idempotent: a second revoke matches nothing.
func (r *repository) Revoke(ctx context.Context, sessionID, reason string, now time.Time) error {
	filter := bson.M{
		"session_id": sessionID,
		"is_active":  true,
	}

	update := bson.M{
		"$set": bson.M{
			"is_active":      false,
			"revoked_at":     now,
			"revoked_reason": reason,
		},
	}

	_, err := r.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		logrus.WithError(err).WithField("session_id", sessionID).Error("Failed to revoke session")
		return models.ErrSessionUpdating
	}

	return nil
}

func (r *repository) RevokeAllForUser(ctx context.Context, userID, reason string, now time.Time) (int64, error) {
	filter := bson.M{
		"user_id":   userID,
		"is_active": true,
	}

	update := bson.M{
		"$set": bson.M{
			"is_active":      false,
			"revoked_at":     now,
			"revoked_reason": reason,
		},
	}

	result, err := r.collection.UpdateMany(ctx, filter, update)
	if err != nil {
		logrus.WithError(err).WithField("user_id", userID).Error("Failed to revoke user sessions")
		return 0, models.ErrSessionUpdating
	}

	return result.ModifiedCount, nil
}

func (r *repository) UpdateAccessToken(ctx context.Context, sessionID, accessToken string, now time.Time) error {
	filter := bson.M{
		"session_id": sessionID,
		"is_active":  true,
	}

	update := bson.M{
		"$set": bson.M{
			"access_token":  accessToken,
			"last_activity": now,
		},
	}

	_, err := r.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		logrus.WithError(err).WithField("session_id", sessionID).Error("Failed to update session access token")
		return models.ErrSessionUpdating
	}

	return nil
}

func (r *repository) UpdateActivity(ctx context.Context, sessionID string, now time.Time) error {
	filter := bson.M{
		"session_id": sessionID,
		"is_active":  true,
	}

	update := bson.M{
		"$set": bson.M{
			"last_activity": now,
		},
	}

	_, err := r.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		logrus.WithError(err).WithField("session_id", sessionID).Error("Failed to update session activity")
		return models.ErrSessionUpdating
	}

	return nil
}

// DeleteExpired removes sessions past their refresh expiry and revoked
// sessions older than the retention window. Both states are terminal, so
// the sweep is safe alongside live traffic.
func (r *repository) DeleteExpired(ctx context.Context, now time.Time, revokedRetention time.Duration) (int64, error) {
	filter := bson.M{
		"$or": []bson.M{
			{"expires_at": bson.M{"$lt": now}},
			{"revoked_at": bson.M{"$lt": now.Add(-revokedRetention)}},
		},
	}

	result, err := r.collection.DeleteMany(ctx, filter)
	if err != nil {
		logrus.WithError(err).Error("Failed to delete expired sessions")
		return 0, models.ErrSessionDeleting
	}

	return result.DeletedCount, nil
}

func (r *repository) EnsureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "session_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "refresh_token", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "access_token", Value: 1}},
		},
		{
			Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "is_active", Value: 1}},
		},
		{
			Keys: bson.D{{Key: "expires_at", Value: 1}},
		},
	}

	_, err := r.collection.Indexes().CreateMany(ctx, indexes)
	if err != nil {
		logrus.WithError(err).Error("Failed to create session indexes")
		return models.ErrDatabaseConnection
	}

	return nil
}
