package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"codecollab-auth-svc/src/internal/config"
	"codecollab-auth-svc/src/internal/models"
	"codecollab-auth-svc/src/internal/session"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
)

const sessionKeyPattern = "session:%s:%s" // session:userID:sessionID

type Service interface {
	session.Cache
	SaveUserStats(ctx context.Context, stats *models.Stats) error
	GetUserStats(ctx context.Context) (*models.Stats, error)
}

type cacheService struct {
	client *redis.Client
	cfg    *config.CacheConfig
}

func NewCacheService(client *redis.Client, cfg *config.Configuration) Service {
	return &cacheService{
		client: client,
		cfg:    &cfg.Cache,
	}
}

func sessionKey(userID, sessionID string) string {
	return fmt.Sprintf(sessionKeyPattern, userID, sessionID)
}

// GetSession reads a cached session. A miss returns (nil, nil); only Redis
// failures surface as errors.
func (c *cacheService) GetSession(ctx context.Context, userID, sessionID string) (*session.Session, error) {
	key := sessionKey(userID, sessionID)

	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		logrus.WithError(err).WithField("key", key).Error("Failed to get session from cache")
		return nil, models.ErrRedisGet
	}

	// BSON keeps the token fields, which the JSON representation hides.
	var s session.Session
	if err := bson.Unmarshal(data, &s); err != nil {
		logrus.WithError(err).WithField("key", key).Error("Failed to unmarshal cached session")
		return nil, models.ErrRedisGet
	}

	return &s, nil
}

// PutSession caches a session with a TTL capped at the session expiry.
func (c *cacheService) PutSession(ctx context.Context, s *session.Session) error {
	key := sessionKey(s.UserID, s.SessionID)

	data, err := bson.Marshal(s)
	if err != nil {
		logrus.WithError(err).WithField("session_id", s.SessionID).Error("Failed to marshal session for cache")
		return models.ErrRedisSet
	}

	ttl := time.Duration(c.cfg.SessionExpirationMinutes) * time.Minute
	if until := time.Until(s.ExpiresAt); until < ttl {
		ttl = until
	}
	if ttl <= 0 {
		logrus.WithField("session_id", s.SessionID).Warn("Session already expired, not caching")
		return nil
	}

	if err := c.client.Set(ctx, key, data, ttl).Err(); err != nil {
		logrus.WithError(err).WithField("key", key).Error("Failed to cache session")
		return models.ErrRedisSet
	}

	return nil
}

func (c *cacheService) DropSession(ctx context.Context, userID, sessionID string) error {
	key := sessionKey(userID, sessionID)
	if err := c.client.Del(ctx, key).Err(); err != nil {
		logrus.WithError(err).WithField("key", key).Error("Failed to drop cached session")
		return models.ErrRedisDelete
	}
	return nil
}

// DropUserSessions removes every cached session for a user.
func (c *cacheService) DropUserSessions(ctx context.Context, userID string) error {
	pattern := fmt.Sprintf(sessionKeyPattern, userID, "*")

	iter := c.client.Scan(ctx, 0, pattern, 0).Iterator()
	for iter.Next(ctx) {
		if err := c.client.Del(ctx, iter.Val()).Err(); err != nil {
			logrus.WithError(err).WithField("key", iter.Val()).Error("Failed to drop cached session")
			return models.ErrRedisDelete
		}
	}
	if err := iter.Err(); err != nil {
		logrus.WithError(err).WithField("user_id", userID).Error("Failed to scan cached sessions")
		return models.ErrRedisDelete
	}

	return nil
}

func (c *cacheService) SaveUserStats(ctx context.Context, stats *models.Stats) error {
	data, err := json.Marshal(stats)
	if err != nil {
		logrus.WithError(err).Error("Failed to marshal user stats for cache")
		return models.ErrRedisSet
	}

	expiration := time.Duration(c.cfg.UserStatExpirationMinutes) * time.Minute
	if err := c.client.Set(ctx, c.cfg.UserStatKey, data, expiration).Err(); err != nil {
		logrus.WithError(err).Error("Failed to cache stats")
		return models.ErrRedisSet
	}
	return nil
}

func (c *cacheService) GetUserStats(ctx context.Context) (*models.Stats, error) {
	data, err := c.client.Get(ctx, c.cfg.UserStatKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			logrus.Debug("User stats not found in cache")
			return nil, nil // Not an error, just not found
		}
		logrus.WithError(err).Error("Failed to get user stats from cache")
		return nil, models.ErrRedisGet
	}

	var stats models.Stats
	if err := json.Unmarshal([]byte(data), &stats); err != nil {
		logrus.WithError(err).Error("Failed to unmarshal user stats from cache")
		return nil, models.ErrRedisGet
	}

	return &stats, nil
}
