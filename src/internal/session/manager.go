package session

import (
	"context"
	"errors"
	"time"

	"codecollab-auth-svc/src/internal/config"
	"codecollab-auth-svc/src/internal/models"
	"codecollab-auth-svc/src/internal/security"
	"codecollab-auth-svc/src/internal/token"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Cache is a hot-path store consulted before MongoDB during validation.
// All cache failures degrade to the database and never fail a request.
type Cache interface {
	GetSession(ctx context.Context, userID, sessionID string) (*Session, error)
	PutSession(ctx context.Context, s *Session) error
	DropSession(ctx context.Context, userID, sessionID string) error
	DropUserSessions(ctx context.Context, userID string) error
}

// Manager owns every session lifecycle transition: creation with the
// per-user concurrency cap, refresh, validation, revocation and cleanup.
type Manager struct {
	repo             Repository
	cache            Cache
	codec            *token.Codec
	events           security.Sink
	maxConcurrent    int
	refreshTTL       time.Duration
	revokedRetention time.Duration
	now              func() time.Time
}

func NewManager(repo Repository, cache Cache, codec *token.Codec, events security.Sink, cfg *config.AuthSettings) *Manager {
	return &Manager{
		repo:             repo,
		cache:            cache,
		codec:            codec,
		events:           events,
		maxConcurrent:    cfg.MaxConcurrentSessions,
		refreshTTL:       time.Duration(cfg.RefreshTokenDays) * 24 * time.Hour,
		revokedRetention: time.Duration(cfg.RevokedRetentionDays) * 24 * time.Hour,
		now:              time.Now,
	}
}

// Create opens a new session for a user. If the user is at the concurrent
// session limit, the least-recently-active session is revoked first. The
// count-then-write sequence is a soft limit: two simultaneous logins can
// transiently exceed it, and the next login or cleanup pass corrects that.
func (m *Manager) Create(ctx context.Context, userID string, dev DeviceInfo) (*Issued, error) {
	now := m.now()

	count, err := m.repo.CountActive(ctx, userID, now)
	if err != nil {
		return nil, err
	}

	if count >= int64(m.maxConcurrent) {
		oldest, err := m.repo.GetOldestActive(ctx, userID, now)
		if err != nil && !errors.Is(err, models.ErrSessionNotFound) {
			return nil, err
		}
		if oldest != nil {
			if err := m.repo.Revoke(ctx, oldest.SessionID, ReasonConcurrentLimit, now); err != nil {
				return nil, err
			}
			m.dropCached(ctx, oldest.UserID, oldest.SessionID)

			logrus.WithFields(logrus.Fields{
				"user_id":    userID,
				"session_id": oldest.SessionID,
			}).Info("Evicted least-recently-active session at concurrency limit")
		}
	}

	sessionID := primitive.NewObjectID().Hex()

	refreshToken, err := token.NewRefreshToken()
	if err != nil {
		return nil, err
	}

	accessToken, _, err := m.codec.IssueAccessToken(userID, sessionID)
	if err != nil {
		return nil, err
	}

	session := &Session{
		SessionID:    sessionID,
		UserID:       userID,
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		IsActive:     true,
		UserAgent:    dev.UserAgent,
		IPAddress:    dev.IPAddress,
		Platform:     DetectPlatform(dev.UserAgent),
		Browser:      DetectBrowser(dev.UserAgent),
		CreatedAt:    now,
		LastActivity: now,
		ExpiresAt:    now.Add(m.refreshTTL),
	}

	if err := m.repo.Insert(ctx, session); err != nil {
		return nil, err
	}
	m.putCached(ctx, session)

	logrus.WithFields(logrus.Fields{
		"user_id":    userID,
		"session_id": sessionID,
		"platform":   session.Platform,
		"browser":    session.Browser,
	}).Info("Session created")

	return &Issued{
		SessionID:        sessionID,
		AccessToken:      accessToken,
		RefreshToken:     refreshToken,
		ExpiresIn:        int64(m.codec.AccessTTL().Seconds()),
		RefreshExpiresIn: int64(m.refreshTTL.Seconds()),
	}, nil
}

// Refresh mints a new access token against an active, unexpired session.
// The refresh token itself is not rotated; it stays valid until its own
// expiry or revocation.
func (m *Manager) Refresh(ctx context.Context, refreshToken string) (*Issued, error) {
	now := m.now()

	session, err := m.repo.GetByRefreshToken(ctx, refreshToken, now)
	if err != nil {
		if errors.Is(err, models.ErrSessionNotFound) {
			// Worth recording: an unknown refresh token can mean reuse or guessing.
			m.events.Emit(ctx, security.EventRefreshTokenNotFound, logrus.Fields{})
			return nil, models.ErrSessionNotFound
		}
		return nil, err
	}

	accessToken, _, err := m.codec.IssueAccessToken(session.UserID, session.SessionID)
	if err != nil {
		return nil, err
	}

	if err := m.repo.UpdateAccessToken(ctx, session.SessionID, accessToken, now); err != nil {
		return nil, err
	}

	session.AccessToken = accessToken
	session.LastActivity = now
	m.putCached(ctx, session)

	logrus.WithFields(logrus.Fields{
		"user_id":    session.UserID,
		"session_id": session.SessionID,
	}).Debug("Session refreshed")

	return &Issued{
		AccessToken: accessToken,
		ExpiresIn:   int64(m.codec.AccessTTL().Seconds()),
	}, nil
}

// Validate resolves an access token to a live session. The signature check
// fails fast on tampered or expired tokens; the store lookup then binds the
// token to exactly one active session row so revocation takes effect before
// signature expiry. Logical failures return (nil, nil); only infrastructure
// failures surface as errors.
func (m *Manager) Validate(ctx context.Context, accessToken string) (*Identity, error) {
	claims, err := m.codec.ParseAccessToken(accessToken)
	if err != nil {
		return nil, nil
	}

	now := m.now()

	session := m.getCached(ctx, claims.UserID, claims.SessionID)
	if session == nil || session.AccessToken != accessToken {
		session, err = m.repo.GetBySessionID(ctx, claims.SessionID)
		if err != nil {
			if errors.Is(err, models.ErrSessionNotFound) {
				return nil, nil
			}
			return nil, err
		}
	}

	if session.UserID != claims.UserID || session.AccessToken != accessToken {
		logrus.WithField("session_id", claims.SessionID).Warn("Access token does not match live session")
		return nil, nil
	}
	if !session.IsValid(now) {
		logrus.WithField("session_id", claims.SessionID).Warn("Session is revoked or expired")
		return nil, nil
	}

	if err := m.repo.UpdateActivity(ctx, session.SessionID, now); err != nil {
		logrus.WithError(err).WithField("session_id", session.SessionID).Warn("Failed to update session activity")
	}
	session.LastActivity = now
	m.putCached(ctx, session)

	return &Identity{
		UserID:    session.UserID,
		SessionID: session.SessionID,
	}, nil
}

// Revoke terminates a single session. Revoking an already-revoked session
// is a no-op; the stored revocation metadata is never overwritten.
func (m *Manager) Revoke(ctx context.Context, sessionID, reason string) error {
	session, err := m.repo.GetBySessionID(ctx, sessionID)
	if err != nil {
		return err
	}

	if err := m.repo.Revoke(ctx, sessionID, reason, m.now()); err != nil {
		return err
	}
	m.dropCached(ctx, session.UserID, sessionID)

	logrus.WithFields(logrus.Fields{
		"session_id": sessionID,
		"reason":     reason,
	}).Info("Session revoked")

	return nil
}

// RevokeAllForUser terminates every active session for a user and returns
// the number of sessions actually flipped.
func (m *Manager) RevokeAllForUser(ctx context.Context, userID, reason string) (int64, error) {
	count, err := m.repo.RevokeAllForUser(ctx, userID, reason, m.now())
	if err != nil {
		return 0, err
	}

	if m.cache != nil {
		if cerr := m.cache.DropUserSessions(ctx, userID); cerr != nil {
			logrus.WithError(cerr).WithField("user_id", userID).Warn("Failed to drop cached user sessions")
		}
	}

	logrus.WithFields(logrus.Fields{
		"user_id": userID,
		"reason":  reason,
		"count":   count,
	}).Info("Revoked all user sessions")

	return count, nil
}

// GetUserSessions lists a user's active sessions, newest activity first.
// Token fields are already stripped by the repository projection.
func (m *Manager) GetUserSessions(ctx context.Context, userID string) ([]*Session, error) {
	return m.repo.GetActiveByUser(ctx, userID, m.now())
}

// CleanupExpired deletes sessions past expiry and revoked sessions older
// than the retention window. Runs on a schedule; safe next to live traffic.
func (m *Manager) CleanupExpired(ctx context.Context) (int64, error) {
	count, err := m.repo.DeleteExpired(ctx, m.now(), m.revokedRetention)
	if err != nil {
		return 0, err
	}

	if count > 0 {
		logrus.WithField("count", count).Info("Cleaned up expired sessions")
	}
	return count, nil
}

func (m *Manager) getCached(ctx context.Context, userID, sessionID string) *Session {
	if m.cache == nil {
		return nil
	}
	session, err := m.cache.GetSession(ctx, userID, sessionID)
	if err != nil {
		logrus.WithError(err).Debug("Session cache read failed")
		return nil
	}
	return session
}

func (m *Manager) putCached(ctx context.Context, s *Session) {
	if m.cache == nil {
		return
	}
	if err := m.cache.PutSession(ctx, s); err != nil {
		logrus.WithError(err).WithField("session_id", s.SessionID).Debug("Session cache write failed")
	}
}

func (m *Manager) dropCached(ctx context.Context, userID, sessionID string) {
	if m.cache == nil {
		return
	}
	if err := m.cache.DropSession(ctx, userID, sessionID); err != nil {
		logrus.WithError(err).WithField("session_id", sessionID).Debug("Session cache drop failed")
	}
}
