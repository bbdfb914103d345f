package middleware

import (
	"context"
	"net/http"
	"strings"

	"codecollab-auth-svc/src/internal/security"
	"codecollab-auth-svc/src/internal/session"
	"codecollab-auth-svc/src/internal/user"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// Context keys set by RequireAuth
const (
	CtxUserID      = "user_id"
	CtxSessionID   = "session_id"
	CtxUserEmail   = "user_email"
	CtxUserRole    = "user_role"
	CtxAccessToken = "access_token"
	CtxCurrentUser = "current_user"
)

// SessionValidator resolves an access token to a live session identity.
type SessionValidator interface {
	Validate(ctx context.Context, accessToken string) (*session.Identity, error)
}

// UserLoader fetches the current user record for the resolved identity.
type UserLoader interface {
	GetByID(ctx context.Context, userID string) (*user.User, error)
}

// AuthMiddleware handles authentication
type AuthMiddleware struct {
	cookieName string
	sessions   SessionValidator
	users      UserLoader
	events     security.Sink
}

func NewAuthMiddleware(cookieName string, sessions SessionValidator, users UserLoader, events security.Sink) *AuthMiddleware {
	return &AuthMiddleware{
		cookieName: cookieName,
		sessions:   sessions,
		users:      users,
		events:     events,
	}
}

// RequireAuth validates the access token and attaches the authenticated
// identity to the request context. Nothing else on the request is trusted
// as identity.
func (m *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := m.extractToken(c)
		if token == "" {
			m.events.Emit(c.Request.Context(), security.EventTokenMissing, logrus.Fields{
				"path":       c.Request.URL.Path,
				"ip":         c.ClientIP(),
				"user_agent": c.Request.UserAgent(),
			})
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "Authorization token is required",
			})
			c.Abort()
			return
		}

		ident, err := m.sessions.Validate(c.Request.Context(), token)
		if err != nil {
			logrus.WithError(err).Error("Session validation failed")
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Session validation error",
			})
			c.Abort()
			return
		}

		if ident == nil {
			m.events.Emit(c.Request.Context(), security.EventTokenInvalid, logrus.Fields{
				"path":       c.Request.URL.Path,
				"ip":         c.ClientIP(),
				"user_agent": c.Request.UserAgent(),
			})
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "Invalid or expired token",
			})
			c.Abort()
			return
		}

		currentUser, err := m.users.GetByID(c.Request.Context(), ident.UserID)
		if err != nil {
			logrus.WithError(err).WithField("user_id", ident.UserID).Error("Failed to load authenticated user")
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Session validation error",
			})
			c.Abort()
			return
		}

		c.Set(CtxUserID, ident.UserID)
		c.Set(CtxSessionID, ident.SessionID)
		c.Set(CtxUserEmail, currentUser.Email)
		c.Set(CtxUserRole, currentUser.Role)
		c.Set(CtxAccessToken, token)
		c.Set(CtxCurrentUser, currentUser)

		logrus.WithFields(logrus.Fields{
			"user_id":    ident.UserID,
			"session_id": ident.SessionID,
			"user_role":  currentUser.Role,
		}).Debug("User authenticated successfully")

		c.Next()
	}
}

// extractToken prefers the session cookie over the Authorization header:
// browser clients get a cookie scripts cannot read, while header-based API
// clients keep working.
func (m *AuthMiddleware) extractToken(c *gin.Context) string {
	if cookie, err := c.Cookie(m.cookieName); err == nil && cookie != "" {
		return cookie
	}

	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		return ""
	}

	if !strings.HasPrefix(authHeader, "Bearer ") {
		logrus.Debug("Invalid authorization header format")
		return ""
	}

	return strings.TrimPrefix(authHeader, "Bearer ")
}

// CurrentUser returns the user record attached by RequireAuth.
func CurrentUser(c *gin.Context) (*user.User, bool) {
	value, exists := c.Get(CtxCurrentUser)
	if !exists {
		return nil, false
	}
	u, ok := value.(*user.User)
	return u, ok
}
