package session

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Session represents one authenticated device/browser login.
type Session struct {
	ID            primitive.ObjectID `json:"-" bson:"_id,omitempty"`
	SessionID     string             `json:"sessionId" bson:"session_id"`
	UserID        string             `json:"userId" bson:"user_id"`
	AccessToken   string             `json:"-" bson:"access_token,omitempty"`
	RefreshToken  string             `json:"-" bson:"refresh_token,omitempty"`
	IsActive      bool               `json:"isActive" bson:"is_active"`
	UserAgent     string             `json:"userAgent" bson:"user_agent"`
	IPAddress     string             `json:"ipAddress" bson:"ip_address"`
	Platform      string             `json:"platform" bson:"platform"`
	Browser       string             `json:"browser" bson:"browser"`
	CreatedAt     time.Time          `json:"createdAt" bson:"created_at"`
	LastActivity  time.Time          `json:"lastActivity" bson:"last_activity"`
	ExpiresAt     time.Time          `json:"expiresAt" bson:"expires_at"`
	RevokedAt     *time.Time         `json:"-" bson:"revoked_at,omitempty"`
	RevokedReason string             `json:"-" bson:"revoked_reason,omitempty"`
}

// Revocation reason constants
const (
	ReasonLogout          = "logout"
	ReasonPasswordChange  = "password_change"
	ReasonAdminRevoke     = "admin_revoke"
	ReasonSecurityBreach  = "security_breach"
	ReasonExpired         = "expired"
	ReasonConcurrentLimit = "concurrent_limit"
)

// IsExpired reports whether the refresh lifetime boundary has passed.
func (s *Session) IsExpired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

// IsValid reports whether the session can still authenticate requests.
func (s *Session) IsValid(now time.Time) bool {
	return s.IsActive && s.RevokedAt == nil && !s.IsExpired(now)
}

// Identity is the authenticated identity resolved from an access token.
type Identity struct {
	UserID    string
	SessionID string
}

// Issued is returned when a session is created or refreshed.
type Issued struct {
	SessionID        string `json:"sessionId,omitempty"`
	AccessToken      string `json:"accessToken"`
	RefreshToken     string `json:"refreshToken,omitempty"`
	ExpiresIn        int64  `json:"expiresIn"`
	RefreshExpiresIn int64  `json:"refreshExpiresIn,omitempty"`
}
