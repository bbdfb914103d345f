package security

import (
	"context"

	"github.com/sirupsen/logrus"
)

// Security event name constants
const (
	EventTokenMissing          = "auth_token_missing"
	EventTokenInvalid          = "auth_token_invalid"
	EventRefreshTokenNotFound  = "refresh_token_not_found"
	EventAccessDeniedRole      = "access_denied_role"
	EventAccessDeniedPerm      = "access_denied_permission"
	EventAccessDeniedOwnership = "access_denied_ownership"
	EventAccountSuspended      = "account_suspended"
	EventAccountInactive       = "account_inactive"
	EventLoginFailed           = "login_failed"
	EventLoginRateLimited      = "login_rate_limited"
)

// Sink receives one structured event per denial or anomaly. Middleware and
// the session manager call through it so the audit trail stays centralized.
type Sink interface {
	Emit(ctx context.Context, event string, fields logrus.Fields)
}

// Publisher forwards events to an external sink (the RabbitMQ client).
type Publisher interface {
	PublishSecurityEvent(ctx context.Context, event string, fields map[string]interface{}) error
}

type logSink struct {
	publisher Publisher
}

// NewSink builds the default sink: a structured warn-level log entry plus a
// best-effort publish to the security queue. The publisher may be nil.
func NewSink(publisher Publisher) Sink {
	return &logSink{publisher: publisher}
}

func (s *logSink) Emit(ctx context.Context, event string, fields logrus.Fields) {
	logrus.WithFields(fields).WithField("security_event", event).Warn("Security event")

	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishSecurityEvent(ctx, event, fields); err != nil {
		logrus.WithError(err).WithField("security_event", event).Error("Failed to publish security event")
	}
}
