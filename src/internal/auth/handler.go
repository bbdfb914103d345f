package auth

import (
	"context"
	"errors"
	"net/http"

	"codecollab-auth-svc/src/internal/config"
	"codecollab-auth-svc/src/internal/middleware"
	"codecollab-auth-svc/src/internal/models"
	"codecollab-auth-svc/src/internal/security"
	"codecollab-auth-svc/src/internal/session"
	"codecollab-auth-svc/src/internal/user"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// Mailer publishes outbound email messages; delivery happens elsewhere.
type Mailer interface {
	SendEmail(ctx context.Context, to, template string, data map[string]string) error
}

type Handler interface {
	Register(c *gin.Context)
	Login(c *gin.Context)
	Refresh(c *gin.Context)
	Logout(c *gin.Context)
	ChangePassword(c *gin.Context)
	GetSessions(c *gin.Context)
	RevokeSession(c *gin.Context)
}

type handler struct {
	config   *config.Configuration
	users    user.Service
	sessions *session.Manager
	tracker  *security.LoginTracker
	events   security.Sink
	mailer   Mailer
}

func NewHandler(cfg *config.Configuration, users user.Service, sessions *session.Manager,
	tracker *security.LoginTracker, events security.Sink, mailer Mailer) Handler {
	return &handler{
		config:   cfg,
		users:    users,
		sessions: sessions,
		tracker:  tracker,
		events:   events,
		mailer:   mailer,
	}
}

// Register creates an account and logs the new user straight in.
func (h *handler) Register(c *gin.Context) {
	var req user.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.sendErrorResponse(c, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}

	newUser, err := h.users.Register(c.Request.Context(), &req)
	if err != nil {
		if errors.Is(err, models.ErrEmailTaken) {
			h.sendErrorResponse(c, http.StatusConflict, "Email already registered", "An account with this email already exists")
			return
		}
		logrus.WithError(err).Error("Registration failed")
		h.sendErrorResponse(c, http.StatusInternalServerError, "Registration failed", err.Error())
		return
	}

	issued, err := h.sessions.Create(c.Request.Context(), newUser.ID.Hex(), h.deviceInfo(c))
	if err != nil {
		logrus.WithError(err).Error("Failed to create session after registration")
		h.sendErrorResponse(c, http.StatusInternalServerError, "Registration failed", err.Error())
		return
	}

	if err := h.mailer.SendEmail(c.Request.Context(), newUser.Email, models.EmailTemplateWelcome, map[string]string{
		"firstName": newUser.FirstName,
	}); err != nil {
		logrus.WithError(err).Warn("Failed to queue welcome email")
	}

	h.setAccessCookie(c, issued.AccessToken)

	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"data": gin.H{
			"user":   newUser.ToProfile(),
			"tokens": issued,
		},
		"message": "Registration successful",
	})
}

type loginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

func (h *handler) Login(c *gin.Context) {
	ip := c.ClientIP()

	if h.tracker.Blocked(ip) {
		h.events.Emit(c.Request.Context(), security.EventLoginRateLimited, logrus.Fields{
			"ip":         ip,
			"user_agent": c.Request.UserAgent(),
		})
		h.sendErrorResponse(c, http.StatusTooManyRequests, "Too many failed attempts", "Please try again later")
		return
	}

	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.sendErrorResponse(c, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}

	authedUser, err := h.users.Authenticate(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, models.ErrInvalidCredentials) {
			h.tracker.Fail(ip)
			h.events.Emit(c.Request.Context(), security.EventLoginFailed, logrus.Fields{
				"ip":         ip,
				"email":      req.Email,
				"user_agent": c.Request.UserAgent(),
			})
			h.sendErrorResponse(c, http.StatusUnauthorized, "Invalid credentials", "Email or password is incorrect")
			return
		}
		logrus.WithError(err).Error("Login failed")
		h.sendErrorResponse(c, http.StatusInternalServerError, "Login failed", err.Error())
		return
	}

	h.tracker.Reset(ip)

	issued, err := h.sessions.Create(c.Request.Context(), authedUser.ID.Hex(), h.deviceInfo(c))
	if err != nil {
		logrus.WithError(err).Error("Failed to create session")
		h.sendErrorResponse(c, http.StatusInternalServerError, "Login failed", err.Error())
		return
	}

	h.setAccessCookie(c, issued.AccessToken)

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data": gin.H{
			"user":   authedUser.ToProfile(),
			"tokens": issued,
		},
		"message": "Login successful",
	})
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken" binding:"required"`
}

func (h *handler) Refresh(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.sendErrorResponse(c, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}

	issued, err := h.sessions.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		if errors.Is(err, models.ErrSessionNotFound) {
			h.sendErrorResponse(c, http.StatusUnauthorized, "Invalid refresh token", "Session expired - please login again")
			return
		}
		logrus.WithError(err).Error("Session refresh failed")
		h.sendErrorResponse(c, http.StatusInternalServerError, "Refresh failed", err.Error())
		return
	}

	h.setAccessCookie(c, issued.AccessToken)

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    issued,
		"message": "Token refreshed successfully",
	})
}

func (h *handler) Logout(c *gin.Context) {
	sessionID := c.GetString(middleware.CtxSessionID)

	if err := h.sessions.Revoke(c.Request.Context(), sessionID, session.ReasonLogout); err != nil &&
		!errors.Is(err, models.ErrSessionNotFound) {
		logrus.WithError(err).WithField("session_id", sessionID).Error("Logout failed")
		h.sendErrorResponse(c, http.StatusInternalServerError, "Logout failed", err.Error())
		return
	}

	h.clearAccessCookie(c)

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Logged out successfully",
	})
}

type changePasswordRequest struct {
	OldPassword string `json:"oldPassword" binding:"required"`
	NewPassword string `json:"newPassword" binding:"required,min=8"`
}

// ChangePassword re-hashes the credential, revokes every session for the
// user and issues a fresh one for the current device.
func (h *handler) ChangePassword(c *gin.Context) {
	userID := c.GetString(middleware.CtxUserID)
	email := c.GetString(middleware.CtxUserEmail)

	var req changePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.sendErrorResponse(c, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}

	if err := h.users.ChangePassword(c.Request.Context(), userID, req.OldPassword, req.NewPassword); err != nil {
		if errors.Is(err, models.ErrInvalidCredentials) {
			h.sendErrorResponse(c, http.StatusUnauthorized, "Invalid credentials", "Current password is incorrect")
			return
		}
		logrus.WithError(err).Error("Password change failed")
		h.sendErrorResponse(c, http.StatusInternalServerError, "Password change failed", err.Error())
		return
	}

	if _, err := h.sessions.RevokeAllForUser(c.Request.Context(), userID, session.ReasonPasswordChange); err != nil {
		logrus.WithError(err).Error("Failed to revoke sessions after password change")
		h.sendErrorResponse(c, http.StatusInternalServerError, "Password change failed", err.Error())
		return
	}

	issued, err := h.sessions.Create(c.Request.Context(), userID, h.deviceInfo(c))
	if err != nil {
		logrus.WithError(err).Error("Failed to create session after password change")
		h.sendErrorResponse(c, http.StatusInternalServerError, "Password change failed", err.Error())
		return
	}

	if err := h.mailer.SendEmail(c.Request.Context(), email, models.EmailTemplatePasswordChanged, nil); err != nil {
		logrus.WithError(err).Warn("Failed to queue password-changed email")
	}

	h.setAccessCookie(c, issued.AccessToken)

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    gin.H{"tokens": issued},
		"message": "Password changed successfully",
	})
}

// GetSessions lists the caller's active sessions, newest activity first.
func (h *handler) GetSessions(c *gin.Context) {
	userID := c.GetString(middleware.CtxUserID)
	currentSessionID := c.GetString(middleware.CtxSessionID)

	sessions, err := h.sessions.GetUserSessions(c.Request.Context(), userID)
	if err != nil {
		logrus.WithError(err).Error("Failed to get user sessions")
		h.sendErrorResponse(c, http.StatusInternalServerError, "Failed to retrieve sessions", err.Error())
		return
	}

	type sessionView struct {
		*session.Session
		Current bool `json:"current"`
	}

	views := make([]sessionView, len(sessions))
	for i, s := range sessions {
		views[i] = sessionView{Session: s, Current: s.SessionID == currentSessionID}
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    gin.H{"sessions": views},
		"message": "Sessions retrieved successfully",
	})
}

// RevokeSession terminates one of the caller's own sessions.
func (h *handler) RevokeSession(c *gin.Context) {
	userID := c.GetString(middleware.CtxUserID)
	sessionID := c.Param("id")

	sessions, err := h.sessions.GetUserSessions(c.Request.Context(), userID)
	if err != nil {
		logrus.WithError(err).Error("Failed to get user sessions")
		h.sendErrorResponse(c, http.StatusInternalServerError, "Failed to revoke session", err.Error())
		return
	}

	owned := false
	for _, s := range sessions {
		if s.SessionID == sessionID {
			owned = true
			break
		}
	}
	if !owned {
		h.sendErrorResponse(c, http.StatusNotFound, "Session not found", "No active session found with the provided ID")
		return
	}

	if err := h.sessions.Revoke(c.Request.Context(), sessionID, session.ReasonLogout); err != nil {
		logrus.WithError(err).WithField("session_id", sessionID).Error("Failed to revoke session")
		h.sendErrorResponse(c, http.StatusInternalServerError, "Failed to revoke session", err.Error())
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Session revoked successfully",
	})
}

func (h *handler) deviceInfo(c *gin.Context) session.DeviceInfo {
	return session.DeviceInfo{
		UserAgent: c.Request.UserAgent(),
		IPAddress: c.ClientIP(),
	}
}

func (h *handler) setAccessCookie(c *gin.Context, token string) {
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(
		h.config.Security.AccessTokenCookie,
		token,
		h.config.Auth.AccessTokenMinutes*60,
		"/",
		h.config.Security.CookieDomain,
		h.config.Security.CookieSecure,
		true, // httpOnly
	)
}

func (h *handler) clearAccessCookie(c *gin.Context) {
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(
		h.config.Security.AccessTokenCookie,
		"",
		-1,
		"/",
		h.config.Security.CookieDomain,
		h.config.Security.CookieSecure,
		true,
	)
}

func (h *handler) sendErrorResponse(c *gin.Context, statusCode int, errorMsg, message string) {
	c.JSON(statusCode, gin.H{
		"success": false,
		"error":   errorMsg,
		"message": message,
	})
}
