package user

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"codecollab-auth-svc/src/internal/cache"
	"codecollab-auth-svc/src/internal/config"
	"codecollab-auth-svc/src/internal/models"
	"codecollab-auth-svc/src/internal/session"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

type Handler interface {
	GetAllUsers(c *gin.Context)
	GetUserStats(c *gin.Context)
	ActivateUser(c *gin.Context)
	DeactivateUser(c *gin.Context)
	SuspendUser(c *gin.Context)
	UnsuspendUser(c *gin.Context)
	ChangeRole(c *gin.Context)
	RevokeUserSessions(c *gin.Context)
}

type handler struct {
	config       *config.Configuration
	service      Service
	cacheService cache.Service
	sessions     *session.Manager
}

func NewHandler(cfg *config.Configuration, service Service, cacheService cache.Service, sessions *session.Manager) Handler {
	return &handler{
		config:       cfg,
		service:      service,
		cacheService: cacheService,
		sessions:     sessions,
	}
}

func (h *handler) GetAllUsers(c *gin.Context) {
	ctx, cancel := h.requestContext(c)
	defer cancel()

	req := &GetAllUsersRequest{
		Page:   parseIntParam(c, "page", 1),
		Limit:  parseIntParam(c, "limit", 20),
		Role:   c.Query("role"),
		Search: c.Query("search"),
	}

	response, err := h.service.GetAllUsers(ctx, req)
	if err != nil {
		if errors.Is(err, models.ErrInvalidRole) {
			h.sendErrorResponse(c, http.StatusBadRequest, "Invalid role filter", err.Error())
			return
		}
		logrus.WithError(err).Error("Failed to get all users")
		h.sendErrorResponse(c, http.StatusInternalServerError, "Failed to retrieve users", err.Error())
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    response,
		"message": "Users retrieved successfully",
	})
}

func (h *handler) GetUserStats(c *gin.Context) {
	ctx, cancel := h.requestContext(c)
	defer cancel()

	userStats, err := h.cacheService.GetUserStats(ctx)
	if err == nil && userStats != nil {
		c.JSON(http.StatusOK, gin.H{
			"success": true,
			"data":    userStats,
			"message": "User statistics retrieved successfully (from cache)",
		})
		return
	}

	stats, err := h.service.GetUserStats(ctx)
	if err != nil {
		logrus.WithError(err).Error("Failed to get user statistics")
		h.sendErrorResponse(c, http.StatusInternalServerError, "Failed to retrieve user statistics", err.Error())
		return
	}

	if err := h.cacheService.SaveUserStats(ctx, stats); err != nil {
		logrus.WithError(err).Warn("Failed to cache user statistics")
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    stats,
		"message": "User statistics retrieved successfully",
	})
}

func (h *handler) ActivateUser(c *gin.Context) {
	ctx, cancel := h.requestContext(c)
	defer cancel()

	userID := c.Param("id")
	if err := h.service.ActivateUser(ctx, userID); err != nil {
		h.handleUpdateError(c, userID, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "User activated successfully",
	})
}

func (h *handler) DeactivateUser(c *gin.Context) {
	ctx, cancel := h.requestContext(c)
	defer cancel()

	userID := c.Param("id")
	if err := h.service.DeactivateUser(ctx, userID); err != nil {
		h.handleUpdateError(c, userID, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "User deactivated successfully",
	})
}

type suspendRequest struct {
	Until  *time.Time `json:"until"`
	Reason string     `json:"reason" binding:"required"`
}

func (h *handler) SuspendUser(c *gin.Context) {
	ctx, cancel := h.requestContext(c)
	defer cancel()

	userID := c.Param("id")

	var req suspendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.sendErrorResponse(c, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}

	if err := h.service.SuspendUser(ctx, userID, req.Until, req.Reason); err != nil {
		h.handleUpdateError(c, userID, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "User suspended successfully",
	})
}

func (h *handler) UnsuspendUser(c *gin.Context) {
	ctx, cancel := h.requestContext(c)
	defer cancel()

	userID := c.Param("id")
	if err := h.service.UnsuspendUser(ctx, userID); err != nil {
		h.handleUpdateError(c, userID, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "User unsuspended successfully",
	})
}

type changeRoleRequest struct {
	Role        string   `json:"role" binding:"required"`
	Permissions []string `json:"permissions"`
}

func (h *handler) ChangeRole(c *gin.Context) {
	ctx, cancel := h.requestContext(c)
	defer cancel()

	userID := c.Param("id")

	var req changeRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.sendErrorResponse(c, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}

	if err := h.service.ChangeRole(ctx, userID, req.Role, req.Permissions); err != nil {
		if errors.Is(err, models.ErrInvalidRole) {
			h.sendErrorResponse(c, http.StatusBadRequest, "Invalid role", err.Error())
			return
		}
		h.handleUpdateError(c, userID, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "User role updated successfully",
	})
}

func (h *handler) RevokeUserSessions(c *gin.Context) {
	ctx, cancel := h.requestContext(c)
	defer cancel()

	userID := c.Param("id")

	count, err := h.sessions.RevokeAllForUser(ctx, userID, session.ReasonAdminRevoke)
	if err != nil {
		logrus.WithError(err).WithField("user_id", userID).Error("Failed to revoke user sessions")
		h.sendErrorResponse(c, http.StatusInternalServerError, "Failed to revoke user sessions", err.Error())
		return
	}

	adminID, _ := c.Get("user_id")
	logrus.WithFields(logrus.Fields{
		"admin_user_id": adminID,
		"user_id":       userID,
		"count":         count,
	}).Info("Admin revoked user sessions")

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    gin.H{"revokedCount": count},
		"message": "User sessions revoked successfully",
	})
}

func (h *handler) requestContext(c *gin.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request.Context(), time.Duration(h.config.App.Timeout)*time.Second)
}

func (h *handler) handleUpdateError(c *gin.Context, userID string, err error) {
	logrus.WithError(err).WithField("user_id", userID).Error("Failed to update user")

	switch {
	case errors.Is(err, models.ErrUserNotFound):
		h.sendErrorResponse(c, http.StatusNotFound, "User not found", "No user found with the provided ID")
	case errors.Is(err, models.ErrInvalidParams):
		h.sendErrorResponse(c, http.StatusBadRequest, "Invalid user ID", "Please provide a valid user ID")
	default:
		h.sendErrorResponse(c, http.StatusInternalServerError, "Failed to update user", err.Error())
	}
}

func (h *handler) sendErrorResponse(c *gin.Context, statusCode int, errorMsg, message string) {
	c.JSON(statusCode, gin.H{
		"success": false,
		"error":   errorMsg,
		"message": message,
	})
}

func parseIntParam(c *gin.Context, param string, defaultValue int) int {
	value := c.Query(param)
	if value == "" {
		return defaultValue
	}

	parsed, err := strconv.Atoi(value)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"param": param,
			"value": value,
		}).Warn("Invalid integer parameter, using default")
		return defaultValue
	}
	return parsed
}
