package server

import (
	"time"

	"codecollab-auth-svc/src/clients"
	"codecollab-auth-svc/src/internal/dependency"
	"codecollab-auth-svc/src/internal/user"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

func SetupRoutes(deps *dependency.Manager) {
	router := deps.Router
	router.Use(enableCORS)

	setupHealthEndpoint(deps)
	setupPublicRoutes(router, deps)
	setupAuthRoutes(router, deps)
	setupAdminRoutes(router, deps)
}

func setupHealthEndpoint(deps *dependency.Manager) {
	router := deps.Router
	mongodb := deps.Mongodb
	redisClient := deps.Redis
	cfg := deps.Config

	router.GET("/health", func(c *gin.Context) {
		log.Info("Health check endpoint requested")

		mongoStatus := "ok"
		if err := mongodb.Client.Ping(c.Request.Context(), nil); err != nil {
			mongoStatus = "error: " + err.Error()
		}

		redisStatus := "ok"
		if err := redisClient.Client.Ping(c.Request.Context()).Err(); err != nil {
			redisStatus = "error: " + err.Error()
		}

		c.JSON(200, gin.H{
			"status":    "ok",
			"service":   cfg.App.Name,
			"version":   cfg.App.Version,
			"mongodb":   mongoStatus,
			"redis":     redisStatus,
			"timestamp": time.Now().UTC().Format("2006-01-02T15:04:05Z07:00"),
		})
	})

	router.GET("health/detailed", func(c *gin.Context) {
		log.Info("Detailed health check endpoint requested")

		c.JSON(200, gin.H{
			"status":  "operational",
			"service": cfg.App.Name,
			"version": cfg.App.Version,
			"components": gin.H{
				"database": gin.H{
					"mongodb": getStatus(isMongoConnected(mongodb, c)),
					"redis":   getStatus(isRedisConnected(redisClient.Client, c)),
				},
				"services": gin.H{
					"auth":    "operational",
					"session": "operational",
					"cache":   "operational",
				},
			},
		})
	})
}

func setupPublicRoutes(router *gin.Engine, deps *dependency.Manager) {
	// API status endpoint
	router.GET("/api/v1/status", func(c *gin.Context) {
		log.Info("API status requested")
		c.JSON(200, gin.H{
			"api_version": "v1",
			"status":      "operational",
			"service":     deps.Config.App.Name,
		})
	})
}

func setupAuthRoutes(router *gin.Engine, deps *dependency.Manager) {
	handler := deps.AuthHandler
	authMiddleware := deps.AuthMiddleware

	public := router.Group("/api/v1/auth")
	{
		public.POST("/register",
			setRouteName("register"),
			handler.Register)

		public.POST("/login",
			setRouteName("login"),
			handler.Login)

		public.POST("/refresh",
			setRouteName("refreshToken"),
			handler.Refresh)
	}

	protected := router.Group("/api/v1/auth")
	protected.Use(authMiddleware.RequireAuth())
	{
		protected.POST("/logout",
			setRouteName("logout"),
			handler.Logout)

		protected.PUT("/password",
			setRouteName("changePassword"),
			handler.ChangePassword)

		protected.GET("/sessions",
			setRouteName("getSessions"),
			handler.GetSessions)

		protected.DELETE("/sessions/:id",
			setRouteName("revokeSession"),
			handler.RevokeSession)
	}
}

func setupAdminRoutes(router *gin.Engine, deps *dependency.Manager) {
	authMiddleware := deps.AuthMiddleware
	rbac := deps.RBACMiddleware
	handler := deps.UserHandler

	// Apply route name FIRST, then auth middlewares
	admin := router.Group("/api/v1/admin")
	{
		admin.GET("/users",
			setRouteName("getUsersList"),
			authMiddleware.RequireAuth(),
			rbac.RequireRole(user.RoleAdmin, user.RoleModerator),
			handler.GetAllUsers)

		admin.GET("/users/stats",
			setRouteName("getUsersStats"),
			authMiddleware.RequireAuth(),
			rbac.RequireRole(user.RoleAdmin),
			handler.GetUserStats)

		admin.PATCH("/users/:id/activate",
			setRouteName("activateUser"),
			authMiddleware.RequireAuth(),
			rbac.RequirePermission([]string{user.PermUserManage}, true),
			handler.ActivateUser)

		admin.PATCH("/users/:id/deactivate",
			setRouteName("deactivateUser"),
			authMiddleware.RequireAuth(),
			rbac.RequirePermission([]string{user.PermUserManage}, true),
			handler.DeactivateUser)

		admin.PATCH("/users/:id/suspend",
			setRouteName("suspendUser"),
			authMiddleware.RequireAuth(),
			rbac.RequirePermission([]string{user.PermUserManage}, true),
			handler.SuspendUser)

		admin.PATCH("/users/:id/unsuspend",
			setRouteName("unsuspendUser"),
			authMiddleware.RequireAuth(),
			rbac.RequirePermission([]string{user.PermUserManage}, true),
			handler.UnsuspendUser)

		admin.PATCH("/users/:id/role",
			setRouteName("changeUserRole"),
			authMiddleware.RequireAuth(),
			rbac.RequirePermission([]string{user.PermRoleManage}, true),
			handler.ChangeRole)

		admin.DELETE("/users/:id/sessions",
			setRouteName("revokeUserSessions"),
			authMiddleware.RequireAuth(),
			rbac.RequirePermission([]string{user.PermSessionRevoke}, true),
			handler.RevokeUserSessions)
	}
}

func setRouteName(name string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set("route_name", name)
		c.Next()
	}
}

func isMongoConnected(mongodb *clients.MongoDB, c *gin.Context) bool {
	if err := mongodb.Client.Ping(c.Request.Context(), nil); err != nil {
		return false
	}
	return true
}

func isRedisConnected(redisClient *redis.Client, c *gin.Context) bool {
	if err := redisClient.Ping(c.Request.Context()).Err(); err != nil {
		return false
	}
	return true
}

func enableCORS(c *gin.Context) {
	c.Header("Access-Control-Allow-Origin", "*")
	c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
	c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")

	if c.Request.Method == "OPTIONS" {
		c.AbortWithStatus(204)
		return
	}

	c.Next()
}

func getStatus(b bool) string {
	if b {
		return "connected"
	}
	return "disconnected"
}
