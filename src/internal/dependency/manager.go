package dependency

import (
	"time"

	"codecollab-auth-svc/src/clients"
	"codecollab-auth-svc/src/internal/auth"
	"codecollab-auth-svc/src/internal/cache"
	"codecollab-auth-svc/src/internal/config"
	"codecollab-auth-svc/src/internal/middleware"
	"codecollab-auth-svc/src/internal/security"
	"codecollab-auth-svc/src/internal/session"
	"codecollab-auth-svc/src/internal/token"
	"codecollab-auth-svc/src/internal/user"

	"github.com/gin-gonic/gin"
)

type Manager struct {
	Router         *gin.Engine
	Config         *config.Configuration
	Mongodb        *clients.MongoDB
	Redis          *clients.RedisClient
	RabbitMQ       *clients.RabbitMQ
	EventsClient   *clients.EventsClient
	CacheService   cache.Service
	SecuritySink   security.Sink
	LoginTracker   *security.LoginTracker
	SessionRepo    session.Repository
	SessionManager *session.Manager
	UserRepo       user.Repository
	UserService    user.Service
	UserHandler    user.Handler
	AuthHandler    auth.Handler
	AuthMiddleware *middleware.AuthMiddleware
	RBACMiddleware *middleware.RBACMiddleware
}

func NewDependencyManager(router *gin.Engine,
	mongodb *clients.MongoDB,
	redisClient *clients.RedisClient,
	rabbitMQ *clients.RabbitMQ,
	cfg *config.Configuration) *Manager {
	cacheService := cache.NewCacheService(redisClient.Client, cfg)
	eventsClient := clients.NewEventsClient(cfg, rabbitMQ.Channel)
	securitySink := security.NewSink(eventsClient)

	loginTracker := security.NewLoginTracker(
		cfg.Security.LoginMaxAttempts,
		time.Duration(cfg.Security.LoginWindowMinutes)*time.Minute,
	)

	codec := token.NewCodec(
		cfg.Security.JwtKey,
		time.Duration(cfg.Auth.AccessTokenMinutes)*time.Minute,
	)

	sessionRepo := session.NewSessionRepository(mongodb, cfg.Database.SessionCollection)
	sessionManager := session.NewManager(sessionRepo, cacheService, codec, securitySink, &cfg.Auth)

	userRepo := user.NewUserRepository(mongodb, cfg.Database.UserCollection)
	userService := user.NewUserService(userRepo, cfg)
	userHandler := user.NewHandler(cfg, userService, cacheService, sessionManager)

	authHandler := auth.NewHandler(cfg, userService, sessionManager, loginTracker, securitySink, eventsClient)

	authMiddleware := middleware.NewAuthMiddleware(
		cfg.Security.AccessTokenCookie,
		sessionManager,
		userService,
		securitySink,
	)
	rbacMiddleware := middleware.NewRBACMiddleware(securitySink)

	return &Manager{
		Router:         router,
		Config:         cfg,
		Mongodb:        mongodb,
		Redis:          redisClient,
		RabbitMQ:       rabbitMQ,
		EventsClient:   eventsClient,
		CacheService:   cacheService,
		SecuritySink:   securitySink,
		LoginTracker:   loginTracker,
		SessionRepo:    sessionRepo,
		SessionManager: sessionManager,
		UserRepo:       userRepo,
		UserService:    userService,
		UserHandler:    userHandler,
		AuthHandler:    authHandler,
		AuthMiddleware: authMiddleware,
		RBACMiddleware: rbacMiddleware,
	}
}
