package server

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"codecollab-auth-svc/src/clients"
	"codecollab-auth-svc/src/internal/config"
	"codecollab-auth-svc/src/internal/dependency"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

var log = logrus.StandardLogger()

// Server owns the HTTP listener, the background maintenance loop and the
// lifecycle of every external client connection.
type Server struct {
	cfg  *config.Configuration
	deps *dependency.Manager
	http *http.Server
}

func New(cfg *config.Configuration) (*Server, error) {
	mongodb, err := clients.NewMongoDB(&cfg.Database)
	if err != nil {
		return nil, err
	}

	redisClient, err := clients.NewRedisClient(&cfg.Redis)
	if err != nil {
		return nil, err
	}

	rabbitMQ, err := clients.NewRabbitMQ(&cfg.Queue)
	if err != nil {
		return nil, err
	}
	if err := rabbitMQ.SetupQueues(); err != nil {
		return nil, err
	}

	if cfg.Server.Mode == gin.ReleaseMode {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.Default()

	deps := dependency.NewDependencyManager(router, mongodb, redisClient, rabbitMQ, cfg)

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Database.Timeout)*time.Second)
	defer cancel()
	if err := deps.SessionRepo.EnsureIndexes(ctx); err != nil {
		return nil, err
	}
	if err := deps.UserRepo.EnsureIndexes(ctx); err != nil {
		return nil, err
	}

	SetupRoutes(deps)

	return &Server{
		cfg:  cfg,
		deps: deps,
		http: &http.Server{
			Addr:         ":" + cfg.Server.Port,
			Handler:      router,
			ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
			WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
			IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
		},
	}, nil
}

// Start runs the server until SIGINT/SIGTERM, then shuts down gracefully.
func (s *Server) Start() error {
	stopCleanup := s.startCleanupLoop()
	defer stopCleanup()

	errCh := make(chan error, 1)
	go func() {
		log.Infof("Listening on %s", s.http.Addr)
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-quit:
		log.Infof("Received signal %s, shutting down", sig)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(s.cfg.App.Timeout)*time.Second)
	defer cancel()

	if err := s.http.Shutdown(ctx); err != nil {
		log.WithError(err).Error("HTTP server shutdown failed")
	}

	s.closeClients()
	log.Info("Server stopped")
	return nil
}

// startCleanupLoop runs the periodic session sweep and login-tracker sweep.
func (s *Server) startCleanupLoop() func() {
	interval := time.Duration(s.cfg.Auth.CleanupIntervalMinutes) * time.Minute
	ticker := time.NewTicker(interval)
	done := make(chan struct{})

	go func() {
		for {
			select {
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), time.Duration(s.cfg.Database.Timeout)*time.Second)
				if _, err := s.deps.SessionManager.CleanupExpired(ctx); err != nil {
					log.WithError(err).Error("Session cleanup failed")
				}
				cancel()

				s.deps.LoginTracker.Sweep()
			case <-done:
				ticker.Stop()
				return
			}
		}
	}()

	return func() { close(done) }
}

func (s *Server) closeClients() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(s.cfg.App.Timeout)*time.Second)
	defer cancel()

	if err := s.deps.Mongodb.Close(ctx); err != nil {
		log.WithError(err).Error("Failed to close MongoDB connection")
	}
	if err := s.deps.Redis.Close(); err != nil {
		log.WithError(err).Error("Failed to close Redis connection")
	}
	if err := s.deps.RabbitMQ.Close(); err != nil {
		log.WithError(err).Error("Failed to close RabbitMQ connection")
	}
}
