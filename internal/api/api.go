// Package api provides the HTTP REST API server.
package api

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/good-yellow-bee/ivvboard/internal/api/auth"
	"github.com/good-yellow-bee/ivvboard/internal/api/health"
	"github.com/good-yellow-bee/ivvboard/internal/api/middleware"
	"github.com/good-yellow-bee/ivvboard/internal/export"
	"github.com/good-yellow-bee/ivvboard/internal/reporting"
	"github.com/good-yellow-bee/ivvboard/internal/storage"
	"github.com/good-yellow-bee/ivvboard/internal/watch"
)

// Config contains HTTP API server configuration.
type Config struct {
	Address           string
	JWTSecret         []byte
	TLSEnabled        bool
	TLSCertFile       string
	TLSKeyFile        string
	AccessTokenTTL    time.Duration
	RefreshTokenTTL   time.Duration
	RateLimitPerIP    int
	RateLimitPerUser  int
	LockoutThreshold  int
	LockoutDuration   time.Duration
	StreamMaxDuration time.Duration // Max lifetime of SSE and WebSocket connections
	StreamHeartbeat   time.Duration
	WSOriginPatterns  []string // Hosts allowed to open cross-origin WebSockets
	Export            export.Options
	Verbose           bool
}

// SetDefaults applies default values for missing configuration.
func (c *Config) SetDefaults() {
	if c.Address == "" {
		c.Address = ":8080"
	}
	if c.AccessTokenTTL == 0 {
		c.AccessTokenTTL = 15 * time.Minute
	}
	if c.RefreshTokenTTL == 0 {
		c.RefreshTokenTTL = 7 * 24 * time.Hour // 7 days
	}
	if c.RateLimitPerIP == 0 {
		c.RateLimitPerIP = 5 // 5 requests per minute
	}
	if c.RateLimitPerUser == 0 {
		c.RateLimitPerUser = 100 // 100 requests per minute
	}
	if c.LockoutThreshold == 0 {
		c.LockoutThreshold = 5 // 5 failed attempts
	}
	if c.LockoutDuration == 0 {
		c.LockoutDuration = 30 * time.Minute
	}
	if c.StreamMaxDuration == 0 {
		c.StreamMaxDuration = 30 * time.Minute
	}
	if c.StreamHeartbeat == 0 {
		c.StreamHeartbeat = 30 * time.Second
	}
}

// Server is the HTTP API server.
type Server struct {
	config        *Config
	storage       storage.Storage
	service       *reporting.Service
	subscriber    watch.Subscriber
	server        *http.Server
	healthHandler *health.Handler

	lockout     *auth.LockoutTracker
	ipLimiter   *middleware.RateLimiter
	userLimiter *middleware.RateLimiter
	tokens      *auth.TokenService
}

// New creates a new API server. Report and project writes go through service;
// subscriber feeds the event stream endpoints.
func New(cfg *Config, store storage.Storage, service *reporting.Service, subscriber watch.Subscriber) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if store == nil {
		return nil, fmt.Errorf("storage is required")
	}
	if service == nil {
		return nil, fmt.Errorf("reporting service is required")
	}
	if subscriber == nil {
		return nil, fmt.Errorf("event subscriber is required")
	}
	if len(cfg.JWTSecret) == 0 {
		return nil, fmt.Errorf("JWT secret is required")
	}

	cfg.SetDefaults()

	s := &Server{
		config:        cfg,
		storage:       store,
		service:       service,
		subscriber:    subscriber,
		healthHandler: health.NewHandler(),
		lockout:       auth.NewLockoutTracker(cfg.LockoutThreshold, cfg.LockoutDuration),
		ipLimiter:     middleware.NewRateLimiter(cfg.RateLimitPerIP),
		userLimiter:   middleware.NewRateLimiter(cfg.RateLimitPerUser),
	}

	router := s.setupRouter()

	s.server = &http.Server{
		Addr:        cfg.Address,
		Handler:     router,
		ReadTimeout: 15 * time.Second,
		// WriteTimeout stays disabled: event streams live up to
		// StreamMaxDuration and a global write deadline would cut them off.
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}
	if cfg.TLSEnabled {
		s.server.TLSConfig = &tls.Config{
			MinVersion: tls.VersionTLS13,
		}
	}

	return s, nil
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Tokens returns the refresh token service, for background cleanup.
func (s *Server) Tokens() *auth.TokenService {
	return s.tokens
}

// Run starts the HTTP server and blocks until context is canceled.
func (s *Server) Run(ctx context.Context) error {
	errChan := make(chan error, 1)

	go func() {
		zap.L().Info("HTTP API listening",
			zap.String("address", s.config.Address),
			zap.Bool("tls", s.config.TLSEnabled),
		)
		var err error
		if s.config.TLSEnabled {
			err = s.server.ListenAndServeTLS(s.config.TLSCertFile, s.config.TLSKeyFile)
		} else {
			err = s.server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	defer s.stop()

	select {
	case <-ctx.Done():
		zap.L().Info("shutting down HTTP API server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.server.Shutdown(shutdownCtx)
	case err := <-errChan:
		return err
	}
}

// stop releases the background goroutines of the limiters and lockout tracker.
func (s *Server) stop() {
	s.ipLimiter.Stop()
	s.userLimiter.Stop()
	s.lockout.Stop()
}

// Address returns the configured listen address.
func (s *Server) Address() string {
	return s.config.Address
}

// RegisterHealthChecker adds a health checker to the server.
func (s *Server) RegisterHealthChecker(c health.Checker) {
	if s.healthHandler != nil {
		s.healthHandler.RegisterChecker(c)
	}
}
