package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/good-yellow-bee/ivvboard/internal/api/auth"
	"github.com/good-yellow-bee/ivvboard/internal/api/middleware"
	"github.com/good-yellow-bee/ivvboard/internal/api/projects"
	"github.com/good-yellow-bee/ivvboard/internal/api/reports"
	"github.com/good-yellow-bee/ivvboard/internal/api/respond"
	"github.com/good-yellow-bee/ivvboard/internal/api/stream"
	"github.com/good-yellow-bee/ivvboard/internal/api/users"
)

// setupRouter creates and configures the chi router with all routes.
func (s *Server) setupRouter() *chi.Mux {
	r := chi.NewRouter()

	jwtService := auth.NewJWTService(s.config.JWTSecret, s.config.AccessTokenTTL)
	authHandler := auth.NewHandler(s.storage, jwtService, s.lockout, s.config.RefreshTokenTTL)
	s.tokens = authHandler.Tokens()

	userHandler := users.NewHandler(s.storage)
	projectHandler := projects.NewHandler(s.service)
	reportHandler := reports.NewHandler(s.service, s.config.Export)
	streamHandler := stream.NewHandler(s.subscriber, s.storage.Projects(), stream.Config{
		Heartbeat:      s.config.StreamHeartbeat,
		MaxDuration:    s.config.StreamMaxDuration,
		OriginPatterns: s.config.WSOriginPatterns,
	})

	authenticated := []func(http.Handler) http.Handler{
		middleware.JWTAuth(jwtService),
		middleware.LoadUser(s.storage.Users()),
	}
	projectAccess := middleware.RequireProjectAccess(s.storage.Projects())

	// Global middleware
	r.Use(middleware.RequestLogger(s.config.Verbose))
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.Recoverer)
	r.Use(middleware.PrometheusMiddleware)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		respond.Error(w, http.StatusNotFound, respond.CodeNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		respond.Error(w, http.StatusMethodNotAllowed, respond.CodeMethodNotAllowed, "method not allowed")
	})

	r.Route("/api/v1", func(r chi.Router) {
		// Public project directory
		r.Route("/public/projects", func(r chi.Router) {
			r.Use(middleware.RateLimitByIP(s.userLimiter))
			r.Get("/", projectHandler.PublicList)
			r.Get("/{id}", projectHandler.PublicGet)
		})

		r.Route("/auth", func(r chi.Router) {
			r.Group(func(r chi.Router) {
				r.Use(middleware.RateLimitByIP(s.ipLimiter))
				r.Post("/register", authHandler.Register)
				r.Post("/login", authHandler.Login)
				r.Post("/refresh", authHandler.Refresh)
			})

			r.Group(func(r chi.Router) {
				r.Use(middleware.JWTAuth(jwtService))
				r.Post("/logout", authHandler.Logout)
			})
		})

		r.Route("/users", func(r chi.Router) {
			r.Use(authenticated...)
			r.Use(middleware.RateLimitByUser(s.userLimiter))

			// Any signed-in account, pending ones included
			r.Get("/me", userHandler.GetCurrentUser)
			r.Put("/me/password", userHandler.ChangePassword)

			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireETS)
				r.Get("/", userHandler.List)
				r.Post("/", userHandler.Create)
				r.Get("/{id}", userHandler.GetByID)
				r.Put("/{id}", userHandler.Update)
				r.Delete("/{id}", userHandler.Delete)
				r.Put("/{id}/approval", userHandler.SetApproval)
			})
		})

		r.Route("/projects", func(r chi.Router) {
			// Event stream; browsers pass the token as a query parameter
			r.Group(func(r chi.Router) {
				r.Use(middleware.QueryToken)
				r.Use(authenticated...)
				r.Use(middleware.RequireStaffOrVendor)
				r.Use(projectAccess)
				r.Get("/{id}/events", streamHandler.Events)
			})

			r.Group(func(r chi.Router) {
				r.Use(authenticated...)
				r.Use(middleware.RateLimitByUser(s.userLimiter))
				r.Use(middleware.RequireStaffOrVendor)

				r.Get("/", projectHandler.List)
				r.With(projectAccess).Get("/{id}", projectHandler.GetByID)

				r.Group(func(r chi.Router) {
					r.Use(middleware.RequireETS)
					r.Post("/", projectHandler.Create)
					r.Put("/{id}", projectHandler.Update)
					r.Delete("/{id}", projectHandler.Delete)
					r.Put("/{id}/vendor", projectHandler.AssignVendor)
				})

				// Reports: ets and the assigned vendor
				r.Route("/{id}/reports", func(r chi.Router) {
					r.Use(projectAccess)
					r.Get("/", reportHandler.List)
					r.Post("/", reportHandler.Submit)
					r.Get("/{reportId}", reportHandler.Get)
					r.Put("/{reportId}", reportHandler.Update)
					r.Delete("/{reportId}", reportHandler.Delete)
					r.Get("/{reportId}/export", reportHandler.Export)
				})
			})
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.QueryToken)
			r.Use(authenticated...)
			r.Use(middleware.RequireStaffOrVendor)
			r.Get("/ws", streamHandler.WebSocket)
		})
	})

	// Health checks (public, no rate limit)
	r.Get("/health", s.healthHandler.Health)
	r.Get("/health/live", s.healthHandler.Live)
	r.Get("/health/ready", s.healthHandler.Ready)

	return r
}
