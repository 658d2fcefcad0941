// Package server sets up the HTTP server, router, and all route definitions.
//
// This package is the wiring layer: it connects handlers, middleware, and
// routes, and owns the server lifecycle. Connections to the database, the
// session store and the message broker are opened by cmd/server and handed
// in as Dependencies; the server closes them on shutdown.
//
// DEPENDENCY FLOW:
//
//	repository.UserRepository ─┬─> service.UserService ─────> handler.UserHandler
//	                           └─> service.IdentityService ─> handler.AuthHandler
//	session.Manager ───────────┬─> auth.LoadPrincipal
//	                           └─> handler.AuthHandler
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/sakif/user-portal/internal/auth"
	"github.com/sakif/user-portal/internal/events"
	"github.com/sakif/user-portal/internal/handler"
	"github.com/sakif/user-portal/internal/middleware"
	"github.com/sakif/user-portal/internal/repository"
	"github.com/sakif/user-portal/internal/service"
	"github.com/sakif/user-portal/internal/session"
)

// Config holds server configuration.
type Config struct {
	Port int
	// ClientOrigins are the browser origins allowed by CORS (with cookies).
	ClientOrigins []string
	// Redirects are the post-login/logout browser destinations.
	Redirects handler.AuthRedirects
}

// Dependencies are the long-lived collaborators built by cmd/server.
type Dependencies struct {
	Users     repository.UserRepository
	Sessions  *session.Manager
	Passwords *auth.PasswordService

	// Google is nil when no OAuth client is configured; the Google routes
	// are then not mounted.
	Google handler.OAuthProvider
	// Events may be nil; events are then dropped.
	Events events.Publisher
	// DB backs /healthz. Optional.
	DB handler.Pinger

	// Closers are closed in order after the HTTP server has drained.
	Closers []io.Closer
}

// Server represents the HTTP server and all its dependencies.
type Server struct {
	router  *chi.Mux
	config  Config
	logger  *slog.Logger
	closers []io.Closer
}

// New wires services, handlers and routes.
func New(cfg Config, deps Dependencies, logger *slog.Logger) (*Server, error) {
	if deps.Users == nil || deps.Sessions == nil || deps.Passwords == nil {
		return nil, errors.New("server: Users, Sessions and Passwords are required")
	}

	s := &Server{
		router:  chi.NewRouter(),
		config:  cfg,
		logger:  logger,
		closers: deps.Closers,
	}
	s.setupRoutes(deps)
	return s, nil
}

// Handler exposes the router, mainly for httptest.
func (s *Server) Handler() http.Handler {
	return s.router
}

// setupRoutes configures all middleware and route handlers.
//
// ROUTE STRUCTURE:
//
//	GET    /healthz                   → health check
//	POST   /api/users                 → register (public)
//	GET    /api/users                 → list        [auth]
//	GET    /api/users/{id}            → get         [auth]
//	PUT    /api/users/{id}            → update      [auth]
//	DELETE /api/users/{id}            → delete      [auth]
//	GET    /api/auth/google           → start Google login
//	GET    /api/auth/google/callback  → finish Google login
//	POST   /api/auth/login            → local login [anonymous]
//	GET    /api/auth/user             → current user
//	GET    /api/auth/logout           → logout (JSON or redirect)
//	POST   /api/auth/logout           → logout (JSON)
//
// MIDDLEWARE ORDER MATTERS:
//  1. RequestID: assigns an id the logger picks up
//  2. RealIP: client IP from proxy headers
//  3. Logger: outside Recoverer so recovered panics are logged as 500s
//  4. Recoverer: panics become 500 instead of killing the process
//  5. CORS: answers preflights before any auth runs
//  6. LoadPrincipal (under /api): session cookie → request principal
func (s *Server) setupRoutes(deps Dependencies) {
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(middleware.Logger(s.logger))
	s.router.Use(chimiddleware.Recoverer)
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.config.ClientOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Requested-With"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	healthHandler := handler.NewHealthHandler(deps.DB, s.logger)
	s.router.Get("/healthz", healthHandler.HandleHealth)

	userService := service.NewUserService(deps.Users, deps.Passwords, deps.Events, s.logger)
	identityService := service.NewIdentityService(deps.Users, deps.Passwords, deps.Events, s.logger)

	userHandler := handler.NewUserHandler(userService, s.logger)
	authHandler := handler.NewAuthHandler(deps.Google, identityService, deps.Sessions, s.config.Redirects, s.logger)

	s.router.Route("/api", func(r chi.Router) {
		r.Use(auth.LoadPrincipal(deps.Sessions, deps.Users, s.logger))

		r.Route("/users", func(r chi.Router) {
			r.Post("/", userHandler.HandleCreate)

			r.Group(func(r chi.Router) {
				r.Use(auth.RequireAuthenticated)
				r.Get("/", userHandler.HandleList)
				r.Get("/{id}", userHandler.HandleGet)
				r.Put("/{id}", userHandler.HandleUpdate)
				r.Delete("/{id}", userHandler.HandleDelete)
			})
		})

		r.Route("/auth", func(r chi.Router) {
			if deps.Google != nil {
				r.Get("/google", authHandler.HandleGoogleLogin)
				r.Get("/google/callback", authHandler.HandleGoogleCallback)
			} else {
				s.logger.Warn("Google OAuth not configured, /api/auth/google routes disabled")
			}

			r.With(auth.RequireAnonymous).Post("/login", authHandler.HandleLogin)
			r.Get("/user", authHandler.HandleCurrentUser)
			r.Get("/logout", authHandler.HandleLogout)
			r.Post("/logout", authHandler.HandleLogoutJSON)
		})
	})
}

// Start starts the HTTP server and blocks until SIGINT/SIGTERM.
//
// GRACEFUL SHUTDOWN:
//  1. stop accepting new connections
//  2. wait up to 30s for in-flight requests
//  3. close the dependencies (database, redis, broker) in order
func (s *Server) Start() error {
	defer s.closeAll()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	serverErrors := make(chan error, 1)

	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Port),
			slog.String("url", fmt.Sprintf("http://localhost:%d", s.config.Port)),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-quit:
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}

func (s *Server) closeAll() {
	for _, c := range s.closers {
		if err := c.Close(); err != nil {
			s.logger.Error("closing dependency", slog.String("error", err.Error()))
		}
	}
}
