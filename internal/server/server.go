// Package server wires the application together: database, services,
// handlers, middleware, and routes. It is the composition root; main.go
// only loads config and calls Start.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/acorvin/gamenight/internal/auth"
	"github.com/acorvin/gamenight/internal/handler"
	"github.com/acorvin/gamenight/internal/metrics"
	"github.com/acorvin/gamenight/internal/middleware"
	sqliteRepo "github.com/acorvin/gamenight/internal/repository/sqlite"
	"github.com/acorvin/gamenight/internal/service"
)

// Config holds server configuration, loaded from the environment by
// main.go.
type Config struct {
	Port      int
	DBPath    string
	JWTSecret string
}

// Server owns the router and the database connection. The connection is
// closed during graceful shutdown so the WAL is flushed before exit.
type Server struct {
	router *chi.Mux
	config Config
	logger *slog.Logger
	db     *sqliteRepo.DB
}

// New opens the database, assembles the dependency chain, seeds the
// bootstrap admin, and registers all routes.
func New(cfg Config, logger *slog.Logger) (*Server, error) {
	db, err := sqliteRepo.New(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Server{
		router: chi.NewRouter(),
		config: cfg,
		logger: logger,
		db:     db,
	}

	if err := s.setupRoutes(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Server) setupRoutes() error {
	tokens, err := auth.NewTokenService(s.config.JWTSecret)
	if err != nil {
		return fmt.Errorf("creating token service: %w", err)
	}
	passwords := auth.NewPasswordService()
	registry := metrics.NewRegistry()

	// Handlers see services, services see repository interfaces; the
	// concrete sqlite.DB satisfies all of them.
	pollService := service.NewPollService(s.db, s.db, registry, s.logger)
	authService := service.NewAuthService(s.db, passwords, tokens, registry, s.logger)
	userService := service.NewUserService(s.db, passwords, s.logger)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := authService.EnsureDefaultAdmin(ctx); err != nil {
		return fmt.Errorf("seeding admin: %w", err)
	}

	authHandler := handler.NewAuthHandler(authService, userService)
	pollHandler := handler.NewPollHandler(pollService)
	userHandler := handler.NewUserHandler(userService)

	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(chimiddleware.Recoverer)
	s.router.Use(middleware.Logger(s.logger))

	s.router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})
	s.router.Method(http.MethodGet, "/metrics", registry.Handler(s.db, s.logger))

	s.router.Route("/api", func(r chi.Router) {
		r.Post("/register", authHandler.Register)
		r.Post("/login", authHandler.Login)
		r.Post("/logout", authHandler.Logout)

		// Everything below requires a valid session.
		r.Group(func(r chi.Router) {
			r.Use(auth.RequireAuth(tokens, s.db))

			r.Get("/me", authHandler.Me)
			r.Put("/password", authHandler.ChangePassword)

			r.Get("/polls", pollHandler.List)
			r.Post("/polls", pollHandler.Create)
			r.Get("/polls/{id}", pollHandler.Get)
			r.Put("/polls/{id}", pollHandler.Update)
			r.Delete("/polls/{id}", pollHandler.Delete)
			r.Post("/polls/{id}/vote", pollHandler.Vote)
			r.Get("/polls/{id}/results", pollHandler.Results)
			r.Get("/polls/{id}/voters", pollHandler.Voters)
			r.Post("/polls/{id}/options", pollHandler.AddOption)

			r.Route("/admin", func(r chi.Router) {
				r.Use(auth.RequireAdmin)

				r.Get("/users", userHandler.List)
				r.Post("/users", userHandler.Create)
				r.Post("/users/{id}/role", userHandler.ToggleRole)
			})
		})
	})

	return nil
}

// Start runs the server until SIGINT or SIGTERM, then drains in-flight
// requests for up to 30 seconds and closes the database.
func (s *Server) Start() error {
	defer s.db.Close()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server starting", slog.Int("port", s.config.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case sig := <-quit:
		s.logger.Info("shutting down", slog.String("signal", sig.String()))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("forced shutdown: %w", err)
	}

	s.logger.Info("server stopped")
	return nil
}

// Router exposes the configured router for tests.
func (s *Server) Router() http.Handler {
	return s.router
}
