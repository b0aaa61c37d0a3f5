// Package server wires the application together and runs the HTTP server.
//
// COMPOSITION ROOT:
// Every dependency is built here, once, in New:
//
//	config → storage (sqlite | memory)
//	       → IdentityStore (bcrypt) + TaskStore
//	       → TokenService
//	       → handlers → chi routes
//	       → reminder.Scheduler
//
// Handlers never construct their own dependencies, and the stores never
// know they are behind HTTP.
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
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/sakif/task-master/internal/auth"
	"github.com/sakif/task-master/internal/config"
	"github.com/sakif/task-master/internal/handler"
	"github.com/sakif/task-master/internal/middleware"
	"github.com/sakif/task-master/internal/reminder"
	"github.com/sakif/task-master/internal/repository"
	"github.com/sakif/task-master/internal/repository/memory"
	sqliteRepo "github.com/sakif/task-master/internal/repository/sqlite"
	"github.com/sakif/task-master/internal/service"
)

// Server owns the router, the stores and every resource that must be
// released on shutdown.
type Server struct {
	router    *chi.Mux
	config    *config.Config
	logger    *slog.Logger
	closer    io.Closer // storage backend, nil for memory
	identity  *service.IdentityStore
	tasks     *service.TaskStore
	tokens    *auth.TokenService
	scheduler *reminder.Scheduler
}

// New builds the full dependency graph. If the persisted session names a
// user, the Task Store starts on that user's partition, so a restart keeps
// the user logged in.
func New(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	kv, closer, err := openStorage(cfg)
	if err != nil {
		return nil, err
	}

	s := &Server{
		router: chi.NewRouter(),
		config: cfg,
		logger: logger,
		closer: closer,
	}

	if err := s.build(kv); err != nil {
		s.closeStorage()
		return nil, err
	}
	return s, nil
}

func (s *Server) build(kv repository.KeyValueStore) error {
	ctx := context.Background()

	hasher, err := auth.NewPasswordServiceWithCost(s.config.BcryptCost)
	if err != nil {
		return fmt.Errorf("creating password service: %w", err)
	}

	s.identity, err = service.NewIdentityStore(ctx, kv, hasher, s.logger)
	if err != nil {
		return fmt.Errorf("loading identity store: %w", err)
	}

	s.tasks = service.NewTaskStore(kv, s.logger)
	if current, ok := s.identity.Current(); ok {
		if err := s.tasks.SwitchUser(ctx, current.ID); err != nil {
			return fmt.Errorf("restoring session for %s: %w", current.ID, err)
		}
		s.logger.Info("session restored", slog.String("userID", current.ID))
	}

	s.tokens, err = auth.NewTokenService(s.config.JWTSecret, auth.DefaultTokenTTL)
	if err != nil {
		return fmt.Errorf("creating token service: %w", err)
	}

	s.scheduler, err = reminder.NewScheduler(s.tasks,
		s.config.ReminderDelay, s.config.ReminderInterval, nil, s.logger)
	if err != nil {
		return fmt.Errorf("creating reminder scheduler: %w", err)
	}

	s.setupRoutes()
	return nil
}

// openStorage returns the configured KeyValueStore and, for backends that
// hold resources, the Closer that releases them.
func openStorage(cfg *config.Config) (repository.KeyValueStore, io.Closer, error) {
	switch cfg.Storage {
	case config.StorageMemory:
		return memory.New(), nil, nil

	case config.StorageSQLite:
		if cfg.DBPath != ":memory:" {
			if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
				return nil, nil, fmt.Errorf("creating database directory: %w", err)
			}
		}
		db, err := sqliteRepo.New(cfg.DBPath)
		if err != nil {
			return nil, nil, fmt.Errorf("opening database: %w", err)
		}
		return db, db, nil

	default:
		return nil, nil, fmt.Errorf("unknown storage %q", cfg.Storage)
	}
}

// setupRoutes configures middleware and routes.
//
// ROUTES:
//
//	POST   /auth/register             → register + log in
//	POST   /auth/login                → log in
//	POST   /auth/logout               → log out
//	GET    /auth/lookup?email=        → remembered-account lookup
//	GET    /api/me                    → current session         (auth)
//	GET    /api/tasks                 → list, filterable        (auth)
//	POST   /api/tasks                 → add                     (auth)
//	PUT    /api/tasks/{id}            → update                  (auth)
//	DELETE /api/tasks/{id}            → delete                  (auth)
//	POST   /api/tasks/{id}/toggle     → toggle completion       (auth)
//	GET    /api/categories            → list                    (auth)
//	POST   /api/categories            → add                     (auth)
//	DELETE /api/categories/{name}     → delete                  (auth)
//	GET    /api/history               → activity log            (auth)
//	DELETE /api/history               → clear log               (auth)
//	GET    /api/stats                 → dashboard counts        (auth)
//	GET    /api/reminders             → overdue/pending notice  (auth)
//
// MIDDLEWARE ORDER MATTERS:
// RequestID first so the logger can print it; Recoverer last so a panic in
// a handler is still logged as a 500.
func (s *Server) setupRoutes() {
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(middleware.Logger(s.logger))
	s.router.Use(chimiddleware.Recoverer)

	authHandler := handler.NewAuthHandler(s.identity, s.tasks, s.tokens, s.logger)
	taskHandler := handler.NewTaskHandler(s.tasks, s.logger)
	dashboardHandler := handler.NewDashboardHandler(s.tasks, nil)

	s.router.Route("/auth", func(r chi.Router) {
		r.Post("/register", authHandler.HandleRegister)
		r.Post("/login", authHandler.HandleLogin)
		r.Post("/logout", authHandler.HandleLogout)
		r.Get("/lookup", authHandler.HandleLookup)
	})

	s.router.Route("/api", func(r chi.Router) {
		r.Use(auth.RequireAuth(s.tokens, s.identity))

		r.Get("/me", authHandler.HandleMe)

		r.Get("/tasks", taskHandler.HandleList)
		r.Post("/tasks", taskHandler.HandleCreate)
		r.Put("/tasks/{id}", taskHandler.HandleUpdate)
		r.Delete("/tasks/{id}", taskHandler.HandleDelete)
		r.Post("/tasks/{id}/toggle", taskHandler.HandleToggle)

		r.Get("/categories", taskHandler.HandleListCategories)
		r.Post("/categories", taskHandler.HandleAddCategory)
		r.Delete("/categories/{name}", taskHandler.HandleDeleteCategory)

		r.Get("/history", taskHandler.HandleHistory)
		r.Delete("/history", taskHandler.HandleClearHistory)

		r.Get("/stats", dashboardHandler.HandleStats)
		r.Get("/reminders", dashboardHandler.HandleReminders)
	})
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start runs the reminder scheduler and the HTTP server until SIGINT or
// SIGTERM, then shuts both down and closes storage.
//
// GRACEFUL SHUTDOWN:
//  1. stop accepting connections, let in-flight requests finish (30s)
//  2. stop the scheduler and wait for a running check
//  3. close the database (flushes WAL, releases the file lock)
func (s *Server) Start() error {
	defer s.closeStorage()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.scheduler.Start()
	defer s.scheduler.Stop()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Port),
			slog.String("url", fmt.Sprintf("http://localhost:%d", s.config.Port)),
			slog.String("storage", s.config.Storage),
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

// Close releases storage without starting the server. Tests use it.
func (s *Server) Close() error {
	return s.closeStorage()
}

func (s *Server) closeStorage() error {
	if s.closer == nil {
		return nil
	}
	err := s.closer.Close()
	s.closer = nil
	if err != nil {
		s.logger.Error("failed to close storage", slog.String("error", err.Error()))
	}
	return err
}
