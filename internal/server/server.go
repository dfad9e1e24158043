// Package server is the composition root: it builds the services and
// handlers over a repository.Store, mounts them on a chi router and runs the
// HTTP server until a shutdown signal arrives.
//
//	RequestID → RealIP (TRUST_PROXY only) → Recoverer → Logger → Metrics → route
//	                              └ login route also passes LoginLimiter
//	                              └ authenticated routes pass auth.RequireUser
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/sakif/eventhub/internal/auth"
	"github.com/sakif/eventhub/internal/config"
	"github.com/sakif/eventhub/internal/handler"
	"github.com/sakif/eventhub/internal/media"
	"github.com/sakif/eventhub/internal/middleware"
	"github.com/sakif/eventhub/internal/repository"
	"github.com/sakif/eventhub/internal/service"
	"github.com/sakif/eventhub/internal/validation"
)

const shutdownTimeout = 30 * time.Second

// Server owns the router and the store. The store is closed when Start
// returns.
type Server struct {
	router  *chi.Mux
	config  config.Config
	logger  *slog.Logger
	store   repository.Store
	metrics *middleware.Metrics
}

// New wires every layer together. images is where thumbnails go; when it is
// a *media.LocalStore its directory is also served under its URL prefix.
func New(cfg config.Config, store repository.Store, images media.Store, logger *slog.Logger) (*Server, error) {
	tokens, err := auth.NewTokenService(cfg.Auth.AccessSecret, cfg.Auth.RefreshSecret, cfg.Auth.AccessTTL, cfg.Auth.RefreshTTL)
	if err != nil {
		return nil, fmt.Errorf("server: creating token service: %w", err)
	}

	s := &Server{
		router:  chi.NewRouter(),
		config:  cfg,
		logger:  logger,
		store:   store,
		metrics: middleware.NewMetrics(),
	}

	passwords := auth.NewPasswordService(cfg.Auth.BcryptCost)
	validate := validation.New()

	users := service.NewUserService(store.Users(), store.Events(), store.Registrations(), tokens, passwords, validate, logger)
	events := service.NewEventService(store.Events(), images, validate, logger)
	registrations := service.NewRegistrationService(store.Users(), store.Events(), store.Registrations(), logger)

	s.routes(
		tokens,
		handler.NewUserHandler(users, handler.CookieOptions{
			Secure:     cfg.Auth.CookieSecure,
			AccessTTL:  tokens.AccessTTL(),
			RefreshTTL: tokens.RefreshTTL(),
		}),
		handler.NewEventHandler(events, registrations, cfg.Upload.MaxBytes),
		images,
	)
	return s, nil
}

func (s *Server) routes(tokens *auth.TokenService, users *handler.UserHandler, events *handler.EventHandler, images media.Store) {
	r := s.router

	r.Use(chimiddleware.RequestID)
	if s.config.Server.TrustProxy {
		r.Use(chimiddleware.RealIP)
	}
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.Logger(s.logger))
	r.Use(s.metrics.Middleware)

	r.Get("/healthz", handler.NewHealthHandler(s.store).HandleHealth)
	r.Handle("/metrics", s.metrics.Handler())

	if local, ok := images.(*media.LocalStore); ok {
		prefix := strings.TrimSuffix(local.URLPrefix(), "/")
		files := http.StripPrefix(prefix+"/", http.FileServer(http.Dir(local.Dir())))
		r.Handle(prefix+"/*", files)
	}

	requireUser := auth.RequireUser(tokens, s.store.Users(), handler.WriteError)
	loginLimiter := middleware.NewLoginLimiter(s.config.RateLimit.LoginPer15Minutes, handler.WriteError)

	r.Route(s.config.Server.APIPrefix, func(r chi.Router) {
		r.Route("/users", func(r chi.Router) {
			r.Post("/register", handler.Handle(users.HandleRegister))
			r.With(loginLimiter.Middleware).Post("/login", handler.Handle(users.HandleLogin))
			r.Post("/refresh-token", handler.Handle(users.HandleRefreshToken))

			r.Group(func(r chi.Router) {
				r.Use(requireUser)
				r.Post("/logout", handler.Handle(users.HandleLogout))
				r.Get("/current-user", handler.Handle(users.HandleCurrentUser))
				r.Put("/change-password", handler.Handle(users.HandleChangePassword))
				r.Put("/change-other-account-details", handler.Handle(users.HandleUpdateAccountDetails))
			})
		})

		r.Route("/events", func(r chi.Router) {
			r.Use(requireUser)
			r.Get("/get-all-events", handler.Handle(events.HandleList))
			r.Get("/get-event-by-id/{eventId}", handler.Handle(events.HandleGetByID))
			r.Post("/add-event", handler.Handle(events.HandleCreate))
			r.Delete("/delete-event/{eventId}", handler.Handle(events.HandleDelete))
			r.Post("/register-to-event/{eventId}", handler.Handle(events.HandleRegister))
			r.Post("/deregister-from-event/{eventId}", handler.Handle(events.HandleDeregister))
			r.Patch("/update-event-details/{eventId}", handler.Handle(events.HandleUpdateDetails))
			r.Patch("/update-event-thumbnail/{eventId}", handler.Handle(events.HandleUpdateThumbnail))
		})
	})

	r.NotFound(handler.HandleNotFound)
}

// Handler returns the fully wired router; tests drive it with httptest.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until SIGINT or SIGTERM, then drains in-flight requests for
// up to thirty seconds and closes the store.
func (s *Server) Start() error {
	defer func() {
		if err := s.store.Close(); err != nil {
			s.logger.Error("closing store", slog.String("error", err.Error()))
		}
	}()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.config.Server.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Server.Port),
			slog.String("apiPrefix", s.config.Server.APIPrefix),
			slog.String("dbDriver", s.config.Database.Driver),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server: listening: %w", err)
		}

	case sig := <-quit:
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("server: graceful shutdown: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}
