package web

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/rs/zerolog"
	spotifyauth "github.com/zmb3/spotify/v2/auth"

	"github.com/nichefy/nichefy/internal/db"
	"github.com/nichefy/nichefy/internal/niche"
)

const (
	// apiRateLimit bounds requests per client IP on the API group. Discovery
	// calls are expensive upstream, so the limit is deliberately low.
	apiRateLimit       = 30
	apiRateLimitWindow = time.Minute
)

// ServerConfig holds server configuration.
type ServerConfig struct {
	Addr         string
	ClientID     string
	ClientSecret string
	RedirectURL  string
	FrontendURL  string
	CORSOrigins  []string

	// Band and MinResults parameterize every discovery call.
	Band       niche.Band
	MinResults int

	// Suggester proposes similar-artist names; a disabled source is valid.
	Suggester niche.Suggester

	// Database is optional; nil selects in-memory sessions and disables
	// discovery history.
	Database *db.DB

	Logger zerolog.Logger
}

// Server is the HTTP server for the Nichefy API.
type Server struct {
	router   chi.Router
	server   *http.Server
	sessions SessionManager
	handlers *Handlers
	logger   zerolog.Logger
}

// NewServer creates a new API server.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, fmt.Errorf("missing Spotify client credentials")
	}
	if !cfg.Band.Valid() {
		return nil, fmt.Errorf("invalid popularity band [%d,%d]", cfg.Band.Min, cfg.Band.Max)
	}

	// Create Spotify authenticator
	auth := spotifyauth.New(
		spotifyauth.WithClientID(cfg.ClientID),
		spotifyauth.WithClientSecret(cfg.ClientSecret),
		spotifyauth.WithRedirectURL(cfg.RedirectURL),
		spotifyauth.WithScopes(
			spotifyauth.ScopeUserReadPrivate,
			spotifyauth.ScopeUserReadEmail,
			spotifyauth.ScopeUserTopRead,
		),
	)

	// Create session store
	var sessions SessionManager
	if cfg.Database != nil {
		sessions = NewDBSessionStore(cfg.Database)
	} else {
		sessions = NewSessionStore()
	}

	handlers := NewHandlers(auth, sessions, cfg)

	router := chi.NewRouter()

	s := &Server{
		router:   router,
		sessions: sessions,
		handlers: handlers,
		logger:   cfg.Logger.With().Str("component", "web").Logger(),
	}

	s.setupMiddleware(cfg)
	s.setupRoutes()

	// Write timeout is generous: discovery calls fan out dozens of upstream
	// requests and SSE streams stay open for the whole search.
	s.server = &http.Server{
		Addr:         cfg.Addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s, nil
}

// setupMiddleware configures middleware for the router.
func (s *Server) setupMiddleware(cfg ServerConfig) {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(requestLogger(s.logger))
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Compress(5))
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
}

// setupRoutes configures routes for the application.
func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handlers.Health)

	s.router.Route("/api", func(r chi.Router) {
		r.Use(httprate.LimitByIP(apiRateLimit, apiRateLimitWindow))

		r.Get("/auth/login", s.handlers.Login)
		r.Get("/auth/callback", s.handlers.Callback)
		r.Get("/auth/status", s.handlers.AuthStatus)
		r.Post("/auth/logout", s.handlers.Logout)

		r.Get("/user/profile", s.handlers.UserProfile)
		r.Get("/search/artists", s.handlers.SearchArtists)

		r.Post("/recommend/niche", s.handlers.RecommendNiche)
		r.Post("/recommend/user", s.handlers.RecommendForUser)
		r.Get("/recommend/history", s.handlers.History)
	})
}

// requestLogger logs each request with method, path, status and duration.
func requestLogger(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.Info().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Dur("duration", time.Since(start)).
				Msg("request")
		})
	}
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.server.Addr).Msg("starting server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// Run starts the server and handles graceful shutdown on interrupt signals.
func (s *Server) Run() error {
	// Channel to receive shutdown signals
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	// Start server in goroutine
	errCh := make(chan error, 1)
	go func() {
		if err := s.Start(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	// Wait for interrupt or error
	select {
	case err := <-errCh:
		return err
	case <-stop:
		s.logger.Info().Msg("shutting down server")
	}

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	s.logger.Info().Msg("server stopped")
	return nil
}
