// Command nichefyd runs the Nichefy API server: Spotify OAuth, artist
// search, and niche artist discovery.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/nichefy/nichefy/internal/config"
	"github.com/nichefy/nichefy/internal/db"
	"github.com/nichefy/nichefy/internal/niche"
	"github.com/nichefy/nichefy/internal/perplexity"
	"github.com/nichefy/nichefy/internal/web"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "nichefyd: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	logger := newLogger()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// Database is optional; without it sessions live in memory and the
	// history endpoint is unavailable.
	var database *db.DB
	if cfg.Database.URL != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		database, err = db.New(ctx, cfg.Database.URL)
		if err != nil {
			cancel()
			return fmt.Errorf("connecting to database: %w", err)
		}
		defer database.Close()
		if err := database.InitSchema(ctx); err != nil {
			cancel()
			return fmt.Errorf("initializing schema: %w", err)
		}
		cancel()
		logger.Info().Msg("database connected")
		go sweepSessions(database, logger)
	} else {
		logger.Warn().Msg("no DATABASE_URL set, using in-memory sessions")
	}

	suggester := perplexity.NewClient(perplexity.Config{APIKey: cfg.Perplexity.APIKey}, logger)
	if !suggester.Enabled() {
		logger.Warn().Msg("no PERPLEXITY_API_KEY set, suggestion source disabled")
	}

	server, err := web.NewServer(web.ServerConfig{
		Addr:         cfg.Server.Addr,
		ClientID:     cfg.Spotify.ID,
		ClientSecret: cfg.Spotify.Secret,
		RedirectURL:  cfg.Spotify.RedirectURL,
		FrontendURL:  cfg.Server.FrontendURL,
		CORSOrigins:  cfg.Server.Origins(),
		Band:         niche.Band{Min: cfg.Niche.MinPopularity, Max: cfg.Niche.MaxPopularity},
		MinResults:   cfg.Niche.MinResults,
		Suggester:    suggester,
		Database:     database,
		Logger:       logger,
	})
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}

	return server.Run()
}

// sweepSessions removes expired sessions from the database once an hour.
func sweepSessions(database *db.DB, logger zerolog.Logger) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for range ticker.C {
		n, err := database.Sessions().DeleteExpired(context.Background())
		if err != nil {
			logger.Warn().Err(err).Msg("session sweep failed")
		} else if n > 0 {
			logger.Info().Int64("deleted", n).Msg("expired sessions removed")
		}
	}
}

// newLogger builds the process logger. Console output is used when stderr
// is a terminal, JSON otherwise.
func newLogger() zerolog.Logger {
	level := zerolog.InfoLevel
	if lv, err := zerolog.ParseLevel(os.Getenv("LOG_LEVEL")); err == nil && lv != zerolog.NoLevel {
		level = lv
	}

	var out = zerolog.New(os.Stderr)
	if fi, err := os.Stderr.Stat(); err == nil && fi.Mode()&os.ModeCharDevice != 0 {
		out = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}
	return out.Level(level).With().Timestamp().Logger()
}
