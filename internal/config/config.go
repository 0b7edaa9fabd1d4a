// Package config loads application configuration from environment variables
// and an optional YAML file.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Configuration errors are fatal at startup and never retried.
var (
	// ErrMissingCredentials is returned when SPOTIFY_ID or SPOTIFY_SECRET is not set.
	ErrMissingCredentials = errors.New("missing SPOTIFY_ID or SPOTIFY_SECRET")

	// ErrInvalidBand is returned when the popularity band is malformed.
	ErrInvalidBand = errors.New("invalid popularity band")

	// ErrInvalidMinResults is returned when the niche result target is not positive.
	ErrInvalidMinResults = errors.New("minimum niche results must be positive")
)

// Config holds all configuration for the application.
type Config struct {
	Server     ServerConfig
	Spotify    SpotifyConfig
	Perplexity PerplexityConfig
	Database   DatabaseConfig
	Niche      NicheConfig
}

// ServerConfig holds the HTTP server settings.
type ServerConfig struct {
	Addr        string `mapstructure:"addr"`
	FrontendURL string `mapstructure:"frontend_url"`
	CORSOrigins string `mapstructure:"cors_origins"` // comma-separated
}

// SpotifyConfig holds Spotify OAuth application credentials.
type SpotifyConfig struct {
	ID          string `mapstructure:"id"`
	Secret      string `mapstructure:"secret"`
	RedirectURL string `mapstructure:"redirect_url"`
}

// PerplexityConfig holds the suggestion source credential. An empty key
// disables the suggestion source rather than failing.
type PerplexityConfig struct {
	APIKey string `mapstructure:"api_key"`
}

// DatabaseConfig holds the PostgreSQL connection settings. An empty URL
// selects in-memory sessions and disables discovery history.
type DatabaseConfig struct {
	URL string `mapstructure:"url"`
}

// NicheConfig holds the discovery search parameters.
type NicheConfig struct {
	MinPopularity int `mapstructure:"min_popularity"`
	MaxPopularity int `mapstructure:"max_popularity"`
	MinResults    int `mapstructure:"min_results"`
}

// Origins returns the configured CORS origins as a list.
func (s ServerConfig) Origins() []string {
	var origins []string
	for _, o := range strings.Split(s.CORSOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}

// Load loads the configuration from file and environment variables.
func Load() (*Config, error) {
	// Set default values
	viper.SetDefault("SERVER.ADDR", "127.0.0.1:8080")
	viper.SetDefault("SERVER.FRONTEND_URL", "http://localhost:3000")
	viper.SetDefault("SERVER.CORS_ORIGINS", "http://127.0.0.1:3000,http://localhost:3000")
	viper.SetDefault("SPOTIFY.ID", "")
	viper.SetDefault("SPOTIFY.SECRET", "")
	viper.SetDefault("SPOTIFY.REDIRECT_URL", "http://127.0.0.1:8080/api/auth/callback")
	viper.SetDefault("PERPLEXITY.API_KEY", "")
	viper.SetDefault("DATABASE.URL", "")
	viper.SetDefault("NICHE.MIN_POPULARITY", 15)
	viper.SetDefault("NICHE.MAX_POPULARITY", 40)
	viper.SetDefault("NICHE.MIN_RESULTS", 5)

	// Load from config file
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err // Only return error if it's not a "file not found" error
		}
	}

	// Load from environment variables
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the configuration for fatal errors.
func (c *Config) Validate() error {
	if c.Spotify.ID == "" || c.Spotify.Secret == "" {
		return ErrMissingCredentials
	}
	n := c.Niche
	if n.MinPopularity < 0 || n.MaxPopularity > 100 || n.MinPopularity > n.MaxPopularity {
		return fmt.Errorf("%w: min=%d max=%d", ErrInvalidBand, n.MinPopularity, n.MaxPopularity)
	}
	if n.MinResults <= 0 {
		return fmt.Errorf("%w: got %d", ErrInvalidMinResults, n.MinResults)
	}
	return nil
}
