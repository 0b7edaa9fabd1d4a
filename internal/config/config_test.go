package config

import (
	"errors"
	"testing"
)

func validConfig() Config {
	return Config{
		Spotify: SpotifyConfig{ID: "id", Secret: "secret"},
		Niche:   NicheConfig{MinPopularity: 15, MaxPopularity: 40, MinResults: 5},
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr error
	}{
		{
			name:   "valid",
			mutate: func(*Config) {},
		},
		{
			name:    "missing client id",
			mutate:  func(c *Config) { c.Spotify.ID = "" },
			wantErr: ErrMissingCredentials,
		},
		{
			name:    "missing client secret",
			mutate:  func(c *Config) { c.Spotify.Secret = "" },
			wantErr: ErrMissingCredentials,
		},
		{
			name:    "negative minimum popularity",
			mutate:  func(c *Config) { c.Niche.MinPopularity = -1 },
			wantErr: ErrInvalidBand,
		},
		{
			name:    "maximum popularity above scale",
			mutate:  func(c *Config) { c.Niche.MaxPopularity = 101 },
			wantErr: ErrInvalidBand,
		},
		{
			name: "inverted band",
			mutate: func(c *Config) {
				c.Niche.MinPopularity = 50
				c.Niche.MaxPopularity = 40
			},
			wantErr: ErrInvalidBand,
		},
		{
			name:    "zero min results",
			mutate:  func(c *Config) { c.Niche.MinResults = 0 },
			wantErr: ErrInvalidMinResults,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)

			err := cfg.Validate()
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("Validate: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestOrigins(t *testing.T) {
	tests := []struct {
		raw  string
		want []string
	}{
		{"", nil},
		{"http://localhost:3000", []string{"http://localhost:3000"}},
		{"http://a.test, http://b.test ,", []string{"http://a.test", "http://b.test"}},
	}

	for _, tt := range tests {
		got := ServerConfig{CORSOrigins: tt.raw}.Origins()
		if len(got) != len(tt.want) {
			t.Errorf("Origins(%q) = %v, want %v", tt.raw, got, tt.want)
			continue
		}
		for i := range tt.want {
			if got[i] != tt.want[i] {
				t.Errorf("Origins(%q)[%d] = %q, want %q", tt.raw, i, got[i], tt.want[i])
			}
		}
	}
}
