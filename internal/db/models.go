package db

import (
	"time"

	"github.com/google/uuid"
)

// User represents a Spotify user profile.
type User struct {
	ID          string
	DisplayName string
	Email       string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Session represents an authenticated web session. UserName is denormalized
// from the users table on load so a request needs one query, not two.
type Session struct {
	ID           string
	UserID       string
	UserName     string
	AccessToken  string
	RefreshToken string
	TokenExpiry  time.Time
	CreatedAt    time.Time
	ExpiresAt    time.Time
}

// Discovery represents one niche artist found for a user, with provenance
// back to the seed artist whose search produced it.
type Discovery struct {
	ID         uuid.UUID
	UserID     string
	SeedID     string
	SeedName   string
	ArtistID   string
	ArtistName string
	Popularity int
	Genres     []string
	ImageURL   *string // nullable
	SpotifyURL string
	CreatedAt  time.Time
}
