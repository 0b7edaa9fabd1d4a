// Package niche implements the bounded recursive search for low-popularity
// artists related to a seed artist. It bridges from popular artists to
// progressively less popular ones by combining an external suggestion source
// with catalog search, partitioning candidates by a popularity window.
package niche

import (
	"context"
	"errors"
)

// ErrUnauthorized is returned (wrapped) by Catalog implementations when the
// catalog credential is expired or invalid. Callers should treat it as fatal
// for the whole call and re-authenticate, not as "no artists found".
var ErrUnauthorized = errors.New("catalog authorization failed")

// Artist is a catalog artist record. Never mutated after it is fetched.
type Artist struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Popularity  int      `json:"popularity"`
	Genres      []string `json:"genres"`
	ImageURL    string   `json:"image,omitempty"`
	ExternalURL string   `json:"spotify_url"`
}

// Band is the inclusive popularity window used to accept niche artists.
// Min and Max are Spotify-style popularity scores in [0,100].
type Band struct {
	Min int
	Max int
}

// Contains reports whether pop falls within the band.
func (b Band) Contains(pop int) bool {
	return pop >= b.Min && pop <= b.Max
}

// Valid reports whether the band is a well-formed popularity window.
func (b Band) Valid() bool {
	return b.Min >= 0 && b.Max <= 100 && b.Min <= b.Max
}

// Catalog is the music catalog search/lookup capability the engine and
// matcher consume. Satisfied by the Spotify adapter or a test double.
type Catalog interface {
	// Artist fetches a single artist record by catalog identifier.
	Artist(ctx context.Context, id string) (*Artist, error)

	// SearchArtists runs a free-text artist search and returns up to limit hits.
	SearchArtists(ctx context.Context, query string, limit int) ([]Artist, error)

	// SearchGenre returns artists tagged with the given genre.
	SearchGenre(ctx context.Context, genre string, limit int) ([]Artist, error)

	// ArtistTopTracks returns the artist's top track titles, best effort.
	ArtistTopTracks(ctx context.Context, id string) ([]string, error)

	// TopArtists returns the authenticated user's top artists over a
	// medium-term listening window.
	TopArtists(ctx context.Context, limit int) ([]Artist, error)
}

// Suggester proposes artist names stylistically similar to a subject.
// A disabled or unavailable suggestion source returns an empty list.
type Suggester interface {
	Suggest(ctx context.Context, subject string, genres []string) ([]string, error)
}
