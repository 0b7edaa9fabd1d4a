// Package spotify provides the catalog adapter over the Spotify Web API.
package spotify

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/zmb3/spotify/v2"
	"golang.org/x/time/rate"

	"github.com/nichefy/nichefy/internal/niche"
)

const (
	// topTracksMarket is the market used for top-track lookups.
	topTracksMarket = "US"

	// Outbound request pacing. The discovery search can fire dozens of
	// search queries per call; pacing keeps us under Spotify's rate limits.
	requestsPerSecond = 10
	requestBurst      = 5
)

// Client wraps the Spotify API client with the catalog operations the
// discovery engine needs. The underlying client must already be
// authenticated for the current user.
type Client struct {
	api     *spotify.Client
	limiter *rate.Limiter
}

// New creates a catalog client over an authenticated Spotify API client.
func New(api *spotify.Client) *Client {
	return &Client{
		api:     api,
		limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), requestBurst),
	}
}

// Artist fetches a single artist record by Spotify ID.
func (c *Client) Artist(ctx context.Context, id string) (*niche.Artist, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	full, err := c.api.GetArtist(ctx, spotify.ID(id))
	if err != nil {
		return nil, fmt.Errorf("getting artist %s: %w", id, mapErr(err))
	}
	artist := convertArtist(*full)
	return &artist, nil
}

// SearchArtists runs a free-text artist search.
func (c *Client) SearchArtists(ctx context.Context, query string, limit int) ([]niche.Artist, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	result, err := c.api.Search(ctx, query, spotify.SearchTypeArtist, spotify.Limit(limit))
	if err != nil {
		return nil, fmt.Errorf("searching artists %q: %w", query, mapErr(err))
	}
	if result.Artists == nil {
		return nil, nil
	}
	return convertArtists(result.Artists.Artists), nil
}

// SearchGenre returns artists tagged with the given genre.
func (c *Client) SearchGenre(ctx context.Context, genre string, limit int) ([]niche.Artist, error) {
	return c.SearchArtists(ctx, fmt.Sprintf("genre:%q", genre), limit)
}

// ArtistTopTracks returns the artist's top track titles, most popular first.
func (c *Client) ArtistTopTracks(ctx context.Context, id string) ([]string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	tracks, err := c.api.GetArtistsTopTracks(ctx, spotify.ID(id), topTracksMarket)
	if err != nil {
		return nil, fmt.Errorf("getting top tracks for %s: %w", id, mapErr(err))
	}
	titles := make([]string, len(tracks))
	for i, t := range tracks {
		titles[i] = t.Name
	}
	return titles, nil
}

// TopArtists returns the current user's top artists over a medium-term
// listening window.
func (c *Client) TopArtists(ctx context.Context, limit int) ([]niche.Artist, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	page, err := c.api.CurrentUsersTopArtists(ctx,
		spotify.Limit(limit),
		spotify.Timerange(spotify.MediumTermRange),
	)
	if err != nil {
		return nil, fmt.Errorf("getting top artists: %w", mapErr(err))
	}
	return convertArtists(page.Artists), nil
}

// mapErr translates Spotify API errors into catalog-level errors. An expired
// or invalid credential surfaces as niche.ErrUnauthorized so callers can
// prompt for re-authentication instead of reporting an empty result.
func mapErr(err error) error {
	var spErr spotify.Error
	if errors.As(err, &spErr) && spErr.Status == http.StatusUnauthorized {
		return fmt.Errorf("%w: %s", niche.ErrUnauthorized, spErr.Message)
	}
	return err
}

// convertArtist converts a Spotify FullArtist to a catalog record.
func convertArtist(full spotify.FullArtist) niche.Artist {
	artist := niche.Artist{
		ID:          full.ID.String(),
		Name:        full.Name,
		Popularity:  int(full.Popularity),
		Genres:      full.Genres,
		ExternalURL: full.ExternalURLs["spotify"],
	}
	if len(full.Images) > 0 {
		artist.ImageURL = full.Images[0].URL
	}
	return artist
}

func convertArtists(fulls []spotify.FullArtist) []niche.Artist {
	artists := make([]niche.Artist, len(fulls))
	for i, f := range fulls {
		artists[i] = convertArtist(f)
	}
	return artists
}

// Ensure the adapter satisfies the engine's catalog contract.
var _ niche.Catalog = (*Client)(nil)
