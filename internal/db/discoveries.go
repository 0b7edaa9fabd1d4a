package db

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DiscoveryRepository persists niche finds so users can revisit past results.
type DiscoveryRepository struct {
	pool *pgxpool.Pool
}

// RecordBatch inserts one discovery row per found artist, all attributed to
// the same user and seed. Re-discovering an artist from the same seed
// refreshes the existing row instead of duplicating it.
func (r *DiscoveryRepository) RecordBatch(ctx context.Context, discoveries []Discovery) error {
	if len(discoveries) == 0 {
		return nil
	}

	query := `
		INSERT INTO discoveries (id, user_id, seed_id, seed_name, artist_id, artist_name, popularity, genres, image_url, spotify_url, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (user_id, seed_id, artist_id) DO UPDATE SET
			popularity = EXCLUDED.popularity,
			genres = EXCLUDED.genres,
			image_url = EXCLUDED.image_url,
			created_at = EXCLUDED.created_at
	`

	batch := &pgx.Batch{}
	now := time.Now()
	for _, d := range discoveries {
		id := d.ID
		if id == uuid.Nil {
			id = uuid.New()
		}
		batch.Queue(query,
			id,
			d.UserID,
			d.SeedID,
			d.SeedName,
			d.ArtistID,
			d.ArtistName,
			d.Popularity,
			d.Genres,
			d.ImageURL,
			d.SpotifyURL,
			now,
		)
	}

	results := r.pool.SendBatch(ctx, batch)
	defer results.Close()

	for range discoveries {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("inserting discovery: %w", err)
		}
	}
	return nil
}

// ListRecent returns the user's most recent discoveries, newest first.
func (r *DiscoveryRepository) ListRecent(ctx context.Context, userID string, limit int) ([]Discovery, error) {
	query := `
		SELECT id, user_id, seed_id, seed_name, artist_id, artist_name, popularity, genres, image_url, spotify_url, created_at
		FROM discoveries
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`
	rows, err := r.pool.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying discoveries: %w", err)
	}
	defer rows.Close()

	var discoveries []Discovery
	for rows.Next() {
		var d Discovery
		if err := rows.Scan(
			&d.ID,
			&d.UserID,
			&d.SeedID,
			&d.SeedName,
			&d.ArtistID,
			&d.ArtistName,
			&d.Popularity,
			&d.Genres,
			&d.ImageURL,
			&d.SpotifyURL,
			&d.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning discovery: %w", err)
		}
		discoveries = append(discoveries, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading discoveries: %w", err)
	}
	return discoveries, nil
}
