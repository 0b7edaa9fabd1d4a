package niche

import (
	"context"
	"errors"
	"fmt"
)

const (
	// topArtistCount is how many of the user's top artists seed the batch run.
	topArtistCount = 8

	// batchMinResults is the per-seed target; small so one run stays cheap.
	batchMinResults = 3
)

// Provenance links a niche find to the top artist whose search produced it.
type Provenance struct {
	Niche  Artist
	Source Artist
}

// RecommendForTop fans the discovery search out over the user's top artists
// (medium-term listening window) and merges all finds into one map keyed by
// niche artist identifier. When two seeds surface the same niche artist, the
// later seed's provenance wins; callers must not depend on which seed that is.
//
// An unauthorized catalog credential aborts the whole run. Any other per-seed
// failure is logged and that seed skipped.
func (e *Engine) RecommendForTop(ctx context.Context, band Band) (map[string]Provenance, error) {
	tops, err := e.catalog.TopArtists(ctx, topArtistCount)
	if err != nil {
		return nil, fmt.Errorf("fetching top artists: %w", err)
	}

	out := make(map[string]Provenance)
	for _, source := range tops {
		finds, err := e.FindNiche(ctx, source.ID, Options{
			Band:       band,
			MinResults: batchMinResults,
		})
		if err != nil {
			if errors.Is(err, ErrUnauthorized) {
				return nil, err
			}
			e.logger.Warn().Err(err).Str("seed", source.ID).Msg("skipping top artist")
			continue
		}
		for _, find := range finds {
			out[find.ID] = Provenance{Niche: find, Source: source}
		}
	}

	return out, nil
}
