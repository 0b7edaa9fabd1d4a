package niche

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
)

// searchLimit is how many hits each catalog search query asks for. Searching
// wider than the single best hit improves the match rate for ambiguous names.
const searchLimit = 10

// Matcher resolves free-text artist name suggestions into catalog records.
// For each name it tries several query formulations and accepts hits whose
// display name is fuzzily equal to the suggestion and whose popularity falls
// within an acceptance band.
type Matcher struct {
	catalog Catalog
	logger  zerolog.Logger
}

// NewMatcher creates a Matcher backed by the given catalog.
func NewMatcher(catalog Catalog, logger zerolog.Logger) *Matcher {
	return &Matcher{
		catalog: catalog,
		logger:  logger.With().Str("component", "matcher").Logger(),
	}
}

// Match searches the catalog for each candidate name and returns the accepted
// records, deduplicated by identifier, in discovery order. Hits matching
// excludeID are skipped. Individual query failures are swallowed; a name that
// exhausts all query variants simply yields no match.
func (m *Matcher) Match(ctx context.Context, names []string, excludeID string, band Band) []Artist {
	var matched []Artist
	seen := make(map[string]struct{})

	for _, raw := range names {
		name := strings.TrimSpace(raw)
		if len(name) < 2 {
			continue
		}
		if !m.matchName(ctx, name, excludeID, band, seen, &matched) {
			m.logger.Debug().
				Str("name", name).
				Int("min_popularity", band.Min).
				Int("max_popularity", band.Max).
				Msg("no catalog match for suggestion")
		}
	}

	return matched
}

// queryVariants returns the search formulations tried for a name, most
// specific first.
func queryVariants(name string) []string {
	return []string{
		fmt.Sprintf("artist:%q", name),
		name,
		name + " artist",
	}
}

// matchName tries each query variant for one name, recording every accepted
// hit. It stops after the first variant that produces at least one match and
// reports whether any hit was accepted.
func (m *Matcher) matchName(ctx context.Context, name, excludeID string, band Band, seen map[string]struct{}, matched *[]Artist) bool {
	for _, query := range queryVariants(name) {
		hits, err := m.catalog.SearchArtists(ctx, query, searchLimit)
		if err != nil {
			// Try the next formulation; a single failing query is not fatal.
			m.logger.Debug().Err(err).Str("query", query).Msg("search query failed")
			continue
		}

		accepted := false
		for _, hit := range hits {
			if hit.ID == excludeID {
				continue
			}
			if _, dup := seen[hit.ID]; dup {
				continue
			}
			if !namesAlike(name, hit.Name) {
				continue
			}
			if !band.Contains(hit.Popularity) {
				continue
			}
			seen[hit.ID] = struct{}{}
			*matched = append(*matched, hit)
			accepted = true
		}
		if accepted {
			return true
		}
	}
	return false
}

// namesAlike reports whether a suggestion and a catalog display name refer to
// the same artist: case-insensitive equality, or one contained in the other.
func namesAlike(suggestion, catalogName string) bool {
	a := strings.ToLower(suggestion)
	b := strings.ToLower(catalogName)
	return a == b || strings.Contains(a, b) || strings.Contains(b, a)
}
