package niche

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog"
)

const (
	// maxDepth bounds bridge recursion. Two levels keeps total catalog
	// traffic a small constant multiple of the suggestion branching factor.
	maxDepth = 2

	// genreSearchLimit is the wide hit count used by the genre last resort.
	genreSearchLimit = 50

	// maxGenreQueries caps how many of the seed's genres the last resort tries.
	maxGenreQueries = 2

	// maxTrackContext caps how many top track titles enrich the fallback prompt.
	maxTrackContext = 3
)

// Options configures one top-level discovery call.
type Options struct {
	// Band is the popularity acceptance window for niche results.
	Band Band

	// MinResults is the minimum number of niche artists to aim for. The
	// final result is capped at twice this value.
	MinResults int

	// Progress optionally receives structured progress events.
	Progress EventSink
}

// Engine runs the niche discovery search. It is stateless across calls;
// every invocation owns its own seen-set and accumulator.
type Engine struct {
	catalog Catalog
	suggest Suggester
	matcher *Matcher
	logger  zerolog.Logger
}

// NewEngine creates an Engine over the given catalog and suggestion source.
func NewEngine(catalog Catalog, suggest Suggester, logger zerolog.Logger) *Engine {
	return &Engine{
		catalog: catalog,
		suggest: suggest,
		matcher: NewMatcher(catalog, logger),
		logger:  logger.With().Str("component", "engine").Logger(),
	}
}

// FindNiche discovers artists whose popularity falls within opts.Band that
// are stylistically related to the seed artist. Strategies run in order:
// suggestion-source match, bridge recursion through the least popular
// above-band candidate, a track-context suggestion fallback, and a
// genre-scoped catalog search as last resort. The result is sorted by
// ascending popularity and capped at 2×MinResults.
//
// A seed fetch failure is fatal and propagates (errors.Is ErrUnauthorized
// distinguishes credential failure). All per-strategy failures are logged
// and treated as that strategy yielding nothing. A short or empty result is
// a normal, successful return.
func (e *Engine) FindNiche(ctx context.Context, seedID string, opts Options) ([]Artist, error) {
	seen := make(map[string]struct{})
	return e.find(ctx, seedID, opts.Band, opts.MinResults, 0, seen, opts.Progress)
}

// find is one level of the depth-bounded search. The seen-set is threaded
// through the recursion so no identifier is ever returned twice in a single
// top-level call.
func (e *Engine) find(ctx context.Context, seedID string, band Band, need, depth int, seen map[string]struct{}, sink EventSink) ([]Artist, error) {
	seed, err := e.catalog.Artist(ctx, seedID)
	if err != nil {
		return nil, fmt.Errorf("fetching seed artist %s: %w", seedID, err)
	}
	seen[seed.ID] = struct{}{}

	logger := e.logger.With().Str("seed", seed.Name).Int("depth", depth).Logger()
	logger.Info().
		Strs("genres", topGenres(seed.Genres, 3)).
		Msg("searching for niche artists")

	finds := e.primaryStrategy(ctx, seed, band, need, depth, seen, sink, logger)

	if len(finds) < need {
		finds = e.trackContextFallback(ctx, seed, band, finds, seen, sink, logger)
	}

	if len(finds) < need && len(seed.Genres) > 0 {
		finds = e.genreLastResort(ctx, seed, band, need, finds, seen, logger)
	}

	sort.SliceStable(finds, func(i, j int) bool {
		return finds[i].Popularity < finds[j].Popularity
	})
	if limit := need * 2; len(finds) > limit {
		finds = finds[:limit]
	}

	logger.Info().Int("count", len(finds)).Msg("niche search finished")
	return finds, nil
}

// primaryStrategy matches suggestion-source names against the catalog,
// partitions the hits into niche finds and above-band bridges, and recurses
// through the least popular bridge when the result is still short.
func (e *Engine) primaryStrategy(ctx context.Context, seed *Artist, band Band, need, depth int, seen map[string]struct{}, sink EventSink, logger zerolog.Logger) []Artist {
	names, err := e.suggest.Suggest(ctx, seed.Name, seed.Genres)
	if err != nil {
		logger.Warn().Err(err).Msg("suggestion source failed, skipping primary strategy")
		return nil
	}
	if len(names) == 0 {
		logger.Debug().Msg("suggestion source returned no names")
		return nil
	}

	emit(sink, Event{
		Type:    EventSearching,
		Message: fmt.Sprintf("Searching Spotify for %d artists...", len(names)),
		Count:   len(names),
	})

	// Accept everything from the band minimum upward so that above-band
	// candidates stay visible as bridges for the recursive step.
	wide := Band{Min: band.Min, Max: 100}
	matches := e.matcher.Match(ctx, names, seed.ID, wide)

	var finds, bridges []Artist
	for _, a := range matches {
		if _, dup := seen[a.ID]; dup {
			continue
		}
		seen[a.ID] = struct{}{}
		switch {
		case band.Contains(a.Popularity):
			finds = append(finds, a)
		case a.Popularity > band.Max:
			bridges = append(bridges, a)
		}
	}

	emit(sink, Event{
		Type:    EventArtistsFound,
		Message: fmt.Sprintf("Found %d niche artists", len(finds)),
		Count:   len(finds),
		Total:   len(finds),
	})
	logger.Debug().
		Int("matched", len(matches)).
		Int("niche", len(finds)).
		Int("bridges", len(bridges)).
		Msg("primary strategy matched")

	if len(finds) < need && depth < maxDepth && len(bridges) > 0 {
		sort.SliceStable(bridges, func(i, j int) bool {
			return bridges[i].Popularity < bridges[j].Popularity
		})
		bridge := bridges[0]

		logger.Info().
			Str("bridge", bridge.Name).
			Int("popularity", bridge.Popularity).
			Msg("recursing through bridge artist")

		deeper, err := e.find(ctx, bridge.ID, band, need-len(finds), depth+1, seen, sink)
		if err != nil {
			logger.Warn().Err(err).Str("bridge", bridge.ID).Msg("bridge recursion failed")
		} else {
			// The shared seen-set guarantees deeper finds are all new.
			finds = append(finds, deeper...)
		}
	}

	return finds
}

// trackContextFallback re-queries the suggestion source with a richer
// subject built from the seed's top track titles, then merges unseen
// within-band matches.
func (e *Engine) trackContextFallback(ctx context.Context, seed *Artist, band Band, finds []Artist, seen map[string]struct{}, sink EventSink, logger zerolog.Logger) []Artist {
	subject := seed.Name
	titles, err := e.catalog.ArtistTopTracks(ctx, seed.ID)
	if err != nil {
		// Best effort: fall through with the bare name.
		logger.Debug().Err(err).Msg("top track lookup failed, using name alone")
	} else if len(titles) > 0 {
		if len(titles) > maxTrackContext {
			titles = titles[:maxTrackContext]
		}
		subject = fmt.Sprintf("%s, known for songs like %s", seed.Name, strings.Join(titles, ", "))
	}

	names, err := e.suggest.Suggest(ctx, subject, seed.Genres)
	if err != nil {
		logger.Warn().Err(err).Msg("suggestion fallback failed")
		return finds
	}
	if len(names) == 0 {
		return finds
	}

	emit(sink, Event{
		Type:    EventSearching,
		Message: fmt.Sprintf("Searching Spotify for %d artists...", len(names)),
		Count:   len(names),
	})

	added := 0
	for _, a := range e.matcher.Match(ctx, names, seed.ID, band) {
		if _, dup := seen[a.ID]; dup {
			continue
		}
		seen[a.ID] = struct{}{}
		finds = append(finds, a)
		added++
	}

	emit(sink, Event{
		Type:    EventArtistsFound,
		Message: fmt.Sprintf("Found %d niche artists", added),
		Count:   added,
		Total:   len(finds),
	})
	logger.Debug().Int("added", added).Msg("track-context fallback merged")
	return finds
}

// genreLastResort fills the result from genre-scoped catalog searches.
// Results are general genre hits rather than truly related artists, so it
// runs only when every other strategy has come up short.
func (e *Engine) genreLastResort(ctx context.Context, seed *Artist, band Band, need int, finds []Artist, seen map[string]struct{}, logger zerolog.Logger) []Artist {
	logger.Info().Msg("using genre search as last resort")

	for _, genre := range topGenres(seed.Genres, maxGenreQueries) {
		hits, err := e.catalog.SearchGenre(ctx, genre, genreSearchLimit)
		if err != nil {
			logger.Warn().Err(err).Str("genre", genre).Msg("genre search failed")
			continue
		}

		var inBand []Artist
		for _, a := range hits {
			if !band.Contains(a.Popularity) {
				continue
			}
			if a.ID == seed.ID {
				continue
			}
			if _, dup := seen[a.ID]; dup {
				continue
			}
			inBand = append(inBand, a)
		}
		sort.SliceStable(inBand, func(i, j int) bool {
			return inBand[i].Popularity < inBand[j].Popularity
		})

		for _, a := range inBand {
			if _, dup := seen[a.ID]; dup {
				continue
			}
			seen[a.ID] = struct{}{}
			finds = append(finds, a)
			if len(finds) >= need*2 {
				break
			}
		}
		if len(finds) >= need {
			break
		}
	}

	return finds
}

// topGenres returns up to n genres from the front of the list.
func topGenres(genres []string, n int) []string {
	if len(genres) > n {
		return genres[:n]
	}
	return genres
}
