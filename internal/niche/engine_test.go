package niche

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

// fakeCatalog is a scripted in-memory Catalog.
type fakeCatalog struct {
	artists  map[string]Artist
	searches map[string][]Artist
	genres   map[string][]Artist
	tracks   map[string][]string
	tops     []Artist

	artistErr map[string]error
	searchErr map[string]error
	topsErr   error
	genreHook func(genre string)

	artistCalls int
	searchCalls []string
}

func newFakeCatalog() *fakeCatalog {
	return &fakeCatalog{
		artists:   make(map[string]Artist),
		searches:  make(map[string][]Artist),
		genres:    make(map[string][]Artist),
		tracks:    make(map[string][]string),
		artistErr: make(map[string]error),
		searchErr: make(map[string]error),
	}
}

// add registers an artist for both ID lookup and exact-name search.
func (f *fakeCatalog) add(a Artist) {
	f.artists[a.ID] = a
	key := fmt.Sprintf("artist:%q", a.Name)
	f.searches[key] = append(f.searches[key], a)
}

func (f *fakeCatalog) Artist(_ context.Context, id string) (*Artist, error) {
	f.artistCalls++
	if err := f.artistErr[id]; err != nil {
		return nil, err
	}
	a, ok := f.artists[id]
	if !ok {
		return nil, fmt.Errorf("artist %s not found", id)
	}
	return &a, nil
}

func (f *fakeCatalog) SearchArtists(_ context.Context, query string, _ int) ([]Artist, error) {
	f.searchCalls = append(f.searchCalls, query)
	if err := f.searchErr[query]; err != nil {
		return nil, err
	}
	return f.searches[query], nil
}

func (f *fakeCatalog) SearchGenre(_ context.Context, genre string, _ int) ([]Artist, error) {
	if f.genreHook != nil {
		f.genreHook(genre)
	}
	return f.genres[genre], nil
}

func (f *fakeCatalog) ArtistTopTracks(_ context.Context, id string) ([]string, error) {
	return f.tracks[id], nil
}

func (f *fakeCatalog) TopArtists(_ context.Context, _ int) ([]Artist, error) {
	if f.topsErr != nil {
		return nil, f.topsErr
	}
	return f.tops, nil
}

// suggesterFunc adapts a function to the Suggester interface.
type suggesterFunc func(ctx context.Context, subject string, genres []string) ([]string, error)

func (f suggesterFunc) Suggest(ctx context.Context, subject string, genres []string) ([]string, error) {
	return f(ctx, subject, genres)
}

func noSuggestions(_ context.Context, _ string, _ []string) ([]string, error) {
	return nil, nil
}

var testBand = Band{Min: 15, Max: 40}

func TestFindNicheReturnsInBandSorted(t *testing.T) {
	cat := newFakeCatalog()
	cat.add(Artist{ID: "seed", Name: "Seed", Popularity: 80, Genres: []string{"indie"}})
	cat.add(Artist{ID: "a", Name: "Alpha", Popularity: 35})
	cat.add(Artist{ID: "b", Name: "Beta", Popularity: 20})
	cat.add(Artist{ID: "c", Name: "Gamma", Popularity: 90})

	suggest := suggesterFunc(func(_ context.Context, subject string, _ []string) ([]string, error) {
		if subject == "Seed" {
			return []string{"Alpha", "Beta", "Gamma"}, nil
		}
		return nil, nil
	})

	engine := NewEngine(cat, suggest, zerolog.Nop())
	finds, err := engine.FindNiche(context.Background(), "seed", Options{Band: testBand, MinResults: 2})
	if err != nil {
		t.Fatalf("FindNiche: %v", err)
	}

	if len(finds) != 2 {
		t.Fatalf("got %d artists, want 2: %+v", len(finds), finds)
	}
	if finds[0].ID != "b" || finds[1].ID != "a" {
		t.Errorf("want ascending popularity order [b a], got [%s %s]", finds[0].ID, finds[1].ID)
	}
	for _, a := range finds {
		if !testBand.Contains(a.Popularity) {
			t.Errorf("artist %s popularity %d outside band", a.ID, a.Popularity)
		}
		if a.ID == "seed" {
			t.Error("seed artist returned as a find")
		}
	}
}

func TestFindNicheBridgeRecursion(t *testing.T) {
	cat := newFakeCatalog()
	cat.add(Artist{ID: "seed", Name: "Seed", Popularity: 85})
	cat.add(Artist{ID: "bridge", Name: "Bridge", Popularity: 70})
	cat.add(Artist{ID: "low", Name: "Low", Popularity: 18})

	var subjects []string
	suggest := suggesterFunc(func(_ context.Context, subject string, _ []string) ([]string, error) {
		subjects = append(subjects, subject)
		switch subject {
		case "Seed":
			return []string{"Bridge"}, nil
		case "Bridge":
			return []string{"Low"}, nil
		}
		return nil, nil
	})

	engine := NewEngine(cat, suggest, zerolog.Nop())
	finds, err := engine.FindNiche(context.Background(), "seed", Options{Band: testBand, MinResults: 2})
	if err != nil {
		t.Fatalf("FindNiche: %v", err)
	}

	if len(finds) != 1 || finds[0].ID != "low" {
		t.Fatalf("want [low] via bridge recursion, got %+v", finds)
	}
	recursed := false
	for _, s := range subjects {
		if s == "Bridge" {
			recursed = true
		}
	}
	if !recursed {
		t.Errorf("suggestion source never queried for the bridge artist; subjects: %v", subjects)
	}
}

func TestFindNicheDepthBound(t *testing.T) {
	cat := newFakeCatalog()
	cat.add(Artist{ID: "seed", Name: "Seed", Popularity: 85})
	for i := 0; i < 10; i++ {
		cat.add(Artist{ID: fmt.Sprintf("b%d", i), Name: fmt.Sprintf("Bridge%d", i), Popularity: 90})
	}

	// Every query yields a fresh above-band bridge, so only the depth bound
	// can stop the recursion.
	next := 0
	suggest := suggesterFunc(func(_ context.Context, _ string, _ []string) ([]string, error) {
		name := fmt.Sprintf("Bridge%d", next)
		next++
		return []string{name}, nil
	})

	engine := NewEngine(cat, suggest, zerolog.Nop())
	finds, err := engine.FindNiche(context.Background(), "seed", Options{Band: testBand, MinResults: 3})
	if err != nil {
		t.Fatalf("FindNiche: %v", err)
	}

	if len(finds) != 0 {
		t.Errorf("all candidates above band, want no finds, got %+v", finds)
	}
	// Seed fetch plus one bridge fetch per recursion level.
	if cat.artistCalls != 3 {
		t.Errorf("got %d seed fetches, want 3 (depth bound of 2)", cat.artistCalls)
	}
}

func TestFindNicheTrackContextFallback(t *testing.T) {
	cat := newFakeCatalog()
	cat.add(Artist{ID: "seed", Name: "Seed", Popularity: 85})
	cat.add(Artist{ID: "low", Name: "Low", Popularity: 22})
	cat.tracks["seed"] = []string{"Song One", "Song Two", "Song Three", "Song Four"}

	var fallbackSubject string
	suggest := suggesterFunc(func(_ context.Context, subject string, _ []string) ([]string, error) {
		if subject == "Seed" {
			return nil, nil
		}
		fallbackSubject = subject
		return []string{"Low"}, nil
	})

	engine := NewEngine(cat, suggest, zerolog.Nop())
	finds, err := engine.FindNiche(context.Background(), "seed", Options{Band: testBand, MinResults: 2})
	if err != nil {
		t.Fatalf("FindNiche: %v", err)
	}

	if len(finds) != 1 || finds[0].ID != "low" {
		t.Fatalf("want [low] via track-context fallback, got %+v", finds)
	}
	if !strings.Contains(fallbackSubject, "known for songs like") {
		t.Errorf("fallback subject missing track context: %q", fallbackSubject)
	}
	if strings.Contains(fallbackSubject, "Song Four") {
		t.Errorf("fallback subject should carry at most three track titles: %q", fallbackSubject)
	}
}

func TestFindNicheGenreLastResort(t *testing.T) {
	cat := newFakeCatalog()
	cat.add(Artist{ID: "seed", Name: "Seed", Popularity: 85, Genres: []string{"shoegaze"}})
	cat.genres["shoegaze"] = []Artist{
		{ID: "seed", Name: "Seed", Popularity: 30}, // seed never returned
		{ID: "g1", Name: "G1", Popularity: 38},
		{ID: "g2", Name: "G2", Popularity: 16},
		{ID: "g3", Name: "G3", Popularity: 70}, // above band
	}

	engine := NewEngine(cat, suggesterFunc(noSuggestions), zerolog.Nop())
	finds, err := engine.FindNiche(context.Background(), "seed", Options{Band: testBand, MinResults: 2})
	if err != nil {
		t.Fatalf("FindNiche: %v", err)
	}

	want := []string{"g2", "g1"}
	if len(finds) != len(want) {
		t.Fatalf("got %+v, want ids %v", finds, want)
	}
	for i, id := range want {
		if finds[i].ID != id {
			t.Errorf("finds[%d] = %s, want %s", i, finds[i].ID, id)
		}
	}
}

func TestFindNicheCapsResults(t *testing.T) {
	cat := newFakeCatalog()
	cat.add(Artist{ID: "seed", Name: "Seed", Popularity: 85})
	var names []string
	for i := 0; i < 10; i++ {
		a := Artist{ID: fmt.Sprintf("n%d", i), Name: fmt.Sprintf("Niche%d", i), Popularity: 16 + i}
		cat.add(a)
		names = append(names, a.Name)
	}
	// Duplicated suggestions must not produce duplicated finds.
	names = append(names, names...)

	suggest := suggesterFunc(func(_ context.Context, subject string, _ []string) ([]string, error) {
		if subject == "Seed" {
			return names, nil
		}
		return nil, nil
	})

	engine := NewEngine(cat, suggest, zerolog.Nop())
	finds, err := engine.FindNiche(context.Background(), "seed", Options{Band: testBand, MinResults: 3})
	if err != nil {
		t.Fatalf("FindNiche: %v", err)
	}

	if len(finds) != 6 {
		t.Fatalf("got %d finds, want cap of 6 (2x min results)", len(finds))
	}
	seen := make(map[string]bool)
	for _, a := range finds {
		if seen[a.ID] {
			t.Errorf("duplicate artist %s in result", a.ID)
		}
		seen[a.ID] = true
	}
	if !sort.SliceIsSorted(finds, func(i, j int) bool { return finds[i].Popularity < finds[j].Popularity }) {
		t.Errorf("result not sorted by ascending popularity: %+v", finds)
	}
}

// TestFindNicheFullSearch walks the whole happy path in one search: the
// primary match splits into in-band finds and two bridges, the recursion
// expands only the less popular bridge, and its finds merge into one
// ascending in-band result.
func TestFindNicheFullSearch(t *testing.T) {
	cat := newFakeCatalog()
	cat.add(Artist{ID: "seed", Name: "Harbor", Popularity: 90, Genres: []string{"dream pop"}})
	cat.add(Artist{ID: "n1", Name: "Nova", Popularity: 20})
	cat.add(Artist{ID: "n2", Name: "Mira", Popularity: 28})
	cat.add(Artist{ID: "n3", Name: "Vela", Popularity: 35})
	cat.add(Artist{ID: "bLow", Name: "Quartz", Popularity: 55})
	cat.add(Artist{ID: "bHigh", Name: "Onyx", Popularity: 75})
	cat.add(Artist{ID: "d1", Name: "Dawn", Popularity: 17})
	cat.add(Artist{ID: "d2", Name: "Dusk", Popularity: 24})
	cat.add(Artist{ID: "d3", Name: "Dune", Popularity: 31})

	var subjects []string
	suggest := suggesterFunc(func(_ context.Context, subject string, _ []string) ([]string, error) {
		subjects = append(subjects, subject)
		switch subject {
		case "Harbor":
			return []string{"Nova", "Mira", "Vela", "Quartz", "Onyx"}, nil
		case "Quartz":
			return []string{"Dawn", "Dusk", "Dune"}, nil
		}
		return nil, nil
	})

	engine := NewEngine(cat, suggest, zerolog.Nop())
	finds, err := engine.FindNiche(context.Background(), "seed", Options{Band: testBand, MinResults: 5})
	if err != nil {
		t.Fatalf("FindNiche: %v", err)
	}

	want := []string{"d1", "n1", "d2", "n2", "d3", "n3"}
	if len(finds) != len(want) {
		t.Fatalf("got %d artists, want %d: %+v", len(finds), len(want), finds)
	}
	seen := make(map[string]bool)
	for i, a := range finds {
		if a.ID != want[i] {
			t.Errorf("finds[%d] = %s (pop %d), want %s", i, a.ID, a.Popularity, want[i])
		}
		if !testBand.Contains(a.Popularity) {
			t.Errorf("artist %s popularity %d outside band", a.ID, a.Popularity)
		}
		if seen[a.ID] {
			t.Errorf("duplicate artist %s", a.ID)
		}
		seen[a.ID] = true
	}

	expandedLow, expandedHigh := false, false
	for _, s := range subjects {
		switch s {
		case "Quartz":
			expandedLow = true
		case "Onyx":
			expandedHigh = true
		}
	}
	if !expandedLow {
		t.Error("least popular bridge was never expanded")
	}
	if expandedHigh {
		t.Error("more popular bridge expanded; only the least popular one should be")
	}
}

// TestFindNicheFallbackOrder runs both fallbacks in one search and checks
// the track-context suggestion pass happens before any genre search.
func TestFindNicheFallbackOrder(t *testing.T) {
	cat := newFakeCatalog()
	cat.add(Artist{ID: "seed", Name: "Harbor", Popularity: 90, Genres: []string{"slowcore"}})
	cat.add(Artist{ID: "f1", Name: "Fen", Popularity: 22})
	cat.tracks["seed"] = []string{"Tide", "Moor"}
	cat.genres["slowcore"] = []Artist{
		{ID: "g1", Name: "Glen", Popularity: 19},
		{ID: "g2", Name: "Moss", Popularity: 26},
	}

	var order []string
	cat.genreHook = func(genre string) { order = append(order, "genre:"+genre) }

	suggest := suggesterFunc(func(_ context.Context, subject string, _ []string) ([]string, error) {
		if strings.Contains(subject, "known for songs like") {
			order = append(order, "track-context")
			return []string{"Fen"}, nil
		}
		return nil, nil
	})

	engine := NewEngine(cat, suggest, zerolog.Nop())
	finds, err := engine.FindNiche(context.Background(), "seed", Options{Band: testBand, MinResults: 3})
	if err != nil {
		t.Fatalf("FindNiche: %v", err)
	}

	want := []string{"g1", "f1", "g2"}
	if len(finds) != len(want) {
		t.Fatalf("got %+v, want ids %v", finds, want)
	}
	for i, id := range want {
		if finds[i].ID != id {
			t.Errorf("finds[%d] = %s, want %s", i, finds[i].ID, id)
		}
	}

	if len(order) < 2 || order[0] != "track-context" {
		t.Fatalf("strategy order = %v, want track-context before genre search", order)
	}
	for _, step := range order[1:] {
		if step == "track-context" {
			t.Errorf("track-context ran after a genre search: %v", order)
		}
	}
}

func TestFindNicheSeedFetchErrorIsFatal(t *testing.T) {
	cat := newFakeCatalog()
	cat.artistErr["seed"] = fmt.Errorf("%w: token expired", ErrUnauthorized)

	engine := NewEngine(cat, suggesterFunc(noSuggestions), zerolog.Nop())
	_, err := engine.FindNiche(context.Background(), "seed", Options{Band: testBand, MinResults: 2})
	if err == nil {
		t.Fatal("want error when seed fetch fails")
	}
	if !errors.Is(err, ErrUnauthorized) {
		t.Errorf("want ErrUnauthorized in chain, got %v", err)
	}
}

func TestFindNicheSuggestionFailureIsNotFatal(t *testing.T) {
	cat := newFakeCatalog()
	cat.add(Artist{ID: "seed", Name: "Seed", Popularity: 85, Genres: []string{"indie"}})
	cat.genres["indie"] = []Artist{{ID: "g1", Name: "G1", Popularity: 25}}

	suggest := suggesterFunc(func(_ context.Context, _ string, _ []string) ([]string, error) {
		return nil, errors.New("suggestion source down")
	})

	engine := NewEngine(cat, suggest, zerolog.Nop())
	finds, err := engine.FindNiche(context.Background(), "seed", Options{Band: testBand, MinResults: 1})
	if err != nil {
		t.Fatalf("suggestion failure should not be fatal: %v", err)
	}
	if len(finds) != 1 || finds[0].ID != "g1" {
		t.Errorf("want genre fallback result [g1], got %+v", finds)
	}
}

func TestFindNicheProgressEvents(t *testing.T) {
	cat := newFakeCatalog()
	cat.add(Artist{ID: "seed", Name: "Seed", Popularity: 85})
	cat.add(Artist{ID: "a", Name: "Alpha", Popularity: 20})

	suggest := suggesterFunc(func(_ context.Context, subject string, _ []string) ([]string, error) {
		if subject == "Seed" {
			return []string{"Alpha"}, nil
		}
		return nil, nil
	})

	var events []Event
	engine := NewEngine(cat, suggest, zerolog.Nop())
	_, err := engine.FindNiche(context.Background(), "seed", Options{
		Band:       testBand,
		MinResults: 1,
		Progress:   func(ev Event) { events = append(events, ev) },
	})
	if err != nil {
		t.Fatalf("FindNiche: %v", err)
	}

	if len(events) == 0 {
		t.Fatal("no progress events emitted")
	}
	if events[0].Type != EventSearching {
		t.Errorf("first event type = %s, want %s", events[0].Type, EventSearching)
	}
	foundSeen := false
	for _, ev := range events {
		if ev.Timestamp.IsZero() {
			t.Errorf("event %s has zero timestamp", ev.Type)
		}
		switch ev.Type {
		case EventArtistsFound:
			foundSeen = true
		case EventComplete, EventError:
			t.Errorf("engine must not emit terminal event %s", ev.Type)
		}
	}
	if !foundSeen {
		t.Error("no artists_found event emitted")
	}
}
