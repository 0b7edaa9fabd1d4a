package web

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/nichefy/nichefy/internal/niche"
)

// streamCatalog is a minimal scripted catalog for stream tests.
type streamCatalog struct {
	artists map[string]niche.Artist
	fail    error
}

func (c *streamCatalog) Artist(_ context.Context, id string) (*niche.Artist, error) {
	if c.fail != nil {
		return nil, c.fail
	}
	a, ok := c.artists[id]
	if !ok {
		return nil, fmt.Errorf("artist %s not found", id)
	}
	return &a, nil
}

func (c *streamCatalog) SearchArtists(_ context.Context, query string, _ int) ([]niche.Artist, error) {
	for _, a := range c.artists {
		if strings.Contains(query, a.Name) {
			return []niche.Artist{a}, nil
		}
	}
	return nil, nil
}

func (c *streamCatalog) SearchGenre(context.Context, string, int) ([]niche.Artist, error) {
	return nil, nil
}

func (c *streamCatalog) ArtistTopTracks(context.Context, string) ([]string, error) {
	return nil, nil
}

func (c *streamCatalog) TopArtists(context.Context, int) ([]niche.Artist, error) {
	return nil, nil
}

type streamSuggester []string

func (s streamSuggester) Suggest(context.Context, string, []string) ([]string, error) {
	return s, nil
}

// collectEvents parses "data: {...}" frames from an SSE body.
func collectEvents(t *testing.T, body string) []niche.Event {
	t.Helper()
	var events []niche.Event
	for _, line := range strings.Split(body, "\n") {
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var ev niche.Event
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev); err != nil {
			t.Fatalf("parsing event %q: %v", line, err)
		}
		events = append(events, ev)
	}
	return events
}

func TestStreamNicheEventOrdering(t *testing.T) {
	cat := &streamCatalog{artists: map[string]niche.Artist{
		"seed": {ID: "seed", Name: "Seed", Popularity: 85},
		"a":    {ID: "a", Name: "Alpha", Popularity: 20},
	}}

	h, _ := newTestHandlers(t)
	engine := niche.NewEngine(cat, streamSuggester{"Alpha"}, zerolog.Nop())

	req := httptest.NewRequest(http.MethodPost, "/api/recommend/niche", nil)
	rec := httptest.NewRecorder()
	h.streamNiche(rec, req, engine, nil, &Session{ID: "s"}, "seed", niche.Options{
		Band:       niche.Band{Min: 15, Max: 40},
		MinResults: 1,
	})

	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q", ct)
	}

	events := collectEvents(t, rec.Body.String())
	if len(events) < 2 {
		t.Fatalf("want at least start and complete events, got %+v", events)
	}
	if events[0].Type != niche.EventStart {
		t.Errorf("first event = %s, want %s", events[0].Type, niche.EventStart)
	}

	var terminals int
	for i, ev := range events {
		if ev.Type == niche.EventComplete || ev.Type == niche.EventError {
			terminals++
			if i != len(events)-1 {
				t.Errorf("terminal event %s at position %d, want last", ev.Type, i)
			}
		}
	}
	if terminals != 1 {
		t.Fatalf("want exactly one terminal event, got %d: %+v", terminals, events)
	}

	last := events[len(events)-1]
	if last.Type != niche.EventComplete {
		t.Fatalf("last event = %s, want complete", last.Type)
	}
	if last.Count != 1 || len(last.Artists) != 1 || last.Artists[0].ID != "a" {
		t.Errorf("complete event = %+v, want one artist a", last)
	}
}

func TestStreamNicheErrorEvent(t *testing.T) {
	cat := &streamCatalog{fail: fmt.Errorf("%w: token expired", niche.ErrUnauthorized)}

	h, _ := newTestHandlers(t)
	engine := niche.NewEngine(cat, streamSuggester(nil), zerolog.Nop())

	rec := httptest.NewRecorder()
	h.streamNiche(rec, httptest.NewRequest(http.MethodPost, "/api/recommend/niche", nil), engine, nil, &Session{ID: "s"}, "seed", niche.Options{
		Band:       niche.Band{Min: 15, Max: 40},
		MinResults: 1,
	})

	events := collectEvents(t, rec.Body.String())
	if len(events) == 0 {
		t.Fatal("no events written")
	}
	last := events[len(events)-1]
	if last.Type != niche.EventError {
		t.Fatalf("last event = %s, want error", last.Type)
	}
	if !strings.Contains(last.Message, "log in again") {
		t.Errorf("error message should prompt re-authentication: %q", last.Message)
	}
	for _, ev := range events {
		if ev.Type == niche.EventComplete {
			t.Error("complete event written after failure")
		}
	}
}
