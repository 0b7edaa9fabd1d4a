package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/nichefy/nichefy/internal/niche"
	catalog "github.com/nichefy/nichefy/internal/spotify"
)

const (
	// streamBuffer sizes the event channel. The discovery engine emits a
	// handful of events per search; a slow client drops intermediate
	// progress rather than stalling the search.
	streamBuffer = 32
	streamPoll   = 100 * time.Millisecond
)

// streamNiche runs a discovery search in the background and relays its
// progress events to the client as server-sent events. The stream always
// begins with a start event and ends with exactly one terminal event,
// either complete or error.
func (h *Handlers) streamNiche(w http.ResponseWriter, r *http.Request, engine *niche.Engine, cat *catalog.Client, session *Session, artistID string, opts niche.Options) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	events := make(chan niche.Event, streamBuffer)
	opts.Progress = func(ev niche.Event) {
		select {
		case events <- ev:
		default:
			// Drop progress rather than block the search on a slow client.
		}
	}

	type result struct {
		artists []niche.Artist
		err     error
	}
	done := make(chan result, 1)
	go func() {
		artists, err := engine.FindNiche(r.Context(), artistID, opts)
		done <- result{artists, err}
	}()

	sendEvent(w, flusher, niche.Event{
		Type:      niche.EventStart,
		Message:   "Starting niche artist search",
		Timestamp: time.Now(),
	})

	for {
		select {
		case ev := <-events:
			sendEvent(w, flusher, ev)

		case res := <-done:
			// Drain progress emitted before the engine returned.
			for {
				select {
				case ev := <-events:
					sendEvent(w, flusher, ev)
					continue
				default:
				}
				break
			}

			if res.err != nil {
				msg := "niche artist search failed"
				if errors.Is(res.err, niche.ErrUnauthorized) {
					msg = "Spotify access token expired or invalid, please log in again"
				}
				h.logger.Error().Err(res.err).Str("seed", artistID).Msg("streamed search failed")
				sendEvent(w, flusher, niche.Event{
					Type:      niche.EventError,
					Message:   msg,
					Timestamp: time.Now(),
				})
				return
			}

			artists := res.artists
			if artists == nil {
				artists = []niche.Artist{}
			}
			h.recordDiscoveries(r.Context(), session, cat, artistID, artists)
			sendEvent(w, flusher, niche.Event{
				Type:      niche.EventComplete,
				Message:   fmt.Sprintf("Found %d niche artists", len(artists)),
				Count:     len(artists),
				Artists:   artists,
				Timestamp: time.Now(),
			})
			return

		case <-r.Context().Done():
			// Client went away; the engine notices via the same context.
			return

		case <-time.After(streamPoll):
			// Loop again so a cancelled client is noticed promptly.
		}
	}
}

// sendEvent writes one SSE data frame and flushes it.
func sendEvent(w http.ResponseWriter, flusher http.Flusher, ev niche.Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "data: %s\n\n", payload)
	flusher.Flush()
}
