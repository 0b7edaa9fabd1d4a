package niche

import "time"

// EventType tags a progress event.
type EventType string

// Progress event types, in rough emission order.
const (
	EventStart        EventType = "start"
	EventSearching    EventType = "searching_spotify"
	EventArtistsFound EventType = "artists_found"
	EventComplete     EventType = "complete"
	EventError        EventType = "error"
)

// Event is a structured progress update emitted while a discovery call runs.
// Events are purely observational; dropping them never affects results.
type Event struct {
	Type      EventType `json:"type"`
	Message   string    `json:"message,omitempty"`
	Count     int       `json:"count,omitempty"`
	Total     int       `json:"total,omitempty"`
	Artists   []Artist  `json:"artists,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// EventSink receives progress events. A nil sink disables reporting.
// Implementations must not block for long; the engine calls them inline.
type EventSink func(Event)

// emit stamps and delivers an event if a sink is present.
func emit(sink EventSink, ev Event) {
	if sink == nil {
		return
	}
	ev.Timestamp = time.Now()
	sink(ev)
}
