// Package web publishes session lifecycle events to dashboards over server-sent events
package web

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/navikt/telecoord/internal/models"
	"github.com/navikt/telecoord/internal/utils"
	"github.com/r3labs/sse/v2"
)

// StreamSessions is the stream every lifecycle event is published on
const StreamSessions = "sessions"

// EventStream fans lifecycle events out to connected SSE clients
type EventStream struct {
	server *sse.Server
}

// NewEventStream creates the stream server with the sessions stream registered
func NewEventStream() *EventStream {
	server := sse.New()
	// Dashboards only care about what happens from now on
	server.AutoReplay = false
	server.AutoStream = false
	server.Headers = map[string]string{
		"Cache-Control":     "no-cache, no-transform",
		"X-Accel-Buffering": "no", // Disable nginx proxy buffering
	}
	server.CreateStream(StreamSessions)

	return &EventStream{server: server}
}

// NotifySessionEvent publishes event to all subscribers. It matches the
// coordinator's event callback signature.
func (s *EventStream) NotifySessionEvent(event models.Event) {
	data, err := json.Marshal(event)
	if err != nil {
		log.Printf("Error encoding session event %s: %v", event.ID, err)
		return
	}

	log.Printf("Publishing SSE %s event for room %s", event.Type, utils.SanitizeLogString(event.RoomID))
	s.server.Publish(StreamSessions, &sse.Event{
		ID:    []byte(event.ID),
		Event: []byte(event.Type),
		Data:  data,
	})
}

// ServeHTTP subscribes the client. Requests without a stream parameter get the sessions stream.
func (s *EventStream) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("stream") == "" {
		q := r.URL.Query()
		q.Set("stream", StreamSessions)
		r.URL.RawQuery = q.Encode()
	}
	s.server.ServeHTTP(w, r)
}

// Close disconnects all subscribers
func (s *EventStream) Close() {
	s.server.Close()
}
