package api

import (
	"net/http"

	"github.com/navikt/telecoord/internal/auth"
	"github.com/navikt/telecoord/internal/repository"
	"github.com/navikt/telecoord/internal/web"
)

// Dependencies are the components the HTTP surface is built from
type Dependencies struct {
	Store     repository.AppointmentStore
	Rooms     RoomLister
	Signaling http.Handler
	Events    http.Handler
	// Verifier protects the REST endpoints; nil leaves them open
	Verifier auth.Verifier
}

// SetupRoutes configures the HTTP routes for the service
func SetupRoutes(deps Dependencies) http.Handler {
	mux := http.NewServeMux()

	// Health check endpoints for Kubernetes
	mux.HandleFunc("GET /health/live", HealthLiveHandler)
	mux.HandleFunc("GET /health/ready", HealthReadyHandler(deps.Store))

	// Signaling performs its own token check before the upgrade
	mux.Handle("GET /ws", deps.Signaling)
	// Preflight requests for the feed are answered by ProtocolMiddleware
	if deps.Events != nil {
		mux.HandleFunc("GET /events", auth.RequireAuth(deps.Verifier, deps.Events.ServeHTTP))
	}

	appointments := NewAppointmentHandler(deps.Store)
	mux.HandleFunc("POST /api/appointments", auth.RequireAuth(deps.Verifier, appointments.Create))
	mux.HandleFunc("GET /api/appointments/{roomId}", auth.RequireAuth(deps.Verifier, appointments.Get))

	rooms := NewRoomHandler(deps.Rooms)
	mux.HandleFunc("GET /api/rooms", auth.RequireAuth(deps.Verifier, rooms.List))

	return web.ProtocolMiddleware(mux)
}
