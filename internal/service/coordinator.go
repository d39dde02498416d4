package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/navikt/telecoord/internal/models"
	"github.com/navikt/telecoord/internal/repository"
	"github.com/navikt/telecoord/internal/utils"
	"github.com/oklog/ulid/v2"
)

// EventCallback is a function type for lifecycle event callbacks
type EventCallback func(models.Event)

// Options tunes a Coordinator. Zero values select the defaults.
type Options struct {
	// Window is the authorized join span after the scheduled slot (default 30m)
	Window   time.Duration
	Location *time.Location
	Now      func() time.Time
	// Store write retries on the lifecycle path
	WriteRetries    uint64
	RetryBaseDelay  time.Duration
	RetryMaxElapsed time.Duration
}

func (o *Options) setDefaults() {
	if o.Window <= 0 {
		o.Window = 30 * time.Minute
	}
	if o.Location == nil {
		o.Location = time.Local
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.WriteRetries == 0 {
		o.WriteRetries = 4
	}
	if o.RetryBaseDelay <= 0 {
		o.RetryBaseDelay = 100 * time.Millisecond
	}
	if o.RetryMaxElapsed <= 0 {
		o.RetryMaxElapsed = 5 * time.Second
	}
}

// Coordinator runs the consultation session lifecycle: admission, relay,
// explicit end, leave/disconnect and window expiry.
type Coordinator struct {
	store    repository.AppointmentStore
	registry *Registry
	auth     *Authorizer
	lanes    *lanes
	opts     Options

	cbMu      sync.RWMutex
	callbacks []EventCallback
}

// NewCoordinator creates a Coordinator over the given store and registry
func NewCoordinator(store repository.AppointmentStore, registry *Registry, opts Options) *Coordinator {
	opts.setDefaults()
	return &Coordinator{
		store:    store,
		registry: registry,
		auth:     NewAuthorizer(store, opts.Window, opts.Location, opts.Now),
		lanes:    newLanes(),
		opts:     opts,
	}
}

// RegisterEventCallback registers a callback function to be called on lifecycle events
func (c *Coordinator) RegisterEventCallback(callback EventCallback) {
	c.cbMu.Lock()
	defer c.cbMu.Unlock()
	c.callbacks = append(c.callbacks, callback)
}

func (c *Coordinator) emit(typ models.EventType, roomID, userID string, role models.Role) {
	event := models.Event{
		ID:     ulid.Make().String(),
		Type:   typ,
		RoomID: roomID,
		UserID: userID,
		Role:   role,
		At:     c.opts.Now(),
	}

	c.cbMu.RLock()
	callbacks := append([]EventCallback(nil), c.callbacks...)
	c.cbMu.RUnlock()

	for _, callback := range callbacks {
		callback(event)
	}
}

// Snapshots returns live room membership
func (c *Coordinator) Snapshots() []models.RoomSnapshot {
	return c.registry.Snapshots()
}

// Join authorizes userID for roomID and admits conn. The joiner receives
// room-joined; an existing peer receives user-connected.
func (c *Coordinator) Join(ctx context.Context, conn Conn, roomID, userID string) (*Member, error) {
	unlock := c.lanes.lock(roomID)
	defer unlock()

	grant, err := c.auth.Authorize(ctx, roomID, userID)
	if err != nil {
		return nil, err
	}

	member := &Member{Conn: conn, RoomID: roomID, UserID: userID, Role: grant.Role}
	evicted, peers, err := c.registry.Admit(member)
	if err != nil {
		return nil, err
	}

	if evicted != nil {
		log.Printf("Replaced stale connection: RoomID=%s, UserID=%s",
			utils.SanitizeLogString(roomID), utils.SanitizeLogString(userID))
		evicted.Conn.Close()
	}

	peerIDs := make([]string, 0, len(peers))
	for _, p := range peers {
		peerIDs = append(peerIDs, p.UserID)
	}
	c.send(conn, models.Envelope{
		Type:   models.KindRoomJoined,
		RoomID: roomID,
		UserID: userID,
		Role:   grant.Role,
		Peers:  peerIDs,
	})
	for _, p := range peers {
		c.send(p.Conn, models.Envelope{
			Type:   models.KindUserConnected,
			RoomID: roomID,
			UserID: userID,
			Role:   grant.Role,
		})
	}

	log.Printf("Participant joined: RoomID=%s, UserID=%s, Role=%s, Members=%d",
		utils.SanitizeLogString(roomID), utils.SanitizeLogString(userID), grant.Role, len(peers)+1)
	c.emit(models.EventParticipantJoined, roomID, userID, grant.Role)

	// Only the first time both parties meet activates the session; a rejoin after
	// a leave or disconnect finds the start already stamped
	if len(peers) == 1 && evicted == nil && grant.Appointment.SessionStart == nil {
		now := c.opts.Now()
		if err := c.retry(ctx, func() error { return c.store.SetSessionStart(ctx, roomID, now) }); err != nil {
			log.Printf("Error stamping session start for room %s: %v", utils.SanitizeLogString(roomID), err)
		}
		c.emit(models.EventSessionActive, roomID, "", "")
	}

	return member, nil
}

// Leave removes conn from its room and tells the remaining member.
// It handles explicit leave and abrupt disconnect alike and never changes
// appointment status. Safe to call for connections that never joined.
func (c *Coordinator) Leave(conn Conn) {
	m, ok := c.registry.Lookup(conn.ID())
	if !ok {
		return
	}

	unlock := c.lanes.lock(m.RoomID)
	defer unlock()

	removed, remaining := c.registry.Remove(conn.ID())
	if removed == nil {
		// Evicted or cleared while waiting for the lane
		return
	}

	for _, p := range remaining {
		c.send(p.Conn, models.Envelope{
			Type:   models.KindUserDisconnected,
			RoomID: removed.RoomID,
			UserID: removed.UserID,
			Role:   removed.Role,
		})
	}

	log.Printf("Participant left: RoomID=%s, UserID=%s",
		utils.SanitizeLogString(removed.RoomID), utils.SanitizeLogString(removed.UserID))
	c.emit(models.EventParticipantLeft, removed.RoomID, removed.UserID, removed.Role)
}

// Relay forwards an opaque message from conn to the other members of roomID.
// With no other member the message is dropped.
func (c *Coordinator) Relay(conn Conn, roomID string, kind models.MessageKind, payload json.RawMessage) error {
	sender, ok := c.registry.Lookup(conn.ID())
	if !ok || sender.RoomID != roomID {
		return ErrNotJoined
	}

	out := kind
	switch {
	case kind == models.KindSendMessage:
		out = models.KindReceiveMessage
	case kind.IsSignal():
	default:
		return fmt.Errorf("%w: %s cannot be relayed", ErrInvalidMessage, kind)
	}

	for _, p := range c.registry.MembersOf(roomID, conn.ID()) {
		c.send(p.Conn, models.Envelope{
			Type:    out,
			RoomID:  roomID,
			UserID:  sender.UserID,
			Payload: payload,
		})
	}
	return nil
}

// End completes the session on request of the doctor. Every member receives
// session-ended and is removed. Ending an already completed session is a no-op
// that succeeds without touching the store.
func (c *Coordinator) End(ctx context.Context, conn Conn, roomID, requesterID string) error {
	unlock := c.lanes.lock(roomID)
	defer unlock()

	var appt *models.Appointment
	err := c.retry(ctx, func() error {
		var err error
		appt, err = c.store.FindByRoomID(ctx, roomID)
		return err
	})
	if err != nil {
		return err
	}

	if role, ok := appt.RoleOf(requesterID); !ok || role != models.RoleDoctor {
		return ErrUnauthorized
	}

	switch appt.Status {
	case models.StatusCompleted:
		return nil
	case models.StatusCancelled, models.StatusMissed:
		return fmt.Errorf("%w: appointment is %s", ErrSessionClosed, appt.Status)
	}

	m, ok := c.registry.Lookup(conn.ID())
	if !ok || m.RoomID != roomID {
		return ErrNotJoined
	}
	if m.UserID != requesterID {
		return ErrUnauthorized
	}

	endedAt := c.opts.Now()
	if err := c.retry(ctx, func() error { return c.store.SetSessionEnd(ctx, roomID, endedAt) }); err != nil {
		return err
	}
	if err := c.retry(ctx, func() error { return c.store.SetStatus(ctx, roomID, models.StatusCompleted) }); err != nil {
		if errors.Is(err, models.ErrInvalidTransition) {
			return ErrSessionClosed
		}
		return err
	}
	if err := c.retry(ctx, func() error { return c.store.ReleaseSlot(ctx, roomID) }); err != nil {
		log.Printf("Error releasing slot for room %s: %v", utils.SanitizeLogString(roomID), err)
	}

	c.closeRoom(roomID, endedAt)

	log.Printf("Session ended: RoomID=%s, By=%s", utils.SanitizeLogString(roomID), utils.SanitizeLogString(requesterID))
	c.emit(models.EventSessionEnded, roomID, requesterID, models.RoleDoctor)
	return nil
}

// closeRoom broadcasts session-ended and drops every connection in the room
func (c *Coordinator) closeRoom(roomID string, endedAt time.Time) {
	members := c.registry.Clear(roomID)
	for _, p := range members {
		c.send(p.Conn, models.Envelope{
			Type:    models.KindSessionEnded,
			RoomID:  roomID,
			EndedAt: &endedAt,
		})
		p.Conn.Close()
	}
}

func (c *Coordinator) send(conn Conn, env models.Envelope) {
	if err := conn.Send(env); err != nil {
		log.Printf("Error sending %s to connection %s: %v", env.Type, conn.ID(), err)
	}
}

// retry runs a store operation with bounded exponential backoff. Missing
// appointments, invalid transitions and bad slots are not retried.
func (c *Coordinator) retry(ctx context.Context, op func() error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.opts.RetryBaseDelay
	b.MaxElapsedTime = c.opts.RetryMaxElapsed

	err := backoff.Retry(func() error {
		err := op()
		if errors.Is(err, models.ErrAppointmentNotFound) ||
			errors.Is(err, models.ErrInvalidTransition) ||
			errors.Is(err, models.ErrInvalidSlot) {
			return backoff.Permanent(err)
		}
		return err
	}, backoff.WithContext(backoff.WithMaxRetries(b, c.opts.WriteRetries), ctx))

	switch {
	case err == nil:
		return nil
	case errors.Is(err, models.ErrAppointmentNotFound):
		return ErrRoomNotFound
	case errors.Is(err, models.ErrInvalidTransition), errors.Is(err, models.ErrInvalidSlot):
		return err
	}
	return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
}
