package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/navikt/telecoord/internal/models"
	"github.com/navikt/telecoord/internal/repository"
)

// Grant is the result of a successful authorization
type Grant struct {
	Appointment *models.Appointment
	Role        models.Role
}

// Authorizer decides whether an identity may join a room right now.
// It never writes to the store.
type Authorizer struct {
	store  repository.AppointmentStore
	window time.Duration
	loc    *time.Location
	now    func() time.Time
}

// NewAuthorizer creates an Authorizer using the given window length and timezone
func NewAuthorizer(store repository.AppointmentStore, window time.Duration, loc *time.Location, now func() time.Time) *Authorizer {
	if now == nil {
		now = time.Now
	}
	if loc == nil {
		loc = time.Local
	}
	return &Authorizer{store: store, window: window, loc: loc, now: now}
}

// Authorize checks, in order: the room exists, userID is one of its parties,
// the appointment is still open, and the current time is inside the window.
// The window end itself is still inside.
func (a *Authorizer) Authorize(ctx context.Context, roomID, userID string) (*Grant, error) {
	appt, err := a.store.FindByRoomID(ctx, roomID)
	if errors.Is(err, models.ErrAppointmentNotFound) {
		return nil, ErrRoomNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	role, ok := appt.RoleOf(userID)
	if !ok {
		return nil, ErrUnauthorized
	}

	if appt.Status.IsTerminal() {
		return nil, fmt.Errorf("%w: appointment is %s", ErrSessionClosed, appt.Status)
	}

	start, end, err := appt.Window(a.loc, a.window)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRoomNotFound, err)
	}

	now := a.now()
	if now.Before(start) {
		return nil, ErrTooEarly
	}
	if now.After(end) {
		return nil, ErrTooLate
	}

	return &Grant{Appointment: appt, Role: role}, nil
}
