// Package repository defines interfaces for appointment storage
package repository

import (
	"context"
	"time"

	"github.com/navikt/telecoord/internal/models"
)

// AppointmentStore persists appointments keyed by room identifier.
// Implementations return the sentinel errors from the models package.
type AppointmentStore interface {
	// SaveAppointment creates an appointment and books the doctor's slot in one step
	SaveAppointment(ctx context.Context, appt *models.Appointment) error
	FindByRoomID(ctx context.Context, roomID string) (*models.Appointment, error)
	ListByStatus(ctx context.Context, status models.AppointmentStatus) ([]*models.Appointment, error)

	// Lifecycle writes. All of them are safe to retry.
	SetStatus(ctx context.Context, roomID string, status models.AppointmentStatus) error
	SetSessionStart(ctx context.Context, roomID string, at time.Time) error
	SetSessionEnd(ctx context.Context, roomID string, at time.Time) error
	ReleaseSlot(ctx context.Context, roomID string) error

	Ping(ctx context.Context) error
}
