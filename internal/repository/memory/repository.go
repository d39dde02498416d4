// Package memory provides an in-memory implementation of the appointment store
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/navikt/telecoord/internal/models"
)

// Store implements the appointment store with in-memory maps
type Store struct {
	appointments map[string]*models.Appointment // keyed by room ID
	slots        map[string]string              // slot key -> room ID holding it
	mu           sync.RWMutex
}

// NewStore creates a new in-memory appointment store
func NewStore() *Store {
	return &Store{
		appointments: make(map[string]*models.Appointment),
		slots:        make(map[string]string),
	}
}

// SaveAppointment stores a new appointment and books its slot
func (s *Store) SaveAppointment(ctx context.Context, appt *models.Appointment) error {
	slot, err := appt.SlotKey()
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.appointments[appt.RoomID]; exists {
		return models.ErrRoomExists
	}
	if _, taken := s.slots[slot]; taken {
		return models.ErrSlotTaken
	}

	stored := appt.Clone()
	if stored.Status == "" {
		stored.Status = models.StatusScheduled
	}
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now()
	}
	s.appointments[appt.RoomID] = stored
	// Only live appointments hold a slot
	if !stored.Status.IsTerminal() {
		s.slots[slot] = appt.RoomID
	}
	return nil
}

// FindByRoomID returns a copy of the appointment for the room
func (s *Store) FindByRoomID(ctx context.Context, roomID string) (*models.Appointment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	appt, ok := s.appointments[roomID]
	if !ok {
		return nil, models.ErrAppointmentNotFound
	}
	return appt.Clone(), nil
}

// ListByStatus returns all appointments in the given status ordered by room ID
func (s *Store) ListByStatus(ctx context.Context, status models.AppointmentStatus) ([]*models.Appointment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*models.Appointment, 0)
	for _, appt := range s.appointments {
		if appt.Status == status {
			result = append(result, appt.Clone())
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].RoomID < result[j].RoomID })
	return result, nil
}

// SetStatus moves the appointment to a new status
func (s *Store) SetStatus(ctx context.Context, roomID string, status models.AppointmentStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	appt, ok := s.appointments[roomID]
	if !ok {
		return models.ErrAppointmentNotFound
	}
	if !appt.Status.CanTransition(status) {
		return models.ErrInvalidTransition
	}
	appt.Status = status
	return nil
}

// SetSessionStart stamps the session start once
func (s *Store) SetSessionStart(ctx context.Context, roomID string, at time.Time) error {
	return s.stamp(roomID, func(a *models.Appointment) **time.Time { return &a.SessionStart }, at)
}

// SetSessionEnd stamps the session end once
func (s *Store) SetSessionEnd(ctx context.Context, roomID string, at time.Time) error {
	return s.stamp(roomID, func(a *models.Appointment) **time.Time { return &a.SessionEnd }, at)
}

func (s *Store) stamp(roomID string, field func(*models.Appointment) **time.Time, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	appt, ok := s.appointments[roomID]
	if !ok {
		return models.ErrAppointmentNotFound
	}
	if p := field(appt); *p == nil {
		t := at
		*p = &t
	}
	return nil
}

// ReleaseSlot frees the doctor's slot held by the room, if any
func (s *Store) ReleaseSlot(ctx context.Context, roomID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	appt, ok := s.appointments[roomID]
	if !ok {
		return models.ErrAppointmentNotFound
	}
	slot, err := appt.SlotKey()
	if err != nil {
		return err
	}
	if s.slots[slot] == roomID {
		delete(s.slots, slot)
	}
	return nil
}

// Ping always succeeds for the in-memory store
func (s *Store) Ping(ctx context.Context) error {
	return nil
}
