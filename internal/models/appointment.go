package models

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Store errors shared by every repository backend
var (
	ErrAppointmentNotFound = errors.New("appointment not found")
	ErrRoomExists          = errors.New("room identifier already in use")
	ErrSlotTaken           = errors.New("doctor slot already booked")
	ErrInvalidTransition   = errors.New("invalid appointment status transition")
	ErrInvalidSlot         = errors.New("invalid appointment slot")
)

// AppointmentStatus is the persisted lifecycle state of an appointment
type AppointmentStatus string

const (
	StatusScheduled AppointmentStatus = "scheduled"
	StatusCompleted AppointmentStatus = "completed"
	StatusCancelled AppointmentStatus = "cancelled"
	StatusMissed    AppointmentStatus = "missed"
)

// IsTerminal reports whether no further transition is possible
func (s AppointmentStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCancelled || s == StatusMissed
}

// Valid reports whether s is one of the known statuses
func (s AppointmentStatus) Valid() bool {
	switch s {
	case StatusScheduled, StatusCompleted, StatusCancelled, StatusMissed:
		return true
	}
	return false
}

// CanTransition reports whether an appointment in status s may be moved to next.
// Re-applying the current status is allowed so that retried writes stay harmless.
func (s AppointmentStatus) CanTransition(next AppointmentStatus) bool {
	if s == next {
		return true
	}
	return s == StatusScheduled && next.IsTerminal()
}

// Role is the part a participant plays in an appointment
type Role string

const (
	RolePatient Role = "patient"
	RoleDoctor  Role = "doctor"
)

// Appointment is a booked consultation between one patient and one doctor.
// RoomID, PatientID and DoctorID never change after booking.
type Appointment struct {
	RoomID       string            `json:"room_id"`
	PatientID    string            `json:"patient_id"`
	DoctorID     string            `json:"doctor_id"`
	SlotDate     string            `json:"slot_date"` // YYYY-MM-DD
	SlotTime     string            `json:"slot_time"` // e.g. "10:30", "10:30 AM", "Mon 10:30 AM"
	Status       AppointmentStatus `json:"status"`
	SessionStart *time.Time        `json:"session_start,omitempty"`
	SessionEnd   *time.Time        `json:"session_end,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
}

// RoleOf returns the role userID holds in the appointment
func (a *Appointment) RoleOf(userID string) (Role, bool) {
	switch {
	case userID == "":
		return "", false
	case userID == a.DoctorID:
		return RoleDoctor, true
	case userID == a.PatientID:
		return RolePatient, true
	}
	return "", false
}

// Validate checks the fields required at booking time
func (a *Appointment) Validate() error {
	if a.PatientID == "" || a.DoctorID == "" {
		return fmt.Errorf("%w: patient and doctor are required", ErrInvalidSlot)
	}
	if a.PatientID == a.DoctorID {
		return fmt.Errorf("%w: patient and doctor must differ", ErrInvalidSlot)
	}
	_, err := a.ScheduledAt(time.UTC)
	return err
}

const slotDateLayout = "2006-01-02"

var slotTimeLayouts = []string{"15:04", "3:04 PM", "3:04PM", "03:04 PM", "3:04 pm", "3:04pm"}

// ScheduledAt resolves the slot date and time label to an instant in loc
func (a *Appointment) ScheduledAt(loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.Local
	}

	date, err := time.ParseInLocation(slotDateLayout, strings.TrimSpace(a.SlotDate), loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: date %q", ErrInvalidSlot, a.SlotDate)
	}

	label := strings.TrimSpace(a.SlotTime)
	if day, rest, ok := strings.Cut(label, " "); ok {
		if weekday, isDay := parseWeekday(day); isDay {
			if weekday != date.Weekday() {
				return time.Time{}, fmt.Errorf("%w: %s is not a %s", ErrInvalidSlot, a.SlotDate, weekday)
			}
			label = strings.TrimSpace(rest)
		}
	}

	for _, layout := range slotTimeLayouts {
		clock, err := time.Parse(layout, label)
		if err != nil {
			continue
		}
		return time.Date(date.Year(), date.Month(), date.Day(), clock.Hour(), clock.Minute(), 0, 0, loc), nil
	}

	return time.Time{}, fmt.Errorf("%w: time %q", ErrInvalidSlot, a.SlotTime)
}

// Window returns the span during which the room may be joined
func (a *Appointment) Window(loc *time.Location, length time.Duration) (start, end time.Time, err error) {
	start, err = a.ScheduledAt(loc)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return start, start.Add(length), nil
}

// SlotKey identifies the doctor's booked slot independent of how the time label was written
func (a *Appointment) SlotKey() (string, error) {
	at, err := a.ScheduledAt(time.UTC)
	if err != nil {
		return "", err
	}
	return a.DoctorID + "@" + at.Format("2006-01-02T15:04"), nil
}

// Clone returns a deep copy so callers cannot mutate store-owned state
func (a *Appointment) Clone() *Appointment {
	c := *a
	if a.SessionStart != nil {
		t := *a.SessionStart
		c.SessionStart = &t
	}
	if a.SessionEnd != nil {
		t := *a.SessionEnd
		c.SessionEnd = &t
	}
	return &c
}

func parseWeekday(s string) (time.Weekday, bool) {
	s = strings.ToLower(strings.TrimSuffix(s, ","))
	for d := time.Sunday; d <= time.Saturday; d++ {
		name := strings.ToLower(d.String())
		if s == name || s == name[:3] {
			return d, true
		}
	}
	return 0, false
}
