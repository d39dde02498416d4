package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/navikt/telecoord/internal/auth"
	"github.com/navikt/telecoord/internal/models"
	"github.com/navikt/telecoord/internal/repository"
	"github.com/navikt/telecoord/internal/utils"
)

// BookingRequest is the body of POST /api/appointments
type BookingRequest struct {
	PatientID string `json:"patient_id"`
	DoctorID  string `json:"doctor_id"`
	SlotDate  string `json:"slot_date"`
	SlotTime  string `json:"slot_time"`
}

// AppointmentHandler books appointments and looks them up by room
type AppointmentHandler struct {
	store repository.AppointmentStore
	now   func() time.Time
}

// NewAppointmentHandler creates a new appointment handler backed by store
func NewAppointmentHandler(store repository.AppointmentStore) *AppointmentHandler {
	return &AppointmentHandler{store: store, now: time.Now}
}

// Create handles POST /api/appointments. The room identifier is generated here
// and never supplied by the client.
func (h *AppointmentHandler) Create(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	var req BookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Printf("Error decoding booking request: %v", err)
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	appt := &models.Appointment{
		RoomID:    uuid.NewString(),
		PatientID: req.PatientID,
		DoctorID:  req.DoctorID,
		SlotDate:  req.SlotDate,
		SlotTime:  req.SlotTime,
		Status:    models.StatusScheduled,
		CreatedAt: h.now().UTC(),
	}
	if err := appt.Validate(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	err := h.store.SaveAppointment(r.Context(), appt)
	switch {
	case err == nil:
	case errors.Is(err, models.ErrSlotTaken), errors.Is(err, models.ErrRoomExists):
		http.Error(w, err.Error(), http.StatusConflict)
		return
	case errors.Is(err, models.ErrInvalidSlot):
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	default:
		log.Printf("Error saving appointment: %v", err)
		http.Error(w, "Error saving appointment", http.StatusInternalServerError)
		return
	}

	log.Printf("Booked room %s for doctor %s at %s %s", appt.RoomID,
		utils.SanitizeLogString(appt.DoctorID), utils.SanitizeLogString(appt.SlotDate), utils.SanitizeLogString(appt.SlotTime))
	writeJSON(w, http.StatusCreated, appt)
}

// Get handles GET /api/appointments/{roomId}
func (h *AppointmentHandler) Get(w http.ResponseWriter, r *http.Request) {
	roomID := r.PathValue("roomId")

	appt, err := h.store.FindByRoomID(r.Context(), roomID)
	if errors.Is(err, models.ErrAppointmentNotFound) {
		http.Error(w, "Appointment not found", http.StatusNotFound)
		return
	}
	if err != nil {
		log.Printf("Error retrieving appointment %s: %v", utils.SanitizeLogString(roomID), err)
		http.Error(w, "Error retrieving appointment", http.StatusInternalServerError)
		return
	}

	// Authenticated callers only see their own appointments
	if subject, ok := auth.SubjectFrom(r.Context()); ok {
		if _, isParty := appt.RoleOf(subject); !isParty {
			log.Printf("Denied appointment %s to %s", utils.SanitizeLogString(roomID), utils.SanitizeLogString(subject))
			http.Error(w, "Appointment not found", http.StatusNotFound)
			return
		}
	}

	writeJSON(w, http.StatusOK, appt)
}
