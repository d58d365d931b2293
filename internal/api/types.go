package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/therapy-scheduling/internal/appointment"
	"github.com/hackgods/therapy-scheduling/internal/availability"
	"github.com/hackgods/therapy-scheduling/internal/link"
	"github.com/hackgods/therapy-scheduling/internal/message"
	"github.com/hackgods/therapy-scheduling/internal/user"
)

// Requests

type SlotRequest struct {
	Weekday   int    `json:"weekday"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

type SetAvailabilityRequest struct {
	Slots []SlotRequest `json:"slots"`
}

type CreateAppointmentRequest struct {
	TherapistID string `json:"therapist_id"`
	Time        string `json:"time"`
	Reason      string `json:"reason"`
}

type SetStatusRequest struct {
	Status string `json:"status"`
}

type RescheduleRequest struct {
	NewTime string `json:"new_time"`
}

type ResolveRescheduleRequest struct {
	Accept *bool `json:"accept"`
}

type CreateLinkRequest struct {
	TherapistID string `json:"therapist_id,omitempty"`
	ClientEmail string `json:"client_email"`
}

type SendMessageRequest struct {
	ReceiverID string `json:"receiver_id"`
	Text       string `json:"text"`
}

// Responses

type SlotResponse struct {
	ID          uuid.UUID `json:"id"`
	TherapistID uuid.UUID `json:"therapist_id"`
	Weekday     int       `json:"weekday"`
	StartTime   string    `json:"start_time"`
	EndTime     string    `json:"end_time"`
}

type SetAvailabilityResponse struct {
	Count int `json:"count"`
}

type AppointmentResponse struct {
	ID          uuid.UUID `json:"id"`
	TherapistID uuid.UUID `json:"therapist_id"`
	ClientID    uuid.UUID `json:"client_id"`
	Time        time.Time `json:"time"`
	Status      string    `json:"status"`
	Reason      *string   `json:"reason,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type RescheduleResponse struct {
	AppointmentID uuid.UUID `json:"appointment_id"`
	ProposedBy    uuid.UUID `json:"proposed_by"`
	NewTime       time.Time `json:"new_time"`
	CreatedAt     time.Time `json:"created_at"`
}

type LinkResponse struct {
	ID          uuid.UUID `json:"id"`
	TherapistID uuid.UUID `json:"therapist_id"`
	ClientID    uuid.UUID `json:"client_id"`
	CreatedAt   time.Time `json:"created_at"`
}

type UserResponse struct {
	ID    uuid.UUID `json:"id"`
	Name  string    `json:"name"`
	Email string    `json:"email"`
	Role  string    `json:"role"`
}

type MessageResponse struct {
	ID         uuid.UUID `json:"id"`
	SenderID   uuid.UUID `json:"sender_id"`
	ReceiverID uuid.UUID `json:"receiver_id"`
	Text       string    `json:"text"`
	CreatedAt  time.Time `json:"created_at"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func toSlotResponses(slots []availability.Slot) []SlotResponse {
	out := make([]SlotResponse, 0, len(slots))
	for _, s := range slots {
		out = append(out, SlotResponse{
			ID:          s.ID,
			TherapistID: s.TherapistID,
			Weekday:     int(s.Weekday),
			StartTime:   s.StartTime.String(),
			EndTime:     s.EndTime.String(),
		})
	}
	return out
}

func toAppointmentResponse(a *appointment.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:          a.ID,
		TherapistID: a.TherapistID,
		ClientID:    a.ClientID,
		Time:        a.Time,
		Status:      string(a.Status),
		Reason:      a.Reason,
		CreatedAt:   a.CreatedAt,
		UpdatedAt:   a.UpdatedAt,
	}
}

func toRescheduleResponse(r *appointment.RescheduleRequest) RescheduleResponse {
	return RescheduleResponse{
		AppointmentID: r.AppointmentID,
		ProposedBy:    r.ProposedBy,
		NewTime:       r.NewTime,
		CreatedAt:     r.CreatedAt,
	}
}

func toLinkResponse(l *link.Link) LinkResponse {
	return LinkResponse{ID: l.ID, TherapistID: l.TherapistID, ClientID: l.ClientID, CreatedAt: l.CreatedAt}
}

func toUserResponses(users []user.User) []UserResponse {
	out := make([]UserResponse, 0, len(users))
	for _, u := range users {
		out = append(out, UserResponse{ID: u.ID, Name: u.Name, Email: u.Email, Role: string(u.Role)})
	}
	return out
}

func toMessageResponse(m *message.Message) MessageResponse {
	return MessageResponse{
		ID:         m.ID,
		SenderID:   m.SenderID,
		ReceiverID: m.ReceiverID,
		Text:       m.Text,
		CreatedAt:  m.CreatedAt,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, details string) {
	writeJSON(w, status, ErrorResponse{Error: code, Details: details})
}
