package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/hackgods/therapy-scheduling/internal/appointment"
)

var zonelessLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
}

// parseTime accepts RFC 3339, or a zone-less date-time read on the practice clock.
func parseTime(s string, loc *time.Location) (time.Time, bool) {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, true
	}
	for _, layout := range zonelessLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
		return false
	}
	return true
}

func uuidParam(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_"+name, name+" must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}

func intQuery(w http.ResponseWriter, r *http.Request, name string) (int, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		writeError(w, http.StatusBadRequest, "invalid_"+name, name+" must be a non-negative integer")
		return 0, false
	}
	return n, true
}

func (h *handlers) createAppointment(w http.ResponseWriter, r *http.Request) {
	var req CreateAppointmentRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	therapistID, err := uuid.Parse(req.TherapistID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_therapist_id", "therapist_id must be a valid UUID")
		return
	}
	at, ok := parseTime(req.Time, h.loc)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_time", "time must be RFC 3339 or YYYY-MM-DDTHH:MM")
		return
	}

	appt, err := h.appointments.RequestAppointment(r.Context(), CallerFrom(r.Context()), therapistID, at, req.Reason)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, toAppointmentResponse(appt))
}

func (h *handlers) listAppointments(w http.ResponseWriter, r *http.Request) {
	var f appointment.ListFilter

	if raw := r.URL.Query().Get("status"); raw != "" {
		st, err := appointment.ParseStatus(raw)
		if err != nil {
			writeServiceError(w, r, h.logger, err)
			return
		}
		f.Status = st
	}
	if raw := r.URL.Query().Get("therapist_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_therapist_id", "therapist_id must be a valid UUID")
			return
		}
		f.TherapistID = id
	}

	var ok bool
	if f.Limit, ok = intQuery(w, r, "limit"); !ok {
		return
	}
	if f.Offset, ok = intQuery(w, r, "offset"); !ok {
		return
	}

	appts, err := h.appointments.ListAppointments(r.Context(), CallerFrom(r.Context()), f)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	resp := make([]AppointmentResponse, 0, len(appts))
	for i := range appts {
		resp = append(resp, toAppointmentResponse(&appts[i]))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *handlers) getAppointment(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}

	appt, err := h.appointments.GetAppointment(r.Context(), CallerFrom(r.Context()), id)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
}

func (h *handlers) setStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	var req SetStatusRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	st, err := appointment.ParseStatus(req.Status)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	h.applyStatus(w, r, id, st)
}

func (h *handlers) statusShortcut(to appointment.AppointmentStatus) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := uuidParam(w, r, "id")
		if !ok {
			return
		}
		h.applyStatus(w, r, id, to)
	}
}

func (h *handlers) applyStatus(w http.ResponseWriter, r *http.Request, id uuid.UUID, to appointment.AppointmentStatus) {
	appt, err := h.appointments.SetStatus(r.Context(), CallerFrom(r.Context()), id, to)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
}

// reschedule records a proposal from a client and applies a provider's
// change directly.
func (h *handlers) reschedule(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	var req RescheduleRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	newTime, ok := parseTime(req.NewTime, h.loc)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_new_time", "new_time must be RFC 3339 or YYYY-MM-DDTHH:MM")
		return
	}

	caller := CallerFrom(r.Context())
	if caller.Role.IsProvider() {
		appt, err := h.appointments.Reschedule(r.Context(), caller, id, newTime)
		if err != nil {
			writeServiceError(w, r, h.logger, err)
			return
		}
		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
		return
	}

	proposal, err := h.appointments.ProposeReschedule(r.Context(), caller, id, newTime)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusAccepted, toRescheduleResponse(proposal))
}

func (h *handlers) resolveReschedule(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	var req ResolveRescheduleRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Accept == nil {
		writeError(w, http.StatusBadRequest, "validation_error", "accept is required")
		return
	}

	appt, err := h.appointments.ResolveReschedule(r.Context(), CallerFrom(r.Context()), id, *req.Accept)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
}

func (h *handlers) listRescheduleRequests(w http.ResponseWriter, r *http.Request) {
	reqs, err := h.appointments.ListRescheduleRequests(r.Context(), CallerFrom(r.Context()))
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	resp := make([]RescheduleResponse, 0, len(reqs))
	for i := range reqs {
		resp = append(resp, toRescheduleResponse(&reqs[i]))
	}
	writeJSON(w, http.StatusOK, resp)
}
