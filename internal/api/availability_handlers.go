package api

import (
	"net/http"

	"github.com/hackgods/therapy-scheduling/internal/availability"
)

func (h *handlers) setAvailability(w http.ResponseWriter, r *http.Request) {
	var req SetAvailabilityRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	inputs := make([]availability.SlotInput, 0, len(req.Slots))
	for _, s := range req.Slots {
		inputs = append(inputs, availability.SlotInput{Weekday: s.Weekday, StartTime: s.StartTime, EndTime: s.EndTime})
	}

	n, err := h.availability.SetWeeklySchedule(r.Context(), CallerFrom(r.Context()), inputs)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, SetAvailabilityResponse{Count: n})
}

func (h *handlers) myAvailability(w http.ResponseWriter, r *http.Request) {
	caller := CallerFrom(r.Context())

	slots, err := h.availability.GetWeeklySchedule(r.Context(), caller, caller.ID)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toSlotResponses(slots))
}

func (h *handlers) therapistAvailability(w http.ResponseWriter, r *http.Request) {
	therapistID, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}

	slots, err := h.availability.GetWeeklySchedule(r.Context(), CallerFrom(r.Context()), therapistID)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toSlotResponses(slots))
}

func (h *handlers) deleteSlot(w http.ResponseWriter, r *http.Request) {
	slotID, ok := uuidParam(w, r, "slotID")
	if !ok {
		return
	}

	if err := h.availability.DeleteSlot(r.Context(), CallerFrom(r.Context()), slotID); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
