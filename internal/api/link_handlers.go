package api

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/hackgods/therapy-scheduling/internal/user"
)

func (h *handlers) createLink(w http.ResponseWriter, r *http.Request) {
	var req CreateLinkRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	var therapistID uuid.UUID
	if req.TherapistID != "" {
		id, err := uuid.Parse(req.TherapistID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_therapist_id", "therapist_id must be a valid UUID")
			return
		}
		therapistID = id
	}

	l, err := h.links.Link(r.Context(), CallerFrom(r.Context()), therapistID, req.ClientEmail)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, toLinkResponse(l))
}

func (h *handlers) listClients(w http.ResponseWriter, r *http.Request) {
	clients, err := h.links.ListClients(r.Context(), CallerFrom(r.Context()))
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserResponses(clients))
}

func (h *handlers) myTherapist(w http.ResponseWriter, r *http.Request) {
	th, err := h.links.TherapistOf(r.Context(), CallerFrom(r.Context()).ID)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserResponses([]user.User{*th})[0])
}

func (h *handlers) sendMessage(w http.ResponseWriter, r *http.Request) {
	var req SendMessageRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	receiverID, err := uuid.Parse(req.ReceiverID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_receiver_id", "receiver_id must be a valid UUID")
		return
	}

	m, err := h.messages.Send(r.Context(), CallerFrom(r.Context()), receiverID, req.Text)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, toMessageResponse(m))
}

func (h *handlers) conversation(w http.ResponseWriter, r *http.Request) {
	otherID, ok := uuidParam(w, r, "userID")
	if !ok {
		return
	}
	limit, ok := intQuery(w, r, "limit")
	if !ok {
		return
	}

	msgs, err := h.messages.Conversation(r.Context(), CallerFrom(r.Context()), otherID, limit)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	resp := make([]MessageResponse, 0, len(msgs))
	for i := range msgs {
		resp = append(resp, toMessageResponse(&msgs[i]))
	}
	writeJSON(w, http.StatusOK, resp)
}
