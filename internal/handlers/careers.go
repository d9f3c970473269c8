package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"rfqmarket/internal/auth"
)

type applicationStatusRequest struct {
	Status string `json:"status" validate:"required"`
}

// UpdateApplicationStatusHandler обрабатывает PUT /api/careers/applications/{applicationId}/status
func (h *Handler) UpdateApplicationStatusHandler(w http.ResponseWriter, r *http.Request) {
	var body applicationStatusRequest
	if err := h.decode(w, r, &body); err != nil {
		h.writeError(w, r, err)
		return
	}

	app, err := h.Careers.UpdateStatus(r.Context(), auth.ActorFrom(r.Context()), chi.URLParam(r, "applicationId"), body.Status)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "application": app})
}

// GetPipelineHandler обрабатывает GET /api/careers/listings/{listingId}/pipeline
func (h *Handler) GetPipelineHandler(w http.ResponseWriter, r *http.Request) {
	p, err := h.Careers.GetPipeline(r.Context(), auth.ActorFrom(r.Context()), chi.URLParam(r, "listingId"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// UnlockContactHandler обрабатывает POST /api/careers/contacts/{candidateId}/unlock
func (h *Handler) UnlockContactHandler(w http.ResponseWriter, r *http.Request) {
	c, already, err := h.Careers.UnlockContact(r.Context(), auth.ActorFrom(r.Context()), chi.URLParam(r, "candidateId"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":         true,
		"contact":         c,
		"alreadyUnlocked": already,
	})
}

// ListNotificationsHandler обрабатывает GET /api/notifications
func (h *Handler) ListNotificationsHandler(w http.ResponseWriter, r *http.Request) {
	list, err := h.Notifications.ListNotifications(r.Context(), auth.ActorFrom(r.Context()), parseLimit(r, 20, 100))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"notifications": list})
}
