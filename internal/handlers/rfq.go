package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"rfqmarket/internal/apperr"
	"rfqmarket/internal/auth"
	"rfqmarket/internal/rfq"
)

type createRFQRequest struct {
	UserID               string         `json:"userId"`
	GuestEmail           string         `json:"guestEmail" validate:"omitempty,email"`
	GuestPhone           string         `json:"guestPhone" validate:"max=32"`
	GuestPhoneVerifiedAt *time.Time     `json:"guestPhoneVerifiedAt"`
	RFQType              string         `json:"rfqType"`
	CategorySlug         string         `json:"categorySlug" validate:"required"`
	JobTypeSlug          string         `json:"jobTypeSlug" validate:"required"`
	FormData             map[string]any `json:"formData"`
	SelectedVendorIDs    []string       `json:"selectedVendorIds" validate:"max=50,dive,required"`
}

// CreateRFQHandler обрабатывает POST /api/rfq (токен необязателен)
func (h *Handler) CreateRFQHandler(w http.ResponseWriter, r *http.Request) {
	var body createRFQRequest
	if err := h.decode(w, r, &body); err != nil {
		h.writeError(w, r, err)
		return
	}

	actor := auth.ActorFrom(r.Context())
	if actor == "" && body.UserID != "" {
		h.writeError(w, r, apperr.Unauthorized("Authorization header required"))
		return
	}
	if err := requireSelf(actor, body.UserID); err != nil {
		h.writeError(w, r, err)
		return
	}

	req := rfq.CreateRequest{
		UserID:            actor,
		RFQType:           body.RFQType,
		CategorySlug:      body.CategorySlug,
		JobTypeSlug:       body.JobTypeSlug,
		FormData:          body.FormData,
		SelectedVendorIDs: body.SelectedVendorIDs,
	}
	if actor == "" {
		req.GuestEmail = body.GuestEmail
		req.GuestPhone = body.GuestPhone
		req.GuestPhoneVerifiedAt = body.GuestPhoneVerifiedAt
	}

	res, err := h.RFQ.Create(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"success":     true,
		"rfqId":       res.RFQ.ID,
		"message":     "RFQ created successfully",
		"vendorCount": res.VendorCount,
	})
}

// GetQuotaHandler обрабатывает GET /api/rfq/quota
func (h *Handler) GetQuotaHandler(w http.ResponseWriter, r *http.Request) {
	summary, err := h.RFQ.QuotaSummary(r.Context(), auth.ActorFrom(r.Context()))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// CompleteRFQHandler обрабатывает POST /api/rfq/{rfqId}/complete
func (h *Handler) CompleteRFQHandler(w http.ResponseWriter, r *http.Request) {
	updated, err := h.RFQ.Complete(r.Context(), auth.ActorFrom(r.Context()), chi.URLParam(r, "rfqId"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "rfq": updated})
}

// CancelRFQHandler обрабатывает POST /api/rfq/{rfqId}/cancel
func (h *Handler) CancelRFQHandler(w http.ResponseWriter, r *http.Request) {
	updated, err := h.RFQ.Cancel(r.Context(), auth.ActorFrom(r.Context()), chi.URLParam(r, "rfqId"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "rfq": updated})
}
