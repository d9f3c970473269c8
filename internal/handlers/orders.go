package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"rfqmarket/internal/auth"
	"rfqmarket/internal/orders"
)

type createJobOrderRequest struct {
	ApplicationID string           `json:"applicationId" validate:"required"`
	AgreedPrice   *decimal.Decimal `json:"agreedPrice"`
	Terms         *string          `json:"terms" validate:"omitempty,max=5000"`
	StartDate     *string          `json:"startDate"`
	Location      *string          `json:"location" validate:"omitempty,max=200"`
	Milestones    []any            `json:"milestones" validate:"max=50"`
}

type jobOrderActionRequest struct {
	Action string  `json:"action" validate:"required"`
	Reason *string `json:"reason" validate:"omitempty,max=2000"`
}

// CreateJobOrderHandler обрабатывает POST /api/job-orders
func (h *Handler) CreateJobOrderHandler(w http.ResponseWriter, r *http.Request) {
	var body createJobOrderRequest
	if err := h.decode(w, r, &body); err != nil {
		h.writeError(w, r, err)
		return
	}

	order, exists, err := h.Orders.CreateForApplication(r.Context(), auth.ActorFrom(r.Context()), orders.ApplicationOrderRequest{
		ApplicationID: body.ApplicationID,
		AgreedPrice:   body.AgreedPrice,
		Terms:         body.Terms,
		StartDate:     body.StartDate,
		Location:      body.Location,
		Milestones:    body.Milestones,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	status := http.StatusCreated
	if exists {
		status = http.StatusOK
	}
	writeJSON(w, status, map[string]any{"success": true, "jobOrder": order, "alreadyExists": exists})
}

// ListJobOrdersHandler обрабатывает GET /api/job-orders?role=buyer|vendor
func (h *Handler) ListJobOrdersHandler(w http.ResponseWriter, r *http.Request) {
	list, err := h.Orders.List(r.Context(), auth.ActorFrom(r.Context()), r.URL.Query().Get("role"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"jobOrders": list})
}

// GetJobOrderHandler обрабатывает GET /api/job-orders/{orderId}
func (h *Handler) GetJobOrderHandler(w http.ResponseWriter, r *http.Request) {
	order, err := h.Orders.Get(r.Context(), auth.ActorFrom(r.Context()), chi.URLParam(r, "orderId"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"jobOrder": order})
}

// JobOrderActionHandler обрабатывает PATCH /api/job-orders/{orderId}
func (h *Handler) JobOrderActionHandler(w http.ResponseWriter, r *http.Request) {
	var body jobOrderActionRequest
	if err := h.decode(w, r, &body); err != nil {
		h.writeError(w, r, err)
		return
	}

	order, err := h.Orders.Act(r.Context(), auth.ActorFrom(r.Context()), chi.URLParam(r, "orderId"), body.Action, body.Reason)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "jobOrder": order})
}
