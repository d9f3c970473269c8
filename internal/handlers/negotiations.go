package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"rfqmarket/internal/auth"
	"rfqmarket/internal/negotiation"
)

type openNegotiationRequest struct {
	QuoteID string `json:"quoteId" validate:"required"`
}

type counterOfferRequest struct {
	ProposedPrice  *decimal.Decimal `json:"proposedPrice" validate:"required"`
	ScopeChanges   *string          `json:"scopeChanges" validate:"omitempty,max=5000"`
	DeliveryDate   *string          `json:"deliveryDate"`
	PaymentTerms   *string          `json:"paymentTerms" validate:"omitempty,max=2000"`
	Message        *string          `json:"message" validate:"omitempty,max=5000"`
	ResponseByDays int              `json:"responseByDays"`
}

type negotiationActionRequest struct {
	Action  string  `json:"action" validate:"required"`
	OfferID string  `json:"offerId"`
	Reason  *string `json:"reason" validate:"omitempty,max=2000"`
	UserID  string  `json:"userId"`
}

type questionRequest struct {
	Question string `json:"question" validate:"max=5000"`
}

type answerRequest struct {
	Answer string `json:"answer" validate:"max=5000"`
}

type reportRequest struct {
	Reason  string  `json:"reason" validate:"max=200"`
	Details *string `json:"details" validate:"omitempty,max=5000"`
}

// OpenNegotiationHandler обрабатывает POST /api/negotiations
func (h *Handler) OpenNegotiationHandler(w http.ResponseWriter, r *http.Request) {
	var body openNegotiationRequest
	if err := h.decode(w, r, &body); err != nil {
		h.writeError(w, r, err)
		return
	}

	thread, existing, err := h.Negotiations.Open(r.Context(), auth.ActorFrom(r.Context()), body.QuoteID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	status := http.StatusCreated
	if existing {
		status = http.StatusOK
	}
	writeJSON(w, status, map[string]any{"success": true, "negotiation": thread, "existing": existing})
}

// GetNegotiationHandler обрабатывает GET /api/negotiations/{negotiationId}
func (h *Handler) GetNegotiationHandler(w http.ResponseWriter, r *http.Request) {
	view, err := h.Negotiations.GetThread(r.Context(), auth.ActorFrom(r.Context()), chi.URLParam(r, "negotiationId"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// NegotiationActionHandler обрабатывает PATCH /api/negotiations/{negotiationId}
func (h *Handler) NegotiationActionHandler(w http.ResponseWriter, r *http.Request) {
	var body negotiationActionRequest
	if err := h.decode(w, r, &body); err != nil {
		h.writeError(w, r, err)
		return
	}
	actor := auth.ActorFrom(r.Context())
	if err := requireSelf(actor, body.UserID); err != nil {
		h.writeError(w, r, err)
		return
	}

	res, err := h.Negotiations.Act(r.Context(), actor, chi.URLParam(r, "negotiationId"), negotiation.ActRequest{
		Action:  body.Action,
		OfferID: body.OfferID,
		Reason:  body.Reason,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Success bool `json:"success"`
		*negotiation.ActResult
	}{true, res})
}

// CounterOfferHandler обрабатывает POST /api/negotiations/{negotiationId}/offers
func (h *Handler) CounterOfferHandler(w http.ResponseWriter, r *http.Request) {
	var body counterOfferRequest
	if err := h.decode(w, r, &body); err != nil {
		h.writeError(w, r, err)
		return
	}

	offer, err := h.Negotiations.ProposeOffer(r.Context(), auth.ActorFrom(r.Context()), chi.URLParam(r, "negotiationId"), negotiation.OfferRequest{
		Price:          *body.ProposedPrice,
		ScopeChanges:   body.ScopeChanges,
		DeliveryDate:   body.DeliveryDate,
		PaymentTerms:   body.PaymentTerms,
		Message:        body.Message,
		ResponseByDays: body.ResponseByDays,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"success": true, "counterOffer": offer})
}

// AskQuestionHandler обрабатывает POST /api/negotiations/{negotiationId}/questions
func (h *Handler) AskQuestionHandler(w http.ResponseWriter, r *http.Request) {
	var body questionRequest
	if err := h.decode(w, r, &body); err != nil {
		h.writeError(w, r, err)
		return
	}

	qa, err := h.Negotiations.AskQuestion(r.Context(), auth.ActorFrom(r.Context()), chi.URLParam(r, "negotiationId"), body.Question)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"success": true, "qaItem": qa})
}

// AnswerQuestionHandler обрабатывает PUT /api/negotiations/questions/{qaId}
func (h *Handler) AnswerQuestionHandler(w http.ResponseWriter, r *http.Request) {
	var body answerRequest
	if err := h.decode(w, r, &body); err != nil {
		h.writeError(w, r, err)
		return
	}

	qa, err := h.Negotiations.AnswerQuestion(r.Context(), auth.ActorFrom(r.Context()), chi.URLParam(r, "qaId"), body.Answer)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "qaItem": qa})
}

// ReportNegotiationHandler обрабатывает POST /api/negotiations/{negotiationId}/report
func (h *Handler) ReportNegotiationHandler(w http.ResponseWriter, r *http.Request) {
	var body reportRequest
	if err := h.decode(w, r, &body); err != nil {
		h.writeError(w, r, err)
		return
	}

	report, err := h.Negotiations.Report(r.Context(), auth.ActorFrom(r.Context()), chi.URLParam(r, "negotiationId"), body.Reason, body.Details)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"success": true,
		"message": "Report submitted for review",
		"report":  report,
	})
}
