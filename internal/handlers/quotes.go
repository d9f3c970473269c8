package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"rfqmarket/internal/auth"
	"rfqmarket/internal/quotes"
)

type submitQuoteRequest struct {
	Price       decimal.Decimal `json:"price"`
	Timeline    string          `json:"timeline" validate:"max=200"`
	Description string          `json:"description" validate:"max=5000"`
}

// quoteDecisionRequest тело accept/reject
type quoteDecisionRequest struct {
	QuoteID string `json:"quoteId" validate:"required"`
	RFQID   string `json:"rfqId" validate:"required"`
	UserID  string `json:"userId"`
}

// SubmitQuoteHandler обрабатывает POST /api/rfq/{rfqId}/quotes
func (h *Handler) SubmitQuoteHandler(w http.ResponseWriter, r *http.Request) {
	var body submitQuoteRequest
	if err := h.decode(w, r, &body); err != nil {
		h.writeError(w, r, err)
		return
	}

	q, err := h.Quotes.Submit(r.Context(), quotes.SubmitRequest{
		VendorID:    auth.ActorFrom(r.Context()),
		RFQID:       chi.URLParam(r, "rfqId"),
		Price:       body.Price,
		Timeline:    body.Timeline,
		Description: body.Description,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"success": true, "quote": q})
}

// ListQuotesHandler обрабатывает GET /api/rfq/{rfqId}/quotes
func (h *Handler) ListQuotesHandler(w http.ResponseWriter, r *http.Request) {
	list, err := h.Quotes.ListForRFQ(r.Context(), auth.ActorFrom(r.Context()), chi.URLParam(r, "rfqId"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"quotes": list})
}

func (h *Handler) decodeDecision(w http.ResponseWriter, r *http.Request) (*quoteDecisionRequest, error) {
	var body quoteDecisionRequest
	if err := h.decode(w, r, &body); err != nil {
		return nil, err
	}
	if err := requireSelf(auth.ActorFrom(r.Context()), body.UserID); err != nil {
		return nil, err
	}
	return &body, nil
}

// AcceptQuoteHandler обрабатывает POST /api/quote/accept
func (h *Handler) AcceptQuoteHandler(w http.ResponseWriter, r *http.Request) {
	body, err := h.decodeDecision(w, r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	res, err := h.Quotes.Accept(r.Context(), auth.ActorFrom(r.Context()), body.RFQID, body.QuoteID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":       true,
		"message":       "Quote accepted successfully",
		"quote":         res.Quote,
		"buyerContact":  res.BuyerContact,
		"vendorContact": res.VendorContact,
	})
}

// RejectQuoteHandler обрабатывает POST /api/quote/reject и PATCH /api/quote/accept
func (h *Handler) RejectQuoteHandler(w http.ResponseWriter, r *http.Request) {
	body, err := h.decodeDecision(w, r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	q, err := h.Quotes.Reject(r.Context(), auth.ActorFrom(r.Context()), body.RFQID, body.QuoteID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Quote rejected",
		"quote":   q,
	})
}
