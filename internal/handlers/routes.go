package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"

	"rfqmarket/internal/apperr"
	"rfqmarket/internal/auth"
	"rfqmarket/internal/config"
)

// RFQRateLimit лимит создания RFQ: гости по IP, запросы с токеном по пользователю
func (h *Handler) RFQRateLimit(limits config.RateLimitConfig) func(http.Handler) http.Handler {
	onLimit := func(w http.ResponseWriter, r *http.Request) {
		h.writeError(w, r, apperr.RateLimited("Too many RFQ submissions. Please try again later."))
	}
	guest := httprate.Limit(limits.GuestPerHour, time.Hour,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(onLimit),
	)
	authed := httprate.Limit(limits.AuthPerHour, time.Hour,
		httprate.WithKeyFuncs(func(r *http.Request) (string, error) {
			return auth.ActorFrom(r.Context()), nil
		}),
		httprate.WithLimitHandler(onLimit),
	)

	return func(next http.Handler) http.Handler {
		guestNext, authedNext := guest(next), authed(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if auth.ActorFrom(r.Context()) != "" {
				authedNext.ServeHTTP(w, r)
				return
			}
			guestNext.ServeHTTP(w, r)
		})
	}
}

// NewRouter собирает маршруты /api
func NewRouter(h *Handler, tokens *auth.Manager, limits config.RateLimitConfig) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	required := tokens.Required(h.AuthError)

	r.Route("/api", func(r chi.Router) {
		r.Get("/ping", h.PingHandler)

		// RFQ
		r.With(tokens.Optional(h.AuthError), h.RFQRateLimit(limits)).Post("/rfq", h.CreateRFQHandler)

		r.Group(func(r chi.Router) {
			r.Use(required)

			r.Get("/rfq/quota", h.GetQuotaHandler)
			r.Post("/rfq/{rfqId}/complete", h.CompleteRFQHandler)
			r.Post("/rfq/{rfqId}/cancel", h.CancelRFQHandler)

			// котировки
			r.Post("/rfq/{rfqId}/quotes", h.SubmitQuoteHandler)
			r.Get("/rfq/{rfqId}/quotes", h.ListQuotesHandler)
			r.Post("/quote/accept", h.AcceptQuoteHandler)
			r.Patch("/quote/accept", h.RejectQuoteHandler)
			r.Post("/quote/reject", h.RejectQuoteHandler)

			// переговоры
			r.Post("/negotiations", h.OpenNegotiationHandler)
			r.Put("/negotiations/questions/{qaId}", h.AnswerQuestionHandler)
			r.Get("/negotiations/{negotiationId}", h.GetNegotiationHandler)
			r.Patch("/negotiations/{negotiationId}", h.NegotiationActionHandler)
			r.Post("/negotiations/{negotiationId}/offers", h.CounterOfferHandler)
			r.Post("/negotiations/{negotiationId}/questions", h.AskQuestionHandler)
			r.Post("/negotiations/{negotiationId}/report", h.ReportNegotiationHandler)

			// заказы
			r.Post("/job-orders", h.CreateJobOrderHandler)
			r.Get("/job-orders", h.ListJobOrdersHandler)
			r.Get("/job-orders/{orderId}", h.GetJobOrderHandler)
			r.Patch("/job-orders/{orderId}", h.JobOrderActionHandler)

			// найм
			r.Put("/careers/applications/{applicationId}/status", h.UpdateApplicationStatusHandler)
			r.Get("/careers/listings/{listingId}/pipeline", h.GetPipelineHandler)
			r.Post("/careers/contacts/{candidateId}/unlock", h.UnlockContactHandler)

			r.Get("/notifications", h.ListNotificationsHandler)
		})
	})
	return r
}
