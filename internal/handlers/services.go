package handlers

import (
	"context"

	"rfqmarket/internal/careers"
	"rfqmarket/internal/negotiation"
	"rfqmarket/internal/orders"
	"rfqmarket/internal/quotes"
	"rfqmarket/internal/rfq"
	"rfqmarket/models"
)

type RFQService interface {
	Create(ctx context.Context, req rfq.CreateRequest) (*rfq.CreateResult, error)
	Complete(ctx context.Context, actorID, rfqID string) (*models.RFQ, error)
	Cancel(ctx context.Context, actorID, rfqID string) (*models.RFQ, error)
	QuotaSummary(ctx context.Context, userID string) (*rfq.Summary, error)
}

type QuoteService interface {
	Submit(ctx context.Context, req quotes.SubmitRequest) (*models.Quote, error)
	ListForRFQ(ctx context.Context, actorID, rfqID string) ([]models.Quote, error)
	Accept(ctx context.Context, actorID, rfqID, quoteID string) (*quotes.AcceptResult, error)
	Reject(ctx context.Context, actorID, rfqID, quoteID string) (*models.Quote, error)
}

type NegotiationService interface {
	Open(ctx context.Context, actorID, quoteID string) (*models.NegotiationThread, bool, error)
	ProposeOffer(ctx context.Context, actorID, threadID string, req negotiation.OfferRequest) (*models.CounterOffer, error)
	Act(ctx context.Context, actorID, threadID string, req negotiation.ActRequest) (*negotiation.ActResult, error)
	GetThread(ctx context.Context, actorID, threadID string) (*negotiation.ThreadView, error)
	AskQuestion(ctx context.Context, actorID, threadID, question string) (*models.QAItem, error)
	AnswerQuestion(ctx context.Context, actorID, qaID, answer string) (*models.QAItem, error)
	Report(ctx context.Context, actorID, threadID, reason string, details *string) (*models.NegotiationReport, error)
}

type OrderService interface {
	CreateForApplication(ctx context.Context, actorID string, req orders.ApplicationOrderRequest) (*models.JobOrder, bool, error)
	Act(ctx context.Context, actorID, orderID, action string, reason *string) (*models.JobOrder, error)
	Get(ctx context.Context, actorID, orderID string) (*models.JobOrder, error)
	List(ctx context.Context, actorID, role string) ([]models.JobOrder, error)
}

type CareersService interface {
	UpdateStatus(ctx context.Context, actorID, applicationID, status string) (*models.Application, error)
	GetPipeline(ctx context.Context, actorID, listingID string) (*careers.Pipeline, error)
	UnlockContact(ctx context.Context, employerID, candidateID string) (*models.Contact, bool, error)
}

type NotificationStore interface {
	ListNotifications(ctx context.Context, userID string, limit int) ([]models.Notification, error)
}

// Services зависимости Handler
type Services struct {
	RFQ           RFQService
	Quotes        QuoteService
	Negotiations  NegotiationService
	Orders        OrderService
	Careers       CareersService
	Notifications NotificationStore
}
