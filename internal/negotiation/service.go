// Package negotiation ведёт переговоры по предложению: встречные предложения,
// вопросы и ответы, принятие, отказ и отмену.
package negotiation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"rfqmarket/db"
	"rfqmarket/internal/apperr"
	"rfqmarket/internal/fsm"
	"rfqmarket/internal/notify"
	"rfqmarket/models"
)

const (
	MaxRounds             = 3
	DefaultResponseByDays = 3
	MaxResponseByDays     = 30
)

// Действия PATCH /negotiations/{id}
const (
	ActionAcceptOffer = "accept_offer"
	ActionRejectOffer = "reject_offer"
	ActionCancel      = "cancel"
)

var threadStates = fsm.New("negotiation", map[string][]string{
	models.ThreadStatusOpen: {
		models.ThreadStatusAccepted,
		models.ThreadStatusRejected,
		models.ThreadStatusCancelled,
		models.ThreadStatusExpired,
	},
})

var offerStates = fsm.New("offer", map[string][]string{
	models.OfferStatusPending: {
		models.OfferStatusAccepted,
		models.OfferStatusRejected,
		models.OfferStatusCancelled,
		models.OfferStatusExpired,
	},
})

type Store interface {
	GetRFQ(ctx context.Context, id string) (*models.RFQ, error)
	GetQuote(ctx context.Context, id string) (*models.Quote, error)
	CreateThread(ctx context.Context, t *models.NegotiationThread) (bool, error)
	GetThread(ctx context.Context, id string) (*models.NegotiationThread, error)
	CreateCounterOffer(ctx context.Context, o *models.CounterOffer, quoteID string, notes *string) error
	GetCounterOffer(ctx context.Context, id string) (*models.CounterOffer, error)
	AcceptCounterOffer(ctx context.Context, threadID, offerID string) (*db.AcceptedOffer, error)
	RejectCounterOffer(ctx context.Context, threadID, offerID string, reason *string) (*models.CounterOffer, *models.NegotiationThread, error)
	CancelThread(ctx context.Context, threadID string) (*models.NegotiationThread, int, error)
	ListCounterOffers(ctx context.Context, threadID string) ([]models.CounterOffer, error)
	CreateQAItem(ctx context.Context, item *models.QAItem) error
	GetQAItem(ctx context.Context, id string) (*models.QAItem, error)
	AnswerQAItem(ctx context.Context, id, answeredBy, answer string) (*models.QAItem, error)
	ListQAItems(ctx context.Context, threadID string) ([]models.QAItem, error)
	ListRevisions(ctx context.Context, threadID string) ([]models.QuoteRevision, error)
	CreateReport(ctx context.Context, r *models.NegotiationReport) error
	ExpireOffers(ctx context.Context, now time.Time) ([]db.ExpiredOffer, error)
}

// OrderCreator создаёт заказ по принятому предложению. created=false, если заказ уже был.
type OrderCreator interface {
	CreateForNegotiation(ctx context.Context, accepted *db.AcceptedOffer) (order *models.JobOrder, created bool, err error)
}

type Service struct {
	store    Store
	orders   OrderCreator
	notifier *notify.Dispatcher
	log      *zap.Logger
	now      func() time.Time
}

func NewService(store Store, orders OrderCreator, notifier *notify.Dispatcher, log *zap.Logger) *Service {
	return &Service{store: store, orders: orders, notifier: notifier, log: log, now: time.Now}
}

// WithClock подменяет часы
func (s *Service) WithClock(now func() time.Time) *Service {
	c := *s
	c.now = now
	return &c
}

// Open открывает переговоры по предложению или возвращает уже открытые
func (s *Service) Open(ctx context.Context, actorID, quoteID string) (*models.NegotiationThread, bool, error) {
	q, err := s.store.GetQuote(ctx, quoteID)
	if errors.Is(err, db.ErrNotFound) {
		return nil, false, apperr.NotFound("Quote not found")
	}
	if err != nil {
		return nil, false, apperr.Internal("Failed to load quote", err)
	}
	r, err := s.store.GetRFQ(ctx, q.RFQID)
	if errors.Is(err, db.ErrNotFound) {
		return nil, false, apperr.NotFound("RFQ not found")
	}
	if err != nil {
		return nil, false, apperr.Internal("Failed to load RFQ", err)
	}
	if r.UserID == nil {
		return nil, false, apperr.Validation("Guest RFQs cannot be negotiated")
	}
	if !r.IsOwnedBy(actorID) && q.VendorID != actorID {
		return nil, false, apperr.Forbidden("Only the buyer or the quoting vendor can open a negotiation")
	}
	if q.Status != models.QuoteStatusSubmitted && q.Status != models.QuoteStatusRevised {
		return nil, false, apperr.Conflict("Quote is no longer open for negotiation")
	}

	t := &models.NegotiationThread{
		ID:            uuid.NewString(),
		QuoteID:       q.ID,
		RFQID:         r.ID,
		BuyerID:       *r.UserID,
		VendorID:      q.VendorID,
		Status:        models.ThreadStatusOpen,
		OriginalPrice: q.QuotedPrice,
		CurrentPrice:  q.QuotedPrice,
		MaxRounds:     MaxRounds,
	}
	created, err := s.store.CreateThread(ctx, t)
	if err != nil {
		return nil, false, apperr.Internal("Failed to open negotiation", err)
	}
	if created {
		s.notifier.Notify(ctx, notify.Notification{
			UserID:   t.Counterpart(actorID),
			Type:     notify.TypeNegotiationStarted,
			Title:    "Negotiation started",
			Body:     "A negotiation was opened on the quote for " + r.Title + ".",
			Metadata: map[string]any{"negotiationId": t.ID, "quoteId": q.ID},
		})
	}
	return t, !created, nil
}

type OfferRequest struct {
	Price          decimal.Decimal
	ScopeChanges   *string
	DeliveryDate   *string
	PaymentTerms   *string
	Message        *string
	ResponseByDays int
}

// ProposeOffer добавляет встречное предложение следующего раунда
func (s *Service) ProposeOffer(ctx context.Context, actorID, threadID string, req OfferRequest) (*models.CounterOffer, error) {
	t, err := s.participantThread(ctx, actorID, threadID)
	if err != nil {
		return nil, err
	}
	if t.Status != models.ThreadStatusOpen {
		return nil, apperr.Validation("Negotiation is " + t.Status)
	}
	if t.RoundCount >= t.MaxRounds {
		return nil, apperr.Validation(fmt.Sprintf("Maximum of %d negotiation rounds reached", t.MaxRounds))
	}

	days := req.ResponseByDays
	if days == 0 {
		days = DefaultResponseByDays
	}
	if days < 1 || days > MaxResponseByDays {
		return nil, apperr.Fields("Invalid counter offer", map[string]string{
			"responseByDays": fmt.Sprintf("Response window must be between 1 and %d days", MaxResponseByDays),
		})
	}
	if !req.Price.IsPositive() {
		return nil, apperr.Fields("Invalid counter offer", map[string]string{
			"proposedPrice": "Proposed price must be greater than zero",
		})
	}

	now := s.now().UTC()
	o := &models.CounterOffer{
		ID:            uuid.NewString(),
		ThreadID:      t.ID,
		ProposedBy:    actorID,
		ProposerSide:  t.SideOf(actorID),
		ProposedPrice: req.Price,
		ScopeChanges:  req.ScopeChanges,
		DeliveryDate:  req.DeliveryDate,
		PaymentTerms:  req.PaymentTerms,
		Message:       req.Message,
		ResponseBy:    now.AddDate(0, 0, days),
	}
	err = s.store.CreateCounterOffer(ctx, o, t.QuoteID, req.Message)
	if errors.Is(err, db.ErrConflict) {
		return nil, apperr.Validation("Negotiation is closed or has reached the maximum number of rounds")
	}
	if err != nil {
		return nil, apperr.Internal("Failed to create counter offer", err)
	}

	s.notifier.Notify(ctx, notify.Notification{
		UserID: t.Counterpart(actorID),
		Type:   notify.TypeCounterOffer,
		Title:  "New Counter Offer Received",
		Body:   fmt.Sprintf("Round %d: %s proposed. Respond by %s.", o.RoundNumber, o.ProposedPrice.StringFixed(2), o.ResponseBy.Format("2006-01-02")),
		Metadata: map[string]any{
			"negotiationId": t.ID,
			"offerId":       o.ID,
			"roundNumber":   o.RoundNumber,
		},
	})
	return o, nil
}

type ActRequest struct {
	Action  string
	OfferID string
	Reason  *string
}

// ActResult заполняется в зависимости от действия
type ActResult struct {
	Action          string                    `json:"action"`
	Message         string                    `json:"message"`
	Thread          *models.NegotiationThread `json:"thread"`
	Offer           *models.CounterOffer      `json:"offer,omitempty"`
	Quote           *models.Quote             `json:"quote,omitempty"`
	CancelledOffers int                       `json:"cancelledOffers"`
	JobOrder        *models.JobOrder          `json:"jobOrder,omitempty"`
}

// Act выполняет accept_offer, reject_offer или cancel
func (s *Service) Act(ctx context.Context, actorID, threadID string, req ActRequest) (*ActResult, error) {
	switch req.Action {
	case ActionAcceptOffer, ActionRejectOffer, ActionCancel:
	default:
		return nil, apperr.Validation(fmt.Sprintf("Unknown action: %s. Use: %s, %s, %s",
			req.Action, ActionAcceptOffer, ActionRejectOffer, ActionCancel))
	}

	t, err := s.participantThread(ctx, actorID, threadID)
	if err != nil {
		return nil, err
	}

	switch req.Action {
	case ActionAcceptOffer:
		return s.acceptOffer(ctx, actorID, t, req.OfferID)
	case ActionRejectOffer:
		return s.rejectOffer(ctx, actorID, t, req.OfferID, req.Reason)
	default:
		return s.cancel(ctx, actorID, t, req.Reason)
	}
}

func (s *Service) pendingOffer(ctx context.Context, t *models.NegotiationThread, offerID string) (*models.CounterOffer, error) {
	if offerID == "" {
		return nil, apperr.Validation("offerId is required")
	}
	if guard := threadStates.Can(t.Status, models.ThreadStatusAccepted); !guard.Allowed {
		return nil, apperr.Validation("Negotiation is " + t.Status)
	}
	o, err := s.store.GetCounterOffer(ctx, offerID)
	if err != nil && !errors.Is(err, db.ErrNotFound) {
		return nil, apperr.Internal("Failed to load offer", err)
	}
	if o == nil || o.ThreadID != t.ID || !offerStates.Can(o.Status, models.OfferStatusAccepted).Allowed {
		return nil, apperr.Validation("Offer not found or already resolved")
	}
	return o, nil
}

func (s *Service) acceptOffer(ctx context.Context, actorID string, t *models.NegotiationThread, offerID string) (*ActResult, error) {
	o, err := s.pendingOffer(ctx, t, offerID)
	if err != nil {
		return nil, err
	}
	if o.ProposedBy == actorID {
		return nil, apperr.Validation("You cannot accept your own offer")
	}
	if s.now().After(o.ResponseBy) {
		return nil, apperr.Validation("Offer has expired")
	}

	accepted, err := s.store.AcceptCounterOffer(ctx, t.ID, o.ID)
	switch {
	case errors.Is(err, db.ErrNotFound):
		return nil, apperr.Validation("Offer not found or already resolved")
	case errors.Is(err, db.ErrConflict):
		return nil, apperr.Conflict("Negotiation has already been resolved or another quote was accepted")
	case err != nil:
		return nil, apperr.Internal("Failed to accept offer", err)
	}

	s.notifier.Notify(ctx, notify.Notification{
		UserID:   o.ProposedBy,
		Type:     notify.TypeOfferAccepted,
		Title:    "Counter offer accepted",
		Body:     "Your offer of " + o.ProposedPrice.StringFixed(2) + " was accepted.",
		Metadata: map[string]any{"negotiationId": t.ID, "offerId": o.ID},
	})

	res := &ActResult{
		Action:          ActionAcceptOffer,
		Message:         "Offer accepted",
		Thread:          accepted.Thread,
		Offer:           accepted.Offer,
		Quote:           accepted.Quote,
		CancelledOffers: accepted.CancelledOffers,
	}

	// заказ производный: ошибка не отменяет принятие
	if s.orders != nil {
		order, created, err := s.orders.CreateForNegotiation(ctx, accepted)
		if err != nil {
			s.log.Warn("job order creation failed",
				zap.String("negotiation_id", t.ID),
				zap.String("offer_id", o.ID),
				zap.Error(err),
			)
		} else {
			res.JobOrder = order
			if created {
				s.notifyOrderCreated(ctx, t, order)
			}
		}
	}
	return res, nil
}

func (s *Service) notifyOrderCreated(ctx context.Context, t *models.NegotiationThread, order *models.JobOrder) {
	meta := map[string]any{"jobOrderId": order.ID, "negotiationId": t.ID}
	body := "A job order for " + order.AgreedPrice.StringFixed(2) + " was created. Confirm it to get started."
	s.notifier.Notify(ctx,
		notify.Notification{UserID: t.BuyerID, Type: notify.TypeJobOrderCreated, Title: "Job order created", Body: body, Metadata: meta},
		notify.Notification{UserID: t.VendorID, Type: notify.TypeJobOrderCreated, Title: "Job order created", Body: body, Metadata: meta},
	)
}

func (s *Service) rejectOffer(ctx context.Context, actorID string, t *models.NegotiationThread, offerID string, reason *string) (*ActResult, error) {
	o, err := s.pendingOffer(ctx, t, offerID)
	if err != nil {
		return nil, err
	}

	offer, thread, err := s.store.RejectCounterOffer(ctx, t.ID, o.ID, reason)
	switch {
	case errors.Is(err, db.ErrConflict), errors.Is(err, db.ErrNotFound):
		return nil, apperr.Validation("Offer not found or already resolved")
	case err != nil:
		return nil, apperr.Internal("Failed to reject offer", err)
	}

	body := "Your offer of " + o.ProposedPrice.StringFixed(2) + " was declined."
	if reason != nil && *reason != "" {
		body += " Reason: " + *reason
	}
	s.notifier.Notify(ctx, notify.Notification{
		UserID:   t.Counterpart(actorID),
		Type:     notify.TypeOfferRejected,
		Title:    "Counter offer declined",
		Body:     body,
		Metadata: map[string]any{"negotiationId": t.ID, "offerId": o.ID, "threadStatus": thread.Status},
	})

	return &ActResult{Action: ActionRejectOffer, Message: "Offer rejected", Thread: thread, Offer: offer}, nil
}

func (s *Service) cancel(ctx context.Context, actorID string, t *models.NegotiationThread, reason *string) (*ActResult, error) {
	if guard := threadStates.Can(t.Status, models.ThreadStatusCancelled); !guard.Allowed {
		return nil, apperr.Conflict(guard.Reason)
	}

	thread, cancelled, err := s.store.CancelThread(ctx, t.ID)
	if errors.Is(err, db.ErrConflict) {
		return nil, apperr.Conflict("Negotiation is already closed")
	}
	if err != nil {
		return nil, apperr.Internal("Failed to cancel negotiation", err)
	}

	body := "The other party cancelled the negotiation."
	if reason != nil && *reason != "" {
		body += " Reason: " + *reason
	}
	s.notifier.Notify(ctx, notify.Notification{
		UserID:   t.Counterpart(actorID),
		Type:     notify.TypeNegotiationCancelled,
		Title:    "Negotiation cancelled",
		Body:     body,
		Metadata: map[string]any{"negotiationId": t.ID},
	})

	return &ActResult{Action: ActionCancel, Message: "Negotiation cancelled", Thread: thread, CancelledOffers: cancelled}, nil
}

// Stats счётчики для экрана переговоров
type Stats struct {
	TotalCounterOffers  int `json:"totalCounterOffers"`
	AcceptedOffers      int `json:"acceptedOffers"`
	PendingOffers       int `json:"pendingOffers"`
	TotalQuestions      int `json:"totalQuestions"`
	AnsweredQuestions   int `json:"answeredQuestions"`
	UnansweredQuestions int `json:"unansweredQuestions"`
	TotalRevisions      int `json:"totalRevisions"`
}

// ThreadWithStats в JSON поля статистики лежат рядом с полями ветки
type ThreadWithStats struct {
	*models.NegotiationThread
	Stats
}

type ThreadView struct {
	Thread        ThreadWithStats        `json:"thread"`
	CounterOffers []models.CounterOffer  `json:"counterOffers"`
	QAItems       []models.QAItem        `json:"qaItems"`
	Revisions     []models.QuoteRevision `json:"revisions"`
}

// GetThread собирает ветку со всеми предложениями, вопросами и ревизиями
func (s *Service) GetThread(ctx context.Context, actorID, threadID string) (*ThreadView, error) {
	t, err := s.participantThread(ctx, actorID, threadID)
	if err != nil {
		return nil, err
	}

	offers, err := s.store.ListCounterOffers(ctx, t.ID)
	if err != nil {
		return nil, apperr.Internal("Failed to load counter offers", err)
	}
	qa, err := s.store.ListQAItems(ctx, t.ID)
	if err != nil {
		return nil, apperr.Internal("Failed to load questions", err)
	}
	revisions, err := s.store.ListRevisions(ctx, t.ID)
	if err != nil {
		return nil, apperr.Internal("Failed to load revisions", err)
	}

	view := &ThreadView{
		Thread:        ThreadWithStats{NegotiationThread: t},
		CounterOffers: offers,
		QAItems:       qa,
		Revisions:     revisions,
	}
	if view.CounterOffers == nil {
		view.CounterOffers = []models.CounterOffer{}
	}
	if view.QAItems == nil {
		view.QAItems = []models.QAItem{}
	}
	if view.Revisions == nil {
		view.Revisions = []models.QuoteRevision{}
	}

	st := &view.Thread.Stats
	st.TotalCounterOffers = len(offers)
	for _, o := range offers {
		switch o.Status {
		case models.OfferStatusAccepted:
			st.AcceptedOffers++
		case models.OfferStatusPending:
			st.PendingOffers++
		}
	}
	st.TotalQuestions = len(qa)
	for _, item := range qa {
		if item.Answer != nil {
			st.AnsweredQuestions++
		}
	}
	st.UnansweredQuestions = st.TotalQuestions - st.AnsweredQuestions
	st.TotalRevisions = len(revisions)
	return view, nil
}

// AskQuestion задаёт вопрос второй стороне
func (s *Service) AskQuestion(ctx context.Context, actorID, threadID, question string) (*models.QAItem, error) {
	t, err := s.participantThread(ctx, actorID, threadID)
	if err != nil {
		return nil, err
	}
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, apperr.Validation("Question cannot be empty")
	}
	if t.Status != models.ThreadStatusOpen {
		return nil, apperr.Validation("Negotiation is " + t.Status)
	}

	item := &models.QAItem{ID: uuid.NewString(), ThreadID: t.ID, AskedBy: actorID, Question: question}
	if err := s.store.CreateQAItem(ctx, item); err != nil {
		return nil, apperr.Internal("Failed to save question", err)
	}

	s.notifier.Notify(ctx, notify.Notification{
		UserID:   t.Counterpart(actorID),
		Type:     notify.TypeNegotiationQuestion,
		Title:    "New question in negotiation",
		Body:     question,
		Metadata: map[string]any{"negotiationId": t.ID, "qaId": item.ID},
	})
	return item, nil
}

// AnswerQuestion отвечает на вопрос другой стороны; ответить можно один раз
func (s *Service) AnswerQuestion(ctx context.Context, actorID, qaID, answer string) (*models.QAItem, error) {
	item, err := s.store.GetQAItem(ctx, qaID)
	if errors.Is(err, db.ErrNotFound) {
		return nil, apperr.NotFound("Question not found")
	}
	if err != nil {
		return nil, apperr.Internal("Failed to load question", err)
	}
	t, err := s.participantThread(ctx, actorID, item.ThreadID)
	if err != nil {
		return nil, err
	}
	if item.AskedBy == actorID {
		return nil, apperr.Validation("You cannot answer your own question")
	}
	answer = strings.TrimSpace(answer)
	if answer == "" {
		return nil, apperr.Validation("Answer cannot be empty")
	}
	if item.Answer != nil {
		return nil, apperr.Validation("This question has already been answered")
	}

	answered, err := s.store.AnswerQAItem(ctx, item.ID, actorID, answer)
	if errors.Is(err, db.ErrConflict) {
		return nil, apperr.Validation("This question has already been answered")
	}
	if err != nil {
		return nil, apperr.Internal("Failed to save answer", err)
	}

	s.notifier.Notify(ctx, notify.Notification{
		UserID:   item.AskedBy,
		Type:     notify.TypeNegotiationAnswer,
		Title:    "Your question was answered",
		Body:     answer,
		Metadata: map[string]any{"negotiationId": t.ID, "qaId": item.ID},
	})
	return answered, nil
}

// Report помечает переговоры для проверки администратором
func (s *Service) Report(ctx context.Context, actorID, threadID, reason string, details *string) (*models.NegotiationReport, error) {
	t, err := s.participantThread(ctx, actorID, threadID)
	if err != nil {
		return nil, err
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, apperr.Validation("Reason is required")
	}

	r := &models.NegotiationReport{
		ID:           uuid.NewString(),
		ThreadID:     t.ID,
		ReportedBy:   actorID,
		ReportedUser: t.Counterpart(actorID),
		Reason:       reason,
		Details:      details,
	}
	if err := s.store.CreateReport(ctx, r); err != nil {
		return nil, apperr.Internal("Failed to save report", err)
	}
	s.log.Warn("negotiation reported",
		zap.String("negotiation_id", t.ID),
		zap.String("reported_by", actorID),
		zap.String("reason", reason),
	)
	return r, nil
}

// ExpireOffers переводит просроченные предложения в expired и уведомляет стороны
func (s *Service) ExpireOffers(ctx context.Context) ([]db.ExpiredOffer, error) {
	expired, err := s.store.ExpireOffers(ctx, s.now().UTC())
	if err != nil {
		return nil, fmt.Errorf("expire offers: %w", err)
	}

	closed := map[string]bool{}
	for _, e := range expired {
		meta := map[string]any{"negotiationId": e.ThreadID, "offerId": e.OfferID}
		s.notifier.Notify(ctx, notify.Notification{
			UserID:   e.ProposedBy,
			Type:     notify.TypeOfferExpired,
			Title:    "Counter offer expired",
			Body:     fmt.Sprintf("Your round %d offer expired without a response.", e.RoundNumber),
			Metadata: meta,
		})
		if e.ThreadExpired && !closed[e.ThreadID] {
			closed[e.ThreadID] = true
			body := "The negotiation expired after the final round went unanswered."
			s.notifier.Notify(ctx,
				notify.Notification{UserID: e.BuyerID, Type: notify.TypeOfferExpired, Title: "Negotiation expired", Body: body, Metadata: meta},
				notify.Notification{UserID: e.VendorID, Type: notify.TypeOfferExpired, Title: "Negotiation expired", Body: body, Metadata: meta},
			)
		}
	}
	if len(expired) > 0 {
		s.log.Info("offers expired", zap.Int("offers", len(expired)), zap.Int("threads", len(closed)))
	}
	return expired, nil
}

func (s *Service) participantThread(ctx context.Context, actorID, threadID string) (*models.NegotiationThread, error) {
	t, err := s.store.GetThread(ctx, threadID)
	if errors.Is(err, db.ErrNotFound) {
		return nil, apperr.NotFound("Negotiation not found")
	}
	if err != nil {
		return nil, apperr.Internal("Failed to load negotiation", err)
	}
	if !t.IsParticipant(actorID) {
		return nil, apperr.Forbidden("User is not a participant in this negotiation")
	}
	return t, nil
}
