// Package quotes принимает ответы вендоров на RFQ и решения покупателя по ним.
package quotes

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"rfqmarket/db"
	"rfqmarket/internal/apperr"
	"rfqmarket/internal/notify"
	"rfqmarket/models"
)

// MinDescriptionLen минимальная длина описания предложения
const MinDescriptionLen = 20

type Store interface {
	GetRFQ(ctx context.Context, id string) (*models.RFQ, error)
	IsRFQRecipient(ctx context.Context, rfqID, vendorID string) (bool, error)
	IsActiveVendor(ctx context.Context, id string) (bool, error)
	CreateQuote(ctx context.Context, q *models.Quote) error
	GetQuote(ctx context.Context, id string) (*models.Quote, error)
	ListQuotesForRFQ(ctx context.Context, rfqID string) ([]models.Quote, error)
	AcceptQuote(ctx context.Context, rfqID, quoteID string) (*models.Quote, error)
	RejectQuote(ctx context.Context, quoteID string) (*models.Quote, error)
}

// ContactBook отдаёт контакт пользователя
type ContactBook interface {
	Contact(ctx context.Context, userID string) (*models.Contact, error)
}

type Service struct {
	store    Store
	contacts ContactBook
	notifier *notify.Dispatcher
	log      *zap.Logger
}

func NewService(store Store, contacts ContactBook, notifier *notify.Dispatcher, log *zap.Logger) *Service {
	return &Service{store: store, contacts: contacts, notifier: notifier, log: log}
}

type SubmitRequest struct {
	VendorID    string
	RFQID       string
	Price       decimal.Decimal
	Timeline    string
	Description string
}

func (s *Service) Submit(ctx context.Context, req SubmitRequest) (*models.Quote, error) {
	fields := map[string]string{}
	if !req.Price.IsPositive() {
		fields["quotedPrice"] = "Quoted price must be greater than 0"
	}
	if strings.TrimSpace(req.Timeline) == "" {
		fields["timeline"] = "Timeline is required"
	}
	if utf8.RuneCountInString(strings.TrimSpace(req.Description)) < MinDescriptionLen {
		fields["description"] = "Description must be at least 20 characters"
	}
	if len(fields) > 0 {
		return nil, apperr.Fields("Invalid quote", fields)
	}

	active, err := s.store.IsActiveVendor(ctx, req.VendorID)
	if err != nil {
		return nil, apperr.Internal("Failed to load vendor", err)
	}
	if !active {
		return nil, apperr.Forbidden("Only active vendors can submit quotes")
	}

	r, err := s.loadRFQ(ctx, req.RFQID)
	if err != nil {
		return nil, err
	}
	if r.Status != models.RFQStatusPending {
		return nil, apperr.Conflict("RFQ is no longer accepting quotes")
	}
	if r.RFQType == models.RFQTypeDirect {
		ok, err := s.store.IsRFQRecipient(ctx, r.ID, req.VendorID)
		if err != nil {
			return nil, apperr.Internal("Failed to check RFQ recipients", err)
		}
		if !ok {
			return nil, apperr.Forbidden("This RFQ was sent to selected vendors only")
		}
	}

	q := &models.Quote{
		ID:          uuid.NewString(),
		RFQID:       r.ID,
		VendorID:    req.VendorID,
		QuotedPrice: req.Price,
		Timeline:    strings.TrimSpace(req.Timeline),
		Description: strings.TrimSpace(req.Description),
	}
	err = s.store.CreateQuote(ctx, q)
	if errors.Is(err, db.ErrConflict) {
		return nil, apperr.Conflict("You have already submitted a quote for this RFQ")
	}
	if err != nil {
		return nil, apperr.Internal("Failed to submit quote", err)
	}

	if r.UserID != nil {
		s.notifier.Notify(ctx, notify.Notification{
			UserID:   *r.UserID,
			Type:     notify.TypeNewQuote,
			Title:    "New quote received",
			Body:     "A vendor has quoted " + q.QuotedPrice.StringFixed(2) + " for " + r.Title + ".",
			Metadata: map[string]any{"rfqId": r.ID, "quoteId": q.ID},
		})
	}
	return q, nil
}

// ListForRFQ предложения видит только владелец RFQ
func (s *Service) ListForRFQ(ctx context.Context, actorID, rfqID string) ([]models.Quote, error) {
	r, err := s.loadRFQ(ctx, rfqID)
	if err != nil {
		return nil, err
	}
	if !r.IsOwnedBy(actorID) {
		return nil, apperr.Forbidden("Only the RFQ creator can view its quotes")
	}
	list, err := s.store.ListQuotesForRFQ(ctx, rfqID)
	if err != nil {
		return nil, apperr.Internal("Failed to load quotes", err)
	}
	if list == nil {
		list = []models.Quote{}
	}
	return list, nil
}

type AcceptResult struct {
	Quote         *models.Quote
	BuyerContact  *models.Contact
	VendorContact *models.Contact
}

// Accept назначает вендора на RFQ и раскрывает контакты обеих сторон
func (s *Service) Accept(ctx context.Context, actorID, rfqID, quoteID string) (*AcceptResult, error) {
	r, q, err := s.ownedQuote(ctx, actorID, rfqID, quoteID, "Only the RFQ creator can accept quotes")
	if err != nil {
		return nil, err
	}

	accepted, err := s.store.AcceptQuote(ctx, r.ID, q.ID)
	switch {
	case errors.Is(err, db.ErrConflict):
		return nil, apperr.Conflict("Another quote has already been accepted for this RFQ")
	case errors.Is(err, db.ErrNotFound):
		return nil, apperr.NotFound("Quote not found")
	case err != nil:
		return nil, apperr.Internal("Failed to accept quote", err)
	}

	buyer := s.contact(ctx, actorID)
	vendor := s.contact(ctx, accepted.VendorID)

	s.notifier.Notify(ctx,
		notify.Notification{
			UserID: accepted.VendorID,
			Type:   notify.TypeQuoteAccepted,
			Title:  "Your quote was accepted",
			Body:   "Congratulations! Contact " + buyer.Name + " to get started on " + r.Title + ".",
			Metadata: map[string]any{
				"rfqId":        r.ID,
				"quoteId":      accepted.ID,
				"buyerContact": buyer,
			},
		},
		notify.Notification{
			UserID: actorID,
			Type:   notify.TypeQuoteAccepted,
			Title:  "Quote accepted",
			Body:   "You accepted the quote from " + vendor.Name + ". Their contact details are now available.",
			Metadata: map[string]any{
				"rfqId":         r.ID,
				"quoteId":       accepted.ID,
				"vendorContact": vendor,
			},
		},
	)
	s.sms(ctx, vendor, "quote_accepted_vendor", map[string]string{"buyerName": buyer.Name, "rfqTitle": r.Title})
	s.sms(ctx, buyer, "quote_accepted_buyer", map[string]string{"vendorName": vendor.Name, "rfqTitle": r.Title})

	return &AcceptResult{Quote: accepted, BuyerContact: buyer, VendorContact: vendor}, nil
}

// Reject отклоняет предложение без раскрытия контактов
func (s *Service) Reject(ctx context.Context, actorID, rfqID, quoteID string) (*models.Quote, error) {
	r, q, err := s.ownedQuote(ctx, actorID, rfqID, quoteID, "Unauthorized")
	if err != nil {
		return nil, err
	}

	rejected, err := s.store.RejectQuote(ctx, q.ID)
	switch {
	case errors.Is(err, db.ErrConflict):
		return nil, apperr.Conflict("Quote has already been decided")
	case err != nil:
		return nil, apperr.Internal("Failed to reject quote", err)
	}

	s.notifier.Notify(ctx, notify.Notification{
		UserID:   rejected.VendorID,
		Type:     notify.TypeQuoteRejected,
		Title:    "Update on your quote",
		Body:     "The buyer went with another option for " + r.Title + " this time. Keep quoting, new requests arrive daily.",
		Metadata: map[string]any{"rfqId": r.ID, "quoteId": rejected.ID},
	})
	return rejected, nil
}

func (s *Service) ownedQuote(ctx context.Context, actorID, rfqID, quoteID, forbidden string) (*models.RFQ, *models.Quote, error) {
	r, err := s.loadRFQ(ctx, rfqID)
	if err != nil {
		return nil, nil, err
	}
	if !r.IsOwnedBy(actorID) {
		return nil, nil, apperr.Forbidden(forbidden)
	}

	q, err := s.store.GetQuote(ctx, quoteID)
	if errors.Is(err, db.ErrNotFound) {
		return nil, nil, apperr.NotFound("Quote not found")
	}
	if err != nil {
		return nil, nil, apperr.Internal("Failed to load quote", err)
	}
	if q.RFQID != r.ID {
		return nil, nil, apperr.Validation("Quote does not belong to this RFQ")
	}
	return r, q, nil
}

func (s *Service) loadRFQ(ctx context.Context, id string) (*models.RFQ, error) {
	r, err := s.store.GetRFQ(ctx, id)
	if errors.Is(err, db.ErrNotFound) {
		return nil, apperr.NotFound("RFQ not found")
	}
	if err != nil {
		return nil, apperr.Internal("Failed to load RFQ", err)
	}
	return r, nil
}

// contact не бывает nil: без профиля возвращается пустой контакт
func (s *Service) contact(ctx context.Context, userID string) *models.Contact {
	c, err := s.contacts.Contact(ctx, userID)
	if err != nil {
		s.log.Warn("contact lookup failed", zap.String("user_id", userID), zap.Error(err))
		return &models.Contact{}
	}
	return c
}

func (s *Service) sms(ctx context.Context, c *models.Contact, template string, args map[string]string) {
	if c.Phone == nil {
		return
	}
	s.notifier.SMS(ctx, notify.SMSMessage{PhoneNumber: *c.Phone, Template: template, Args: args})
}
