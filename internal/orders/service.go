// Package orders создаёт заказы по принятым предложениям и откликам и ведёт их статус.
package orders

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"rfqmarket/db"
	"rfqmarket/internal/apperr"
	"rfqmarket/internal/fsm"
	"rfqmarket/internal/notify"
	"rfqmarket/models"
)

// Действия PATCH /job-orders/{id}
const (
	ActionConfirm  = "confirm"
	ActionComplete = "complete"
	ActionCancel   = "cancel"
	ActionDispute  = "dispute"
)

var lifecycle = fsm.New("job order", map[string][]string{
	models.OrderStatusCreated: {models.OrderStatusActive, models.OrderStatusCancelled},
	models.OrderStatusActive:  {models.OrderStatusCompleted, models.OrderStatusCancelled, models.OrderStatusDisputed},
})

var actionTargets = map[string]string{
	ActionComplete: models.OrderStatusCompleted,
	ActionCancel:   models.OrderStatusCancelled,
	ActionDispute:  models.OrderStatusDisputed,
}

type Store interface {
	CreateJobOrder(ctx context.Context, o *models.JobOrder) (bool, error)
	GetJobOrder(ctx context.Context, id string) (*models.JobOrder, error)
	GetJobOrderBySource(ctx context.Context, negotiationID, applicationID *string) (*models.JobOrder, error)
	ListJobOrders(ctx context.Context, userID, role string) ([]models.JobOrder, error)
	ConfirmJobOrder(ctx context.Context, id, side string) (*models.JobOrder, error)
	TransitionJobOrder(ctx context.Context, id, from, to string, cancelReason *string) (*models.JobOrder, error)
	GetApplication(ctx context.Context, id string) (*models.Application, error)
	GetListing(ctx context.Context, id string) (*models.Listing, error)
}

// ApplicationAdvancer переводит отклик из offer в hired
type ApplicationAdvancer interface {
	MarkHired(ctx context.Context, actorID, applicationID string) (*models.Application, error)
}

type Service struct {
	store    Store
	hiring   ApplicationAdvancer
	notifier *notify.Dispatcher
	log      *zap.Logger
}

func NewService(store Store, hiring ApplicationAdvancer, notifier *notify.Dispatcher, log *zap.Logger) *Service {
	return &Service{store: store, hiring: hiring, notifier: notifier, log: log}
}

// CreateForNegotiation создаёт заказ по принятому встречному предложению.
// Проверки статуса не нужны: само принятие и есть событие-основание.
func (s *Service) CreateForNegotiation(ctx context.Context, accepted *db.AcceptedOffer) (*models.JobOrder, bool, error) {
	t, offer := accepted.Thread, accepted.Offer
	o := &models.JobOrder{
		ID:            uuid.NewString(),
		RFQID:         &t.RFQID,
		QuoteID:       &t.QuoteID,
		NegotiationID: &t.ID,
		BuyerID:       t.BuyerID,
		VendorID:      t.VendorID,
		AgreedPrice:   offer.ProposedPrice,
		Terms:         offer.PaymentTerms,
		StartDate:     offer.DeliveryDate,
		Milestones:    models.JSONList{},
		Status:        models.OrderStatusCreated,
	}
	created, err := s.store.CreateJobOrder(ctx, o)
	if err != nil {
		return nil, false, fmt.Errorf("create job order for negotiation %s: %w", t.ID, err)
	}
	return o, created, nil
}

type ApplicationOrderRequest struct {
	ApplicationID string
	AgreedPrice   *decimal.Decimal
	Terms         *string
	StartDate     *string
	Location      *string
	Milestones    []any
}

// CreateForApplication создаёт заказ по найму. Повторный вызов возвращает
// существующий заказ и alreadyExists=true.
func (s *Service) CreateForApplication(ctx context.Context, actorID string, req ApplicationOrderRequest) (*models.JobOrder, bool, error) {
	app, err := s.store.GetApplication(ctx, req.ApplicationID)
	if errors.Is(err, db.ErrNotFound) {
		return nil, false, apperr.NotFound("Application not found")
	}
	if err != nil {
		return nil, false, apperr.Internal("Failed to load application", err)
	}
	listing, err := s.store.GetListing(ctx, app.ListingID)
	if errors.Is(err, db.ErrNotFound) {
		return nil, false, apperr.NotFound("Listing not found")
	}
	if err != nil {
		return nil, false, apperr.Internal("Failed to load listing", err)
	}
	if listing.EmployerID != actorID {
		return nil, false, apperr.Forbidden("Only the listing owner can create a job order")
	}

	existing, err := s.store.GetJobOrderBySource(ctx, nil, &app.ID)
	if err == nil {
		return existing, true, nil
	}
	if !errors.Is(err, db.ErrNotFound) {
		return nil, false, apperr.Internal("Failed to look up job order", err)
	}

	if app.Status != models.ApplicationHired && app.Status != models.ApplicationOffer {
		return nil, false, apperr.Validation("Application must be at offer or hired stage to create a job order")
	}

	var price decimal.Decimal
	switch {
	case req.AgreedPrice != nil:
		price = *req.AgreedPrice
	case listing.PayMax.Valid:
		price = listing.PayMax.Decimal
	default:
		return nil, false, apperr.Fields("Invalid job order", map[string]string{
			"agreedAmount": "Agreed amount is required when the listing has no pay range",
		})
	}
	if price.IsNegative() {
		return nil, false, apperr.Fields("Invalid job order", map[string]string{
			"agreedAmount": "Agreed amount cannot be negative",
		})
	}

	location := req.Location
	if location == nil {
		location = listing.Location
	}
	milestones := models.JSONList(req.Milestones)
	if milestones == nil {
		milestones = models.JSONList{}
	}

	o := &models.JobOrder{
		ID:              uuid.NewString(),
		ApplicationID:   &app.ID,
		BuyerID:         listing.EmployerID,
		VendorID:        app.CandidateID,
		AgreedPrice:     price,
		Terms:           req.Terms,
		StartDate:       req.StartDate,
		Location:        location,
		Milestones:      milestones,
		Status:          models.OrderStatusActive,
		BuyerConfirmed:  true,
		VendorConfirmed: true,
	}
	created, err := s.store.CreateJobOrder(ctx, o)
	if err != nil {
		return nil, false, apperr.Internal("Failed to create job order", err)
	}
	if !created {
		return o, true, nil
	}

	if app.Status == models.ApplicationOffer && s.hiring != nil {
		if _, err := s.hiring.MarkHired(ctx, actorID, app.ID); err != nil {
			s.log.Warn("application hire transition failed",
				zap.String("application_id", app.ID),
				zap.String("job_order_id", o.ID),
				zap.Error(err),
			)
		}
	}

	s.notifier.Notify(ctx, notify.Notification{
		UserID:   app.CandidateID,
		Type:     notify.TypeJobOrderCreated,
		Title:    "Job order created",
		Body:     "You have been hired for " + listing.Title + ".",
		Metadata: map[string]any{"jobOrderId": o.ID, "applicationId": app.ID},
	})
	return o, false, nil
}

// Act confirm, complete, cancel или dispute от имени одной из сторон
func (s *Service) Act(ctx context.Context, actorID, orderID, action string, reason *string) (*models.JobOrder, error) {
	to, known := actionTargets[action]
	if !known && action != ActionConfirm {
		return nil, apperr.Validation(fmt.Sprintf("Unknown action: %s. Use: %s, %s, %s, %s",
			action, ActionConfirm, ActionComplete, ActionCancel, ActionDispute))
	}

	o, err := s.Get(ctx, actorID, orderID)
	if err != nil {
		return nil, err
	}

	var updated *models.JobOrder
	if action == ActionConfirm {
		if o.Status != models.OrderStatusCreated {
			return nil, apperr.Conflict("Job order is already " + o.Status)
		}
		side := models.SideVendor
		if actorID == o.BuyerID {
			side = models.SideBuyer
		}
		updated, err = s.store.ConfirmJobOrder(ctx, o.ID, side)
	} else {
		if guard := lifecycle.Can(o.Status, to); !guard.Allowed {
			return nil, apperr.Conflict(guard.Reason)
		}
		var cancelReason *string
		if action == ActionCancel {
			cancelReason = reason
		}
		updated, err = s.store.TransitionJobOrder(ctx, o.ID, o.Status, to, cancelReason)
	}
	if errors.Is(err, db.ErrConflict) {
		return nil, apperr.Conflict("Job order status changed, reload and retry")
	}
	if err != nil {
		return nil, apperr.Internal("Failed to update job order", err)
	}

	if updated.Status != o.Status {
		counterpart := o.BuyerID
		if actorID == o.BuyerID {
			counterpart = o.VendorID
		}
		s.notifier.Notify(ctx, notify.Notification{
			UserID:   counterpart,
			Type:     notify.TypeJobOrderStatusChanged,
			Title:    "Job order " + updated.Status,
			Body:     "The job order moved from " + o.Status + " to " + updated.Status + ".",
			Metadata: map[string]any{"jobOrderId": o.ID, "status": updated.Status},
		})
	}
	return updated, nil
}

func (s *Service) Get(ctx context.Context, actorID, orderID string) (*models.JobOrder, error) {
	o, err := s.store.GetJobOrder(ctx, orderID)
	if errors.Is(err, db.ErrNotFound) {
		return nil, apperr.NotFound("Job order not found")
	}
	if err != nil {
		return nil, apperr.Internal("Failed to load job order", err)
	}
	if !o.IsParty(actorID) {
		return nil, apperr.Forbidden("Only the parties to this job order can access it")
	}
	return o, nil
}

// List role: buyer, vendor или пусто
func (s *Service) List(ctx context.Context, actorID, role string) ([]models.JobOrder, error) {
	switch role {
	case "", models.SideBuyer, models.SideVendor:
	default:
		return nil, apperr.Validation("role must be buyer or vendor")
	}
	list, err := s.store.ListJobOrders(ctx, actorID, role)
	if err != nil {
		return nil, apperr.Internal("Failed to load job orders", err)
	}
	if list == nil {
		list = []models.JobOrder{}
	}
	return list, nil
}
