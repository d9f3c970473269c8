// Package rfq создаёт запросы цены и ведёт их жизненный цикл.
package rfq

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"rfqmarket/db"
	"rfqmarket/internal/apperr"
	"rfqmarket/internal/forms"
	"rfqmarket/internal/fsm"
	"rfqmarket/internal/notify"
	"rfqmarket/internal/quota"
	"rfqmarket/models"
)

// MatchLimit максимум вендоров, подбираемых по навыку
const MatchLimit = 50

var lifecycle = fsm.New("rfq", map[string][]string{
	models.RFQStatusPending:  {models.RFQStatusAssigned, models.RFQStatusCancelled},
	models.RFQStatusAssigned: {models.RFQStatusCompleted, models.RFQStatusCancelled},
})

type Store interface {
	quota.Store
	CreateRFQ(ctx context.Context, r *models.RFQ, vendorIDs []string) error
	GetRFQ(ctx context.Context, id string) (*models.RFQ, error)
	TransitionRFQ(ctx context.Context, id string, from []string, to string) (*models.RFQ, error)
	FilterActiveVendors(ctx context.Context, ids []string) ([]string, error)
	MatchVendorsBySkill(ctx context.Context, jobType string, limit int) ([]string, error)
}

type Service struct {
	store    Store
	schema   forms.Schema
	policy   *quota.Policy
	notifier *notify.Dispatcher
	log      *zap.Logger
	now      func() time.Time
}

func NewService(store Store, schema forms.Schema, notifier *notify.Dispatcher, log *zap.Logger) *Service {
	return &Service{
		store:    store,
		schema:   schema,
		policy:   quota.NewPolicy(store),
		notifier: notifier,
		log:      log,
		now:      time.Now,
	}
}

// WithClock подменяет часы и для квоты, и для даты сброса
func (s *Service) WithClock(now func() time.Time) *Service {
	c := *s
	c.now = now
	c.policy = s.policy.WithClock(now)
	return &c
}

type CreateRequest struct {
	UserID               string
	GuestEmail           string
	GuestPhone           string
	GuestPhoneVerifiedAt *time.Time
	RFQType              string
	CategorySlug         string
	JobTypeSlug          string
	FormData             map[string]any
	SelectedVendorIDs    []string
}

type CreateResult struct {
	RFQ         *models.RFQ
	VendorCount int
}

// Create проверяет гостя, форму и квоту, затем сохраняет RFQ и рассылает его вендорам
func (s *Service) Create(ctx context.Context, req CreateRequest) (*CreateResult, error) {
	switch req.RFQType {
	case models.RFQTypeDirect, models.RFQTypeWizard, models.RFQTypePublic:
	default:
		return nil, apperr.Validation("Invalid rfqType. Use: direct, wizard, public")
	}

	if err := checkRequester(req); err != nil {
		return nil, err
	}

	fieldErrs, err := forms.Validate(s.schema, req.CategorySlug, req.JobTypeSlug, req.FormData)
	switch {
	case errors.Is(err, forms.ErrUnknownCategory):
		return nil, apperr.Validation("Category not found")
	case errors.Is(err, forms.ErrUnknownJobType):
		return nil, apperr.Validation("Job type not found")
	case err != nil:
		return nil, apperr.Internal("Failed to validate form", err)
	}
	if len(fieldErrs) > 0 {
		return nil, apperr.Fields("Field validation failed", fieldErrs)
	}

	res, err := s.policy.Check(ctx, quota.Actor{UserID: req.UserID, GuestEmail: req.GuestEmail})
	if err != nil {
		return nil, apperr.Internal("Failed to check RFQ quota", err)
	}
	if !res.Allowed {
		return nil, apperr.Quota("RFQ limit reached", map[string]any{
			"tier":    res.Tier,
			"limit":   res.Limit,
			"used":    res.Used,
			"message": fmt.Sprintf("You have reached your %d RFQ/month limit. Upgrade your plan to post more.", res.Limit),
		})
	}

	vendorIDs, err := s.recipients(ctx, req)
	if err != nil {
		return nil, err
	}

	data := forms.Sanitize(req.FormData)
	r := &models.RFQ{
		ID:           uuid.NewString(),
		RFQType:      req.RFQType,
		CategorySlug: req.CategorySlug,
		JobTypeSlug:  req.JobTypeSlug,
		Title:        title(data, req.JobTypeSlug),
		FormData:     models.JSONMap(data),
	}
	if req.UserID != "" {
		r.UserID = &req.UserID
	} else {
		r.GuestEmail = &req.GuestEmail
		r.GuestPhone = &req.GuestPhone
		r.GuestPhoneVerifiedAt = req.GuestPhoneVerifiedAt
	}

	if err := s.store.CreateRFQ(ctx, r, vendorIDs); err != nil {
		return nil, apperr.Internal("Failed to create RFQ", err)
	}

	list := make([]notify.Notification, 0, len(vendorIDs))
	for _, vendorID := range vendorIDs {
		list = append(list, notify.Notification{
			UserID:   vendorID,
			Type:     notify.TypeNewRFQ,
			Title:    "New RFQ: " + r.Title,
			Body:     "A buyer is looking for " + r.JobTypeSlug + " services. Submit your quote.",
			Metadata: map[string]any{"rfqId": r.ID, "rfqType": r.RFQType},
		})
	}
	s.notifier.NotifyAsync(ctx, list...)

	s.log.Info("rfq created",
		zap.String("rfq_id", r.ID),
		zap.String("rfq_type", r.RFQType),
		zap.Int("vendor_count", len(vendorIDs)),
	)
	return &CreateResult{RFQ: r, VendorCount: len(vendorIDs)}, nil
}

func checkRequester(req CreateRequest) error {
	if req.UserID != "" {
		return nil
	}
	if strings.TrimSpace(req.GuestEmail) == "" {
		return apperr.Validation("userId or guestEmail required")
	}
	if strings.TrimSpace(req.GuestPhone) == "" {
		return apperr.Validation("Phone number required for guests")
	}
	if req.GuestPhoneVerifiedAt == nil {
		return apperr.Validation("Phone verification required")
	}
	return nil
}

func (s *Service) recipients(ctx context.Context, req CreateRequest) ([]string, error) {
	if req.RFQType == models.RFQTypeDirect {
		ids, err := s.store.FilterActiveVendors(ctx, req.SelectedVendorIDs)
		if err != nil {
			return nil, apperr.Internal("Failed to load vendors", err)
		}
		if len(ids) == 0 {
			return nil, apperr.Validation("Select at least one active vendor for a direct RFQ")
		}
		return ids, nil
	}

	ids, err := s.store.MatchVendorsBySkill(ctx, req.JobTypeSlug, MatchLimit)
	if err != nil {
		return nil, apperr.Internal("Failed to match vendors", err)
	}
	return ids, nil
}

func title(data map[string]any, fallback string) string {
	if t, ok := data["project_title"].(string); ok && strings.TrimSpace(t) != "" {
		return strings.TrimSpace(t)
	}
	return fallback
}

// Complete закрывает назначенный RFQ
func (s *Service) Complete(ctx context.Context, actorID, rfqID string) (*models.RFQ, error) {
	return s.transition(ctx, actorID, rfqID, models.RFQStatusCompleted)
}

// Cancel отменяет RFQ, пока работа не завершена
func (s *Service) Cancel(ctx context.Context, actorID, rfqID string) (*models.RFQ, error) {
	return s.transition(ctx, actorID, rfqID, models.RFQStatusCancelled)
}

func (s *Service) transition(ctx context.Context, actorID, rfqID, to string) (*models.RFQ, error) {
	r, err := s.store.GetRFQ(ctx, rfqID)
	if errors.Is(err, db.ErrNotFound) {
		return nil, apperr.NotFound("RFQ not found")
	}
	if err != nil {
		return nil, apperr.Internal("Failed to load RFQ", err)
	}
	if !r.IsOwnedBy(actorID) {
		return nil, apperr.Forbidden("Only the RFQ creator can change its status")
	}
	if guard := lifecycle.Can(r.Status, to); !guard.Allowed {
		return nil, apperr.Conflict(guard.Reason)
	}

	updated, err := s.store.TransitionRFQ(ctx, rfqID, []string{r.Status}, to)
	if errors.Is(err, db.ErrConflict) {
		return nil, apperr.Conflict("RFQ status changed, reload and retry")
	}
	if err != nil {
		return nil, apperr.Internal("Failed to update RFQ", err)
	}
	return updated, nil
}

// Summary остаток квоты на текущий месяц. Limit и Remaining равны nil для безлимита.
type Summary struct {
	Tier      quota.Tier `json:"tier"`
	Used      int        `json:"used"`
	Limit     *int       `json:"limit"`
	Remaining *int       `json:"remaining"`
	ResetsOn  time.Time  `json:"resetsOn"`
}

func (s *Service) QuotaSummary(ctx context.Context, userID string) (*Summary, error) {
	res, err := s.policy.Check(ctx, quota.Actor{UserID: userID})
	if err != nil {
		return nil, apperr.Internal("Failed to check RFQ quota", err)
	}
	sum := &Summary{Tier: res.Tier, Used: res.Used, ResetsOn: quota.NextReset(s.now())}
	if res.Limit != quota.Unlimited {
		limit, remaining := res.Limit, res.Remaining()
		sum.Limit = &limit
		sum.Remaining = &remaining
	}
	return sum, nil
}
