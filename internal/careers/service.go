// Package careers ведёт воронку найма по вакансиям.
package careers

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"rfqmarket/db"
	"rfqmarket/internal/apperr"
	"rfqmarket/internal/contacts"
	"rfqmarket/internal/fsm"
	"rfqmarket/internal/notify"
	"rfqmarket/models"
)

// Stages этапы воронки по порядку
var Stages = []string{
	models.ApplicationApplied,
	models.ApplicationScreened,
	models.ApplicationShortlisted,
	models.ApplicationInterview,
	models.ApplicationOffer,
	models.ApplicationHired,
}

// pipeline только вперёд, допускается пропуск этапов; rejected из любого незавершённого
var pipeline = fsm.New("application", forwardTransitions())

func forwardTransitions() map[string][]string {
	t := map[string][]string{}
	for i, from := range Stages[:len(Stages)-1] {
		next := append([]string{}, Stages[i+1:]...)
		t[from] = append(next, models.ApplicationRejected)
	}
	return t
}

func isKnownStatus(status string) bool {
	if status == models.ApplicationRejected {
		return true
	}
	for _, s := range Stages {
		if s == status {
			return true
		}
	}
	return false
}

type Store interface {
	GetListing(ctx context.Context, id string) (*models.Listing, error)
	GetApplication(ctx context.Context, id string) (*models.Application, error)
	ListApplicationsForListing(ctx context.Context, listingID string) ([]models.Application, error)
	UpdateApplicationStatus(ctx context.Context, id string, change models.StatusChange) (*models.Application, error)
	HasCandidateApplied(ctx context.Context, employerID, candidateID string) (bool, error)
	CreateContactUnlock(ctx context.Context, employerID, candidateID string) (bool, error)
	GetProfiles(ctx context.Context, ids []string) ([]models.Profile, error)
}

type ContactAccess interface {
	GrantedSubjects(ctx context.Context, viewerID string, subjects []string) (map[string]bool, error)
	Contact(ctx context.Context, userID string) (*models.Contact, error)
}

type Service struct {
	store    Store
	access   ContactAccess
	notifier *notify.Dispatcher
	log      *zap.Logger
	now      func() time.Time
}

func NewService(store Store, access ContactAccess, notifier *notify.Dispatcher, log *zap.Logger) *Service {
	return &Service{store: store, access: access, notifier: notifier, log: log, now: time.Now}
}

// UpdateStatus двигает отклик по воронке и пишет историю
func (s *Service) UpdateStatus(ctx context.Context, actorID, applicationID, status string) (*models.Application, error) {
	if !isKnownStatus(status) {
		return nil, apperr.Validation("Invalid status: " + status)
	}
	app, listing, err := s.ownedApplication(ctx, actorID, applicationID)
	if err != nil {
		return nil, err
	}
	if guard := pipeline.Can(app.Status, status); !guard.Allowed {
		return nil, apperr.Conflict(guard.Reason)
	}

	updated, err := s.store.UpdateApplicationStatus(ctx, app.ID, models.StatusChange{
		From:      app.Status,
		To:        status,
		ChangedBy: actorID,
		At:        s.now().UTC(),
	})
	if errors.Is(err, db.ErrConflict) {
		return nil, apperr.Conflict("Application status changed, reload and retry")
	}
	if err != nil {
		return nil, apperr.Internal("Failed to update application", err)
	}

	s.notifier.Notify(ctx, notify.Notification{
		UserID:   app.CandidateID,
		Type:     notify.TypeApplicationStatus,
		Title:    "Application update",
		Body:     "Your application for " + listing.Title + " moved to " + status + ".",
		Metadata: map[string]any{"applicationId": app.ID, "status": status},
	})
	return updated, nil
}

// MarkHired переводит отклик в hired (после создания заказа)
func (s *Service) MarkHired(ctx context.Context, actorID, applicationID string) (*models.Application, error) {
	return s.UpdateStatus(ctx, actorID, applicationID, models.ApplicationHired)
}

func (s *Service) ownedApplication(ctx context.Context, actorID, applicationID string) (*models.Application, *models.Listing, error) {
	app, err := s.store.GetApplication(ctx, applicationID)
	if errors.Is(err, db.ErrNotFound) {
		return nil, nil, apperr.NotFound("Application not found")
	}
	if err != nil {
		return nil, nil, apperr.Internal("Failed to load application", err)
	}
	listing, err := s.ownedListing(ctx, actorID, app.ListingID)
	if err != nil {
		return nil, nil, err
	}
	return app, listing, nil
}

func (s *Service) ownedListing(ctx context.Context, actorID, listingID string) (*models.Listing, error) {
	listing, err := s.store.GetListing(ctx, listingID)
	if errors.Is(err, db.ErrNotFound) {
		return nil, apperr.NotFound("Listing not found")
	}
	if err != nil {
		return nil, apperr.Internal("Failed to load listing", err)
	}
	if listing.EmployerID != actorID {
		return nil, apperr.Forbidden("Only the listing owner can manage its applications")
	}
	return listing, nil
}

// Candidate отклик вместе с контактом кандидата
type Candidate struct {
	models.Application
	Candidate       *models.Contact `json:"candidate"`
	ContactUnlocked bool            `json:"contactUnlocked"`
}

type Pipeline struct {
	Listing *models.Listing        `json:"listing"`
	Stages  map[string][]Candidate `json:"stages"`
	Counts  map[string]int         `json:"counts"`
	Total   int                    `json:"total"`
}

// GetPipeline раскладывает отклики по этапам. Телефон и email видны только
// после разблокировки или принятого предложения.
func (s *Service) GetPipeline(ctx context.Context, actorID, listingID string) (*Pipeline, error) {
	listing, err := s.ownedListing(ctx, actorID, listingID)
	if err != nil {
		return nil, err
	}
	apps, err := s.store.ListApplicationsForListing(ctx, listing.ID)
	if err != nil {
		return nil, apperr.Internal("Failed to load applications", err)
	}

	ids := make([]string, 0, len(apps))
	for _, a := range apps {
		ids = append(ids, a.CandidateID)
	}
	profiles, err := s.store.GetProfiles(ctx, ids)
	if err != nil {
		return nil, apperr.Internal("Failed to load candidates", err)
	}
	byID := make(map[string]*models.Profile, len(profiles))
	for i := range profiles {
		byID[profiles[i].ID] = &profiles[i]
	}
	granted, err := s.access.GrantedSubjects(ctx, actorID, ids)
	if err != nil {
		return nil, apperr.Internal("Failed to check contact access", err)
	}

	p := &Pipeline{
		Listing: listing,
		Stages:  map[string][]Candidate{},
		Counts:  map[string]int{},
		Total:   len(apps),
	}
	for _, stage := range append(append([]string{}, Stages...), models.ApplicationRejected) {
		p.Stages[stage] = []Candidate{}
		p.Counts[stage] = 0
	}
	for _, a := range apps {
		c := &models.Contact{}
		if prof, ok := byID[a.CandidateID]; ok {
			c = &models.Contact{Name: prof.FullName, Email: prof.Email, Phone: prof.Phone}
		}
		unlocked := granted[a.CandidateID]
		if !unlocked {
			c = contacts.Redact(c)
		}
		p.Stages[a.Status] = append(p.Stages[a.Status], Candidate{Application: a, Candidate: c, ContactUnlocked: unlocked})
		p.Counts[a.Status]++
	}
	return p, nil
}

// UnlockContact открывает работодателю постоянный доступ к контактам кандидата
func (s *Service) UnlockContact(ctx context.Context, employerID, candidateID string) (*models.Contact, bool, error) {
	applied, err := s.store.HasCandidateApplied(ctx, employerID, candidateID)
	if err != nil {
		return nil, false, apperr.Internal("Failed to check applications", err)
	}
	if !applied {
		return nil, false, apperr.Forbidden("Candidate has not applied to any of your listings")
	}

	created, err := s.store.CreateContactUnlock(ctx, employerID, candidateID)
	if err != nil {
		return nil, false, apperr.Internal("Failed to unlock contact", err)
	}

	c, err := s.access.Contact(ctx, candidateID)
	if errors.Is(err, db.ErrNotFound) {
		return nil, false, apperr.NotFound("Candidate not found")
	}
	if err != nil {
		return nil, false, apperr.Internal("Failed to load candidate contact", err)
	}
	if created {
		s.log.Info("contact unlocked", zap.String("employer_id", employerID), zap.String("candidate_id", candidateID))
	}
	return c, !created, nil
}
