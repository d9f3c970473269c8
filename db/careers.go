package db

import (
	"context"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"rfqmarket/models"
)

const listingColumns = `id, employer_id, title, location, pay_max, status, created_at`

const applicationColumns = `id, listing_id, candidate_id, status, status_history, status_updated_at, created_at`

func (s *Storage) CreateListing(ctx context.Context, l *models.Listing) error {
	if l.CreatedAt.IsZero() {
		l.CreatedAt = s.now()
	}
	if l.Status == "" {
		l.Status = "open"
	}
	query := s.q(`
        INSERT INTO listings (id, employer_id, title, location, pay_max, status, created_at)
        VALUES (?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT (id) DO NOTHING`)
	_, err := s.db.ExecContext(ctx, query, l.ID, l.EmployerID, l.Title, l.Location, l.PayMax, l.Status, l.CreatedAt)
	return err
}

func (s *Storage) GetListing(ctx context.Context, id string) (*models.Listing, error) {
	l := &models.Listing{}
	query := s.q(`SELECT ` + listingColumns + ` FROM listings WHERE id = ?`)
	if err := s.db.GetContext(ctx, l, query, id); err != nil {
		return nil, notFound(err)
	}
	return l, nil
}

func (s *Storage) CreateApplication(ctx context.Context, a *models.Application) error {
	if a.CreatedAt.IsZero() {
		a.CreatedAt = s.now()
	}
	if a.Status == "" {
		a.Status = models.ApplicationApplied
	}
	query := s.q(`
        INSERT INTO applications (id, listing_id, candidate_id, status, status_history, created_at)
        VALUES (?, ?, ?, ?, ?, ?)
        ON CONFLICT (id) DO NOTHING`)
	_, err := s.db.ExecContext(ctx, query, a.ID, a.ListingID, a.CandidateID, a.Status, a.StatusHistory, a.CreatedAt)
	return err
}

func (s *Storage) GetApplication(ctx context.Context, id string) (*models.Application, error) {
	return s.getApplication(ctx, s.db, id)
}

func (s *Storage) getApplication(ctx context.Context, q sqlx.QueryerContext, id string) (*models.Application, error) {
	a := &models.Application{}
	query := s.q(`SELECT ` + applicationColumns + ` FROM applications WHERE id = ?`)
	if err := sqlx.GetContext(ctx, q, a, query, id); err != nil {
		return nil, notFound(err)
	}
	return a, nil
}

func (s *Storage) ListApplicationsForListing(ctx context.Context, listingID string) ([]models.Application, error) {
	var apps []models.Application
	query := s.q(`SELECT ` + applicationColumns + ` FROM applications WHERE listing_id = ? ORDER BY created_at, id`)
	err := s.db.SelectContext(ctx, &apps, query, listingID)
	return apps, err
}

// UpdateApplicationStatus меняет статус отклика, если он всё ещё равен change.From,
// и дописывает запись в status_history.
func (s *Storage) UpdateApplicationStatus(ctx context.Context, id string, change models.StatusChange) (*models.Application, error) {
	var updated *models.Application
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		app, err := s.getApplication(ctx, tx, id)
		if err != nil {
			return err
		}
		if app.Status != change.From {
			return ErrConflict
		}

		history := append(app.StatusHistory, change)
		query := s.q(`
            UPDATE applications SET status = ?, status_history = ?, status_updated_at = ?
            WHERE id = ? AND status = ?`)
		if err := affected(tx.ExecContext(ctx, query, change.To, history, change.At, id, change.From)); err != nil {
			return err
		}

		updated, err = s.getApplication(ctx, tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// HasCandidateApplied проверяет, откликался ли кандидат на вакансии работодателя
func (s *Storage) HasCandidateApplied(ctx context.Context, employerID, candidateID string) (bool, error) {
	var count int
	query := s.q(`
        SELECT COUNT(*) FROM applications a JOIN listings l ON l.id = a.listing_id
        WHERE l.employer_id = ? AND a.candidate_id = ?`)
	err := s.db.GetContext(ctx, &count, query, employerID, candidateID)
	return count > 0, err
}

// CreateContactUnlock возвращает false, если доступ уже был открыт
func (s *Storage) CreateContactUnlock(ctx context.Context, employerID, candidateID string) (bool, error) {
	query := s.q(`
        INSERT INTO contact_unlocks (id, employer_id, candidate_id, created_at)
        VALUES (?, ?, ?, ?)
        ON CONFLICT (employer_id, candidate_id) DO NOTHING`)
	err := affected(s.db.ExecContext(ctx, query, uuid.NewString(), employerID, candidateID, s.now()))
	if err == ErrConflict {
		return false, nil
	}
	return err == nil, err
}

func (s *Storage) HasContactUnlock(ctx context.Context, viewerID, subjectID string) (bool, error) {
	var count int
	query := s.q(`SELECT COUNT(*) FROM contact_unlocks WHERE employer_id = ? AND candidate_id = ?`)
	err := s.db.GetContext(ctx, &count, query, viewerID, subjectID)
	return count > 0, err
}

// UnlockedSubjects возвращает тех из subjects, чьи контакты уже открыты для viewer
func (s *Storage) UnlockedSubjects(ctx context.Context, viewerID string, subjects []string) ([]string, error) {
	if len(subjects) == 0 {
		return nil, nil
	}
	query, args, err := s.in(`SELECT candidate_id FROM contact_unlocks WHERE employer_id = ? AND candidate_id IN (?)`, viewerID, subjects)
	if err != nil {
		return nil, err
	}
	var ids []string
	err = s.db.SelectContext(ctx, &ids, query, args...)
	return ids, err
}
