package db

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"rfqmarket/models"
)

const rfqColumns = `id, user_id, guest_email, guest_phone, guest_phone_verified_at, rfq_type,
    category_slug, job_type_slug, title, form_data, status, assigned_vendor_id, assigned_at,
    closed_at, created_at, updated_at`

// CountRFQsSince считает RFQ пользователя (или гостя по email) начиная с since
func (s *Storage) CountRFQsSince(ctx context.Context, userID, guestEmail string, since time.Time) (int, error) {
	var count int
	var err error
	if userID != "" {
		query := s.q(`SELECT COUNT(*) FROM rfqs WHERE user_id = ? AND created_at >= ?`)
		err = s.db.GetContext(ctx, &count, query, userID, since)
	} else {
		query := s.q(`SELECT COUNT(*) FROM rfqs WHERE guest_email = ? AND created_at >= ?`)
		err = s.db.GetContext(ctx, &count, query, guestEmail, since)
	}
	return count, err
}

// CreateRFQ сохраняет RFQ и список получателей в одной транзакции
func (s *Storage) CreateRFQ(ctx context.Context, r *models.RFQ, vendorIDs []string) error {
	now := s.now()
	r.CreatedAt = now
	r.UpdatedAt = now
	if r.Status == "" {
		r.Status = models.RFQStatusPending
	}

	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		query := s.q(`
            INSERT INTO rfqs (id, user_id, guest_email, guest_phone, guest_phone_verified_at, rfq_type,
                category_slug, job_type_slug, title, form_data, status, created_at, updated_at)
            VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if _, err := tx.ExecContext(ctx, query, r.ID, r.UserID, r.GuestEmail, r.GuestPhone, r.GuestPhoneVerifiedAt,
			r.RFQType, r.CategorySlug, r.JobTypeSlug, r.Title, r.FormData, r.Status, r.CreatedAt, r.UpdatedAt); err != nil {
			return err
		}

		link := s.q(`INSERT INTO rfq_vendors (rfq_id, vendor_id) VALUES (?, ?) ON CONFLICT DO NOTHING`)
		for _, vendorID := range vendorIDs {
			if _, err := tx.ExecContext(ctx, link, r.ID, vendorID); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Storage) GetRFQ(ctx context.Context, id string) (*models.RFQ, error) {
	return s.getRFQ(ctx, s.db, id)
}

func (s *Storage) getRFQ(ctx context.Context, q sqlx.QueryerContext, id string) (*models.RFQ, error) {
	r := &models.RFQ{}
	query := s.q(`SELECT ` + rfqColumns + ` FROM rfqs WHERE id = ?`)
	if err := sqlx.GetContext(ctx, q, r, query, id); err != nil {
		return nil, notFound(err)
	}
	return r, nil
}

func (s *Storage) IsRFQRecipient(ctx context.Context, rfqID, vendorID string) (bool, error) {
	var count int
	query := s.q(`SELECT COUNT(*) FROM rfq_vendors WHERE rfq_id = ? AND vendor_id = ?`)
	err := s.db.GetContext(ctx, &count, query, rfqID, vendorID)
	return count > 0, err
}

func (s *Storage) ListRFQRecipients(ctx context.Context, rfqID string) ([]string, error) {
	var ids []string
	query := s.q(`SELECT vendor_id FROM rfq_vendors WHERE rfq_id = ? ORDER BY vendor_id`)
	err := s.db.SelectContext(ctx, &ids, query, rfqID)
	return ids, err
}

// TransitionRFQ меняет статус, только если текущий входит в from
func (s *Storage) TransitionRFQ(ctx context.Context, id string, from []string, to string) (*models.RFQ, error) {
	now := s.now()
	query, args, err := s.in(`UPDATE rfqs SET status = ?, closed_at = ?, updated_at = ? WHERE id = ? AND status IN (?)`,
		to, now, now, id, from)
	if err != nil {
		return nil, err
	}
	if err := affected(s.db.ExecContext(ctx, query, args...)); err != nil {
		return nil, err
	}
	return s.GetRFQ(ctx, id)
}

// assignRFQ переводит RFQ pending -> assigned внутри транзакции.
// Повторное назначение тому же вендору не считается конфликтом.
func (s *Storage) assignRFQ(ctx context.Context, tx *sqlx.Tx, rfqID, vendorID string, at time.Time) error {
	query := s.q(`
        UPDATE rfqs SET status = ?, assigned_vendor_id = ?, assigned_at = ?, updated_at = ?
        WHERE id = ? AND status = ?`)
	err := affected(tx.ExecContext(ctx, query, models.RFQStatusAssigned, vendorID, at, at, rfqID, models.RFQStatusPending))
	if err != ErrConflict {
		return err
	}

	r, err := s.getRFQ(ctx, tx, rfqID)
	if err != nil {
		return err
	}
	if r.Status == models.RFQStatusAssigned && r.AssignedVendorID != nil && *r.AssignedVendorID == vendorID {
		return nil
	}
	return ErrConflict
}
