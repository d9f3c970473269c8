package db

import (
	"context"

	"github.com/jmoiron/sqlx"

	"rfqmarket/models"
)

const quoteColumns = `id, rfq_id, vendor_id, quoted_price, timeline, description, status, decided_at, created_at, updated_at`

// CreateQuote сохраняет ответ вендора; второй ответ того же вендора на RFQ даёт ErrConflict
func (s *Storage) CreateQuote(ctx context.Context, q *models.Quote) error {
	now := s.now()
	q.CreatedAt = now
	q.UpdatedAt = now
	if q.Status == "" {
		q.Status = models.QuoteStatusSubmitted
	}
	query := s.q(`
        INSERT INTO rfq_quotes (id, rfq_id, vendor_id, quoted_price, timeline, description, status, created_at, updated_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT (rfq_id, vendor_id) DO NOTHING`)
	return affected(s.db.ExecContext(ctx, query, q.ID, q.RFQID, q.VendorID, q.QuotedPrice, q.Timeline,
		q.Description, q.Status, q.CreatedAt, q.UpdatedAt))
}

func (s *Storage) GetQuote(ctx context.Context, id string) (*models.Quote, error) {
	return s.getQuote(ctx, s.db, id)
}

func (s *Storage) getQuote(ctx context.Context, q sqlx.QueryerContext, id string) (*models.Quote, error) {
	quote := &models.Quote{}
	query := s.q(`SELECT ` + quoteColumns + ` FROM rfq_quotes WHERE id = ?`)
	if err := sqlx.GetContext(ctx, q, quote, query, id); err != nil {
		return nil, notFound(err)
	}
	return quote, nil
}

func (s *Storage) ListQuotesForRFQ(ctx context.Context, rfqID string) ([]models.Quote, error) {
	var quotes []models.Quote
	query := s.q(`SELECT ` + quoteColumns + ` FROM rfq_quotes WHERE rfq_id = ? ORDER BY created_at, id`)
	err := s.db.SelectContext(ctx, &quotes, query, rfqID)
	return quotes, err
}

// AcceptQuote принимает предложение и назначает вендора на RFQ атомарно.
// Повторный вызов для уже принятого предложения возвращает его без изменений.
func (s *Storage) AcceptQuote(ctx context.Context, rfqID, quoteID string) (*models.Quote, error) {
	var accepted *models.Quote
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		quote, err := s.getQuote(ctx, tx, quoteID)
		if err != nil {
			return err
		}
		if quote.RFQID != rfqID {
			return ErrNotFound
		}

		now := s.now()
		if err := s.assignRFQ(ctx, tx, rfqID, quote.VendorID, now); err != nil {
			return err
		}

		if quote.Status != models.QuoteStatusAccepted {
			query := s.q(`
                UPDATE rfq_quotes SET status = ?, decided_at = ?, updated_at = ?
                WHERE id = ? AND status IN (?, ?)`)
			if err := affected(tx.ExecContext(ctx, query, models.QuoteStatusAccepted, now, now, quoteID,
				models.QuoteStatusSubmitted, models.QuoteStatusRevised)); err != nil {
				return err
			}
		}

		accepted, err = s.getQuote(ctx, tx, quoteID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return accepted, nil
}

// RejectQuote отклоняет предложение, если оно ещё не решено
func (s *Storage) RejectQuote(ctx context.Context, quoteID string) (*models.Quote, error) {
	now := s.now()
	query := s.q(`
        UPDATE rfq_quotes SET status = ?, decided_at = ?, updated_at = ?
        WHERE id = ? AND status IN (?, ?)`)
	if err := affected(s.db.ExecContext(ctx, query, models.QuoteStatusRejected, now, now, quoteID,
		models.QuoteStatusSubmitted, models.QuoteStatusRevised)); err != nil {
		return nil, err
	}
	return s.GetQuote(ctx, quoteID)
}

// AcceptedCounterparts возвращает пользователей, с которыми у userID есть принятое предложение
func (s *Storage) AcceptedCounterparts(ctx context.Context, userID string) ([]string, error) {
	query := s.q(`
        SELECT q.vendor_id FROM rfq_quotes q JOIN rfqs r ON r.id = q.rfq_id
        WHERE r.user_id = ? AND q.status = ?
        UNION
        SELECT r.user_id FROM rfq_quotes q JOIN rfqs r ON r.id = q.rfq_id
        WHERE q.vendor_id = ? AND q.status = ? AND r.user_id IS NOT NULL`)
	var ids []string
	err := s.db.SelectContext(ctx, &ids, query, userID, models.QuoteStatusAccepted, userID, models.QuoteStatusAccepted)
	return ids, err
}
