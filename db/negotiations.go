package db

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"rfqmarket/models"
)

const threadColumns = `id, quote_id, rfq_id, buyer_id, vendor_id, status, original_price, current_price,
    round_count, max_rounds, accepted_offer_id, flagged, closed_at, created_at, updated_at`

const offerColumns = `id, thread_id, proposed_by, proposer_side, proposed_price, scope_changes, delivery_date,
    payment_terms, message, round_number, status, response_by, responded_at, rejection_reason, created_at`

const qaColumns = `id, thread_id, asked_by, question, answer, answered_by, answered_at, created_at`

const revisionColumns = `id, quote_id, thread_id, revised_by, price, reason, notes, created_at`

// CreateThread открывает переговоры по предложению. Если ветка для quote_id уже есть,
// t заполняется существующей и возвращается false.
func (s *Storage) CreateThread(ctx context.Context, t *models.NegotiationThread) (bool, error) {
	now := s.now()
	t.CreatedAt = now
	t.UpdatedAt = now
	query := s.q(`
        INSERT INTO negotiation_threads (id, quote_id, rfq_id, buyer_id, vendor_id, status, original_price,
            current_price, round_count, max_rounds, created_at, updated_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT (quote_id) DO NOTHING`)
	err := affected(s.db.ExecContext(ctx, query, t.ID, t.QuoteID, t.RFQID, t.BuyerID, t.VendorID, t.Status,
		t.OriginalPrice, t.CurrentPrice, t.RoundCount, t.MaxRounds, t.CreatedAt, t.UpdatedAt))
	if err == nil {
		return true, nil
	}
	if err != ErrConflict {
		return false, err
	}

	existing := &models.NegotiationThread{}
	get := s.q(`SELECT ` + threadColumns + ` FROM negotiation_threads WHERE quote_id = ?`)
	if err := s.db.GetContext(ctx, existing, get, t.QuoteID); err != nil {
		return false, notFound(err)
	}
	*t = *existing
	return false, nil
}

func (s *Storage) GetThread(ctx context.Context, id string) (*models.NegotiationThread, error) {
	return s.getThread(ctx, s.db, id)
}

func (s *Storage) getThread(ctx context.Context, q sqlx.QueryerContext, id string) (*models.NegotiationThread, error) {
	t := &models.NegotiationThread{}
	query := s.q(`SELECT ` + threadColumns + ` FROM negotiation_threads WHERE id = ?`)
	if err := sqlx.GetContext(ctx, q, t, query, id); err != nil {
		return nil, notFound(err)
	}
	return t, nil
}

// CreateCounterOffer добавляет раунд: увеличивает round_count, пишет предложение и ревизию.
// ErrConflict, если ветка закрыта или раунды исчерпаны.
func (s *Storage) CreateCounterOffer(ctx context.Context, o *models.CounterOffer, quoteID string, notes *string) error {
	now := s.now()
	o.CreatedAt = now
	o.Status = models.OfferStatusPending

	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		bump := s.q(`
            UPDATE negotiation_threads
            SET round_count = round_count + 1, current_price = ?, updated_at = ?
            WHERE id = ? AND status = ? AND round_count < max_rounds`)
		if err := affected(tx.ExecContext(ctx, bump, o.ProposedPrice, now, o.ThreadID, models.ThreadStatusOpen)); err != nil {
			return err
		}

		var round int
		if err := tx.GetContext(ctx, &round, s.q(`SELECT round_count FROM negotiation_threads WHERE id = ?`), o.ThreadID); err != nil {
			return err
		}
		o.RoundNumber = round

		insert := s.q(`
            INSERT INTO counter_offers (id, thread_id, proposed_by, proposer_side, proposed_price, scope_changes,
                delivery_date, payment_terms, message, round_number, status, response_by, created_at)
            VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if _, err := tx.ExecContext(ctx, insert, o.ID, o.ThreadID, o.ProposedBy, o.ProposerSide, o.ProposedPrice,
			o.ScopeChanges, o.DeliveryDate, o.PaymentTerms, o.Message, o.RoundNumber, o.Status, o.ResponseBy, o.CreatedAt); err != nil {
			return err
		}

		revision := s.q(`
            INSERT INTO quote_revisions (id, quote_id, thread_id, revised_by, price, reason, notes, created_at)
            VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
		if _, err := tx.ExecContext(ctx, revision, uuid.NewString(), quoteID, o.ThreadID, o.ProposedBy, o.ProposedPrice,
			fmt.Sprintf("Counter offer round %d", round), notes, now); err != nil {
			return err
		}

		if o.ProposerSide == models.SideVendor {
			revised := s.q(`UPDATE rfq_quotes SET status = ?, updated_at = ? WHERE id = ? AND status = ?`)
			if _, err := tx.ExecContext(ctx, revised, models.QuoteStatusRevised, now, quoteID, models.QuoteStatusSubmitted); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Storage) GetCounterOffer(ctx context.Context, id string) (*models.CounterOffer, error) {
	return s.getCounterOffer(ctx, s.db, id)
}

func (s *Storage) getCounterOffer(ctx context.Context, q sqlx.QueryerContext, id string) (*models.CounterOffer, error) {
	o := &models.CounterOffer{}
	query := s.q(`SELECT ` + offerColumns + ` FROM counter_offers WHERE id = ?`)
	if err := sqlx.GetContext(ctx, q, o, query, id); err != nil {
		return nil, notFound(err)
	}
	return o, nil
}

// AcceptedOffer результат принятия встречного предложения
type AcceptedOffer struct {
	Thread          *models.NegotiationThread
	Offer           *models.CounterOffer
	Quote           *models.Quote
	CancelledOffers int
}

// AcceptCounterOffer в одной транзакции: закрывает ветку, принимает предложение,
// отменяет остальные pending, переносит цену на quote и назначает вендора на RFQ.
func (s *Storage) AcceptCounterOffer(ctx context.Context, threadID, offerID string) (*AcceptedOffer, error) {
	res := &AcceptedOffer{}
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		offer, err := s.getCounterOffer(ctx, tx, offerID)
		if err != nil {
			return err
		}
		if offer.ThreadID != threadID {
			return ErrNotFound
		}
		if offer.Status != models.OfferStatusPending {
			return ErrConflict
		}

		thread, err := s.getThread(ctx, tx, threadID)
		if err != nil {
			return err
		}

		now := s.now()
		// конкурентный accept на этой же ветке получит здесь ErrConflict
		closeThread := s.q(`
            UPDATE negotiation_threads
            SET status = ?, current_price = ?, accepted_offer_id = ?, closed_at = ?, updated_at = ?
            WHERE id = ? AND status = ?`)
		if err := affected(tx.ExecContext(ctx, closeThread, models.ThreadStatusAccepted, offer.ProposedPrice, offer.ID,
			now, now, threadID, models.ThreadStatusOpen)); err != nil {
			return err
		}

		acceptOffer := s.q(`UPDATE counter_offers SET status = ?, responded_at = ? WHERE id = ? AND status = ?`)
		if err := affected(tx.ExecContext(ctx, acceptOffer, models.OfferStatusAccepted, now, offer.ID, models.OfferStatusPending)); err != nil {
			return err
		}

		cancelOthers := s.q(`
            UPDATE counter_offers SET status = ?, responded_at = ?
            WHERE thread_id = ? AND status = ? AND id <> ?`)
		r, err := tx.ExecContext(ctx, cancelOthers, models.OfferStatusCancelled, now, threadID, models.OfferStatusPending, offer.ID)
		if err != nil {
			return err
		}
		cancelled, err := r.RowsAffected()
		if err != nil {
			return err
		}
		res.CancelledOffers = int(cancelled)

		var otherAccepted int
		other := s.q(`SELECT COUNT(*) FROM rfq_quotes WHERE rfq_id = ? AND status = ? AND id <> ?`)
		if err := tx.GetContext(ctx, &otherAccepted, other, thread.RFQID, models.QuoteStatusAccepted, thread.QuoteID); err != nil {
			return err
		}
		if otherAccepted > 0 {
			return ErrConflict
		}

		mirror := s.q(`
            UPDATE rfq_quotes SET status = ?, quoted_price = ?, decided_at = ?, updated_at = ?
            WHERE id = ? AND status IN (?, ?)`)
		if err := affected(tx.ExecContext(ctx, mirror, models.QuoteStatusAccepted, offer.ProposedPrice, now, now,
			thread.QuoteID, models.QuoteStatusSubmitted, models.QuoteStatusRevised)); err != nil {
			return err
		}

		if err := s.assignRFQ(ctx, tx, thread.RFQID, thread.VendorID, now); err != nil {
			return err
		}

		if res.Thread, err = s.getThread(ctx, tx, threadID); err != nil {
			return err
		}
		if res.Offer, err = s.getCounterOffer(ctx, tx, offerID); err != nil {
			return err
		}
		res.Quote, err = s.getQuote(ctx, tx, thread.QuoteID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// RejectCounterOffer отклоняет предложение. Если раунды исчерпаны и pending не осталось,
// ветка закрывается со статусом rejected.
func (s *Storage) RejectCounterOffer(ctx context.Context, threadID, offerID string, reason *string) (*models.CounterOffer, *models.NegotiationThread, error) {
	var offer *models.CounterOffer
	var thread *models.NegotiationThread
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		t, err := s.getThread(ctx, tx, threadID)
		if err != nil {
			return err
		}
		if t.Status != models.ThreadStatusOpen {
			return ErrConflict
		}

		now := s.now()
		reject := s.q(`
            UPDATE counter_offers SET status = ?, rejection_reason = ?, responded_at = ?
            WHERE id = ? AND thread_id = ? AND status = ?`)
		if err := affected(tx.ExecContext(ctx, reject, models.OfferStatusRejected, reason, now, offerID, threadID,
			models.OfferStatusPending)); err != nil {
			return err
		}

		if err := s.closeExhausted(ctx, tx, threadID, models.ThreadStatusRejected, now); err != nil {
			return err
		}

		if offer, err = s.getCounterOffer(ctx, tx, offerID); err != nil {
			return err
		}
		thread, err = s.getThread(ctx, tx, threadID)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return offer, thread, nil
}

// closeExhausted закрывает открытую ветку без pending-предложений, если раунды исчерпаны
func (s *Storage) closeExhausted(ctx context.Context, tx *sqlx.Tx, threadID, status string, at time.Time) error {
	query := s.q(`
        UPDATE negotiation_threads SET status = ?, closed_at = ?, updated_at = ?
        WHERE id = ? AND status = ? AND round_count >= max_rounds
          AND NOT EXISTS (SELECT 1 FROM counter_offers WHERE thread_id = ? AND status = ?)`)
	_, err := tx.ExecContext(ctx, query, status, at, at, threadID, models.ThreadStatusOpen, threadID, models.OfferStatusPending)
	return err
}

// CancelThread закрывает ветку и отменяет все pending-предложения
func (s *Storage) CancelThread(ctx context.Context, threadID string) (*models.NegotiationThread, int, error) {
	var thread *models.NegotiationThread
	var cancelled int64
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		now := s.now()
		closeThread := s.q(`UPDATE negotiation_threads SET status = ?, closed_at = ?, updated_at = ? WHERE id = ? AND status = ?`)
		if err := affected(tx.ExecContext(ctx, closeThread, models.ThreadStatusCancelled, now, now, threadID,
			models.ThreadStatusOpen)); err != nil {
			return err
		}

		cancelOffers := s.q(`UPDATE counter_offers SET status = ?, responded_at = ? WHERE thread_id = ? AND status = ?`)
		r, err := tx.ExecContext(ctx, cancelOffers, models.OfferStatusCancelled, now, threadID, models.OfferStatusPending)
		if err != nil {
			return err
		}
		if cancelled, err = r.RowsAffected(); err != nil {
			return err
		}

		thread, err = s.getThread(ctx, tx, threadID)
		return err
	})
	if err != nil {
		return nil, 0, err
	}
	return thread, int(cancelled), nil
}

// ListCounterOffers новые сверху
func (s *Storage) ListCounterOffers(ctx context.Context, threadID string) ([]models.CounterOffer, error) {
	var offers []models.CounterOffer
	query := s.q(`SELECT ` + offerColumns + ` FROM counter_offers WHERE thread_id = ? ORDER BY round_number DESC, created_at DESC`)
	err := s.db.SelectContext(ctx, &offers, query, threadID)
	return offers, err
}

func (s *Storage) CreateQAItem(ctx context.Context, item *models.QAItem) error {
	item.CreatedAt = s.now()
	query := s.q(`INSERT INTO negotiation_qa (id, thread_id, asked_by, question, created_at) VALUES (?, ?, ?, ?, ?)`)
	_, err := s.db.ExecContext(ctx, query, item.ID, item.ThreadID, item.AskedBy, item.Question, item.CreatedAt)
	return err
}

func (s *Storage) GetQAItem(ctx context.Context, id string) (*models.QAItem, error) {
	item := &models.QAItem{}
	query := s.q(`SELECT ` + qaColumns + ` FROM negotiation_qa WHERE id = ?`)
	if err := s.db.GetContext(ctx, item, query, id); err != nil {
		return nil, notFound(err)
	}
	return item, nil
}

// AnswerQAItem записывает ответ один раз; повторный ответ даёт ErrConflict
func (s *Storage) AnswerQAItem(ctx context.Context, id, answeredBy, answer string) (*models.QAItem, error) {
	query := s.q(`UPDATE negotiation_qa SET answer = ?, answered_by = ?, answered_at = ? WHERE id = ? AND answer IS NULL`)
	if err := affected(s.db.ExecContext(ctx, query, answer, answeredBy, s.now(), id)); err != nil {
		return nil, err
	}
	return s.GetQAItem(ctx, id)
}

// ListQAItems старые сверху
func (s *Storage) ListQAItems(ctx context.Context, threadID string) ([]models.QAItem, error) {
	var items []models.QAItem
	query := s.q(`SELECT ` + qaColumns + ` FROM negotiation_qa WHERE thread_id = ? ORDER BY created_at, id`)
	err := s.db.SelectContext(ctx, &items, query, threadID)
	return items, err
}

// ListRevisions новые сверху
func (s *Storage) ListRevisions(ctx context.Context, threadID string) ([]models.QuoteRevision, error) {
	var revisions []models.QuoteRevision
	query := s.q(`SELECT ` + revisionColumns + ` FROM quote_revisions WHERE thread_id = ? ORDER BY created_at DESC, id DESC`)
	err := s.db.SelectContext(ctx, &revisions, query, threadID)
	return revisions, err
}

// CreateReport сохраняет жалобу и помечает ветку
func (s *Storage) CreateReport(ctx context.Context, r *models.NegotiationReport) error {
	r.CreatedAt = s.now()
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		insert := s.q(`
            INSERT INTO negotiation_reports (id, thread_id, reported_by, reported_user, reason, details, created_at)
            VALUES (?, ?, ?, ?, ?, ?, ?)`)
		if _, err := tx.ExecContext(ctx, insert, r.ID, r.ThreadID, r.ReportedBy, r.ReportedUser, r.Reason, r.Details, r.CreatedAt); err != nil {
			return err
		}
		flag := s.q(`UPDATE negotiation_threads SET flagged = ?, updated_at = ? WHERE id = ?`)
		return affected(tx.ExecContext(ctx, flag, true, r.CreatedAt, r.ThreadID))
	})
}

// ExpiredOffer предложение, просроченное при очередной проверке
type ExpiredOffer struct {
	OfferID       string `db:"id"`
	ThreadID      string `db:"thread_id"`
	ProposedBy    string `db:"proposed_by"`
	BuyerID       string `db:"buyer_id"`
	VendorID      string `db:"vendor_id"`
	RoundNumber   int    `db:"round_number"`
	ThreadExpired bool   `db:"-"`
}

// ExpireOffers переводит просроченные pending-предложения в expired и закрывает
// ветки с исчерпанными раундами.
func (s *Storage) ExpireOffers(ctx context.Context, now time.Time) ([]ExpiredOffer, error) {
	var expired []ExpiredOffer
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		pending := s.q(`
            SELECT o.id, o.thread_id, o.proposed_by, o.round_number, t.buyer_id, t.vendor_id
            FROM counter_offers o JOIN negotiation_threads t ON t.id = o.thread_id
            WHERE o.status = ? AND o.response_by < ?
            ORDER BY o.response_by`)
		if err := tx.SelectContext(ctx, &expired, pending, models.OfferStatusPending, now); err != nil {
			return err
		}

		expire := s.q(`UPDATE counter_offers SET status = ?, responded_at = ? WHERE id = ? AND status = ?`)
		closed := map[string]bool{}
		for _, e := range expired {
			if _, err := tx.ExecContext(ctx, expire, models.OfferStatusExpired, now, e.OfferID, models.OfferStatusPending); err != nil {
				return err
			}
		}
		for i, e := range expired {
			if _, seen := closed[e.ThreadID]; !seen {
				if err := s.closeExhausted(ctx, tx, e.ThreadID, models.ThreadStatusExpired, now); err != nil {
					return err
				}
				t, err := s.getThread(ctx, tx, e.ThreadID)
				if err != nil {
					return err
				}
				closed[e.ThreadID] = t.Status == models.ThreadStatusExpired
			}
			expired[i].ThreadExpired = closed[e.ThreadID]
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return expired, nil
}
