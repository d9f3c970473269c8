package db

import (
	"context"

	"github.com/jmoiron/sqlx"

	"rfqmarket/models"
)

const orderColumns = `id, rfq_id, quote_id, negotiation_id, application_id, buyer_id, vendor_id, agreed_price, terms,
    start_date, location, milestones, status, buyer_confirmed, vendor_confirmed, cancel_reason, created_at, updated_at`

// CreateJobOrder создаёт заказ. Уникальность по negotiation_id и application_id
// гарантирует база: при повторе o заполняется существующим заказом и возвращается false.
func (s *Storage) CreateJobOrder(ctx context.Context, o *models.JobOrder) (bool, error) {
	now := s.now()
	o.CreatedAt = now
	o.UpdatedAt = now
	query := s.q(`
        INSERT INTO job_orders (id, rfq_id, quote_id, negotiation_id, application_id, buyer_id, vendor_id, agreed_price,
            terms, start_date, location, milestones, status, buyer_confirmed, vendor_confirmed, created_at, updated_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT DO NOTHING`)
	err := affected(s.db.ExecContext(ctx, query, o.ID, o.RFQID, o.QuoteID, o.NegotiationID, o.ApplicationID, o.BuyerID,
		o.VendorID, o.AgreedPrice, o.Terms, o.StartDate, o.Location, o.Milestones, o.Status, o.BuyerConfirmed,
		o.VendorConfirmed, o.CreatedAt, o.UpdatedAt))
	if err == nil {
		return true, nil
	}
	if err != ErrConflict {
		return false, err
	}

	existing, err := s.GetJobOrderBySource(ctx, o.NegotiationID, o.ApplicationID)
	if err != nil {
		return false, err
	}
	*o = *existing
	return false, nil
}

func (s *Storage) GetJobOrder(ctx context.Context, id string) (*models.JobOrder, error) {
	return s.getJobOrder(ctx, s.db, id)
}

func (s *Storage) getJobOrder(ctx context.Context, q sqlx.QueryerContext, id string) (*models.JobOrder, error) {
	o := &models.JobOrder{}
	query := s.q(`SELECT ` + orderColumns + ` FROM job_orders WHERE id = ?`)
	if err := sqlx.GetContext(ctx, q, o, query, id); err != nil {
		return nil, notFound(err)
	}
	return o, nil
}

// GetJobOrderBySource ищет заказ по переговорам или по отклику
func (s *Storage) GetJobOrderBySource(ctx context.Context, negotiationID, applicationID *string) (*models.JobOrder, error) {
	o := &models.JobOrder{}
	var err error
	switch {
	case negotiationID != nil:
		err = s.db.GetContext(ctx, o, s.q(`SELECT `+orderColumns+` FROM job_orders WHERE negotiation_id = ?`), *negotiationID)
	case applicationID != nil:
		err = s.db.GetContext(ctx, o, s.q(`SELECT `+orderColumns+` FROM job_orders WHERE application_id = ?`), *applicationID)
	default:
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, notFound(err)
	}
	return o, nil
}

// ListJobOrders role: buyer, vendor или пусто (обе стороны)
func (s *Storage) ListJobOrders(ctx context.Context, userID, role string) ([]models.JobOrder, error) {
	var orders []models.JobOrder
	var err error
	switch role {
	case models.SideBuyer:
		err = s.db.SelectContext(ctx, &orders, s.q(`SELECT `+orderColumns+` FROM job_orders WHERE buyer_id = ? ORDER BY created_at DESC`), userID)
	case models.SideVendor:
		err = s.db.SelectContext(ctx, &orders, s.q(`SELECT `+orderColumns+` FROM job_orders WHERE vendor_id = ? ORDER BY created_at DESC`), userID)
	default:
		err = s.db.SelectContext(ctx, &orders, s.q(`SELECT `+orderColumns+` FROM job_orders WHERE buyer_id = ? OR vendor_id = ? ORDER BY created_at DESC`), userID, userID)
	}
	return orders, err
}

// ConfirmJobOrder ставит подтверждение стороны; когда подтвердили обе, заказ становится active
func (s *Storage) ConfirmJobOrder(ctx context.Context, id, side string) (*models.JobOrder, error) {
	column := "vendor_confirmed"
	if side == models.SideBuyer {
		column = "buyer_confirmed"
	}

	var order *models.JobOrder
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		now := s.now()
		confirm := s.q(`UPDATE job_orders SET ` + column + ` = ?, updated_at = ? WHERE id = ? AND status = ?`)
		if err := affected(tx.ExecContext(ctx, confirm, true, now, id, models.OrderStatusCreated)); err != nil {
			return err
		}
		activate := s.q(`
            UPDATE job_orders SET status = ?, updated_at = ?
            WHERE id = ? AND status = ? AND buyer_confirmed = ? AND vendor_confirmed = ?`)
		if _, err := tx.ExecContext(ctx, activate, models.OrderStatusActive, now, id, models.OrderStatusCreated, true, true); err != nil {
			return err
		}
		var err error
		order, err = s.getJobOrder(ctx, tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

// TransitionJobOrder меняет статус, только если текущий равен from
func (s *Storage) TransitionJobOrder(ctx context.Context, id, from, to string, cancelReason *string) (*models.JobOrder, error) {
	query := s.q(`
        UPDATE job_orders SET status = ?, cancel_reason = COALESCE(?, cancel_reason), updated_at = ?
        WHERE id = ? AND status = ?`)
	if err := affected(s.db.ExecContext(ctx, query, to, cancelReason, s.now(), id, from)); err != nil {
		return nil, err
	}
	return s.GetJobOrder(ctx, id)
}
