package db

import (
	"context"
	"database/sql"

	"rfqmarket/models"
)

const profileColumns = `id, full_name, email, phone, rfq_tier, location, created_at`

func (s *Storage) CreateProfile(ctx context.Context, p *models.Profile) error {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = s.now()
	}
	query := s.q(`
        INSERT INTO profiles (id, full_name, email, phone, rfq_tier, location, created_at)
        VALUES (?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT (id) DO UPDATE SET
            full_name = excluded.full_name,
            email = excluded.email,
            phone = excluded.phone,
            rfq_tier = excluded.rfq_tier,
            location = excluded.location`)
	_, err := s.db.ExecContext(ctx, query, p.ID, p.FullName, p.Email, p.Phone, p.RFQTier, p.Location, p.CreatedAt)
	return err
}

func (s *Storage) GetProfile(ctx context.Context, id string) (*models.Profile, error) {
	p := &models.Profile{}
	query := s.q(`SELECT ` + profileColumns + ` FROM profiles WHERE id = ?`)
	if err := s.db.GetContext(ctx, p, query, id); err != nil {
		return nil, notFound(err)
	}
	return p, nil
}

// GetProfileTier возвращает тариф пользователя; пустая строка, если не задан
func (s *Storage) GetProfileTier(ctx context.Context, userID string) (string, error) {
	var tier sql.NullString
	query := s.q(`SELECT rfq_tier FROM profiles WHERE id = ?`)
	if err := s.db.GetContext(ctx, &tier, query, userID); err != nil {
		return "", notFound(err)
	}
	return tier.String, nil
}

func (s *Storage) GetProfiles(ctx context.Context, ids []string) ([]models.Profile, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query, args, err := s.in(`SELECT `+profileColumns+` FROM profiles WHERE id IN (?)`, ids)
	if err != nil {
		return nil, err
	}
	var profiles []models.Profile
	err = s.db.SelectContext(ctx, &profiles, query, args...)
	return profiles, err
}

const vendorColumns = `id, business_name, email, phone, status, created_at`

func (s *Storage) CreateVendor(ctx context.Context, v *models.Vendor) error {
	if v.CreatedAt.IsZero() {
		v.CreatedAt = s.now()
	}
	if v.Status == "" {
		v.Status = models.VendorStatusActive
	}
	query := s.q(`
        INSERT INTO vendors (id, business_name, email, phone, status, created_at)
        VALUES (?, ?, ?, ?, ?, ?)
        ON CONFLICT (id) DO UPDATE SET
            business_name = excluded.business_name,
            email = excluded.email,
            phone = excluded.phone,
            status = excluded.status`)
	_, err := s.db.ExecContext(ctx, query, v.ID, v.BusinessName, v.Email, v.Phone, v.Status, v.CreatedAt)
	return err
}

func (s *Storage) GetVendor(ctx context.Context, id string) (*models.Vendor, error) {
	v := &models.Vendor{}
	query := s.q(`SELECT ` + vendorColumns + ` FROM vendors WHERE id = ?`)
	if err := s.db.GetContext(ctx, v, query, id); err != nil {
		return nil, notFound(err)
	}
	return v, nil
}

func (s *Storage) IsActiveVendor(ctx context.Context, id string) (bool, error) {
	var count int
	query := s.q(`SELECT COUNT(*) FROM vendors WHERE id = ? AND status = ?`)
	err := s.db.GetContext(ctx, &count, query, id, models.VendorStatusActive)
	return count > 0, err
}

func (s *Storage) AddVendorSkills(ctx context.Context, vendorID string, jobTypes ...string) error {
	query := s.q(`INSERT INTO vendor_skills (vendor_id, job_type) VALUES (?, ?) ON CONFLICT DO NOTHING`)
	for _, jt := range jobTypes {
		if _, err := s.db.ExecContext(ctx, query, vendorID, jt); err != nil {
			return err
		}
	}
	return nil
}

// MatchVendorsBySkill ищет активных вендоров с навыком jobType
func (s *Storage) MatchVendorsBySkill(ctx context.Context, jobType string, limit int) ([]string, error) {
	query := s.q(`
        SELECT v.id FROM vendors v
        JOIN vendor_skills vs ON vs.vendor_id = v.id
        WHERE vs.job_type = ? AND v.status = ?
        ORDER BY v.created_at, v.id
        LIMIT ?`)
	var ids []string
	err := s.db.SelectContext(ctx, &ids, query, jobType, models.VendorStatusActive, limit)
	return ids, err
}

// FilterActiveVendors оставляет только существующих активных вендоров
func (s *Storage) FilterActiveVendors(ctx context.Context, ids []string) ([]string, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query, args, err := s.in(`SELECT id FROM vendors WHERE id IN (?) AND status = ? ORDER BY id`, ids, models.VendorStatusActive)
	if err != nil {
		return nil, err
	}
	var active []string
	err = s.db.SelectContext(ctx, &active, query, args...)
	return active, err
}
