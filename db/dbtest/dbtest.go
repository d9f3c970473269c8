// Package dbtest поднимает Storage поверх SQLite в памяти с применёнными миграциями.
package dbtest

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"rfqmarket/db"
	"rfqmarket/db/migrations"
	"rfqmarket/models"
)

// New возвращает чистое хранилище для одного теста
func New(t *testing.T) *db.Storage {
	t.Helper()

	conn, err := db.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	require.NoError(t, migrations.Run(conn.DB, "sqlite3"))
	return db.NewStorage(conn)
}

func strPtr(s string) *string { return &s }

// Buyer создаёт профиль покупателя с тарифом (пустой тариф = NULL)
func Buyer(t *testing.T, s *db.Storage, tier string) *models.Profile {
	t.Helper()
	id := uuid.NewString()
	p := &models.Profile{
		ID:       id,
		FullName: "Buyer " + id[:8],
		Email:    strPtr("buyer-" + id[:8] + "@example.com"),
		Phone:    strPtr("+254700000001"),
	}
	if tier != "" {
		p.RFQTier = &tier
	}
	require.NoError(t, s.CreateProfile(context.Background(), p))
	return p
}

// Vendor создаёт активного вендора с профилем и навыками
func Vendor(t *testing.T, s *db.Storage, jobTypes ...string) *models.Vendor {
	t.Helper()
	ctx := context.Background()
	id := uuid.NewString()
	v := &models.Vendor{
		ID:           id,
		BusinessName: "Vendor " + id[:8],
		Email:        strPtr("vendor-" + id[:8] + "@example.com"),
		Phone:        strPtr("+254700000002"),
	}
	require.NoError(t, s.CreateVendor(ctx, v))
	require.NoError(t, s.CreateProfile(ctx, &models.Profile{ID: id, FullName: v.BusinessName, Email: v.Email, Phone: v.Phone}))
	require.NoError(t, s.AddVendorSkills(ctx, id, jobTypes...))
	return v
}

// RFQ создаёт RFQ в статусе pending от имени buyerID
func RFQ(t *testing.T, s *db.Storage, buyerID string, vendorIDs ...string) *models.RFQ {
	t.Helper()
	r := &models.RFQ{
		ID:           uuid.NewString(),
		UserID:       &buyerID,
		RFQType:      models.RFQTypeWizard,
		CategorySlug: "construction",
		JobTypeSlug:  "roofing",
		Title:        "Roof repair",
		FormData:     models.JSONMap{"project_title": "Roof repair"},
	}
	require.NoError(t, s.CreateRFQ(context.Background(), r, vendorIDs))
	return r
}

// Quote создаёт предложение вендора по RFQ
func Quote(t *testing.T, s *db.Storage, rfqID, vendorID string, price string) *models.Quote {
	t.Helper()
	q := &models.Quote{
		ID:          uuid.NewString(),
		RFQID:       rfqID,
		VendorID:    vendorID,
		QuotedPrice: decimal.RequireFromString(price),
		Timeline:    "2 weeks",
		Description: "Full replacement of damaged roofing sheets",
	}
	require.NoError(t, s.CreateQuote(context.Background(), q))
	return q
}

// Thread открывает переговоры по предложению
func Thread(t *testing.T, s *db.Storage, rfq *models.RFQ, q *models.Quote) *models.NegotiationThread {
	t.Helper()
	th := &models.NegotiationThread{
		ID:            uuid.NewString(),
		QuoteID:       q.ID,
		RFQID:         rfq.ID,
		BuyerID:       *rfq.UserID,
		VendorID:      q.VendorID,
		Status:        models.ThreadStatusOpen,
		OriginalPrice: q.QuotedPrice,
		CurrentPrice:  q.QuotedPrice,
		MaxRounds:     3,
	}
	created, err := s.CreateThread(context.Background(), th)
	require.NoError(t, err)
	require.True(t, created)
	return th
}
