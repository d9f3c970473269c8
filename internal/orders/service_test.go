package orders_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"rfqmarket/db"
	"rfqmarket/db/dbtest"
	"rfqmarket/internal/apperr"
	"rfqmarket/internal/careers"
	"rfqmarket/internal/contacts"
	"rfqmarket/internal/notify"
	"rfqmarket/internal/orders"
	"rfqmarket/models"
)

type fixture struct {
	s         *db.Storage
	svc       *orders.Service
	employer  *models.Profile
	candidate *models.Profile
	listing   *models.Listing
}

func setup(t *testing.T) *fixture {
	t.Helper()
	s := dbtest.New(t)
	d := notify.NewDispatcher(nil, nil, zap.NewNop())
	hiring := careers.NewService(s, contacts.NewAccess(s), d, zap.NewNop())

	f := &fixture{s: s, svc: orders.NewService(s, hiring, d, zap.NewNop())}
	f.employer = dbtest.Buyer(t, s, "")
	f.candidate = dbtest.Buyer(t, s, "")
	location := "Mombasa"
	f.listing = &models.Listing{
		ID:         uuid.NewString(),
		EmployerID: f.employer.ID,
		Title:      "Electrician",
		Location:   &location,
		PayMax:     decimal.NewNullDecimal(decimal.NewFromInt(60000)),
	}
	require.NoError(t, s.CreateListing(context.Background(), f.listing))
	return f
}

func (f *fixture) application(t *testing.T, status string) *models.Application {
	t.Helper()
	a := &models.Application{ID: uuid.NewString(), ListingID: f.listing.ID, CandidateID: f.candidate.ID, Status: status}
	require.NoError(t, f.s.CreateApplication(context.Background(), a))
	return a
}

func TestCreateForApplicationIdempotent(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	a := f.application(t, models.ApplicationOffer)

	o, exists, err := f.svc.CreateForApplication(ctx, f.employer.ID, orders.ApplicationOrderRequest{ApplicationID: a.ID})
	require.NoError(t, err)
	require.False(t, exists)
	require.True(t, o.AgreedPrice.Equal(decimal.NewFromInt(60000)), "amount defaults to pay_max")
	require.Equal(t, "Mombasa", *o.Location)
	require.Equal(t, models.OrderStatusActive, o.Status)

	app, err := f.s.GetApplication(ctx, a.ID)
	require.NoError(t, err)
	require.Equal(t, models.ApplicationHired, app.Status, "offer advances to hired")

	again, exists, err := f.svc.CreateForApplication(ctx, f.employer.ID, orders.ApplicationOrderRequest{ApplicationID: a.ID})
	require.NoError(t, err)
	require.True(t, exists)
	require.Equal(t, o.ID, again.ID)

	var count int
	require.NoError(t, f.s.DB().Get(&count, `SELECT COUNT(*) FROM job_orders`))
	require.Equal(t, 1, count)
}

func TestCreateForApplicationGuards(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	a := f.application(t, models.ApplicationInterview)

	_, _, err := f.svc.CreateForApplication(ctx, f.employer.ID, orders.ApplicationOrderRequest{ApplicationID: a.ID})
	require.True(t, apperr.IsKind(err, apperr.KindValidation))

	hired := f.application(t, "")
	_, err = f.s.UpdateApplicationStatus(ctx, hired.ID, models.StatusChange{From: models.ApplicationApplied, To: models.ApplicationHired})
	require.NoError(t, err)

	_, _, err = f.svc.CreateForApplication(ctx, f.candidate.ID, orders.ApplicationOrderRequest{ApplicationID: hired.ID})
	require.True(t, apperr.IsKind(err, apperr.KindForbidden))

	_, _, err = f.svc.CreateForApplication(ctx, f.employer.ID, orders.ApplicationOrderRequest{ApplicationID: "missing"})
	require.True(t, apperr.IsKind(err, apperr.KindNotFound))

	price := decimal.NewFromInt(55000)
	o, _, err := f.svc.CreateForApplication(ctx, f.employer.ID, orders.ApplicationOrderRequest{
		ApplicationID: hired.ID,
		AgreedPrice:   &price,
		Milestones:    []any{map[string]any{"title": "First month", "amount": 55000}},
	})
	require.NoError(t, err)
	require.True(t, o.AgreedPrice.Equal(price))
	require.Len(t, o.Milestones, 1)
}

func TestOrderLifecycle(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	s := f.s
	buyer := dbtest.Buyer(t, s, "")
	vendor := dbtest.Vendor(t, s)
	r := dbtest.RFQ(t, s, buyer.ID)
	q := dbtest.Quote(t, s, r.ID, vendor.ID, "20000")
	th := dbtest.Thread(t, s, r, q)

	o := &models.JobOrder{
		ID:            uuid.NewString(),
		RFQID:         &r.ID,
		NegotiationID: &th.ID,
		BuyerID:       buyer.ID,
		VendorID:      vendor.ID,
		AgreedPrice:   decimal.NewFromInt(20000),
		Status:        models.OrderStatusCreated,
	}
	_, err := s.CreateJobOrder(ctx, o)
	require.NoError(t, err)

	_, err = f.svc.Act(ctx, buyer.ID, o.ID, orders.ActionComplete, nil)
	require.True(t, apperr.IsKind(err, apperr.KindConflict), "created orders cannot complete")

	updated, err := f.svc.Act(ctx, buyer.ID, o.ID, orders.ActionConfirm, nil)
	require.NoError(t, err)
	require.Equal(t, models.OrderStatusCreated, updated.Status)
	require.True(t, updated.BuyerConfirmed)

	updated, err = f.svc.Act(ctx, vendor.ID, o.ID, orders.ActionConfirm, nil)
	require.NoError(t, err)
	require.Equal(t, models.OrderStatusActive, updated.Status)

	_, err = f.svc.Act(ctx, f.employer.ID, o.ID, orders.ActionDispute, nil)
	require.True(t, apperr.IsKind(err, apperr.KindForbidden))

	_, err = f.svc.Act(ctx, buyer.ID, o.ID, "pause", nil)
	require.EqualError(t, err, "Unknown action: pause. Use: confirm, complete, cancel, dispute")

	reason := "Vendor unavailable"
	updated, err = f.svc.Act(ctx, buyer.ID, o.ID, orders.ActionCancel, &reason)
	require.NoError(t, err)
	require.Equal(t, models.OrderStatusCancelled, updated.Status)
	require.Equal(t, reason, *updated.CancelReason)

	list, err := f.svc.List(ctx, vendor.ID, models.SideVendor)
	require.NoError(t, err)
	require.Len(t, list, 1)

	list, err = f.svc.List(ctx, vendor.ID, models.SideBuyer)
	require.NoError(t, err)
	require.Empty(t, list)

	_, err = f.svc.List(ctx, vendor.ID, "admin")
	require.True(t, apperr.IsKind(err, apperr.KindValidation))
}
