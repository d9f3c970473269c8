package quotes_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"rfqmarket/db"
	"rfqmarket/db/dbtest"
	"rfqmarket/internal/apperr"
	"rfqmarket/internal/contacts"
	"rfqmarket/internal/notify"
	"rfqmarket/internal/quotes"
	"rfqmarket/models"
)

type failingNotifier struct{ calls int }

func (f *failingNotifier) Notify(ctx context.Context, n notify.Notification) error {
	f.calls++
	return errors.New("notification sink unavailable")
}

type failingSMS struct{ calls int }

func (f *failingSMS) Send(ctx context.Context, msg notify.SMSMessage) error {
	f.calls++
	return errors.New("sms gateway down")
}

func newService(s *db.Storage, notifier notify.Notifier, sms notify.SMSSender) *quotes.Service {
	d := notify.NewDispatcher(notifier, sms, zap.NewNop())
	return quotes.NewService(s, contacts.NewAccess(s), d, zap.NewNop())
}

func submitRequest(vendorID, rfqID string) quotes.SubmitRequest {
	return quotes.SubmitRequest{
		VendorID:    vendorID,
		RFQID:       rfqID,
		Price:       decimal.RequireFromString("45000"),
		Timeline:    "10 days",
		Description: "Strip old sheets and install new gauge 28 sheets",
	}
}

func TestSubmit(t *testing.T) {
	ctx := context.Background()
	s := dbtest.New(t)
	svc := newService(s, notify.NewStoreNotifier(s), nil)
	buyer := dbtest.Buyer(t, s, "")
	vendor := dbtest.Vendor(t, s, "roofing")
	r := dbtest.RFQ(t, s, buyer.ID)

	q, err := svc.Submit(ctx, submitRequest(vendor.ID, r.ID))
	require.NoError(t, err)
	require.Equal(t, models.QuoteStatusSubmitted, q.Status)

	_, err = svc.Submit(ctx, submitRequest(vendor.ID, r.ID))
	require.True(t, apperr.IsKind(err, apperr.KindConflict))

	list, err := s.ListNotifications(ctx, buyer.ID, 10)
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, notify.TypeNewQuote, list[0].Type)
}

func TestSubmitRules(t *testing.T) {
	ctx := context.Background()
	s := dbtest.New(t)
	svc := newService(s, nil, nil)
	buyer := dbtest.Buyer(t, s, "")
	vendor := dbtest.Vendor(t, s, "roofing")
	r := dbtest.RFQ(t, s, buyer.ID)

	bad := submitRequest(vendor.ID, r.ID)
	bad.Price = decimal.Zero
	bad.Timeline = " "
	bad.Description = "too short"
	_, err := svc.Submit(ctx, bad)
	e, ok := apperr.As(err)
	require.True(t, ok)
	require.Len(t, e.Fields, 3)

	_, err = svc.Submit(ctx, submitRequest(buyer.ID, r.ID))
	require.True(t, apperr.IsKind(err, apperr.KindForbidden), "buyers are not vendors")

	_, err = svc.Submit(ctx, submitRequest(vendor.ID, "missing"))
	require.True(t, apperr.IsKind(err, apperr.KindNotFound))

	direct := &models.RFQ{
		ID:           uuid.NewString(),
		UserID:       &buyer.ID,
		RFQType:      models.RFQTypeDirect,
		CategorySlug: "construction",
		JobTypeSlug:  "roofing",
		Title:        "Direct roofing",
		FormData:     models.JSONMap{},
	}
	invited := dbtest.Vendor(t, s)
	require.NoError(t, s.CreateRFQ(ctx, direct, []string{invited.ID}))

	_, err = svc.Submit(ctx, submitRequest(vendor.ID, direct.ID))
	require.True(t, apperr.IsKind(err, apperr.KindForbidden))
	_, err = svc.Submit(ctx, submitRequest(invited.ID, direct.ID))
	require.NoError(t, err)

	_, err = s.TransitionRFQ(ctx, r.ID, []string{models.RFQStatusPending}, models.RFQStatusCancelled)
	require.NoError(t, err)
	_, err = svc.Submit(ctx, submitRequest(invited.ID, r.ID))
	require.True(t, apperr.IsKind(err, apperr.KindConflict))
}

func TestAcceptRequiresOwner(t *testing.T) {
	ctx := context.Background()
	s := dbtest.New(t)
	svc := newService(s, nil, nil)
	buyer := dbtest.Buyer(t, s, "")
	stranger := dbtest.Buyer(t, s, "")
	vendor := dbtest.Vendor(t, s)
	r := dbtest.RFQ(t, s, buyer.ID)
	q := dbtest.Quote(t, s, r.ID, vendor.ID, "1000")

	_, err := svc.Accept(ctx, stranger.ID, r.ID, q.ID)
	require.True(t, apperr.IsKind(err, apperr.KindForbidden))
	require.EqualError(t, err, "Only the RFQ creator can accept quotes")

	after, err := s.GetQuote(ctx, q.ID)
	require.NoError(t, err)
	require.Equal(t, models.QuoteStatusSubmitted, after.Status)

	rfqAfter, err := s.GetRFQ(ctx, r.ID)
	require.NoError(t, err)
	require.Equal(t, models.RFQStatusPending, rfqAfter.Status)
}

func TestAcceptIsolatedFromNotificationFailures(t *testing.T) {
	ctx := context.Background()
	s := dbtest.New(t)
	notifier := &failingNotifier{}
	sms := &failingSMS{}
	svc := newService(s, notifier, sms)
	buyer := dbtest.Buyer(t, s, "")
	vendor := dbtest.Vendor(t, s)
	r := dbtest.RFQ(t, s, buyer.ID)
	q := dbtest.Quote(t, s, r.ID, vendor.ID, "1000")

	res, err := svc.Accept(ctx, buyer.ID, r.ID, q.ID)
	require.NoError(t, err)
	require.Equal(t, models.QuoteStatusAccepted, res.Quote.Status)
	require.Equal(t, buyer.FullName, res.BuyerContact.Name)
	require.Equal(t, *buyer.Email, *res.BuyerContact.Email)
	require.Equal(t, vendor.BusinessName, res.VendorContact.Name)
	require.Equal(t, *vendor.Phone, *res.VendorContact.Phone)

	require.Equal(t, 2, notifier.calls)
	require.Equal(t, 2, sms.calls)

	rfqAfter, err := s.GetRFQ(ctx, r.ID)
	require.NoError(t, err)
	require.Equal(t, models.RFQStatusAssigned, rfqAfter.Status)
	require.Equal(t, vendor.ID, *rfqAfter.AssignedVendorID)
}

func TestAcceptGuards(t *testing.T) {
	ctx := context.Background()
	s := dbtest.New(t)
	svc := newService(s, nil, nil)
	buyer := dbtest.Buyer(t, s, "")
	v1 := dbtest.Vendor(t, s)
	v2 := dbtest.Vendor(t, s)
	r := dbtest.RFQ(t, s, buyer.ID)
	other := dbtest.RFQ(t, s, buyer.ID)
	q1 := dbtest.Quote(t, s, r.ID, v1.ID, "1000")
	q2 := dbtest.Quote(t, s, r.ID, v2.ID, "900")
	foreign := dbtest.Quote(t, s, other.ID, v1.ID, "800")

	_, err := svc.Accept(ctx, buyer.ID, r.ID, foreign.ID)
	require.True(t, apperr.IsKind(err, apperr.KindValidation))
	require.EqualError(t, err, "Quote does not belong to this RFQ")

	_, err = svc.Accept(ctx, buyer.ID, "missing", q1.ID)
	require.EqualError(t, err, "RFQ not found")

	_, err = svc.Accept(ctx, buyer.ID, r.ID, "missing")
	require.EqualError(t, err, "Quote not found")

	_, err = svc.Accept(ctx, buyer.ID, r.ID, q1.ID)
	require.NoError(t, err)
	_, err = svc.Accept(ctx, buyer.ID, r.ID, q1.ID)
	require.NoError(t, err, "accepting the same quote twice is idempotent")

	_, err = svc.Accept(ctx, buyer.ID, r.ID, q2.ID)
	require.True(t, apperr.IsKind(err, apperr.KindConflict))
}

func TestReject(t *testing.T) {
	ctx := context.Background()
	s := dbtest.New(t)
	svc := newService(s, notify.NewStoreNotifier(s), nil)
	buyer := dbtest.Buyer(t, s, "")
	vendor := dbtest.Vendor(t, s)
	r := dbtest.RFQ(t, s, buyer.ID)
	q := dbtest.Quote(t, s, r.ID, vendor.ID, "1000")

	_, err := svc.Reject(ctx, vendor.ID, r.ID, q.ID)
	require.EqualError(t, err, "Unauthorized")

	rejected, err := svc.Reject(ctx, buyer.ID, r.ID, q.ID)
	require.NoError(t, err)
	require.Equal(t, models.QuoteStatusRejected, rejected.Status)

	_, err = svc.Reject(ctx, buyer.ID, r.ID, q.ID)
	require.True(t, apperr.IsKind(err, apperr.KindConflict))

	list, err := s.ListNotifications(ctx, vendor.ID, 10)
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, notify.TypeQuoteRejected, list[0].Type)
}

func TestListForRFQ(t *testing.T) {
	ctx := context.Background()
	s := dbtest.New(t)
	svc := newService(s, nil, nil)
	buyer := dbtest.Buyer(t, s, "")
	vendor := dbtest.Vendor(t, s)
	r := dbtest.RFQ(t, s, buyer.ID)

	list, err := svc.ListForRFQ(ctx, buyer.ID, r.ID)
	require.NoError(t, err)
	require.Empty(t, list)

	dbtest.Quote(t, s, r.ID, vendor.ID, "1000")
	list, err = svc.ListForRFQ(ctx, buyer.ID, r.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)

	_, err = svc.ListForRFQ(ctx, vendor.ID, r.ID)
	require.True(t, apperr.IsKind(err, apperr.KindForbidden))
}
