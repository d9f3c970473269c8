package rfq_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"rfqmarket/db"
	"rfqmarket/db/dbtest"
	"rfqmarket/internal/apperr"
	"rfqmarket/internal/forms"
	"rfqmarket/internal/notify"
	"rfqmarket/internal/quota"
	"rfqmarket/internal/rfq"
	"rfqmarket/models"
)

type failingNotifier struct{}

func (failingNotifier) Notify(ctx context.Context, n notify.Notification) error {
	return errors.New("notification sink unavailable")
}

func newService(t *testing.T, s *db.Storage, notifier notify.Notifier) (*rfq.Service, *notify.Dispatcher) {
	t.Helper()
	catalog, err := forms.Default()
	require.NoError(t, err)
	d := notify.NewDispatcher(notifier, nil, zap.NewNop())
	return rfq.NewService(s, catalog, d, zap.NewNop()), d
}

func roofingRequest(userID string) rfq.CreateRequest {
	return rfq.CreateRequest{
		UserID:       userID,
		RFQType:      models.RFQTypeWizard,
		CategorySlug: "construction",
		JobTypeSlug:  "roofing",
		FormData: map[string]any{
			"project_title":   "Replace roof <script>x</script>",
			"project_summary": "Old iron sheets are leaking",
			"county":          "Nairobi",
			"roof_type":       "iron_sheets",
			"roof_area_sqm":   float64(80),
		},
	}
}

func TestCreateMatchesVendorsBySkill(t *testing.T) {
	ctx := context.Background()
	s := dbtest.New(t)
	svc, d := newService(t, s, notify.NewStoreNotifier(s))

	buyer := dbtest.Buyer(t, s, "")
	roofer1 := dbtest.Vendor(t, s, "roofing")
	roofer2 := dbtest.Vendor(t, s, "roofing", "masonry")
	dbtest.Vendor(t, s, "borehole")

	res, err := svc.Create(ctx, roofingRequest(buyer.ID))
	require.NoError(t, err)
	require.Equal(t, 2, res.VendorCount)
	require.Equal(t, models.RFQStatusPending, res.RFQ.Status)
	require.Equal(t, "Replace roof >x</script>", res.RFQ.Title)

	recipients, err := s.ListRFQRecipients(ctx, res.RFQ.ID)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{roofer1.ID, roofer2.ID}, recipients)

	d.Wait()
	list, err := s.ListNotifications(ctx, roofer1.ID, 10)
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, notify.TypeNewRFQ, list[0].Type)
	require.Equal(t, res.RFQ.ID, list[0].Metadata["rfqId"])
}

func TestCreateQuotaFreeTier(t *testing.T) {
	ctx := context.Background()
	s := dbtest.New(t)
	svc, _ := newService(t, s, nil)
	buyer := dbtest.Buyer(t, s, "free")

	for i := 0; i < 3; i++ {
		_, err := svc.Create(ctx, roofingRequest(buyer.ID))
		require.NoError(t, err, "rfq %d", i+1)
	}

	_, err := svc.Create(ctx, roofingRequest(buyer.ID))
	e, ok := apperr.As(err)
	require.True(t, ok)
	require.Equal(t, apperr.KindQuota, e.Kind)
	require.Equal(t, "RFQ limit reached", e.Message)
	require.Equal(t, quota.TierFree, e.Extra["tier"])
	require.Equal(t, 3, e.Extra["limit"])
	require.Equal(t, 3, e.Extra["used"])
}

func TestCreateGuestPhoneGate(t *testing.T) {
	ctx := context.Background()
	s := dbtest.New(t)
	svc, _ := newService(t, s, nil)

	req := rfq.CreateRequest{
		GuestEmail:   "guest@example.com",
		GuestPhone:   "+254711000000",
		RFQType:      models.RFQTypePublic,
		CategorySlug: "construction",
		JobTypeSlug:  "roofing",
	}
	_, err := svc.Create(ctx, req)
	require.True(t, apperr.IsKind(err, apperr.KindValidation))
	require.EqualError(t, err, "Phone verification required")

	req.GuestPhone = ""
	_, err = svc.Create(ctx, req)
	require.EqualError(t, err, "Phone number required for guests")

	full := roofingRequest("")
	verified := time.Now()
	full.GuestEmail = "guest@example.com"
	full.GuestPhone = "+254711000000"
	full.GuestPhoneVerifiedAt = &verified
	res, err := svc.Create(ctx, full)
	require.NoError(t, err)
	require.Nil(t, res.RFQ.UserID)
	require.Equal(t, "guest@example.com", *res.RFQ.GuestEmail)
}

func TestCreateValidation(t *testing.T) {
	ctx := context.Background()
	s := dbtest.New(t)
	svc, _ := newService(t, s, nil)
	buyer := dbtest.Buyer(t, s, "")

	req := roofingRequest(buyer.ID)
	delete(req.FormData, "roof_type")
	delete(req.FormData, "county")
	req.FormData["roof_area_sqm"] = float64(0)

	_, err := svc.Create(ctx, req)
	e, ok := apperr.As(err)
	require.True(t, ok)
	require.Equal(t, "Field validation failed", e.Message)
	require.Len(t, e.Fields, 3)

	req = roofingRequest(buyer.ID)
	req.CategorySlug = "gardening"
	_, err = svc.Create(ctx, req)
	require.EqualError(t, err, "Category not found")

	req = roofingRequest(buyer.ID)
	req.RFQType = "auction"
	_, err = svc.Create(ctx, req)
	require.True(t, apperr.IsKind(err, apperr.KindValidation))

	count, err := s.CountRFQsSince(ctx, buyer.ID, "", time.Time{})
	require.NoError(t, err)
	require.Zero(t, count)
}

func TestCreateDirect(t *testing.T) {
	ctx := context.Background()
	s := dbtest.New(t)
	svc, _ := newService(t, s, nil)
	buyer := dbtest.Buyer(t, s, "")
	vendor := dbtest.Vendor(t, s)

	req := roofingRequest(buyer.ID)
	req.RFQType = models.RFQTypeDirect
	req.SelectedVendorIDs = []string{"unknown"}
	_, err := svc.Create(ctx, req)
	require.True(t, apperr.IsKind(err, apperr.KindValidation))

	req.SelectedVendorIDs = []string{vendor.ID, "unknown"}
	res, err := svc.Create(ctx, req)
	require.NoError(t, err)
	require.Equal(t, 1, res.VendorCount)
}

func TestCreateSurvivesNotifierFailure(t *testing.T) {
	s := dbtest.New(t)
	svc, d := newService(t, s, failingNotifier{})
	buyer := dbtest.Buyer(t, s, "")
	dbtest.Vendor(t, s, "roofing")

	res, err := svc.Create(context.Background(), roofingRequest(buyer.ID))
	d.Wait()
	require.NoError(t, err)
	require.Equal(t, 1, res.VendorCount)
}

func TestCompleteAndCancel(t *testing.T) {
	ctx := context.Background()
	s := dbtest.New(t)
	svc, _ := newService(t, s, nil)
	buyer := dbtest.Buyer(t, s, "")
	stranger := dbtest.Buyer(t, s, "")
	r := dbtest.RFQ(t, s, buyer.ID)

	_, err := svc.Complete(ctx, buyer.ID, r.ID)
	require.True(t, apperr.IsKind(err, apperr.KindConflict))

	_, err = svc.Cancel(ctx, stranger.ID, r.ID)
	require.True(t, apperr.IsKind(err, apperr.KindForbidden))

	cancelled, err := svc.Cancel(ctx, buyer.ID, r.ID)
	require.NoError(t, err)
	require.Equal(t, models.RFQStatusCancelled, cancelled.Status)
	require.NotNil(t, cancelled.ClosedAt)

	_, err = svc.Cancel(ctx, buyer.ID, r.ID)
	require.True(t, apperr.IsKind(err, apperr.KindConflict))

	_, err = svc.Cancel(ctx, buyer.ID, "missing")
	require.True(t, apperr.IsKind(err, apperr.KindNotFound))
}

func TestQuotaSummary(t *testing.T) {
	ctx := context.Background()
	s := dbtest.New(t)
	svc, _ := newService(t, s, nil)

	free := dbtest.Buyer(t, s, "")
	dbtest.RFQ(t, s, free.ID)
	sum, err := svc.QuotaSummary(ctx, free.ID)
	require.NoError(t, err)
	require.Equal(t, quota.TierFree, sum.Tier)
	require.Equal(t, 1, sum.Used)
	require.Equal(t, 3, *sum.Limit)
	require.Equal(t, 2, *sum.Remaining)
	require.Equal(t, 1, sum.ResetsOn.Day())

	premium := dbtest.Buyer(t, s, "premium")
	sum, err = svc.QuotaSummary(ctx, premium.ID)
	require.NoError(t, err)
	require.Nil(t, sum.Limit)
	require.Nil(t, sum.Remaining)
}

func TestQuotaSummaryFollowsServiceClock(t *testing.T) {
	ctx := context.Background()
	s := dbtest.New(t)
	base, _ := newService(t, s, nil)

	free := dbtest.Buyer(t, s, "")
	dbtest.RFQ(t, s, free.ID)

	// в следующем месяце прошлые RFQ не считаются, дата сброса сдвигается
	next := time.Now().UTC().AddDate(0, 1, 0)
	svc := base.WithClock(func() time.Time { return next })
	sum, err := svc.QuotaSummary(ctx, free.ID)
	require.NoError(t, err)
	require.Equal(t, 0, sum.Used)
	require.Equal(t, 3, *sum.Remaining)
	require.Equal(t, quota.NextReset(next), sum.ResetsOn)

	// исходный сервис не меняется
	sum, err = base.QuotaSummary(ctx, free.ID)
	require.NoError(t, err)
	require.Equal(t, 1, sum.Used)
}
