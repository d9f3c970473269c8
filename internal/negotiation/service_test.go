package negotiation_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"rfqmarket/db"
	"rfqmarket/db/dbtest"
	"rfqmarket/internal/apperr"
	"rfqmarket/internal/negotiation"
	"rfqmarket/internal/notify"
	"rfqmarket/internal/orders"
	"rfqmarket/models"
)

type failingNotifier struct{}

func (failingNotifier) Notify(ctx context.Context, n notify.Notification) error {
	return errors.New("notification sink unavailable")
}

type brokenOrders struct{ calls int }

func (b *brokenOrders) CreateForNegotiation(ctx context.Context, accepted *db.AcceptedOffer) (*models.JobOrder, bool, error) {
	b.calls++
	return nil, false, errors.New("orders table locked")
}

type fixture struct {
	s      *db.Storage
	svc    *negotiation.Service
	buyer  *models.Profile
	vendor *models.Vendor
	rfq    *models.RFQ
	quote  *models.Quote
}

func setup(t *testing.T, notifier notify.Notifier) *fixture {
	t.Helper()
	s := dbtest.New(t)
	d := notify.NewDispatcher(notifier, nil, zap.NewNop())
	orderSvc := orders.NewService(s, nil, d, zap.NewNop())

	f := &fixture{s: s, svc: negotiation.NewService(s, orderSvc, d, zap.NewNop())}
	f.buyer = dbtest.Buyer(t, s, "")
	f.vendor = dbtest.Vendor(t, s, "roofing")
	f.rfq = dbtest.RFQ(t, s, f.buyer.ID, f.vendor.ID)
	f.quote = dbtest.Quote(t, s, f.rfq.ID, f.vendor.ID, "50000")
	return f
}

func (f *fixture) open(t *testing.T) *models.NegotiationThread {
	t.Helper()
	th, existing, err := f.svc.Open(context.Background(), f.buyer.ID, f.quote.ID)
	require.NoError(t, err)
	require.False(t, existing)
	return th
}

func (f *fixture) offer(t *testing.T, actorID, threadID, price string) *models.CounterOffer {
	t.Helper()
	o, err := f.svc.ProposeOffer(context.Background(), actorID, threadID, negotiation.OfferRequest{
		Price: decimal.RequireFromString(price),
	})
	require.NoError(t, err)
	return o
}

func TestOpenIsIdempotent(t *testing.T) {
	ctx := context.Background()
	f := setup(t, nil)
	th := f.open(t)
	require.Equal(t, models.ThreadStatusOpen, th.Status)
	require.Equal(t, negotiation.MaxRounds, th.MaxRounds)
	require.True(t, th.OriginalPrice.Equal(f.quote.QuotedPrice))

	again, existing, err := f.svc.Open(ctx, f.vendor.ID, f.quote.ID)
	require.NoError(t, err)
	require.True(t, existing)
	require.Equal(t, th.ID, again.ID)

	stranger := dbtest.Buyer(t, f.s, "")
	_, _, err = f.svc.Open(ctx, stranger.ID, f.quote.ID)
	require.True(t, apperr.IsKind(err, apperr.KindForbidden))
}

func TestProposeOfferRounds(t *testing.T) {
	ctx := context.Background()
	f := setup(t, nil)
	th := f.open(t)

	o1 := f.offer(t, f.buyer.ID, th.ID, "45000")
	require.Equal(t, 1, o1.RoundNumber)
	require.Equal(t, models.SideBuyer, o1.ProposerSide)
	require.WithinDuration(t, time.Now().AddDate(0, 0, negotiation.DefaultResponseByDays), o1.ResponseBy, time.Minute)

	f.offer(t, f.vendor.ID, th.ID, "48000")
	f.offer(t, f.buyer.ID, th.ID, "46000")

	_, err := f.svc.ProposeOffer(ctx, f.vendor.ID, th.ID, negotiation.OfferRequest{Price: decimal.NewFromInt(47000)})
	require.True(t, apperr.IsKind(err, apperr.KindValidation))
	require.EqualError(t, err, "Maximum of 3 negotiation rounds reached")

	q, err := f.s.GetQuote(ctx, f.quote.ID)
	require.NoError(t, err)
	require.Equal(t, models.QuoteStatusRevised, q.Status, "vendor proposal revises the quote")
}

func TestProposeOfferValidation(t *testing.T) {
	ctx := context.Background()
	f := setup(t, nil)
	th := f.open(t)

	_, err := f.svc.ProposeOffer(ctx, f.buyer.ID, th.ID, negotiation.OfferRequest{Price: decimal.NewFromInt(1), ResponseByDays: 31})
	require.True(t, apperr.IsKind(err, apperr.KindValidation))

	_, err = f.svc.ProposeOffer(ctx, f.buyer.ID, th.ID, negotiation.OfferRequest{Price: decimal.NewFromInt(-1)})
	require.True(t, apperr.IsKind(err, apperr.KindValidation))

	// без цены раунд не расходуется
	_, err = f.svc.ProposeOffer(ctx, f.vendor.ID, th.ID, negotiation.OfferRequest{})
	e, ok := apperr.As(err)
	require.True(t, ok)
	require.Contains(t, e.Fields, "proposedPrice")
	view, err := f.svc.GetThread(ctx, f.buyer.ID, th.ID)
	require.NoError(t, err)
	require.Equal(t, 0, view.Thread.RoundCount)
	require.Empty(t, view.CounterOffers)

	stranger := dbtest.Buyer(t, f.s, "")
	_, err = f.svc.ProposeOffer(ctx, stranger.ID, th.ID, negotiation.OfferRequest{Price: decimal.NewFromInt(1)})
	require.EqualError(t, err, "User is not a participant in this negotiation")
}

func TestAcceptOfferMutualExclusion(t *testing.T) {
	ctx := context.Background()
	f := setup(t, failingNotifier{})
	th := f.open(t)

	o1 := f.offer(t, f.vendor.ID, th.ID, "49000")
	o2 := f.offer(t, f.vendor.ID, th.ID, "47500")
	o3 := f.offer(t, f.vendor.ID, th.ID, "47000")

	res, err := f.svc.Act(ctx, f.buyer.ID, th.ID, negotiation.ActRequest{Action: negotiation.ActionAcceptOffer, OfferID: o2.ID})
	require.NoError(t, err)
	require.Equal(t, models.ThreadStatusAccepted, res.Thread.Status)
	require.Equal(t, o2.ID, *res.Thread.AcceptedOfferID)
	require.Equal(t, models.OfferStatusAccepted, res.Offer.Status)
	require.Equal(t, 2, res.CancelledOffers)

	for _, id := range []string{o1.ID, o3.ID} {
		o, err := f.s.GetCounterOffer(ctx, id)
		require.NoError(t, err)
		require.Equal(t, models.OfferStatusCancelled, o.Status)
	}

	q, err := f.s.GetQuote(ctx, f.quote.ID)
	require.NoError(t, err)
	require.Equal(t, models.QuoteStatusAccepted, q.Status)
	require.True(t, q.QuotedPrice.Equal(o2.ProposedPrice), "accepted price is mirrored onto the quote")

	r, err := f.s.GetRFQ(ctx, f.rfq.ID)
	require.NoError(t, err)
	require.Equal(t, models.RFQStatusAssigned, r.Status)

	require.NotNil(t, res.JobOrder)
	require.True(t, res.JobOrder.AgreedPrice.Equal(o2.ProposedPrice))
	require.Equal(t, models.OrderStatusCreated, res.JobOrder.Status)

	_, err = f.svc.Act(ctx, f.buyer.ID, th.ID, negotiation.ActRequest{Action: negotiation.ActionAcceptOffer, OfferID: o1.ID})
	require.True(t, apperr.IsKind(err, apperr.KindValidation))
}

func TestAcceptOfferGuards(t *testing.T) {
	ctx := context.Background()
	f := setup(t, nil)
	th := f.open(t)
	o := f.offer(t, f.vendor.ID, th.ID, "49000")

	// своё предложение принимает только другая сторона; отклонить его можно
	_, err := f.svc.Act(ctx, f.vendor.ID, th.ID, negotiation.ActRequest{Action: negotiation.ActionAcceptOffer, OfferID: o.ID})
	require.EqualError(t, err, "You cannot accept your own offer")

	_, err = f.svc.Act(ctx, f.buyer.ID, th.ID, negotiation.ActRequest{Action: negotiation.ActionAcceptOffer, OfferID: "missing"})
	require.EqualError(t, err, "Offer not found or already resolved")

	late := f.svc.WithClock(func() time.Time { return time.Now().AddDate(0, 0, 4) })
	_, err = late.Act(ctx, f.buyer.ID, th.ID, negotiation.ActRequest{Action: negotiation.ActionAcceptOffer, OfferID: o.ID})
	require.EqualError(t, err, "Offer has expired")

	_, err = f.svc.Act(ctx, f.buyer.ID, th.ID, negotiation.ActRequest{Action: "haggle"})
	require.EqualError(t, err, "Unknown action: haggle. Use: accept_offer, reject_offer, cancel")

	stranger := dbtest.Buyer(t, f.s, "")
	_, err = f.svc.Act(ctx, stranger.ID, th.ID, negotiation.ActRequest{Action: negotiation.ActionCancel})
	require.True(t, apperr.IsKind(err, apperr.KindForbidden))
}

func TestAcceptOfferSurvivesOrderFailure(t *testing.T) {
	ctx := context.Background()
	f := setup(t, nil)
	broken := &brokenOrders{}
	d := notify.NewDispatcher(nil, nil, zap.NewNop())
	svc := negotiation.NewService(f.s, broken, d, zap.NewNop())

	th, _, err := svc.Open(ctx, f.buyer.ID, f.quote.ID)
	require.NoError(t, err)
	o, err := svc.ProposeOffer(ctx, f.buyer.ID, th.ID, negotiation.OfferRequest{Price: decimal.NewFromInt(44000)})
	require.NoError(t, err)

	res, err := svc.Act(ctx, f.vendor.ID, th.ID, negotiation.ActRequest{Action: negotiation.ActionAcceptOffer, OfferID: o.ID})
	require.NoError(t, err)
	require.Equal(t, 1, broken.calls)
	require.Nil(t, res.JobOrder)
	require.Equal(t, models.ThreadStatusAccepted, res.Thread.Status)
}

func TestRejectAndCancel(t *testing.T) {
	ctx := context.Background()
	f := setup(t, nil)
	th := f.open(t)
	o1 := f.offer(t, f.vendor.ID, th.ID, "49000")
	f.offer(t, f.vendor.ID, th.ID, "48000")

	reason := "Too high"
	res, err := f.svc.Act(ctx, f.buyer.ID, th.ID, negotiation.ActRequest{Action: negotiation.ActionRejectOffer, OfferID: o1.ID, Reason: &reason})
	require.NoError(t, err)
	require.Equal(t, models.OfferStatusRejected, res.Offer.Status)
	require.Equal(t, reason, *res.Offer.RejectionReason)
	require.Equal(t, models.ThreadStatusOpen, res.Thread.Status)

	res, err = f.svc.Act(ctx, f.buyer.ID, th.ID, negotiation.ActRequest{Action: negotiation.ActionCancel})
	require.NoError(t, err)
	require.Equal(t, models.ThreadStatusCancelled, res.Thread.Status)
	require.Equal(t, 1, res.CancelledOffers)
	require.NotNil(t, res.Thread.ClosedAt)

	_, err = f.svc.Act(ctx, f.buyer.ID, th.ID, negotiation.ActRequest{Action: negotiation.ActionCancel})
	require.True(t, apperr.IsKind(err, apperr.KindConflict))
}

func TestQuestionsAndThreadView(t *testing.T) {
	ctx := context.Background()
	f := setup(t, nil)
	th := f.open(t)
	f.offer(t, f.buyer.ID, th.ID, "45000")

	_, err := f.svc.AskQuestion(ctx, f.buyer.ID, th.ID, "  ")
	require.True(t, apperr.IsKind(err, apperr.KindValidation))

	q1, err := f.svc.AskQuestion(ctx, f.buyer.ID, th.ID, "Does the price include gutters?")
	require.NoError(t, err)
	_, err = f.svc.AskQuestion(ctx, f.vendor.ID, th.ID, "Is the site accessible by truck?")
	require.NoError(t, err)

	_, err = f.svc.AnswerQuestion(ctx, f.buyer.ID, q1.ID, "Yes")
	require.EqualError(t, err, "You cannot answer your own question")

	answered, err := f.svc.AnswerQuestion(ctx, f.vendor.ID, q1.ID, "Yes, gutters included")
	require.NoError(t, err)
	require.Equal(t, "Yes, gutters included", *answered.Answer)

	_, err = f.svc.AnswerQuestion(ctx, f.vendor.ID, q1.ID, "Again")
	require.EqualError(t, err, "This question has already been answered")

	view, err := f.svc.GetThread(ctx, f.vendor.ID, th.ID)
	require.NoError(t, err)
	require.Equal(t, 1, view.Thread.TotalCounterOffers)
	require.Equal(t, 1, view.Thread.PendingOffers)
	require.Equal(t, 2, view.Thread.TotalQuestions)
	require.Equal(t, 1, view.Thread.AnsweredQuestions)
	require.Equal(t, 1, view.Thread.UnansweredQuestions)
	require.Equal(t, 1, view.Thread.TotalRevisions)
	require.Equal(t, q1.ID, view.QAItems[0].ID, "questions are oldest first")
	require.Equal(t, "Counter offer round 1", view.Revisions[0].Reason)
}

func TestReport(t *testing.T) {
	ctx := context.Background()
	f := setup(t, nil)
	th := f.open(t)

	_, err := f.svc.Report(ctx, f.vendor.ID, th.ID, "", nil)
	require.True(t, apperr.IsKind(err, apperr.KindValidation))

	r, err := f.svc.Report(ctx, f.vendor.ID, th.ID, "Abusive messages", nil)
	require.NoError(t, err)
	require.Equal(t, f.buyer.ID, r.ReportedUser)

	after, err := f.s.GetThread(ctx, th.ID)
	require.NoError(t, err)
	require.True(t, after.Flagged)
}

func TestExpireOffersSweep(t *testing.T) {
	ctx := context.Background()
	f := setup(t, nil)
	th := f.open(t)
	f.offer(t, f.buyer.ID, th.ID, "45000")
	f.offer(t, f.vendor.ID, th.ID, "48000")
	f.offer(t, f.buyer.ID, th.ID, "46000")

	none, err := f.svc.ExpireOffers(ctx)
	require.NoError(t, err)
	require.Empty(t, none)

	later := f.svc.WithClock(func() time.Time { return time.Now().AddDate(0, 0, 5) })
	expired, err := later.ExpireOffers(ctx)
	require.NoError(t, err)
	require.Len(t, expired, 3)
	require.True(t, expired[0].ThreadExpired)

	after, err := f.s.GetThread(ctx, th.ID)
	require.NoError(t, err)
	require.Equal(t, models.ThreadStatusExpired, after.Status)
}
