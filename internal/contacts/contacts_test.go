package contacts_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"rfqmarket/db"
	"rfqmarket/db/dbtest"
	"rfqmarket/internal/contacts"
)

func TestContactAccess(t *testing.T) {
	ctx := context.Background()
	s := dbtest.New(t)
	access := contacts.NewAccess(s)

	buyer := dbtest.Buyer(t, s, "")
	vendor := dbtest.Vendor(t, s, "roofing")
	stranger := dbtest.Buyer(t, s, "")

	ok, err := access.HasContactAccess(ctx, buyer.ID, vendor.ID)
	require.NoError(t, err)
	require.False(t, ok)

	rfq := dbtest.RFQ(t, s, buyer.ID, vendor.ID)
	q := dbtest.Quote(t, s, rfq.ID, vendor.ID, "1000")
	_, err = s.AcceptQuote(ctx, rfq.ID, q.ID)
	require.NoError(t, err)

	ok, err = access.HasContactAccess(ctx, buyer.ID, vendor.ID)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = access.HasContactAccess(ctx, vendor.ID, buyer.ID)
	require.NoError(t, err)
	require.True(t, ok)

	_, err = s.CreateContactUnlock(ctx, stranger.ID, buyer.ID)
	require.NoError(t, err)

	granted, err := access.GrantedSubjects(ctx, stranger.ID, []string{buyer.ID, vendor.ID})
	require.NoError(t, err)
	require.True(t, granted[buyer.ID])
	require.False(t, granted[vendor.ID])
}

func TestContactLookup(t *testing.T) {
	ctx := context.Background()
	s := dbtest.New(t)
	access := contacts.NewAccess(s)

	buyer := dbtest.Buyer(t, s, "")
	vendor := dbtest.Vendor(t, s)

	c, err := access.Contact(ctx, vendor.ID)
	require.NoError(t, err)
	require.Equal(t, vendor.BusinessName, c.Name)
	require.Equal(t, *vendor.Phone, *c.Phone)

	c, err = access.Contact(ctx, buyer.ID)
	require.NoError(t, err)
	require.Equal(t, buyer.FullName, c.Name)

	redacted := contacts.Redact(c)
	require.Nil(t, redacted.Email)
	require.Nil(t, redacted.Phone)

	_, err = access.Contact(ctx, "missing")
	require.ErrorIs(t, err, db.ErrNotFound)
}
