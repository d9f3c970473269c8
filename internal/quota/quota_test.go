package quota

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"rfqmarket/db"
)

type mockStore struct {
	tier     string
	tierErr  error
	count    int
	countErr error

	gotSince time.Time
	gotGuest string
}

func (m *mockStore) GetProfileTier(ctx context.Context, userID string) (string, error) {
	return m.tier, m.tierErr
}

func (m *mockStore) CountRFQsSince(ctx context.Context, userID, guestEmail string, since time.Time) (int, error) {
	m.gotSince = since
	m.gotGuest = guestEmail
	return m.count, m.countErr
}

func TestFreeTierLimit(t *testing.T) {
	store := &mockStore{tier: "free", count: 3}
	res, err := NewPolicy(store).Check(context.Background(), Actor{UserID: "u1"})
	require.NoError(t, err)
	require.False(t, res.Allowed)
	require.Equal(t, TierFree, res.Tier)
	require.Equal(t, 3, res.Used)
	require.Equal(t, 3, res.Limit)
	require.Equal(t, 0, res.Remaining())

	store.count = 2
	res, err = NewPolicy(store).Check(context.Background(), Actor{UserID: "u1"})
	require.NoError(t, err)
	require.True(t, res.Allowed)
	require.Equal(t, 1, res.Remaining())
}

func TestStandardAndPremium(t *testing.T) {
	store := &mockStore{tier: "standard", count: 4}
	res, err := NewPolicy(store).Check(context.Background(), Actor{UserID: "u1"})
	require.NoError(t, err)
	require.True(t, res.Allowed)
	require.Equal(t, 5, res.Limit)

	store = &mockStore{tier: "premium", count: 500}
	res, err = NewPolicy(store).Check(context.Background(), Actor{UserID: "u1"})
	require.NoError(t, err)
	require.True(t, res.Allowed)
	require.Equal(t, Unlimited, res.Limit)
	require.Equal(t, Unlimited, res.Remaining())
}

func TestMissingTierDefaultsToFree(t *testing.T) {
	for _, store := range []*mockStore{
		{tierErr: db.ErrNotFound, count: 3},
		{tier: "", count: 3},
		{tier: "gold", count: 3},
	} {
		res, err := NewPolicy(store).Check(context.Background(), Actor{UserID: "u1"})
		require.NoError(t, err)
		require.Equal(t, TierFree, res.Tier)
		require.False(t, res.Allowed)
	}
}

func TestGuestIsAlwaysFree(t *testing.T) {
	store := &mockStore{tier: "premium", count: 3}
	res, err := NewPolicy(store).Check(context.Background(), Actor{GuestEmail: "guest@example.com"})
	require.NoError(t, err)
	require.Equal(t, TierFree, res.Tier)
	require.False(t, res.Allowed)
	require.Equal(t, "guest@example.com", store.gotGuest)
}

func TestCountsFromMonthStart(t *testing.T) {
	store := &mockStore{}
	now := time.Date(2026, time.October, 14, 15, 30, 0, 0, time.UTC)
	_, err := NewPolicy(store).WithClock(func() time.Time { return now }).Check(context.Background(), Actor{UserID: "u1"})
	require.NoError(t, err)
	require.Equal(t, time.Date(2026, time.October, 1, 0, 0, 0, 0, time.UTC), store.gotSince)
	require.Equal(t, time.Date(2026, time.November, 1, 0, 0, 0, 0, time.UTC), NextReset(now))
}

func TestStoreErrors(t *testing.T) {
	_, err := NewPolicy(&mockStore{tierErr: errors.New("db down")}).Check(context.Background(), Actor{UserID: "u1"})
	require.Error(t, err)

	_, err = NewPolicy(&mockStore{countErr: errors.New("db down")}).Check(context.Background(), Actor{UserID: "u1"})
	require.Error(t, err)

	_, err = NewPolicy(&mockStore{}).Check(context.Background(), Actor{})
	require.Error(t, err)
}
