// Package quota решает, может ли пользователь создать ещё один RFQ в текущем месяце.
package quota

import (
	"context"
	"errors"
	"fmt"
	"time"

	"rfqmarket/db"
)

type Tier string

const (
	TierFree     Tier = "free"
	TierStandard Tier = "standard"
	TierPremium  Tier = "premium"
)

// Unlimited лимит без ограничения
const Unlimited = -1

var limits = map[Tier]int{
	TierFree:     3,
	TierStandard: 5,
	TierPremium:  Unlimited,
}

// LimitFor лимит RFQ в месяц для тарифа; неизвестный тариф считается free
func LimitFor(t Tier) int {
	if l, ok := limits[t]; ok {
		return l
	}
	return limits[TierFree]
}

// ParseTier пустое или неизвестное значение даёт free
func ParseTier(s string) Tier {
	t := Tier(s)
	if _, ok := limits[t]; ok {
		return t
	}
	return TierFree
}

// Actor авторизованный пользователь или гость по email
type Actor struct {
	UserID     string
	GuestEmail string
}

func (a Actor) IsGuest() bool { return a.UserID == "" }

// Result итог проверки. Limit == Unlimited для безлимитных тарифов.
type Result struct {
	Allowed bool
	Tier    Tier
	Used    int
	Limit   int
}

// Remaining сколько ещё можно создать; -1 для безлимита
func (r Result) Remaining() int {
	if r.Limit == Unlimited {
		return Unlimited
	}
	if r.Used >= r.Limit {
		return 0
	}
	return r.Limit - r.Used
}

type Store interface {
	GetProfileTier(ctx context.Context, userID string) (string, error)
	CountRFQsSince(ctx context.Context, userID, guestEmail string, since time.Time) (int, error)
}

// Policy только читает данные
type Policy struct {
	store Store
	now   func() time.Time
}

func NewPolicy(store Store) *Policy {
	return &Policy{store: store, now: time.Now}
}

// WithClock подменяет часы (для тестов и пересчёта периода)
func (p *Policy) WithClock(now func() time.Time) *Policy {
	return &Policy{store: p.store, now: now}
}

// MonthStart начало календарного месяца в UTC
func MonthStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// NextReset начало следующего месяца
func NextReset(t time.Time) time.Time {
	return MonthStart(t).AddDate(0, 1, 0)
}

// Check считает RFQ актора с начала месяца и сравнивает с лимитом тарифа
func (p *Policy) Check(ctx context.Context, actor Actor) (Result, error) {
	if actor.UserID == "" && actor.GuestEmail == "" {
		return Result{}, errors.New("quota: actor has neither user id nor guest email")
	}

	tier := TierFree
	if !actor.IsGuest() {
		raw, err := p.store.GetProfileTier(ctx, actor.UserID)
		if err != nil && !errors.Is(err, db.ErrNotFound) {
			return Result{}, fmt.Errorf("quota: load tier: %w", err)
		}
		tier = ParseTier(raw)
	}

	used, err := p.store.CountRFQsSince(ctx, actor.UserID, actor.GuestEmail, MonthStart(p.now()))
	if err != nil {
		return Result{}, fmt.Errorf("quota: count rfqs: %w", err)
	}

	limit := LimitFor(tier)
	return Result{
		Allowed: limit == Unlimited || used < limit,
		Tier:    tier,
		Used:    used,
		Limit:   limit,
	}, nil
}
