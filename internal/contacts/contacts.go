// Package contacts решает, видит ли пользователь телефон и email другой стороны.
// Доступ даёт либо постоянное разблокирование (careers), либо принятое предложение.
package contacts

import (
	"context"
	"errors"
	"fmt"

	"rfqmarket/db"
	"rfqmarket/models"
)

type Store interface {
	GetProfile(ctx context.Context, id string) (*models.Profile, error)
	GetVendor(ctx context.Context, id string) (*models.Vendor, error)
	HasContactUnlock(ctx context.Context, viewerID, subjectID string) (bool, error)
	UnlockedSubjects(ctx context.Context, viewerID string, subjects []string) ([]string, error)
	AcceptedCounterparts(ctx context.Context, userID string) ([]string, error)
}

type Access struct {
	store Store
}

func NewAccess(store Store) *Access {
	return &Access{store: store}
}

// HasContactAccess true, если viewer может видеть контакты subject
func (a *Access) HasContactAccess(ctx context.Context, viewerID, subjectID string) (bool, error) {
	if viewerID == "" || subjectID == "" {
		return false, nil
	}
	if viewerID == subjectID {
		return true, nil
	}
	ok, err := a.store.HasContactUnlock(ctx, viewerID, subjectID)
	if err != nil || ok {
		return ok, err
	}
	counterparts, err := a.store.AcceptedCounterparts(ctx, viewerID)
	if err != nil {
		return false, err
	}
	for _, id := range counterparts {
		if id == subjectID {
			return true, nil
		}
	}
	return false, nil
}

// GrantedSubjects пакетный вариант HasContactAccess
func (a *Access) GrantedSubjects(ctx context.Context, viewerID string, subjects []string) (map[string]bool, error) {
	granted := make(map[string]bool, len(subjects))
	if viewerID == "" || len(subjects) == 0 {
		return granted, nil
	}

	unlocked, err := a.store.UnlockedSubjects(ctx, viewerID, subjects)
	if err != nil {
		return nil, fmt.Errorf("unlocked subjects: %w", err)
	}
	for _, id := range unlocked {
		granted[id] = true
	}

	counterparts, err := a.store.AcceptedCounterparts(ctx, viewerID)
	if err != nil {
		return nil, fmt.Errorf("accepted counterparts: %w", err)
	}
	wanted := make(map[string]bool, len(subjects))
	for _, id := range subjects {
		wanted[id] = true
		if id == viewerID {
			granted[id] = true
		}
	}
	for _, id := range counterparts {
		if wanted[id] {
			granted[id] = true
		}
	}
	return granted, nil
}

// Contact возвращает имя, email и телефон. Для вендора берётся карточка бизнеса.
func (a *Access) Contact(ctx context.Context, userID string) (*models.Contact, error) {
	vendor, err := a.store.GetVendor(ctx, userID)
	if err == nil {
		return &models.Contact{Name: vendor.BusinessName, Email: vendor.Email, Phone: vendor.Phone}, nil
	}
	if !errors.Is(err, db.ErrNotFound) {
		return nil, err
	}

	profile, err := a.store.GetProfile(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &models.Contact{Name: profile.FullName, Email: profile.Email, Phone: profile.Phone}, nil
}

// Redact убирает телефон и email
func Redact(c *models.Contact) *models.Contact {
	if c == nil {
		return nil
	}
	return &models.Contact{Name: c.Name}
}
