// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package memory provides an in-process auth.UserStore.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/samber/oops"

	"github.com/holomush/holoauth/internal/auth"
)

// UserStore implements auth.UserStore with maps guarded by a single lock.
// Records are copied in and out so callers never share state with the store.
type UserStore struct {
	mu      sync.RWMutex
	nextID  int64
	byID    map[int64]*auth.User
	byEmail map[string]int64
	bySess  map[string]int64
	byReset map[string]int64
	now     func() time.Time
}

// NewUserStore creates an empty UserStore.
func NewUserStore() *UserStore {
	return &UserStore{
		byID:    make(map[int64]*auth.User),
		byEmail: make(map[string]int64),
		bySess:  make(map[string]int64),
		byReset: make(map[string]int64),
		now:     time.Now,
	}
}

// AddUser stores a new user.
func (s *UserStore) AddUser(_ context.Context, email, hashedPassword string) (*auth.User, error) {
	email = auth.NormalizeEmail(email)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.byEmail[email]; taken {
		return nil, oops.Code("USER_DUPLICATE_EMAIL").
			With("email", email).
			Wrap(auth.ErrDuplicateEmail)
	}

	s.nextID++
	now := s.now()
	user := &auth.User{
		ID:             s.nextID,
		Email:          email,
		HashedPassword: hashedPassword,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	s.byID[user.ID] = user
	s.byEmail[email] = user.ID

	return user.Clone(), nil
}

// FindUserBy returns the user whose field equals value.
func (s *UserStore) FindUserBy(_ context.Context, field auth.UserField, value any) (*auth.User, error) {
	key, err := field.Normalize(value)
	if err != nil {
		return nil, err //nolint:wrapcheck // already carries field context
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		id int64
		ok bool
	)
	switch field {
	case auth.FieldID:
		id, ok = key.(int64), true
	case auth.FieldEmail:
		id, ok = s.byEmail[key.(string)]
	case auth.FieldSessionHash:
		id, ok = s.bySess[key.(string)]
	case auth.FieldResetTokenHash:
		id, ok = s.byReset[key.(string)]
	}

	user, exists := s.byID[id]
	if !ok || !exists {
		return nil, oops.Code("USER_NOT_FOUND").
			With("field", string(field)).
			Wrap(auth.ErrNotFound)
	}
	return user.Clone(), nil
}

// UpdateUser applies update atomically.
func (s *UserStore) UpdateUser(_ context.Context, id int64, update auth.UserUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.byID[id]
	if !ok || !update.Matches(user) {
		return oops.Code("USER_NOT_FOUND").
			With("id", id).
			Wrap(auth.ErrNotFound)
	}

	if update.SessionHash.Changed {
		reindex(s.bySess, user.SessionHash, update.SessionHash.Value, id)
	}
	if update.ResetTokenHash.Changed {
		reindex(s.byReset, user.ResetTokenHash, update.ResetTokenHash.Value, id)
	}
	update.Apply(user, s.now())

	return nil
}

// Len returns the number of stored users.
func (s *UserStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}

func reindex(index map[string]int64, prev, next *string, id int64) {
	if prev != nil {
		delete(index, *prev)
	}
	if next != nil {
		index[*next] = id
	}
}

// Compile-time interface check.
var _ auth.UserStore = (*UserStore)(nil)
