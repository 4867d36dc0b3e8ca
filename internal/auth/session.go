// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"
	"errors"

	"github.com/samber/oops"
)

// SessionManager issues, resolves and destroys session ids. A user holds at
// most one session; issuing a new one replaces the previous id.
//
// Two concurrent CreateSession calls for the same user both succeed and the
// last write wins. The losing caller's id stops resolving.
type SessionManager struct {
	users UserStore
}

// NewSessionManager creates a SessionManager backed by users.
func NewSessionManager(users UserStore) (*SessionManager, error) {
	if users == nil {
		return nil, oops.Code("SESSION_INVALID_CONFIG").Errorf("user store is required")
	}
	return &SessionManager{users: users}, nil
}

// CreateSession issues a fresh session id for the user and stores its digest.
// Any previous session of the user stops resolving.
func (m *SessionManager) CreateSession(ctx context.Context, userID int64) (string, error) {
	token, digest, err := GenerateToken()
	if err != nil {
		return "", oops.Code("SESSION_CREATE_FAILED").
			With("operation", "generate session id").
			Wrap(err)
	}

	if err := m.users.UpdateUser(ctx, userID, UserUpdate{SessionHash: SetTo(digest)}); err != nil {
		return "", oops.Code("SESSION_CREATE_FAILED").
			With("operation", "store session").
			With("user_id", userID).
			Wrap(err)
	}

	return token, nil
}

// ResolveSession returns the id of the user holding sessionID.
// Fails with ErrNoSuchSession when sessionID is empty or unknown.
func (m *SessionManager) ResolveSession(ctx context.Context, sessionID string) (int64, error) {
	user, err := m.resolveUser(ctx, sessionID)
	if err != nil {
		return 0, err
	}
	return user.ID, nil
}

func (m *SessionManager) resolveUser(ctx context.Context, sessionID string) (*User, error) {
	if sessionID == "" {
		return nil, oops.Code(CodeSessionNotFound).Wrap(ErrNoSuchSession)
	}

	user, err := m.users.FindUserBy(ctx, FieldSessionHash, HashToken(sessionID))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, oops.Code(CodeSessionNotFound).Wrap(ErrNoSuchSession)
		}
		return nil, oops.Code("SESSION_RESOLVE_FAILED").
			With("operation", "find user by session").
			Wrap(err)
	}

	return user, nil
}

// DestroySession clears the user's session. Destroying an absent session is
// not an error. Returns ErrNotFound if the user does not exist.
func (m *SessionManager) DestroySession(ctx context.Context, userID int64) error {
	if err := m.users.UpdateUser(ctx, userID, UserUpdate{SessionHash: Cleared()}); err != nil {
		return oops.Code("SESSION_DESTROY_FAILED").
			With("operation", "clear session").
			With("user_id", userID).
			Wrap(err)
	}
	return nil
}
