// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"
	"errors"

	"github.com/samber/oops"
)

// ResetTokenManager issues and redeems one-time password reset tokens.
// A user holds at most one pending token; issuing replaces the previous one.
type ResetTokenManager struct {
	users  UserStore
	hasher PasswordHasher
}

// NewResetTokenManager creates a ResetTokenManager.
func NewResetTokenManager(users UserStore, hasher PasswordHasher) (*ResetTokenManager, error) {
	if users == nil {
		return nil, oops.Code("RESET_INVALID_CONFIG").Errorf("user store is required")
	}
	if hasher == nil {
		return nil, oops.Code("RESET_INVALID_CONFIG").Errorf("password hasher is required")
	}
	return &ResetTokenManager{users: users, hasher: hasher}, nil
}

// IssueResetToken generates a reset token for the user registered under
// email and stores its digest. Returns ErrNoSuchUser if no user matches.
func (m *ResetTokenManager) IssueResetToken(ctx context.Context, email string) (string, error) {
	user, err := m.users.FindUserBy(ctx, FieldEmail, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) || errors.Is(err, ErrInvalidField) {
			return "", oops.Code(CodeResetUserNotFound).Wrap(ErrNoSuchUser)
		}
		return "", oops.Code("RESET_ISSUE_FAILED").
			With("operation", "find user by email").
			Wrap(err)
	}

	token, digest, err := GenerateToken()
	if err != nil {
		return "", oops.Code("RESET_ISSUE_FAILED").
			With("operation", "generate reset token").
			Wrap(err)
	}

	if err := m.users.UpdateUser(ctx, user.ID, UserUpdate{ResetTokenHash: SetTo(digest)}); err != nil {
		if errors.Is(err, ErrNotFound) {
			return "", oops.Code(CodeResetUserNotFound).Wrap(ErrNoSuchUser)
		}
		return "", oops.Code("RESET_ISSUE_FAILED").
			With("operation", "store reset token").
			With("user_id", user.ID).
			Wrap(err)
	}

	return token, nil
}

// RedeemResetToken replaces the password of the user holding token and
// clears the token. The replacement is conditional on the token still being
// the one stored, so of two concurrent redemptions exactly one succeeds.
// Returns ErrNoSuchToken for an empty, unknown or already redeemed token.
func (m *ResetTokenManager) RedeemResetToken(ctx context.Context, token, newPassword string) error {
	if token == "" {
		return oops.Code(CodeResetTokenNotFound).Wrap(ErrNoSuchToken)
	}

	digest := HashToken(token)
	user, err := m.users.FindUserBy(ctx, FieldResetTokenHash, digest)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return oops.Code(CodeResetTokenNotFound).Wrap(ErrNoSuchToken)
		}
		return oops.Code("RESET_REDEEM_FAILED").
			With("operation", "find user by reset token").
			Wrap(err)
	}

	hashed, err := m.hasher.Hash(newPassword)
	if err != nil {
		return oops.Code("RESET_REDEEM_FAILED").
			With("operation", "hash new password").
			Wrap(err)
	}

	err = m.users.UpdateUser(ctx, user.ID, UserUpdate{
		HashedPassword:   &hashed,
		ResetTokenHash:   Cleared(),
		IfResetTokenHash: &digest,
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return oops.Code(CodeResetTokenNotFound).Wrap(ErrNoSuchToken)
		}
		return oops.Code("RESET_REDEEM_FAILED").
			With("operation", "replace password").
			With("user_id", user.ID).
			Wrap(err)
	}

	return nil
}
