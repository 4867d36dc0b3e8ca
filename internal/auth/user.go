// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"
	"net/mail"
	"strings"
	"time"

	"github.com/samber/oops"
)

// MaxEmailLength matches the width of the email column.
const MaxEmailLength = 250

// User is a persisted user record.
//
// SessionHash and ResetTokenHash hold SHA-256 digests of the bearer values
// handed to the client. A nil value means no session or no pending reset.
type User struct {
	ID             int64
	Email          string
	HashedPassword string
	SessionHash    *string
	ResetTokenHash *string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// HasSession reports whether the user currently holds a session.
func (u *User) HasSession() bool {
	return u.SessionHash != nil
}

// HasPendingReset reports whether a reset token has been issued and not yet redeemed.
func (u *User) HasPendingReset() bool {
	return u.ResetTokenHash != nil
}

// UserField names a column a user can be looked up by.
type UserField string

// Lookup fields supported by every UserStore.
const (
	FieldID             UserField = "id"
	FieldEmail          UserField = "email"
	FieldSessionHash    UserField = "session_hash"
	FieldResetTokenHash UserField = "reset_token_hash"
)

// Normalize validates value for the field and returns the form stores compare
// against. Emails are trimmed and lower-cased; IDs must be int64; digests must
// be non-empty strings.
func (f UserField) Normalize(value any) (any, error) {
	switch f {
	case FieldID:
		id, ok := value.(int64)
		if !ok {
			return nil, oops.With("field", string(f)).Wrapf(ErrInvalidField, "expected int64, got %T", value)
		}
		return id, nil
	case FieldEmail, FieldSessionHash, FieldResetTokenHash:
		s, ok := value.(string)
		if !ok {
			return nil, oops.With("field", string(f)).Wrapf(ErrInvalidField, "expected string, got %T", value)
		}
		if f == FieldEmail {
			s = NormalizeEmail(s)
		}
		if s == "" {
			return nil, oops.With("field", string(f)).Wrapf(ErrInvalidField, "empty lookup value")
		}
		return s, nil
	default:
		return nil, oops.With("field", string(f)).Wrap(ErrInvalidField)
	}
}

// NullableChange describes a change to a nullable column.
// The zero value leaves the column untouched.
type NullableChange struct {
	Changed bool
	Value   *string
}

// SetTo returns a change that stores v.
func SetTo(v string) NullableChange {
	return NullableChange{Changed: true, Value: &v}
}

// Cleared returns a change that stores NULL.
func Cleared() NullableChange {
	return NullableChange{Changed: true}
}

// UserUpdate lists the fields to change on one record. Stores apply all
// changes in one atomic step.
type UserUpdate struct {
	HashedPassword *string
	SessionHash    NullableChange
	ResetTokenHash NullableChange

	// IfResetTokenHash, when set, makes the update conditional: it applies
	// only if the record's current reset token digest equals this value.
	// A failed condition is reported as ErrNotFound.
	IfResetTokenHash *string
}

// IsEmpty reports whether the update changes nothing.
func (u UserUpdate) IsEmpty() bool {
	return u.HashedPassword == nil && !u.SessionHash.Changed && !u.ResetTokenHash.Changed
}

// Apply copies the changes onto user. Stores backed by plain memory use it;
// SQL stores translate the update into a single statement instead.
func (u UserUpdate) Apply(user *User, now time.Time) {
	if u.HashedPassword != nil {
		user.HashedPassword = *u.HashedPassword
	}
	if u.SessionHash.Changed {
		user.SessionHash = cloneString(u.SessionHash.Value)
	}
	if u.ResetTokenHash.Changed {
		user.ResetTokenHash = cloneString(u.ResetTokenHash.Value)
	}
	user.UpdatedAt = now
}

// Matches reports whether the update's condition holds for user.
func (u UserUpdate) Matches(user *User) bool {
	if u.IfResetTokenHash == nil {
		return true
	}
	return user.ResetTokenHash != nil && *user.ResetTokenHash == *u.IfResetTokenHash
}

// Clone returns a deep copy of the user.
func (u *User) Clone() *User {
	c := *u
	c.SessionHash = cloneString(u.SessionHash)
	c.ResetTokenHash = cloneString(u.ResetTokenHash)
	return &c
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

// NormalizeEmail trims surrounding whitespace and lower-cases the address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidateEmail checks that email is a bare RFC 5322 address that fits the
// email column.
func ValidateEmail(email string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return oops.Code(CodeInvalidEmail).Wrapf(ErrInvalidEmail, "email cannot be empty")
	}
	if len(email) > MaxEmailLength {
		return oops.Code(CodeInvalidEmail).
			With("max", MaxEmailLength).
			Wrapf(ErrInvalidEmail, "email must be at most %d characters", MaxEmailLength)
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return oops.Code(CodeInvalidEmail).Wrapf(ErrInvalidEmail, "email must be a plain address")
	}
	return nil
}

// UserStore persists user records. Implementations hold no policy; they must
// apply every mutation atomically with respect to other mutations of the same
// record.
type UserStore interface {
	// AddUser stores a new user with no session and no reset token.
	// Returns ErrDuplicateEmail if the email is already taken.
	AddUser(ctx context.Context, email, hashedPassword string) (*User, error)

	// FindUserBy returns the single user whose field equals value.
	// Returns ErrNotFound if none matches and ErrInvalidField for an
	// unsupported field or value type.
	FindUserBy(ctx context.Context, field UserField, value any) (*User, error)

	// UpdateUser applies update to the user with the given id.
	// Returns ErrNotFound if the user does not exist or the update's
	// condition does not hold.
	UpdateUser(ctx context.Context, id int64, update UserUpdate) error
}
