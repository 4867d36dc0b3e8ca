// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package postgres implements auth.UserStore on PostgreSQL.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/samber/oops"

	"github.com/holomush/holoauth/internal/auth"
)

// poolIface is the subset of pgxpool.Pool the store uses; pgxmock satisfies it.
type poolIface interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const userColumns = `id, email, hashed_password, session_hash, reset_token_hash, created_at, updated_at`

// lookupClauses maps lookup fields to WHERE clauses. Emails are stored
// lower-cased and Normalize lower-cases the argument.
var lookupClauses = map[auth.UserField]string{
	auth.FieldID:             "id = $1",
	auth.FieldEmail:          "lower(email) = $1",
	auth.FieldSessionHash:    "session_hash = $1",
	auth.FieldResetTokenHash: "reset_token_hash = $1",
}

// UserStore implements auth.UserStore using PostgreSQL.
type UserStore struct {
	pool poolIface
}

// NewUserStore creates a new UserStore.
func NewUserStore(pool poolIface) *UserStore {
	return &UserStore{pool: pool}
}

// AddUser inserts a user. The unique index on lower(email) enforces uniqueness.
func (s *UserStore) AddUser(ctx context.Context, email, hashedPassword string) (*auth.User, error) {
	email = auth.NormalizeEmail(email)

	row := s.pool.QueryRow(ctx, `
		INSERT INTO users (email, hashed_password)
		VALUES ($1, $2)
		RETURNING `+userColumns,
		email, hashedPassword,
	)

	user, err := scanUser(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return nil, oops.Code("USER_DUPLICATE_EMAIL").
				With("email", email).
				Wrap(auth.ErrDuplicateEmail)
		}
		return nil, oops.Code("USER_CREATE_FAILED").
			With("operation", "insert user").
			Wrap(err)
	}
	return user, nil
}

// FindUserBy returns the user whose field equals value.
func (s *UserStore) FindUserBy(ctx context.Context, field auth.UserField, value any) (*auth.User, error) {
	key, err := field.Normalize(value)
	if err != nil {
		return nil, err //nolint:wrapcheck // already carries field context
	}
	clause, ok := lookupClauses[field]
	if !ok {
		return nil, oops.With("field", string(field)).Wrap(auth.ErrInvalidField)
	}

	row := s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE `+clause, key)

	user, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("USER_NOT_FOUND").
			With("field", string(field)).
			Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("USER_GET_FAILED").
			With("operation", "find user").
			With("field", string(field)).
			Wrap(err)
	}
	return user, nil
}

// UpdateUser applies update in a single UPDATE statement.
func (s *UserStore) UpdateUser(ctx context.Context, id int64, update auth.UserUpdate) error {
	query, args := buildUpdate(id, update)

	result, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return oops.Code("USER_UPDATE_FAILED").
			With("operation", "update user").
			With("id", id).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code("USER_NOT_FOUND").
			With("id", id).
			Wrap(auth.ErrNotFound)
	}
	return nil
}

// buildUpdate renders update as a parameterized statement. $1 is always the id.
func buildUpdate(id int64, update auth.UserUpdate) (string, []any) {
	args := []any{id}
	var sets []string
	set := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if update.HashedPassword != nil {
		set("hashed_password", *update.HashedPassword)
	}
	if update.SessionHash.Changed {
		set("session_hash", update.SessionHash.Value)
	}
	if update.ResetTokenHash.Changed {
		set("reset_token_hash", update.ResetTokenHash.Value)
	}
	sets = append(sets, "updated_at = now()")

	where := "id = $1"
	if update.IfResetTokenHash != nil {
		args = append(args, *update.IfResetTokenHash)
		where += fmt.Sprintf(" AND reset_token_hash = $%d", len(args))
	}

	return "UPDATE users SET " + strings.Join(sets, ", ") + " WHERE " + where, args
}

// scanUser scans a single row into a User.
// Callers are responsible for handling pgx.ErrNoRows.
func scanUser(row pgx.Row) (*auth.User, error) {
	var (
		u              auth.User
		sessionHash    *string
		resetTokenHash *string
		createdAt      time.Time
		updatedAt      time.Time
	)

	err := row.Scan(
		&u.ID,
		&u.Email,
		&u.HashedPassword,
		&sessionHash,
		&resetTokenHash,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err //nolint:wrapcheck // Callers wrap with context-specific info
	}

	u.SessionHash = sessionHash
	u.ResetTokenHash = resetTokenHash
	u.CreatedAt = createdAt
	u.UpdatedAt = updatedAt
	return &u, nil
}

// Compile-time interface check.
var _ auth.UserStore = (*UserStore)(nil)
