// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package sqlite implements auth.UserStore on an embedded SQLite file.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/samber/oops"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/holomush/holoauth/internal/auth"
)

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id               INTEGER PRIMARY KEY AUTOINCREMENT,
	email            TEXT    NOT NULL UNIQUE,
	hashed_password  TEXT    NOT NULL,
	session_hash     TEXT    UNIQUE,
	reset_token_hash TEXT    UNIQUE,
	created_at       INTEGER NOT NULL,
	updated_at       INTEGER NOT NULL
)`

const userColumns = `id, email, hashed_password, session_hash, reset_token_hash, created_at, updated_at`

var lookupClauses = map[auth.UserField]string{
	auth.FieldID:             "id = ?",
	auth.FieldEmail:          "email = ?",
	auth.FieldSessionHash:    "session_hash = ?",
	auth.FieldResetTokenHash: "reset_token_hash = ?",
}

// connMaxLifetime bounds how long a file database connection is reused.
var connMaxLifetime = 5 * time.Minute

// UserStore implements auth.UserStore using SQLite.
type UserStore struct {
	db *sql.DB
	// SQLite allows one writer at a time.
	writeLock sync.Mutex
	now       func() time.Time
}

// Open opens (creating if needed) the database at path and ensures the
// users table exists. ":memory:" opens a private in-memory database.
func Open(ctx context.Context, path string) (*UserStore, error) {
	if path == "" {
		return nil, oops.Code("SQLITE_CONFIG_INVALID").Errorf("sqlite path is required")
	}

	db, err := sql.Open("sqlite", dsn(path))
	if err != nil {
		return nil, oops.Code("SQLITE_OPEN_FAILED").With("path", path).Wrap(err)
	}
	if path == ":memory:" {
		// Every connection would otherwise see its own empty database, and
		// recycling the one connection would drop every row.
		db.SetMaxOpenConns(1)
		db.SetConnMaxLifetime(0)
		db.SetConnMaxIdleTime(0)
	} else {
		db.SetConnMaxLifetime(connMaxLifetime)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, oops.Code("SQLITE_OPEN_FAILED").With("path", path).Wrap(err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, oops.Code("SQLITE_SCHEMA_FAILED").With("path", path).Wrap(err)
	}

	return &UserStore{db: db, now: time.Now}, nil
}

func dsn(path string) string {
	q := url.Values{}
	q.Add("_pragma", "busy_timeout(5000)")
	q.Add("_pragma", "foreign_keys(1)")
	if path != ":memory:" {
		q.Add("_pragma", "journal_mode(WAL)")
	}
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return "file:" + path + sep + q.Encode()
}

// Close closes the database.
func (s *UserStore) Close() error {
	if err := s.db.Close(); err != nil {
		return oops.Code("SQLITE_CLOSE_FAILED").Wrap(err)
	}
	return nil
}

// Ping reports whether the database file is reachable.
func (s *UserStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx) //nolint:wrapcheck // readiness probe reports the raw cause
}

// AddUser inserts a user.
func (s *UserStore) AddUser(ctx context.Context, email, hashedPassword string) (*auth.User, error) {
	email = auth.NormalizeEmail(email)

	s.writeLock.Lock()
	defer s.writeLock.Unlock()

	now := s.now().UTC()
	row := s.db.QueryRowContext(ctx,
		`INSERT INTO users (email, hashed_password, created_at, updated_at)
		 VALUES (?, ?, ?, ?)
		 RETURNING `+userColumns,
		email, hashedPassword, now.UnixNano(), now.UnixNano(),
	)

	user, err := scanUser(row)
	if err != nil {
		if isUniqueViolation(err) {
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

	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE `+clause, key)
	user, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
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
	query, args := buildUpdate(id, update, s.now().UTC())

	s.writeLock.Lock()
	defer s.writeLock.Unlock()

	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return oops.Code("USER_UPDATE_FAILED").
			With("operation", "update user").
			With("id", id).
			Wrap(err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return oops.Code("USER_UPDATE_FAILED").
			With("operation", "rows affected").
			With("id", id).
			Wrap(err)
	}
	if affected == 0 {
		return oops.Code("USER_NOT_FOUND").
			With("id", id).
			Wrap(auth.ErrNotFound)
	}
	return nil
}

func buildUpdate(id int64, update auth.UserUpdate, now time.Time) (string, []any) {
	var (
		sets []string
		args []any
	)
	set := func(column string, value any) {
		sets = append(sets, column+" = ?")
		args = append(args, value)
	}

	if update.HashedPassword != nil {
		set("hashed_password", *update.HashedPassword)
	}
	if update.SessionHash.Changed {
		set("session_hash", nullable(update.SessionHash.Value))
	}
	if update.ResetTokenHash.Changed {
		set("reset_token_hash", nullable(update.ResetTokenHash.Value))
	}
	set("updated_at", now.UnixNano())

	where := "id = ?"
	args = append(args, id)
	if update.IfResetTokenHash != nil {
		where += " AND reset_token_hash = ?"
		args = append(args, *update.IfResetTokenHash)
	}

	return "UPDATE users SET " + strings.Join(sets, ", ") + " WHERE " + where, args
}

func nullable(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func isUniqueViolation(err error) bool {
	var liteErr *sqlite.Error
	if !errors.As(err, &liteErr) {
		return false
	}
	switch liteErr.Code() {
	case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
		return true
	}
	return false
}

func scanUser(row *sql.Row) (*auth.User, error) {
	var (
		u                      auth.User
		sessionHash, resetHash sql.NullString
		createdAt, updatedAt   int64
	)
	if err := row.Scan(&u.ID, &u.Email, &u.HashedPassword, &sessionHash, &resetHash, &createdAt, &updatedAt); err != nil {
		return nil, err //nolint:wrapcheck // callers wrap with context-specific info
	}
	if sessionHash.Valid {
		u.SessionHash = &sessionHash.String
	}
	if resetHash.Valid {
		u.ResetTokenHash = &resetHash.String
	}
	u.CreatedAt = time.Unix(0, createdAt).UTC()
	u.UpdatedAt = time.Unix(0, updatedAt).UTC()
	return &u, nil
}

// Compile-time interface check.
var _ auth.UserStore = (*UserStore)(nil)
