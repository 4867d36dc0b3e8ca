// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import "errors"

// Store sentinels.
var (
	// ErrNotFound is returned when a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateEmail is returned when a store already holds the email.
	ErrDuplicateEmail = errors.New("duplicate email")

	// ErrInvalidField is returned for lookups on an unsupported field or with
	// a value of the wrong type.
	ErrInvalidField = errors.New("invalid lookup field")
)

// Manager sentinels.
var (
	ErrNoSuchSession = errors.New("no such session")
	ErrNoSuchUser    = errors.New("no such user")
	ErrNoSuchToken   = errors.New("no such reset token")
	ErrEmptyPassword = errors.New("password cannot be empty")
)

// Facade sentinels. These back the typed failures returned by Service.
var (
	ErrEmailAlreadyRegistered = errors.New("email already registered")
	ErrInvalidEmail           = errors.New("invalid email")
	ErrInvalidCredentials     = errors.New("invalid email or password")
	ErrUserNotFound           = errors.New("user not found")
	ErrInvalidResetToken      = errors.New("invalid reset token")
)

// Error codes attached to typed failures.
const (
	CodeEmailTaken         = "AUTH_EMAIL_TAKEN"
	CodeInvalidEmail       = "AUTH_INVALID_EMAIL"
	CodeInvalidCredentials = "AUTH_INVALID_CREDENTIALS"
	CodeUserNotFound       = "AUTH_USER_NOT_FOUND"
	CodeInvalidResetToken  = "AUTH_INVALID_RESET_TOKEN"
	CodeEmptyPassword      = "AUTH_EMPTY_PASSWORD"
	CodeSessionNotFound    = "SESSION_NOT_FOUND"
	CodeResetTokenNotFound = "RESET_TOKEN_NOT_FOUND"
	CodeResetUserNotFound  = "RESET_USER_NOT_FOUND"
)
