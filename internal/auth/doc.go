// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package auth provides session-based authentication for holoauth.
//
// # Domain Types
//
// A User record is the only persisted type. It carries the email, the
// password digest and the digests of the currently active session id and
// password-reset token. Bearer values are never stored; they are returned to
// the caller once and looked up by their SHA-256 digest afterwards.
//
// # Services
//
// Service types coordinate domain operations:
//   - SessionManager - issues, resolves and destroys session ids
//   - ResetTokenManager - issues and redeems one-time reset tokens
//   - Service - register, login, logout and password reset flows
//
// Services are created with New* constructors that validate dependencies.
//
// # Outcomes
//
// A failed login or an unknown session is an expected outcome and is reported
// as false or nil, never as an error. Typed failures (duplicate email, unknown
// user, invalid reset token) are oops errors carrying a stable code and
// wrapping one of the sentinels in this package. Anything else is a storage
// or system failure.
package auth
