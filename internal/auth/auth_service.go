// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"

	"github.com/samber/oops"

	"github.com/holomush/holoauth/pkg/errutil"
)

// Operation outcomes reported to a Recorder.
const (
	OutcomeSuccess  = "success"
	OutcomeRejected = "rejected"
	OutcomeError    = "error"
)

// Recorder receives one call per facade operation. observability.Metrics
// implements it.
type Recorder interface {
	RecordAuthOperation(operation, outcome string)
}

type nopRecorder struct{}

func (nopRecorder) RecordAuthOperation(string, string) {}

// ServiceOption customizes a Service.
type ServiceOption func(*Service)

// WithRecorder reports operation outcomes to r.
func WithRecorder(r Recorder) ServiceOption {
	return func(s *Service) {
		if r != nil {
			s.recorder = r
		}
	}
}

// Service implements the register, login, logout and password reset flows.
type Service struct {
	users    UserStore
	hasher   PasswordHasher
	sessions *SessionManager
	resets   *ResetTokenManager
	logger   *slog.Logger
	recorder Recorder
}

// NewAuthService creates a new Service that logs to slog.Default().
func NewAuthService(users UserStore, hasher PasswordHasher, opts ...ServiceOption) (*Service, error) {
	return NewAuthServiceWithLogger(users, hasher, slog.Default(), opts...)
}

// NewAuthServiceWithLogger creates a new Service with an explicit logger.
func NewAuthServiceWithLogger(users UserStore, hasher PasswordHasher, logger *slog.Logger, opts ...ServiceOption) (*Service, error) {
	if users == nil {
		return nil, oops.Code("AUTH_INVALID_CONFIG").Errorf("user store is required")
	}
	if hasher == nil {
		return nil, oops.Code("AUTH_INVALID_CONFIG").Errorf("password hasher is required")
	}
	if logger == nil {
		return nil, oops.Code("AUTH_INVALID_CONFIG").Errorf("logger is required")
	}

	sessions, err := NewSessionManager(users)
	if err != nil {
		return nil, err
	}
	resets, err := NewResetTokenManager(users, hasher)
	if err != nil {
		return nil, err
	}

	s := &Service{
		users:    users,
		hasher:   hasher,
		sessions: sessions,
		resets:   resets,
		logger:   logger,
		recorder: nopRecorder{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Sessions exposes the session manager used by the service.
func (s *Service) Sessions() *SessionManager {
	return s.sessions
}

// Resets exposes the reset token manager used by the service.
func (s *Service) Resets() *ResetTokenManager {
	return s.resets
}

// dummyPasswordHash is verified against when a user doesn't exist so that the
// response time does not reveal whether an email is registered. It never
// matches any password.
//
//nolint:gosec // G101: This is an intentionally fake hash for timing attack prevention, not a credential.
const dummyPasswordHash = "$argon2id$v=19$m=65536,t=1,p=4$AAAAAAAAAAAAAAAAAAAAAA$AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"

// Register creates a user with a freshly hashed password.
func (s *Service) Register(ctx context.Context, email, password string) (_ *User, err error) {
	defer func() { s.record("register", err) }()

	if err := ValidateEmail(email); err != nil {
		return nil, err
	}
	email = NormalizeEmail(email)

	_, err = s.users.FindUserBy(ctx, FieldEmail, email)
	switch {
	case err == nil:
		return nil, s.emailTaken(email)
	case !errors.Is(err, ErrNotFound):
		return nil, oops.Code("AUTH_REGISTER_FAILED").
			With("operation", "find user by email").
			Wrap(err)
	}

	hashed, err := s.hasher.Hash(password)
	if err != nil {
		return nil, oops.Code("AUTH_REGISTER_FAILED").
			With("operation", "hash password").
			Wrap(err)
	}

	user, err := s.users.AddUser(ctx, email, hashed)
	if err != nil {
		// Lost a race with a concurrent registration of the same email.
		if errors.Is(err, ErrDuplicateEmail) {
			return nil, s.emailTaken(email)
		}
		return nil, oops.Code("AUTH_REGISTER_FAILED").
			With("operation", "add user").
			Wrap(err)
	}

	s.logger.InfoContext(ctx, "user registered", "user_id", user.ID, "email", user.Email)
	return user, nil
}

func (s *Service) emailTaken(email string) error {
	return oops.Code(CodeEmailTaken).
		With("email", email).
		Wrap(ErrEmailAlreadyRegistered)
}

// ValidLogin reports whether password matches the user registered under
// email. An unknown email or a wrong password yields (false, nil); only
// storage or digest failures are errors.
func (s *Service) ValidLogin(ctx context.Context, email, password string) (ok bool, err error) {
	_, ok, err = s.checkCredentials(ctx, email, password)
	return ok, err
}

// checkCredentials looks up the user and verifies the password in constant
// time with respect to whether the user exists.
func (s *Service) checkCredentials(ctx context.Context, email, password string) (*User, bool, error) {
	user, lookupErr := s.users.FindUserBy(ctx, FieldEmail, email)

	targetHash := dummyPasswordHash
	exists := false
	switch {
	case lookupErr == nil:
		targetHash = user.HashedPassword
		exists = true
	case errors.Is(lookupErr, ErrNotFound), errors.Is(lookupErr, ErrInvalidField):
	default:
		return nil, false, oops.Code("AUTH_LOGIN_FAILED").
			With("operation", "find user by email").
			Wrap(lookupErr)
	}

	// Always verify, even for unknown users.
	valid, verifyErr := s.hasher.Verify(password, targetHash)
	if !exists {
		return nil, false, nil
	}
	if verifyErr != nil {
		return nil, false, oops.Code("AUTH_LOGIN_FAILED").
			With("operation", "verify password").
			With("user_id", user.ID).
			Wrap(verifyErr)
	}
	if !valid {
		return user, false, nil
	}
	return user, true, nil
}

// Login verifies the credentials and issues a new session id, replacing any
// session the user already had.
func (s *Service) Login(ctx context.Context, email, password string) (_ string, err error) {
	defer func() { s.record("login", err) }()

	user, ok, err := s.checkCredentials(ctx, email, password)
	if err != nil {
		return "", err
	}
	if !ok {
		s.logger.InfoContext(ctx, "login rejected", "email", NormalizeEmail(email))
		return "", oops.Code(CodeInvalidCredentials).Wrap(ErrInvalidCredentials)
	}

	if s.hasher.NeedsUpgrade(user.HashedPassword) {
		s.upgradeHash(ctx, user, password)
	}

	sessionID, err := s.sessions.CreateSession(ctx, user.ID)
	if err != nil {
		return "", err
	}

	s.logger.InfoContext(ctx, "user logged in", "user_id", user.ID)
	return sessionID, nil
}

// upgradeHash rehashes a legacy digest. Failures are logged; login proceeds.
func (s *Service) upgradeHash(ctx context.Context, user *User, password string) {
	hashed, err := s.hasher.Hash(password)
	if err != nil {
		errutil.LogErrorContext(ctx, s.logger, "password hash upgrade failed", err)
		return
	}
	if err := s.users.UpdateUser(ctx, user.ID, UserUpdate{HashedPassword: &hashed}); err != nil {
		errutil.LogErrorContext(ctx, s.logger, "password hash upgrade failed", err)
		return
	}
	s.logger.InfoContext(ctx, "password hash upgraded", "user_id", user.ID)
}

// GetUserFromSessionID returns the user holding sessionID, or (nil, nil) when
// the id is empty or resolves to nobody. A nil user means "not
// authenticated"; an error means the lookup itself failed.
func (s *Service) GetUserFromSessionID(ctx context.Context, sessionID string) (user *User, err error) {
	defer func() {
		outcome := Outcome(err)
		if err == nil && user == nil {
			outcome = OutcomeRejected
		}
		s.recorder.RecordAuthOperation("resolve_session", outcome)
	}()

	if sessionID == "" {
		return nil, nil
	}

	user, err = s.sessions.resolveUser(ctx, sessionID)
	if err != nil {
		if errors.Is(err, ErrNoSuchSession) {
			return nil, nil
		}
		return nil, err
	}
	return user, nil
}

// Logout destroys the user's session. Logging out twice is not an error.
func (s *Service) Logout(ctx context.Context, userID int64) (err error) {
	defer func() { s.record("logout", err) }()

	if err := s.sessions.DestroySession(ctx, userID); err != nil {
		if errors.Is(err, ErrNotFound) {
			return oops.Code(CodeUserNotFound).
				With("user_id", userID).
				Wrap(ErrUserNotFound)
		}
		return err
	}

	s.logger.InfoContext(ctx, "user logged out", "user_id", userID)
	return nil
}

// GetResetPasswordToken issues a reset token for the user registered under
// email, replacing any pending one.
func (s *Service) GetResetPasswordToken(ctx context.Context, email string) (_ string, err error) {
	defer func() { s.record("reset_token", err) }()

	token, err := s.resets.IssueResetToken(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNoSuchUser) {
			return "", oops.Code(CodeUserNotFound).
				With("email", NormalizeEmail(email)).
				Wrap(ErrUserNotFound)
		}
		return "", err
	}

	s.logger.InfoContext(ctx, "reset token issued", "email", NormalizeEmail(email))
	return token, nil
}

// UpdatePassword redeems a reset token and sets the new password.
func (s *Service) UpdatePassword(ctx context.Context, resetToken, newPassword string) (err error) {
	defer func() { s.record("update_password", err) }()

	if newPassword == "" {
		return oops.Code(CodeEmptyPassword).Wrap(ErrEmptyPassword)
	}

	if err := s.resets.RedeemResetToken(ctx, resetToken, newPassword); err != nil {
		if errors.Is(err, ErrNoSuchToken) {
			return oops.Code(CodeInvalidResetToken).Wrap(ErrInvalidResetToken)
		}
		return err
	}

	s.logger.InfoContext(ctx, "password updated via reset token")
	return nil
}

func (s *Service) record(operation string, err error) {
	s.recorder.RecordAuthOperation(operation, Outcome(err))
}

// Outcome classifies the result of a facade operation: typed failures are
// rejections, anything else that failed is an error.
func Outcome(err error) string {
	switch {
	case err == nil:
		return OutcomeSuccess
	case IsExpectedFailure(err):
		return OutcomeRejected
	default:
		return OutcomeError
	}
}

// IsExpectedFailure reports whether err is one of the typed failures the
// facade returns for precondition violations, as opposed to a system error.
func IsExpectedFailure(err error) bool {
	for _, target := range []error{
		ErrEmailAlreadyRegistered,
		ErrInvalidEmail,
		ErrInvalidCredentials,
		ErrUserNotFound,
		ErrInvalidResetToken,
		ErrEmptyPassword,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
