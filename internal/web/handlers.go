// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package web

import (
	"encoding/json"
	"errors"
	"mime"
	"net/http"

	"github.com/samber/oops"

	"github.com/holomush/holoauth/internal/auth"
	"github.com/holomush/holoauth/pkg/errutil"
)

const (
	msgWelcome         = "Bienvenue"
	msgUserCreated     = "user created"
	msgLoggedIn        = "logged in"
	msgPasswordUpdated = "Password updated"
	msgEmailTaken      = "email already registered"
	msgInvalidEmail    = "invalid email"
	msgUnauthorized    = "Unauthorized"
	msgForbidden       = "Forbidden"
	msgInternalError   = "internal error"
)

const maxBodyBytes = 1 << 20

type response map[string]string

func message(msg string) response {
	return response{"message": msg}
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	handle := func(pattern string, h http.HandlerFunc) {
		mux.Handle(pattern, markRoute(h))
	}

	handle("GET /{$}", s.handleIndex)
	handle("POST /users", s.handleRegister)
	handle("POST /sessions", s.handleLogin)
	handle("DELETE /sessions", s.handleLogout)
	handle("GET /profile", s.handleProfile)
	handle("POST /reset_password", s.handleResetToken)
	handle("PUT /reset_password", s.handleUpdatePassword)

	return mux
}

func (s *Server) handleIndex(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, message(msgWelcome))
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	fields, ok := s.readFields(w, r, "email", "password")
	if !ok {
		return
	}

	if _, err := s.svc.Register(r.Context(), fields["email"], fields["password"]); err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, response{"email": fields["email"], "message": msgUserCreated})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	fields, ok := s.readFields(w, r, "email", "password")
	if !ok {
		return
	}

	sessionID, err := s.svc.Login(r.Context(), fields["email"], fields["password"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	http.SetCookie(w, sessionCookie(sessionID))
	writeJSON(w, http.StatusOK, response{"email": fields["email"], "message": msgLoggedIn})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	user, err := currentUser(r, s.svc)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if user == nil {
		writeJSON(w, http.StatusForbidden, message(msgForbidden))
		return
	}

	if err := s.svc.Logout(r.Context(), user.ID); err != nil {
		s.writeError(w, r, err)
		return
	}

	expired := sessionCookie("")
	expired.MaxAge = -1
	http.SetCookie(w, expired)
	writeJSON(w, http.StatusOK, message(msgWelcome))
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	user, err := currentUser(r, s.svc)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if user == nil {
		writeJSON(w, http.StatusForbidden, message(msgForbidden))
		return
	}

	writeJSON(w, http.StatusOK, response{"email": user.Email})
}

func (s *Server) handleResetToken(w http.ResponseWriter, r *http.Request) {
	fields, ok := s.readFields(w, r, "email")
	if !ok {
		return
	}

	token, err := s.svc.GetResetPasswordToken(r.Context(), fields["email"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, response{"email": fields["email"], "reset_token": token})
}

// handleUpdatePassword trusts the token alone; email is echoed back.
func (s *Server) handleUpdatePassword(w http.ResponseWriter, r *http.Request) {
	fields, ok := s.readFields(w, r, "email", "reset_token", "new_password")
	if !ok {
		return
	}

	if err := s.svc.UpdatePassword(r.Context(), fields["reset_token"], fields["new_password"]); err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, response{"email": fields["email"], "message": msgPasswordUpdated})
}

func sessionCookie(value string) *http.Cookie {
	return &http.Cookie{
		Name:     SessionCookie,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
}

// readFields collects the named fields from a form-encoded or JSON body.
// It writes a 400 and returns false when the body is malformed or a field is
// missing or empty.
func (s *Server) readFields(w http.ResponseWriter, r *http.Request, names ...string) (map[string]string, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	values := make(map[string]string, len(names))
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeJSON(w, http.StatusBadRequest, message("malformed JSON body"))
			return nil, false
		}
		for _, name := range names {
			if v, ok := body[name].(string); ok {
				values[name] = v
			}
		}
	} else {
		if err := r.ParseForm(); err != nil {
			writeJSON(w, http.StatusBadRequest, message("malformed form body"))
			return nil, false
		}
		for _, name := range names {
			values[name] = r.Form.Get(name)
		}
	}

	for _, name := range names {
		if values[name] == "" {
			writeJSON(w, http.StatusBadRequest, message("missing field: "+name))
			return nil, false
		}
	}
	return values, true
}

// writeError maps facade failures to status codes. Anything that is not a
// typed failure is logged and reported as 500.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, auth.ErrEmailAlreadyRegistered):
		writeJSON(w, http.StatusBadRequest, message(msgEmailTaken))
	case errors.Is(err, auth.ErrInvalidEmail):
		writeJSON(w, http.StatusBadRequest, message(msgInvalidEmail))
	case errors.Is(err, auth.ErrEmptyPassword):
		writeJSON(w, http.StatusBadRequest, message("missing field: new_password"))
	case errors.Is(err, auth.ErrInvalidCredentials):
		writeJSON(w, http.StatusUnauthorized, message(msgUnauthorized))
	case errors.Is(err, auth.ErrUserNotFound), errors.Is(err, auth.ErrInvalidResetToken):
		writeJSON(w, http.StatusForbidden, message(msgForbidden))
	default:
		errutil.LogErrorContext(r.Context(), s.logger, "request failed",
			oops.With("request_id", RequestIDFromContext(r.Context())).
				With("route", r.Pattern).
				Wrap(err))
		writeJSON(w, http.StatusInternalServerError, message(msgInternalError))
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	//nolint:errchkjson,errcheck // client may disconnect
	json.NewEncoder(w).Encode(body)
}
