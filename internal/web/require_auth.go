// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package web

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gobwas/glob"
	"github.com/samber/oops"

	"github.com/holomush/holoauth/internal/auth"
	"github.com/holomush/holoauth/pkg/errutil"
)

// SessionCookie is the cookie carrying the session id.
const SessionCookie = "session_id"

// SessionResolver maps a session id to its user.
type SessionResolver interface {
	GetUserFromSessionID(ctx context.Context, sessionID string) (*auth.User, error)
}

type userKey struct{}

// UserFromContext returns the user resolved by RequireAuth, if any.
func UserFromContext(ctx context.Context) (*auth.User, bool) {
	u, ok := ctx.Value(userKey{}).(*auth.User)
	return u, ok && u != nil
}

// PathMatcher decides which request paths need a session.
type PathMatcher struct {
	excluded []glob.Glob
}

// NewPathMatcher compiles the excluded path patterns. A pattern matches a
// path compared with a trailing slash, so "/users" and "/users/" are the
// same; "*" matches any run of characters, slashes included.
func NewPathMatcher(excluded []string) (*PathMatcher, error) {
	m := &PathMatcher{}
	for _, pattern := range excluded {
		if !strings.HasSuffix(pattern, "/") && !strings.HasSuffix(pattern, "*") {
			pattern += "/"
		}
		g, err := glob.Compile(pattern)
		if err != nil {
			return nil, oops.Code("WEB_INVALID_PATTERN").With("pattern", pattern).Wrap(err)
		}
		m.excluded = append(m.excluded, g)
	}
	return m, nil
}

// RequiresAuth reports whether path is outside every excluded pattern.
// With no patterns every path requires auth.
func (m *PathMatcher) RequiresAuth(path string) bool {
	if path == "" {
		return true
	}
	if !strings.HasSuffix(path, "/") {
		path += "/"
	}
	for _, g := range m.excluded {
		if g.Match(path) {
			return false
		}
	}
	return true
}

// RequireAuth rejects requests to protected paths that carry no valid
// session cookie with 403. The resolved user is stored on the request
// context for UserFromContext.
func RequireAuth(resolver SessionResolver, excluded []string, logger *slog.Logger) (func(http.Handler) http.Handler, error) {
	matcher, err := NewPathMatcher(excluded)
	if err != nil {
		return nil, err
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !matcher.RequiresAuth(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			user, err := currentUser(r, resolver)
			if err != nil {
				errutil.LogErrorContext(r.Context(), logger, "session lookup failed", err)
				writeJSON(w, http.StatusInternalServerError, message(msgInternalError))
				return
			}
			if user == nil {
				writeJSON(w, http.StatusForbidden, message(msgForbidden))
				return
			}

			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userKey{}, user)))
		})
	}, nil
}

// currentUser resolves the session cookie. A missing cookie or unknown id
// yields (nil, nil).
func currentUser(r *http.Request, resolver SessionResolver) (*auth.User, error) {
	if u, ok := UserFromContext(r.Context()); ok {
		return u, nil
	}
	cookie, err := r.Cookie(SessionCookie)
	if err != nil || cookie.Value == "" {
		return nil, nil
	}
	return resolver.GetUserFromSessionID(r.Context(), cookie.Value)
}
