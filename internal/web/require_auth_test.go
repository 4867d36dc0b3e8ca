// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package web_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holomush/holoauth/internal/auth"
	"github.com/holomush/holoauth/internal/web"
)

func TestPathMatcher_RequiresAuth(t *testing.T) {
	tests := []struct {
		name     string
		excluded []string
		path     string
		want     bool
	}{
		{"no patterns", nil, "/users", true},
		{"empty path", []string{"/"}, "", true},
		{"exact with trailing slash", []string{"/api/v1/status/"}, "/api/v1/status", false},
		{"exact without trailing slash", []string{"/api/v1/status"}, "/api/v1/status/", false},
		{"different path", []string{"/api/v1/status/"}, "/api/v1/users", true},
		{"prefix is not enough", []string{"/api/v1/stat"}, "/api/v1/status", true},
		{"wildcard suffix", []string{"/api/v1/stat*"}, "/api/v1/status", false},
		{"wildcard spans segments", []string{"/api/v1/stat*"}, "/api/v1/stats/daily", false},
		{"wildcard does not match other prefixes", []string{"/api/v1/stat*"}, "/api/v1/users", true},
		{"root only matches root", []string{"/"}, "/profile", true},
		{"second pattern matches", []string{"/users/", "/sessions/"}, "/sessions", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := web.NewPathMatcher(tt.excluded)
			require.NoError(t, err)
			assert.Equal(t, tt.want, m.RequiresAuth(tt.path))
		})
	}
}

type stubResolver map[string]*auth.User

func (s stubResolver) GetUserFromSessionID(_ context.Context, id string) (*auth.User, error) {
	return s[id], nil
}

func TestRequireAuth_StoresUser(t *testing.T) {
	bob := &auth.User{ID: 7, Email: "bob@holberton.io"}
	mw, err := web.RequireAuth(stubResolver{"sid": bob}, []string{"/public*"}, quietLogger())
	require.NoError(t, err)

	var seen *auth.User
	h := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = web.UserFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/private", nil)
	req.AddCookie(&http.Cookie{Name: web.SessionCookie, Value: "sid"})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Same(t, bob, seen)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/private", nil))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	seen = nil
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/public/page", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Nil(t, seen, "excluded paths are not resolved")
}

func TestUserFromContext_Empty(t *testing.T) {
	_, ok := web.UserFromContext(context.Background())
	assert.False(t, ok)
}
