// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package web_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/holomush/holoauth/internal/auth"
	"github.com/holomush/holoauth/internal/auth/memory"
	"github.com/holomush/holoauth/internal/web"
)

// client talks to a running server and keeps the session cookie by hand so
// that tests control exactly which session is presented.
type client struct {
	base    string
	http    *http.Client
	session string
}

func (c *client) call(method, path string, form url.Values) (int, map[string]string) {
	req, err := http.NewRequestWithContext(context.Background(), method, c.base+path, strings.NewReader(form.Encode()))
	Expect(err).NotTo(HaveOccurred())
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if c.session != "" {
		req.AddCookie(&http.Cookie{Name: web.SessionCookie, Value: c.session})
	}

	resp, err := c.http.Do(req)
	Expect(err).NotTo(HaveOccurred())
	defer func() { _ = resp.Body.Close() }()

	for _, ck := range resp.Cookies() {
		if ck.Name == web.SessionCookie {
			c.session = ck.Value
		}
	}

	var body map[string]string
	Expect(json.NewDecoder(resp.Body).Decode(&body)).To(Succeed())
	return resp.StatusCode, body
}

var _ = Describe("Account flow", Ordered, func() {
	const (
		email       = "guillaume@holberton.io"
		password    = "b4l0u"
		newPassword = "t4rt1fl3tt3"
	)

	var (
		server *web.Server
		c      *client
	)

	BeforeAll(func() {
		svc, err := auth.NewAuthServiceWithLogger(memory.NewUserStore(), auth.NewArgon2idHasher(), quietLogger())
		Expect(err).NotTo(HaveOccurred())

		server, err = web.NewServer(svc, web.WithAddr("127.0.0.1:0"), web.WithLogger(quietLogger()))
		Expect(err).NotTo(HaveOccurred())
		_, err = server.Start()
		Expect(err).NotTo(HaveOccurred())

		c = &client{base: "http://" + server.Addr(), http: &http.Client{Timeout: 10 * time.Second}}
	})

	AfterAll(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		Expect(server.Stop(ctx)).To(Succeed())
	})

	It("registers a user", func() {
		status, body := c.call(http.MethodPost, "/users", url.Values{"email": {email}, "password": {password}})
		Expect(status).To(Equal(http.StatusOK))
		Expect(body).To(Equal(map[string]string{"email": email, "message": "user created"}))
	})

	It("refuses a second registration", func() {
		status, body := c.call(http.MethodPost, "/users", url.Values{"email": {email}, "password": {password}})
		Expect(status).To(Equal(http.StatusBadRequest))
		Expect(body).To(HaveKeyWithValue("message", "email already registered"))
	})

	It("rejects a wrong password", func() {
		status, _ := c.call(http.MethodPost, "/sessions", url.Values{"email": {email}, "password": {"nope"}})
		Expect(status).To(Equal(http.StatusUnauthorized))
	})

	It("hides the profile without a session", func() {
		status, _ := c.call(http.MethodGet, "/profile", url.Values{})
		Expect(status).To(Equal(http.StatusForbidden))
	})

	It("logs in", func() {
		status, body := c.call(http.MethodPost, "/sessions", url.Values{"email": {email}, "password": {password}})
		Expect(status).To(Equal(http.StatusOK))
		Expect(body).To(Equal(map[string]string{"email": email, "message": "logged in"}))
		Expect(c.session).NotTo(BeEmpty())
	})

	It("shows the profile", func() {
		status, body := c.call(http.MethodGet, "/profile", url.Values{})
		Expect(status).To(Equal(http.StatusOK))
		Expect(body).To(Equal(map[string]string{"email": email}))
	})

	It("logs out", func() {
		stale := c.session
		status, body := c.call(http.MethodDelete, "/sessions", url.Values{})
		Expect(status).To(Equal(http.StatusOK))
		Expect(body).To(HaveKeyWithValue("message", "Bienvenue"))

		c.session = stale
		status, _ = c.call(http.MethodGet, "/profile", url.Values{})
		Expect(status).To(Equal(http.StatusForbidden))
		c.session = ""
	})

	It("resets the password", func() {
		status, body := c.call(http.MethodPost, "/reset_password", url.Values{"email": {email}})
		Expect(status).To(Equal(http.StatusOK))
		Expect(body).To(HaveKeyWithValue("email", email))
		token := body["reset_token"]
		Expect(token).NotTo(BeEmpty())

		status, body = c.call(http.MethodPut, "/reset_password", url.Values{
			"email":        {email},
			"reset_token":  {token},
			"new_password": {newPassword},
		})
		Expect(status).To(Equal(http.StatusOK))
		Expect(body).To(Equal(map[string]string{"email": email, "message": "Password updated"}))
	})

	It("logs in with the new password only", func() {
		status, _ := c.call(http.MethodPost, "/sessions", url.Values{"email": {email}, "password": {password}})
		Expect(status).To(Equal(http.StatusUnauthorized))

		status, _ = c.call(http.MethodPost, "/sessions", url.Values{"email": {email}, "password": {newPassword}})
		Expect(status).To(Equal(http.StatusOK))
	})
})
