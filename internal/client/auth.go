/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/mjsxi/matts-infinite-canvas-sub000/internal/session"
)

var _ session.Authenticator = (*Client)(nil)

type authUser struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Role     string `json:"role"`
	IsAdmin  bool   `json:"isAdmin"`
}

type authResponse struct {
	Success       bool       `json:"success"`
	Authenticated bool       `json:"authenticated"`
	User          *authUser  `json:"user"`
	Token         string     `json:"token"`
	ExpiresAt     *time.Time `json:"expiresAt"`
}

func (r authResponse) session(token string) session.Session {
	s := session.Session{Authenticated: true, Token: token}
	if r.User != nil {
		s.UserID = r.User.ID
		s.Username = r.User.Username
		s.Admin = r.User.IsAdmin
	}
	if r.ExpiresAt != nil {
		s.ExpiresAt = *r.ExpiresAt
	}
	return s
}

// authError maps an auth endpoint failure onto the session errors.
func authError(err error) error {
	var he *HTTPError
	if !errors.As(err, &he) {
		return err
	}
	switch he.Status {
	case http.StatusUnauthorized:
		return fmt.Errorf("%w: %s", session.ErrInvalidCredentials, he.Message)
	case http.StatusBadRequest, http.StatusConflict:
		return fmt.Errorf("%w: %s", session.ErrValidation, he.Message)
	}
	return err
}

// Verify checks token with the server. On success the token is used for
// later requests.
func (c *Client) Verify(ctx context.Context, token string) (session.Session, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url("/api/auth/verify"), nil)
	if err != nil {
		return session.Guest, err
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	var ar authResponse
	if err := c.do(req, &ar); err != nil {
		return session.Guest, err
	}
	if !ar.Authenticated {
		return session.Guest, session.ErrUnauthenticated
	}
	c.SetToken(token)
	return ar.session(token), nil
}

// Login authenticates a user account.
func (c *Client) Login(ctx context.Context, username, password string) (session.Session, error) {
	return c.login(ctx, "/api/auth/login", map[string]string{"username": username, "password": password})
}

// AdminLogin opens an admin-scoped session.
func (c *Client) AdminLogin(ctx context.Context, password string) (session.Session, error) {
	return c.login(ctx, "/api/auth/admin", map[string]string{"password": password})
}

func (c *Client) login(ctx context.Context, path string, body map[string]string) (session.Session, error) {
	var ar authResponse
	if err := c.doJSON(ctx, http.MethodPost, path, body, &ar); err != nil {
		return session.Guest, authError(err)
	}
	if !ar.Success || ar.Token == "" {
		return session.Guest, session.ErrInvalidCredentials
	}
	c.SetToken(ar.Token)
	return ar.session(ar.Token), nil
}

// Register creates an account; it does not log in.
func (c *Client) Register(ctx context.Context, username, password, email string) error {
	body := map[string]string{"username": username, "password": password, "email": email}
	return authError(c.doJSON(ctx, http.MethodPost, "/api/auth/register", body, nil))
}

// Logout ends the session on the server and forgets the token.
func (c *Client) Logout(ctx context.Context, token string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url("/api/auth/logout"), nil)
	if err != nil {
		return err
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	c.SetToken("")
	return c.do(req, nil)
}
