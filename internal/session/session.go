/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package session resolves whether this client may write (authenticated,
// possibly admin) or only watch (guest), and keeps that answer current.
package session

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

var (
	// ErrValidation marks input rejected before any request is made.
	ErrValidation = errors.New("invalid input")
	// ErrInvalidCredentials is returned by an Authenticator for a refused login.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUnauthenticated is returned by Verify when the token is not a live session.
	ErrUnauthenticated = errors.New("not authenticated")
)

// Role values.
const (
	RoleAdmin = "admin"
	RoleUser  = "user"
)

// Session is the client's view of its authorization.
type Session struct {
	Authenticated bool      `json:"authenticated"`
	Admin         bool      `json:"admin"`
	UserID        string    `json:"userId,omitempty"`
	Username      string    `json:"username,omitempty"`
	Token         string    `json:"token,omitempty"`
	ExpiresAt     time.Time `json:"expiresAt,omitempty"`
}

// Expired reports whether s carries an expiry that has passed at now.
func (s Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}

// Guest is the unauthenticated session.
var Guest = Session{}

// Authenticator is the server's auth API.
type Authenticator interface {
	// Verify checks token; ErrUnauthenticated means the server answered no.
	Verify(ctx context.Context, token string) (Session, error)
	Login(ctx context.Context, username, password string) (Session, error)
	AdminLogin(ctx context.Context, password string) (Session, error)
	Register(ctx context.Context, username, password, email string) error
	Logout(ctx context.Context, token string) error
}

// Credential rules shared with the server.
const (
	MinUsername = 3
	MinPassword = 6
)

// ValidateLogin checks username and password before a login request.
func ValidateLogin(username, password string) error {
	switch {
	case strings.TrimSpace(username) == "" || password == "":
		return fmt.Errorf("%w: username and password are required", ErrValidation)
	case len(strings.TrimSpace(username)) < MinUsername:
		return fmt.Errorf("%w: username must be at least %d characters", ErrValidation, MinUsername)
	case len(password) < MinPassword:
		return fmt.Errorf("%w: password must be at least %d characters", ErrValidation, MinPassword)
	}
	return nil
}

// ValidateRegistration adds the email rule to ValidateLogin.
func ValidateRegistration(username, password, email string) error {
	if err := ValidateLogin(username, password); err != nil {
		return err
	}
	if !strings.Contains(email, "@") {
		return fmt.Errorf("%w: a valid email is required", ErrValidation)
	}
	return nil
}

// BootstrapParam is the one-time query parameter carrying a session token.
const BootstrapParam = "session"

// TakeBootstrap returns the bootstrap token in u and a copy of u without it.
func TakeBootstrap(u *url.URL) (string, *url.URL) {
	if u == nil {
		return "", nil
	}
	q := u.Query()
	tok := q.Get(BootstrapParam)
	if tok == "" {
		return "", u
	}
	q.Del(BootstrapParam)
	out := *u
	out.RawQuery = q.Encode()
	return tok, &out
}
