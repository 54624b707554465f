/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package backend

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	applog "github.com/mjsxi/matts-infinite-canvas-sub000/internal/log"
	"github.com/mjsxi/matts-infinite-canvas-sub000/internal/session"
	"github.com/mjsxi/matts-infinite-canvas-sub000/internal/storage"
)

// UserInfo is the user object of auth responses.
type UserInfo struct {
	ID       string `json:"id"`
	Username string `json:"username,omitempty"`
	Role     string `json:"role"`
	IsAdmin  bool   `json:"isAdmin"`
}

// AuthResponse is the body of login, admin login and verify responses.
type AuthResponse struct {
	Success       bool       `json:"success,omitempty"`
	Authenticated bool       `json:"authenticated"`
	User          *UserInfo  `json:"user,omitempty"`
	Token         string     `json:"token,omitempty"`
	ExpiresAt     *time.Time `json:"expiresAt,omitempty"`
	Error         string     `json:"error,omitempty"`
}

type credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Email    string `json:"email"`
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10)).Decode(dst); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	l := applog.WithOperation(s.log, "login")
	var req credentials
	if !decodeBody(w, r, &req) {
		return
	}
	if err := session.ValidateLogin(req.Username, req.Password); err != nil {
		respondWithError(w, http.StatusBadRequest, validationMessage(err))
		return
	}
	u, err := s.store.UserByName(r.Context(), req.Username)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		// burn the same time as a real comparison
		_ = bcrypt.CompareHashAndPassword(s.dummyHash, []byte(req.Password))
		respondWithError(w, http.StatusUnauthorized, "invalid username or password")
		return
	case err != nil:
		l.Error("user lookup failed", applog.Err(err))
		respondWithError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(req.Password)) != nil {
		respondWithError(w, http.StatusUnauthorized, "invalid username or password")
		return
	}
	s.issue(w, r, u.ID, u.Username, u.Role)
	l.Info("user logged in", slog.String("user", u.ID))
}

func (s *Server) handleAdminLogin(w http.ResponseWriter, r *http.Request) {
	var req credentials
	if !decodeBody(w, r, &req) {
		return
	}
	if s.env.AdminPassword == "" {
		respondWithError(w, http.StatusForbidden, "admin login is disabled")
		return
	}
	if req.Password == "" || subtle.ConstantTimeCompare([]byte(req.Password), []byte(s.env.AdminPassword)) != 1 {
		respondWithError(w, http.StatusUnauthorized, "invalid password")
		return
	}
	s.issue(w, r, adminSubject, "admin", roleAdmin)
	applog.WithOperation(s.log, "admin_login").Info("admin session issued")
}

func (s *Server) issue(w http.ResponseWriter, r *http.Request, id, username, role string) {
	tok, exp, err := s.tokens.sign(id, username, role)
	if err != nil {
		s.log.Error("sign token failed", applog.Err(err))
		respondWithError(w, http.StatusInternalServerError, "internal error")
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    tok,
		Path:     "/",
		Expires:  exp,
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})
	respondWithJSON(w, http.StatusOK, AuthResponse{
		Success:       true,
		Authenticated: true,
		User:          &UserInfo{ID: id, Username: username, Role: role, IsAdmin: role == roleAdmin},
		Token:         tok,
		ExpiresAt:     &exp,
	})
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	l := applog.WithOperation(s.log, "register")
	var req credentials
	if !decodeBody(w, r, &req) {
		return
	}
	req.Username = strings.TrimSpace(req.Username)
	req.Email = strings.TrimSpace(req.Email)
	if err := session.ValidateRegistration(req.Username, req.Password, req.Email); err != nil {
		respondWithError(w, http.StatusBadRequest, validationMessage(err))
		return
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		l.Error("hash password failed", applog.Err(err))
		respondWithError(w, http.StatusInternalServerError, "internal error")
		return
	}
	u := storage.User{
		ID:           uuid.NewString(),
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: string(hash),
		Role:         roleUser,
	}
	switch err := s.store.CreateUser(r.Context(), u); {
	case errors.Is(err, storage.ErrConflict):
		respondWithError(w, http.StatusConflict, "username is already taken")
		return
	case err != nil:
		l.Error("create user failed", applog.Err(err))
		respondWithError(w, http.StatusInternalServerError, "internal error")
		return
	}
	l.Info("user registered", slog.String("user", u.ID))
	respondWithJSON(w, http.StatusCreated, map[string]any{"success": true})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if c, ok := ClaimsFrom(r.Context()); ok {
		s.tokens.revoke(c)
	}
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})
	respondWithJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	c, ok := ClaimsFrom(r.Context())
	if !ok {
		respondWithJSON(w, http.StatusOK, AuthResponse{Authenticated: false})
		return
	}
	exp := c.ExpiresAt.Time
	respondWithJSON(w, http.StatusOK, AuthResponse{
		Authenticated: true,
		User:          &UserInfo{ID: c.Subject, Username: c.Username, Role: c.Role, IsAdmin: c.Admin()},
		ExpiresAt:     &exp,
	})
}

// validationMessage strips the sentinel prefix from a session validation error.
func validationMessage(err error) string {
	msg := err.Error()
	if i := strings.Index(msg, ": "); i >= 0 && errors.Is(err, session.ErrValidation) {
		return msg[i+2:]
	}
	return msg
}
