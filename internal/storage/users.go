/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// User is an account row.
type User struct {
	ID           string
	Username     string
	Email        string
	PasswordHash string
	Role         string
	CreatedAt    time.Time
}

// CreateUser inserts u; ErrConflict means the username is taken.
func (s *SQLite) CreateUser(ctx context.Context, u User) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create user: %w", err)
	}
	defer func() { _ = tx.Rollback() }()
	var one int
	err = tx.QueryRowContext(ctx, `SELECT 1 FROM users WHERE username=? COLLATE NOCASE`, u.Username).Scan(&one)
	switch {
	case err == nil:
		return fmt.Errorf("user %q: %w", u.Username, ErrConflict)
	case !errors.Is(err, sql.ErrNoRows):
		return fmt.Errorf("probe user: %w", err)
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now()
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO users (id, username, email, password_hash, role, created_at) VALUES (?,?,?,?,?,?)`,
		u.ID, u.Username, u.Email, u.PasswordHash, u.Role, u.CreatedAt.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return tx.Commit()
}

// UserByName looks a user up case-insensitively.
func (s *SQLite) UserByName(ctx context.Context, username string) (User, error) {
	return s.user(ctx, `username=? COLLATE NOCASE`, strings.TrimSpace(username))
}

// UserByID looks a user up by id.
func (s *SQLite) UserByID(ctx context.Context, id string) (User, error) {
	return s.user(ctx, `id=?`, id)
}

func (s *SQLite) user(ctx context.Context, where string, arg any) (User, error) {
	var (
		u  User
		ts string
	)
	err := s.db.QueryRowContext(ctx, `SELECT id, username, email, password_hash, role, created_at FROM users WHERE `+where, arg).
		Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.Role, &ts)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrNotFound
	}
	if err != nil {
		return User{}, fmt.Errorf("get user: %w", err)
	}
	u.CreatedAt, _ = time.Parse(time.RFC3339, ts)
	return u, nil
}
