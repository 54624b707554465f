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
	"errors"
	"testing"
)

func TestUsers(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()
	u := User{ID: "6f1c", Username: "Alice", Email: "a@example.com", PasswordHash: "hash", Role: "user"}
	if err := s.CreateUser(ctx, u); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := s.CreateUser(ctx, User{ID: "other", Username: "alice", PasswordHash: "x", Role: "user"}); !errors.Is(err, ErrConflict) {
		t.Fatalf("duplicate name: got %v want ErrConflict", err)
	}
	got, err := s.UserByName(ctx, "ALICE")
	if err != nil {
		t.Fatalf("by name: %v", err)
	}
	if got.ID != "6f1c" || got.Email != "a@example.com" || got.CreatedAt.IsZero() {
		t.Fatalf("user: %+v", got)
	}
	if _, err := s.UserByID(ctx, "6f1c"); err != nil {
		t.Fatalf("by id: %v", err)
	}
	if _, err := s.UserByName(ctx, "bob"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing user: got %v", err)
	}
}
