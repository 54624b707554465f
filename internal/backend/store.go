/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package backend is the HTTP server behind the whiteboard: the rows API,
// the auth endpoints, blob uploads and the websocket change feed.
package backend

import (
	"context"
	"fmt"
	"strings"

	"github.com/mjsxi/matts-infinite-canvas-sub000/internal/item"
	"github.com/mjsxi/matts-infinite-canvas-sub000/internal/storage"
)

// Store is the row store behind the server. storage.SQLite and Postgres
// implement it; both report missing rows as storage.ErrNotFound and taken
// usernames as storage.ErrConflict.
type Store interface {
	ListItems(ctx context.Context) ([]item.Row, error)
	GetItem(ctx context.Context, id int64) (item.Row, error)
	UpsertItem(ctx context.Context, r item.Row) (created bool, err error)
	DeleteItem(ctx context.Context, id int64) error
	GetCenter(ctx context.Context) (item.CenterPoint, error)
	PutCenter(ctx context.Context, c item.CenterPoint) (item.CenterPoint, error)
	ReserveIDs(ctx context.Context, count int) (first int64, err error)
	CreateUser(ctx context.Context, u storage.User) error
	UserByName(ctx context.Context, username string) (storage.User, error)
	UserByID(ctx context.Context, id string) (storage.User, error)
	Close() error
}

var (
	_ Store = (*storage.SQLite)(nil)
	_ Store = (*Postgres)(nil)
)

// OpenStore opens the store named by dsn: "sqlite:<path>" or a
// postgres:// URL.
func OpenStore(ctx context.Context, dsn string) (Store, error) {
	switch {
	case strings.HasPrefix(dsn, "sqlite:"):
		s, err := storage.OpenSQLite(strings.TrimPrefix(dsn, "sqlite:"))
		if err != nil {
			return nil, err
		}
		return s, nil
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		p, err := OpenPostgres(ctx, dsn)
		if err != nil {
			return nil, err
		}
		return p, nil
	default:
		return nil, fmt.Errorf("unsupported store dsn %q", dsn)
	}
}
