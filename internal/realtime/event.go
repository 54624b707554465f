/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package realtime merges the shared change feed into the local board.
//
// Reconcile is a pure decision function; Subscriber owns the feed
// connection with its activation delay and reconnect backoff.
package realtime

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mjsxi/matts-infinite-canvas-sub000/internal/item"
)

// Operation is the kind of row change.
type Operation string

const (
	OpInsert Operation = "insert"
	OpUpdate Operation = "update"
	OpDelete Operation = "delete"
)

// Feed tables.
const (
	TableItems  = "items"
	TableCenter = "center_point"
)

// Event is one change-feed message as it travels on the wire.
type Event struct {
	Operation Operation       `json:"operation"`
	Table     string          `json:"table"`
	Row       json.RawMessage `json:"row"`
}

// ErrMalformed marks an event that cannot be decoded.
var ErrMalformed = errors.New("malformed event")

// Change is a decoded Event. Exactly one of Row and Center is set, except
// for deletes which only carry ID.
type Change struct {
	Op     Operation
	Table  string
	ID     int64
	Row    *item.Row
	Center *item.CenterPoint
}

// Decode validates ev and decodes its row for the table it names.
func Decode(ev Event) (Change, error) {
	c := Change{Op: ev.Operation, Table: ev.Table}
	switch ev.Operation {
	case OpInsert, OpUpdate, OpDelete:
	default:
		return c, fmt.Errorf("%w: operation %q", ErrMalformed, ev.Operation)
	}
	switch ev.Table {
	case TableItems:
		if ev.Operation == OpDelete {
			var key struct {
				ID int64 `json:"id"`
			}
			if err := json.Unmarshal(ev.Row, &key); err != nil || key.ID <= 0 {
				return c, fmt.Errorf("%w: delete without id", ErrMalformed)
			}
			c.ID = key.ID
			return c, nil
		}
		r, err := item.DecodeRow(ev.Row)
		if err != nil {
			return c, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		c.ID, c.Row = r.ID, &r
	case TableCenter:
		cp, err := item.DecodeCenterPoint(ev.Row)
		if err != nil {
			return c, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		c.ID, c.Center = cp.ID, &cp
	default:
		return c, fmt.Errorf("%w: table %q", ErrMalformed, ev.Table)
	}
	return c, nil
}

// NewEvent encodes a row change for publishing.
func NewEvent(op Operation, table string, row any) (Event, error) {
	raw, err := json.Marshal(row)
	if err != nil {
		return Event{}, err
	}
	return Event{Operation: op, Table: table, Row: raw}, nil
}
