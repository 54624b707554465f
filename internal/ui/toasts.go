/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package ui

import (
	"time"

	"github.com/mjsxi/matts-infinite-canvas-sub000/internal/app"
	"github.com/mjsxi/matts-infinite-canvas-sub000/internal/clock"
)

// DefaultToastTTL is how long a status message stays on screen.
const DefaultToastTTL = 4 * time.Second

type toast struct {
	status app.Status
	until  time.Time
}

// Toasts keeps the most recent status messages until they expire.
type Toasts struct {
	clock clock.Clock
	ttl   time.Duration
	max   int
	items []toast
}

// NewToasts keeps at most max messages for ttl each.
func NewToasts(c clock.Clock, ttl time.Duration, max int) *Toasts {
	if c == nil {
		c = clock.Real{}
	}
	if ttl <= 0 {
		ttl = DefaultToastTTL
	}
	if max <= 0 {
		max = 3
	}
	return &Toasts{clock: c, ttl: ttl, max: max}
}

// Push adds s, dropping the oldest message when full. A repeat of the
// newest message only extends its lifetime.
func (t *Toasts) Push(s app.Status) {
	until := t.clock.Now().Add(t.ttl)
	if n := len(t.items); n > 0 && t.items[n-1].status == s {
		t.items[n-1].until = until
		return
	}
	t.items = append(t.items, toast{status: s, until: until})
	if len(t.items) > t.max {
		t.items = t.items[len(t.items)-t.max:]
	}
}

// Active prunes expired messages and returns the rest, oldest first.
func (t *Toasts) Active() []app.Status {
	now := t.clock.Now()
	kept := t.items[:0]
	for _, x := range t.items {
		if now.Before(x.until) {
			kept = append(kept, x)
		}
	}
	t.items = kept
	out := make([]app.Status, len(kept))
	for i, x := range kept {
		out[i] = x.status
	}
	return out
}

// TTL returns the lifetime of a message.
func (t *Toasts) TTL() time.Duration { return t.ttl }
