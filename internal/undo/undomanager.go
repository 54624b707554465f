/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 * specific language governing permissions and limitations under the License.
 */

// Package undo keeps per-item edit history for local move, resize and
// rotate gestures.
package undo

import (
	"sync"
	"time"

	"github.com/mjsxi/matts-infinite-canvas-sub000/internal/item"
	"github.com/mjsxi/matts-infinite-canvas-sub000/internal/vector"
)

// Geometry is the part of an item a manipulation gesture changes.
type Geometry struct {
	Position vector.Pt
	Size     vector.Size
	Rotation float64
}

// Of captures the geometry of it.
func Of(it *item.Item) Geometry {
	return Geometry{Position: it.Position, Size: it.Size, Rotation: it.Rotation}
}

// Apply writes g onto it.
func (g Geometry) Apply(it *item.Item) {
	it.Position, it.Size, it.Rotation = g.Position, g.Size, g.Rotation
}

// Snapshot is the geometry an item had before an edit.
type Snapshot struct {
	ItemID   int64
	Geometry Geometry
	TS       time.Time
}

// Config controls depth caps and coalescing behavior.
type Config struct {
	// MaxEntries caps the total number of undo entries; the oldest are pruned.
	MaxEntries int
	// MaxPerItem limits the undo depth of one item (0 means unlimited).
	MaxPerItem int
	// MinInterval coalesces pushes for the same item captured within the
	// interval, keeping the earlier state.
	MinInterval time.Duration
}

// Manager provides in-memory undo/redo stacks per item.
// It is safe for concurrent use.
type Manager struct {
	cfg  Config
	mu   sync.Mutex
	undo map[int64][]Snapshot
	redo map[int64][]Snapshot
	// total undo entries across items
	total int
}

func NewManager(cfg Config) *Manager {
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = 500
	}
	if cfg.MaxPerItem <= 0 {
		cfg.MaxPerItem = 50
	}
	if cfg.MinInterval <= 0 {
		cfg.MinInterval = 250 * time.Millisecond
	}
	return &Manager{cfg: cfg, undo: make(map[int64][]Snapshot), redo: make(map[int64][]Snapshot)}
}

// Push records the state an item had before an edit and clears its redo
// stack. A push within MinInterval of the last one for the same item is
// dropped so a burst of edits undoes in one step.
func (m *Manager) Push(s Snapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.redo[s.ItemID] = nil
	stack := m.undo[s.ItemID]
	if n := len(stack); n > 0 && s.TS.Sub(stack[n-1].TS) < m.cfg.MinInterval {
		stack[n-1].TS = s.TS
		return
	}
	m.undo[s.ItemID] = append(stack, s)
	m.total++
	m.enforceCapsLocked(s.ItemID)
}

// Undo pops the last recorded state of id and keeps current for Redo.
func (m *Manager) Undo(id int64, current Geometry, now time.Time) (Geometry, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stack := m.undo[id]
	if len(stack) == 0 {
		return Geometry{}, false
	}
	s := stack[len(stack)-1]
	m.undo[id] = stack[:len(stack)-1]
	m.total--
	m.redo[id] = append(m.redo[id], Snapshot{ItemID: id, Geometry: current, TS: now})
	return s.Geometry, true
}

// Redo reverses the last Undo of id.
func (m *Manager) Redo(id int64, current Geometry, now time.Time) (Geometry, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := m.redo[id]
	if len(r) == 0 {
		return Geometry{}, false
	}
	s := r[len(r)-1]
	m.redo[id] = r[:len(r)-1]
	m.undo[id] = append(m.undo[id], Snapshot{ItemID: id, Geometry: current, TS: now})
	m.total++
	m.enforceCapsLocked(id)
	return s.Geometry, true
}

// CanUndo reports whether id has undo history.
func (m *Manager) CanUndo(id int64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.undo[id]) > 0
}

// CanRedo reports whether id has redo history.
func (m *Manager) CanRedo(id int64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.redo[id]) > 0
}

// Forget drops all history of id, e.g. after it was deleted.
func (m *Manager) Forget(id int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.total -= len(m.undo[id])
	delete(m.undo, id)
	delete(m.redo, id)
	if m.total < 0 {
		m.total = 0
	}
}

// Stats returns current sizes for diagnostics.
func (m *Manager) Stats() (items int, entries int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.undo), m.total
}

func (m *Manager) enforceCapsLocked(id int64) {
	if stack := m.undo[id]; len(stack) > m.cfg.MaxPerItem {
		toDrop := len(stack) - m.cfg.MaxPerItem
		m.total -= toDrop
		m.undo[id] = append([]Snapshot{}, stack[toDrop:]...)
	}
	// prune oldest across all items
	for m.total > m.cfg.MaxEntries {
		var oldestID int64
		var oldestTS time.Time
		found := false
		for k, stack := range m.undo {
			if len(stack) == 0 {
				continue
			}
			if !found || stack[0].TS.Before(oldestTS) {
				oldestID, oldestTS, found = k, stack[0].TS, true
			}
		}
		if !found {
			break
		}
		stack := m.undo[oldestID]
		m.total--
		m.undo[oldestID] = stack[1:]
		if len(m.undo[oldestID]) == 0 {
			delete(m.undo, oldestID)
		}
	}
}
