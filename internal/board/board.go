/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package board holds the local item collection and the rules for selecting,
// creating, reordering and deleting items.
package board

import (
	"errors"
	"sort"

	"github.com/mjsxi/matts-infinite-canvas-sub000/internal/item"
)

var (
	ErrNotFound     = errors.New("item not found")
	ErrUnauthorized = errors.New("not authorized to modify item")
	ErrCancelled    = errors.New("cancelled by user")
	ErrNoSelection  = errors.New("no item selected")
	ErrDuplicateID  = errors.New("duplicate item id")
)

// Board is the in-memory set of items of one canvas. It is not safe for
// concurrent use; the owning event loop serializes access.
type Board struct {
	items map[int64]*item.Item
}

func New() *Board { return &Board{items: map[int64]*item.Item{}} }

// Get returns the live item (not a copy).
func (b *Board) Get(id int64) (*item.Item, bool) {
	it, ok := b.items[id]
	return it, ok
}

func (b *Board) Has(id int64) bool {
	_, ok := b.items[id]
	return ok
}

func (b *Board) Len() int { return len(b.items) }

// Put inserts or replaces it.
func (b *Board) Put(it *item.Item) { b.items[it.ID] = it }

// Insert adds it, refusing an id already present.
func (b *Board) Insert(it *item.Item) error {
	if b.Has(it.ID) {
		return ErrDuplicateID
	}
	b.items[it.ID] = it
	return nil
}

// Remove deletes id and reports whether it was present.
func (b *Board) Remove(id int64) bool {
	if !b.Has(id) {
		return false
	}
	delete(b.items, id)
	return true
}

// Items returns the items in paint order (ascending z-index, then id).
func (b *Board) Items() []*item.Item {
	out := make([]*item.Item, 0, len(b.items))
	for _, it := range b.items {
		out = append(out, it)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ZIndex != out[j].ZIndex {
			return out[i].ZIndex < out[j].ZIndex
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// ZRange returns the min and max z-index; ok is false for an empty board.
func (b *Board) ZRange() (minZ, maxZ int, ok bool) {
	for _, it := range b.items {
		if !ok {
			minZ, maxZ, ok = it.ZIndex, it.ZIndex, true
			continue
		}
		if it.ZIndex < minZ {
			minZ = it.ZIndex
		}
		if it.ZIndex > maxZ {
			maxZ = it.ZIndex
		}
	}
	return minZ, maxZ, ok
}

// MaxID returns the highest id on the board (0 when empty).
func (b *Board) MaxID() int64 {
	var m int64
	for id := range b.items {
		if id > m {
			m = id
		}
	}
	return m
}

// Normalize rewrites z-indices to the dense sequence 1..N in paint order and
// returns the ids whose z-index changed.
func (b *Board) Normalize() []int64 {
	var changed []int64
	for i, it := range b.Items() {
		z := i + 1
		if it.ZIndex != z {
			it.ZIndex = z
			changed = append(changed, it.ID)
		}
	}
	return changed
}

// BringToFront places id above every other item and normalizes. It returns
// every id whose z-index differs from before the call.
func (b *Board) BringToFront(id int64) ([]int64, error) {
	return b.restack(id, func(minZ, maxZ int) int { return maxZ + 1 })
}

// SendToBack places id below every other item and normalizes.
func (b *Board) SendToBack(id int64) ([]int64, error) {
	return b.restack(id, func(minZ, maxZ int) int { return minZ - 1 })
}

func (b *Board) restack(id int64, target func(minZ, maxZ int) int) ([]int64, error) {
	it, ok := b.items[id]
	if !ok {
		return nil, ErrNotFound
	}
	before := make(map[int64]int, len(b.items))
	for k, v := range b.items {
		before[k] = v.ZIndex
	}
	minZ, maxZ, _ := b.ZRange()
	it.ZIndex = target(minZ, maxZ)
	b.Normalize()
	return b.diffZ(before), nil
}

func (b *Board) diffZ(before map[int64]int) []int64 {
	var changed []int64
	for _, it := range b.Items() {
		if z, ok := before[it.ID]; !ok || z != it.ZIndex {
			changed = append(changed, it.ID)
		}
	}
	return changed
}

// RemoveAndNormalize deletes id and renormalizes; it returns the ids of the
// remaining items whose z-index changed.
func (b *Board) RemoveAndNormalize(id int64) ([]int64, bool) {
	if !b.Remove(id) {
		return nil, false
	}
	return b.Normalize(), true
}
