/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package viewport

import (
	"sort"

	"github.com/mjsxi/matts-infinite-canvas-sub000/internal/vector"
)

// Box is the canvas footprint of one item for visibility tests.
type Box struct {
	ID       int64
	Bounds   vector.Rect
	Rotation float64
}

// Cull returns the ids of boxes whose rotated bounds intersect visible grown
// by margin canvas units. The result is sorted.
func Cull(boxes []Box, visible vector.Rect, margin float64) []int64 {
	area := visible.Inset(-margin, -margin)
	var out []int64
	for _, b := range boxes {
		if vector.RotatedBounds(b.Bounds, b.Rotation).Intersects(area) {
			out = append(out, b.ID)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// VisibleSet remembers which items currently have a live view so callers can
// materialize entering items and pool leaving ones.
type VisibleSet struct {
	live map[int64]bool
}

func NewVisibleSet() *VisibleSet { return &VisibleSet{live: map[int64]bool{}} }

// Update replaces the set with ids and reports the difference.
func (s *VisibleSet) Update(ids []int64) (entered, left []int64) {
	next := make(map[int64]bool, len(ids))
	for _, id := range ids {
		next[id] = true
		if !s.live[id] {
			entered = append(entered, id)
		}
	}
	for id := range s.live {
		if !next[id] {
			left = append(left, id)
		}
	}
	sort.Slice(left, func(i, j int) bool { return left[i] < left[j] })
	s.live = next
	return entered, left
}

// Has reports whether id is live.
func (s *VisibleSet) Has(id int64) bool { return s.live[id] }

// Add marks id live without a full recomputation (new local items).
func (s *VisibleSet) Add(id int64) { s.live[id] = true }

// Remove forgets id (deleted items).
func (s *VisibleSet) Remove(id int64) { delete(s.live, id) }

func (s *VisibleSet) Len() int { return len(s.live) }
