/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package board

import (
	"context"
	"fmt"
	"sync"
)

// IDSource reserves a contiguous block of ids from the backing store.
type IDSource interface {
	ReserveIDs(ctx context.Context, count int) (first int64, n int, err error)
}

// IDAllocator hands out item ids. Ids come from a server-reserved block
// while one has ids left, skipping any id already observed inside it. Only
// without a block does it fall back to one past the highest id observed.
// Ids from another client's block raise that floor but never cost this
// client its own block.
type IDAllocator struct {
	mu        sync.Mutex
	src       IDSource
	blockSize int
	lowWater  int
	maxSeen   int64
	seen      map[int64]bool // observed or handed out
	next, end int64          // reserved block [next, end)
}

// NewIDAllocator returns an allocator; src may be nil for purely local ids.
func NewIDAllocator(src IDSource, blockSize int) *IDAllocator {
	if blockSize <= 0 {
		blockSize = 32
	}
	return &IDAllocator{src: src, blockSize: blockSize, lowWater: blockSize / 4, seen: map[int64]bool{}}
}

// Observe records an id present in storage.
func (a *IDAllocator) Observe(id int64) {
	a.mu.Lock()
	a.takeLocked(id)
	a.mu.Unlock()
}

func (a *IDAllocator) takeLocked(id int64) {
	a.seen[id] = true
	if id > a.maxSeen {
		a.maxSeen = id
	}
}

// skipLocked moves next past ids already taken inside the block.
func (a *IDAllocator) skipLocked() {
	for a.next < a.end && a.seen[a.next] {
		a.next++
	}
}

// Next returns a fresh id. It never blocks.
func (a *IDAllocator) Next() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.skipLocked()
	id := a.maxSeen + 1
	if a.next < a.end {
		id = a.next
		a.next++
	}
	a.takeLocked(id)
	return id
}

// Remaining is the number of reserved ids left.
func (a *IDAllocator) Remaining() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.skipLocked()
	n := 0
	for id := a.next; id < a.end; id++ {
		if !a.seen[id] {
			n++
		}
	}
	return n
}

// NeedsRefill reports whether a reservation should be requested.
func (a *IDAllocator) NeedsRefill() bool {
	return a.src != nil && a.Remaining() <= a.lowWater
}

// Refill reserves a new block from the source.
func (a *IDAllocator) Refill(ctx context.Context) error {
	if a.src == nil {
		return nil
	}
	first, n, err := a.src.ReserveIDs(ctx, a.blockSize)
	if err != nil {
		return fmt.Errorf("reserve ids: %w", err)
	}
	if n <= 0 {
		return fmt.Errorf("reserve ids: empty block")
	}
	a.mu.Lock()
	a.next, a.end = first, first+int64(n)
	a.mu.Unlock()
	return nil
}
