/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package app

import (
	"context"
	"sync"

	"github.com/mjsxi/matts-infinite-canvas-sub000/internal/crash"
)

// Poster schedules f to run on the goroutine that owns the app state.
type Poster interface {
	Post(f func())
}

// PostFunc adapts a function to Poster.
type PostFunc func(f func())

func (p PostFunc) Post(f func()) { p(f) }

// Inline runs tasks immediately on the caller's goroutine. It suits tests
// and callers that already serialize access.
var Inline Poster = PostFunc(func(f func()) { f() })

// Dispatcher is the event loop: tasks posted from any goroutine run one at a
// time, in order, on the goroutine calling Run.
type Dispatcher struct {
	mu     sync.Mutex
	queue  []func()
	wake   chan struct{}
	closed bool
}

func NewDispatcher() *Dispatcher { return &Dispatcher{wake: make(chan struct{}, 1)} }

// Post enqueues f. It never blocks; tasks posted after Run returned are dropped.
func (d *Dispatcher) Post(f func()) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.queue = append(d.queue, f)
	d.mu.Unlock()
	select {
	case d.wake <- struct{}{}:
	default:
	}
}

// Run executes tasks until ctx is done. A panicking task is reported and the
// loop continues.
func (d *Dispatcher) Run(ctx context.Context) error {
	defer func() {
		d.mu.Lock()
		d.closed = true
		d.queue = nil
		d.mu.Unlock()
	}()
	for {
		d.mu.Lock()
		batch := d.queue
		d.queue = nil
		d.mu.Unlock()
		for _, f := range batch {
			crash.Guard("event loop", f)
			if ctx.Err() != nil {
				return ctx.Err()
			}
		}
		if len(batch) > 0 {
			continue
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-d.wake:
		}
	}
}

// Call posts f and waits for it to finish or ctx to end.
func (d *Dispatcher) Call(ctx context.Context, f func()) error {
	done := make(chan struct{})
	d.Post(func() {
		defer close(done)
		f()
	})
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
