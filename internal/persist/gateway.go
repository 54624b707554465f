/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package persist schedules item writes to the backing store: a trailing
// debounce per item, then a short micro-batch flushed in parallel.
package persist

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mjsxi/matts-infinite-canvas-sub000/internal/clock"
	"github.com/mjsxi/matts-infinite-canvas-sub000/internal/item"
	applog "github.com/mjsxi/matts-infinite-canvas-sub000/internal/log"
)

// ErrNotFound may be returned by Store.Delete for a missing row; the gateway
// treats it as success.
var ErrNotFound = errors.New("row not found")

// Store is the row-oriented backing store.
type Store interface {
	UpsertItem(ctx context.Context, row item.Row) error
	DeleteItem(ctx context.Context, id int64) error
}

// Options configures a Gateway. Zero durations select the defaults.
type Options struct {
	Store Store
	Clock clock.Clock
	// Debounce is the quiet period after the last Save of an item.
	Debounce time.Duration
	// BatchWindow collects debounced rows before a parallel flush. Negative
	// disables batching.
	BatchWindow time.Duration
	// Parallel bounds concurrent writes per flush.
	Parallel int
	// Timeout bounds each store call.
	Timeout time.Duration
	// Exec runs deletes off the caller's goroutine; default `go f()`.
	Exec func(f func())
	// OnSaved is called after a row was written.
	OnSaved func(id int64, at time.Time)
	// OnError is called for every failed write; op is "save" or "delete".
	OnError func(op string, id int64, err error)
	Logger  *slog.Logger
}

// Gateway is safe for concurrent use.
type Gateway struct {
	opts Options
	log  *slog.Logger

	mu         sync.Mutex
	pending    map[int64]clock.Timer // debounce timers
	rows       map[int64]item.Row    // latest snapshot per pending id
	batch      map[int64]item.Row
	batchTimer clock.Timer
	inflight   map[int64]bool
	// tombstones are ids deleted while a write was in flight. The row
	// delete is sent once that write has finished.
	tombstones map[int64]bool
	lastSave   map[int64]time.Time
	closed     bool
	active     int           // flushes and deletes running
	idle       chan struct{} // closed when active drops to zero
}

// New returns a gateway writing to opts.Store.
func New(opts Options) *Gateway {
	if opts.Clock == nil {
		opts.Clock = clock.Real{}
	}
	if opts.Debounce <= 0 {
		opts.Debounce = 300 * time.Millisecond
	}
	if opts.BatchWindow == 0 {
		opts.BatchWindow = 300 * time.Millisecond
	}
	if opts.Parallel <= 0 {
		opts.Parallel = 8
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	if opts.Exec == nil {
		opts.Exec = func(f func()) { go f() }
	}
	l := opts.Logger
	if l == nil {
		l = applog.WithComponent("persist")
	}
	return &Gateway{
		opts: opts, log: l,
		pending:  map[int64]clock.Timer{},
		rows:     map[int64]item.Row{},
		batch:    map[int64]item.Row{},
		inflight:   map[int64]bool{},
		tombstones: map[int64]bool{},
		lastSave:   map[int64]time.Time{},
		idle:       closedChan(),
	}
}

func closedChan() chan struct{} {
	c := make(chan struct{})
	close(c)
	return c
}

func (g *Gateway) beginLocked() {
	if g.active == 0 {
		g.idle = make(chan struct{})
	}
	g.active++
}

func (g *Gateway) end() {
	g.mu.Lock()
	g.endLocked()
	g.mu.Unlock()
}

func (g *Gateway) endLocked() {
	g.active--
	if g.active == 0 {
		close(g.idle)
	}
}

// Save snapshots it and schedules a write after the debounce window. A
// second Save of the same item inside the window restarts the timer.
func (g *Gateway) Save(it *item.Item) {
	row := item.ToRow(it)
	id := row.ID
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return
	}
	if t, ok := g.pending[id]; ok {
		t.Stop()
	}
	g.rows[id] = row
	g.pending[id] = g.opts.Clock.AfterFunc(g.opts.Debounce, func() { g.debounced(id) })
}

// Queue bypasses the debounce and adds the items to the current micro-batch.
// It suits sets of items changed together, such as a z-order renormalization.
func (g *Gateway) Queue(items ...*item.Item) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return
	}
	for _, it := range items {
		row := item.ToRow(it)
		if t, ok := g.pending[row.ID]; ok {
			t.Stop()
			delete(g.pending, row.ID)
			delete(g.rows, row.ID)
		}
		g.batch[row.ID] = row
	}
	g.armBatchLocked()
}

func (g *Gateway) debounced(id int64) {
	g.mu.Lock()
	row, ok := g.rows[id]
	if !ok {
		g.mu.Unlock()
		return
	}
	delete(g.rows, id)
	delete(g.pending, id)
	g.batch[id] = row
	if g.opts.BatchWindow < 0 {
		g.mu.Unlock()
		g.flush()
		return
	}
	g.armBatchLocked()
	g.mu.Unlock()
}

func (g *Gateway) armBatchLocked() {
	if g.batchTimer != nil || len(g.batch) == 0 {
		return
	}
	window := g.opts.BatchWindow
	if window < 0 {
		window = 0
	}
	g.batchTimer = g.opts.Clock.AfterFunc(window, g.flush)
}

// flush writes every batched row whose id has no write in flight, in
// parallel. Rows held back are retried once the in-flight write finishes.
func (g *Gateway) flush() {
	g.mu.Lock()
	g.batchTimer = nil
	var rows []item.Row
	for id, row := range g.batch {
		if g.inflight[id] {
			continue
		}
		rows = append(rows, row)
		g.inflight[id] = true
		delete(g.batch, id)
	}
	if len(rows) == 0 {
		g.mu.Unlock()
		return
	}
	g.beginLocked()
	g.mu.Unlock()
	defer g.end()
	sort.Slice(rows, func(i, j int) bool { return rows[i].ID < rows[j].ID })

	var eg errgroup.Group
	eg.SetLimit(g.opts.Parallel)
	for _, row := range rows {
		row := row
		eg.Go(func() error {
			err := g.write(row)
			g.finished(row.ID, err)
			return err
		})
	}
	if err := eg.Wait(); err != nil {
		applog.WithOperation(g.log, "flush").Debug("batch finished with errors", slog.Int("rows", len(rows)), applog.Err(err))
	}
}

func (g *Gateway) write(row item.Row) error {
	ctx, cancel := context.WithTimeout(context.Background(), g.opts.Timeout)
	defer cancel()
	start := time.Now()
	if err := g.opts.Store.UpsertItem(ctx, row); err != nil {
		err = fmt.Errorf("save item %d: %w", row.ID, err)
		applog.WithItem(applog.WithOperation(g.log, "save"), row.ID).Error("save failed", applog.Err(err))
		if g.opts.OnError != nil {
			g.opts.OnError("save", row.ID, err)
		}
		return err
	}
	applog.WithItem(g.log, row.ID).Debug("saved", slog.Duration("took", time.Since(start)))
	return nil
}

// finished settles the in-flight write of id. A write that lost the race
// with a delete sends the row delete now instead of recording a save.
func (g *Gateway) finished(id int64, err error) {
	g.mu.Lock()
	delete(g.inflight, id)
	if g.tombstones[id] {
		delete(g.tombstones, id)
		delete(g.batch, id)
		g.beginLocked()
		g.mu.Unlock()
		g.sendDelete(id)
		return
	}
	now := g.opts.Clock.Now()
	if err == nil {
		g.lastSave[id] = now
	}
	if _, again := g.batch[id]; again {
		g.armBatchLocked()
	}
	g.mu.Unlock()
	if err == nil && g.opts.OnSaved != nil {
		g.opts.OnSaved(id, now)
	}
}

// Delete drops any pending write for id and deletes its row. When a write
// of id is in flight the delete follows it, so the row cannot come back. A
// missing row is not an error.
func (g *Gateway) Delete(id int64) {
	g.mu.Lock()
	g.dropLocked(id)
	if g.inflight[id] {
		g.tombstones[id] = true
		g.mu.Unlock()
		return
	}
	g.beginLocked()
	g.mu.Unlock()
	g.sendDelete(id)
}

// sendDelete runs the row delete through Exec. The caller has counted it
// as active.
func (g *Gateway) sendDelete(id int64) {
	g.opts.Exec(func() {
		defer g.end()
		ctx, cancel := context.WithTimeout(context.Background(), g.opts.Timeout)
		defer cancel()
		err := g.opts.Store.DeleteItem(ctx, id)
		if err == nil || errors.Is(err, ErrNotFound) {
			applog.WithItem(g.log, id).Debug("deleted")
			return
		}
		err = fmt.Errorf("delete item %d: %w", id, err)
		applog.WithItem(applog.WithOperation(g.log, "delete"), id).Error("delete failed", applog.Err(err))
		if g.opts.OnError != nil {
			g.opts.OnError("delete", id, err)
		}
	})
}

// Cancel drops any pending write for id. It is used when the row was
// deleted elsewhere, so the store is only touched when a write of id is in
// flight: that write would recreate the row and is followed by a delete.
func (g *Gateway) Cancel(id int64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.dropLocked(id)
	if g.inflight[id] {
		g.tombstones[id] = true
	}
}

func (g *Gateway) dropLocked(id int64) {
	if t, ok := g.pending[id]; ok {
		t.Stop()
		delete(g.pending, id)
	}
	delete(g.rows, id)
	delete(g.batch, id)
	delete(g.lastSave, id)
}

// SavedWithin reports whether a write of id completed less than window ago.
func (g *Gateway) SavedWithin(id int64, window time.Duration) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	at, ok := g.lastSave[id]
	return ok && g.opts.Clock.Now().Sub(at) < window
}

// LastSave returns when id was last written.
func (g *Gateway) LastSave(id int64) (time.Time, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	at, ok := g.lastSave[id]
	return at, ok
}

// Busy reports whether id has a write pending or in flight.
func (g *Gateway) Busy(id int64) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, p := g.pending[id]
	_, b := g.batch[id]
	return p || b || g.inflight[id] || g.tombstones[id]
}

// Flush forces every pending write out now and waits until all writes,
// including deletes, have finished or ctx is done.
func (g *Gateway) Flush(ctx context.Context) error {
	g.mu.Lock()
	for id, t := range g.pending {
		t.Stop()
		if row, ok := g.rows[id]; ok {
			g.batch[id] = row
		}
	}
	g.pending = map[int64]clock.Timer{}
	g.rows = map[int64]item.Row{}
	if g.batchTimer != nil {
		g.batchTimer.Stop()
		g.batchTimer = nil
	}
	g.mu.Unlock()

	for {
		g.flush()
		g.mu.Lock()
		left := len(g.batch)
		g.mu.Unlock()
		if left == 0 {
			break
		}
		if err := g.wait(ctx); err != nil {
			return err
		}
	}
	return g.wait(ctx)
}

func (g *Gateway) wait(ctx context.Context) error {
	g.mu.Lock()
	idle := g.idle
	g.mu.Unlock()
	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close flushes and stops accepting saves.
func (g *Gateway) Close(ctx context.Context) error {
	err := g.Flush(ctx)
	g.mu.Lock()
	g.closed = true
	g.mu.Unlock()
	return err
}
