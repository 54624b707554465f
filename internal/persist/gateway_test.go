/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package persist

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/mjsxi/matts-infinite-canvas-sub000/internal/clock"
	"github.com/mjsxi/matts-infinite-canvas-sub000/internal/item"
	applog "github.com/mjsxi/matts-infinite-canvas-sub000/internal/log"
	"github.com/mjsxi/matts-infinite-canvas-sub000/internal/vector"
)

type memStore struct {
	mu      sync.Mutex
	upserts []item.Row
	deletes []int64
	failFor map[int64]error
	delErr  error
}

func (m *memStore) UpsertItem(_ context.Context, row item.Row) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failFor[row.ID]; err != nil {
		return err
	}
	m.upserts = append(m.upserts, row)
	return nil
}

func (m *memStore) DeleteItem(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deletes = append(m.deletes, id)
	return m.delErr
}

func (m *memStore) count(id int64) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, r := range m.upserts {
		if r.ID == id {
			n++
		}
	}
	return n
}

func newGateway(st Store) (*Gateway, *clock.Fake) {
	fc := clock.NewFake(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	g := New(Options{
		Store:       st,
		Clock:       fc,
		Debounce:    300 * time.Millisecond,
		BatchWindow: 300 * time.Millisecond,
		Exec:        func(f func()) { f() },
		Logger:      applog.Discard(),
	})
	return g, fc
}

func textAt(id int64, x, y float64) *item.Item {
	return item.NewText(id, vector.Pt{X: x, Y: y}, "", item.DefaultTextStyle())
}

func TestSaveDebouncesPerItem(t *testing.T) {
	st := &memStore{}
	g, fc := newGateway(st)
	it := textAt(7, 0, 0)
	for i := 0; i < 5; i++ {
		it.Position.X = float64(i * 10)
		g.Save(it)
		fc.Advance(100 * time.Millisecond)
	}
	if n := st.count(7); n != 0 {
		t.Fatalf("saved during burst: %d", n)
	}
	fc.Advance(300 * time.Millisecond) // debounce expires
	if n := st.count(7); n != 0 {
		t.Fatalf("saved before batch window closed: %d", n)
	}
	fc.Advance(300 * time.Millisecond)
	if n := st.count(7); n != 1 {
		t.Fatalf("want exactly one write, got %d", n)
	}
	if got := st.upserts[0].X; got != 40 {
		t.Fatalf("want last snapshot x=40, got %v", got)
	}
}

func TestSaveSnapshotsAtCallTime(t *testing.T) {
	st := &memStore{}
	g, fc := newGateway(st)
	it := textAt(1, 5, 5)
	g.Save(it)
	it.Position.X = 999 // mutated after Save without a new Save
	fc.Advance(time.Second)
	if got := st.upserts[0].X; got != 5 {
		t.Fatalf("want snapshot x=5, got %v", got)
	}
}

func TestDistinctItemsShareBatch(t *testing.T) {
	st := &memStore{}
	g, fc := newGateway(st)
	g.Save(textAt(1, 0, 0))
	fc.Advance(50 * time.Millisecond)
	g.Save(textAt(2, 0, 0))
	fc.Advance(400 * time.Millisecond) // both debounced; batch closes at 600ms
	if len(st.upserts) != 0 {
		t.Fatalf("flushed early: %d", len(st.upserts))
	}
	fc.Advance(200 * time.Millisecond)
	if len(st.upserts) != 2 {
		t.Fatalf("want 2 rows in batch, got %d", len(st.upserts))
	}
}

func TestQueueSkipsDebounce(t *testing.T) {
	st := &memStore{}
	g, fc := newGateway(st)
	g.Save(textAt(3, 0, 0))
	g.Queue(textAt(3, 1, 1), textAt(4, 2, 2))
	fc.Advance(300 * time.Millisecond)
	if len(st.upserts) != 2 {
		t.Fatalf("want 2 writes, got %d", len(st.upserts))
	}
	fc.Advance(time.Second)
	if n := st.count(3); n != 1 {
		t.Fatalf("pending debounce not replaced: %d writes", n)
	}
}

func TestSavedWithinAndBusy(t *testing.T) {
	st := &memStore{}
	var saved []int64
	g, fc := newGateway(st)
	g.opts.OnSaved = func(id int64, _ time.Time) { saved = append(saved, id) }
	g.Save(textAt(9, 0, 0))
	if !g.Busy(9) {
		t.Fatalf("pending save should be busy")
	}
	fc.Advance(600 * time.Millisecond)
	if g.Busy(9) {
		t.Fatalf("busy after flush")
	}
	if !g.SavedWithin(9, time.Second) {
		t.Fatalf("expected recent save stamp")
	}
	fc.Advance(time.Second)
	if g.SavedWithin(9, time.Second) {
		t.Fatalf("stamp should have aged out")
	}
	if len(saved) != 1 || saved[0] != 9 {
		t.Fatalf("OnSaved = %v", saved)
	}
}

func TestSaveErrorReported(t *testing.T) {
	boom := errors.New("boom")
	st := &memStore{failFor: map[int64]error{5: boom}}
	g, fc := newGateway(st)
	var ops []string
	g.opts.OnError = func(op string, id int64, err error) {
		if id != 5 || !errors.Is(err, boom) {
			t.Errorf("unexpected error report %d %v", id, err)
		}
		ops = append(ops, op)
	}
	g.Save(textAt(5, 0, 0))
	g.Save(textAt(6, 0, 0))
	fc.Advance(time.Second)
	if len(ops) != 1 || ops[0] != "save" {
		t.Fatalf("want one save error, got %v", ops)
	}
	if st.count(6) != 1 {
		t.Fatalf("healthy row in same batch not written")
	}
	if g.SavedWithin(5, time.Hour) {
		t.Fatalf("failed write must not stamp")
	}
	fc.Advance(10 * time.Second)
	if len(ops) != 1 {
		t.Fatalf("failed write retried: %v", ops)
	}
}

func TestDeleteCancelsPendingAndIsIdempotent(t *testing.T) {
	st := &memStore{delErr: ErrNotFound}
	g, fc := newGateway(st)
	reported := false
	g.opts.OnError = func(string, int64, error) { reported = true }
	g.Save(textAt(2, 0, 0))
	g.Delete(2)
	fc.Advance(time.Second)
	if st.count(2) != 0 {
		t.Fatalf("deleted item was still saved")
	}
	if len(st.deletes) != 1 || st.deletes[0] != 2 {
		t.Fatalf("deletes = %v", st.deletes)
	}
	if reported {
		t.Fatalf("missing row should not be reported")
	}
}

func TestDeleteErrorReported(t *testing.T) {
	st := &memStore{delErr: errors.New("offline")}
	g, _ := newGateway(st)
	var got string
	g.opts.OnError = func(op string, _ int64, _ error) { got = op }
	g.Delete(3)
	if got != "delete" {
		t.Fatalf("want delete error, got %q", got)
	}
}

func TestFlushWritesPending(t *testing.T) {
	st := &memStore{}
	g, _ := newGateway(st)
	g.Save(textAt(1, 0, 0))
	g.Queue(textAt(2, 0, 0))
	if err := g.Close(context.Background()); err != nil {
		t.Fatalf("close: %v", err)
	}
	if len(st.upserts) != 2 {
		t.Fatalf("want 2 flushed rows, got %d", len(st.upserts))
	}
	g.Save(textAt(3, 0, 0))
	if g.Busy(3) {
		t.Fatalf("closed gateway accepted a save")
	}
}

func TestCancelDropsPendingWithoutDelete(t *testing.T) {
	st := &memStore{}
	g, fc := newGateway(st)
	g.Save(textAt(4, 0, 0))
	g.Cancel(4)
	fc.Advance(time.Second)
	if n := st.count(4); n != 0 {
		t.Fatalf("writes after cancel: got %d want 0", n)
	}
	if len(st.deletes) != 0 {
		t.Fatalf("cancel issued deletes: %v", st.deletes)
	}
	if g.Busy(4) {
		t.Fatalf("item still busy after cancel")
	}
}

// gatedStore holds every upsert until release is closed and keeps the
// resulting rows, so the order of writes and deletes is observable.
type gatedStore struct {
	started chan int64
	release chan struct{}

	mu   sync.Mutex
	ops  []string
	rows map[int64]bool
}

func newGatedStore() *gatedStore {
	return &gatedStore{started: make(chan int64, 4), release: make(chan struct{}), rows: map[int64]bool{}}
}

func (s *gatedStore) UpsertItem(_ context.Context, row item.Row) error {
	s.started <- row.ID
	<-s.release
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ops = append(s.ops, "upsert")
	s.rows[row.ID] = true
	return nil
}

func (s *gatedStore) DeleteItem(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ops = append(s.ops, "delete")
	delete(s.rows, id)
	return nil
}

func (s *gatedStore) snapshot() ([]string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.ops...), s.rows[7]
}

// inFlight saves item 7 and advances the clock until its upsert has reached
// the store. The returned channel closes when the advance returns.
func inFlight(t *testing.T, g *Gateway, fc *clock.Fake, st *gatedStore) <-chan struct{} {
	t.Helper()
	g.Save(textAt(7, 0, 0))
	advanced := make(chan struct{})
	go func() {
		fc.Advance(time.Second)
		close(advanced)
	}()
	select {
	case <-st.started:
	case <-time.After(2 * time.Second):
		t.Fatalf("upsert never started")
	}
	return advanced
}

func TestDeleteWaitsForInFlightSave(t *testing.T) {
	st := newGatedStore()
	g, fc := newGateway(st)
	advanced := inFlight(t, g, fc, st)

	g.Delete(7)
	if ops, _ := st.snapshot(); len(ops) != 0 {
		t.Fatalf("store touched while the save was in flight: %v", ops)
	}
	if !g.Busy(7) {
		t.Fatalf("item with a deferred delete should be busy")
	}
	close(st.release)
	<-advanced

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := g.Flush(ctx); err != nil {
		t.Fatalf("flush: %v", err)
	}
	ops, present := st.snapshot()
	if len(ops) != 2 || ops[0] != "upsert" || ops[1] != "delete" {
		t.Fatalf("ops: got %v want [upsert delete]", ops)
	}
	if present {
		t.Fatalf("row 7 present after local delete")
	}
	if g.Busy(7) || g.SavedWithin(7, time.Hour) {
		t.Fatalf("deleted item still tracked: busy=%v saved=%v", g.Busy(7), g.SavedWithin(7, time.Hour))
	}
}

func TestCancelDeletesRowRecreatedByInFlightSave(t *testing.T) {
	st := newGatedStore()
	g, fc := newGateway(st)
	advanced := inFlight(t, g, fc, st)

	g.Cancel(7)
	close(st.release)
	<-advanced
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := g.Flush(ctx); err != nil {
		t.Fatalf("flush: %v", err)
	}
	ops, present := st.snapshot()
	if len(ops) != 2 || ops[1] != "delete" || present {
		t.Fatalf("row left behind after remote delete: ops=%v present=%v", ops, present)
	}
}

func TestFlushWaitsForInFlightWrite(t *testing.T) {
	st := newGatedStore()
	g, fc := newGateway(st)
	advanced := inFlight(t, g, fc, st)

	done := make(chan error, 1)
	go func() { done <- g.Flush(context.Background()) }()
	select {
	case err := <-done:
		t.Fatalf("flush returned during the write: %v", err)
	case <-time.After(50 * time.Millisecond):
	}
	close(st.release)
	<-advanced
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("flush: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("flush never returned")
	}
	if ops, present := st.snapshot(); len(ops) != 1 || !present {
		t.Fatalf("ops: got %v present=%v", ops, present)
	}
}
