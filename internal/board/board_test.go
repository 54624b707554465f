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
	"errors"
	"testing"

	"github.com/mjsxi/matts-infinite-canvas-sub000/internal/item"
	applog "github.com/mjsxi/matts-infinite-canvas-sub000/internal/log"
	"github.com/mjsxi/matts-infinite-canvas-sub000/internal/vector"
)

type recSaver struct {
	saves   []int64
	deletes []int64
}

func (r *recSaver) Save(it *item.Item) { r.saves = append(r.saves, it.ID) }
func (r *recSaver) Delete(id int64)    { r.deletes = append(r.deletes, id) }

var admin = Access{Authenticated: true, Admin: true, UserID: "admin-1"}

func newEditor(t *testing.T, acc *Access, confirm bool) (*Editor, *recSaver) {
	t.Helper()
	s := &recSaver{}
	e := NewEditor(New(), Options{
		Saver:   s,
		Access:  func() Access { return *acc },
		Confirm: ConfirmFunc(func(string) bool { return confirm }),
		Logger:  applog.Discard(),
	})
	return e, s
}

func addText(t *testing.T, e *Editor, x, y float64) *item.Item {
	t.Helper()
	it, err := e.Create(item.NewText(0, vector.Pt{X: x, Y: y}, "", item.DefaultTextStyle()))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	return it
}

func assertDenseZ(t *testing.T, b *Board) {
	t.Helper()
	for i, it := range b.Items() {
		if it.ZIndex != i+1 {
			t.Fatalf("z-indices not dense: item %d has z=%d at position %d", it.ID, it.ZIndex, i)
		}
	}
}

func TestCreateAssignsIDZAndSaves(t *testing.T) {
	acc := admin
	e, s := newEditor(t, &acc, true)
	a := addText(t, e, 500, 500)
	b := addText(t, e, 0, 0)
	if a.ID != 1 || b.ID != 2 {
		t.Fatalf("ids = %d,%d", a.ID, b.ID)
	}
	if a.ZIndex != 1 || b.ZIndex != 2 {
		t.Fatalf("z = %d,%d", a.ZIndex, b.ZIndex)
	}
	if a.OwnerID != "admin-1" {
		t.Fatalf("owner = %q", a.OwnerID)
	}
	if len(s.saves) != 2 || s.saves[0] != 1 {
		t.Fatalf("saves = %v", s.saves)
	}
}

func TestCreateSkipsObservedIDs(t *testing.T) {
	acc := admin
	e, _ := newEditor(t, &acc, true)
	e.IDs().Observe(41)
	it := addText(t, e, 0, 0)
	if it.ID != 42 {
		t.Fatalf("id = %d want 42", it.ID)
	}
}

func TestGuestCannotCreateSelectOrDelete(t *testing.T) {
	acc := admin
	e, s := newEditor(t, &acc, true)
	it := addText(t, e, 0, 0)
	acc = Guest
	if _, err := e.Create(item.NewCode(0, vector.Pt{}, "")); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("guest create: %v", err)
	}
	if err := e.Select(it.ID); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("guest select: %v", err)
	}
	if err := e.Delete(it.ID); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("guest delete: %v", err)
	}
	if !e.Board().Has(it.ID) || len(s.deletes) != 0 {
		t.Fatalf("guest delete changed state")
	}
}

func TestOwnerMayEditOwnItemsOnly(t *testing.T) {
	acc := Access{Authenticated: true, UserID: "u1", OwnersMayEdit: true}
	e, _ := newEditor(t, &acc, true)
	mine := addText(t, e, 0, 0)
	other := item.NewCode(77, vector.Pt{}, "<p/>")
	other.OwnerID = "u2"
	e.Board().Put(other)
	if err := e.Select(mine.ID); err != nil {
		t.Fatalf("select own: %v", err)
	}
	if err := e.Select(other.ID); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("select other: %v", err)
	}
	if sel, _ := e.Selected(); sel != mine.ID {
		t.Fatalf("selection moved to %d", sel)
	}
}

func TestSelectClearsPreviousLocalState(t *testing.T) {
	acc := admin
	var events [][2]int64
	e, _ := newEditor(t, &acc, true)
	e.hooks.OnSelect = func(prev, next int64) { events = append(events, [2]int64{prev, next}) }
	code, _ := e.Create(item.NewCode(0, vector.Pt{}, "<p/>"))
	txt := addText(t, e, 10, 10)

	if err := e.Select(code.ID); err != nil {
		t.Fatal(err)
	}
	if err := e.SetInteractive(true); err != nil {
		t.Fatal(err)
	}
	if err := e.Select(txt.ID); err != nil {
		t.Fatal(err)
	}
	if c := code.Payload.(item.Code); c.Interactive {
		t.Fatalf("interactive flag not reset on deselect")
	}
	want := [][2]int64{{0, code.ID}, {code.ID, 0}, {0, txt.ID}}
	if len(events) != len(want) {
		t.Fatalf("events = %v", events)
	}
	for i := range want {
		if events[i] != want[i] {
			t.Fatalf("events = %v want %v", events, want)
		}
	}
	e.ClearSelection()
	e.ClearSelection()
	if len(events) != 4 {
		t.Fatalf("ClearSelection not idempotent: %v", events)
	}
}

func TestTextEditCommitsContent(t *testing.T) {
	acc := admin
	e, s := newEditor(t, &acc, true)
	txt := addText(t, e, 0, 0)
	s.saves = nil
	if err := e.Select(txt.ID); err != nil {
		t.Fatal(err)
	}
	if err := e.BeginTextEdit(); err != nil || !e.EditingText() {
		t.Fatalf("begin edit: %v", err)
	}
	if err := e.EndTextEdit("hello"); err != nil {
		t.Fatal(err)
	}
	if txt.Payload.(item.Text).Content != "hello" || len(s.saves) != 1 {
		t.Fatalf("content %q saves %v", txt.Payload.(item.Text).Content, s.saves)
	}
	if e.EditingText() {
		t.Fatalf("still editing")
	}
}

func TestBringToFrontSendToBackPersistEveryChangedItem(t *testing.T) {
	acc := admin
	e, s := newEditor(t, &acc, true)
	var ids []int64
	for i := 0; i < 4; i++ {
		ids = append(ids, addText(t, e, 0, 0).ID)
	}
	s.saves = nil
	if err := e.Select(ids[0]); err != nil {
		t.Fatal(err)
	}
	if err := e.BringToFront(); err != nil {
		t.Fatal(err)
	}
	assertDenseZ(t, e.Board())
	if it, _ := e.Board().Get(ids[0]); it.ZIndex != 4 {
		t.Fatalf("front z = %d", it.ZIndex)
	}
	// every item moved: the selected one to 4, the others down by one
	if len(s.saves) != 4 {
		t.Fatalf("saves after front = %v", s.saves)
	}

	s.saves = nil
	if err := e.Select(ids[2]); err != nil {
		t.Fatal(err)
	}
	if err := e.SendToBack(); err != nil {
		t.Fatal(err)
	}
	assertDenseZ(t, e.Board())
	if it, _ := e.Board().Get(ids[2]); it.ZIndex != 1 {
		t.Fatalf("back z = %d", it.ZIndex)
	}
	// paint order was [2,3,4,1] and is now [3,2,4,1]: only ids 3 and 2 move
	if len(s.saves) != 2 {
		t.Fatalf("saves after back = %v", s.saves)
	}
}

func TestDeleteRequiresConfirmationAndRenormalizes(t *testing.T) {
	acc := admin
	e, s := newEditor(t, &acc, false)
	a := addText(t, e, 0, 0)
	b := addText(t, e, 0, 0)
	c := addText(t, e, 0, 0)
	if err := e.Delete(a.ID); !errors.Is(err, ErrCancelled) {
		t.Fatalf("unconfirmed delete: %v", err)
	}
	if !e.Board().Has(a.ID) {
		t.Fatalf("cancelled delete removed item")
	}
	e.confirm = ConfirmFunc(func(string) bool { return true })
	if err := e.Select(a.ID); err != nil {
		t.Fatal(err)
	}
	s.saves = nil
	if err := e.DeleteSelected(); err != nil {
		t.Fatal(err)
	}
	if e.Board().Has(a.ID) || len(s.deletes) != 1 || s.deletes[0] != a.ID {
		t.Fatalf("delete state: has=%v deletes=%v", e.Board().Has(a.ID), s.deletes)
	}
	if _, ok := e.Selected(); ok {
		t.Fatalf("selection survived delete")
	}
	assertDenseZ(t, e.Board())
	if b.ZIndex != 1 || c.ZIndex != 2 || len(s.saves) != 2 {
		t.Fatalf("renormalized z = %d,%d saves=%v", b.ZIndex, c.ZIndex, s.saves)
	}
}

func TestForgetDropsSelection(t *testing.T) {
	acc := admin
	e, s := newEditor(t, &acc, true)
	a := addText(t, e, 0, 0)
	_ = e.Select(a.ID)
	if !e.Forget(a.ID) {
		t.Fatalf("forget reported missing item")
	}
	if _, ok := e.Selected(); ok || len(s.deletes) != 0 {
		t.Fatalf("forget should deselect without persisting")
	}
}

type fakeIDs struct {
	first int64
	calls int
}

func (f *fakeIDs) ReserveIDs(_ context.Context, n int) (int64, int, error) {
	f.calls++
	first := f.first
	f.first += int64(n)
	return first, n, nil
}

func TestIDAllocatorUsesReservedBlocks(t *testing.T) {
	src := &fakeIDs{first: 1000}
	a := NewIDAllocator(src, 4)
	if !a.NeedsRefill() {
		t.Fatalf("empty allocator should need refill")
	}
	if got := a.Next(); got != 1 {
		t.Fatalf("local fallback = %d", got)
	}
	if err := a.Refill(context.Background()); err != nil {
		t.Fatal(err)
	}
	for want := int64(1000); want < 1004; want++ {
		if got := a.Next(); got != want {
			t.Fatalf("block id = %d want %d", got, want)
		}
	}
	if a.Remaining() != 0 || !a.NeedsRefill() {
		t.Fatalf("remaining = %d", a.Remaining())
	}
	if got := a.Next(); got != 1004 {
		t.Fatalf("fallback after block = %d", got)
	}
	a.Observe(5000)
	if err := a.Refill(context.Background()); err != nil {
		t.Fatal(err)
	}
	// 1004 went out as a fallback id; the rest of [1004,1008) is still ours
	if got := a.Next(); got != 1005 {
		t.Fatalf("block id after high observation = %d want 1005", got)
	}
}

func TestIDAllocatorKeepsBlockAcrossClients(t *testing.T) {
	src := &fakeIDs{first: 1}
	mine := NewIDAllocator(src, 32)
	theirs := NewIDAllocator(src, 32)
	if err := mine.Refill(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := theirs.Refill(context.Background()); err != nil {
		t.Fatal(err)
	}
	other := theirs.Next()
	if other != 33 {
		t.Fatalf("second client's first id = %d want 33", other)
	}
	mine.Observe(other)
	if got := mine.Next(); got != 1 {
		t.Fatalf("id = %d, want 1 from the own block [1,33)", got)
	}
	if got := mine.Remaining(); got != 31 {
		t.Fatalf("remaining = %d want 31", got)
	}
	// an id observed inside the own block is skipped
	mine.Observe(2)
	if got := mine.Next(); got != 3 {
		t.Fatalf("id = %d, want 3 after skipping observed 2", got)
	}
}
