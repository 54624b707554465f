/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package board

import (
	"fmt"
	"log/slog"

	"github.com/mjsxi/matts-infinite-canvas-sub000/internal/item"
	applog "github.com/mjsxi/matts-infinite-canvas-sub000/internal/log"
)

// Saver persists items. Implementations snapshot the item when called.
type Saver interface {
	Save(it *item.Item)
	Delete(id int64)
}

// Confirmer asks the user to approve a destructive action.
type Confirmer interface {
	Confirm(prompt string) bool
}

// ConfirmFunc adapts a function to Confirmer.
type ConfirmFunc func(prompt string) bool

func (f ConfirmFunc) Confirm(prompt string) bool { return f(prompt) }

// Hooks are view callbacks; nil fields are skipped.
type Hooks struct {
	// OnSelect reports a selection change; 0 means none.
	OnSelect  func(prev, next int64)
	OnCreate  func(it *item.Item)
	OnRemove  func(id int64)
	OnRestack func(ids []int64)
	// OnLocalState reports that an item's local view state (text edit mode,
	// code interactivity) changed.
	OnLocalState func(id int64)
}

// Options configures an Editor.
type Options struct {
	Saver   Saver
	Access  func() Access
	Confirm Confirmer
	IDs     *IDAllocator
	Hooks   Hooks
	Logger  *slog.Logger
}

// Editor applies user intent to a Board: it owns the single selection,
// enforces authorization and hands changed items to the Saver.
type Editor struct {
	board   *Board
	ids     *IDAllocator
	saver   Saver
	access  func() Access
	confirm Confirmer
	hooks   Hooks
	log     *slog.Logger

	selected    int64
	editingText bool
}

func NewEditor(b *Board, opts Options) *Editor {
	e := &Editor{
		board: b, ids: opts.IDs, saver: opts.Saver, access: opts.Access,
		confirm: opts.Confirm, hooks: opts.Hooks, log: opts.Logger,
	}
	if e.ids == nil {
		e.ids = NewIDAllocator(nil, 0)
	}
	if e.access == nil {
		e.access = func() Access { return Guest }
	}
	if e.confirm == nil {
		e.confirm = ConfirmFunc(func(string) bool { return true })
	}
	if e.log == nil {
		e.log = applog.WithComponent("board")
	}
	return e
}

func (e *Editor) Board() *Board           { return e.board }
func (e *Editor) IDs() *IDAllocator       { return e.ids }
func (e *Editor) Access() Access          { return e.access() }
func (e *Editor) Selected() (int64, bool) { return e.selected, e.selected != 0 }

// EditingText reports whether the selected text item has the caret.
func (e *Editor) EditingText() bool { return e.editingText }

func (e *Editor) save(it *item.Item) {
	if e.saver != nil {
		e.saver.Save(it)
	}
}

// CanEdit reports whether the current access may modify id.
func (e *Editor) CanEdit(id int64) bool {
	it, ok := e.board.Get(id)
	return ok && e.access().CanEdit(it)
}

// Create assigns an id (when zero) and the top z-index, records the owner,
// inserts it and saves it immediately.
func (e *Editor) Create(it *item.Item) (*item.Item, error) {
	acc := e.access()
	if !acc.CanCreate() {
		return nil, ErrUnauthorized
	}
	if it.ID == 0 || e.board.Has(it.ID) {
		it.ID = e.ids.Next()
		for e.board.Has(it.ID) {
			e.ids.Observe(it.ID)
			it.ID = e.ids.Next()
		}
	} else {
		e.ids.Observe(it.ID)
	}
	if it.OwnerID == "" {
		it.OwnerID = acc.UserID
	}
	if _, maxZ, ok := e.board.ZRange(); ok {
		it.ZIndex = maxZ + 1
	} else {
		it.ZIndex = 1
	}
	if err := it.Validate(); err != nil {
		return nil, err
	}
	if err := e.board.Insert(it); err != nil {
		return nil, err
	}
	applog.WithItem(e.log, it.ID).Debug("item created", slog.String("kind", string(it.Kind())))
	if e.hooks.OnCreate != nil {
		e.hooks.OnCreate(it)
	}
	e.save(it)
	return it, nil
}

// Select makes id the single selected item.
func (e *Editor) Select(id int64) error {
	it, ok := e.board.Get(id)
	if !ok {
		return ErrNotFound
	}
	if !e.access().CanEdit(it) {
		return ErrUnauthorized
	}
	if e.selected == id {
		return nil
	}
	e.ClearSelection()
	e.selected = id
	if e.hooks.OnSelect != nil {
		e.hooks.OnSelect(0, id)
	}
	return nil
}

// ClearSelection drops the selection and resets the item's local view
// state. Calling it without a selection does nothing.
func (e *Editor) ClearSelection() {
	if e.selected == 0 {
		return
	}
	prev := e.selected
	e.resetLocalState(prev)
	e.selected = 0
	if e.hooks.OnSelect != nil {
		e.hooks.OnSelect(prev, 0)
	}
}

func (e *Editor) resetLocalState(id int64) {
	changed := e.editingText
	e.editingText = false
	if it, ok := e.board.Get(id); ok {
		if c, ok := it.Payload.(item.Code); ok && c.Interactive {
			c.Interactive = false
			it.Payload = c
			changed = true
		}
	}
	if changed && e.hooks.OnLocalState != nil {
		e.hooks.OnLocalState(id)
	}
}

func (e *Editor) selectedItem() (*item.Item, error) {
	if e.selected == 0 {
		return nil, ErrNoSelection
	}
	it, ok := e.board.Get(e.selected)
	if !ok {
		e.selected = 0
		return nil, ErrNoSelection
	}
	if !e.access().CanEdit(it) {
		return nil, ErrUnauthorized
	}
	return it, nil
}

// SetInteractive toggles pointer interaction inside the selected code item.
func (e *Editor) SetInteractive(on bool) error {
	it, err := e.selectedItem()
	if err != nil {
		return err
	}
	c, ok := it.Payload.(item.Code)
	if !ok {
		return fmt.Errorf("item %d is %s, not code", it.ID, it.Kind())
	}
	if c.Interactive != on {
		c.Interactive = on
		it.Payload = c
		if e.hooks.OnLocalState != nil {
			e.hooks.OnLocalState(it.ID)
		}
	}
	return nil
}

// BeginTextEdit puts the caret into the selected text item.
func (e *Editor) BeginTextEdit() error {
	it, err := e.selectedItem()
	if err != nil {
		return err
	}
	if it.Kind() != item.KindText {
		return fmt.Errorf("item %d is %s, not text", it.ID, it.Kind())
	}
	if !e.editingText {
		e.editingText = true
		if e.hooks.OnLocalState != nil {
			e.hooks.OnLocalState(it.ID)
		}
	}
	return nil
}

// EndTextEdit stores content into the edited item and saves it.
func (e *Editor) EndTextEdit(content string) error {
	if !e.editingText {
		return nil
	}
	it, err := e.selectedItem()
	if err != nil {
		e.editingText = false
		return err
	}
	e.editingText = false
	if t, ok := it.Payload.(item.Text); ok && t.Content != content {
		t.Content = content
		it.Payload = t
		e.save(it)
	}
	if e.hooks.OnLocalState != nil {
		e.hooks.OnLocalState(it.ID)
	}
	return nil
}

// Mutate applies fn to an editable item without saving. Gestures call it per
// frame and Commit once at the end.
func (e *Editor) Mutate(id int64, fn func(it *item.Item)) error {
	it, ok := e.board.Get(id)
	if !ok {
		return ErrNotFound
	}
	if !e.access().CanEdit(it) {
		return ErrUnauthorized
	}
	fn(it)
	return nil
}

// Commit saves id.
func (e *Editor) Commit(id int64) {
	if it, ok := e.board.Get(id); ok {
		e.save(it)
	}
}

// Delete removes id after confirmation, deletes its row and saves every item
// whose z-index changed by the renormalization.
func (e *Editor) Delete(id int64) error {
	it, ok := e.board.Get(id)
	if !ok {
		return ErrNotFound
	}
	if !e.access().CanEdit(it) {
		return ErrUnauthorized
	}
	if !e.confirm.Confirm(fmt.Sprintf("Delete this %s?", it.Kind())) {
		return ErrCancelled
	}
	if e.selected == id {
		e.ClearSelection()
	}
	changed, _ := e.board.RemoveAndNormalize(id)
	if e.hooks.OnRemove != nil {
		e.hooks.OnRemove(id)
	}
	if e.saver != nil {
		e.saver.Delete(id)
	}
	e.saveAll(changed)
	applog.WithItem(e.log, id).Debug("item deleted", slog.Int("restacked", len(changed)))
	return nil
}

// DeleteSelected deletes the selected item.
func (e *Editor) DeleteSelected() error {
	if e.selected == 0 {
		return ErrNoSelection
	}
	return e.Delete(e.selected)
}

// BringToFront raises the selected item above all others.
func (e *Editor) BringToFront() error { return e.restack((*Board).BringToFront) }

// SendToBack lowers the selected item below all others.
func (e *Editor) SendToBack() error { return e.restack((*Board).SendToBack) }

func (e *Editor) restack(op func(*Board, int64) ([]int64, error)) error {
	it, err := e.selectedItem()
	if err != nil {
		return err
	}
	changed, err := op(e.board, it.ID)
	if err != nil {
		return err
	}
	if e.hooks.OnRestack != nil && len(changed) > 0 {
		e.hooks.OnRestack(changed)
	}
	e.saveAll(changed)
	return nil
}

func (e *Editor) saveAll(ids []int64) {
	for _, id := range ids {
		if it, ok := e.board.Get(id); ok {
			e.save(it)
		}
	}
}

// Forget removes id because its row is gone remotely. The selection is
// dropped if it pointed at id; nothing is persisted.
func (e *Editor) Forget(id int64) bool {
	if e.selected == id {
		e.ClearSelection()
	}
	return e.board.Remove(id)
}

// Reset empties the selection and local edit state without touching items.
func (e *Editor) Reset() {
	e.ClearSelection()
	e.editingText = false
}
