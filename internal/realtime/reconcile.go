/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package realtime

import (
	"github.com/mjsxi/matts-infinite-canvas-sub000/internal/item"
	"github.com/mjsxi/matts-infinite-canvas-sub000/internal/vector"
)

// Model is the read side of the local item set.
type Model interface {
	Get(id int64) (*item.Item, bool)
}

// Local is the client's interaction state at the moment an event arrives.
type Local struct {
	Selected int64
	// EditingText is set while the caret is in the selected text item.
	EditingText bool
	// Manipulating is the item under an active drag, resize or rotate.
	Manipulating int64
	// RecentlySaved reports a local write of id within the echo window,
	// or one still pending.
	RecentlySaved func(id int64) bool
}

// Action is what the adapter must do with an event.
type Action int

const (
	Ignore Action = iota
	// Materialize inserts Item and plays the entrance transition.
	Materialize
	// Replace overwrites geometry and payload with Item.
	Replace
	// MergeContent swaps in Item, which carries local geometry and remote
	// content.
	MergeContent
	// Remove drops ID from the board and its view.
	Remove
	// MoveCenter sets the shared center to Center.
	MoveCenter
)

var actionNames = [...]string{"ignore", "materialize", "replace", "merge-content", "remove", "move-center"}

func (a Action) String() string {
	if int(a) < len(actionNames) {
		return actionNames[a]
	}
	return "unknown"
}

// Outcome is the decision for one change.
type Outcome struct {
	Action Action
	ID     int64
	Item   *item.Item
	Center vector.Pt
	// Deselect is set when the removed item was selected.
	Deselect bool
	// Abort is set when the removed item is under an active gesture.
	Abort bool
	// Reason explains an Ignore.
	Reason string
}

func ignore(id int64, reason string) Outcome { return Outcome{Action: Ignore, ID: id, Reason: reason} }

// Reconcile decides how change c applies to m given the local state. It does
// not modify m or any item in it.
func Reconcile(m Model, c Change, local Local) Outcome {
	switch c.Table {
	case TableCenter:
		if c.Center == nil {
			return ignore(c.ID, "center without row")
		}
		if c.Op == OpDelete {
			return ignore(c.ID, "center point cannot be deleted")
		}
		return Outcome{Action: MoveCenter, ID: c.ID, Center: c.Center.Pt()}
	case TableItems:
	default:
		return ignore(c.ID, "unknown table")
	}

	existing, exists := m.Get(c.ID)
	switch c.Op {
	case OpInsert:
		if exists {
			return ignore(c.ID, "already present")
		}
		return fromRow(c, Materialize)

	case OpDelete:
		if !exists {
			return ignore(c.ID, "unknown id")
		}
		return Outcome{Action: Remove, ID: c.ID, Deselect: local.Selected == c.ID, Abort: local.Manipulating == c.ID}

	case OpUpdate:
		if !exists {
			return ignore(c.ID, "unknown id")
		}
		if local.Manipulating == c.ID {
			return ignore(c.ID, "being manipulated")
		}
		if local.RecentlySaved != nil && local.RecentlySaved(c.ID) {
			return ignore(c.ID, "own recent write")
		}
		out := fromRow(c, Replace)
		if out.Action == Ignore {
			return out
		}
		remote := out.Item
		if remote.Kind() != existing.Kind() {
			return ignore(c.ID, "type is immutable")
		}
		if local.Selected == c.ID {
			return mergeContent(existing, remote, local.EditingText)
		}
		if code, ok := existing.Payload.(item.Code); ok {
			rc := remote.Payload.(item.Code)
			rc.Interactive = code.Interactive
			remote.Payload = rc
		}
		return out
	}
	return ignore(c.ID, "unknown operation")
}

func fromRow(c Change, a Action) Outcome {
	if c.Row == nil {
		return ignore(c.ID, "missing row")
	}
	it, err := item.FromRow(*c.Row)
	if err != nil {
		return ignore(c.ID, "invalid row: "+err.Error())
	}
	return Outcome{Action: a, ID: c.ID, Item: it}
}

// mergeContent keeps local geometry and takes remote content. While the caret
// is in a text item its content stays local; styling still merges.
func mergeContent(local, remote *item.Item, editingText bool) Outcome {
	merged := local.Clone()
	switch rp := remote.Payload.(type) {
	case item.Text:
		if editingText {
			rp.Content = local.Payload.(item.Text).Content
		}
		merged.Payload = rp
	case item.Code:
		rp.Interactive = local.Payload.(item.Code).Interactive
		merged.Payload = rp
	default:
		merged.Payload = rp
	}
	if item.SameContent(local.Payload, merged.Payload) {
		return ignore(local.ID, "no content change")
	}
	return Outcome{Action: MergeContent, ID: local.ID, Item: merged}
}
