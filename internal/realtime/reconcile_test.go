/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package realtime

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/mjsxi/matts-infinite-canvas-sub000/internal/item"
	"github.com/mjsxi/matts-infinite-canvas-sub000/internal/vector"
)

type mapModel map[int64]*item.Item

func (m mapModel) Get(id int64) (*item.Item, bool) {
	it, ok := m[id]
	return it, ok
}

func textItem(id int64, x, y float64, content string) *item.Item {
	it := item.NewText(id, vector.Pt{X: x, Y: y}, content, item.DefaultTextStyle())
	it.ZIndex = 1
	return it
}

func change(t *testing.T, op Operation, it *item.Item) Change {
	t.Helper()
	ev, err := NewEvent(op, TableItems, item.ToRow(it))
	if err != nil {
		t.Fatal(err)
	}
	c, err := Decode(ev)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	return c
}

func TestInsertMaterializesOnce(t *testing.T) {
	m := mapModel{}
	remote := textItem(7, 10, 20, "from A")
	c := change(t, OpInsert, remote)

	out := Reconcile(m, c, Local{})
	if out.Action != Materialize || out.Item == nil || out.Item.ID != 7 {
		t.Fatalf("first insert: %+v", out)
	}
	m[7] = out.Item

	// replay after a resubscription
	out = Reconcile(m, change(t, OpInsert, remote), Local{})
	if out.Action != Ignore {
		t.Fatalf("replayed insert: %+v", out)
	}
	if len(m) != 1 {
		t.Fatalf("model has %d items", len(m))
	}
}

func TestUpdateReplacesUnselectedItem(t *testing.T) {
	local := textItem(3, 0, 0, "old")
	m := mapModel{3: local}
	remote := local.Clone()
	remote.Position = vector.Pt{X: 300, Y: 400}
	remote.Payload = item.Text{Content: "new", Style: item.DefaultTextStyle()}

	out := Reconcile(m, change(t, OpUpdate, remote), Local{Selected: 9})
	if out.Action != Replace {
		t.Fatalf("action = %v (%s)", out.Action, out.Reason)
	}
	if out.Item.Position != remote.Position || out.Item.Payload.(item.Text).Content != "new" {
		t.Fatalf("replaced = %+v", out.Item)
	}
	if local.Position != (vector.Pt{}) {
		t.Fatalf("Reconcile mutated the model")
	}
}

func TestUpdateSkippedWhileManipulatedOrEcho(t *testing.T) {
	local := textItem(3, 0, 0, "x")
	m := mapModel{3: local}
	remote := local.Clone()
	remote.Position.X = 99
	c := change(t, OpUpdate, remote)

	if out := Reconcile(m, c, Local{Manipulating: 3}); out.Action != Ignore {
		t.Fatalf("manipulated: %+v", out)
	}
	recent := func(id int64) bool { return id == 3 }
	if out := Reconcile(m, c, Local{RecentlySaved: recent}); out.Action != Ignore || out.Reason != "own recent write" {
		t.Fatalf("echo: %+v", out)
	}
	if out := Reconcile(m, c, Local{RecentlySaved: func(int64) bool { return false }}); out.Action != Replace {
		t.Fatalf("stale stamp should not suppress: %+v", out)
	}
}

func TestSelectedItemMergesContentOnly(t *testing.T) {
	local := textItem(5, 10, 10, "mine")
	m := mapModel{5: local}
	remote := local.Clone()
	remote.Position = vector.Pt{X: 500, Y: 500}
	st := item.DefaultTextStyle()
	st.Color = "#ff0000"
	remote.Payload = item.Text{Content: "theirs", Style: st}
	c := change(t, OpUpdate, remote)

	out := Reconcile(m, c, Local{Selected: 5})
	if out.Action != MergeContent {
		t.Fatalf("action = %v (%s)", out.Action, out.Reason)
	}
	if out.Item.Position != local.Position {
		t.Fatalf("geometry merged: %v", out.Item.Position)
	}
	if got := out.Item.Payload.(item.Text); got.Content != "theirs" || got.Style.Color != "#ff0000" {
		t.Fatalf("content = %+v", got)
	}

	out = Reconcile(m, c, Local{Selected: 5, EditingText: true})
	if out.Action != MergeContent {
		t.Fatalf("editing: action = %v (%s)", out.Action, out.Reason)
	}
	if got := out.Item.Payload.(item.Text); got.Content != "mine" || got.Style.Color != "#ff0000" {
		t.Fatalf("editing: content = %+v", got)
	}

	// geometry-only remote change on the selected item has nothing to merge
	geo := local.Clone()
	geo.Position.X = 1
	if out := Reconcile(m, change(t, OpUpdate, geo), Local{Selected: 5}); out.Action != Ignore {
		t.Fatalf("geometry-only: %+v", out)
	}
}

func TestCodeInteractiveFlagStaysLocal(t *testing.T) {
	local := item.NewCode(4, vector.Pt{}, "<p>a</p>")
	local.Payload = item.Code{HTML: "<p>a</p>", Interactive: true}
	m := mapModel{4: local}
	remote := local.Clone()
	remote.Payload = item.Code{HTML: "<p>b</p>"}
	out := Reconcile(m, change(t, OpUpdate, remote), Local{Selected: 4})
	if out.Action != MergeContent {
		t.Fatalf("action = %v", out.Action)
	}
	if c := out.Item.Payload.(item.Code); c.HTML != "<p>b</p>" || !c.Interactive {
		t.Fatalf("code = %+v", c)
	}
}

func TestTypeChangeIgnored(t *testing.T) {
	local := textItem(2, 0, 0, "t")
	m := mapModel{2: local}
	img, _ := item.NewMedia(2, item.KindImage, vector.Pt{}, "/a.png", vector.Size{W: 10, H: 10})
	if out := Reconcile(m, change(t, OpUpdate, img), Local{}); out.Action != Ignore {
		t.Fatalf("type change: %+v", out)
	}
}

func TestDeleteOfSelectedItemDeselects(t *testing.T) {
	m := mapModel{6: textItem(6, 0, 0, "x"), 8: textItem(8, 0, 0, "y")}
	ev, _ := NewEvent(OpDelete, TableItems, map[string]int64{"id": 6})
	c, err := Decode(ev)
	if err != nil {
		t.Fatal(err)
	}
	out := Reconcile(m, c, Local{Selected: 6, Manipulating: 6})
	if out.Action != Remove || !out.Deselect || !out.Abort {
		t.Fatalf("delete selected: %+v", out)
	}
	out = Reconcile(m, Change{Op: OpDelete, Table: TableItems, ID: 8}, Local{Selected: 6})
	if out.Action != Remove || out.Deselect {
		t.Fatalf("delete other: %+v", out)
	}
	if out := Reconcile(m, Change{Op: OpDelete, Table: TableItems, ID: 99}, Local{}); out.Action != Ignore {
		t.Fatalf("unknown delete: %+v", out)
	}
}

func TestUpdateOfUnknownIDIgnored(t *testing.T) {
	out := Reconcile(mapModel{}, change(t, OpUpdate, textItem(42, 0, 0, "x")), Local{})
	if out.Action != Ignore || out.Reason != "unknown id" {
		t.Fatalf("out = %+v", out)
	}
}

func TestCenterUpdate(t *testing.T) {
	ev, _ := NewEvent(OpUpdate, TableCenter, item.CenterPoint{ID: 1, X: 12, Y: -4})
	c, err := Decode(ev)
	if err != nil {
		t.Fatal(err)
	}
	out := Reconcile(mapModel{}, c, Local{})
	if out.Action != MoveCenter || out.Center != (vector.Pt{X: 12, Y: -4}) {
		t.Fatalf("out = %+v", out)
	}
}

func TestDecodeRejectsMalformed(t *testing.T) {
	cases := []Event{
		{Operation: "upsert", Table: TableItems, Row: json.RawMessage(`{}`)},
		{Operation: OpInsert, Table: "users", Row: json.RawMessage(`{}`)},
		{Operation: OpInsert, Table: TableItems, Row: json.RawMessage(`{"id":1,"item_type":"sticker","x":0,"y":0,"width":1,"height":1}`)},
		{Operation: OpDelete, Table: TableItems, Row: json.RawMessage(`{}`)},
	}
	for i, ev := range cases {
		if _, err := Decode(ev); !errors.Is(err, ErrMalformed) {
			t.Fatalf("case %d: want ErrMalformed, got %v", i, err)
		}
	}
}
