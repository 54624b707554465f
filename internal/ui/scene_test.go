/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package ui

import (
	"testing"
	"time"

	"github.com/mjsxi/matts-infinite-canvas-sub000/internal/app"
	"github.com/mjsxi/matts-infinite-canvas-sub000/internal/clock"
	"github.com/mjsxi/matts-infinite-canvas-sub000/internal/gesture"
	"github.com/mjsxi/matts-infinite-canvas-sub000/internal/item"
	"github.com/mjsxi/matts-infinite-canvas-sub000/internal/vector"
)

// zoomed is screen = canvas*s + off.
type zoomed struct {
	s   float64
	off vector.Pt
}

func (z zoomed) CanvasToScreen(x, y float64) vector.Pt {
	return vector.Pt{X: x*z.s + z.off.X, Y: y*z.s + z.off.Y}
}

func (z zoomed) ScreenToCanvas(sx, sy float64) vector.Pt {
	return vector.Pt{X: (sx - z.off.X) / z.s, Y: (sy - z.off.Y) / z.s}
}

func box(id int64, x, y, w, h float64) *item.Item {
	it := item.NewCode(id, vector.Pt{X: x, Y: y}, "<p></p>")
	it.Size = vector.Size{W: w, H: h}
	return it
}

func TestFrameFollowsRotation(t *testing.T) {
	it := box(1, 0, 0, 100, 100)
	it.Rotation = 90
	f := Frame(it, zoomed{s: 1})
	// a quarter turn clockwise moves the NW corner to the top right
	if !f[0].Near(vector.Pt{X: 100, Y: 0}, 1e-9) {
		t.Fatalf("NW corner = %+v, want (100,0)", f[0])
	}
	if !f[2].Near(vector.Pt{X: 0, Y: 100}, 1e-9) {
		t.Fatalf("SE corner = %+v, want (0,100)", f[2])
	}
}

func TestHandlesForDrawingsAreCornersOnly(t *testing.T) {
	d, err := item.NewDrawing(1, []vector.Pt{{X: 0, Y: 0}, {X: 50, Y: 50}}, "", 0)
	if err != nil {
		t.Fatalf("drawing: %v", err)
	}
	if got := len(Handles(d, zoomed{s: 1})); got != 4 {
		t.Fatalf("drawing handles = %d, want 4", got)
	}
	if got := len(Handles(box(2, 0, 0, 10, 10), zoomed{s: 1})); got != 8 {
		t.Fatalf("box handles = %d, want 8", got)
	}
}

func TestRotateHandleSitsAboveTopEdge(t *testing.T) {
	p := zoomed{s: 2, off: vector.Pt{X: 10, Y: 10}}
	got := RotateHandle(box(1, 0, 0, 100, 50), p)
	want := vector.Pt{X: 110, Y: 10 - RotateOffset}
	if !got.Near(want, 1e-9) {
		t.Fatalf("rotate handle = %+v, want %+v", got, want)
	}
}

func TestHitTestPrefersHandlesThenTopmost(t *testing.T) {
	p := zoomed{s: 1}
	low := box(1, 0, 0, 100, 100)
	high := box(2, 50, 50, 100, 100)
	items := []*item.Item{low, high}

	if got := HitTest(items, 0, p, vector.Pt{X: 75, Y: 75}); got.ItemID != 2 {
		t.Fatalf("overlap hit = %+v, want item 2", got)
	}
	if got := HitTest(items, 0, p, vector.Pt{X: 10, Y: 10}); got.ItemID != 1 {
		t.Fatalf("low hit = %+v, want item 1", got)
	}
	if got := HitTest(items, 0, p, vector.Pt{X: 500, Y: 500}); got.ItemID != 0 {
		t.Fatalf("empty hit = %+v, want canvas", got)
	}
	// the SE handle of the selected lower item lies under the upper item
	got := HitTest(items, 1, p, vector.Pt{X: 101, Y: 99})
	if got.ItemID != 1 || got.Handle != gesture.HandleSE {
		t.Fatalf("handle hit = %+v, want item 1 SE", got)
	}
	got = HitTest(items, 1, p, vector.Pt{X: 50, Y: -RotateOffset})
	if got.ItemID != 1 || !got.Rotate {
		t.Fatalf("rotate hit = %+v, want item 1 rotate", got)
	}
}

func TestContainsUsesRotatedBox(t *testing.T) {
	it := box(1, 0, 0, 200, 20)
	if !Contains(it, vector.Pt{X: 190, Y: 10}) {
		t.Fatalf("unrotated point should hit")
	}
	it.Rotation = 90
	if Contains(it, vector.Pt{X: 190, Y: 10}) {
		t.Fatalf("point outside the rotated box should miss")
	}
	if !Contains(it, vector.Pt{X: 100, Y: 10 + 90}) {
		t.Fatalf("point inside the rotated box should hit")
	}
}

func TestToastsExpireAndCollapseRepeats(t *testing.T) {
	fc := clock.NewFake(time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC))
	ts := NewToasts(fc, time.Second, 2)
	a := app.Status{Kind: app.StatusError, Message: "a"}
	b := app.Status{Kind: app.StatusInfo, Message: "b"}
	c := app.Status{Kind: app.StatusInfo, Message: "c"}

	ts.Push(a)
	ts.Push(a)
	if got := ts.Active(); len(got) != 1 {
		t.Fatalf("repeat kept %d toasts, want 1", len(got))
	}
	ts.Push(b)
	ts.Push(c)
	got := ts.Active()
	if len(got) != 2 || got[0] != b || got[1] != c {
		t.Fatalf("active = %+v, want [b c]", got)
	}
	fc.Advance(time.Second)
	if got := ts.Active(); len(got) != 0 {
		t.Fatalf("expired toasts still active: %+v", got)
	}
}
