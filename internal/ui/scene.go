/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package ui

import (
	"math"

	"github.com/mjsxi/matts-infinite-canvas-sub000/internal/gesture"
	"github.com/mjsxi/matts-infinite-canvas-sub000/internal/item"
	"github.com/mjsxi/matts-infinite-canvas-sub000/internal/vector"
)

// Projector maps between canvas and screen space.
type Projector interface {
	CanvasToScreen(x, y float64) vector.Pt
	ScreenToCanvas(sx, sy float64) vector.Pt
}

const (
	// HandleSize is the side of a resize handle in screen pixels.
	HandleSize = 10.0
	// RotateOffset is the distance of the rotation knob above the top edge.
	RotateOffset = 24.0
)

// Frame returns the screen corners of it in NW, NE, SE, SW order.
func Frame(it *item.Item, p Projector) [4]vector.Pt {
	b := it.Bounds()
	m := vector.RotateAround(b.Center(), vector.Radians(it.Rotation))
	local := [4]vector.Pt{
		b.Min(),
		{X: b.X + b.W, Y: b.Y},
		b.Max(),
		{X: b.X, Y: b.Y + b.H},
	}
	var out [4]vector.Pt
	for i, q := range local {
		c := m.Apply(q)
		out[i] = p.CanvasToScreen(c.X, c.Y)
	}
	return out
}

// Handles returns the screen centers of the resize handles of it. Drawings
// only resize from their corners.
func Handles(it *item.Item, p Projector) map[gesture.Handle]vector.Pt {
	f := Frame(it, p)
	hs := map[gesture.Handle]vector.Pt{
		gesture.HandleNW: f[0],
		gesture.HandleNE: f[1],
		gesture.HandleSE: f[2],
		gesture.HandleSW: f[3],
	}
	if it.Kind() != item.KindDrawing {
		hs[gesture.HandleN] = vector.Mid(f[0], f[1])
		hs[gesture.HandleE] = vector.Mid(f[1], f[2])
		hs[gesture.HandleS] = vector.Mid(f[2], f[3])
		hs[gesture.HandleW] = vector.Mid(f[3], f[0])
	}
	return hs
}

// RotateHandle returns the screen center of the rotation knob: above the
// middle of the top edge, following the item's rotation.
func RotateHandle(it *item.Item, p Projector) vector.Pt {
	f := Frame(it, p)
	top := vector.Mid(f[0], f[1])
	bottom := vector.Mid(f[3], f[2])
	up := top.Sub(bottom)
	if l := up.Len(); l > 0 {
		return top.Add(up.Mul(RotateOffset / l))
	}
	return top.Add(vector.Pt{Y: -RotateOffset})
}

// HitTest resolves a press at screen point s. The rotation knob and handles
// of the selected item win over item bodies; bodies are tested top-most
// first. items must be in paint order.
func HitTest(items []*item.Item, selected int64, p Projector, s vector.Pt) gesture.Target {
	if selected != 0 {
		for _, it := range items {
			if it.ID != selected {
				continue
			}
			if near(RotateHandle(it, p), s) {
				return gesture.Target{ItemID: it.ID, Rotate: true}
			}
			for h, c := range Handles(it, p) {
				if near(c, s) {
					return gesture.Target{ItemID: it.ID, Handle: h}
				}
			}
			break
		}
	}
	c := p.ScreenToCanvas(s.X, s.Y)
	for i := len(items) - 1; i >= 0; i-- {
		if Contains(items[i], c) {
			return gesture.Target{ItemID: items[i].ID}
		}
	}
	return gesture.Target{}
}

// Contains reports whether canvas point c lies inside the rotated box of it.
func Contains(it *item.Item, c vector.Pt) bool {
	b := it.Bounds()
	local := vector.RotateAround(b.Center(), -vector.Radians(it.Rotation)).Apply(c)
	return b.Contains(local)
}

func near(a, b vector.Pt) bool {
	return math.Abs(a.X-b.X) <= HandleSize/2 && math.Abs(a.Y-b.Y) <= HandleSize/2
}
