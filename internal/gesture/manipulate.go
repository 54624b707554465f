/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package gesture

import (
	"math"

	"github.com/mjsxi/matts-infinite-canvas-sub000/internal/vector"
)

// MinSize is the smallest width or height a resize may produce.
const MinSize = 50

// SnapDegrees is the rotation step applied while the snap modifier is held.
const SnapDegrees = 15

// Resize returns the new box for dragging handle h of start by (dx, dy)
// canvas units. With lockRatio > 0 the result keeps w/h equal to it: on
// corner handles the larger of the two deltas drives both dimensions.
// Edges opposite to the handle stay fixed.
func Resize(start vector.Rect, h Handle, dx, dy, lockRatio, minSize float64) vector.Rect {
	if h == HandleNone {
		return start
	}
	dw, dh := 0.0, 0.0
	switch {
	case h.east():
		dw = dx
	case h.west():
		dw = -dx
	}
	switch {
	case h.south():
		dh = dy
	case h.north():
		dh = -dy
	}
	w, ht := start.W+dw, start.H+dh

	if lockRatio > 0 {
		switch {
		case h.Corner():
			if math.Abs(dw) >= math.Abs(dh) {
				ht = w / lockRatio
			} else {
				w = ht * lockRatio
			}
		case h == HandleE || h == HandleW:
			ht = w / lockRatio
		default:
			w = ht * lockRatio
		}
		if w < minSize || ht < minSize {
			if lockRatio >= 1 {
				w, ht = minSize*lockRatio, minSize
			} else {
				w, ht = minSize, minSize/lockRatio
			}
		}
	} else {
		w, ht = math.Max(w, minSize), math.Max(ht, minSize)
	}

	out := vector.Rect{X: start.X, Y: start.Y, W: w, H: ht}
	if h.west() {
		out.X = start.X + start.W - w
	}
	if h.north() {
		out.Y = start.Y + start.H - ht
	}
	return out
}

// AngleDegrees is the direction from center to p in degrees.
func AngleDegrees(center, p vector.Pt) float64 {
	return vector.Degrees(math.Atan2(p.Y-center.Y, p.X-center.X))
}

// Rotate returns the rotation after the pointer moved from `from` to `to`
// around center, starting at startRotation.
func Rotate(startRotation float64, center, from, to vector.Pt, snap bool) float64 {
	r := startRotation + AngleDegrees(center, to) - AngleDegrees(center, from)
	if snap {
		r = math.Round(r/SnapDegrees) * SnapDegrees
	}
	return r
}
