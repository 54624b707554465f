/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package viewport maps between screen pixels and the unbounded canvas plane.
//
// The mapping is canvas = (screen - origin - pan) / scale, where origin is the
// viewport's on-page offset. Scale is always kept within [MinScale, MaxScale].
package viewport

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/mjsxi/matts-infinite-canvas-sub000/internal/clock"
	"github.com/mjsxi/matts-infinite-canvas-sub000/internal/vector"
)

// Transform is the pan offset and uniform scale of the canvas.
type Transform struct {
	PanX  float64 `json:"panX"`
	PanY  float64 `json:"panY"`
	Scale float64 `json:"scale"`
}

// CSS returns the equivalent CSS transform string.
func (t Transform) CSS() string {
	return fmt.Sprintf("translate(%gpx, %gpx) scale(%g)", t.PanX, t.PanY, t.Scale)
}

// Matrix returns the canvas-to-viewport affine transform (origin excluded).
func (t Transform) Matrix() vector.Affine2D {
	return vector.Translate(t.PanX, t.PanY).Mul(vector.Scale(t.Scale, t.Scale))
}

// RectSource reports the viewport's on-page rectangle. Reads may be costly,
// so the Viewport caches them.
type RectSource interface {
	ViewportRect() vector.Rect
}

// RectFunc adapts a function to RectSource.
type RectFunc func() vector.Rect

func (f RectFunc) ViewportRect() vector.Rect { return f() }

// Options configures a Viewport.
type Options struct {
	MinScale float64
	MaxScale float64
	// RectTTL is how long a RectSource read is reused.
	RectTTL time.Duration
	Clock   clock.Clock
	Source  RectSource
	// OnChange is called after every transform change, outside the lock.
	OnChange func(Transform)
}

// Viewport owns the current Transform.
type Viewport struct {
	mu       sync.Mutex
	opts     Options
	t        Transform
	rect     vector.Rect
	rectAt   time.Time
	hasRect  bool
	rectRead int
}

// New returns a viewport at identity (pan 0, scale 1 clamped to range).
func New(opts Options) *Viewport {
	if opts.MinScale <= 0 {
		opts.MinScale = 0.05
	}
	if opts.MaxScale < opts.MinScale {
		opts.MaxScale = opts.MinScale
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real{}
	}
	if opts.Source == nil {
		opts.Source = RectFunc(func() vector.Rect { return vector.R(0, 0, 1280, 800) })
	}
	v := &Viewport{opts: opts}
	v.t = Transform{Scale: vector.Clamp(1, opts.MinScale, opts.MaxScale)}
	return v
}

// ScaleRange returns the clamp range.
func (v *Viewport) ScaleRange() (float64, float64) { return v.opts.MinScale, v.opts.MaxScale }

// Transform returns the current transform.
func (v *Viewport) Transform() Transform {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.t
}

// Rect returns the viewport's on-page rectangle, reusing a cached read for RectTTL.
func (v *Viewport) Rect() vector.Rect {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.rectLocked()
}

func (v *Viewport) rectLocked() vector.Rect {
	now := v.opts.Clock.Now()
	if v.hasRect && now.Sub(v.rectAt) < v.opts.RectTTL {
		return v.rect
	}
	v.rect = v.opts.Source.ViewportRect()
	v.rectAt = now
	v.hasRect = true
	v.rectRead++
	return v.rect
}

// InvalidateRect drops the cached rectangle, e.g. after a window resize.
func (v *Viewport) InvalidateRect() {
	v.mu.Lock()
	v.hasRect = false
	v.mu.Unlock()
}

// ScreenToCanvas maps a viewport pixel coordinate to canvas space.
func (v *Viewport) ScreenToCanvas(sx, sy float64) vector.Pt {
	v.mu.Lock()
	defer v.mu.Unlock()
	return screenToCanvas(v.t, v.rectLocked().Min(), sx, sy)
}

// CanvasToScreen maps a canvas point to viewport pixels.
func (v *Viewport) CanvasToScreen(x, y float64) vector.Pt {
	v.mu.Lock()
	defer v.mu.Unlock()
	return canvasToScreen(v.t, v.rectLocked().Min(), x, y)
}

func screenToCanvas(t Transform, origin vector.Pt, sx, sy float64) vector.Pt {
	return vector.Pt{X: (sx - origin.X - t.PanX) / t.Scale, Y: (sy - origin.Y - t.PanY) / t.Scale}
}

func canvasToScreen(t Transform, origin vector.Pt, x, y float64) vector.Pt {
	return vector.Pt{X: x*t.Scale + t.PanX + origin.X, Y: y*t.Scale + t.PanY + origin.Y}
}

// SetScale changes the scale while keeping the canvas point under the anchor
// fixed on screen. The scale is clamped; NaN or non-positive values are ignored.
func (v *Viewport) SetScale(s, anchorX, anchorY float64) {
	if math.IsNaN(s) || math.IsInf(s, 0) || s <= 0 {
		return
	}
	v.update(func(t *Transform, origin vector.Pt) {
		c := screenToCanvas(*t, origin, anchorX, anchorY)
		t.Scale = vector.Clamp(s, v.opts.MinScale, v.opts.MaxScale)
		t.PanX = anchorX - origin.X - c.X*t.Scale
		t.PanY = anchorY - origin.Y - c.Y*t.Scale
	})
}

// ZoomBy multiplies the scale by factor around the anchor.
func (v *Viewport) ZoomBy(factor, anchorX, anchorY float64) {
	v.SetScale(v.Transform().Scale*factor, anchorX, anchorY)
}

// PanBy shifts the pan offset by screen pixels.
func (v *Viewport) PanBy(dx, dy float64) {
	if dx == 0 && dy == 0 {
		return
	}
	v.update(func(t *Transform, _ vector.Pt) {
		t.PanX += dx
		t.PanY += dy
	})
}

// SetTransform replaces the transform, clamping the scale.
func (v *Viewport) SetTransform(nt Transform) {
	v.update(func(t *Transform, _ vector.Pt) {
		if nt.Scale <= 0 || math.IsNaN(nt.Scale) {
			nt.Scale = t.Scale
		}
		nt.Scale = vector.Clamp(nt.Scale, v.opts.MinScale, v.opts.MaxScale)
		*t = nt
	})
}

// CenterOn pans so that canvas point p sits at the middle of the viewport.
func (v *Viewport) CenterOn(p vector.Pt) {
	v.update(func(t *Transform, _ vector.Pt) {
		r := v.rectLocked()
		t.PanX = r.W/2 - p.X*t.Scale
		t.PanY = r.H/2 - p.Y*t.Scale
	})
}

// VisibleCanvasRect returns the canvas-space rectangle currently on screen.
func (v *Viewport) VisibleCanvasRect() vector.Rect {
	v.mu.Lock()
	defer v.mu.Unlock()
	r := v.rectLocked()
	tl := screenToCanvas(v.t, r.Min(), r.X, r.Y)
	return vector.Rect{X: tl.X, Y: tl.Y, W: r.W / v.t.Scale, H: r.H / v.t.Scale}
}

func (v *Viewport) update(fn func(t *Transform, origin vector.Pt)) {
	v.mu.Lock()
	before := v.t
	fn(&v.t, v.rectLocked().Min())
	after := v.t
	cb := v.opts.OnChange
	v.mu.Unlock()
	if cb != nil && after != before {
		cb(after)
	}
}
