/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package gesture

import (
	"errors"
	"log/slog"
	"math"

	"github.com/mjsxi/matts-infinite-canvas-sub000/internal/board"
	"github.com/mjsxi/matts-infinite-canvas-sub000/internal/clock"
	"github.com/mjsxi/matts-infinite-canvas-sub000/internal/item"
	applog "github.com/mjsxi/matts-infinite-canvas-sub000/internal/log"
	"github.com/mjsxi/matts-infinite-canvas-sub000/internal/vector"
	"github.com/mjsxi/matts-infinite-canvas-sub000/internal/viewport"
)

// Surface is the viewport the recognizer pans and zooms.
type Surface interface {
	ScreenToCanvas(sx, sy float64) vector.Pt
	CanvasToScreen(x, y float64) vector.Pt
	Transform() viewport.Transform
	SetScale(s, anchorX, anchorY float64)
	ZoomBy(factor, anchorX, anchorY float64)
	PanBy(dx, dy float64)
}

// Editor is the subset of board.Editor the recognizer drives.
type Editor interface {
	Board() *board.Board
	Access() board.Access
	Select(id int64) error
	ClearSelection()
	Mutate(id int64, fn func(it *item.Item)) error
	Commit(id int64)
	Create(it *item.Item) (*item.Item, error)
}

// Stroke is the current drawing tool setting.
type Stroke struct {
	Color string
	Width float64
}

// Options configures a Recognizer.
type Options struct {
	Surface Surface
	Editor  Editor
	Clock   clock.Clock
	// Post runs f on the recognizer's goroutine; inertia frames use it.
	Post func(f func())
	// Stroke returns the tool setting for new drawings.
	Stroke func() Stroke
	// OnSetCenter receives the canvas point picked in ModeSetCenter.
	OnSetCenter func(p vector.Pt)
	// OnPreview receives the in-progress polyline in screen space, or nil
	// when it is cleared.
	OnPreview func(screen []vector.Pt)
	// OnState is called on every state transition.
	OnState func(prev, next State)
	// MinInertia is the release velocity (px per frame) needed to coast.
	MinInertia float64
	Logger     *slog.Logger
}

// Recognizer is not safe for concurrent use; feed it from one goroutine.
type Recognizer struct {
	opts    Options
	surface Surface
	editor  Editor
	log     *slog.Logger
	inertia *Inertia

	state State
	mode  Mode

	// panning
	last  vector.Pt
	track tracker
	moved bool

	// item gestures
	target    int64
	offset    vector.Pt
	startPtr  vector.Pt
	startBox  vector.Rect
	startRot  float64
	center    vector.Pt
	handle    Handle
	lockRatio float64

	// drawing
	stroke []vector.Pt

	// pinching
	startDist  float64
	startScale float64
	anchor     vector.Pt
}

// New returns an idle recognizer.
func New(opts Options) *Recognizer {
	if opts.Clock == nil {
		opts.Clock = clock.Real{}
	}
	if opts.Stroke == nil {
		opts.Stroke = func() Stroke { return Stroke{Color: item.DefaultStrokeColor, Width: item.DefaultStrokeWidth} }
	}
	if opts.MinInertia <= 0 {
		opts.MinInertia = 0.5
	}
	l := opts.Logger
	if l == nil {
		l = applog.WithComponent("gesture")
	}
	r := &Recognizer{opts: opts, surface: opts.Surface, editor: opts.Editor, log: l}
	r.inertia = NewInertia(opts.Clock, opts.Post, func(dx, dy float64) { r.surface.PanBy(dx, dy) })
	return r
}

// State returns the current interaction.
func (r *Recognizer) State() State { return r.state }

// Mode returns the active tool mode.
func (r *Recognizer) Mode() Mode { return r.mode }

// Inertia exposes the pan animation.
func (r *Recognizer) Inertia() *Inertia { return r.inertia }

// Active returns the item being dragged, resized or rotated.
func (r *Recognizer) Active() (int64, bool) {
	switch r.state {
	case DraggingItem, Resizing, Rotating:
		return r.target, true
	}
	return 0, false
}

// SetMode switches the tool mode. Leaving ModeDraw discards an unfinished
// stroke.
func (r *Recognizer) SetMode(m Mode) {
	if m == r.mode {
		return
	}
	if r.mode == ModeDraw && r.state == Drawing {
		r.clearStroke()
		r.setState(Idle)
	}
	r.mode = m
	r.log.Debug("mode changed", slog.Int("mode", int(m)))
}

func (r *Recognizer) setState(s State) {
	if s == r.state {
		return
	}
	prev := r.state
	r.state = s
	if r.opts.OnState != nil {
		r.opts.OnState(prev, s)
	}
}

func (r *Recognizer) canvas(p Pointer) vector.Pt { return r.surface.ScreenToCanvas(p.X, p.Y) }

// Down starts a gesture for a press at p over hit.
func (r *Recognizer) Down(p Pointer, hit Target) {
	r.inertia.Cancel()
	if r.state != Idle {
		r.finish()
	}
	acc := r.editor.Access()
	switch {
	case r.mode == ModeDraw && acc.CanCreate():
		r.stroke = append(r.stroke[:0], r.canvas(p))
		r.setState(Drawing)
		r.preview()
		return
	case r.mode == ModeSetCenter:
		if acc.Admin && r.opts.OnSetCenter != nil {
			r.opts.OnSetCenter(r.canvas(p))
		}
		r.mode = ModeNone
		return
	case hit.ItemID != 0:
		if r.beginItem(p, hit) {
			return
		}
	}
	r.beginPan(p)
}

func (r *Recognizer) beginPan(p Pointer) {
	r.last = vector.Pt{X: p.X, Y: p.Y}
	r.track.reset()
	r.track.add(p.X, p.Y, p.Time)
	r.moved = false
	r.setState(Panning)
}

func (r *Recognizer) beginItem(p Pointer, hit Target) bool {
	if err := r.editor.Select(hit.ItemID); err != nil {
		if !errors.Is(err, board.ErrUnauthorized) {
			applog.WithItem(r.log, hit.ItemID).Debug("select refused", applog.Err(err))
		}
		return false
	}
	if r.mode == ModeDraw {
		r.mode = ModeNone
	}
	it, ok := r.editor.Board().Get(hit.ItemID)
	if !ok {
		return false
	}
	cp := r.canvas(p)
	r.target = it.ID
	r.startPtr = cp
	r.startBox = it.Bounds()
	r.startRot = it.Rotation
	r.moved = false

	switch {
	case hit.Rotate:
		r.center = it.Center()
		r.setState(Rotating)
	case hit.Handle != HandleNone && (it.Kind() != item.KindDrawing || hit.Handle.Corner()):
		r.handle = hit.Handle
		r.lockRatio = 0
		if it.Kind().MediaKind() {
			r.lockRatio = it.AspectRatio
			if !(r.lockRatio > 0) {
				r.lockRatio = it.Size.W / it.Size.H
			}
		}
		r.setState(Resizing)
	default:
		r.offset = cp.Sub(it.Position)
		r.setState(DraggingItem)
	}
	return true
}

// Move updates the current gesture with a pointer move.
func (r *Recognizer) Move(p Pointer) {
	switch r.state {
	case Panning:
		dx, dy := p.X-r.last.X, p.Y-r.last.Y
		r.last = vector.Pt{X: p.X, Y: p.Y}
		r.track.add(p.X, p.Y, p.Time)
		if dx != 0 || dy != 0 {
			r.moved = true
			r.surface.PanBy(dx, dy)
		}
	case DraggingItem:
		pos := r.canvas(p).Sub(r.offset)
		r.mutate(func(it *item.Item) { it.Position = pos })
	case Resizing:
		d := r.canvas(p).Sub(r.startPtr)
		box := Resize(r.startBox, r.handle, d.X, d.Y, r.lockRatio, MinSize)
		r.mutate(func(it *item.Item) {
			it.Position = box.Min()
			it.Size = vector.Size{W: box.W, H: box.H}
		})
	case Rotating:
		rot := Rotate(r.startRot, r.center, r.startPtr, r.canvas(p), p.Snap)
		r.mutate(func(it *item.Item) { it.Rotation = rot })
	case Drawing:
		cp := r.canvas(p)
		if n := len(r.stroke); n > 0 && r.stroke[n-1].Near(cp, 0.5) {
			return
		}
		r.stroke = append(r.stroke, cp)
		r.preview()
	}
}

func (r *Recognizer) mutate(fn func(it *item.Item)) {
	err := r.editor.Mutate(r.target, func(it *item.Item) {
		before := *it
		fn(it)
		if it.Position != before.Position || it.Size != before.Size || it.Rotation != before.Rotation {
			r.moved = true
		}
	})
	if err != nil {
		// the item vanished or access was revoked mid-gesture
		applog.WithItem(r.log, r.target).Debug("gesture aborted", applog.Err(err))
		r.Abort()
	}
}

// Up ends the current gesture.
func (r *Recognizer) Up(p Pointer) {
	switch r.state {
	case Panning:
		if p.X != r.last.X || p.Y != r.last.Y {
			r.Move(p)
		}
		vx, vy := r.track.velocity(p.Time, DefaultFrame)
		clicked := !r.moved
		r.setState(Idle)
		if clicked {
			r.editor.ClearSelection()
			return
		}
		if math.Hypot(vx, vy) >= r.opts.MinInertia {
			r.inertia.Start(vx, vy)
		}
	default:
		r.finish()
	}
}

// finish ends an item or drawing gesture, persisting its result once.
func (r *Recognizer) finish() {
	switch r.state {
	case DraggingItem, Resizing, Rotating:
		if r.moved {
			r.editor.Commit(r.target)
		}
	case Drawing:
		pts := r.stroke
		r.clearStroke()
		if len(pts) >= 2 {
			st := r.opts.Stroke()
			it, err := item.NewDrawing(0, pts, st.Color, st.Width)
			if err == nil {
				_, err = r.editor.Create(it)
			}
			if err != nil {
				applog.WithOperation(r.log, "draw").Warn("drawing discarded", applog.Err(err))
			}
		}
	}
	r.target = 0
	r.setState(Idle)
}

// Abort drops the current gesture without persisting anything.
func (r *Recognizer) Abort() {
	r.inertia.Cancel()
	if r.state == Drawing {
		r.clearStroke()
	}
	r.target = 0
	r.setState(Idle)
}

func (r *Recognizer) clearStroke() {
	r.stroke = nil
	if r.opts.OnPreview != nil {
		r.opts.OnPreview(nil)
	}
}

func (r *Recognizer) preview() {
	if r.opts.OnPreview == nil {
		return
	}
	out := make([]vector.Pt, len(r.stroke))
	for i, p := range r.stroke {
		out[i] = r.surface.CanvasToScreen(p.X, p.Y)
	}
	r.opts.OnPreview(out)
}

// Wheel zooms toward the cursor or pans, per ClassifyWheel.
func (r *Recognizer) Wheel(w Wheel) {
	r.inertia.Cancel()
	if ClassifyWheel(w) == WheelZoom {
		r.surface.ZoomBy(wheelZoomFactor(w), w.X, w.Y)
		return
	}
	r.surface.PanBy(-w.DeltaX, -w.DeltaY)
}

// TouchStart reports the full set of touches after a new finger landed.
// hit is the target under a single touch.
func (r *Recognizer) TouchStart(touches []Pointer, hit Target) {
	switch {
	case len(touches) >= 2:
		r.inertia.Cancel()
		if r.state != Idle && r.state != Pinching {
			if r.state == Panning {
				r.setState(Idle)
			} else {
				r.finish()
			}
		}
		a, b := touches[0], touches[1]
		r.startDist = math.Hypot(b.X-a.X, b.Y-a.Y)
		r.startScale = r.surface.Transform().Scale
		c := centroid(a, b)
		r.anchor = r.surface.ScreenToCanvas(c.X, c.Y)
		r.setState(Pinching)
	case len(touches) == 1:
		r.Down(touches[0], hit)
	}
}

// TouchMove reports the current touches.
func (r *Recognizer) TouchMove(touches []Pointer) {
	if r.state != Pinching {
		if len(touches) == 1 {
			r.Move(touches[0])
		}
		return
	}
	if len(touches) < 2 || r.startDist < 1 {
		return
	}
	a, b := touches[0], touches[1]
	c := centroid(a, b)
	factor := math.Hypot(b.X-a.X, b.Y-a.Y) / r.startDist
	r.surface.SetScale(r.startScale*factor, c.X, c.Y)
	// keep the canvas point first under the centroid under it now
	q := r.surface.CanvasToScreen(r.anchor.X, r.anchor.Y)
	if dx, dy := c.X-q.X, c.Y-q.Y; dx != 0 || dy != 0 {
		r.surface.PanBy(dx, dy)
	}
}

// TouchEnd reports a lifted touch and the touches still down.
func (r *Recognizer) TouchEnd(lifted Pointer, remaining []Pointer) {
	if r.state == Pinching {
		if len(remaining) == 1 {
			r.setState(Idle)
			r.beginPan(remaining[0])
			r.moved = true
			return
		}
		if len(remaining) == 0 {
			r.setState(Idle)
		}
		return
	}
	if len(remaining) == 0 {
		r.Up(lifted)
	}
}

func centroid(a, b Pointer) vector.Pt { return vector.Pt{X: (a.X + b.X) / 2, Y: (a.Y + b.Y) / 2} }
