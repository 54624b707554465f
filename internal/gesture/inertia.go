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
	"time"

	"github.com/mjsxi/matts-infinite-canvas-sub000/internal/clock"
)

// Inertia defaults.
const (
	DefaultFriction    = 0.95
	DefaultMinVelocity = 0.1 // px per frame
	DefaultFrame       = 16 * time.Millisecond
)

// Inertia decelerates a pan after release. Start, Cancel and the frame
// callbacks must all run on one goroutine; post is used to hop back onto it
// from the clock's timer goroutine.
type Inertia struct {
	clk         clock.Clock
	frame       time.Duration
	friction    float64
	minVelocity float64
	post        func(func())
	apply       func(dx, dy float64)

	vx, vy  float64
	timer   clock.Timer
	gen     int
	running bool
	frames  int
}

// NewInertia returns an idle animation that calls apply once per frame.
func NewInertia(c clock.Clock, post func(func()), apply func(dx, dy float64)) *Inertia {
	if post == nil {
		post = func(f func()) { f() }
	}
	return &Inertia{
		clk: c, frame: DefaultFrame, friction: DefaultFriction, minVelocity: DefaultMinVelocity,
		post: post, apply: apply,
	}
}

// Start begins decelerating from (vx, vy) px per frame, replacing any
// running animation.
func (in *Inertia) Start(vx, vy float64) {
	in.Cancel()
	if math.Hypot(vx, vy) < in.minVelocity {
		return
	}
	in.vx, in.vy = vx, vy
	in.running = true
	in.frames = 0
	in.schedule()
}

func (in *Inertia) schedule() {
	gen := in.gen
	in.timer = in.clk.AfterFunc(in.frame, func() {
		in.post(func() { in.step(gen) })
	})
}

func (in *Inertia) step(gen int) {
	if !in.running || gen != in.gen {
		return
	}
	in.apply(in.vx, in.vy)
	in.frames++
	in.vx *= in.friction
	in.vy *= in.friction
	if math.Hypot(in.vx, in.vy) < in.minVelocity {
		in.running = false
		in.timer = nil
		return
	}
	in.schedule()
}

// Cancel stops a running animation. It is safe to call when idle.
func (in *Inertia) Cancel() {
	in.gen++
	in.running = false
	if in.timer != nil {
		in.timer.Stop()
		in.timer = nil
	}
}

// Running reports whether frames are still being applied.
func (in *Inertia) Running() bool { return in.running }

// Frames is the number of frames applied by the current or last animation.
func (in *Inertia) Frames() int { return in.frames }

type sample struct {
	x, y float64
	at   time.Time
}

// tracker keeps the last few pointer samples of a pan.
type tracker struct {
	buf []sample
}

const trackerSize = 3

func (t *tracker) reset() { t.buf = t.buf[:0] }

func (t *tracker) add(x, y float64, at time.Time) {
	if len(t.buf) == trackerSize {
		copy(t.buf, t.buf[1:])
		t.buf = t.buf[:trackerSize-1]
	}
	t.buf = append(t.buf, sample{x, y, at})
}

// velocity is the average px-per-frame velocity over the kept samples. A
// release that comes long after the last move yields zero.
func (t *tracker) velocity(release time.Time, frame time.Duration) (float64, float64) {
	if len(t.buf) < 2 {
		return 0, 0
	}
	first, last := t.buf[0], t.buf[len(t.buf)-1]
	if release.Sub(last.at) > 100*time.Millisecond {
		return 0, 0
	}
	dt := last.at.Sub(first.at)
	if dt <= 0 {
		return 0, 0
	}
	frames := float64(dt) / float64(frame)
	return (last.x - first.x) / frames, (last.y - first.y) / frames
}
