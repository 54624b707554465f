/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package viewport

import (
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/mjsxi/matts-infinite-canvas-sub000/internal/clock"
	"github.com/mjsxi/matts-infinite-canvas-sub000/internal/vector"
)

const eps = 1e-9

func newTestViewport(t *testing.T) (*Viewport, *clock.Fake) {
	t.Helper()
	c := clock.NewFake(time.Unix(0, 0))
	v := New(Options{
		MinScale: 0.05, MaxScale: 5, RectTTL: 16 * time.Millisecond, Clock: c,
		Source: RectFunc(func() vector.Rect { return vector.R(40, 60, 1000, 800) }),
	})
	return v, c
}

func TestRoundTripAcrossTransforms(t *testing.T) {
	v, _ := newTestViewport(t)
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 200; i++ {
		v.SetTransform(Transform{
			PanX:  rng.Float64()*4000 - 2000,
			PanY:  rng.Float64()*4000 - 2000,
			Scale: 0.05 + rng.Float64()*4.95,
		})
		p := vector.Pt{X: rng.Float64()*1e5 - 5e4, Y: rng.Float64()*1e5 - 5e4}
		s := v.CanvasToScreen(p.X, p.Y)
		back := v.ScreenToCanvas(s.X, s.Y)
		if !back.Near(p, 1e-6) {
			t.Fatalf("round trip %d: %+v -> %+v", i, p, back)
		}
	}
}

func TestScreenToCanvasUsesOrigin(t *testing.T) {
	v, _ := newTestViewport(t)
	v.SetTransform(Transform{PanX: 100, PanY: 50, Scale: 2})
	got := v.ScreenToCanvas(340, 310)
	// (340-40-100)/2, (310-60-50)/2
	if !got.Near(vector.Pt{X: 100, Y: 100}, eps) {
		t.Fatalf("ScreenToCanvas = %+v", got)
	}
}

func TestSetScaleKeepsAnchorFixed(t *testing.T) {
	v, _ := newTestViewport(t)
	v.SetTransform(Transform{PanX: -320, PanY: 75, Scale: 0.8})
	anchors := []vector.Pt{{X: 40, Y: 60}, {X: 500, Y: 420}, {X: 1040, Y: 860}}
	for _, a := range anchors {
		for _, s := range []float64{0.05, 0.3, 1, 2.5, 5} {
			before := v.ScreenToCanvas(a.X, a.Y)
			v.SetScale(s, a.X, a.Y)
			after := v.ScreenToCanvas(a.X, a.Y)
			if !after.Near(before, 1e-6) {
				t.Fatalf("anchor %+v scale %v moved %+v -> %+v", a, s, before, after)
			}
		}
	}
}

func TestScaleClamping(t *testing.T) {
	v, _ := newTestViewport(t)
	for i := 0; i < 100; i++ {
		v.ZoomBy(1.3, 500, 400)
		if s := v.Transform().Scale; s > 5+eps {
			t.Fatalf("scale above max: %v", s)
		}
	}
	if v.Transform().Scale != 5 {
		t.Fatalf("expected max scale, got %v", v.Transform().Scale)
	}
	for i := 0; i < 100; i++ {
		v.ZoomBy(0.7, 500, 400)
		if s := v.Transform().Scale; s < 0.05-eps {
			t.Fatalf("scale below min: %v", s)
		}
	}
	v.SetScale(math.NaN(), 0, 0)
	v.SetScale(-1, 0, 0)
	if v.Transform().Scale != 0.05 {
		t.Fatalf("invalid scale should be ignored, got %v", v.Transform().Scale)
	}
}

func TestRectIsCachedForTTL(t *testing.T) {
	v, c := newTestViewport(t)
	for i := 0; i < 10; i++ {
		v.ScreenToCanvas(float64(i), 0)
	}
	if v.rectRead != 1 {
		t.Fatalf("rect read %d times within TTL", v.rectRead)
	}
	c.Advance(20 * time.Millisecond)
	v.Rect()
	if v.rectRead != 2 {
		t.Fatalf("rect not refreshed after TTL: %d", v.rectRead)
	}
	v.InvalidateRect()
	v.Rect()
	if v.rectRead != 3 {
		t.Fatalf("rect not refreshed after invalidate: %d", v.rectRead)
	}
}

func TestOnChangeFiresOnlyOnChange(t *testing.T) {
	var got []Transform
	v := New(Options{MinScale: 0.1, MaxScale: 2, OnChange: func(tr Transform) { got = append(got, tr) }})
	v.PanBy(0, 0)
	v.PanBy(10, -5)
	v.SetScale(2, 0, 0)
	v.SetScale(3, 0, 0) // clamped to 2, no change
	if len(got) != 2 {
		t.Fatalf("OnChange calls = %d (%v)", len(got), got)
	}
	if got[0].PanX != 10 || got[0].PanY != -5 {
		t.Fatalf("first change = %+v", got[0])
	}
}

func TestCenterOnAndVisibleRect(t *testing.T) {
	v, _ := newTestViewport(t)
	v.SetTransform(Transform{Scale: 2})
	v.CenterOn(vector.Pt{X: 1000, Y: -200})
	r := v.VisibleCanvasRect()
	if c := r.Center(); !c.Near(vector.Pt{X: 1000, Y: -200}, eps) {
		t.Fatalf("visible center = %+v", c)
	}
	if r.W != 500 || r.H != 400 {
		t.Fatalf("visible size = %vx%v", r.W, r.H)
	}
	if tr := v.Transform(); tr.CSS() != "translate(-1500px, 800px) scale(2)" {
		t.Fatalf("CSS = %q", tr.CSS())
	}
}
