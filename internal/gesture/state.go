/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package gesture turns pointer, touch and wheel input into viewport and
// item manipulations. It is a plain state machine with no UI dependency.
package gesture

import (
	"math"
	"time"
)

// State is the current interaction.
type State int

const (
	Idle State = iota
	Panning
	DraggingItem
	Resizing
	Rotating
	Drawing
	Pinching
)

var stateNames = [...]string{"idle", "panning", "dragging", "resizing", "rotating", "drawing", "pinching"}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown"
}

// Mode is an externally selected tool that changes what a press on empty
// canvas does. Modes are mutually exclusive.
type Mode int

const (
	ModeNone Mode = iota
	ModeDraw
	ModeSetCenter
)

// Handle identifies a resize affordance on the selected item.
type Handle int

const (
	HandleNone Handle = iota
	HandleN
	HandleNE
	HandleE
	HandleSE
	HandleS
	HandleSW
	HandleW
	HandleNW
)

// Corner reports whether h is one of the four corner handles.
func (h Handle) Corner() bool {
	return h == HandleNE || h == HandleSE || h == HandleSW || h == HandleNW
}

func (h Handle) west() bool  { return h == HandleW || h == HandleNW || h == HandleSW }
func (h Handle) east() bool  { return h == HandleE || h == HandleNE || h == HandleSE }
func (h Handle) north() bool { return h == HandleN || h == HandleNE || h == HandleNW }
func (h Handle) south() bool { return h == HandleS || h == HandleSE || h == HandleSW }

// Target is the view's hit-test result for a press. ItemID 0 means empty
// canvas.
type Target struct {
	ItemID int64
	Handle Handle
	Rotate bool
}

// Pointer is one pointer or touch sample in screen space.
type Pointer struct {
	ID   int
	X, Y float64
	Time time.Time
	// Snap is the modifier that snaps rotation to 15 degree steps.
	Snap bool
}

// DeltaMode values of a wheel event.
const (
	DeltaPixel = 0
	DeltaLine  = 1
	DeltaPage  = 2
)

// Wheel is a wheel or trackpad event in screen space.
type Wheel struct {
	X, Y                   float64
	DeltaX, DeltaY, DeltaZ float64
	DeltaMode              int
	// ZoomModifier is the platform zoom key (ctrl, or cmd on macOS).
	ZoomModifier bool
}

// WheelIntent is the classification of a wheel event.
type WheelIntent int

const (
	WheelPan WheelIntent = iota
	WheelZoom
)

// ClassifyWheel decides whether w zooms or pans. Trackpad pinches arrive as
// synthetic wheel events with ctrl set, a deltaZ, line deltas, or a
// fractional deltaY with almost no horizontal component.
func ClassifyWheel(w Wheel) WheelIntent {
	switch {
	case w.ZoomModifier:
		return WheelZoom
	case w.DeltaZ != 0:
		return WheelZoom
	case w.DeltaMode == DeltaLine:
		return WheelZoom
	case w.DeltaY != math.Trunc(w.DeltaY) && math.Abs(w.DeltaX) < 1:
		return WheelZoom
	}
	return WheelPan
}

// wheelZoomFactor maps a vertical delta to a multiplicative scale step.
func wheelZoomFactor(w Wheel) float64 {
	dy := w.DeltaY
	switch w.DeltaMode {
	case DeltaLine:
		dy *= 16
	case DeltaPage:
		dy *= 400
	}
	if dy == 0 && w.DeltaZ != 0 {
		dy = w.DeltaZ
	}
	return math.Exp(-dy * 0.01)
}
