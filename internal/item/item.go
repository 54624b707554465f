/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package item defines the canvas item model: geometry shared by every item
// plus exactly one type-specific payload, and its mapping to storage rows.
package item

import (
	"fmt"
	"strings"

	"github.com/mjsxi/matts-infinite-canvas-sub000/internal/vector"
)

// Kind is the closed set of item types.
type Kind string

const (
	KindImage   Kind = "image"
	KindVideo   Kind = "video"
	KindText    Kind = "text"
	KindCode    Kind = "code"
	KindDrawing Kind = "drawing"
)

// Kinds lists every kind in a stable order.
var Kinds = []Kind{KindImage, KindVideo, KindText, KindCode, KindDrawing}

// ParseKind validates s.
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Kinds {
		if k == known {
			return k, nil
		}
	}
	return "", fmt.Errorf("%w: unknown item type %q", ErrInvalidRow, s)
}

// MediaKind reports whether the kind scales uniformly by its aspect ratio.
func (k Kind) MediaKind() bool { return k == KindImage || k == KindVideo }

// Payload is the type-specific content of an item. The set of
// implementations is sealed to this package.
type Payload interface {
	Kind() Kind
	payload()
}

// Image is an image referenced by URL.
type Image struct{ URL string }

// Video is a video referenced by URL.
type Video struct{ URL string }

// TextStyle describes how text content is rendered.
type TextStyle struct {
	FontFamily string
	FontSize   float64
	FontWeight string
	Color      string
	LineHeight float64
	// Variation holds variable-font axis values keyed by axis tag ("wght", "wdth", ...).
	Variation map[string]float64
}

// Text is plain text content.
type Text struct {
	Content string
	Style   TextStyle
}

// Code is an HTML document rendered sandboxed. Interactive is local view
// state and is never persisted.
type Code struct {
	HTML        string
	Interactive bool
}

// Drawing is a freehand SVG path in the local frame given by ViewBox.
type Drawing struct {
	Path        string
	StrokeColor string
	StrokeWidth float64
	ViewBox     string
}

func (Image) Kind() Kind   { return KindImage }
func (Video) Kind() Kind   { return KindVideo }
func (Text) Kind() Kind    { return KindText }
func (Code) Kind() Kind    { return KindCode }
func (Drawing) Kind() Kind { return KindDrawing }

func (Image) payload()   {}
func (Video) payload()   {}
func (Text) payload()    {}
func (Code) payload()    {}
func (Drawing) payload() {}

// Item is a placed canvas object.
type Item struct {
	ID           int64
	Position     vector.Pt // top-left, canvas space
	Size         vector.Size
	Rotation     float64 // degrees
	ZIndex       int
	BorderRadius float64
	AspectRatio  float64
	// Original is the natural size of the source content.
	Original vector.Size
	OwnerID  string
	Payload  Payload
}

// Kind returns the payload kind, or "" for an item without payload.
func (it *Item) Kind() Kind {
	if it.Payload == nil {
		return ""
	}
	return it.Payload.Kind()
}

// Bounds returns the unrotated canvas rectangle.
func (it *Item) Bounds() vector.Rect {
	return vector.Rect{X: it.Position.X, Y: it.Position.Y, W: it.Size.W, H: it.Size.H}
}

// Center returns the rotation center.
func (it *Item) Center() vector.Pt { return it.Bounds().Center() }

// Clone returns a deep copy.
func (it *Item) Clone() *Item {
	c := *it
	if t, ok := it.Payload.(Text); ok && t.Style.Variation != nil {
		v := make(map[string]float64, len(t.Style.Variation))
		for k, x := range t.Style.Variation {
			v[k] = x
		}
		t.Style.Variation = v
		c.Payload = t
	}
	return &c
}

// Validate checks the invariants every item must hold.
func (it *Item) Validate() error {
	if it.ID <= 0 {
		return fmt.Errorf("%w: id %d", ErrInvalidItem, it.ID)
	}
	if it.Payload == nil {
		return fmt.Errorf("%w: item %d has no payload", ErrInvalidItem, it.ID)
	}
	if !(it.Size.W > 0) || !(it.Size.H > 0) {
		return fmt.Errorf("%w: item %d size %gx%g", ErrInvalidItem, it.ID, it.Size.W, it.Size.H)
	}
	if it.BorderRadius < 0 {
		return fmt.Errorf("%w: item %d border radius %g", ErrInvalidItem, it.ID, it.BorderRadius)
	}
	if !(it.AspectRatio > 0) {
		return fmt.Errorf("%w: item %d aspect ratio %g", ErrInvalidItem, it.ID, it.AspectRatio)
	}
	return nil
}

// SameContent reports whether a and b carry equal payloads. Local view state
// (a code item's Interactive flag) is ignored.
func SameContent(a, b Payload) bool {
	switch x := a.(type) {
	case Image:
		y, ok := b.(Image)
		return ok && x == y
	case Video:
		y, ok := b.(Video)
		return ok && x == y
	case Text:
		y, ok := b.(Text)
		if !ok || x.Content != y.Content || len(x.Style.Variation) != len(y.Style.Variation) {
			return false
		}
		for k, v := range x.Style.Variation {
			if y.Style.Variation[k] != v {
				return false
			}
		}
		xs, ys := x.Style, y.Style
		return xs.FontFamily == ys.FontFamily && xs.FontSize == ys.FontSize &&
			xs.FontWeight == ys.FontWeight && xs.Color == ys.Color && xs.LineHeight == ys.LineHeight
	case Code:
		y, ok := b.(Code)
		return ok && x.HTML == y.HTML
	case Drawing:
		y, ok := b.(Drawing)
		return ok && x == y
	}
	return false
}
