/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package item

import (
	"fmt"
	"math"

	"github.com/mjsxi/matts-infinite-canvas-sub000/internal/textlayout"
	"github.com/mjsxi/matts-infinite-canvas-sub000/internal/vector"
)

const (
	DefaultTextContent = "Double-click to edit text..."
	DefaultFontSize    = 24
	DefaultStrokeColor = "#000000"
	DefaultStrokeWidth = 4
	// MaxMediaWidth bounds the initial width of images and videos.
	MaxMediaWidth = 400
	// TextPadding is added around measured text.
	TextPadding = 16
)

// DefaultCodeSize is the initial box of a code item.
var DefaultCodeSize = vector.Size{W: 400, H: 300}

// DefaultTextStyle returns the style applied to new text items.
func DefaultTextStyle() TextStyle {
	return TextStyle{FontFamily: "Inter", FontSize: DefaultFontSize, FontWeight: "400", Color: "#333333", LineHeight: 1.2}
}

var measurer = textlayout.New(nil)

// NewText creates a text item at pos sized to its content.
func NewText(id int64, pos vector.Pt, content string, style TextStyle) *Item {
	if content == "" {
		content = DefaultTextContent
	}
	if style.FontSize <= 0 {
		style.FontSize = DefaultFontSize
	}
	box := measurer.Measure(content, textlayout.Spec{FontSize: style.FontSize, LineHeight: style.LineHeight})
	sz := vector.Size{W: math.Ceil(box.Width) + 2*TextPadding, H: math.Ceil(box.Height) + 2*TextPadding}
	return &Item{
		ID: id, Position: pos, Size: sz, AspectRatio: sz.W / sz.H, Original: sz,
		Payload: Text{Content: content, Style: style},
	}
}

// NewMedia creates an image or video item. natural is the content's source
// size; the initial width is capped at MaxMediaWidth keeping the ratio.
func NewMedia(id int64, kind Kind, pos vector.Pt, url string, natural vector.Size) (*Item, error) {
	if !kind.MediaKind() {
		return nil, fmt.Errorf("%w: %s is not a media kind", ErrInvalidItem, kind)
	}
	if !(natural.W > 0) || !(natural.H > 0) {
		natural = vector.Size{W: 400, H: 300}
	}
	ratio := natural.W / natural.H
	w := math.Min(natural.W, MaxMediaWidth)
	it := &Item{
		ID: id, Position: pos, Size: vector.Size{W: w, H: w / ratio},
		AspectRatio: ratio, Original: natural,
	}
	if kind == KindImage {
		it.Payload = Image{URL: url}
	} else {
		it.Payload = Video{URL: url}
	}
	return it, nil
}

// NewCode creates an HTML item with the default box.
func NewCode(id int64, pos vector.Pt, html string) *Item {
	sz := DefaultCodeSize
	return &Item{ID: id, Position: pos, Size: sz, AspectRatio: sz.W / sz.H, Original: sz, Payload: Code{HTML: html}}
}

// NewDrawing turns a canvas-space polyline into a drawing item. The item box
// is the polyline bounds grown by the stroke width on every side; the path is
// stored relative to the box with a matching view box. At least two points
// are required.
func NewDrawing(id int64, pts []vector.Pt, color string, strokeWidth float64) (*Item, error) {
	if len(pts) < 2 {
		return nil, fmt.Errorf("%w: drawing needs at least 2 points, got %d", ErrInvalidItem, len(pts))
	}
	if strokeWidth <= 0 {
		strokeWidth = DefaultStrokeWidth
	}
	if color == "" {
		color = DefaultStrokeColor
	}
	b, _ := vector.Bounds(pts)
	pad := strokeWidth
	box := b.Inset(-pad, -pad)
	local := vector.Polyline(pts).Transform(vector.Translate(-box.X, -box.Y))
	vb := vector.ViewBox{X: 0, Y: 0, W: box.W, H: box.H}
	return &Item{
		ID:          id,
		Position:    box.Min(),
		Size:        vector.Size{W: box.W, H: box.H},
		AspectRatio: box.W / box.H,
		Original:    vector.Size{W: box.W, H: box.H},
		Payload:     Drawing{Path: local.SVG(), StrokeColor: color, StrokeWidth: strokeWidth, ViewBox: vb.String()},
	}, nil
}
