/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package item

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/mjsxi/matts-infinite-canvas-sub000/internal/vector"
)

// Row is the persisted shape of an item (one row of the items table).
// Style columns are nil unless the item type uses them.
type Row struct {
	ID             int64    `json:"id"`
	ItemType       string   `json:"item_type"`
	Content        string   `json:"content"`
	HTMLContent    *string  `json:"html_content"`
	X              float64  `json:"x"`
	Y              float64  `json:"y"`
	Width          float64  `json:"width"`
	Height         float64  `json:"height"`
	OriginalWidth  float64  `json:"original_width"`
	OriginalHeight float64  `json:"original_height"`
	AspectRatio    float64  `json:"aspect_ratio"`
	Rotation       float64  `json:"rotation"`
	ZIndex         int      `json:"z_index"`
	BorderRadius   float64  `json:"border_radius"`
	FontFamily     *string  `json:"font_family"`
	FontSize       *float64 `json:"font_size"`
	FontWeight     *string  `json:"font_weight"`
	TextColor      *string  `json:"text_color"`
	LineHeight     *float64 `json:"line_height"`
	FontVariation  *string  `json:"font_variation"`
	StrokeColor    *string  `json:"stroke_color"`
	StrokeWidth    *float64 `json:"stroke_thickness"`
	UserID         string   `json:"user_id"`
}

// CenterPointID is the fixed key of the singleton center-point row.
const CenterPointID int64 = 1

// CenterPoint is the shared anchor row.
type CenterPoint struct {
	ID int64   `json:"id"`
	X  float64 `json:"x"`
	Y  float64 `json:"y"`
}

// Pt returns the center as a point.
func (c CenterPoint) Pt() vector.Pt { return vector.Pt{X: c.X, Y: c.Y} }

func strp(s string) *string   { return &s }
func f64p(v float64) *float64 { return &v }
func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// ToRow serializes the full geometry and payload of it.
func ToRow(it *Item) Row {
	r := Row{
		ID:             it.ID,
		ItemType:       string(it.Kind()),
		X:              it.Position.X,
		Y:              it.Position.Y,
		Width:          it.Size.W,
		Height:         it.Size.H,
		OriginalWidth:  it.Original.W,
		OriginalHeight: it.Original.H,
		AspectRatio:    it.AspectRatio,
		Rotation:       it.Rotation,
		ZIndex:         it.ZIndex,
		BorderRadius:   it.BorderRadius,
		UserID:         it.OwnerID,
	}
	switch p := it.Payload.(type) {
	case Image:
		r.Content = p.URL
	case Video:
		r.Content = p.URL
	case Text:
		r.Content = p.Content
		r.FontFamily = strp(p.Style.FontFamily)
		r.FontSize = f64p(p.Style.FontSize)
		r.FontWeight = strp(p.Style.FontWeight)
		r.TextColor = strp(p.Style.Color)
		r.LineHeight = f64p(p.Style.LineHeight)
		if len(p.Style.Variation) > 0 {
			if b, err := json.Marshal(p.Style.Variation); err == nil {
				r.FontVariation = strp(string(b))
			}
		}
	case Code:
		r.HTMLContent = strp(p.HTML)
	case Drawing:
		r.Content = p.Path
		r.HTMLContent = strp(p.ViewBox)
		r.StrokeColor = strp(p.StrokeColor)
		r.StrokeWidth = f64p(p.StrokeWidth)
	}
	return r
}

// FromRow builds an item from a storage row. Missing style columns fall back
// to defaults; an unknown type or degenerate geometry is rejected.
func FromRow(r Row) (*Item, error) {
	kind, err := ParseKind(r.ItemType)
	if err != nil {
		return nil, err
	}
	for _, v := range []float64{r.X, r.Y, r.Width, r.Height, r.Rotation} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("%w: row %d has non-finite geometry", ErrInvalidRow, r.ID)
		}
	}
	it := &Item{
		ID:           r.ID,
		Position:     vector.Pt{X: r.X, Y: r.Y},
		Size:         vector.Size{W: r.Width, H: r.Height},
		Rotation:     r.Rotation,
		ZIndex:       r.ZIndex,
		BorderRadius: math.Max(0, r.BorderRadius),
		AspectRatio:  r.AspectRatio,
		Original:     vector.Size{W: r.OriginalWidth, H: r.OriginalHeight},
		OwnerID:      r.UserID,
	}
	switch kind {
	case KindImage:
		it.Payload = Image{URL: r.Content}
	case KindVideo:
		it.Payload = Video{URL: r.Content}
	case KindText:
		st := DefaultTextStyle()
		if r.FontFamily != nil && *r.FontFamily != "" {
			st.FontFamily = *r.FontFamily
		}
		if r.FontSize != nil && *r.FontSize > 0 {
			st.FontSize = *r.FontSize
		}
		if r.FontWeight != nil && *r.FontWeight != "" {
			st.FontWeight = *r.FontWeight
		}
		if r.TextColor != nil && *r.TextColor != "" {
			st.Color = *r.TextColor
		}
		if r.LineHeight != nil && *r.LineHeight > 0 {
			st.LineHeight = *r.LineHeight
		}
		if r.FontVariation != nil && *r.FontVariation != "" {
			var axes map[string]float64
			if err := json.Unmarshal([]byte(*r.FontVariation), &axes); err == nil {
				st.Variation = axes
			}
		}
		it.Payload = Text{Content: r.Content, Style: st}
	case KindCode:
		it.Payload = Code{HTML: deref(r.HTMLContent)}
	case KindDrawing:
		d := Drawing{Path: r.Content, ViewBox: deref(r.HTMLContent), StrokeColor: DefaultStrokeColor, StrokeWidth: DefaultStrokeWidth}
		if r.StrokeColor != nil && *r.StrokeColor != "" {
			d.StrokeColor = *r.StrokeColor
		}
		if r.StrokeWidth != nil && *r.StrokeWidth > 0 {
			d.StrokeWidth = *r.StrokeWidth
		}
		it.Payload = d
	}
	if !(it.AspectRatio > 0) && it.Size.H > 0 {
		it.AspectRatio = it.Size.W / it.Size.H
	}
	if err := it.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRow, err)
	}
	return it, nil
}
