/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package export renders static snapshots of a board as SVG, PDF, PNG or a
// zip bundle holding the rows plus previews.
package export

import (
	"errors"
	"fmt"
	"image/color"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/mjsxi/matts-infinite-canvas-sub000/internal/item"
	"github.com/mjsxi/matts-infinite-canvas-sub000/internal/vector"
)

// Format names an output format.
type Format string

const (
	FormatSVG Format = "svg"
	FormatPDF Format = "pdf"
	FormatPNG Format = "png"
	FormatZIP Format = "zip"
)

// Formats lists every supported format.
var Formats = []Format{FormatSVG, FormatPDF, FormatPNG, FormatZIP}

// ErrUnknownFormat is returned for an unsupported file extension or name.
var ErrUnknownFormat = errors.New("unknown export format")

// DefaultMargin is the canvas-space padding around the item bounds.
const DefaultMargin = 40

// ParseFormat accepts a format name with or without a leading dot.
func ParseFormat(s string) (Format, error) {
	f := Format(strings.ToLower(strings.TrimPrefix(strings.TrimSpace(s), ".")))
	for _, known := range Formats {
		if f == known {
			return f, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
}

// FormatOf derives the format from a file name.
func FormatOf(path string) (Format, error) {
	ext := filepath.Ext(path)
	if ext == "" {
		return "", fmt.Errorf("%w: %s has no extension", ErrUnknownFormat, path)
	}
	return ParseFormat(ext)
}

// Board is an export snapshot: items sorted bottom to top.
type Board struct {
	Items  []*item.Item
	Center *item.CenterPoint
	Title  string
}

// NewBoard sorts items by z-index, ties broken by id.
func NewBoard(items []*item.Item) Board {
	sorted := append([]*item.Item(nil), items...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].ZIndex != sorted[j].ZIndex {
			return sorted[i].ZIndex < sorted[j].ZIndex
		}
		return sorted[i].ID < sorted[j].ID
	})
	return Board{Items: sorted}
}

// FromRows maps storage rows to a board. Rows that do not map to a valid item
// are skipped and counted.
func FromRows(rows []item.Row) (Board, int) {
	items := make([]*item.Item, 0, len(rows))
	skipped := 0
	for _, r := range rows {
		it, err := item.FromRow(r)
		if err != nil {
			skipped++
			continue
		}
		items = append(items, it)
	}
	return NewBoard(items), skipped
}

// Bounds is the union of the rotated item boxes grown by margin. An empty
// board yields a square of side 2*margin (at least 1) at the origin.
func (b Board) Bounds(margin float64) vector.Rect {
	var r vector.Rect
	for i, it := range b.Items {
		rb := vector.RotatedBounds(it.Bounds(), it.Rotation)
		if i == 0 {
			r = rb
			continue
		}
		r = r.Union(rb)
	}
	r = r.Inset(-margin, -margin)
	if r.W < 1 {
		r.W = 1
	}
	if r.H < 1 {
		r.H = 1
	}
	return r
}

// WriteFile renders b to path, picking the format from the extension.
// Missing parent directories are created.
func WriteFile(path string, b Board) error {
	f, err := FormatOf(path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("ensure out dir: %w", err)
	}
	out, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", f, err)
	}
	if err := Write(out, f, b); err != nil {
		_ = out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("close %s: %w", f, err)
	}
	return nil
}

// Write renders b to w in format f with default options.
func Write(w io.Writer, f Format, b Board) error {
	switch f {
	case FormatSVG:
		return SVG(w, b, SVGOptions{})
	case FormatPDF:
		return PDF(w, b, PDFOptions{})
	case FormatPNG:
		return PNG(w, b, PNGOptions{})
	case FormatZIP:
		return Bundle(w, b, BundleOptions{})
	default:
		return fmt.Errorf("%w: %q", ErrUnknownFormat, f)
	}
}

// Placeholder colors per kind.
var (
	frameStroke = color.RGBA{R: 0x9c, G: 0xa3, B: 0xaf, A: 0xff}
	imageFill   = color.RGBA{R: 0xee, G: 0xf2, B: 0xf7, A: 0xff}
	videoFill   = color.RGBA{R: 0x1f, G: 0x29, B: 0x37, A: 0xff}
	codeFill    = color.RGBA{R: 0xf8, G: 0xfa, B: 0xfc, A: 0xff}
	labelInk    = color.RGBA{R: 0x4b, G: 0x55, B: 0x63, A: 0xff}
	videoInk    = color.RGBA{R: 0xe5, G: 0xe7, B: 0xeb, A: 0xff}
	white       = color.RGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}
	black       = color.RGBA{A: 0xff}
)

// parseColor reads #rgb and #rrggbb. Anything else yields fallback.
func parseColor(s string, fallback color.RGBA) color.RGBA {
	s = strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(s) == 3 {
		s = string([]byte{s[0], s[0], s[1], s[1], s[2], s[2]})
	}
	if len(s) != 6 {
		return fallback
	}
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return fallback
	}
	return color.RGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 0xff}
}

func hexColor(c color.RGBA) string {
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}

// bold reports whether a CSS font-weight should render bold.
func bold(weight string) bool {
	w := strings.ToLower(strings.TrimSpace(weight))
	if w == "bold" || w == "bolder" {
		return true
	}
	n, err := strconv.Atoi(w)
	return err == nil && n >= 600
}

// wght returns the weight axis of a variable font when set.
func wght(st item.TextStyle) string {
	if v, ok := st.Variation["wght"]; ok {
		return strconv.Itoa(int(math.Round(v)))
	}
	return st.FontWeight
}

// drawingPath maps a drawing's local path onto the item box in canvas space.
func drawingPath(it *item.Item, d item.Drawing) (vector.Path, error) {
	p, err := vector.ParseSVGPath(d.Path)
	if err != nil {
		return vector.Path{}, fmt.Errorf("item %d: %w", it.ID, err)
	}
	vb, err := vector.ParseViewBox(d.ViewBox)
	if err != nil {
		vb = vector.ViewBox{W: it.Original.W, H: it.Original.H}
		if vb.W <= 0 || vb.H <= 0 {
			return vector.Path{}, fmt.Errorf("item %d: %w", it.ID, err)
		}
	}
	return p.Transform(vb.To(it.Bounds())), nil
}

// strokeScale is the factor a drawing's stroke width grows by when its view
// box is stretched onto the item box.
func strokeScale(it *item.Item, d item.Drawing) float64 {
	vb, err := vector.ParseViewBox(d.ViewBox)
	if err != nil {
		return 1
	}
	return math.Sqrt((it.Size.W / vb.W) * (it.Size.H / vb.H))
}

// textLines splits content for rendering; empty content renders nothing.
func textLines(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(strings.ReplaceAll(s, "\r\n", "\n"), "\n")
}

// fitLines keeps as many lines as fit into height, marking a cut with an
// ellipsis line.
func fitLines(lines []string, height, lineHeight float64) []string {
	if lineHeight <= 0 {
		return lines
	}
	n := int(height / lineHeight)
	if n < 0 {
		n = 0
	}
	if len(lines) <= n {
		return lines
	}
	if n == 0 {
		return nil
	}
	out := append([]string(nil), lines[:n-1]...)
	return append(out, "…")
}

// label shortens a URL for a placeholder caption.
func label(url string, max int) string {
	r := []rune(url)
	if len(r) <= max || max < 2 {
		return url
	}
	return string(r[:max-1]) + "…"
}
