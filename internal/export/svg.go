/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package export

import (
	"bytes"
	"fmt"
	"io"
	"math"
	"sort"
	"strings"

	"github.com/mjsxi/matts-infinite-canvas-sub000/internal/item"
)

// SVGOptions controls SVG export behavior.
// - Margin pads the item bounds; zero means DefaultMargin.
// - Background is a CSS hex color; empty means white.
// - LinkMedia emits <image> elements for image items on top of the placeholder.
type SVGOptions struct {
	Margin     float64
	Background string
	LinkMedia  bool
}

// SVG writes the board as a single SVG document whose viewBox is canvas space.
func SVG(w io.Writer, b Board, opt SVGOptions) error {
	margin := opt.Margin
	if margin == 0 {
		margin = DefaultMargin
	}
	bg := parseColor(opt.Background, white)
	r := b.Bounds(margin)

	var buf bytes.Buffer
	var werr error
	wf := func(format string, args ...any) {
		if werr != nil {
			return
		}
		_, werr = fmt.Fprintf(&buf, format, args...)
	}

	wf("<?xml version=\"1.0\" encoding=\"UTF-8\"?>\n")
	wf("<svg xmlns=\"http://www.w3.org/2000/svg\" version=\"1.1\" width=\"%dpx\" height=\"%dpx\" viewBox=\"%g %g %g %g\">\n",
		int(math.Ceil(r.W)), int(math.Ceil(r.H)), r.X, r.Y, r.W, r.H)
	if b.Title != "" {
		wf("  <title>%s</title>\n", escText(b.Title))
	}
	wf("  <rect x=\"%g\" y=\"%g\" width=\"%g\" height=\"%g\" fill=\"%s\"/>\n", r.X, r.Y, r.W, r.H, hexColor(bg))

	for _, it := range b.Items {
		bx := it.Bounds()
		c := bx.Center()
		if it.Rotation != 0 {
			wf("  <g id=\"item-%d\" data-kind=\"%s\" transform=\"rotate(%g %g %g)\">\n", it.ID, it.Kind(), it.Rotation, c.X, c.Y)
		} else {
			wf("  <g id=\"item-%d\" data-kind=\"%s\">\n", it.ID, it.Kind())
		}
		rad := it.BorderRadius

		switch p := it.Payload.(type) {
		case item.Image:
			wf("    <rect x=\"%g\" y=\"%g\" width=\"%g\" height=\"%g\" rx=\"%g\" fill=\"%s\" stroke=\"%s\" stroke-width=\"1\"/>\n",
				bx.X, bx.Y, bx.W, bx.H, rad, hexColor(imageFill), hexColor(frameStroke))
			if opt.LinkMedia && p.URL != "" {
				wf("    <image href=\"%s\" x=\"%g\" y=\"%g\" width=\"%g\" height=\"%g\" preserveAspectRatio=\"none\"/>\n",
					escAttr(p.URL), bx.X, bx.Y, bx.W, bx.H)
			} else {
				wf("    <text x=\"%g\" y=\"%g\" font-family=\"sans-serif\" font-size=\"12\" fill=\"%s\">%s</text>\n",
					bx.X+8, bx.Y+20, hexColor(labelInk), escText(label(p.URL, 64)))
			}
		case item.Video:
			wf("    <rect x=\"%g\" y=\"%g\" width=\"%g\" height=\"%g\" rx=\"%g\" fill=\"%s\"/>\n",
				bx.X, bx.Y, bx.W, bx.H, rad, hexColor(videoFill))
			s := math.Min(bx.W, bx.H) / 4
			wf("    <path d=\"M %g %g L %g %g L %g %g Z\" fill=\"%s\"/>\n",
				c.X-s/2, c.Y-s/2, c.X+s/2, c.Y, c.X-s/2, c.Y+s/2, hexColor(videoInk))
			wf("    <text x=\"%g\" y=\"%g\" font-family=\"sans-serif\" font-size=\"12\" fill=\"%s\">%s</text>\n",
				bx.X+8, bx.Y+20, hexColor(videoInk), escText(label(p.URL, 64)))
		case item.Text:
			st := p.Style
			size := st.FontSize
			if size <= 0 {
				size = item.DefaultFontSize
			}
			lh := st.LineHeight
			if lh <= 0 {
				lh = 1.2
			}
			font := st.FontFamily
			if font == "" {
				font = "sans-serif"
			}
			wf("    <text font-family=\"%s\" font-size=\"%g\" font-weight=\"%s\" fill=\"%s\"%s>\n",
				escAttr(font), size, escAttr(wght(st)), hexColor(parseColor(st.Color, labelInk)), variationStyle(st.Variation))
			y := bx.Y + item.TextPadding + size
			for _, line := range textLines(p.Content) {
				wf("      <tspan x=\"%g\" y=\"%g\">%s</tspan>\n", bx.X+item.TextPadding, y, escText(line))
				y += size * lh
			}
			wf("    </text>\n")
		case item.Code:
			wf("    <rect x=\"%g\" y=\"%g\" width=\"%g\" height=\"%g\" rx=\"%g\" fill=\"%s\" stroke=\"%s\" stroke-width=\"1\"/>\n",
				bx.X, bx.Y, bx.W, bx.H, rad, hexColor(codeFill), hexColor(frameStroke))
			const size, pad = 11.0, 8.0
			wf("    <text font-family=\"monospace\" font-size=\"%g\" fill=\"%s\">\n", size, hexColor(labelInk))
			y := bx.Y + pad + size
			for _, line := range fitLines(textLines(p.HTML), bx.H-2*pad, size*1.3) {
				wf("      <tspan x=\"%g\" y=\"%g\" xml:space=\"preserve\">%s</tspan>\n", bx.X+pad, y, escText(line))
				y += size * 1.3
			}
			wf("    </text>\n")
		case item.Drawing:
			vb := p.ViewBox
			if vb == "" {
				vb = fmt.Sprintf("0 0 %g %g", it.Original.W, it.Original.H)
			}
			wf("    <svg x=\"%g\" y=\"%g\" width=\"%g\" height=\"%g\" viewBox=\"%s\" preserveAspectRatio=\"none\" overflow=\"visible\">\n",
				bx.X, bx.Y, bx.W, bx.H, escAttr(vb))
			wf("      <path d=\"%s\" fill=\"none\" stroke=\"%s\" stroke-width=\"%g\" stroke-linecap=\"round\" stroke-linejoin=\"round\"/>\n",
				escAttr(p.Path), hexColor(parseColor(p.StrokeColor, black)), p.StrokeWidth)
			wf("    </svg>\n")
		}
		wf("  </g>\n")
	}
	wf("</svg>\n")

	if werr != nil {
		return fmt.Errorf("build svg: %w", werr)
	}
	if _, err := w.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("write svg: %w", err)
	}
	return nil
}

// variationStyle renders font-variation-settings with axes in tag order.
func variationStyle(v map[string]float64) string {
	if len(v) == 0 {
		return ""
	}
	tags := make([]string, 0, len(v))
	for t := range v {
		tags = append(tags, t)
	}
	sort.Strings(tags)
	parts := make([]string, len(tags))
	for i, t := range tags {
		parts[i] = fmt.Sprintf("'%s' %g", t, v[t])
	}
	return fmt.Sprintf(" style=\"font-variation-settings: %s\"", escAttr(strings.Join(parts, ", ")))
}

func escAttr(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		ch := s[i]
		switch ch {
		case '"':
			out = append(out, "&quot;"...)
		case '&':
			out = append(out, "&amp;"...)
		case '<':
			out = append(out, "&lt;"...)
		case '\n':
			out = append(out, ' ')
		case '\r':
		default:
			out = append(out, ch)
		}
	}
	return string(out)
}

func escText(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		ch := s[i]
		switch ch {
		case '&':
			out = append(out, "&amp;"...)
		case '<':
			out = append(out, "&lt;"...)
		case '>':
			out = append(out, "&gt;"...)
		default:
			out = append(out, ch)
		}
	}
	return string(out)
}
