/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package export

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"io"
	"math"

	"github.com/mjsxi/matts-infinite-canvas-sub000/internal/item"
	"github.com/mjsxi/matts-infinite-canvas-sub000/internal/vector"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// maxPNGSide caps the longer image side in pixels.
const maxPNGSide = 4096

// PNGOptions controls PNG export behavior.
// Width scales the board so the image is Width pixels wide; zero keeps one
// pixel per canvas unit. Either way the longer side is capped at maxPNGSide.
// Text is drawn unrotated with a fixed 7x13 face, so the PNG is a thumbnail
// rather than a faithful render.
type PNGOptions struct {
	Margin     float64
	Background string
	Width      int
}

// PNG rasterizes the board.
func PNG(w io.Writer, b Board, opt PNGOptions) error {
	img := Rasterize(b, opt)
	if err := png.Encode(w, img); err != nil {
		return fmt.Errorf("encode png: %w", err)
	}
	return nil
}

// Rasterize draws the board into a new RGBA image.
func Rasterize(b Board, opt PNGOptions) *image.RGBA {
	margin := opt.Margin
	if margin == 0 {
		margin = DefaultMargin
	}
	r := b.Bounds(margin)
	k := 1.0
	if opt.Width > 0 {
		k = float64(opt.Width) / r.W
	}
	k = math.Min(k, maxPNGSide/math.Max(r.W, r.H))
	pixW := int(math.Max(1, math.Ceil(r.W*k)))
	pixH := int(math.Max(1, math.Ceil(r.H*k)))

	img := image.NewRGBA(image.Rect(0, 0, pixW, pixH))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: parseColor(opt.Background, white)}, image.Point{}, draw.Src)

	Draw(img, b.Items, vector.Scale(k, k).Mul(vector.Translate(-r.X, -r.Y)))
	return img
}

// Draw paints items bottom to top into img; toPixels maps canvas space to
// image pixels.
func Draw(img *image.RGBA, items []*item.Item, toPixels vector.Affine2D) {
	k := math.Hypot(toPixels.A, toPixels.B)
	for _, it := range items {
		bx := it.Bounds()
		c := bx.Center()
		m := toPixels.Mul(vector.RotateAround(c, vector.Radians(it.Rotation)))
		inBox := bx.Contains

		switch p := it.Payload.(type) {
		case item.Image:
			fillShape(img, m, bx, inBox, imageFill)
			strokeQuad(img, m, bx, frameStroke)
			drawLabel(img, m.Apply(bx.Min()), label(p.URL, 32), labelInk)
		case item.Video:
			fillShape(img, m, bx, inBox, videoFill)
			s := math.Min(bx.W, bx.H) / 4
			tri := [3]vector.Pt{{X: c.X - s/2, Y: c.Y - s/2}, {X: c.X + s/2, Y: c.Y}, {X: c.X - s/2, Y: c.Y + s/2}}
			fillShape(img, m, bx, func(q vector.Pt) bool { return inTriangle(q, tri) }, videoInk)
			drawLabel(img, m.Apply(bx.Min()), label(p.URL, 32), videoInk)
		case item.Code:
			fillShape(img, m, bx, inBox, codeFill)
			strokeQuad(img, m, bx, frameStroke)
			drawLabel(img, m.Apply(bx.Min()), "</>", labelInk)
		case item.Text:
			ink := parseColor(p.Style.Color, labelInk)
			at := m.Apply(vector.Pt{X: bx.X + item.TextPadding, Y: bx.Y + item.TextPadding})
			for i, line := range fitLines(textLines(p.Content), bx.H*k, 13) {
				drawLine(img, at.Add(vector.Pt{Y: float64(i) * 13}), line, ink)
			}
		case item.Drawing:
			path, err := drawingPath(it, p)
			if err != nil {
				continue
			}
			width := math.Max(1, p.StrokeWidth*strokeScale(it, p)*k)
			strokePath(img, path.Transform(m), width, parseColor(p.StrokeColor, black))
		}
	}
}

// fillShape paints every pixel whose center maps back into local and passes
// inside. m maps item-local canvas space to pixels.
func fillShape(img *image.RGBA, m vector.Affine2D, local vector.Rect, inside func(vector.Pt) bool, col color.RGBA) {
	inv := m.Invert()
	corners := []vector.Pt{
		m.Apply(local.Min()),
		m.Apply(vector.Pt{X: local.X + local.W, Y: local.Y}),
		m.Apply(local.Max()),
		m.Apply(vector.Pt{X: local.X, Y: local.Y + local.H}),
	}
	bb, _ := vector.Bounds(corners)
	x0, y0 := clampInt(int(math.Floor(bb.X)), 0, img.Rect.Dx()), clampInt(int(math.Floor(bb.Y)), 0, img.Rect.Dy())
	x1, y1 := clampInt(int(math.Ceil(bb.X+bb.W)), 0, img.Rect.Dx()), clampInt(int(math.Ceil(bb.Y+bb.H)), 0, img.Rect.Dy())
	for y := y0; y < y1; y++ {
		for x := x0; x < x1; x++ {
			q := inv.Apply(vector.Pt{X: float64(x) + 0.5, Y: float64(y) + 0.5})
			if inside(q) {
				img.SetRGBA(x, y, col)
			}
		}
	}
}

// strokeQuad draws the 1px outline of a transformed rectangle.
func strokeQuad(img *image.RGBA, m vector.Affine2D, r vector.Rect, col color.RGBA) {
	pts := []vector.Pt{
		m.Apply(r.Min()),
		m.Apply(vector.Pt{X: r.X + r.W, Y: r.Y}),
		m.Apply(r.Max()),
		m.Apply(vector.Pt{X: r.X, Y: r.Y + r.H}),
	}
	for i := range pts {
		segment(img, pts[i], pts[(i+1)%len(pts)], 1, col)
	}
}

// strokePath flattens curves and stamps width-sized dots along each segment.
func strokePath(img *image.RGBA, p vector.Path, width float64, col color.RGBA) {
	var cur, start vector.Pt
	for _, c := range p.Cmds {
		switch c.Op {
		case vector.MoveTo:
			cur = vector.Pt{X: c.Data[0], Y: c.Data[1]}
			start = cur
		case vector.LineTo:
			next := vector.Pt{X: c.Data[0], Y: c.Data[1]}
			segment(img, cur, next, width, col)
			cur = next
		case vector.QuadTo:
			ctrl := vector.Pt{X: c.Data[0], Y: c.Data[1]}
			end := vector.Pt{X: c.Data[2], Y: c.Data[3]}
			const steps = 8
			prev := cur
			for i := 1; i <= steps; i++ {
				t := float64(i) / steps
				u := 1 - t
				q := cur.Mul(u * u).Add(ctrl.Mul(2 * u * t)).Add(end.Mul(t * t))
				segment(img, prev, q, width, col)
				prev = q
			}
			cur = end
		case vector.Close:
			segment(img, cur, start, width, col)
			cur = start
		}
	}
}

func segment(img *image.RGBA, a, b vector.Pt, width float64, col color.RGBA) {
	n := int(math.Ceil(a.Dist(b)))
	if n < 1 {
		n = 1
	}
	for i := 0; i <= n; i++ {
		t := float64(i) / float64(n)
		dot(img, a.Add(b.Sub(a).Mul(t)), width/2, col)
	}
}

func dot(img *image.RGBA, c vector.Pt, radius float64, col color.RGBA) {
	if radius <= 0.5 {
		x, y := int(math.Floor(c.X)), int(math.Floor(c.Y))
		if image.Pt(x, y).In(img.Rect) {
			img.SetRGBA(x, y, col)
		}
		return
	}
	x0, x1 := int(math.Floor(c.X-radius)), int(math.Ceil(c.X+radius))
	y0, y1 := int(math.Floor(c.Y-radius)), int(math.Ceil(c.Y+radius))
	for y := y0; y <= y1; y++ {
		for x := x0; x <= x1; x++ {
			if !image.Pt(x, y).In(img.Rect) {
				continue
			}
			if (vector.Pt{X: float64(x) + 0.5, Y: float64(y) + 0.5}).Dist(c) <= radius {
				img.SetRGBA(x, y, col)
			}
		}
	}
}

func inTriangle(p vector.Pt, t [3]vector.Pt) bool {
	sign := func(a, b, c vector.Pt) float64 { return (a.X-c.X)*(b.Y-c.Y) - (b.X-c.X)*(a.Y-c.Y) }
	d1, d2, d3 := sign(p, t[0], t[1]), sign(p, t[1], t[2]), sign(p, t[2], t[0])
	neg := d1 < 0 || d2 < 0 || d3 < 0
	pos := d1 > 0 || d2 > 0 || d3 > 0
	return !(neg && pos)
}

func drawLabel(img *image.RGBA, at vector.Pt, s string, col color.RGBA) {
	drawLine(img, at.Add(vector.Pt{X: 6, Y: 4}), s, col)
}

// drawLine writes s with its top-left at at.
func drawLine(img *image.RGBA, at vector.Pt, s string, col color.RGBA) {
	if s == "" {
		return
	}
	face := basicfont.Face7x13
	d := font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(col),
		Face: face,
		Dot:  fixed.P(int(math.Round(at.X)), int(math.Round(at.Y))+face.Ascent),
	}
	d.DrawString(s)
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// StrokeLine draws a segment of the given pixel width.
func StrokeLine(img *image.RGBA, a, b vector.Pt, width float64, col color.RGBA) {
	segment(img, a, b, width, col)
}
