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
	"image/color"
	"io"
	"math"

	"github.com/jung-kurt/gofpdf"
	"github.com/mjsxi/matts-infinite-canvas-sub000/internal/item"
	"github.com/mjsxi/matts-infinite-canvas-sub000/internal/vector"
)

// maxPDFSide is the largest page side most readers accept, in pt.
const maxPDFSide = 14400

// PDFOptions controls PDF export behavior.
// One canvas pixel maps to one point unless the board exceeds maxPDFSide, in
// which case the page is scaled down uniformly. Text is set in the built-in
// Helvetica and Courier faces so no font embedding is needed.
type PDFOptions struct {
	Margin     float64
	Background string
	Author     string
}

// PDF writes the board to a single-page PDF sized to its bounds.
func PDF(w io.Writer, b Board, opt PDFOptions) error {
	margin := opt.Margin
	if margin == 0 {
		margin = DefaultMargin
	}
	r := b.Bounds(margin)
	k := math.Min(1, maxPDFSide/math.Max(r.W, r.H))
	pageW, pageH := r.W*k, r.H*k

	pdf := gofpdf.NewCustom(&gofpdf.InitType{
		UnitStr: "pt",
		Size:    gofpdf.SizeType{Wd: pageW, Ht: pageH},
	})
	if b.Title != "" {
		pdf.SetTitle(b.Title, true)
	}
	if opt.Author != "" {
		pdf.SetAuthor(opt.Author, true)
	}
	pdf.SetCreator("infinicanvas", true)
	pdf.SetMargins(0, 0, 0)
	pdf.SetAutoPageBreak(false, 0)
	pdf.AddPage()
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	setFillColor(pdf, parseColor(opt.Background, white))
	pdf.Rect(0, 0, pageW, pageH, "F")

	// page maps canvas space onto the page.
	page := vector.Scale(k, k).Mul(vector.Translate(-r.X, -r.Y))

	for _, it := range b.Items {
		bx := it.Bounds()
		o := page.Apply(bx.Min())
		x, y, bw, bh := o.X, o.Y, bx.W*k, bx.H*k
		c := page.Apply(bx.Center())
		rad := it.BorderRadius * k

		pdf.TransformBegin()
		if it.Rotation != 0 {
			// gofpdf rotates counter-clockwise; canvas rotation is clockwise.
			pdf.TransformRotate(-it.Rotation, c.X, c.Y)
		}
		switch p := it.Payload.(type) {
		case item.Image:
			setFillColor(pdf, imageFill)
			setDrawColor(pdf, frameStroke)
			pdf.SetLineWidth(1)
			roundedRect(pdf, x, y, bw, bh, rad, "FD")
			caption(pdf, tr, x, y, bw, label(p.URL, 64), labelInk)
		case item.Video:
			setFillColor(pdf, videoFill)
			roundedRect(pdf, x, y, bw, bh, rad, "F")
			s := math.Min(bw, bh) / 4
			setFillColor(pdf, videoInk)
			pdf.Polygon([]gofpdf.PointType{
				{X: c.X - s/2, Y: c.Y - s/2},
				{X: c.X + s/2, Y: c.Y},
				{X: c.X - s/2, Y: c.Y + s/2},
			}, "F")
			caption(pdf, tr, x, y, bw, label(p.URL, 64), videoInk)
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
			style := ""
			if bold(wght(st)) {
				style = "B"
			}
			pdf.SetFont("Helvetica", style, size*k)
			setTextColor(pdf, parseColor(st.Color, labelInk))
			ty := y + (item.TextPadding+size)*k
			for _, line := range textLines(p.Content) {
				pdf.Text(x+item.TextPadding*k, ty, tr(line))
				ty += size * lh * k
			}
		case item.Code:
			setFillColor(pdf, codeFill)
			setDrawColor(pdf, frameStroke)
			pdf.SetLineWidth(1)
			roundedRect(pdf, x, y, bw, bh, rad, "FD")
			const size, pad = 11.0, 8.0
			pdf.SetFont("Courier", "", size*k)
			setTextColor(pdf, labelInk)
			ty := y + (pad+size)*k
			for _, line := range fitLines(textLines(p.HTML), bx.H-2*pad, size*1.3) {
				pdf.Text(x+pad*k, ty, tr(line))
				ty += size * 1.3 * k
			}
		case item.Drawing:
			path, err := drawingPath(it, p)
			if err != nil {
				pdf.TransformEnd()
				return fmt.Errorf("build pdf: %w", err)
			}
			setDrawColor(pdf, parseColor(p.StrokeColor, black))
			pdf.SetLineWidth(p.StrokeWidth * strokeScale(it, p) * k)
			pdf.SetLineCapStyle("round")
			pdf.SetLineJoinStyle("round")
			tracePath(pdf, path.Transform(page))
			pdf.DrawPath("D")
		}
		pdf.TransformEnd()
	}

	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("write pdf: %w", err)
	}
	return nil
}

func tracePath(pdf *gofpdf.Fpdf, p vector.Path) {
	for _, c := range p.Cmds {
		switch c.Op {
		case vector.MoveTo:
			pdf.MoveTo(c.Data[0], c.Data[1])
		case vector.LineTo:
			pdf.LineTo(c.Data[0], c.Data[1])
		case vector.QuadTo:
			pdf.CurveTo(c.Data[0], c.Data[1], c.Data[2], c.Data[3])
		case vector.Close:
			pdf.ClosePath()
		}
	}
}

// caption writes a one-line label inside the top of a box.
func caption(pdf *gofpdf.Fpdf, tr func(string) string, x, y, w float64, s string, ink color.RGBA) {
	if s == "" || w < 16 {
		return
	}
	pdf.SetFont("Helvetica", "", 10)
	setTextColor(pdf, ink)
	pdf.Text(x+8, y+18, tr(s))
}

func setDrawColor(pdf *gofpdf.Fpdf, c color.RGBA) {
	pdf.SetDrawColor(int(c.R), int(c.G), int(c.B))
}

func setFillColor(pdf *gofpdf.Fpdf, c color.RGBA) {
	pdf.SetFillColor(int(c.R), int(c.G), int(c.B))
}

func setTextColor(pdf *gofpdf.Fpdf, c color.RGBA) {
	pdf.SetTextColor(int(c.R), int(c.G), int(c.B))
}

// roundedRect draws a rectangle whose corners are quadratic curves of radius r.
func roundedRect(pdf *gofpdf.Fpdf, x, y, w, h, r float64, style string) {
	r = math.Min(r, math.Min(w, h)/2)
	if r <= 0 {
		pdf.Rect(x, y, w, h, style)
		return
	}
	pdf.MoveTo(x+r, y)
	pdf.LineTo(x+w-r, y)
	pdf.CurveTo(x+w, y, x+w, y+r)
	pdf.LineTo(x+w, y+h-r)
	pdf.CurveTo(x+w, y+h, x+w-r, y+h)
	pdf.LineTo(x+r, y+h)
	pdf.CurveTo(x, y+h, x, y+h-r)
	pdf.LineTo(x, y+r)
	pdf.CurveTo(x, y, x+r, y)
	pdf.ClosePath()
	pdf.DrawPath(style)
}
