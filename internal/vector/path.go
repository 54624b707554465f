/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package vector

import (
	"fmt"
	"strconv"
	"strings"
)

// Path commands. Only the subset produced by freehand drawing and needed by
// exporters is supported.

type PathOp uint8

const (
	MoveTo PathOp = iota
	LineTo
	QuadTo // quadratic bezier (cx, cy, x, y)
	Close
)

type PathCmd struct {
	Op   PathOp
	Data [4]float64 // enough for quad; unused slots are zero
}

type Path struct{ Cmds []PathCmd }

func (p *Path) MoveTo(x, y float64) {
	p.Cmds = append(p.Cmds, PathCmd{Op: MoveTo, Data: [4]float64{x, y}})
}
func (p *Path) LineTo(x, y float64) {
	p.Cmds = append(p.Cmds, PathCmd{Op: LineTo, Data: [4]float64{x, y}})
}
func (p *Path) QuadTo(cx, cy, x, y float64) {
	p.Cmds = append(p.Cmds, PathCmd{Op: QuadTo, Data: [4]float64{cx, cy, x, y}})
}
func (p *Path) Close() { p.Cmds = append(p.Cmds, PathCmd{Op: Close}) }

// Polyline builds a path that visits pts in order.
func Polyline(pts []Pt) Path {
	var p Path
	for i, pt := range pts {
		if i == 0 {
			p.MoveTo(pt.X, pt.Y)
			continue
		}
		p.LineTo(pt.X, pt.Y)
	}
	return p
}

// Points returns the on-curve points of the path (control points excluded).
func (p Path) Points() []Pt {
	out := make([]Pt, 0, len(p.Cmds))
	for _, c := range p.Cmds {
		switch c.Op {
		case MoveTo, LineTo:
			out = append(out, Pt{c.Data[0], c.Data[1]})
		case QuadTo:
			out = append(out, Pt{c.Data[2], c.Data[3]})
		}
	}
	return out
}

// Bounds returns an axis-aligned bounding box of the path, approximating
// curves by their control points.
func (p Path) Bounds() Rect {
	var pts []Pt
	for _, c := range p.Cmds {
		switch c.Op {
		case MoveTo, LineTo:
			pts = append(pts, Pt{c.Data[0], c.Data[1]})
		case QuadTo:
			pts = append(pts, Pt{c.Data[0], c.Data[1]}, Pt{c.Data[2], c.Data[3]})
		}
	}
	r, _ := Bounds(pts)
	return r
}

// Transform returns a copy of the path with m applied to every coordinate.
func (p Path) Transform(m Affine2D) Path {
	out := Path{Cmds: make([]PathCmd, len(p.Cmds))}
	for i, c := range p.Cmds {
		nc := PathCmd{Op: c.Op}
		switch c.Op {
		case MoveTo, LineTo:
			q := m.Apply(Pt{c.Data[0], c.Data[1]})
			nc.Data = [4]float64{q.X, q.Y}
		case QuadTo:
			cp := m.Apply(Pt{c.Data[0], c.Data[1]})
			q := m.Apply(Pt{c.Data[2], c.Data[3]})
			nc.Data = [4]float64{cp.X, cp.Y, q.X, q.Y}
		}
		out.Cmds[i] = nc
	}
	return out
}

func fnum(v float64) string { return strconv.FormatFloat(FloatRound(v, 2), 'f', -1, 64) }

// SVG renders the path as SVG path data ("M x y L x y ...").
func (p Path) SVG() string {
	var b strings.Builder
	for i, c := range p.Cmds {
		if i > 0 {
			b.WriteByte(' ')
		}
		switch c.Op {
		case MoveTo:
			b.WriteString("M " + fnum(c.Data[0]) + " " + fnum(c.Data[1]))
		case LineTo:
			b.WriteString("L " + fnum(c.Data[0]) + " " + fnum(c.Data[1]))
		case QuadTo:
			b.WriteString("Q " + fnum(c.Data[0]) + " " + fnum(c.Data[1]) + " " + fnum(c.Data[2]) + " " + fnum(c.Data[3]))
		case Close:
			b.WriteString("Z")
		}
	}
	return b.String()
}

// ParseSVGPath parses absolute M/L/Q/Z path data, the form produced by SVG.
// Commas are accepted as separators and a command letter may be followed by
// several coordinate groups.
func ParseSVGPath(d string) (Path, error) {
	toks := tokenizePath(d)
	var p Path
	var op byte
	for i := 0; i < len(toks); {
		t := toks[i]
		if len(t) == 1 && strings.ContainsAny(t, "MLQZmlqz") {
			op = strings.ToUpper(t)[0]
			i++
			if op == 'Z' {
				p.Close()
			}
			continue
		}
		need := map[byte]int{'M': 2, 'L': 2, 'Q': 4}[op]
		if need == 0 {
			return Path{}, fmt.Errorf("path: unexpected token %q", t)
		}
		if i+need > len(toks) {
			return Path{}, fmt.Errorf("path: truncated %c command", op)
		}
		var v [4]float64
		for k := 0; k < need; k++ {
			f, err := strconv.ParseFloat(toks[i+k], 64)
			if err != nil {
				return Path{}, fmt.Errorf("path: bad number %q: %w", toks[i+k], err)
			}
			v[k] = f
		}
		i += need
		switch op {
		case 'M':
			p.MoveTo(v[0], v[1])
			op = 'L' // implicit lineto after moveto
		case 'L':
			p.LineTo(v[0], v[1])
		case 'Q':
			p.QuadTo(v[0], v[1], v[2], v[3])
		}
	}
	return p, nil
}

func tokenizePath(d string) []string {
	var toks []string
	var cur strings.Builder
	flush := func() {
		if cur.Len() > 0 {
			toks = append(toks, cur.String())
			cur.Reset()
		}
	}
	for _, r := range d {
		switch {
		case r == ' ' || r == ',' || r == '\n' || r == '\t':
			flush()
		case strings.ContainsRune("MLQZmlqz", r):
			flush()
			toks = append(toks, string(r))
		case r == '-' && cur.Len() > 0 && !strings.HasSuffix(cur.String(), "e"):
			flush()
			cur.WriteRune(r)
		default:
			cur.WriteRune(r)
		}
	}
	flush()
	return toks
}

// ViewBox is the local coordinate frame of a drawing: "minX minY w h".
type ViewBox struct{ X, Y, W, H float64 }

func (v ViewBox) String() string {
	return fnum(v.X) + " " + fnum(v.Y) + " " + fnum(v.W) + " " + fnum(v.H)
}

// ParseViewBox parses "minX minY w h" (comma or space separated).
func ParseViewBox(s string) (ViewBox, error) {
	f := strings.FieldsFunc(s, func(r rune) bool { return r == ' ' || r == ',' })
	if len(f) != 4 {
		return ViewBox{}, fmt.Errorf("viewbox: want 4 numbers, got %q", s)
	}
	var v [4]float64
	for i, t := range f {
		n, err := strconv.ParseFloat(t, 64)
		if err != nil {
			return ViewBox{}, fmt.Errorf("viewbox: %w", err)
		}
		v[i] = n
	}
	if v[2] <= 0 || v[3] <= 0 {
		return ViewBox{}, fmt.Errorf("viewbox: non-positive size in %q", s)
	}
	return ViewBox{v[0], v[1], v[2], v[3]}, nil
}

// To maps the view box onto dst, scaling each axis independently.
func (v ViewBox) To(dst Rect) Affine2D {
	return Translate(dst.X, dst.Y).Mul(Scale(dst.W/v.W, dst.H/v.H)).Mul(Translate(-v.X, -v.Y))
}
