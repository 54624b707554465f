/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package textlayout measures text blocks so new text items get a box that
// fits their content. Measurement is deterministic: glyph advances come from
// x/image's basicfont face scaled to the requested size.
package textlayout

import (
	"math"
	"strings"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// Spec describes the text to measure.
type Spec struct {
	FontSize   float64 // px
	LineHeight float64 // multiple of FontSize; 0 means 1.2
	// MaxWidth wraps lines at word boundaries when > 0.
	MaxWidth float64
}

// Box is the laid out result in px.
type Box struct {
	Lines  []string
	Width  float64
	Height float64
}

// Provider supplies the face used for advances and its nominal pixel size.
type Provider interface {
	Face() (face font.Face, nominalPx float64)
}

// BasicProvider uses basicfont.Face7x13.
type BasicProvider struct{}

func (BasicProvider) Face() (font.Face, float64) { return basicfont.Face7x13, 13 }

// Measurer lays out text with a Provider.
type Measurer struct{ Provider Provider }

// New returns a measurer using p, or BasicProvider when p is nil.
func New(p Provider) *Measurer {
	if p == nil {
		p = BasicProvider{}
	}
	return &Measurer{Provider: p}
}

// Measure breaks text on newlines and, if MaxWidth is set, on spaces.
func (m *Measurer) Measure(text string, spec Spec) Box {
	face, nominal := m.Provider.Face()
	size := spec.FontSize
	if size <= 0 {
		size = nominal
	}
	lh := spec.LineHeight
	if lh <= 0 {
		lh = 1.2
	}
	k := size / nominal
	adv := func(s string) float64 { return px(font.MeasureString(face, s)) * k }

	var box Box
	for _, para := range strings.Split(text, "\n") {
		if spec.MaxWidth <= 0 {
			box.Lines = append(box.Lines, para)
			continue
		}
		line := ""
		for _, word := range strings.Fields(para) {
			cand := word
			if line != "" {
				cand = line + " " + word
			}
			if line != "" && adv(cand) > spec.MaxWidth {
				box.Lines = append(box.Lines, line)
				line = word
				continue
			}
			line = cand
		}
		box.Lines = append(box.Lines, line)
	}
	for _, l := range box.Lines {
		box.Width = math.Max(box.Width, adv(l))
	}
	box.Height = float64(len(box.Lines)) * size * lh
	return box
}

func px(v fixed.Int26_6) float64 { return float64(v) / 64 }
