/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package textlayout

import (
	"math"
	"testing"
)

func TestMeasureSingleLineScalesWithFontSize(t *testing.T) {
	m := New(nil)
	small := m.Measure("hello", Spec{FontSize: 13})
	if small.Width != 35 { // 5 glyphs * 7px
		t.Fatalf("width at 13px = %v", small.Width)
	}
	big := m.Measure("hello", Spec{FontSize: 26, LineHeight: 1})
	if big.Width != 70 || big.Height != 26 {
		t.Fatalf("26px box = %+v", big)
	}
}

func TestMeasureWrapsOnWords(t *testing.T) {
	m := New(BasicProvider{})
	b := m.Measure("aaa bbb ccc", Spec{FontSize: 13, MaxWidth: 40})
	if len(b.Lines) != 3 {
		t.Fatalf("lines = %q", b.Lines)
	}
	if math.Abs(b.Height-3*13*1.2) > 1e-9 {
		t.Fatalf("height = %v", b.Height)
	}
	b = m.Measure("one\ntwo three", Spec{FontSize: 13})
	if len(b.Lines) != 2 || b.Lines[1] != "two three" {
		t.Fatalf("newline split = %q", b.Lines)
	}
}
