/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package item

import (
	"errors"
	"testing"
)

func TestDecodeRowValidatesSchema(t *testing.T) {
	good := []byte(`{"id":7,"item_type":"text","content":"hey","html_content":null,"x":1,"y":2,"width":100,"height":40,
		"rotation":0,"z_index":3,"font_size":24,"user_id":"u"}`)
	r, err := DecodeRow(good)
	if err != nil {
		t.Fatalf("DecodeRow: %v", err)
	}
	if r.ID != 7 || r.ZIndex != 3 || r.FontSize == nil || *r.FontSize != 24 {
		t.Fatalf("decoded = %+v", r)
	}

	bad := map[string]string{
		"missing id":    `{"item_type":"text","x":1,"y":2,"width":1,"height":1}`,
		"unknown type":  `{"id":1,"item_type":"sticker","x":1,"y":2,"width":1,"height":1}`,
		"zero width":    `{"id":1,"item_type":"image","x":1,"y":2,"width":0,"height":1}`,
		"string coords": `{"id":1,"item_type":"image","x":"1","y":2,"width":1,"height":1}`,
		"not json":      `{"id":`,
	}
	for name, raw := range bad {
		if _, err := DecodeRow([]byte(raw)); !errors.Is(err, ErrInvalidRow) {
			t.Fatalf("%s: expected ErrInvalidRow, got %v", name, err)
		}
	}
}

func TestDecodeCenterPoint(t *testing.T) {
	c, err := DecodeCenterPoint([]byte(`{"id":99,"x":10.5,"y":-3}`))
	if err != nil {
		t.Fatal(err)
	}
	if c.ID != CenterPointID || c.X != 10.5 || c.Y != -3 {
		t.Fatalf("center = %+v", c)
	}
	if _, err := DecodeCenterPoint([]byte(`{"x":1}`)); err == nil {
		t.Fatalf("missing y should fail")
	}
}
