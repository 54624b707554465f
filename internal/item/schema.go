/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package item

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	gojsonschema "github.com/xeipuuv/gojsonschema"
)

//go:embed row.schema.json
var rowSchemaJSON []byte

//go:embed center.schema.json
var centerSchemaJSON []byte

var (
	schemaOnce   sync.Once
	rowSchema    *gojsonschema.Schema
	centerSchema *gojsonschema.Schema
	schemaErr    error
)

func loadSchemas() error {
	schemaOnce.Do(func() {
		rowSchema, schemaErr = gojsonschema.NewSchema(gojsonschema.NewBytesLoader(rowSchemaJSON))
		if schemaErr != nil {
			return
		}
		centerSchema, schemaErr = gojsonschema.NewSchema(gojsonschema.NewBytesLoader(centerSchemaJSON))
	})
	return schemaErr
}

func validate(s *gojsonschema.Schema, raw []byte, what string) error {
	res, err := s.Validate(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return fmt.Errorf("%w: %s is not JSON: %v", ErrInvalidRow, what, err)
	}
	if !res.Valid() {
		msgs := make([]string, 0, len(res.Errors()))
		for _, e := range res.Errors() {
			msgs = append(msgs, e.String())
		}
		return fmt.Errorf("%w: %s", ErrInvalidRow, strings.Join(msgs, "; "))
	}
	return nil
}

// DecodeRow validates raw against the items row schema and decodes it.
func DecodeRow(raw []byte) (Row, error) {
	if err := loadSchemas(); err != nil {
		return Row{}, fmt.Errorf("item schema: %w", err)
	}
	if err := validate(rowSchema, raw, "item row"); err != nil {
		return Row{}, err
	}
	var r Row
	if err := json.Unmarshal(raw, &r); err != nil {
		return Row{}, fmt.Errorf("%w: %v", ErrInvalidRow, err)
	}
	return r, nil
}

// DecodeCenterPoint validates and decodes a center-point row. The id is
// forced to CenterPointID.
func DecodeCenterPoint(raw []byte) (CenterPoint, error) {
	if err := loadSchemas(); err != nil {
		return CenterPoint{}, fmt.Errorf("center schema: %w", err)
	}
	if err := validate(centerSchema, raw, "center point"); err != nil {
		return CenterPoint{}, err
	}
	var c CenterPoint
	if err := json.Unmarshal(raw, &c); err != nil {
		return CenterPoint{}, fmt.Errorf("%w: %v", ErrInvalidRow, err)
	}
	c.ID = CenterPointID
	return c, nil
}
