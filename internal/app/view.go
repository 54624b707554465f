/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package app

import (
	"context"
	"io"

	"github.com/mjsxi/matts-infinite-canvas-sub000/internal/board"
	"github.com/mjsxi/matts-infinite-canvas-sub000/internal/item"
	"github.com/mjsxi/matts-infinite-canvas-sub000/internal/persist"
	"github.com/mjsxi/matts-infinite-canvas-sub000/internal/vector"
	"github.com/mjsxi/matts-infinite-canvas-sub000/internal/viewport"
)

// StatusKind classifies a status message.
type StatusKind string

const (
	StatusInfo  StatusKind = "info"
	StatusError StatusKind = "error"
)

// Status is a dismissible, non-blocking message for the user.
type Status struct {
	Kind    StatusKind
	Message string
}

// StatusSink receives status messages.
type StatusSink interface {
	Status(s Status)
}

// View renders the board. All calls happen on the event loop.
type View interface {
	StatusSink
	// Materialize creates the view of it; entrance requests the fade-in
	// played for items placed by another client.
	Materialize(it *item.Item, entrance bool)
	// Update redraws it after a geometry, content or local state change.
	Update(it *item.Item)
	// Pool releases the view of an item that scrolled out of sight.
	Pool(id int64)
	// Remove drops the view of a deleted item.
	Remove(id int64)
	// Restack applies new z-indices.
	Restack(items []*item.Item)
	Select(prev, next int64)
	ApplyTransform(t viewport.Transform)
	ShowCenter(p vector.Pt, visible bool)
	// Preview shows the in-progress stroke in screen space; nil clears it.
	Preview(screen []vector.Pt)
	Confirm(prompt string) bool
}

// NopView ignores everything and confirms every prompt. Embed it to
// implement only part of View.
type NopView struct{}

func (NopView) Status(Status)                     {}
func (NopView) Materialize(*item.Item, bool)      {}
func (NopView) Update(*item.Item)                 {}
func (NopView) Pool(int64)                        {}
func (NopView) Remove(int64)                      {}
func (NopView) Restack([]*item.Item)              {}
func (NopView) Select(int64, int64)               {}
func (NopView) ApplyTransform(viewport.Transform) {}
func (NopView) ShowCenter(vector.Pt, bool)        {}
func (NopView) Preview([]vector.Pt)               {}
func (NopView) Confirm(string) bool               { return true }

// Blob is a stored upload.
type Blob struct {
	URL    string `json:"url"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// Backend is the remote store the engine reads and writes.
type Backend interface {
	persist.Store
	board.IDSource
	ListItems(ctx context.Context) ([]item.Row, error)
	// GetCenter returns persist.ErrNotFound when no center was set.
	GetCenter(ctx context.Context) (item.CenterPoint, error)
	PutCenter(ctx context.Context, c item.CenterPoint) error
	Upload(ctx context.Context, filename string, r io.Reader) (Blob, error)
}
