/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package board

import "github.com/mjsxi/matts-infinite-canvas-sub000/internal/item"

// Access is the caller's authorization snapshot.
type Access struct {
	Authenticated bool
	Admin         bool
	UserID        string
	// OwnersMayEdit lets a non-admin modify items it created.
	OwnersMayEdit bool
}

// Guest is the unauthenticated access level.
var Guest = Access{}

// CanCreate reports whether new items may be placed.
func (a Access) CanCreate() bool {
	return a.Authenticated && (a.Admin || a.OwnersMayEdit)
}

// CanEdit reports whether it may be selected for editing, transformed or deleted.
func (a Access) CanEdit(it *item.Item) bool {
	if !a.Authenticated {
		return false
	}
	if a.Admin {
		return true
	}
	return a.OwnersMayEdit && a.UserID != "" && it.OwnerID == a.UserID
}
