/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package ui is the desktop client. The window itself needs the fyne build
// tag and cgo; hit testing, handle layout and status toasts are plain Go and
// shared by every build.
package ui

import (
	"log/slog"
	"net/url"

	"github.com/mjsxi/matts-infinite-canvas-sub000/internal/client"
	"github.com/mjsxi/matts-infinite-canvas-sub000/internal/config"
)

// Options configures Run.
type Options struct {
	Config config.AppConfig
	Client *client.Client
	Cache  *config.SessionCache
	// Page is the launch URL; a bootstrap token in its query is consumed.
	Page   *url.URL
	Logger *slog.Logger
}
