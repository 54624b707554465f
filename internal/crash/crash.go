/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package crash turns panics into logged crash reports.
package crash

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"runtime/debug"
	"sync"
	"time"

	applog "github.com/mjsxi/matts-infinite-canvas-sub000/internal/log"
	"github.com/mjsxi/matts-infinite-canvas-sub000/internal/telemetry"
	"github.com/mjsxi/matts-infinite-canvas-sub000/internal/version"
)

// exitFn is used to allow testing of Recover without terminating the test process.
var exitFn = os.Exit

var (
	mu  sync.Mutex
	dir string
)

// SetDir sets where reports are written; empty selects os.TempDir().
func SetDir(d string) {
	mu.Lock()
	dir = d
	mu.Unlock()
}

func reportDir() string {
	mu.Lock()
	defer mu.Unlock()
	if dir == "" {
		return os.TempDir()
	}
	return dir
}

// Recover captures a panic, logs it with its stack, writes a report and
// exits with code 2.
//
// Usage: defer crash.Recover()
func Recover() {
	if r := recover(); r != nil {
		path := handle("main", r, debug.Stack())
		l := applog.WithComponent("crash")
		if _, err := fmt.Fprintf(os.Stderr, "A fatal error occurred. A crash report was saved to: %s\n", path); err != nil {
			l.Error("failed to write crash message to stderr", applog.Err(err))
		}
		if _, err := fmt.Fprintf(os.Stderr, "Version: %s\nOS/Arch: %s/%s\n", version.String(), runtime.GOOS, runtime.GOARCH); err != nil {
			l.Error("failed to write version info to stderr", applog.Err(err))
		}
		exitFn(2)
	}
}

// Guard runs f and reports a panic instead of propagating it. The event
// loop wraps each task in Guard so one bad task cannot stop the loop.
func Guard(where string, f func()) (panicked bool) {
	defer func() {
		if r := recover(); r != nil {
			handle(where, r, debug.Stack())
			panicked = true
		}
	}()
	f()
	return false
}

func handle(where string, r any, stack []byte) string {
	l := applog.WithComponent("crash")
	l.Error("panic recovered", slog.String("where", where), slog.Any("panic", r), slog.String("stack", string(stack)))
	path, err := writeReport(where, r, stack)
	if err != nil {
		l.Error("crash report not written", applog.Err(err), slog.String("path", path))
	}
	return path
}

func writeReport(where string, panicVal any, stack []byte) (string, error) {
	d := reportDir()
	if err := os.MkdirAll(d, 0o755); err != nil {
		return d, err
	}
	stamp := time.Now().Format("20060102-150405.000")
	path := filepath.Join(d, fmt.Sprintf("crash-%s.log", stamp))

	var buf bytes.Buffer
	_, _ = fmt.Fprintf(&buf, "InfiniCanvas Crash Report\n")
	_, _ = fmt.Fprintf(&buf, "Timestamp: %s\n", time.Now().Format(time.RFC3339))
	_, _ = fmt.Fprintf(&buf, "Version: %s\n", version.String())
	_, _ = fmt.Fprintf(&buf, "OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
	_, _ = fmt.Fprintf(&buf, "Where: %s\n", where)
	_, _ = fmt.Fprintf(&buf, "\nPanic: %v\n\n", panicVal)
	_, _ = fmt.Fprintf(&buf, "Stack:\n%s\n", string(stack))

	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return path, err
	}
	// uploaded only when the user opted in
	telemetry.UploadCrash(buf.Bytes())
	return path, nil
}
