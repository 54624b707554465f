/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package log

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func lastJSONLine(t *testing.T, b []byte) map[string]any {
	t.Helper()
	scanner := bufio.NewScanner(bytes.NewReader(b))
	var last string
	for scanner.Scan() {
		if s := strings.TrimSpace(scanner.Text()); s != "" {
			last = s
		}
	}
	if last == "" {
		t.Fatalf("no log lines found")
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(last), &m); err != nil {
		t.Fatalf("unmarshal json log: %v", err)
	}
	return m
}

// TestInitWritesStructuredFile verifies the rotated file handler receives JSON
// records with static and contextual attributes.
func TestInitWritesStructuredFile(t *testing.T) {
	fpath := filepath.Join(t.TempDir(), "canvas.json")
	var console bytes.Buffer
	Init(Options{Level: "debug", Format: "json", File: fpath, Writer: &console})
	t.Cleanup(func() {
		_ = Close()
		Init(Options{Writer: &bytes.Buffer{}})
	})

	l := WithOperation(WithComponent("persist"), "flush")
	WithItem(l, 7).Info("saved row", slog.String("table", "items"))
	if err := Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	b, err := os.ReadFile(fpath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	m := lastJSONLine(t, b)
	if m["app"] != AppName {
		t.Fatalf("missing app attr: %v", m["app"])
	}
	if _, ok := m["ver"].(string); !ok {
		t.Fatalf("missing ver attr")
	}
	if m["component"] != "persist" || m["op"] != "flush" {
		t.Fatalf("context attrs mismatch: %v", m)
	}
	if m["item"] != float64(7) {
		t.Fatalf("item attr = %v", m["item"])
	}
	// console got the same record
	if c := lastJSONLine(t, console.Bytes()); c["msg"] != "saved row" {
		t.Fatalf("console msg mismatch: %v", c["msg"])
	}
}

func TestContextAttrsAreAppended(t *testing.T) {
	var buf bytes.Buffer
	Init(Options{Format: "json", Writer: &buf})
	t.Cleanup(func() { Init(Options{Writer: &bytes.Buffer{}}) })

	ctx := ContextWith(context.Background(), slog.String("req", "r-1"))
	ctx = ContextWith(ctx, slog.String("user", "u-9"))
	L().InfoContext(ctx, "verify")

	m := lastJSONLine(t, buf.Bytes())
	if m["req"] != "r-1" || m["user"] != "u-9" {
		t.Fatalf("context attrs missing: %v", m)
	}
}

func TestDiscardDropsEverything(t *testing.T) {
	l := Discard()
	if l.Enabled(context.Background(), slog.LevelError) {
		t.Fatalf("discard logger should not be enabled")
	}
	l.Error("ignored", Err(os.ErrNotExist))
}
