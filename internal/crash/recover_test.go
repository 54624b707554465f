/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package crash

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// TestRecoverReportsAndExits runs Recover on a panicking main and checks the
// report and the requested exit code without ending the test process.
func TestRecoverReportsAndExits(t *testing.T) {
	stderr := os.Stderr
	r, w, _ := os.Pipe()
	os.Stderr = w
	t.Cleanup(func() {
		_ = w.Close()
		os.Stderr = stderr
		_, _ = io.Copy(io.Discard, r)
	})

	code := 0
	exit := exitFn
	exitFn = func(c int) { code = c }
	t.Cleanup(func() { exitFn = exit })

	root := t.TempDir()
	SetDir(root)
	t.Cleanup(func() { SetDir("") })

	func() {
		defer Recover()
		panic("feed closed twice")
	}()

	reports, _ := filepath.Glob(filepath.Join(root, "crash-*.log"))
	if len(reports) != 1 {
		t.Fatalf("want one crash report in %s, got %v", root, reports)
	}
	b, err := os.ReadFile(reports[0])
	if err != nil {
		t.Fatalf("read report: %v", err)
	}
	report := string(b)
	if !strings.Contains(report, "Panic: feed closed twice") || !strings.Contains(report, "Where: main") {
		t.Fatalf("report misses the panic: %s", report)
	}
	if code != 2 {
		t.Fatalf("exit code: got %d want 2", code)
	}
}
