/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package telemetry

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type sink struct {
	mu      sync.Mutex
	batches [][]Event
	crashes [][]byte
}

func (s *sink) server(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/events", func(w http.ResponseWriter, r *http.Request) {
		var batch []Event
		if err := json.NewDecoder(r.Body).Decode(&batch); err != nil {
			t.Errorf("bad event json: %v", err)
		}
		s.mu.Lock()
		s.batches = append(s.batches, batch)
		s.mu.Unlock()
	})
	mux.HandleFunc("/crash", func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		s.mu.Lock()
		s.crashes = append(s.crashes, b)
		s.mu.Unlock()
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestClient_BatchesEventsAndUploadsCrash(t *testing.T) {
	s := &sink{}
	srv := s.server(t)
	c := New(Config{OptIn: true, EventsURL: srv.URL + "/events", CrashURL: srv.URL + "/crash", Timeout: 2 * time.Second, BatchEvery: time.Hour})

	if !c.Enabled() {
		t.Fatalf("expected client to be enabled")
	}
	c.Event("item_created", map[string]any{"kind": "text"})
	c.Event("session_login", nil)
	c.Flush(context.Background())

	s.mu.Lock()
	if len(s.batches) != 1 || len(s.batches[0]) != 2 {
		t.Fatalf("batches = %v", s.batches)
	}
	first := s.batches[0][0]
	s.mu.Unlock()
	if first.Name != "item_created" || first.Props["kind"] != "text" || first.Run == "" || first.TS == "" {
		t.Fatalf("event = %+v", first)
	}

	c.UploadCrash([]byte("STACKTRACE"))
	c.Close()
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.crashes) != 1 || string(s.crashes[0]) != "STACKTRACE" {
		t.Fatalf("crashes = %q", s.crashes)
	}
}

func TestClient_BatchSizeTriggersSend(t *testing.T) {
	s := &sink{}
	srv := s.server(t)
	c := New(Config{OptIn: true, EventsURL: srv.URL + "/events", BatchSize: 2, BatchEvery: time.Hour})
	c.Event("a", nil)
	c.Event("b", nil)
	c.Event("c", nil)
	c.Close()
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.batches) != 2 || len(s.batches[0]) != 2 || len(s.batches[1]) != 1 {
		t.Fatalf("batches = %v", s.batches)
	}
}

func TestClient_DisabledAndEmptyEventName(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
	}))
	defer srv.Close()

	c := New(Config{OptIn: false, EventsURL: srv.URL + "/events", CrashURL: srv.URL + "/crash", Timeout: time.Second})
	if c.Enabled() {
		t.Fatalf("expected disabled client")
	}
	c.Event("ignored", nil)
	c.UploadCrash([]byte("ignored"))
	c.Flush(context.Background())
	c.Close()

	c2 := New(Config{OptIn: true, EventsURL: srv.URL + "/events", Timeout: time.Second})
	c2.Event("", nil)
	c2.Flush(context.Background())
	c2.Close()
	if atomic.LoadInt32(&hits) != 0 {
		t.Fatalf("expected no requests, got %d", hits)
	}
}

func TestClient_SendErrorsAreSwallowed(t *testing.T) {
	c := New(Config{
		OptIn: true, EventsURL: "http://127.0.0.1:1/events", CrashURL: "http://127.0.0.1:1/crash",
		Timeout: 50 * time.Millisecond, DebugLogging: true,
	})
	c.Event("err", map[string]any{"a": 1})
	c.Flush(context.Background())
	c.UploadCrash([]byte("oops"))
	c.Close()
}

func TestFromEnv(t *testing.T) {
	t.Setenv("IC_TELEMETRY_OPT_IN", "true")
	t.Setenv("IC_TELEMETRY_URL", "http://127.0.0.1:0")
	t.Setenv("IC_CRASH_UPLOAD_URL", "")
	t.Setenv("IC_TELEMETRY_TIMEOUT_MS", "100")

	cfg := FromEnv()
	if !cfg.OptIn || cfg.EventsURL == "" || cfg.Timeout != 100*time.Millisecond {
		t.Fatalf("FromEnv did not parse correctly: %+v", cfg)
	}
	NewDefault(cfg)
	if !Enabled() {
		t.Fatalf("default Enabled should be true with env config")
	}
	NewDefault(Config{})
	if Enabled() {
		t.Fatalf("default client should be replaceable")
	}
}
