/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package telemetry is an opt-in sender for anonymous usage events and crash
// reports. It is disabled unless IC_TELEMETRY_OPT_IN is set and an endpoint
// is configured.
package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	applog "github.com/mjsxi/matts-infinite-canvas-sub000/internal/log"
	"github.com/mjsxi/matts-infinite-canvas-sub000/internal/version"
)

// Config holds runtime configuration for telemetry and crash uploads.
//
// Environment variables (read by FromEnv):
// - IC_TELEMETRY_OPT_IN: "1", "true", "yes" or "on" to enable
// - IC_TELEMETRY_URL: endpoint receiving JSON arrays of events
// - IC_CRASH_UPLOAD_URL: endpoint receiving plain-text crash reports
// - IC_TELEMETRY_TIMEOUT_MS: request timeout, default 1500
// - IC_TELEMETRY_DEBUG: log send attempts
type Config struct {
	OptIn        bool
	EventsURL    string
	CrashURL     string
	Timeout      time.Duration
	DebugLogging bool
	// BatchSize and BatchEvery bound how long events are held before a POST.
	BatchSize  int
	BatchEvery time.Duration
}

func FromEnv() Config {
	cfg := Config{
		OptIn:        parseBool(os.Getenv("IC_TELEMETRY_OPT_IN")),
		EventsURL:    strings.TrimSpace(os.Getenv("IC_TELEMETRY_URL")),
		CrashURL:     strings.TrimSpace(os.Getenv("IC_CRASH_UPLOAD_URL")),
		Timeout:      1500 * time.Millisecond,
		DebugLogging: os.Getenv("IC_TELEMETRY_DEBUG") != "",
	}
	if ms := strings.TrimSpace(os.Getenv("IC_TELEMETRY_TIMEOUT_MS")); ms != "" {
		if v, err := time.ParseDuration(ms + "ms"); err == nil && v > 0 {
			cfg.Timeout = v
		}
	}
	return cfg
}

func parseBool(v string) bool {
	s := strings.ToLower(strings.TrimSpace(v))
	return s == "1" || s == "true" || s == "yes" || s == "on"
}

// Event is one usage record. Props must not carry personal data.
type Event struct {
	Name    string         `json:"name"`
	TS      string         `json:"ts"`
	Run     string         `json:"run"`
	Version string         `json:"version"`
	OS      string         `json:"os"`
	Arch    string         `json:"arch"`
	Props   map[string]any `json:"props,omitempty"`
}

// Client batches events onto one background goroutine. It never blocks the
// caller; events beyond the queue capacity are dropped.
type Client struct {
	cfg    Config
	log    *slog.Logger
	cli    *http.Client
	run    string
	q      chan Event
	flush  chan chan struct{}
	once   sync.Once
	closed chan struct{}
	sent   sync.WaitGroup
}

var (
	defaultMu     sync.Mutex
	defaultClient *Client
)

func getDefault() *Client {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultClient == nil {
		defaultClient = New(FromEnv())
	}
	return defaultClient
}

// NewDefault creates and installs the package-level client.
func NewDefault(cfg Config) {
	c := New(cfg)
	defaultMu.Lock()
	prev := defaultClient
	defaultClient = c
	defaultMu.Unlock()
	prev.Close()
}

// New constructs a client. A disabled client starts no goroutine.
func New(cfg Config) *Client {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 16
	}
	if cfg.BatchEvery <= 0 {
		cfg.BatchEvery = 2 * time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 1500 * time.Millisecond
	}
	c := &Client{
		cfg:    cfg,
		log:    applog.WithComponent("telemetry"),
		cli:    &http.Client{Timeout: cfg.Timeout},
		run:    uuid.NewString(),
		q:      make(chan Event, 64),
		flush:  make(chan chan struct{}),
		closed: make(chan struct{}),
	}
	if c.Enabled() {
		c.sent.Add(1)
		go c.loop()
	}
	return c
}

// Enabled reports whether events are sent.
func (c *Client) Enabled() bool { return c != nil && c.cfg.OptIn && c.cfg.EventsURL != "" }

// Enabled reports whether the package-level client sends events.
func Enabled() bool { return getDefault().Enabled() }

// Event queues a named event.
func (c *Client) Event(name string, props map[string]any) {
	if !c.Enabled() || name == "" {
		return
	}
	ev := Event{
		Name: name, TS: time.Now().UTC().Format(time.RFC3339Nano), Run: c.run,
		Version: version.String(), OS: runtime.GOOS, Arch: runtime.GOARCH,
	}
	if len(props) > 0 {
		ev.Props = make(map[string]any, len(props))
		for k, v := range props {
			ev.Props[k] = v
		}
	}
	select {
	case c.q <- ev:
	default:
	}
}

// Track queues an event on the package-level client.
func Track(name string, props map[string]any) { getDefault().Event(name, props) }

// Flush sends the queued events and waits for the POST or ctx.
func (c *Client) Flush(ctx context.Context) {
	if !c.Enabled() {
		return
	}
	done := make(chan struct{})
	select {
	case c.flush <- done:
	case <-c.closed:
		return
	case <-ctx.Done():
		return
	}
	select {
	case <-done:
	case <-ctx.Done():
	}
}

// Flush the package-level client.
func Flush(ctx context.Context) { getDefault().Flush(ctx) }

// Close stops the background goroutine after a final send.
func (c *Client) Close() {
	if c == nil {
		return
	}
	c.once.Do(func() { close(c.closed) })
	c.sent.Wait()
}

func (c *Client) loop() {
	defer c.sent.Done()
	tick := time.NewTicker(c.cfg.BatchEvery)
	defer tick.Stop()
	var batch []Event
	send := func() {
		if len(batch) > 0 {
			c.post(batch)
			batch = nil
		}
	}
	add := func(ev Event) {
		batch = append(batch, ev)
		if len(batch) >= c.cfg.BatchSize {
			send()
		}
	}
	drain := func() {
		for len(c.q) > 0 {
			add(<-c.q)
		}
		send()
	}
	for {
		select {
		case <-c.closed:
			drain()
			return
		case ev := <-c.q:
			add(ev)
		case done := <-c.flush:
			drain()
			close(done)
		case <-tick.C:
			send()
		}
	}
}

func (c *Client) post(batch []Event) {
	buf, err := json.Marshal(batch)
	if err != nil {
		return
	}
	req, err := http.NewRequest(http.MethodPost, c.cfg.EventsURL, bytes.NewReader(buf))
	if err != nil {
		return
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.cli.Do(req)
	if err != nil {
		if c.cfg.DebugLogging {
			c.log.Debug("telemetry send failed", applog.Err(err))
		}
		return
	}
	_ = resp.Body.Close()
	if c.cfg.DebugLogging {
		c.log.Debug("telemetry batch sent", slog.Int("events", len(batch)))
	}
}

// UploadCrash posts a crash report if the user opted in and a crash URL is set.
func (c *Client) UploadCrash(report []byte) {
	if c == nil || !c.cfg.OptIn || c.cfg.CrashURL == "" {
		return
	}
	b := append([]byte(nil), report...)
	c.sent.Add(1)
	go func() {
		defer c.sent.Done()
		req, err := http.NewRequest(http.MethodPost, c.cfg.CrashURL, bytes.NewReader(b))
		if err != nil {
			return
		}
		req.Header.Set("Content-Type", "text/plain; charset=utf-8")
		resp, err := c.cli.Do(req)
		if err != nil {
			if c.cfg.DebugLogging {
				c.log.Debug("crash upload failed", applog.Err(err))
			}
			return
		}
		_ = resp.Body.Close()
	}()
}

// UploadCrash using the package-level client.
func UploadCrash(report []byte) { getDefault().UploadCrash(report) }
