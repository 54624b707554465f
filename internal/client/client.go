/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package client talks to the whiteboard server: the rows API, the auth
// endpoints, blob uploads and the websocket change feed. One Client serves
// as the engine's backend, authenticator and feed.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/mjsxi/matts-infinite-canvas-sub000/internal/board"
	"github.com/mjsxi/matts-infinite-canvas-sub000/internal/persist"
)

// Client is safe for concurrent use.
type Client struct {
	BaseURL string
	client  *http.Client

	mu    sync.RWMutex
	token string
}

// New creates a client. baseURL may include a trailing slash; it will be
// normalized.
func New(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

// Token returns the session token sent with requests.
func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// SetToken replaces the session token; empty sends requests as a guest.
func (c *Client) SetToken(tok string) {
	c.mu.Lock()
	c.token = tok
	c.mu.Unlock()
}

// HTTPError is a non-2xx answer. It unwraps to persist.ErrNotFound for 404
// and to board.ErrUnauthorized for 401 and 403.
type HTTPError struct {
	Method  string
	Path    string
	Status  int
	Message string
}

func (e *HTTPError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("server %s %s: %d %s", e.Method, e.Path, e.Status, e.Message)
	}
	return fmt.Sprintf("server %s %s: %d %s", e.Method, e.Path, e.Status, http.StatusText(e.Status))
}

func (e *HTTPError) Unwrap() error {
	switch e.Status {
	case http.StatusNotFound:
		return persist.ErrNotFound
	case http.StatusUnauthorized, http.StatusForbidden:
		return board.ErrUnauthorized
	}
	return nil
}

func (c *Client) url(path string) string { return c.BaseURL + path }

// Resolve turns a server-relative URL into an absolute one.
func (c *Client) Resolve(ref string) string {
	if !strings.HasPrefix(ref, "/") {
		return ref
	}
	return c.BaseURL + ref
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.url(path), body)
	if err != nil {
		return nil, err
	}
	if tok := c.Token(); tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	return req, nil
}

// doJSON sends in as JSON (nil for no body) and decodes the answer into out
// (nil to discard it).
func (c *Client) doJSON(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode %s body: %w", path, err)
		}
		body = bytes.NewReader(b)
	}
	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return readError(req, resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", req.URL.Path, err)
	}
	return nil
}

func readError(req *http.Request, resp *http.Response) error {
	var body struct {
		Error string `json:"error"`
	}
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	_ = json.Unmarshal(b, &body)
	return &HTTPError{Method: req.Method, Path: req.URL.Path, Status: resp.StatusCode, Message: body.Error}
}

func wsURL(base, path string, q url.Values) (string, error) {
	u, err := url.Parse(base + path)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}
