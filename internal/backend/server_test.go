/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mjsxi/matts-infinite-canvas-sub000/internal/config"
	"github.com/mjsxi/matts-infinite-canvas-sub000/internal/item"
	"github.com/mjsxi/matts-infinite-canvas-sub000/internal/realtime"
	"github.com/mjsxi/matts-infinite-canvas-sub000/internal/storage"
	"github.com/mjsxi/matts-infinite-canvas-sub000/internal/vector"
)

func newTestServer(t *testing.T, mutate func(*config.ServerEnv)) (*Server, *httptest.Server) {
	t.Helper()
	dir := t.TempDir()
	st, err := storage.OpenSQLite(filepath.Join(dir, "canvas.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	env := config.ServerDefaults()
	env.AuthSecret = "test-secret"
	env.AdminPassword = "root-pass"
	env.UploadDir = filepath.Join(dir, "uploads")
	if mutate != nil {
		mutate(&env)
	}
	s, err := New(st, env)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		s.Hub().Close()
		ts.Close()
		_ = st.Close()
	})
	return s, ts
}

func call(t *testing.T, ts *httptest.Server, method, path, token string, body any) (*http.Response, []byte) {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, ts.URL+path, rd)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := ts.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	out, _ := io.ReadAll(resp.Body)
	return resp, out
}

func login(t *testing.T, ts *httptest.Server, path string, creds map[string]string) AuthResponse {
	t.Helper()
	resp, body := call(t, ts, http.MethodPost, path, "", creds)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login %s: status %d body %s", path, resp.StatusCode, body)
	}
	var ar AuthResponse
	if err := json.Unmarshal(body, &ar); err != nil {
		t.Fatalf("decode login: %v", err)
	}
	return ar
}

func register(t *testing.T, ts *httptest.Server, name, pass string) AuthResponse {
	t.Helper()
	resp, body := call(t, ts, http.MethodPost, "/api/auth/register", "", map[string]string{"username": name, "password": pass, "email": name + "@example.com"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("register: status %d body %s", resp.StatusCode, body)
	}
	return login(t, ts, "/api/auth/login", map[string]string{"username": name, "password": pass})
}

func adminToken(t *testing.T, ts *httptest.Server) string {
	t.Helper()
	return login(t, ts, "/api/auth/admin", map[string]string{"password": "root-pass"}).Token
}

func textRow(id int64) item.Row {
	return item.ToRow(item.NewText(id, vector.Pt{X: 10, Y: 10}, "hello", item.DefaultTextStyle()))
}

func TestRegisterLoginVerifyLogout(t *testing.T) {
	_, ts := newTestServer(t, nil)
	ar := register(t, ts, "alice", "secret1")
	if !ar.Success || ar.User == nil || ar.User.IsAdmin || ar.Token == "" {
		t.Fatalf("login response: %+v", ar)
	}

	resp, body := call(t, ts, http.MethodGet, "/api/auth/verify", ar.Token, nil)
	var v AuthResponse
	_ = json.Unmarshal(body, &v)
	if resp.StatusCode != http.StatusOK || !v.Authenticated || v.User.ID != ar.User.ID || v.User.Username != "alice" {
		t.Fatalf("verify: status %d body %s", resp.StatusCode, body)
	}

	call(t, ts, http.MethodPost, "/api/auth/logout", ar.Token, nil)
	_, body = call(t, ts, http.MethodGet, "/api/auth/verify", ar.Token, nil)
	v = AuthResponse{}
	_ = json.Unmarshal(body, &v)
	if v.Authenticated {
		t.Fatalf("token still valid after logout: %s", body)
	}
}

func TestLoginSetsHTTPOnlyCookie(t *testing.T) {
	_, ts := newTestServer(t, nil)
	resp, _ := call(t, ts, http.MethodPost, "/api/auth/admin", "", map[string]string{"password": "root-pass"})
	var ck *http.Cookie
	for _, c := range resp.Cookies() {
		if c.Name == SessionCookie {
			ck = c
		}
	}
	if ck == nil || !ck.HttpOnly || ck.Value == "" {
		t.Fatalf("session cookie: %+v", ck)
	}
	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/api/auth/verify", nil)
	req.AddCookie(ck)
	r2, err := ts.Client().Do(req)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	defer r2.Body.Close()
	var v AuthResponse
	_ = json.NewDecoder(r2.Body).Decode(&v)
	if !v.Authenticated || v.User == nil || !v.User.IsAdmin {
		t.Fatalf("cookie session: %+v", v)
	}
}

func TestAuthRejections(t *testing.T) {
	_, ts := newTestServer(t, nil)
	resp, body := call(t, ts, http.MethodPost, "/api/auth/register", "", map[string]string{"username": "bob", "password": "123", "email": "b@x"})
	if resp.StatusCode != http.StatusBadRequest || !strings.Contains(string(body), "at least 6") {
		t.Fatalf("short password: %d %s", resp.StatusCode, body)
	}
	register(t, ts, "bob", "secret1")
	resp, _ = call(t, ts, http.MethodPost, "/api/auth/register", "", map[string]string{"username": "BOB", "password": "secret2", "email": "b@x"})
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("duplicate username: got %d", resp.StatusCode)
	}
	resp, _ = call(t, ts, http.MethodPost, "/api/auth/login", "", map[string]string{"username": "bob", "password": "wrong-pass"})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("wrong password: got %d", resp.StatusCode)
	}
	resp, _ = call(t, ts, http.MethodPost, "/api/auth/admin", "", map[string]string{"password": "nope"})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("wrong admin password: got %d", resp.StatusCode)
	}
}

func TestAuthRateLimited(t *testing.T) {
	_, ts := newTestServer(t, func(e *config.ServerEnv) { e.AuthRatePerSec, e.AuthBurst = 0.001, 2 })
	var last int
	for i := 0; i < 3; i++ {
		resp, _ := call(t, ts, http.MethodPost, "/api/auth/login", "", map[string]string{"username": "nobody", "password": "secret1"})
		last = resp.StatusCode
	}
	if last != http.StatusTooManyRequests {
		t.Fatalf("third attempt: got %d want 429", last)
	}
	if resp, _ := call(t, ts, http.MethodGet, "/api/auth/verify", "", nil); resp.StatusCode != http.StatusOK {
		t.Fatalf("verify is not rate limited: got %d", resp.StatusCode)
	}
}

func TestGuestCannotWrite(t *testing.T) {
	_, ts := newTestServer(t, nil)
	if resp, _ := call(t, ts, http.MethodPut, "/api/items/1", "", textRow(1)); resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("guest put: got %d", resp.StatusCode)
	}
	if resp, _ := call(t, ts, http.MethodGet, "/api/items", "", nil); resp.StatusCode != http.StatusOK {
		t.Fatalf("guest list: got %d", resp.StatusCode)
	}
}

func TestItemLifecycleAndFeed(t *testing.T) {
	_, ts := newTestServer(t, nil)
	tok := adminToken(t, ts)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/feed?tables=items"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial feed: %v", err)
	}
	defer conn.Close()
	deadline := time.Now().Add(2 * time.Second)
	next := func() realtime.Change {
		t.Helper()
		_ = conn.SetReadDeadline(deadline)
		var ev realtime.Event
		if err := conn.ReadJSON(&ev); err != nil {
			t.Fatalf("read feed: %v", err)
		}
		c, err := realtime.Decode(ev)
		if err != nil {
			t.Fatalf("decode feed event: %v", err)
		}
		return c
	}
	waitClients(t, ts, 1)

	row := textRow(7)
	if resp, body := call(t, ts, http.MethodPut, "/api/items/7", tok, row); resp.StatusCode != http.StatusOK {
		t.Fatalf("put: %d %s", resp.StatusCode, body)
	}
	if c := next(); c.Op != realtime.OpInsert || c.ID != 7 || c.Row.UserID != adminSubject {
		t.Fatalf("insert event: %+v", c)
	}
	row.X = 99
	call(t, ts, http.MethodPut, "/api/items/7", tok, row)
	if c := next(); c.Op != realtime.OpUpdate || c.Row.X != 99 {
		t.Fatalf("update event: %+v", c)
	}

	_, body := call(t, ts, http.MethodGet, "/api/items", "", nil)
	var rows []item.Row
	if err := json.Unmarshal(body, &rows); err != nil || len(rows) != 1 || rows[0].X != 99 {
		t.Fatalf("list: %s", body)
	}

	if resp, _ := call(t, ts, http.MethodDelete, "/api/items/7", tok, nil); resp.StatusCode != http.StatusNoContent {
		t.Fatalf("delete: %d", resp.StatusCode)
	}
	if c := next(); c.Op != realtime.OpDelete || c.ID != 7 {
		t.Fatalf("delete event: %+v", c)
	}
	if resp, _ := call(t, ts, http.MethodDelete, "/api/items/7", tok, nil); resp.StatusCode != http.StatusNoContent {
		t.Fatalf("repeated delete: %d", resp.StatusCode)
	}
}

func waitClients(t *testing.T, ts *httptest.Server, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		_, body := call(t, ts, http.MethodGet, "/metrics", "", nil)
		if strings.Contains(string(body), fmt.Sprintf("feed_clients %d", want)) {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("feed never reached %d clients", want)
}

func TestPutRejectsInvalidRows(t *testing.T) {
	_, ts := newTestServer(t, nil)
	tok := adminToken(t, ts)
	if resp, _ := call(t, ts, http.MethodPut, "/api/items/8", tok, textRow(7)); resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("mismatched id: got %d", resp.StatusCode)
	}
	bad := textRow(8)
	bad.ItemType = "sticker"
	if resp, _ := call(t, ts, http.MethodPut, "/api/items/8", tok, bad); resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("unknown type: got %d", resp.StatusCode)
	}
}

func TestOwnershipRules(t *testing.T) {
	_, ts := newTestServer(t, nil)
	alice := register(t, ts, "alice", "secret1")
	if resp, _ := call(t, ts, http.MethodPut, "/api/items/1", alice.Token, textRow(1)); resp.StatusCode != http.StatusForbidden {
		t.Fatalf("user write with owner editing off: got %d", resp.StatusCode)
	}

	_, ts = newTestServer(t, func(e *config.ServerEnv) { e.OwnersMayEdit = true })
	alice = register(t, ts, "alice", "secret1")
	bob := register(t, ts, "bob", "secret1")
	row := textRow(1)
	row.UserID = bob.User.ID // a caller cannot create rows for someone else
	resp, body := call(t, ts, http.MethodPut, "/api/items/1", alice.Token, row)
	var got item.Row
	_ = json.Unmarshal(body, &got)
	if resp.StatusCode != http.StatusOK || got.UserID != alice.User.ID {
		t.Fatalf("create: %d owner %q", resp.StatusCode, got.UserID)
	}
	if resp, _ := call(t, ts, http.MethodPut, "/api/items/1", bob.Token, row); resp.StatusCode != http.StatusForbidden {
		t.Fatalf("non-owner update: got %d", resp.StatusCode)
	}
	if resp, _ := call(t, ts, http.MethodDelete, "/api/items/1", bob.Token, nil); resp.StatusCode != http.StatusForbidden {
		t.Fatalf("non-owner delete: got %d", resp.StatusCode)
	}
	if resp, _ := call(t, ts, http.MethodDelete, "/api/items/1", adminToken(t, ts), nil); resp.StatusCode != http.StatusNoContent {
		t.Fatalf("admin delete: got %d", resp.StatusCode)
	}
}

func TestOwnerlessRowsAreAdminOnly(t *testing.T) {
	s, ts := newTestServer(t, func(e *config.ServerEnv) { e.OwnersMayEdit = true })
	alice := register(t, ts, "alice", "secret1")
	if _, err := s.store.UpsertItem(context.Background(), textRow(2)); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if resp, _ := call(t, ts, http.MethodPut, "/api/items/2", alice.Token, textRow(2)); resp.StatusCode != http.StatusForbidden {
		t.Fatalf("user update of ownerless row: got %d", resp.StatusCode)
	}
	if resp, _ := call(t, ts, http.MethodDelete, "/api/items/2", alice.Token, nil); resp.StatusCode != http.StatusForbidden {
		t.Fatalf("user delete of ownerless row: got %d", resp.StatusCode)
	}
	if resp, body := call(t, ts, http.MethodPut, "/api/items/2", adminToken(t, ts), textRow(2)); resp.StatusCode != http.StatusOK {
		t.Fatalf("admin update of ownerless row: %d %s", resp.StatusCode, body)
	}
}

func TestCenterPointAdminOnly(t *testing.T) {
	_, ts := newTestServer(t, nil)
	if resp, _ := call(t, ts, http.MethodGet, "/api/center", "", nil); resp.StatusCode != http.StatusNotFound {
		t.Fatalf("unset center: got %d", resp.StatusCode)
	}
	alice := register(t, ts, "alice", "secret1")
	if resp, _ := call(t, ts, http.MethodPut, "/api/center", alice.Token, map[string]float64{"x": 1, "y": 2}); resp.StatusCode != http.StatusForbidden {
		t.Fatalf("user center write: got %d", resp.StatusCode)
	}
	if resp, body := call(t, ts, http.MethodPut, "/api/center", adminToken(t, ts), map[string]float64{"x": 1, "y": 2}); resp.StatusCode != http.StatusOK {
		t.Fatalf("admin center write: %d %s", resp.StatusCode, body)
	}
	_, body := call(t, ts, http.MethodGet, "/api/center", "", nil)
	var cp item.CenterPoint
	if err := json.Unmarshal(body, &cp); err != nil || cp != (item.CenterPoint{ID: item.CenterPointID, X: 1, Y: 2}) {
		t.Fatalf("center: %s", body)
	}
}

func TestReserveIDs(t *testing.T) {
	_, ts := newTestServer(t, nil)
	tok := adminToken(t, ts)
	var a, b IDBlock
	_, body := call(t, ts, http.MethodPost, "/api/ids?count=32", tok, nil)
	_ = json.Unmarshal(body, &a)
	_, body = call(t, ts, http.MethodPost, "/api/ids?count=5000", tok, nil)
	_ = json.Unmarshal(body, &b)
	if a.First != 1 || a.Count != 32 || b.First != 33 || b.Count != maxIDBlock {
		t.Fatalf("blocks: %+v %+v", a, b)
	}
	if resp, _ := call(t, ts, http.MethodPost, "/api/ids?count=-1", tok, nil); resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("negative count: got %d", resp.StatusCode)
	}
}

func multipartFile(t *testing.T, name string, data []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", name)
	if err != nil {
		t.Fatalf("form file: %v", err)
	}
	_, _ = fw.Write(data)
	_ = mw.Close()
	return &buf, mw.FormDataContentType()
}

func upload(t *testing.T, ts *httptest.Server, tok, name string, data []byte) (*http.Response, []byte) {
	t.Helper()
	body, ctype := multipartFile(t, name, data)
	req, _ := http.NewRequestWithContext(context.Background(), http.MethodPost, ts.URL+"/api/uploads", body)
	req.Header.Set("Content-Type", ctype)
	req.Header.Set("Authorization", "Bearer "+tok)
	resp, err := ts.Client().Do(req)
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	defer resp.Body.Close()
	out, _ := io.ReadAll(resp.Body)
	return resp, out
}

func TestUploadReportsNaturalSize(t *testing.T) {
	_, ts := newTestServer(t, nil)
	tok := adminToken(t, ts)
	var png40 bytes.Buffer
	if err := png.Encode(&png40, image.NewRGBA(image.Rect(0, 0, 40, 20))); err != nil {
		t.Fatalf("encode: %v", err)
	}
	resp, body := upload(t, ts, tok, "1714564800000-my cat.png", png40.Bytes())
	var res UploadResult
	_ = json.Unmarshal(body, &res)
	if resp.StatusCode != http.StatusCreated || res.Width != 40 || res.Height != 20 || res.URL != "/uploads/1714564800000-my_cat.png" {
		t.Fatalf("upload: %d %s", resp.StatusCode, body)
	}
	resp, _ = upload(t, ts, tok, "1714564800000-my cat.png", png40.Bytes())
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("second upload of the same name: %d", resp.StatusCode)
	}

	get, err := ts.Client().Get(ts.URL + res.URL)
	if err != nil {
		t.Fatalf("fetch blob: %v", err)
	}
	defer get.Body.Close()
	got, _ := io.ReadAll(get.Body)
	if !bytes.Equal(got, png40.Bytes()) {
		t.Fatalf("served blob differs")
	}

	_, body = upload(t, ts, tok, "clip.mp4", []byte("not really a video"))
	res = UploadResult{}
	_ = json.Unmarshal(body, &res)
	if res.Width != 0 || res.Height != 0 {
		t.Fatalf("video size: %+v", res)
	}
}

func TestUploadTooLarge(t *testing.T) {
	_, ts := newTestServer(t, func(e *config.ServerEnv) { e.MaxUploadBytes = 1000 })
	resp, body := upload(t, ts, adminToken(t, ts), "big.bin", bytes.Repeat([]byte{1}, 5000))
	if resp.StatusCode != http.StatusRequestEntityTooLarge || !strings.Contains(string(body), "1.0 kB") {
		t.Fatalf("oversized upload: %d %s", resp.StatusCode, body)
	}
}

func TestSafeName(t *testing.T) {
	for in, want := range map[string]string{
		"../../etc/passwd": "passwd",
		"a b.png":          "a_b.png",
		`C:\tmp\x.gif`:     "x.gif",
		"...":              "upload",
	} {
		if got := safeName(in); got != want {
			t.Fatalf("safeName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestExpiredTokenRejected(t *testing.T) {
	tk := newTokens("k", time.Minute)
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	tk.now = func() time.Time { return now }
	raw, _, err := tk.sign("u1", "alice", roleUser)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := tk.parse(raw); err != nil {
		t.Fatalf("fresh token: %v", err)
	}
	now = now.Add(2 * time.Minute)
	if _, err := tk.parse(raw); err == nil {
		t.Fatalf("expired token accepted")
	}
	if _, err := newTokens("other", time.Minute).parse(raw); err == nil {
		t.Fatalf("token with foreign signature accepted")
	}
}

func TestParseTables(t *testing.T) {
	got := parseTables("items, bogus")
	if !got[realtime.TableItems] || got[realtime.TableCenter] || len(got) != 1 {
		t.Fatalf("parseTables: %v", got)
	}
	if len(parseTables("")) != 2 {
		t.Fatalf("empty query should subscribe to all tables")
	}
}
