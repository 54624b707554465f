/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package session

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"testing"
	"time"

	"github.com/mjsxi/matts-infinite-canvas-sub000/internal/clock"
	"github.com/mjsxi/matts-infinite-canvas-sub000/internal/config"
	applog "github.com/mjsxi/matts-infinite-canvas-sub000/internal/log"
)

type fakeAuth struct {
	now     func() time.Time
	tokens  map[string]Session
	down    bool
	logins  int
	logouts []string
}

func (f *fakeAuth) Verify(_ context.Context, tok string) (Session, error) {
	if f.down {
		return Session{}, errors.New("dial tcp: connection refused")
	}
	s, ok := f.tokens[tok]
	if !ok || s.Expired(f.now()) {
		return Session{}, ErrUnauthenticated
	}
	return s, nil
}

func (f *fakeAuth) Login(_ context.Context, user, pass string) (Session, error) {
	f.logins++
	if pass != "hunter22" {
		return Session{}, ErrInvalidCredentials
	}
	s := Session{Authenticated: true, UserID: "u-" + user, Username: user, Token: "tok-" + user, ExpiresAt: f.now().Add(time.Hour)}
	f.tokens[s.Token] = s
	return s, nil
}

func (f *fakeAuth) AdminLogin(_ context.Context, pass string) (Session, error) {
	if pass != "root-pass" {
		return Session{}, ErrInvalidCredentials
	}
	s := Session{Authenticated: true, Admin: true, UserID: "admin", Token: "tok-admin", ExpiresAt: f.now().Add(time.Hour)}
	f.tokens[s.Token] = s
	return s, nil
}

func (f *fakeAuth) Register(context.Context, string, string, string) error { return nil }

func (f *fakeAuth) Logout(_ context.Context, tok string) error {
	f.logouts = append(f.logouts, tok)
	delete(f.tokens, tok)
	return nil
}

type fixture struct {
	gate    *Gate
	auth    *fakeAuth
	clk     *clock.Fake
	cache   *config.SessionCache
	changes []Session
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	fc := clock.NewFake(time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC))
	f := &fixture{clk: fc, cache: config.NewSessionCache(config.NewMemoryTokenStore())}
	f.auth = &fakeAuth{now: fc.Now, tokens: map[string]Session{}}
	f.gate = NewGate(Options{
		Auth: f.auth, Cache: f.cache, Clock: fc,
		CacheTTL: 24 * time.Hour, ExpiryCheck: 5 * time.Minute,
		OnChange: func(_, next Session) { f.changes = append(f.changes, next) },
		Logger:   applog.Discard(),
	})
	t.Cleanup(f.gate.Close)
	return f
}

func TestResolveDefaultsToGuest(t *testing.T) {
	f := newFixture(t)
	s, _ := f.gate.Resolve(context.Background(), nil)
	if s.Authenticated || f.gate.Source() != SourceGuest || !f.gate.Resolved() {
		t.Fatalf("session = %+v source %q", s, f.gate.Source())
	}
	if f.gate.Access().CanCreate() {
		t.Fatalf("guest can create")
	}
}

func TestLoginValidatesFirst(t *testing.T) {
	f := newFixture(t)
	for _, c := range [][2]string{{"", "hunter22"}, {"ab", "hunter22"}, {"alice", "12345"}} {
		if _, err := f.gate.Login(context.Background(), c[0], c[1]); !errors.Is(err, ErrValidation) {
			t.Fatalf("%v: want ErrValidation, got %v", c, err)
		}
	}
	if f.auth.logins != 0 {
		t.Fatalf("invalid input reached the server")
	}
	if _, err := f.gate.Login(context.Background(), "alice", "wrong-pass"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("want ErrInvalidCredentials, got %v", err)
	}
	if f.gate.Current().Authenticated {
		t.Fatalf("failed login changed state")
	}
}

func TestRegisterValidation(t *testing.T) {
	f := newFixture(t)
	if err := f.gate.Register(context.Background(), "alice", "hunter22", "alice.example.com"); !errors.Is(err, ErrValidation) {
		t.Fatalf("email: %v", err)
	}
	if err := f.gate.Register(context.Background(), "alice", "hunter22", "a@example.com"); err != nil {
		t.Fatalf("register: %v", err)
	}
}

func TestLoginCachesAndServerResolves(t *testing.T) {
	f := newFixture(t)
	s, err := f.gate.AdminLogin(context.Background(), "root-pass")
	if err != nil {
		t.Fatal(err)
	}
	if !s.Admin || !f.gate.Access().Admin {
		t.Fatalf("admin session = %+v", s)
	}
	blob, ok, _ := f.cache.Load()
	if !ok {
		t.Fatalf("session not cached")
	}
	var c cached
	if err := json.Unmarshal([]byte(blob), &c); err != nil || c.Token != "tok-admin" {
		t.Fatalf("cache = %s (%v)", blob, err)
	}

	// a fresh gate on the next start finds it through the server
	g2 := NewGate(Options{Auth: f.auth, Cache: f.cache, Clock: f.clk, Logger: applog.Discard()})
	s2, _ := g2.Resolve(context.Background(), nil)
	if !s2.Admin || g2.Source() != SourceServer {
		t.Fatalf("resolved %+v from %q", s2, g2.Source())
	}
}

func TestBootstrapParamIsStripped(t *testing.T) {
	f := newFixture(t)
	f.auth.tokens["boot"] = Session{Authenticated: true, Admin: true, UserID: "admin"}
	page, _ := url.Parse("https://canvas.example/?session=boot&view=1")
	s, clean := f.gate.Resolve(context.Background(), page)
	if !s.Admin || f.gate.Source() != SourceBootstrap {
		t.Fatalf("session %+v source %q", s, f.gate.Source())
	}
	if clean.Query().Has(BootstrapParam) || clean.Query().Get("view") != "1" {
		t.Fatalf("url = %s", clean)
	}
	if s.Token != "boot" {
		t.Fatalf("token = %q", s.Token)
	}
}

func TestOfflineFallsBackToCache(t *testing.T) {
	f := newFixture(t)
	if _, err := f.gate.Login(context.Background(), "alice", "hunter22"); err != nil {
		t.Fatal(err)
	}
	f.auth.down = true
	g2 := NewGate(Options{Auth: f.auth, Cache: f.cache, Clock: f.clk, Logger: applog.Discard()})
	s, _ := g2.Resolve(context.Background(), nil)
	if !s.Authenticated || g2.Source() != SourceCache {
		t.Fatalf("offline resolve = %+v from %q", s, g2.Source())
	}

	// past the session expiry the cache is not trusted
	f.clk.Advance(2 * time.Hour)
	g3 := NewGate(Options{Auth: f.auth, Cache: f.cache, Clock: f.clk, Logger: applog.Discard()})
	if s, _ := g3.Resolve(context.Background(), nil); s.Authenticated {
		t.Fatalf("expired cache accepted")
	}
}

func TestServerRejectionClearsCache(t *testing.T) {
	f := newFixture(t)
	if _, err := f.gate.Login(context.Background(), "alice", "hunter22"); err != nil {
		t.Fatal(err)
	}
	delete(f.auth.tokens, "tok-alice")
	g2 := NewGate(Options{Auth: f.auth, Cache: f.cache, Clock: f.clk, Logger: applog.Discard()})
	if s, _ := g2.Resolve(context.Background(), nil); s.Authenticated {
		t.Fatalf("revoked session accepted")
	}
	if _, ok, _ := f.cache.Load(); ok {
		t.Fatalf("cache kept after server said no")
	}
}

func TestExpiryPassiveAndActive(t *testing.T) {
	f := newFixture(t)
	if _, err := f.gate.Login(context.Background(), "alice", "hunter22"); err != nil {
		t.Fatal(err)
	}
	f.clk.Advance(time.Hour)
	if f.gate.Access().Authenticated {
		t.Fatalf("passive check missed expiry")
	}

	if _, err := f.gate.Login(context.Background(), "alice", "hunter22"); err != nil {
		t.Fatal(err)
	}
	f.changes = nil
	f.gate.StartExpiryCheck()
	f.clk.Advance(55 * time.Minute)
	if len(f.changes) != 0 {
		t.Fatalf("expired early: %v", f.changes)
	}
	f.clk.Advance(5 * time.Minute)
	if len(f.changes) != 1 || f.changes[0].Authenticated {
		t.Fatalf("active check: %v", f.changes)
	}
	if _, ok, _ := f.cache.Load(); ok {
		t.Fatalf("expired session still cached")
	}
}

func TestLogoutClearsEverything(t *testing.T) {
	f := newFixture(t)
	if _, err := f.gate.Login(context.Background(), "alice", "hunter22"); err != nil {
		t.Fatal(err)
	}
	f.gate.Logout(context.Background())
	if f.gate.Current().Authenticated {
		t.Fatalf("still authenticated")
	}
	if len(f.auth.logouts) != 1 || f.auth.logouts[0] != "tok-alice" {
		t.Fatalf("server logout = %v", f.auth.logouts)
	}
	if _, ok, _ := f.cache.Load(); ok {
		t.Fatalf("cache not cleared")
	}
	last := f.changes[len(f.changes)-1]
	if last != Guest {
		t.Fatalf("last change = %+v", last)
	}
}
