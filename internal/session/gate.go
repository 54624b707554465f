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
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/mjsxi/matts-infinite-canvas-sub000/internal/board"
	"github.com/mjsxi/matts-infinite-canvas-sub000/internal/clock"
	"github.com/mjsxi/matts-infinite-canvas-sub000/internal/config"
	applog "github.com/mjsxi/matts-infinite-canvas-sub000/internal/log"
)

// Source names where the current session came from.
type Source string

const (
	SourceNone      Source = ""
	SourceServer    Source = "server"
	SourceBootstrap Source = "bootstrap"
	SourceCache     Source = "cache"
	SourceLogin     Source = "login"
	SourceGuest     Source = "guest"
)

// Options configures a Gate.
type Options struct {
	Auth  Authenticator
	Cache *config.SessionCache
	Clock clock.Clock
	// CacheTTL bounds how long a cached session is trusted offline.
	CacheTTL time.Duration
	// ExpiryCheck is the period of the active expiry check.
	ExpiryCheck time.Duration
	// OwnersMayEdit lets non-admin users edit their own items.
	OwnersMayEdit bool
	// OnChange is called after every change of session, outside the lock.
	OnChange func(prev, next Session)
	Logger   *slog.Logger
}

// Gate holds the resolved session.
type Gate struct {
	opts Options
	log  *slog.Logger

	mu       sync.Mutex
	cur      Session
	source   Source
	resolved bool
	ticker   clock.Timer
}

// NewGate returns an unresolved gate; until Resolve it behaves as guest.
func NewGate(opts Options) *Gate {
	if opts.Clock == nil {
		opts.Clock = clock.Real{}
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = 24 * time.Hour
	}
	if opts.ExpiryCheck <= 0 {
		opts.ExpiryCheck = 5 * time.Minute
	}
	l := opts.Logger
	if l == nil {
		l = applog.WithComponent("session")
	}
	return &Gate{opts: opts, log: l}
}

type cached struct {
	Session
	CachedUntil time.Time `json:"cachedUntil"`
}

// Resolve determines the startup session: a server-verified cached token,
// then the bootstrap parameter of page, then the offline cache, then guest.
// It returns page with the bootstrap parameter removed.
func (g *Gate) Resolve(ctx context.Context, page *url.URL) (Session, *url.URL) {
	bootstrap, stripped := TakeBootstrap(page)
	now := g.opts.Clock.Now()
	c, haveCache := g.loadCache()
	serverDown := false

	if haveCache && c.Token != "" {
		s, err := g.opts.Auth.Verify(ctx, c.Token)
		switch {
		case err == nil && s.Authenticated:
			g.adopt(s, SourceServer)
			return g.Current(), stripped
		case err != nil && !errors.Is(err, ErrUnauthenticated):
			serverDown = true
			g.log.Warn("session check failed", applog.Err(err))
		}
	}

	if bootstrap != "" {
		s, err := g.opts.Auth.Verify(ctx, bootstrap)
		if err == nil && s.Authenticated {
			if s.Token == "" {
				s.Token = bootstrap
			}
			g.adopt(s, SourceBootstrap)
			return g.Current(), stripped
		}
		if err != nil && !errors.Is(err, ErrUnauthenticated) {
			serverDown = true
		}
		g.log.Info("bootstrap token rejected")
	}

	if haveCache && serverDown && now.Before(c.CachedUntil) && !c.Expired(now) {
		g.set(c.Session, SourceCache)
		return g.Current(), stripped
	}
	if haveCache && !serverDown {
		g.clearCache()
	}
	g.set(Guest, SourceGuest)
	return g.Current(), stripped
}

// Login validates and submits credentials.
func (g *Gate) Login(ctx context.Context, username, password string) (Session, error) {
	if err := ValidateLogin(username, password); err != nil {
		return g.Current(), err
	}
	s, err := g.opts.Auth.Login(ctx, username, password)
	if err != nil {
		return g.Current(), err
	}
	g.adopt(s, SourceLogin)
	return g.Current(), nil
}

// AdminLogin submits the admin password for an admin-scoped session.
func (g *Gate) AdminLogin(ctx context.Context, password string) (Session, error) {
	if password == "" {
		return g.Current(), fmt.Errorf("%w: password is required", ErrValidation)
	}
	s, err := g.opts.Auth.AdminLogin(ctx, password)
	if err != nil {
		return g.Current(), err
	}
	g.adopt(s, SourceLogin)
	return g.Current(), nil
}

// Register validates and creates an account. It does not log in.
func (g *Gate) Register(ctx context.Context, username, password, email string) error {
	if err := ValidateRegistration(username, password, email); err != nil {
		return err
	}
	return g.opts.Auth.Register(ctx, username, password, email)
}

// Logout drops the session locally and tells the server. A server error is
// logged; the local session is cleared regardless.
func (g *Gate) Logout(ctx context.Context) {
	g.mu.Lock()
	tok := g.cur.Token
	g.mu.Unlock()
	if tok != "" {
		if err := g.opts.Auth.Logout(ctx, tok); err != nil {
			applog.WithOperation(g.log, "logout").Warn("server logout failed", applog.Err(err))
		}
	}
	g.clearCache()
	g.set(Guest, SourceGuest)
}

// Current returns the session, forcing a logout first if it has expired.
func (g *Gate) Current() Session {
	g.mu.Lock()
	s := g.cur
	g.mu.Unlock()
	if s.Authenticated && s.Expired(g.opts.Clock.Now()) {
		g.expire()
		return Guest
	}
	return s
}

// Source reports where the current session came from.
func (g *Gate) Source() Source {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.source
}

// Resolved reports whether Resolve has run.
func (g *Gate) Resolved() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.resolved
}

// Access maps the current session onto board authorization.
func (g *Gate) Access() board.Access {
	s := g.Current()
	return board.Access{
		Authenticated: s.Authenticated,
		Admin:         s.Admin,
		UserID:        s.UserID,
		OwnersMayEdit: g.opts.OwnersMayEdit,
	}
}

// StartExpiryCheck begins the periodic expiry check.
func (g *Gate) StartExpiryCheck() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.ticker != nil {
		return
	}
	g.ticker = clock.Every(g.opts.Clock, g.opts.ExpiryCheck, func() { g.Current() })
}

// Close stops the expiry check.
func (g *Gate) Close() {
	g.mu.Lock()
	t := g.ticker
	g.ticker = nil
	g.mu.Unlock()
	if t != nil {
		t.Stop()
	}
}

func (g *Gate) expire() {
	g.log.Info("session expired")
	g.clearCache()
	g.set(Guest, SourceGuest)
}

// adopt makes s current and caches it.
func (g *Gate) adopt(s Session, src Source) {
	now := g.opts.Clock.Now()
	c := cached{Session: s, CachedUntil: now.Add(g.opts.CacheTTL)}
	if !s.ExpiresAt.IsZero() && s.ExpiresAt.Before(c.CachedUntil) {
		c.CachedUntil = s.ExpiresAt
	}
	if g.opts.Cache != nil {
		if blob, err := json.Marshal(c); err == nil {
			if err := g.opts.Cache.Store(string(blob)); err != nil {
				g.log.Warn("session cache write failed", applog.Err(err))
			}
		}
	}
	g.set(s, src)
}

func (g *Gate) set(s Session, src Source) {
	g.mu.Lock()
	prev := g.cur
	g.cur = s
	g.source = src
	g.resolved = true
	g.mu.Unlock()
	if src != SourceGuest || prev.Authenticated {
		g.log.Info("session", slog.String("source", string(src)), slog.Bool("authenticated", s.Authenticated), slog.Bool("admin", s.Admin))
	}
	if g.opts.OnChange != nil && prev != s {
		g.opts.OnChange(prev, s)
	}
}

func (g *Gate) loadCache() (cached, bool) {
	if g.opts.Cache == nil {
		return cached{}, false
	}
	blob, ok, err := g.opts.Cache.Load()
	if err != nil {
		g.log.Warn("session cache read failed", applog.Err(err))
		return cached{}, false
	}
	if !ok {
		return cached{}, false
	}
	var c cached
	if err := json.Unmarshal([]byte(blob), &c); err != nil {
		g.log.Warn("session cache corrupt", applog.Err(err))
		g.clearCache()
		return cached{}, false
	}
	return c, true
}

func (g *Gate) clearCache() {
	if g.opts.Cache == nil {
		return
	}
	if err := g.opts.Cache.Clear(); err != nil {
		g.log.Warn("session cache clear failed", applog.Err(err))
	}
}
