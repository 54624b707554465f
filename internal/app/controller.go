/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package app owns the engine state and wires the components together: the
// board and its editor, the viewport, the gesture recognizer, the
// persistence gateway, the session gate and the realtime subscriber.
//
// Every state change runs on the event loop given as Options.Loop. Methods
// documented as blocking perform network I/O and must be called off the loop.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"

	"github.com/mjsxi/matts-infinite-canvas-sub000/internal/board"
	"github.com/mjsxi/matts-infinite-canvas-sub000/internal/clock"
	"github.com/mjsxi/matts-infinite-canvas-sub000/internal/config"
	"github.com/mjsxi/matts-infinite-canvas-sub000/internal/gesture"
	"github.com/mjsxi/matts-infinite-canvas-sub000/internal/item"
	applog "github.com/mjsxi/matts-infinite-canvas-sub000/internal/log"
	"github.com/mjsxi/matts-infinite-canvas-sub000/internal/persist"
	"github.com/mjsxi/matts-infinite-canvas-sub000/internal/realtime"
	"github.com/mjsxi/matts-infinite-canvas-sub000/internal/session"
	"github.com/mjsxi/matts-infinite-canvas-sub000/internal/telemetry"
	"github.com/mjsxi/matts-infinite-canvas-sub000/internal/undo"
	"github.com/mjsxi/matts-infinite-canvas-sub000/internal/vector"
	"github.com/mjsxi/matts-infinite-canvas-sub000/internal/viewport"
)

// Options configures a Controller.
type Options struct {
	Config  config.AppConfig
	Backend Backend
	Auth    session.Authenticator
	Feed    realtime.Feed
	Cache   *config.SessionCache
	View    View
	Clock   clock.Clock
	// Loop runs state changes; default Inline.
	Loop Poster
	// Exec runs blocking background work; default `go f()`.
	Exec func(f func())
	// Rect reports the on-page viewport rectangle.
	Rect   viewport.RectSource
	Logger *slog.Logger
}

// Controller is the application state.
type Controller struct {
	opts Options
	cfg  config.AppConfig
	log  *slog.Logger
	loop Poster
	view View

	board    *board.Board
	editor   *board.Editor
	vp       *viewport.Viewport
	rec      *gesture.Recognizer
	gw       *persist.Gateway
	gate     *session.Gate
	sub      *realtime.Subscriber
	visible  *viewport.VisibleSet
	history  *undo.Manager
	before   map[int64]undo.Geometry // geometry at the start of the running gesture
	stroke   gesture.Stroke
	started  bool
	refill   bool
	center   vector.Pt
	centered bool // a center point exists
	shown    bool // the center marker is on screen
}

// New builds the engine. Nothing touches the network until Start.
func New(opts Options) *Controller {
	if opts.Clock == nil {
		opts.Clock = clock.Real{}
	}
	if opts.Loop == nil {
		opts.Loop = Inline
	}
	if opts.Exec == nil {
		opts.Exec = func(f func()) { go f() }
	}
	if opts.View == nil {
		opts.View = NopView{}
	}
	l := opts.Logger
	if l == nil {
		l = applog.WithComponent("app")
	}
	cfg := opts.Config
	c := &Controller{
		opts: opts, cfg: cfg, log: l, loop: opts.Loop, view: opts.View,
		board:   board.New(),
		visible: viewport.NewVisibleSet(),
		history: undo.NewManager(undo.Config{}),
		before:  map[int64]undo.Geometry{},
		stroke:  gesture.Stroke{Color: item.DefaultStrokeColor, Width: item.DefaultStrokeWidth},
	}

	c.gate = session.NewGate(session.Options{
		Auth:          opts.Auth,
		Cache:         opts.Cache,
		Clock:         opts.Clock,
		CacheTTL:      cfg.Session.CacheTTL(),
		ExpiryCheck:   cfg.Session.ExpiryCheck(),
		OwnersMayEdit: cfg.Session.OwnersMayEdit,
		OnChange: func(prev, next session.Session) {
			c.loop.Post(func() { c.sessionChanged(prev, next) })
		},
	})

	c.gw = persist.New(persist.Options{
		Store:       opts.Backend,
		Clock:       opts.Clock,
		Debounce:    cfg.Persist.Debounce(),
		BatchWindow: cfg.Persist.BatchWindow(),
		Parallel:    cfg.Persist.BatchParallel,
		Timeout:     cfg.Server.Timeout(),
		Exec:        opts.Exec,
		OnError: func(op string, id int64, err error) {
			c.loop.Post(func() { c.fail(op, err) })
		},
	})

	var src board.IDSource
	if opts.Backend != nil {
		src = opts.Backend
	}
	c.editor = board.NewEditor(c.board, board.Options{
		Saver:   c.gw,
		Access:  c.gate.Access,
		Confirm: board.ConfirmFunc(func(p string) bool { return c.view.Confirm(p) }),
		IDs:     board.NewIDAllocator(src, 32),
		Hooks: board.Hooks{
			OnSelect:     c.selected,
			OnCreate:     c.created,
			OnRemove:     c.removed,
			OnRestack:    c.restacked,
			OnLocalState: c.redraw,
		},
	})

	lo, hi := cfg.Canvas.ScaleRange()
	c.vp = viewport.New(viewport.Options{
		MinScale: lo,
		MaxScale: hi,
		RectTTL:  cfg.Canvas.RectCacheTTL(),
		Clock:    opts.Clock,
		Source:   opts.Rect,
		OnChange: c.transformed,
	})

	c.rec = gesture.New(gesture.Options{
		Surface:     c.vp,
		Editor:      liveEditor{c.editor, c},
		Clock:       opts.Clock,
		Post:        c.loop.Post,
		Stroke:      func() gesture.Stroke { return c.stroke },
		OnSetCenter: c.SetCenter,
		OnPreview:   c.view.Preview,
	})

	c.sub = realtime.NewSubscriber(realtime.SubscriberOptions{
		Feed:            opts.Feed,
		Clock:           opts.Clock,
		ActivationDelay: cfg.Realtime.ActivationDelay(),
		BackoffMin:      cfg.Realtime.BackoffMin(),
		BackoffMax:      cfg.Realtime.BackoffMax(),
		Deliver: func(ev realtime.Event) {
			c.loop.Post(func() { c.apply(ev) })
		},
	})
	return c
}

// liveEditor redraws every item a gesture touches.
type liveEditor struct {
	*board.Editor
	c *Controller
}

func (e liveEditor) Mutate(id int64, fn func(it *item.Item)) error {
	if _, ok := e.c.before[id]; !ok {
		if it, found := e.c.board.Get(id); found {
			e.c.before[id] = undo.Of(it)
		}
	}
	err := e.Editor.Mutate(id, fn)
	if err == nil {
		e.c.redraw(id)
	}
	return err
}

// Commit records the pre-gesture geometry of id before saving it.
func (e liveEditor) Commit(id int64) {
	if g, ok := e.c.before[id]; ok {
		delete(e.c.before, id)
		if it, found := e.c.board.Get(id); found && undo.Of(it) != g {
			e.c.history.Push(undo.Snapshot{ItemID: id, Geometry: g, TS: e.c.opts.Clock.Now()})
		}
	}
	e.Editor.Commit(id)
}

func (c *Controller) Board() *board.Board              { return c.board }
func (c *Controller) Editor() *board.Editor            { return c.editor }
func (c *Controller) Viewport() *viewport.Viewport     { return c.vp }
func (c *Controller) Gestures() *gesture.Recognizer    { return c.rec }
func (c *Controller) Gateway() *persist.Gateway        { return c.gw }
func (c *Controller) Session() *session.Gate           { return c.gate }
func (c *Controller) Subscriber() *realtime.Subscriber { return c.sub }

// Start resolves the session, loads the board and the center point and
// subscribes to the change feed. It returns page with any bootstrap token
// removed. Blocking.
func (c *Controller) Start(ctx context.Context, page *url.URL) (*url.URL, error) {
	s, stripped := c.gate.Resolve(ctx, page)
	c.gate.StartExpiryCheck()
	c.log.Info("session resolved", slog.String("source", string(c.gate.Source())), slog.Bool("admin", s.Admin))

	rows, err := c.opts.Backend.ListItems(ctx)
	if err != nil {
		err = fmt.Errorf("load items: %w", err)
		c.loop.Post(func() { c.fail("load", err) })
		return stripped, err
	}
	center, cerr := c.opts.Backend.GetCenter(ctx)
	if cerr != nil && !errors.Is(cerr, persist.ErrNotFound) {
		c.log.Warn("center point unavailable", applog.Err(cerr))
	}
	c.loop.Post(func() {
		c.install(rows)
		if cerr == nil {
			c.moveCenter(center.Pt())
		}
		c.started = true
		c.sub.Start()
		c.topUpIDs()
	})
	telemetry.Track("board_loaded", map[string]any{"items": len(rows)})
	return stripped, nil
}

// install replaces the board with rows. Undecodable rows are skipped.
func (c *Controller) install(rows []item.Row) {
	for _, it := range c.board.Items() {
		c.editor.Forget(it.ID)
		c.view.Remove(it.ID)
	}
	c.visible = viewport.NewVisibleSet()
	skipped := 0
	for _, r := range rows {
		it, err := item.FromRow(r)
		if err == nil {
			err = it.Validate()
		}
		if err != nil {
			skipped++
			applog.WithItem(c.log, r.ID).Warn("row skipped", applog.Err(err))
			continue
		}
		c.editor.IDs().Observe(it.ID)
		c.board.Put(it)
	}
	c.log.Info("board loaded", slog.Int("items", c.board.Len()), slog.Int("skipped", skipped))
	c.cull()
}

// Close stops the subscription and the expiry check and flushes pending
// writes. Blocking.
func (c *Controller) Close(ctx context.Context) error {
	c.sub.Stop()
	c.sub.Wait()
	c.gate.Close()
	c.loop.Post(func() { c.rec.Abort() })
	return c.gw.Close(ctx)
}

func (c *Controller) transformed(t viewport.Transform) {
	c.view.ApplyTransform(t)
	c.cull()
}

// cull materializes items entering the visible area and pools those leaving
// it. The selected item and the item under a gesture always stay live.
func (c *Controller) cull() {
	area := c.vp.VisibleCanvasRect()
	margin := c.cfg.Canvas.CullMarginPx / c.vp.Transform().Scale
	items := c.board.Items()
	boxes := make([]viewport.Box, 0, len(items))
	for _, it := range items {
		boxes = append(boxes, viewport.Box{ID: it.ID, Bounds: it.Bounds(), Rotation: it.Rotation})
	}
	ids := viewport.Cull(boxes, area, margin)
	keep := func(id int64, ok bool) {
		if ok && c.board.Has(id) {
			ids = append(ids, id)
		}
	}
	keep(c.editor.Selected())
	keep(c.rec.Active())
	entered, left := c.visible.Update(ids)
	for _, id := range entered {
		if it, ok := c.board.Get(id); ok {
			c.view.Materialize(it, false)
		}
	}
	for _, id := range left {
		c.view.Pool(id)
	}
	c.syncCenter(false)
}

// syncCenter shows the center marker to admins while it is on screen and
// hides it otherwise. force re-renders an admin's marker even when its
// visibility is unchanged.
func (c *Controller) syncCenter(force bool) {
	if !c.centered {
		return
	}
	admin := c.gate.Access().Admin
	vis := admin && c.vp.VisibleCanvasRect().Contains(c.center)
	if vis != c.shown || (force && admin) {
		c.shown = vis
		c.view.ShowCenter(c.center, vis)
	}
}

func (c *Controller) redraw(id int64) {
	if !c.visible.Has(id) {
		return
	}
	if it, ok := c.board.Get(id); ok {
		c.view.Update(it)
	}
}

func (c *Controller) selected(prev, next int64) {
	if next != 0 {
		if c.rec.Mode() == gesture.ModeDraw {
			c.rec.SetMode(gesture.ModeNone)
		}
		if !c.visible.Has(next) {
			if it, ok := c.board.Get(next); ok {
				c.visible.Add(next)
				c.view.Materialize(it, false)
			}
		}
	}
	c.view.Select(prev, next)
}

func (c *Controller) created(it *item.Item) {
	c.visible.Add(it.ID)
	c.view.Materialize(it, false)
	telemetry.Track("item_created", map[string]any{"kind": string(it.Kind())})
	c.topUpIDs()
}

func (c *Controller) removed(id int64) {
	c.history.Forget(id)
	delete(c.before, id)
	c.visible.Remove(id)
	c.view.Remove(id)
}

func (c *Controller) restacked(ids []int64) {
	out := make([]*item.Item, 0, len(ids))
	for _, id := range ids {
		if it, ok := c.board.Get(id); ok {
			out = append(out, it)
		}
	}
	c.view.Restack(out)
}

// topUpIDs reserves the next id block in the background when the current
// one runs low.
func (c *Controller) topUpIDs() {
	ids := c.editor.IDs()
	if c.refill || !ids.NeedsRefill() || !c.gate.Access().CanCreate() {
		return
	}
	c.refill = true
	c.opts.Exec(func() {
		ctx, cancel := context.WithTimeout(context.Background(), c.cfg.Server.Timeout())
		defer cancel()
		err := ids.Refill(ctx)
		c.loop.Post(func() {
			c.refill = false
			if err != nil {
				c.log.Warn("id reservation failed; using local ids", applog.Err(err))
			}
		})
	})
}

func (c *Controller) sessionChanged(prev, next session.Session) {
	c.log.Info("session changed", slog.Bool("authenticated", next.Authenticated), slog.Bool("admin", next.Admin))
	if prev.UserID != next.UserID || prev.Admin != next.Admin || !next.Authenticated {
		c.rec.Abort()
		c.rec.SetMode(gesture.ModeNone)
		c.editor.Reset()
	}
	c.syncCenter(false)
	if !c.started {
		return
	}
	// the feed connection carries the old credentials
	c.sub.Stop()
	c.sub.Start()
	c.topUpIDs()
}

// recentlySaved reports an in-flight or just-finished local write of id.
func (c *Controller) recentlySaved(id int64) bool {
	return c.gw.Busy(id) || c.gw.SavedWithin(id, c.cfg.Persist.EchoWindow())
}

// apply reconciles one change-feed event with the board.
func (c *Controller) apply(ev realtime.Event) {
	ch, err := realtime.Decode(ev)
	if err != nil {
		c.log.Warn("event dropped", slog.String("table", ev.Table), applog.Err(err))
		return
	}
	active, _ := c.rec.Active()
	sel, _ := c.editor.Selected()
	out := realtime.Reconcile(c.board, ch, realtime.Local{
		Selected:      sel,
		EditingText:   c.editor.EditingText(),
		Manipulating:  active,
		RecentlySaved: c.recentlySaved,
	})
	l := applog.WithItem(c.log, out.ID).With(slog.String("action", out.Action.String()))
	switch out.Action {
	case realtime.Ignore:
		l.Debug("event ignored", slog.String("reason", out.Reason))
	case realtime.Materialize:
		c.editor.IDs().Observe(out.ID)
		if err := c.board.Insert(out.Item); err != nil {
			l.Warn("insert failed", applog.Err(err))
			return
		}
		if c.inView(out.Item) {
			c.visible.Add(out.ID)
			c.view.Materialize(out.Item, true)
		}
	case realtime.Replace, realtime.MergeContent:
		c.editor.IDs().Observe(out.ID)
		c.board.Put(out.Item)
		c.redraw(out.ID)
		c.cull()
	case realtime.Remove:
		if out.Abort {
			c.rec.Abort()
		}
		c.gw.Cancel(out.ID)
		c.editor.Forget(out.ID)
		c.removed(out.ID)
	case realtime.MoveCenter:
		c.moveCenter(out.Center)
	}
	l.Debug("event applied")
}

func (c *Controller) inView(it *item.Item) bool {
	area := c.vp.VisibleCanvasRect()
	margin := c.cfg.Canvas.CullMarginPx / c.vp.Transform().Scale
	return vector.RotatedBounds(it.Bounds(), it.Rotation).Intersects(area.Inset(-margin, -margin))
}

func (c *Controller) moveCenter(p vector.Pt) {
	c.center, c.centered = p, true
	c.syncCenter(true)
}

// fail reports err as a status message. Cancellations are silent.
func (c *Controller) fail(op string, err error) {
	if err == nil || errors.Is(err, board.ErrCancelled) {
		return
	}
	l := applog.WithOperation(c.log, op)
	msg := "Could not " + op + ": " + err.Error()
	switch {
	case errors.Is(err, board.ErrUnauthorized):
		msg = "You are not allowed to do that."
		l.Info("refused", applog.Err(err))
	case errors.Is(err, session.ErrValidation), errors.Is(err, session.ErrInvalidCredentials):
		msg = err.Error()
		l.Info("rejected", applog.Err(err))
	case errors.Is(err, board.ErrNoSelection):
		msg = "Select an item first."
	default:
		l.Error("operation failed", applog.Err(err))
	}
	c.view.Status(Status{Kind: StatusError, Message: msg})
}

func (c *Controller) info(msg string) {
	c.view.Status(Status{Kind: StatusInfo, Message: msg})
}
