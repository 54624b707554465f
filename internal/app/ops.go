/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/mjsxi/matts-infinite-canvas-sub000/internal/board"
	"github.com/mjsxi/matts-infinite-canvas-sub000/internal/gesture"
	"github.com/mjsxi/matts-infinite-canvas-sub000/internal/item"
	applog "github.com/mjsxi/matts-infinite-canvas-sub000/internal/log"
	"github.com/mjsxi/matts-infinite-canvas-sub000/internal/session"
	"github.com/mjsxi/matts-infinite-canvas-sub000/internal/undo"
	"github.com/mjsxi/matts-infinite-canvas-sub000/internal/vector"
)

// ViewCenter returns the canvas point at the middle of the screen.
func (c *Controller) ViewCenter() vector.Pt {
	return c.vp.VisibleCanvasRect().Center()
}

func (c *Controller) place(it *item.Item, op string) (*item.Item, error) {
	created, err := c.editor.Create(it)
	if err != nil {
		c.fail(op, err)
		return nil, err
	}
	if err := c.editor.Select(created.ID); err != nil {
		applog.WithItem(c.log, created.ID).Debug("created item not selectable", applog.Err(err))
	}
	return created, nil
}

// AddText places a text item with the default content at the canvas point at.
func (c *Controller) AddText(at vector.Pt) (*item.Item, error) {
	return c.place(item.NewText(0, at, "", item.DefaultTextStyle()), "add text")
}

// AddCode places an HTML item at at.
func (c *Controller) AddCode(at vector.Pt, html string) (*item.Item, error) {
	return c.place(item.NewCode(0, at, html), "add code")
}

var videoExt = map[string]bool{".mp4": true, ".webm": true, ".mov": true, ".m4v": true, ".ogv": true}

// MediaKind picks image or video from a file name.
func MediaKind(name string) item.Kind {
	if videoExt[strings.ToLower(path.Ext(name))] {
		return item.KindVideo
	}
	return item.KindImage
}

// AddMedia uploads r and places the result centered on at. The stored name
// is prefixed with the upload time. Blocking.
func (c *Controller) AddMedia(ctx context.Context, at vector.Pt, name string, r io.Reader) error {
	if !c.gate.Access().CanCreate() {
		c.loop.Post(func() { c.fail("upload", board.ErrUnauthorized) })
		return board.ErrUnauthorized
	}
	stored := fmt.Sprintf("%d-%s", c.opts.Clock.Now().UnixMilli(), path.Base(name))
	blob, err := c.opts.Backend.Upload(ctx, stored, r)
	if err != nil {
		err = fmt.Errorf("upload %s: %w", name, err)
		c.loop.Post(func() { c.fail("upload", err) })
		return err
	}
	kind := MediaKind(name)
	natural := vector.Size{W: float64(blob.Width), H: float64(blob.Height)}
	c.loop.Post(func() {
		it, err := item.NewMedia(0, kind, at, blob.URL, natural)
		if err != nil {
			c.fail("upload", err)
			return
		}
		it.Position = at.Sub(vector.Pt{X: it.Size.W / 2, Y: it.Size.H / 2})
		c.place(it, "upload")
	})
	return nil
}

// Delete removes the selected item after confirmation.
func (c *Controller) Delete() error {
	err := c.editor.DeleteSelected()
	c.fail("delete", err)
	return err
}

// DeleteItem removes id after confirmation.
func (c *Controller) DeleteItem(id int64) error {
	err := c.editor.Delete(id)
	c.fail("delete", err)
	return err
}

// BringToFront raises the selected item.
func (c *Controller) BringToFront() error {
	err := c.editor.BringToFront()
	c.fail("bring to front", err)
	return err
}

// SendToBack lowers the selected item.
func (c *Controller) SendToBack() error {
	err := c.editor.SendToBack()
	c.fail("send to back", err)
	return err
}

// Undo restores the selected item's geometry from before its last local
// move, resize or rotate. It reports false when there is nothing to undo.
func (c *Controller) Undo() (bool, error) {
	return c.travel("undo", c.history.Undo)
}

// Redo reapplies the geometry the last Undo replaced.
func (c *Controller) Redo() (bool, error) {
	return c.travel("redo", c.history.Redo)
}

func (c *Controller) travel(op string, step func(int64, undo.Geometry, time.Time) (undo.Geometry, bool)) (bool, error) {
	id, ok := c.editor.Selected()
	if !ok {
		return false, nil
	}
	if active, _ := c.rec.Active(); active == id {
		return false, nil
	}
	it, found := c.board.Get(id)
	if !found {
		return false, nil
	}
	if !c.editor.CanEdit(id) {
		c.fail(op, board.ErrUnauthorized)
		return false, board.ErrUnauthorized
	}
	g, ok := step(id, undo.Of(it), c.opts.Clock.Now())
	if !ok {
		return false, nil
	}
	if err := c.editor.Mutate(id, g.Apply); err != nil {
		c.fail(op, err)
		return false, err
	}
	c.editor.Commit(id)
	c.redraw(id)
	c.cull()
	return true, nil
}

// BeginTextEdit puts the caret into the selected text item.
func (c *Controller) BeginTextEdit() error {
	err := c.editor.BeginTextEdit()
	c.fail("edit text", err)
	return err
}

// EndTextEdit stores the edited content.
func (c *Controller) EndTextEdit(content string) error {
	err := c.editor.EndTextEdit(content)
	c.fail("edit text", err)
	return err
}

// SetInteractive toggles pointer interaction inside the selected code item.
func (c *Controller) SetInteractive(on bool) error {
	err := c.editor.SetInteractive(on)
	c.fail("toggle interaction", err)
	return err
}

// SetDrawMode turns the pen on or off. Turning it on drops the selection.
func (c *Controller) SetDrawMode(on bool) error {
	if !on {
		c.rec.SetMode(gesture.ModeNone)
		return nil
	}
	if !c.gate.Access().CanCreate() {
		c.fail("draw", board.ErrUnauthorized)
		return board.ErrUnauthorized
	}
	c.editor.ClearSelection()
	c.rec.SetMode(gesture.ModeDraw)
	return nil
}

// SetStroke sets the pen for the next drawings.
func (c *Controller) SetStroke(color string, width float64) {
	if color != "" {
		c.stroke.Color = color
	}
	if width > 0 {
		c.stroke.Width = width
	}
}

// PickCenter arms the one-shot center picker; the next press sets the
// shared center point. Admin only.
func (c *Controller) PickCenter() error {
	if !c.gate.Access().Admin {
		c.fail("set center", board.ErrUnauthorized)
		return board.ErrUnauthorized
	}
	c.editor.ClearSelection()
	c.rec.SetMode(gesture.ModeSetCenter)
	return nil
}

// SetCenter moves the shared center point to p and stores it. Admin only.
func (c *Controller) SetCenter(p vector.Pt) {
	if !c.gate.Access().Admin {
		c.fail("set center", board.ErrUnauthorized)
		return
	}
	c.moveCenter(p)
	cp := item.CenterPoint{ID: item.CenterPointID, X: p.X, Y: p.Y}
	c.opts.Exec(func() {
		ctx, cancel := context.WithTimeout(context.Background(), c.cfg.Server.Timeout())
		defer cancel()
		if err := c.opts.Backend.PutCenter(ctx, cp); err != nil {
			err = fmt.Errorf("store center point: %w", err)
			c.loop.Post(func() { c.fail("set center", err) })
			return
		}
		c.loop.Post(func() { c.info("Center point saved.") })
	})
}

// CenterView pans so the shared center point is in the middle of the
// screen. It reports whether a center point exists.
func (c *Controller) CenterView() bool {
	if !c.centered {
		return false
	}
	c.vp.CenterOn(c.center)
	return true
}

// Center returns the shared center point.
func (c *Controller) Center() (vector.Pt, bool) { return c.center, c.centered }

// Login signs in with credentials. Blocking.
func (c *Controller) Login(ctx context.Context, username, password string) (session.Session, error) {
	s, err := c.gate.Login(ctx, username, password)
	c.authResult("sign in", err)
	return s, err
}

// AdminLogin signs in with the admin password. Blocking.
func (c *Controller) AdminLogin(ctx context.Context, password string) (session.Session, error) {
	s, err := c.gate.AdminLogin(ctx, password)
	c.authResult("sign in", err)
	return s, err
}

// Register creates an account. Blocking.
func (c *Controller) Register(ctx context.Context, username, password, email string) error {
	err := c.gate.Register(ctx, username, password, email)
	c.authResult("register", err)
	if err == nil {
		c.loop.Post(func() { c.info("Account created. You can sign in now.") })
	}
	return err
}

// Logout ends the session and falls back to guest viewing. Pending writes
// are flushed first. Blocking.
func (c *Controller) Logout(ctx context.Context) {
	if err := c.gw.Flush(ctx); err != nil && !errors.Is(err, context.Canceled) {
		c.log.Warn("flush before logout", applog.Err(err))
	}
	c.gate.Logout(ctx)
}

func (c *Controller) authResult(op string, err error) {
	if err != nil {
		c.loop.Post(func() { c.fail(op, err) })
	}
}
