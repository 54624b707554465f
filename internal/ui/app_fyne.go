//go:build fyne && cgo

/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package ui

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"time"

	"fyne.io/fyne/v2"
	fyneapp "fyne.io/fyne/v2/app"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/driver/desktop"
	"fyne.io/fyne/v2/widget"

	"github.com/mjsxi/matts-infinite-canvas-sub000/internal/app"
	"github.com/mjsxi/matts-infinite-canvas-sub000/internal/crash"
	"github.com/mjsxi/matts-infinite-canvas-sub000/internal/export"
	"github.com/mjsxi/matts-infinite-canvas-sub000/internal/gesture"
	"github.com/mjsxi/matts-infinite-canvas-sub000/internal/item"
	applog "github.com/mjsxi/matts-infinite-canvas-sub000/internal/log"
	"github.com/mjsxi/matts-infinite-canvas-sub000/internal/vector"
	"github.com/mjsxi/matts-infinite-canvas-sub000/internal/version"
	"github.com/mjsxi/matts-infinite-canvas-sub000/internal/viewport"
)

var (
	backdrop    = color.RGBA{R: 0xfa, G: 0xfa, B: 0xf9, A: 0xff}
	accent      = color.RGBA{R: 0x00, G: 0xaa, B: 0xff, A: 0xff}
	knob        = color.RGBA{R: 0xff, G: 0xaa, B: 0x00, A: 0xff}
	centerInk   = color.RGBA{R: 0xe1, G: 0x1d, B: 0x48, A: 0xff}
	entranceInk = color.RGBA{R: 0x22, G: 0xc5, B: 0x5e, A: 0xff}
)

// entranceTime is how long items placed by another client stay outlined.
const entranceTime = 600 * time.Millisecond

// Run opens the board window and blocks until it is closed.
func Run(opts Options) error {
	if opts.Client == nil {
		return fmt.Errorf("ui: no backend client")
	}
	l := opts.Logger
	if l == nil {
		l = applog.WithComponent("ui")
	}
	defer crash.Recover()
	l.Info("starting UI", slog.String("server", opts.Client.BaseURL))

	fa := fyneapp.NewWithID("io.github.mjsxi.infinicanvas")
	w := fa.NewWindow("Infinite Canvas " + version.String())
	prefs := fa.Preferences()
	winW := prefs.IntWithFallback("window.width", 1200)
	winH := prefs.IntWithFallback("window.height", 800)
	if winW < 640 {
		winW = 640
	}
	if winH < 480 {
		winH = 480
	}
	w.Resize(fyne.NewSize(float32(winW), float32(winH)))

	timeout := opts.Config.Server.Timeout()
	bv := newBoardView(l, timeout)
	ctl := app.New(app.Options{
		Config:  opts.Config,
		Backend: opts.Client,
		Auth:    opts.Client,
		Feed:    opts.Client,
		Cache:   opts.Cache,
		View:    bv,
		Loop:    app.PostFunc(fyne.Do),
		Rect:    viewport.RectFunc(bv.viewportRect),
		Logger:  l,
	})
	bv.ctl = ctl
	bv.win = w

	w.SetContent(container.NewBorder(bv.toolbar(), bv.status, nil, nil, bv))
	bv.bindKeys(w.Canvas())

	page := opts.Page
	if page == nil {
		page = &url.URL{}
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*timeout)
		defer cancel()
		if _, err := ctl.Start(ctx, page); err != nil {
			l.Error("start failed", applog.Err(err))
		}
	}()

	closing := false
	w.SetCloseIntercept(func() {
		if closing {
			return
		}
		closing = true
		sz := w.Canvas().Size()
		prefs.SetInt("window.width", int(sz.Width))
		prefs.SetInt("window.height", int(sz.Height))
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), timeout)
			defer cancel()
			if err := ctl.Close(ctx); err != nil {
				l.Warn("pending writes lost on close", applog.Err(err))
			}
			fyne.Do(w.Close)
		}()
	})
	w.ShowAndRun()
	l.Info("UI closed")
	return nil
}

// boardView renders the board into a raster and feeds pointer input to the
// gesture recognizer. Every method runs on the fyne main goroutine.
type boardView struct {
	widget.BaseWidget
	ctl     *app.Controller
	win     fyne.Window
	log     *slog.Logger
	raster  *canvas.Raster
	status  *widget.Label
	toasts  *Toasts
	timeout time.Duration

	live       map[int64]bool
	entering   map[int64]bool
	selected   int64
	preview    []vector.Pt
	center     vector.Pt
	showCenter bool
	confirmed  bool

	pressed bool
	last    gesture.Pointer
	ctrl    bool
	shift   bool
}

func newBoardView(l *slog.Logger, timeout time.Duration) *boardView {
	v := &boardView{
		log:      l,
		timeout:  timeout,
		status:   widget.NewLabel("Loading board..."),
		toasts:   NewToasts(nil, DefaultToastTTL, 3),
		live:     map[int64]bool{},
		entering: map[int64]bool{},
	}
	v.raster = canvas.NewRaster(v.render)
	v.ExtendBaseWidget(v)
	return v
}

func (v *boardView) CreateRenderer() fyne.WidgetRenderer {
	return widget.NewSimpleRenderer(v.raster)
}

func (v *boardView) MinSize() fyne.Size { return fyne.NewSize(320, 240) }

func (v *boardView) Resize(s fyne.Size) {
	v.BaseWidget.Resize(s)
	if v.ctl != nil {
		v.ctl.Viewport().InvalidateRect()
	}
}

func (v *boardView) viewportRect() vector.Rect {
	s := v.Size()
	return vector.Rect{W: float64(s.Width), H: float64(s.Height)}
}

func (v *boardView) redraw() { v.raster.Refresh() }

// app.View

func (v *boardView) Status(s app.Status) {
	v.toasts.Push(s)
	v.refreshStatus()
	time.AfterFunc(v.toasts.TTL(), func() { fyne.Do(v.refreshStatus) })
}

func (v *boardView) refreshStatus() {
	active := v.toasts.Active()
	if len(active) == 0 {
		v.status.SetText(v.sessionLine())
		return
	}
	msgs := make([]string, len(active))
	for i, s := range active {
		msgs[i] = s.Message
	}
	v.status.SetText(strings.Join(msgs, "  |  "))
}

func (v *boardView) sessionLine() string {
	if v.ctl == nil {
		return ""
	}
	s := v.ctl.Session().Current()
	switch {
	case s.Admin:
		return "Signed in as admin"
	case s.Authenticated:
		return "Signed in as " + s.Username
	}
	return "Viewing as guest"
}

func (v *boardView) Materialize(it *item.Item, entrance bool) {
	v.live[it.ID] = true
	if entrance {
		id := it.ID
		v.entering[id] = true
		time.AfterFunc(entranceTime, func() {
			fyne.Do(func() {
				delete(v.entering, id)
				v.redraw()
			})
		})
	}
	v.redraw()
}

func (v *boardView) Update(*item.Item)                 { v.redraw() }
func (v *boardView) Restack([]*item.Item)              { v.redraw() }
func (v *boardView) ApplyTransform(viewport.Transform) { v.redraw() }

func (v *boardView) Pool(id int64) {
	delete(v.live, id)
	v.redraw()
}

func (v *boardView) Remove(id int64) {
	delete(v.live, id)
	delete(v.entering, id)
	if v.selected == id {
		v.selected = 0
	}
	v.redraw()
}

func (v *boardView) Select(_, next int64) {
	v.selected = next
	v.redraw()
}

func (v *boardView) ShowCenter(p vector.Pt, visible bool) {
	v.center, v.showCenter = p, visible
	v.redraw()
}

func (v *boardView) Preview(screen []vector.Pt) {
	v.preview = append(v.preview[:0], screen...)
	v.redraw()
}

// Confirm answers the editor's synchronous prompt. Prompts are asked with a
// dialog before the action runs, so this only reports that answer.
func (v *boardView) Confirm(string) bool {
	ok := v.confirmed
	v.confirmed = false
	return ok
}

// rendering

func (v *boardView) visibleItems() []*item.Item {
	all := v.ctl.Board().Items()
	out := all[:0]
	for _, it := range all {
		if v.live[it.ID] {
			out = append(out, it)
		}
	}
	return out
}

func (v *boardView) render(w, h int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: backdrop}, image.Point{}, draw.Src)
	if v.ctl == nil {
		return img
	}
	k := 1.0
	if s := v.Size(); s.Width > 0 {
		k = float64(w) / float64(s.Width)
	}
	vp := v.ctl.Viewport()
	items := v.visibleItems()
	export.Draw(img, items, vector.Scale(k, k).Mul(vp.Transform().Matrix()))

	px := func(p vector.Pt) vector.Pt { return p.Mul(k) }
	outline := func(it *item.Item, col color.RGBA) {
		f := Frame(it, vp)
		for i := range f {
			export.StrokeLine(img, px(f[i]), px(f[(i+1)%4]), 1.5*k, col)
		}
	}
	for _, it := range items {
		if v.entering[it.ID] {
			outline(it, entranceInk)
		}
		if it.ID != v.selected {
			continue
		}
		outline(it, accent)
		for _, c := range Handles(it, vp) {
			square(img, px(c), HandleSize*k, accent)
		}
		rot := RotateHandle(it, vp)
		f := Frame(it, vp)
		top := vector.Mid(f[0], f[1])
		export.StrokeLine(img, px(top), px(rot), k, knob)
		square(img, px(rot), HandleSize*k, knob)
	}
	if v.showCenter {
		c := px(vp.CanvasToScreen(v.center.X, v.center.Y))
		arm := 8 * k
		export.StrokeLine(img, c.Add(vector.Pt{X: -arm}), c.Add(vector.Pt{X: arm}), 2*k, centerInk)
		export.StrokeLine(img, c.Add(vector.Pt{Y: -arm}), c.Add(vector.Pt{Y: arm}), 2*k, centerInk)
	}
	for i := 1; i < len(v.preview); i++ {
		export.StrokeLine(img, px(v.preview[i-1]), px(v.preview[i]), 2*k, accent)
	}
	return img
}

func square(img *image.RGBA, c vector.Pt, side float64, col color.RGBA) {
	h := side / 2
	r := image.Rect(int(c.X-h), int(c.Y-h), int(c.X+h), int(c.Y+h)).Intersect(img.Rect)
	draw.Draw(img, r, &image.Uniform{C: col}, image.Point{}, draw.Src)
}

// input

func (v *boardView) pointer(pos fyne.Position) gesture.Pointer {
	return gesture.Pointer{X: float64(pos.X), Y: float64(pos.Y), Time: time.Now(), Snap: v.shift}
}

func (v *boardView) MouseDown(e *desktop.MouseEvent) {
	if v.ctl == nil || e.Button != desktop.MouseButtonPrimary {
		return
	}
	v.shift = e.Modifier&fyne.KeyModifierShift != 0
	p := v.pointer(e.Position)
	sel, _ := v.ctl.Editor().Selected()
	hit := HitTest(v.visibleItems(), sel, v.ctl.Viewport(), vector.Pt{X: p.X, Y: p.Y})
	v.pressed, v.last = true, p
	v.ctl.Gestures().Down(p, hit)
}

func (v *boardView) MouseUp(e *desktop.MouseEvent) {
	if !v.pressed {
		return
	}
	v.pressed = false
	v.ctl.Gestures().Up(v.pointer(e.Position))
}

func (v *boardView) Dragged(e *fyne.DragEvent) {
	if !v.pressed {
		return
	}
	v.last = v.pointer(e.Position)
	v.ctl.Gestures().Move(v.last)
}

func (v *boardView) DragEnd() {
	if !v.pressed {
		return
	}
	v.pressed = false
	v.ctl.Gestures().Up(v.last)
}

func (v *boardView) Scrolled(e *fyne.ScrollEvent) {
	if v.ctl == nil {
		return
	}
	v.ctl.Gestures().Wheel(gesture.Wheel{
		X:            float64(e.Position.X),
		Y:            float64(e.Position.Y),
		DeltaX:       -float64(e.Scrolled.DX),
		DeltaY:       -float64(e.Scrolled.DY),
		ZoomModifier: v.ctrl,
	})
}

// DoubleTapped edits text items and toggles interaction on code items.
func (v *boardView) DoubleTapped(e *fyne.PointEvent) {
	if v.ctl == nil {
		return
	}
	s := vector.Pt{X: float64(e.Position.X), Y: float64(e.Position.Y)}
	hit := HitTest(v.visibleItems(), 0, v.ctl.Viewport(), s)
	it, ok := v.ctl.Board().Get(hit.ItemID)
	if !ok || v.ctl.Editor().Select(it.ID) != nil {
		return
	}
	switch p := it.Payload.(type) {
	case item.Text:
		if v.ctl.BeginTextEdit() != nil {
			return
		}
		entry := widget.NewMultiLineEntry()
		entry.SetText(p.Content)
		dialog.ShowForm("Edit text", "Save", "Cancel", []*widget.FormItem{widget.NewFormItem("", entry)}, func(ok bool) {
			content := p.Content
			if ok {
				content = entry.Text
			}
			_ = v.ctl.EndTextEdit(content)
		}, v.win)
	case item.Code:
		_ = v.ctl.SetInteractive(!p.Interactive)
	}
}

func (v *boardView) bindKeys(c fyne.Canvas) {
	dc, ok := c.(desktop.Canvas)
	if !ok {
		return
	}
	dc.SetOnKeyDown(func(e *fyne.KeyEvent) {
		switch e.Name {
		case desktop.KeyControlLeft, desktop.KeyControlRight, desktop.KeySuperLeft, desktop.KeySuperRight:
			v.ctrl = true
		case desktop.KeyShiftLeft, desktop.KeyShiftRight:
			v.shift = true
		}
	})
	dc.SetOnKeyUp(func(e *fyne.KeyEvent) {
		switch e.Name {
		case desktop.KeyControlLeft, desktop.KeyControlRight, desktop.KeySuperLeft, desktop.KeySuperRight:
			v.ctrl = false
		case desktop.KeyShiftLeft, desktop.KeyShiftRight:
			v.shift = false
		}
	})
	c.SetOnTypedKey(func(e *fyne.KeyEvent) {
		switch e.Name {
		case fyne.KeyDelete, fyne.KeyBackspace:
			v.confirmDelete()
		case fyne.KeyEscape:
			_ = v.ctl.SetDrawMode(false)
			v.ctl.Editor().ClearSelection()
		}
	})
}

// toolbar

func (v *boardView) toolbar() fyne.CanvasObject {
	ctl := func() *app.Controller { return v.ctl }
	strokeColor := widget.NewSelect([]string{"#000000", "#e11d48", "#2563eb", "#16a34a"}, func(s string) { ctl().SetStroke(s, 0) })
	strokeColor.SetSelected(item.DefaultStrokeColor)
	strokeWidth := widget.NewSelect([]string{"2", "4", "8", "16"}, func(s string) {
		if n, err := strconv.ParseFloat(s, 64); err == nil {
			ctl().SetStroke("", n)
		}
	})
	strokeWidth.SetSelected(strconv.Itoa(item.DefaultStrokeWidth))
	pen := widget.NewCheck("Draw", func(on bool) { _ = ctl().SetDrawMode(on) })

	return container.NewHBox(
		widget.NewButton("Text", func() { _, _ = ctl().AddText(ctl().ViewCenter()) }),
		widget.NewButton("HTML", v.addCode),
		widget.NewButton("Upload", v.upload),
		pen, strokeColor, strokeWidth,
		widget.NewSeparator(),
		widget.NewButton("Front", func() { _ = ctl().BringToFront() }),
		widget.NewButton("Back", func() { _ = ctl().SendToBack() }),
		widget.NewButton("Delete", v.confirmDelete),
		widget.NewButton("Undo", func() { _, _ = ctl().Undo() }),
		widget.NewButton("Redo", func() { _, _ = ctl().Redo() }),
		widget.NewSeparator(),
		widget.NewButton("Go to center", func() {
			if !ctl().CenterView() {
				v.Status(app.Status{Kind: app.StatusInfo, Message: "No center point set yet."})
			}
		}),
		widget.NewButton("Set center", func() { _ = ctl().PickCenter() }),
		widget.NewButton("Export", v.export),
		widget.NewSeparator(),
		widget.NewButton("Account", v.account),
	)
}

func (v *boardView) confirmDelete() {
	if _, ok := v.ctl.Editor().Selected(); !ok {
		return
	}
	dialog.ShowConfirm("Delete", "Delete this item?", func(ok bool) {
		if !ok {
			return
		}
		v.confirmed = true
		_ = v.ctl.Delete()
		v.confirmed = false
	}, v.win)
}

func (v *boardView) addCode() {
	entry := widget.NewMultiLineEntry()
	entry.SetPlaceHolder("<h1>Hello</h1>")
	dialog.ShowForm("Add HTML", "Add", "Cancel", []*widget.FormItem{widget.NewFormItem("HTML", entry)}, func(ok bool) {
		if ok && strings.TrimSpace(entry.Text) != "" {
			_, _ = v.ctl.AddCode(v.ctl.ViewCenter(), entry.Text)
		}
	}, v.win)
}

func (v *boardView) upload() {
	at := v.ctl.ViewCenter()
	dialog.ShowFileOpen(func(rc fyne.URIReadCloser, err error) {
		if err != nil || rc == nil {
			return
		}
		go func() {
			defer func() { _ = rc.Close() }()
			ctx, cancel := context.WithTimeout(context.Background(), 4*v.timeout)
			defer cancel()
			if err := v.ctl.AddMedia(ctx, at, rc.URI().Name(), rc); err != nil {
				v.log.Warn("upload failed", applog.Err(err))
			}
		}()
	}, v.win)
}

func (v *boardView) export() {
	dialog.ShowFileSave(func(wc fyne.URIWriteCloser, err error) {
		if err != nil || wc == nil {
			return
		}
		defer func() { _ = wc.Close() }()
		f, ferr := export.FormatOf(wc.URI().Name())
		if ferr != nil {
			f = export.FormatSVG
		}
		b := export.NewBoard(v.ctl.Board().Items())
		b.Title = "Infinite Canvas"
		if c, ok := v.ctl.Center(); ok {
			b.Center = &item.CenterPoint{ID: item.CenterPointID, X: c.X, Y: c.Y}
		}
		if err := export.Write(wc, f, b); err != nil {
			v.Status(app.Status{Kind: app.StatusError, Message: "Export failed: " + err.Error()})
			return
		}
		v.Status(app.Status{Kind: app.StatusInfo, Message: "Exported " + wc.URI().Name()})
	}, v.win)
}

func (v *boardView) account() {
	s := v.ctl.Session().Current()
	if s.Authenticated {
		dialog.ShowConfirm("Sign out", v.sessionLine()+". Sign out?", func(ok bool) {
			if ok {
				v.blocking(func(ctx context.Context) { v.ctl.Logout(ctx) })
			}
		}, v.win)
		return
	}
	user := widget.NewEntry()
	pass := widget.NewPasswordEntry()
	email := widget.NewEntry()
	email.SetPlaceHolder("only for new accounts")
	admin := widget.NewCheck("Admin password", nil)
	register := widget.NewCheck("Create account", nil)
	items := []*widget.FormItem{
		widget.NewFormItem("Username", user),
		widget.NewFormItem("Password", pass),
		widget.NewFormItem("E-mail", email),
		widget.NewFormItem("", admin),
		widget.NewFormItem("", register),
	}
	dialog.ShowForm("Sign in", "OK", "Cancel", items, func(ok bool) {
		if !ok {
			return
		}
		name, pw, mail := user.Text, pass.Text, email.Text
		switch {
		case admin.Checked:
			v.blocking(func(ctx context.Context) { _, _ = v.ctl.AdminLogin(ctx, pw) })
		case register.Checked:
			v.blocking(func(ctx context.Context) { _ = v.ctl.Register(ctx, name, pw, mail) })
		default:
			v.blocking(func(ctx context.Context) { _, _ = v.ctl.Login(ctx, name, pw) })
		}
	}, v.win)
}

// blocking runs f off the main goroutine and refreshes the status line after.
func (v *boardView) blocking(f func(ctx context.Context)) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), v.timeout)
		defer cancel()
		f(ctx)
		fyne.Do(v.refreshStatus)
	}()
}
