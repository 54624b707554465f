/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/mjsxi/matts-infinite-canvas-sub000/internal/app"
	"github.com/mjsxi/matts-infinite-canvas-sub000/internal/backend"
	"github.com/mjsxi/matts-infinite-canvas-sub000/internal/client"
	"github.com/mjsxi/matts-infinite-canvas-sub000/internal/config"
	"github.com/mjsxi/matts-infinite-canvas-sub000/internal/crash"
	"github.com/mjsxi/matts-infinite-canvas-sub000/internal/export"
	"github.com/mjsxi/matts-infinite-canvas-sub000/internal/item"
	applog "github.com/mjsxi/matts-infinite-canvas-sub000/internal/log"
	"github.com/mjsxi/matts-infinite-canvas-sub000/internal/persist"
	"github.com/mjsxi/matts-infinite-canvas-sub000/internal/ui"
	"github.com/mjsxi/matts-infinite-canvas-sub000/internal/version"
)

func usage() {
	fmt.Println("Infinite Canvas")
	fmt.Printf("Version: %s\n", version.String())
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  infinicanvas version|-v|--version      Show version")
	fmt.Println("  infinicanvas serve [<envfile>...]       Run the board server (IC_* variables, .env files)")
	fmt.Println("  infinicanvas watch [<page-url>]         Follow the board and log every change")
	fmt.Println("  infinicanvas export <file>              Export the board to .svg, .pdf, .png or .zip")
	fmt.Println("  infinicanvas ui [<page-url>]            Launch desktop UI (build with -tags fyne for full UI)")
}

func main() {
	applog.Init(applog.FromEnv())
	defer func() { _ = applog.Close() }()
	defer crash.Recover()
	l := applog.WithComponent("cli")

	args := os.Args
	l.Debug("start", slog.Int("args", len(args)))
	if len(args) < 2 {
		usage()
		return
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var err error
	switch args[1] {
	case "version", "--version", "-v":
		fmt.Println("Infinite Canvas")
		fmt.Println(version.String())
		return
	case "serve":
		err = serve(ctx, l, args[2:])
	case "watch":
		err = watch(ctx, l, pageArg(args))
	case "export":
		if len(args) < 3 {
			fmt.Println("export requires <file>")
			usage()
			os.Exit(2)
		}
		err = exportBoard(ctx, l, args[2])
	case "ui":
		err = runUI(l, pageArg(args))
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		l.Error(args[1]+" failed", applog.Err(err))
		fmt.Println("Error:", err)
		os.Exit(1)
	}
}

func pageArg(args []string) *url.URL {
	if len(args) < 3 {
		return &url.URL{}
	}
	u, err := url.Parse(args[2])
	if err != nil {
		return &url.URL{}
	}
	return u
}

func serve(ctx context.Context, l *slog.Logger, envFiles []string) error {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	env, err := config.LoadServer(envFiles...)
	if err != nil {
		return err
	}
	store, err := backend.OpenStore(ctx, env.DSN)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()
	srv, err := backend.New(store, env)
	if err != nil {
		return err
	}
	l.Info("serving board", slog.String("addr", env.Addr), slog.String("uploads", env.UploadDir))
	return srv.ListenAndServe(ctx)
}

// remote builds a client for the configured server, restoring a token cached
// by an earlier run.
func remote(l *slog.Logger) (config.AppConfig, *client.Client) {
	cfg, tok, err := config.Load()
	if err != nil {
		l.Warn("config not loaded, using defaults", applog.Err(err))
	}
	cli := client.New(cfg.Server.BaseURL, cfg.Server.Timeout())
	if tok != "" {
		cli.SetToken(tok)
	}
	return cfg, cli
}

// logView reports board changes to the log instead of drawing them.
type logView struct {
	app.NopView
	log *slog.Logger
}

func (v logView) Status(s app.Status) {
	if s.Kind == app.StatusError {
		v.log.Warn(s.Message)
		return
	}
	v.log.Info(s.Message)
}

func (v logView) Materialize(it *item.Item, entrance bool) {
	if entrance {
		v.log.Info("item placed", slog.Int64("item", it.ID), slog.String("kind", string(it.Kind())))
	}
}

func (v logView) Update(it *item.Item) {
	v.log.Debug("item changed", slog.Int64("item", it.ID), slog.Float64("x", it.Position.X), slog.Float64("y", it.Position.Y))
}

func (v logView) Remove(id int64) { v.log.Info("item removed", slog.Int64("item", id)) }

func watch(ctx context.Context, l *slog.Logger, page *url.URL) error {
	cfg, cli := remote(l)
	loop := app.NewDispatcher()
	ctl := app.New(app.Options{
		Config:  cfg,
		Backend: cli,
		Auth:    cli,
		Feed:    cli,
		Cache:   config.NewSessionCache(nil),
		View:    logView{log: applog.WithComponent("watch")},
		Loop:    loop,
		Logger:  l,
	})
	done := make(chan error, 1)
	go func() { done <- loop.Run(ctx) }()

	startCtx, cancel := context.WithTimeout(ctx, 2*cfg.Server.Timeout())
	next, err := ctl.Start(startCtx, page)
	items := 0
	if err == nil {
		err = loop.Call(startCtx, func() { items = ctl.Board().Len() })
	}
	cancel()
	if err != nil {
		return err
	}
	if next != nil && next.String() != page.String() {
		l.Debug("bootstrap token consumed", slog.String("url", next.String()))
	}
	l.Info("watching board", slog.String("server", cli.BaseURL), slog.Int("items", items))

	<-ctx.Done()
	closeCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.Timeout())
	defer cancel()
	if err := ctl.Close(closeCtx); err != nil {
		l.Warn("pending writes lost on close", applog.Err(err))
	}
	if err := <-done; err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func exportBoard(ctx context.Context, l *slog.Logger, out string) error {
	cfg, cli := remote(l)
	ctx, cancel := context.WithTimeout(ctx, 2*cfg.Server.Timeout())
	defer cancel()
	rows, err := cli.ListItems(ctx)
	if err != nil {
		return err
	}
	b, skipped := export.FromRows(rows)
	if skipped > 0 {
		l.Warn("unreadable rows left out", slog.Int("skipped", skipped))
	}
	cp, err := cli.GetCenter(ctx)
	switch {
	case err == nil:
		b.Center = &cp
	case !errors.Is(err, persist.ErrNotFound):
		return err
	}
	b.Title = "Infinite Canvas"
	abs, _ := filepath.Abs(out)
	if err := export.WriteFile(abs, b); err != nil {
		return err
	}
	l.Info("board exported", slog.String("path", abs), slog.Int("items", len(b.Items)))
	fmt.Println("Exported", len(b.Items), "items to", abs)
	return nil
}

func runUI(l *slog.Logger, page *url.URL) error {
	cfg, cli := remote(l)
	return ui.Run(ui.Options{
		Config: cfg,
		Client: cli,
		Cache:  config.NewSessionCache(nil),
		Page:   page,
		Logger: applog.WithComponent("ui"),
	})
}
