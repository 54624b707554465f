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
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"time"

	gorillaHandlers "github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"golang.org/x/crypto/bcrypt"

	"github.com/mjsxi/matts-infinite-canvas-sub000/internal/config"
	"github.com/mjsxi/matts-infinite-canvas-sub000/internal/item"
	applog "github.com/mjsxi/matts-infinite-canvas-sub000/internal/log"
	"github.com/mjsxi/matts-infinite-canvas-sub000/internal/realtime"
	"github.com/mjsxi/matts-infinite-canvas-sub000/internal/storage"
	"github.com/mjsxi/matts-infinite-canvas-sub000/internal/version"
)

// maxIDBlock bounds one id reservation.
const maxIDBlock = 1000

// Server serves the whiteboard API.
type Server struct {
	store     Store
	env       config.ServerEnv
	tokens    *tokens
	hub       *Hub
	limiter   *ipLimiter
	metrics   *metrics
	upgrader  websocket.Upgrader
	log       *slog.Logger
	router    *mux.Router
	dummyHash []byte
}

// New builds a server over store. The upload directory is created when
// missing.
func New(store Store, env config.ServerEnv) (*Server, error) {
	if env.AuthSecret == "" {
		return nil, errors.New("auth secret is required")
	}
	if env.SessionTTL <= 0 {
		env.SessionTTL = config.ServerDefaults().SessionTTL
	}
	if env.MaxUploadBytes <= 0 {
		env.MaxUploadBytes = config.ServerDefaults().MaxUploadBytes
	}
	if env.AuthRatePerSec <= 0 || env.AuthBurst <= 0 {
		d := config.ServerDefaults()
		env.AuthRatePerSec, env.AuthBurst = d.AuthRatePerSec, d.AuthBurst
	}
	if env.UploadDir == "" {
		env.UploadDir = config.ServerDefaults().UploadDir
	}
	if err := os.MkdirAll(env.UploadDir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	dummy, err := bcrypt.GenerateFromPassword([]byte("not-a-password"), bcrypt.MinCost)
	if err != nil {
		return nil, err
	}
	m := newMetrics()
	s := &Server{
		store:     store,
		env:       env,
		tokens:    newTokens(env.AuthSecret, env.SessionTTL),
		hub:       newHub(m),
		limiter:   newIPLimiter(env.AuthRatePerSec, env.AuthBurst),
		metrics:   m,
		log:       applog.WithComponent("backend"),
		dummyHash: dummy,
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.originAllowed,
	}
	s.routes()
	return s, nil
}

// Hub returns the change feed hub.
func (s *Server) Hub() *Hub { return s.hub }

func (s *Server) routes() {
	r := mux.NewRouter()
	r.Use(s.metrics.middleware, s.withSession)

	r.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok"))
	}).Methods(http.MethodGet)
	r.HandleFunc("/version", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte(version.String()))
	}).Methods(http.MethodGet)
	r.Handle("/metrics", s.metrics.handler()).Methods(http.MethodGet)
	r.PathPrefix(UploadsPath).Handler(http.StripPrefix(UploadsPath, http.FileServer(http.Dir(s.env.UploadDir)))).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/items", s.handleListItems).Methods(http.MethodGet)
	api.HandleFunc("/center", s.handleGetCenter).Methods(http.MethodGet)
	api.HandleFunc("/feed", s.handleFeed).Methods(http.MethodGet)

	auth := api.PathPrefix("/auth").Subrouter()
	auth.HandleFunc("/verify", s.handleVerify).Methods(http.MethodGet)
	auth.HandleFunc("/logout", s.handleLogout).Methods(http.MethodPost)
	limited := auth.NewRoute().Subrouter()
	limited.Use(s.limiter.middleware)
	limited.HandleFunc("/login", s.handleLogin).Methods(http.MethodPost)
	limited.HandleFunc("/register", s.handleRegister).Methods(http.MethodPost)
	limited.HandleFunc("/admin", s.handleAdminLogin).Methods(http.MethodPost)

	protected := api.NewRoute().Subrouter()
	protected.Use(requireSession)
	protected.HandleFunc("/items/{id:[0-9]+}", s.handlePutItem).Methods(http.MethodPut)
	protected.HandleFunc("/items/{id:[0-9]+}", s.handleDeleteItem).Methods(http.MethodDelete)
	protected.HandleFunc("/center", s.handlePutCenter).Methods(http.MethodPut)
	protected.HandleFunc("/ids", s.handleReserveIDs).Methods(http.MethodPost)
	protected.HandleFunc("/uploads", s.handleUpload).Methods(http.MethodPost)

	s.router = r
}

// Handler returns the root handler with CORS applied.
func (s *Server) Handler() http.Handler {
	cors := gorillaHandlers.CORS(
		gorillaHandlers.AllowedOrigins(s.env.AllowedOrigins),
		gorillaHandlers.AllowedMethods([]string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}),
		gorillaHandlers.AllowedHeaders([]string{"Content-Type", "Authorization"}),
		gorillaHandlers.ExposedHeaders([]string{"Content-Length"}),
		gorillaHandlers.AllowCredentials(),
	)
	return cors(s.router)
}

func (s *Server) originAllowed(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, o := range s.env.AllowedOrigins {
		if o == "*" || o == origin {
			return true
		}
	}
	return false
}

// ListenAndServe serves on env.Addr until ctx ends, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.env.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go s.limiter.cleanup(ctx)

	errc := make(chan error, 1)
	go func() {
		s.log.Info("listening", slog.String("addr", s.env.Addr))
		errc <- srv.ListenAndServe()
	}()
	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	s.log.Info("shutting down")
	s.hub.Close()
	shutCtx, done := context.WithTimeout(context.Background(), 10*time.Second)
	defer done()
	return srv.Shutdown(shutCtx)
}

func (s *Server) handleListItems(w http.ResponseWriter, r *http.Request) {
	rows, err := s.store.ListItems(r.Context())
	if err != nil {
		s.internal(w, "list items", err)
		return
	}
	if rows == nil {
		rows = []item.Row{}
	}
	respondWithJSON(w, http.StatusOK, rows)
}

// mayWrite applies the ownership rule to a row owned by owner. Rows without
// an owner are admin-only.
func (s *Server) mayWrite(c *Claims, owner string) bool {
	if c.Admin() {
		return true
	}
	return s.env.OwnersMayEdit && owner != "" && owner == c.Subject
}

func (s *Server) handlePutItem(w http.ResponseWriter, r *http.Request) {
	c, _ := ClaimsFrom(r.Context())
	id, _ := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
	if err != nil {
		respondWithError(w, http.StatusRequestEntityTooLarge, "row too large")
		return
	}
	row, err := item.DecodeRow(raw)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	if row.ID != id {
		respondWithError(w, http.StatusBadRequest, "row id does not match the path")
		return
	}
	if _, err := item.FromRow(row); err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	existing, err := s.store.GetItem(r.Context(), id)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		if !s.mayWrite(c, c.Subject) {
			respondWithError(w, http.StatusForbidden, "not allowed to create items")
			return
		}
		if row.UserID == "" || !c.Admin() {
			row.UserID = c.Subject
		}
	case err != nil:
		s.internal(w, "get item", err)
		return
	default:
		if !s.mayWrite(c, existing.UserID) {
			respondWithError(w, http.StatusForbidden, "not the owner of this item")
			return
		}
		if !c.Admin() || row.UserID == "" {
			row.UserID = existing.UserID
		}
	}

	created, err := s.store.UpsertItem(r.Context(), row)
	if err != nil {
		s.internal(w, "upsert item", err)
		return
	}
	op := realtime.OpUpdate
	if created {
		op = realtime.OpInsert
	}
	s.publish(op, realtime.TableItems, row)
	respondWithJSON(w, http.StatusOK, row)
}

func (s *Server) handleDeleteItem(w http.ResponseWriter, r *http.Request) {
	c, _ := ClaimsFrom(r.Context())
	id, _ := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	existing, err := s.store.GetItem(r.Context(), id)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		w.WriteHeader(http.StatusNoContent)
		return
	case err != nil:
		s.internal(w, "get item", err)
		return
	}
	if !s.mayWrite(c, existing.UserID) {
		respondWithError(w, http.StatusForbidden, "not the owner of this item")
		return
	}
	if err := s.store.DeleteItem(r.Context(), id); err != nil && !errors.Is(err, storage.ErrNotFound) {
		s.internal(w, "delete item", err)
		return
	}
	s.publish(realtime.OpDelete, realtime.TableItems, map[string]int64{"id": id})
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGetCenter(w http.ResponseWriter, r *http.Request) {
	c, err := s.store.GetCenter(r.Context())
	if errors.Is(err, storage.ErrNotFound) {
		respondWithError(w, http.StatusNotFound, "no center point set")
		return
	}
	if err != nil {
		s.internal(w, "get center", err)
		return
	}
	respondWithJSON(w, http.StatusOK, c)
}

func (s *Server) handlePutCenter(w http.ResponseWriter, r *http.Request) {
	if c, _ := ClaimsFrom(r.Context()); !c.Admin() {
		respondWithError(w, http.StatusForbidden, "admin only")
		return
	}
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 4<<10))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	cp, err := item.DecodeCenterPoint(raw)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	cp, err = s.store.PutCenter(r.Context(), cp)
	if err != nil {
		s.internal(w, "put center", err)
		return
	}
	s.publish(realtime.OpUpdate, realtime.TableCenter, cp)
	respondWithJSON(w, http.StatusOK, cp)
}

// IDBlock is the response of an id reservation.
type IDBlock struct {
	First int64 `json:"first"`
	Count int   `json:"count"`
}

func (s *Server) handleReserveIDs(w http.ResponseWriter, r *http.Request) {
	count := 1
	if v := r.URL.Query().Get("count"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			respondWithError(w, http.StatusBadRequest, "count must be a positive integer")
			return
		}
		count = min(n, maxIDBlock)
	}
	first, err := s.store.ReserveIDs(r.Context(), count)
	if err != nil {
		s.internal(w, "reserve ids", err)
		return
	}
	respondWithJSON(w, http.StatusOK, IDBlock{First: first, Count: count})
}

func (s *Server) publish(op realtime.Operation, table string, row any) {
	ev, err := realtime.NewEvent(op, table, row)
	if err != nil {
		s.log.Error("encode change failed", applog.Err(err))
		return
	}
	s.hub.Publish(ev)
}

func (s *Server) internal(w http.ResponseWriter, op string, err error) {
	applog.WithOperation(s.log, op).Error("request failed", applog.Err(err))
	respondWithError(w, http.StatusInternalServerError, "internal error")
}

func respondWithJSON(w http.ResponseWriter, code int, payload any) {
	b, err := json.Marshal(payload)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"internal error"}`))
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_, _ = w.Write(b)
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, map[string]string{"error": message})
}
