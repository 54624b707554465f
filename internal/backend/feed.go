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
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	applog "github.com/mjsxi/matts-infinite-canvas-sub000/internal/log"
	"github.com/mjsxi/matts-infinite-canvas-sub000/internal/realtime"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
	sendBuffer     = 64
)

// Hub fans committed row changes out to websocket subscribers.
type Hub struct {
	log     *slog.Logger
	metrics *metrics

	mu      sync.Mutex
	clients map[*feedClient]struct{}
}

type feedClient struct {
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	tables map[string]bool
	once   sync.Once
}

func newHub(m *metrics) *Hub {
	return &Hub{log: applog.WithComponent("feed"), metrics: m, clients: map[*feedClient]struct{}{}}
}

// Clients returns the number of connected subscribers.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Publish sends ev to every subscriber of its table. A subscriber whose
// buffer is full is disconnected; it resubscribes and reloads.
func (h *Hub) Publish(ev realtime.Event) {
	msg, err := json.Marshal(ev)
	if err != nil {
		h.log.Error("encode event failed", applog.Err(err))
		return
	}
	h.metrics.feedEvents.WithLabelValues(ev.Table, string(ev.Operation)).Inc()
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		if !c.tables[ev.Table] {
			continue
		}
		select {
		case c.send <- msg:
		default:
			h.log.Warn("subscriber too slow; dropping", slog.String("remote", c.conn.RemoteAddr().String()))
			h.dropLocked(c)
		}
	}
}

// Close disconnects every subscriber.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		h.dropLocked(c)
	}
}

func (h *Hub) add(c *feedClient) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	h.metrics.feedClients.Set(float64(n))
}

func (h *Hub) remove(c *feedClient) {
	h.mu.Lock()
	h.dropLocked(c)
	n := len(h.clients)
	h.mu.Unlock()
	h.metrics.feedClients.Set(float64(n))
}

func (h *Hub) dropLocked(c *feedClient) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	c.once.Do(func() { close(c.send) })
}

// parseTables reads the comma separated tables query; empty means all.
func parseTables(q string) map[string]bool {
	all := map[string]bool{realtime.TableItems: true, realtime.TableCenter: true}
	if strings.TrimSpace(q) == "" {
		return all
	}
	out := map[string]bool{}
	for _, t := range strings.Split(q, ",") {
		if t = strings.TrimSpace(t); all[t] {
			out[t] = true
		}
	}
	return out
}

func (s *Server) handleFeed(w http.ResponseWriter, r *http.Request) {
	tables := parseTables(r.URL.Query().Get("tables"))
	if len(tables) == 0 {
		respondWithError(w, http.StatusBadRequest, "no known tables requested")
		return
	}
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the error response
		s.log.Warn("feed upgrade failed", applog.Err(err))
		return
	}
	c := &feedClient{hub: s.hub, conn: conn, send: make(chan []byte, sendBuffer), tables: tables}
	s.hub.add(c)
	go c.writePump()
	c.readPump()
}

// readPump only services control frames; subscribers never send data.
func (c *feedClient) readPump() {
	defer func() {
		c.hub.remove(c)
		_ = c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *feedClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
