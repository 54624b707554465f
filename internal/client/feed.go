/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mjsxi/matts-infinite-canvas-sub000/internal/realtime"
)

// feedReadWait is how long the feed may stay silent; the server pings well
// inside it.
const feedReadWait = 75 * time.Second

var _ realtime.Feed = (*Client)(nil)

// Subscribe opens the change feed for tables and calls deliver for every
// event until ctx ends (nil) or the connection fails (the error).
func (c *Client) Subscribe(ctx context.Context, tables []string, deliver func(realtime.Event)) error {
	u, err := wsURL(c.BaseURL, "/api/feed", url.Values{"tables": {strings.Join(tables, ",")}})
	if err != nil {
		return err
	}
	hdr := http.Header{}
	if tok := c.Token(); tok != "" {
		hdr.Set("Authorization", "Bearer "+tok)
	}
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, u, hdr)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("dial feed: %s: %w", resp.Status, err)
		}
		return fmt.Errorf("dial feed: %w", err)
	}
	stop := context.AfterFunc(ctx, func() {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		_ = conn.Close()
	})
	defer func() {
		stop()
		_ = conn.Close()
	}()

	_ = conn.SetReadDeadline(time.Now().Add(feedReadWait))
	conn.SetPingHandler(func(data string) error {
		_ = conn.SetReadDeadline(time.Now().Add(feedReadWait))
		return conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(time.Second))
	})
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("read feed: %w", err)
		}
		_ = conn.SetReadDeadline(time.Now().Add(feedReadWait))
		var ev realtime.Event
		if json.Unmarshal(msg, &ev) != nil {
			// undecodable frames are dropped like malformed rows
			continue
		}
		deliver(ev)
	}
}
