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
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strconv"

	"github.com/mjsxi/matts-infinite-canvas-sub000/internal/app"
	"github.com/mjsxi/matts-infinite-canvas-sub000/internal/item"
)

var _ app.Backend = (*Client)(nil)

// ListItems fetches every row.
func (c *Client) ListItems(ctx context.Context) ([]item.Row, error) {
	var rows []item.Row
	if err := c.doJSON(ctx, http.MethodGet, "/api/items", nil, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// UpsertItem writes one row.
func (c *Client) UpsertItem(ctx context.Context, row item.Row) error {
	return c.doJSON(ctx, http.MethodPut, "/api/items/"+strconv.FormatInt(row.ID, 10), row, nil)
}

// DeleteItem removes one row.
func (c *Client) DeleteItem(ctx context.Context, id int64) error {
	return c.doJSON(ctx, http.MethodDelete, "/api/items/"+strconv.FormatInt(id, 10), nil, nil)
}

// GetCenter fetches the center point; persist.ErrNotFound when unset.
func (c *Client) GetCenter(ctx context.Context) (item.CenterPoint, error) {
	var cp item.CenterPoint
	err := c.doJSON(ctx, http.MethodGet, "/api/center", nil, &cp)
	return cp, err
}

// PutCenter stores the center point.
func (c *Client) PutCenter(ctx context.Context, cp item.CenterPoint) error {
	return c.doJSON(ctx, http.MethodPut, "/api/center", cp, nil)
}

// ReserveIDs reserves a block of item ids.
func (c *Client) ReserveIDs(ctx context.Context, count int) (int64, int, error) {
	var blk struct {
		First int64 `json:"first"`
		Count int   `json:"count"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/api/ids?count="+strconv.Itoa(count), nil, &blk); err != nil {
		return 0, 0, err
	}
	return blk.First, blk.Count, nil
}

// Upload stores r under filename and returns its absolute URL with the
// natural size the server decoded.
func (c *Client) Upload(ctx context.Context, filename string, r io.Reader) (app.Blob, error) {
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		fw, err := mw.CreateFormFile("file", filepath.Base(filename))
		if err == nil {
			_, err = io.Copy(fw, r)
		}
		if err == nil {
			err = mw.Close()
		}
		pw.CloseWithError(err)
	}()
	req, err := c.newRequest(ctx, http.MethodPost, "/api/uploads", pr)
	if err != nil {
		_ = pr.Close()
		return app.Blob{}, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	var b app.Blob
	if err := c.do(req, &b); err != nil {
		_ = pr.CloseWithError(err)
		return app.Blob{}, fmt.Errorf("upload %s: %w", filename, err)
	}
	b.URL = c.Resolve(b.URL)
	return b, nil
}
