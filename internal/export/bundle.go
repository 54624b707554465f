/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package export

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/mjsxi/matts-infinite-canvas-sub000/internal/item"
)

// Bundle entry names.
const (
	BundleBoard     = "board.json"
	BundleManifest  = "manifest.json"
	BundlePreview   = "preview.svg"
	BundleThumbnail = "thumbnail.png"
)

// BundleOptions controls zip bundle export.
type BundleOptions struct {
	// ThumbnailWidth is the PNG width in pixels; zero means 512.
	ThumbnailWidth int
	// Now stamps the manifest and entries; nil means time.Now.
	Now func() time.Time
}

// BoardFile is the JSON document stored as board.json.
type BoardFile struct {
	Items  []item.Row        `json:"items"`
	Center *item.CenterPoint `json:"center,omitempty"`
}

// Manifest describes a bundle.
type Manifest struct {
	Title      string    `json:"title,omitempty"`
	Items      int       `json:"items"`
	ExportedAt time.Time `json:"exported_at"`
	Entries    []string  `json:"entries"`
}

// Bundle writes a zip holding the board rows, an SVG preview, a PNG
// thumbnail and a manifest.
func Bundle(w io.Writer, b Board, opt BundleOptions) error {
	now := time.Now
	if opt.Now != nil {
		now = opt.Now
	}
	stamp := now().UTC()
	thumbW := opt.ThumbnailWidth
	if thumbW <= 0 {
		thumbW = 512
	}

	rows := make([]item.Row, len(b.Items))
	for i, it := range b.Items {
		rows[i] = item.ToRow(it)
	}
	boardJSON, err := json.MarshalIndent(BoardFile{Items: rows, Center: b.Center}, "", "  ")
	if err != nil {
		return fmt.Errorf("encode board: %w", err)
	}
	var svg bytes.Buffer
	if err := SVG(&svg, b, SVGOptions{}); err != nil {
		return err
	}
	var thumb bytes.Buffer
	if err := PNG(&thumb, b, PNGOptions{Width: thumbW}); err != nil {
		return err
	}
	entries := []string{BundleBoard, BundlePreview, BundleThumbnail}
	manifest, err := json.MarshalIndent(Manifest{Title: b.Title, Items: len(rows), ExportedAt: stamp, Entries: entries}, "", "  ")
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}

	zw := zip.NewWriter(w)
	files := []struct {
		name string
		data []byte
	}{
		{BundleManifest, manifest},
		{BundleBoard, boardJSON},
		{BundlePreview, svg.Bytes()},
		{BundleThumbnail, thumb.Bytes()},
	}
	for _, f := range files {
		if err := addZipFile(zw, f.name, f.data, stamp); err != nil {
			_ = zw.Close()
			return fmt.Errorf("zip add %s: %w", f.name, err)
		}
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("close zip: %w", err)
	}
	return nil
}

// ReadBundle loads the rows and center point from a bundle.
func ReadBundle(r io.ReaderAt, size int64) (BoardFile, error) {
	zr, err := zip.NewReader(r, size)
	if err != nil {
		return BoardFile{}, fmt.Errorf("open bundle: %w", err)
	}
	f, err := zr.Open(BundleBoard)
	if err != nil {
		return BoardFile{}, fmt.Errorf("open %s: %w", BundleBoard, err)
	}
	defer func() { _ = f.Close() }()
	var bf BoardFile
	if err := json.NewDecoder(f).Decode(&bf); err != nil {
		return BoardFile{}, fmt.Errorf("decode %s: %w", BundleBoard, err)
	}
	return bf, nil
}

func addZipFile(zw *zip.Writer, name string, data []byte, modified time.Time) error {
	w, err := zw.CreateHeader(&zip.FileHeader{Name: name, Method: zip.Deflate, Modified: modified})
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}
