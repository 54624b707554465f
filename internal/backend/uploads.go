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
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	applog "github.com/mjsxi/matts-infinite-canvas-sub000/internal/log"
)

// UploadsPath is the URL prefix stored blobs are served under.
const UploadsPath = "/uploads/"

// UploadResult is the response of a blob upload. Width and height are the
// natural image size, zero for videos and undecodable files.
type UploadResult struct {
	URL    string `json:"url"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// safeName reduces name to a flat file name of letters, digits, dot, dash and
// underscore.
func safeName(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			b.WriteRune(r)
		case r == ' ':
			b.WriteRune('_')
		}
	}
	out := strings.TrimLeft(b.String(), ".")
	if out == "" {
		return "upload"
	}
	return out
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	l := applog.WithOperation(s.log, "upload")
	r.Body = http.MaxBytesReader(w, r.Body, s.env.MaxUploadBytes+1<<20)
	f, hdr, err := r.FormFile("file")
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			respondWithError(w, http.StatusRequestEntityTooLarge,
				fmt.Sprintf("file exceeds the %s upload limit", humanize.Bytes(uint64(s.env.MaxUploadBytes))))
			return
		}
		respondWithError(w, http.StatusBadRequest, "multipart field \"file\" is required")
		return
	}
	defer f.Close()
	if hdr.Size > s.env.MaxUploadBytes {
		respondWithError(w, http.StatusRequestEntityTooLarge,
			fmt.Sprintf("file is %s; the upload limit is %s", humanize.Bytes(uint64(hdr.Size)), humanize.Bytes(uint64(s.env.MaxUploadBytes))))
		return
	}

	name := safeName(hdr.Filename)
	out, err := os.OpenFile(filepath.Join(s.env.UploadDir, name), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if errors.Is(err, os.ErrExist) {
		name = uuid.NewString()[:8] + "-" + name
		out, err = os.OpenFile(filepath.Join(s.env.UploadDir, name), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	}
	if err != nil {
		l.Error("create blob failed", applog.Err(err))
		respondWithError(w, http.StatusInternalServerError, "could not store file")
		return
	}
	n, err := io.Copy(out, f)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(out.Name())
		l.Error("write blob failed", applog.Err(err))
		respondWithError(w, http.StatusInternalServerError, "could not store file")
		return
	}

	res := UploadResult{URL: UploadsPath + name}
	if _, err := f.Seek(0, io.SeekStart); err == nil {
		if cfg, _, err := image.DecodeConfig(f); err == nil {
			res.Width, res.Height = cfg.Width, cfg.Height
		}
	}
	l.Info("blob stored", slog.String("name", name), slog.String("size", humanize.Bytes(uint64(n))),
		slog.Int("width", res.Width), slog.Int("height", res.Height))
	respondWithJSON(w, http.StatusCreated, res)
}
