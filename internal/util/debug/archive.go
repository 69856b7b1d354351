// Copyright 2024 The pgfetch Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package debug

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"slices"
	"time"

	"go.uber.org/zap"
	"golang.org/x/exp/maps"
)

// archivePath is the URL path of the debug archive handler.
const archivePath = "/debug/archive"

// addToZip adds a new file to the zip archive.
//
// Passed [io.ReadCloser] is always closed.
func addToZip(w *zip.Writer, name string, r io.ReadCloser) (err error) {
	defer func() {
		if e := r.Close(); e != nil && err == nil {
			err = e
		}
	}()

	f, err := w.CreateHeader(&zip.FileHeader{
		Name:   name,
		Method: zip.Deflate,
	})
	if err != nil {
		return
	}

	_, err = io.Copy(f, r)

	return
}

// filterExpvar filters out sensitive information from /debug/vars output.
func filterExpvar(r io.ReadCloser, l *zap.Logger) io.ReadCloser {
	defer r.Close() //nolint:errcheck // we are only reading it

	var res bytes.Buffer

	var data map[string]any
	if err := json.NewDecoder(r).Decode(&data); err != nil {
		l.Error("Failed to decode expvar", zap.Error(err))
		return io.NopCloser(&res)
	}

	delete(data, "cmdline")

	e := json.NewEncoder(&res)
	e.SetIndent("", "  ")

	if err := e.Encode(data); err != nil {
		l.Error("Failed to encode expvar", zap.Error(err))
	}

	return io.NopCloser(&res)
}

// archiveHandler returns a handler that creates a zip archive with various debug information.
func archiveHandler(l *zap.Logger) http.HandlerFunc {
	return func(rw http.ResponseWriter, req *http.Request) {
		name := fmt.Sprintf("pgfetch-%s.zip", time.Now().Format("2006-01-02-15-04-05"))

		rw.Header().Set("Content-Type", "application/zip")
		rw.Header().Set("Content-Disposition", "attachment; filename="+name)

		ctx := req.Context()
		zipWriter := zip.NewWriter(rw)
		errs := map[string]error{}

		defer func() {
			files := maps.Keys(errs)
			slices.Sort(files)

			var b bytes.Buffer
			for _, f := range files {
				b.WriteString(fmt.Sprintf("%s: %v\n", f, errs[f]))
			}

			if err := addToZip(zipWriter, "errors.txt", io.NopCloser(&b)); err != nil {
				l.Error("Failed to add errors.txt to archive", zap.Error(err))
			}

			if err := zipWriter.Close(); err != nil {
				l.Error("Failed to close archive", zap.Error(err))
			}

			l.Info("Debug archive created", zap.String("name", name))
		}()

		host := ctx.Value(http.LocalAddrContextKey).(net.Addr)

		for _, f := range []struct {
			file string
			path string
		}{
			{file: "logs.txt", path: "/debug/logs"},
			{file: "metrics.txt", path: "/debug/metrics"},
			{file: "vars.json", path: "/debug/vars"},
			{file: "goroutine.pprof", path: "/debug/pprof/goroutine"},
			{file: "block.pprof", path: "/debug/pprof/block"},
			{file: "heap.pprof", path: "/debug/pprof/heap?gc=1"},
			{file: "profile.pprof", path: "/debug/pprof/profile?seconds=10"},
			{file: "trace.out", path: "/debug/pprof/trace?seconds=10"},
		} {
			fReq, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://"+host.String()+f.path, nil)
			if err != nil {
				errs[f.file] = err
				continue
			}

			l.Debug("Fetching file for archive", zap.String("file", f.file), zap.String("url", fReq.URL.String()))

			resp, err := http.DefaultClient.Do(fReq)
			if err == nil {
				r := resp.Body
				if f.path == "/debug/vars" {
					r = filterExpvar(r, l)
				}

				err = addToZip(zipWriter, f.file, r)
			}

			errs[f.file] = err
		}
	}
}
