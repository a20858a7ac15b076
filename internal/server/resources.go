// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package server

import (
	"net/http"
	"os"
	"time"

	"github.com/indigo-astronomy/indigo-bus/internal/util"
)

// ResourceKind discriminates the three entry shapes §4.6 describes for
// the static-resource table.
type ResourceKind int

const (
	ResourceBytes ResourceKind = iota
	ResourceFile
	ResourceHandler
)

// Resource is one entry in the ordered, runtime-registered resource
// table consulted for any HTTP path other than "/", "/blob/...",
// "/metrics" and "/swagger/...".
// Entries are matched in registration order, first match wins.
type Resource struct {
	Path        string
	Kind        ResourceKind
	ContentType string

	Bytes       []byte
	GzippedByte bool // Bytes is already gzip-compressed
	FilePath    string
	Handler     http.HandlerFunc
}

// ResourceTable is the ordered list consulted by the HTTP sub-server.
type ResourceTable struct {
	entries []Resource
}

// Register appends an entry; components call this at startup
// (mirrors the source's runtime resource registration).
func (t *ResourceTable) Register(r Resource) {
	t.entries = append(t.entries, r)
}

// Handler returns an http.Handler that serves the table, falling
// through to notFound when nothing matches.
func (t *ResourceTable) Handler(notFound http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		for _, e := range t.entries {
			if e.Path != r.URL.Path {
				continue
			}
			switch e.Kind {
			case ResourceBytes:
				if e.ContentType != "" {
					w.Header().Set("Content-Type", e.ContentType)
				}
				if e.GzippedByte {
					w.Header().Set("Content-Encoding", "gzip")
				}
				w.Write(e.Bytes)
				return
			case ResourceFile:
				if e.ContentType != "" {
					w.Header().Set("Content-Type", e.ContentType)
				}
				f, err := os.Open(e.FilePath)
				if err != nil {
					http.NotFound(w, r)
					return
				}
				defer f.Close()
				http.ServeContent(w, r, e.FilePath, fileModTime(f), f)
				return

			case ResourceHandler:
				e.Handler(w, r)
				return
			}
		}
		notFound(w, r)
	}
}

// RegisterPrecompressed gzips srcPath once, replacing it with the
// compressed form, and registers the result as a static-bytes resource
// served with Content-Encoding: gzip. Meant for build-time assets
// (e.g. the bundled client page) that are compressed exactly once and
// then read back on every subsequent process start.
func (t *ResourceTable) RegisterPrecompressed(path, srcPath, contentType string) error {
	gzPath := srcPath + ".gz"
	if _, err := os.Stat(gzPath); os.IsNotExist(err) {
		if err := util.CompressFile(srcPath, gzPath); err != nil {
			return err
		}
	}

	bs, err := os.ReadFile(gzPath)
	if err != nil {
		return err
	}

	t.Register(Resource{
		Path:        path,
		Kind:        ResourceBytes,
		ContentType: contentType,
		Bytes:       bs,
		GzippedByte: true,
	})
	return nil
}

func fileModTime(f *os.File) time.Time {
	if fi, err := f.Stat(); err == nil {
		return fi.ModTime()
	}
	return time.Time{}
}
