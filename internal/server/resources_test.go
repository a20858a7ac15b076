// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package server

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResourceTableFirstMatchWins(t *testing.T) {
	var tbl ResourceTable
	tbl.Register(Resource{Path: "/a", Kind: ResourceBytes, Bytes: []byte("first")})
	tbl.Register(Resource{Path: "/a", Kind: ResourceBytes, Bytes: []byte("second")})

	req := httptest.NewRequest(http.MethodGet, "/a", nil)
	w := httptest.NewRecorder()
	tbl.Handler(http.NotFound)(w, req)

	require.Equal(t, "first", w.Body.String())
}

func TestResourceTableFallsThroughToNotFound(t *testing.T) {
	var tbl ResourceTable
	req := httptest.NewRequest(http.MethodGet, "/missing", nil)
	w := httptest.NewRecorder()
	tbl.Handler(http.NotFound)(w, req)

	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestResourceTableServesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "page.html")
	require.NoError(t, os.WriteFile(path, []byte("<html></html>"), 0o644))

	var tbl ResourceTable
	tbl.Register(Resource{Path: "/page", Kind: ResourceFile, FilePath: path, ContentType: "text/html"})

	req := httptest.NewRequest(http.MethodGet, "/page", nil)
	w := httptest.NewRecorder()
	tbl.Handler(http.NotFound)(w, req)

	require.Equal(t, "<html></html>", w.Body.String())
	require.Equal(t, "text/html", w.Header().Get("Content-Type"))
}

func TestRegisterPrecompressedServesGzip(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "mng.html")
	require.NoError(t, os.WriteFile(src, []byte("<html>indigo</html>"), 0o644))

	var tbl ResourceTable
	require.NoError(t, tbl.RegisterPrecompressed("/mng.html", src, "text/html"))
	require.FileExists(t, src+".gz")

	req := httptest.NewRequest(http.MethodGet, "/mng.html", nil)
	w := httptest.NewRecorder()
	tbl.Handler(http.NotFound)(w, req)

	require.Equal(t, "gzip", w.Header().Get("Content-Encoding"))
	require.NotEmpty(t, w.Body.Bytes())
}
