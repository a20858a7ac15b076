// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package server

import (
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"github.com/indigo-astronomy/indigo-bus/internal/blob"
	"github.com/indigo-astronomy/indigo-bus/pkg/log"
)

// blobGetHandler serves GET /blob/<hex><ext> from the cache (§4.6,
// §6.5). 404 if the handle is unknown.
func blobGetHandler(cache *blob.Cache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h, _, err := blob.SplitURLPath(mux.Vars(r)["rest"])
		if err != nil {
			http.NotFound(w, r)
			return
		}
		e := cache.Lookup(h)
		if e == nil {
			http.NotFound(w, r)
			return
		}

		acceptGzip := strings.Contains(r.Header.Get("Accept-Encoding"), "gzip")
		if err := e.WriteHTTP(w, acceptGzip, func(k, v string) { w.Header().Set(k, v) }); err != nil {
			log.Warnf("server: blob GET %s failed: %v", r.URL.Path, err)
			http.Error(w, "blob read failed", http.StatusInternalServerError)
		}
	}
}

// blobPutHandler serves PUT /blob/<hex><ext>, replacing the entry's
// payload (§6.5). 404 if the handle is unknown.
func blobPutHandler(cache *blob.Cache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h, ext, err := blob.SplitURLPath(mux.Vars(r)["rest"])
		if err != nil {
			http.NotFound(w, r)
			return
		}
		e := cache.Lookup(h)
		if e == nil {
			http.NotFound(w, r)
			return
		}

		if _, err := e.Replace(r.Body, ext); err != nil {
			log.Warnf("server: blob PUT %s failed: %v", r.URL.Path, err)
			http.Error(w, "blob replace failed", http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}
