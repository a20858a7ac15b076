// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package server

import (
	"bufio"
	"fmt"
	"net"
	"net/http"

	"github.com/indigo-astronomy/indigo-bus/internal/bus"
	"github.com/indigo-astronomy/indigo-bus/internal/jsonproto"
	"github.com/indigo-astronomy/indigo-bus/internal/wsframe"
	"github.com/indigo-astronomy/indigo-bus/pkg/log"
)

// rootHandler implements GET "/": a WebSocket upgrade when requested,
// otherwise a 301 redirect to /mng.html (§4.6, §6.5).
func rootHandler(b *bus.Bus) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Upgrade") == "websocket" {
			upgradeWebSocket(b, w, r)
			return
		}
		http.Redirect(w, r, "/mng.html", http.StatusMovedPermanently)
	}
}

// upgradeWebSocket performs the RFC 6455 handshake by hand (Sec-
// WebSocket-Key + fixed GUID -> SHA-1 -> base64 -> Sec-WebSocket-
// Accept) and then hijacks the connection to run the JSON adapter in
// WebSocket mode for the remainder of its life.
func upgradeWebSocket(b *bus.Bus, w http.ResponseWriter, r *http.Request) {
	key := r.Header.Get("Sec-WebSocket-Key")
	if key == "" {
		http.Error(w, "missing Sec-WebSocket-Key", http.StatusBadRequest)
		return
	}

	hj, ok := w.(http.Hijacker)
	if !ok {
		http.Error(w, "websocket upgrade unsupported", http.StatusInternalServerError)
		return
	}
	conn, rw, err := hj.Hijack()
	if err != nil {
		log.Warnf("server: websocket hijack failed: %v", err)
		return
	}
	defer conn.Close()

	accept := wsframe.AcceptKey(key)
	resp := fmt.Sprintf(
		"HTTP/1.1 101 Switching Protocols\r\n"+
			"Upgrade: websocket\r\n"+
			"Connection: Upgrade\r\n"+
			"Sec-WebSocket-Accept: %s\r\n\r\n", accept)
	if _, err := rw.Write([]byte(resp)); err != nil {
		return
	}
	if err := rw.Flush(); err != nil {
		return
	}

	jsonproto.ServeConn(b, conn.RemoteAddr().String(), wsConnRW{conn, rw}, true)
}

// wsConnRW adapts a hijacked connection plus its buffered readwriter
// into a single io.ReadWriter that preserves any bytes the HTTP layer
// had already buffered past the handshake, flushing on every write
// since each wsframe call is a complete, self-contained frame.
type wsConnRW struct {
	conn net.Conn
	rw   *bufio.ReadWriter
}

func (c wsConnRW) Read(p []byte) (int, error) { return c.rw.Read(p) }

func (c wsConnRW) Write(p []byte) (int, error) {
	n, err := c.rw.Write(p)
	if err != nil {
		return n, err
	}
	return n, c.rw.Flush()
}
