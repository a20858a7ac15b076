// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package server

import (
	"bufio"
	"net"
)

// peekedConn is a net.Conn whose first byte has already been read (to
// sniff the protocol) but is replayed transparently to the first Read
// call, so the XML/JSON parsers and the stdlib HTTP server all see an
// unconsumed stream regardless of which branch C6's dispatch table
// took.
type peekedConn struct {
	net.Conn
	br *bufio.Reader
}

func newPeekedConn(c net.Conn) *peekedConn {
	return &peekedConn{Conn: c, br: bufio.NewReaderSize(c, 4096)}
}

func (c *peekedConn) peekByte() (byte, error) {
	b, err := c.br.Peek(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (c *peekedConn) Read(p []byte) (int, error) {
	return c.br.Read(p)
}

// onceListener is a net.Listener that yields exactly one already-
// accepted connection and then blocks on Accept until Close is called.
// It lets the HTTP branch of C6's per-connection dispatch hand its
// peeked connection to a real *http.Server (and hence to gorilla/mux)
// instead of hand-rolling HTTP parsing, while every other accepted TCP
// connection on the shared listener never reaches it.
type onceListener struct {
	conn   net.Conn
	addr   net.Addr
	connCh chan net.Conn
	done   chan struct{}
}

func newOnceListener(c net.Conn) *onceListener {
	l := &onceListener{addr: c.LocalAddr(), connCh: make(chan net.Conn, 1), done: make(chan struct{})}
	l.connCh <- c
	return l
}

func (l *onceListener) Accept() (net.Conn, error) {
	select {
	case c, ok := <-l.connCh:
		if !ok {
			return nil, net.ErrClosed
		}
		return c, nil
	case <-l.done:
		return nil, net.ErrClosed
	}
}

func (l *onceListener) Close() error {
	select {
	case <-l.done:
	default:
		close(l.done)
	}
	return nil
}

func (l *onceListener) Addr() net.Addr { return l.addr }
