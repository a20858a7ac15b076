// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package server

import (
	"io"
	"net"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPeekedConnReplaysFirstByte(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	go func() {
		client.Write([]byte("<getProperties/>"))
	}()

	pc := newPeekedConn(server)
	b, err := pc.peekByte()
	require.NoError(t, err)
	require.Equal(t, byte('<'), b)

	buf := make([]byte, len("<getProperties/>"))
	_, err = io.ReadFull(pc, buf)
	require.NoError(t, err)
	require.Equal(t, "<getProperties/>", string(buf))
}

func TestOnceListenerYieldsExactlyOneConn(t *testing.T) {
	server, client := net.Pipe()
	defer client.Close()

	ol := newOnceListener(server)
	c, err := ol.Accept()
	require.NoError(t, err)
	require.Equal(t, server, c)

	ol.Close()
	_, err = ol.Accept()
	require.ErrorIs(t, err, net.ErrClosed)
}
