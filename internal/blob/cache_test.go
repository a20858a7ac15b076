// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package blob

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPublishThenFetchRoundTrips(t *testing.T) {
	c := NewCache()
	id := Identity{Device: "Camera", Property: "CCD1", Item: "IMAGE"}
	e := c.Register(id, nil)

	c.Publish(e, []byte("fitsdata"), ".fits")

	content, format, err := e.Fetch()
	require.NoError(t, err)
	require.Equal(t, ".fits", format)
	require.Equal(t, []byte("fitsdata"), content)
}

func TestLazyPopulateOnFirstFetch(t *testing.T) {
	c := NewCache()
	id := Identity{Device: "Camera", Property: "CCD1", Item: "IMAGE"}
	calls := 0
	e := c.Register(id, func(Identity) ([]byte, string, error) {
		calls++
		return []byte("lazy"), ".jpeg", nil
	})

	content, format, err := e.Fetch()
	require.NoError(t, err)
	require.Equal(t, "lazy", string(content))
	require.Equal(t, ".jpeg", format)

	_, _, _ = e.Fetch()
	require.Equal(t, 1, calls, "populate must only run once, on first fetch")
}

func TestURLPathUsesHexHandleNotAddress(t *testing.T) {
	c := NewCache()
	id := Identity{Device: "Camera", Property: "CCD1", Item: "IMAGE"}
	e := c.Register(id, nil)
	c.Publish(e, []byte("x"), ".fits")

	path := e.URLPath()
	require.True(t, strings.HasPrefix(path, "/blob/"))
	require.True(t, strings.HasSuffix(path, ".fits"))

	h, ext, err := SplitURLPath(path)
	require.NoError(t, err)
	require.Equal(t, ".fits", ext)
	require.Equal(t, e.Handle(), h)
}

func TestWriteHTTPCompressesUnlessJPEG(t *testing.T) {
	c := NewCache()

	e := c.Register(Identity{Device: "Camera", Item: "IMAGE"}, nil)
	c.Publish(e, bytes.Repeat([]byte("a"), 1000), ".fits")

	headers := map[string]string{}
	var buf bytes.Buffer
	err := e.WriteHTTP(&buf, true, func(k, v string) { headers[k] = v })
	require.NoError(t, err)
	require.Equal(t, "gzip", headers["Content-Encoding"])
	require.Equal(t, "1000", headers["X-Uncompressed-Content-Length"])

	e2 := c.Register(Identity{Device: "Camera", Item: "IMAGE2"}, nil)
	c.Publish(e2, []byte("jpegbytes"), ".jpeg")
	headers2 := map[string]string{}
	var buf2 bytes.Buffer
	err = e2.WriteHTTP(&buf2, true, func(k, v string) { headers2[k] = v })
	require.NoError(t, err)
	require.Empty(t, headers2["Content-Encoding"])
}

func TestUnregisterThenSweepReclaims(t *testing.T) {
	c := NewCache()
	id := Identity{Device: "Camera", Item: "IMAGE"}
	e := c.Register(id, nil)
	h := e.Handle()

	c.Unregister(id)
	require.Nil(t, c.Validate(id))
	require.NotNil(t, c.Lookup(h), "handle should remain resolvable until swept")

	n := c.Sweep()
	require.Equal(t, 1, n)
	require.Nil(t, c.Lookup(h))
}
