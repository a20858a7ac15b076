// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package blob implements the BLOB cache (C3): a process-wide,
// content-addressed store of binary payloads referenced from property
// items. Every entry owns its own mutex, following the per-entry
// locking idiom of pkg/lrucache, so that a producer publish and an
// in-flight GET on the same entry serialise while unrelated entries
// proceed in parallel.
package blob

import (
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/indigo-astronomy/indigo-bus/pkg/log"
)

// Identity is the (device, property, item) triple a BLOB is keyed by.
// The source keys by item pointer; Identity is the Go stand-in that an
// opaque integer Handle is allocated for.
type Identity struct {
	Device   string
	Property string
	Item     string
}

// Populator is invoked lazily on first GET when an entry has no content
// yet — many drivers defer image serialisation until fetch time.
type Populator func(id Identity) (content []byte, format string, err error)

// Handle is the opaque, stable, sequential integer the cache allocates
// per registered item. It replaces the source's raw-pointer-as-handle
// convention; its hex encoding is what appears in /blob/<hex><ext> URLs.
type Handle uint64

func (h Handle) String() string {
	return strconv.FormatUint(uint64(h), 16)
}

// ParseHandle decodes the hex form used in URLs.
func ParseHandle(s string) (Handle, error) {
	v, err := strconv.ParseUint(s, 16, 64)
	if err != nil {
		return 0, err
	}
	return Handle(v), nil
}

// Entry is one cached BLOB. Every field access outside of registration
// must happen under mu.
type Entry struct {
	mu sync.Mutex

	id      Identity
	handle  Handle
	format  string
	content []byte
	stale   bool // set by unregister; swept by Cache.Sweep
	touched time.Time

	populate Populator
}

// Format returns the entry's payload format (e.g. ".fits", ".jpeg").
// It takes the entry's lock itself, so callers must not already hold it.
func (e *Entry) Format() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.format
}

// Cache is the process-wide BLOB store.
type Cache struct {
	mu      sync.Mutex
	byID    map[Identity]*Entry
	byHand  map[Handle]*Entry
	nextVal uint64
}

// NewCache returns an empty BLOB cache.
func NewCache() *Cache {
	return &Cache{
		byID:   map[Identity]*Entry{},
		byHand: map[Handle]*Entry{},
	}
}

// Register is called by the owning device when it creates a BLOB item.
// populate may be nil if the device always publishes eagerly.
func (c *Cache) Register(id Identity, populate Populator) *Entry {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.byID[id]; ok {
		e.mu.Lock()
		e.stale = false
		e.populate = populate
		e.mu.Unlock()
		return e
	}

	c.nextVal++
	e := &Entry{
		id:       id,
		handle:   Handle(c.nextVal),
		populate: populate,
		touched:  time.Now(),
	}
	c.byID[id] = e
	c.byHand[e.handle] = e
	return e
}

// Validate looks up an entry by item identity without locking it.
func (c *Cache) Validate(id Identity) *Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.byID[id]
}

// Lookup resolves a wire handle (as decoded from a /blob/<hex> URL) to
// its entry.
func (c *Cache) Lookup(h Handle) *Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.byHand[h]
}

// Unregister is called on property delete or device detach. The entry
// is marked stale rather than removed immediately so that a GET racing
// the delete still observes a consistent (if now-orphaned) handle; the
// housekeeping sweep reclaims stale entries.
func (c *Cache) Unregister(id Identity) {
	c.mu.Lock()
	e, ok := c.byID[id]
	if ok {
		delete(c.byID, id)
	}
	c.mu.Unlock()

	if ok {
		e.mu.Lock()
		e.stale = true
		e.mu.Unlock()
	}
}

// Publish stages a newly produced payload. Must be called by the owning
// device; takes the entry's mutex for the duration of the copy, which
// is what serialises it against any GET reading the same entry (TP-5,
// no torn reads).
func (c *Cache) Publish(e *Entry, content []byte, format string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.content = content
	e.format = format
	e.touched = time.Now()
}

// populateLocked triggers the lazy populator if content is not yet
// present. Called under the entry's lock by Fetch (the HTTP GET path).
func (e *Entry) populateLocked() error {
	if e.content != nil || e.populate == nil {
		return nil
	}
	content, format, err := e.populate(e.id)
	if err != nil {
		return err
	}
	e.content = content
	if format != "" {
		e.format = format
	}
	e.touched = time.Now()
	return nil
}

// Fetch returns the entry's content and format, populating lazily if
// needed; err is the populator's error, if any. It holds the entry's
// mutex for the entire call, matching the source's contract that GET
// handlers hold the lock from the first read of content until the
// bytes are fully copied out.
func (e *Entry) Fetch() (content []byte, format string, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.populateLocked(); err != nil {
		return nil, "", err
	}
	return e.content, e.format, nil
}

// Replace overwrites an entry's payload; used by the HTTP PUT path.
// Takes the mutex across the whole read+store, mirroring the source's
// PUT handler which holds the lock across allocation and read.
func (e *Entry) Replace(r io.Reader, format string) (int64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	var buf bytes.Buffer
	n, err := io.Copy(&buf, r)
	if err != nil {
		return n, err
	}
	e.content = buf.Bytes()
	if format != "" {
		e.format = format
	}
	e.touched = time.Now()
	return n, nil
}

// Handle returns the entry's opaque stable handle.
func (e *Entry) Handle() Handle { return e.handle }

// URLPath renders the canonical /blob/<hex-handle><format> reference.
func (e *Entry) URLPath() string {
	e.mu.Lock()
	format := e.format
	e.mu.Unlock()
	return fmt.Sprintf("/blob/%s%s", e.handle.String(), format)
}

// SplitURLPath parses a "/blob/<hex><ext>" path component into its
// handle and extension.
func SplitURLPath(path string) (Handle, string, error) {
	path = strings.TrimPrefix(path, "/blob/")
	dot := strings.IndexByte(path, '.')
	hexPart := path
	ext := ""
	if dot >= 0 {
		hexPart = path[:dot]
		ext = path[dot:]
	}
	h, err := ParseHandle(hexPart)
	return h, ext, err
}

// compressible decides whether gzip-on-the-fly applies: every format
// except images already compressed (.jpeg), per §4.3.
func compressible(format string) bool {
	return !strings.EqualFold(format, ".jpeg") && !strings.EqualFold(format, ".jpg")
}

// WriteHTTP writes the entry's content to w, applying on-the-fly gzip
// when the client accepts it and the format is not already compressed.
// setHeader is a callback used to set response headers before the body is
// written (kept as a callback so this package does not import net/http).
func (e *Entry) WriteHTTP(w io.Writer, acceptGzip bool, setHeader func(key, value string)) error {
	content, format, err := e.Fetch()
	if err != nil {
		return err
	}

	if acceptGzip && compressible(format) {
		var buf bytes.Buffer
		gz := gzip.NewWriter(&buf)
		if _, err := gz.Write(content); err != nil {
			return err
		}
		if err := gz.Close(); err != nil {
			return err
		}
		setHeader("Content-Encoding", "gzip")
		setHeader("X-Uncompressed-Content-Length", strconv.Itoa(len(content)))
		setHeader("Content-Length", strconv.Itoa(buf.Len()))
		_, err := w.Write(buf.Bytes())
		return err
	}

	setHeader("Content-Length", strconv.Itoa(len(content)))
	_, err = w.Write(content)
	return err
}

// Sweep removes stale entries that are not currently locked by an
// in-flight fetch/replace, returning the count reclaimed. Run
// periodically by internal/housekeeping.
func (c *Cache) Sweep() int {
	c.mu.Lock()
	var stale []Handle
	for h, e := range c.byHand {
		e.mu.Lock()
		isStale := e.stale
		e.mu.Unlock()
		if isStale {
			stale = append(stale, h)
		}
	}
	for _, h := range stale {
		e := c.byHand[h]
		delete(c.byHand, h)
		delete(c.byID, e.id)
	}
	c.mu.Unlock()

	if len(stale) > 0 {
		log.Debugf("blob: swept %d stale cache entries", len(stale))
	}
	return len(stale)
}
