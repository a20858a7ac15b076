// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package xmlproto

import (
	"encoding/base64"
	"fmt"
	"io"
	"sync"

	"github.com/indigo-astronomy/indigo-bus/internal/blob"
	"github.com/indigo-astronomy/indigo-bus/internal/bus"
	"github.com/indigo-astronomy/indigo-bus/internal/property"
	"github.com/indigo-astronomy/indigo-bus/internal/util"
	"github.com/indigo-astronomy/indigo-bus/pkg/log"
)

// Adapter bridges one TCP connection speaking the XML dialect to the
// bus. It is an ordinary bus.Client: the bus calls its Define/Update/
// Delete/Message hooks for forwarding, and ServeConn's read loop drives
// requests parsed off the wire into bus.Change/EnumerateProperties/
// EnableBlob calls. It has no synthetic *device* facet, so
// server-to-server chaining is not supported; every XML peer here is a
// bus client.
type Adapter struct {
	name   string
	w      io.Writer
	dec    *Decoder
	blobs  *blob.Cache
	handle *bus.ClientHandle

	writeMu sync.Mutex
}

var _ bus.Client = (*Adapter)(nil)

// New wraps an XML connection identified by name (typically the remote
// address).
func New(name string, rw io.ReadWriter, blobs *blob.Cache) *Adapter {
	return &Adapter{name: name, w: rw, dec: NewDecoder(rw), blobs: blobs}
}

func (a *Adapter) Name() string   { return a.name }
func (a *Adapter) Attach(*bus.Bus) {}
func (a *Adapter) Detach(*bus.Bus) {}

func (a *Adapter) DefineProperty(b *bus.Bus, p *property.Property) {
	a.send(b, p, WriteDefine)
}

func (a *Adapter) UpdateProperty(b *bus.Bus, p *property.Property) {
	a.send(b, p, WriteUpdate)
}

func (a *Adapter) send(b *bus.Bus, p *property.Property, write func(io.Writer, *property.Property, bus.BlobMode) error) {
	mode := a.handle.BlobModeFor(p.Key(), true)
	if mode == bus.BlobURL && a.handle.Version() == property.VersionLegacy {
		// A 1.7 peer has no notion of BLOB URLs; downgrade to inline (§4.4).
		mode = bus.BlobAlso
	}

	a.writeMu.Lock()
	defer a.writeMu.Unlock()
	if err := write(a.w, p, mode); err != nil {
		log.Warnf("xmlproto: write to %s failed: %v", a.name, err)
	}
}

func (a *Adapter) DeleteProperty(b *bus.Bus, device, name string) {
	a.writeMu.Lock()
	defer a.writeMu.Unlock()
	if err := WriteDelete(a.w, device, name); err != nil {
		log.Warnf("xmlproto: write to %s failed: %v", a.name, err)
	}
}

func (a *Adapter) Message(b *bus.Bus, device, text string) {
	a.writeMu.Lock()
	defer a.writeMu.Unlock()
	if err := WriteMessage(a.w, device, text); err != nil {
		log.Warnf("xmlproto: write to %s failed: %v", a.name, err)
	}
}

// ServeConn runs the adapter's read loop until the connection closes or
// a fatal protocol error occurs, per §4.7's device/client lifecycle:
// attach on entry, DetachClient on exit. Because the adapter is only a
// client, detaching it sends no delProperty messages to other clients.
func ServeConn(b *bus.Bus, name string, rw io.ReadWriter, blobs *blob.Cache) {
	a := New(name, rw, blobs)
	h := bus.NewClientHandle(a)
	a.handle = h

	b.AttachClient(h)
	defer b.DetachClient(h)

	for {
		req, err := a.dec.Next()
		if err != nil {
			if err != io.EOF {
				log.Debugf("xmlproto: %s: %v", name, err)
			}
			return
		}

		switch r := req.(type) {
		case *GetPropertiesRequest:
			v, ok := negotiateVersion(r.Version)
			if !ok {
				a.Message(b, "", fmt.Sprintf("unsupported protocol version %q", r.Version))
				return
			}
			h.LockVersion(v)
			b.EnumerateProperties(h, bus.Selector{Device: r.Device, Name: r.Name})

		case *EnableBlobRequest:
			mode := parseBlobMode(r.Mode)
			b.EnableBlob(h, r.Device, r.Name, mode)

		case *ChangeRequest:
			if r.Property.Type == property.TypeBLOB {
				decodeInlineBlobs(r.Property)
			}
			b.Change(h, r.Property)
		}
	}
}

// knownVersions lists every version string a getProperties/version
// attribute may legitimately carry (the empty string means "unstated",
// which negotiates to current).
var knownVersions = []string{"1.7", "2.0", ""}

func negotiateVersion(v string) (property.Version, bool) {
	if !util.Contains(knownVersions, v) {
		return property.VersionCurrent, false
	}
	if v == "1.7" {
		return property.VersionLegacy, true
	}
	return property.VersionCurrent, true
}

func parseBlobMode(s string) bus.BlobMode {
	switch s {
	case "Never":
		return bus.BlobNever
	case "Also":
		return bus.BlobAlso
	case "Only":
		return bus.BlobOnly
	case "URL":
		return bus.BlobURL
	default:
		return bus.BlobNever
	}
}

// decodeInlineBlobs base64-decodes, in place, the payload text captured
// for BLOB items in a newBLOBVector and sets each item's BlobSize to the
// decoded length. Items whose text is not valid base64 are left as they
// are. The payloads are not registered into the BLOB cache.
func decodeInlineBlobs(p *property.Property) {
	for i := range p.Items {
		raw, err := base64.StdEncoding.DecodeString(p.Items[i].Text)
		if err != nil {
			continue
		}
		p.Items[i].BlobSize = int64(len(raw))
		p.Items[i].Text = string(raw)
	}
}
