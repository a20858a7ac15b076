// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package jsonproto

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"sync"

	"github.com/indigo-astronomy/indigo-bus/internal/bus"
	"github.com/indigo-astronomy/indigo-bus/internal/property"
	"github.com/indigo-astronomy/indigo-bus/internal/util"
	"github.com/indigo-astronomy/indigo-bus/internal/wsframe"
	"github.com/indigo-astronomy/indigo-bus/pkg/log"
)

// Adapter bridges one connection speaking the JSON dialect, either
// bare over TCP or framed as WebSocket text messages, to the bus. Like
// xmlproto.Adapter it is an ordinary bus.Client; it has no synthetic
// device facet, so a remote peer never appears on the bus as a device.
type Adapter struct {
	name string
	ws   *wsframe.Reader // non-nil in WebSocket mode
	w    io.Writer
	dec  *Decoder // non-nil in bare-TCP mode

	handle  *bus.ClientHandle
	writeMu sync.Mutex
}

var _ bus.Client = (*Adapter)(nil)

// NewBare wraps a bare TCP connection (first byte was '{').
func NewBare(name string, rw io.ReadWriter) *Adapter {
	return &Adapter{name: name, w: rw, dec: NewDecoder(NewScanner(rw))}
}

// NewWebSocket wraps a connection already upgraded to WebSocket; reads
// use wsframe framing, one JSON object per text frame.
func NewWebSocket(name string, rw io.ReadWriter) *Adapter {
	return &Adapter{name: name, w: rw, ws: wsframe.NewReader(rw, rw)}
}

func (a *Adapter) Name() string    { return a.name }
func (a *Adapter) Attach(*bus.Bus) {}
func (a *Adapter) Detach(*bus.Bus) {}

func (a *Adapter) DefineProperty(b *bus.Bus, p *property.Property) {
	a.send(p, WriteDefine)
}

func (a *Adapter) UpdateProperty(b *bus.Bus, p *property.Property) {
	a.send(p, WriteUpdate)
}

func (a *Adapter) send(p *property.Property, write func(io.Writer, *property.Property, bus.BlobMode) error) {
	mode := a.handle.BlobModeFor(p.Key(), false)

	var buf bytes.Buffer
	if err := write(&buf, p, mode); err != nil {
		log.Warnf("jsonproto: encode for %s failed: %v", a.name, err)
		return
	}
	a.writeOut(buf.Bytes())
}

func (a *Adapter) DeleteProperty(b *bus.Bus, device, name string) {
	var buf bytes.Buffer
	WriteDelete(&buf, device, name)
	a.writeOut(buf.Bytes())
}

func (a *Adapter) Message(b *bus.Bus, device, text string) {
	var buf bytes.Buffer
	WriteMessage(&buf, device, text)
	a.writeOut(buf.Bytes())
}

func (a *Adapter) writeOut(payload []byte) {
	a.writeMu.Lock()
	defer a.writeMu.Unlock()

	var err error
	if a.ws != nil {
		err = wsframe.WriteText(a.w, payload)
	} else {
		_, err = a.w.Write(payload)
	}
	if err != nil {
		log.Warnf("jsonproto: write to %s failed: %v", a.name, err)
	}
}

func (a *Adapter) nextMessage() (interface{}, error) {
	if a.ws != nil {
		payload, err := a.ws.ReadText()
		if err != nil {
			return nil, err
		}
		d := NewDecoder(NewScanner(bytes.NewReader(payload)))
		return d.Next()
	}
	return a.dec.Next()
}

// ServeConn runs the adapter's read loop until the connection closes.
func ServeConn(b *bus.Bus, name string, rw io.ReadWriter, ws bool) {
	var a *Adapter
	if ws {
		a = NewWebSocket(name, rw)
	} else {
		a = NewBare(name, rw)
	}
	h := bus.NewClientHandle(a)
	a.handle = h

	b.AttachClient(h)
	defer b.DetachClient(h)

	for {
		req, err := a.nextMessage()
		if err != nil {
			if err != io.EOF && err != wsframe.ErrClosed {
				log.Debugf("jsonproto: %s: %v", name, err)
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
			b.EnableBlob(h, r.Device, r.Name, parseBlobMode(r.Mode))

		case *ChangeRequest:
			if r.Property.Type == property.TypeBLOB {
				decodeInlineBlobs(r.Property)
			}
			b.Change(h, r.Property)
		}
	}
}

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
	case "Never", "never":
		return bus.BlobNever
	case "Also", "also":
		return bus.BlobAlso
	case "Only", "only":
		return bus.BlobOnly
	case "URL", "url":
		return bus.BlobURL
	default:
		return bus.BlobURL
	}
}

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
