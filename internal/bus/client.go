// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package bus

import (
	"sync"

	"github.com/indigo-astronomy/indigo-bus/internal/property"
)

// BlobMode is the delivery mode of an enable-BLOB record.
type BlobMode int

const (
	BlobNever BlobMode = iota
	BlobAlso
	BlobOnly
	BlobURL
)

// EnableBlobRecord is one policy entry on a client. Device and Name are
// wildcards when empty; specificity is (device && name) > device-only >
// name-only > default.
type EnableBlobRecord struct {
	Device string
	Name   string
	Mode   BlobMode
}

func (r EnableBlobRecord) specificity() int {
	s := 0
	if r.Device != "" {
		s += 2
	}
	if r.Name != "" {
		s += 1
	}
	return s
}

func (r EnableBlobRecord) matches(k property.Key) bool {
	if r.Device != "" && r.Device != k.Device {
		return false
	}
	if r.Name != "" && r.Name != k.Name {
		return false
	}
	return true
}

// Client is the callback contract (attach, define, update, delete,
// message, detach) a protocol adapter or in-process consumer implements.
type Client interface {
	Name() string

	Attach(b *Bus)
	DefineProperty(b *Bus, p *property.Property)
	UpdateProperty(b *Bus, p *property.Property)
	DeleteProperty(b *Bus, device, name string)
	Message(b *Bus, device, text string)
	Detach(b *Bus)
}

// ClientHandle wraps a registered Client with its bus-local state: the
// locked wire-protocol version and its enable-BLOB policy list. The bus
// hands out *ClientHandle (never the bare Client) so device hooks can
// address change/enumerate requests back to a specific peer and so the
// enable-BLOB policy travels with the registration, not the adapter.
type ClientHandle struct {
	Client
	mu      sync.Mutex
	version property.Version
	locked  bool
	blobs   []EnableBlobRecord
}

// LockVersion pins the client's protocol version at the time of its
// first getProperties; later calls are no-ops (§6.4).
func (h *ClientHandle) LockVersion(v property.Version) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.locked {
		h.version = v
		h.locked = true
	}
}

// Version returns the client's locked protocol version.
func (h *ClientHandle) Version() property.Version {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.version
}

// SetEnableBlob installs or replaces the policy record matching
// (device, name); an empty device and name updates the default.
func (h *ClientHandle) SetEnableBlob(device, name string, mode BlobMode) {
	h.mu.Lock()
	defer h.mu.Unlock()
	rec := EnableBlobRecord{Device: device, Name: name, Mode: mode}
	for i, r := range h.blobs {
		if r.Device == device && r.Name == name {
			h.blobs[i] = rec
			return
		}
	}
	h.blobs = append(h.blobs, rec)
}

// defaultBlobMode returns the protocol-dependent default: a legacy XML
// peer (1.7) never sends enableBLOB, so it defaults to also (inline);
// a current XML peer defaults to never; JSON (and WebSocket-framed
// JSON) defaults to url (§4.2, §6.4).
func defaultBlobMode(v property.Version, xml bool) BlobMode {
	if xml {
		if v == property.VersionLegacy {
			return BlobAlso
		}
		return BlobNever
	}
	return BlobURL
}

// BlobModeFor resolves the most-specific matching enable-BLOB record for
// a given property key, falling back to the protocol default.
func (h *ClientHandle) BlobModeFor(k property.Key, xmlProtocol bool) BlobMode {
	h.mu.Lock()
	defer h.mu.Unlock()

	best := -1
	mode := defaultBlobMode(h.version, xmlProtocol)
	for _, r := range h.blobs {
		if !r.matches(k) {
			continue
		}
		if s := r.specificity(); s > best {
			best = s
			mode = r.Mode
		}
	}
	return mode
}
