// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package bus implements the bus core (C2): the registry of devices and
// clients and the fan-out of enumerate/define/update/delete/change/
// message traffic between them. The bus is the only code path that
// invokes device/client callbacks; it is the single root object for a
// process (§9, "a single Bus instance is the root; its lifetime is the
// process").
package bus

import (
	"sync"

	"github.com/indigo-astronomy/indigo-bus/internal/property"
	"github.com/indigo-astronomy/indigo-bus/pkg/log"
)

// Bus is the process-wide broker. The zero value is not usable; use New.
type Bus struct {
	// registryMu guards devices/clients membership and the tracked
	// properties. Define, Delete and Update take the writer side (Update
	// rewrites the tracked copy in place); Change, Message, EnableBlob
	// and EnumerateProperties take the reader side.
	registryMu sync.RWMutex
	devices    map[string]Device
	clients    map[*ClientHandle]struct{}

	// properties tracks every defined (device, name) so Delete and
	// EnumerateProperties have something to answer from without
	// re-querying devices synchronously.
	properties map[property.Key]*property.Property

	// outboundMu serialises all callback dispatch per opposite-set
	// member: one mutex per protocol-adapter client guarantees
	// in-order delivery (§5, ordering guarantee 1).
	outboundMu map[interface{}]*sync.Mutex
	outboundL  sync.Mutex

	draining bool
	drainMu  sync.Mutex
}

// New returns an empty Bus.
func New() *Bus {
	return &Bus{
		devices:    map[string]Device{},
		clients:    map[*ClientHandle]struct{}{},
		properties: map[property.Key]*property.Property{},
		outboundMu: map[interface{}]*sync.Mutex{},
	}
}

func (b *Bus) lockFor(member interface{}) *sync.Mutex {
	b.outboundL.Lock()
	defer b.outboundL.Unlock()
	m, ok := b.outboundMu[member]
	if !ok {
		m = &sync.Mutex{}
		b.outboundMu[member] = m
	}
	return m
}

// AttachDevice installs the device in the registry and synchronously
// invokes Attach (§4.7).
func (b *Bus) AttachDevice(d Device) {
	b.registryMu.Lock()
	b.devices[d.Name()] = d
	b.registryMu.Unlock()

	log.Infof("bus: device %q attached", d.Name())
	d.Attach(b)
}

// DetachDevice invokes Detach and only removes the device from the
// registry after the hook returns, guaranteeing no further callbacks
// reach it (§4.7).
func (b *Bus) DetachDevice(d Device) {
	d.Detach(b)

	b.registryMu.Lock()
	delete(b.devices, d.Name())
	for k := range b.properties {
		if k.Device == d.Name() {
			delete(b.properties, k)
		}
	}
	b.registryMu.Unlock()

	log.Infof("bus: device %q detached", d.Name())
}

// AttachClient installs the client and invokes Attach. A client attached
// mid-run typically issues a getProperties (EnumerateProperties) itself
// once attached to synchronise.
func (b *Bus) AttachClient(h *ClientHandle) {
	b.registryMu.Lock()
	b.clients[h] = struct{}{}
	b.registryMu.Unlock()

	h.Attach(b)
}

// DetachClient invokes Detach and removes the client from the registry.
func (b *Bus) DetachClient(h *ClientHandle) {
	h.Detach(b)

	b.registryMu.Lock()
	delete(b.clients, h)
	b.registryMu.Unlock()

	b.outboundL.Lock()
	delete(b.outboundMu, h)
	b.outboundL.Unlock()
}

// Draining reports whether the bus is shutting down; new attaches
// should be refused once true (§4.7 Shutdown).
func (b *Bus) Draining() bool {
	b.drainMu.Lock()
	defer b.drainMu.Unlock()
	return b.draining
}

// BeginShutdown marks the bus as draining; existing workers are expected
// to finish and detach normally.
func (b *Bus) BeginShutdown() {
	b.drainMu.Lock()
	b.draining = true
	b.drainMu.Unlock()
}

// EnumerateProperties dispatches a getProperties request from client to
// every attached device; each device re-emits Define for matching,
// non-hidden properties on its own via b.Define.
func (b *Bus) EnumerateProperties(client *ClientHandle, sel Selector) {
	b.registryMu.RLock()
	devices := make([]Device, 0, len(b.devices))
	for _, d := range b.devices {
		devices = append(devices, d)
	}
	b.registryMu.RUnlock()

	for _, d := range devices {
		if sel.Device != "" && sel.Device != d.Name() {
			continue
		}
		d.EnumerateProperties(b, client, sel)
	}
}

// Define is called by a device (directly, or via EnumerateProperties)
// to announce a property. It replaces any prior instance of the same
// (device, name) and fans out to every attached client (TP-1).
func (b *Bus) Define(p *property.Property) {
	if p.Hidden {
		return
	}

	b.registryMu.Lock()
	b.properties[p.Key()] = p.Clone()
	clients := b.snapshotClientsLocked()
	b.registryMu.Unlock()

	for _, c := range clients {
		b.dispatchDefine(c, p)
	}
}

func (b *Bus) dispatchDefine(c *ClientHandle, p *property.Property) {
	lock := b.lockFor(c)
	lock.Lock()
	defer lock.Unlock()
	c.DefineProperty(b, p)
}

// Update is called by a device to publish new item values/state. It is
// forwarded unconditionally, even for properties the bus has no record
// of (§4.2: "not by the bus itself, which forwards unconditionally").
// Per-client dispatch is serialised by the same per-client lock Define
// uses, which is what gives ordering guarantee 1 (§5).
func (b *Bus) Update(p *property.Property) {
	if p.Hidden {
		return
	}

	b.registryMu.Lock()
	if existing, ok := b.properties[p.Key()]; ok {
		existing.Copy(p)
	}
	clients := b.snapshotClientsLocked()
	b.registryMu.Unlock()

	for _, c := range clients {
		b.dispatchUpdate(c, p)
	}
}

func (b *Bus) dispatchUpdate(c *ClientHandle, p *property.Property) {
	lock := b.lockFor(c)
	lock.Lock()
	defer lock.Unlock()
	c.UpdateProperty(b, p)
}

// Delete removes a property (or, if name is empty, all properties of
// device) and fans the delete out to every client. Delete and Update
// share the per-client outbound lock, so a delete is never interleaved
// with an update dispatch to the same client. An Update issued after
// Delete returns is still forwarded, since Update forwards
// unconditionally.
func (b *Bus) Delete(device, name string) {
	b.registryMu.Lock()
	if name == "" {
		for k := range b.properties {
			if k.Device == device {
				delete(b.properties, k)
			}
		}
	} else {
		delete(b.properties, property.Key{Device: device, Name: name})
	}
	clients := b.snapshotClientsLocked()
	b.registryMu.Unlock()

	for _, c := range clients {
		b.dispatchDelete(c, device, name)
	}
}

func (b *Bus) dispatchDelete(c *ClientHandle, device, name string) {
	lock := b.lockFor(c)
	lock.Lock()
	defer lock.Unlock()
	c.DeleteProperty(b, device, name)
}

// Change routes a client's desired item values to the owning device's
// ChangeProperty hook. Requests for unknown devices are silently
// dropped (§4.2).
func (b *Bus) Change(client *ClientHandle, p *property.Property) {
	b.registryMu.RLock()
	d, ok := b.devices[p.Device]
	b.registryMu.RUnlock()
	if !ok {
		log.Debugf("bus: change_property for unknown device %q dropped", p.Device)
		return
	}
	d.ChangeProperty(b, client, p)
}

// Message forwards a free-form human-readable string to every attached
// client, optionally scoped to a device.
func (b *Bus) Message(device, text string) {
	b.registryMu.RLock()
	clients := b.snapshotClientsLocked()
	b.registryMu.RUnlock()

	for _, c := range clients {
		lock := b.lockFor(c)
		lock.Lock()
		c.Message(b, device, text)
		lock.Unlock()
	}
}

// EnableBlob updates a client's enable-BLOB policy and notifies the
// owning device via its optional EnableBlob hook.
func (b *Bus) EnableBlob(client *ClientHandle, device, name string, mode BlobMode) {
	client.SetEnableBlob(device, name, mode)

	b.registryMu.RLock()
	d, ok := b.devices[device]
	b.registryMu.RUnlock()
	if ok {
		d.EnableBlob(b, client, property.Key{Device: device, Name: name}, mode)
	}
}

// snapshotClientsLocked must be called with registryMu held (read or
// write); it copies the current client set so dispatch never happens
// while the registry lock is held, matching §5's statement that the
// registry lock is only held across membership changes.
func (b *Bus) snapshotClientsLocked() []*ClientHandle {
	out := make([]*ClientHandle, 0, len(b.clients))
	for c := range b.clients {
		out = append(out, c)
	}
	return out
}

// Lookup returns the currently tracked property for k, or nil.
func (b *Bus) Lookup(k property.Key) *property.Property {
	b.registryMu.RLock()
	defer b.registryMu.RUnlock()
	if p, ok := b.properties[k]; ok {
		return p.Clone()
	}
	return nil
}

// NewClientHandle wraps client for attachment to the bus.
func NewClientHandle(c Client) *ClientHandle {
	return &ClientHandle{Client: c}
}
