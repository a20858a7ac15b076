// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package bus

import (
	"sync"
	"testing"

	"github.com/indigo-astronomy/indigo-bus/internal/property"
	"github.com/stretchr/testify/require"
)

type fakeDevice struct {
	NoEnableBlobHook
	name string
	b    *Bus

	mu      sync.Mutex
	changed []*property.Property
}

func (d *fakeDevice) Name() string                  { return d.name }
func (d *fakeDevice) Interface() InterfaceMask       { return InterfaceMount }
func (d *fakeDevice) Attach(b *Bus) {
	p := property.New(d.name, "PARK", property.TypeSwitch)
	p.Rule = property.RuleOneOfMany
	p.Resize(2)
	p.Items[0] = property.Item{Name: "PARKED", On: false}
	p.Items[1] = property.Item{Name: "UNPARKED", On: true}
	b.Define(p)
}
func (d *fakeDevice) Detach(b *Bus) {
	b.Delete(d.name, "")
}
func (d *fakeDevice) EnumerateProperties(b *Bus, client *ClientHandle, sel Selector) {
	d.Attach(b)
}
func (d *fakeDevice) ChangeProperty(b *Bus, client *ClientHandle, p *property.Property) {
	d.mu.Lock()
	d.changed = append(d.changed, p)
	d.mu.Unlock()

	p.State = property.StateOk
	b.Update(p)
}

type fakeClient struct {
	name string

	mu      sync.Mutex
	defines []*property.Property
	updates []*property.Property
	deletes []property.Key
}

func (c *fakeClient) Name() string { return c.name }
func (c *fakeClient) Attach(b *Bus) {}
func (c *fakeClient) Detach(b *Bus) {}
func (c *fakeClient) DefineProperty(b *Bus, p *property.Property) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.defines = append(c.defines, p)
}
func (c *fakeClient) UpdateProperty(b *Bus, p *property.Property) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.updates = append(c.updates, p)
}
func (c *fakeClient) DeleteProperty(b *Bus, device, name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deletes = append(c.deletes, property.Key{Device: device, Name: name})
}
func (c *fakeClient) Message(b *Bus, device, text string) {}

func TestDefineFanOutToAllClients(t *testing.T) {
	b := New()
	c1 := &fakeClient{name: "c1"}
	c2 := &fakeClient{name: "c2"}
	h1 := NewClientHandle(c1)
	h2 := NewClientHandle(c2)
	b.AttachClient(h1)
	b.AttachClient(h2)

	d := &fakeDevice{name: "Mount", b: b}
	b.AttachDevice(d)

	require.Len(t, c1.defines, 1)
	require.Len(t, c2.defines, 1)
	require.Equal(t, "PARK", c1.defines[0].Name)
}

func TestChangeRoutesToOwningDeviceAndUpdatesBack(t *testing.T) {
	b := New()
	c := &fakeClient{name: "c1"}
	h := NewClientHandle(c)
	b.AttachClient(h)

	d := &fakeDevice{name: "Mount", b: b}
	b.AttachDevice(d)

	req := property.New("Mount", "PARK", property.TypeSwitch)
	req.Rule = property.RuleOneOfMany
	req.Resize(2)
	req.Items[0] = property.Item{Name: "PARKED", On: true}
	req.Items[1] = property.Item{Name: "UNPARKED", On: false}

	b.Change(h, req)

	require.Len(t, d.changed, 1)
	require.Len(t, c.updates, 1)
	require.Equal(t, property.StateOk, c.updates[0].State)
}

func TestChangeOnUnknownDeviceIsDropped(t *testing.T) {
	b := New()
	c := &fakeClient{name: "c1"}
	h := NewClientHandle(c)
	b.AttachClient(h)

	req := property.New("Ghost", "X", property.TypeSwitch)
	b.Change(h, req) // must not panic

	require.Empty(t, c.updates)
}

func TestDeleteAllRemovesDeviceProperties(t *testing.T) {
	b := New()
	c := &fakeClient{name: "c1"}
	h := NewClientHandle(c)
	b.AttachClient(h)

	d := &fakeDevice{name: "Camera", b: b}
	b.AttachDevice(d)
	require.NotNil(t, b.Lookup(property.Key{Device: "Camera", Name: "PARK"}))

	b.DetachDevice(d)

	require.Nil(t, b.Lookup(property.Key{Device: "Camera", Name: "PARK"}))
	require.Len(t, c.deletes, 1)
	require.Equal(t, "Camera", c.deletes[0].Device)
	require.Equal(t, "", c.deletes[0].Name)
}

func TestEnableBlobMostSpecificWins(t *testing.T) {
	h := NewClientHandle(&fakeClient{name: "c1"})
	h.SetEnableBlob("", "", BlobNever)
	h.SetEnableBlob("Camera", "", BlobAlso)
	h.SetEnableBlob("Camera", "CCD1", BlobURL)

	mode := h.BlobModeFor(property.Key{Device: "Camera", Name: "CCD1"}, false)
	require.Equal(t, BlobURL, mode)

	mode = h.BlobModeFor(property.Key{Device: "Camera", Name: "CCD2"}, false)
	require.Equal(t, BlobAlso, mode)

	mode = h.BlobModeFor(property.Key{Device: "Guider", Name: "CCD1"}, false)
	require.Equal(t, BlobNever, mode)
}

func TestDefaultBlobModeIsProtocolDependent(t *testing.T) {
	h := NewClientHandle(&fakeClient{name: "c1"})
	h.LockVersion(property.VersionCurrent)

	require.Equal(t, BlobNever, h.BlobModeFor(property.Key{Device: "Camera", Name: "CCD1"}, true))
	require.Equal(t, BlobURL, h.BlobModeFor(property.Key{Device: "Camera", Name: "CCD1"}, false))
}

func TestDefaultBlobModeForLegacyXMLClientIsAlso(t *testing.T) {
	h := NewClientHandle(&fakeClient{name: "c1"})
	h.LockVersion(property.VersionLegacy)

	require.Equal(t, BlobAlso, h.BlobModeFor(property.Key{Device: "Camera", Name: "CCD1"}, true))
}
