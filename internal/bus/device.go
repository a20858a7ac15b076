// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package bus

import "github.com/indigo-astronomy/indigo-bus/internal/property"

// InterfaceMask identifies a device's kind as a bit field, mirroring the
// source's indigo_interface enum.
type InterfaceMask uint32

const (
	InterfaceMount InterfaceMask = 1 << iota
	InterfaceCamera
	InterfaceFocuser
	InterfaceWheel
	InterfaceDome
	InterfaceGPS
	InterfaceAux
)

// Selector identifies which properties enumerate_properties should
// re-emit. An empty Device/Name field is a wildcard; both empty is the
// all-properties sentinel.
type Selector struct {
	Device string
	Name   string
}

func (s Selector) matches(k property.Key) bool {
	if s.Device != "" && s.Device != k.Device {
		return false
	}
	if s.Name != "" && s.Name != k.Name {
		return false
	}
	return true
}

// Device is the five-hook contract every driver implements. The bus is
// the only caller of these hooks: drivers and protocol adapters must
// never invoke each other directly (§4.2).
type Device interface {
	Name() string
	Interface() InterfaceMask

	// Attach is called synchronously when the device is registered. The
	// device is expected to allocate and Define its properties from
	// within this call.
	Attach(b *Bus)

	// EnumerateProperties is called once per matching getProperties
	// request; the device re-emits Define for every matching,
	// non-hidden property it owns.
	EnumerateProperties(b *Bus, client *ClientHandle, sel Selector)

	// ChangeProperty handles a client's requested item values. The
	// device validates, updates its hardware state and eventually calls
	// b.Update zero or more times.
	ChangeProperty(b *Bus, client *ClientHandle, p *property.Property)

	// EnableBlob is optional; devices that don't care about the policy
	// embed NoEnableBlobHook.
	EnableBlob(b *Bus, client *ClientHandle, key property.Key, mode BlobMode)

	// Detach must emit deletes for every property it defined (or one
	// bare delete with empty name) and release per-device resources
	// before returning. No further callbacks reach the device once
	// Detach returns.
	Detach(b *Bus)
}

// NoEnableBlobHook can be embedded by devices that don't need to react
// to enable-BLOB changes.
type NoEnableBlobHook struct{}

func (NoEnableBlobHook) EnableBlob(*Bus, *ClientHandle, property.Key, BlobMode) {}
