// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package fixture provides a small in-memory simulator device, used in
// place of a real hardware driver so the server has something to
// enumerate, change and watch without any physical equipment attached.
package fixture

import (
	"github.com/indigo-astronomy/indigo-bus/internal/bus"
	"github.com/indigo-astronomy/indigo-bus/internal/property"
)

// Mount is a minimal telescope-mount simulator: a PARK switch and a
// read-only coordinates vector, enough to exercise Define/Update/
// Change/Delete end to end.
type Mount struct {
	bus.NoEnableBlobHook

	name string

	park  *property.Property
	coord *property.Property
}

// NewMount constructs an unattached simulator named name.
func NewMount(name string) *Mount {
	return &Mount{name: name}
}

func (m *Mount) Name() string               { return m.name }
func (m *Mount) Interface() bus.InterfaceMask { return bus.InterfaceMount }

// Attach defines the device's properties, mirroring how a real driver
// allocates its state on first connect.
func (m *Mount) Attach(b *bus.Bus) {
	m.park = property.New(m.name, "MOUNT_PARK", property.TypeSwitch)
	m.park.Label = "Park"
	m.park.Group = "Main"
	m.park.Rule = property.RuleOneOfMany
	m.park.Resize(2)
	m.park.Items[0] = property.Item{Name: "PARKED", Label: "Parked", On: true}
	m.park.Items[1] = property.Item{Name: "UNPARKED", Label: "Unparked"}

	m.coord = property.New(m.name, "MOUNT_EQUATORIAL_COORDINATES", property.TypeNumber)
	m.coord.Label = "Equatorial coordinates"
	m.coord.Group = "Main"
	m.coord.Perm = property.PermRO
	m.coord.Resize(2)
	m.coord.Items[0] = property.Item{Name: "RA", Label: "Right ascension", Min: 0, Max: 24, Step: 0}
	m.coord.Items[1] = property.Item{Name: "DEC", Label: "Declination", Min: -90, Max: 90, Step: 0}

	b.Define(m.park)
	b.Define(m.coord)
}

// EnumerateProperties re-emits Define for whichever of the device's two
// properties match sel.
func (m *Mount) EnumerateProperties(b *bus.Bus, client *bus.ClientHandle, sel bus.Selector) {
	for _, p := range []*property.Property{m.park, m.coord} {
		if sel.Device != "" && sel.Device != p.Device {
			continue
		}
		if sel.Name != "" && sel.Name != p.Name {
			continue
		}
		b.Define(p)
	}
}

// ChangeProperty applies a park/unpark request and reports it back.
func (m *Mount) ChangeProperty(b *bus.Bus, client *bus.ClientHandle, p *property.Property) {
	if p.Name != m.park.Name {
		return
	}

	for _, item := range p.Items {
		if item.On {
			if err := m.park.SetSwitch(item.Name, true); err != nil {
				m.park.State = property.StateAlert
				b.Update(m.park)
				return
			}
		}
	}

	m.park.State = property.StateOk
	b.Update(m.park)
}

// Detach deletes both properties before returning, per the device
// contract.
func (m *Mount) Detach(b *bus.Bus) {
	b.Delete(m.name, "")
}
