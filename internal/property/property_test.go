// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package property

import "testing"

func newSwitch(rule Rule, on ...bool) *Property {
	p := New("Mount", "MOUNT_PARK", TypeSwitch)
	p.Rule = rule
	p.Resize(len(on))
	for i, v := range on {
		p.Items[i].Name = string(rune('A' + i))
		p.Items[i].On = v
	}
	return p
}

func TestSetSwitchOneOfMany(t *testing.T) {
	p := newSwitch(RuleOneOfMany, false, true, false)

	if err := p.SetSwitch("A", true); err != nil {
		t.Fatalf("SetSwitch: %v", err)
	}

	want := []bool{true, false, false}
	for i, w := range want {
		if p.Items[i].On != w {
			t.Errorf("item %d: got %v, want %v", i, p.Items[i].On, w)
		}
	}
	if !p.ValidateSwitchRule() {
		t.Errorf("expected rule to hold after setting A true")
	}
}

func TestSetSwitchAtMostOneAllowsAllOff(t *testing.T) {
	p := newSwitch(RuleAtMostOne, false, true, false)

	if err := p.SetSwitch("B", false); err != nil {
		t.Fatalf("SetSwitch: %v", err)
	}
	if p.OnCount() != 0 {
		t.Errorf("expected no items on, got %d", p.OnCount())
	}
	if !p.ValidateSwitchRule() {
		t.Errorf("at-most-one rule should tolerate zero items on")
	}
}

func TestSetSwitchAnyOfManyIndependent(t *testing.T) {
	p := newSwitch(RuleAnyOfMany, false, false, false)

	p.SetSwitch("A", true)
	p.SetSwitch("C", true)

	if p.OnCount() != 2 {
		t.Errorf("expected 2 items on, got %d", p.OnCount())
	}
}

func TestSetNumberClampAndStep(t *testing.T) {
	p := New("Focuser", "FOCUS_POSITION", TypeNumber)
	p.Resize(1)
	p.Items[0] = Item{Name: "POSITION", Min: 0, Max: 100, Step: 10}

	if err := p.SetNumber("POSITION", 1234); err != nil {
		t.Fatalf("SetNumber: %v", err)
	}
	if p.Items[0].Target != 100 {
		t.Errorf("expected clamp to max 100, got %v", p.Items[0].Target)
	}

	if err := p.SetNumber("POSITION", 23); err != nil {
		t.Fatalf("SetNumber: %v", err)
	}
	if p.Items[0].Target != 20 {
		t.Errorf("expected snap to nearest step (20), got %v", p.Items[0].Target)
	}
}

func TestSetTextTruncates(t *testing.T) {
	p := New("Mount", "COMMENT", TypeText)
	p.Resize(1)
	p.Items[0].Name = "TEXT"

	long := make([]byte, 4*MaxNameLen+50)
	for i := range long {
		long[i] = 'x'
	}
	if err := p.SetText("TEXT", string(long)); err != nil {
		t.Fatalf("SetText: %v", err)
	}
	if len(p.Items[0].Text) != 4*MaxNameLen {
		t.Errorf("expected truncation to %d bytes, got %d", 4*MaxNameLen, len(p.Items[0].Text))
	}
}

func TestResizeRejectsTooManyItems(t *testing.T) {
	p := New("Camera", "CCD1", TypeText)
	if err := p.Resize(MaxItems + 1); err != ErrTooManyItems {
		t.Fatalf("expected ErrTooManyItems, got %v", err)
	}
}

func TestCopyPreservesStructure(t *testing.T) {
	dst := New("Mount", "EQUATORIAL_COORDINATES", TypeNumber)
	dst.Resize(2)
	dst.Items[0].Name = "RA"
	dst.Items[1].Name = "DEC"

	src := dst.Clone()
	src.Items[0].Value = 1.5
	src.Items[1].Value = -12.3
	src.State = StateBusy

	dst.Copy(src)

	if dst.Items[0].Value != 1.5 || dst.Items[1].Value != -12.3 {
		t.Errorf("Copy did not transfer item values: %+v", dst.Items)
	}
	if dst.State != StateBusy {
		t.Errorf("Copy did not transfer state")
	}
	if len(dst.Items) != 2 {
		t.Errorf("Copy must not change item count")
	}
}
