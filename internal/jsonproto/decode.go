// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package jsonproto

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/indigo-astronomy/indigo-bus/internal/property"
)

// parseNumberString accepts the sexagesimal form HH:MM:SS[.s], which
// §4.4 says is accepted wherever a number is expected. JSON numbers are
// ordinarily plain floats (hence Value carries them as float64), but a
// client may still send one as a string.
func parseNumberString(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if !strings.Contains(s, ":") {
		return strconv.ParseFloat(s, 64)
	}
	neg := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")
	parts := strings.Split(s, ":")
	var h, m, sec float64
	var err error
	if h, err = strconv.ParseFloat(parts[0], 64); err != nil {
		return 0, err
	}
	if len(parts) > 1 {
		if m, err = strconv.ParseFloat(parts[1], 64); err != nil {
			return 0, err
		}
	}
	if len(parts) > 2 {
		if sec, err = strconv.ParseFloat(parts[2], 64); err != nil {
			return 0, err
		}
	}
	v := h + m/60 + sec/3600
	if neg {
		v = -v
	}
	return v, nil
}

// GetPropertiesRequest mirrors a {"getProperties": {...}} message.
type GetPropertiesRequest struct {
	Version string
	Device  string
	Name    string
}

// EnableBlobRequest mirrors a {"enableBLOB": {...}} message.
type EnableBlobRequest struct {
	Device string
	Name   string
	Mode   string
}

// ChangeRequest mirrors a {"new*Vector": {...}} message.
type ChangeRequest struct {
	Property *property.Property
}

var vectorPropType = map[string]property.Type{
	"newTextVector":   property.TypeText,
	"newNumberVector": property.TypeNumber,
	"newSwitchVector": property.TypeSwitch,
	"newBLOBVector":   property.TypeBLOB,
}

func asString(v Value) string {
	s, _ := v.(string)
	return s
}

func asFloat(v Value) float64 {
	f, _ := v.(float64)
	return f
}

func asMap(v Value) map[string]Value {
	m, _ := v.(map[string]Value)
	return m
}

func asArray(v Value) []Value {
	a, _ := v.([]Value)
	return a
}

// Decoder turns a stream of top-level JSON values into the three
// request kinds a server needs to act on, mirroring xmlproto.Decoder.
type Decoder struct {
	sc *Scanner
}

// NewDecoder wraps sc.
func NewDecoder(sc *Scanner) *Decoder {
	return &Decoder{sc: sc}
}

// Next decodes the next message object.
func (d *Decoder) Next() (interface{}, error) {
	for {
		v, err := d.sc.Next()
		if err != nil {
			return nil, err
		}
		obj := asMap(v)
		if obj == nil {
			continue
		}
		for kind, body := range obj {
			payload := asMap(body)
			switch kind {
			case "getProperties":
				return &GetPropertiesRequest{
					Version: asString(payload["version"]),
					Device:  asString(payload["device"]),
					Name:    asString(payload["name"]),
				}, nil
			case "enableBLOB":
				return &EnableBlobRequest{
					Device: asString(payload["device"]),
					Name:   asString(payload["name"]),
					Mode:   asString(payload["value"]),
				}, nil
			case "newTextVector", "newNumberVector", "newSwitchVector", "newBLOBVector":
				return decodeVector(kind, payload)
			}
			// unrecognised kind: drop this message, keep scanning
		}
	}
}

func decodeVector(kind string, payload map[string]Value) (*ChangeRequest, error) {
	p := property.New(asString(payload["device"]), asString(payload["name"]), vectorPropType[kind])

	items := asArray(payload["items"])
	p.Items = make([]property.Item, 0, len(items))
	for _, raw := range items {
		m := asMap(raw)
		it := property.Item{Name: asString(m["name"])}
		switch kind {
		case "newTextVector":
			it.Text = asString(m["value"])
		case "newNumberVector":
			switch v := m["value"].(type) {
			case float64:
				it.Target = v
			case string:
				f, err := parseNumberString(v)
				if err != nil {
					return nil, fmt.Errorf("jsonproto: bad number %q: %w", v, err)
				}
				it.Target = f
			}
		case "newSwitchVector":
			b, _ := m["value"].(bool)
			it.On = b
		case "newBLOBVector":
			it.Text = asString(m["value"])
			it.BlobFormat = asString(m["format"])
			it.BlobSize = int64(asFloat(m["size"]))
		}
		p.Items = append(p.Items, it)
	}
	return &ChangeRequest{Property: p}, nil
}
