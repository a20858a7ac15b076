// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package xmlproto

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/indigo-astronomy/indigo-bus/internal/property"
)

// GetPropertiesRequest mirrors a <getProperties> root element.
type GetPropertiesRequest struct {
	Version string
	Device  string
	Name    string
}

// EnableBlobRequest mirrors an <enableBLOB> root element.
type EnableBlobRequest struct {
	Device string
	Name   string
	Mode   string
}

// ChangeRequest mirrors a new{Text,Number,Switch,BLOB}Vector root
// element: a client's desired item values for a property it does not
// own.
type ChangeRequest struct {
	Property *property.Property
}

var vectorItemTag = map[string]string{
	"newTextVector":   "oneText",
	"newNumberVector": "oneNumber",
	"newSwitchVector": "oneSwitch",
	"newBLOBVector":   "oneBLOB",
}

var vectorPropType = map[string]property.Type{
	"newTextVector":   property.TypeText,
	"newNumberVector": property.TypeNumber,
	"newSwitchVector": property.TypeSwitch,
	"newBLOBVector":   property.TypeBLOB,
}

// Decoder turns a byte stream into the handful of root-element requests
// a server needs to act on. Its job ends at tag-handler dispatch, per
// §4.4: each recognised root element "emits one bus call" worth of
// data, which is exactly what the three request types above carry.
type Decoder struct {
	sc *Scanner
}

// NewDecoder wraps r.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{sc: NewScanner(r)}
}

// Next reads and decodes the next root element, returning one of
// *GetPropertiesRequest, *EnableBlobRequest or *ChangeRequest. Unknown
// root elements are skipped (their children consumed and discarded)
// rather than treated as an error, matching the attribute-spelling
// laxness called out in §9 but scoped to elements, not to the
// structural well-formedness the Scanner already enforces.
func (d *Decoder) Next() (interface{}, error) {
	for {
		tok, err := d.sc.Next()
		if err != nil {
			return nil, err
		}
		if tok.Kind != TokenStartTag {
			continue
		}

		switch tok.Name {
		case "getProperties":
			if !tok.SelfClosing {
				if err := d.skipChildren(tok.Name); err != nil {
					return nil, err
				}
			}
			return &GetPropertiesRequest{
				Version: tok.Attrs["version"],
				Device:  tok.Attrs["device"],
				Name:    tok.Attrs["name"],
			}, nil

		case "enableBLOB":
			mode, err := d.readLeafText(tok)
			if err != nil {
				return nil, err
			}
			return &EnableBlobRequest{
				Device: tok.Attrs["device"],
				Name:   tok.Attrs["name"],
				Mode:   mode,
			}, nil

		case "newTextVector", "newNumberVector", "newSwitchVector", "newBLOBVector":
			req, err := d.decodeVector(tok)
			if err != nil {
				return nil, err
			}
			return req, nil

		default:
			if !tok.SelfClosing {
				if err := d.skipChildren(tok.Name); err != nil {
					return nil, err
				}
			}
			// keep scanning for the next recognised root element
		}
	}
}

// readLeafText consumes a start tag's text content and matching end
// tag, returning the text (used for elements whose only payload is
// their body, like enableBLOB).
func (d *Decoder) readLeafText(start Token) (string, error) {
	if start.SelfClosing {
		return "", nil
	}
	var text string
	for {
		tok, err := d.sc.Next()
		if err != nil {
			return "", err
		}
		switch tok.Kind {
		case TokenText:
			text = tok.Text
		case TokenEndTag:
			if tok.Name == start.Name {
				return text, nil
			}
		}
	}
}

func (d *Decoder) skipChildren(rootName string) error {
	depth := 1
	for depth > 0 {
		tok, err := d.sc.Next()
		if err != nil {
			return err
		}
		switch tok.Kind {
		case TokenStartTag:
			if !tok.SelfClosing {
				depth++
			}
		case TokenEndTag:
			depth--
		}
	}
	return nil
}

func (d *Decoder) decodeVector(root Token) (*ChangeRequest, error) {
	p := property.New(root.Attrs["device"], root.Attrs["name"], vectorPropType[root.Name])
	itemTag := vectorItemTag[root.Name]

	var items []property.Item
	for {
		tok, err := d.sc.Next()
		if err != nil {
			return nil, err
		}
		if tok.Kind == TokenEndTag && tok.Name == root.Name {
			break
		}
		if tok.Kind != TokenStartTag || tok.Name != itemTag {
			continue
		}

		name := tok.Attrs["name"]
		value, err := d.readLeafText(tok)
		if err != nil {
			return nil, err
		}

		it := property.Item{Name: name}
		switch root.Name {
		case "newTextVector":
			it.Text = value
		case "newNumberVector":
			v, perr := ParseNumber(value)
			if perr != nil {
				return nil, fmt.Errorf("xmlproto: bad number %q for item %q: %w", value, name, perr)
			}
			it.Target = v
		case "newSwitchVector":
			it.On = strings.TrimSpace(value) == "On"
		case "newBLOBVector":
			it.BlobFormat = tok.Attrs["format"]
			if sz, serr := strconv.ParseInt(tok.Attrs["size"], 10, 64); serr == nil {
				it.BlobSize = sz
			}
			it.Text = value // base64 payload, decoded by the adapter
		}
		items = append(items, it)
	}

	p.Items = items
	return &ChangeRequest{Property: p}, nil
}

// ParseNumber accepts both plain floating point and the legacy
// sexagesimal form HH:MM:SS[.s] wherever a number is expected (§4.4).
func ParseNumber(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if !strings.Contains(s, ":") {
		return strconv.ParseFloat(s, 64)
	}

	neg := false
	if strings.HasPrefix(s, "-") {
		neg = true
		s = s[1:]
	}
	parts := strings.Split(s, ":")
	if len(parts) == 0 || len(parts) > 3 {
		return 0, fmt.Errorf("xmlproto: malformed sexagesimal value %q", s)
	}

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
