// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package jsonproto

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/indigo-astronomy/indigo-bus/internal/bus"
	"github.com/indigo-astronomy/indigo-bus/internal/property"
)

func jsonString(s string) string {
	var b strings.Builder
	b.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"':
			b.WriteString(`\"`)
		case '\\':
			b.WriteString(`\\`)
		case '\n':
			b.WriteString(`\n`)
		case '\t':
			b.WriteString(`\t`)
		default:
			b.WriteRune(r)
		}
	}
	b.WriteByte('"')
	return b.String()
}

func vectorKind(prefix string, t property.Type) string {
	switch t {
	case property.TypeText:
		return prefix + "TextVector"
	case property.TypeNumber:
		return prefix + "NumberVector"
	case property.TypeSwitch:
		return prefix + "SwitchVector"
	case property.TypeLight:
		return prefix + "LightVector"
	case property.TypeBLOB:
		return prefix + "BLOBVector"
	default:
		return prefix + "TextVector"
	}
}

func lowerState(s property.State) string { return strings.ToLower(s.String()) }
func lowerPerm(p property.Perm) string   { return p.String() }
func lowerRule(r property.Rule) string { return strings.ToLower(r.String()) }

// WriteDefine serialises a defXxxVector-equivalent object, identical in
// information content to the XML dialect (§6.3).
func WriteDefine(w io.Writer, p *property.Property, blobMode bus.BlobMode) error {
	fmt.Fprintf(w, `{"%s":{"device":%s,"name":%s,"group":%s,"label":%s,"state":%s,"perm":%s`,
		vectorKind("def", p.Type), jsonString(p.Device), jsonString(p.Name), jsonString(p.Group), jsonString(p.Label),
		jsonString(lowerState(p.State)), jsonString(lowerPerm(p.Perm)))
	if p.Type == property.TypeSwitch {
		fmt.Fprintf(w, `,"rule":%s`, jsonString(lowerRule(p.Rule)))
	}
	io.WriteString(w, `,"items":[`)
	first := true
	for _, it := range p.Items {
		if p.Type == property.TypeBLOB && blobMode == bus.BlobNever {
			continue
		}
		if !first {
			io.WriteString(w, ",")
		}
		first = false
		writeItem(w, p.Type, it, blobMode, true)
	}
	io.WriteString(w, "]}}\n")
	return nil
}

// WriteUpdate serialises a setXxxVector-equivalent object.
func WriteUpdate(w io.Writer, p *property.Property, blobMode bus.BlobMode) error {
	fmt.Fprintf(w, `{"%s":{"device":%s,"name":%s,"state":%s,"items":[`,
		vectorKind("set", p.Type), jsonString(p.Device), jsonString(p.Name), jsonString(lowerState(p.State)))
	first := true
	for _, it := range p.Items {
		if p.Type == property.TypeBLOB && blobMode == bus.BlobNever {
			continue
		}
		if !first {
			io.WriteString(w, ",")
		}
		first = false
		writeItem(w, p.Type, it, blobMode, false)
	}
	io.WriteString(w, "]}}\n")
	return nil
}

func writeItem(w io.Writer, t property.Type, it property.Item, blobMode bus.BlobMode, withMeta bool) {
	switch t {
	case property.TypeText:
		fmt.Fprintf(w, `{"name":%s,"value":%s}`, jsonString(it.Name), jsonString(it.Text))
	case property.TypeNumber:
		if withMeta {
			fmt.Fprintf(w, `{"name":%s,"min":%s,"max":%s,"step":%s,"format":%s,"value":%s}`,
				jsonString(it.Name), numStr(it.Min), numStr(it.Max), numStr(it.Step), jsonString(it.Format), numStr(it.Value))
		} else {
			fmt.Fprintf(w, `{"name":%s,"value":%s}`, jsonString(it.Name), numStr(it.Value))
		}
	case property.TypeSwitch:
		fmt.Fprintf(w, `{"name":%s,"value":%v}`, jsonString(it.Name), it.On)
	case property.TypeLight:
		fmt.Fprintf(w, `{"name":%s,"value":%s}`, jsonString(it.Name), jsonString(lowerState(it.LightValue)))
	case property.TypeBLOB:
		writeBlobItem(w, it, blobMode)
	}
}

func writeBlobItem(w io.Writer, it property.Item, blobMode bus.BlobMode) {
	switch blobMode {
	case bus.BlobURL:
		fmt.Fprintf(w, `{"name":%s,"format":%s,"size":%d,"value":%s}`,
			jsonString(it.Name), jsonString(it.BlobFormat), it.BlobSize, jsonString(it.BlobURL))
	case bus.BlobAlso, bus.BlobOnly:
		fmt.Fprintf(w, `{"name":%s,"format":%s,"size":%d,"value":%s}`,
			jsonString(it.Name), jsonString(it.BlobFormat), it.BlobSize, jsonString(it.Text))
	default:
		fmt.Fprintf(w, `{"name":%s,"value":null}`, jsonString(it.Name))
	}
}

func numStr(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// WriteDelete serialises a deleteProperty object.
func WriteDelete(w io.Writer, device, name string) error {
	if name == "" {
		_, err := fmt.Fprintf(w, `{"deleteProperty":{"device":%s}}`+"\n", jsonString(device))
		return err
	}
	_, err := fmt.Fprintf(w, `{"deleteProperty":{"device":%s,"name":%s}}`+"\n", jsonString(device), jsonString(name))
	return err
}

// WriteMessage serialises a message object.
func WriteMessage(w io.Writer, device, text string) error {
	if device == "" {
		_, err := fmt.Fprintf(w, `{"message":{"message":%s}}`+"\n", jsonString(text))
		return err
	}
	_, err := fmt.Fprintf(w, `{"message":{"device":%s,"message":%s}}`+"\n", jsonString(device), jsonString(text))
	return err
}
