// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package xmlproto

import (
	"encoding/base64"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/indigo-astronomy/indigo-bus/internal/bus"
	"github.com/indigo-astronomy/indigo-bus/internal/property"
)

func vectorTag(prefix string, t property.Type) string {
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

func itemTag(prefix string, t property.Type) string {
	switch t {
	case property.TypeText:
		return prefix + "Text"
	case property.TypeNumber:
		return prefix + "Number"
	case property.TypeSwitch:
		return prefix + "Switch"
	case property.TypeLight:
		return prefix + "Light"
	case property.TypeBLOB:
		return prefix + "BLOB"
	default:
		return prefix + "Text"
	}
}

func escape(s string) string {
	r := strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;", `"`, "&quot;")
	return r.Replace(s)
}

func formatNumber(format string, v float64) string {
	if format != "" {
		return fmt.Sprintf(format, v)
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// WriteDefine serialises a defXxxVector, with attributes in fixed
// order: device, name, group, label, state, perm, rule (switch only),
// version.
func WriteDefine(w io.Writer, p *property.Property, blobMode bus.BlobMode) error {
	tag := vectorTag("def", p.Type)
	fmt.Fprintf(w, "<%s device=\"%s\" name=\"%s\" group=\"%s\" label=\"%s\" state=\"%s\" perm=\"%s\"",
		tag, escape(p.Device), escape(p.Name), escape(p.Group), escape(p.Label), p.State, p.Perm)
	if p.Type == property.TypeSwitch {
		fmt.Fprintf(w, " rule=\"%s\"", p.Rule)
	}
	fmt.Fprintf(w, " version=\"%s\">\n", versionString(p.Version))

	for _, it := range p.Items {
		if p.Type == property.TypeBLOB && blobMode == bus.BlobNever {
			continue
		}
		writeDefItem(w, p.Type, it, blobMode)
	}

	fmt.Fprintf(w, "</%s>\n", tag)
	return nil
}

func writeDefItem(w io.Writer, t property.Type, it property.Item, blobMode bus.BlobMode) {
	tag := itemTag("def", t)
	switch t {
	case property.TypeText:
		fmt.Fprintf(w, "  <%s name=\"%s\" label=\"%s\">%s</%s>\n", tag, escape(it.Name), escape(it.Label), escape(it.Text), tag)
	case property.TypeNumber:
		fmt.Fprintf(w, "  <%s name=\"%s\" label=\"%s\" format=\"%s\" min=\"%s\" max=\"%s\" step=\"%s\">%s</%s>\n",
			tag, escape(it.Name), escape(it.Label), it.Format,
			formatNumber("", it.Min), formatNumber("", it.Max), formatNumber("", it.Step),
			formatNumber(it.Format, it.Value), tag)
	case property.TypeSwitch:
		v := "Off"
		if it.On {
			v = "On"
		}
		fmt.Fprintf(w, "  <%s name=\"%s\" label=\"%s\">%s</%s>\n", tag, escape(it.Name), escape(it.Label), v, tag)
	case property.TypeLight:
		fmt.Fprintf(w, "  <%s name=\"%s\" label=\"%s\">%s</%s>\n", tag, escape(it.Name), escape(it.Label), it.LightValue, tag)
	case property.TypeBLOB:
		writeBlobItem(w, tag, it, blobMode)
	}
}

func writeBlobItem(w io.Writer, tag string, it property.Item, blobMode bus.BlobMode) {
	switch blobMode {
	case bus.BlobURL:
		fmt.Fprintf(w, "  <%s name=\"%s\" format=\"%s\" size=\"%d\" url=\"%s\"/>\n",
			tag, escape(it.Name), it.BlobFormat, it.BlobSize, escape(it.BlobURL))
	case bus.BlobAlso, bus.BlobOnly:
		fmt.Fprintf(w, "  <%s name=\"%s\" format=\"%s\" size=\"%d\">\n", tag, escape(it.Name), it.BlobFormat, it.BlobSize)
		writeBase64Lines(w, []byte(it.Text))
		fmt.Fprintf(w, "  </%s>\n", tag)
	default:
		// BlobNever already filtered at the caller; nothing to do.
	}
}

// writeBase64Lines writes the standard base64 encoding of data wrapped
// at 72 columns, per §4.4.
func writeBase64Lines(w io.Writer, data []byte) {
	enc := base64.StdEncoding.EncodeToString(data)
	for i := 0; i < len(enc); i += 72 {
		end := i + 72
		if end > len(enc) {
			end = len(enc)
		}
		fmt.Fprintf(w, "%s\n", enc[i:end])
	}
}

// WriteUpdate serialises a setXxxVector. Update never changes type,
// item count, names, rule or perm, so only state and item values are
// emitted (§3 invariant 4).
func WriteUpdate(w io.Writer, p *property.Property, blobMode bus.BlobMode) error {
	tag := vectorTag("set", p.Type)
	fmt.Fprintf(w, "<%s device=\"%s\" name=\"%s\" state=\"%s\">\n", tag, escape(p.Device), escape(p.Name), p.State)

	for _, it := range p.Items {
		if p.Type == property.TypeBLOB && blobMode == bus.BlobNever {
			continue
		}
		writeSetItem(w, p.Type, it, blobMode)
	}

	fmt.Fprintf(w, "</%s>\n", tag)
	return nil
}

func writeSetItem(w io.Writer, t property.Type, it property.Item, blobMode bus.BlobMode) {
	tag := itemTag("one", t)
	switch t {
	case property.TypeText:
		fmt.Fprintf(w, "  <%s name=\"%s\">%s</%s>\n", tag, escape(it.Name), escape(it.Text), tag)
	case property.TypeNumber:
		fmt.Fprintf(w, "  <%s name=\"%s\">%s</%s>\n", tag, escape(it.Name), formatNumber(it.Format, it.Value), tag)
	case property.TypeSwitch:
		v := "Off"
		if it.On {
			v = "On"
		}
		fmt.Fprintf(w, "  <%s name=\"%s\">%s</%s>\n", tag, escape(it.Name), v, tag)
	case property.TypeLight:
		fmt.Fprintf(w, "  <%s name=\"%s\">%s</%s>\n", tag, escape(it.Name), it.LightValue, tag)
	case property.TypeBLOB:
		writeBlobItem(w, tag, it, blobMode)
	}
}

// WriteDelete serialises a delProperty; an empty name deletes every
// property of device.
func WriteDelete(w io.Writer, device, name string) error {
	if name == "" {
		_, err := fmt.Fprintf(w, "<delProperty device=\"%s\"/>\n", escape(device))
		return err
	}
	_, err := fmt.Fprintf(w, "<delProperty device=\"%s\" name=\"%s\"/>\n", escape(device), escape(name))
	return err
}

// WriteMessage serialises a free-form message, optionally scoped to a
// device.
func WriteMessage(w io.Writer, device, text string) error {
	if device == "" {
		_, err := fmt.Fprintf(w, "<message message=\"%s\"/>\n", escape(text))
		return err
	}
	_, err := fmt.Fprintf(w, "<message device=\"%s\" message=\"%s\"/>\n", escape(device), escape(text))
	return err
}

func versionString(v property.Version) string {
	if v == property.VersionLegacy {
		return "1.7"
	}
	return "2.0"
}
