// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package xmlproto

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/indigo-astronomy/indigo-bus/internal/bus"
	"github.com/indigo-astronomy/indigo-bus/internal/property"
	"github.com/stretchr/testify/require"
)

func TestScannerParsesSelfClosingGetProperties(t *testing.T) {
	d := NewDecoder(strings.NewReader(`<getProperties version="2.0"/>`))
	req, err := d.Next()
	require.NoError(t, err)

	gp, ok := req.(*GetPropertiesRequest)
	require.True(t, ok)
	require.Equal(t, "2.0", gp.Version)
}

func TestScannerParsesNewSwitchVector(t *testing.T) {
	in := `<newSwitchVector device="Mount" name="MOUNT_PARK">
  <oneSwitch name="PARKED">On</oneSwitch>
  <oneSwitch name="UNPARKED">Off</oneSwitch>
</newSwitchVector>`
	d := NewDecoder(strings.NewReader(in))
	req, err := d.Next()
	require.NoError(t, err)

	cr, ok := req.(*ChangeRequest)
	require.True(t, ok)
	require.Equal(t, "Mount", cr.Property.Device)
	require.Equal(t, "MOUNT_PARK", cr.Property.Name)
	require.Len(t, cr.Property.Items, 2)
	require.True(t, cr.Property.Items[0].On)
	require.False(t, cr.Property.Items[1].On)
}

func TestScannerParsesSexagesimalNumber(t *testing.T) {
	in := `<newNumberVector device="Mount" name="EQUATORIAL_COORDINATES">
  <oneNumber name="RA">12:30:00</oneNumber>
</newNumberVector>`
	d := NewDecoder(strings.NewReader(in))
	req, err := d.Next()
	require.NoError(t, err)
	cr := req.(*ChangeRequest)
	require.InDelta(t, 12.5, cr.Property.Items[0].Target, 1e-9)
}

func TestScannerRejectsUnbalancedTags(t *testing.T) {
	d := NewDecoder(strings.NewReader(`<newSwitchVector device="Mount" name="X"><oneSwitch name="A">On</oneSwitch>`))
	_, err := d.Next()
	require.Error(t, err)
}

func TestScannerRejectsEOFInsideQuote(t *testing.T) {
	sc := NewScanner(strings.NewReader(`<getProperties version="2.0`))
	_, err := sc.Next()
	require.ErrorIs(t, err, ErrEOFInQuote)
}

func TestWriteDefineThenParseRoundTrips(t *testing.T) {
	p := property.New("Camera", "CCD_EXPOSURE", property.TypeNumber)
	p.Label = "Exposure"
	p.State = property.StateIdle
	p.Perm = property.PermRW
	p.Resize(1)
	p.Items[0] = property.Item{Name: "EXPOSURE_TIME", Min: 0, Max: 3600, Step: 0, Value: 1.5, Format: "%g"}

	var buf bytes.Buffer
	require.NoError(t, WriteDefine(&buf, p, bus.BlobNever))
	require.Contains(t, buf.String(), `device="Camera"`)
	require.Contains(t, buf.String(), `name="CCD_EXPOSURE"`)
	require.Contains(t, buf.String(), "1.5")

	sc := NewScanner(bytes.NewReader(buf.Bytes()))
	tok, err := sc.Next()
	require.NoError(t, err)
	require.Equal(t, "defNumberVector", tok.Name)
	require.Equal(t, "Camera", tok.Attrs["device"])
	require.Equal(t, "CCD_EXPOSURE", tok.Attrs["name"])
	require.Equal(t, "Exposure", tok.Attrs["label"])

	tok, err = sc.Next()
	require.NoError(t, err)
	require.Equal(t, "defNumber", tok.Name)
	require.Equal(t, "EXPOSURE_TIME", tok.Attrs["name"])

	tok, err = sc.Next()
	require.NoError(t, err)
	require.Equal(t, TokenText, tok.Kind)
	require.Equal(t, "1.5", tok.Text)
}

func TestWriteDeleteAllOmitsName(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteDelete(&buf, "Camera", ""))
	require.NotContains(t, buf.String(), "name=")
}

type nopReadWriter struct {
	io.Writer
}

func (nopReadWriter) Read([]byte) (int, error) { return 0, io.EOF }

func TestSendDowngradesURLBlobModeForLegacyClient(t *testing.T) {
	var buf bytes.Buffer
	a := New("peer", &nopReadWriter{Writer: &buf}, nil)
	h := bus.NewClientHandle(a)
	a.handle = h
	h.LockVersion(property.VersionLegacy)
	h.SetEnableBlob("Camera", "CCD1", bus.BlobURL)

	p := property.New("Camera", "CCD1", property.TypeBLOB)
	p.Resize(1)
	p.Items[0] = property.Item{Name: "IMAGE", Text: "fitsbytes", BlobFormat: ".fits", BlobSize: 9}

	a.DefineProperty(nil, p)

	require.NotContains(t, buf.String(), "url=")
	require.Contains(t, buf.String(), "Zml0c2J5dGVz") // base64 of "fitsbytes"
}

func TestBase64LinesWrappedAt72Columns(t *testing.T) {
	var buf bytes.Buffer
	writeBase64Lines(&buf, bytes.Repeat([]byte{0xAB}, 200))
	for _, line := range strings.Split(strings.TrimRight(buf.String(), "\n"), "\n") {
		require.LessOrEqual(t, len(line), 72)
	}
}
