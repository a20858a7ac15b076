// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package jsonproto

import (
	"bytes"
	"strings"
	"testing"

	"github.com/indigo-astronomy/indigo-bus/internal/bus"
	"github.com/indigo-astronomy/indigo-bus/internal/property"
	"github.com/stretchr/testify/require"
)

func TestDecodeNewNumberVector(t *testing.T) {
	in := `{"newNumberVector":{"device":"Mount","name":"MOUNT_TRACK_RATE","items":[{"name":"MOUNT_TRACK_RATE_SIDEREAL","value":1}]}}`
	d := NewDecoder(NewScanner(strings.NewReader(in)))
	req, err := d.Next()
	require.NoError(t, err)

	cr, ok := req.(*ChangeRequest)
	require.True(t, ok)
	require.Equal(t, "Mount", cr.Property.Device)
	require.Equal(t, float64(1), cr.Property.Items[0].Target)
}

func TestDecodeGetProperties(t *testing.T) {
	in := `{"getProperties":{"version":"2.0"}}`
	d := NewDecoder(NewScanner(strings.NewReader(in)))
	req, err := d.Next()
	require.NoError(t, err)
	gp := req.(*GetPropertiesRequest)
	require.Equal(t, "2.0", gp.Version)
}

func TestDecodeTwoMessagesBackToBack(t *testing.T) {
	in := `{"getProperties":{"version":"2.0"}} {"enableBLOB":{"device":"Camera","value":"URL"}}`
	d := NewDecoder(NewScanner(strings.NewReader(in)))

	_, err := d.Next()
	require.NoError(t, err)

	req, err := d.Next()
	require.NoError(t, err)
	eb := req.(*EnableBlobRequest)
	require.Equal(t, "Camera", eb.Device)
	require.Equal(t, "URL", eb.Mode)
}

func TestWriteUpdateProducesOneLineObject(t *testing.T) {
	p := property.New("Camera", "CCD_EXPOSURE", property.TypeNumber)
	p.State = property.StateBusy
	p.Resize(1)
	p.Items[0] = property.Item{Name: "EXPOSURE_TIME", Value: 2.5}

	var buf bytes.Buffer
	require.NoError(t, WriteUpdate(&buf, p, bus.BlobNever))
	require.Contains(t, buf.String(), `"setNumberVector"`)
	require.Contains(t, buf.String(), `"state":"busy"`)
	require.Equal(t, 1, strings.Count(buf.String(), "\n"))
	require.True(t, strings.HasSuffix(buf.String(), "}\n"))
}

func TestSwitchValueRoundTripsAsJSONBoolean(t *testing.T) {
	in := `{"newSwitchVector":{"device":"Mount","name":"MOUNT_PARK","items":[{"name":"PARKED","value":true}]}}`
	d := NewDecoder(NewScanner(strings.NewReader(in)))
	req, err := d.Next()
	require.NoError(t, err)
	cr := req.(*ChangeRequest)
	require.True(t, cr.Property.Items[0].On)

	var buf bytes.Buffer
	require.NoError(t, WriteUpdate(&buf, cr.Property, bus.BlobNever))
	require.Contains(t, buf.String(), `{"name":"PARKED","value":true}`)
}
