package scene

import (
	"encoding/binary"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

const sampleHeader = `ENVI
description = {
  LEDAPS surface reflectance,
  band 1}
samples = 7821
lines = 7001
bands = 1
header offset = 0
file type = ENVI Standard
data type = 2
interleave = BSQ
byte order = 1
map info = {UTM, 1.000, 1.000, 246285.000, 3445815.000, 30.000000, 30.000000, 17, North, WGS-84, units=Meters}
`

func TestParseHeader(t *testing.T) {
	h, err := ParseHeader(strings.NewReader(sampleHeader))
	require.NoError(t, err)

	require.Equal(t, 7821, h.Samples)
	require.Equal(t, 7001, h.Lines)
	require.Equal(t, 1, h.Bands)
	require.Equal(t, DataTypeInt16, h.DataType)
	require.Equal(t, binary.BigEndian, h.ByteOrder)
	require.Equal(t, "bsq", h.Interleave)

	require.NotNil(t, h.Map)
	require.Equal(t, "UTM", h.Map.Projection)
	require.InDelta(t, 246285.0, h.Map.Easting, 1e-9)
	require.InDelta(t, 3445815.0, h.Map.Northing, 1e-9)
	require.InDelta(t, 30.0, h.Map.PixelX, 1e-9)
	require.Equal(t, 17, h.Map.Zone)
	require.Equal(t, "North", h.Map.Hemisphere)
	require.Equal(t, "WGS-84", h.Map.Datum)
}

func TestParseHeaderDefaults(t *testing.T) {
	h, err := ParseHeader(strings.NewReader("ENVI\nsamples = 4\nlines = 3\ndata type = 1\n"))
	require.NoError(t, err)
	require.Equal(t, binary.LittleEndian, h.ByteOrder)
	require.Equal(t, "bsq", h.Interleave)
	require.Nil(t, h.Map)
}

func TestParseHeaderErrors(t *testing.T) {
	tests := []struct {
		name   string
		header string
	}{
		{"no magic", "samples = 4\nlines = 3\ndata type = 2\n"},
		{"missing samples", "ENVI\nlines = 3\ndata type = 2\n"},
		{"bad lines", "ENVI\nsamples = 4\nlines = three\ndata type = 2\n"},
		{"zero samples", "ENVI\nsamples = 0\nlines = 3\ndata type = 2\n"},
		{"bad byte order", "ENVI\nsamples = 4\nlines = 3\ndata type = 2\nbyte order = 2\n"},
		{"short map info", "ENVI\nsamples = 4\nlines = 3\ndata type = 2\nmap info = {UTM, 1, 1}\n"},
		{"unterminated brace", "ENVI\nsamples = 4\nlines = 3\ndata type = 2\ndescription = {open\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseHeader(strings.NewReader(tt.header))
			if !errors.Is(err, ErrBadHeader) {
				t.Errorf("expected ErrBadHeader, got %v", err)
			}
		})
	}
}
