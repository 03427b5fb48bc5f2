package scene

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// ErrBadHeader is returned for an ENVI header missing required fields
var ErrBadHeader = errors.New("bad ENVI header")

// ENVI data type codes
const (
	DataTypeUint8 = 1
	DataTypeInt16 = 2
)

// MapInfo is the geolocation of the upper-left pixel
type MapInfo struct {
	Projection string
	RefX, RefY float64
	Easting    float64
	Northing   float64
	PixelX     float64
	PixelY     float64
	Zone       int
	Hemisphere string
	Datum      string
}

// Header holds the ENVI header fields needed to read a band file
type Header struct {
	Samples    int
	Lines      int
	Bands      int
	DataType   int
	ByteOrder  binary.ByteOrder
	Interleave string
	Map        *MapInfo
}

// ReadHeader parses the ENVI header at path
func ReadHeader(path string) (Header, error) {
	f, err := os.Open(path)
	if err != nil {
		return Header{}, fmt.Errorf("opening header: %w", err)
	}
	defer f.Close()

	h, err := ParseHeader(f)
	if err != nil {
		return Header{}, fmt.Errorf("%s: %w", path, err)
	}
	return h, nil
}

// ParseHeader parses an ENVI header. Brace-delimited values may span lines.
func ParseHeader(r io.Reader) (Header, error) {
	fields, err := headerFields(r)
	if err != nil {
		return Header{}, err
	}

	h := Header{Bands: 1, ByteOrder: binary.LittleEndian, Interleave: "bsq"}
	ints := []struct {
		key      string
		dst      *int
		required bool
	}{
		{"samples", &h.Samples, true},
		{"lines", &h.Lines, true},
		{"bands", &h.Bands, false},
		{"data type", &h.DataType, true},
	}
	for _, f := range ints {
		v, ok := fields[f.key]
		if !ok {
			if f.required {
				return Header{}, fmt.Errorf("missing %q: %w", f.key, ErrBadHeader)
			}
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return Header{}, fmt.Errorf("%s = %q: %w", f.key, v, ErrBadHeader)
		}
		*f.dst = n
	}

	switch fields["byte order"] {
	case "", "0":
	case "1":
		h.ByteOrder = binary.BigEndian
	default:
		return Header{}, fmt.Errorf("byte order = %q: %w", fields["byte order"], ErrBadHeader)
	}
	if v, ok := fields["interleave"]; ok {
		h.Interleave = strings.ToLower(v)
	}
	if v, ok := fields["map info"]; ok {
		m, err := parseMapInfo(v)
		if err != nil {
			return Header{}, err
		}
		h.Map = &m
	}
	return h, nil
}

func headerFields(r io.Reader) (map[string]string, error) {
	sc := bufio.NewScanner(r)
	if !sc.Scan() || strings.TrimSpace(sc.Text()) != "ENVI" {
		return nil, fmt.Errorf("missing ENVI magic: %w", ErrBadHeader)
	}

	fields := make(map[string]string)
	var key string
	var value strings.Builder
	open := false
	for sc.Scan() {
		line := sc.Text()
		if open {
			value.WriteString(" ")
			value.WriteString(strings.TrimSpace(line))
		} else {
			k, v, ok := strings.Cut(line, "=")
			if !ok {
				continue
			}
			key = strings.ToLower(strings.TrimSpace(k))
			value.Reset()
			value.WriteString(strings.TrimSpace(v))
		}
		s := value.String()
		open = strings.HasPrefix(s, "{") && !strings.HasSuffix(s, "}")
		if !open {
			fields[key] = strings.TrimSpace(strings.TrimSuffix(strings.TrimPrefix(s, "{"), "}"))
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if open {
		return nil, fmt.Errorf("unterminated value for %q: %w", key, ErrBadHeader)
	}
	return fields, nil
}

// parseMapInfo decodes "UTM, 1, 1, 246285, 3445815, 30, 30, 17, North, WGS-84, units=Meters"
func parseMapInfo(v string) (MapInfo, error) {
	parts := strings.Split(v, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	if len(parts) < 7 {
		return MapInfo{}, fmt.Errorf("map info %q: %w", v, ErrBadHeader)
	}

	m := MapInfo{Projection: parts[0]}
	nums := []*float64{&m.RefX, &m.RefY, &m.Easting, &m.Northing, &m.PixelX, &m.PixelY}
	for i, dst := range nums {
		f, err := strconv.ParseFloat(parts[i+1], 64)
		if err != nil {
			return MapInfo{}, fmt.Errorf("map info field %d %q: %w", i+1, parts[i+1], ErrBadHeader)
		}
		*dst = f
	}
	if len(parts) > 7 {
		if zone, err := strconv.Atoi(parts[7]); err == nil {
			m.Zone = zone
		}
	}
	if len(parts) > 8 {
		m.Hemisphere = parts[8]
	}
	if len(parts) > 9 {
		m.Datum = parts[9]
	}
	return m, nil
}
