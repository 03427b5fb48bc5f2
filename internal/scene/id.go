// Package scene locates Landsat scene files in a working directory, parses
// their ENVI headers, and extracts per-pixel scene records from the raw
// band files.
package scene

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/chrissnell/ccdc/pkg/ordinal"
)

var (
	// ErrNoScenes is returned when a directory holds no usable scene
	ErrNoScenes = errors.New("no scenes found")
	// ErrBadID is returned for a scene name that does not follow LXSPPPRRRYYYYDDD
	ErrBadID = errors.New("malformed scene id")
)

// ID identifies one scene by its Landsat name, e.g. LT50460272000175XXX02
type ID struct {
	Name      string
	Satellite int
	Year      int
	DOY       int
	Date      int
}

// ParseID decodes the satellite number and acquisition date of a scene name
func ParseID(name string) (ID, error) {
	if len(name) < 16 || name[0] != 'L' {
		return ID{}, fmt.Errorf("%q: %w", name, ErrBadID)
	}
	sat, err := strconv.Atoi(name[2:3])
	if err != nil {
		return ID{}, fmt.Errorf("%q: satellite: %w", name, ErrBadID)
	}
	year, err := strconv.Atoi(name[9:13])
	if err != nil {
		return ID{}, fmt.Errorf("%q: year: %w", name, ErrBadID)
	}
	doy, err := strconv.Atoi(name[13:16])
	if err != nil {
		return ID{}, fmt.Errorf("%q: day of year: %w", name, ErrBadID)
	}
	date, err := ordinal.FromYearDOY(year, doy)
	if err != nil {
		return ID{}, fmt.Errorf("%q: %v: %w", name, err, ErrBadID)
	}
	return ID{Name: name, Satellite: sat, Year: year, DOY: doy, Date: date}, nil
}

func (id ID) String() string {
	return id.Name
}

// Files lists the raw band files of a scene
type Files struct {
	Reflectance [6]string
	Thermal     string
	QA          string
}

// Files returns the file names of the scene's bands in output band order.
// Landsat 8 shifts the reflectance bands up by one and carries thermal in
// band 10.
func (id ID) Files() Files {
	var f Files
	first, thermal := 1, 6
	if id.Satellite == 8 {
		first, thermal = 2, 10
	}
	for b := 0; b < 5; b++ {
		f.Reflectance[b] = fmt.Sprintf("%s_sr_band%d.img", id.Name, first+b)
	}
	f.Reflectance[5] = id.Name + "_sr_band7.img"
	f.Thermal = fmt.Sprintf("%s_toa_band%d.img", id.Name, thermal)
	f.QA = id.Name + "_cfmask.img"
	return f
}

// HeaderFile is the ENVI header of the scene's first reflectance band
func (id ID) HeaderFile() string {
	return id.Name + "_sr_band1.hdr"
}
