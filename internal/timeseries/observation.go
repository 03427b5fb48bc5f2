// Package timeseries assembles a pixel's clear-sky observation history from
// raw per-scene values and their CFmask quality classification.
package timeseries

import "fmt"

// Band indexes the seven fitted bands: six surface reflectance bands and thermal.
type Band int

const (
	Blue Band = iota
	Green
	Red
	NIR
	SWIR1
	SWIR2
	Thermal
)

const (
	// NumReflectance is the number of surface reflectance bands per observation
	NumReflectance = 6
	// NumBands is the number of bands carried in output coefficients
	NumBands = NumReflectance + 1
)

// AllBands lists every fitted band in output order
var AllBands = []Band{Blue, Green, Red, NIR, SWIR1, SWIR2, Thermal}

// DetectionBands are the bands scored by the change test statistic
// (Landsat TM bands 2, 3, 4, 5 and 7).
var DetectionBands = []Band{Green, Red, NIR, SWIR1, SWIR2}

func (b Band) String() string {
	switch b {
	case Blue:
		return "blue"
	case Green:
		return "green"
	case Red:
		return "red"
	case NIR:
		return "nir"
	case SWIR1:
		return "swir1"
	case SWIR2:
		return "swir2"
	case Thermal:
		return "thermal"
	}
	return fmt.Sprintf("band(%d)", int(b))
}

// QA is a CFmask classification byte
type QA uint8

const (
	QAClearLand  QA = 0
	QAClearWater QA = 1
	QAShadow     QA = 2
	QASnow       QA = 3
	QACloud      QA = 4
	QAFill       QA = 255
)

func (q QA) String() string {
	switch q {
	case QAClearLand:
		return "clear-land"
	case QAClearWater:
		return "clear-water"
	case QAShadow:
		return "shadow"
	case QASnow:
		return "snow"
	case QACloud:
		return "cloud"
	case QAFill:
		return "fill"
	}
	return fmt.Sprintf("qa(%d)", uint8(q))
}

// ClearSky reports whether the class is kept in the time series.
// Cloud, shadow, fill and unknown bytes are dropped.
func (q QA) ClearSky() bool {
	return q == QAClearLand || q == QAClearWater || q == QASnow
}

// SceneRecord is one scene's raw values for a single pixel, as extracted by
// the raster collaborator.
type SceneRecord struct {
	Scene       string
	Date        int
	Reflectance [NumReflectance]float64
	Thermal     float64
	QA          QA
}

// Observation is one clear-sky measurement of a pixel. Observations are
// values; nothing mutates them after assembly.
type Observation struct {
	Date        int
	Reflectance [NumReflectance]float64
	Thermal     float64
	QA          QA
}

// Value returns the observation's value in band b
func (o Observation) Value(b Band) float64 {
	if b == Thermal {
		return o.Thermal
	}
	return o.Reflectance[b]
}

// IsWater reports whether CFmask classified the observation as clear water
func (o Observation) IsWater() bool { return o.QA == QAClearWater }

// IsSnow reports whether CFmask classified the observation as snow
func (o Observation) IsSnow() bool { return o.QA == QASnow }
