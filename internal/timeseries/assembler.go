package timeseries

import (
	"errors"
	"iter"
	"slices"
)

// ErrInsufficientCoverage is returned when too few scenes carry data for the pixel
var ErrInsufficientCoverage = errors.New("insufficient clear-sky coverage")

// DefaultMinClearFraction is the minimum fraction of scenes with data
const DefaultMinClearFraction = 0.5

// Summary counts the pixel's quality classes over every scene of the run
type Summary struct {
	Scenes int
	Land   int
	Water  int
	Snow   int
	Shadow int
	Cloud  int
	Fill   int

	// FirstScene and LastScene bound the dates of all scenes, usable or not
	FirstScene int
	LastScene  int
}

// NonFill is the number of scenes with any data for the pixel
func (s Summary) NonFill() int { return s.Scenes - s.Fill }

// Retained is the number of clear-sky scenes kept in the series
func (s Summary) Retained() int { return s.Land + s.Water + s.Snow }

// ClearFraction is the fraction of scenes with data for the pixel.
func (s Summary) ClearFraction() float64 {
	return ratio(s.NonFill(), s.Scenes)
}

// WaterFraction is the fraction of retained scenes classified clear water
func (s Summary) WaterFraction() float64 {
	return ratio(s.Water, s.Retained())
}

// SnowFraction is the fraction of retained scenes classified snow
func (s Summary) SnowFraction() float64 {
	return ratio(s.Snow, s.Retained())
}

// FmaskFailFraction is the fraction of scenes with data that CFmask flagged
// as cloud or cloud shadow.
func (s Summary) FmaskFailFraction() float64 {
	return ratio(s.Cloud+s.Shadow, s.NonFill())
}

func ratio(n, d int) float64 {
	if d == 0 {
		return 0
	}
	return float64(n) / float64(d)
}

// Assembler builds a pixel Series from raw scene records
type Assembler struct {
	MinClearFraction float64
}

// NewAssembler returns an assembler with the given coverage gate. A
// non-positive value selects DefaultMinClearFraction.
func NewAssembler(minClearFraction float64) *Assembler {
	if minClearFraction <= 0 {
		minClearFraction = DefaultMinClearFraction
	}
	return &Assembler{MinClearFraction: minClearFraction}
}

// Assemble consumes scene records in any order and returns the sorted,
// deduplicated clear-sky series and its quality summary. When the clear
// fraction falls below the gate the series is still returned along with
// ErrInsufficientCoverage so the caller can emit a degenerate segment.
func (a *Assembler) Assemble(records iter.Seq[SceneRecord]) (*Series, Summary, error) {
	var sum Summary
	var obs []Observation

	for r := range records {
		if sum.Scenes == 0 || r.Date < sum.FirstScene {
			sum.FirstScene = r.Date
		}
		if sum.Scenes == 0 || r.Date > sum.LastScene {
			sum.LastScene = r.Date
		}
		sum.Scenes++

		switch r.QA {
		case QAClearLand:
			sum.Land++
		case QAClearWater:
			sum.Water++
		case QASnow:
			sum.Snow++
		case QAShadow:
			sum.Shadow++
		case QACloud:
			sum.Cloud++
		default:
			sum.Fill++
		}

		if !r.QA.ClearSky() {
			continue
		}
		obs = append(obs, Observation{
			Date:        r.Date,
			Reflectance: r.Reflectance,
			Thermal:     r.Thermal,
			QA:          r.QA,
		})
	}

	// stable: among equal dates the earliest scene in input order is kept
	slices.SortStableFunc(obs, func(x, y Observation) int { return x.Date - y.Date })
	obs = slices.CompactFunc(obs, func(x, y Observation) bool { return x.Date == y.Date })

	series := &Series{Obs: obs}
	if sum.Scenes == 0 || sum.ClearFraction() < a.MinClearFraction {
		return series, sum, ErrInsufficientCoverage
	}
	return series, sum, nil
}

// AssembleSlice is Assemble over an in-memory slice of records
func (a *Assembler) AssembleSlice(records []SceneRecord) (*Series, Summary, error) {
	return a.Assemble(slices.Values(records))
}
