package timeseries

import (
	"math"
	"slices"

	"gonum.org/v1/gonum/stat"
)

// Series is a pixel's observations sorted ascending by date with unique dates.
// It is read-only once handed to the change detector.
type Series struct {
	Obs []Observation
}

// Len returns the number of observations
func (s *Series) Len() int { return len(s.Obs) }

// Dates returns the observation dates in order
func (s *Series) Dates() []int {
	dates := make([]int, len(s.Obs))
	for i, o := range s.Obs {
		dates[i] = o.Date
	}
	return dates
}

// First returns the first observation date, or 0 for an empty series
func (s *Series) First() int {
	if len(s.Obs) == 0 {
		return 0
	}
	return s.Obs[0].Date
}

// Last returns the last observation date, or 0 for an empty series
func (s *Series) Last() int {
	if len(s.Obs) == 0 {
		return 0
	}
	return s.Obs[len(s.Obs)-1].Date
}

// Reference returns the band's reference magnitude over the whole series
func (s *Series) Reference(b Band) float64 {
	return Reference(s.Obs, b)
}

// References returns Reference for every band in AllBands order
func (s *Series) References() [NumBands]float64 {
	return References(s.Obs)
}

// Reference returns the median absolute value of band b over obs, or 0 when
// obs is empty. It scales the RMSE floor used when scoring residuals.
func Reference(obs []Observation, b Band) float64 {
	if len(obs) == 0 {
		return 0
	}
	vals := make([]float64, len(obs))
	for i, o := range obs {
		vals[i] = math.Abs(o.Value(b))
	}
	slices.Sort(vals)
	return stat.Quantile(0.5, stat.Empirical, vals, nil)
}

// References returns Reference over obs for every band in AllBands order
func References(obs []Observation) [NumBands]float64 {
	var refs [NumBands]float64
	for _, b := range AllBands {
		refs[b] = Reference(obs, b)
	}
	return refs
}
