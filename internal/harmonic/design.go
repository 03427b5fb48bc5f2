// Package harmonic fits per-band seasonal-plus-trend regressions over a
// window of observations.
//
// The model for band b at date t (ordinal day) is
//
//	c0 + c1*t + c2*cos(w*t) + c3*sin(w*t) + c4*cos(2w*t) + c5*sin(2w*t) + c6*cos(3w*t) + c7*sin(3w*t)
//
// with w = 2π/365.25, truncated to the first numC terms.
package harmonic

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// DaysPerYear is the annual period of the harmonic terms
const DaysPerYear = 365.25

const omega = 2 * math.Pi / DaysPerYear

// ValidOrder reports whether numC is a supported coefficient count
func ValidOrder(numC int) bool {
	return numC == 4 || numC == 6 || numC == 8
}

// Basis fills row with the numC basis functions evaluated at date.
// The trend column is date - origin; Design and Fit use origin to keep the
// least squares problem well conditioned.
func Basis(date, origin float64, numC int, row []float64) {
	row[0] = 1
	row[1] = date - origin
	for k := 1; 2*k < numC; k++ {
		row[2*k] = math.Cos(float64(k) * omega * date)
		row[2*k+1] = math.Sin(float64(k) * omega * date)
	}
}

// Design returns the n x numC design matrix for dates, trend measured from origin
func Design(dates []int, origin float64, numC int) (*mat.Dense, error) {
	if !ValidOrder(numC) {
		return nil, fmt.Errorf("unsupported coefficient order %d", numC)
	}
	x := mat.NewDense(len(dates), numC, nil)
	row := make([]float64, numC)
	for i, d := range dates {
		Basis(float64(d), origin, numC, row)
		x.SetRow(i, row)
	}
	return x, nil
}

// OrderPolicy selects the coefficient order from the clear observation count
type OrderPolicy struct {
	MinNumC int
	MidNumC int
	MaxNumC int
	NTimes  int
}

// DefaultOrderPolicy escalates from 4 to 6 terms at 18 observations and to 8 at 24
var DefaultOrderPolicy = OrderPolicy{MinNumC: 4, MidNumC: 6, MaxNumC: 8, NTimes: 3}

// For returns the order allowed for n observations
func (p OrderPolicy) For(n int) int {
	switch {
	case n >= p.NTimes*p.MaxNumC:
		return p.MaxNumC
	case n >= p.NTimes*p.MidNumC:
		return p.MidNumC
	default:
		return p.MinNumC
	}
}

// MinObservations is the count needed before any model is fitted
func (p OrderPolicy) MinObservations() int {
	return p.NTimes * p.MinNumC
}

// Lower returns the next lower order, or 0 below MinNumC
func (p OrderPolicy) Lower(numC int) int {
	switch {
	case numC > p.MidNumC:
		return p.MidNumC
	case numC > p.MinNumC:
		return p.MinNumC
	default:
		return 0
	}
}
