package harmonic

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/chrissnell/ccdc/internal/timeseries"
)

// ErrSingularModel is returned when a window cannot support the requested
// order: fewer observations than coefficients, a rank-deficient design, or
// a solution that is not finite.
var ErrSingularModel = errors.New("singular harmonic model")

// DefaultLambda is the Lasso penalty, in reflectance units, applied to the
// standardized non-intercept coefficients.
const DefaultLambda = 20.0

// Fitter fits harmonic models. The zero value is an ordinary least squares fitter.
type Fitter struct {
	Lambda  float64
	MaxIter int
	Tol     float64
}

// NewFitter creates a fitter with the given Lasso penalty and default
// coordinate descent limits
func NewFitter(lambda float64) *Fitter {
	return &Fitter{Lambda: lambda, MaxIter: 1000, Tol: 1e-6}
}

// Fit fits each of bands independently over window at numC coefficients.
func (f *Fitter) Fit(window []timeseries.Observation, numC int, bands []timeseries.Band) (*Model, error) {
	if !ValidOrder(numC) {
		return nil, fmt.Errorf("unsupported coefficient order %d", numC)
	}
	n := len(window)
	if n < numC {
		return nil, fmt.Errorf("%d observations for %d coefficients: %w", n, numC, ErrSingularModel)
	}

	dates := make([]int, n)
	for i, o := range window {
		dates[i] = o.Date
	}
	origin := float64(dates[0])
	x, err := Design(dates, origin, numC)
	if err != nil {
		return nil, err
	}

	y := mat.NewDense(n, len(bands), nil)
	for i, o := range window {
		for j, b := range bands {
			y.Set(i, j, o.Value(b))
		}
	}

	var qr mat.QR
	qr.Factorize(x)
	var beta mat.Dense
	if err := qr.SolveTo(&beta, false, y); err != nil {
		return nil, fmt.Errorf("least squares solve: %v: %w", err, ErrSingularModel)
	}

	m := &Model{
		NumC:         numC,
		Bands:        append([]timeseries.Band(nil), bands...),
		Coefficients: make([][]float64, len(bands)),
		RMSE:         make([]float64, len(bands)),
		NumObs:       n,
		Start:        dates[0],
		End:          dates[n-1],
	}

	var sd standardizer
	if f.Lambda > 0 {
		sd = newStandardizer(x)
	}

	for j := range bands {
		coef := mat.Col(nil, j, &beta)
		yj := mat.Col(nil, j, y)
		if f.Lambda > 0 {
			coef = f.shrink(sd, yj, coef)
		}

		// shift the intercept from the window origin to the raw date axis
		coef[0] -= coef[1] * origin
		m.Coefficients[j] = coef

		m.RMSE[j] = ResidualRMSE(coef, window, bands[j])
		if !finite(coef) || math.IsNaN(m.RMSE[j]) || math.IsInf(m.RMSE[j], 0) {
			return nil, fmt.Errorf("non-finite fit for band %s: %w", bands[j], ErrSingularModel)
		}
	}

	return m, nil
}

// ResidualRMSE is the root mean square residual of coef against the band's
// observations in window.
func ResidualRMSE(coef []float64, window []timeseries.Observation, b timeseries.Band) float64 {
	if len(window) == 0 {
		return 0
	}
	row := make([]float64, len(coef))
	var sse float64
	for _, o := range window {
		Basis(float64(o.Date), 0, len(coef), row)
		r := o.Value(b) - floats.Dot(row, coef)
		sse += r * r
	}
	return math.Sqrt(sse / float64(len(window)))
}

// standardizer holds the column means and standard deviations of a design
// matrix and the standardized non-intercept columns.
type standardizer struct {
	n     int
	mean  []float64
	scale []float64
	cols  [][]float64
}

func newStandardizer(x *mat.Dense) standardizer {
	n, p := x.Dims()
	s := standardizer{
		n:     n,
		mean:  make([]float64, p),
		scale: make([]float64, p),
		cols:  make([][]float64, p),
	}
	for j := 1; j < p; j++ {
		col := mat.Col(nil, j, x)
		mu := floats.Sum(col) / float64(n)
		floats.AddConst(-mu, col)
		sigma := math.Sqrt(floats.Dot(col, col) / float64(n))
		if sigma > 0 {
			floats.Scale(1/sigma, col)
		}
		s.mean[j] = mu
		s.scale[j] = sigma
		s.cols[j] = col
	}
	return s
}

// shrink runs cyclic coordinate descent for
//
//	(1/2n)·||y - Xβ||² + λ·Σ_{j≥1} |β_j|
//
// on standardized columns, warm-started from the least squares solution ols,
// and returns coefficients on the original (origin-shifted) columns.
func (f *Fitter) shrink(s standardizer, y, ols []float64) []float64 {
	p := len(ols)
	n := float64(s.n)

	ymean := floats.Sum(y) / n
	r := make([]float64, len(y))
	for i := range y {
		r[i] = y[i] - ymean
	}

	b := make([]float64, p)
	for j := 1; j < p; j++ {
		if s.scale[j] == 0 {
			continue
		}
		b[j] = ols[j] * s.scale[j]
		floats.AddScaled(r, -b[j], s.cols[j])
	}

	maxIter := f.MaxIter
	if maxIter <= 0 {
		maxIter = 1000
	}
	for iter := 0; iter < maxIter; iter++ {
		var maxDelta float64
		for j := 1; j < p; j++ {
			if s.scale[j] == 0 {
				continue
			}
			rho := floats.Dot(s.cols[j], r)/n + b[j]
			next := softThreshold(rho, f.Lambda)
			if delta := next - b[j]; delta != 0 {
				floats.AddScaled(r, -delta, s.cols[j])
				maxDelta = math.Max(maxDelta, math.Abs(delta))
				b[j] = next
			}
		}
		if maxDelta < f.Tol {
			break
		}
	}

	out := make([]float64, p)
	out[0] = ymean
	for j := 1; j < p; j++ {
		if s.scale[j] == 0 {
			continue
		}
		out[j] = b[j] / s.scale[j]
		out[0] -= out[j] * s.mean[j]
	}
	return out
}

func softThreshold(v, lambda float64) float64 {
	switch {
	case v > lambda:
		return v - lambda
	case v < -lambda:
		return v + lambda
	default:
		return 0
	}
}

func finite(v []float64) bool {
	for _, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return false
		}
	}
	return true
}
