package harmonic

import (
	"gonum.org/v1/gonum/floats"

	"github.com/chrissnell/ccdc/internal/timeseries"
)

// Model is a fitted harmonic regression for a set of bands over one window.
// Coefficients[i] and RMSE[i] belong to Bands[i] and apply to the raw
// ordinal date.
type Model struct {
	NumC         int
	Bands        []timeseries.Band
	Coefficients [][]float64
	RMSE         []float64
	NumObs       int
	Start        int
	End          int
}

// Predict evaluates the model for the i-th fitted band at date
func (m *Model) Predict(i int, date int) float64 {
	row := make([]float64, m.NumC)
	Basis(float64(date), 0, m.NumC, row)
	return floats.Dot(row, m.Coefficients[i])
}

// Index returns the position of band b in the model, or -1
func (m *Model) Index(b timeseries.Band) int {
	for i, mb := range m.Bands {
		if mb == b {
			return i
		}
	}
	return -1
}

// Slope returns the fitted linear trend of the i-th band, per day
func (m *Model) Slope(i int) float64 {
	return m.Coefficients[i][1]
}
