package harmonic

import (
	"errors"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/chrissnell/ccdc/internal/timeseries"
)

const t0 = 730120 // 2000-01-01

// synthetic builds n observations every step days with every band following
// fn plus uniform noise of the given amplitude.
func synthetic(n, step int, noise float64, fn func(t float64) float64) []timeseries.Observation {
	rnd := rand.New(rand.NewPCG(7, 11))
	obs := make([]timeseries.Observation, n)
	for i := range obs {
		d := t0 + i*step
		v := fn(float64(d))
		o := timeseries.Observation{Date: d, QA: timeseries.QAClearLand}
		for b := range o.Reflectance {
			o.Reflectance[b] = v + float64(b)*10 + noise*(2*rnd.Float64()-1)
		}
		o.Thermal = v/10 + noise*(2*rnd.Float64()-1)
		obs[i] = o
	}
	return obs
}

func seasonal(t float64) float64 {
	return 1500 + 0.05*(t-t0) + 300*math.Cos(omega*t) - 120*math.Sin(omega*t) + 40*math.Cos(2*omega*t)
}

func TestFitRecoversNoiselessModel(t *testing.T) {
	obs := synthetic(40, 16, 0, seasonal)
	m, err := (&Fitter{}).Fit(obs, 6, []timeseries.Band{timeseries.Blue})
	require.NoError(t, err)

	c := m.Coefficients[0]
	require.InDelta(t, 0.05, c[1], 1e-9)
	require.InDelta(t, 300, c[2], 1e-6)
	require.InDelta(t, -120, c[3], 1e-6)
	require.InDelta(t, 40, c[4], 1e-6)
	require.InDelta(t, 0, c[5], 1e-6)
	require.InDelta(t, 0, m.RMSE[0], 1e-6)

	for _, o := range obs {
		require.InDelta(t, o.Reflectance[0], m.Predict(0, o.Date), 1e-6)
	}
	require.Equal(t, 40, m.NumObs)
	require.Equal(t, obs[0].Date, m.Start)
	require.Equal(t, obs[39].Date, m.End)
}

func TestFitSingular(t *testing.T) {
	tests := []struct {
		name string
		obs  []timeseries.Observation
		numC int
	}{
		{
			name: "fewer observations than coefficients",
			obs:  synthetic(5, 16, 0, seasonal),
			numC: 6,
		},
		{
			name: "all observations on one date",
			obs: func() []timeseries.Observation {
				obs := synthetic(6, 16, 0, seasonal)
				for i := range obs {
					obs[i].Date = t0
				}
				return obs
			}(),
			numC: 4,
		},
		{
			name: "non-finite values",
			obs: func() []timeseries.Observation {
				obs := synthetic(20, 16, 0, seasonal)
				obs[3].Reflectance[timeseries.Red] = math.NaN()
				return obs
			}(),
			numC: 4,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewFitter(DefaultLambda).Fit(tt.obs, tt.numC, timeseries.AllBands)
			if !errors.Is(err, ErrSingularModel) {
				t.Fatalf("expected ErrSingularModel, got %v", err)
			}
		})
	}
}

func TestFitRejectsUnsupportedOrder(t *testing.T) {
	_, err := (&Fitter{}).Fit(synthetic(30, 16, 0, seasonal), 5, timeseries.AllBands)
	require.Error(t, err)
	require.False(t, errors.Is(err, ErrSingularModel))
}

func TestRMSEConsistency(t *testing.T) {
	obs := synthetic(60, 16, 80, seasonal)
	for _, numC := range []int{4, 6, 8} {
		for _, f := range []*Fitter{{}, NewFitter(DefaultLambda), NewFitter(200)} {
			m, err := f.Fit(obs, numC, timeseries.AllBands)
			require.NoError(t, err)

			for i, b := range m.Bands {
				var sse float64
				for _, o := range obs {
					tt := float64(o.Date)
					pred := m.Coefficients[i][0] + m.Coefficients[i][1]*tt
					for k := 1; 2*k < numC; k++ {
						pred += m.Coefficients[i][2*k]*math.Cos(float64(k)*2*math.Pi*tt/365.25) +
							m.Coefficients[i][2*k+1]*math.Sin(float64(k)*2*math.Pi*tt/365.25)
					}
					r := o.Value(b) - pred
					sse += r * r
				}
				want := math.Sqrt(sse / float64(len(obs)))
				if math.Abs(want-m.RMSE[i]) > 1e-6*math.Max(1, want) {
					t.Errorf("numC=%d lambda=%v band=%s: RMSE %v, recomputed %v", numC, f.Lambda, b, m.RMSE[i], want)
				}
			}
		}
	}
}

func TestLassoShrinks(t *testing.T) {
	obs := synthetic(50, 16, 20, seasonal)
	bands := []timeseries.Band{timeseries.Green}

	ols, err := (&Fitter{}).Fit(obs, 4, bands)
	require.NoError(t, err)
	lasso, err := NewFitter(DefaultLambda).Fit(obs, 4, bands)
	require.NoError(t, err)

	amp := func(m *Model) float64 {
		return math.Hypot(m.Coefficients[0][2], m.Coefficients[0][3])
	}
	if amp(lasso) >= amp(ols) {
		t.Errorf("lasso amplitude %v should be below least squares amplitude %v", amp(lasso), amp(ols))
	}
	if lasso.RMSE[0] < ols.RMSE[0] {
		t.Errorf("lasso RMSE %v cannot beat least squares RMSE %v", lasso.RMSE[0], ols.RMSE[0])
	}

	// a penalty larger than any signal leaves only the mean
	flat, err := NewFitter(1e6).Fit(obs, 4, bands)
	require.NoError(t, err)
	var mean float64
	for _, o := range obs {
		mean += o.Value(timeseries.Green)
	}
	mean /= float64(len(obs))
	for k := 1; k < 4; k++ {
		require.Zero(t, flat.Coefficients[0][k])
	}
	require.InDelta(t, mean, flat.Predict(0, obs[10].Date), 1e-6)
}

func TestOrderPolicy(t *testing.T) {
	p := DefaultOrderPolicy
	tests := []struct {
		n        int
		expected int
	}{
		{0, 4}, {12, 4}, {17, 4}, {18, 6}, {23, 6}, {24, 8}, {500, 8},
	}
	for _, tt := range tests {
		if got := p.For(tt.n); got != tt.expected {
			t.Errorf("For(%d) = %d, expected %d", tt.n, got, tt.expected)
		}
	}
	require.Equal(t, 12, p.MinObservations())
	require.Equal(t, 6, p.Lower(8))
	require.Equal(t, 4, p.Lower(6))
	require.Equal(t, 0, p.Lower(4))
}

func TestModelIndex(t *testing.T) {
	m, err := (&Fitter{}).Fit(synthetic(20, 16, 0, seasonal), 4, timeseries.DetectionBands)
	require.NoError(t, err)
	require.Equal(t, 0, m.Index(timeseries.Green))
	require.Equal(t, 4, m.Index(timeseries.SWIR2))
	require.Equal(t, -1, m.Index(timeseries.Blue))
	i := m.Index(timeseries.Red)
	require.Equal(t, m.Coefficients[i][1], m.Slope(i))
}
