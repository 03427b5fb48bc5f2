// Package change implements the per-pixel change detection state machine.
// A Detector consumes a pixel's assembled series, drives the harmonic
// fitter, and partitions the series into segments separated by confirmed
// breaks.
package change

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/chrissnell/ccdc/internal/harmonic"
	"github.com/chrissnell/ccdc/internal/timeseries"
)

// Config holds the detector thresholds. It is treated as immutable once a
// Detector is built from it.
type Config struct {
	// MinRMSE scales each band's reference magnitude into an RMSE floor
	MinRMSE float64
	// TCg is the critical value of the combined detection-band statistic
	TCg float64
	// TMaxCg confirms a break on a single observation and marks an
	// initialization window unstable
	TMaxCg float64
	// TBand is the per-band critical value used for change probability
	TBand float64
	Conse int

	MinYears float64
	NTimes   int
	MinNumC  int
	MidNumC  int
	MaxNumC  int

	// RefitFactor triggers a refit once the absorbed observations reach
	// this multiple of the count at the last fit
	RefitFactor float64

	TWater     float64
	TSnow      float64
	TFmaskFail float64

	Tmask  bool
	TConst float64

	Lambda           float64
	MinClearFraction float64
}

// DefaultConfig returns the standard CCDC thresholds
func DefaultConfig() Config {
	return Config{
		MinRMSE:          0.1,
		TCg:              ChiSquare(5, 0.99),
		TMaxCg:           ChiSquare(5, 1-1e-6),
		TBand:            ChiSquare(1, 0.99),
		Conse:            6,
		MinYears:         1,
		NTimes:           3,
		MinNumC:          4,
		MidNumC:          6,
		MaxNumC:          8,
		RefitFactor:      1.33,
		TWater:           0.95,
		TSnow:            0.6,
		TFmaskFail:       0.6,
		Tmask:            true,
		TConst:           400, // 0.04 reflectance at the 10000 scale
		Lambda:           harmonic.DefaultLambda,
		MinClearFraction: timeseries.DefaultMinClearFraction,
	}
}

// ChiSquare returns the p quantile of the chi-square distribution with k
// degrees of freedom
func ChiSquare(k, p float64) float64 {
	return distuv.ChiSquared{K: k}.Quantile(p)
}

// OrderPolicy returns the coefficient order escalation policy of c
func (c Config) OrderPolicy() harmonic.OrderPolicy {
	return harmonic.OrderPolicy{MinNumC: c.MinNumC, MidNumC: c.MidNumC, MaxNumC: c.MaxNumC, NTimes: c.NTimes}
}

// Validate reports every inconsistent threshold in c
func (c Config) Validate() error {
	var errs []error
	if c.MinRMSE <= 0 {
		errs = append(errs, fmt.Errorf("min_rmse must be positive, got %v", c.MinRMSE))
	}
	if c.TCg <= 0 {
		errs = append(errs, fmt.Errorf("t_cg must be positive, got %v", c.TCg))
	}
	if c.TMaxCg < c.TCg {
		errs = append(errs, fmt.Errorf("t_max_cg %v is below t_cg %v", c.TMaxCg, c.TCg))
	}
	if c.TBand <= 0 {
		errs = append(errs, fmt.Errorf("t_band must be positive, got %v", c.TBand))
	}
	if c.Conse < 1 {
		errs = append(errs, fmt.Errorf("conse must be at least 1, got %d", c.Conse))
	}
	if c.MinYears < 0 {
		errs = append(errs, fmt.Errorf("min_years cannot be negative, got %v", c.MinYears))
	}
	if c.NTimes < 1 {
		errs = append(errs, fmt.Errorf("n_times must be at least 1, got %d", c.NTimes))
	}
	if !harmonic.ValidOrder(c.MinNumC) || !harmonic.ValidOrder(c.MidNumC) || !harmonic.ValidOrder(c.MaxNumC) ||
		c.MinNumC > c.MidNumC || c.MidNumC > c.MaxNumC {
		errs = append(errs, fmt.Errorf("coefficient orders %d/%d/%d must be ascending values of 4, 6 or 8", c.MinNumC, c.MidNumC, c.MaxNumC))
	}
	if c.RefitFactor <= 1 {
		errs = append(errs, fmt.Errorf("refit_factor must exceed 1, got %v", c.RefitFactor))
	}
	fractions := []struct {
		name string
		v    float64
	}{
		{"t_water", c.TWater},
		{"t_snow", c.TSnow},
		{"t_fmask_fail", c.TFmaskFail},
		{"min_clear_fraction", c.MinClearFraction},
	}
	for _, f := range fractions {
		if f.v < 0 || f.v > 1 {
			errs = append(errs, fmt.Errorf("%s must be within [0,1], got %v", f.name, f.v))
		}
	}
	if c.Tmask && c.TConst <= 0 {
		errs = append(errs, fmt.Errorf("t_const must be positive when tmask is enabled, got %v", c.TConst))
	}
	if c.Lambda < 0 {
		errs = append(errs, fmt.Errorf("lambda cannot be negative, got %v", c.Lambda))
	}
	return errors.Join(errs...)
}
