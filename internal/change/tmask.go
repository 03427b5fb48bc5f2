package change

import (
	"github.com/chrissnell/ccdc/internal/timeseries"
)

// Tmask screens cloud and shadow that CFmask missed: bright Green outliers
// point at cloud, dark SWIR1 outliers at shadow.
var tmaskBands = []timeseries.Band{timeseries.Green, timeseries.SWIR1}

// tmask returns the observations of idx whose Green residual stays at or
// below +TConst and whose SWIR1 residual stays at or above -TConst against a
// MinNumC fit of the window. idx is returned unchanged when the window
// cannot be fitted.
func (p *pixel) tmask(idx []int) []int {
	m, err := p.fitter.Fit(p.gather(idx), p.cfg.MinNumC, tmaskBands)
	if err != nil {
		return idx
	}
	kept := make([]int, 0, len(idx))
	for _, k := range idx {
		o := p.obs[k]
		if o.Value(timeseries.Green)-m.Predict(0, o.Date) > p.cfg.TConst {
			continue
		}
		if o.Value(timeseries.SWIR1)-m.Predict(1, o.Date) < -p.cfg.TConst {
			continue
		}
		kept = append(kept, k)
	}
	return kept
}
