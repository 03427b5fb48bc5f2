package change

import (
	"fmt"
	"iter"
	"math"

	"go.uber.org/zap"

	"github.com/chrissnell/ccdc/internal/harmonic"
	"github.com/chrissnell/ccdc/internal/segment"
	"github.com/chrissnell/ccdc/internal/timeseries"
	"github.com/chrissnell/ccdc/pkg/ordinal"
)

// minScale keeps residual normalization finite for bands that are zero
// across the whole series
const minScale = 1e-6

// Status describes which path produced a pixel's segments
type Status string

const (
	StatusDetected             Status = "detected"
	StatusInsufficientCoverage Status = "insufficient-coverage"
	StatusInsufficientData     Status = "insufficient-data"
	StatusSuppressed           Status = "suppressed"
	StatusRecovered            Status = "recovered"
)

// Result is the outcome of detection over one pixel
type Result struct {
	Segments *segment.Store
	Summary  timeseries.Summary
	Status   Status
	Breaks   int
}

// Detector runs the change detection state machine. A Detector holds no
// per-pixel state and may be shared by concurrent goroutines.
type Detector struct {
	cfg       Config
	logger    *zap.SugaredLogger
	assembler *timeseries.Assembler
	fitter    *harmonic.Fitter
	policy    harmonic.OrderPolicy
}

// NewDetector validates cfg and creates a detector. A nil logger discards output.
func NewDetector(cfg Config, logger *zap.SugaredLogger) (*Detector, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid detector config: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Detector{
		cfg:       cfg,
		logger:    logger,
		assembler: timeseries.NewAssembler(cfg.MinClearFraction),
		fitter:    harmonic.NewFitter(cfg.Lambda),
		policy:    cfg.OrderPolicy(),
	}, nil
}

// Config returns the detector's thresholds
func (d *Detector) Config() Config {
	return d.cfg
}

// Run assembles one pixel's scene records and detects its segments
func (d *Detector) Run(records iter.Seq[timeseries.SceneRecord]) *Result {
	series, summary, err := d.assembler.Assemble(records)
	if err != nil {
		d.logger.Debugf("pixel skipped: %v (clear fraction %.2f of %d scenes)", err, summary.ClearFraction(), summary.Scenes)
		res := d.degenerate(series, summary)
		res.Status = StatusInsufficientCoverage
		return res
	}
	return d.Detect(series, summary)
}

// Detect partitions an assembled series into segments. A panic during
// detection is recovered and reported as a single insufficient-data segment.
func (d *Detector) Detect(series *timeseries.Series, summary timeseries.Summary) (res *Result) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Errorf("change detector panic recovered: %v", r)
			res = d.degenerate(series, summary)
			res.Status = StatusRecovered
		}
	}()

	n := series.Len()
	if reason, ok := d.suppressed(summary); ok && n > 0 {
		d.logger.Debugf("change testing bypassed: %s", reason)
		return d.monitoredOnly(series, summary)
	}
	if n < d.policy.MinObservations() {
		res := d.degenerate(series, summary)
		res.Status = StatusInsufficientData
		return res
	}

	p := newPixel(d, series)
	p.run()
	return &Result{
		Segments: p.store,
		Summary:  summary,
		Status:   StatusDetected,
		Breaks:   p.breaks,
	}
}

func (d *Detector) suppressed(s timeseries.Summary) (string, bool) {
	switch {
	case s.WaterFraction() >= d.cfg.TWater:
		return fmt.Sprintf("permanent water %.2f", s.WaterFraction()), true
	case s.SnowFraction() >= d.cfg.TSnow:
		return fmt.Sprintf("permanent snow %.2f", s.SnowFraction()), true
	case s.FmaskFailFraction() >= d.cfg.TFmaskFail:
		return fmt.Sprintf("fmask fail %.2f", s.FmaskFailFraction()), true
	}
	return "", false
}

// degenerate returns a single insufficient-data segment spanning series. An
// empty series falls back to the span of the pixel's scenes, and a pixel
// without scenes gets no segment.
func (d *Detector) degenerate(series *timeseries.Series, summary timeseries.Summary) *Result {
	res := &Result{Summary: summary, Status: StatusInsufficientData}
	if series == nil {
		series = &timeseries.Series{}
	}
	res.Segments = segment.NewStore(series.Dates())
	seg := segment.Segment{
		StartDate: series.First(),
		EndDate:   series.Last(),
		Category:  segment.InsufficientData,
		NumObs:    series.Len(),
	}
	if series.Len() == 0 {
		if summary.Scenes == 0 {
			return res
		}
		seg.StartDate, seg.EndDate = summary.FirstScene, summary.LastScene
	}
	if err := res.Segments.Append(seg); err != nil {
		d.logger.Errorf("degenerate segment rejected: %v", err)
	}
	return res
}

// monitoredOnly fits the whole series once and emits it as a single
// no-change-monitored segment
func (d *Detector) monitoredOnly(series *timeseries.Series, summary timeseries.Summary) *Result {
	p := newPixel(d, series)
	all := span(0, series.Len())
	seg := segment.Segment{
		StartDate: series.First(),
		EndDate:   series.Last(),
		Category:  segment.NoChangeMonitored,
		NumObs:    series.Len(),
	}
	if m, c, err := p.fit(all, d.policy.For(len(all)), timeseries.AllBands); err == nil {
		seg.NumC = c
		seg.Coefficients = m.Coefficients
		seg.RMSE = m.RMSE
	}
	p.append(seg)
	return &Result{Segments: p.store, Summary: summary, Status: StatusSuppressed}
}

// pixel is the state of one detection run
type pixel struct {
	*Detector
	obs    []timeseries.Observation
	scale  [timeseries.NumBands]float64
	store  *segment.Store
	breaks int
}

func newPixel(d *Detector, series *timeseries.Series) *pixel {
	return &pixel{
		Detector: d,
		obs:      series.Obs,
		store:    segment.NewStore(series.Dates()),
	}
}

// rescale sets the RMSE floor from the reference magnitudes of the
// observations in idx. Each segment is scaled by its own initialization
// window, so observations after a change never raise the floor used to
// detect it.
func (p *pixel) rescale(idx []int) {
	refs := timeseries.References(p.gather(idx))
	for b, ref := range refs {
		p.scale[b] = math.Max(p.cfg.MinRMSE*ref, minScale)
	}
}

func (p *pixel) run() {
	for start := 0; start < len(p.obs); {
		start = p.segment(start)
	}
}

// segment builds the segment opening at obs[start] and returns the index of
// the first observation it does not own
func (p *pixel) segment(start int) int {
	w, ok := p.initialize(start)
	if !ok {
		p.insufficient(start, len(p.obs))
		return len(p.obs)
	}
	if w.first > start {
		// observations slid over while stabilizing get no model
		p.insufficient(start, w.first)
	}
	return p.monitor(w.first, w)
}

// insufficient appends an insufficient-data segment owning obs[i:j]
func (p *pixel) insufficient(i, j int) {
	p.append(segment.Segment{
		StartDate: p.obs[i].Date,
		EndDate:   p.obs[j-1].Date,
		Category:  segment.InsufficientData,
		NumObs:    j - i,
	})
}

// window is a stable initialization fit over obs[first:next]
type window struct {
	model    *harmonic.Model
	absorbed []int
	first    int
	next     int
}

// initialize grows a window from start until it spans MinYears with enough
// observations and fits stably, sliding its first observation forward while
// the fit is unstable.
func (p *pixel) initialize(start int) (window, bool) {
	n := len(p.obs)
	minObs := p.policy.MinObservations()
	minSpan := p.cfg.MinYears * harmonic.DaysPerYear

	for i, j := start, start+minObs; j <= n; j++ {
		if float64(p.obs[j-1].Date-p.obs[i].Date) < minSpan {
			continue
		}
		idx := span(i, j)
		if p.cfg.Tmask {
			idx = p.tmask(idx)
			if len(idx) < minObs {
				continue
			}
		}
		m, err := p.fitter.Fit(p.gather(idx), p.cfg.MinNumC, timeseries.DetectionBands)
		if err != nil {
			continue
		}
		p.rescale(idx)
		if p.unstable(m, idx) {
			p.logger.Debugf("unstable initialization at %s, sliding window", ordinal.Format(p.obs[i].Date))
			i++
			continue
		}
		return window{model: m, absorbed: idx, first: i, next: j}, true
	}
	return window{}, false
}

// unstable reports whether the window's own trend and end residuals already
// exceed TMaxCg
func (p *pixel) unstable(m *harmonic.Model, idx []int) bool {
	first, last := p.obs[idx[0]], p.obs[idx[len(idx)-1]]
	days := float64(last.Date - first.Date)

	var v2 float64
	for k, b := range m.Bands {
		scale := math.Max(m.RMSE[k], p.scale[b])
		v := (math.Abs(m.Slope(k)*days) +
			math.Abs(first.Value(b)-m.Predict(k, first.Date)) +
			math.Abs(last.Value(b)-m.Predict(k, last.Date))) / scale
		v2 += v * v
	}
	return v2 > p.cfg.TMaxCg
}

// monitor tests each observation after the initialization window against
// the active model, closes the segment, and returns the index the next
// segment opens at.
func (p *pixel) monitor(start int, w window) int {
	model, absorbed := w.model, w.absorbed
	numC := p.cfg.MinNumC
	fitted := len(absorbed)
	var run []int

	for k := w.next; k < len(p.obs); k++ {
		stat, z := p.score(model, p.obs[k])
		if stat > p.cfg.TCg {
			run = append(run, k)
			if len(run) >= p.cfg.Conse || stat > p.cfg.TMaxCg {
				p.breaks++
				p.logger.Debugf("break confirmed at %s after %d anomalous observations (statistic %.2f)",
					ordinal.Format(p.obs[run[0]].Date), len(run), stat)
				p.close(start, run[0]-1, absorbed, numC, run[0], p.probability(z))
				return run[0]
			}
			continue
		}

		absorbed = append(absorbed, run...)
		absorbed = append(absorbed, k)
		run = run[:0]

		want := max(numC, p.policy.For(len(absorbed)))
		if float64(len(absorbed)) >= p.cfg.RefitFactor*float64(fitted) || want > numC {
			if m, c, err := p.fit(absorbed, want, timeseries.DetectionBands); err == nil && c >= numC {
				model, numC, fitted = m, c, len(absorbed)
			}
		}
	}

	p.close(start, len(p.obs)-1, absorbed, numC, -1, float64(len(run))/float64(p.cfg.Conse))
	return len(p.obs)
}

// score returns the combined statistic and per-band normalized residuals of
// o against the detection-band model
func (p *pixel) score(m *harmonic.Model, o timeseries.Observation) (float64, []float64) {
	z := make([]float64, len(m.Bands))
	var stat float64
	for k, b := range m.Bands {
		z[k] = (o.Value(b) - m.Predict(k, o.Date)) / math.Max(m.RMSE[k], p.scale[b])
		stat += z[k] * z[k]
	}
	return stat, z
}

// probability is the fraction of bands whose squared residual exceeds TBand
func (p *pixel) probability(z []float64) float64 {
	if len(z) == 0 {
		return 0
	}
	var exceeded int
	for _, v := range z {
		if v*v > p.cfg.TBand {
			exceeded++
		}
	}
	return float64(exceeded) / float64(len(z))
}

// close appends the segment owning obs[start:end+1]. Output coefficients are
// fitted over the absorbed observations for every band.
func (p *pixel) close(start, end int, absorbed []int, numC, breakIdx int, prob float64) {
	seg := segment.Segment{
		StartDate:         p.obs[start].Date,
		EndDate:           p.obs[end].Date,
		Category:          segment.Model,
		NumObs:            len(absorbed),
		ChangeProbability: prob,
	}
	if breakIdx >= 0 {
		seg.BreakDate = p.obs[breakIdx].Date
	}

	m, c, err := p.fit(absorbed, max(numC, p.policy.For(len(absorbed))), timeseries.AllBands)
	if err != nil {
		p.logger.Debugf("segment %s..%s has no usable fit: %v", ordinal.Format(seg.StartDate), ordinal.Format(seg.EndDate), err)
		seg.Category = segment.InsufficientData
	} else {
		seg.NumC = c
		seg.Coefficients = m.Coefficients
		seg.RMSE = m.RMSE
	}
	p.append(seg)
}

// fit fits idx at numC, falling back to lower orders on ErrSingularModel
func (p *pixel) fit(idx []int, numC int, bands []timeseries.Band) (*harmonic.Model, int, error) {
	obs := p.gather(idx)
	err := harmonic.ErrSingularModel
	for c := numC; c >= p.cfg.MinNumC; c = p.policy.Lower(c) {
		var m *harmonic.Model
		if m, err = p.fitter.Fit(obs, c, bands); err == nil {
			return m, c, nil
		}
	}
	return nil, 0, err
}

func (p *pixel) append(seg segment.Segment) {
	if err := p.store.Append(seg); err != nil {
		panic(fmt.Sprintf("segment bookkeeping: %v", err))
	}
}

func (p *pixel) gather(idx []int) []timeseries.Observation {
	out := make([]timeseries.Observation, len(idx))
	for i, k := range idx {
		out[i] = p.obs[k]
	}
	return out
}

// span returns the indices [i, j)
func span(i, j int) []int {
	idx := make([]int, 0, j-i)
	for k := i; k < j; k++ {
		idx = append(idx, k)
	}
	return idx
}
