package restserver

import (
	"github.com/chrissnell/ccdc/internal/segment"
	"github.com/chrissnell/ccdc/internal/storage"
	"github.com/chrissnell/ccdc/pkg/ordinal"
)

func transformSegment(r storage.Record) SegmentResponse {
	s := SegmentResponse{
		Index:             r.Index,
		StartDate:         r.StartDate,
		EndDate:           r.EndDate,
		BreakDate:         r.BreakDate,
		Start:             ordinal.Format(r.StartDate),
		End:               ordinal.Format(r.EndDate),
		Category:          r.Category.String(),
		NumC:              r.NumC,
		NumObs:            r.NumObs,
		Coefficients:      r.Coefficients,
		RMSE:              r.RMSE,
		ChangeProbability: r.ChangeProbability,
	}
	if r.BreakDate != 0 {
		s.Break = ordinal.Format(r.BreakDate)
	}
	return s
}

func transformPixel(recs []storage.Record, p PixelResponse) PixelResponse {
	p.Segments = make([]SegmentResponse, 0, len(recs))
	for _, r := range recs {
		p.Segments = append(p.Segments, transformSegment(r))
	}
	if len(recs) > 0 {
		p.Status = string(recs[0].Status)
	}
	return p
}

// recordAt finds the record owning date
func recordAt(recs []storage.Record, date int) (storage.Record, bool) {
	segs := make([]segment.Segment, len(recs))
	for i, r := range recs {
		segs[i] = r.Segment()
	}
	i, ok := segment.Owner(segs, date)
	if !ok {
		return storage.Record{}, false
	}
	return recs[i], true
}
