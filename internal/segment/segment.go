// Package segment holds the time segments produced for one pixel and the
// append-only store that keeps them partitioning the pixel's observations.
package segment

import (
	"fmt"
)

// Category tags how a segment's model was obtained
type Category int

const (
	// Model segments carry a stable harmonic fit
	Model Category = iota
	// InsufficientData segments never reached a stable fit
	InsufficientData
	// NoChangeMonitored segments belong to pixels exempt from change testing
	NoChangeMonitored
)

func (c Category) String() string {
	switch c {
	case Model:
		return "model"
	case InsufficientData:
		return "insufficient-data"
	case NoChangeMonitored:
		return "no-change-monitored"
	}
	return fmt.Sprintf("category(%d)", int(c))
}

// MarshalText implements encoding.TextMarshaler
func (c Category) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (c *Category) UnmarshalText(b []byte) error {
	cat, err := ParseCategory(string(b))
	if err != nil {
		return err
	}
	*c = cat
	return nil
}

// ParseCategory is the inverse of Category.String
func ParseCategory(s string) (Category, error) {
	switch s {
	case "model":
		return Model, nil
	case "insufficient-data":
		return InsufficientData, nil
	case "no-change-monitored":
		return NoChangeMonitored, nil
	}
	return 0, fmt.Errorf("unknown segment category %q", s)
}

// Segment is a closed time interval of one pixel's history explained by a
// single model. Dates are ordinal days. BreakDate is the first observation
// of the anomalous run that closed the segment, or 0 when no break was
// confirmed.
type Segment struct {
	StartDate         int
	EndDate           int
	BreakDate         int
	Category          Category
	NumC              int
	NumObs            int
	Coefficients      [][]float64
	RMSE              []float64
	ChangeProbability float64
}

// Contains reports whether date falls inside [StartDate, EndDate]
func (s Segment) Contains(date int) bool {
	return date >= s.StartDate && date <= s.EndDate
}

// Broken reports whether the segment was closed by a confirmed change
func (s Segment) Broken() bool {
	return s.BreakDate != 0
}

func (s Segment) validate() error {
	if s.EndDate < s.StartDate {
		return fmt.Errorf("end %d before start %d: %w", s.EndDate, s.StartDate, ErrInvalidSegment)
	}
	if s.ChangeProbability < 0 || s.ChangeProbability > 1 {
		return fmt.Errorf("change probability %v out of range: %w", s.ChangeProbability, ErrInvalidSegment)
	}
	if len(s.Coefficients) != len(s.RMSE) {
		return fmt.Errorf("%d coefficient rows for %d RMSE values: %w", len(s.Coefficients), len(s.RMSE), ErrInvalidSegment)
	}
	for i, c := range s.Coefficients {
		if len(c) != s.NumC {
			return fmt.Errorf("band %d has %d coefficients, expected %d: %w", i, len(c), s.NumC, ErrInvalidSegment)
		}
	}
	if s.Category == Model && s.NumC == 0 {
		return fmt.Errorf("model segment without coefficients: %w", ErrInvalidSegment)
	}
	return nil
}
