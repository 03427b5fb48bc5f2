package segment

import (
	"errors"
	"fmt"
	"iter"
	"slices"
	"sort"
)

var (
	// ErrGap is returned when a segment starts after the first unowned observation
	ErrGap = errors.New("segment leaves a gap")
	// ErrOverlap is returned when a segment starts on an owned observation
	ErrOverlap = errors.New("segment overlaps its predecessor")
	// ErrInvalidSegment is returned for a malformed segment
	ErrInvalidSegment = errors.New("invalid segment")
)

// Store is the ordered, gapless sequence of segments for one pixel. Every
// observation date handed to NewStore is owned by exactly one segment once
// the store is complete. A store without observations accepts one segment
// that owns none, spanning the pixel's scenes.
type Store struct {
	dates    []int
	segments []Segment
	next     int
}

// NewStore creates a store partitioning the ascending observation dates
func NewStore(dates []int) *Store {
	return &Store{dates: slices.Clone(dates)}
}

// Append adds seg after the last segment. seg must start on the first
// observation not yet owned and end on an observation date.
func (s *Store) Append(seg Segment) error {
	if err := seg.validate(); err != nil {
		return err
	}
	if len(s.dates) == 0 {
		return s.appendEmpty(seg)
	}
	if s.Complete() {
		return fmt.Errorf("segment starting %d after the last observation %d: %w", seg.StartDate, s.last(), ErrOverlap)
	}

	want := s.dates[s.next]
	switch {
	case seg.StartDate < want:
		return fmt.Errorf("segment starts %d, first unowned observation is %d: %w", seg.StartDate, want, ErrOverlap)
	case seg.StartDate > want:
		return fmt.Errorf("segment starts %d, first unowned observation is %d: %w", seg.StartDate, want, ErrGap)
	}

	end, found := slices.BinarySearch(s.dates[s.next:], seg.EndDate)
	if !found {
		return fmt.Errorf("segment ends %d, not an observation date: %w", seg.EndDate, ErrInvalidSegment)
	}
	// skip repeated dates so the next segment never starts on an owned day
	end += s.next
	for end+1 < len(s.dates) && s.dates[end+1] == seg.EndDate {
		end++
	}

	s.segments = append(s.segments, seg)
	s.next = end + 1
	return nil
}

func (s *Store) appendEmpty(seg Segment) error {
	if len(s.segments) > 0 {
		return fmt.Errorf("store without observations already holds a segment: %w", ErrOverlap)
	}
	if seg.NumObs != 0 || seg.Category == Model {
		return fmt.Errorf("segment over no observations must be an empty insufficient-data segment: %w", ErrInvalidSegment)
	}
	s.segments = append(s.segments, seg)
	return nil
}

// Complete reports whether every observation is owned by a segment
func (s *Store) Complete() bool {
	return s.next >= len(s.dates)
}

// Len returns the number of segments
func (s *Store) Len() int {
	return len(s.segments)
}

// At returns the segment owning date. Segment i owns [start_i, start_i+1);
// the last segment owns [start, end].
func (s *Store) At(date int) (Segment, bool) {
	i, ok := Owner(s.segments, date)
	if !ok {
		return Segment{}, false
	}
	return s.segments[i], true
}

// Owner returns the index of the segment owning date within a chronological
// partition, using the same rule as Store.At
func Owner(segs []Segment, date int) (int, bool) {
	n := len(segs)
	if n == 0 || date < segs[0].StartDate {
		return 0, false
	}
	i := sort.Search(n, func(i int) bool { return segs[i].StartDate > date }) - 1
	if i == n-1 && date > segs[i].EndDate {
		return 0, false
	}
	return i, true
}

// All iterates the segments in chronological order
func (s *Store) All() iter.Seq[Segment] {
	return func(yield func(Segment) bool) {
		for _, seg := range s.segments {
			if !yield(seg) {
				return
			}
		}
	}
}

// Segments returns a copy of the stored segments
func (s *Store) Segments() []Segment {
	return slices.Clone(s.segments)
}

func (s *Store) last() int {
	if len(s.dates) == 0 {
		return 0
	}
	return s.dates[len(s.dates)-1]
}
