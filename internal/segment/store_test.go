package segment

import (
	"errors"
	"slices"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

var dates = []int{100, 116, 132, 148, 164, 180}

func seg(start, end int) Segment {
	return Segment{StartDate: start, EndDate: end, Category: InsufficientData}
}

func TestStoreAppend(t *testing.T) {
	tests := []struct {
		name     string
		existing []Segment
		next     Segment
		expected error
	}{
		{"first segment", nil, seg(100, 132), nil},
		{"contiguous follow-up", []Segment{seg(100, 132)}, seg(148, 180), nil},
		{"single observation", []Segment{seg(100, 164)}, seg(180, 180), nil},
		{"gap at the start", nil, seg(116, 132), ErrGap},
		{"gap after a segment", []Segment{seg(100, 132)}, seg(164, 180), ErrGap},
		{"overlap", []Segment{seg(100, 132)}, seg(132, 180), ErrOverlap},
		{"starts before the series", nil, seg(50, 132), ErrOverlap},
		{"after completion", []Segment{seg(100, 180)}, seg(180, 180), ErrOverlap},
		{"end not an observation", nil, seg(100, 120), ErrInvalidSegment},
		{"end past the series", nil, seg(100, 200), ErrInvalidSegment},
		{"end before start", nil, seg(100, 90), ErrInvalidSegment},
		{"model without coefficients", nil, Segment{StartDate: 100, EndDate: 132, Category: Model}, ErrInvalidSegment},
		{"coefficient shape mismatch", nil, Segment{
			StartDate: 100, EndDate: 132, Category: Model, NumC: 4,
			Coefficients: [][]float64{{1, 2, 3, 4}, {1, 2}},
			RMSE:         []float64{1, 1},
		}, ErrInvalidSegment},
		{"probability out of range", nil, Segment{StartDate: 100, EndDate: 132, ChangeProbability: 1.5}, ErrInvalidSegment},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewStore(dates)
			for _, e := range tt.existing {
				require.NoError(t, s.Append(e))
			}
			err := s.Append(tt.next)
			if tt.expected == nil {
				require.NoError(t, err)
				return
			}
			if !errors.Is(err, tt.expected) {
				t.Errorf("expected %v, got %v", tt.expected, err)
			}
			require.Equal(t, len(tt.existing), s.Len())
		})
	}
}

func TestStoreComplete(t *testing.T) {
	s := NewStore(dates)
	require.False(t, s.Complete())
	require.NoError(t, s.Append(seg(100, 148)))
	require.False(t, s.Complete())
	require.NoError(t, s.Append(seg(164, 180)))
	require.True(t, s.Complete())

	require.True(t, NewStore(nil).Complete())
}

func TestStoreWithoutObservations(t *testing.T) {
	s := NewStore(nil)
	require.NoError(t, s.Append(seg(100, 300)))
	require.Equal(t, 1, s.Len())
	require.True(t, s.Complete())

	got, ok := s.At(200)
	require.True(t, ok)
	require.Equal(t, seg(100, 300), got)

	require.ErrorIs(t, s.Append(seg(300, 300)), ErrOverlap)
	require.ErrorIs(t, NewStore(nil).Append(Segment{StartDate: 100, EndDate: 300, NumObs: 2, Category: InsufficientData}), ErrInvalidSegment)
}

func TestStoreAt(t *testing.T) {
	s := NewStore(dates)
	require.NoError(t, s.Append(seg(100, 132)))
	require.NoError(t, s.Append(seg(148, 180)))

	tests := []struct {
		date  int
		start int
		found bool
	}{
		{99, 0, false},
		{100, 100, true},
		{132, 100, true},
		{140, 100, true}, // between observations, before the next start
		{148, 148, true},
		{180, 148, true},
		{181, 0, false},
	}
	for _, tt := range tests {
		got, ok := s.At(tt.date)
		if ok != tt.found {
			t.Errorf("At(%d) found=%v, expected %v", tt.date, ok, tt.found)
			continue
		}
		if ok && got.StartDate != tt.start {
			t.Errorf("At(%d) returned segment starting %d, expected %d", tt.date, got.StartDate, tt.start)
		}
	}

	_, ok := NewStore(dates).At(100)
	require.False(t, ok)
}

func TestStoreAll(t *testing.T) {
	s := NewStore(dates)
	want := []Segment{seg(100, 116), seg(132, 164), seg(180, 180)}
	for _, w := range want {
		require.NoError(t, s.Append(w))
	}

	if diff := cmp.Diff(want, slices.Collect(s.All())); diff != "" {
		t.Errorf("All() mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(want, s.Segments()); diff != "" {
		t.Errorf("Segments() mismatch (-want +got):\n%s", diff)
	}

	var first []Segment
	for sg := range s.All() {
		first = append(first, sg)
		break
	}
	require.Len(t, first, 1)
}

func TestCategoryText(t *testing.T) {
	for _, c := range []Category{Model, InsufficientData, NoChangeMonitored} {
		b, err := c.MarshalText()
		require.NoError(t, err)
		var back Category
		require.NoError(t, back.UnmarshalText(b))
		require.Equal(t, c, back)
	}
	_, err := ParseCategory("forest")
	require.Error(t, err)
	require.Equal(t, "category(9)", Category(9).String())
}
