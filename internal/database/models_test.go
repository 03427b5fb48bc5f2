package database

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm/schema"
)

func TestSegmentPrimaryKeyIncludesPartitionColumn(t *testing.T) {
	s, err := schema.Parse(&Segment{}, &sync.Map{}, schema.NamingStrategy{})
	require.NoError(t, err)
	require.Equal(t, "ccdc_segments", s.Table)
	require.ElementsMatch(t, []string{"run_id", "pixel_row", "pixel_col", "seq", "created_at"}, s.PrimaryFieldDBNames)
}

func TestRunSchema(t *testing.T) {
	s, err := schema.Parse(&Run{}, &sync.Map{}, schema.NamingStrategy{})
	require.NoError(t, err)
	require.Equal(t, "ccdc_runs", s.Table)
	require.Equal(t, []string{"id"}, s.PrimaryFieldDBNames)
}
