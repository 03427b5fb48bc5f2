package database

import (
	"time"
)

// Run is one execution of the detector over a scene stack
type Run struct {
	ID        string    `gorm:"primaryKey;column:id;type:uuid"`
	StartedAt time.Time `gorm:"column:started_at;not null"`
}

// TableName overrides the default GORM table name
func (Run) TableName() string {
	return "ccdc_runs"
}

// Segment is one stored segment of one pixel. Coefficients and RMSE are
// msgpack blobs. The hypertable is partitioned on created_at, which is why
// it is part of the primary key.
type Segment struct {
	RunID             string    `gorm:"column:run_id;type:uuid;primaryKey"`
	Row               int       `gorm:"column:pixel_row;primaryKey"`
	Col               int       `gorm:"column:pixel_col;primaryKey"`
	Seq               int       `gorm:"column:seq;primaryKey"`
	Status            string    `gorm:"column:status;not null"`
	StartDate         int       `gorm:"column:start_date;not null"`
	EndDate           int       `gorm:"column:end_date;not null"`
	BreakDate         int       `gorm:"column:break_date;not null"`
	Category          string    `gorm:"column:category;not null"`
	NumC              int       `gorm:"column:num_c;not null"`
	NumObs            int       `gorm:"column:num_obs;not null"`
	Coefficients      []byte    `gorm:"column:coefficients;type:bytea"`
	RMSE              []byte    `gorm:"column:rmse;type:bytea"`
	ChangeProbability float64   `gorm:"column:change_probability;not null"`
	CreatedAt         time.Time `gorm:"column:created_at;primaryKey;not null"`
}

// TableName overrides the default GORM table name
func (Segment) TableName() string {
	return "ccdc_segments"
}
