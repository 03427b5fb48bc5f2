package timescaledb

const createExtensionSQL = `CREATE EXTENSION IF NOT EXISTS timescaledb;`

// Segments are partitioned by insertion time so that a long archive of runs
// can be compressed or dropped chunk by chunk. Every unique index on the
// table must include the partition column.
const hypertableColumn = "created_at"

const createHypertableSQL = `SELECT create_hypertable('ccdc_segments', '` + hypertableColumn + `', if_not_exists => TRUE, migrate_data => TRUE);`

const createPixelIndexSQL = `CREATE INDEX IF NOT EXISTS ccdc_segments_pixel_idx ON ccdc_segments (pixel_row, pixel_col, run_id);`

const createBreakIndexSQL = `CREATE INDEX IF NOT EXISTS ccdc_segments_break_idx ON ccdc_segments (break_date) WHERE break_date > 0;`
