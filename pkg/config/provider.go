package config

import (
	"runtime"

	"github.com/chrissnell/ccdc/internal/change"
)

// ConfigProvider defines the interface for configuration data sources
type ConfigProvider interface {
	// Load complete configuration
	LoadConfig() (*ConfigData, error)

	// Get specific configuration sections
	GetRunConfig() (*RunData, error)
	GetStorageConfig() (*StorageData, error)

	IsReadOnly() bool
	Close() error
}

// ConfigData represents the complete configuration structure
type ConfigData struct {
	Input   InputData   `json:"input"`
	Run     RunData     `json:"run"`
	Storage StorageData `json:"storage,omitempty"`
	Server  ServerData  `json:"server,omitempty"`
}

// InputData locates the scene stack
type InputData struct {
	Directory string `json:"directory"`
	// WriteSceneList records the discovered scene order in scene_list.txt
	WriteSceneList bool `json:"write_scene_list,omitempty"`
}

// PixelData selects a single pixel
type PixelData struct {
	Row int `json:"row"`
	Col int `json:"col"`
}

// RunData holds the batch and detector settings. Detector settings are
// pointers: an unset value selects the detector default and an explicit zero
// is kept.
type RunData struct {
	Pixel   *PixelData `json:"pixel,omitempty"`
	Workers int        `json:"workers,omitempty"`
	Verbose bool       `json:"verbose,omitempty"`

	MinRMSE          *float64 `json:"min_rmse,omitempty"`
	TCg              *float64 `json:"t_cg,omitempty"`
	TMaxCg           *float64 `json:"t_max_cg,omitempty"`
	TBand            *float64 `json:"t_band,omitempty"`
	Conse            *int     `json:"conse,omitempty"`
	MinYears         *float64 `json:"min_years,omitempty"`
	RefitFactor      *float64 `json:"refit_factor,omitempty"`
	TWater           *float64 `json:"t_water,omitempty"`
	TSnow            *float64 `json:"t_snow,omitempty"`
	TFmaskFail       *float64 `json:"t_fmask_fail,omitempty"`
	TConst           *float64 `json:"t_const,omitempty"`
	MinClearFraction *float64 `json:"min_clear_fraction,omitempty"`
	Lambda           *float64 `json:"lambda,omitempty"`
	Tmask            *bool    `json:"tmask,omitempty"`
}

// StorageData holds the configuration for the segment sinks
type StorageData struct {
	SQLite      *SQLiteData      `json:"sqlite,omitempty"`
	TimescaleDB *TimescaleDBData `json:"timescaledb,omitempty"`
	MsgPack     *MsgPackData     `json:"msgpack,omitempty"`
}

type SQLiteData struct {
	Path string `json:"path"`
}

type TimescaleDBData struct {
	ConnectionString string `json:"connection_string"`
}

type MsgPackData struct {
	Directory string `json:"directory"`
}

// ServerData configures the segment query server
type ServerData struct {
	ListenAddr string `json:"listen_addr,omitempty"`
	Port       int    `json:"port,omitempty"`
	GRPCPort   int    `json:"grpc_port,omitempty"`
	// DisableGRPC turns off the gRPC health endpoint
	DisableGRPC bool `json:"disable_grpc,omitempty"`
	// Backend selects the segment store the server reads: sqlite,
	// timescaledb or msgpack
	Backend string `json:"backend,omitempty"`
	// Database locates the backend's store: a sqlite file, a TimescaleDB
	// connection string or a shard directory
	Database string `json:"database,omitempty"`
}

const (
	DefaultServerPort = 8080
	DefaultGRPCPort   = 8081
)

// Query server backends
const (
	BackendSQLite      = "sqlite"
	BackendTimescaleDB = "timescaledb"
	BackendMsgPack     = "msgpack"
)

// DetectorConfig overlays the run settings on the detector defaults
func (c *ConfigData) DetectorConfig() change.Config {
	cfg := change.DefaultConfig()
	r := c.Run

	setFloat := func(dst *float64, v *float64) {
		if v != nil {
			*dst = *v
		}
	}
	setFloat(&cfg.MinRMSE, r.MinRMSE)
	setFloat(&cfg.TCg, r.TCg)
	setFloat(&cfg.TMaxCg, r.TMaxCg)
	setFloat(&cfg.TBand, r.TBand)
	setFloat(&cfg.MinYears, r.MinYears)
	setFloat(&cfg.RefitFactor, r.RefitFactor)
	setFloat(&cfg.TWater, r.TWater)
	setFloat(&cfg.TSnow, r.TSnow)
	setFloat(&cfg.TFmaskFail, r.TFmaskFail)
	setFloat(&cfg.TConst, r.TConst)
	setFloat(&cfg.MinClearFraction, r.MinClearFraction)
	setFloat(&cfg.Lambda, r.Lambda)
	if r.Conse != nil {
		cfg.Conse = *r.Conse
	}
	if r.Tmask != nil {
		cfg.Tmask = *r.Tmask
	}
	return cfg
}

// WorkerCount returns the configured worker count, defaulting to GOMAXPROCS
func (c *ConfigData) WorkerCount() int {
	if c.Run.Workers > 0 {
		return c.Run.Workers
	}
	return runtime.GOMAXPROCS(0)
}

// ApplyServerDefaults fills unset server ports, the backend and its store
// location. The backend defaults to sqlite, and the location to the matching
// storage section.
func (c *ConfigData) ApplyServerDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = DefaultServerPort
	}
	switch {
	case c.Server.DisableGRPC:
		c.Server.GRPCPort = 0
	case c.Server.GRPCPort == 0:
		c.Server.GRPCPort = DefaultGRPCPort
	}
	if c.Server.Backend == "" {
		c.Server.Backend = BackendSQLite
	}
	if c.Server.Database != "" {
		return
	}
	switch c.Server.Backend {
	case BackendSQLite:
		if c.Storage.SQLite != nil {
			c.Server.Database = c.Storage.SQLite.Path
		}
	case BackendTimescaleDB:
		if c.Storage.TimescaleDB != nil {
			c.Server.Database = c.Storage.TimescaleDB.ConnectionString
		}
	case BackendMsgPack:
		if c.Storage.MsgPack != nil {
			c.Server.Database = c.Storage.MsgPack.Directory
		}
	}
}
