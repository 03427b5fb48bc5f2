package config

import (
	"os"

	"gopkg.in/yaml.v2"
)

// YAMLProvider implements ConfigProvider for YAML configuration files
type YAMLProvider struct {
	filename string
	config   *ConfigData
}

// NewYAMLProvider creates a new YAML configuration provider
func NewYAMLProvider(filename string) *YAMLProvider {
	return &YAMLProvider{
		filename: filename,
	}
}

// LoadConfig loads the complete configuration from YAML file
func (y *YAMLProvider) LoadConfig() (*ConfigData, error) {
	cfgFile, err := os.ReadFile(y.filename)
	if err != nil {
		return nil, err
	}

	config, err := parseYAML(cfgFile)
	if err != nil {
		return nil, err
	}
	y.config = config
	return config, nil
}

// GetRunConfig returns the run section
func (y *YAMLProvider) GetRunConfig() (*RunData, error) {
	if y.config == nil {
		if _, err := y.LoadConfig(); err != nil {
			return nil, err
		}
	}
	return &y.config.Run, nil
}

// GetStorageConfig returns the storage section
func (y *YAMLProvider) GetStorageConfig() (*StorageData, error) {
	if y.config == nil {
		if _, err := y.LoadConfig(); err != nil {
			return nil, err
		}
	}
	return &y.config.Storage, nil
}

// IsReadOnly returns true since YAML files are not modified at runtime
func (y *YAMLProvider) IsReadOnly() bool {
	return true
}

// Close is a no-op for YAML provider
func (y *YAMLProvider) Close() error {
	return nil
}

func parseYAML(b []byte) (*ConfigData, error) {
	var yamlConfig ConfigYAML
	if err := yaml.Unmarshal(b, &yamlConfig); err != nil {
		return nil, err
	}
	return yamlConfig.toData(), nil
}

// ConfigYAML mirrors ConfigData with the YAML key names
type ConfigYAML struct {
	Input   InputYAML   `yaml:"input"`
	Run     RunYAML     `yaml:"run,omitempty"`
	Storage StorageYAML `yaml:"storage,omitempty"`
	Server  ServerYAML  `yaml:"server,omitempty"`
}

type InputYAML struct {
	Directory      string `yaml:"directory"`
	WriteSceneList bool   `yaml:"write-scene-list,omitempty"`
}

type PixelYAML struct {
	Row int `yaml:"row"`
	Col int `yaml:"col"`
}

type RunYAML struct {
	Pixel   *PixelYAML `yaml:"pixel,omitempty"`
	Workers int        `yaml:"workers,omitempty"`
	Verbose bool       `yaml:"verbose,omitempty"`

	MinRMSE          *float64 `yaml:"min-rmse,omitempty"`
	TCg              *float64 `yaml:"t-cg,omitempty"`
	TMaxCg           *float64 `yaml:"t-max-cg,omitempty"`
	TBand            *float64 `yaml:"t-band,omitempty"`
	Conse            *int     `yaml:"conse,omitempty"`
	MinYears         *float64 `yaml:"min-years,omitempty"`
	RefitFactor      *float64 `yaml:"refit-factor,omitempty"`
	TWater           *float64 `yaml:"t-water,omitempty"`
	TSnow            *float64 `yaml:"t-snow,omitempty"`
	TFmaskFail       *float64 `yaml:"t-fmask-fail,omitempty"`
	TConst           *float64 `yaml:"t-const,omitempty"`
	MinClearFraction *float64 `yaml:"min-clear-fraction,omitempty"`
	Lambda           *float64 `yaml:"lambda,omitempty"`
	Tmask            *bool    `yaml:"tmask,omitempty"`
}

type StorageYAML struct {
	SQLite      *SQLiteYAML      `yaml:"sqlite,omitempty"`
	TimescaleDB *TimescaleDBYAML `yaml:"timescaledb,omitempty"`
	MsgPack     *MsgPackYAML     `yaml:"msgpack,omitempty"`
}

type SQLiteYAML struct {
	Path string `yaml:"path"`
}

type TimescaleDBYAML struct {
	ConnectionString string `yaml:"connection-string"`
}

type MsgPackYAML struct {
	Directory string `yaml:"directory"`
}

type ServerYAML struct {
	ListenAddr  string `yaml:"listen-addr,omitempty"`
	Port        int    `yaml:"port,omitempty"`
	GRPCPort    int    `yaml:"grpc-port,omitempty"`
	DisableGRPC bool   `yaml:"disable-grpc,omitempty"`
	Backend     string `yaml:"backend,omitempty"`
	Database    string `yaml:"database,omitempty"`
}

func (c ConfigYAML) toData() *ConfigData {
	config := &ConfigData{
		Input: InputData{
			Directory:      c.Input.Directory,
			WriteSceneList: c.Input.WriteSceneList,
		},
		Run: RunData{
			Workers:          c.Run.Workers,
			Verbose:          c.Run.Verbose,
			MinRMSE:          c.Run.MinRMSE,
			TCg:              c.Run.TCg,
			TMaxCg:           c.Run.TMaxCg,
			TBand:            c.Run.TBand,
			Conse:            c.Run.Conse,
			MinYears:         c.Run.MinYears,
			RefitFactor:      c.Run.RefitFactor,
			TWater:           c.Run.TWater,
			TSnow:            c.Run.TSnow,
			TFmaskFail:       c.Run.TFmaskFail,
			TConst:           c.Run.TConst,
			MinClearFraction: c.Run.MinClearFraction,
			Lambda:           c.Run.Lambda,
			Tmask:            c.Run.Tmask,
		},
		Server: ServerData{
			ListenAddr:  c.Server.ListenAddr,
			Port:        c.Server.Port,
			GRPCPort:    c.Server.GRPCPort,
			DisableGRPC: c.Server.DisableGRPC,
			Backend:     c.Server.Backend,
			Database:    c.Server.Database,
		},
	}
	if c.Run.Pixel != nil {
		config.Run.Pixel = &PixelData{Row: c.Run.Pixel.Row, Col: c.Run.Pixel.Col}
	}

	// Convert storage
	if c.Storage.SQLite != nil {
		config.Storage.SQLite = &SQLiteData{Path: c.Storage.SQLite.Path}
	}
	if c.Storage.TimescaleDB != nil {
		config.Storage.TimescaleDB = &TimescaleDBData{
			ConnectionString: c.Storage.TimescaleDB.ConnectionString,
		}
	}
	if c.Storage.MsgPack != nil {
		config.Storage.MsgPack = &MsgPackData{Directory: c.Storage.MsgPack.Directory}
	}
	return config
}

func fromData(c *ConfigData) ConfigYAML {
	y := ConfigYAML{
		Input: InputYAML{Directory: c.Input.Directory, WriteSceneList: c.Input.WriteSceneList},
		Run: RunYAML{
			Workers:          c.Run.Workers,
			Verbose:          c.Run.Verbose,
			MinRMSE:          c.Run.MinRMSE,
			TCg:              c.Run.TCg,
			TMaxCg:           c.Run.TMaxCg,
			TBand:            c.Run.TBand,
			Conse:            c.Run.Conse,
			MinYears:         c.Run.MinYears,
			RefitFactor:      c.Run.RefitFactor,
			TWater:           c.Run.TWater,
			TSnow:            c.Run.TSnow,
			TFmaskFail:       c.Run.TFmaskFail,
			TConst:           c.Run.TConst,
			MinClearFraction: c.Run.MinClearFraction,
			Lambda:           c.Run.Lambda,
			Tmask:            c.Run.Tmask,
		},
		Server: ServerYAML{
			ListenAddr:  c.Server.ListenAddr,
			Port:        c.Server.Port,
			GRPCPort:    c.Server.GRPCPort,
			DisableGRPC: c.Server.DisableGRPC,
			Backend:     c.Server.Backend,
			Database:    c.Server.Database,
		},
	}
	if c.Run.Pixel != nil {
		y.Run.Pixel = &PixelYAML{Row: c.Run.Pixel.Row, Col: c.Run.Pixel.Col}
	}
	if c.Storage.SQLite != nil {
		y.Storage.SQLite = &SQLiteYAML{Path: c.Storage.SQLite.Path}
	}
	if c.Storage.TimescaleDB != nil {
		y.Storage.TimescaleDB = &TimescaleDBYAML{ConnectionString: c.Storage.TimescaleDB.ConnectionString}
	}
	if c.Storage.MsgPack != nil {
		y.Storage.MsgPack = &MsgPackYAML{Directory: c.Storage.MsgPack.Directory}
	}
	return y
}
