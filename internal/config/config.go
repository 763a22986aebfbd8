package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// ErrInvalid marks configuration errors. Callers classify fatal startup
// failures with errors.Is(err, ErrInvalid).
var ErrInvalid = errors.New("invalid configuration")

// ServerConfig holds the two child service ports. Both are required.
type ServerConfig struct {
	FrontendPort uint16 `toml:"frontend_port" mapstructure:"frontend_port"`
	BackendPort  uint16 `toml:"backend_port" mapstructure:"backend_port"`
}

// EnvConfig describes the isolated Python runtime the children run in.
type EnvConfig struct {
	Dir      string   `toml:"dir" mapstructure:"dir"`           // venv directory, created when absent
	Python   string   `toml:"python" mapstructure:"python"`     // base interpreter used to create the venv
	Packages []string `toml:"packages" mapstructure:"packages"` // packages the backend needs
}

// LogConfig configures the per-child log sinks. Rotation follows lumberjack
// semantics in internal/logger.
type LogConfig struct {
	Dir        string `toml:"dir" mapstructure:"dir"`
	MaxSizeMB  int    `toml:"max_size_mb" mapstructure:"max_size_mb"`
	MaxBackups int    `toml:"max_backups" mapstructure:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days" mapstructure:"max_age_days"`
	Compress   bool   `toml:"compress" mapstructure:"compress"`
}

// StoreConfig selects the run-history store. Empty type disables persistence.
type StoreConfig struct {
	Type string `toml:"type" mapstructure:"type"` // "sqlite" or "postgres"
	Path string `toml:"path" mapstructure:"path"` // sqlite file path
	DSN  string `toml:"dsn" mapstructure:"dsn"`   // postgres DSN
}

// HistoryConfig configures the optional external event sink.
type HistoryConfig struct {
	ClickHouseDSN string `toml:"clickhouse_dsn" mapstructure:"clickhouse_dsn"`
	Table         string `toml:"table" mapstructure:"table"`
}

// ControlConfig configures the local status/control API. Empty listen
// disables the API.
type ControlConfig struct {
	Listen   string `toml:"listen" mapstructure:"listen"`
	BasePath string `toml:"base_path" mapstructure:"base_path"`
}

// Config is the top-level structure of nasweb.toml. It is read once at
// startup and never mutated afterwards.
type Config struct {
	WorkDir       string        `toml:"work_dir" mapstructure:"work_dir"`
	RunDir        string        `toml:"run_dir" mapstructure:"run_dir"`
	BackendScript string        `toml:"backend_script" mapstructure:"backend_script"`
	FrontendIndex string        `toml:"frontend_index" mapstructure:"frontend_index"`
	Server        ServerConfig  `toml:"server" mapstructure:"server"`
	Env           EnvConfig     `toml:"env" mapstructure:"env"`
	Log           LogConfig     `toml:"log" mapstructure:"log"`
	Store         StoreConfig   `toml:"store" mapstructure:"store"`
	History       HistoryConfig `toml:"history" mapstructure:"history"`
	Control       ControlConfig `toml:"control" mapstructure:"control"`
}

// Policy constants applied by the supervisor. They are fixed by design and
// intentionally not configurable.
const (
	SpawnSettle     = 3 * time.Second
	ConflictSettle  = 2 * time.Second
	StopGrace       = 1 * time.Second
	MonitorInterval = 5 * time.Second
)

// Load reads and validates the TOML config at path. A missing file or
// missing/invalid port fields are fatal.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("%w: read %s: %w", ErrInvalid, path, err)
	}
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("%w: parse %s: %w", ErrInvalid, path, err)
	}
	c.applyDefaults(filepath.Dir(path))
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) applyDefaults(baseDir string) {
	if c.WorkDir == "" {
		c.WorkDir = baseDir
	}
	if c.RunDir == "" {
		c.RunDir = filepath.Join(c.WorkDir, "run")
	}
	if c.BackendScript == "" {
		c.BackendScript = "system_info.py"
	}
	if c.FrontendIndex == "" {
		c.FrontendIndex = "index.html"
	}
	if c.Env.Dir == "" {
		c.Env.Dir = filepath.Join(c.WorkDir, "venv")
	}
	if c.Env.Python == "" {
		c.Env.Python = "python3"
	}
	if len(c.Env.Packages) == 0 {
		c.Env.Packages = []string{"psutil", "fastapi", "uvicorn"}
	}
	if c.Log.Dir == "" {
		c.Log.Dir = filepath.Join(c.WorkDir, "logs")
	}
	if c.Control.Listen == "" {
		c.Control.Listen = "127.0.0.1:8090"
	}
	if c.Control.BasePath == "" {
		c.Control.BasePath = "/api"
	}
	if c.Store.Type == "sqlite" && c.Store.Path == "" {
		c.Store.Path = filepath.Join(c.RunDir, "nasweb.db")
	}
	if c.History.ClickHouseDSN != "" && c.History.Table == "" {
		c.History.Table = "nasweb_events"
	}
}

// Validate enforces the configuration invariants: both ports present,
// non-zero and distinct.
func (c *Config) Validate() error {
	if c.Server.FrontendPort == 0 {
		return fmt.Errorf("%w: server.frontend_port is required", ErrInvalid)
	}
	if c.Server.BackendPort == 0 {
		return fmt.Errorf("%w: server.backend_port is required", ErrInvalid)
	}
	if c.Server.FrontendPort == c.Server.BackendPort {
		return fmt.Errorf("%w: frontend_port and backend_port must differ (both %d)",
			ErrInvalid, c.Server.FrontendPort)
	}
	switch c.Store.Type {
	case "", "sqlite", "postgres":
	default:
		return fmt.Errorf("%w: unknown store.type %q", ErrInvalid, c.Store.Type)
	}
	if c.Store.Type == "postgres" && c.Store.DSN == "" {
		return fmt.Errorf("%w: store.dsn is required for postgres", ErrInvalid)
	}
	return nil
}
