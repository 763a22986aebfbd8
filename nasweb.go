// Package nasweb assembles the NAS monitoring stack supervisor: a backend
// API child, a static-file HTTP child, and the lifecycle manager that keeps
// them healthy.
package nasweb

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	"github.com/yumo666666/nasweb/internal/config"
	"github.com/yumo666666/nasweb/internal/history"
	"github.com/yumo666666/nasweb/internal/history/clickhouse"
	"github.com/yumo666666/nasweb/internal/logger"
	"github.com/yumo666666/nasweb/internal/metrics"
	"github.com/yumo666666/nasweb/internal/process"
	"github.com/yumo666666/nasweb/internal/pyenv"
	"github.com/yumo666666/nasweb/internal/server"
	storefactory "github.com/yumo666666/nasweb/internal/store/factory"
	"github.com/yumo666666/nasweb/internal/supervisor"
)

// Re-export core types for external consumers. Aliases, so conversions are
// zero-cost.

type Config = config.Config

type Supervisor = supervisor.Supervisor

type Snapshot = supervisor.Snapshot

// Child role names. These double as log and pidfile base names, so a prior
// run is recognizable by its artifacts.
const (
	RoleBackend  = "api_server"
	RoleFrontend = "http_server"
)

// LoadConfig reads and validates the TOML configuration at path.
func LoadConfig(path string) (*Config, error) { return config.Load(path) }

// NewEnv returns the python runtime collaborator for cfg.
func NewEnv(cfg *Config) *pyenv.Env {
	return pyenv.New(cfg.Env.Dir, cfg.Env.Python, cfg.Env.Packages)
}

// Build assembles a supervisor from cfg. env must already be ensured; its
// interpreter runs both children. Store and history sink failures degrade to
// warnings: supervision works without persistence.
func Build(cfg *Config, env *pyenv.Env) (*Supervisor, error) {
	for _, f := range []string{cfg.BackendScript, cfg.FrontendIndex} {
		if _, err := os.Stat(filepath.Join(cfg.WorkDir, f)); err != nil {
			return nil, fmt.Errorf("%w: required file %s not found in %s",
				config.ErrInvalid, f, cfg.WorkDir)
		}
	}

	logCfg := logger.Config{
		Dir:        cfg.Log.Dir,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
		Compress:   cfg.Log.Compress,
	}

	sup := supervisor.New(supervisor.Config{
		Backend: process.Spec{
			Name:          RoleBackend,
			Command:       fmt.Sprintf("%s %s --serve --port %d", env.Python(), cfg.BackendScript, cfg.Server.BackendPort),
			WorkDir:       cfg.WorkDir,
			PIDFile:       filepath.Join(cfg.RunDir, RoleBackend+".pid"),
			StartDuration: config.SpawnSettle,
			Log:           logCfg,
		},
		Frontend: process.Spec{
			Name:          RoleFrontend,
			Command:       fmt.Sprintf("%s -m http.server %d", env.Python(), cfg.Server.FrontendPort),
			WorkDir:       cfg.WorkDir,
			PIDFile:       filepath.Join(cfg.RunDir, RoleFrontend+".pid"),
			StartDuration: config.SpawnSettle,
			Log:           logCfg,
		},
		BackendPort:     cfg.Server.BackendPort,
		FrontendPort:    cfg.Server.FrontendPort,
		SpawnSettle:     config.SpawnSettle,
		MonitorInterval: config.MonitorInterval,
		StopGrace:       config.StopGrace,
		ConflictSettle:  config.ConflictSettle,
	})
	sup.SetReleaser(env)

	if err := metrics.RegisterDefault(); err != nil {
		slog.Warn("metrics registration failed", "err", err)
	}

	if st, err := storefactory.New(cfg.Store); err != nil {
		slog.Warn("run-history store unavailable", "type", cfg.Store.Type, "err", err)
	} else if st != nil {
		if err := st.EnsureSchema(context.Background()); err != nil {
			slog.Warn("run-history schema", "err", err)
			_ = st.Close()
		} else {
			sup.SetStore(st)
		}
	}

	if cfg.History.ClickHouseDSN != "" {
		sink, err := clickhouse.New(cfg.History.ClickHouseDSN, cfg.History.Table)
		if err != nil {
			slog.Warn("clickhouse sink unavailable", "err", err)
		} else if err := sink.EnsureSchema(context.Background()); err != nil {
			slog.Warn("clickhouse schema", "err", err)
			_ = sink.Close()
		} else {
			sup.SetHistorySinks([]history.Sink{sink}...)
		}
	}

	return sup, nil
}

// NewBridge installs the signal handler delivering shutdown to sup.
func NewBridge(sup *Supervisor) *supervisor.Bridge { return supervisor.NewBridge(sup) }

// StartControlServer starts the status/control API for sup. Returns nil
// when the API is disabled.
func StartControlServer(cfg *Config, sup *Supervisor) *http.Server {
	if cfg.Control.Listen == "" {
		return nil
	}
	return server.NewServer(cfg.Control.Listen, cfg.Control.BasePath, sup)
}
