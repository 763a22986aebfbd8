package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/yumo666666/nasweb"
	"github.com/yumo666666/nasweb/internal/config"
	"github.com/yumo666666/nasweb/internal/conflict"
	"github.com/yumo666666/nasweb/internal/logger"
	"github.com/yumo666666/nasweb/internal/pyenv"
)

var version = "dev"

// Exit codes by failure class. Zero means the run ended through an explicit
// shutdown request.
const (
	exitOK          = 0
	exitFailure     = 1
	exitConfig      = 2
	exitEnvironment = 3
	exitDependency  = 4
	exitPortBusy    = 5
)

func main() {
	root := buildRoot()
	if err := root.Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(exitCode(err))
	}
}

// GlobalFlags holds persistent flags shared by all commands.
type GlobalFlags struct {
	ConfigPath string
	Verbose    bool
}

// APIFlags holds control API connection flags for status/stop.
type APIFlags struct {
	URL     string
	Timeout time.Duration
}

func buildRoot() *cobra.Command {
	gf := &GlobalFlags{}
	af := &APIFlags{}

	root := &cobra.Command{
		Use:           "nasweb",
		Short:         "Supervisor for the NAS monitoring stack",
		Long:          "nasweb launches and supervises the backend API server and the static-file HTTP server,\nresolving port conflicts, verifying startup health and shutting both down cleanly.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&gf.ConfigPath, "config", "c", "nasweb.toml", "path to the TOML configuration")
	root.PersistentFlags().BoolVarP(&gf.Verbose, "verbose", "v", false, "debug logging")

	up := &cobra.Command{
		Use:   "up",
		Short: "Start and supervise both services until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUp(gf)
		},
	}

	status := &cobra.Command{
		Use:   "status",
		Short: "Show the status of a running supervisor",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(gf, af)
		},
	}

	stop := &cobra.Command{
		Use:   "stop",
		Short: "Request graceful shutdown of a running supervisor",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStop(gf, af)
		},
	}

	for _, c := range []*cobra.Command{status, stop} {
		c.Flags().StringVar(&af.URL, "api-url", "", "control API base URL (default from config)")
		c.Flags().DurationVar(&af.Timeout, "api-timeout", 5*time.Second, "control API request timeout")
	}

	ver := &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("nasweb", version)
		},
	}

	root.AddCommand(up, status, stop, ver)
	return root
}

func runUp(gf *GlobalFlags) error {
	level := slog.LevelInfo
	if gf.Verbose {
		level = slog.LevelDebug
	}
	logger.Setup(level)

	cfg, err := nasweb.LoadConfig(gf.ConfigPath)
	if err != nil {
		return err
	}
	slog.Info("configuration loaded", "path", gf.ConfigPath,
		"frontend_port", cfg.Server.FrontendPort, "backend_port", cfg.Server.BackendPort)

	ctx := context.Background()
	env := nasweb.NewEnv(cfg)
	if err := env.Ensure(ctx); err != nil {
		return err
	}
	if err := env.EnsureDeps(ctx); err != nil {
		return err
	}

	sup, err := nasweb.Build(cfg, env)
	if err != nil {
		return err
	}

	bridge := nasweb.NewBridge(sup)
	defer bridge.Close()

	if srv := nasweb.StartControlServer(cfg, sup); srv != nil {
		slog.Info("control API listening", "addr", cfg.Control.Listen, "base_path", cfg.Control.BasePath)
		defer func() { _ = srv.Close() }()
	}

	return sup.Run(ctx)
}

func runStatus(gf *GlobalFlags, af *APIFlags) error {
	c, err := newAPIClient(gf, af)
	if err != nil {
		return err
	}
	snap, err := c.Status()
	if err != nil {
		return err
	}
	printJSON(snap)
	return nil
}

func runStop(gf *GlobalFlags, af *APIFlags) error {
	c, err := newAPIClient(gf, af)
	if err != nil {
		return err
	}
	if err := c.Shutdown(); err != nil {
		return err
	}
	fmt.Println("shutdown requested")
	return nil
}

// exitCode maps the error taxonomy to process exit codes.
func exitCode(err error) int {
	if err == nil {
		return exitOK
	}
	var pce *conflict.PortConflictError
	switch {
	case errors.Is(err, config.ErrInvalid):
		return exitConfig
	case errors.Is(err, pyenv.ErrEnvironment):
		return exitEnvironment
	case errors.Is(err, pyenv.ErrDependency):
		return exitDependency
	case errors.As(err, &pce):
		return exitPortBusy
	default:
		return exitFailure
	}
}
