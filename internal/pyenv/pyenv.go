// Package pyenv manages the isolated Python runtime the child services run
// in: a venv directory that is created once and reused across runs.
package pyenv

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
)

var (
	// ErrEnvironment marks a runtime environment that cannot be created or
	// activated. Fatal at startup.
	ErrEnvironment = errors.New("python environment unavailable")
	// ErrDependency marks required packages that are missing and cannot be
	// installed. Fatal at startup.
	ErrDependency = errors.New("python dependencies missing")
)

// Env is the venv collaborator. Only its process-level contract matters to
// the supervisor: interpreter path, exit codes of probe commands.
type Env struct {
	Dir        string
	BasePython string   // interpreter used to create the venv, e.g. python3
	Packages   []string // import names the backend requires
}

func New(dir, basePython string, packages []string) *Env {
	return &Env{Dir: dir, BasePython: basePython, Packages: packages}
}

// Python returns the venv interpreter path.
func (e *Env) Python() string {
	if runtime.GOOS == "windows" {
		return filepath.Join(e.Dir, "Scripts", "python.exe")
	}
	return filepath.Join(e.Dir, "bin", "python")
}

func (e *Env) pip() string {
	if runtime.GOOS == "windows" {
		return filepath.Join(e.Dir, "Scripts", "pip.exe")
	}
	return filepath.Join(e.Dir, "bin", "pip")
}

// Ensure creates the venv when absent and reuses it when present. The venv
// interpreter must exist afterwards.
func (e *Env) Ensure(ctx context.Context) error {
	if _, err := os.Stat(e.Dir); err == nil {
		slog.Info("reusing existing python environment", "dir", e.Dir)
	} else {
		slog.Info("creating python environment", "dir", e.Dir)
		// #nosec G204
		cmd := exec.CommandContext(ctx, e.BasePython, "-m", "venv", e.Dir)
		if out, err := cmd.CombinedOutput(); err != nil {
			return fmt.Errorf("%w: create venv at %s: %v: %s",
				ErrEnvironment, e.Dir, err, strings.TrimSpace(string(out)))
		}
	}
	if _, err := os.Stat(e.Python()); err != nil {
		return fmt.Errorf("%w: interpreter not found at %s", ErrEnvironment, e.Python())
	}
	_ = os.WriteFile(e.markerPath(), []byte("active\n"), 0o600)
	return nil
}

// EnsureDeps verifies the required packages import cleanly and installs the
// set via the venv pip when the probe fails.
func (e *Env) EnsureDeps(ctx context.Context) error {
	if len(e.Packages) == 0 {
		return nil
	}
	probe := "import " + strings.Join(e.Packages, ", ")
	// #nosec G204
	if err := exec.CommandContext(ctx, e.Python(), "-c", probe).Run(); err == nil {
		slog.Info("python dependencies present", "packages", e.Packages)
		return nil
	}
	slog.Info("installing python dependencies", "packages", e.Packages)
	args := append([]string{"install"}, e.Packages...)
	// #nosec G204
	cmd := exec.CommandContext(ctx, e.pip(), args...)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("%w: pip install %s: %v: %s",
			ErrDependency, strings.Join(e.Packages, " "), err, strings.TrimSpace(string(out)))
	}
	return nil
}

// Release deactivates the environment on shutdown. Best-effort and
// non-fatal: the venv directory itself is kept for the next run.
func (e *Env) Release() {
	if err := os.Remove(e.markerPath()); err != nil && !os.IsNotExist(err) {
		slog.Warn("release python environment", "err", err)
	}
}

func (e *Env) markerPath() string { return filepath.Join(e.Dir, ".nasweb-active") }
