package nasweb

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/yumo666666/nasweb/internal/config"
	"github.com/yumo666666/nasweb/internal/supervisor"
)

func testConfigTree(t *testing.T) *Config {
	t.Helper()
	dir := t.TempDir()
	for _, f := range []string{"system_info.py", "index.html"} {
		if err := os.WriteFile(filepath.Join(dir, f), []byte("placeholder\n"), 0o600); err != nil {
			t.Fatalf("write %s: %v", f, err)
		}
	}
	return &Config{
		WorkDir:       dir,
		RunDir:        filepath.Join(dir, "run"),
		BackendScript: "system_info.py",
		FrontendIndex: "index.html",
		Server: config.ServerConfig{
			FrontendPort: 18080,
			BackendPort:  18081,
		},
		Env: config.EnvConfig{
			Dir:    filepath.Join(dir, "venv"),
			Python: "python3",
		},
		Log: config.LogConfig{Dir: filepath.Join(dir, "logs")},
	}
}

func TestBuildAssemblesSupervisor(t *testing.T) {
	cfg := testConfigTree(t)
	sup, err := Build(cfg, NewEnv(cfg))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	snap := sup.Status()
	if snap.State != supervisor.StateIdle {
		t.Fatalf("state = %s, want %s", snap.State, supervisor.StateIdle)
	}
	if snap.Backend.Name != RoleBackend || snap.Frontend.Name != RoleFrontend {
		t.Fatalf("unexpected child roles: %+v", snap)
	}
}

func TestBuildRequiresBackendScript(t *testing.T) {
	cfg := testConfigTree(t)
	if err := os.Remove(filepath.Join(cfg.WorkDir, "system_info.py")); err != nil {
		t.Fatalf("remove: %v", err)
	}
	_, err := Build(cfg, NewEnv(cfg))
	if !errors.Is(err, config.ErrInvalid) {
		t.Fatalf("Build = %v, want ErrInvalid", err)
	}
}

func TestBuildRequiresFrontendIndex(t *testing.T) {
	cfg := testConfigTree(t)
	if err := os.Remove(filepath.Join(cfg.WorkDir, "index.html")); err != nil {
		t.Fatalf("remove: %v", err)
	}
	_, err := Build(cfg, NewEnv(cfg))
	if !errors.Is(err, config.ErrInvalid) {
		t.Fatalf("Build = %v, want ErrInvalid", err)
	}
}

func TestControlServerDisabledByEmptyListen(t *testing.T) {
	cfg := testConfigTree(t)
	sup, err := Build(cfg, NewEnv(cfg))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if srv := StartControlServer(cfg, sup); srv != nil {
		_ = srv.Close()
		t.Fatal("control server started with empty listen address")
	}
}
