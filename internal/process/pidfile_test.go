package process

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/yumo666666/nasweb/internal/logger"
)

func TestPIDFileRoundtrip(t *testing.T) {
	dir := t.TempDir()
	spec := Spec{
		Name:    "svc",
		Command: "sleep 30",
		PIDFile: filepath.Join(dir, "svc.pid"),
		Log:     logger.Config{Dir: filepath.Join(dir, "logs")},
	}
	h := New(spec)
	if err := h.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer func() {
		h.Stop(500 * time.Millisecond)
	}()

	e, err := ReadPIDFile(spec.PIDFile)
	if err != nil {
		t.Fatalf("ReadPIDFile: %v", err)
	}
	if e.PID != h.Snapshot().PID {
		t.Fatalf("pidfile pid = %d, handle pid = %d", e.PID, h.Snapshot().PID)
	}
	if e.Command != "sleep 30" {
		t.Fatalf("pidfile command = %q", e.Command)
	}
	if !e.SameProcess() {
		t.Fatal("SameProcess=false for a live child")
	}
}

func TestPIDFileRemovedOnExit(t *testing.T) {
	dir := t.TempDir()
	spec := Spec{
		Name:    "svc",
		Command: "/bin/true",
		PIDFile: filepath.Join(dir, "svc.pid"),
		Log:     logger.Config{Dir: filepath.Join(dir, "logs")},
	}
	h := New(spec)
	if err := h.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	select {
	case <-h.WaitDone():
	case <-time.After(5 * time.Second):
		t.Fatal("child did not exit")
	}
	// reaper removes the pidfile after the exit is observed
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if _, err := os.Stat(spec.PIDFile); os.IsNotExist(err) {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("pidfile still present after exit")
}

func TestSameProcessStaleEntry(t *testing.T) {
	e := PIDFileEntry{PID: 1, StartUnix: 12345} // pid 1 did not start at 12345
	if e.SameProcess() {
		t.Fatal("stale start identity accepted")
	}
	if (PIDFileEntry{PID: 0}).SameProcess() {
		t.Fatal("pid 0 accepted")
	}
}

func TestReadPIDFileInvalid(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.pid")
	if err := os.WriteFile(path, []byte("not-a-pid\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := ReadPIDFile(path); err == nil {
		t.Fatal("expected error for malformed pidfile")
	}
	if _, err := ReadPIDFile(filepath.Join(dir, "absent.pid")); err == nil {
		t.Fatal("expected error for missing pidfile")
	}
}
