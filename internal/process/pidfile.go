package process

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Pidfile format: first line is the PID, second line is JSON metadata with
// the process start time. The start time lets later runs distinguish our
// prior child from an unrelated process that re-used the PID.

type pidMeta struct {
	StartUnix int64  `json:"start_unix"`
	Command   string `json:"command"`
}

func (h *Handle) writePIDFile() {
	path := h.spec.PIDFile
	if path == "" {
		return
	}
	h.mu.Lock()
	pid := 0
	if h.cmd != nil && h.cmd.Process != nil {
		pid = h.cmd.Process.Pid
	}
	h.mu.Unlock()
	if pid == 0 {
		return
	}
	meta, _ := json.Marshal(pidMeta{StartUnix: procStartUnix(pid), Command: h.spec.Signature()})
	_ = os.MkdirAll(filepath.Dir(path), 0o750)
	_ = os.WriteFile(path, []byte(strconv.Itoa(pid)+"\n"+string(meta)+"\n"), 0o600)
}

// removePIDFile is best-effort.
func (h *Handle) removePIDFile() {
	if h.spec.PIDFile == "" {
		return
	}
	_ = os.Remove(h.spec.PIDFile)
}

// PIDFileEntry is one record from a pidfile written by a prior run.
type PIDFileEntry struct {
	PID       int
	StartUnix int64
	Command   string
}

// ReadPIDFile parses a pidfile written by writePIDFile.
func ReadPIDFile(path string) (PIDFileEntry, error) {
	var e PIDFileEntry
	data, err := os.ReadFile(path) // #nosec G304 -- path comes from our own run dir
	if err != nil {
		return e, err
	}
	lines := strings.Split(strings.ReplaceAll(string(data), "\r\n", "\n"), "\n")
	if len(lines) == 0 || strings.TrimSpace(lines[0]) == "" {
		return e, fmt.Errorf("empty pidfile: %s", path)
	}
	e.PID, err = strconv.Atoi(strings.TrimSpace(lines[0]))
	if err != nil {
		return e, fmt.Errorf("invalid pid in %s: %w", path, err)
	}
	if len(lines) >= 2 {
		var m pidMeta
		if json.Unmarshal([]byte(strings.TrimSpace(lines[1])), &m) == nil {
			e.StartUnix = m.StartUnix
			e.Command = m.Command
		}
	}
	return e, nil
}

// SameProcess reports whether the entry still refers to the process it was
// written for, using start-time identity to defeat PID reuse.
func (e PIDFileEntry) SameProcess() bool {
	if e.PID <= 0 {
		return false
	}
	if e.StartUnix > 0 {
		cur := procStartUnix(e.PID)
		if cur > 0 && cur != e.StartUnix {
			return false
		}
	}
	return pidAlive(e.PID)
}
