// Package conflict frees ports held by prior instances of our own child
// services. Remediation is deliberately narrow: a process is terminated only
// when it is provably a previous run's child: recorded in one of our
// pidfiles with matching start-time identity, or carrying the full child
// command line as its own. Arbitrary processes bound to the port are never
// touched; they surface as PortConflictError for the operator.
package conflict

import (
	"fmt"
	"log/slog"
	"strings"
	"syscall"
	"time"

	gopsproc "github.com/shirou/gopsutil/v4/process"

	"github.com/yumo666666/nasweb/internal/metrics"
	"github.com/yumo666666/nasweb/internal/probe"
	"github.com/yumo666666/nasweb/internal/process"
)

// PortConflictError reports a port that is occupied and could not be freed.
type PortConflictError struct {
	Port uint16
}

func (e *PortConflictError) Error() string {
	return fmt.Sprintf("port %d is occupied by a foreign process and cannot be freed", e.Port)
}

// Resolver detects port occupancy and remediates conflicts caused by our
// own prior instances.
type Resolver struct {
	Probe    probe.Prober
	Settle   time.Duration // wait between remediation and re-probe
	Grace    time.Duration // SIGTERM to SIGKILL window for remediated pids
	PIDFiles []string      // pidfiles from this supervisor's prior runs
}

// EnsureFree guarantees port has no listener on return, or fails with
// PortConflictError. signature is the full command line of the child that
// may have been left behind by a previous run.
func (r *Resolver) EnsureFree(port uint16, signature string, cancel <-chan struct{}) error {
	if !r.Probe.Occupied(port) {
		return nil
	}
	slog.Warn("port occupied, attempting remediation of prior instances",
		"port", port, "signature", signature)
	n := r.terminatePriorInstances(signature)
	slog.Info("remediation finished", "port", port, "terminated", n)

	settle := r.Settle
	if settle <= 0 {
		settle = 2 * time.Second
	}
	t := time.NewTimer(settle)
	defer t.Stop()
	select {
	case <-cancel:
	case <-t.C:
	}

	if r.Probe.Occupied(port) {
		metrics.IncConflict("failed")
		return &PortConflictError{Port: port}
	}
	metrics.IncConflict("resolved")
	return nil
}

// terminatePriorInstances stops every process proven to be a prior child of
// ours and returns how many were signalled. Proof comes from our own
// pidfiles first; a process list scan by exact command-line signature is the
// documented fallback heuristic.
func (r *Resolver) terminatePriorInstances(signature string) int {
	seen := make(map[int]bool)
	n := 0
	for _, pf := range r.PIDFiles {
		e, err := process.ReadPIDFile(pf)
		if err != nil {
			continue
		}
		if !e.SameProcess() {
			continue
		}
		if signature != "" && e.Command != "" && e.Command != signature {
			continue
		}
		if !seen[e.PID] {
			seen[e.PID] = true
			r.terminate(e.PID)
			n++
		}
	}
	if signature == "" {
		return n
	}
	procs, err := gopsproc.Processes()
	if err != nil {
		slog.Warn("process list unavailable, pidfile remediation only", "err", err)
		return n
	}
	for _, p := range procs {
		cmdline, err := p.Cmdline()
		if err != nil || cmdline == "" {
			continue
		}
		// full signature containment only; a partial match is not proof
		if !strings.Contains(cmdline, signature) {
			continue
		}
		pid := int(p.Pid)
		if !seen[pid] {
			seen[pid] = true
			r.terminate(pid)
			n++
		}
	}
	return n
}

// terminate applies the same two-phase stop the supervisor uses for live
// children: SIGTERM, grace, SIGKILL if still alive.
func (r *Resolver) terminate(pid int) {
	slog.Info("terminating prior instance", "pid", pid)
	_ = syscall.Kill(pid, syscall.SIGTERM)
	grace := r.Grace
	if grace <= 0 {
		grace = time.Second
	}
	deadline := time.Now().Add(grace)
	for time.Now().Before(deadline) {
		if syscall.Kill(pid, 0) != nil {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	_ = syscall.Kill(pid, syscall.SIGKILL)
}
