package process

import (
	"bytes"
	"io"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"syscall"
	"time"
)

// Handle wraps one spawned child process. It is owned by the supervisor:
// Start/Stop are called from the supervisor goroutine only, while the reaper
// goroutine the handle spawns is the single waiter on the child.
type Handle struct {
	spec      Spec
	mu        sync.Mutex
	cmd       *exec.Cmd
	status    Status
	waitDone  chan struct{} // closed by the reaper when cmd.Wait returns
	logCloser io.WriteCloser
}

func New(spec Spec) *Handle {
	return &Handle{
		spec: spec,
		status: Status{
			Name:    spec.Name,
			State:   StateNotStarted,
			LogPath: spec.Log.Path(spec.Name),
		},
	}
}

func (h *Handle) Spec() Spec { return h.spec }

// Start launches the child with stdout and stderr redirected to the log
// sink. It returns once the OS confirms process creation; it does not wait
// for the child's own readiness.
func (h *Handle) Start() error {
	h.mu.Lock()
	if h.status.Running {
		h.mu.Unlock()
		return nil
	}
	h.status.State = StateStarting
	h.mu.Unlock()

	cmd := h.spec.BuildCommand()
	if h.spec.WorkDir != "" {
		cmd.Dir = h.spec.WorkDir
	}
	if len(h.spec.Env) > 0 {
		cmd.Env = append(os.Environ(), h.spec.Env...)
	}
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	sink, err := h.spec.Log.Sink(h.spec.Name)
	if err != nil {
		h.markStopped(nil)
		return &SpawnError{Name: h.spec.Name, Err: err}
	}
	cmd.Stdout = sink
	cmd.Stderr = sink

	if err := cmd.Start(); err != nil {
		_ = sink.Close()
		h.markStopped(err)
		return &SpawnError{Name: h.spec.Name, Err: err}
	}

	h.mu.Lock()
	h.cmd = cmd
	h.logCloser = sink
	h.waitDone = make(chan struct{})
	h.status.Running = true
	h.status.PID = cmd.Process.Pid
	h.status.StartedAt = time.Now()
	h.status.State = StateRunning
	wd := h.waitDone
	h.mu.Unlock()

	h.writePIDFile()
	go h.reap(cmd, sink, wd)
	return nil
}

// reap is the single waiter on the child. It records the exit, releases the
// log sink and removes the pidfile.
func (h *Handle) reap(cmd *exec.Cmd, sink io.WriteCloser, wd chan struct{}) {
	err := cmd.Wait()
	h.mu.Lock()
	h.status.Running = false
	h.status.StoppedAt = time.Now()
	h.status.ExitErr = err
	h.status.State = StateStopped
	h.mu.Unlock()
	close(wd)
	_ = sink.Close()
	h.removePIDFile()
}

// Alive is a non-destructive liveness probe: reaped children are reported
// dead immediately, otherwise a signal-zero check is used with a zombie
// guard for quickly-exiting children not yet observed by the reaper.
func (h *Handle) Alive() bool {
	h.mu.Lock()
	cmd := h.cmd
	wd := h.waitDone
	h.mu.Unlock()
	if cmd == nil || cmd.Process == nil {
		return false
	}
	if wd != nil {
		select {
		case <-wd:
			return false
		default:
		}
	}
	pid := cmd.Process.Pid
	if isZombie(pid) {
		return false
	}
	return syscall.Kill(pid, 0) == nil
}

// WaitDone returns a channel closed when the child has exited and been
// reaped. Nil before the first successful Start.
func (h *Handle) WaitDone() <-chan struct{} {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.waitDone
}

// EnforceStartDuration blocks until the settle window elapses, failing with
// EarlyExitError when the child dies first. Cancellable through cancel.
func (h *Handle) EnforceStartDuration(d time.Duration, cancel <-chan struct{}) error {
	if d <= 0 {
		return nil
	}
	wd := h.WaitDone()
	if wd == nil {
		return &EarlyExitError{Name: h.spec.Name, Window: d}
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-wd:
		return &EarlyExitError{Name: h.spec.Name, Window: d, Err: h.Snapshot().ExitErr}
	case <-cancel:
		return nil
	case <-t.C:
		return nil
	}
}

// Stop performs the two-phase shutdown: SIGTERM to the process group, wait
// up to grace, then SIGKILL if the child is still alive. Stopping an
// already-dead handle is a no-op.
func (h *Handle) Stop(grace time.Duration) {
	h.mu.Lock()
	cmd := h.cmd
	wd := h.waitDone
	if cmd == nil || !h.status.Running {
		if h.status.State == StateNotStarted {
			h.status.State = StateStopped
		}
		h.mu.Unlock()
		return
	}
	h.status.State = StateStopping
	h.mu.Unlock()

	pid := cmd.Process.Pid
	_ = syscall.Kill(-pid, syscall.SIGTERM)
	select {
	case <-wd:
		return
	case <-time.After(grace):
	}
	_ = syscall.Kill(-pid, syscall.SIGKILL)
	select {
	case <-wd:
	case <-time.After(500 * time.Millisecond):
		// best-effort; the reaper finishes once the kernel reaps the child
	}
}

func (h *Handle) markStopped(err error) {
	h.mu.Lock()
	h.status.State = StateStopped
	h.status.ExitErr = err
	h.mu.Unlock()
}

// Snapshot returns a copy of the current status.
func (h *Handle) Snapshot() Status {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.status
}

// isZombie reports a zombie state on Linux; other platforms return false.
func isZombie(pid int) bool {
	b, err := os.ReadFile("/proc/" + strconv.Itoa(pid) + "/status")
	if err != nil {
		return false
	}
	return bytes.Contains(b, []byte("State:\tZ"))
}
