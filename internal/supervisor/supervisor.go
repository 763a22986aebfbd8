// Package supervisor owns the lifecycle of the two child services: the
// backend API process and the static-file HTTP process. It sequences
// startup with port conflict resolution and settle checks, monitors both
// children while running, and drives the graceful-then-forced shutdown.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/yumo666666/nasweb/internal/conflict"
	"github.com/yumo666666/nasweb/internal/history"
	"github.com/yumo666666/nasweb/internal/metrics"
	"github.com/yumo666666/nasweb/internal/probe"
	"github.com/yumo666666/nasweb/internal/process"
	"github.com/yumo666666/nasweb/internal/store"
)

// State of the supervisor's run. Transitions are linear; Stopped is reached
// exactly once per run.
type State string

const (
	StateIdle             State = "idle"
	StateStartingBackend  State = "starting_backend"
	StateBackendReady     State = "backend_ready"
	StateStartingFrontend State = "starting_frontend"
	StateFrontendReady    State = "frontend_ready"
	StateRunning          State = "running"
	StateShuttingDown     State = "shutting_down"
	StateStopped          State = "stopped"
)

// ErrChildExited reports that a monitored child died while running. This is
// a normal path into shutdown, reported to the operator, but the run did not
// end through an explicit shutdown request.
var ErrChildExited = errors.New("child process exited unexpectedly")

// Releaser is the runtime environment hook invoked on shutdown.
type Releaser interface {
	Release()
}

// Config fixes everything a run needs. It is immutable once passed to New.
type Config struct {
	Backend  process.Spec
	Frontend process.Spec

	BackendPort  uint16
	FrontendPort uint16

	SpawnSettle     time.Duration // child must survive this after spawn
	MonitorInterval time.Duration // liveness poll period while Running
	StopGrace       time.Duration // SIGTERM to SIGKILL window
	ConflictSettle  time.Duration // wait between remediation and re-probe
}

func (c *Config) applyDefaults() {
	if c.SpawnSettle <= 0 {
		c.SpawnSettle = 3 * time.Second
	}
	if c.MonitorInterval <= 0 {
		c.MonitorInterval = 5 * time.Second
	}
	if c.StopGrace <= 0 {
		c.StopGrace = time.Second
	}
	if c.ConflictSettle <= 0 {
		c.ConflictSettle = 2 * time.Second
	}
}

// Snapshot is the externally visible view served by the control API.
type Snapshot struct {
	State    State          `json:"state"`
	Backend  process.Status `json:"backend"`
	Frontend process.Status `json:"frontend"`
}

// Supervisor orchestrates the two child handles. All ManagedProcess state is
// mutated from the Run goroutine only; external callers communicate through
// Shutdown and read-only snapshots.
type Supervisor struct {
	cfg      Config
	resolver *conflict.Resolver
	backend  *process.Handle
	frontend *process.Handle

	env   Releaser
	st    store.Store
	sinks []history.Sink

	mu    sync.Mutex
	state State

	shutdownOnce sync.Once
	shutdownCh   chan struct{}
}

func New(cfg Config) *Supervisor {
	cfg.applyDefaults()
	return &Supervisor{
		cfg: cfg,
		resolver: &conflict.Resolver{
			Probe:    probe.Prober{},
			Settle:   cfg.ConflictSettle,
			Grace:    cfg.StopGrace,
			PIDFiles: []string{cfg.Backend.PIDFile, cfg.Frontend.PIDFile},
		},
		backend:    process.New(cfg.Backend),
		frontend:   process.New(cfg.Frontend),
		state:      StateIdle,
		shutdownCh: make(chan struct{}),
	}
}

// SetReleaser attaches the runtime environment released on shutdown.
func (s *Supervisor) SetReleaser(r Releaser) { s.env = r }

// SetStore attaches the run-history store. Failures to persist are logged,
// never fatal.
func (s *Supervisor) SetStore(st store.Store) { s.st = st }

// SetHistorySinks attaches external event sinks.
func (s *Supervisor) SetHistorySinks(sinks ...history.Sink) {
	s.sinks = append([]history.Sink(nil), sinks...)
}

// Shutdown requests shutdown. Idempotent: any number of calls, from signals
// or the control API, collapse into one request.
func (s *Supervisor) Shutdown() {
	s.shutdownOnce.Do(func() { close(s.shutdownCh) })
}

// ShutdownRequested reports whether shutdown has been requested.
func (s *Supervisor) ShutdownRequested() bool {
	select {
	case <-s.shutdownCh:
		return true
	default:
		return false
	}
}

func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Supervisor) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
	slog.Debug("state", "state", st)
}

// Status returns the current snapshot.
func (s *Supervisor) Status() Snapshot {
	return Snapshot{
		State:    s.State(),
		Backend:  s.backend.Snapshot(),
		Frontend: s.frontend.Snapshot(),
	}
}

// Run executes one full supervision cycle and blocks until Stopped. It
// returns nil when the run ended through an explicit shutdown request and
// an error otherwise. Any failure after the first spawn tears down every
// started child before returning: no orphans survive a failed run.
func (s *Supervisor) Run(ctx context.Context) error {
	go func() {
		select {
		case <-ctx.Done():
			s.Shutdown()
		case <-s.shutdownCh:
		}
	}()

	// Backend first: a conflict here halts with no side effects, nothing has
	// been spawned yet.
	s.setState(StateStartingBackend)
	if err := s.resolver.EnsureFree(s.cfg.BackendPort, s.cfg.Backend.Signature(), s.shutdownCh); err != nil {
		s.setState(StateStopped)
		return err
	}
	if s.ShutdownRequested() {
		s.shutdownAll()
		return nil
	}
	if err := s.startChild(s.backend); err != nil {
		return s.failStartup(err)
	}
	s.setState(StateBackendReady)

	s.setState(StateStartingFrontend)
	if err := s.resolver.EnsureFree(s.cfg.FrontendPort, s.cfg.Frontend.Signature(), s.shutdownCh); err != nil {
		// the backend is already up and must not be orphaned
		return s.failStartup(err)
	}
	if s.ShutdownRequested() {
		s.shutdownAll()
		return nil
	}
	if err := s.startChild(s.frontend); err != nil {
		return s.failStartup(err)
	}
	s.setState(StateFrontendReady)

	s.setState(StateRunning)
	slog.Info("all services up",
		"frontend", s.frontend.Snapshot().PID,
		"backend", s.backend.Snapshot().PID,
		"frontend_url", fmt.Sprintf("http://localhost:%d", s.cfg.FrontendPort),
		"backend_url", fmt.Sprintf("http://localhost:%d", s.cfg.BackendPort),
		"frontend_log", s.frontend.Snapshot().LogPath,
		"backend_log", s.backend.Snapshot().LogPath,
	)

	err := s.monitor()
	s.shutdownAll()
	return err
}

// startChild spawns one handle and holds it to the settle window.
func (s *Supervisor) startChild(h *process.Handle) error {
	name := h.Spec().Name
	slog.Info("starting service", "name", name)
	if err := h.Start(); err != nil {
		return err
	}
	st := h.Snapshot()
	slog.Info("service spawned", "name", name, "pid", st.PID, "log", st.LogPath)
	metrics.IncStart(name)
	s.record(history.EventStart, st, "")
	if err := h.EnforceStartDuration(s.cfg.SpawnSettle, s.shutdownCh); err != nil {
		return err
	}
	return nil
}

// monitor polls both children until one dies or shutdown is requested. The
// wait is a cancellable select, never an uninterruptible sleep.
func (s *Supervisor) monitor() error {
	t := time.NewTicker(s.cfg.MonitorInterval)
	defer t.Stop()
	for {
		select {
		case <-s.shutdownCh:
			return nil
		case <-t.C:
			for _, h := range []*process.Handle{s.backend, s.frontend} {
				if h.Alive() {
					continue
				}
				st := h.Snapshot()
				slog.Warn("service exited unexpectedly", "name", st.Name, "pid", st.PID)
				metrics.IncUnexpectedExit(st.Name)
				s.record(history.EventUnexpectedExit, st, exitDetail(st))
				return ErrChildExited
			}
		}
	}
}

// failStartup is the cleanup path for any failure after the first spawn.
func (s *Supervisor) failStartup(err error) error {
	slog.Error("startup failed, cleaning up", "err", err)
	s.shutdownAll()
	return err
}

// shutdownAll drives ShuttingDown -> Stopped. It runs exactly once per Run;
// repeated external shutdown requests only ever close the request channel.
func (s *Supervisor) shutdownAll() {
	s.setState(StateShuttingDown)
	s.Shutdown() // release anyone waiting on the request channel

	// The two children are independent; no required stop order.
	for _, h := range []*process.Handle{s.frontend, s.backend} {
		st := h.Snapshot()
		if st.State == process.StateNotStarted {
			h.Stop(s.cfg.StopGrace) // marks the handle terminal
			continue
		}
		wasRunning := st.Running
		h.Stop(s.cfg.StopGrace)
		st = h.Snapshot()
		if wasRunning {
			slog.Info("service stopped", "name", st.Name, "pid", st.PID)
			metrics.IncStop(st.Name)
			s.record(history.EventStop, st, exitDetail(st))
		}
	}

	if s.env != nil {
		s.env.Release()
	}
	s.setState(StateStopped)
	slog.Info("supervisor stopped")
}

// record persists one lifecycle event to the store and the sinks.
// Observability must never break supervision: errors are logged and dropped.
func (s *Supervisor) record(typ history.EventType, st process.Status, detail string) {
	rec := store.Record{
		Name:   st.Name,
		PID:    st.PID,
		Event:  string(typ),
		At:     time.Now().UTC(),
		Detail: detail,
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if s.st != nil {
		if err := s.st.Append(ctx, rec); err != nil {
			slog.Warn("record run history", "err", err)
		}
	}
	evt := history.Event{Type: typ, OccurredAt: rec.At, Record: rec}
	for _, sink := range s.sinks {
		if err := sink.Send(ctx, evt); err != nil {
			slog.Warn("send history event", "err", err)
		}
	}
}

func exitDetail(st process.Status) string {
	if st.ExitErr != nil {
		return st.ExitErr.Error()
	}
	return ""
}
