package supervisor

import (
	"context"
	"errors"
	"net"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/yumo666666/nasweb/internal/conflict"
	"github.com/yumo666666/nasweb/internal/logger"
	"github.com/yumo666666/nasweb/internal/process"
	"github.com/yumo666666/nasweb/internal/store"
)

func testConfig(t *testing.T, backendCmd, frontendCmd string) Config {
	t.Helper()
	dir := t.TempDir()
	spec := func(name, cmd string) process.Spec {
		return process.Spec{
			Name:    name,
			Command: cmd,
			PIDFile: filepath.Join(dir, name+".pid"),
			Log:     logger.Config{Dir: filepath.Join(dir, "logs")},
		}
	}
	return Config{
		Backend:         spec("api_server", backendCmd),
		Frontend:        spec("http_server", frontendCmd),
		BackendPort:     freePort(t),
		FrontendPort:    freePort(t),
		SpawnSettle:     100 * time.Millisecond,
		MonitorInterval: 50 * time.Millisecond,
		StopGrace:       300 * time.Millisecond,
		ConflictSettle:  50 * time.Millisecond,
	}
}

func freePort(t *testing.T) uint16 {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	_, portStr, _ := net.SplitHostPort(l.Addr().String())
	_ = l.Close()
	port, _ := strconv.Atoi(portStr)
	return uint16(port)
}

func waitState(t *testing.T, s *Supervisor, want State) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if s.State() == want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("state = %s, want %s", s.State(), want)
}

type memStore struct {
	mu   sync.Mutex
	recs []store.Record
}

func (m *memStore) EnsureSchema(context.Context) error { return nil }

func (m *memStore) Append(_ context.Context, rec store.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recs = append(m.recs, rec)
	return nil
}

func (m *memStore) Recent(_ context.Context, limit int) ([]store.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if limit > len(m.recs) {
		limit = len(m.recs)
	}
	out := make([]store.Record, limit)
	copy(out, m.recs[len(m.recs)-limit:])
	return out, nil
}

func (m *memStore) Close() error { return nil }

func (m *memStore) events() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.recs))
	for _, r := range m.recs {
		out = append(out, r.Name+":"+r.Event)
	}
	return out
}

type fakeReleaser struct{ calls int }

func (f *fakeReleaser) Release() { f.calls++ }

func TestRunToRunningAndShutdown(t *testing.T) {
	cfg := testConfig(t, "sleep 30", "sleep 30")
	s := New(cfg)
	ms := &memStore{}
	s.SetStore(ms)
	rel := &fakeReleaser{}
	s.SetReleaser(rel)

	done := make(chan error, 1)
	go func() { done <- s.Run(context.Background()) }()

	waitState(t, s, StateRunning)
	snap := s.Status()
	if !snap.Backend.Running || !snap.Frontend.Running {
		t.Fatalf("children not running: %+v", snap)
	}

	s.Shutdown()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run after explicit shutdown: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return")
	}
	if got := s.State(); got != StateStopped {
		t.Fatalf("state = %s, want %s", got, StateStopped)
	}
	snap = s.Status()
	if snap.Backend.Running || snap.Frontend.Running {
		t.Fatalf("children survived shutdown: %+v", snap)
	}
	if rel.calls != 1 {
		t.Fatalf("Release called %d times, want 1", rel.calls)
	}

	events := ms.events()
	want := []string{"api_server:start", "http_server:start", "http_server:stop", "api_server:stop"}
	if len(events) != len(want) {
		t.Fatalf("events = %v, want %v", events, want)
	}
	for i := range want {
		if events[i] != want[i] {
			t.Fatalf("events[%d] = %s, want %s", i, events[i], want[i])
		}
	}
}

func TestContextCancelStopsRun(t *testing.T) {
	cfg := testConfig(t, "sleep 30", "sleep 30")
	s := New(cfg)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	waitState(t, s, StateRunning)
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run after context cancel: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return")
	}
}

func TestUnexpectedChildExit(t *testing.T) {
	// the frontend outlives the settle window, then dies on its own
	cfg := testConfig(t, "sleep 30", "sleep 0.5")
	s := New(cfg)
	ms := &memStore{}
	s.SetStore(ms)

	err := s.Run(context.Background())
	if !errors.Is(err, ErrChildExited) {
		t.Fatalf("Run = %v, want ErrChildExited", err)
	}
	if got := s.State(); got != StateStopped {
		t.Fatalf("state = %s, want %s", got, StateStopped)
	}
	if s.Status().Backend.Running {
		t.Fatal("backend survived cleanup")
	}
	found := false
	for _, e := range ms.events() {
		if e == "http_server:unexpected_exit" {
			found = true
		}
	}
	if !found {
		t.Fatalf("no unexpected_exit event recorded: %v", ms.events())
	}
}

func TestBackendConflictHasNoSideEffects(t *testing.T) {
	cfg := testConfig(t, "sleep 30", "sleep 30")
	l, err := net.Listen("tcp", "127.0.0.1:"+strconv.Itoa(int(cfg.BackendPort)))
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer func() { _ = l.Close() }()

	s := New(cfg)
	err = s.Run(context.Background())
	var pce *conflict.PortConflictError
	if !errors.As(err, &pce) {
		t.Fatalf("Run = %v, want PortConflictError", err)
	}
	if st := s.Status(); st.Backend.PID != 0 || st.Frontend.PID != 0 {
		t.Fatalf("children were spawned despite conflict: %+v", st)
	}
	if got := s.State(); got != StateStopped {
		t.Fatalf("state = %s, want %s", got, StateStopped)
	}
}

func TestFrontendConflictTearsDownBackend(t *testing.T) {
	cfg := testConfig(t, "sleep 30", "sleep 30")
	l, err := net.Listen("tcp", "127.0.0.1:"+strconv.Itoa(int(cfg.FrontendPort)))
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer func() { _ = l.Close() }()

	s := New(cfg)
	err = s.Run(context.Background())
	var pce *conflict.PortConflictError
	if !errors.As(err, &pce) {
		t.Fatalf("Run = %v, want PortConflictError", err)
	}
	snap := s.Status()
	if snap.Backend.Running {
		t.Fatal("backend still running after frontend conflict")
	}
	if snap.Frontend.PID != 0 {
		t.Fatal("frontend was spawned despite conflict")
	}
	if got := s.State(); got != StateStopped {
		t.Fatalf("state = %s, want %s", got, StateStopped)
	}
}

func TestEarlyExitDuringSettle(t *testing.T) {
	cfg := testConfig(t, "/bin/true", "sleep 30")
	cfg.SpawnSettle = 300 * time.Millisecond
	s := New(cfg)
	err := s.Run(context.Background())
	var ee *process.EarlyExitError
	if !errors.As(err, &ee) {
		t.Fatalf("Run = %v, want EarlyExitError", err)
	}
	if ee.Name != "api_server" {
		t.Fatalf("early exit name = %s, want api_server", ee.Name)
	}
	if got := s.State(); got != StateStopped {
		t.Fatalf("state = %s, want %s", got, StateStopped)
	}
}

func TestShutdownIdempotent(t *testing.T) {
	s := New(testConfig(t, "sleep 30", "sleep 30"))
	if s.ShutdownRequested() {
		t.Fatal("shutdown requested before any call")
	}
	s.Shutdown()
	s.Shutdown()
	s.Shutdown()
	if !s.ShutdownRequested() {
		t.Fatal("shutdown not requested after calls")
	}
}

func TestShutdownBeforeRun(t *testing.T) {
	s := New(testConfig(t, "sleep 30", "sleep 30"))
	s.Shutdown()
	if err := s.Run(context.Background()); err != nil {
		t.Fatalf("Run after pre-request: %v", err)
	}
	if st := s.Status(); st.Backend.PID != 0 || st.Frontend.PID != 0 {
		t.Fatalf("children spawned despite prior shutdown request: %+v", st)
	}
}
