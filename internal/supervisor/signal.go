package supervisor

import (
	"log/slog"
	"os"
	"os/signal"
	"syscall"
)

// Bridge converts asynchronous interrupt/termination signals into exactly
// one shutdown request on the supervisor. Repeat signals while shutdown is
// in flight are absorbed: Supervisor.Shutdown is idempotent.
type Bridge struct {
	ch chan os.Signal
}

// NewBridge installs the signal handler and starts delivering to s.
func NewBridge(s *Supervisor) *Bridge {
	b := &Bridge{ch: make(chan os.Signal, 2)}
	signal.Notify(b.ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		for sig := range b.ch {
			slog.Info("signal received, shutting down", "signal", sig.String())
			s.Shutdown()
		}
	}()
	return b
}

// Close detaches the handler. Pending signals are dropped.
func (b *Bridge) Close() {
	signal.Stop(b.ch)
	close(b.ch)
}
