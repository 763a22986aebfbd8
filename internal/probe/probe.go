// Package probe answers the single question "does something listen on this
// TCP port right now". The answer is computed on demand and never cached;
// occupancy can change between checks, which callers mitigate by re-probing
// after remediation.
package probe

import (
	"errors"
	"log/slog"
	"net"
	"strconv"
	"syscall"
	"time"
)

const defaultTimeout = 250 * time.Millisecond

// Prober checks port occupancy on the local host with a connect probe. The
// probe never binds the port itself, so it cannot influence the outcome.
type Prober struct {
	Host    string        // defaults to 127.0.0.1
	Timeout time.Duration // per-dial timeout, defaults to 250ms
}

// Occupied reports whether a listener currently holds port. When the probe
// cannot determine the status (timeout, unexpected dial error) it reports
// "not occupied" so an indeterminate result never blocks startup, and logs
// a warning instead.
func (p Prober) Occupied(port uint16) bool {
	host := p.Host
	if host == "" {
		host = "127.0.0.1"
	}
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	addr := net.JoinHostPort(host, strconv.Itoa(int(port)))
	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err == nil {
		_ = conn.Close()
		return true
	}
	if errors.Is(err, syscall.ECONNREFUSED) {
		return false
	}
	slog.Warn("port status indeterminate, assuming free", "port", port, "err", err)
	return false
}
