package metrics

import (
	"errors"
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Package-level Prometheus collectors, registered via Register.
var (
	regOK atomic.Bool

	childStarts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "nasweb",
			Subsystem: "child",
			Name:      "starts_total",
			Help:      "Number of successful child process starts.",
		}, []string{"role"},
	)
	childStops = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "nasweb",
			Subsystem: "child",
			Name:      "stops_total",
			Help:      "Number of child stops (graceful or kill).",
		}, []string{"role"},
	)
	childUnexpectedExits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "nasweb",
			Subsystem: "child",
			Name:      "unexpected_exits_total",
			Help:      "Number of child deaths detected by the monitor loop.",
		}, []string{"role"},
	)
	portConflicts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "nasweb",
			Subsystem: "port",
			Name:      "conflicts_total",
			Help:      "Port conflicts by remediation outcome (resolved|failed).",
		}, []string{"outcome"},
	)
)

// Register registers all collectors on reg. Safe to call more than once.
func Register(reg prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{childStarts, childStops, childUnexpectedExits, portConflicts}
	for _, c := range cs {
		if err := reg.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	regOK.Store(true)
	return nil
}

// RegisterDefault registers on the default prometheus registry.
func RegisterDefault() error { return Register(prometheus.DefaultRegisterer) }

// Handler exposes the default registry for the control API.
func Handler() http.Handler { return promhttp.Handler() }

func IncStart(role string)          { childStarts.WithLabelValues(role).Inc() }
func IncStop(role string)           { childStops.WithLabelValues(role).Inc() }
func IncUnexpectedExit(role string) { childUnexpectedExits.WithLabelValues(role).Inc() }
func IncConflict(outcome string)    { portConflicts.WithLabelValues(outcome).Inc() }
