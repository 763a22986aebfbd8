package process

import "time"

// State values a handle moves through. Transitions are monotonic; Stopped is
// terminal.
const (
	StateNotStarted = "not_started"
	StateStarting   = "starting"
	StateRunning    = "running"
	StateStopping   = "stopping"
	StateStopped    = "stopped"
)

// Status is a point-in-time snapshot of a handle.
type Status struct {
	Name      string    `json:"name"`
	State     string    `json:"state"`
	Running   bool      `json:"running"`
	PID       int       `json:"pid"`
	StartedAt time.Time `json:"started_at"`
	StoppedAt time.Time `json:"stopped_at"`
	ExitErr   error     `json:"-"`
	LogPath   string    `json:"log_path"`
}
