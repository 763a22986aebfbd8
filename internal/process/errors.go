package process

import (
	"fmt"
	"time"
)

// SpawnError reports that the OS could not create the child process.
type SpawnError struct {
	Name string
	Err  error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("spawn %s: %v", e.Name, e.Err)
}

func (e *SpawnError) Unwrap() error { return e.Err }

// EarlyExitError reports that a child died inside its settle window. By
// policy this is a startup failure, not a transient blip.
type EarlyExitError struct {
	Name   string
	Window time.Duration
	Err    error
}

func (e *EarlyExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s exited within %s of start: %v", e.Name, e.Window, e.Err)
	}
	return fmt.Sprintf("%s exited within %s of start", e.Name, e.Window)
}

func (e *EarlyExitError) Unwrap() error { return e.Err }
