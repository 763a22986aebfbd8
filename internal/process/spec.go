package process

import (
	"os/exec"
	"strings"
	"time"

	"github.com/yumo666666/nasweb/internal/logger"
)

// Spec describes one managed child service.
type Spec struct {
	Name          string        // log/pidfile base name, e.g. "api_server"
	Command       string        // command line to start the child
	WorkDir       string        // working directory
	Env           []string      // extra environment, "KEY=VALUE"
	PIDFile       string        // pidfile path; written on confirmed spawn
	StartDuration time.Duration // settle window the child must survive
	Log           logger.Config // sink for combined stdout+stderr
}

// BuildCommand constructs the *exec.Cmd for the spec. A shell is only
// involved when the command line actually needs one.
func (s *Spec) BuildCommand() *exec.Cmd {
	cmdStr := strings.TrimSpace(s.Command)
	if cmdStr == "" {
		// #nosec G204
		return exec.Command("/bin/true")
	}
	if strings.ContainsAny(cmdStr, "|&;<>*?`$\"'(){}[]~") {
		// #nosec G204
		return exec.Command("/bin/sh", "-c", cmdStr)
	}
	parts := strings.Fields(cmdStr)
	name := parts[0]
	var args []string
	if len(parts) > 1 {
		args = parts[1:]
	}
	// #nosec G204
	return exec.Command(name, args...)
}

// Signature is the command-line fingerprint used to recognize a prior
// instance of this child during port conflict remediation.
func (s *Spec) Signature() string { return strings.TrimSpace(s.Command) }
