package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	lj "gopkg.in/natefinch/lumberjack.v2"
)

// Rotation defaults for child log sinks.
const (
	DefaultMaxSizeMB  = 10
	DefaultMaxBackups = 3
	DefaultMaxAgeDays = 7
)

// Config describes the log sink of one managed child. Writes go to
// Dir/<name>.log in append mode; lumberjack handles rotation.
type Config struct {
	Dir        string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// Sink returns an append-only io.WriteCloser for the named child. The log
// directory is created if missing; the file survives the child's exit since
// writes flow through the OS pipe, not the supervisor.
func (c Config) Sink(name string) (io.WriteCloser, error) {
	if c.Dir == "" {
		return nil, fmt.Errorf("log dir not configured")
	}
	if err := os.MkdirAll(c.Dir, 0o750); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	return &lj.Logger{
		Filename:   filepath.Join(c.Dir, name+".log"),
		MaxSize:    valOr(c.MaxSizeMB, DefaultMaxSizeMB),
		MaxBackups: valOr(c.MaxBackups, DefaultMaxBackups),
		MaxAge:     valOr(c.MaxAgeDays, DefaultMaxAgeDays),
		Compress:   c.Compress,
	}, nil
}

// Path returns the file the named child's sink writes to.
func (c Config) Path(name string) string {
	return filepath.Join(c.Dir, name+".log")
}

func valOr(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

// Setup installs the process-wide slog default used for supervisor output.
func Setup(level slog.Level) {
	h := NewColorTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}, true)
	slog.SetDefault(slog.New(h))
}
