// Package build wires up the ledger's subsystem loggers: one decred/slog
// logger per package, all funneled through a single rotating log file via
// jrick/logrotate, in the same shape dcrlnd's build package uses for lnd's
// own subsystem logging.
package build

import (
	"io"
	"os"
	"path/filepath"

	"github.com/decred/slog"
	"github.com/jrick/logrotate/rotator"
)

// LogWriter wraps a log rotator and implements io.Writer so it can be
// plugged into a slog.Backend.
type LogWriter struct {
	Rotator *rotator.Rotator
}

func (w *LogWriter) Write(p []byte) (int, error) {
	if w.Rotator == nil {
		return os.Stdout.Write(p)
	}
	return w.Rotator.Write(p)
}

// RotatingLogWriter accumulates all of the loggers registered for the
// ledger's subsystems, so their levels can be changed in bulk and so a new
// logger can be minted on demand for a newly imported subsystem.
type RotatingLogWriter struct {
	backend    *slog.Backend
	subsystems map[string]slog.Logger
	logWriter  *LogWriter
}

// NewRotatingLogWriter returns a RotatingLogWriter that writes to stdout
// until InitLogRotator redirects it to a file.
func NewRotatingLogWriter() *RotatingLogWriter {
	lw := &LogWriter{}
	return &RotatingLogWriter{
		backend:    slog.NewBackend(io.Writer(lw)),
		subsystems: make(map[string]slog.Logger),
		logWriter:  lw,
	}
}

// InitLogRotator points the writer at a rotating file on disk, the same as
// lnd does during early startup before any other log line is emitted.
func (r *RotatingLogWriter) InitLogRotator(logFile string, maxLogFileSize, maxLogFiles int) error {
	logDir := filepath.Dir(logFile)
	if logDir != "" && logDir != "." {
		if err := os.MkdirAll(logDir, 0o700); err != nil {
			return err
		}
	}
	rot, err := rotator.New(logFile, int64(maxLogFileSize*1024), false, maxLogFiles)
	if err != nil {
		return err
	}
	r.logWriter.Rotator = rot
	return nil
}

// GenSubLogger creates a new slog.Logger for subsystem, routed through this
// writer's backend.
func (r *RotatingLogWriter) GenSubLogger(subsystem string) slog.Logger {
	return r.backend.Logger(subsystem)
}

// RegisterSubLogger records logger as the active logger for subsystem so
// SetLogLevels can reach it later.
func (r *RotatingLogWriter) RegisterSubLogger(subsystem string, logger slog.Logger) {
	r.subsystems[subsystem] = logger
}

// SetLogLevels sets every registered subsystem logger to level.
func (r *RotatingLogWriter) SetLogLevels(level slog.Level) {
	for _, logger := range r.subsystems {
		logger.SetLevel(level)
	}
}

// NewSubLogger returns a logger for subsystem. If gen is nil (the package
// hasn't been wired to a root logger yet, i.e. at package-var init time) it
// returns a disabled logger so early log calls are silent rather than
// nil-panicking.
func NewSubLogger(subsystem string, gen func(string) slog.Logger) slog.Logger {
	if gen == nil {
		return slog.Disabled
	}
	return gen(subsystem)
}
