// Package logging constructs the logger used across the agent. The logger
// is built once in main and passed explicitly to the components that need
// it; there is no package-level logger state.
package logging

import (
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"

	"github.com/hapershtein/llamagent/errors"
)

// Options control where and how verbosely log records are emitted.
type Options struct {
	// File is an explicit log file path. When empty, a date-stamped file is
	// created under ~/.local/share/llamagent/logs.
	File string
	// Level is one of "debug", "info", "warn", "error".
	Level string
	// Console additionally mirrors records to stderr.
	Console bool
}

// New builds a logger per opts. The returned closer releases the log file.
func New(opts Options) (*log.Logger, io.Closer, error) {
	path := opts.File
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, nil, errors.Wrapf(err, "could not resolve home directory")
		}
		dir := filepath.Join(home, ".local", "share", "llamagent", "logs")
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, nil, errors.Wrapf(err, "could not create log directory")
		}
		path = filepath.Join(dir, "llamagent-"+time.Now().Format("20060102")+".log")
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "could not open log file %s", path)
	}

	var w io.Writer = f
	if opts.Console {
		w = io.MultiWriter(f, os.Stderr)
	}

	logger := log.NewWithOptions(w, log.Options{
		ReportTimestamp: true,
		TimeFormat:      "2006-01-02 15:04:05",
	})
	logger.SetLevel(parseLevel(opts.Level))
	logger.Debug("logging initialised", "file", path, "level", opts.Level)
	return logger, f, nil
}

// Discard returns a logger that drops everything, for components that are
// constructed without an explicit logger (tests, mostly).
func Discard() *log.Logger {
	return log.New(io.Discard)
}

func parseLevel(level string) log.Level {
	switch level {
	case "debug":
		return log.DebugLevel
	case "warn", "warning":
		return log.WarnLevel
	case "error":
		return log.ErrorLevel
	default:
		return log.InfoLevel
	}
}
