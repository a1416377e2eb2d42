// internal/logging/logging.go

// Package logging provides the leveled logging backend shared by all
// components, built on go-logging.
package logging

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/op/go-logging.v1"
)

// Backend hands out per-module leveled loggers that share one sink.
type Backend struct {
	w       io.Writer
	leveled logging.LeveledBackend
}

// GetLogger returns the logger for a module, bound to this backend.
func (b *Backend) GetLogger(module string) *logging.Logger {
	l := logging.MustGetLogger(module)
	l.SetBackend(b.leveled)
	return l
}

// New creates a logging backend writing to file (stderr when file is "",
// discarded entirely when disable is set) at the given level.
func New(file, level string, disable bool) (*Backend, error) {
	lvl, err := parseLevel(level)
	if err != nil {
		return nil, err
	}

	b := new(Backend)
	switch {
	case disable:
		b.w = io.Discard
	case file == "":
		// Diagnostics go to stderr so the interactive chat surface keeps
		// stdout to itself.
		b.w = os.Stderr
	default:
		f, err := os.OpenFile(file, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
		if err != nil {
			return nil, fmt.Errorf("logging: open log file: %w", err)
		}
		b.w = f
	}

	format := logging.MustStringFormatter("%{time:15:04:05.000} %{level:.4s} %{module}: %{message}")
	base := logging.NewLogBackend(b.w, "", 0)
	b.leveled = logging.AddModuleLevel(logging.NewBackendFormatter(base, format))
	b.leveled.SetLevel(lvl, "")
	return b, nil
}

func parseLevel(level string) (logging.Level, error) {
	switch level {
	case "ERROR":
		return logging.ERROR, nil
	case "WARNING":
		return logging.WARNING, nil
	case "NOTICE", "":
		return logging.NOTICE, nil
	case "INFO":
		return logging.INFO, nil
	case "DEBUG":
		return logging.DEBUG, nil
	default:
		return logging.CRITICAL, fmt.Errorf("logging: invalid level: %q", level)
	}
}
