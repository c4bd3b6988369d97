package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/baskills/meetingvoice/internal/config"
	"github.com/charmbracelet/log"
	gap "github.com/muesli/go-app-paths"
)

func defaultLogPath() (string, error) {
	dir, err := gap.NewScope(gap.User, config.AppName).CacheDir()
	if err != nil {
		return "", fmt.Errorf("unable to find cache directory: %w", err)
	}
	return filepath.Join(dir, config.AppName+".log"), nil
}

// setupLog points the default logger at stderr, or at a file when the
// terminal belongs to the TUI or a log file is configured. The returned
// closer must be called on exit.
func setupLog(toFile bool, path string, debug bool) (func() error, error) {
	log.SetReportTimestamp(true)
	if debug {
		log.SetLevel(log.DebugLevel)
	} else {
		log.SetLevel(log.InfoLevel)
	}

	if !toFile && path == "" {
		log.SetOutput(os.Stderr)
		log.SetReportTimestamp(false)
		return func() error { return nil }, nil
	}

	if path == "" {
		var err error
		if path, err = defaultLogPath(); err != nil {
			return nil, err
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil { //nolint:gosec
		return nil, fmt.Errorf("unable to create log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644) //nolint:gosec
	if err != nil {
		return nil, fmt.Errorf("unable to open log file: %w", err)
	}
	log.SetOutput(f)
	return f.Close, nil
}
