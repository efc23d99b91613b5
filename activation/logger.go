package activation

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
)

// debugLog is the per-instance debug log. Each engine writes to its own
// file so two plugin instances in one host never interleave, and the
// file is truncated on creation so a log always describes one session.
type debugLog struct {
	logger *slog.Logger
	path   string
	file   *os.File
}

// newDebugLog builds the engine's logger. When debug logging is off the
// logger discards everything and no file is touched.
func newDebugLog(cfg Config) (*debugLog, error) {
	if !cfg.Debug {
		return &debugLog{logger: slog.New(discardHandler())}, nil
	}

	path, err := cfg.debugLogPath()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("failed to create debug log directory: %w", err)
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return nil, fmt.Errorf("failed to open debug log: %w", err)
	}

	logger := slog.New(slog.NewTextHandler(file, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	})).With(
		slog.String("component", "activation_engine"),
		slog.String("plugin_id", cfg.PluginID),
	)

	return &debugLog{logger: logger, path: path, file: file}, nil
}

// discardHandler is the no-op handler used when debug logging is off or
// its file could not be opened.
func discardHandler() slog.Handler {
	return slog.NewTextHandler(io.Discard, nil)
}

func (d *debugLog) close() {
	if d.file != nil {
		d.file.Close()
	}
}
