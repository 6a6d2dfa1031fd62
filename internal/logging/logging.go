package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/callrunner/callrunner/internal/config"
)

// Setup initializes the logger on stdout plus an optional daily file.
func Setup(level, directory, format string) (*slog.Logger, error) {
	return SetupTo(os.Stdout, level, directory, format)
}

// SetupTo is Setup with a custom console writer. A nil writer logs to the
// file only.
func SetupTo(console io.Writer, level, directory, format string) (*slog.Logger, error) {
	var writers []io.Writer
	if console != nil {
		writers = append(writers, console)
	}

	if directory != "" {
		directory = config.ExpandHome(directory)
		if err := os.MkdirAll(directory, 0o755); err != nil {
			return nil, fmt.Errorf("creating log directory: %w", err)
		}

		filename := fmt.Sprintf("callrunner-%s.log", time.Now().Format("2006-01-02"))
		file, err := os.OpenFile(filepath.Join(directory, filename), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("opening log file: %w", err)
		}
		writers = append(writers, file)
	}

	writer := io.Discard
	if len(writers) > 0 {
		writer = io.MultiWriter(writers...)
	}

	opts := &slog.HandlerOptions{Level: ParseLevel(level)}

	var handler slog.Handler
	if strings.EqualFold(format, "json") {
		handler = slog.NewJSONHandler(writer, opts)
	} else {
		handler = slog.NewTextHandler(writer, opts)
	}

	return slog.New(handler), nil
}

// ParseLevel maps a level name to a slog level, defaulting to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
