package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/envsync/envsync/internal/config"
)

const (
	logFileName = "envsync.log"
	maxSizeMB   = 50
)

// Setup initializes the logger with file and stdout output. The log file is
// rotated by size and old files are removed after retentionDays.
func Setup(level, directory string, retentionDays int) (*slog.Logger, io.Closer, error) {
	if directory == "" {
		directory = config.ExpandHome("~/.envsync/logs/")
	} else {
		directory = config.ExpandHome(directory)
	}

	if err := os.MkdirAll(directory, 0o755); err != nil {
		return nil, nil, fmt.Errorf("creating log directory: %w", err)
	}

	file := &lumberjack.Logger{
		Filename: filepath.Join(directory, logFileName),
		MaxSize:  maxSizeMB,
		MaxAge:   retentionDays,
		Compress: true,
	}

	return New(level, io.MultiWriter(os.Stdout, file)), file, nil
}

// New returns a text logger writing to w at the given level.
func New(level string, w io.Writer) *slog.Logger {
	handler := slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: ParseLevel(level),
	})
	return slog.New(handler)
}

// ParseLevel maps a level name to a slog level, defaulting to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
