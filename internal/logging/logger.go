package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/lmittmann/tint"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/yt-subtitles/internal/config"
)

const logFileName = "subtitles.log"

// NewLogger builds the process logger and installs it as the slog default.
// Output always goes to stdout; when LogDir is set it is also written to a
// rotating file.
func NewLogger(cfg *config.Config) (*slog.Logger, error) {
	level := ParseLevel(cfg.LogLevel)
	logDir := strings.TrimSpace(cfg.LogDir)
	if logDir == "" {
		logger := newLogger(os.Stdout, level, false)
		slog.SetDefault(logger)
		return logger, nil
	}

	if cfg.LogMaxSizeMB <= 0 || cfg.LogMaxBackups <= 0 || cfg.LogMaxAgeDays <= 0 {
		return nil, fmt.Errorf("invalid log rotation: size=%d backups=%d age_days=%d",
			cfg.LogMaxSizeMB, cfg.LogMaxBackups, cfg.LogMaxAgeDays)
	}
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}

	logFile := &lumberjack.Logger{
		Filename:   filepath.Join(logDir, logFileName),
		MaxSize:    cfg.LogMaxSizeMB,
		MaxBackups: cfg.LogMaxBackups,
		MaxAge:     cfg.LogMaxAgeDays,
		Compress:   true,
	}

	logger := newLogger(io.MultiWriter(os.Stdout, logFile), level, true)
	slog.SetDefault(logger)
	logger.Info("file logging enabled", "path", logFile.Filename)
	return logger, nil
}

// Discard returns a logger that drops everything.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newLogger(w io.Writer, level slog.Level, noColor bool) *slog.Logger {
	return slog.New(tint.NewHandler(w, &tint.Options{
		Level:      level,
		TimeFormat: time.RFC3339,
		NoColor:    noColor,
	}))
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
