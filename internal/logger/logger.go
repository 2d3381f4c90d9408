// Package logger configures the process-wide slog default: a colored
// text handler on stderr plus an optional rotated daemon log file.
package logger

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"

	lj "gopkg.in/natefinch/lumberjack.v2"
)

const (
	DefaultMaxSizeMB  = 10
	DefaultMaxBackups = 5
	DefaultMaxAgeDays = 14
)

// Config describes the daemon's logging destinations. An empty Dir
// disables the file log; rotation parameters follow lumberjack
// semantics.
type Config struct {
	Level      string // debug, info, warn, error
	Dir        string // directory for the rotated daemon log
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// Setup installs the slog default logger and returns a closer for the
// file writer, if any.
func Setup(cfg Config) (io.Closer, error) {
	level := parseLevel(cfg.Level)
	handlers := []slog.Handler{
		NewColorTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}),
	}

	var closer io.Closer
	if cfg.Dir != "" {
		if err := os.MkdirAll(cfg.Dir, 0o750); err != nil {
			return nil, err
		}
		fw := &lj.Logger{
			Filename:   filepath.Join(cfg.Dir, "scriptmgr.log"),
			MaxSize:    valOr(cfg.MaxSizeMB, DefaultMaxSizeMB),
			MaxBackups: valOr(cfg.MaxBackups, DefaultMaxBackups),
			MaxAge:     valOr(cfg.MaxAgeDays, DefaultMaxAgeDays),
			Compress:   cfg.Compress,
		}
		closer = fw
		handlers = append(handlers, slog.NewTextHandler(fw, &slog.HandlerOptions{Level: level}))
	}

	slog.SetDefault(slog.New(fanout(handlers)))
	return closer, nil
}

func parseLevel(s string) slog.Level {
	switch s {
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

func valOr(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

func fanout(hs []slog.Handler) slog.Handler {
	if len(hs) == 1 {
		return hs[0]
	}
	return multiHandler(hs)
}
