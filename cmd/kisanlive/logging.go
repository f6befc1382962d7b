package main

import (
	"io"
	"log/slog"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/MrWong99/kisanlive/internal/config"
)

// newLogger builds the process logger. Output goes to stderr and, when
// configured, to a size-rotated log file. The returned LevelVar allows the
// level to change at runtime; the closer flushes the log file.
func newLogger(cfg config.ServerConfig) (*slog.Logger, *slog.LevelVar, io.Closer) {
	lvl := new(slog.LevelVar)
	lvl.Set(slogLevel(cfg.LogLevel))

	var (
		w      io.Writer = os.Stderr
		closer io.Closer = io.NopCloser(nil)
	)
	if lf := cfg.LogFile; lf != nil {
		rot := &lumberjack.Logger{
			Filename:   lf.Path,
			MaxSize:    lf.MaxSizeMB,
			MaxBackups: lf.MaxBackups,
			MaxAge:     lf.MaxAgeDays,
			Compress:   lf.Compress,
		}
		w = io.MultiWriter(os.Stderr, rot)
		closer = rot
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl})), lvl, closer
}

func slogLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
