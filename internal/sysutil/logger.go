package sysutil

import (
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

// LogOptions configures NewLogger.
type LogOptions struct {
	Level  string
	Pretty bool

	// File enables a rolling log file next to stdout when non-empty.
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// NewLogger sets the global level and returns a logger writing to stdout
// (console format when Pretty) and, optionally, a size-rotated JSON file.
// The returned closer flushes the file sink; it is a no-op without one.
func NewLogger(opt LogOptions) (zerolog.Logger, io.Closer) {
	SetLogLevel(opt.Level)

	var stdout io.Writer = os.Stdout
	if opt.Pretty {
		stdout = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	}

	var (
		out    = stdout
		closer io.Closer = nopCloser{}
	)
	if opt.File != "" {
		if dir := filepath.Dir(opt.File); dir != "" && dir != "." {
			_ = os.MkdirAll(dir, 0o755)
		}
		lj := &lumberjack.Logger{
			Filename:   opt.File,
			MaxSize:    nz(opt.MaxSizeMB, 100),
			MaxBackups: nz(opt.MaxBackups, 5),
			MaxAge:     nz(opt.MaxAgeDays, 30),
			Compress:   opt.Compress,
		}
		out = zerolog.MultiLevelWriter(stdout, lj)
		closer = lj
	}

	return zerolog.New(out).With().Timestamp().Logger(), closer
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

func nz(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
