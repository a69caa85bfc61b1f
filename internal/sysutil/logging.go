package sysutil

import (
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/tbourn/pos-sync/internal/config"
)

// stderr is swapped in tests.
var stderr io.Writer = os.Stderr

// SetupLogger points the global zerolog logger at stderr (pretty when
// cfg.Pretty) and, when cfg.File is set, also at a size-rotated file. Every
// line carries service. The returned closer flushes the file writer; it is a
// no-op without a file.
//
// NO_COLOR disables ANSI colors in pretty mode.
func SetupLogger(cfg config.LogConfig, service string) (io.Closer, error) {
	SetLogLevel(cfg.Level)
	zerolog.TimeFieldFormat = time.RFC3339Nano

	var console io.Writer = stderr
	if cfg.Pretty {
		console = zerolog.ConsoleWriter{
			Out:        stderr,
			TimeFormat: time.RFC3339,
			NoColor:    IsTruthy(os.Getenv("NO_COLOR")),
		}
	}

	var closer io.Closer = nopCloser{}
	out := console
	if cfg.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.File), 0o755); err != nil {
			return nil, err
		}
		lj := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   true,
		}
		out = zerolog.MultiLevelWriter(console, lj)
		closer = lj
	}

	log.Logger = zerolog.New(out).With().Timestamp().Str("service", service).Logger()
	return closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
