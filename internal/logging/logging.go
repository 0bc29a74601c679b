// Package logging constructs the single *zap.SugaredLogger threaded
// through main, the driver and its workers (SPEC_FULL.md §2.1). Rank
// number is attached as a permanent field so every log line is
// self-describing in a multi-rank run.
package logging

import (
	"os"

	"github.com/mattn/go-isatty"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Options tunes logger construction.
type Options struct {
	// Rank is this process's rank number in the bulk-synchronous
	// driver (0 for the single-process case).
	Rank int
	// Debug enables debug-level logging; off by default since a
	// production run over a large schedule would otherwise drown in
	// per-line detail.
	Debug bool
}

// New builds the process-wide logger. Output is JSON when stderr isn't
// a terminal (piped to a log collector) and a human-readable console
// encoding when it is, following go-isatty's usual role of gating
// color/pretty output to interactive sessions only.
func New(opts Options) (*zap.SugaredLogger, error) {
	level := zap.InfoLevel
	if opts.Debug {
		level = zap.DebugLevel
	}

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "ts"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var encoder zapcore.Encoder
	if isatty.IsTerminal(os.Stderr.Fd()) {
		encoderCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		encoder = zapcore.NewConsoleEncoder(encoderCfg)
	} else {
		encoder = zapcore.NewJSONEncoder(encoderCfg)
	}

	core := zapcore.NewCore(encoder, zapcore.Lock(os.Stderr), level)
	logger := zap.New(core).With(zap.Int("rank", opts.Rank))
	return logger.Sugar(), nil
}

// Nop returns a logger that discards everything, for tests that don't
// care about log output but exercise code paths which take a logger.
func Nop() *zap.SugaredLogger {
	return zap.NewNop().Sugar()
}
