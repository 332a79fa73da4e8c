// logging.go - Structured logging setup
//
// Diagnostics for user programs go through the collector in errors.go;
// zap carries the compiler's own operational logging. Builds stay
// quiet at warn level unless --verbose drops to debug. INDENTC_LOG=json
// switches to machine-readable output for CI log collectors.

package main

import (
	"github.com/xyproto/env/v2"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func NewLogger(verbose bool) *zap.Logger {
	var cfg zap.Config
	if env.Str("INDENTC_LOG") == "json" {
		cfg = zap.NewProductionConfig()
	} else {
		cfg = zap.NewDevelopmentConfig()
		cfg.DisableStacktrace = true
		cfg.DisableCaller = true
	}
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}

	level := zapcore.WarnLevel
	if verbose {
		level = zapcore.DebugLevel
	}
	cfg.Level = zap.NewAtomicLevelAt(level)

	return zap.Must(cfg.Build())
}
