package config

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/wippyai/wasm-jit/errors"
)

const (
	FormatConsole = "console"
	FormatJSON    = "json"
)

// Log configures the process logger.
type Log struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

func (l Log) validate() error {
	if _, err := zapcore.ParseLevel(l.Level); err != nil {
		return errors.New(errors.PhaseConfig, errors.KindInvalidInput).
			Detail("log.level %q", l.Level).
			Cause(err).
			Build()
	}
	switch l.Format {
	case "", FormatConsole, FormatJSON:
		return nil
	default:
		return errors.New(errors.PhaseConfig, errors.KindInvalidInput).
			Detail("log.format must be %q or %q, got %q", FormatConsole, FormatJSON, l.Format).
			Build()
	}
}

// Build creates a logger: JSON production encoding for "json", a
// development console encoder otherwise.
func (l Log) Build() (*zap.Logger, error) {
	if err := l.validate(); err != nil {
		return nil, err
	}
	level, _ := zapcore.ParseLevel(l.Level)

	var cfg zap.Config
	if l.Format == FormatJSON {
		cfg = zap.NewProductionConfig()
	} else {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(level)
	cfg.OutputPaths = []string{"stderr"}
	return cfg.Build()
}
