package logger

import (
	"io"
	"os"

	"maze-scores/internal/config"

	"github.com/rs/zerolog"
)

const ServiceName = "score-service"

func New(cfg *config.Config) zerolog.Logger {
	return NewWithWriter(os.Stdout, cfg.LogLevel)
}

func NewWithWriter(w io.Writer, level zerolog.Level) zerolog.Logger {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	return zerolog.New(w).
		Level(level).
		With().
		Timestamp().
		Caller().
		Str("service", ServiceName).
		Logger()
}

// Nop is used by tests and tools that do not want output.
func Nop() zerolog.Logger {
	return zerolog.Nop()
}
