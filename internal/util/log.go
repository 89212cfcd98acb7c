package util

import (
	"context"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LogFromContext returns the logger attached to ctx, or the global logger if there is none
func LogFromContext(ctx context.Context) *zerolog.Logger {
	l := log.Ctx(ctx)
	if l.GetLevel() == zerolog.Disabled {
		l = &log.Logger
	}

	return l
}

// WithLogger returns a copy of ctx carrying a child of the context logger with the given string field
func WithLogger(ctx context.Context, key string, value string) context.Context {
	l := LogFromContext(ctx).With().Str(key, value).Logger()
	return l.WithContext(ctx)
}

// ConfigureGlobalLogger sets the global zerolog level and output format
func ConfigureGlobalLogger(level zerolog.Level, pretty bool) {
	zerolog.TimeFieldFormat = time.RFC3339Nano
	zerolog.SetGlobalLevel(level)

	if pretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{
			Out:        os.Stderr,
			TimeFormat: time.RFC3339,
		})
		return
	}

	log.Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
}
