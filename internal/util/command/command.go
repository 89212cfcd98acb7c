package command

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github/chapool/automated-fund-transfer/internal/api"
	"github/chapool/automated-fund-transfer/internal/api/router"
	"github/chapool/automated-fund-transfer/internal/config"
	"github/chapool/automated-fund-transfer/internal/util"
)

const defaultShutdownTimeout = 10 * time.Second

// WithServer configures logging, builds the server from config, runs f and shuts the server down afterwards.
// Key material, ledger connections and the management listener are released even when f fails.
func WithServer(ctx context.Context, config config.Server, f func(ctx context.Context, s *api.Server) error) error {
	util.ConfigureGlobalLogger(config.Logger.Level, config.Logger.PrettyPrintConsole)

	log.Info().Interface("config", config.Redacted()).Msg("Loaded configuration")

	s, err := api.InitNewServer(ctx, config)
	if err != nil {
		log.Error().Err(err).Msg("Failed to initialize server")
		return errors.Wrap(err, "failed to initialize server")
	}

	router.Init(s)

	defer func() {
		timeout := config.ShutdownTimeout
		if timeout <= 0 {
			timeout = defaultShutdownTimeout
		}

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
		defer cancel()

		if errs := s.Shutdown(shutdownCtx); len(errs) > 0 {
			log.Error().Errs("shutdownErrors", errs).Msg("Failed to gracefully shut down server")
		}
	}()

	return f(ctx, s)
}
