package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github/chapool/automated-fund-transfer/internal/api"
	"github/chapool/automated-fund-transfer/internal/config"
	"github/chapool/automated-fund-transfer/internal/util/command"
	"golang.org/x/sys/unix"
)

type flags struct {
	configPath string
	dryRun     bool
}

// newRootCmd builds the daemon command. It has no subcommands.
func newRootCmd() *cobra.Command {
	f := flags{}

	cmd := &cobra.Command{
		Version: config.GetFormattedBuildArgs(),
		Use:     "automated-fund-transfer",
		Short:   config.ModuleName,
		Long: fmt.Sprintf(`%v

Keeps the sender account at its configured threshold and sweeps the excess
to the receiver once per poll interval. Runs until SIGINT or SIGTERM.`, config.ModuleName),
		SilenceUsage: true,
		Args:         cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), f)
		},
	}

	cmd.Flags().StringVar(&f.configPath, "config", config.DefaultConfigPath, "path to the TOML configuration file")
	cmd.Flags().BoolVar(&f.dryRun, "dry-run", false, "build and sign transfers without submitting them")

	return cmd
}

func run(ctx context.Context, f flags) error {
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return errors.Wrap(err, "failed to load config")
	}

	if f.dryRun {
		cfg.DryRun = true
	}

	ctx, stop := signal.NotifyContext(ctx, unix.SIGINT, unix.SIGTERM)
	defer stop()

	return command.WithServer(ctx, cfg, func(ctx context.Context, s *api.Server) error {
		if s.ManagementEnabled() {
			go func() {
				if err := s.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error().Err(err).Msg("Management server stopped")
				}
			}()
		}

		log.Info().
			Str("sender", s.Signer.Address()).
			Str("receiver", cfg.ReceiverPubkey).
			Dur("interval", cfg.PollInterval()).
			Bool("dry_run", cfg.DryRun).
			Msg("Starting transfer cycle")

		if err := s.Cycle.Run(ctx); err != nil {
			return errors.Wrap(err, "cycle controller failed")
		}

		log.Info().Msg("Shut down gracefully")

		return nil
	})
}

// Execute runs the root command and exits with status 1 on failure.
// This is called by main.main(). It only needs to happen once.
func Execute() {
	rootCmd := newRootCmd()
	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("Failed to execute root command")
		os.Exit(1)
	}
}
