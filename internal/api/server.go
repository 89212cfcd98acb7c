package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/dropbox/godropbox/time2"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
	"github/chapool/automated-fund-transfer/internal/config"
	"github/chapool/automated-fund-transfer/internal/metrics"
	"github/chapool/automated-fund-transfer/internal/notify"
	"github/chapool/automated-fund-transfer/internal/util"
	"github/chapool/automated-fund-transfer/internal/wallet/cycle"
	"github/chapool/automated-fund-transfer/internal/wallet/keystore"
	"github/chapool/automated-fund-transfer/internal/wallet/ledger"
	"github/chapool/automated-fund-transfer/internal/wallet/signer"
	"github/chapool/automated-fund-transfer/internal/wallet/sweep"
)

type Router struct {
	Routes     []*echo.Route
	Root       *echo.Group
	Management *echo.Group
}

// Server is a central struct keeping all the dependencies.
// It is initialized with wire, which handles making the new instances of the components
// in the right order. To add a new component, 3 steps are required:
// - declaring it in this struct
// - adding a provider function in providers.go
// - adding the provider's function name to the arguments of wire.Build() in wire.go
//
// Components labeled as `wire:"-"` will be skipped and have to be initialized after the InitNewServer* call.
// For more information about wire refer to https://pkg.go.dev/github.com/google/wire
type Server struct {
	// skip wire:
	// -> initialized with router.Init(s) function
	Echo   *echo.Echo `wire:"-"`
	Router *Router    `wire:"-"`

	Config   config.Server
	Clock    time2.Clock
	Metrics  *metrics.Service
	Keys     keystore.Manager
	Signer   signer.Service
	Ledger   ledger.Client
	Notifier notify.Notifier
	Executor sweep.Service
	Cycle    *cycle.Controller
}

// newServerWithComponents is used by wire to initialize the server components.
// Components not listed here won't be handled by wire and should be initialized separately.
// Components which shouldn't be handled must be labeled `wire:"-"` in Server struct.
func newServerWithComponents(
	cfg config.Server,
	clock time2.Clock,
	metrics *metrics.Service,
	keys keystore.Manager,
	signer signer.Service,
	ledger ledger.Client,
	notifier notify.Notifier,
	executor sweep.Service,
	controller *cycle.Controller,
) *Server {
	return &Server{
		Config:   cfg,
		Clock:    clock,
		Metrics:  metrics,
		Keys:     keys,
		Signer:   signer,
		Ledger:   ledger,
		Notifier: notifier,
		Executor: executor,
		Cycle:    controller,
	}
}

// Ready reports whether every component is initialized and the key material is still loaded
func (s *Server) Ready() bool {
	if err := util.IsStructInitialized(s); err != nil {
		log.Debug().Err(err).Msg("Server is not fully initialized")
		return false
	}

	if !s.Keys.IsInitialized() {
		log.Debug().Msg("Key material is not loaded")
		return false
	}

	return true
}

// ManagementEnabled reports whether the management HTTP listener is configured
func (s *Server) ManagementEnabled() bool {
	return s.Config.ManagementListenAddress != ""
}

// Start serves the management endpoints and blocks until the listener is closed
func (s *Server) Start() error {
	if !s.Ready() {
		return errors.New("server is not ready")
	}

	if s.Echo == nil {
		return errors.New("management router is not initialized")
	}

	if err := s.Echo.Start(s.Config.ManagementListenAddress); err != nil {
		return fmt.Errorf("failed to start echo server: %w", err)
	}

	return nil
}

func (s *Server) Shutdown(ctx context.Context) []error {
	log.Warn().Msg("Shutting down server")

	var errs []error

	if s.Echo != nil {
		log.Debug().Msg("Shutting down echo server")

		if err := s.Echo.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("Failed to shutdown echo server")
			errs = append(errs, err)
		}
	}

	if s.Ledger != nil {
		log.Debug().Msg("Closing ledger connections")
		s.Ledger.Close()
	}

	if s.Keys != nil {
		log.Debug().Msg("Wiping key material")
		s.Keys.Clear()
	}

	return errs
}
