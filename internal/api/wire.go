//go:build wireinject

package api

import (
	"context"

	"github.com/google/wire"
	"github/chapool/automated-fund-transfer/internal/config"
	"github/chapool/automated-fund-transfer/internal/metrics"
	"github/chapool/automated-fund-transfer/internal/wallet/ledger"
)

// INJECTORS - https://github.com/google/wire/blob/main/docs/guide.md#injectors

// serviceSet groups the default set of providers that are required for initing a server
var serviceSet = wire.NewSet(
	newServerWithComponents,
	NewClock,
	metrics.New,
	NewKeyManager,
	NewSigner,
	NewNotifier,
	NewExecutor,
	NewCycleController,
)

// InitNewServer returns a new Server instance connected to the configured ledger.
func InitNewServer(
	_ context.Context,
	_ config.Server,
) (*Server, error) {
	wire.Build(serviceSet, NewLedger)
	return new(Server), nil
}

// InitNewServerWithLedger returns a new Server instance with the given ledger client.
// All the other components are initialized via go wire according to the configuration.
func InitNewServerWithLedger(
	_ config.Server,
	_ ledger.Client,
) (*Server, error) {
	wire.Build(serviceSet)
	return new(Server), nil
}
