package api

import (
	"context"

	"github.com/dropbox/godropbox/time2"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github/chapool/automated-fund-transfer/internal/config"
	"github/chapool/automated-fund-transfer/internal/metrics"
	"github/chapool/automated-fund-transfer/internal/notify"
	"github/chapool/automated-fund-transfer/internal/wallet"
	"github/chapool/automated-fund-transfer/internal/wallet/cycle"
	"github/chapool/automated-fund-transfer/internal/wallet/keystore"
	"github/chapool/automated-fund-transfer/internal/wallet/ledger"
	"github/chapool/automated-fund-transfer/internal/wallet/retry"
	"github/chapool/automated-fund-transfer/internal/wallet/signer"
	"github/chapool/automated-fund-transfer/internal/wallet/sweep"
)

// PROVIDERS - https://github.com/google/wire/blob/main/docs/guide.md#defining-providers

// NewClock returns the wall clock
//
//nolint:ireturn
func NewClock() time2.Clock {
	return time2.DefaultClock
}

// NewKeyManager loads the sender key material at startup. Unreadable keys are fatal.
//
//nolint:ireturn
func NewKeyManager(cfg config.Server) (keystore.Manager, error) {
	keyType := keyTypeFor(cfg.Chain)

	key, err := keystore.LoadKeyFile(cfg.SenderKeypair, keyType, cfg.SenderKeypairPassword)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read sender keypair")
	}
	defer clear(key)

	manager := keystore.NewManager()
	if err := manager.Initialize(keyType, key); err != nil {
		return nil, errors.Wrap(err, "failed to initialize key manager")
	}

	return manager, nil
}

//nolint:ireturn
func NewSigner(keys keystore.Manager) (signer.Service, error) {
	signerService, err := signer.NewService(keys)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create signer service")
	}

	log.Info().Str("sender", signerService.Address()).Msg("Loaded sender keypair")

	return signerService, nil
}

// NewLedger creates the ledger client for the configured chain
//
//nolint:ireturn
func NewLedger(ctx context.Context, cfg config.Server, signerService signer.Service) (ledger.Client, error) {
	switch cfg.Chain {
	case config.ChainSolana:
		return ledger.NewSolanaClient(cfg.RPCProviders(), signerService)
	case config.ChainEVM:
		return ledger.NewEVMClient(ctx, cfg.RPCProviders(), cfg.EVMChainID, signerService)
	default:
		return nil, errors.Errorf("unsupported chain %q", cfg.Chain)
	}
}

// NewNotifier fans out to Slack and email when configured, outcomes are always logged
//
//nolint:ireturn
func NewNotifier(cfg config.Server, client ledger.Client) notify.Notifier {
	var senders []notify.Sender

	if cfg.SlackWebhook != "" {
		senders = append(senders, notify.NewSlack(cfg.SlackWebhook))
	}

	if cfg.Email.Enabled() {
		senders = append(senders, notify.NewEmail(notify.EmailConfig{
			Host:     cfg.Email.Host,
			Port:     cfg.Email.Port,
			Username: cfg.Email.Username,
			Password: cfg.Email.Password,
			From:     cfg.Email.From,
			To:       cfg.Email.To,
		}))
	}

	return notify.NewService(client.Unit(), cfg.NotifySkipped, senders...)
}

//nolint:ireturn
func NewExecutor(cfg config.Server, client ledger.Client, clock time2.Clock, metricsService *metrics.Service) sweep.Service {
	return sweep.NewService(client, clock, sweep.Config{
		Retry: retry.Policy{
			MaxAttempts: cfg.Retry.MaxAttempts,
			BaseDelay:   cfg.Retry.BaseDelay,
			Multiplier:  cfg.Retry.Multiplier,
			MaxDelay:    cfg.Retry.MaxDelay,
		},
		SubmitTimeout:       cfg.SubmitTimeout,
		ConfirmTimeout:      cfg.Confirm.Timeout,
		ConfirmPollInterval: cfg.Confirm.PollInterval,
		DryRun:              cfg.DryRun,
	}, metricsService)
}

// NewCycleController checks the account pair and builds the transfer loop
func NewCycleController(
	cfg config.Server,
	client ledger.Client,
	signerService signer.Service,
	executor sweep.Service,
	notifier notify.Notifier,
	clock time2.Clock,
	metricsService *metrics.Service,
) (*cycle.Controller, error) {
	sender := signerService.Address()
	if err := wallet.VerifyAccounts(sender, cfg.ReceiverPubkey); err != nil {
		return nil, errors.Wrap(err, "invalid account configuration")
	}

	return cycle.NewController(client, executor, notifier, clock, cycle.Config{
		Sender:    sender,
		Receiver:  cfg.ReceiverPubkey,
		Threshold: client.Unit().ToBaseUnits(cfg.SolThreshold),
		Interval:  cfg.PollInterval(),
	}, metricsService), nil
}

func keyTypeFor(chain string) keystore.KeyType {
	if chain == config.ChainEVM {
		return keystore.KeyTypeEVM
	}

	return keystore.KeyTypeSolana
}
