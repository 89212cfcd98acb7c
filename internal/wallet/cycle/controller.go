// Package cycle runs the observe, decide, act, notify loop.
package cycle

import (
	"context"
	"math/big"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github/chapool/automated-fund-transfer/internal/notify"
	"github/chapool/automated-fund-transfer/internal/util"
	"github/chapool/automated-fund-transfer/internal/wallet"
	"github/chapool/automated-fund-transfer/internal/wallet/ledger"
	"github/chapool/automated-fund-transfer/internal/wallet/policy"
	"github/chapool/automated-fund-transfer/internal/wallet/sweep"
)

// notifyTimeout bounds delivery of one outcome, also when the cycle was cancelled
const notifyTimeout = 15 * time.Second

// Config is fixed for the lifetime of the controller
type Config struct {
	Sender    string
	Receiver  string
	Threshold *big.Int // in the ledger's smallest unit
	Interval  time.Duration
}

// Recorder receives cycle measurements
type Recorder interface {
	Cycle(outcome wallet.Outcome)
	SenderBalance(balance *big.Int)
}

// State is the process-wide loop state. Nothing in it survives a restart and
// LastOutcome is informational only, every cycle decides from a fresh balance read.
type State struct {
	Interval    time.Duration
	Cycles      int
	LastOutcome *wallet.Outcome
	Running     bool
}

// Controller runs one cycle at a time until its context is cancelled
type Controller struct {
	ledger   ledger.Client
	executor sweep.Service
	notifier notify.Notifier
	clock    util.Clock
	config   Config
	recorder Recorder

	mu    sync.Mutex
	state State
}

// NewController creates a new cycle controller
func NewController(
	client ledger.Client,
	executor sweep.Service,
	notifier notify.Notifier,
	clock util.Clock,
	config Config,
	recorder Recorder,
) *Controller {
	if recorder == nil {
		recorder = nopRecorder{}
	}

	return &Controller{
		ledger:   client,
		executor: executor,
		notifier: notifier,
		clock:    clock,
		config:   config,
		recorder: recorder,
		state:    State{Interval: config.Interval},
	}
}

// Run observes right away and then once per interval. It returns nil once ctx is cancelled;
// a cycle in progress at that point still completes and reports its outcome.
func (c *Controller) Run(ctx context.Context) error {
	if c.config.Interval <= 0 {
		return errors.New("cycle interval must be positive")
	}

	c.setRunning(true)
	defer c.setRunning(false)

	for {
		c.RunOnce(ctx)

		if err := util.SleepWithContext(ctx, c.clock, c.config.Interval); err != nil {
			util.LogFromContext(ctx).Info().Msg("Cycle controller stopped")
			return nil
		}
	}
}

// RunOnce executes a single cycle and notifies its outcome exactly once
func (c *Controller) RunOnce(ctx context.Context) wallet.Outcome {
	ctx = util.WithLogger(ctx, "cycle_id", uuid.NewString())
	logger := util.LogFromContext(ctx)

	started := c.clock.Now()
	outcome := c.cycle(ctx)

	logger.Debug().
		Str("outcome", outcome.String()).
		Dur("duration", c.clock.Now().Sub(started)).
		Msg("Cycle completed")

	// delivery must not be cut short by the shutdown that may have ended the cycle
	notifyCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
	c.notifier.Notify(notifyCtx, outcome)
	cancel()

	c.recorder.Cycle(outcome)

	c.mu.Lock()
	c.state.Cycles++
	c.state.LastOutcome = &outcome
	c.mu.Unlock()

	return outcome
}

// State returns a snapshot of the loop state
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.state
}

func (c *Controller) cycle(ctx context.Context) wallet.Outcome {
	logger := util.LogFromContext(ctx)

	balance, err := c.ledger.GetBalance(ctx, c.config.Sender)
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to get balance, will retry next cycle")
		return wallet.Failed(wallet.StageObserve, err)
	}
	c.recorder.SenderBalance(balance)

	unit := c.ledger.Unit()
	logger.Info().
		Str("balance", balance.String()).
		Str("balance_whole", unit.FromBaseUnits(balance).String()).
		Str("threshold", c.config.Threshold.String()).
		Msg("Balance check")

	if balance.Cmp(c.config.Threshold) <= 0 {
		return wallet.Skipped(wallet.ReasonBelowThreshold).WithBalance(balance)
	}

	reserve, err := c.ledger.MinimumReserve(ctx)
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to get minimum reserve, will retry next cycle")
		return wallet.Failed(wallet.StageObserve, err).WithBalance(balance)
	}

	action := policy.Decide(balance, c.config.Threshold, reserve)
	if !action.IsTransfer() {
		logger.Info().Str("reserve", reserve.String()).Msg("Excess does not cover the reserve")
		return wallet.Skipped(wallet.ReasonBelowThreshold).WithBalance(balance)
	}

	logger.Info().
		Str("amount", action.Amount.String()).
		Str("amount_whole", unit.FromBaseUnits(action.Amount).String()).
		Msg("Excess detected, preparing transfer")

	req := &wallet.Request{
		Sender:   c.config.Sender,
		Receiver: c.config.Receiver,
		Amount:   action.Amount,
	}

	return c.executor.Execute(ctx, req).WithBalance(balance)
}

func (c *Controller) setRunning(running bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.state.Running = running
}

type nopRecorder struct{}

func (nopRecorder) Cycle(wallet.Outcome)  {}
func (nopRecorder) SenderBalance(*big.Int) {}
