package test

import (
	"context"
	"sync"

	"github/chapool/automated-fund-transfer/internal/wallet"
)

// Notifier records every outcome it is handed
type Notifier struct {
	mu       sync.Mutex
	outcomes []wallet.Outcome
}

func (n *Notifier) Notify(_ context.Context, outcome wallet.Outcome) {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.outcomes = append(n.outcomes, outcome)
}

// Outcomes returns the recorded outcomes in call order
func (n *Notifier) Outcomes() []wallet.Outcome {
	n.mu.Lock()
	defer n.mu.Unlock()

	return append([]wallet.Outcome(nil), n.outcomes...)
}
