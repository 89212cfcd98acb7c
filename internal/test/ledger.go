package test

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github/chapool/automated-fund-transfer/internal/wallet"
	"github/chapool/automated-fund-transfer/internal/wallet/ledger"
)

// Ledger is a scriptable in-memory ledger.Client
type Ledger struct {
	mu sync.Mutex

	Balance    *big.Int
	BalanceErr error
	Reserve    *big.Int
	ReserveErr error
	SignErr    error

	// SubmitErrs are returned by consecutive Submit calls, later calls succeed
	SubmitErrs []error
	// OnSubmit runs after every Submit call with the 1-based call number
	OnSubmit func(call int)
	// Statuses are returned by consecutive PollStatus calls, the last one repeats.
	// An empty list always reports pending.
	Statuses []ledger.TxStatus
	PollErr  error
	// OnPoll runs before every PollStatus call with the 1-based call number
	OnPoll func(call int)

	Signed      []*wallet.Request
	SubmitCalls int
	PollCalls   int
	Closed      bool
}

var _ ledger.Client = (*Ledger)(nil)

// NewLedger returns a ledger holding balance with no reserve, finalizing on the first poll
func NewLedger(balance *big.Int) *Ledger {
	return &Ledger{
		Balance:  balance,
		Reserve:  big.NewInt(0),
		Statuses: []ledger.TxStatus{{Status: ledger.StatusFinalized}},
	}
}

func (l *Ledger) Unit() wallet.Unit {
	return wallet.UnitSOL
}

func (l *Ledger) GetBalance(_ context.Context, _ string) (*big.Int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.BalanceErr != nil {
		return nil, l.BalanceErr
	}

	return new(big.Int).Set(l.Balance), nil
}

func (l *Ledger) MinimumReserve(_ context.Context) (*big.Int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.ReserveErr != nil {
		return nil, l.ReserveErr
	}

	return new(big.Int).Set(l.Reserve), nil
}

func (l *Ledger) BuildAndSign(_ context.Context, req *wallet.Request) (*ledger.SignedTransaction, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.SignErr != nil {
		return nil, l.SignErr
	}

	l.Signed = append(l.Signed, req)

	return &ledger.SignedTransaction{
		Signature: fmt.Sprintf("sig-%d", len(l.Signed)),
		Raw:       []byte(req.Amount.String()),
	}, nil
}

func (l *Ledger) Submit(_ context.Context, tx *ledger.SignedTransaction) (*ledger.Handle, error) {
	l.mu.Lock()
	l.SubmitCalls++
	call := l.SubmitCalls
	hook := l.OnSubmit
	var err error
	if call <= len(l.SubmitErrs) {
		err = l.SubmitErrs[call-1]
	}
	l.mu.Unlock()

	if hook != nil {
		hook(call)
	}

	if err != nil {
		return nil, err
	}

	return ledger.HandleFor(tx), nil
}

func (l *Ledger) PollStatus(_ context.Context, _ *ledger.Handle) (*ledger.TxStatus, error) {
	l.mu.Lock()
	l.PollCalls++
	call := l.PollCalls
	hook := l.OnPoll
	l.mu.Unlock()

	if hook != nil {
		hook(call)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.PollErr != nil {
		return nil, l.PollErr
	}

	if len(l.Statuses) == 0 {
		return &ledger.TxStatus{Status: ledger.StatusPending}, nil
	}

	idx := call - 1
	if idx >= len(l.Statuses) {
		idx = len(l.Statuses) - 1
	}
	status := l.Statuses[idx]

	return &status, nil
}

func (l *Ledger) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.Closed = true
}
