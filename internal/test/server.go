package test

import (
	"context"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github/chapool/automated-fund-transfer/internal/api"
	"github/chapool/automated-fund-transfer/internal/api/router"
	"github/chapool/automated-fund-transfer/internal/config"
	"github/chapool/automated-fund-transfer/internal/wallet"
)

// TestReceiver is a valid base58 account used as the receiver in test configurations
const TestReceiver = "9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM"

// NewTestConfig returns a validated Solana configuration using a freshly generated sender keypair
func NewTestConfig(t *testing.T) config.Server {
	t.Helper()

	path, _ := WriteSolanaKeypair(t)

	cfg := config.Server{
		SenderKeypair:       path,
		ReceiverPubkey:      TestReceiver,
		RPCProvider:         "http://127.0.0.1:8899",
		SolThreshold:        config.DefaultSolThreshold,
		PollIntervalSeconds: config.DefaultPollIntervalSeconds,
		Chain:               config.ChainSolana,
		SubmitTimeout:       time.Second,
		Retry: config.Retry{
			MaxAttempts: 5,
			BaseDelay:   time.Millisecond,
			Multiplier:  2,
			MaxDelay:    10 * time.Millisecond,
		},
		Confirm: config.Confirm{
			Timeout:      time.Second,
			PollInterval: time.Millisecond,
		},
		ShutdownTimeout: time.Second,
		LogLevel:        "debug",
	}
	require.NoError(t, cfg.Validate())

	return cfg
}

// WithTestServer runs closure against a fully wired server backed by the fake ledger
func WithTestServer(t *testing.T, closure func(s *api.Server, fake *Ledger)) {
	t.Helper()

	fake := NewLedger(wallet.UnitSOL.ToBaseUnits(5))

	s, err := api.InitNewServerWithLedger(NewTestConfig(t), fake)
	require.NoError(t, err)

	router.Init(s)

	t.Cleanup(func() {
		s.Shutdown(context.Background())
	})

	closure(s, fake)
}

// PerformRequest runs a request against the management router of s
func PerformRequest(t *testing.T, s *api.Server, method string, path string, body io.Reader) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, path, body)
	res := httptest.NewRecorder()
	s.Echo.ServeHTTP(res, req)

	return res
}

// RequireStatus fails the test unless res has the wanted status code
func RequireStatus(t *testing.T, res *httptest.ResponseRecorder, want int) {
	t.Helper()

	require.Equal(t, want, res.Result().StatusCode, "body: %s", res.Body.String())
}
