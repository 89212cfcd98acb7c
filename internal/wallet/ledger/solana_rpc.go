package ledger

import (
	"context"
	"sync"

	"github.com/gagliardetto/solana-go/rpc"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// SolanaRPC wraps one rpc.Client per endpoint and fails over in configuration order
type SolanaRPC struct {
	urls    []string
	clients []*rpc.Client
	mu      sync.Mutex
	current int // index of the endpoint that last answered
}

// NewSolanaRPC creates a failover client for the given endpoints
func NewSolanaRPC(urls []string) (*SolanaRPC, error) {
	if len(urls) == 0 {
		return nil, errors.New("at least one RPC URL is required")
	}

	clients := make([]*rpc.Client, 0, len(urls))
	for _, url := range urls {
		clients = append(clients, rpc.New(url))
	}

	return &SolanaRPC{
		urls:    urls,
		clients: clients,
	}, nil
}

// Do runs fn against the current endpoint and moves on to the next one while fn fails transiently.
// The error of the last attempt is returned when every endpoint failed.
func (c *SolanaRPC) Do(ctx context.Context, fn func(client *rpc.Client) error) error {
	c.mu.Lock()
	start := c.current
	c.mu.Unlock()

	var lastErr error
	for i := 0; i < len(c.clients); i++ {
		idx := (start + i) % len(c.clients)

		err := fn(c.clients[idx])
		if err == nil {
			if idx != start {
				c.mu.Lock()
				c.current = idx
				c.mu.Unlock()
			}
			return nil
		}

		lastErr = err
		if !IsTransient(classifySolanaError(err)) || ctx.Err() != nil {
			return err
		}

		if len(c.clients) > 1 {
			log.Warn().
				Str("url", c.urls[idx]).
				Err(err).
				Msg("Solana RPC call failed, trying next endpoint")
		}
	}

	return lastErr
}

// Close closes all endpoint clients
func (c *SolanaRPC) Close() {
	for idx, client := range c.clients {
		if err := client.Close(); err != nil {
			log.Debug().Str("url", c.urls[idx]).Err(err).Msg("Failed to close Solana RPC client")
		}
	}
}
