package ledger

import (
	"context"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// EVMRPC wraps one ethclient per endpoint, dials lazily and fails over in configuration order
type EVMRPC struct {
	urls    []string
	clients []*ethclient.Client
	mu      sync.Mutex
	current int // index of the endpoint that last answered
}

// NewEVMRPC creates a failover client. Endpoints that cannot be dialed now are retried on use.
func NewEVMRPC(urls []string) (*EVMRPC, error) {
	if len(urls) == 0 {
		return nil, errors.New("at least one RPC URL is required")
	}

	clients := make([]*ethclient.Client, 0, len(urls))
	for _, url := range urls {
		client, err := ethclient.Dial(url)
		if err != nil {
			log.Warn().
				Str("url", url).
				Err(err).
				Msg("Failed to connect to RPC node, will retry on use")
			clients = append(clients, nil)
			continue
		}
		clients = append(clients, client)
	}

	return &EVMRPC{
		urls:    urls,
		clients: clients,
	}, nil
}

// do runs fn against the current endpoint and moves on while fn fails transiently
func (c *EVMRPC) do(ctx context.Context, fn func(client *ethclient.Client) error) error {
	c.mu.Lock()
	start := c.current
	c.mu.Unlock()

	lastErr := errors.New("all RPC clients are unavailable")
	for i := 0; i < len(c.urls); i++ {
		idx := (start + i) % len(c.urls)

		client, err := c.client(idx)
		if err != nil {
			lastErr = err
			continue
		}

		err = fn(client)
		if err == nil {
			if idx != start {
				c.mu.Lock()
				c.current = idx
				c.mu.Unlock()
			}
			return nil
		}

		lastErr = err
		if !IsTransient(classifyEVMError(err)) || ctx.Err() != nil {
			return err
		}

		if len(c.urls) > 1 {
			log.Warn().
				Str("url", c.urls[idx]).
				Err(err).
				Msg("EVM RPC call failed, trying next endpoint")
		}
	}

	return lastErr
}

func (c *EVMRPC) client(idx int) (*ethclient.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.clients[idx] != nil {
		return c.clients[idx], nil
	}

	client, err := ethclient.Dial(c.urls[idx])
	if err != nil {
		return nil, errors.Wrapf(err, "failed to dial %s", c.urls[idx])
	}
	c.clients[idx] = client

	return client, nil
}

// Close closes all client connections
func (c *EVMRPC) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, client := range c.clients {
		if client != nil {
			client.Close()
		}
	}
}

// ChainID returns the chain id reported by the node
func (c *EVMRPC) ChainID(ctx context.Context) (*big.Int, error) {
	var chainID *big.Int
	err := c.do(ctx, func(client *ethclient.Client) error {
		id, err := client.ChainID(ctx)
		chainID = id
		return err
	})
	return chainID, err
}

// BalanceAt returns the balance of an address at block, nil meaning latest
func (c *EVMRPC) BalanceAt(ctx context.Context, address common.Address, block *big.Int) (*big.Int, error) {
	var balance *big.Int
	err := c.do(ctx, func(client *ethclient.Client) error {
		b, err := client.BalanceAt(ctx, address, block)
		balance = b
		return err
	})
	return balance, err
}

// PendingNonceAt returns the pending nonce for the given address
func (c *EVMRPC) PendingNonceAt(ctx context.Context, address common.Address) (uint64, error) {
	var nonce uint64
	err := c.do(ctx, func(client *ethclient.Client) error {
		n, err := client.PendingNonceAt(ctx, address)
		nonce = n
		return err
	})
	return nonce, err
}

// NonceAt returns the mined nonce for the given address at the latest block
func (c *EVMRPC) NonceAt(ctx context.Context, address common.Address) (uint64, error) {
	var nonce uint64
	err := c.do(ctx, func(client *ethclient.Client) error {
		n, err := client.NonceAt(ctx, address, nil)
		nonce = n
		return err
	})
	return nonce, err
}

// SuggestGasTipCap suggests a priority fee (EIP-1559)
func (c *EVMRPC) SuggestGasTipCap(ctx context.Context) (*big.Int, error) {
	var tip *big.Int
	err := c.do(ctx, func(client *ethclient.Client) error {
		t, err := client.SuggestGasTipCap(ctx)
		tip = t
		return err
	})
	return tip, err
}

// HeaderByNumber returns a block header. Negative rpc.BlockNumber values select tags like finalized.
func (c *EVMRPC) HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error) {
	var header *types.Header
	err := c.do(ctx, func(client *ethclient.Client) error {
		h, err := client.HeaderByNumber(ctx, number)
		header = h
		return err
	})
	return header, err
}

// SendTransaction broadcasts a signed transaction
func (c *EVMRPC) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	return c.do(ctx, func(client *ethclient.Client) error {
		return client.SendTransaction(ctx, tx)
	})
}

// TransactionReceipt returns the receipt of a mined transaction or ethereum.NotFound
func (c *EVMRPC) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	var receipt *types.Receipt
	err := c.do(ctx, func(client *ethclient.Client) error {
		r, err := client.TransactionReceipt(ctx, txHash)
		receipt = r
		return err
	})
	return receipt, err
}
