package chain

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/google/uuid"

	"github.com/govmesh/proposal-signer/pkg/logger"
)

const (
	// Default retry configuration for RPC calls.
	RPCDefaultRetryAttempts = 3
	RPCDefaultRetryDelay    = 1000 * time.Millisecond
	RPCDefaultRetryTimeout  = 10 * time.Second

	// Default retry configuration for dialing RPC endpoints.
	RPCDefaultDialRetryAttempts = 3
	RPCDefaultDialRetryDelay    = 1000 * time.Millisecond
	RPCDefaultDialTimeout       = 10 * time.Second
)

// RetryConfig bounds RPC dialing and calls. Every call runs under a deadline:
// either the caller's context deadline or the configured timeout, whichever
// is present.
type RetryConfig struct {
	Attempts     uint
	Delay        time.Duration
	Timeout      time.Duration
	DialAttempts uint
	DialDelay    time.Duration
	DialTimeout  time.Duration
}

func defaultRetryConfig() RetryConfig {
	return RetryConfig{
		Attempts:     RPCDefaultRetryAttempts,
		Delay:        RPCDefaultRetryDelay,
		Timeout:      RPCDefaultRetryTimeout,
		DialAttempts: RPCDefaultDialRetryAttempts,
		DialDelay:    RPCDefaultDialRetryDelay,
		DialTimeout:  RPCDefaultDialTimeout,
	}
}

// Client wraps an ethclient connection to one network with bounded retries
// and per-call timeouts.
type Client struct {
	eth         *ethclient.Client
	network     Network
	retryConfig RetryConfig
	lggr        logger.Logger
}

// ClientOpt mutates a Client during construction.
type ClientOpt func(*Client)

// WithRetryConfig overrides the default retry configuration.
func WithRetryConfig(cfg RetryConfig) ClientOpt {
	return func(c *Client) {
		c.retryConfig = cfg
	}
}

// Dial connects to the network at rpcURL, retrying transient dial failures.
// An empty rpcURL falls back to the network's default public endpoint.
func Dial(ctx context.Context, lggr logger.Logger, network Network, rpcURL string, opts ...ClientOpt) (*Client, error) {
	if rpcURL == "" {
		rpcURL = network.DefaultRPCURL
	}

	c := &Client{
		network:     network,
		retryConfig: defaultRetryConfig(),
		lggr:        lggr,
	}
	for _, opt := range opts {
		opt(c)
	}

	traceID := uuid.New()
	retryCount := 0
	err := retry.Do(func() error {
		dialCtx, cancel := ensureTimeout(ctx, c.retryConfig.DialTimeout)
		defer cancel()

		lggr.Debugf("traceID %q: chain %q: dialing endpoint '%s'", traceID.String(), network.Name, rpcURL)
		eth, err := ethclient.DialContext(dialCtx, rpcURL)
		if err != nil {
			lggr.Warnf("traceID %q: chain %q: dialing failed - retryable error: %s: %v", traceID.String(), network.Name, rpcURL, err)
			return err
		}
		c.eth = eth

		return nil
	},
		retry.Context(ctx),
		retry.Attempts(c.retryConfig.DialAttempts),
		retry.Delay(c.retryConfig.DialDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) { retryCount++ }),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to dial endpoint '%s' for chain %s after retries: %w", rpcURL, network.Name, err)
	}
	if retryCount > 0 {
		lggr.Infof("traceID %q: chain %q: successfully dialed endpoint '%s' after %d retries", traceID.String(), network.Name, rpcURL, retryCount)
	}

	return c, nil
}

// Network returns the network this client is connected to.
func (c *Client) Network() Network {
	return c.network
}

// Close tears down the underlying RPC connection.
func (c *Client) Close() {
	if c.eth != nil {
		c.eth.Close()
	}
}

// CallContract executes a read-only contract call, retrying transient
// failures.
func (c *Client) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	var result []byte
	err := c.withRetry(ctx, "CallContract", func(ct context.Context) error {
		var err error
		result, err = c.eth.CallContract(ct, msg, blockNumber)

		return err
	})

	return result, err
}

// ChainID queries the connected node for its chain id.
func (c *Client) ChainID(ctx context.Context) (*big.Int, error) {
	var id *big.Int
	err := c.withRetry(ctx, "ChainID", func(ct context.Context) error {
		var err error
		id, err = c.eth.ChainID(ct)

		return err
	})

	return id, err
}

func (c *Client) withRetry(ctx context.Context, opName string, op func(context.Context) error) error {
	traceID := uuid.New()
	retryCount := 0

	err := retry.Do(func() error {
		callCtx, cancel := ensureTimeout(ctx, c.retryConfig.Timeout)
		defer cancel()

		if err := op(callCtx); err != nil {
			c.lggr.Warnf("traceID %q: chain %q: op: %q: failed execution - retryable error '%s'", traceID.String(), c.network.Name, opName, err)
			return err
		}

		return nil
	},
		retry.Context(ctx),
		retry.Attempts(c.retryConfig.Attempts),
		retry.Delay(c.retryConfig.Delay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) { retryCount++ }),
	)
	if err != nil {
		return fmt.Errorf("chain %q: op %q failed after retries: %w", c.network.Name, opName, err)
	}
	if retryCount > 0 {
		c.lggr.Infof("traceID %q: chain %q: op: %q: successfully executed after %d retry", traceID.String(), c.network.Name, opName, retryCount)
	}

	return nil
}

// ensureTimeout checks if the parent context has a deadline.
// If it does, it returns a new cancelable context using the parent's deadline.
// If it doesn't, it creates a new context with the specified timeout.
func ensureTimeout(parent context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if _, hasDeadline := parent.Deadline(); hasDeadline {
		return context.WithCancel(parent)
	}

	return context.WithTimeout(parent, timeout)
}
