package client

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/rpc"
)

// RPC is the JSON-RPC surface the sources build on.
type RPC interface {
	Close()
	CallContext(ctx context.Context, result any, method string, args ...any) error
	BatchCallContext(ctx context.Context, b []rpc.BatchElem) error
}

type rpcConfig struct {
	connectTimeout time.Duration
	dialAttempts   int
	callTimeout    time.Duration
	gethRPCOptions []rpc.ClientOption
}

type RPCOption func(cfg *rpcConfig)

// WithConnectTimeout bounds each dial attempt.
func WithConnectTimeout(d time.Duration) RPCOption {
	return func(cfg *rpcConfig) {
		cfg.connectTimeout = d
	}
}

// WithDialAttempts sets how many times dialing is tried before giving up.
func WithDialAttempts(attempts int) RPCOption {
	return func(cfg *rpcConfig) {
		cfg.dialAttempts = attempts
	}
}

// WithCallTimeout bounds every call that has no earlier deadline.
func WithCallTimeout(d time.Duration) RPCOption {
	return func(cfg *rpcConfig) {
		cfg.callTimeout = d
	}
}

// WithGethRPCOptions passes client options, e.g. JWT authentication, to the geth RPC client.
func WithGethRPCOptions(opts ...rpc.ClientOption) RPCOption {
	return func(cfg *rpcConfig) {
		cfg.gethRPCOptions = append(cfg.gethRPCOptions, opts...)
	}
}

// NewRPC dials addr, retrying with backoff, and returns a BaseRPCClient around it.
func NewRPC(ctx context.Context, lgr log.Logger, addr string, opts ...RPCOption) (*BaseRPCClient, error) {
	cfg := rpcConfig{
		connectTimeout: 10 * time.Second,
		dialAttempts:   5,
		callTimeout:    10 * time.Second,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.dialAttempts < 1 {
		cfg.dialAttempts = 1
	}
	underlying, err := dialRPCClientWithBackoff(ctx, lgr, addr, cfg)
	if err != nil {
		return nil, err
	}
	return &BaseRPCClient{c: underlying, callTimeout: cfg.callTimeout}, nil
}

func dialRPCClientWithBackoff(ctx context.Context, lgr log.Logger, addr string, cfg rpcConfig) (*rpc.Client, error) {
	var lastErr error
	backoff := 250 * time.Millisecond
	for attempt := 1; attempt <= cfg.dialAttempts; attempt++ {
		if !IsURLAvailable(ctx, addr, cfg.connectTimeout) {
			lastErr = fmt.Errorf("address unavailable (%s)", addr)
		} else {
			dialCtx, cancel := context.WithTimeout(ctx, cfg.connectTimeout)
			cl, err := rpc.DialOptions(dialCtx, addr, cfg.gethRPCOptions...)
			cancel()
			if err == nil {
				return cl, nil
			}
			lastErr = err
		}
		if attempt == cfg.dialAttempts {
			break
		}
		lgr.Warn("Failed to dial RPC, retrying", "addr", hostPort(addr), "attempt", attempt, "err", lastErr)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
		backoff = min(2*backoff, 10*time.Second)
	}
	return nil, fmt.Errorf("failed to dial address (%s): %w", addr, lastErr)
}

// BaseRPCClient is a wrapper around a concrete *rpc.Client that applies a default
// call timeout and surfaces JSON-RPC error data in error messages.
type BaseRPCClient struct {
	c           *rpc.Client
	callTimeout time.Duration
}

func NewBaseRPCClient(c *rpc.Client) *BaseRPCClient {
	return &BaseRPCClient{c: c, callTimeout: 10 * time.Second}
}

func (b *BaseRPCClient) Close() {
	b.c.Close()
}

func (b *BaseRPCClient) CallContext(ctx context.Context, result any, method string, args ...any) error {
	cCtx, cancel := context.WithTimeout(ctx, b.callTimeout)
	defer cancel()
	return wrapErrorData(b.c.CallContext(cCtx, result, method, args...))
}

func (b *BaseRPCClient) BatchCallContext(ctx context.Context, batch []rpc.BatchElem) error {
	cCtx, cancel := context.WithTimeout(ctx, b.callTimeout)
	defer cancel()
	return wrapErrorData(b.c.BatchCallContext(cCtx, batch))
}

// wrapErrorData appends the data field of a JSON-RPC error, e.g. revert data, to its message.
func wrapErrorData(err error) error {
	var de rpc.DataError
	if errors.As(err, &de) && de.ErrorData() != nil {
		return fmt.Errorf("%w: %v", err, de.ErrorData())
	}
	return err
}
