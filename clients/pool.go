package clients

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/vitwit/walletlink/apperror"
	"github.com/vitwit/walletlink/logger"
	"github.com/vitwit/walletlink/metrics"
	"github.com/vitwit/walletlink/registry"
	"github.com/vitwit/walletlink/types"
)

// DialFunc opens a client for a chain.
type DialFunc func(ctx context.Context, chain types.ChainDescriptor) (Client, error)

func defaultDial(ctx context.Context, chain types.ChainDescriptor) (Client, error) {
	return NewEVMClient(ctx, chain)
}

// Pool keeps one lazily dialed client per registered chain.
type Pool struct {
	registry *registry.Registry
	dial     DialFunc
	timeout  time.Duration
	logger   logger.Logger
	metrics  metrics.Recorder

	mu      sync.Mutex
	clients map[types.ChainID]Client
}

type PoolOption func(*Pool)

// WithDialer replaces the ethclient dialer.
func WithDialer(d DialFunc) PoolOption {
	return func(p *Pool) {
		p.dial = d
	}
}

// WithProbeTimeout bounds a single Probe call (default: 10s).
func WithProbeTimeout(d time.Duration) PoolOption {
	return func(p *Pool) {
		p.timeout = d
	}
}

func WithPoolLogger(l logger.Logger) PoolOption {
	return func(p *Pool) {
		p.logger = l
	}
}

func WithPoolMetrics(r metrics.Recorder) PoolOption {
	return func(p *Pool) {
		p.metrics = r
	}
}

// NewPool creates a pool over the chains in reg.
func NewPool(reg *registry.Registry, opts ...PoolOption) *Pool {
	p := &Pool{
		registry: reg,
		dial:     defaultDial,
		timeout:  10 * time.Second,
		clients:  make(map[types.ChainID]Client),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = logger.OrNoop(p.logger)
	p.metrics = metrics.OrNoop(p.metrics)
	return p
}

// Get returns the client for id, dialing it on first use.
func (p *Pool) Get(ctx context.Context, id types.ChainID) (Client, error) {
	chain, err := p.registry.Resolve(id)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if c, ok := p.clients[id]; ok {
		return c, nil
	}

	c, err := p.dial(ctx, chain)
	if err != nil {
		return nil, apperror.FromNetwork(fmt.Sprintf("dial %s RPC", chain.Name), err)
	}
	p.clients[id] = c
	return c, nil
}

// Probe checks that the chain's endpoint answers and serves the expected chain id.
func (p *Pool) Probe(ctx context.Context, id types.ChainID) error {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	start := time.Now()
	defer func() {
		p.metrics.ObserveLatency(metrics.OpProbe, time.Since(start), map[string]string{"chain": id.String()})
	}()

	c, err := p.Get(ctx, id)
	if err != nil {
		return err
	}

	got, err := c.ChainID(ctx)
	if err != nil {
		p.evict(id, c)
		p.logger.Warn("rpc probe failed", map[string]any{"chain_id": uint64(id), "error": err})
		return apperror.FromNetwork("probe", err)
	}
	if got != id {
		return apperror.NewNetwork(
			fmt.Sprintf("RPC endpoint for chain %d serves chain %d", id, got), nil)
	}
	return nil
}

// evict drops a client after a failure so the next call re-dials.
func (p *Pool) evict(id types.ChainID, c Client) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if cur, ok := p.clients[id]; ok && cur == c {
		delete(p.clients, id)
		c.Close()
	}
}

// Close closes every dialed client.
func (p *Pool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for id, c := range p.clients {
		c.Close()
		delete(p.clients, id)
	}
}
