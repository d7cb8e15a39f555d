// Package walletlink wires the chain registry, wallet connectors and the
// connectivity manager into a single client built from a Config.
package walletlink

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/vitwit/walletlink/api"
	"github.com/vitwit/walletlink/apperror"
	"github.com/vitwit/walletlink/clients"
	"github.com/vitwit/walletlink/config"
	"github.com/vitwit/walletlink/connectors"
	"github.com/vitwit/walletlink/logger"
	"github.com/vitwit/walletlink/manager"
	"github.com/vitwit/walletlink/metrics"
	"github.com/vitwit/walletlink/registry"
	"github.com/vitwit/walletlink/store"
	"github.com/vitwit/walletlink/store/file"
	"github.com/vitwit/walletlink/store/memory"
	"github.com/vitwit/walletlink/types"
	"github.com/vitwit/walletlink/utils"
)

// Version information
const Version = "0.1.0"

// Client is the entry point of the library.
type Client struct {
	config   *types.Config
	logger   logger.Logger
	metrics  metrics.Recorder
	registry *registry.Registry
	pool     *clients.Pool
	set      *connectors.Set
	store    store.SessionStore
	manager  *manager.Manager
}

// New builds a Client from cfg. A nil cfg uses config.DefaultConfig.
func New(cfg *types.Config, opts ...Option) (*Client, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := utils.ValidateStruct(cfg); err != nil {
		return nil, apperror.NewValidation(err.Error(), err)
	}

	o := options{registerer: prometheus.DefaultRegisterer}
	for _, opt := range opts {
		opt(&o)
	}

	c := &Client{config: cfg}

	c.logger = o.logger
	if c.logger == nil {
		c.logger = logger.NewZapLogger(cfg.LogLevel)
	}

	c.metrics = o.metrics
	if c.metrics == nil && cfg.EnableMetrics {
		rec, err := metrics.NewPrometheusRecorder(o.registerer)
		if err != nil {
			return nil, fmt.Errorf("failed to register metrics: %w", err)
		}
		c.metrics = rec
	}
	c.metrics = metrics.OrNoop(c.metrics)

	c.registry = registry.Default(cfg.RPCURLs, registry.WithLogger(c.logger.With(map[string]any{"component": "registry"})))

	poolOpts := []clients.PoolOption{
		clients.WithPoolLogger(c.logger.With(map[string]any{"component": "clients"})),
		clients.WithPoolMetrics(c.metrics),
	}
	if o.dialer != nil {
		poolOpts = append(poolOpts, clients.WithDialer(o.dialer))
	}
	c.pool = clients.NewPool(c.registry, poolOpts...)

	setOpts := []connectors.SetOption{
		connectors.WithHandshakeTimeout(cfg.HandshakeTimeout),
		connectors.WithSetLogger(c.logger.With(map[string]any{"component": "connectors"})),
		connectors.WithSetMetrics(c.metrics),
	}
	if cfg.Connectors.PollInterval > 0 {
		setOpts = append(setOpts, connectors.WithPollInterval(cfg.Connectors.PollInterval))
	}
	if cfg.Connectors.SignInApp != "" {
		setOpts = append(setOpts, connectors.WithSignInChallenge(cfg.Connectors.SignInApp))
	}
	setOpts = append(setOpts, o.setOpts...)

	set, err := connectors.NewSet(c.registry, config.ConnectorDescriptors(cfg), setOpts...)
	if err != nil {
		c.pool.Close()
		return nil, err
	}
	c.set = set

	c.store = o.store
	if c.store == nil {
		if cfg.SessionFile != "" {
			c.store = file.NewSessionStore(cfg.SessionFile)
		} else {
			c.store = memory.NewSessionStore()
		}
	}

	mgrOpts := []manager.Option{
		manager.WithStore(c.store),
		manager.WithProber(c.pool),
		manager.WithSwitchTimeout(cfg.HandshakeTimeout),
		manager.WithReconnectPolicy(manager.ReconnectPolicy{
			Attempts:       cfg.Reconnect.Attempts,
			InitialBackoff: cfg.Reconnect.InitialBackoff,
			MaxBackoff:     cfg.Reconnect.MaxBackoff,
		}),
		manager.WithLogger(c.logger.With(map[string]any{"component": "manager"})),
		manager.WithMetrics(c.metrics),
	}
	// Without a configured chain, connect keeps whatever chain the wallet grants.
	if cfg.DefaultChain != 0 {
		mgrOpts = append(mgrOpts, manager.WithPreferredChain(cfg.DefaultChain))
	}

	mgr, err := manager.New(c.registry, c.set, mgrOpts...)
	if err != nil {
		c.set.Close()
		c.pool.Close()
		return nil, err
	}
	c.manager = mgr

	c.logger.Info("walletlink initialized", map[string]any{
		"chains":     c.registry.Len(),
		"connectors": len(c.set.Available()),
		"version":    Version,
	})
	return c, nil
}

func (c *Client) Config() *types.Config { return c.config }

func (c *Client) Registry() *registry.Registry { return c.registry }

func (c *Client) Connectors() *connectors.Set { return c.set }

func (c *Client) Manager() *manager.Manager { return c.manager }

func (c *Client) Logger() logger.Logger { return c.logger }

// Handler returns the REST handler bound to this client.
func (c *Client) Handler(opts ...api.HandlerOption) *api.Handler {
	opts = append([]api.HandlerOption{api.WithHandlerLogger(c.logger.With(map[string]any{"component": "api"}))}, opts...)
	return api.NewHandler(c.manager, c.set, c.registry, opts...)
}

// Probe checks that the RPC endpoint of a chain answers with the expected id.
func (c *Client) Probe(ctx context.Context, id types.ChainID) error {
	return c.pool.Probe(ctx, id)
}

func (c *Client) State() types.ConnectionState {
	return c.manager.State()
}

func (c *Client) Subscribe(fn func(manager.StateChange)) (func(), error) {
	return c.manager.Subscribe(fn)
}

func (c *Client) AutoConnect(ctx context.Context) error {
	return c.manager.AutoConnect(ctx)
}

func (c *Client) Connect(ctx context.Context, kind types.ConnectorKind) error {
	return c.manager.Connect(ctx, kind)
}

func (c *Client) Disconnect(ctx context.Context) error {
	return c.manager.Disconnect(ctx)
}

func (c *Client) SwitchChain(ctx context.Context, id types.ChainID) error {
	return c.manager.SwitchChain(ctx, id)
}

func (c *Client) Dismiss() error {
	return c.manager.Dismiss()
}

// Close stops the manager and releases providers and RPC clients. The stored
// session is kept for the next AutoConnect.
func (c *Client) Close() error {
	err := c.manager.Close()
	c.set.Close()
	c.pool.Close()
	if z, ok := c.logger.(interface{ Sync() error }); ok {
		_ = z.Sync()
	}
	return err
}
