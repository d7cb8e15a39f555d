package walletlink

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/vitwit/walletlink/clients"
	"github.com/vitwit/walletlink/connectors"
	"github.com/vitwit/walletlink/logger"
	"github.com/vitwit/walletlink/metrics"
	"github.com/vitwit/walletlink/store"
)

type options struct {
	logger     logger.Logger
	metrics    metrics.Recorder
	registerer prometheus.Registerer
	store      store.SessionStore
	dialer     clients.DialFunc
	setOpts    []connectors.SetOption
}

type Option func(*options)

// WithLogger replaces the zap logger built from Config.LogLevel.
func WithLogger(l logger.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithMetrics replaces the recorder selected by Config.EnableMetrics.
func WithMetrics(r metrics.Recorder) Option {
	return func(o *options) {
		o.metrics = r
	}
}

// WithRegisterer sets where Prometheus collectors are registered when metrics
// are enabled. Defaults to prometheus.DefaultRegisterer.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) {
		o.registerer = reg
	}
}

// WithStore replaces the store selected by Config.SessionFile.
func WithStore(s store.SessionStore) Option {
	return func(o *options) {
		o.store = s
	}
}

// WithRPCDialer overrides how RPC clients are dialed for probing.
func WithRPCDialer(d clients.DialFunc) Option {
	return func(o *options) {
		o.dialer = d
	}
}

// WithInjectedProvider binds the injected connector to p.
func WithInjectedProvider(p connectors.Provider) Option {
	return func(o *options) {
		o.setOpts = append(o.setOpts, connectors.WithInjectedProvider(p))
	}
}

// WithAnnouncedProviders makes browser extension providers discoverable.
func WithAnnouncedProviders(details ...connectors.ProviderDetail) Option {
	return func(o *options) {
		o.setOpts = append(o.setOpts, connectors.WithAnnouncedProviders(details...))
	}
}

// WithConnector adds c to the connector set, replacing a built-in connector of
// the same kind.
func WithConnector(c connectors.Connector) Option {
	return func(o *options) {
		o.setOpts = append(o.setOpts, connectors.WithConnector(c))
	}
}
