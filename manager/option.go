package manager

import (
	"time"

	"github.com/vitwit/walletlink/logger"
	"github.com/vitwit/walletlink/metrics"
	"github.com/vitwit/walletlink/store"
	"github.com/vitwit/walletlink/types"
)

// ReconnectPolicy bounds automatic reconnection after a lost session. Attempt
// i (from zero) waits min(InitialBackoff*2^i, MaxBackoff) before it runs.
type ReconnectPolicy struct {
	Attempts       int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// DefaultReconnectPolicy returns three attempts backing off from 1s, capped at 30s.
func DefaultReconnectPolicy() ReconnectPolicy {
	return ReconnectPolicy{
		Attempts:       3,
		InitialBackoff: time.Second,
		MaxBackoff:     30 * time.Second,
	}
}

func (p ReconnectPolicy) backoff(attempt int) time.Duration {
	d := p.InitialBackoff
	for i := 0; i < attempt && d < p.MaxBackoff; i++ {
		d *= 2
	}
	if p.MaxBackoff > 0 && d > p.MaxBackoff {
		d = p.MaxBackoff
	}
	return d
}

type Option func(*Manager)

// WithStore persists the last successful connection for AutoConnect.
func WithStore(s store.SessionStore) Option {
	return func(m *Manager) {
		m.store = s
	}
}

// WithProber checks the chain RPC endpoint before every reconnect attempt.
func WithProber(p Prober) Option {
	return func(m *Manager) {
		m.prober = p
	}
}

// WithReconnectPolicy overrides DefaultReconnectPolicy. Invalid fields keep
// their defaults.
func WithReconnectPolicy(p ReconnectPolicy) Option {
	return func(m *Manager) {
		if p.Attempts > 0 {
			m.policy.Attempts = p.Attempts
		}
		if p.InitialBackoff > 0 {
			m.policy.InitialBackoff = p.InitialBackoff
		}
		if p.MaxBackoff >= m.policy.InitialBackoff {
			m.policy.MaxBackoff = p.MaxBackoff
		}
	}
}

// WithPreferredChain asks the wallet to move to id on user-initiated connects.
// Without it the wallet's current chain is used.
func WithPreferredChain(id types.ChainID) Option {
	return func(m *Manager) {
		m.preferred = id
	}
}

func WithLogger(l logger.Logger) Option {
	return func(m *Manager) {
		m.logger = l
	}
}

func WithMetrics(r metrics.Recorder) Option {
	return func(m *Manager) {
		m.metrics = r
	}
}

// WithSwitchTimeout bounds how long SwitchChain waits for the wallet
// (default: connectors.DefaultHandshakeTimeout).
func WithSwitchTimeout(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.switchTTL = d
		}
	}
}
