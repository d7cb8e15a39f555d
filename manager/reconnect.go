package manager

import (
	"context"
	"fmt"
	"time"

	"github.com/vitwit/walletlink/apperror"
	"github.com/vitwit/walletlink/connectors"
	"github.com/vitwit/walletlink/metrics"
	"github.com/vitwit/walletlink/types"
)

// onLost handles the wallet side ending sess.
func (m *Manager) onLost(sess connectors.Session) {
	m.mu.Lock()
	if m.closed || m.session != sess {
		m.mu.Unlock()
		return
	}

	var last types.ConnectionState
	switch {
	case m.state.Status == types.StatusConnected:
		last = m.state
	case m.switchFrom != nil:
		last = *m.switchFrom
	default:
		m.mu.Unlock()
		return
	}

	m.abortAttempt()
	m.release()
	if err := m.transition(types.Reconnecting(last)); err != nil {
		m.mu.Unlock()
		return
	}
	token, ctx := m.beginAttempt(m.baseCtx)
	m.mu.Unlock()

	m.logger.Warn("wallet session lost", map[string]any{
		"connector": last.Connector.String(),
		"account":   last.Account,
	})
	m.closeSession(sess)
	go m.reconnect(ctx, token, last)
}

// reconnect runs the bounded retry loop for a lost session. Running out of
// attempts is terminal: the manager moves to the error state and does not try
// again on its own.
func (m *Manager) reconnect(ctx context.Context, token string, last types.ConnectionState) {
	lbl := labels(last)
	req := connectors.Request{Silent: true}
	if chain, err := m.registry.Resolve(last.ChainID); err == nil {
		req.Chain = &chain
	}

	var lastErr error
	for attempt := 0; attempt < m.policy.Attempts; attempt++ {
		timer := time.NewTimer(m.policy.backoff(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		m.metrics.IncCounter(metrics.EventReconnectAttempt, lbl)
		m.logger.Info("reconnecting wallet", map[string]any{
			"attempt":   attempt + 1,
			"attempts":  m.policy.Attempts,
			"connector": last.Connector.String(),
		})

		sess, err := m.tryReconnect(ctx, last, req)
		if ctx.Err() != nil {
			if sess != nil {
				m.discard(sess, last.Connector)
			}
			return
		}
		if err != nil {
			lastErr = err
			m.logger.Debug("reconnect attempt failed", map[string]any{"attempt": attempt + 1, "error": err})
			continue
		}

		m.mu.Lock()
		if !m.endAttempt(token) {
			m.mu.Unlock()
			m.discard(sess, last.Connector)
			return
		}
		m.adopt(sess)
		m.mu.Unlock()
		m.saveStore(sess)
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.endAttempt(token) {
		return
	}

	m.metrics.IncCounter(metrics.EventReconnectFailed, lbl)
	msg := fmt.Sprintf("wallet connection lost; reconnect failed after %d attempts", m.policy.Attempts)
	if lastErr != nil {
		msg = fmt.Sprintf("%s: %s", msg, apperror.Classify(lastErr).Message())
	}
	_ = m.transition(types.Errored(apperror.NewNetwork(msg, lastErr)))
}

func (m *Manager) tryReconnect(ctx context.Context, last types.ConnectionState, req connectors.Request) (connectors.Session, error) {
	start := time.Now()
	defer func() {
		m.metrics.ObserveLatency(metrics.OpReconnect, time.Since(start), labels(last))
	}()

	if m.prober != nil {
		if err := m.prober.Probe(ctx, last.ChainID); err != nil {
			return nil, err
		}
	}
	return m.set.Connect(ctx, last.Connector, req)
}
