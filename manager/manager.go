// Package manager implements the Connectivity Manager: the single owner of
// the wallet ConnectionState.
//
// All transitions go through one mutex and are checked against the state
// machine in fsm.go. At most one attempt (connect, reconnect or chain switch)
// is in flight; a new connect while one runs is rejected, not queued. Each
// attempt carries a token, and a result arriving after its token was
// superseded is discarded and its session closed.
package manager

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vitwit/walletlink/apperror"
	"github.com/vitwit/walletlink/connectors"
	"github.com/vitwit/walletlink/logger"
	"github.com/vitwit/walletlink/metrics"
	"github.com/vitwit/walletlink/registry"
	"github.com/vitwit/walletlink/store"
	"github.com/vitwit/walletlink/types"
)

// Connectors establishes sessions. *connectors.Set implements it.
type Connectors interface {
	Connect(ctx context.Context, kind types.ConnectorKind, req connectors.Request) (connectors.Session, error)
}

// Prober checks a chain's RPC endpoint. *clients.Pool implements it.
type Prober interface {
	Probe(ctx context.Context, id types.ChainID) error
}

const closeTimeout = 5 * time.Second

type Manager struct {
	registry  *registry.Registry
	set       Connectors
	store     store.SessionStore
	prober    Prober
	policy    ReconnectPolicy
	preferred types.ChainID
	switchTTL time.Duration
	logger    logger.Logger
	metrics   metrics.Recorder
	notifier  *notifier

	baseCtx    context.Context
	baseCancel context.CancelFunc

	mu      sync.Mutex
	state   types.ConnectionState
	session connectors.Session
	unwatch func()
	closed  bool

	// in-flight attempt
	attempt    string
	cancel     context.CancelFunc
	switchFrom *types.ConnectionState
}

// New returns a manager in the disconnected state.
func New(reg *registry.Registry, set Connectors, opts ...Option) (*Manager, error) {
	if reg == nil || set == nil {
		return nil, apperror.NewValidation("manager requires a chain registry and a connector set", nil)
	}

	m := &Manager{
		registry:  reg,
		set:       set,
		policy:    DefaultReconnectPolicy(),
		switchTTL: connectors.DefaultHandshakeTimeout,
		state:     types.Disconnected(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = logger.OrNoop(m.logger)
	m.metrics = metrics.OrNoop(m.metrics)

	if m.preferred != 0 && !reg.Contains(m.preferred) {
		return nil, apperror.NewNotFound(fmt.Sprintf("preferred chain %d is not supported", m.preferred), nil)
	}

	m.notifier = newNotifier(m.logger)
	m.baseCtx, m.baseCancel = context.WithCancel(context.Background())
	return m, nil
}

// State returns a snapshot of the connection state.
func (m *Manager) State() types.ConnectionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Subscribe registers fn for every subsequent transition. Changes are delivered
// in transition order on a dispatcher goroutine; fn must not block for long.
func (m *Manager) Subscribe(fn func(StateChange)) (unsubscribe func(), err error) {
	if fn == nil {
		return nil, apperror.NewValidation("subscriber must not be nil", nil)
	}
	return m.notifier.subscribe(fn)
}

// transition moves to next. Callers hold m.mu.
func (m *Manager) transition(next types.ConnectionState) error {
	prev := m.state
	if err := validateTransition(prev.Status, next.Status); err != nil {
		m.logger.Error("rejected state transition", map[string]any{
			"from": string(prev.Status), "to": string(next.Status),
		})
		return err
	}
	m.state = next

	fields := map[string]any{
		"from":      string(prev.Status),
		"to":        string(next.Status),
		"connector": next.Connector.String(),
	}
	if next.ChainID != 0 {
		fields["chain_id"] = uint64(next.ChainID)
	}
	if next.Err != nil {
		fields["error"] = next.Err.Error()
	}
	m.logger.Info("connection state changed", fields)
	m.metrics.IncCounter(metrics.EventTransition, labels(next))

	m.notifier.publish(StateChange{Previous: prev, Current: next, At: time.Now()})
	return nil
}

func labels(s types.ConnectionState) map[string]string {
	l := map[string]string{"connector": s.Connector.String()}
	if s.ChainID != 0 {
		l["chain"] = s.ChainID.String()
	}
	return l
}

// beginAttempt registers a new in-flight attempt. Callers hold m.mu.
func (m *Manager) beginAttempt(parent context.Context) (string, context.Context) {
	ctx, cancel := context.WithCancel(parent)
	m.attempt = uuid.NewString()
	m.cancel = cancel
	return m.attempt, ctx
}

// endAttempt clears the in-flight attempt if token still owns it. Callers hold
// m.mu.
func (m *Manager) endAttempt(token string) bool {
	if token == "" || m.attempt != token {
		return false
	}
	m.cancel()
	m.attempt = ""
	m.cancel = nil
	m.switchFrom = nil
	return true
}

// abortAttempt cancels whatever attempt is in flight. Callers hold m.mu.
func (m *Manager) abortAttempt() {
	if m.cancel != nil {
		m.cancel()
	}
	m.attempt = ""
	m.cancel = nil
	m.switchFrom = nil
}

// Connect establishes a session through the connector of the given kind and
// waits for the outcome.
func (m *Manager) Connect(ctx context.Context, kind types.ConnectorKind) error {
	return <-m.ConnectAsync(ctx, kind)
}

// ConnectAsync starts a connect and returns a channel that receives its
// outcome: nil on success, otherwise an *apperror.Error. The busy check runs
// before ConnectAsync returns.
func (m *Manager) ConnectAsync(ctx context.Context, kind types.ConnectorKind) <-chan error {
	out := make(chan error, 1)

	req := connectors.Request{}
	if m.preferred != 0 {
		chain, err := m.registry.Resolve(m.preferred)
		if err != nil {
			out <- err
			return out
		}
		req.Chain = &chain
	}

	token, actx, err := m.startConnect(ctx, kind)
	if err != nil {
		out <- err
		return out
	}

	go func() {
		start := time.Now()
		sess, err := m.set.Connect(actx, kind, req)
		m.metrics.ObserveLatency(metrics.OpConnect, time.Since(start), map[string]string{"connector": kind.String()})
		out <- m.finishConnect(token, kind, sess, err, false)
	}()
	return out
}

// startConnect moves to connecting, rejecting the request when an attempt is
// already running or a session is live.
func (m *Manager) startConnect(ctx context.Context, kind types.ConnectorKind) (string, context.Context, *apperror.Error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch {
	case m.closed:
		return "", nil, apperror.NewValidation("connectivity manager is closed", nil)
	case m.state.IsBusy():
		return "", nil, apperror.NewValidation("connection already in progress", nil)
	case m.state.Status == types.StatusConnected:
		return "", nil, apperror.NewValidation("already connected", nil)
	case m.state.Status == types.StatusError:
		if err := m.transition(types.Disconnected()); err != nil {
			return "", nil, apperror.Classify(err)
		}
	}

	if err := m.transition(types.Connecting(kind)); err != nil {
		return "", nil, apperror.Classify(err)
	}
	token, actx := m.beginAttempt(ctx)
	return token, actx, nil
}

// finishConnect applies the outcome of a connect or auto-connect attempt.
// Silent attempts fall back to disconnected instead of the error state.
func (m *Manager) finishConnect(token string, kind types.ConnectorKind, sess connectors.Session, err error, silent bool) error {
	m.mu.Lock()

	if !m.endAttempt(token) {
		m.mu.Unlock()
		m.discard(sess, kind)
		return apperror.NewAuth("connection attempt was cancelled", nil)
	}

	lbl := map[string]string{"connector": kind.String()}
	if err != nil {
		m.metrics.IncCounter(metrics.EventConnectFailure, lbl)
		ae := apperror.Classify(err)
		if ae.Kind() != apperror.KindAuth {
			ae = apperror.NewAuth(ae.Message(), err)
		}

		if silent {
			_ = m.transition(types.Disconnected())
			m.mu.Unlock()
			m.logger.Debug("auto-connect failed", map[string]any{"connector": kind.String(), "error": ae.Error()})
			m.clearStore()
			return nil
		}

		_ = m.transition(types.Errored(ae))
		m.mu.Unlock()
		return ae
	}

	m.metrics.IncCounter(metrics.EventConnectSuccess, lbl)
	m.adopt(sess)
	m.mu.Unlock()

	m.saveStore(sess)
	return nil
}

// adopt makes sess the live session and moves to connected. Callers hold m.mu.
func (m *Manager) adopt(sess connectors.Session) {
	m.session = sess
	_ = m.transition(types.Connected(sess.Account(), sess.ChainID(), sess.Kind()))

	stop := make(chan struct{})
	var once sync.Once
	m.unwatch = func() { once.Do(func() { close(stop) }) }

	var chains <-chan types.ChainID
	if cn, ok := sess.(connectors.ChainNotifier); ok {
		chains = cn.ChainChanges()
	}

	go func() {
		for {
			select {
			case <-sess.Lost():
				m.onLost(sess)
				return
			case id := <-chains:
				m.onChainChanged(sess, id)
			case <-stop:
				return
			}
		}
	}()
}

// onChainChanged follows a chain switch made in the wallet itself. Changes that
// arrive while the manager drives a switch of its own are left to that switch.
func (m *Manager) onChainChanged(sess connectors.Session, id types.ChainID) {
	m.mu.Lock()
	if m.closed || m.session != sess || m.state.Status != types.StatusConnected || m.state.ChainID == id {
		m.mu.Unlock()
		return
	}
	if !m.registry.Contains(id) {
		m.mu.Unlock()
		m.logger.Warn("wallet moved to an unsupported chain", map[string]any{
			"connector": sess.Kind().String(),
			"chain_id":  uint64(id),
		})
		return
	}
	err := m.transition(types.Connected(m.state.Account, id, m.state.Connector))
	m.mu.Unlock()
	if err == nil {
		m.saveStore(sess)
	}
}

// release detaches the live session without closing it. Callers hold m.mu.
func (m *Manager) release() connectors.Session {
	sess := m.session
	m.session = nil
	if m.unwatch != nil {
		m.unwatch()
		m.unwatch = nil
	}
	return sess
}

// discard closes a session produced by a superseded attempt.
func (m *Manager) discard(sess connectors.Session, kind types.ConnectorKind) {
	m.metrics.IncCounter(metrics.EventStaleResult, map[string]string{"connector": kind.String()})
	if sess == nil {
		return
	}
	m.logger.Debug("discarding session from superseded attempt", map[string]any{"connector": kind.String()})
	m.closeSession(sess)
}

func (m *Manager) closeSession(sess connectors.Session) {
	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()
	if err := sess.Close(ctx); err != nil {
		m.logger.Warn("failed to close wallet session", map[string]any{"connector": sess.Kind().String(), "error": err})
	}
}

// AutoConnect restores the stored session without prompting the user. A
// missing or failing session leaves the manager disconnected and is not
// reported as an error.
func (m *Manager) AutoConnect(ctx context.Context) error {
	if m.store == nil {
		return nil
	}

	stored, err := m.store.Load(ctx)
	if err != nil {
		m.logger.Warn("failed to load stored session", map[string]any{"error": err})
		return nil
	}
	if stored == nil {
		return nil
	}

	chain, err := m.registry.Resolve(stored.ChainID)
	if err != nil {
		m.logger.Debug("stored session is on an unsupported chain", map[string]any{"chain_id": uint64(stored.ChainID)})
		m.clearStore()
		return nil
	}

	token, actx, aerr := m.startConnect(ctx, stored.Connector)
	if aerr != nil {
		return aerr
	}

	sess, err := m.set.Connect(actx, stored.Connector, connectors.Request{Chain: &chain, Silent: true})
	if err := m.finishConnect(token, stored.Connector, sess, err, true); err != nil {
		// superseded by a disconnect while restoring
		m.logger.Debug("auto-connect superseded", map[string]any{"error": err.Error()})
	}
	return nil
}

// Disconnect ends the live session, or aborts the attempt in flight, and moves
// to disconnected. The stored session is cleared.
func (m *Manager) Disconnect(ctx context.Context) error {
	m.mu.Lock()
	if m.state.Status == types.StatusDisconnected {
		m.mu.Unlock()
		return nil
	}

	m.abortAttempt()
	sess := m.release()
	_ = m.transition(types.Disconnected())
	m.mu.Unlock()

	if sess != nil {
		if err := sess.Close(ctx); err != nil {
			m.logger.Warn("failed to close wallet session", map[string]any{"connector": sess.Kind().String(), "error": err})
		}
	}
	m.clearStore()
	return nil
}

// Dismiss acknowledges the error state and moves to disconnected. It does
// nothing in any other state.
func (m *Manager) Dismiss() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state.Status != types.StatusError {
		return nil
	}
	return m.transition(types.Disconnected())
}

// SwitchChain asks the live session to move to chain id. A failed switch
// returns to the previous connected state; an unknown id leaves the state
// untouched.
func (m *Manager) SwitchChain(ctx context.Context, id types.ChainID) error {
	m.mu.Lock()
	switch {
	case m.state.IsBusy():
		m.mu.Unlock()
		return apperror.NewValidation("connection already in progress", nil)
	case m.state.Status != types.StatusConnected || m.session == nil:
		m.mu.Unlock()
		return apperror.NewValidation("no wallet is connected", nil)
	}

	chain, err := m.registry.Resolve(id)
	if err != nil {
		m.mu.Unlock()
		return apperror.Classify(err)
	}
	if id == m.state.ChainID {
		m.mu.Unlock()
		return nil
	}

	prev := m.state
	sess := m.session
	switching := types.Connecting(prev.Connector)
	switching.Account = prev.Account
	switching.ChainID = prev.ChainID
	if err := m.transition(switching); err != nil {
		m.mu.Unlock()
		return apperror.Classify(err)
	}
	token, actx := m.beginAttempt(ctx)
	m.switchFrom = &prev
	m.mu.Unlock()

	sctx, cancel := context.WithTimeout(actx, m.switchTTL)
	err = sess.SwitchChain(sctx, chain)
	if err != nil && actx.Err() == nil && errors.Is(sctx.Err(), context.DeadlineExceeded) {
		err = apperror.NewNetwork(fmt.Sprintf("wallet did not answer the chain switch within %s", m.switchTTL), err)
	}
	cancel()

	m.mu.Lock()
	if !m.endAttempt(token) {
		m.mu.Unlock()
		return apperror.NewAuth("chain switch was cancelled", err)
	}

	lbl := map[string]string{"connector": prev.Connector.String(), "chain": id.String()}
	if err != nil {
		m.metrics.IncCounter(metrics.EventSwitchFailure, lbl)
		_ = m.transition(prev)
		m.mu.Unlock()
		return apperror.Classify(err)
	}

	m.metrics.IncCounter(metrics.EventSwitchChain, lbl)
	_ = m.transition(types.Connected(prev.Account, id, prev.Connector))
	m.mu.Unlock()

	m.saveStore(sess)
	return nil
}

// Close aborts any attempt, closes the live session and stops notifications.
// The stored session is kept so the next process can auto-connect.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.abortAttempt()
	sess := m.release()
	if m.state.Status != types.StatusDisconnected {
		_ = m.transition(types.Disconnected())
	}
	m.baseCancel()
	m.mu.Unlock()

	if sess != nil {
		m.closeSession(sess)
	}
	m.notifier.close()
	return nil
}

func (m *Manager) saveStore(sess connectors.Session) {
	if m.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()

	err := m.store.Save(ctx, types.StoredSession{
		Connector:   sess.Kind(),
		Account:     sess.Account(),
		ChainID:     sess.ChainID(),
		ConnectedAt: time.Now().UTC(),
	})
	if err != nil {
		m.logger.Warn("failed to persist session", map[string]any{"error": err})
	}
}

func (m *Manager) clearStore() {
	if m.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()
	if err := m.store.Clear(ctx); err != nil {
		m.logger.Warn("failed to clear stored session", map[string]any{"error": err})
	}
}
