package manager

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vitwit/walletlink/connectors"
	"github.com/vitwit/walletlink/registry"
	"github.com/vitwit/walletlink/store/memory"
	"github.com/vitwit/walletlink/types"
)

type fakeSession struct {
	kind types.ConnectorKind

	mu        sync.Mutex
	account   string
	chainID   types.ChainID
	switchErr error

	// hang makes SwitchChain wait for its context, like a wallet that never answers.
	hang bool

	lost     chan struct{}
	lostOnce sync.Once
	closed   atomic.Int32
}

func newFakeSession(kind types.ConnectorKind, account string, chainID types.ChainID) *fakeSession {
	return &fakeSession{kind: kind, account: account, chainID: chainID, lost: make(chan struct{})}
}

func (s *fakeSession) Account() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.account
}

func (s *fakeSession) ChainID() types.ChainID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.chainID
}

func (s *fakeSession) Kind() types.ConnectorKind { return s.kind }

func (s *fakeSession) SwitchChain(ctx context.Context, chain types.ChainDescriptor) error {
	s.mu.Lock()
	hang := s.hang
	s.mu.Unlock()
	if hang {
		<-ctx.Done()
		return ctx.Err()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.switchErr != nil {
		return s.switchErr
	}
	s.chainID = chain.ChainID
	return nil
}

func (s *fakeSession) Lost() <-chan struct{} { return s.lost }

func (s *fakeSession) Close(context.Context) error {
	s.closed.Add(1)
	return nil
}

func (s *fakeSession) drop() {
	s.lostOnce.Do(func() { close(s.lost) })
}

// notifyingSession also reports chain changes made in the wallet.
type notifyingSession struct {
	*fakeSession
	chains chan types.ChainID
}

func newNotifyingSession(kind types.ConnectorKind, account string, chainID types.ChainID) *notifyingSession {
	return &notifyingSession{fakeSession: newFakeSession(kind, account, chainID), chains: make(chan types.ChainID)}
}

func (s *notifyingSession) ChainChanges() <-chan types.ChainID { return s.chains }

type connectCall struct {
	kind types.ConnectorKind
	req  connectors.Request
}

// fakeConnectors answers Connect with the function set by the test.
type fakeConnectors struct {
	mu      sync.Mutex
	calls   []connectCall
	connect func(ctx context.Context, kind types.ConnectorKind, req connectors.Request) (connectors.Session, error)
}

func (f *fakeConnectors) Connect(ctx context.Context, kind types.ConnectorKind, req connectors.Request) (connectors.Session, error) {
	f.mu.Lock()
	f.calls = append(f.calls, connectCall{kind: kind, req: req})
	fn := f.connect
	f.mu.Unlock()
	return fn(ctx, kind, req)
}

func (f *fakeConnectors) set(fn func(ctx context.Context, kind types.ConnectorKind, req connectors.Request) (connectors.Session, error)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connect = fn
}

func (f *fakeConnectors) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeConnectors) lastCall() connectCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[len(f.calls)-1]
}

// grant returns a connect function that hands out sess.
func grant(sess connectors.Session) func(context.Context, types.ConnectorKind, connectors.Request) (connectors.Session, error) {
	return func(context.Context, types.ConnectorKind, connectors.Request) (connectors.Session, error) {
		return sess, nil
	}
}

func fail(err error) func(context.Context, types.ConnectorKind, connectors.Request) (connectors.Session, error) {
	return func(context.Context, types.ConnectorKind, connectors.Request) (connectors.Session, error) {
		return nil, err
	}
}

// blockUntil returns a connect function that waits for release, ignoring
// cancellation, then hands out sess.
func blockUntil(release <-chan struct{}, sess connectors.Session) func(context.Context, types.ConnectorKind, connectors.Request) (connectors.Session, error) {
	return func(context.Context, types.ConnectorKind, connectors.Request) (connectors.Session, error) {
		<-release
		return sess, nil
	}
}

var fastReconnect = ReconnectPolicy{
	Attempts:       3,
	InitialBackoff: time.Millisecond,
	MaxBackoff:     4 * time.Millisecond,
}

type fixture struct {
	m     *Manager
	conns *fakeConnectors
	store *memory.SessionStore
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	conns := &fakeConnectors{}
	conns.set(fail(context.Canceled))
	st := memory.NewSessionStore()

	opts = append([]Option{WithStore(st), WithReconnectPolicy(fastReconnect)}, opts...)
	m, err := New(registry.Default(nil), conns, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })

	return &fixture{m: m, conns: conns, store: st}
}

func (f *fixture) waitStatus(t *testing.T, status types.ConnectionStatus) {
	t.Helper()
	require.Eventually(t, func() bool {
		return f.m.State().Status == status
	}, 2*time.Second, 2*time.Millisecond, "state never reached %s", status)
}

// recorder collects state changes delivered to a subscriber.
type recorder struct {
	mu      sync.Mutex
	changes []StateChange
}

func (r *recorder) add(c StateChange) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.changes = append(r.changes, c)
}

func (r *recorder) statuses() []types.ConnectionStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]types.ConnectionStatus, len(r.changes))
	for i, c := range r.changes {
		out[i] = c.Current.Status
	}
	return out
}

func subscribe(t *testing.T, m *Manager) *recorder {
	t.Helper()
	r := &recorder{}
	unsubscribe, err := m.Subscribe(r.add)
	require.NoError(t, err)
	t.Cleanup(unsubscribe)
	return r
}
