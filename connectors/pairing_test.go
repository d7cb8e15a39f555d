package connectors

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitwit/walletlink/apperror"
	"github.com/vitwit/walletlink/types"
)

// fakeRelay plays the wallet side of the pairing protocol.
type fakeRelay struct {
	account  string
	chainID  types.ChainID
	reject   bool
	requests chan relayMessage
	hangup   chan struct{}
	received chan relayMessage

	// pushChain makes the wallet switch chains on its own.
	pushChain chan types.ChainID
}

func newFakeRelay() *fakeRelay {
	return &fakeRelay{
		account:   "0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed",
		chainID:   types.ChainPolygon,
		requests:  make(chan relayMessage, 1),
		hangup:    make(chan struct{}),
		received:  make(chan relayMessage, 8),
		pushChain: make(chan types.ChainID),
	}
}

func (f *fakeRelay) start(t *testing.T) string {
	t.Helper()
	upgrader := websocket.Upgrader{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("projectId") != "demo-project" {
			http.Error(w, "unknown project", http.StatusUnauthorized)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		var pair relayMessage
		if err := conn.ReadJSON(&pair); err != nil {
			return
		}
		f.requests <- pair

		if f.reject {
			_ = conn.WriteJSON(relayMessage{Type: msgSessionReject, Reason: "user declined"})
			return
		}
		chainID := f.chainID
		if pair.ChainID != 0 {
			chainID = pair.ChainID
		}
		_ = conn.WriteJSON(relayMessage{Type: msgSessionApprove, Account: f.account, ChainID: chainID})

		msgs := make(chan relayMessage)
		go func() {
			defer close(msgs)
			for {
				var m relayMessage
				if err := conn.ReadJSON(&m); err != nil {
					return
				}
				msgs <- m
			}
		}()

		for {
			select {
			case <-f.hangup:
				_ = conn.WriteJSON(relayMessage{Type: msgSessionDelete})
				return
			case id := <-f.pushChain:
				_ = conn.WriteJSON(relayMessage{Type: msgChainChanged, ChainID: id})
			case m, ok := <-msgs:
				if !ok {
					return
				}
				f.received <- m
				if m.Type == msgSwitchChain {
					if m.ChainID == types.ChainSepolia {
						_ = conn.WriteJSON(relayMessage{Type: msgSessionReject})
					} else {
						_ = conn.WriteJSON(relayMessage{Type: msgChainChanged, ChainID: m.ChainID})
					}
				}
			}
		}
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func pairingSet(t *testing.T, relayURL string) *Set {
	t.Helper()
	return newTestSet(t, []types.ConnectorDescriptor{{
		Kind: types.ConnectorRemotePairing,
		Options: map[string]string{
			types.OptionProjectID: "demo-project",
			types.OptionRelayURL:  relayURL,
		},
	}})
}

func TestPairingApprove(t *testing.T) {
	relay := newFakeRelay()
	set := pairingSet(t, relay.start(t))

	sess, err := set.Connect(context.Background(), types.ConnectorRemotePairing, Request{})
	require.NoError(t, err)
	defer mustClose(t, sess)

	pair := <-relay.requests
	assert.Equal(t, msgPairRequest, pair.Type)
	assert.NotEmpty(t, pair.ID)
	require.NotNil(t, pair.Metadata)
	assert.Equal(t, "walletlink", pair.Metadata.Name)

	assert.Equal(t, "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed", sess.Account())
	assert.Equal(t, types.ChainPolygon, sess.ChainID())
	assert.Equal(t, types.ConnectorRemotePairing, sess.Kind())
}

func TestPairingReject(t *testing.T) {
	relay := newFakeRelay()
	relay.reject = true
	set := pairingSet(t, relay.start(t))

	_, err := set.Connect(context.Background(), types.ConnectorRemotePairing, Request{})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperror.ErrAuth)
	assert.Contains(t, err.Error(), "user declined")
}

func TestPairingUnreachableRelayIsAuthError(t *testing.T) {
	set := pairingSet(t, "ws://127.0.0.1:1")

	_, err := set.Connect(context.Background(), types.ConnectorRemotePairing, Request{})
	assert.ErrorIs(t, err, apperror.ErrAuth)
}

func TestPairingSwitchChain(t *testing.T) {
	relay := newFakeRelay()
	set := pairingSet(t, relay.start(t))

	sess, err := set.Connect(context.Background(), types.ConnectorRemotePairing, Request{})
	require.NoError(t, err)
	defer mustClose(t, sess)

	base, err := set.Registry().Resolve(types.ChainBase)
	require.NoError(t, err)
	require.NoError(t, sess.SwitchChain(context.Background(), base))
	assert.Equal(t, types.ChainBase, sess.ChainID())

	sepolia, err := set.Registry().Resolve(types.ChainSepolia)
	require.NoError(t, err)
	err = sess.SwitchChain(context.Background(), sepolia)
	assert.ErrorIs(t, err, apperror.ErrAuth)
	assert.Equal(t, types.ChainBase, sess.ChainID(), "rejected switch keeps the chain")
}

func TestPairingReportsWalletChainChange(t *testing.T) {
	relay := newFakeRelay()
	set := pairingSet(t, relay.start(t))

	sess, err := set.Connect(context.Background(), types.ConnectorRemotePairing, Request{})
	require.NoError(t, err)
	defer mustClose(t, sess)

	cn, ok := sess.(ChainNotifier)
	require.True(t, ok)

	relay.pushChain <- types.ChainEthereum
	select {
	case id := <-cn.ChainChanges():
		assert.Equal(t, types.ChainEthereum, id)
	case <-time.After(2 * time.Second):
		t.Fatal("chain_changed from the wallet was not reported")
	}
	assert.Equal(t, types.ChainEthereum, sess.ChainID())
}

func TestPairingWalletHangupIsLost(t *testing.T) {
	relay := newFakeRelay()
	set := pairingSet(t, relay.start(t))

	sess, err := set.Connect(context.Background(), types.ConnectorRemotePairing, Request{})
	require.NoError(t, err)
	defer mustClose(t, sess)

	close(relay.hangup)
	select {
	case <-sess.Lost():
	case <-time.After(2 * time.Second):
		t.Fatal("session_delete from the wallet was not reported")
	}
}

func TestPairingCloseSendsSessionDelete(t *testing.T) {
	relay := newFakeRelay()
	set := pairingSet(t, relay.start(t))

	sess, err := set.Connect(context.Background(), types.ConnectorRemotePairing, Request{})
	require.NoError(t, err)
	require.NoError(t, sess.Close(context.Background()))

	select {
	case m := <-relay.received:
		assert.Equal(t, msgSessionDelete, m.Type)
	case <-time.After(2 * time.Second):
		t.Fatal("relay did not receive session_delete")
	}

	select {
	case <-sess.Lost():
		t.Fatal("closing our own session is not a loss")
	case <-time.After(50 * time.Millisecond):
	}
}
