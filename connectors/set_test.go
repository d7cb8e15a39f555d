package connectors

import (
	"context"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitwit/walletlink/apperror"
	"github.com/vitwit/walletlink/logger"
	"github.com/vitwit/walletlink/registry"
	"github.com/vitwit/walletlink/types"
)

var (
	injectedDesc  = types.ConnectorDescriptor{Kind: types.ConnectorInjected}
	extensionDesc = types.ConnectorDescriptor{Kind: types.ConnectorBrowserExtension}
	pairingDesc   = types.ConnectorDescriptor{
		Kind:    types.ConnectorRemotePairing,
		Options: map[string]string{types.OptionProjectID: "demo-project"},
	}
)

func newTestSet(t *testing.T, descriptors []types.ConnectorDescriptor, opts ...SetOption) *Set {
	t.Helper()
	opts = append([]SetOption{WithPollInterval(0)}, opts...)
	set, err := NewSet(registry.Default(nil), descriptors, opts...)
	require.NoError(t, err)
	t.Cleanup(set.Close)
	return set
}

func TestAvailablePriorityOrder(t *testing.T) {
	set := newTestSet(t, []types.ConnectorDescriptor{pairingDesc, injectedDesc, extensionDesc})

	got := set.Available()
	require.Len(t, got, 3)
	assert.Equal(t, types.ConnectorBrowserExtension, got[0].Kind)
	assert.Equal(t, types.ConnectorInjected, got[1].Kind)
	assert.Equal(t, types.ConnectorRemotePairing, got[2].Kind)

	assert.False(t, got[0].Ready, "no extension announced")
	assert.False(t, got[1].Ready, "no provider injected")
	assert.True(t, got[2].Ready)
}

func TestRemotePairingRequiresProjectID(t *testing.T) {
	_, err := NewSet(registry.Default(nil), []types.ConnectorDescriptor{
		{Kind: types.ConnectorRemotePairing},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperror.ErrValidation)
	assert.Contains(t, err.Error(), "projectId")
}

func TestNewSetRejectsBadDescriptors(t *testing.T) {
	_, err := NewSet(registry.Default(nil), []types.ConnectorDescriptor{injectedDesc, injectedDesc})
	assert.ErrorIs(t, err, apperror.ErrValidation)

	_, err = NewSet(registry.Default(nil), []types.ConnectorDescriptor{{Kind: "ledger"}})
	assert.ErrorIs(t, err, apperror.ErrValidation)

	_, err = NewSet(nil, nil)
	assert.ErrorIs(t, err, apperror.ErrValidation)
}

func TestConnectInjectedGrantsAccount(t *testing.T) {
	w := newFakeWallet(t, 137)
	set := newTestSet(t, []types.ConnectorDescriptor{injectedDesc}, WithInjectedProvider(serve(t, w)))

	sess, err := set.Connect(context.Background(), types.ConnectorInjected, Request{})
	require.NoError(t, err)
	defer mustClose(t, sess)

	assert.Equal(t, w.address(), sess.Account(), "account is checksummed")
	assert.Equal(t, types.ChainPolygon, sess.ChainID())
	assert.Equal(t, types.ConnectorInjected, sess.Kind())
}

func TestConnectUserRejected(t *testing.T) {
	w := newFakeWallet(t, 1)
	w.reject = true
	set := newTestSet(t, []types.ConnectorDescriptor{injectedDesc}, WithInjectedProvider(serve(t, w)))

	_, err := set.Connect(context.Background(), types.ConnectorInjected, Request{})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperror.ErrAuth)
	assert.Contains(t, err.Error(), "rejected")
}

func TestConnectUnavailableConnector(t *testing.T) {
	set := newTestSet(t, []types.ConnectorDescriptor{injectedDesc})

	_, err := set.Connect(context.Background(), types.ConnectorInjected, Request{})
	assert.ErrorIs(t, err, apperror.ErrAuth)

	_, err = set.Connect(context.Background(), types.ConnectorRemotePairing, Request{})
	assert.ErrorIs(t, err, apperror.ErrAuth, "connector not configured")
}

func TestConnectUnsupportedChain(t *testing.T) {
	w := newFakeWallet(t, 5)
	set := newTestSet(t, []types.ConnectorDescriptor{injectedDesc}, WithInjectedProvider(serve(t, w)))

	_, err := set.Connect(context.Background(), types.ConnectorInjected, Request{})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperror.ErrAuth)
	assert.Contains(t, err.Error(), "unsupported chain 5")
}

func TestConnectHandshakeTimeout(t *testing.T) {
	w := newFakeWallet(t, 1)
	p := serve(t, w)
	w.block = make(chan struct{})
	t.Cleanup(func() { close(w.block) })

	set := newTestSet(t, []types.ConnectorDescriptor{injectedDesc},
		WithInjectedProvider(p), WithHandshakeTimeout(50*time.Millisecond))

	_, err := set.Connect(context.Background(), types.ConnectorInjected, Request{})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperror.ErrAuth)
	assert.Contains(t, err.Error(), "timed out")
}

func TestConnectCancelled(t *testing.T) {
	w := newFakeWallet(t, 1)
	p := serve(t, w)
	w.block = make(chan struct{})
	t.Cleanup(func() { close(w.block) })

	set := newTestSet(t, []types.ConnectorDescriptor{injectedDesc}, WithInjectedProvider(p))

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)

	_, err := set.Connect(ctx, types.ConnectorInjected, Request{})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperror.ErrAuth)
	assert.Contains(t, err.Error(), "cancelled")
}

func TestConnectAddsUnknownChainBeforeSwitching(t *testing.T) {
	w := newFakeWallet(t, 1)
	set := newTestSet(t, []types.ConnectorDescriptor{injectedDesc}, WithInjectedProvider(serve(t, w)))

	polygon, err := set.Registry().Resolve(types.ChainPolygon)
	require.NoError(t, err)

	sess, err := set.Connect(context.Background(), types.ConnectorInjected, Request{Chain: &polygon})
	require.NoError(t, err)
	defer mustClose(t, sess)

	assert.Equal(t, types.ChainPolygon, sess.ChainID())
	assert.Equal(t, []uint64{137}, w.added)

	base, err := set.Registry().Resolve(types.ChainBase)
	require.NoError(t, err)
	require.NoError(t, sess.SwitchChain(context.Background(), base))
	assert.Equal(t, types.ChainBase, sess.ChainID())
}

func TestSignInChallenge(t *testing.T) {
	w := newFakeWallet(t, 1)
	set := newTestSet(t, []types.ConnectorDescriptor{injectedDesc},
		WithInjectedProvider(serve(t, w)), WithSignInChallenge("walletlink-test"))

	sess, err := set.Connect(context.Background(), types.ConnectorInjected, Request{})
	require.NoError(t, err)
	mustClose(t, sess)

	impostor, err := crypto.GenerateKey()
	require.NoError(t, err)
	w.signer = impostor

	_, err = set.Connect(context.Background(), types.ConnectorInjected, Request{})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperror.ErrAuth)
}

func TestExtensionMatchesAnnouncedRDNS(t *testing.T) {
	other := newFakeWallet(t, 1)
	metamask := newFakeWallet(t, 8453)

	set := newTestSet(t, []types.ConnectorDescriptor{extensionDesc}, WithAnnouncedProviders(
		ProviderDetail{Info: ProviderInfo{UUID: "1", Name: "Coinbase Wallet", RDNS: "com.coinbase.wallet"}, Provider: serve(t, other)},
		ProviderDetail{Info: ProviderInfo{UUID: "2", Name: "MetaMask", RDNS: "io.metamask"}, Provider: serve(t, metamask)},
	))

	got := set.Available()
	require.Len(t, got, 1)
	assert.Equal(t, "MetaMask", got[0].Name)
	assert.True(t, got[0].Ready)

	sess, err := set.Connect(context.Background(), types.ConnectorBrowserExtension, Request{})
	require.NoError(t, err)
	defer mustClose(t, sess)
	assert.Equal(t, metamask.address(), sess.Account())
	assert.Equal(t, types.ChainBase, sess.ChainID())
}

func TestProviderSessionReportsRevokedAccount(t *testing.T) {
	w := newFakeWallet(t, 137)
	set := newTestSet(t, []types.ConnectorDescriptor{injectedDesc},
		WithInjectedProvider(serve(t, w)), WithPollInterval(20*time.Millisecond))

	sess, err := set.Connect(context.Background(), types.ConnectorInjected, Request{})
	require.NoError(t, err)
	defer mustClose(t, sess)

	select {
	case <-sess.Lost():
		t.Fatal("session lost while still authorized")
	case <-time.After(60 * time.Millisecond):
	}

	w.setAccounts()
	select {
	case <-sess.Lost():
	case <-time.After(time.Second):
		t.Fatal("revoked account was not reported")
	}
}

func TestCustomConnectorReplacesBuiltIn(t *testing.T) {
	w := newFakeWallet(t, 1)
	custom := newProviderConnector(types.ConnectorDescriptor{Kind: types.ConnectorInjected, Name: "Custom"}, serve(t, w), 0, logger.NoopLogger{})

	set := newTestSet(t, []types.ConnectorDescriptor{injectedDesc}, WithConnector(custom))
	c, ok := set.Connector(types.ConnectorInjected)
	require.True(t, ok)
	assert.Equal(t, "Custom", c.Descriptor().Name)
}
