package connectors

import (
	"context"
	"crypto/ecdsa"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/stretchr/testify/require"
)

// walletError is an EIP-1193 error as a wallet returns it over JSON-RPC.
type walletError struct {
	code int
	msg  string
}

func (e *walletError) Error() string  { return e.msg }
func (e *walletError) ErrorCode() int { return e.code }

type chainParam struct {
	ChainID hexutil.Uint64 `json:"chainId"`
}

// fakeWallet serves the eth_, wallet_ and personal_ methods a browser wallet
// exposes.
type fakeWallet struct {
	mu       sync.Mutex
	key      *ecdsa.PrivateKey
	signer   *ecdsa.PrivateKey
	accounts []string
	chainID  uint64
	known    map[uint64]bool
	added    []uint64
	reject   bool
	block    chan struct{}
}

func newFakeWallet(t *testing.T, chainID uint64) *fakeWallet {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	addr := crypto.PubkeyToAddress(key.PublicKey)
	return &fakeWallet{
		key:      key,
		signer:   key,
		accounts: []string{hexutil.Encode(addr.Bytes())},
		chainID:  chainID,
		known:    map[uint64]bool{chainID: true},
	}
}

func (w *fakeWallet) address() string {
	return crypto.PubkeyToAddress(w.key.PublicKey).Hex()
}

func (w *fakeWallet) setAccounts(accounts ...string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.accounts = accounts
}

func (w *fakeWallet) RequestAccounts() ([]string, error) {
	w.mu.Lock()
	reject, block := w.reject, w.block
	w.mu.Unlock()

	if reject {
		return nil, &walletError{code: CodeUserRejected, msg: "User rejected the request."}
	}
	if block != nil {
		<-block
	}
	return w.Accounts()
}

func (w *fakeWallet) Accounts() ([]string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.accounts...), nil
}

func (w *fakeWallet) ChainId() (hexutil.Uint64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return hexutil.Uint64(w.chainID), nil
}

func (w *fakeWallet) SwitchEthereumChain(p chainParam) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.known[uint64(p.ChainID)] {
		return &walletError{code: CodeUnrecognizedChain, msg: "Unrecognized chain ID."}
	}
	w.chainID = uint64(p.ChainID)
	return nil
}

func (w *fakeWallet) AddEthereumChain(p chainParam) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.known[uint64(p.ChainID)] = true
	w.added = append(w.added, uint64(p.ChainID))
	return nil
}

func (w *fakeWallet) Sign(message hexutil.Bytes, _ string) (hexutil.Bytes, error) {
	sig, err := crypto.Sign(accounts.TextHash(message), w.signer)
	if err != nil {
		return nil, err
	}
	sig[crypto.RecoveryIDOffset] += 27
	return sig, nil
}

// serve exposes w over an in-process RPC server and returns a provider for it.
func serve(t *testing.T, w *fakeWallet) *RPCProvider {
	t.Helper()
	server := rpc.NewServer()
	for _, ns := range []string{"eth", "wallet", "personal"} {
		require.NoError(t, server.RegisterName(ns, w))
	}
	t.Cleanup(server.Stop)

	p := NewRPCProvider(rpc.DialInProc(server))
	t.Cleanup(p.Close)
	return p
}

func mustClose(t *testing.T, s Session) {
	t.Helper()
	require.NoError(t, s.Close(context.Background()))
}
