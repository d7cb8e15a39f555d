// Package connectors implements the wallet connection strategies and the
// Connector Set that selects between them.
//
// Three kinds exist, tried by the UI in this priority order:
//
//   - BrowserExtension: a specific announced wallet provider (matched by RDNS).
//   - Injected: whatever generic EIP-1193 provider the environment exposes.
//   - RemotePairing: a wallet on another device, paired through a websocket relay.
//
// A successful Connect yields a Session. Sessions outlive the context passed to
// Connect; they end when closed or when the wallet side goes away, which is
// reported through Session.Lost.
package connectors

import (
	"context"

	"github.com/vitwit/walletlink/types"
)

// Request describes one connection attempt.
type Request struct {
	// Chain is the network the caller wants the wallet on. Nil keeps whatever
	// network the wallet is currently using.
	Chain *types.ChainDescriptor

	// Silent attempts must not prompt the user. They are used for auto-connect
	// and reconnection and succeed only if the wallet already authorized us.
	Silent bool
}

type Connector interface {
	Kind() types.ConnectorKind
	Descriptor() types.ConnectorDescriptor

	// Available reports whether the connector can work in this environment.
	Available() bool

	Connect(ctx context.Context, req Request) (Session, error)
}

type Session interface {
	Account() string
	ChainID() types.ChainID
	Kind() types.ConnectorKind

	// SwitchChain asks the wallet to move to chain. The session's chain id is
	// updated only on success.
	SwitchChain(ctx context.Context, chain types.ChainDescriptor) error

	// Lost is closed when the wallet side ends the session.
	Lost() <-chan struct{}

	Close(ctx context.Context) error
}

// MessageSigner is an optional Session extension. Sessions that implement it can
// take part in the sign-in challenge.
type MessageSigner interface {
	SignMessage(ctx context.Context, message []byte) ([]byte, error)
}

// ChainNotifier is an optional Session extension for sessions that learn about
// chain changes made in the wallet itself. Only the latest change is kept when
// the receiver falls behind.
type ChainNotifier interface {
	ChainChanges() <-chan types.ChainID
}

// priority orders connectors most specific first.
var priority = map[types.ConnectorKind]int{
	types.ConnectorBrowserExtension: 0,
	types.ConnectorInjected:         1,
	types.ConnectorRemotePairing:    2,
}

// Priority returns the rank of kind; lower ranks are offered first.
func Priority(kind types.ConnectorKind) int {
	if p, ok := priority[kind]; ok {
		return p
	}
	return len(priority)
}
