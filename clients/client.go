// Package clients provides per-chain RPC clients used to check that a chain's
// endpoint is reachable and actually serves the expected network.
package clients

import (
	"context"

	"github.com/vitwit/walletlink/types"
)

type Client interface {
	ChainID(ctx context.Context) (types.ChainID, error)
	BlockNumber(ctx context.Context) (uint64, error)
	GetChain() types.ChainDescriptor
	Close()
}
