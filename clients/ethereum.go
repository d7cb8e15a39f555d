package clients

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/vitwit/walletlink/apperror"
	"github.com/vitwit/walletlink/types"
)

var _ Client = (*EVMClient)(nil)

// EVMClient talks to a chain's JSON-RPC endpoint.
type EVMClient struct {
	chain  types.ChainDescriptor
	client *ethclient.Client
}

// NewEVMClient dials the descriptor's RPC endpoint.
func NewEVMClient(ctx context.Context, chain types.ChainDescriptor) (*EVMClient, error) {
	client, err := ethclient.DialContext(ctx, chain.RPCURL)
	if err != nil {
		return nil, apperror.FromNetwork(fmt.Sprintf("dial %s RPC", chain.Name), err)
	}
	return NewEVMClientFrom(chain, client), nil
}

// NewEVMClientFrom wraps an already connected ethclient.
func NewEVMClientFrom(chain types.ChainDescriptor, client *ethclient.Client) *EVMClient {
	return &EVMClient{
		chain:  chain,
		client: client,
	}
}

// Close implements Client.
func (e *EVMClient) Close() {
	e.client.Close()
}

// GetChain implements Client.
func (e *EVMClient) GetChain() types.ChainDescriptor {
	return e.chain
}

// ChainID implements Client.
func (e *EVMClient) ChainID(ctx context.Context) (types.ChainID, error) {
	id, err := e.client.ChainID(ctx)
	if err != nil {
		return 0, apperror.FromNetwork(fmt.Sprintf("%s eth_chainId", e.chain.Name), err)
	}
	if !id.IsUint64() {
		return 0, apperror.NewNetwork(fmt.Sprintf("%s RPC returned out of range chain id %s", e.chain.Name, id), nil)
	}
	return types.ChainID(id.Uint64()), nil
}

// BlockNumber implements Client.
func (e *EVMClient) BlockNumber(ctx context.Context) (uint64, error) {
	n, err := e.client.BlockNumber(ctx)
	if err != nil {
		return 0, apperror.FromNetwork(fmt.Sprintf("%s eth_blockNumber", e.chain.Name), err)
	}
	return n, nil
}
