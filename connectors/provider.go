package connectors

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/vitwit/walletlink/types"
)

// Provider is the EIP-1193 surface a wallet exposes to the application.
type Provider interface {
	// RequestAccounts may prompt the user (eth_requestAccounts).
	RequestAccounts(ctx context.Context) ([]string, error)
	// Accounts never prompts (eth_accounts).
	Accounts(ctx context.Context) ([]string, error)
	ChainID(ctx context.Context) (types.ChainID, error)
	SwitchChain(ctx context.Context, id types.ChainID) error
	AddChain(ctx context.Context, chain types.ChainDescriptor) error
	PersonalSign(ctx context.Context, message []byte, account string) ([]byte, error)
	Close()
}

// ProviderInfo is the metadata a wallet announces about itself (EIP-6963).
type ProviderInfo struct {
	UUID string `json:"uuid"`
	Name string `json:"name"`
	RDNS string `json:"rdns"`
}

// ProviderDetail pairs an announced provider with its metadata.
type ProviderDetail struct {
	Info     ProviderInfo
	Provider Provider
}

var _ Provider = (*RPCProvider)(nil)

// RPCProvider speaks EIP-1193 methods over JSON-RPC, for wallets that expose
// their provider on a local endpoint.
type RPCProvider struct {
	client *rpc.Client
}

// DialProvider connects to a wallet provider endpoint (http, ws or ipc).
func DialProvider(ctx context.Context, url string) (*RPCProvider, error) {
	client, err := rpc.DialContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to wallet provider: %w", err)
	}
	return NewRPCProvider(client), nil
}

// NewRPCProvider wraps an existing RPC client.
func NewRPCProvider(client *rpc.Client) *RPCProvider {
	return &RPCProvider{client: client}
}

func (p *RPCProvider) RequestAccounts(ctx context.Context) ([]string, error) {
	var accounts []string
	if err := p.client.CallContext(ctx, &accounts, "eth_requestAccounts"); err != nil {
		return nil, err
	}
	return accounts, nil
}

func (p *RPCProvider) Accounts(ctx context.Context) ([]string, error) {
	var accounts []string
	if err := p.client.CallContext(ctx, &accounts, "eth_accounts"); err != nil {
		return nil, err
	}
	return accounts, nil
}

func (p *RPCProvider) ChainID(ctx context.Context) (types.ChainID, error) {
	var id hexutil.Uint64
	if err := p.client.CallContext(ctx, &id, "eth_chainId"); err != nil {
		return 0, err
	}
	return types.ChainID(id), nil
}

type switchChainParams struct {
	ChainID hexutil.Uint64 `json:"chainId"`
}

func (p *RPCProvider) SwitchChain(ctx context.Context, id types.ChainID) error {
	return p.client.CallContext(ctx, nil, "wallet_switchEthereumChain", switchChainParams{
		ChainID: hexutil.Uint64(id),
	})
}

type nativeCurrency struct {
	Name     string `json:"name"`
	Symbol   string `json:"symbol"`
	Decimals int    `json:"decimals"`
}

type addChainParams struct {
	ChainID           hexutil.Uint64 `json:"chainId"`
	ChainName         string         `json:"chainName"`
	RPCURLs           []string       `json:"rpcUrls"`
	NativeCurrency    nativeCurrency `json:"nativeCurrency"`
	BlockExplorerURLs []string       `json:"blockExplorerUrls,omitempty"`
}

func (p *RPCProvider) AddChain(ctx context.Context, chain types.ChainDescriptor) error {
	params := addChainParams{
		ChainID:   hexutil.Uint64(chain.ChainID),
		ChainName: chain.Name,
		RPCURLs:   []string{chain.RPCURL},
		NativeCurrency: nativeCurrency{
			Name:     chain.NativeCurrency,
			Symbol:   chain.NativeCurrency,
			Decimals: 18,
		},
	}
	if chain.ExplorerURL != "" {
		params.BlockExplorerURLs = []string{chain.ExplorerURL}
	}
	return p.client.CallContext(ctx, nil, "wallet_addEthereumChain", params)
}

func (p *RPCProvider) PersonalSign(ctx context.Context, message []byte, account string) ([]byte, error) {
	var sig hexutil.Bytes
	if err := p.client.CallContext(ctx, &sig, "personal_sign", hexutil.Bytes(message), account); err != nil {
		return nil, err
	}
	return sig, nil
}

func (p *RPCProvider) Close() {
	p.client.Close()
}
