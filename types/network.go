package types

import "strconv"

// ChainID identifies an EVM network.
type ChainID uint64

// Supported networks
const (
	ChainEthereum    ChainID = 1
	ChainPolygon     ChainID = 137
	ChainBase        ChainID = 8453
	ChainSepolia     ChainID = 11155111 // testnet
	ChainPolygonAmoy ChainID = 80002    // testnet
	ChainBaseSepolia ChainID = 84532    // testnet
)

func (c ChainID) String() string {
	return strconv.FormatUint(uint64(c), 10)
}

// ChainDescriptor describes one supported network. Descriptors are immutable
// once a registry has been built from them.
type ChainDescriptor struct {
	ChainID        ChainID `json:"chainId" yaml:"chain_id" validate:"required,gt=0"`
	Name           string  `json:"name" yaml:"name" validate:"required"`
	RPCURL         string  `json:"rpcUrl" yaml:"rpc_url"`
	NativeCurrency string  `json:"nativeCurrency,omitempty" yaml:"native_currency"`
	ExplorerURL    string  `json:"explorerUrl,omitempty" yaml:"explorer_url"`
	Testnet        bool    `json:"testnet" yaml:"testnet"`
}

// IsTestnet reports whether the chain is a test network.
func (c ChainDescriptor) IsTestnet() bool {
	return c.Testnet
}
