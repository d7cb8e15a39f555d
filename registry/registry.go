// Package registry holds the static catalog of supported EVM networks.
//
// A Registry is built once at startup and never changes afterwards. Every chain
// in the default catalog has a public RPC endpoint, so a missing or malformed
// override degrades to that endpoint instead of failing startup.
package registry

import (
	"fmt"
	"sort"
	"strings"

	"github.com/vitwit/walletlink/apperror"
	"github.com/vitwit/walletlink/logger"
	"github.com/vitwit/walletlink/types"
	"github.com/vitwit/walletlink/utils"
)

// defaultChains is the built-in catalog. RPC endpoints are public and rate
// limited; production deployments are expected to override them.
var defaultChains = map[types.ChainID]types.ChainDescriptor{
	types.ChainEthereum: {
		ChainID:        types.ChainEthereum,
		Name:           "Ethereum",
		RPCURL:         "https://eth.llamarpc.com",
		NativeCurrency: "ETH",
		ExplorerURL:    "https://etherscan.io",
	},
	types.ChainPolygon: {
		ChainID:        types.ChainPolygon,
		Name:           "Polygon",
		RPCURL:         "https://polygon-rpc.com",
		NativeCurrency: "POL",
		ExplorerURL:    "https://polygonscan.com",
	},
	types.ChainBase: {
		ChainID:        types.ChainBase,
		Name:           "Base",
		RPCURL:         "https://mainnet.base.org",
		NativeCurrency: "ETH",
		ExplorerURL:    "https://basescan.org",
	},
	types.ChainSepolia: {
		ChainID:        types.ChainSepolia,
		Name:           "Sepolia",
		RPCURL:         "https://rpc.sepolia.org",
		NativeCurrency: "ETH",
		ExplorerURL:    "https://sepolia.etherscan.io",
		Testnet:        true,
	},
	types.ChainPolygonAmoy: {
		ChainID:        types.ChainPolygonAmoy,
		Name:           "Polygon Amoy",
		RPCURL:         "https://rpc-amoy.polygon.technology",
		NativeCurrency: "POL",
		ExplorerURL:    "https://amoy.polygonscan.com",
		Testnet:        true,
	},
	types.ChainBaseSepolia: {
		ChainID:        types.ChainBaseSepolia,
		Name:           "Base Sepolia",
		RPCURL:         "https://sepolia.base.org",
		NativeCurrency: "ETH",
		ExplorerURL:    "https://sepolia.basescan.org",
		Testnet:        true,
	},
}

// DefaultRPCURL returns the documented default endpoint for a chain.
func DefaultRPCURL(id types.ChainID) (string, bool) {
	c, ok := defaultChains[id]
	return c.RPCURL, ok
}

// Registry resolves chain ids to descriptors.
type Registry struct {
	chains map[types.ChainID]types.ChainDescriptor
	order  []types.ChainID
}

// Option configures registry construction.
type Option func(*buildOptions)

type buildOptions struct {
	logger logger.Logger
}

// WithLogger logs endpoint fallbacks during construction.
func WithLogger(l logger.Logger) Option {
	return func(o *buildOptions) {
		o.logger = l
	}
}

// New builds a registry from explicit descriptors. Chain ids must be positive
// and unique. A blank or malformed RPC URL is replaced by the default for that
// chain; a chain with neither is rejected.
func New(chains []types.ChainDescriptor, opts ...Option) (*Registry, error) {
	o := buildOptions{logger: logger.NoopLogger{}}
	for _, opt := range opts {
		opt(&o)
	}
	o.logger = logger.OrNoop(o.logger)

	r := &Registry{
		chains: make(map[types.ChainID]types.ChainDescriptor, len(chains)),
		order:  make([]types.ChainID, 0, len(chains)),
	}

	for _, c := range chains {
		if c.ChainID == 0 {
			return nil, apperror.NewValidation("chain id must be a positive integer", nil)
		}
		if _, dup := r.chains[c.ChainID]; dup {
			return nil, apperror.NewValidation(fmt.Sprintf("duplicate chain id %d", c.ChainID), nil)
		}
		if strings.TrimSpace(c.Name) == "" {
			return nil, apperror.NewValidation(fmt.Sprintf("chain %d has no name", c.ChainID), nil)
		}

		rpcURL, err := resolveRPCURL(c.ChainID, c.RPCURL, o.logger)
		if err != nil {
			return nil, err
		}
		c.RPCURL = rpcURL

		r.chains[c.ChainID] = c
		r.order = append(r.order, c.ChainID)
	}

	sort.Slice(r.order, func(i, j int) bool { return r.order[i] < r.order[j] })
	return r, nil
}

// Default builds the registry from the built-in catalog, applying per-chain RPC
// overrides. Overrides for chains outside the catalog are ignored.
func Default(overrides map[types.ChainID]string, opts ...Option) *Registry {
	chains := make([]types.ChainDescriptor, 0, len(defaultChains))
	for id, c := range defaultChains {
		if url, ok := overrides[id]; ok {
			c.RPCURL = url
		}
		chains = append(chains, c)
	}

	r, err := New(chains, opts...)
	if err != nil {
		// The catalog is a literal with positive, unique ids and a default
		// endpoint for every chain.
		panic(fmt.Sprintf("registry: invalid default catalog: %v", err))
	}
	return r
}

func resolveRPCURL(id types.ChainID, configured string, log logger.Logger) (string, error) {
	configured = strings.TrimSpace(configured)
	if utils.IsURL(configured) {
		return configured, nil
	}

	fallback, ok := DefaultRPCURL(id)
	if !ok {
		return "", apperror.NewValidation(fmt.Sprintf("chain %d has no usable RPC URL", id), nil)
	}

	if configured != "" {
		log.Warn("malformed RPC URL, using default", map[string]any{
			"chain_id":   uint64(id),
			"configured": configured,
			"default":    fallback,
		})
	} else {
		log.Debug("no RPC URL configured, using default", map[string]any{
			"chain_id": uint64(id),
			"default":  fallback,
		})
	}
	return fallback, nil
}

// Resolve returns the descriptor for id or a NotFoundError.
func (r *Registry) Resolve(id types.ChainID) (types.ChainDescriptor, error) {
	c, ok := r.chains[id]
	if !ok {
		return types.ChainDescriptor{}, apperror.NewNotFound(fmt.Sprintf("chain %d is not supported", id), nil)
	}
	return c, nil
}

// Contains reports whether id is registered.
func (r *Registry) Contains(id types.ChainID) bool {
	_, ok := r.chains[id]
	return ok
}

// Chains returns all descriptors in ascending chain id order.
func (r *Registry) Chains() []types.ChainDescriptor {
	out := make([]types.ChainDescriptor, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.chains[id])
	}
	return out
}

// Len returns the number of registered chains.
func (r *Registry) Len() int {
	return len(r.order)
}
