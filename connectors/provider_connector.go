package connectors

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/vitwit/walletlink/apperror"
	"github.com/vitwit/walletlink/logger"
	"github.com/vitwit/walletlink/types"
	"github.com/vitwit/walletlink/utils"
)

var _ Connector = (*providerConnector)(nil)

// providerConnector connects through an EIP-1193 provider. The provider is
// either handed in directly or dialed from a URL on first use.
type providerConnector struct {
	desc         types.ConnectorDescriptor
	url          string
	pollInterval time.Duration
	logger       logger.Logger

	mu       sync.Mutex
	provider Provider
	dialed   bool
}

func newProviderConnector(desc types.ConnectorDescriptor, p Provider, pollInterval time.Duration, log logger.Logger) *providerConnector {
	return &providerConnector{
		desc:         desc,
		url:          desc.Option(types.OptionProviderURL),
		pollInterval: pollInterval,
		logger:       log,
		provider:     p,
	}
}

func (c *providerConnector) Kind() types.ConnectorKind { return c.desc.Kind }

func (c *providerConnector) Descriptor() types.ConnectorDescriptor { return c.desc }

func (c *providerConnector) Available() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.provider != nil || c.url != ""
}

func (c *providerConnector) resolve(ctx context.Context) (Provider, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.provider != nil {
		return c.provider, nil
	}
	if c.url == "" {
		return nil, apperror.NewAuth(fmt.Sprintf("no %s wallet is available", c.desc.Name), nil)
	}

	p, err := DialProvider(ctx, c.url)
	if err != nil {
		return nil, apperror.FromNetwork("dial wallet provider", err)
	}
	c.provider = p
	c.dialed = true
	return p, nil
}

func (c *providerConnector) Connect(ctx context.Context, req Request) (Session, error) {
	p, err := c.resolve(ctx)
	if err != nil {
		return nil, err
	}

	var accounts []string
	if req.Silent {
		accounts, err = p.Accounts(ctx)
	} else {
		accounts, err = p.RequestAccounts(ctx)
	}
	if err != nil {
		return nil, mapProviderError("request accounts", err)
	}
	if len(accounts) == 0 {
		return nil, apperror.NewAuth("wallet did not expose any account", nil)
	}

	chainID, err := p.ChainID(ctx)
	if err != nil {
		return nil, mapProviderError("read chain id", err)
	}

	if req.Chain != nil && req.Chain.ChainID != chainID {
		if err := switchProviderChain(ctx, p, *req.Chain); err != nil {
			return nil, err
		}
		chainID = req.Chain.ChainID
	}

	account := utils.NormalizeAddress(accounts[0])
	c.logger.Debug("wallet provider granted account", map[string]any{
		"connector": c.desc.Kind.String(),
		"account":   account,
		"chain_id":  uint64(chainID),
	})
	return newProviderSession(p, c.desc.Kind, account, chainID, c.pollInterval, c.logger), nil
}

// close releases a provider the connector dialed itself.
func (c *providerConnector) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.dialed && c.provider != nil {
		c.provider.Close()
		c.provider = nil
		c.dialed = false
	}
}
