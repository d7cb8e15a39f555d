package connectors

import (
	"context"
	"sync"
	"time"

	"github.com/vitwit/walletlink/logger"
	"github.com/vitwit/walletlink/types"
	"github.com/vitwit/walletlink/utils"
)

var (
	_ Session       = (*providerSession)(nil)
	_ MessageSigner = (*providerSession)(nil)
)

// providerSession is a connection held through an EIP-1193 provider. The
// provider is shared with its connector and stays open after Close.
type providerSession struct {
	provider Provider
	kind     types.ConnectorKind
	interval time.Duration
	logger   logger.Logger

	mu      sync.RWMutex
	account string
	chainID types.ChainID

	lost     chan struct{}
	lostOnce sync.Once
	stop     chan struct{}
	stopOnce sync.Once
}

func newProviderSession(p Provider, kind types.ConnectorKind, account string, chainID types.ChainID, interval time.Duration, log logger.Logger) *providerSession {
	s := &providerSession{
		provider: p,
		kind:     kind,
		interval: interval,
		logger:   log,
		account:  account,
		chainID:  chainID,
		lost:     make(chan struct{}),
		stop:     make(chan struct{}),
	}
	if interval > 0 {
		go s.watch()
	}
	return s
}

func (s *providerSession) Account() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.account
}

func (s *providerSession) ChainID() types.ChainID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.chainID
}

func (s *providerSession) Kind() types.ConnectorKind { return s.kind }

func (s *providerSession) Lost() <-chan struct{} { return s.lost }

func (s *providerSession) SwitchChain(ctx context.Context, chain types.ChainDescriptor) error {
	if err := switchProviderChain(ctx, s.provider, chain); err != nil {
		return err
	}
	s.mu.Lock()
	s.chainID = chain.ChainID
	s.mu.Unlock()
	return nil
}

func (s *providerSession) SignMessage(ctx context.Context, message []byte) ([]byte, error) {
	sig, err := s.provider.PersonalSign(ctx, message, s.Account())
	if err != nil {
		return nil, mapProviderError("sign message", err)
	}
	return sig, nil
}

func (s *providerSession) Close(context.Context) error {
	s.stopOnce.Do(func() { close(s.stop) })
	return nil
}

// watch polls eth_accounts and reports the session lost once the wallet stops
// exposing the connected account.
func (s *providerSession) watch() {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			if !s.stillAuthorized() {
				s.markLost()
				return
			}
		}
	}
}

func (s *providerSession) stillAuthorized() bool {
	ctx, cancel := context.WithTimeout(context.Background(), s.interval)
	defer cancel()

	accounts, err := s.provider.Accounts(ctx)
	if err != nil {
		s.logger.Warn("wallet provider stopped answering", map[string]any{"connector": s.kind.String(), "error": err})
		return false
	}
	if len(accounts) == 0 || !utils.SameAddress(accounts[0], s.Account()) {
		s.logger.Info("wallet account no longer authorized", map[string]any{"connector": s.kind.String()})
		return false
	}
	return true
}

func (s *providerSession) markLost() {
	s.lostOnce.Do(func() { close(s.lost) })
}

// switchProviderChain asks the wallet to move to chain, registering the chain
// first when the wallet does not know it.
func switchProviderChain(ctx context.Context, p Provider, chain types.ChainDescriptor) error {
	err := p.SwitchChain(ctx, chain.ChainID)
	if code, ok := rpcErrorCode(err); ok && code == CodeUnrecognizedChain {
		if err := p.AddChain(ctx, chain); err != nil {
			return mapProviderError("add chain", err)
		}
		err = p.SwitchChain(ctx, chain.ChainID)
	}
	if err != nil {
		return mapProviderError("switch chain", err)
	}
	return nil
}
