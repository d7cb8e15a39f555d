package connectors

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/vitwit/walletlink/apperror"
	"github.com/vitwit/walletlink/logger"
	"github.com/vitwit/walletlink/types"
	"github.com/vitwit/walletlink/utils"
)

// DefaultRelayURL is the pairing relay used when relayUrl is not configured.
const DefaultRelayURL = "wss://relay.walletconnect.com"

var (
	_ Connector     = (*pairingConnector)(nil)
	_ Session       = (*pairingSession)(nil)
	_ ChainNotifier = (*pairingSession)(nil)
)

type pairMetadata struct {
	Name string `json:"name"`
}

// relayMessage is the single JSON frame shape exchanged with the relay.
type relayMessage struct {
	Type     string        `json:"type"`
	ID       string        `json:"id,omitempty"`
	ChainID  types.ChainID `json:"chainId,omitempty"`
	Account  string        `json:"account,omitempty"`
	Reason   string        `json:"reason,omitempty"`
	Silent   bool          `json:"silent,omitempty"`
	Metadata *pairMetadata `json:"metadata,omitempty"`
}

// pairingConnector pairs with a wallet on another device through a websocket
// relay.
type pairingConnector struct {
	desc      types.ConnectorDescriptor
	projectID string
	relayURL  string
	appName   string
	dialer    *websocket.Dialer
	logger    logger.Logger
}

func newPairing(desc types.ConnectorDescriptor, appName string, dialer *websocket.Dialer, log logger.Logger) (*pairingConnector, error) {
	projectID := desc.Option(types.OptionProjectID)
	if projectID == "" {
		return nil, apperror.NewValidation("remote pairing connector requires a projectId", nil)
	}

	relay := desc.Option(types.OptionRelayURL)
	if relay == "" {
		relay = DefaultRelayURL
	}
	if _, err := url.Parse(relay); err != nil || !utils.IsURL(relay) {
		return nil, apperror.NewValidation(fmt.Sprintf("invalid relay url %q", relay), err)
	}

	if desc.Name == "" {
		desc.Name = "Remote Pairing"
	}
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}

	return &pairingConnector{
		desc:      desc,
		projectID: projectID,
		relayURL:  relay,
		appName:   appName,
		dialer:    dialer,
		logger:    log,
	}, nil
}

func (c *pairingConnector) Kind() types.ConnectorKind { return c.desc.Kind }

func (c *pairingConnector) Descriptor() types.ConnectorDescriptor { return c.desc }

// Available is always true: the relay is reached over the network at connect
// time.
func (c *pairingConnector) Available() bool { return true }

func (c *pairingConnector) endpoint() string {
	u, _ := url.Parse(c.relayURL)
	q := u.Query()
	q.Set("projectId", c.projectID)
	u.RawQuery = q.Encode()
	return u.String()
}

func (c *pairingConnector) Connect(ctx context.Context, req Request) (Session, error) {
	conn, _, err := c.dialer.DialContext(ctx, c.endpoint(), nil)
	if err != nil {
		return nil, apperror.FromNetwork("dial pairing relay", err)
	}

	// Unblock the handshake read when ctx ends before the wallet answers.
	handshakeDone := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-handshakeDone:
		}
	}()

	approval, err := c.handshake(ctx, conn, req)
	close(handshakeDone)
	if err != nil {
		conn.Close()
		return nil, err
	}

	account := utils.NormalizeAddress(approval.Account)
	c.logger.Debug("pairing approved", map[string]any{
		"account":  account,
		"chain_id": uint64(approval.ChainID),
	})
	return newPairingSession(conn, c.desc.Kind, account, approval.ChainID, c.logger), nil
}

func (c *pairingConnector) handshake(ctx context.Context, conn *websocket.Conn, req Request) (relayMessage, error) {
	pair := relayMessage{
		Type:     msgPairRequest,
		ID:       uuid.NewString(),
		Silent:   req.Silent,
		Metadata: &pairMetadata{Name: c.appName},
	}
	if req.Chain != nil {
		pair.ChainID = req.Chain.ChainID
	}
	if err := conn.WriteJSON(pair); err != nil {
		return relayMessage{}, apperror.FromNetwork("send pairing request", err)
	}

	for {
		var msg relayMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if ctx.Err() != nil {
				return relayMessage{}, ctx.Err()
			}
			return relayMessage{}, apperror.FromNetwork("read pairing response", err)
		}

		switch msg.Type {
		case msgSessionApprove:
			if msg.Account == "" {
				return relayMessage{}, apperror.NewAuth("wallet approved pairing without an account", nil)
			}
			return msg, nil
		case msgSessionReject:
			reason := msg.Reason
			if reason == "" {
				reason = "no reason given"
			}
			return relayMessage{}, apperror.NewAuth("wallet rejected the pairing request: "+reason, nil)
		default:
			c.logger.Debug("ignoring relay message during handshake", map[string]any{"type": msg.Type})
		}
	}
}

// pairingSession owns the relay connection after approval. A single reader
// goroutine consumes frames; writes are serialized by writeMu.
type pairingSession struct {
	conn   *websocket.Conn
	kind   types.ConnectorKind
	logger logger.Logger

	writeMu  sync.Mutex
	switchMu sync.Mutex
	replies  chan relayMessage
	chains   chan types.ChainID

	mu      sync.RWMutex
	account string
	chainID types.ChainID

	closed   atomic.Bool
	lost     chan struct{}
	lostOnce sync.Once
}

func newPairingSession(conn *websocket.Conn, kind types.ConnectorKind, account string, chainID types.ChainID, log logger.Logger) *pairingSession {
	s := &pairingSession{
		conn:    conn,
		kind:    kind,
		logger:  log,
		replies: make(chan relayMessage, 1),
		chains:  make(chan types.ChainID, 1),
		account: account,
		chainID: chainID,
		lost:    make(chan struct{}),
	}
	go s.readLoop()
	return s
}

func (s *pairingSession) Account() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.account
}

func (s *pairingSession) ChainID() types.ChainID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.chainID
}

func (s *pairingSession) Kind() types.ConnectorKind { return s.kind }

func (s *pairingSession) Lost() <-chan struct{} { return s.lost }

func (s *pairingSession) ChainChanges() <-chan types.ChainID { return s.chains }

func (s *pairingSession) readLoop() {
	for {
		var msg relayMessage
		if err := s.conn.ReadJSON(&msg); err != nil {
			if !s.closed.Load() {
				s.logger.Warn("pairing relay connection dropped", map[string]any{"error": err})
				s.markLost()
			}
			return
		}

		switch msg.Type {
		case msgSessionDelete:
			s.logger.Info("wallet ended the pairing session", nil)
			s.markLost()
			return
		case msgChainChanged:
			s.mu.Lock()
			s.chainID = msg.ChainID
			s.mu.Unlock()
			s.notifyChain(msg.ChainID)
			s.deliver(msg)
		case msgSessionReject:
			s.deliver(msg)
		}
	}
}

// deliver hands a reply to a waiting SwitchChain, dropping it if none waits.
func (s *pairingSession) deliver(msg relayMessage) {
	select {
	case s.replies <- msg:
	default:
	}
}

// notifyChain replaces any unread chain change with id. readLoop is the only
// sender.
func (s *pairingSession) notifyChain(id types.ChainID) {
	select {
	case <-s.chains:
	default:
	}
	s.chains <- id
}

func (s *pairingSession) write(msg relayMessage) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteJSON(msg)
}

func (s *pairingSession) SwitchChain(ctx context.Context, chain types.ChainDescriptor) error {
	s.switchMu.Lock()
	defer s.switchMu.Unlock()

	// Drop replies nobody waited for.
	select {
	case <-s.replies:
	default:
	}

	if err := s.write(relayMessage{Type: msgSwitchChain, ChainID: chain.ChainID}); err != nil {
		return apperror.FromNetwork("send switch request", err)
	}

	for {
		select {
		case msg := <-s.replies:
			if msg.Type == msgSessionReject {
				return apperror.NewAuth("wallet rejected the chain switch", nil)
			}
			if msg.ChainID == chain.ChainID {
				return nil
			}
		case <-s.lost:
			return apperror.NewNetwork("wallet disconnected during chain switch", nil)
		case <-ctx.Done():
			return apperror.FromNetwork("switch chain", ctx.Err())
		}
	}
}

func (s *pairingSession) Close(ctx context.Context) error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}

	deadline := time.Now().Add(time.Second)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	s.writeMu.Lock()
	_ = s.conn.SetWriteDeadline(deadline)
	_ = s.conn.WriteJSON(relayMessage{Type: msgSessionDelete})
	_ = s.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
	s.writeMu.Unlock()

	return s.conn.Close()
}

func (s *pairingSession) markLost() {
	s.lostOnce.Do(func() { close(s.lost) })
}
