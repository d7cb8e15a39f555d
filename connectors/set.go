package connectors

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/gorilla/websocket"

	"github.com/vitwit/walletlink/apperror"
	"github.com/vitwit/walletlink/logger"
	"github.com/vitwit/walletlink/metrics"
	"github.com/vitwit/walletlink/registry"
	"github.com/vitwit/walletlink/types"
	"github.com/vitwit/walletlink/verification"
)

const (
	DefaultHandshakeTimeout = 60 * time.Second
	DefaultPollInterval     = 15 * time.Second
)

// Set is the Connector Set: the connectors configured at startup, bound to the
// chain registry.
type Set struct {
	registry         *registry.Registry
	connectors       map[types.ConnectorKind]Connector
	handshakeTimeout time.Duration
	signInApp        string
	logger           logger.Logger
	metrics          metrics.Recorder

	injected     Provider
	announced    []ProviderDetail
	pollInterval time.Duration
	wsDialer     *websocket.Dialer
	custom       []Connector
}

type SetOption func(*Set)

// WithConnector registers c, replacing any connector built from a descriptor of
// the same kind.
func WithConnector(c Connector) SetOption {
	return func(s *Set) {
		s.custom = append(s.custom, c)
	}
}

// WithInjectedProvider sets the provider used by the Injected connector.
func WithInjectedProvider(p Provider) SetOption {
	return func(s *Set) {
		s.injected = p
	}
}

// WithAnnouncedProviders sets the wallets that announced themselves. The
// BrowserExtension connector picks the one matching its rdns option.
func WithAnnouncedProviders(details ...ProviderDetail) SetOption {
	return func(s *Set) {
		s.announced = append(s.announced, details...)
	}
}

// WithHandshakeTimeout bounds a single Connect call (default: 60s).
func WithHandshakeTimeout(d time.Duration) SetOption {
	return func(s *Set) {
		if d > 0 {
			s.handshakeTimeout = d
		}
	}
}

// WithSignInChallenge makes Connect ask sessions that can sign messages to sign
// a nonce for app, and verifies the signature before accepting the session.
func WithSignInChallenge(app string) SetOption {
	return func(s *Set) {
		s.signInApp = app
	}
}

// WithPollInterval sets how often provider sessions re-check authorization.
// Zero disables polling.
func WithPollInterval(d time.Duration) SetOption {
	return func(s *Set) {
		if d >= 0 {
			s.pollInterval = d
		}
	}
}

func WithWebsocketDialer(d *websocket.Dialer) SetOption {
	return func(s *Set) {
		s.wsDialer = d
	}
}

func WithSetLogger(l logger.Logger) SetOption {
	return func(s *Set) {
		s.logger = l
	}
}

func WithSetMetrics(r metrics.Recorder) SetOption {
	return func(s *Set) {
		s.metrics = r
	}
}

// NewSet builds the connectors described by descriptors. Configuration errors,
// such as a remote pairing descriptor without a project id, fail here rather
// than at connect time.
func NewSet(reg *registry.Registry, descriptors []types.ConnectorDescriptor, opts ...SetOption) (*Set, error) {
	if reg == nil {
		return nil, apperror.NewValidation("connector set requires a chain registry", nil)
	}

	s := &Set{
		registry:         reg,
		connectors:       make(map[types.ConnectorKind]Connector),
		handshakeTimeout: DefaultHandshakeTimeout,
		pollInterval:     DefaultPollInterval,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = logger.OrNoop(s.logger)
	s.metrics = metrics.OrNoop(s.metrics)
	if s.wsDialer == nil {
		s.wsDialer = &websocket.Dialer{HandshakeTimeout: s.handshakeTimeout}
	}

	appName := s.signInApp
	if appName == "" {
		appName = "walletlink"
	}

	for _, desc := range descriptors {
		if _, dup := s.connectors[desc.Kind]; dup {
			return nil, apperror.NewValidation(fmt.Sprintf("connector %q configured twice", desc.Kind), nil)
		}

		log := s.logger.With(map[string]any{"connector": desc.Kind.String()})
		switch desc.Kind {
		case types.ConnectorInjected:
			s.connectors[desc.Kind] = newInjected(desc, s.injected, s.pollInterval, log)
		case types.ConnectorBrowserExtension:
			s.connectors[desc.Kind] = newExtension(desc, s.announced, s.pollInterval, log)
		case types.ConnectorRemotePairing:
			c, err := newPairing(desc, appName, s.wsDialer, log)
			if err != nil {
				return nil, err
			}
			s.connectors[desc.Kind] = c
		default:
			return nil, apperror.NewValidation(fmt.Sprintf("unknown connector kind %q", desc.Kind), nil)
		}
	}

	for _, c := range s.custom {
		s.connectors[c.Kind()] = c
	}
	return s, nil
}

// Registry returns the chain registry the set is bound to.
func (s *Set) Registry() *registry.Registry {
	return s.registry
}

// Connector returns the connector of the given kind.
func (s *Set) Connector(kind types.ConnectorKind) (Connector, bool) {
	c, ok := s.connectors[kind]
	return c, ok
}

// Available returns every configured connector in priority order. Ready tells
// whether the connector can work in the current environment.
func (s *Set) Available() []types.ConnectorDescriptor {
	out := make([]types.ConnectorDescriptor, 0, len(s.connectors))
	for _, c := range s.connectors {
		d := c.Descriptor()
		d.Kind = c.Kind()
		d.Ready = c.Available()
		out = append(out, d)
	}
	sort.SliceStable(out, func(i, j int) bool {
		pi, pj := Priority(out[i].Kind), Priority(out[j].Kind)
		if pi != pj {
			return pi < pj
		}
		return out[i].Kind < out[j].Kind
	})
	return out
}

// Connect establishes a session through the connector of the given kind. Every
// failure is an AuthError: unknown or unavailable connector, user rejection,
// handshake timeout, or a wallet on a chain the registry does not know.
func (s *Set) Connect(ctx context.Context, kind types.ConnectorKind, req Request) (Session, error) {
	c, ok := s.connectors[kind]
	if !ok {
		return nil, apperror.NewAuth(fmt.Sprintf("connector %q is not configured", kind), nil)
	}
	if !c.Available() {
		return nil, apperror.NewAuth(fmt.Sprintf("%s is not available in this environment", c.Descriptor().Name), nil)
	}

	hctx, cancel := context.WithTimeout(ctx, s.handshakeTimeout)
	defer cancel()

	start := time.Now()
	defer func() {
		s.metrics.ObserveLatency(metrics.OpConnect, time.Since(start), map[string]string{"connector": kind.String()})
	}()

	sess, err := c.Connect(hctx, req)
	if err != nil {
		return nil, s.handshakeError(ctx, hctx, err)
	}

	if err := s.accept(hctx, sess); err != nil {
		_ = sess.Close(context.Background())
		return nil, s.handshakeError(ctx, hctx, err)
	}
	return sess, nil
}

func (s *Set) accept(ctx context.Context, sess Session) error {
	if sess.Account() == "" {
		return apperror.NewAuth("wallet did not expose any account", nil)
	}
	if !s.registry.Contains(sess.ChainID()) {
		return apperror.NewAuth(fmt.Sprintf("wallet is on unsupported chain %d", sess.ChainID()), nil)
	}
	if s.signInApp == "" {
		return nil
	}

	signer, ok := sess.(MessageSigner)
	if !ok {
		return nil
	}
	challenge := verification.NewChallenge(s.signInApp, sess.Account(), sess.ChainID())
	msg := []byte(challenge.Message())
	sig, err := signer.SignMessage(ctx, msg)
	if err != nil {
		return err
	}
	return verification.VerifyPersonalSign(sess.Account(), msg, sig)
}

func (s *Set) handshakeError(parent, hctx context.Context, err error) *apperror.Error {
	switch {
	case parent.Err() != nil:
		return apperror.NewAuth("connection attempt was cancelled", parent.Err())
	case errors.Is(hctx.Err(), context.DeadlineExceeded):
		return apperror.NewAuth(fmt.Sprintf("wallet handshake timed out after %s", s.handshakeTimeout), err)
	default:
		return asAuth(err)
	}
}

// Close releases providers the set dialed itself.
func (s *Set) Close() {
	for _, c := range s.connectors {
		if pc, ok := c.(*providerConnector); ok {
			pc.close()
		}
	}
}
