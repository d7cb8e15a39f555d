package types

import (
	"fmt"
	"time"

	"github.com/vitwit/walletlink/apperror"
)

// ConnectorKind represents the supported wallet connection strategies
type ConnectorKind string

const (
	ConnectorInjected         ConnectorKind = "injected"
	ConnectorBrowserExtension ConnectorKind = "browser-extension"
	ConnectorRemotePairing    ConnectorKind = "remote-pairing"
)

// ParseConnectorKind validates a connector kind received from user input.
func ParseConnectorKind(s string) (ConnectorKind, error) {
	switch k := ConnectorKind(s); k {
	case ConnectorInjected, ConnectorBrowserExtension, ConnectorRemotePairing:
		return k, nil
	default:
		return "", apperror.NewValidation(fmt.Sprintf("unknown connector kind %q", s), nil)
	}
}

func (k ConnectorKind) String() string {
	return string(k)
}

// Option keys understood by the built-in connectors.
const (
	OptionProjectID   = "projectId"
	OptionRelayURL    = "relayUrl"
	OptionProviderURL = "providerUrl"
	OptionRDNS        = "rdns"
)

// ConnectorDescriptor describes one connector available to the application.
type ConnectorDescriptor struct {
	Kind    ConnectorKind     `json:"kind"`
	Name    string            `json:"name"`
	Options map[string]string `json:"-"`

	// Ready is filled in by the Connector Set: false means connecting through
	// this connector will fail in the current environment.
	Ready bool `json:"ready"`
}

// Option returns a connector option or the empty string.
func (d ConnectorDescriptor) Option(key string) string {
	if d.Options == nil {
		return ""
	}
	return d.Options[key]
}

// ConnectionStatus is the tag of a ConnectionState.
type ConnectionStatus string

const (
	StatusDisconnected ConnectionStatus = "disconnected"
	StatusConnecting   ConnectionStatus = "connecting"
	StatusConnected    ConnectionStatus = "connected"
	StatusReconnecting ConnectionStatus = "reconnecting"
	StatusError        ConnectionStatus = "error"
)

// ConnectionState is a snapshot of the wallet connection.
//
// Account, ChainID and Connector are set while connected. While connecting they
// hold the connector being tried (and, for a chain switch, the account); while
// reconnecting they hold the last known session. Err is set only in StatusError.
type ConnectionState struct {
	Status    ConnectionStatus `json:"status"`
	Account   string           `json:"account,omitempty"`
	ChainID   ChainID          `json:"chainId,omitempty"`
	Connector ConnectorKind    `json:"connector,omitempty"`
	Err       *apperror.Error  `json:"-"`
}

// Disconnected returns the idle state.
func Disconnected() ConnectionState {
	return ConnectionState{Status: StatusDisconnected}
}

// Connecting returns the state of an in-flight attempt through kind.
func Connecting(kind ConnectorKind) ConnectionState {
	return ConnectionState{Status: StatusConnecting, Connector: kind}
}

// Connected returns an established connection state.
func Connected(account string, chainID ChainID, kind ConnectorKind) ConnectionState {
	return ConnectionState{
		Status:    StatusConnected,
		Account:   account,
		ChainID:   chainID,
		Connector: kind,
	}
}

// Reconnecting returns the state after the session behind prev was lost.
func Reconnecting(prev ConnectionState) ConnectionState {
	prev.Status = StatusReconnecting
	prev.Err = nil
	return prev
}

// Errored returns the error state carrying err.
func Errored(err *apperror.Error) ConnectionState {
	return ConnectionState{Status: StatusError, Err: err}
}

// IsBusy reports whether an attempt is in flight.
func (s ConnectionState) IsBusy() bool {
	return s.Status == StatusConnecting || s.Status == StatusReconnecting
}

// StoredSession is the persisted record of the last successful connection.
type StoredSession struct {
	Connector   ConnectorKind `json:"connector"`
	Account     string        `json:"account"`
	ChainID     ChainID       `json:"chainId"`
	ConnectedAt time.Time     `json:"connectedAt"`
}

// RemotePairingConfig configures the remote pairing connector.
type RemotePairingConfig struct {
	Enabled   bool   `yaml:"enabled"`
	ProjectID string `yaml:"project_id"`
	RelayURL  string `yaml:"relay_url" validate:"omitempty,url"`
}

// ConnectorsConfig contains configuration for the wallet connectors
type ConnectorsConfig struct {
	InjectedProviderURL  string              `yaml:"injected_provider_url" validate:"omitempty,url"`
	ExtensionProviderURL string              `yaml:"extension_provider_url" validate:"omitempty,url"`
	ExtensionRDNS        string              `yaml:"extension_rdns"`
	ExtensionName        string              `yaml:"extension_name"`
	RemotePairing        RemotePairingConfig `yaml:"remote_pairing"`
	SignInApp            string              `yaml:"sign_in_app"`
	PollInterval         time.Duration       `yaml:"poll_interval" validate:"gte=0"`
}

// ReconnectConfig bounds automatic reconnection after a lost session.
type ReconnectConfig struct {
	Attempts       int           `yaml:"attempts" validate:"gte=1"`
	InitialBackoff time.Duration `yaml:"initial_backoff" validate:"gt=0"`
	MaxBackoff     time.Duration `yaml:"max_backoff" validate:"gtefield=InitialBackoff"`
}

// Config contains global configuration for the walletlink library
type Config struct {
	RPCURLs          map[ChainID]string `yaml:"rpc_urls"`
	// DefaultChain, when set, is the chain user-initiated connects move the
	// wallet to. Zero keeps the chain the wallet grants.
	DefaultChain     ChainID            `yaml:"default_chain"`
	Connectors       ConnectorsConfig   `yaml:"connectors"`
	SessionFile      string             `yaml:"session_file"`
	HandshakeTimeout time.Duration      `yaml:"handshake_timeout" validate:"gt=0"`
	Reconnect        ReconnectConfig    `yaml:"reconnect"`
	LogLevel         string             `yaml:"log_level" validate:"omitempty,oneof=debug info warn error"`
	EnableMetrics    bool               `yaml:"enable_metrics"`
	HTTPAddr         string             `yaml:"http_addr"`
}
