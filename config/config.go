// Package config loads the walletlink configuration.
//
// Sources, lowest precedence first: built-in defaults, an optional YAML file
// (path in WALLETLINK_CONFIG), an optional .env file, and the process
// environment. Configuration is read once at startup.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/vitwit/walletlink/apperror"
	"github.com/vitwit/walletlink/connectors"
	"github.com/vitwit/walletlink/types"
	"github.com/vitwit/walletlink/utils"
)

// Environment keys
const (
	EnvConfigFile         = "WALLETLINK_CONFIG"
	EnvProjectID          = "WALLETCONNECT_PROJECT_ID"
	EnvRelayURL           = "WALLETCONNECT_RELAY_URL"
	EnvInjectedProvider   = "INJECTED_PROVIDER_URL"
	EnvExtensionProvider  = "EXTENSION_PROVIDER_URL"
	EnvExtensionRDNS      = "EXTENSION_RDNS"
	EnvDefaultChain       = "WALLETLINK_DEFAULT_CHAIN"
	EnvSessionFile        = "WALLETLINK_SESSION_FILE"
	EnvLogLevel           = "WALLETLINK_LOG_LEVEL"
	EnvMetrics            = "WALLETLINK_METRICS"
	EnvHandshakeTimeout   = "WALLETLINK_HANDSHAKE_TIMEOUT"
	EnvReconnectAttempts  = "WALLETLINK_RECONNECT_ATTEMPTS"
	EnvReconnectBackoff   = "WALLETLINK_RECONNECT_BACKOFF"
	EnvHTTPAddr           = "WALLETLINK_HTTP_ADDR"
	EnvSignInApp          = "WALLETLINK_SIGN_IN_APP"
	EnvPollInterval       = "WALLETLINK_POLL_INTERVAL"
	defaultEnvFile        = ".env"
	defaultHTTPAddr       = ":8080"
	defaultLogLevel       = "info"
	defaultReconnectLimit = 3
)

// rpcEnv maps the per-chain RPC override variables to their chain.
var rpcEnv = map[string]types.ChainID{
	"ETHEREUM_RPC_URL":     types.ChainEthereum,
	"POLYGON_RPC_URL":      types.ChainPolygon,
	"BASE_RPC_URL":         types.ChainBase,
	"SEPOLIA_RPC_URL":      types.ChainSepolia,
	"POLYGON_AMOY_RPC_URL": types.ChainPolygonAmoy,
	"BASE_SEPOLIA_RPC_URL": types.ChainBaseSepolia,
}

// DefaultConfig returns the configuration used when nothing is set.
func DefaultConfig() *types.Config {
	return &types.Config{
		RPCURLs: make(map[types.ChainID]string),
		Connectors: types.ConnectorsConfig{
			ExtensionRDNS: connectors.DefaultExtensionRDNS,
			RemotePairing: types.RemotePairingConfig{
				RelayURL: connectors.DefaultRelayURL,
			},
			PollInterval: connectors.DefaultPollInterval,
		},
		HandshakeTimeout: connectors.DefaultHandshakeTimeout,
		Reconnect: types.ReconnectConfig{
			Attempts:       defaultReconnectLimit,
			InitialBackoff: time.Second,
			MaxBackoff:     30 * time.Second,
		},
		LogLevel: defaultLogLevel,
		HTTPAddr: defaultHTTPAddr,
	}
}

type loader struct {
	envFile    string
	configFile string
	lookup     func(string) (string, bool)
}

type Option func(*loader)

// WithEnvFile reads variables from path instead of ./.env. A missing file is
// not an error.
func WithEnvFile(path string) Option {
	return func(l *loader) {
		l.envFile = path
	}
}

// WithConfigFile reads the YAML file at path, overriding WALLETLINK_CONFIG.
func WithConfigFile(path string) Option {
	return func(l *loader) {
		l.configFile = path
	}
}

// WithLookup replaces os.LookupEnv.
func WithLookup(fn func(string) (string, bool)) Option {
	return func(l *loader) {
		l.lookup = fn
	}
}

// Load builds and validates the configuration.
func Load(opts ...Option) (*types.Config, error) {
	l := &loader{envFile: defaultEnvFile, lookup: os.LookupEnv}
	for _, opt := range opts {
		opt(l)
	}

	dotenv, err := readEnvFile(l.envFile)
	if err != nil {
		return nil, err
	}
	get := func(key string) string {
		if v, ok := l.lookup(key); ok {
			return strings.TrimSpace(v)
		}
		return strings.TrimSpace(dotenv[key])
	}

	cfg := DefaultConfig()

	path := l.configFile
	if path == "" {
		path = get(EnvConfigFile)
	}
	if path != "" {
		if err := loadYAML(path, cfg); err != nil {
			return nil, err
		}
	}

	if err := applyEnv(cfg, get); err != nil {
		return nil, err
	}

	if err := utils.ValidateStruct(cfg); err != nil {
		return nil, apperror.NewValidation(fmt.Sprintf("invalid configuration: %v", err), err)
	}
	return cfg, nil
}

func readEnvFile(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}
	values, err := godotenv.Read(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, apperror.NewValidation(fmt.Sprintf("failed to read env file %s", path), err)
	}
	return values, nil
}

func loadYAML(path string, cfg *types.Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return apperror.NewValidation(fmt.Sprintf("failed to read config file %s", path), err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return apperror.NewValidation(fmt.Sprintf("failed to parse config file %s", path), err)
	}
	if cfg.RPCURLs == nil {
		cfg.RPCURLs = make(map[types.ChainID]string)
	}
	return nil
}

func applyEnv(cfg *types.Config, get func(string) string) error {
	for key, id := range rpcEnv {
		if v := get(key); v != "" {
			cfg.RPCURLs[id] = v
		}
	}

	setString(&cfg.Connectors.RemotePairing.ProjectID, get(EnvProjectID))
	setString(&cfg.Connectors.RemotePairing.RelayURL, get(EnvRelayURL))
	setString(&cfg.Connectors.InjectedProviderURL, get(EnvInjectedProvider))
	setString(&cfg.Connectors.ExtensionProviderURL, get(EnvExtensionProvider))
	setString(&cfg.Connectors.ExtensionRDNS, get(EnvExtensionRDNS))
	setString(&cfg.Connectors.SignInApp, get(EnvSignInApp))
	setString(&cfg.SessionFile, get(EnvSessionFile))
	setString(&cfg.LogLevel, strings.ToLower(get(EnvLogLevel)))
	setString(&cfg.HTTPAddr, get(EnvHTTPAddr))

	if v := get(EnvDefaultChain); v != "" {
		id, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return envError(EnvDefaultChain, v, err)
		}
		cfg.DefaultChain = types.ChainID(id)
	}
	if v := get(EnvMetrics); v != "" {
		on, err := strconv.ParseBool(v)
		if err != nil {
			return envError(EnvMetrics, v, err)
		}
		cfg.EnableMetrics = on
	}
	if v := get(EnvReconnectAttempts); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return envError(EnvReconnectAttempts, v, err)
		}
		cfg.Reconnect.Attempts = n
	}

	durations := []struct {
		key string
		dst *time.Duration
	}{
		{EnvHandshakeTimeout, &cfg.HandshakeTimeout},
		{EnvReconnectBackoff, &cfg.Reconnect.InitialBackoff},
		{EnvPollInterval, &cfg.Connectors.PollInterval},
	}
	for _, d := range durations {
		v := get(d.key)
		if v == "" {
			continue
		}
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return envError(d.key, v, err)
		}
		*d.dst = parsed
	}

	if cfg.Reconnect.MaxBackoff < cfg.Reconnect.InitialBackoff {
		cfg.Reconnect.MaxBackoff = cfg.Reconnect.InitialBackoff
	}
	return nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func envError(key, value string, err error) error {
	return apperror.NewValidation(fmt.Sprintf("invalid value %q for %s", value, key), err)
}

// ConnectorDescriptors derives the connector set from cfg. Injected and
// BrowserExtension are always present; RemotePairing is added when a project
// id is configured or it is explicitly enabled.
func ConnectorDescriptors(cfg *types.Config) []types.ConnectorDescriptor {
	c := cfg.Connectors

	extension := types.ConnectorDescriptor{
		Kind:    types.ConnectorBrowserExtension,
		Name:    c.ExtensionName,
		Options: map[string]string{types.OptionRDNS: c.ExtensionRDNS},
	}
	if c.ExtensionProviderURL != "" {
		extension.Options[types.OptionProviderURL] = c.ExtensionProviderURL
	}

	injected := types.ConnectorDescriptor{Kind: types.ConnectorInjected, Options: map[string]string{}}
	if c.InjectedProviderURL != "" {
		injected.Options[types.OptionProviderURL] = c.InjectedProviderURL
	}

	out := []types.ConnectorDescriptor{extension, injected}
	if c.RemotePairing.Enabled || c.RemotePairing.ProjectID != "" {
		out = append(out, types.ConnectorDescriptor{
			Kind: types.ConnectorRemotePairing,
			Options: map[string]string{
				types.OptionProjectID: c.RemotePairing.ProjectID,
				types.OptionRelayURL:  c.RemotePairing.RelayURL,
			},
		})
	}
	return out
}
