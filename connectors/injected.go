package connectors

import (
	"strings"
	"time"

	"github.com/vitwit/walletlink/logger"
	"github.com/vitwit/walletlink/types"
)

// DefaultExtensionRDNS identifies the browser extension preferred when no
// rdns option is configured.
const DefaultExtensionRDNS = "io.metamask"

// newInjected builds the generic connector over whatever provider the
// environment injected.
func newInjected(desc types.ConnectorDescriptor, injected Provider, pollInterval time.Duration, log logger.Logger) *providerConnector {
	if desc.Name == "" {
		desc.Name = "Injected"
	}
	return newProviderConnector(desc, injected, pollInterval, log)
}

// newExtension builds the connector for one specific announced wallet,
// matched by its reverse-DNS identifier.
func newExtension(desc types.ConnectorDescriptor, announced []ProviderDetail, pollInterval time.Duration, log logger.Logger) *providerConnector {
	rdns := desc.Option(types.OptionRDNS)
	if rdns == "" {
		rdns = DefaultExtensionRDNS
	}

	var match Provider
	for _, d := range announced {
		if strings.EqualFold(d.Info.RDNS, rdns) && d.Provider != nil {
			match = d.Provider
			if desc.Name == "" {
				desc.Name = d.Info.Name
			}
			break
		}
	}
	if desc.Name == "" {
		desc.Name = "Browser Extension"
	}
	return newProviderConnector(desc, match, pollInterval, log)
}
