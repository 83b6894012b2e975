package translator

import (
	"strings"
)

// NormalizeRelayURL trims whitespace and strips trailing slashes so the
// relay base can be joined with a provider path.
func NormalizeRelayURL(raw string) string {
	return strings.TrimRight(strings.TrimSpace(raw), "/")
}

// ResolveEndpoint returns the URL a request for providerName should go to.
// With a relay configured the request is routed as {relay}/{provider}{path},
// otherwise straight to the provider's default host.
func ResolveEndpoint(relayBase, providerName, defaultHost, path string) string {
	if relay := NormalizeRelayURL(relayBase); relay != "" {
		return relay + "/" + providerName + path
	}
	return strings.TrimRight(defaultHost, "/") + path
}

// IsRelayed reports whether a relay base URL is configured.
func IsRelayed(relayBase string) bool {
	return NormalizeRelayURL(relayBase) != ""
}
