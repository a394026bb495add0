package auth

import "strings"

// PublicEndpoints are reachable without a token. Probes and the Prometheus
// scraper cannot present credentials.
var PublicEndpoints = []string{
	"/health",
	"/ready",
	"/live",
	"/metrics",
}

// IsPublicEndpoint matches path exactly, with a trailing slash, or with a
// query string. Sub paths are not public.
func IsPublicEndpoint(path string) bool {
	for _, ep := range PublicEndpoints {
		if path == ep || path == ep+"/" || strings.HasPrefix(path, ep+"?") {
			return true
		}
	}
	return false
}
