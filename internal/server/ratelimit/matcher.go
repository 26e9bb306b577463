package ratelimit

import "strings"

// unlimited is returned for routes that are never throttled.
var unlimited = &EndpointConfig{Path: "unlimited"}

// MatchEndpoint returns the rule for a request, or nil to use the default limit.
// Exact paths win over prefix rules. Health checks and static assets are unlimited.
func MatchEndpoint(path, method string, configs []EndpointConfig) *EndpointConfig {
	if method == "GET" && (path == "/health" || strings.HasPrefix(path, "/static/")) {
		return unlimited
	}

	for i := range configs {
		if configs[i].Method == method && configs[i].Path == path {
			return &configs[i]
		}
	}

	for i := range configs {
		c := &configs[i]
		if c.Method == method && strings.HasSuffix(c.Path, "/") && strings.HasPrefix(path, c.Path) {
			return c
		}
	}

	return nil
}
