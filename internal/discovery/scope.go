package discovery

import (
	"net/url"
	"strings"
)

// ScopeGuard decides whether a URL may be crawled. It is a pure function of
// the contract scope and its inputs; it performs no I/O.
type ScopeGuard struct {
	scope Scope
}

// NewScopeGuard builds a guard for one contract's scope.
func NewScopeGuard(scope Scope) ScopeGuard {
	return ScopeGuard{scope: scope}
}

// Allowed reports whether url may be crawled at the given depth.
// Depth beyond MaxDepth is rejected. When AllowDomains is non-empty the host
// must equal one of them or be a subdomain. When AllowPathsAny is non-empty
// at least one entry must appear in the URL path.
func (g ScopeGuard) Allowed(rawURL string, depth int) bool {
	if depth > g.scope.MaxDepth {
		return false
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return false
	}
	if len(g.scope.AllowDomains) > 0 && !g.domainAllowed(u.Hostname()) {
		return false
	}
	if len(g.scope.AllowPathsAny) > 0 && !g.pathAllowed(u.Path) {
		return false
	}
	return true
}

func (g ScopeGuard) domainAllowed(host string) bool {
	host = strings.ToLower(host)
	for _, allowed := range g.scope.AllowDomains {
		allowed = strings.ToLower(allowed)
		if host == allowed || strings.HasSuffix(host, "."+allowed) {
			return true
		}
	}
	return false
}

func (g ScopeGuard) pathAllowed(path string) bool {
	lower := strings.ToLower(path)
	for _, fragment := range g.scope.AllowPathsAny {
		if strings.Contains(lower, strings.ToLower(fragment)) {
			return true
		}
	}
	return false
}
