// Package originguard validates that state-changing requests originate from
// an allowed front-end host. It is the first gate in the mutation chain:
// rejecting a forged request here, before the rate limiter runs, keeps forged
// traffic from consuming a victim's rate-limit budget.
package originguard

import (
	"net/url"
	"strings"

	dErrors "trustboard/pkg/domainerrors"
)

// Guard holds the configured allow-list of front-end hosts. Matching is by
// hostname only; scheme and port do not participate.
type Guard struct {
	allowed map[string]struct{}
}

// New builds a Guard from the configured host list. Entries may be bare hosts
// or full URLs; either way only the hostname is kept.
func New(hosts []string) *Guard {
	allowed := make(map[string]struct{}, len(hosts))
	for _, h := range hosts {
		if host := hostOf(h); host != "" {
			allowed[host] = struct{}{}
		}
	}
	return &Guard{allowed: allowed}
}

// Validate checks the request's declared origin against the allow-list. The
// Origin header wins when present; Referer is the fallback for older agents.
// A request declaring neither is rejected: state-changing requests from the
// front-end always carry one of the two.
func (g *Guard) Validate(origin, referer string) error {
	declared := origin
	if declared == "" {
		declared = referer
	}
	if declared == "" {
		return dErrors.New(dErrors.CodeForbidden, "missing origin")
	}

	host := hostOf(declared)
	if host == "" {
		return dErrors.New(dErrors.CodeForbidden, "unparseable origin")
	}
	if _, ok := g.allowed[host]; !ok {
		return dErrors.Newf(dErrors.CodeForbidden, "origin %q not allowed", host)
	}
	return nil
}

// hostOf extracts a lowercased hostname from a URL or bare host string.
func hostOf(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if strings.Contains(raw, "://") {
		u, err := url.Parse(raw)
		if err != nil {
			return ""
		}
		return strings.ToLower(u.Hostname())
	}
	// Bare "host" or "host:port" allow-list entry.
	host, _, found := strings.Cut(raw, ":")
	if !found {
		host = raw
	}
	return strings.ToLower(host)
}
