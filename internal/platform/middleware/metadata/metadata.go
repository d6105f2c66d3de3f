// Package metadata extracts request-scoped client metadata into context:
// request ID, request time, normalized client IP, and User-Agent.
package metadata

import (
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"trustboard/pkg/requestcontext"
)

const requestIDHeader = "X-Request-ID"

// TrustedProxies is the set of peer addresses whose X-Forwarded-For header is
// honored. Anonymous rate-limit identities key on the client IP, so a header
// from an untrusted peer must never override the connection address.
type TrustedProxies struct {
	nets []*net.IPNet
}

// ParseTrustedProxies builds the set from a list of CIDR blocks or bare IPs.
func ParseTrustedProxies(entries []string) (*TrustedProxies, error) {
	tp := &TrustedProxies{}
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if !strings.Contains(entry, "/") {
			ip := net.ParseIP(entry)
			if ip == nil {
				return nil, fmt.Errorf("trusted proxy %q: not an IP or CIDR", entry)
			}
			bits := 32
			if ip.To4() == nil {
				bits = 128
			}
			entry = fmt.Sprintf("%s/%d", ip.String(), bits)
		}
		_, ipnet, err := net.ParseCIDR(entry)
		if err != nil {
			return nil, fmt.Errorf("trusted proxy %q: %w", entry, err)
		}
		tp.nets = append(tp.nets, ipnet)
	}
	return tp, nil
}

// Trusts reports whether addr belongs to a configured proxy range. A nil set
// trusts nothing.
func (tp *TrustedProxies) Trusts(addr string) bool {
	if tp == nil {
		return false
	}
	ip := net.ParseIP(addr)
	if ip == nil {
		return false
	}
	for _, n := range tp.nets {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}

// Middleware stamps each request with an ID, a single request time, and
// client metadata. It runs first in the chain so everything downstream can
// rely on these values.
func Middleware(proxies *TrustedProxies) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := r.Header.Get(requestIDHeader)
			if requestID == "" {
				requestID = uuid.NewString()
			}
			w.Header().Set(requestIDHeader, requestID)

			ctx := r.Context()
			ctx = requestcontext.WithRequestID(ctx, requestID)
			ctx = requestcontext.WithTime(ctx, time.Now())
			ctx = requestcontext.WithClientMetadata(ctx, ClientIP(r, proxies), r.UserAgent())

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ClientIP resolves the client network address. The first X-Forwarded-For hop
// is honored only when the connecting peer is a trusted proxy; otherwise the
// connection address stands, so clients cannot mint identities by rotating
// the header. The result is a bare, lowercased host with no port so it is
// stable as a rate-limit identity key.
func ClientIP(r *http.Request, proxies *TrustedProxies) string {
	peer := peerIP(r)
	if proxies.Trusts(peer) {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			if ip := net.ParseIP(strings.TrimSpace(first)); ip != nil {
				return strings.ToLower(ip.String())
			}
		}
	}
	return peer
}

func peerIP(r *http.Request) string {
	host := r.RemoteAddr
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	if parsed := net.ParseIP(host); parsed != nil {
		return strings.ToLower(parsed.String())
	}
	return strings.ToLower(host)
}
