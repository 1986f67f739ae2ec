package http

import (
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// IPConfig holds configuration for IP extraction and validation
type IPConfig struct {
	TrustedProxies []string // CIDR ranges of trusted proxies

	prefixes []netip.Prefix
}

// NewIPConfig parses the trusted proxy ranges once. A bare address is taken
// as a single-host range.
func NewIPConfig(trustedProxies []string) (*IPConfig, error) {
	prefixes, err := parsePrefixes(trustedProxies, true)
	if err != nil {
		return nil, err
	}
	return &IPConfig{TrustedProxies: trustedProxies, prefixes: prefixes}, nil
}

func parsePrefixes(ranges []string, strict bool) ([]netip.Prefix, error) {
	prefixes := make([]netip.Prefix, 0, len(ranges))
	for _, raw := range ranges {
		raw = strings.TrimSpace(raw)
		if prefix, err := netip.ParsePrefix(raw); err == nil {
			prefixes = append(prefixes, prefix.Masked())
			continue
		}
		if addr, err := netip.ParseAddr(raw); err == nil {
			prefixes = append(prefixes, netip.PrefixFrom(addr.Unmap(), addr.Unmap().BitLen()))
			continue
		}
		if strict {
			return nil, fmt.Errorf("invalid trusted proxy %q", raw)
		}
	}
	return prefixes, nil
}

func (c *IPConfig) trusted() []netip.Prefix {
	if c.prefixes != nil {
		return c.prefixes
	}
	// Built as a literal: parse on demand and skip invalid ranges
	prefixes, _ := parsePrefixes(c.TrustedProxies, false)
	return prefixes
}

// ExtractClientIP resolves the client identity of a request. Forwarding
// headers are honored only when the direct peer is a trusted proxy, so a
// client cannot pick its own identity by sending them.
//
// X-Forwarded-For is walked right to left, skipping trusted hops; the first
// untrusted address is the client. X-Real-IP is the fallback, then RemoteAddr.
func ExtractClientIP(r *http.Request, config *IPConfig) string {
	remoteIP := getRemoteAddr(r)
	if config == nil {
		return remoteIP
	}

	trusted := config.trusted()
	if !isTrusted(remoteIP, trusted) {
		return remoteIP
	}

	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		var leftmost string
		hops := strings.Split(xff, ",")
		for i := len(hops) - 1; i >= 0; i-- {
			hop := strings.TrimSpace(hops[i])
			addr, err := netip.ParseAddr(hop)
			if err != nil {
				continue
			}
			leftmost = addr.Unmap().String()
			if !isTrusted(leftmost, trusted) {
				return leftmost
			}
		}
		if leftmost != "" {
			return leftmost
		}
	}

	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
		if addr, err := netip.ParseAddr(xri); err == nil {
			return addr.Unmap().String()
		}
	}

	return remoteIP
}

// getRemoteAddr extracts the IP address from RemoteAddr (removing port if present)
func getRemoteAddr(r *http.Request) string {
	if r.RemoteAddr != "" {
		if ip, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
			return ip
		}
		return r.RemoteAddr
	}
	return "unknown"
}

func isTrusted(ip string, prefixes []netip.Prefix) bool {
	if len(prefixes) == 0 {
		return false
	}

	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	addr = addr.Unmap()

	for _, prefix := range prefixes {
		if prefix.Contains(addr) {
			return true
		}
	}
	return false
}
