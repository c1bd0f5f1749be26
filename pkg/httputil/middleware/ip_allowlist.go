package middleware

import (
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"strings"

	"github.com/edgeflare/pgview/pkg/httputil"
	"go.uber.org/zap"
)

const ipForbiddenMessage = "Forbidden: Your IP address is not allowed for HTTP access."

// IPAllowlistOptions configures IPAllowlist.
type IPAllowlistOptions struct {
	Logger *zap.Logger
	// Allowed holds addresses ("10.0.0.7", "::1") and prefixes ("10.0.0.0/8").
	Allowed []string
	// AllowTLS lets requests over TLS through regardless of their address.
	AllowTLS bool
}

// IPAllowlist rejects requests whose remote address is not allowed with 403.
// The remote address is taken from the connection; forwarding headers are
// ignored. An empty list allows every address.
func IPAllowlist(options IPAllowlistOptions) (func(http.Handler) http.Handler, error) {
	prefixes, err := parsePrefixes(options.Allowed)
	if err != nil {
		return nil, err
	}
	logger := options.Logger
	if logger == nil {
		logger = defaultLogger
	}

	return func(next http.Handler) http.Handler {
		if len(prefixes) == 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if options.AllowTLS && r.TLS != nil {
				next.ServeHTTP(w, r)
				return
			}

			addr, ok := remoteAddr(r)
			if !ok || !contains(prefixes, addr) {
				logger.Warn("remote address not allowed",
					zap.String("req_id", httputil.RequestID(r)),
					zap.String("remote_addr", r.RemoteAddr),
				)
				httputil.Text(w, http.StatusForbidden, ipForbiddenMessage)
				return
			}
			next.ServeHTTP(w, r)
		})
	}, nil
}

func parsePrefixes(entries []string) ([]netip.Prefix, error) {
	prefixes := make([]netip.Prefix, 0, len(entries))
	for _, e := range entries {
		e = strings.TrimSpace(e)
		if e == "" {
			continue
		}
		if strings.Contains(e, "/") {
			p, err := netip.ParsePrefix(e)
			if err != nil {
				return nil, fmt.Errorf("ip allowlist: %w", err)
			}
			prefixes = append(prefixes, p.Masked())
			continue
		}
		a, err := netip.ParseAddr(e)
		if err != nil {
			return nil, fmt.Errorf("ip allowlist: %w", err)
		}
		a = a.Unmap()
		prefixes = append(prefixes, netip.PrefixFrom(a, a.BitLen()))
	}
	return prefixes, nil
}

func remoteAddr(r *http.Request) (netip.Addr, bool) {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	a, err := netip.ParseAddr(host)
	if err != nil {
		return netip.Addr{}, false
	}
	return a.Unmap().WithZone(""), true
}

func contains(prefixes []netip.Prefix, a netip.Addr) bool {
	for _, p := range prefixes {
		if p.Contains(a) {
			return true
		}
	}
	return false
}
