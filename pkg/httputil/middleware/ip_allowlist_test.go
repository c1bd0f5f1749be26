package middleware

import (
	"crypto/tls"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestIPAllowlist(t *testing.T) {
	mw, err := IPAllowlist(IPAllowlistOptions{
		Logger:   zap.NewNop(),
		Allowed:  []string{"192.0.2.10", "10.1.0.0/16", "::1"},
		AllowTLS: true,
	})
	require.NoError(t, err)

	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	tests := []struct {
		name       string
		remoteAddr string
		tls        bool
		want       int
	}{
		{"exact address", "192.0.2.10:51234", false, http.StatusOK},
		{"inside prefix", "10.1.200.3:443", false, http.StatusOK},
		{"ipv6 loopback", "[::1]:8080", false, http.StatusOK},
		{"ipv4-mapped ipv6", "[::ffff:192.0.2.10]:8080", false, http.StatusOK},
		{"outside prefix", "10.2.0.1:443", false, http.StatusForbidden},
		{"other address", "192.0.2.11:51234", false, http.StatusForbidden},
		{"unparsable", "not-an-address", false, http.StatusForbidden},
		{"tls bypasses the list", "203.0.113.9:443", true, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/view/query", nil)
			req.RemoteAddr = tt.remoteAddr
			if tt.tls {
				req.TLS = &tls.ConnectionState{}
			}
			rr := httptest.NewRecorder()

			handler.ServeHTTP(rr, req)

			assert.Equal(t, tt.want, rr.Code)
			if tt.want == http.StatusForbidden {
				assert.Equal(t, "Forbidden: Your IP address is not allowed for HTTP access.", rr.Body.String())
			}
		})
	}
}

func TestIPAllowlistEmptyAllowsAll(t *testing.T) {
	mw, err := IPAllowlist(IPAllowlistOptions{})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "203.0.113.9:1234"
	rr := httptest.NewRecorder()
	mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})).ServeHTTP(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestIPAllowlistInvalidEntries(t *testing.T) {
	for _, entry := range []string{"300.1.1.1", "10.0.0.0/40", "example.com"} {
		_, err := IPAllowlist(IPAllowlistOptions{Allowed: []string{entry}})
		assert.Error(t, err, entry)
	}
}
