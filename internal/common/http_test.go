package common_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kiranahub/backend-pos/internal/common"
)

func TestClientIPPrefersForwardedFor(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "10.0.0.1:54321"
	r.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")

	require.Equal(t, "203.0.113.7", common.ClientIP(r))
}

func TestClientIPRealIPHeader(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "10.0.0.1:54321"
	r.Header.Set("X-Real-IP", "198.51.100.4")

	require.Equal(t, "198.51.100.4", common.ClientIP(r))
}

func TestClientIPSplitsRemoteAddrPort(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "192.0.2.10:8080"

	require.Equal(t, "192.0.2.10", common.ClientIP(r))
}

func TestClientIPHandlesIPv6RemoteAddr(t *testing.T) {
	// bracketed IPv6 must not collapse into a shared "[" bucket
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "[2001:db8::1]:51000"

	require.Equal(t, "2001:db8::1", common.ClientIP(r))
}
