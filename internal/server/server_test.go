package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	json "github.com/goccy/go-json"
	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abczzz13/cfrealip"
	"github.com/abczzz13/cfrealip/cfhttp"
	cfrealipprom "github.com/abczzz13/cfrealip/prometheus"
)

type stubRefresher struct {
	current *cfrealip.RangeSet
	next    *cfrealip.RangeSet
	err     error
	calls   int
}

func (s *stubRefresher) Refresh(context.Context) (*cfrealip.RangeSet, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	s.current = s.next
	return s.next, nil
}

func (s *stubRefresher) Ranges() *cfrealip.RangeSet {
	return s.current
}

var edgeRanges = cfrealip.MustFromLines(
	[]string{"103.21.244.0/22"},
	[]string{"2400:cb00::/32"},
)

func newTestServer(t *testing.T, refresher *stubRefresher, opts ...cfhttp.Option) (*httptest.Server, *prom.Registry) {
	t.Helper()

	registry := prom.NewRegistry()
	resolver, err := cfrealip.New(
		cfrealip.WithRanges(refresher),
		cfrealipprom.WithRegisterer(registry),
	)
	require.NoError(t, err)

	srv := httptest.NewServer(New(resolver, refresher, registry, opts...).Handler())
	t.Cleanup(srv.Close)
	return srv, registry
}

// handlerRequest drives the handler directly so RemoteAddr can be chosen.
func handlerRequest(t *testing.T, refresher *stubRefresher, remoteAddr, path string, headers map[string]string, opts ...cfhttp.Option) *httptest.ResponseRecorder {
	t.Helper()

	resolver, err := cfrealip.New(cfrealip.WithRanges(refresher))
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, path, nil)
	req.RemoteAddr = remoteAddr
	for name, value := range headers {
		req.Header.Set(name, value)
	}

	rec := httptest.NewRecorder()
	New(resolver, refresher, prom.NewRegistry(), opts...).Handler().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, body io.Reader) T {
	t.Helper()

	var v T
	require.NoError(t, json.NewDecoder(body).Decode(&v))
	return v
}

func strPtr(s string) *string {
	return &s
}

func TestCheck(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		headers    map[string]string
		want       checkResponse
	}{
		{
			name:       "trusted v4 edge",
			remoteAddr: "103.21.244.5:443",
			headers:    map[string]string{"CF-Connecting-IP": "203.0.113.45"},
			want: checkResponse{
				IsFromCloudflare: true,
				RealIP:           strPtr("203.0.113.45"),
				TrustedIP:        strPtr("203.0.113.45"),
				SocketIP:         strPtr("103.21.244.5"),
			},
		},
		{
			name:       "trusted v6 edge",
			remoteAddr: "[2400:cb00::1]:443",
			headers:    map[string]string{"CF-Connecting-IP": "2001:db8::45"},
			want: checkResponse{
				IsFromCloudflare: true,
				RealIP:           strPtr("2001:db8::45"),
				TrustedIP:        strPtr("2001:db8::45"),
				SocketIP:         strPtr("2400:cb00::1"),
			},
		},
		{
			name:       "spoofed header",
			remoteAddr: "8.8.8.8:1234",
			headers:    map[string]string{"CF-Connecting-IP": "203.0.113.45"},
			want: checkResponse{
				RealIP:   strPtr("203.0.113.45"),
				SocketIP: strPtr("8.8.8.8"),
			},
		},
		{
			name:       "edge without cloudflare header",
			remoteAddr: "103.21.244.5:443",
			headers:    map[string]string{"X-Forwarded-For": "198.51.100.7, 10.0.0.1"},
			want: checkResponse{
				RealIP:   strPtr("198.51.100.7"),
				SocketIP: strPtr("103.21.244.5"),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := handlerRequest(t, &stubRefresher{current: edgeRanges}, tt.remoteAddr, "/check", tt.headers)

			require.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
			assert.Equal(t, tt.want, decode[checkResponse](t, rec.Body))
		})
	}
}

func TestIndex_RewriteKeepsSocketAddress(t *testing.T) {
	rec := handlerRequest(t,
		&stubRefresher{current: edgeRanges},
		"103.21.244.5:443",
		"/",
		map[string]string{"CF-Connecting-IP": "203.0.113.45"},
		cfhttp.WithRemoteAddrRewrite(),
	)

	require.Equal(t, http.StatusOK, rec.Code)

	got := decode[indexResponse](t, rec.Body)
	require.NotNil(t, got.RealIP)
	assert.Equal(t, "203.0.113.45", *got.RealIP)
	assert.Equal(t, "103.21.244.5", got.SocketRemoteAddress)
	assert.True(t, got.Trusted)
	assert.Equal(t, cfrealip.SourceCFConnectingIP, got.Source)
	assert.Equal(t, "203.0.113.45", got.Headers.CFConnectingIP)
}

func TestIndex_UntrustedHasNullRealIP(t *testing.T) {
	rec := handlerRequest(t, &stubRefresher{current: edgeRanges}, "8.8.8.8:1234", "/", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"realIp":null`)
}

func TestRequireTrusted_LeavesOperatorRoutesOpen(t *testing.T) {
	refresher := &stubRefresher{current: edgeRanges}

	rec := handlerRequest(t, refresher, "8.8.8.8:1234", "/check", nil, cfhttp.WithRequireTrusted())
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = handlerRequest(t, refresher, "8.8.8.8:1234", "/ranges", nil, cfhttp.WithRequireTrusted())
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestUpdateRanges(t *testing.T) {
	next := cfrealip.MustFromLines(
		[]string{"173.245.48.0/20", "103.21.244.0/22"},
		[]string{"2400:cb00::/32"},
	)
	refresher := &stubRefresher{current: edgeRanges, next: next}
	srv, _ := newTestServer(t, refresher)

	for _, method := range []string{http.MethodGet, http.MethodPost} {
		req, err := http.NewRequest(method, srv.URL+"/update-ranges", nil)
		require.NoError(t, err)

		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)

		body := decode[updateResponse](t, resp.Body)
		resp.Body.Close()

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, updateResponse{Message: "Cloudflare IP ranges updated", IPv4Count: 2, IPv6Count: 1}, body)
	}

	assert.Equal(t, 2, refresher.calls)
}

func TestUpdateRanges_Failure(t *testing.T) {
	refresher := &stubRefresher{current: edgeRanges, err: errors.New("range fetch failed: status 503")}
	srv, _ := newTestServer(t, refresher)

	resp, err := http.Post(srv.URL+"/update-ranges", "text/plain", nil)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	body := decode[errorResponse](t, resp.Body)
	assert.Equal(t, "Failed to update ranges", body.Error)
	assert.Contains(t, body.Message, "503")
}

func TestRanges(t *testing.T) {
	srv, _ := newTestServer(t, &stubRefresher{current: edgeRanges})

	resp, err := http.Get(srv.URL + "/ranges")
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.JSONEq(t, `{"v4":["103.21.244.0/22"],"v6":["2400:cb00::/32"]}`, string(body))
}

func TestMetrics(t *testing.T) {
	srv, _ := newTestServer(t, &stubRefresher{current: edgeRanges})

	resp, err := http.Get(srv.URL + "/check")
	require.NoError(t, err)
	resp.Body.Close()

	resp, err = http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, strings.Contains(string(body), "cfrealip_resolutions_total"), "metrics output:\n%s", body)
}
