package cfrealip

import (
	"net/http"
	"net/netip"
	"net/url"
	"testing"
)

// resolutionView is a comparable, string-based snapshot of a Resolution.
type resolutionView struct {
	Trusted   bool
	IP        string
	BestGuess string
	Source    string
	Peer      string
}

func viewOf(result Resolution) resolutionView {
	view := resolutionView{
		Trusted: result.Trusted,
		Source:  result.Source,
	}

	if result.IP.IsValid() {
		view.IP = result.IP.String()
	}
	if result.BestGuess.IsValid() {
		view.BestGuess = result.BestGuess.String()
	}
	if result.Peer.IsValid() {
		view.Peer = result.Peer.String()
	}

	return view
}

func testRanges(t testing.TB) *RangeSet {
	t.Helper()

	set, err := FromLines(
		[]string{"173.245.48.0/20", "103.21.244.0/22", "104.16.0.0/13"},
		[]string{"2400:cb00::/32", "2606:4700::/32"},
	)
	if err != nil {
		t.Fatalf("FromLines() error = %v", err)
	}

	return set
}

func mustNewResolver(t *testing.T, opts ...Option) *Resolver {
	t.Helper()

	resolver, err := New(opts...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	return resolver
}

func mustPrefixes(t testing.TB, cidrs ...string) []netip.Prefix {
	t.Helper()

	prefixes := make([]netip.Prefix, 0, len(cidrs))
	for _, cidr := range cidrs {
		prefix, err := netip.ParsePrefix(cidr)
		if err != nil {
			t.Fatalf("netip.ParsePrefix(%q) error = %v", cidr, err)
		}
		prefixes = append(prefixes, prefix)
	}

	return prefixes
}

func newTestRequest(remoteAddr, path string) *http.Request {
	req := &http.Request{
		RemoteAddr: remoteAddr,
		Header:     make(http.Header),
	}

	if path != "" {
		req.URL = &url.URL{Path: path}
	}

	return req
}
