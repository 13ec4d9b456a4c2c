package cfrealip

import (
	"errors"
	"fmt"
	"net/netip"
)

var (
	ErrInvalidAddress = errors.New("invalid IP address")

	ErrInvalidCIDR = errors.New("invalid CIDR block")

	ErrFamilyMismatch = errors.New("CIDR block in wrong address family list")
)

// InvalidAddressError reports text that is not an IPv4 or IPv6 literal.
type InvalidAddressError struct {
	Text string
	Err  error
}

func (e *InvalidAddressError) Error() string {
	return fmt.Sprintf("%v: %q", e.Err, e.Text)
}

func (e *InvalidAddressError) Unwrap() error {
	return e.Err
}

// RangeSetError reports the first line that made range set construction
// fail. No partially built set is ever returned alongside it.
type RangeSetError struct {
	Family Family
	Index  int
	Line   string
	Err    error
}

func (e *RangeSetError) Error() string {
	return fmt.Sprintf("%s range %d: %v (line=%q)", e.Family, e.Index, e.Err, e.Line)
}

func (e *RangeSetError) Unwrap() error {
	return e.Err
}

// Source names reported in Resolution.Source.
const (
	SourceCFConnectingIP = "cf_connecting_ip"
	SourceTrueClientIP   = "true_client_ip"
	SourceXForwardedFor  = "x_forwarded_for"
	SourceRemoteAddr     = "remote_addr"
)

// Resolution is the outcome of one trust decision.
type Resolution struct {
	// Trusted reports whether the peer is a Cloudflare edge that sent a
	// Cloudflare client IP header.
	Trusted bool

	// IP is the resolved client address. It is valid only when Trusted.
	IP netip.Addr

	// BestGuess is the permissive answer, returned regardless of trust.
	// Use it for diagnostics, never for security decisions.
	BestGuess netip.Addr

	// Source names where BestGuess came from, or "" when nothing resolved.
	Source string

	// Peer is the parsed direct peer address, invalid if unparseable.
	Peer netip.Addr
}

// Valid reports whether r carries a trusted client address.
func (r Resolution) Valid() bool {
	return r.Trusted && r.IP.IsValid()
}
