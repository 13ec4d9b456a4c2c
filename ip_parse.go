package cfrealip

import (
	"net"
	"net/netip"
	"strings"
)

// Family identifies the address family of an IP address or CIDR block.
type Family int

const (
	// FamilyUnknown is returned for invalid addresses.
	FamilyUnknown Family = iota
	// FamilyV4 is IPv4.
	FamilyV4
	// FamilyV6 is IPv6, including IPv4-mapped IPv6 literals such as
	// "::ffff:192.0.2.1".
	FamilyV6
)

// String returns the canonical text representation of f.
func (f Family) String() string {
	switch f {
	case FamilyV4:
		return "v4"
	case FamilyV6:
		return "v6"
	default:
		return "unknown"
	}
}

// Classify parses text as a bare IPv4 or IPv6 literal.
//
// Surrounding whitespace is ignored. Ports, brackets and zones are rejected.
// The family of the result follows the literal: an IPv4-mapped IPv6 literal
// stays IPv6.
func Classify(text string) (netip.Addr, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return netip.Addr{}, &InvalidAddressError{Text: text, Err: ErrInvalidAddress}
	}

	addr, err := netip.ParseAddr(trimmed)
	if err != nil || addr.Zone() != "" {
		return netip.Addr{}, &InvalidAddressError{Text: text, Err: ErrInvalidAddress}
	}

	return addr, nil
}

// FamilyOf reports the family of addr.
func FamilyOf(addr netip.Addr) Family {
	switch {
	case !addr.IsValid():
		return FamilyUnknown
	case addr.Is4():
		return FamilyV4
	default:
		return FamilyV6
	}
}

// Contains reports whether addr falls inside at least one block of its own
// family. Blocks of the other family never match.
func Contains(blocks []netip.Prefix, addr netip.Addr) bool {
	family := FamilyOf(addr)
	if family == FamilyUnknown {
		return false
	}

	for _, block := range blocks {
		if !block.IsValid() || FamilyOf(block.Addr()) != family {
			continue
		}
		if block.Contains(addr) {
			return true
		}
	}

	return false
}

// parseRemoteAddr extracts the peer IP from a connection address.
// It handles:
//   - "host:port" as found in http.Request.RemoteAddr
//   - "[v6]:port" and "[v6]"
//   - bare literals
//
// Returns an invalid netip.Addr (IsValid() == false) if parsing fails.
func parseRemoteAddr(s string) netip.Addr {
	s = strings.TrimSpace(s)
	if s == "" {
		return netip.Addr{}
	}

	if host, _, err := net.SplitHostPort(s); err == nil {
		s = host
	}

	s = trimMatchedPair(s, '[', ']')

	addr, err := Classify(s)
	if err != nil {
		return netip.Addr{}
	}
	return addr
}

// parseHeaderIP parses a single header candidate. Values are trimmed and may
// be wrapped in double quotes; anything else must be a bare literal.
func parseHeaderIP(s string) netip.Addr {
	s = trimMatchedChar(strings.TrimSpace(s), '"')

	addr, err := Classify(s)
	if err != nil {
		return netip.Addr{}
	}
	return addr
}

// trimMatchedPair removes one leading and trailing delimiter when both match.
func trimMatchedPair(s string, start, end byte) string {
	if len(s) < 2 {
		return s
	}

	if s[0] != start || s[len(s)-1] != end {
		return s
	}

	return s[1 : len(s)-1]
}

// trimMatchedChar removes one matching leading and trailing character.
func trimMatchedChar(s string, ch byte) string {
	return trimMatchedPair(s, ch, ch)
}
