package cfrealip

import "net/netip"

// cfHeaderValue returns the Cloudflare client IP header that gates trust:
// Cf-Connecting-Ip if present, else True-Client-Ip.
func cfHeaderValue(headers HeaderValues) (value, source string) {
	if v := headerValue(headers, HeaderCFConnectingIP); v != "" {
		return v, SourceCFConnectingIP
	}
	if v := headerValue(headers, HeaderTrueClientIP); v != "" {
		return v, SourceTrueClientIP
	}
	return "", ""
}

// Resolve decides whether peer is a trusted Cloudflare edge and which client
// address the request carries.
//
// peer is the direct connection address, with or without a port. The peer is
// trusted only when a Cloudflare header is present and the peer falls inside
// ranges. Resolve has no side effects and is safe for concurrent use; a nil
// or empty ranges never trusts anything.
func Resolve(peer string, headers HeaderValues, ranges *RangeSet) Resolution {
	peerAddr := parseRemoteAddr(peer)

	result := Resolution{Peer: peerAddr}
	result.BestGuess, result.Source = bestGuess(peerAddr, headers)

	cf, cfSource := cfHeaderValue(headers)
	if cf != "" && peerAddr.IsValid() {
		result.Trusted = ranges.Contains(peerAddr)
	}

	// The strict IP only comes from the header that gated trust. A trusted
	// edge whose gating header does not parse yields no IP rather than the
	// next header or the edge's own address.
	if result.Trusted && result.Source == cfSource {
		result.IP = result.BestGuess
	}

	return result
}

// IsTrusted reports whether the request came through a trusted Cloudflare edge.
func IsTrusted(peer string, headers HeaderValues, ranges *RangeSet) bool {
	return Resolve(peer, headers, ranges).Trusted
}

// TrustedIP returns the client address only when the peer is trusted.
func TrustedIP(peer string, headers HeaderValues, ranges *RangeSet) (netip.Addr, bool) {
	result := Resolve(peer, headers, ranges)
	return result.IP, result.Valid()
}

// BestGuessIP returns the most plausible client address regardless of trust:
// Cf-Connecting-Ip, True-Client-Ip, the leftmost X-Forwarded-For entry, then
// the peer itself. It returns an invalid netip.Addr when nothing parses.
//
// The result can be forged by any client and must not drive security
// decisions.
func BestGuessIP(peer string, headers HeaderValues) netip.Addr {
	addr, _ := bestGuess(parseRemoteAddr(peer), headers)
	return addr
}

// bestGuess walks the candidates in order. A present candidate that is not an
// IP literal is skipped in favor of the next one.
func bestGuess(peer netip.Addr, headers HeaderValues) (netip.Addr, string) {
	candidates := [...]struct {
		value  string
		source string
	}{
		{headerValue(headers, HeaderCFConnectingIP), SourceCFConnectingIP},
		{headerValue(headers, HeaderTrueClientIP), SourceTrueClientIP},
		{firstForwardedFor(headers), SourceXForwardedFor},
	}

	for _, candidate := range candidates {
		if candidate.value == "" {
			continue
		}
		if addr := parseHeaderIP(candidate.value); addr.IsValid() {
			return addr, candidate.source
		}
	}

	if peer.IsValid() {
		return peer, SourceRemoteAddr
	}

	return netip.Addr{}, ""
}
