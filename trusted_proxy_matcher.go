package cfrealip

import "net/netip"

// trustedProxyMatcher answers membership queries for one RangeSet. Each family
// has its own binary trie so an address is only ever walked against blocks of
// its own family.
type trustedProxyMatcher struct {
	ipv4Root *prefixTrieNode
	ipv6Root *prefixTrieNode
}

type prefixTrieNode struct {
	children [2]*prefixTrieNode
	terminal bool
}

func buildTrustedProxyMatcher(v4, v6 []netip.Prefix) trustedProxyMatcher {
	matcher := trustedProxyMatcher{}

	for _, prefix := range v4 {
		if matcher.ipv4Root == nil {
			matcher.ipv4Root = &prefixTrieNode{}
		}

		bytes := prefix.Addr().As4()
		insertPrefix(matcher.ipv4Root, bytes[:], prefix.Bits())
	}

	for _, prefix := range v6 {
		if matcher.ipv6Root == nil {
			matcher.ipv6Root = &prefixTrieNode{}
		}

		bytes := prefix.Addr().As16()
		insertPrefix(matcher.ipv6Root, bytes[:], prefix.Bits())
	}

	return matcher
}

func insertPrefix(root *prefixTrieNode, addr []byte, bits int) {
	node := root
	if bits <= 0 {
		node.terminal = true
		return
	}

	for bitIndex := 0; bitIndex < bits; bitIndex++ {
		bit := addrBit(addr, bitIndex)
		child := node.children[bit]
		if child == nil {
			child = &prefixTrieNode{}
			node.children[bit] = child
		}
		node = child
	}

	node.terminal = true
}

func (m trustedProxyMatcher) contains(ip netip.Addr) bool {
	switch FamilyOf(ip) {
	case FamilyV4:
		bytes := ip.As4()
		return trieContains(m.ipv4Root, bytes[:])
	case FamilyV6:
		bytes := ip.As16()
		return trieContains(m.ipv6Root, bytes[:])
	default:
		return false
	}
}

func trieContains(root *prefixTrieNode, addr []byte) bool {
	node := root
	if node == nil {
		return false
	}

	if node.terminal {
		return true
	}

	for bitIndex := range len(addr) * 8 {
		node = node.children[addrBit(addr, bitIndex)]
		if node == nil {
			return false
		}
		if node.terminal {
			return true
		}
	}

	return false
}

func addrBit(addr []byte, bitIndex int) int {
	byteIndex := bitIndex / 8
	shift := uint(7 - (bitIndex % 8))
	if ((addr[byteIndex] >> shift) & 1) == 1 {
		return 1
	}
	return 0
}
