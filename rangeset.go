package cfrealip

import (
	_ "embed"
	"fmt"
	"net/netip"
	"strings"
	"sync"

	json "github.com/goccy/go-json"
)

// RangeSet is an immutable snapshot of trusted proxy CIDR blocks.
//
// A RangeSet is never modified after construction; updates build a new set
// and replace the old one wholesale (see RangeStore). A nil *RangeSet behaves
// like Empty().
type RangeSet struct {
	v4      []netip.Prefix
	v6      []netip.Prefix
	matcher trustedProxyMatcher
}

var emptyRangeSet = &RangeSet{}

// Empty returns the range set used before any load has happened. Contains
// always reports false for it.
func Empty() *RangeSet {
	return emptyRangeSet
}

// FromLines builds a RangeSet from CIDR literals, one per line.
//
// Construction is atomic: the first line that does not parse, or that names a
// block of the wrong family, fails the whole call with a *RangeSetError.
func FromLines(v4Lines, v6Lines []string) (*RangeSet, error) {
	v4, err := parseFamilyLines(FamilyV4, v4Lines)
	if err != nil {
		return nil, err
	}

	v6, err := parseFamilyLines(FamilyV6, v6Lines)
	if err != nil {
		return nil, err
	}

	return newRangeSet(v4, v6), nil
}

// FromPrefixes builds a RangeSet from already parsed prefixes, with the same
// validation rules as FromLines.
func FromPrefixes(v4, v6 []netip.Prefix) (*RangeSet, error) {
	normalizedV4, err := normalizeFamilyPrefixes(FamilyV4, v4)
	if err != nil {
		return nil, err
	}

	normalizedV6, err := normalizeFamilyPrefixes(FamilyV6, v6)
	if err != nil {
		return nil, err
	}

	return newRangeSet(normalizedV4, normalizedV6), nil
}

// MustFromLines is like FromLines but panics on error. It is intended for
// static tables in tests and program initialization.
func MustFromLines(v4Lines, v6Lines []string) *RangeSet {
	set, err := FromLines(v4Lines, v6Lines)
	if err != nil {
		panic(fmt.Sprintf("cfrealip: %v", err))
	}
	return set
}

func newRangeSet(v4, v6 []netip.Prefix) *RangeSet {
	if len(v4) == 0 && len(v6) == 0 {
		return emptyRangeSet
	}

	return &RangeSet{
		v4:      v4,
		v6:      v6,
		matcher: buildTrustedProxyMatcher(v4, v6),
	}
}

func parseFamilyLines(family Family, lines []string) ([]netip.Prefix, error) {
	prefixes := make([]netip.Prefix, 0, len(lines))
	for i, line := range lines {
		prefix, err := netip.ParsePrefix(strings.TrimSpace(line))
		if err != nil {
			return nil, &RangeSetError{Family: family, Index: i, Line: line, Err: fmt.Errorf("%w: %v", ErrInvalidCIDR, err)}
		}
		if FamilyOf(prefix.Addr()) != family {
			return nil, &RangeSetError{Family: family, Index: i, Line: line, Err: ErrFamilyMismatch}
		}

		prefixes = append(prefixes, prefix.Masked())
	}

	return prefixes, nil
}

func normalizeFamilyPrefixes(family Family, prefixes []netip.Prefix) ([]netip.Prefix, error) {
	normalized := make([]netip.Prefix, 0, len(prefixes))
	for i, prefix := range prefixes {
		if !prefix.IsValid() {
			return nil, &RangeSetError{Family: family, Index: i, Line: prefix.String(), Err: ErrInvalidCIDR}
		}
		if FamilyOf(prefix.Addr()) != family {
			return nil, &RangeSetError{Family: family, Index: i, Line: prefix.String(), Err: ErrFamilyMismatch}
		}

		normalized = append(normalized, prefix.Masked())
	}

	return normalized, nil
}

// Contains reports whether addr belongs to a block of its own family.
func (s *RangeSet) Contains(addr netip.Addr) bool {
	if s == nil {
		return false
	}
	return s.matcher.contains(addr)
}

// V4 returns a copy of the IPv4 blocks in load order.
func (s *RangeSet) V4() []netip.Prefix {
	if s == nil {
		return nil
	}
	return clonePrefixes(s.v4)
}

// V6 returns a copy of the IPv6 blocks in load order.
func (s *RangeSet) V6() []netip.Prefix {
	if s == nil {
		return nil
	}
	return clonePrefixes(s.v6)
}

// Blocks returns a copy of the blocks for family.
func (s *RangeSet) Blocks(family Family) []netip.Prefix {
	switch family {
	case FamilyV4:
		return s.V4()
	case FamilyV6:
		return s.V6()
	default:
		return nil
	}
}

// Len returns the total number of blocks.
func (s *RangeSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.v4) + len(s.v6)
}

// IsEmpty reports whether s holds no blocks.
func (s *RangeSet) IsEmpty() bool {
	return s.Len() == 0
}

// Lines returns the blocks as CIDR literals, suitable for persisting.
func (s *RangeSet) Lines() (v4, v6 []string) {
	if s == nil {
		return []string{}, []string{}
	}
	return prefixStrings(s.v4), prefixStrings(s.v6)
}

// Equal reports whether s and other hold the same blocks in the same order.
func (s *RangeSet) Equal(other *RangeSet) bool {
	if s.Len() != other.Len() {
		return false
	}

	return equalPrefixes(s.V4(), other.V4()) && equalPrefixes(s.V6(), other.V6())
}

// String summarizes s for logs.
func (s *RangeSet) String() string {
	if s == nil {
		return "RangeSet{v4=0 v6=0}"
	}
	return fmt.Sprintf("RangeSet{v4=%d v6=%d}", len(s.v4), len(s.v6))
}

//go:embed ranges.json
var bundledRanges []byte

var (
	defaultOnce sync.Once
	defaultSet  *RangeSet
)

// Default returns the Cloudflare ranges bundled with the package. It lets a
// process trust Cloudflare before its first successful refresh.
func Default() *RangeSet {
	defaultOnce.Do(func() {
		var snapshot struct {
			V4 []string `json:"v4"`
			V6 []string `json:"v6"`
		}
		if err := json.Unmarshal(bundledRanges, &snapshot); err != nil {
			panic(fmt.Sprintf("cfrealip: invalid bundled ranges: %v", err))
		}
		defaultSet = MustFromLines(snapshot.V4, snapshot.V6)
	})

	return defaultSet
}

func clonePrefixes(prefixes []netip.Prefix) []netip.Prefix {
	if prefixes == nil {
		return nil
	}
	cloned := make([]netip.Prefix, len(prefixes))
	copy(cloned, prefixes)
	return cloned
}

func prefixStrings(prefixes []netip.Prefix) []string {
	lines := make([]string, len(prefixes))
	for i, prefix := range prefixes {
		lines[i] = prefix.String()
	}
	return lines
}

func equalPrefixes(a, b []netip.Prefix) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
