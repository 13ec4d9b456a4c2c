package rangesource

import (
	"fmt"
	"strings"

	json "github.com/goccy/go-json"

	"github.com/abczzz13/cfrealip"
)

// Snapshot is the persisted form of a range set.
type Snapshot struct {
	V4 []string `json:"v4"`
	V6 []string `json:"v6"`
}

// SnapshotOf returns the persisted form of set.
func SnapshotOf(set *cfrealip.RangeSet) Snapshot {
	v4, v6 := set.Lines()
	return Snapshot{V4: v4, V6: v6}
}

// RangeSet builds the range set described by s. Blank lines are ignored;
// any other bad line fails the whole conversion.
func (s Snapshot) RangeSet() (*cfrealip.RangeSet, error) {
	return cfrealip.FromLines(compactLines(s.V4), compactLines(s.V6))
}

// EncodeSnapshot renders set as an indented JSON snapshot document.
func EncodeSnapshot(set *cfrealip.RangeSet) ([]byte, error) {
	data, err := json.MarshalIndent(SnapshotOf(set), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode range snapshot: %w", err)
	}

	return append(data, '\n'), nil
}

// DecodeSnapshot parses a JSON snapshot document into a range set.
func DecodeSnapshot(data []byte) (*cfrealip.RangeSet, error) {
	var snapshot Snapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, fmt.Errorf("decode range snapshot: %w", err)
	}

	set, err := snapshot.RangeSet()
	if err != nil {
		return nil, fmt.Errorf("decode range snapshot: %w", err)
	}

	return set, nil
}

func compactLines(lines []string) []string {
	compacted := make([]string, 0, len(lines))
	for _, line := range lines {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			compacted = append(compacted, trimmed)
		}
	}

	return compacted
}
