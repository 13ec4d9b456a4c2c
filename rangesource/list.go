package rangesource

import "strings"

// ParseList splits a plaintext range list into CIDR lines.
//
// Lines may end in "\n" or "\r\n". Each line is trimmed and blank lines are
// dropped; the remaining lines are not validated here (see cfrealip.FromLines).
func ParseList(body string) []string {
	lines := make([]string, 0, strings.Count(body, "\n")+1)
	for _, line := range strings.Split(body, "\n") {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			lines = append(lines, trimmed)
		}
	}

	return lines
}
