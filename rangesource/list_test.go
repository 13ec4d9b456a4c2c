package rangesource

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestParseList(t *testing.T) {
	tests := []struct {
		name string
		body string
		want []string
	}{
		{
			name: "unix newlines",
			body: "173.245.48.0/20\n103.21.244.0/22\n",
			want: []string{"173.245.48.0/20", "103.21.244.0/22"},
		},
		{
			name: "crlf and padding",
			body: "  173.245.48.0/20 \r\n\t103.21.244.0/22\r\n",
			want: []string{"173.245.48.0/20", "103.21.244.0/22"},
		},
		{
			name: "blank lines dropped",
			body: "\n\n2400:cb00::/32\n   \n2606:4700::/32",
			want: []string{"2400:cb00::/32", "2606:4700::/32"},
		},
		{
			name: "garbage kept for validation",
			body: "not-a-cidr\n",
			want: []string{"not-a-cidr"},
		},
		{
			name: "empty body",
			body: "",
			want: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, ParseList(tt.body)); diff != "" {
				t.Fatalf("ParseList() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}
