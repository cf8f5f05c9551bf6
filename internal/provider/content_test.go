package provider

import "testing"

func TestHTMLStripKeepsVisibleText(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"entities", "<p>BTC &lt; $70k &amp; falling</p>", "BTC < $70k & falling"},
		{"angle bracket in attribute", `<a title="fees > 2%" href="/x">ETH gas spikes</a>`, "ETH gas spikes"},
		{"bare comparison", "Bitcoin > gold and 1 < 2", "Bitcoin > gold and 1 < 2"},
		{"script dropped", `Solana<script>var s = "<b>pump</b>";</script> halts`, "Solana halts"},
		{"block tags separate", "line one<br>line two<p>next</p>", "line one line two next"},
		{"inline tags join", "price <b>up</b>3%", "price up3%"},
		{"blank", "  ", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := sanitizeText(htmlStrip(tc.in), 0); got != tc.want {
				t.Fatalf("htmlStrip(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}
