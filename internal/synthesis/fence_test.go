package synthesis

import "testing"

func TestStripFence(t *testing.T) {
	cases := map[string]string{
		"```markdown\n# Title\n\nBody\n```": "# Title\n\nBody",
		"```\nplain\n```":                   "plain",
		"```MD\ntext\n```":                  "text",
		"```html\n<p>x</p>\n```":            "<p>x</p>",
		"no fence":                          "no fence",
		"```\nhtml is a word here\n```":     "html is a word here",
		"```\n```":                          "",
	}
	for in, want := range cases {
		if got := stripFence(in); got != want {
			t.Fatalf("stripFence(%q) = %q, want %q", in, got, want)
		}
	}
}
