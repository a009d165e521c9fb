package parser

import "testing"

func TestHTMLParser(t *testing.T) {
	t.Parallel()
	p := NewHTMLParser()

	tests := []struct {
		name string
		html string
		want string
	}{
		{"empty", "", ""},
		{"plain paragraphs", "<p>one</p><p>two</p>", "one\ntwo"},
		{"strips script and style", "<style>p{}</style><p>text</p><script>x()</script>", "text"},
		{"strips quoted history", "<p>reply</p><blockquote><p>original message</p></blockquote>", "reply"},
		{"collapses whitespace", "<div>a    b</div>", "a b"},
		{"line breaks", "one<br>two", "one\ntwo"},
		{"list items", "<ul><li>a</li><li>b</li></ul>", "a\nb"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := p.Parse(tc.html)
			if err != nil {
				t.Fatalf("failed to parse: %v", err)
			}
			if got != tc.want {
				t.Errorf("got %q, want %q", got, tc.want)
			}
		})
	}
}
