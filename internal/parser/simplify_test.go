package parser

import "testing"

func TestSimplify(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "hello", "hello"},
		{"crlf", "one\r\ntwo", "one\ntwo"},
		{
			"signature",
			"see you\n-- \nAlice\nalice@example.org",
			"see you",
		},
		{
			"signature without trailing space",
			"see you\n--\nAlice",
			"see you",
		},
		{
			"trailing quote",
			"sounds good\n\n> are you coming?\n> tomorrow at 8",
			"sounds good",
		},
		{
			"quote with wrote line",
			"sounds good\n\nOn Mon, Alice wrote:\n> are you coming?",
			"sounds good",
		},
		{
			"leading quote kept",
			"> context\nmy answer",
			"> context\nmy answer",
		},
		{
			"quote only",
			"> everything quoted",
			"",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := Simplify(tc.in); got != tc.want {
				t.Errorf("got %q, want %q", got, tc.want)
			}
		})
	}
}
