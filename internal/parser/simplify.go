package parser

import "strings"

// Simplify reduces a mail body to the text shown as a chat message:
// the signature and the trailing quoted history are dropped, the chat
// already carries what they would repeat.
func Simplify(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	lines := strings.Split(text, "\n")

	// Cut at the signature delimiter. The standard form is "-- ",
	// but some clients trim the trailing space.
	for i, line := range lines {
		if line == "-- " || line == "--" {
			lines = lines[:i]
			break
		}
	}

	// Drop a trailing block of quoted lines, including the
	// "... wrote:" line that usually introduces it.
	end := len(lines)
	for end > 0 && strings.TrimSpace(lines[end-1]) == "" {
		end--
	}
	start := end
	for start > 0 && strings.HasPrefix(strings.TrimSpace(lines[start-1]), ">") {
		start--
	}
	if start < end {
		intro := start
		for intro > 0 && strings.TrimSpace(lines[intro-1]) == "" {
			intro--
		}
		if intro > 0 && strings.HasSuffix(strings.TrimSpace(lines[intro-1]), ":") {
			start = intro - 1
		}
		lines = lines[:start]
	}

	return strings.TrimSpace(strings.Join(lines, "\n"))
}
