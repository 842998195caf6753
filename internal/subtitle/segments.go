package subtitle

import (
	"regexp"
	"strings"
)

// emojiToken matches inline emoji references such as "[emoji:fire]".
var emojiToken = regexp.MustCompile(`\[emoji:([^\]\s]+)\]`)

// segment is either a plain text run or an emoji reference, never both.
type segment struct {
	text  string
	emoji string
}

func (s segment) isEmoji() bool { return s.emoji != "" }

// splitLines breaks text on hard line breaks and then splits every line into
// alternating plain and emoji segments. Empty plain runs are dropped, but an
// empty line still yields one (empty) entry so it keeps its height.
func splitLines(text string) [][]segment {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	raw := strings.Split(text, "\n")
	lines := make([][]segment, 0, len(raw))
	for _, line := range raw {
		lines = append(lines, splitSegments(line))
	}
	return lines
}

func splitSegments(line string) []segment {
	var out []segment
	last := 0
	for _, m := range emojiToken.FindAllStringSubmatchIndex(line, -1) {
		if m[0] > last {
			out = append(out, segment{text: line[last:m[0]]})
		}
		out = append(out, segment{emoji: line[m[2]:m[3]]})
		last = m[1]
	}
	if last < len(line) {
		out = append(out, segment{text: line[last:]})
	}
	return out
}
