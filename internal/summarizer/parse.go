package summarizer

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"convwin/internal/conversation"
)

// Priority markers.
const (
	PriorityHigh   = "🔴"
	PriorityMedium = "🟡"
	PriorityLow    = "🟢"
)

// noneReply is what the model is told to answer when nothing is worth keeping.
const noneReply = "NONE"

var markers = []struct {
	prefix   string
	priority string
}{
	{PriorityHigh, PriorityHigh},
	{PriorityMedium, PriorityMedium},
	{PriorityLow, PriorityLow},
	{"[high]", PriorityHigh},
	{"[medium]", PriorityMedium},
	{"[low]", PriorityLow},
}

// ParseObservations turns a model reply into observations, one per line.
//
// List bullets are stripped and a leading priority marker becomes the
// observation's priority (🟢 when absent). Unmarked lines ending in a colon
// and markdown headings are skipped. An empty or NONE reply yields nil.
func ParseObservations(text string) []conversation.Observation {
	var out []conversation.Observation
	for _, raw := range strings.Split(text, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" || strings.EqualFold(line, noneReply) {
			continue
		}
		line = stripBullet(line)

		priority, rest, marked := splitMarker(line)
		if !marked && isHeading(rest) {
			continue
		}
		rest = trimSeparator(rest)
		if rest == "" {
			continue
		}
		out = append(out, conversation.Observation{Priority: priority, Content: rest})
	}
	return out
}

// stripBullet removes a list bullet ("-", "*", "•", "1.", "2)") that is
// followed by whitespace or a priority marker. "-5°C" and "**bold**" are
// content, not bullets.
func stripBullet(line string) string {
	for _, b := range []string{"-", "*", "•"} {
		if rest, ok := strings.CutPrefix(line, b); ok && bulletEnds(rest) {
			return strings.TrimSpace(rest)
		}
	}
	i := 0
	for i < len(line) && line[i] >= '0' && line[i] <= '9' {
		i++
	}
	if i > 0 && i < len(line) && (line[i] == '.' || line[i] == ')') && bulletEnds(line[i+1:]) {
		return strings.TrimSpace(line[i+1:])
	}
	return line
}

func bulletEnds(rest string) bool {
	if rest == "" {
		return true
	}
	r, _ := utf8.DecodeRuneInString(rest)
	if unicode.IsSpace(r) {
		return true
	}
	_, _, marked := splitMarker(rest)
	return marked
}

// isHeading reports whether an unmarked line is a section title such as
// "Decisions:", "**Decisions:**" or "## Decisions".
func isHeading(line string) bool {
	if rest, ok := strings.CutPrefix(line, "#"); ok {
		rest = strings.TrimLeft(rest, "#")
		return rest == "" || rest[0] == ' '
	}
	return strings.HasSuffix(strings.TrimRight(line, "*_ "), ":")
}

// trimSeparator drops a separator left between a marker and the text,
// as in "🔴: x" or "🔴 - x". A leading minus sign on a number is kept.
func trimSeparator(s string) string {
	for _, sep := range []string{":", "-", "–"} {
		rest, ok := strings.CutPrefix(s, sep)
		if !ok {
			continue
		}
		if sep == ":" || rest == "" || strings.HasPrefix(rest, " ") {
			return strings.TrimSpace(rest)
		}
	}
	return strings.TrimSpace(s)
}

func splitMarker(line string) (priority, rest string, marked bool) {
	lower := strings.ToLower(line)
	for _, m := range markers {
		if strings.HasPrefix(lower, m.prefix) {
			return m.priority, strings.TrimSpace(line[len(m.prefix):]), true
		}
	}
	return PriorityLow, line, false
}
