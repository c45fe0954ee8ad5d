package docref

import (
	"fmt"
	"regexp"
	"strings"

	"assistant-proxy-be/pkg/upstream"
)

// PatternName identifies which markup form a reference was written in
type PatternName string

const (
	PatternTag       PatternName = "tag"       // <DOCUMENTID>id</DOCUMENTID>, <doc>id</doc>
	PatternAttribute PatternName = "attribute" // <doc id="id">, <document id='id'/>
	PatternBracket   PatternName = "bracket"   // [DOCUMENT:id], [doc=id]
)

type pattern struct {
	name PatternName
	re   *regexp.Regexp
}

// Checked in order, first match wins. Every capture group holds an id; the
// first non-empty one is used.
var patterns = []pattern{
	{
		name: PatternTag,
		re: regexp.MustCompile(`(?i)<documentid>\s*([A-Za-z0-9_-]+)\s*</documentid>` +
			`|<document>\s*([A-Za-z0-9_-]+)\s*</document>` +
			`|<doc>\s*([A-Za-z0-9_-]+)\s*</doc>`),
	},
	{
		name: PatternAttribute,
		re:   regexp.MustCompile(`(?i)<(?:documentid|document|doc)\s+id\s*=\s*(?:"([A-Za-z0-9_-]+)"|'([A-Za-z0-9_-]+)'|([A-Za-z0-9_-]+))\s*/?>`),
	},
	{
		name: PatternBracket,
		re:   regexp.MustCompile(`(?i)\[(?:documentid|document|doc)\s*[:=]\s*([A-Za-z0-9_-]+)\s*\]`),
	},
}

var canonicalPattern = regexp.MustCompile(`<DOCUMENTID>([A-Za-z0-9_-]+)</DOCUMENTID>`)

// Canonical renders the single form the presentation layer understands.
func Canonical(id string) string {
	return fmt.Sprintf("<DOCUMENTID>%s</DOCUMENTID>", id)
}

// Match is a document reference found in a message.
type Match struct {
	Pattern PatternName
	ID      string
	Start   int
	End     int
}

// Find returns the first reference of the highest priority pattern present in text.
func Find(text string) (Match, bool) {
	for _, p := range patterns {
		loc := p.re.FindStringSubmatchIndex(text)
		if loc == nil {
			continue
		}
		id := firstGroup(text, loc)
		if id == "" {
			continue
		}
		return Match{Pattern: p.name, ID: id, Start: loc[0], End: loc[1]}, true
	}
	return Match{}, false
}

func firstGroup(text string, loc []int) string {
	for i := 2; i+1 < len(loc); i += 2 {
		if loc[i] >= 0 {
			return text[loc[i]:loc[i+1]]
		}
	}
	return ""
}

// Rewrite replaces the first recognized reference in text with its canonical
// form. Text without a reference is returned unchanged.
func Rewrite(text string) (string, bool) {
	m, ok := Find(text)
	if !ok {
		return text, false
	}
	return text[:m.Start] + Canonical(m.ID) + text[m.End:], true
}

// Normalize rewrites document references inside text and speak traces. The
// result has the same length and order as traces; traces that are not
// rewritten are returned exactly as given.
func Normalize(traces []upstream.Trace) []upstream.Trace {
	out := make([]upstream.Trace, len(traces))
	for i, tr := range traces {
		out[i] = normalizeTrace(tr)
	}
	return out
}

func normalizeTrace(tr upstream.Trace) upstream.Trace {
	msg, ok := tr.Message()
	if !ok {
		return tr
	}
	rewritten, changed := Rewrite(msg)
	if !changed || rewritten == msg {
		return tr
	}
	next, err := tr.WithMessage(rewritten)
	if err != nil {
		return tr
	}
	return next
}

// Split removes the canonical tag from text. Only the whitespace around the
// tag is touched; the rest of the text keeps its layout.
func Split(text string) (clean string, id string, ok bool) {
	loc := canonicalPattern.FindStringSubmatchIndex(text)
	if loc == nil {
		return text, "", false
	}
	id = text[loc[2]:loc[3]]

	before := strings.TrimRight(text[:loc[0]], " \t")
	after := strings.TrimLeft(text[loc[1]:], " \t")
	switch {
	case strings.HasSuffix(before, "\n") && strings.HasPrefix(after, "\n"):
		// the tag had a line of its own
		clean = before + after[1:]
	case before == "" || after == "" || strings.HasSuffix(before, "\n") || strings.HasPrefix(after, "\n"):
		clean = before + after
	default:
		clean = before + " " + after
	}
	return strings.TrimRight(strings.TrimLeft(clean, "\r\n"), " \t\r\n"), id, true
}
