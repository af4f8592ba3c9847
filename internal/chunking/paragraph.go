package chunking

import (
	"strings"
	"unicode"
)

// Paragraph is a blank-line-delimited block of the original text.
// Start/End are byte offsets into the original text; Text is the trimmed raw block.
type Paragraph struct {
	Text  string
	Start int
	End   int
}

// SplitParagraphs splits text on blank lines, dropping empty blocks and keeping offsets.
func SplitParagraphs(text string) []Paragraph {
	var out []Paragraph
	pos := 0
	for _, sep := range paragraphSepRe.FindAllStringIndex(text, -1) {
		out = appendParagraph(out, text, pos, sep[0])
		pos = sep[1]
	}
	return appendParagraph(out, text, pos, len(text))
}

func appendParagraph(out []Paragraph, text string, start, end int) []Paragraph {
	raw := text[start:end]
	lead := len(raw) - len(strings.TrimLeftFunc(raw, unicode.IsSpace))
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return out
	}
	s := start + lead
	return append(out, Paragraph{Text: trimmed, Start: s, End: s + len(trimmed)})
}
