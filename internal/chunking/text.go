package chunking

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/kailas-cloud/lexrag/internal/domain/chunk"
)

// charsPerToken is the chars-per-token heuristic for English legal prose.
const charsPerToken = 4

// maxSectionTitle caps the stored section title length (runes).
const maxSectionTitle = 200

var (
	pageMarkerRe   = regexp.MustCompile(`\[Page\s+(\d+)\]`)
	paragraphSepRe = regexp.MustCompile(`\n[ \t\r\f\v]*\n\s*`)
	extraBlankRe   = regexp.MustCompile(`\n{3,}`)

	articleRe = regexp.MustCompile(`^(?:ARTICLE|Article)\s+(?:[IVXLCDM]+|\d+)\b`)
	sectionRe = regexp.MustCompile(`^(?:SECTION|Section)\s+\d+(?:\.\d+)*\b`)
	outlineRe = regexp.MustCompile(`^\d+(?:\.\d+)*\.?\s+[A-Z][A-Z0-9 ,&'/\-]*$`)
	subItemRe = regexp.MustCompile(`^\((?:[a-z]|[ivxlcdm]+|\d+)\)(?:\s|$)`)
)

// EstimateTokens approximates the token count as whitespace-normalized length / 4.
// Consumers must tolerate estimation error.
func EstimateTokens(text string) int {
	return normalizedLen(text) / charsPerToken
}

// normalizedLen is the rune length of text with whitespace runs collapsed to one space
// and leading/trailing whitespace removed.
func normalizedLen(text string) int {
	n := 0
	inSpace := false
	started := false
	for _, r := range text {
		if unicode.IsSpace(r) {
			inSpace = started
			continue
		}
		if inSpace {
			n++ // the collapsed separator
			inSpace = false
		}
		started = true
		n++
	}
	return n
}

// ParsePageMarkers finds "[Page N]" markers and returns their boundaries in text order.
func ParsePageMarkers(text string) []chunk.PageBoundary {
	matches := pageMarkerRe.FindAllStringSubmatchIndex(text, -1)
	if len(matches) == 0 {
		return nil
	}
	pages := make([]chunk.PageBoundary, 0, len(matches))
	for _, m := range matches {
		n, err := strconv.Atoi(text[m[2]:m[3]])
		if err != nil {
			continue // overflow; not a real page number
		}
		pages = append(pages, chunk.PageBoundary{Page: n, Offset: m[0]})
	}
	return pages
}

// PageAt returns the highest page number whose boundary offset is <= pos, or 1.
func PageAt(pages []chunk.PageBoundary, pos int) int {
	page := 0
	for _, p := range pages {
		if p.Offset <= pos && p.Page > page {
			page = p.Page
		}
	}
	if page == 0 {
		return 1
	}
	return page
}

// StripPageMarkers removes "[Page N]" markers and tidies the whitespace they leave behind.
func StripPageMarkers(text string) string {
	if !strings.Contains(text, "[Page") {
		return text
	}
	stripped := pageMarkerRe.ReplaceAllString(text, "")
	lines := strings.Split(stripped, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimRight(l, " \t\r")
	}
	return strings.TrimSpace(extraBlankRe.ReplaceAllString(strings.Join(lines, "\n"), "\n\n"))
}

// IsSectionHeader reports whether a line looks like a legal section header: an
// ARTICLE/Section prefix, a numbered outline heading, a long all-caps line, or a
// parenthesized sub-item marker.
func IsSectionHeader(line string) bool {
	line = strings.TrimSpace(line)
	if line == "" {
		return false
	}
	switch {
	case articleRe.MatchString(line),
		sectionRe.MatchString(line),
		outlineRe.MatchString(line),
		subItemRe.MatchString(line):
		return true
	}
	return isAllCapsHeading(line)
}

func isAllCapsHeading(line string) bool {
	if utf8.RuneCountInString(line) <= 10 || strings.HasSuffix(line, ".") {
		return false
	}
	hasLetter := false
	for _, r := range line {
		if unicode.IsLetter(r) {
			hasLetter = true
			if unicode.IsLower(r) {
				return false
			}
		}
	}
	return hasLetter
}

// firstLine returns the first non-empty line of text, trimmed.
func firstLine(text string) string {
	for _, l := range strings.Split(text, "\n") {
		if l = strings.TrimSpace(l); l != "" {
			return l
		}
	}
	return ""
}

func sectionTitle(line string) string {
	if utf8.RuneCountInString(line) <= maxSectionTitle {
		return line
	}
	r := []rune(line)
	return string(r[:maxSectionTitle])
}
