package chunk

import (
	"regexp"
	"strings"
)

var blankLineRE = regexp.MustCompile(`\n\s*\n+`)

// NormalizeText canonicalizes line endings, strips trailing whitespace on
// each line, and trims surrounding whitespace. All chunk offsets are byte
// offsets into the normalized text.
func NormalizeText(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t\v\f")
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

// splitIntoBlocks splits normalized text on blank-line boundaries, dropping
// empty blocks.
func splitIntoBlocks(text string) []string {
	parts := blankLineRE.Split(text, -1)
	blocks := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			blocks = append(blocks, p)
		}
	}
	return blocks
}

var sectionHeadingRE = regexp.MustCompile(`(?i)^(section\s+)?\d+(\.\d+)*\s*[).:-]?\s+.+$`)

// IsHeadingLine reports whether a line looks like a clause heading.
// Catches numbered section headings ("Section 5.2 Termination", "1. Term"),
// short ALL-CAPS lines, and short lines ending with a colon.
func IsHeadingLine(line string) bool {
	stripped := strings.TrimSpace(line)
	if stripped == "" {
		return false
	}
	if sectionHeadingRE.MatchString(stripped) {
		return true
	}
	if len(stripped) <= 120 && strings.ToUpper(stripped) == stripped && strings.Contains(stripped, " ") {
		return true
	}
	if len(stripped) <= 120 && strings.HasSuffix(stripped, ":") {
		return true
	}
	return false
}
