package link

import (
	"strings"
	"unicode/utf8"
)

const (
	// MaxTitleLength caps the sanitized title, entities included.
	MaxTitleLength = 200

	// MinTitleLength is enforced by the write path after sanitization.
	MinTitleLength = 2
)

var htmlEntities = map[rune]string{
	'<':  "&lt;",
	'>':  "&gt;",
	'"':  "&quot;",
	'\'': "&#39;",
	'&':  "&amp;",
}

// SanitizeTitle trims raw, caps it at MaxTitleLength characters and then
// escapes the HTML-significant characters. The result is safe to embed in
// HTML directly and never exceeds MaxTitleLength characters: a trailing
// character whose entity would not fit is dropped instead of split.
func SanitizeTitle(raw string) string {
	title := strings.TrimSpace(raw)
	if title == "" {
		return ""
	}

	if utf8.RuneCountInString(title) > MaxTitleLength {
		title = string([]rune(title)[:MaxTitleLength])
	}

	var b strings.Builder
	b.Grow(len(title))
	n := 0
	for _, r := range title {
		if entity, ok := htmlEntities[r]; ok {
			if n+len(entity) > MaxTitleLength {
				break
			}
			b.WriteString(entity)
			n += len(entity)
			continue
		}
		if n+1 > MaxTitleLength {
			break
		}
		b.WriteRune(r)
		n++
	}

	return b.String()
}

// TitleLength reports the length of a sanitized title in characters.
func TitleLength(title string) int {
	return utf8.RuneCountInString(title)
}
