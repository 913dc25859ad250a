package messenger

import (
	"strings"
	"unicode"
)

// SplitText breaks text into parts of at most limit characters, preferring
// line breaks and then spaces as cut points. Blank parts are dropped.
func SplitText(text string, limit int) []string {
	if limit <= 0 {
		limit = MaxTextLength
	}
	runes := []rune(text)
	if len(runes) <= limit {
		return []string{text}
	}

	var parts []string
	for len(runes) > limit {
		// A separator right after the limit still yields a full-length part.
		window := runes[:limit+1]
		cut := lastIndex(window, '\n')
		if cut < limit/2 {
			cut = lastSpace(window)
		}
		if cut < limit/2 {
			cut = limit
		}
		if part := strings.TrimRightFunc(string(runes[:cut]), unicode.IsSpace); part != "" {
			parts = append(parts, part)
		}
		runes = []rune(strings.TrimLeftFunc(string(runes[cut:]), unicode.IsSpace))
	}
	if len(runes) > 0 {
		parts = append(parts, string(runes))
	}
	return parts
}

func lastIndex(runes []rune, r rune) int {
	for i := len(runes) - 1; i >= 0; i-- {
		if runes[i] == r {
			return i
		}
	}
	return -1
}

func lastSpace(runes []rune) int {
	for i := len(runes) - 1; i >= 0; i-- {
		if unicode.IsSpace(runes[i]) {
			return i
		}
	}
	return -1
}
