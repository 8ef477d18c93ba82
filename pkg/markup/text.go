package markup

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Ellipsis is appended to truncated text.
const Ellipsis = "…"

// TruncRunes returns s truncated to at most n runes.
// It appends an ellipsis "…" when truncated.
func TruncRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	count := 0
	cut := 0
	for i, r := range s {
		count++
		if count == n {
			cut = i + utf8.RuneLen(r)
			continue
		}
		if count > n {
			if cut <= 0 {
				cut = i
			}
			return s[:cut] + Ellipsis
		}
	}
	return s
}

// TruncWords shortens s to at most n runes, cutting at the last whitespace
// before the limit, and appends an ellipsis. Text that fits is returned as-is.
// A single word longer than n is cut hard at n runes.
func TruncWords(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= n {
		return s
	}

	// Byte offset of the first rune past the limit, and of the last
	// whitespace rune at or before it.
	limit := len(s)
	lastSpace := -1
	count := 0
	for i, r := range s {
		if count == n {
			limit = i
			if unicode.IsSpace(r) {
				lastSpace = i
			}
			break
		}
		if unicode.IsSpace(r) {
			lastSpace = i
		}
		count++
	}

	cut := limit
	if lastSpace > 0 {
		cut = lastSpace
	}
	head := strings.TrimRightFunc(s[:cut], unicode.IsSpace)
	if head == "" {
		head = s[:limit]
	}
	return head + Ellipsis
}
