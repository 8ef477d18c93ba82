package markup

import "strings"

// M represents text that is safe to pass to Telegram when ParseMode="MarkdownV2".
type M string

func (m M) String() string { return string(m) }

// mdReserved is the MarkdownV2 escape table. The backslash is part of it so a
// literal backslash in user text can never combine with the next character.
var mdReserved = [128]bool{
	'\\': true,
	'_':  true, '*': true, '[': true, ']': true, '(': true, ')': true,
	'~': true, '`': true, '>': true, '#': true, '+': true, '-': true,
	'=': true, '|': true, '{': true, '}': true, '.': true, '!': true,
}

// linkReserved is the set escaped inside an inline link target.
var linkReserved = [128]bool{'\\': true, '(': true, ')': true}

func escapeWith(table *[128]bool, s string) string {
	var b strings.Builder
	b.Grow(len(s) + len(s)/8)
	// One left-to-right pass: backslashes emitted here are never rescanned.
	for _, r := range s {
		if r < 128 && table[r] {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// EscMD escapes every MarkdownV2 reserved character in s.
func EscMD(s string) M { return M(escapeWith(&mdReserved, s)) }

// EscMDURL escapes a URL for use as an inline link target "(...)".
func EscMDURL(s string) string { return escapeWith(&linkReserved, s) }

// RawMD marks a string as already-safe MarkdownV2.
func RawMD(s string) M { return M(s) }

func BoldMD(s string) M   { return M("*" + EscMD(s).String() + "*") }
func ItalicMD(s string) M { return M("_" + EscMD(s).String() + "_") }

// BoldMDH wraps already-safe MarkdownV2.
func BoldMDH(inner M) M { return M("*" + inner.String() + "*") }

// LinkMD builds an inline MarkdownV2 link.
func LinkMD(text, url string) M {
	return M("[" + EscMD(text).String() + "](" + EscMDURL(url) + ")")
}
