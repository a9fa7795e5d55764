package filtergraph

import "strings"

// FFmpeg reads a drawtext string through three parsers, innermost first:
//
//	0. drawtext expansion: '\' and '%' are special
//	1. filter option value: '\', '\'' and ':' are special, outer whitespace is trimmed
//	2. filtergraph: '\', '\'', '[', ']', ',' and ';' are special
//
// Each level is escaped with a backslash, innermost level first.

// EscapeText escapes s for use as a drawtext text= value.
func EscapeText(s string) string {
	return escapeGraph(escapeOption(escapeExpansion(s)))
}

// EscapeValue escapes s for use as a plain filter option value.
func EscapeValue(s string) string {
	return escapeGraph(escapeOption(s))
}

func escapeExpansion(s string) string {
	return escapeChars(s, `\%`)
}

func escapeOption(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 8)

	// leading and trailing whitespace would be trimmed by the tokenizer
	first := len(s) - len(strings.TrimLeft(s, whitespace))
	last := len(strings.TrimRight(s, whitespace))

	for i := 0; i < len(s); i++ {
		c := s[i]
		if strings.IndexByte(`\':`, c) >= 0 || ((i < first || i >= last) && strings.IndexByte(whitespace, c) >= 0) {
			b.WriteByte('\\')
		}
		b.WriteByte(c)
	}
	return b.String()
}

func escapeGraph(s string) string {
	return escapeChars(s, `\'[],;`)
}

const whitespace = " \t\r\n"

func escapeChars(s, special string) string {
	if !strings.ContainsAny(s, special) {
		return s
	}
	var b strings.Builder
	b.Grow(len(s) + 8)
	for i := 0; i < len(s); i++ {
		if strings.IndexByte(special, s[i]) >= 0 {
			b.WriteByte('\\')
		}
		b.WriteByte(s[i])
	}
	return b.String()
}
