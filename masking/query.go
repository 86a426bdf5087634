package masking

import (
	"strconv"
	"strings"
	"unicode/utf8"
)

// DefaultQueryLength bounds the length, in runes, of masked query labels.
const DefaultQueryLength = 100

// MaskQuery replaces single-quoted string literals and numeric literals in a
// SQL statement with positional placeholders ($1, $2, ...) and truncates the
// result to maxLen runes. A maxLen of zero or less disables truncation.
//
// Placeholders already present in the statement are kept, and numbering of
// new placeholders continues after the highest existing one, so masking an
// already masked statement returns it unchanged. Double-quoted and
// backtick-quoted text is treated as an identifier and left alone, as are
// digits that are part of an identifier (t1, col_2) or of a ? / $n
// placeholder.
//
// Example:
//
//	MaskQuery("SELECT * FROM users WHERE id = 42 AND name = 'bob'", 100)
//	// "SELECT * FROM users WHERE id = $1 AND name = $2"
func MaskQuery(query string, maxLen int) string {
	next := highestPlaceholder(query) + 1

	var b strings.Builder
	b.Grow(len(query))

	for i := 0; i < len(query); {
		c := query[i]
		switch {
		case c == '\'':
			i = skipQuoted(query, i, '\'')
			b.WriteString(placeholder(next))
			next++

		case c == '"' || c == '`':
			end := skipQuoted(query, i, c)
			b.WriteString(query[i:end])
			i = end

		case c == '$' && i+1 < len(query) && isDigit(query[i+1]):
			end := i + 1
			for end < len(query) && isDigit(query[end]) {
				end++
			}
			b.WriteString(query[i:end])
			i = end

		case isDigit(c) && !followsIdentifier(query, i):
			i = skipNumber(query, i)
			b.WriteString(placeholder(next))
			next++

		case isIdentChar(c):
			end := i
			for end < len(query) && isIdentChar(query[end]) {
				end++
			}
			b.WriteString(query[i:end])
			i = end

		default:
			b.WriteByte(c)
			i++
		}
	}

	return truncate(b.String(), maxLen)
}

func placeholder(n int) string {
	return "$" + strconv.Itoa(n)
}

// highestPlaceholder returns the largest n of any $n outside string literals.
func highestPlaceholder(query string) int {
	highest := 0
	for i := 0; i < len(query); i++ {
		switch query[i] {
		case '\'', '"', '`':
			i = skipQuoted(query, i, query[i]) - 1
		case '$':
			end := i + 1
			for end < len(query) && isDigit(query[end]) {
				end++
			}
			if end > i+1 && !followsIdentifier(query, i) {
				if n, err := strconv.Atoi(query[i+1 : end]); err == nil && n > highest {
					highest = n
				}
			}
			i = end - 1
		}
	}
	return highest
}

// skipQuoted returns the index just past the quoted run starting at start.
// Doubled quotes and backslash escapes stay inside the run. An unterminated
// run extends to the end of the statement.
func skipQuoted(query string, start int, quote byte) int {
	for i := start + 1; i < len(query); i++ {
		switch query[i] {
		case '\\':
			if quote != '`' {
				i++
			}
		case quote:
			if i+1 < len(query) && query[i+1] == quote {
				i++
				continue
			}
			return i + 1
		}
	}
	return len(query)
}

func skipNumber(query string, start int) int {
	i := start
	if strings.HasPrefix(query[i:], "0x") || strings.HasPrefix(query[i:], "0X") {
		i += 2
		for i < len(query) && isHexDigit(query[i]) {
			i++
		}
		return i
	}
	for i < len(query) && (isDigit(query[i]) || query[i] == '.') {
		i++
	}
	if i < len(query) && (query[i] == 'e' || query[i] == 'E') {
		j := i + 1
		if j < len(query) && (query[j] == '+' || query[j] == '-') {
			j++
		}
		if j < len(query) && isDigit(query[j]) {
			i = j
			for i < len(query) && isDigit(query[i]) {
				i++
			}
		}
	}
	return i
}

func followsIdentifier(query string, i int) bool {
	if i == 0 {
		return false
	}
	prev := query[i-1]
	return isIdentChar(prev) || prev == '$' || prev == '?'
}

func truncate(s string, maxLen int) string {
	if maxLen <= 0 || utf8.RuneCountInString(s) <= maxLen {
		return s
	}
	count := 0
	for i := range s {
		if count == maxLen {
			return s[:i]
		}
		count++
	}
	return s
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

func isHexDigit(c byte) bool {
	return isDigit(c) || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}

func isIdentChar(c byte) bool {
	return c == '_' || isDigit(c) || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || c >= utf8.RuneSelf
}
