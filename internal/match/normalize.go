package match

import (
	"strings"

	"golang.org/x/text/width"
)

// normalizeChineseName truncates the value at the first newline and the
// first opening parenthesis (documents often append the romanized name or a
// ward label in brackets), folds full-width forms, and strips spaces.
func normalizeChineseName(value string) string {
	value = width.Narrow.String(value)
	if idx := strings.IndexByte(value, '\n'); idx >= 0 {
		value = value[:idx]
	}
	if idx := strings.IndexByte(value, '('); idx >= 0 {
		value = value[:idx]
	}
	return strings.ReplaceAll(strings.TrimSpace(value), " ", "")
}

// normalizeEnglishName case-folds, strips parenthetical content and collapses
// runs of whitespace so "CHAN  Tai Man (Ward A)" compares as "chan tai man".
func normalizeEnglishName(value string) string {
	value = width.Narrow.String(value)
	if idx := strings.IndexByte(value, '\n'); idx >= 0 {
		value = value[:idx]
	}
	var b strings.Builder
	depth := 0
	for _, r := range value {
		switch r {
		case '(':
			depth++
		case ')':
			if depth > 0 {
				depth--
			}
		default:
			if depth == 0 {
				b.WriteRune(r)
			}
		}
	}
	return strings.ToLower(strings.Join(strings.Fields(b.String()), " "))
}

// normalizeIdentifier folds full-width characters, removes whitespace and
// upper-cases, keeping redaction placeholders in place for positional
// comparison.
func normalizeIdentifier(value string) string {
	value = width.Narrow.String(value)
	var b strings.Builder
	for _, r := range value {
		if r == ' ' || r == '\t' || r == '\n' || r == '\r' {
			continue
		}
		b.WriteRune(r)
	}
	return strings.ToUpper(b.String())
}
