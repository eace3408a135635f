package bookmeta

import (
	"strings"
	"unicode"
)

const stripCutset = "»«'\"&-.#\\`;"

// StripMeta trims whitespace and stray punctuation that library files tend
// to carry around titles, names, and dates.
func StripMeta(s string) string {
	return strings.TrimFunc(s, func(r rune) bool {
		return unicode.IsSpace(r) || strings.ContainsRune(stripCutset, r)
	})
}

// collapseSpaces joins all whitespace-separated words with single spaces.
func collapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// NormalizeAuthorName reorders "First Last" to "Last First" so authors sort
// by surname. A name that already contains a comma is assumed to be in
// surname-first form; its commas are replaced with spaces.
func NormalizeAuthorName(name string) string {
	name = StripMeta(collapseSpaces(name))
	if name == "" {
		return ""
	}
	if strings.Contains(name, ",") {
		return collapseSpaces(strings.ReplaceAll(name, ",", " "))
	}
	parts := strings.Fields(name)
	if len(parts) <= 1 {
		return name
	}
	last := parts[len(parts)-1]
	return last + " " + strings.Join(parts[:len(parts)-1], " ")
}

// DetectLangClass buckets a string by its first character so the serving
// layer can build alphabet navigation without collating mixed scripts.
func DetectLangClass(s string) int {
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
			return 2 // latin
		case r >= '0' && r <= '9':
			return 3 // digit
		case r >= 0x0400 && r <= 0x052F:
			return 1 // cyrillic
		default:
			return 9
		}
	}
	return 9
}

// SearchTitle returns the case-folded form stored alongside the display
// title for prefix matching.
func SearchTitle(title string) string {
	return strings.ToUpper(title)
}

// SanitizeAnnotation drops characters that are not valid in stored text:
// the U+FFFF noncharacter that some converters emit, control characters
// other than newlines and tabs, and everything above U+FFFF, which 3-byte
// MySQL utf8 columns cannot hold.
func SanitizeAnnotation(s string) string {
	return strings.Map(func(r rune) rune {
		if r == '\uFFFF' || r == '\uFFFE' || r > 0xFFFF {
			return -1
		}
		if r < 0x20 && r != '\n' && r != '\t' {
			return -1
		}
		return r
	}, s)
}
