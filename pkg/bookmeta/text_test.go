package bookmeta

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStripMeta(t *testing.T) {
	assert.Equal(t, "Title", StripMeta("  «Title». "))
	assert.Equal(t, "War and Peace", StripMeta(`"War and Peace"`))
	assert.Equal(t, "", StripMeta(" - . # "))
	assert.Equal(t, "inner - dash", StripMeta("inner - dash"))
}

func TestNormalizeAuthorName(t *testing.T) {
	tests := []struct {
		in       string
		expected string
	}{
		{"Isaac Asimov", "Asimov Isaac"},
		{"J. R. R. Tolkien", "Tolkien J. R. R."},
		{"Asimov, Isaac", "Asimov Isaac"},
		{"Plato", "Plato"},
		{"  spaced   out  name ", "name spaced out"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, NormalizeAuthorName(tt.in), "input: %q", tt.in)
	}
}

func TestDetectLangClass(t *testing.T) {
	assert.Equal(t, 2, DetectLangClass("Asimov"))
	assert.Equal(t, 1, DetectLangClass("Пушкин"))
	assert.Equal(t, 3, DetectLangClass("1984"))
	assert.Equal(t, 9, DetectLangClass("«quoted»"))
	assert.Equal(t, 9, DetectLangClass(""))
}

func TestSearchTitle(t *testing.T) {
	assert.Equal(t, "WAR AND PEACE", SearchTitle("War and Peace"))
}

func TestSanitizeAnnotation(t *testing.T) {
	assert.Equal(t, "clean", SanitizeAnnotation("cle￿an"))
	assert.Equal(t, "line\nbreak", SanitizeAnnotation("line\nbreak"))
	assert.Equal(t, "nocontrol", SanitizeAnnotation("no\x01control"))
	// Supplementary-plane characters do not fit 3-byte MySQL utf8 columns.
	assert.Equal(t, "emoji  gone", SanitizeAnnotation("emoji \U0001F600 gone"))
	assert.Equal(t, "music  too", SanitizeAnnotation("music \U0001D11E too"))
}
