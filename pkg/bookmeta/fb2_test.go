package bookmeta

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gopds/gopds/pkg/errcodes"
)

// /9j/4A== decodes to FF D8 FF E0, a JPEG signature.
const fb2Doc = `<?xml version="1.0" encoding="utf-8"?>
<FictionBook xmlns:l="http://www.w3.org/1999/xlink">
<description>
 <title-info>
  <genre>sf_fantasy</genre>
  <genre> SF </genre>
  <author><first-name>A.</first-name><last-name>Author</last-name></author>
  <book-title> «Test» </book-title>
  <annotation><p>First paragraph.</p><p>Second paragraph.</p></annotation>
  <coverpage><image l:href="#Cover.jpg"/></coverpage>
  <lang>en</lang>
  <sequence name="Saga" number="3"/>
 </title-info>
 <document-info>
  <date>2020-01-02</date>
 </document-info>
</description>
<body><p>Body text is ignored.</p></body>
<binary id="cover.jpg" content-type="image/jpeg">/9j/4A==</binary>
</FictionBook>`

func TestParseFB2(t *testing.T) {
	meta, err := ParseFB2([]byte(fb2Doc))
	require.NoError(t, err)

	assert.Equal(t, "Test", meta.Title)
	// StripMeta trims the trailing period off the abbreviated first name.
	assert.Equal(t, []string{"A Author"}, meta.Authors)
	assert.Equal(t, []string{"sf_fantasy", "sf"}, meta.Genres)
	assert.Equal(t, "First paragraph.\nSecond paragraph.", meta.Annotation)
	assert.Equal(t, "en", meta.Lang)
	assert.Equal(t, "Saga", meta.SeriesTitle)
	assert.Equal(t, 3, meta.SeriesIndex)
	assert.Equal(t, "2020-01-02", meta.Docdate)

	// The cover reference is matched case-insensitively against binary ids.
	require.NotNil(t, meta.CoverData)
	assert.Equal(t, []byte{0xFF, 0xD8, 0xFF, 0xE0}, meta.CoverData)
	assert.Equal(t, "image/jpeg", meta.CoverType)
}

func TestParseFB2CorruptKeepsPartialMetadata(t *testing.T) {
	// Invalid bytes after the description break the XML stream. The fields
	// parsed before the error and the raw-bytes cover both survive, and the
	// failure itself is reported so the scan can record it.
	doc := `<?xml version="1.0"?>
<FictionBook>
<description><title-info>
 <book-title>Test</book-title>
 <coverpage><image href="#c1"/></coverpage>
</title-info></description>
<garbage ` + "\xff\xfe\xff" + `>
<binary id="c1">/9j/4A==</binary>
</FictionBook>`

	meta, err := ParseFB2([]byte(doc))
	require.Error(t, err)
	assert.True(t, errcodes.IsKind(err, errcodes.KindParse))
	require.NotNil(t, meta)
	assert.Equal(t, "Test", meta.Title)
	assert.Empty(t, meta.Authors)
	require.NotNil(t, meta.CoverData)
	assert.Equal(t, "image/jpeg", meta.CoverType)
}

func TestParseFB2GarbageReportsParseError(t *testing.T) {
	meta, err := ParseFB2([]byte("\x00\x01\x02 not xml at all"))
	require.Error(t, err)
	assert.True(t, errcodes.IsKind(err, errcodes.KindParse))
	require.NotNil(t, meta)
	assert.Empty(t, meta.Title)
}

func TestParseFB2NoCoverReference(t *testing.T) {
	doc := `<FictionBook><description><title-info>
 <book-title>Plain</book-title>
</title-info></description>
<binary id="something">/9j/4A==</binary>
</FictionBook>`

	meta, err := ParseFB2([]byte(doc))
	require.NoError(t, err)
	assert.Equal(t, "Plain", meta.Title)
	assert.Nil(t, meta.CoverData)
}

func TestParseFB2AuthorWithOnlyLastName(t *testing.T) {
	doc := `<FictionBook><description><title-info>
 <author><last-name>Plato</last-name></author>
 <book-title>Republic</book-title>
</title-info></description></FictionBook>`

	meta, err := ParseFB2([]byte(doc))
	require.NoError(t, err)
	assert.Equal(t, []string{"Plato"}, meta.Authors)
}

func TestParseFB2EmptyInput(t *testing.T) {
	meta, err := ParseFB2(nil)
	require.NoError(t, err)
	assert.Empty(t, meta.Title)
	assert.Empty(t, meta.Authors)
}
