package bookmeta

import (
	"archive/zip"
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gopds/gopds/pkg/errcodes"
)

func makeZip(t *testing.T, entries map[string][]byte, order []string) []byte {
	t.Helper()
	buf := &bytes.Buffer{}
	w := zip.NewWriter(buf)
	for _, name := range order {
		f, err := w.Create(name)
		require.NoError(t, err)
		_, err = f.Write(entries[name])
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return buf.Bytes()
}

const testOPF = `<package xmlns:dc="http://purl.org/dc/elements/1.1/" xmlns:opf="http://www.idpf.org/2007/opf">
  <metadata>
    <dc:title>Test Book</dc:title>
    <dc:creator opf:role="aut">Jane Doe</dc:creator>
    <dc:creator opf:role="ill">Someone Else</dc:creator>
    <dc:language>en</dc:language>
    <dc:subject>SF</dc:subject>
    <dc:description>Anno</dc:description>
    <dc:date>2024</dc:date>
    <meta name="calibre:series" content="Saga"/>
    <meta name="calibre:series_index" content="2.0"/>
    <meta name="cover" content="cover-id"/>
  </metadata>
  <manifest>
    <item id="cover-id" href="images/cover.jpg" media-type="image/jpeg"/>
  </manifest>
</package>`

func TestParseEPUB(t *testing.T) {
	cover := []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x01, 0x02}
	data := makeZip(t, map[string][]byte{
		"META-INF/container.xml": []byte(`<container><rootfiles><rootfile full-path="OPS/content.opf" media-type="application/oebps-package+xml"/></rootfiles></container>`),
		"OPS/content.opf":        []byte(testOPF),
		"OPS/images/cover.jpg":   cover,
	}, []string{"META-INF/container.xml", "OPS/content.opf", "OPS/images/cover.jpg"})

	meta, err := ParseEPUB(data)
	require.NoError(t, err)

	assert.Equal(t, "Test Book", meta.Title)
	assert.Equal(t, []string{"Jane Doe"}, meta.Authors)
	assert.Equal(t, []string{"sf"}, meta.Genres)
	assert.Equal(t, "Anno", meta.Annotation)
	assert.Equal(t, "en", meta.Lang)
	assert.Equal(t, "2024", meta.Docdate)
	assert.Equal(t, "Saga", meta.SeriesTitle)
	assert.Equal(t, 2, meta.SeriesIndex)
	assert.Equal(t, cover, meta.CoverData)
	assert.Equal(t, "image/jpeg", meta.CoverType)
}

func TestParseEPUBFirstRootfileWins(t *testing.T) {
	// Two declared rootfiles: the first in document order is used even when
	// a later one carries the package media-type. Swapping the entries
	// changes which metadata comes out.
	container := `<container><rootfiles>
	  <rootfile full-path="first.opf" media-type="text/plain"/>
	  <rootfile full-path="second.opf" media-type="application/oebps-package+xml"/>
	</rootfiles></container>`
	firstOPF := `<package><metadata><dc:title xmlns:dc="x">First Title</dc:title></metadata></package>`
	secondOPF := `<package><metadata><dc:title xmlns:dc="x">Second Title</dc:title></metadata></package>`

	data := makeZip(t, map[string][]byte{
		"META-INF/container.xml": []byte(container),
		"first.opf":              []byte(firstOPF),
		"second.opf":             []byte(secondOPF),
	}, []string{"META-INF/container.xml", "first.opf", "second.opf"})

	meta, err := ParseEPUB(data)
	require.NoError(t, err)
	assert.Equal(t, "First Title", meta.Title)

	swapped := `<container><rootfiles>
	  <rootfile full-path="second.opf" media-type="application/oebps-package+xml"/>
	  <rootfile full-path="first.opf" media-type="text/plain"/>
	</rootfiles></container>`
	data = makeZip(t, map[string][]byte{
		"META-INF/container.xml": []byte(swapped),
		"first.opf":              []byte(firstOPF),
		"second.opf":             []byte(secondOPF),
	}, []string{"META-INF/container.xml", "first.opf", "second.opf"})

	meta, err = ParseEPUB(data)
	require.NoError(t, err)
	assert.Equal(t, "Second Title", meta.Title)
}

func TestParseEPUBCoverStrategies(t *testing.T) {
	// properties="cover-image" beats the meta reference.
	opf := `<package>
	  <metadata><dc:title xmlns:dc="x">T</dc:title><meta name="cover" content="other"/></metadata>
	  <manifest>
	    <item id="other" href="other.png" media-type="image/png"/>
	    <item id="img1" href="real.jpg" media-type="image/jpeg" properties="cover-image"/>
	  </manifest>
	</package>`
	real := []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00}
	other := []byte{0x89, 0x50, 0x4E, 0x47, 0x00}
	data := makeZip(t, map[string][]byte{
		"META-INF/container.xml": []byte(`<container><rootfiles><rootfile full-path="book.opf"/></rootfiles></container>`),
		"book.opf":               []byte(opf),
		"real.jpg":               real,
		"other.png":              other,
	}, []string{"META-INF/container.xml", "book.opf", "real.jpg", "other.png"})

	meta, err := ParseEPUB(data)
	require.NoError(t, err)
	assert.Equal(t, real, meta.CoverData)
	assert.Equal(t, "image/jpeg", meta.CoverType)
}

func TestParseEPUBFallbackSingleOPF(t *testing.T) {
	data := makeZip(t, map[string][]byte{
		"content.opf": []byte(`<package><metadata><dc:title xmlns:dc="x">Lonely</dc:title></metadata></package>`),
	}, []string{"content.opf"})

	meta, err := ParseEPUB(data)
	require.NoError(t, err)
	assert.Equal(t, "Lonely", meta.Title)
}

func TestParseEPUBNoOPF(t *testing.T) {
	data := makeZip(t, map[string][]byte{
		"mimetype": []byte("application/epub+zip"),
	}, []string{"mimetype"})

	_, err := ParseEPUB(data)
	require.Error(t, err)
	assert.True(t, errcodes.IsKind(err, errcodes.KindParse))
}

func TestParseEPUBNotAZip(t *testing.T) {
	_, err := ParseEPUB([]byte("definitely not a zip"))
	require.Error(t, err)
	assert.True(t, errcodes.IsKind(err, errcodes.KindParse))
}
