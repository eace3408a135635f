package bookmeta

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type exthEntry struct {
	recType uint32
	payload []byte
}

// buildMOBI assembles a minimal PalmDB file: record 0 with MOBI + EXTH
// headers and the full name, followed by the given extra records.
func buildMOBI(t *testing.T, title string, exth []exthEntry, extraRecords [][]byte) []byte {
	t.Helper()
	be := binary.BigEndian

	exthBuf := &bytes.Buffer{}
	exthBuf.WriteString("EXTH")
	body := &bytes.Buffer{}
	for _, e := range exth {
		var rec [8]byte
		be.PutUint32(rec[0:4], e.recType)
		be.PutUint32(rec[4:8], uint32(8+len(e.payload)))
		body.Write(rec[:])
		body.Write(e.payload)
	}
	var lenCount [8]byte
	be.PutUint32(lenCount[0:4], uint32(12+body.Len()))
	be.PutUint32(lenCount[4:8], uint32(len(exth)))
	exthBuf.Write(lenCount[:])
	exthBuf.Write(body.Bytes())

	const headerLength = 232
	nameOffset := 16 + headerLength + exthBuf.Len()
	record0 := make([]byte, nameOffset+len(title)+2)
	copy(record0[16:20], "MOBI")
	be.PutUint32(record0[20:24], headerLength)
	be.PutUint32(record0[84:88], uint32(nameOffset))
	be.PutUint32(record0[88:92], uint32(len(title)))
	be.PutUint32(record0[92:96], 9) // en locale
	be.PutUint32(record0[108:112], 1)
	be.PutUint32(record0[128:132], 0x40)
	copy(record0[16+headerLength:], exthBuf.Bytes())
	copy(record0[nameOffset:], title)

	records := append([][]byte{record0}, extraRecords...)

	out := &bytes.Buffer{}
	header := make([]byte, 78)
	be.PutUint16(header[76:78], uint16(len(records)))
	out.Write(header)

	offset := 78 + len(records)*8
	for _, rec := range records {
		var info [8]byte
		be.PutUint32(info[0:4], uint32(offset))
		out.Write(info[:])
		offset += len(rec)
	}
	for _, rec := range records {
		out.Write(rec)
	}
	return out.Bytes()
}

func TestParseMOBI(t *testing.T) {
	cover := []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x10, 0x20}
	data := buildMOBI(t, "Test MOBI Book", []exthEntry{
		{exthAuthor, []byte("J. R. R. Tolkien")},
		{exthDescription, []byte("<p>An <b>extraordinary</b> book</p>")},
		{exthPublishDate, []byte("2024-01-15")},
		{exthCoverOffset, []byte{0, 0, 0, 0}},
	}, [][]byte{cover})

	meta, err := ParseMOBI(data)
	require.NoError(t, err)

	assert.Equal(t, "Test MOBI Book", meta.Title)
	assert.Equal(t, []string{"J. R. R. Tolkien"}, meta.Authors)
	assert.Equal(t, "An extraordinary book", meta.Annotation)
	assert.Equal(t, "2024-01-15", meta.Docdate)
	assert.Equal(t, "en", meta.Lang)
	// MOBI carries no genre or series information.
	assert.Empty(t, meta.Genres)
	assert.Empty(t, meta.SeriesTitle)

	assert.Equal(t, cover, meta.CoverData)
	assert.Equal(t, "image/jpeg", meta.CoverType)
}

func TestParseMOBIMultipleAuthors(t *testing.T) {
	data := buildMOBI(t, "Duo", []exthEntry{
		{exthAuthor, []byte("Author One & Author Two ; Author Three")},
	}, nil)

	meta, err := ParseMOBI(data)
	require.NoError(t, err)
	assert.Equal(t, []string{"Author One", "Author Two", "Author Three"}, meta.Authors)
}

func TestParseMOBICoverFallbackToFirstImage(t *testing.T) {
	// No CoverOffset record: the first record that looks like an image wins.
	png := []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A}
	data := buildMOBI(t, "Fallback", nil, [][]byte{
		{0x00, 0x01, 0x02, 0x03, 0x04}, // not an image
		png,
	})

	meta, err := ParseMOBI(data)
	require.NoError(t, err)
	assert.Equal(t, png, meta.CoverData)
	assert.Equal(t, "image/png", meta.CoverType)
}

func TestParseMOBIInvalidData(t *testing.T) {
	_, err := ParseMOBI([]byte("not a mobi file"))
	require.Error(t, err)

	_, err = ParseMOBI(nil)
	require.Error(t, err)
}

func TestStripHTMLTags(t *testing.T) {
	assert.Equal(t, "Hello", stripHTMLTags("<p>Hello</p>"))
	assert.Equal(t, "Bold and italic", stripHTMLTags("<b>Bold</b> and <i>italic</i>"))
	assert.Equal(t, "No tags here", stripHTMLTags("No tags here"))
	assert.Equal(t, "", stripHTMLTags(""))
}
