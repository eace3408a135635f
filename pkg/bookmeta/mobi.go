package bookmeta

import (
	"bytes"
	"encoding/binary"
	"strings"

	"github.com/pkg/errors"

	"github.com/gopds/gopds/pkg/errcodes"
)

// MOBI carries no genre or series metadata, so those fields stay empty.
// The format is a PalmDB container: a record table up front, record 0
// holding the PalmDOC + MOBI + EXTH headers, and image records near the end.

const (
	exthAuthor      = 100
	exthDescription = 103
	exthPublishDate = 106
	exthCoverOffset = 201
)

// mobiLanguages maps the low byte of the MOBI locale field to ISO 639-1.
var mobiLanguages = map[byte]string{
	0x09: "en", 0x19: "ru", 0x07: "de", 0x0C: "fr", 0x0A: "es",
	0x10: "it", 0x16: "pt", 0x13: "nl", 0x1D: "sv", 0x15: "pl",
	0x05: "cs", 0x0E: "hu", 0x22: "uk", 0x1F: "tr", 0x08: "el",
	0x11: "ja", 0x12: "ko", 0x04: "zh", 0x0D: "he", 0x01: "ar",
}

// ParseMOBI extracts the title, EXTH metadata, and cover image from a MOBI
// file.
func ParseMOBI(data []byte) (*Metadata, error) {
	records, err := pdbRecords(data)
	if err != nil {
		return nil, err
	}
	record0 := records[0]
	if len(record0) < 132 || !bytes.Equal(record0[16:20], []byte("MOBI")) {
		return nil, errors.WithStack(errcodes.Parse("mobi: missing MOBI header"))
	}

	meta := &Metadata{}
	be := binary.BigEndian

	// Full name lives in record 0, located by offset/length fields.
	nameOffset := int(be.Uint32(record0[84:88]))
	nameLength := int(be.Uint32(record0[88:92]))
	if nameOffset > 0 && nameOffset+nameLength <= len(record0) {
		meta.Title = StripMeta(string(record0[nameOffset : nameOffset+nameLength]))
	}

	if len(record0) >= 96 {
		meta.Lang = mobiLanguages[record0[95]]
	}

	firstImage := -1
	if len(record0) >= 112 {
		firstImage = int(be.Uint32(record0[108:112]))
	}

	coverOffset := -1
	headerLength := int(be.Uint32(record0[20:24]))
	exthFlags := be.Uint32(record0[128:132])
	if exthFlags&0x40 != 0 {
		coverOffset = parseEXTH(record0, 16+headerLength, meta)
	}

	meta.Annotation = SanitizeAnnotation(meta.Annotation)

	if cover, mime := mobiCover(records, firstImage, coverOffset); cover != nil {
		meta.CoverData = cover
		meta.CoverType = mime
	}

	return meta, nil
}

// pdbRecords splits a PalmDB file into its records.
func pdbRecords(data []byte) ([][]byte, error) {
	if len(data) < 78 {
		return nil, errors.WithStack(errcodes.Parse("mobi: file too short"))
	}
	be := binary.BigEndian
	numRecords := int(be.Uint16(data[76:78]))
	if numRecords == 0 || len(data) < 78+numRecords*8 {
		return nil, errors.WithStack(errcodes.Parse("mobi: truncated record table"))
	}

	offsets := make([]int, 0, numRecords+1)
	for i := 0; i < numRecords; i++ {
		offsets = append(offsets, int(be.Uint32(data[78+i*8:82+i*8])))
	}
	offsets = append(offsets, len(data))

	records := make([][]byte, 0, numRecords)
	for i := 0; i < numRecords; i++ {
		start, end := offsets[i], offsets[i+1]
		if start < 0 || end < start || end > len(data) {
			return nil, errors.WithStack(errcodes.Parse("mobi: invalid record offsets"))
		}
		records = append(records, data[start:end])
	}
	return records, nil
}

// parseEXTH walks the EXTH records starting at the given offset inside
// record 0 and returns the cover offset, or -1 when absent.
func parseEXTH(record0 []byte, start int, meta *Metadata) int {
	coverOffset := -1
	if start+12 > len(record0) || !bytes.Equal(record0[start:start+4], []byte("EXTH")) {
		return coverOffset
	}
	be := binary.BigEndian
	count := int(be.Uint32(record0[start+8 : start+12]))
	pos := start + 12

	for i := 0; i < count && pos+8 <= len(record0); i++ {
		recType := int(be.Uint32(record0[pos : pos+4]))
		recLen := int(be.Uint32(record0[pos+4 : pos+8]))
		if recLen < 8 || pos+recLen > len(record0) {
			break
		}
		payload := record0[pos+8 : pos+recLen]

		switch recType {
		case exthAuthor:
			for _, name := range strings.FieldsFunc(string(payload), func(r rune) bool {
				return r == '&' || r == ';'
			}) {
				if name = strings.TrimSpace(name); name != "" {
					meta.Authors = append(meta.Authors, name)
				}
			}
		case exthDescription:
			meta.Annotation = stripHTMLTags(string(payload))
		case exthPublishDate:
			meta.Docdate = StripMeta(string(payload))
		case exthCoverOffset:
			if len(payload) >= 4 {
				coverOffset = int(be.Uint32(payload[:4]))
			}
		}
		pos += recLen
	}
	return coverOffset
}

// mobiCover picks the record at firstImage+coverOffset, falling back to the
// first record that looks like an image.
func mobiCover(records [][]byte, firstImage, coverOffset int) ([]byte, string) {
	if firstImage >= 0 && coverOffset >= 0 {
		if idx := firstImage + coverOffset; idx < len(records) {
			if mime := imageRecordMIME(records[idx]); mime != "" {
				return records[idx], mime
			}
		}
	}
	start := firstImage
	if start < 0 {
		start = 0
	}
	for i := start; i < len(records); i++ {
		if mime := imageRecordMIME(records[i]); mime != "" {
			return records[i], mime
		}
	}
	return nil, ""
}

func imageRecordMIME(data []byte) string {
	if len(data) <= 4 {
		return ""
	}
	switch {
	case bytes.HasPrefix(data, []byte{0xFF, 0xD8}):
		return "image/jpeg"
	case bytes.HasPrefix(data, []byte{0x89, 0x50, 0x4E, 0x47}):
		return "image/png"
	case bytes.HasPrefix(data, []byte("GIF")):
		return "image/gif"
	}
	return ""
}

// stripHTMLTags keeps only the text content of an HTML fragment. MOBI
// descriptions routinely contain markup.
func stripHTMLTags(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	insideTag := false
	for _, r := range s {
		switch {
		case r == '<':
			insideTag = true
		case r == '>':
			insideTag = false
		case !insideTag:
			b.WriteRune(r)
		}
	}
	return strings.TrimSpace(b.String())
}
