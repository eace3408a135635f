package bookmeta

import (
	"strings"

	"github.com/gopds/gopds/pkg/errcodes"
)

// Metadata is what the format extractors pull out of a single book file.
// Every field is optional; extractors return whatever they could recover.
type Metadata struct {
	Title       string
	Authors     []string
	Genres      []string
	Annotation  string
	Lang        string
	SeriesTitle string
	SeriesIndex int
	Docdate     string

	// Raw cover image bytes and their MIME type, when a cover was found.
	CoverData []byte
	CoverType string
}

// Extract dispatches on the file format. PDF and DjVu metadata comes from
// external tools and is handled by the covers package, not here.
func Extract(format string, data []byte) (*Metadata, error) {
	switch strings.ToLower(format) {
	case "fb2":
		return ParseFB2(data)
	case "epub":
		return ParseEPUB(data)
	case "mobi":
		return ParseMOBI(data)
	default:
		return nil, errcodes.Parse("no metadata extractor for format: " + format)
	}
}
