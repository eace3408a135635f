package bookmeta

import (
	"bytes"
	"encoding/base64"
	"encoding/xml"
	"io"
	"strconv"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/transform"

	"github.com/gopds/gopds/pkg/errcodes"
)

// ParseFB2 extracts metadata from FB2 XML. The parser is deliberately
// tolerant: malformed XML yields whatever was recovered before the error,
// returned alongside a parse error so the failure is still visible, and the
// cover is pulled out of the raw bytes afterwards so a truncated document
// keeps its cover.
func ParseFB2(data []byte) (*Metadata, error) {
	meta := &Metadata{}
	var parseErr error

	dec := xml.NewDecoder(bytes.NewReader(data))
	dec.Strict = false
	dec.CharsetReader = charsetReader

	var path []string
	var authorFirst, authorLast strings.Builder
	var annotationParts []string
	var coverRef string
	inAnnotation := false
	descriptionDone := false

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			// Keep the partial metadata, but report the malformed XML.
			parseErr = errcodes.Parse("fb2: " + err.Error())
			break
		}

		switch t := tok.(type) {
		case xml.StartElement:
			local := strings.ToLower(t.Name.Local)

			// <sequence name="..." number="..."/>
			if local == "sequence" && pathEndsWith(path, "description", "title-info") {
				for _, attr := range t.Attr {
					switch attr.Name.Local {
					case "name":
						meta.SeriesTitle = StripMeta(attr.Value)
					case "number":
						n, _ := strconv.Atoi(StripMeta(attr.Value))
						meta.SeriesIndex = n
					}
				}
			}

			// <image l:href="#cover.jpg"/> inside <coverpage>
			if local == "image" && pathContains(path, "coverpage") {
				for _, attr := range t.Attr {
					if strings.HasSuffix(attr.Name.Local, "href") {
						id := strings.ToLower(strings.TrimPrefix(attr.Value, "#"))
						if id != "" {
							coverRef = id
						}
					}
				}
			}

			path = append(path, local)
			if pathEndsWith(path, "description", "title-info", "annotation") {
				inAnnotation = true
			}

		case xml.EndElement:
			local := strings.ToLower(t.Name.Local)

			if local == "author" && pathContains(path, "title-info") {
				first := StripMeta(authorFirst.String())
				last := StripMeta(authorLast.String())
				full := strings.TrimSpace(first + " " + last)
				if full != "" {
					meta.Authors = append(meta.Authors, full)
				}
				authorFirst.Reset()
				authorLast.Reset()
			}
			if local == "annotation" {
				inAnnotation = false
				meta.Annotation = strings.Join(annotationParts, "\n")
			}
			if local == "description" {
				descriptionDone = true
			}
			if len(path) > 0 {
				path = path[:len(path)-1]
			}

		case xml.CharData:
			if descriptionDone {
				continue
			}
			text := string(t)
			tag := ""
			if len(path) > 0 {
				tag = path[len(path)-1]
			}

			switch {
			case tag == "book-title" && pathEndsWith(path, "description", "title-info", "book-title"):
				meta.Title = StripMeta(text)
			case tag == "genre" && pathEndsWith(path, "description", "title-info", "genre"):
				if g := strings.ToLower(strings.TrimSpace(text)); g != "" {
					meta.Genres = append(meta.Genres, g)
				}
			case tag == "lang" && pathEndsWith(path, "description", "title-info", "lang"):
				meta.Lang = StripMeta(text)
			case tag == "first-name" && pathContains(path, "author") && pathContains(path, "title-info"):
				authorFirst.WriteString(text)
			case tag == "last-name" && pathContains(path, "author") && pathContains(path, "title-info"):
				authorLast.WriteString(text)
			case tag == "date" && pathEndsWith(path, "description", "document-info", "date"):
				if meta.Docdate == "" {
					meta.Docdate = StripMeta(text)
				}
			case inAnnotation:
				if trimmed := strings.TrimSpace(text); trimmed != "" {
					annotationParts = append(annotationParts, trimmed)
				}
			}
		}
	}

	meta.Annotation = SanitizeAnnotation(meta.Annotation)

	if meta.CoverData == nil && coverRef != "" {
		if cover, mime := fb2CoverFromBytes(data, coverRef); cover != nil {
			meta.CoverData = cover
			meta.CoverType = mime
		}
	}

	return meta, parseErr
}

// fb2CoverFromBytes finds the <binary id="..."> element matching the cover
// reference by raw byte search and decodes its base64 payload. The XML
// decoder often never reaches the binary section of a broken file, so this
// runs against the original bytes.
func fb2CoverFromBytes(data []byte, coverID string) ([]byte, string) {
	text := string(data)
	coverID = strings.ToLower(coverID)
	pos := 0

	for {
		start := strings.Index(text[pos:], "<binary ")
		if start < 0 {
			return nil, ""
		}
		start += pos
		tagEnd := strings.IndexByte(text[start:], '>')
		if tagEnd < 0 {
			pos = start + 1
			continue
		}
		tagEnd += start
		tag := text[start : tagEnd+1]

		if strings.ToLower(attrValue(tag, "id")) != coverID {
			pos = tagEnd + 1
			continue
		}

		contentStart := tagEnd + 1
		closePos := strings.Index(text[contentStart:], "</binary>")
		if closePos < 0 {
			return nil, ""
		}
		b64 := strings.Map(func(r rune) rune {
			if r == ' ' || r == '\n' || r == '\r' || r == '\t' {
				return -1
			}
			return r
		}, text[contentStart:contentStart+closePos])

		img, err := base64.StdEncoding.DecodeString(b64)
		if err != nil {
			return nil, ""
		}
		return img, imageMIME(img)
	}
}

// attrValue pulls attr="value" out of a raw tag string.
func attrValue(tag, name string) string {
	pattern := name + `="`
	start := strings.Index(tag, pattern)
	if start < 0 {
		return ""
	}
	start += len(pattern)
	end := strings.IndexByte(tag[start:], '"')
	if end < 0 {
		return ""
	}
	return tag[start : start+end]
}

// imageMIME sniffs the image type, defaulting to JPEG the way most FB2
// producers assume.
func imageMIME(data []byte) string {
	mime := mimetype.Detect(data)
	if strings.HasPrefix(mime.String(), "image/") {
		return mime.String()
	}
	return "image/jpeg"
}

func pathEndsWith(path []string, suffix ...string) bool {
	if len(path) < len(suffix) {
		return false
	}
	offset := len(path) - len(suffix)
	for i, s := range suffix {
		if path[offset+i] != s {
			return false
		}
	}
	return true
}

func pathContains(path []string, tag string) bool {
	for _, p := range path {
		if p == tag {
			return true
		}
	}
	return false
}

// charsetReader lets the XML decoder handle the single-byte encodings
// common in FB2 files (windows-1251, koi8-r).
func charsetReader(charset string, input io.Reader) (io.Reader, error) {
	enc, err := htmlindex.Get(strings.ToLower(charset))
	if err != nil {
		return nil, err
	}
	return transform.NewReader(input, enc.NewDecoder()), nil
}
