package bookmeta

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"io"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/gopds/gopds/pkg/errcodes"
)

// ParseEPUB extracts metadata from an EPUB container. The package document
// (OPF) is located through META-INF/container.xml; when several rootfiles
// are declared, the first one in document order wins, so reordering the
// container entries is the only way to change which one is read.
func ParseEPUB(data []byte) (*Metadata, error) {
	archive, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, errors.WithStack(errcodes.Parse("epub: not a zip container: " + err.Error()))
	}

	opfPath, err := findOPFPath(archive)
	if err != nil {
		return nil, err
	}
	opfData, err := readZipEntry(archive, opfPath)
	if err != nil {
		return nil, errors.WithStack(errcodes.Parse("epub: unreadable package document: " + err.Error()))
	}

	meta := parseOPF(opfData)
	meta.Annotation = SanitizeAnnotation(meta.Annotation)

	if cover, mime := epubCover(archive, opfData, opfPath); cover != nil {
		meta.CoverData = cover
		meta.CoverType = mime
	}

	return meta, nil
}

func findOPFPath(archive *zip.Reader) (string, error) {
	if data, err := readZipEntry(archive, "META-INF/container.xml"); err == nil {
		if path := parseContainerXML(data); path != "" {
			return path, nil
		}
	}

	// Fallback for containers without a usable container.xml.
	var opfFiles []string
	for _, f := range archive.File {
		if strings.HasSuffix(f.Name, ".opf") {
			opfFiles = append(opfFiles, f.Name)
		}
	}
	switch len(opfFiles) {
	case 1:
		return opfFiles[0], nil
	case 0:
		return "", errors.WithStack(errcodes.Parse("epub: no package document found"))
	default:
		return "", errors.WithStack(errcodes.Parse("epub: multiple package documents, none declared"))
	}
}

// parseContainerXML returns the full-path of the first rootfile in document
// order, regardless of declared media-type.
func parseContainerXML(data []byte) string {
	dec := xml.NewDecoder(bytes.NewReader(data))
	dec.Strict = false
	dec.CharsetReader = charsetReader

	for {
		tok, err := dec.Token()
		if err != nil {
			return ""
		}
		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		if strings.ToLower(start.Name.Local) != "rootfile" {
			continue
		}
		for _, attr := range start.Attr {
			if attr.Name.Local == "full-path" && attr.Value != "" {
				return attr.Value
			}
		}
	}
}

// parseOPF reads the Dublin Core metadata plus the calibre series meta tags.
func parseOPF(data []byte) *Metadata {
	meta := &Metadata{}
	dec := xml.NewDecoder(bytes.NewReader(data))
	dec.Strict = false
	dec.CharsetReader = charsetReader

	var path []string
	var text strings.Builder
	var creatorRole string
	var creatorsAut, creatorsAll []string

	for {
		tok, err := dec.Token()
		if err != nil {
			break
		}

		switch t := tok.(type) {
		case xml.StartElement:
			local := strings.ToLower(t.Name.Local)

			if local == "meta" {
				var name, content string
				for _, attr := range t.Attr {
					switch attr.Name.Local {
					case "name":
						name = attr.Value
					case "content":
						content = attr.Value
					}
				}
				switch name {
				case "calibre:series":
					meta.SeriesTitle = StripMeta(content)
				case "calibre:series_index":
					f, _ := strconv.ParseFloat(content, 64)
					meta.SeriesIndex = int(f)
				}
			}
			if local == "creator" {
				creatorRole = ""
				for _, attr := range t.Attr {
					if attr.Name.Local == "role" {
						creatorRole = attr.Value
					}
				}
			}

			path = append(path, local)
			text.Reset()

		case xml.EndElement:
			tag := ""
			if len(path) > 0 {
				tag = path[len(path)-1]
			}
			value := strings.TrimSpace(text.String())

			if pathContains(path, "metadata") {
				switch tag {
				case "title":
					if meta.Title == "" {
						meta.Title = StripMeta(value)
					}
				case "creator":
					if value != "" {
						if creatorRole == "aut" {
							creatorsAut = append(creatorsAut, value)
						}
						creatorsAll = append(creatorsAll, value)
					}
					creatorRole = ""
				case "language":
					if meta.Lang == "" {
						meta.Lang = StripMeta(value)
					}
				case "subject":
					if g := strings.ToLower(StripMeta(value)); g != "" {
						meta.Genres = append(meta.Genres, g)
					}
				case "description":
					if meta.Annotation == "" {
						meta.Annotation = StripMeta(value)
					}
				case "date":
					if meta.Docdate == "" {
						meta.Docdate = StripMeta(value)
					}
				}
			}

			if len(path) > 0 {
				path = path[:len(path)-1]
			}
			text.Reset()

		case xml.CharData:
			text.Write(t)
		}
	}

	// Prefer creators explicitly marked as authors.
	if len(creatorsAut) > 0 {
		meta.Authors = creatorsAut
	} else {
		meta.Authors = creatorsAll
	}

	return meta
}

type manifestItem struct {
	id         string
	href       string
	mediaType  string
	properties string
}

// epubCover tries three strategies in order: an item with
// properties="cover-image", the item referenced by <meta name="cover">, and
// finally an item whose id is literally "cover".
func epubCover(archive *zip.Reader, opfData []byte, opfPath string) ([]byte, string) {
	opfDir := ""
	if i := strings.LastIndexByte(opfPath, '/'); i >= 0 {
		opfDir = opfPath[:i+1]
	}

	manifest, coverID := parseOPFManifest(opfData)

	tryItem := func(item *manifestItem) ([]byte, string) {
		if !strings.HasPrefix(item.mediaType, "image/") {
			return nil, ""
		}
		data, err := readZipEntry(archive, resolveHref(opfDir, item.href))
		if err != nil {
			return nil, ""
		}
		return data, item.mediaType
	}

	for i := range manifest {
		if strings.Contains(manifest[i].properties, "cover-image") {
			if data, mime := tryItem(&manifest[i]); data != nil {
				return data, mime
			}
		}
	}
	if coverID != "" {
		for i := range manifest {
			if manifest[i].id == coverID {
				if data, mime := tryItem(&manifest[i]); data != nil {
					return data, mime
				}
			}
		}
	}
	for i := range manifest {
		if strings.EqualFold(manifest[i].id, "cover") {
			if data, mime := tryItem(&manifest[i]); data != nil {
				return data, mime
			}
		}
	}
	return nil, ""
}

func parseOPFManifest(data []byte) ([]manifestItem, string) {
	var items []manifestItem
	var coverID string

	dec := xml.NewDecoder(bytes.NewReader(data))
	dec.Strict = false
	dec.CharsetReader = charsetReader

	for {
		tok, err := dec.Token()
		if err != nil {
			break
		}
		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		switch strings.ToLower(start.Name.Local) {
		case "item":
			item := manifestItem{}
			for _, attr := range start.Attr {
				switch attr.Name.Local {
				case "id":
					item.id = attr.Value
				case "href":
					item.href = attr.Value
				case "media-type":
					item.mediaType = attr.Value
				case "properties":
					item.properties = attr.Value
				}
			}
			items = append(items, item)
		case "meta":
			var name, content string
			for _, attr := range start.Attr {
				switch attr.Name.Local {
				case "name":
					name = attr.Value
				case "content":
					content = attr.Value
				}
			}
			if name == "cover" && content != "" {
				coverID = content
			}
		}
	}

	return items, coverID
}

func resolveHref(baseDir, href string) string {
	if strings.HasPrefix(href, "/") {
		return strings.TrimPrefix(href, "/")
	}
	return baseDir + href
}

func readZipEntry(archive *zip.Reader, name string) ([]byte, error) {
	f, err := archive.Open(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}
