package bookmeta

import (
	"archive/zip"
	"bufio"
	"bytes"
	"path"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/gopds/gopds/pkg/errcodes"
)

// An INPX collection is a ZIP of .inp text files. Each line describes one
// book in a sibling archive, with fields separated by 0x04:
// author, genre, title, series, serno, file, size, libid, del, ext, date, lang.
const inpxSeparator = "\x04"

const (
	inpFieldAuthor = iota
	inpFieldGenre
	inpFieldTitle
	inpFieldSeries
	inpFieldSerNo
	inpFieldFile
	inpFieldSize
	inpFieldLibID
	inpFieldDel
	inpFieldExt
	inpFieldDate
	inpFieldLang
	inpMinFields
)

// InpxRecord is one book entry from an INPX index.
type InpxRecord struct {
	// Filename is the entry name inside the container archive.
	Filename string
	// Folder is the archive the book lives in, relative to the .inpx file.
	Folder string
	Format string
	Size   int64
	Meta   *Metadata
}

// ParseINPX reads every .inp entry of an INPX archive and returns the book
// records it describes. Records flagged as deleted are skipped.
func ParseINPX(data []byte) ([]*InpxRecord, error) {
	archive, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, errors.WithStack(errcodes.Parse("inpx: not a zip archive: " + err.Error()))
	}

	var records []*InpxRecord
	for _, entry := range archive.File {
		if !strings.HasSuffix(entry.Name, ".inp") {
			continue
		}
		f, err := entry.Open()
		if err != nil {
			continue
		}
		folder := defaultFolder(entry.Name)
		scanner := bufio.NewScanner(f)
		scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
		for scanner.Scan() {
			if rec := parseInpLine(scanner.Text(), folder); rec != nil {
				records = append(records, rec)
			}
		}
		f.Close()
	}
	return records, nil
}

func parseInpLine(line, folder string) *InpxRecord {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil
	}
	fields := strings.Split(line, inpxSeparator)
	if len(fields) < inpMinFields {
		return nil
	}

	if del := strings.TrimSpace(fields[inpFieldDel]); del != "" && del != "0" {
		return nil
	}

	ext := strings.TrimSpace(fields[inpFieldExt])
	serNo, _ := strconv.Atoi(strings.TrimSpace(fields[inpFieldSerNo]))
	size, _ := strconv.ParseInt(strings.TrimSpace(fields[inpFieldSize]), 10, 64)

	meta := &Metadata{
		Title:       StripMeta(fields[inpFieldTitle]),
		Lang:        StripMeta(fields[inpFieldLang]),
		Docdate:     StripMeta(fields[inpFieldDate]),
		SeriesIndex: serNo,
	}

	// Authors: colon-separated, with commas standing in for spaces.
	for _, a := range strings.Split(fields[inpFieldAuthor], ":") {
		if name := collapseSpaces(strings.ReplaceAll(a, ",", " ")); name != "" {
			meta.Authors = append(meta.Authors, name)
		}
	}

	// Genres: colon-separated codes.
	for _, g := range strings.Split(fields[inpFieldGenre], ":") {
		if code := strings.ToLower(StripMeta(g)); code != "" {
			meta.Genres = append(meta.Genres, code)
		}
	}

	// Series: only the first entry is kept.
	if first, _, _ := strings.Cut(fields[inpFieldSeries], ":"); StripMeta(first) != "" {
		meta.SeriesTitle = StripMeta(first)
	}

	return &InpxRecord{
		Filename: strings.TrimSpace(fields[inpFieldFile]) + "." + ext,
		Folder:   folder,
		Format:   strings.ToLower(ext),
		Size:     size,
		Meta:     meta,
	}
}

// defaultFolder maps "fb2-000001-000500.inp" to "fb2-000001-000500.zip",
// the archive name convention INPX collections use.
func defaultFolder(inpName string) string {
	base := path.Base(inpName)
	return strings.TrimSuffix(base, path.Ext(base)) + ".zip"
}
