package covers

import (
	"bytes"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"strconv"

	"github.com/pkg/errors"
	"golang.org/x/image/draw"

	"github.com/gopds/gopds/pkg/config"
	"github.com/gopds/gopds/pkg/errcodes"
)

// Store keeps one cover file per book under the covers directory, resized
// to fit the configured bounds and re-encoded as JPEG. The filename is the
// book id, so covers survive metadata updates and are trivially addressable
// by the serving layer.
type Store struct {
	cfg *config.Config
}

func NewStore(cfg *config.Config) *Store {
	return &Store{cfg}
}

// Path returns where the cover of a book lives, whether or not it exists.
func (st *Store) Path(bookID int64) string {
	return filepath.Join(st.cfg.Covers.Dir, strconv.FormatInt(bookID, 10)+".jpg")
}

// Save decodes, resizes, and writes a cover image for the book. Undecodable
// data is a parse error; the caller records it and keeps the book.
func (st *Store) Save(bookID int64, data []byte) error {
	srcImg, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return errors.WithStack(errcodes.Parse("cover image: " + err.Error()))
	}

	srcBounds := srcImg.Bounds()
	targetW, targetH := fitDimensions(srcBounds.Dx(), srcBounds.Dy(), st.cfg.Covers.MaxWidth, st.cfg.Covers.MaxHeight)

	out := srcImg
	if targetW != srcBounds.Dx() || targetH != srcBounds.Dy() {
		dstImg := image.NewRGBA(image.Rect(0, 0, targetW, targetH))
		draw.BiLinear.Scale(dstImg, dstImg.Bounds(), srcImg, srcBounds, draw.Over, nil)
		out = dstImg
	}

	if err := os.MkdirAll(st.cfg.Covers.Dir, 0o755); err != nil {
		return errors.WithStack(err)
	}
	f, err := os.Create(st.Path(bookID))
	if err != nil {
		return errors.WithStack(err)
	}
	defer f.Close()

	if err := jpeg.Encode(f, out, &jpeg.Options{Quality: st.cfg.Covers.JpegQuality}); err != nil {
		return errors.WithStack(err)
	}
	return errors.WithStack(f.Sync())
}

// Delete removes a stored cover. A missing file is not an error.
func (st *Store) Delete(bookID int64) error {
	err := os.Remove(st.Path(bookID))
	if err != nil && !os.IsNotExist(err) {
		return errors.WithStack(err)
	}
	return nil
}

// fitDimensions shrinks (w, h) to fit within (maxW, maxH) preserving aspect
// ratio. Images already inside the bounds keep their size.
func fitDimensions(w, h, maxW, maxH int) (int, int) {
	if w <= maxW && h <= maxH {
		return w, h
	}
	scaleW := float64(maxW) / float64(w)
	scaleH := float64(maxH) / float64(h)
	scale := scaleW
	if scaleH < scale {
		scale = scaleH
	}
	targetW := int(float64(w) * scale)
	targetH := int(float64(h) * scale)
	if targetW < 1 {
		targetW = 1
	}
	if targetH < 1 {
		targetH = 1
	}
	return targetW, targetH
}
