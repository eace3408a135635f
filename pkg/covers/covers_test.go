package covers

import (
	"bytes"
	"image"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gopds/gopds/pkg/config"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	cfg := config.NewForTest()
	cfg.Covers.Dir = t.TempDir()
	cfg.Covers.MaxWidth = 100
	cfg.Covers.MaxHeight = 150
	return NewStore(cfg)
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	buf := &bytes.Buffer{}
	require.NoError(t, png.Encode(buf, image.NewRGBA(image.Rect(0, 0, w, h))))
	return buf.Bytes()
}

func decodeStored(t *testing.T, path string) image.Image {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	img, err := jpeg.Decode(f)
	require.NoError(t, err)
	return img
}

func TestSaveResizesLargeCover(t *testing.T) {
	st := newTestStore(t)

	require.NoError(t, st.Save(7, pngBytes(t, 400, 400)))

	path := st.Path(7)
	assert.Equal(t, filepath.Join(st.cfg.Covers.Dir, "7.jpg"), path)

	img := decodeStored(t, path)
	// 400x400 into 100x150 scales by width.
	assert.Equal(t, 100, img.Bounds().Dx())
	assert.Equal(t, 100, img.Bounds().Dy())
}

func TestSaveKeepsSmallCover(t *testing.T) {
	st := newTestStore(t)

	require.NoError(t, st.Save(8, pngBytes(t, 50, 60)))

	img := decodeStored(t, st.Path(8))
	assert.Equal(t, 50, img.Bounds().Dx())
	assert.Equal(t, 60, img.Bounds().Dy())
}

func TestSaveRejectsGarbage(t *testing.T) {
	st := newTestStore(t)
	err := st.Save(9, []byte("not an image"))
	require.Error(t, err)
	assert.NoFileExists(t, st.Path(9))
}

func TestDelete(t *testing.T) {
	st := newTestStore(t)
	require.NoError(t, st.Save(10, pngBytes(t, 10, 10)))
	require.NoError(t, st.Delete(10))
	assert.NoFileExists(t, st.Path(10))

	// Deleting again is fine.
	require.NoError(t, st.Delete(10))
}

func TestFitDimensions(t *testing.T) {
	tests := []struct {
		w, h, maxW, maxH     int
		wantW, wantH         int
	}{
		{600, 900, 600, 900, 600, 900},
		{1200, 1800, 600, 900, 600, 900},
		{1800, 1200, 600, 900, 600, 400},
		{10, 10, 600, 900, 10, 10},
		{10000, 1, 600, 900, 600, 1},
	}
	for _, tt := range tests {
		gotW, gotH := fitDimensions(tt.w, tt.h, tt.maxW, tt.maxH)
		assert.Equal(t, tt.wantW, gotW)
		assert.Equal(t, tt.wantH, gotH)
	}
}

func TestParseKeyValues(t *testing.T) {
	out := []byte("Title:          The Book\nPages:          42\njunk line\nEmpty:\n")
	info := parseKeyValues(out)
	assert.Equal(t, "The Book", info["Title"])
	assert.Equal(t, "42", info["Pages"])
	assert.NotContains(t, info, "Empty")
	assert.Len(t, info, 2)
}
