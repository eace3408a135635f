package bookmeta

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gopds/gopds/pkg/errcodes"
)

func TestExtractDispatch(t *testing.T) {
	meta, err := Extract("FB2", []byte(fb2Doc))
	require.NoError(t, err)
	assert.Equal(t, "Test", meta.Title)

	_, err = Extract("pdf", []byte("%PDF-1.4"))
	require.Error(t, err)
	assert.True(t, errcodes.IsKind(err, errcodes.KindParse))

	_, err = Extract("txt", nil)
	require.Error(t, err)
}
