package extract

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTML(t *testing.T) {
	page := `<!doctype html>
<html><head><title>Ignored</title><style>p{color:red}</style></head>
<body>
  <h1>Refund   policy</h1>
  <p>Returns are accepted within <b>30 days</b>.</p>
  <script>var x = "hidden";</script>
  <ul><li>Keep the receipt</li><li>Use original packaging</li></ul>
  <p>Contact&nbsp;support.</p>
</body></html>`

	text, err := HTML(strings.NewReader(page))
	require.NoError(t, err)
	assert.Equal(t, "Refund policy\nReturns are accepted within 30 days .\nKeep the receipt\nUse original packaging\nContact support.", text)
	assert.NotContains(t, text, "hidden")
	assert.NotContains(t, text, "Ignored")
}

func TestDocument(t *testing.T) {
	text, err := Document([]byte("line one\r\nline two\n"), "text/plain; charset=utf-8", "a.txt")
	require.NoError(t, err)
	assert.Equal(t, "line one\nline two", text)

	text, err = Document([]byte("# Title\n\nbody"), "", "notes.md")
	require.NoError(t, err)
	assert.Equal(t, "# Title\n\nbody", text)

	text, err = Document([]byte("<p>hi</p>"), "", "page.html")
	require.NoError(t, err)
	assert.Equal(t, "hi", text)

	_, err = Document([]byte("%PDF-1.7"), "application/pdf", "doc.pdf")
	assert.ErrorIs(t, err, ErrUnsupportedFormat)

	_, err = Document([]byte{0xff, 0x00, 0xfe}, "", "blob.txt")
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestText(t *testing.T) {
	assert.Equal(t, "a\nb", Text("  a\r\nb \n"))
	assert.Equal(t, "ok�", Text("ok\xff"))
}
