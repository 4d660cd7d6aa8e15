package repl

import (
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// errEOF aliases io.EOF for the test readers in this package.
var errEOF = io.EOF

func TestStreamReader(t *testing.T) {
	r := NewStreamReader(strings.NewReader("first\r\nsecond\n\nlast"))

	for _, want := range []string{"first", "second", "", "last"} {
		line, err := r.ReadLine()
		require.NoError(t, err)
		assert.Equal(t, want, line)
	}

	_, err := r.ReadLine()
	assert.ErrorIs(t, err, io.EOF)
}

func TestStreamReader_LongLine(t *testing.T) {
	long := "set_model " + strings.Repeat("a", 200_000) + ".uvl"
	r := NewStreamReader(strings.NewReader(long + "\n"))

	line, err := r.ReadLine()
	require.NoError(t, err)
	assert.Equal(t, long, line)
}

func TestListFiles(t *testing.T) {
	names := listFiles("")
	assert.Contains(t, names, "reader_test.go")
}
