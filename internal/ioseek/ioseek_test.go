package ioseek

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWriterBackpatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.bin")
	w, err := Create(path)
	require.NoError(t, err)

	_, err = w.Write([]byte("AAAABBBBCCCC"))
	require.NoError(t, err)
	require.EqualValues(t, 12, w.Tell())

	// Back-patch the first 4 bytes without disturbing the rest.
	require.NoError(t, w.WriteAt(0, []byte("ZZZZ")))
	require.NoError(t, w.Close())

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "ZZZZBBBBCCCC", string(got))
}

func TestReaderSeekAndLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "in.txt")
	require.NoError(t, os.WriteFile(path, []byte("first\nsecond\r\nthird"), 0o644))

	r, err := OpenForRead(path)
	require.NoError(t, err)
	defer r.Close()

	line, err := r.ReadLine()
	require.NoError(t, err)
	require.Equal(t, "first", line)

	line, err = r.ReadLine()
	require.NoError(t, err)
	require.Equal(t, "second", line)

	_, err = r.Seek(0, WhenceStart)
	require.NoError(t, err)
	require.EqualValues(t, 0, r.Tell())

	buf := make([]byte, 5)
	n, err := r.Read(buf)
	require.NoError(t, err)
	require.Equal(t, 5, n)
	require.Equal(t, "first", string(buf))
}

func TestOpenForReadNotFound(t *testing.T) {
	_, err := OpenForRead(filepath.Join(t.TempDir(), "missing.bin"))
	require.Error(t, err)
}
