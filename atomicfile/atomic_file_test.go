package atomicfile

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/alecthomas/assert"
)

func assertFileExists(t *testing.T, path string) {
	st, err := os.Stat(path)
	assert.NoError(t, err)
	assert.True(t, st.Mode().IsRegular(), "'%s' is not a regular file", path)
}

func assertFileNotExists(t *testing.T, path string) {
	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err), "'%s' exists", path)
}

func TestSimulateError(t *testing.T) {
	dst := filepath.Join(t.TempDir(), "out.jsonl")
	f, err := New(dst)
	assert.NoError(t, err)
	assertFileExists(t, f.TempPath())
	_, err = f.Write([]byte("foo"))
	assert.NoError(t, err)
	errSimulated := errors.New("simulated")
	f.err = errSimulated
	assert.Equal(t, errSimulated, f.Close())
	assertFileNotExists(t, f.TempPath())
	assertFileNotExists(t, dst)
	// on second Close() should get the same error
	assert.Equal(t, errSimulated, f.Close())
}

func TestWriteFile(t *testing.T) {
	dir := t.TempDir()
	dst := filepath.Join(dir, "out.jsonl")
	err := WriteFile(dst, func(w io.Writer) error {
		_, err := io.WriteString(w, "line\n")
		return err
	})
	assert.NoError(t, err)
	d, err := os.ReadFile(dst)
	assert.NoError(t, err)
	assert.Equal(t, "line\n", string(d))
	st, err := os.Stat(dst)
	assert.NoError(t, err)
	assert.Equal(t, os.FileMode(0644), st.Mode().Perm())

	// failure leaves the old content and no temp files
	errFail := errors.New("fail")
	err = WriteFile(dst, func(w io.Writer) error {
		_, _ = io.WriteString(w, "partial")
		return errFail
	})
	assert.Equal(t, errFail, err)
	d, err = os.ReadFile(dst)
	assert.NoError(t, err)
	assert.Equal(t, "line\n", string(d))
	entries, err := os.ReadDir(dir)
	assert.NoError(t, err)
	assert.Equal(t, 1, len(entries))
}

func writeWithPanicCancel(t *testing.T, f *File) {
	defer f.RemoveIfNotClosed()

	_, err := f.Write([]byte("foo"))
	assert.NoError(t, err)
	panic("simulating a crash")
}

func TestCancel(t *testing.T) {
	dst := filepath.Join(t.TempDir(), "out.jsonl")
	f, err := New(dst)
	assert.NoError(t, err)
	func() {
		defer func() {
			assert.NotNil(t, recover())
		}()
		writeWithPanicCancel(t, f)
	}()
	assertFileNotExists(t, f.TempPath())
	assertFileNotExists(t, dst)

	_, err = f.Write([]byte("x"))
	assert.Equal(t, ErrCancelled, err)
	assert.Equal(t, ErrCancelled, f.Close())
}

func TestWrite(t *testing.T) {
	dst := filepath.Join(t.TempDir(), "out.jsonl")
	f, err := New(dst)
	assert.NoError(t, err)
	n, err := f.WriteString("0123456789")
	assert.NoError(t, err)
	assert.Equal(t, 10, n)
	assert.NoError(t, f.Close())
	assertFileNotExists(t, f.TempPath())
	assertFileExists(t, dst)
	// calling Close twice is a no-op
	assert.NoError(t, f.Close())

	// can't create files in directories that don't exist
	f, err = New(filepath.Join(t.TempDir(), "foo", "bar.txt"))
	assert.Error(t, err)
	assert.Nil(t, f)
}
