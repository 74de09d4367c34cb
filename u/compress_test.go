package u

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/alecthomas/assert"
	"github.com/andybalholm/brotli"
)

func testMaybeCompressed(t *testing.T, path string, d []byte) {
	got, err := ReadFileMaybeCompressed(path)
	assert.NoError(t, err)
	assert.Equal(t, d, got)
}

func TestOpenFileMaybeCompressed(t *testing.T) {
	dir := t.TempDir()
	d := bytes.Repeat([]byte("line of text\n"), 100)

	plain := filepath.Join(dir, "f.txt")
	assert.NoError(t, os.WriteFile(plain, d, 0644))
	testMaybeCompressed(t, plain, d)
	assert.False(t, IsGzipFile(plain))

	gz, err := GzipCompressData(d)
	assert.NoError(t, err)
	gzPath := filepath.Join(dir, "f.txt.gz")
	assert.NoError(t, os.WriteFile(gzPath, gz, 0644))
	testMaybeCompressed(t, gzPath, d)
	assert.True(t, IsGzipFile(gzPath))

	zst, err := ZstdCompressData(d)
	assert.NoError(t, err)
	zstPath := filepath.Join(dir, "f.txt.zst")
	assert.NoError(t, os.WriteFile(zstPath, zst, 0644))
	testMaybeCompressed(t, zstPath, d)

	var br bytes.Buffer
	w := brotli.NewWriter(&br)
	_, err = w.Write(d)
	assert.NoError(t, err)
	assert.NoError(t, w.Close())
	brPath := filepath.Join(dir, "f.txt.br")
	assert.NoError(t, os.WriteFile(brPath, br.Bytes(), 0644))
	testMaybeCompressed(t, brPath, d)
}

func TestZstdRoundtrip(t *testing.T) {
	d := []byte("zstd zstd zstd zstd zstd")
	c, err := ZstdCompressData(d)
	assert.NoError(t, err)
	got, err := ZstdDecompressData(c)
	assert.NoError(t, err)
	assert.Equal(t, d, got)
}

func TestFileHelpers(t *testing.T) {
	dir := t.TempDir()
	assert.True(t, DirExists(dir))
	assert.True(t, DirWritable(dir))
	assert.False(t, DirWritable(filepath.Join(dir, "missing")))
	src := filepath.Join(dir, "a.txt")
	assert.NoError(t, os.WriteFile(src, []byte("abc"), 0644))
	assert.True(t, FileExists(src))
	assert.Equal(t, int64(3), FileSize(src))
	dst := filepath.Join(dir, "sub", "b.txt")
	assert.NoError(t, CopyFile(dst, src))
	assert.Equal(t, int64(3), FileSize(dst))
	assert.Equal(t, int64(-1), FileSize(filepath.Join(dir, "nope")))
	assert.Equal(t, "a", TrimExt("a.txt"))
}
