package loaders

import (
	"archive/tar"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/alecthomas/assert"
	"github.com/kjk/pckstore/pck"
	"github.com/kjk/pckstore/u"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zip"
)

func writeFile(t *testing.T, path string, d string) {
	err := os.MkdirAll(filepath.Dir(path), 0755)
	assert.NoError(t, err)
	err = os.WriteFile(path, []byte(d), 0644)
	assert.NoError(t, err)
}

func readAll(t *testing.T, l RawLoader, key string) string {
	rc, err := l.Get(key)
	assert.NoError(t, err)
	defer rc.Close()
	d, err := io.ReadAll(rc)
	assert.NoError(t, err)
	return string(d)
}

// makeTree creates:
//
//	f1.out, g.out.gz, d1/f2.out, d1/d2/f3.out, skip/f4.out
func makeTree(t *testing.T) string {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "f1.out"), "one")
	writeFile(t, filepath.Join(dir, "d1", "f2.out"), "two")
	writeFile(t, filepath.Join(dir, "d1", "d2", "f3.out"), "three")
	writeFile(t, filepath.Join(dir, "skip", "f4.out"), "four")
	gz, err := u.GzipCompressData([]byte("gzipped"))
	assert.NoError(t, err)
	err = os.WriteFile(filepath.Join(dir, "g.out.gz"), gz, 0644)
	assert.NoError(t, err)
	return dir
}

func TestDirRawLoader(t *testing.T) {
	dir := makeTree(t)
	l, err := NewRawLoader(dir, nil)
	assert.NoError(t, err)
	assert.Equal(t, TypeDir, l.Type())
	// d1/d2/f3.out is too deep
	assert.Equal(t, []string{"d1/f2.out", "f1.out", "g.out.gz", "skip/f4.out"}, l.Keys())
	assert.Equal(t, "two", readAll(t, l, "d1/f2.out"))
	assert.Equal(t, "gzipped", readAll(t, l, "g.out.gz"))

	_, err = l.Get("d1/d2/f3.out")
	assert.True(t, errors.Is(err, pck.ErrKeyNotFound))
	assert.NoError(t, l.Close())
	assert.NoError(t, l.Close())
}

func TestDirRawLoaderExclude(t *testing.T) {
	dir := makeTree(t)
	opts := &RawOptions{
		ExcludeDir:  func(name string) bool { return name == "skip" },
		ExcludeFile: func(name string) bool { return filepath.Ext(name) == ".gz" },
	}
	l, err := NewDirRawLoader(dir, opts)
	assert.NoError(t, err)
	assert.Equal(t, []string{"d1/f2.out", "f1.out"}, l.Keys())
	assert.Equal(t, []string{"d1/f2.out"}, l.Find("d1"))
}

func writeTar(t *testing.T, path string, compress bool, files map[string]string, order []string) {
	f, err := os.Create(path)
	assert.NoError(t, err)
	defer f.Close()
	var w io.Writer = f
	var gw *gzip.Writer
	if compress {
		gw = gzip.NewWriter(f)
		w = gw
	}
	tw := tar.NewWriter(w)
	err = tw.WriteHeader(&tar.Header{Name: "dir/", Typeflag: tar.TypeDir, Mode: 0755})
	assert.NoError(t, err)
	for _, name := range order {
		d := files[name]
		err = tw.WriteHeader(&tar.Header{Name: name, Typeflag: tar.TypeReg, Mode: 0644, Size: int64(len(d))})
		assert.NoError(t, err)
		_, err = tw.Write([]byte(d))
		assert.NoError(t, err)
	}
	assert.NoError(t, tw.Close())
	if gw != nil {
		assert.NoError(t, gw.Close())
	}
}

func TestTarRawLoader(t *testing.T) {
	files := map[string]string{
		"dir/b.out": "bbb",
		"a.out":     "aaa",
	}
	order := []string{"dir/b.out", "a.out"}
	for _, name := range []string{"x.tar", "x.tar.gz"} {
		path := filepath.Join(t.TempDir(), name)
		writeTar(t, path, name == "x.tar.gz", files, order)

		l, err := NewRawLoader(path, nil)
		assert.NoError(t, err)
		assert.Equal(t, TypeTar, l.Type())
		assert.Equal(t, []string{"a.out", "dir/b.out"}, l.Keys())
		assert.Equal(t, "bbb", readAll(t, l, "dir/b.out"))
		assert.Equal(t, "aaa", readAll(t, l, "a.out"))
		assert.NoError(t, l.Close())
	}
}

func TestTarRawLoaderGetOwnsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "x.tar.gz")
	writeTar(t, path, true, map[string]string{"a.out": "aaa"}, []string{"a.out"})
	l, err := NewTarRawLoader(path, nil)
	assert.NoError(t, err)
	assert.Nil(t, l.file)

	rc, err := l.Get("a.out")
	assert.NoError(t, err)
	// Get doesn't open the loader
	assert.Nil(t, l.file)

	assert.NoError(t, l.Open())
	assert.NoError(t, l.Close())
	d, err := io.ReadAll(rc)
	assert.NoError(t, err)
	assert.Equal(t, "aaa", string(d))
	assert.NoError(t, rc.Close())
	assert.True(t, errors.Is(rc.Close(), os.ErrClosed))
}

func writeZip(t *testing.T, path string, files []string) {
	f, err := os.Create(path)
	assert.NoError(t, err)
	defer f.Close()
	zw := zip.NewWriter(f)
	_, err = zw.Create("dir/")
	assert.NoError(t, err)
	for _, name := range files {
		w, err := zw.Create(name)
		assert.NoError(t, err)
		_, err = w.Write([]byte("content of " + name))
		assert.NoError(t, err)
	}
	assert.NoError(t, zw.Close())
}

func TestZipRawLoader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "x.zip")
	writeZip(t, path, []string{"dir/b.out", "a.out"})
	l, err := NewRawLoader(path, nil)
	assert.NoError(t, err)
	assert.Equal(t, TypeZip, l.Type())
	assert.Equal(t, []string{"a.out", "dir/b.out"}, l.Keys())

	assert.NoError(t, l.Open())
	assert.Equal(t, "content of dir/b.out", readAll(t, l, "dir/b.out"))
	assert.NoError(t, l.Close())
	// Get re-opens the archive
	assert.Equal(t, "content of a.out", readAll(t, l, "a.out"))
	assert.NoError(t, l.Close())
}

func TestNewRawLoaderErrors(t *testing.T) {
	dir := t.TempDir()
	_, err := NewRawLoader(filepath.Join(dir, "missing"), nil)
	assert.True(t, errors.Is(err, pck.ErrPathAccess))

	path := filepath.Join(dir, "plain.txt")
	writeFile(t, path, "not an archive, just some text that is long enough")
	_, err = NewRawLoader(path, nil)
	assert.True(t, errors.Is(err, pck.ErrFormat))

	_, err = NewRawLoader("s3://bucket/prefix", nil)
	assert.True(t, errors.Is(err, pck.ErrPathAccess))
}

func TestRestoreRawLoader(t *testing.T) {
	dir := makeTree(t)
	zipPath := filepath.Join(t.TempDir(), "x.zip")
	writeZip(t, zipPath, []string{"a.out"})
	for _, path := range []string{dir, zipPath} {
		l, err := NewRawLoader(path, nil)
		assert.NoError(t, err)
		d, err := l.MarshalJSON()
		assert.NoError(t, err)

		l2, err := RestoreRawLoader(d, nil)
		assert.NoError(t, err)
		assert.Equal(t, l.Type(), l2.Type())
		assert.Equal(t, l.Path(), l2.Path())
		assert.Equal(t, l.Keys(), l2.Keys())
	}
	_, err := RestoreRawLoader([]byte(`{"type":"floppy","path":"a"}`), nil)
	assert.True(t, errors.Is(err, pck.ErrFormat))
}

func TestParseSftpPath(t *testing.T) {
	a, err := parseSftpPath("sftp://me@example.com##/data/run1")
	assert.NoError(t, err)
	assert.Equal(t, &sftpAddr{User: "me", Host: "example.com", Port: 22, Dir: "/data/run1"}, a)

	a, err = parseSftpPath("sftp://me@10.0.0.1:2222##run1")
	assert.NoError(t, err)
	assert.Equal(t, &sftpAddr{User: "me", Host: "10.0.0.1", Port: 2222, Dir: "run1"}, a)

	bad := []string{
		"ssh://me@host##dir",
		"sftp://me@host/dir",
		"sftp://host##dir",
		"sftp://me@host:port##dir",
		"sftp://me@host##",
	}
	for _, s := range bad {
		_, err = parseSftpPath(s)
		assert.True(t, errors.Is(err, pck.ErrFormat), s)
	}
}

func TestParseS3Path(t *testing.T) {
	a, err := parseS3Path("s3://bucket/runs/run1/")
	assert.NoError(t, err)
	assert.Equal(t, &s3Addr{Bucket: "bucket", Prefix: "runs/run1/"}, a)

	a, err = parseS3Path("s3://bucket")
	assert.NoError(t, err)
	assert.Equal(t, &s3Addr{Bucket: "bucket"}, a)

	_, err = parseS3Path("s3:///prefix")
	assert.True(t, errors.Is(err, pck.ErrFormat))
}
