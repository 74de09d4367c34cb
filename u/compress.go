package u

import (
	"bufio"
	"bytes"
	"compress/bzip2"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

var gzipMagic = []byte{0x1f, 0x8b}

// implement io.ReadCloser over a stream wrapped with io.Reader.
// io.Closer goes to the stream, io.Reader goes to wrapping reader
type readerWrapped struct {
	c     io.Closer
	r     io.Reader
	close func()
}

func (rc *readerWrapped) Close() error {
	if rc.close != nil {
		rc.close()
	}
	return rc.c.Close()
}

func (rc *readerWrapped) Read(p []byte) (int, error) {
	return rc.r.Read(p)
}

func wrapInReadCloser(c io.Closer, r io.Reader, err error) (io.ReadCloser, error) {
	if err != nil {
		c.Close()
		return nil, err
	}
	return &readerWrapped{
		c: c,
		r: r,
	}, nil
}

// IsGzipFile returns true if the file starts with gzip magic bytes
func IsGzipFile(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()
	var hdr [2]byte
	if _, err = io.ReadFull(f, hdr[:]); err != nil {
		return false
	}
	return bytes.Equal(hdr[:], gzipMagic)
}

// CompressedExt returns the compression extension of path
// (".gz", ".bz2", ".zst", ".zstd", ".br") or "" if not compressed
func CompressedExt(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".gz", ".bz2", ".zst", ".zstd", ".br":
		return ext
	}
	return ""
}

// OpenFileMaybeCompressed opens a file that might be compressed with gzip
// or bzip2 or zstd or brotli, based on file extension
func OpenFileMaybeCompressed(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	return DecompressStream(f, path)
}

// DecompressStream wraps rc with a decompressor picked by extension of name.
// rc is returned as is if name is not compressed. Closing the result closes rc.
func DecompressStream(rc io.ReadCloser, name string) (io.ReadCloser, error) {
	switch CompressedExt(name) {
	case ".gz":
		r, err := gzip.NewReader(bufio.NewReader(rc))
		return wrapInReadCloser(rc, r, err)
	case ".bz2":
		r := bzip2.NewReader(rc)
		return wrapInReadCloser(rc, r, nil)
	case ".zst", ".zstd":
		r, err := zstd.NewReader(rc)
		if err != nil {
			rc.Close()
			return nil, err
		}
		return &readerWrapped{c: rc, r: r, close: r.Close}, nil
	case ".br":
		r := brotli.NewReader(rc)
		return wrapInReadCloser(rc, r, nil)
	}
	return rc, nil
}

// ReadFileMaybeCompressed reads file. Decompresses based on file extension.
func ReadFileMaybeCompressed(path string) ([]byte, error) {
	r, err := OpenFileMaybeCompressed(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

// NewGzipWriter returns a best-compression gzip writer
func NewGzipWriter(w io.Writer) *gzip.Writer {
	gw, _ := gzip.NewWriterLevel(w, gzip.BestCompression)
	return gw
}

func getErr(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

func zstdNewWriter(dst io.Writer) (*zstd.Encoder, error) {
	// in my tests:
	// - zstd.SpeedBestCompression is much slower and not much better
	// - default concurrency is GONUMPROCS() but adding concurrency of any value
	//   doesn't consistently speed things up
	return zstd.NewWriter(dst, zstd.WithEncoderLevel(zstd.SpeedDefault), zstd.WithEncoderConcurrency(1))
}

func ZstdCompressData(d []byte) ([]byte, error) {
	var dst bytes.Buffer
	w, err := zstdNewWriter(&dst)
	if err != nil {
		return nil, err
	}
	_, err = w.Write(d)
	err2 := w.Close()
	if err = getErr(err, err2); err != nil {
		return nil, err
	}
	return dst.Bytes(), nil
}

func ZstdDecompressData(d []byte) ([]byte, error) {
	r := bytes.NewReader(d)
	zr, err := zstd.NewReader(r, zstd.WithDecoderConcurrency(1))
	if err != nil {
		return nil, err
	}
	defer zr.Close()
	return io.ReadAll(zr)
}

// GzipCompressData compresses d with best gzip compression
func GzipCompressData(d []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := NewGzipWriter(&buf)
	_, err := w.Write(d)
	err2 := w.Close()
	if err = getErr(err, err2); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
