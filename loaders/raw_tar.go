package loaders

import (
	"archive/tar"
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/kjk/pckstore/pck"
	"github.com/klauspost/compress/gzip"
)

func newGzipReader(r io.Reader) (io.Reader, error) {
	return gzip.NewReader(r)
}

// TarRawLoader reads regular files from a tar archive, which can be
// gzip-compressed (.tar.gz, .tgz)
type TarRawLoader struct {
	keyFinder
	path       string
	compressed bool
	file       *os.File
}

var _ RawLoader = &TarRawLoader{}

// NewTarRawLoader lists regular files in tar archive at path
func NewTarRawLoader(path string, opts *RawOptions) (*TarRawLoader, error) {
	l := &TarRawLoader{path: path}
	if err := l.Open(); err != nil {
		return nil, err
	}
	defer l.Close()

	var keys []string
	err := l.scan(func(hdr *tar.Header, r io.Reader) (bool, error) {
		if hdr.Typeflag == tar.TypeReg {
			keys = append(keys, hdr.Name)
		}
		return false, nil
	})
	if err != nil {
		opts.logger().Error("failed to read tar archive", "path", path, "error", err)
		return nil, fmt.Errorf("%w: '%s': %s", pck.ErrFormat, path, err)
	}
	keys = opts.filterKeys(keys)
	sort.Strings(keys)
	l.keys = keys
	return l, nil
}

func (l *TarRawLoader) Path() string { return l.path }
func (l *TarRawLoader) Type() string { return TypeTar }

// openTar opens the archive and reports if it's gzip-compressed
func openTar(path string) (*os.File, bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, false, fmt.Errorf("%w: %s", pck.ErrPathAccess, err)
	}
	var hdr [2]byte
	n, _ := f.ReadAt(hdr[:], 0)
	return f, n == 2 && hdr[0] == 0x1f && hdr[1] == 0x8b, nil
}

func (l *TarRawLoader) Open() error {
	if l.file != nil {
		return nil
	}
	f, compressed, err := openTar(l.path)
	if err != nil {
		return err
	}
	l.file = f
	l.compressed = compressed
	return nil
}

func (l *TarRawLoader) Close() error {
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}

func (l *TarRawLoader) scan(fn func(hdr *tar.Header, r io.Reader) (bool, error)) error {
	return scanTar(l.file, l.compressed, fn)
}

// scanTar calls fn for every member of archive f until fn returns true.
// The archive is read from the start using a section reader.
func scanTar(f *os.File, compressed bool, fn func(hdr *tar.Header, r io.Reader) (bool, error)) error {
	st, err := f.Stat()
	if err != nil {
		return err
	}
	var r io.Reader = bufio.NewReader(io.NewSectionReader(f, 0, st.Size()))
	if compressed {
		if r, err = newGzipReader(r); err != nil {
			return err
		}
	}
	tr := tar.NewReader(r)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		done, err := fn(hdr, tr)
		if done || err != nil {
			return err
		}
	}
}

// Get returns content of member key. The archive is scanned from the start
// through its own file handle, which is closed when the reader is closed.
// The reader doesn't depend on the loader being open.
func (l *TarRawLoader) Get(key string) (io.ReadCloser, error) {
	if !l.has(key) {
		return nil, errNoKey(key, l.path)
	}
	f, compressed, err := openTar(l.path)
	if err != nil {
		return nil, err
	}
	var res io.Reader
	err = scanTar(f, compressed, func(hdr *tar.Header, r io.Reader) (bool, error) {
		if hdr.Name == key && hdr.Typeflag == tar.TypeReg {
			res = r
			return true, nil
		}
		return false, nil
	})
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: '%s': %s", pck.ErrFormat, l.path, err)
	}
	if res == nil {
		f.Close()
		return nil, errNoKey(key, l.path)
	}
	return &readCloser{Reader: res, close: f.Close}, nil
}

func (l *TarRawLoader) MarshalJSON() ([]byte, error) {
	return marshalHandoff(TypeTar, l.path)
}
