package loaders

import (
	"fmt"
	"io"
	"sort"

	"github.com/kjk/pckstore/pck"
	"github.com/klauspost/compress/zip"
)

// ZipRawLoader reads files from a zip archive
type ZipRawLoader struct {
	keyFinder
	path    string
	archive *zip.ReadCloser
	files   map[string]*zip.File
}

var _ RawLoader = &ZipRawLoader{}

// NewZipRawLoader lists files in zip archive at path
func NewZipRawLoader(path string, opts *RawOptions) (*ZipRawLoader, error) {
	l := &ZipRawLoader{path: path}
	if err := l.Open(); err != nil {
		opts.logger().Error("failed to open zip archive", "path", path, "error", err)
		return nil, err
	}
	defer l.Close()
	var keys []string
	for _, f := range l.archive.File {
		if !f.FileInfo().IsDir() {
			keys = append(keys, f.Name)
		}
	}
	keys = opts.filterKeys(keys)
	sort.Strings(keys)
	l.keys = keys
	return l, nil
}

func (l *ZipRawLoader) Path() string { return l.path }
func (l *ZipRawLoader) Type() string { return TypeZip }

func (l *ZipRawLoader) Open() error {
	if l.archive != nil {
		return nil
	}
	r, err := zip.OpenReader(l.path)
	if err != nil {
		return fmt.Errorf("%w: '%s': %s", pck.ErrFormat, l.path, err)
	}
	l.archive = r
	l.files = make(map[string]*zip.File, len(r.File))
	for _, f := range r.File {
		l.files[f.Name] = f
	}
	return nil
}

func (l *ZipRawLoader) Close() error {
	if l.archive == nil {
		return nil
	}
	err := l.archive.Close()
	l.archive = nil
	l.files = nil
	return err
}

func (l *ZipRawLoader) Get(key string) (io.ReadCloser, error) {
	if !l.has(key) {
		return nil, errNoKey(key, l.path)
	}
	if err := l.Open(); err != nil {
		return nil, err
	}
	f := l.files[key]
	if f == nil {
		return nil, errNoKey(key, l.path)
	}
	return f.Open()
}

func (l *ZipRawLoader) MarshalJSON() ([]byte, error) {
	return marshalHandoff(TypeZip, l.path)
}
