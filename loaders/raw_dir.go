package loaders

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/kjk/pckstore/pck"
	"github.com/kjk/pckstore/u"
)

// DirRawLoader reads files from a local directory: files in the directory
// and in its direct subdirectories. Compressed files (.gz, .bz2, .zst, .br)
// are decompressed by Get.
type DirRawLoader struct {
	keyFinder
	path string
}

var _ RawLoader = &DirRawLoader{}

// NewDirRawLoader lists files in directory path
func NewDirRawLoader(path string, opts *RawOptions) (*DirRawLoader, error) {
	if !u.DirExists(path) {
		return nil, fmt.Errorf("%w: '%s' is not a directory", pck.ErrPathAccess, path)
	}
	l := &DirRawLoader{path: path}
	keys, err := listDir(path, opts)
	if err != nil {
		opts.logger().Error("failed to list directory", "path", path, "error", err)
		return nil, err
	}
	l.keys = keys
	return l, nil
}

// listDir returns files up to depth 2, sorted
func listDir(dir string, opts *RawOptions) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", pck.ErrPathAccess, err)
	}
	var res []string
	for _, e := range entries {
		name := e.Name()
		if !e.IsDir() {
			res = append(res, name)
			continue
		}
		if opts != nil && opts.ExcludeDir != nil && opts.ExcludeDir(name) {
			continue
		}
		sub, err := os.ReadDir(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("%w: %s", pck.ErrPathAccess, err)
		}
		for _, se := range sub {
			if !se.IsDir() {
				res = append(res, name+"/"+se.Name())
			}
		}
	}
	res = opts.filterKeys(res)
	sort.Strings(res)
	return res, nil
}

func (l *DirRawLoader) Path() string { return l.path }
func (l *DirRawLoader) Type() string { return TypeDir }

// Open is a no-op, files are opened by Get
func (l *DirRawLoader) Open() error { return nil }

// Close is a no-op
func (l *DirRawLoader) Close() error { return nil }

func (l *DirRawLoader) Get(key string) (io.ReadCloser, error) {
	if !l.has(key) {
		return nil, errNoKey(key, l.path)
	}
	return u.OpenFileMaybeCompressed(filepath.Join(l.path, filepath.FromSlash(key)))
}

func (l *DirRawLoader) MarshalJSON() ([]byte, error) {
	return marshalHandoff(TypeDir, l.path)
}
