package loaders

import (
	"archive/tar"
	"bufio"
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/kjk/pckstore/log"
	"github.com/kjk/pckstore/pck"
	"github.com/kjk/pckstore/u"
)

const (
	TypeDir  = "directory"
	TypeTar  = "tarfile"
	TypeZip  = "zipfile"
	TypeSftp = "sftp.directory"
	TypeS3   = "s3.directory"
)

// RawLoader gives access to raw files in a directory, an archive
// or a remote directory. Keys are file paths relative to the root,
// with '/' as separator.
type RawLoader interface {
	Path() string
	Type() string
	Keys() []string
	Find(subs ...string) []string
	FindAny(subs ...string) []string
	Refind(patterns ...string) ([]string, error)
	RefindAny(patterns ...string) ([]string, error)
	// Get returns content of a file. Caller must Close() it.
	Get(key string) (io.ReadCloser, error)
	// Open acquires the backend handle. Get opens it when needed.
	Open() error
	// Close releases the backend handle. It's safe to call more than once.
	Close() error
	MarshalJSON() ([]byte, error)
}

// RawOptions configures raw loaders
type RawOptions struct {
	// ExcludeDir excludes files in directories with matching name
	ExcludeDir func(name string) bool
	// ExcludeFile excludes files with matching name
	ExcludeFile func(name string) bool
	// Sftp configures authentication of sftp:// paths
	Sftp *SftpConfig
	// S3 configures s3:// paths
	S3     *S3Config
	Logger *slog.Logger
}

func (o *RawOptions) logger() *slog.Logger {
	if o == nil {
		return log.Discard()
	}
	return log.OrDiscard(o.Logger)
}

// excluded returns true if key's file name or any of its directories is excluded
func (o *RawOptions) excluded(key string) bool {
	if o == nil {
		return false
	}
	parts := strings.Split(key, "/")
	if o.ExcludeFile != nil && o.ExcludeFile(parts[len(parts)-1]) {
		return true
	}
	if o.ExcludeDir != nil {
		for _, d := range parts[:len(parts)-1] {
			if o.ExcludeDir(d) {
				return true
			}
		}
	}
	return false
}

func (o *RawOptions) filterKeys(keys []string) []string {
	res := keys[:0]
	for _, k := range keys {
		if !o.excluded(k) {
			res = append(res, k)
		}
	}
	return res
}

func errNoKey(key, path string) error {
	return fmt.Errorf("%w: '%s' in '%s'", pck.ErrKeyNotFound, key, path)
}

var zipMagic = []byte("PK\x03\x04")

// isTarFile checks if path is a tar archive, optionally gzip-compressed
func isTarFile(path string) bool {
	r, err := openTarStream(path)
	if err != nil {
		return false
	}
	defer r.Close()
	_, err = tar.NewReader(r).Next()
	return err == nil
}

func openTarStream(path string) (io.ReadCloser, error) {
	if u.IsGzipFile(path) {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		gr, err := newGzipReader(bufio.NewReader(f))
		if err != nil {
			f.Close()
			return nil, err
		}
		return &readCloser{Reader: gr, close: f.Close}, nil
	}
	return os.Open(path)
}

func isZipFile(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()
	var hdr [4]byte
	if _, err = io.ReadFull(f, hdr[:]); err != nil {
		return false
	}
	// empty archive starts with end of central directory record
	return bytes.Equal(hdr[:], zipMagic) || bytes.Equal(hdr[:], []byte("PK\x05\x06"))
}

// NewRawLoader picks a loader based on path:
// sftp://user@host[:port]##remote/path, s3://bucket/prefix,
// a directory, a tar archive (.tar, .tar.gz, .tgz) or a zip archive
func NewRawLoader(path string, opts *RawOptions) (RawLoader, error) {
	switch {
	case strings.HasPrefix(path, "sftp://"):
		return NewSftpRawLoader(path, opts)
	case strings.HasPrefix(path, "s3://"):
		return NewS3RawLoader(path, opts)
	}
	st, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", pck.ErrPathAccess, err)
	}
	if st.IsDir() {
		return NewDirRawLoader(path, opts)
	}
	if isTarFile(path) {
		return NewTarRawLoader(path, opts)
	}
	if isZipFile(path) {
		return NewZipRawLoader(path, opts)
	}
	return nil, fmt.Errorf("%w: '%s' is not a directory, tar or zip archive", pck.ErrFormat, path)
}

// RestoreRawLoader re-creates a loader from MarshalJSON() output
func RestoreRawLoader(d []byte, opts *RawOptions) (RawLoader, error) {
	h, err := unmarshalHandoff(d)
	if err != nil {
		return nil, err
	}
	switch h.Type {
	case TypeDir:
		return NewDirRawLoader(h.Path, opts)
	case TypeTar:
		return NewTarRawLoader(h.Path, opts)
	case TypeZip:
		return NewZipRawLoader(h.Path, opts)
	case TypeSftp:
		return NewSftpRawLoader(h.Path, opts)
	case TypeS3:
		return NewS3RawLoader(h.Path, opts)
	}
	return nil, fmt.Errorf("%w: unknown raw loader type '%s'", pck.ErrFormat, h.Type)
}

// readCloser closes with a custom function
type readCloser struct {
	io.Reader
	close func() error
}

func (r *readCloser) Close() error {
	if r.close == nil {
		return nil
	}
	return r.close()
}
