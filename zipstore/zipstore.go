package zipstore

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/kjk/pckstore/atomicfile"
	"github.com/kjk/pckstore/log"
	"github.com/kjk/pckstore/pck"
	"github.com/klauspost/compress/zip"
)

const memberExt = ".json"

// Options configures a Store
type Options struct {
	// SortKeys sorts object keys of written records
	SortKeys bool
	// CacheOn caches decoded records
	CacheOn bool
	// Method is the compression method of new members: zip.Deflate or zip.Store
	Method uint16
	// Logger for per-record failures. nil means no logging.
	Logger *slog.Logger
}

// DefaultOptions returns options used when Open() gets nil
func DefaultOptions() *Options {
	return &Options{
		Method: zip.Deflate,
	}
}

// Store keeps one record per zip member named "<key>.json".
// Updates append members. When a key is written more than once,
// the last member wins. Slim() removes the older duplicates.
//
// Store is not safe for concurrent use.
type Store struct {
	path   string
	opts   Options
	logger *slog.Logger

	keys  []string
	known map[string]bool
	cache map[string]any
}

// Open opens the archive at path, creating an empty one if it doesn't exist
func Open(path string, opts *Options) (*Store, error) {
	if opts == nil {
		opts = DefaultOptions()
	}
	s := &Store{
		path:   path,
		opts:   *opts,
		logger: log.OrDiscard(opts.Logger),
		known:  map[string]bool{},
		cache:  map[string]any{},
	}
	_, err := os.Stat(path)
	if os.IsNotExist(err) {
		if err = pck.CheckWritable(path, false); err != nil {
			return nil, err
		}
		err = atomicfile.WriteFile(path, func(w io.Writer) error {
			return zip.NewWriter(w).Close()
		})
		if err != nil {
			return nil, err
		}
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s", pck.ErrPathAccess, err)
	}

	r, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("%w: '%s': %s", pck.ErrFormat, path, err)
	}
	defer r.Close()
	for _, f := range r.File {
		key, ok := strings.CutSuffix(f.Name, memberExt)
		if ok {
			s.addKey(key)
		}
	}
	return s, nil
}

func (s *Store) addKey(key string) {
	if !s.known[key] {
		s.known[key] = true
		s.keys = append(s.keys, key)
	}
}

// Path returns path of the archive
func (s *Store) Path() string {
	return s.path
}

// Keys returns unique keys in the order they were first written
func (s *Store) Keys() []string {
	return append([]string(nil), s.keys...)
}

// Has returns true if key is in the archive
func (s *Store) Has(key string) bool {
	return s.known[key]
}

// ClearCache drops all cached records
func (s *Store) ClearCache() {
	s.cache = map[string]any{}
}

func (s *Store) encodeOptions() pck.EncodeOptions {
	return pck.EncodeOptions{SortKeys: s.opts.SortKeys, Compact: true}
}

// rewrite writes a new archive with all existing members followed by
// members created by add, and replaces the old archive with it
func (s *Store) rewrite(add func(zw *zip.Writer) error) error {
	return atomicfile.WriteFile(s.path, func(w io.Writer) error {
		zw := zip.NewWriter(w)
		r, err := zip.OpenReader(s.path)
		if err != nil {
			return fmt.Errorf("%w: '%s': %s", pck.ErrFormat, s.path, err)
		}
		defer r.Close()
		for _, f := range r.File {
			// copied as is, without re-compressing
			if err = zw.Copy(f); err != nil {
				return err
			}
		}
		if err = add(zw); err != nil {
			return err
		}
		return zw.Close()
	})
}

func (s *Store) writeMember(zw *zip.Writer, key string, d []byte) error {
	hdr := &zip.FileHeader{
		Name:     key + memberExt,
		Method:   s.opts.Method,
		Modified: time.Now(),
	}
	fw, err := zw.CreateHeader(hdr)
	if err != nil {
		return err
	}
	_, err = fw.Write(d)
	return err
}

// Update adds records in sorted key order. See UpdateOrdered.
func (s *Store) Update(records map[string]any) error {
	keys := make([]string, 0, len(records))
	for k := range records {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return s.UpdateOrdered(keys, records)
}

// UpdateOrdered adds a member for each of keys.
// Records that can't be encoded are logged and skipped.
func (s *Store) UpdateOrdered(keys []string, records map[string]any) error {
	type member struct {
		key string
		d   []byte
	}
	var members []member
	for _, k := range keys {
		v, ok := records[k]
		if !ok {
			continue
		}
		d, err := pck.Encode(v, s.encodeOptions())
		if err != nil {
			s.logger.Error("failed to encode record", "path", s.path, "key", k, "error", err)
			continue
		}
		members = append(members, member{k, d})
	}
	err := s.rewrite(func(zw *zip.Writer) error {
		for _, m := range members {
			if err := s.writeMember(zw, m.key, m.d); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	for _, m := range members {
		s.addKey(m.key)
		delete(s.cache, m.key)
	}
	return nil
}
