package logstore

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strings"

	"github.com/kjk/pckstore/log"
	"github.com/kjk/pckstore/pck"
	"github.com/kjk/pckstore/u"
	"github.com/klauspost/compress/gzip"
)

const (
	minSeekStep = 128
	maxSeekStep = 4096 * 8
)

// Options configures a Store
type Options struct {
	// SortKeys sorts object keys of written records
	SortKeys bool
	// Compact writes records without whitespace between tokens
	Compact bool
	// CacheOn caches decoded records
	CacheOn bool
	// SeekStep is the initial step when searching for the index line.
	// 0 picks a step based on file size.
	SeekStep int64
	// Logger for per-record failures. nil means no logging.
	Logger *slog.Logger
}

// DefaultOptions returns options used when Open() gets nil
func DefaultOptions() *Options {
	return &Options{
		Compact: true,
	}
}

// Entry is the location of a record in the file
type Entry struct {
	// Offset of the start of the line in the (uncompressed) data
	Offset int64
	// Seq is the 1-based number of the record among all records ever written
	Seq int64
}

// Store is a newline-delimited JSON file whose last line is an index
// of all records:
//
//	{1st record}
//	{2nd record}
//	...
//	{"key":[offset,seq],...,"__RecordCount__":N}
//
// A file ending in .jsonl.gz or .jsonl-gz and starting with gzip magic bytes
// is read-only.
//
// Store is not safe for concurrent use. Only a single process can write
// to a given file at a time: a second writer truncates the index the first one
// relies on.
type Store struct {
	path         string
	opts         Options
	logger       *slog.Logger
	isCompressed bool

	index       map[string]Entry
	recordCount int64
	// position of the index line, where the next update starts writing
	writeCursor int64

	cache map[string]any
}

// Open opens the store at path. A missing file is a new, empty store.
func Open(path string, opts *Options) (*Store, error) {
	if opts == nil {
		opts = DefaultOptions()
	}
	s := &Store{
		path:   path,
		opts:   *opts,
		logger: log.OrDiscard(opts.Logger),
		index:  map[string]Entry{},
		cache:  map[string]any{},
	}
	st, err := os.Stat(path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s", pck.ErrPathAccess, err)
	}
	if st.IsDir() {
		return nil, fmt.Errorf("%w: '%s' is a directory", pck.ErrPathAccess, path)
	}
	// a .jsonl.gz that isn't gzipped yet is read as plain text
	s.isCompressed = hasCompressedExt(path) && u.IsGzipFile(path)
	var line []byte
	if s.isCompressed {
		line, err = readLastLineCompressed(path)
	} else {
		var cursor int64
		cursor, line, err = readLastLine(path, st.Size(), s.opts.SeekStep)
		s.writeCursor = cursor
	}
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(line)) == 0 {
		// empty file
		s.writeCursor = 0
		return s, nil
	}
	if err = s.parseIndex(line); err != nil {
		return nil, fmt.Errorf("index of '%s': %w", path, err)
	}
	return s, nil
}

func hasCompressedExt(path string) bool {
	return strings.HasSuffix(path, ".jsonl.gz") || strings.HasSuffix(path, ".jsonl-gz")
}

// SeekStep returns the initial step for finding the last line of a file of a given size
func SeekStep(size int64) int64 {
	return min(max(minSeekStep, size/1024), maxSeekStep)
}

// readLastLine finds the last line by reading backwards from the end of file,
// doubling the size of the window each time a newline is not found.
// Returns offset of the last line and its content.
func readLastLine(path string, size int64, step int64) (int64, []byte, error) {
	if size == 0 {
		return 0, nil, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: %s", pck.ErrPathAccess, err)
	}
	defer f.Close()

	if step < 0 {
		step = -step
	}
	if step == 0 {
		step = SeekStep(size)
	}

	// the last byte is the newline ending the index line
	end := size
	var last [1]byte
	if _, err = f.ReadAt(last[:], size-1); err != nil {
		return 0, nil, err
	}
	if last[0] == '\n' {
		end = size - 1
	}

	lineStart := int64(0)
	buf := make([]byte, 0, step)
	for windowEnd := end; windowEnd > 0; {
		start := max(0, windowEnd-step)
		n := windowEnd - start
		if int64(cap(buf)) < n {
			buf = make([]byte, n)
		}
		buf = buf[:n]
		if _, err = f.ReadAt(buf, start); err != nil {
			return 0, nil, fmt.Errorf("failed to read %d bytes at offset %d: %w", n, start, err)
		}
		if idx := bytes.LastIndexByte(buf, '\n'); idx >= 0 {
			lineStart = start + int64(idx) + 1
			break
		}
		windowEnd = start
		step *= 2
	}

	line := make([]byte, end-lineStart)
	if _, err = f.ReadAt(line, lineStart); err != nil {
		return 0, nil, fmt.Errorf("failed to read index line at offset %d: %w", lineStart, err)
	}
	return lineStart, line, nil
}

// gzip doesn't allow seeking so we read the whole thing
func readLastLineCompressed(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", pck.ErrPathAccess, err)
	}
	defer f.Close()
	gr, err := gzip.NewReader(bufio.NewReader(f))
	if err != nil {
		return nil, fmt.Errorf("%w: %s", pck.ErrFormat, err)
	}
	defer gr.Close()
	br := bufio.NewReaderSize(gr, 64*1024)
	var last []byte
	for {
		line, err := br.ReadBytes('\n')
		if len(bytes.TrimSpace(line)) > 0 {
			last = line
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
	}
	return last, nil
}

func (s *Store) parseIndex(line []byte) error {
	v, err := pck.Decode(line)
	if err != nil {
		return fmt.Errorf("%w: %s", pck.ErrFormat, err)
	}
	m, ok := v.(map[string]any)
	if !ok {
		return fmt.Errorf("%w: index is %T, not an object", pck.ErrFormat, v)
	}
	hasCount := false
	for k, el := range m {
		if k == pck.CountKey {
			n, ok := el.(int64)
			if !ok {
				return fmt.Errorf("%w: invalid %s: %v", pck.ErrFormat, pck.CountKey, el)
			}
			s.recordCount = n
			hasCount = true
			continue
		}
		pair, ok := el.([]any)
		if !ok || len(pair) != 2 {
			return fmt.Errorf("%w: invalid index entry for '%s': %v", pck.ErrFormat, k, el)
		}
		off, ok1 := pair[0].(int64)
		seq, ok2 := pair[1].(int64)
		if !ok1 || !ok2 || off < 0 {
			return fmt.Errorf("%w: invalid index entry for '%s': %v", pck.ErrFormat, k, el)
		}
		s.index[k] = Entry{Offset: off, Seq: seq}
	}
	if !hasCount {
		s.recordCount = int64(len(s.index))
	}
	return nil
}

func (s *Store) encodeIndex(index map[string]Entry, count int64) ([]byte, error) {
	m := make(map[string]any, len(index)+1)
	for k, e := range index {
		m[k] = []int64{e.Offset, e.Seq}
	}
	m[pck.CountKey] = count
	return pck.Encode(m, s.encodeOptions())
}

func (s *Store) encodeOptions() pck.EncodeOptions {
	return pck.EncodeOptions{SortKeys: s.opts.SortKeys, Compact: s.opts.Compact}
}

// Path returns path of the file
func (s *Store) Path() string {
	return s.path
}

// IsCompressed returns true for read-only, gzip-compressed stores
func (s *Store) IsCompressed() bool {
	return s.isCompressed
}

// RecordCount returns number of records ever written, including overwritten ones
func (s *Store) RecordCount() int64 {
	return s.recordCount
}

// Has returns true if key is in the index
func (s *Store) Has(key string) bool {
	_, ok := s.index[key]
	return ok
}

// Index returns a copy of the index
func (s *Store) Index() map[string]Entry {
	res := make(map[string]Entry, len(s.index))
	for k, e := range s.index {
		res[k] = e
	}
	return res
}

// Keys returns all keys, including backups, in the order they were written
func (s *Store) Keys() []string {
	keys := make([]string, 0, len(s.index))
	for k := range s.index {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		ei, ej := s.index[keys[i]], s.index[keys[j]]
		if ei.Seq != ej.Seq {
			return ei.Seq < ej.Seq
		}
		return keys[i] < keys[j]
	})
	return keys
}

// KeysWithoutBackup returns Keys() without "<key>-backup-<n>" entries
func (s *Store) KeysWithoutBackup() []string {
	var res []string
	for _, k := range s.Keys() {
		if !pck.IsBackupKey(k) {
			res = append(res, k)
		}
	}
	return res
}

// ClearCache drops all cached records
func (s *Store) ClearCache() {
	s.cache = map[string]any{}
}
