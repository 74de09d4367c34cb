package savers

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"

	"github.com/kjk/pckstore/loaders"
	"github.com/kjk/pckstore/log"
	"github.com/kjk/pckstore/pck"
	"github.com/kjk/pckstore/u"
)

// ErrNotOpen is returned by Write before Open
var ErrNotOpen = errors.New("saver is not open")

// PckSaver writes groups of values to a pck file.
// A value named "name" in group "g" is stored under key "g/name".
// Group "" or "/" holds top-level values.
type PckSaver interface {
	Path() string
	Type() string
	// Open creates the file or opens it for appending
	Open() error
	Write(group string, data map[string]any) error
	// Close is safe to call more than once
	Close() error
}

// Options configures savers
type Options struct {
	Logger *slog.Logger
}

func (o *Options) logger() *slog.Logger {
	if o == nil {
		return log.Discard()
	}
	return log.OrDiscard(o.Logger)
}

// backend is the storage specific part of a saver
type backend interface {
	open() error
	write(group string, data map[string]any) error
	close() error
}

type pckSaver struct {
	typ    string
	path   string
	b      backend
	logger *slog.Logger
	isOpen bool
}

// withExt appends ext to path unless path already has it
func withExt(path, ext string) string {
	if filepath.Ext(path) != ext {
		return path + ext
	}
	return path
}

// checkPath returns path with ext and an error if it can't be written
func checkPath(path, ext string) (string, error) {
	path = withExt(path, ext)
	if u.DirExists(path) {
		return "", fmt.Errorf("%w: '%s' is a directory", pck.ErrPathAccess, path)
	}
	if dir := filepath.Dir(path); !u.DirWritable(dir) {
		return "", fmt.Errorf("%w: can't write to directory '%s'", pck.ErrPathAccess, dir)
	}
	return path, nil
}

func (s *pckSaver) Path() string { return s.path }
func (s *pckSaver) Type() string { return s.typ }

func (s *pckSaver) Open() error {
	if s.isOpen {
		s.logger.Warn("saver is already open", "path", s.path)
		return nil
	}
	if u.FileExists(s.path) {
		s.logger.Debug("opening file to append", "path", s.path)
	} else {
		s.logger.Debug("creating file", "path", s.path)
	}
	if err := s.b.open(); err != nil {
		s.logger.Error("failed to open", "path", s.path, "error", err)
		return err
	}
	s.isOpen = true
	return nil
}

func (s *pckSaver) Write(group string, data map[string]any) error {
	if !s.isOpen {
		s.logger.Error("write before open", "path", s.path, "group", group)
		return fmt.Errorf("%w: '%s'", ErrNotOpen, s.path)
	}
	if data == nil {
		s.logger.Error("no data to write", "path", s.path, "group", group)
		return fmt.Errorf("%w: nil data for group '%s'", pck.ErrFormat, group)
	}
	if err := s.b.write(group, data); err != nil {
		s.logger.Error("failed to save group", "path", s.path, "group", group, "error", err)
		return err
	}
	return nil
}

func (s *pckSaver) Close() error {
	if !s.isOpen {
		return nil
	}
	s.isOpen = false
	s.logger.Debug("closing", "path", s.path)
	return s.b.close()
}

// groupKeys returns keys of data prefixed with group, sorted by name,
// and the data keyed by them
func groupKeys(group string, data map[string]any) ([]string, map[string]any) {
	names := make([]string, 0, len(data))
	for k := range data {
		names = append(names, k)
	}
	sort.Strings(names)
	keys := make([]string, len(names))
	records := make(map[string]any, len(data))
	for i, name := range names {
		keys[i] = pck.JoinKey(group, name)
		records[keys[i]] = data[name]
	}
	return keys, records
}

// WithSaver opens s, calls fn and closes s, also when fn fails or panics
func WithSaver(s PckSaver, fn func(s PckSaver) error) (err error) {
	if err = s.Open(); err != nil {
		return err
	}
	defer func() {
		if err2 := s.Close(); err == nil {
			err = err2
		}
	}()
	return fn(s)
}

// NewPckSaver picks a saver based on extension of path:
// .npz, .bolt, .jsonl or .jsonz
func NewPckSaver(path string, opts *Options) (PckSaver, error) {
	lower := strings.ToLower(path)
	switch {
	case strings.HasSuffix(lower, ".npz"):
		return NewNpzPckSaver(path, opts)
	case strings.HasSuffix(lower, ".bolt"):
		return NewBoltPckSaver(path, opts)
	case strings.HasSuffix(lower, ".jsonl"):
		return NewJsonlPckSaver(path, opts)
	case strings.HasSuffix(lower, ".jsonz"):
		return NewJsonzPckSaver(path, opts)
	}
	return nil, fmt.Errorf("%w: unsupported pck file '%s'", pck.ErrFormat, path)
}

// Convert copies top-level values and every group from l to s
func Convert(l loaders.PckLoader, s PckSaver) error {
	return WithSaver(s, func(s PckSaver) error {
		top, err := l.GetByGroup("")
		if err != nil {
			return err
		}
		if len(top) > 0 {
			if err = s.Write("", top); err != nil {
				return err
			}
		}
		for _, g := range l.DataGroups() {
			data, err := l.GetByGroup(g)
			if err != nil {
				return err
			}
			if len(data) == 0 {
				continue
			}
			if err = s.Write(g, data); err != nil {
				return err
			}
		}
		return nil
	})
}
