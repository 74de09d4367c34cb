package savers

import (
	"log/slog"

	"github.com/kjk/pckstore/loaders"
	"github.com/kjk/pckstore/logstore"
	"github.com/kjk/pckstore/zipstore"
)

// JsonlPckSaver appends records to a log store (.jsonl).
// A key written again keeps the old record as a backup.
type JsonlPckSaver struct {
	*pckSaver
	b *jsonlBackend
}

var _ PckSaver = &JsonlPckSaver{}

type jsonlBackend struct {
	path  string
	opts  logstore.Options
	store *logstore.Store
}

// NewJsonlPckSaver creates a saver for path, adding ".jsonl" if missing
func NewJsonlPckSaver(path string, opts *Options) (*JsonlPckSaver, error) {
	path, err := checkPath(path, ".jsonl")
	if err != nil {
		return nil, err
	}
	logger := opts.logger()
	b := &jsonlBackend{path: path, opts: *logstore.DefaultOptions()}
	b.opts.Logger = logger
	return &JsonlPckSaver{
		pckSaver: &pckSaver{typ: loaders.TypeJsonl, path: path, b: b, logger: logger},
		b:        b,
	}, nil
}

// SetStoreOptions sets options of the log store used after the next Open
func (s *JsonlPckSaver) SetStoreOptions(opts logstore.Options) {
	logger := s.b.opts.Logger
	s.b.opts = opts
	if s.b.opts.Logger == nil {
		s.b.opts.Logger = logger
	}
}

func (b *jsonlBackend) open() error {
	opts := b.opts
	s, err := logstore.Open(b.path, &opts)
	if err != nil {
		return err
	}
	b.store = s
	return nil
}

func (b *jsonlBackend) write(group string, data map[string]any) error {
	keys, records := groupKeys(group, data)
	return b.store.UpdateOrdered(keys, records)
}

func (b *jsonlBackend) close() error {
	b.store = nil
	return nil
}

// JsonzPckSaver adds records to a zip archive store (.jsonz)
type JsonzPckSaver struct {
	*pckSaver
}

var _ PckSaver = &JsonzPckSaver{}

type jsonzBackend struct {
	path   string
	logger *slog.Logger
	store  *zipstore.Store
}

// NewJsonzPckSaver creates a saver for path, adding ".jsonz" if missing
func NewJsonzPckSaver(path string, opts *Options) (*JsonzPckSaver, error) {
	path, err := checkPath(path, ".jsonz")
	if err != nil {
		return nil, err
	}
	logger := opts.logger()
	b := &jsonzBackend{path: path, logger: logger}
	return &JsonzPckSaver{&pckSaver{typ: loaders.TypeJsonz, path: path, b: b, logger: logger}}, nil
}

func (b *jsonzBackend) open() error {
	o := zipstore.DefaultOptions()
	o.Logger = b.logger
	s, err := zipstore.Open(b.path, o)
	if err != nil {
		return err
	}
	b.store = s
	return nil
}

func (b *jsonzBackend) write(group string, data map[string]any) error {
	keys, records := groupKeys(group, data)
	return b.store.UpdateOrdered(keys, records)
}

func (b *jsonzBackend) close() error {
	b.store = nil
	return nil
}
