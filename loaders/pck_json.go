package loaders

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/kjk/pckstore/logstore"
	"github.com/kjk/pckstore/pck"
	"github.com/kjk/pckstore/zipstore"
)

// JsonlPckLoader loads records of a log store (.jsonl, .jsonl.gz).
// Backups of overwritten records are not visible.
type JsonlPckLoader struct {
	*pckLoader
}

var _ PckLoader = &JsonlPckLoader{}

type jsonlBackend struct {
	path   string
	logger *slog.Logger
	store  *logstore.Store
}

// NewJsonlPckLoader opens log store at path
func NewJsonlPckLoader(path string, opts *PckOptions) (*JsonlPckLoader, error) {
	b := &jsonlBackend{path: path, logger: opts.logger()}
	l, err := newPckLoader(TypeJsonl, path, b, opts)
	if err != nil {
		return nil, err
	}
	return &JsonlPckLoader{l}, nil
}

func (b *jsonlBackend) open() error {
	o := logstore.DefaultOptions()
	o.Logger = b.logger
	s, err := logstore.Open(b.path, o)
	if err != nil {
		return err
	}
	b.store = s
	return nil
}

func (b *jsonlBackend) close() error {
	b.store = nil
	return nil
}

func (b *jsonlBackend) keys() ([]string, error) {
	res := b.store.KeysWithoutBackup()
	sort.Strings(res)
	return res, nil
}

func (b *jsonlBackend) get(key string) (any, error) {
	if b.store == nil {
		return nil, errNotOpen
	}
	v, err := b.store.GetRecord(key)
	if err != nil {
		return nil, err
	}
	return rehydrate(v), nil
}

func (b *jsonlBackend) getMany(keys []string) ([]any, error) {
	if b.store == nil {
		return nil, errNotOpen
	}
	res, err := b.store.GetRecords(keys...)
	if err != nil {
		return nil, err
	}
	for i, v := range res {
		if v == nil && !b.store.Has(keys[i]) {
			return nil, fmt.Errorf("%w: '%s' in '%s'", pck.ErrKeyNotFound, keys[i], b.path)
		}
		res[i] = rehydrate(v)
	}
	return res, nil
}

// JsonzPckLoader loads records of a zip archive store (.jsonz)
type JsonzPckLoader struct {
	*pckLoader
}

var _ PckLoader = &JsonzPckLoader{}

type jsonzBackend struct {
	path   string
	logger *slog.Logger
	store  *zipstore.Store
}

// NewJsonzPckLoader opens archive store at path
func NewJsonzPckLoader(path string, opts *PckOptions) (*JsonzPckLoader, error) {
	b := &jsonzBackend{path: path, logger: opts.logger()}
	l, err := newPckLoader(TypeJsonz, path, b, opts)
	if err != nil {
		return nil, err
	}
	return &JsonzPckLoader{l}, nil
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

func (b *jsonzBackend) close() error {
	b.store = nil
	return nil
}

func (b *jsonzBackend) keys() ([]string, error) {
	res := b.store.Keys()
	sort.Strings(res)
	return res, nil
}

func (b *jsonzBackend) get(key string) (any, error) {
	if b.store == nil {
		return nil, errNotOpen
	}
	v, err := b.store.GetRecord(key)
	if err != nil {
		return nil, err
	}
	return rehydrate(v), nil
}

func (b *jsonzBackend) getMany(keys []string) ([]any, error) {
	if b.store == nil {
		return nil, errNotOpen
	}
	res, err := b.store.GetRecords(keys...)
	if err != nil {
		return nil, err
	}
	for i, v := range res {
		res[i] = rehydrate(v)
	}
	return res, nil
}
