package loaders

import (
	"log/slog"

	"github.com/kjk/pckstore/boltstore"
)

// BoltPckLoader loads values from a hierarchical dataset file
type BoltPckLoader struct {
	*pckLoader
}

var _ PckLoader = &BoltPckLoader{}

type boltBackend struct {
	path   string
	logger *slog.Logger
	store  *boltstore.Store
}

// NewBoltPckLoader opens .bolt file at path
func NewBoltPckLoader(path string, opts *PckOptions) (*BoltPckLoader, error) {
	b := &boltBackend{path: path, logger: opts.logger()}
	l, err := newPckLoader(TypeBolt, path, b, opts)
	if err != nil {
		return nil, err
	}
	return &BoltPckLoader{l}, nil
}

func (b *boltBackend) open() error {
	s, err := boltstore.Open(b.path, true, b.logger)
	if err != nil {
		return err
	}
	b.store = s
	return nil
}

func (b *boltBackend) close() error {
	err := b.store.Close()
	b.store = nil
	return err
}

func (b *boltBackend) keys() ([]string, error) {
	return b.store.Keys()
}

func (b *boltBackend) get(key string) (any, error) {
	if b.store == nil {
		return nil, errNotOpen
	}
	v, err := b.store.Get(key)
	if err != nil {
		return nil, err
	}
	return rehydrate(v), nil
}
