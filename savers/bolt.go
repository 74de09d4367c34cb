package savers

import (
	"log/slog"

	"github.com/kjk/pckstore/boltstore"
	"github.com/kjk/pckstore/loaders"
)

// BoltPckSaver writes groups to a hierarchical dataset file.
// Writing a group replaces all of its values.
type BoltPckSaver struct {
	*pckSaver
}

var _ PckSaver = &BoltPckSaver{}

type boltBackend struct {
	path   string
	logger *slog.Logger
	store  *boltstore.Store
}

// NewBoltPckSaver creates a saver for path, adding ".bolt" if missing
func NewBoltPckSaver(path string, opts *Options) (*BoltPckSaver, error) {
	path, err := checkPath(path, ".bolt")
	if err != nil {
		return nil, err
	}
	logger := opts.logger()
	b := &boltBackend{path: path, logger: logger}
	return &BoltPckSaver{&pckSaver{typ: loaders.TypeBolt, path: path, b: b, logger: logger}}, nil
}

func (b *boltBackend) open() error {
	s, err := boltstore.Open(b.path, false, b.logger)
	if err != nil {
		return err
	}
	b.store = s
	return nil
}

func (b *boltBackend) write(group string, data map[string]any) error {
	return b.store.WriteGroup(group, data)
}

func (b *boltBackend) close() error {
	err := b.store.Close()
	b.store = nil
	return err
}
