package boltstore

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/kjk/pckstore/log"
	"github.com/kjk/pckstore/pck"
	"github.com/kjk/pckstore/u"
	"go.etcd.io/bbolt"
)

const (
	// all data lives under this bucket because bolt doesn't allow
	// values at the top level
	rootBucket = "pck"

	flagPlain byte = 0
	flagZstd  byte = 1

	// values at least this big are compressed
	CompressThreshold = 4 * 1024

	lockTimeout = time.Second
)

// Store is a hierarchical dataset file: groups are nested buckets,
// datasets are values encoded with pck codec.
// A key "a/b/c" is value "c" in bucket "b" inside bucket "a".
type Store struct {
	path   string
	db     *bbolt.DB
	logger *slog.Logger
}

// Open opens the file at path. A file opened for writing is created
// if it doesn't exist.
func Open(path string, readOnly bool, logger *slog.Logger) (*Store, error) {
	opts := &bbolt.Options{
		Timeout:  lockTimeout,
		ReadOnly: readOnly,
	}
	db, err := bbolt.Open(path, 0644, opts)
	if err != nil {
		return nil, fmt.Errorf("%w: '%s': %s", pck.ErrPathAccess, path, err)
	}
	return &Store{
		path:   path,
		db:     db,
		logger: log.OrDiscard(logger),
	}, nil
}

// Close closes the file. It's safe to call more than once.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// Path returns path of the file
func (s *Store) Path() string {
	return s.path
}

func collectKeys(b *bbolt.Bucket, prefix string, res *[]string) error {
	return b.ForEach(func(k, v []byte) error {
		key := pck.JoinKey(prefix, string(k))
		if v != nil {
			*res = append(*res, key)
			return nil
		}
		sub := b.Bucket(k)
		if sub == nil {
			return nil
		}
		return collectKeys(sub, key, res)
	})
}

// Keys returns keys of all datasets, sorted
func (s *Store) Keys() ([]string, error) {
	var res []string
	err := s.db.View(func(tx *bbolt.Tx) error {
		root := tx.Bucket([]byte(rootBucket))
		if root == nil {
			return nil
		}
		return collectKeys(root, "", &res)
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(res)
	return res, nil
}

func splitKey(key string) []string {
	return strings.Split(strings.Trim(key, "/"), "/")
}

// Get returns decoded value of key or pck.ErrKeyNotFound
func (s *Store) Get(key string) (any, error) {
	var d []byte
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(rootBucket))
		parts := splitKey(key)
		for _, p := range parts[:len(parts)-1] {
			if b == nil {
				break
			}
			b = b.Bucket([]byte(p))
		}
		if b == nil {
			return nil
		}
		v := b.Get([]byte(parts[len(parts)-1]))
		if v != nil {
			// only valid during transaction
			d = bytes.Clone(v)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if d == nil {
		return nil, fmt.Errorf("%w: '%s' in '%s'", pck.ErrKeyNotFound, key, s.path)
	}
	return decodeValue(d)
}

func encodeValue(v any) ([]byte, error) {
	d, err := pck.Encode(v, pck.EncodeOptions{Compact: true})
	if err != nil {
		return nil, err
	}
	if len(d) < CompressThreshold {
		return append([]byte{flagPlain}, d...), nil
	}
	cd, err := u.ZstdCompressData(d)
	if err != nil {
		return nil, err
	}
	return append([]byte{flagZstd}, cd...), nil
}

func decodeValue(d []byte) (any, error) {
	if len(d) == 0 {
		return nil, fmt.Errorf("%w: empty value", pck.ErrFormat)
	}
	data := d[1:]
	switch d[0] {
	case flagPlain:
	case flagZstd:
		var err error
		if data, err = u.ZstdDecompressData(data); err != nil {
			return nil, fmt.Errorf("%w: %s", pck.ErrFormat, err)
		}
	default:
		return nil, fmt.Errorf("%w: unknown value flag %d", pck.ErrFormat, d[0])
	}
	v, err := pck.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", pck.ErrFormat, err)
	}
	return v, nil
}

// WriteGroup replaces group with data.
// The group's bucket is deleted and created again. For top-level group ("" or "/")
// only the keys in data are replaced.
// Values that can't be encoded are logged and skipped.
func (s *Store) WriteGroup(group string, data map[string]any) error {
	names := make([]string, 0, len(data))
	for k := range data {
		names = append(names, k)
	}
	sort.Strings(names)

	return s.db.Update(func(tx *bbolt.Tx) error {
		root, err := tx.CreateBucketIfNotExists([]byte(rootBucket))
		if err != nil {
			return err
		}
		b := root
		if !pck.IsTopGroup(group) {
			parts := splitKey(group)
			parent := root
			for _, p := range parts[:len(parts)-1] {
				if parent, err = parent.CreateBucketIfNotExists([]byte(p)); err != nil {
					return err
				}
			}
			last := []byte(parts[len(parts)-1])
			if parent.Get(last) != nil {
				// a dataset with the same name as the group
				if err = parent.Delete(last); err != nil {
					return err
				}
			}
			err = parent.DeleteBucket(last)
			if err != nil && !errors.Is(err, bbolt.ErrBucketNotFound) {
				return err
			}
			if b, err = parent.CreateBucket(last); err != nil {
				return err
			}
		}

		for _, name := range names {
			if name == "" || strings.Contains(name, "/") {
				s.logger.Error("invalid dataset name", "path", s.path, "group", group, "key", name)
				continue
			}
			d, err := encodeValue(data[name])
			if err != nil {
				s.logger.Error("failed to encode value", "path", s.path, "group", group, "key", name, "error", err)
				continue
			}
			k := []byte(name)
			if b.Bucket(k) != nil {
				if err = b.DeleteBucket(k); err != nil {
					return err
				}
			}
			if err = b.Put(k, d); err != nil {
				return err
			}
		}
		return nil
	})
}
