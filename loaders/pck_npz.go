package loaders

import (
	"fmt"
	"sort"
	"strings"

	"github.com/kjk/pckstore/npy"
	"github.com/kjk/pckstore/pck"
	"github.com/klauspost/compress/zip"
)

const npyExt = ".npy"

// NpzPckLoader loads values from a zip archive of "<key>.npy" members
type NpzPckLoader struct {
	*pckLoader
}

var _ PckLoader = &NpzPckLoader{}

type npzBackend struct {
	path    string
	archive *zip.ReadCloser
	members map[string]*zip.File
}

// NewNpzPckLoader opens .npz file at path
func NewNpzPckLoader(path string, opts *PckOptions) (*NpzPckLoader, error) {
	l, err := newPckLoader(TypeNpz, path, &npzBackend{path: path}, opts)
	if err != nil {
		return nil, err
	}
	return &NpzPckLoader{l}, nil
}

func (b *npzBackend) open() error {
	r, err := zip.OpenReader(b.path)
	if err != nil {
		return fmt.Errorf("%w: '%s': %s", pck.ErrFormat, b.path, err)
	}
	b.archive = r
	// of members with the same name, the last one wins
	b.members = make(map[string]*zip.File, len(r.File))
	for _, f := range r.File {
		if strings.HasSuffix(f.Name, npyExt) {
			b.members[strings.TrimSuffix(f.Name, npyExt)] = f
		}
	}
	return nil
}

func (b *npzBackend) close() error {
	if b.archive == nil {
		return nil
	}
	err := b.archive.Close()
	b.archive = nil
	b.members = nil
	return err
}

func (b *npzBackend) keys() ([]string, error) {
	var res []string
	seen := map[string]bool{}
	for _, f := range b.archive.File {
		k, ok := strings.CutSuffix(f.Name, npyExt)
		if !ok || seen[k] {
			continue
		}
		seen[k] = true
		res = append(res, k)
	}
	sort.Strings(res)
	return res, nil
}

func (b *npzBackend) get(key string) (any, error) {
	if b.archive == nil {
		return nil, errNotOpen
	}
	f := b.members[key]
	if f == nil {
		return nil, fmt.Errorf("%w: '%s' in '%s'", pck.ErrKeyNotFound, key, b.path)
	}
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return npy.Read(rc)
}
