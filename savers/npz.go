package savers

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"time"

	"github.com/kjk/pckstore/atomicfile"
	"github.com/kjk/pckstore/loaders"
	"github.com/kjk/pckstore/npy"
	"github.com/kjk/pckstore/pck"
	"github.com/kjk/pckstore/u"
	"github.com/klauspost/compress/zip"
)

// NpzPckSaver writes values as "<key>.npy" members of a zip archive.
// Members are buffered and added to the archive on Close.
// Existing members are kept. A key written again gets a new member,
// the last one wins when loading.
type NpzPckSaver struct {
	*pckSaver
}

var _ PckSaver = &NpzPckSaver{}

type npzMember struct {
	name string
	d    []byte
}

type npzBackend struct {
	path    string
	logger  *slog.Logger
	pending []npzMember
}

// NewNpzPckSaver creates a saver for path, adding ".npz" if missing
func NewNpzPckSaver(path string, opts *Options) (*NpzPckSaver, error) {
	path, err := checkPath(path, ".npz")
	if err != nil {
		return nil, err
	}
	logger := opts.logger()
	b := &npzBackend{path: path, logger: logger}
	return &NpzPckSaver{&pckSaver{typ: loaders.TypeNpz, path: path, b: b, logger: logger}}, nil
}

func (b *npzBackend) open() error {
	if !u.FileExists(b.path) {
		return nil
	}
	// fail early for files that can't be appended to
	r, err := zip.OpenReader(b.path)
	if err != nil {
		return fmt.Errorf("%w: '%s': %s", pck.ErrFormat, b.path, err)
	}
	return r.Close()
}

func (b *npzBackend) write(group string, data map[string]any) error {
	keys, records := groupKeys(group, data)
	for _, k := range keys {
		var buf bytes.Buffer
		if err := npy.Write(&buf, records[k]); err != nil {
			b.logger.Error("failed to write value", "path", b.path, "key", k, "error", err)
			continue
		}
		b.pending = append(b.pending, npzMember{k + ".npy", buf.Bytes()})
	}
	return nil
}

func (b *npzBackend) close() error {
	pending := b.pending
	b.pending = nil
	if len(pending) == 0 && u.FileExists(b.path) {
		return nil
	}
	return atomicfile.WriteFile(b.path, func(w io.Writer) error {
		zw := zip.NewWriter(w)
		if u.FileExists(b.path) {
			r, err := zip.OpenReader(b.path)
			if err != nil {
				return fmt.Errorf("%w: '%s': %s", pck.ErrFormat, b.path, err)
			}
			defer r.Close()
			for _, f := range r.File {
				if err = zw.Copy(f); err != nil {
					return err
				}
			}
		}
		now := time.Now()
		for _, m := range pending {
			fw, err := zw.CreateHeader(&zip.FileHeader{Name: m.name, Method: zip.Deflate, Modified: now})
			if err != nil {
				return err
			}
			if _, err = fw.Write(m.d); err != nil {
				return err
			}
		}
		return zw.Close()
	})
}

// PendingKeys returns keys written since Open, not yet in the archive
func (s *NpzPckSaver) PendingKeys() []string {
	b := s.b.(*npzBackend)
	res := make([]string, len(b.pending))
	for i, m := range b.pending {
		res[i] = m.name[:len(m.name)-len(".npy")]
	}
	sort.Strings(res)
	return res
}
