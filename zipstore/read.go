package zipstore

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/kjk/pckstore/atomicfile"
	"github.com/kjk/pckstore/logstore"
	"github.com/kjk/pckstore/pck"
	"github.com/klauspost/compress/zip"
)

// lastMembers maps member name to the last member with that name
func lastMembers(r *zip.Reader) map[string]*zip.File {
	res := make(map[string]*zip.File, len(r.File))
	for _, f := range r.File {
		res[f.Name] = f
	}
	return res
}

func readMember(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

// GetRecords returns decoded records for keys, in the same order.
// Absent keys get nil. A key can be given with ".json" extension.
func (s *Store) GetRecords(keys ...string) ([]any, error) {
	res := make([]any, len(keys))
	var todo []int
	for i, k := range keys {
		k = strings.TrimSuffix(k, memberExt)
		if !s.known[k] {
			continue
		}
		if v, ok := s.cache[k]; ok {
			res[i] = v
			continue
		}
		todo = append(todo, i)
	}
	if len(todo) == 0 {
		return res, nil
	}

	r, err := zip.OpenReader(s.path)
	if err != nil {
		return nil, fmt.Errorf("%w: '%s': %s", pck.ErrFormat, s.path, err)
	}
	defer r.Close()
	members := lastMembers(&r.Reader)
	for _, i := range todo {
		k := strings.TrimSuffix(keys[i], memberExt)
		f := members[k+memberExt]
		if f == nil {
			continue
		}
		d, err := readMember(f)
		if err != nil {
			return nil, fmt.Errorf("failed to read '%s' from '%s': %w", f.Name, s.path, err)
		}
		v, err := pck.Decode(d)
		if err != nil {
			return nil, fmt.Errorf("%w: record '%s' in '%s': %s", pck.ErrFormat, k, s.path, err)
		}
		res[i] = v
		if s.opts.CacheOn {
			s.cache[k] = v
		}
	}
	return res, nil
}

// GetRecord returns decoded record for key or pck.ErrKeyNotFound
func (s *Store) GetRecord(key string) (any, error) {
	if !s.known[strings.TrimSuffix(key, memberExt)] {
		return nil, fmt.Errorf("%w: '%s' in '%s'", pck.ErrKeyNotFound, key, s.path)
	}
	res, err := s.GetRecords(key)
	if err != nil {
		return nil, err
	}
	return res[0], nil
}

// ImportBatchSize returns number of records imported at once from a log store
// with n records
func ImportBatchSize(n int) int {
	return max(n/100, 10)
}

// BulkImport adds all records of src except backups.
// Lines are copied as is unless reEncode is set.
// A batch that fails to read is logged and skipped.
func (s *Store) BulkImport(src *logstore.Store, reEncode bool) error {
	keys := src.KeysWithoutBackup()
	n := ImportBatchSize(len(keys))
	var added []string
	err := s.rewrite(func(zw *zip.Writer) error {
		for start := 0; start < len(keys); start += n {
			batch := keys[start:min(start+n, len(keys))]
			raw, err := src.GetRawRecords(batch...)
			if err == nil && reEncode {
				err = s.reEncode(raw)
			}
			if err != nil {
				s.logger.Error("failed to import batch", "path", src.Path(), "first", batch[0], "count", len(batch), "error", err)
				continue
			}
			for i, k := range batch {
				if err = s.writeMember(zw, k, raw[i]); err != nil {
					return err
				}
				added = append(added, k)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	for _, k := range added {
		s.addKey(k)
		delete(s.cache, k)
	}
	return nil
}

func (s *Store) reEncode(raw [][]byte) error {
	for i, d := range raw {
		v, err := pck.Decode(d)
		if err != nil {
			return err
		}
		if raw[i], err = pck.Encode(v, s.encodeOptions()); err != nil {
			return err
		}
	}
	return nil
}

// Slim writes a copy of the archive without duplicate members.
// Of members with the same name only the last one is kept.
func (s *Store) Slim(outPath string, overwrite bool) error {
	if err := pck.CheckWritable(outPath, overwrite); err != nil {
		s.logger.Error("can't write slim archive", "path", outPath, "error", err)
		return err
	}
	if ext := filepath.Ext(outPath); ext != ".jsonz" {
		s.logger.Warn("unexpected extension of slim archive", "path", outPath, "ext", ext)
	}
	return atomicfile.WriteFile(outPath, func(w io.Writer) error {
		r, err := zip.OpenReader(s.path)
		if err != nil {
			return fmt.Errorf("%w: '%s': %s", pck.ErrFormat, s.path, err)
		}
		defer r.Close()
		last := lastMembers(&r.Reader)
		zw := zip.NewWriter(w)
		for _, f := range r.File {
			if last[f.Name] != f {
				continue
			}
			if err = zw.Copy(f); err != nil {
				return err
			}
		}
		return zw.Close()
	})
}

// Finalize is Slim. Archives stay writable.
func (s *Store) Finalize(outPath string, overwrite bool) error {
	return s.Slim(outPath, overwrite)
}
