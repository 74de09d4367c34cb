package zipstore

import (
	"errors"
	"math"
	"path/filepath"
	"testing"

	"github.com/alecthomas/assert"
	"github.com/kjk/pckstore/logstore"
	"github.com/kjk/pckstore/pck"
	"github.com/klauspost/compress/zip"
)

func memberNames(t *testing.T, path string) []string {
	r, err := zip.OpenReader(path)
	assert.NoError(t, err)
	defer r.Close()
	var res []string
	for _, f := range r.File {
		res = append(res, f.Name)
	}
	return res
}

func TestOpenCreatesArchive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.jsonz")
	s, err := Open(path, nil)
	assert.NoError(t, err)
	assert.Empty(t, s.Keys())
	assert.Empty(t, memberNames(t, path))

	_, err = Open(filepath.Join(t.TempDir(), "missing", "a.jsonz"), nil)
	assert.True(t, errors.Is(err, pck.ErrPathAccess))
}

func TestUpdateAndGet(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.jsonz")
	s, err := Open(path, nil)
	assert.NoError(t, err)
	err = s.Update(map[string]any{
		"description": "d",
		"g/a":         int64(1),
		"g/b":         []byte{1, 2},
		"bad":         math.NaN(),
	})
	assert.NoError(t, err)
	assert.Equal(t, []string{"description", "g/a", "g/b"}, s.Keys())

	s, err = Open(path, nil)
	assert.NoError(t, err)
	assert.Equal(t, []string{"description", "g/a", "g/b"}, s.Keys())
	res, err := s.GetRecords("g/a", "missing", "g/b.json", "g/a")
	assert.NoError(t, err)
	assert.Equal(t, []any{int64(1), nil, []byte{1, 2}, int64(1)}, res)

	v, err := s.GetRecord("description.json")
	assert.NoError(t, err)
	assert.Equal(t, "d", v)
	_, err = s.GetRecord("bad")
	assert.True(t, errors.Is(err, pck.ErrKeyNotFound))
}

func TestLastWriterWins(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.jsonz")
	s, err := Open(path, &Options{CacheOn: true, Method: zip.Store})
	assert.NoError(t, err)
	assert.NoError(t, s.Update(map[string]any{"x": 10, "y": 1}))
	v, err := s.GetRecord("x")
	assert.NoError(t, err)
	assert.Equal(t, int64(10), v)
	assert.NoError(t, s.Update(map[string]any{"x": 20}))
	assert.Equal(t, []string{"x.json", "y.json", "x.json"}, memberNames(t, path))
	assert.Equal(t, []string{"x", "y"}, s.Keys())

	// cache was invalidated by Update
	v, err = s.GetRecord("x")
	assert.NoError(t, err)
	assert.Equal(t, int64(20), v)

	out := filepath.Join(dir, "slim.jsonz")
	assert.NoError(t, s.Slim(out, false))
	assert.Equal(t, []string{"y.json", "x.json"}, memberNames(t, out))
	s2, err := Open(out, nil)
	assert.NoError(t, err)
	v, err = s2.GetRecord("x")
	assert.NoError(t, err)
	assert.Equal(t, int64(20), v)

	assert.True(t, errors.Is(s.Finalize(out, false), pck.ErrPathAccess))
	assert.NoError(t, s.Finalize(out, true))
}

func TestBulkImport(t *testing.T) {
	dir := t.TempDir()
	ls, err := logstore.Open(filepath.Join(dir, "a.jsonl"), &logstore.Options{Compact: false})
	assert.NoError(t, err)
	m := map[string]any{}
	for i := 0; i < 25; i++ {
		m[pck.KeyOf(i)] = map[string]any{"i": i}
	}
	assert.NoError(t, ls.Update(m))
	assert.NoError(t, ls.Update(map[string]any{"0": "new"}))

	for _, reEncode := range []bool{false, true} {
		path := filepath.Join(dir, "raw.jsonz")
		if reEncode {
			path = filepath.Join(dir, "re.jsonz")
		}
		s, err := Open(path, nil)
		assert.NoError(t, err)
		assert.NoError(t, s.BulkImport(ls, reEncode))
		assert.Equal(t, ls.KeysWithoutBackup(), s.Keys())
		for _, k := range s.Keys() {
			exp, err := ls.GetRecord(k)
			assert.NoError(t, err)
			got, err := s.GetRecord(k)
			assert.NoError(t, err)
			assert.Equal(t, exp, got)
		}
		assert.False(t, s.Has("0-backup-0"))
	}
	assert.Equal(t, 10, ImportBatchSize(25))
	assert.Equal(t, 30, ImportBatchSize(3000))
}
