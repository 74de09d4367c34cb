package savers

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/alecthomas/assert"
	"github.com/kjk/pckstore/loaders"
	"github.com/kjk/pckstore/pck"
)

func writeRun(t *testing.T, s PckSaver) {
	err := WithSaver(s, func(s PckSaver) error {
		err := s.Write("/", map[string]any{"description": "run 1", "processor": "GTCv3"})
		assert.NoError(t, err)
		err = s.Write("history", map[string]any{
			"phi":   pck.NewArray([]float64{0.5, 1.5, 2.5, 3.5}, 2, 2),
			"ndiag": int64(10),
		})
		assert.NoError(t, err)
		return s.Write("data1d", map[string]any{"name": "x"})
	})
	assert.NoError(t, err)
}

func checkRun(t *testing.T, l loaders.PckLoader) {
	assert.Equal(t, []string{"data1d/name", "description", "history/ndiag", "history/phi", "processor"}, l.Keys())
	assert.Equal(t, []string{"data1d", "history"}, l.DataGroups())
	desc, ok := l.Description()
	assert.True(t, ok)
	assert.Equal(t, "run 1", desc)

	phi, err := l.Get("history/phi")
	assert.NoError(t, err)
	a, ok := phi.(*pck.Array)
	assert.True(t, ok, "%T", phi)
	assert.Equal(t, []int{2, 2}, a.Shape)
	assert.Equal(t, []float64{0.5, 1.5, 2.5, 3.5}, a.Data)

	vals, err := l.GetMany("history/ndiag", "data1d/name")
	assert.NoError(t, err)
	assert.Equal(t, []any{int64(10), "x"}, vals)
}

func TestSaveAndLoad(t *testing.T) {
	for _, ext := range []string{".npz", ".bolt", ".jsonl", ".jsonz"} {
		t.Run(ext, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "run"+ext)
			s, err := NewPckSaver(path, nil)
			assert.NoError(t, err)
			assert.Equal(t, path, s.Path())
			writeRun(t, s)

			l, err := loaders.NewPckLoader(path, nil)
			assert.NoError(t, err)
			assert.Equal(t, s.Type(), l.Type())
			checkRun(t, l)
		})
	}
}

func TestAppendExtension(t *testing.T) {
	dir := t.TempDir()
	s, err := NewJsonzPckSaver(filepath.Join(dir, "run"), nil)
	assert.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "run.jsonz"), s.Path())

	s2, err := NewNpzPckSaver(filepath.Join(dir, "run.npz"), nil)
	assert.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "run.npz"), s2.Path())

	s3, err := NewJsonlPckSaver(filepath.Join(dir, "run.jsonl.gz"), nil)
	assert.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "run.jsonl.gz.jsonl"), s3.Path())
}

func TestSaverErrors(t *testing.T) {
	dir := t.TempDir()
	_, err := NewBoltPckSaver(filepath.Join(dir, "missing", "run"), nil)
	assert.True(t, errors.Is(err, pck.ErrPathAccess))

	_, err = NewPckSaver(filepath.Join(dir, "run.hdf5"), nil)
	assert.True(t, errors.Is(err, pck.ErrFormat))

	s, err := NewJsonlPckSaver(filepath.Join(dir, "run"), nil)
	assert.NoError(t, err)
	err = s.Write("g", map[string]any{"a": 1})
	assert.True(t, errors.Is(err, ErrNotOpen))

	assert.NoError(t, s.Open())
	// opening twice is a no-op
	assert.NoError(t, s.Open())
	err = s.Write("g", nil)
	assert.True(t, errors.Is(err, pck.ErrFormat))
	assert.NoError(t, s.Close())
	assert.NoError(t, s.Close())
}

func TestWithSaverClosesOnError(t *testing.T) {
	s := NewCachePckSaver(nil, nil)
	errFn := errors.New("fn failed")
	err := WithSaver(s, func(s PckSaver) error {
		assert.NoError(t, s.Write("", map[string]any{"a": int64(1)}))
		return errFn
	})
	assert.True(t, errors.Is(err, errFn))
	err = s.Write("", map[string]any{"b": int64(2)})
	assert.True(t, errors.Is(err, ErrNotOpen))
	assert.Equal(t, map[string]any{"a": int64(1)}, s.Store())
}

func TestCachePckSaver(t *testing.T) {
	s := NewCachePckSaver(nil, nil)
	err := WithSaver(s, func(s PckSaver) error {
		assert.NoError(t, s.Write("", map[string]any{"description": "d"}))
		assert.NoError(t, s.Write("g1", map[string]any{"a": int64(1)}))
		return s.Write("g1", map[string]any{"b": int64(2)})
	})
	assert.NoError(t, err)
	exp := map[string]any{
		"description": "d",
		"g1":          map[string]any{"a": int64(1), "b": int64(2)},
	}
	assert.Equal(t, exp, s.Store())

	l, err := loaders.NewCachePckLoader(s.Store(), nil)
	assert.NoError(t, err)
	assert.Equal(t, []string{"description", "g1/a", "g1/b"}, l.Keys())
}

func TestAppendToExisting(t *testing.T) {
	for _, ext := range []string{".npz", ".jsonl", ".jsonz"} {
		t.Run(ext, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "run"+ext)
			s, err := NewPckSaver(path, nil)
			assert.NoError(t, err)
			err = WithSaver(s, func(s PckSaver) error {
				return s.Write("g", map[string]any{"a": int64(1), "b": int64(2)})
			})
			assert.NoError(t, err)
			err = WithSaver(s, func(s PckSaver) error {
				return s.Write("g", map[string]any{"a": int64(3)})
			})
			assert.NoError(t, err)

			l, err := loaders.NewPckLoader(path, nil)
			assert.NoError(t, err)
			assert.Equal(t, []string{"g/a", "g/b"}, l.Keys())
			g, err := l.GetByGroup("g")
			assert.NoError(t, err)
			assert.Equal(t, map[string]any{"a": int64(3), "b": int64(2)}, g)
		})
	}
}

func TestBoltRewritesGroup(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.bolt")
	s, err := NewBoltPckSaver(path, nil)
	assert.NoError(t, err)
	err = WithSaver(s, func(s PckSaver) error {
		assert.NoError(t, s.Write("g", map[string]any{"a": int64(1), "b": int64(2)}))
		return s.Write("g", map[string]any{"a": int64(3)})
	})
	assert.NoError(t, err)

	l, err := loaders.NewPckLoader(path, nil)
	assert.NoError(t, err)
	assert.Equal(t, []string{"g/a"}, l.Keys())
}

func TestNpzEmptyArchive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.npz")
	s, err := NewNpzPckSaver(path, nil)
	assert.NoError(t, err)
	assert.NoError(t, s.Open())
	assert.NoError(t, s.Write("g", map[string]any{"x": int64(1)}))
	assert.Equal(t, []string{"g/x"}, s.PendingKeys())
	assert.NoError(t, s.Close())
	assert.Empty(t, s.PendingKeys())

	_, err = os.Stat(path)
	assert.NoError(t, err)
}

func TestConvert(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "run.jsonl")
	s, err := NewPckSaver(src, nil)
	assert.NoError(t, err)
	writeRun(t, s)

	l, err := loaders.NewPckLoader(src, nil)
	assert.NoError(t, err)
	for _, ext := range []string{".npz", ".bolt", ".jsonz"} {
		dst, err := NewPckSaver(filepath.Join(dir, "converted"+ext), nil)
		assert.NoError(t, err)
		assert.NoError(t, Convert(l, dst))

		l2, err := loaders.NewPckLoader(dst.Path(), nil)
		assert.NoError(t, err)
		checkRun(t, l2)
	}

	cache := NewCachePckSaver(nil, nil)
	assert.NoError(t, Convert(l, cache))
	l3, err := loaders.NewCachePckLoader(cache.Store(), nil)
	assert.NoError(t, err)
	assert.Equal(t, l.Keys(), l3.Keys())
}

func TestFloatsKeepType(t *testing.T) {
	dir := t.TempDir()
	for _, ext := range []string{".jsonl", ".jsonz"} {
		path := filepath.Join(dir, "floats"+ext)
		s, err := NewPckSaver(path, nil)
		assert.NoError(t, err)
		err = WithSaver(s, func(s PckSaver) error {
			return s.Write("g", map[string]any{
				"temp": 300.0,
				"arr":  pck.NewArray([]float64{1, 2, 3}),
				"n":    int64(300),
			})
		})
		assert.NoError(t, err)

		l, err := loaders.NewPckLoader(path, nil)
		assert.NoError(t, err)
		vals, err := l.GetMany("g/temp", "g/n")
		assert.NoError(t, err)
		assert.Equal(t, []any{300.0, int64(300)}, vals, "%s", ext)
		v, err := l.Get("g/arr")
		assert.NoError(t, err)
		assert.Equal(t, pck.NewArray([]float64{1, 2, 3}), v, "%s", ext)

		dst, err := NewNpzPckSaver(filepath.Join(dir, "floats"+ext+".npz"), nil)
		assert.NoError(t, err)
		assert.NoError(t, Convert(l, dst))
		l2, err := loaders.NewPckLoader(dst.Path(), nil)
		assert.NoError(t, err)
		v, err = l2.Get("g/arr")
		assert.NoError(t, err)
		a, ok := v.(*pck.Array)
		assert.True(t, ok, "%T", v)
		assert.Equal(t, pck.DTypeFloat, a.DType)
	}
}
