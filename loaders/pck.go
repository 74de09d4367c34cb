package loaders

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"

	"github.com/kjk/pckstore/log"
	"github.com/kjk/pckstore/pck"
)

const (
	TypeNpz   = "npz"
	TypeBolt  = "bolt"
	TypeJsonl = "jsonl"
	TypeJsonz = "jsonz"
	TypeCache = "cache"
)

// PckLoader gives access to values stored in a pck file.
// Keys are "group/name" or "name" for top-level values.
type PckLoader interface {
	Path() string
	Type() string
	Keys() []string
	// DataKeys is Keys, named after groups derived from them
	DataKeys() []string
	DataGroups() []string
	// Description returns the "description" value, stringified
	Description() (string, bool)
	Find(subs ...string) []string
	FindAny(subs ...string) []string
	Refind(patterns ...string) ([]string, error)
	RefindAny(patterns ...string) ([]string, error)
	Get(key string) (any, error)
	GetMany(keys ...string) ([]any, error)
	// GetByGroup returns values of group keyed by their base name
	GetByGroup(group string) (map[string]any, error)
	ClearCache()
	// Open keeps the backend open until Close. Without it,
	// every Get opens and closes the backend.
	Open() error
	Close() error
	MarshalJSON() ([]byte, error)
}

// PckOptions configures pck loaders
type PckOptions struct {
	// ExcludeGroup removes a group and all its keys
	ExcludeGroup func(group string) bool
	Logger       *slog.Logger
}

func (o *PckOptions) logger() *slog.Logger {
	if o == nil {
		return log.Discard()
	}
	return log.OrDiscard(o.Logger)
}

// backend is the storage specific part of a pck loader
type backend interface {
	open() error
	close() error
	// keys is called with the backend open
	keys() ([]string, error)
	get(key string) (any, error)
}

// backends that read many keys faster than one by one
type multiGetter interface {
	getMany(keys []string) ([]any, error)
}

// pckLoader implements PckLoader over a backend
type pckLoader struct {
	keyFinder
	typ    string
	path   string
	b      backend
	logger *slog.Logger

	groups []string
	known  map[string]bool
	cache  map[string]any
	isOpen bool
}

func newPckLoader(typ, path string, b backend, opts *PckOptions) (*pckLoader, error) {
	l := &pckLoader{
		typ:    typ,
		path:   path,
		b:      b,
		logger: opts.logger(),
		cache:  map[string]any{},
	}
	l.logger.Debug("getting keys", "path", path)
	if err := b.open(); err != nil {
		l.logger.Error("failed to open", "path", path, "error", err)
		return nil, err
	}
	keys, err := b.keys()
	if err2 := b.close(); err == nil {
		err = err2
	}
	if err != nil {
		l.logger.Error("failed to get keys", "path", path, "error", err)
		return nil, err
	}
	l.setKeys(keys, opts)
	return l, nil
}

func (l *pckLoader) setKeys(keys []string, opts *PckOptions) {
	var exclude func(string) bool
	if opts != nil {
		exclude = opts.ExcludeGroup
	}
	groups := map[string]bool{}
	l.known = make(map[string]bool, len(keys))
	l.keys = l.keys[:0]
	for _, k := range keys {
		g := pck.Group(k)
		if g != "" && exclude != nil && exclude(g) {
			continue
		}
		if l.known[k] {
			continue
		}
		l.known[k] = true
		l.keys = append(l.keys, k)
		if g != "" {
			groups[g] = true
		}
	}
	l.groups = l.groups[:0]
	for g := range groups {
		l.groups = append(l.groups, g)
	}
	sort.Strings(l.groups)
}

func (l *pckLoader) Path() string { return l.path }
func (l *pckLoader) Type() string { return l.typ }

func (l *pckLoader) DataKeys() []string {
	return l.Keys()
}

func (l *pckLoader) DataGroups() []string {
	return append([]string(nil), l.groups...)
}

func (l *pckLoader) has(key string) bool {
	return l.known[key]
}

func (l *pckLoader) Description() (string, bool) {
	if !l.has(pck.DescriptionKey) {
		return "", false
	}
	v, err := l.Get(pck.DescriptionKey)
	if err != nil {
		return "", false
	}
	if s, ok := v.(string); ok {
		return s, true
	}
	return fmt.Sprint(v), true
}

func (l *pckLoader) Open() error {
	if l.isOpen {
		return nil
	}
	if err := l.b.open(); err != nil {
		return err
	}
	l.isOpen = true
	return nil
}

func (l *pckLoader) Close() error {
	if !l.isOpen {
		return nil
	}
	l.isOpen = false
	return l.b.close()
}

// withBackend runs fn with the backend open, opening it just for fn
// if the loader isn't open
func (l *pckLoader) withBackend(fn func() error) (err error) {
	if l.isOpen {
		return fn()
	}
	if err = l.b.open(); err != nil {
		l.logger.Error("failed to open", "path", l.path, "error", err)
		return err
	}
	defer func() {
		if err2 := l.b.close(); err == nil {
			err = err2
		}
	}()
	return fn()
}

func (l *pckLoader) errNoKey(key string) error {
	return fmt.Errorf("%w: '%s' in '%s'", pck.ErrKeyNotFound, key, l.path)
}

func (l *pckLoader) Get(key string) (any, error) {
	if !l.has(key) {
		return nil, l.errNoKey(key)
	}
	if v, ok := l.cache[key]; ok {
		return v, nil
	}
	var v any
	err := l.withBackend(func() error {
		var err error
		v, err = l.b.get(key)
		return err
	})
	if err != nil {
		l.logger.Error("failed to get", "path", l.path, "key", key, "error", err)
		return nil, err
	}
	l.cache[key] = v
	return v, nil
}

// GetMany returns values of keys, in the same order.
// Values not in cache are read with the backend opened once.
func (l *pckLoader) GetMany(keys ...string) ([]any, error) {
	res := make([]any, len(keys))
	var todo []string
	var idx []int
	for i, k := range keys {
		if !l.has(k) {
			return nil, l.errNoKey(k)
		}
		if v, ok := l.cache[k]; ok {
			res[i] = v
			continue
		}
		todo = append(todo, k)
		idx = append(idx, i)
	}
	if len(todo) == 0 {
		return res, nil
	}
	err := l.withBackend(func() error {
		if mg, ok := l.b.(multiGetter); ok {
			vals, err := mg.getMany(todo)
			if err != nil {
				return err
			}
			for j, v := range vals {
				res[idx[j]] = v
				l.cache[todo[j]] = v
			}
			return nil
		}
		for j, k := range todo {
			v, err := l.b.get(k)
			if err != nil {
				return fmt.Errorf("failed to get '%s': %w", k, err)
			}
			res[idx[j]] = v
			l.cache[k] = v
		}
		return nil
	})
	if err != nil {
		l.logger.Error("failed to get many", "path", l.path, "count", len(todo), "error", err)
		return nil, err
	}
	return res, nil
}

func (l *pckLoader) GetByGroup(group string) (map[string]any, error) {
	var keys []string
	for _, k := range l.keys {
		g := pck.Group(k)
		if g == group || (g == "" && pck.IsTopGroup(group)) {
			keys = append(keys, k)
		}
	}
	vals, err := l.GetMany(keys...)
	if err != nil {
		return nil, err
	}
	res := make(map[string]any, len(keys))
	for i, k := range keys {
		res[pck.Base(k)] = vals[i]
	}
	return res, nil
}

func (l *pckLoader) ClearCache() {
	clear(l.cache)
}

func (l *pckLoader) MarshalJSON() ([]byte, error) {
	return marshalHandoff(l.typ, l.path)
}

// rehydrate turns lists of numbers from JSON backends into arrays
func rehydrate(v any) any {
	if _, ok := v.([]any); !ok {
		return v
	}
	if a, ok := pck.AsArray(v); ok {
		return a
	}
	return v
}

// PckType returns the loader type for path, based on its extension
func PckType(path string) (string, error) {
	lower := strings.ToLower(path)
	switch {
	case strings.HasSuffix(lower, ".npz"):
		return TypeNpz, nil
	case strings.HasSuffix(lower, ".bolt"):
		return TypeBolt, nil
	case strings.HasSuffix(lower, ".jsonl"), strings.HasSuffix(lower, ".jsonl.gz"), strings.HasSuffix(lower, ".jsonl-gz"):
		return TypeJsonl, nil
	case strings.HasSuffix(lower, ".jsonz"):
		return TypeJsonz, nil
	}
	return "", fmt.Errorf("%w: unsupported pck file '%s'", pck.ErrFormat, path)
}

// NewPckLoader picks a loader based on extension of path:
// .npz, .bolt, .jsonl (.jsonl.gz, .jsonl-gz) or .jsonz
func NewPckLoader(path string, opts *PckOptions) (PckLoader, error) {
	typ, err := PckType(path)
	if err != nil {
		return nil, err
	}
	return newPckLoaderOfType(typ, path, opts)
}

func newPckLoaderOfType(typ, path string, opts *PckOptions) (PckLoader, error) {
	st, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", pck.ErrPathAccess, err)
	}
	if st.IsDir() {
		return nil, fmt.Errorf("%w: '%s' is a directory", pck.ErrPathAccess, path)
	}
	switch typ {
	case TypeNpz:
		return NewNpzPckLoader(path, opts)
	case TypeBolt:
		return NewBoltPckLoader(path, opts)
	case TypeJsonl:
		return NewJsonlPckLoader(path, opts)
	case TypeJsonz:
		return NewJsonzPckLoader(path, opts)
	}
	return nil, fmt.Errorf("%w: unknown pck loader type '%s'", pck.ErrFormat, typ)
}

// RestorePckLoader re-creates a loader from MarshalJSON() output
func RestorePckLoader(d []byte, opts *PckOptions) (PckLoader, error) {
	h, err := unmarshalHandoff(d)
	if err != nil {
		return nil, err
	}
	if h.Type == TypeCache {
		return restoreCachePckLoader(h, opts)
	}
	return newPckLoaderOfType(h.Type, h.Path, opts)
}

var errNotOpen = errors.New("backend is not open")
