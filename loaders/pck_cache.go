package loaders

import (
	"fmt"
	"sort"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/kjk/pckstore/pck"
)

// CachePath is the path of every cache loader
const CachePath = "dict.cache"

// CachePckLoader loads values from an in-memory map.
// A map value is a group: {"g": {"k": v}} has key "g/k".
// Deeper nesting is not supported.
type CachePckLoader struct {
	*pckLoader
	b *cacheBackend
}

var _ PckLoader = &CachePckLoader{}

type cacheBackend struct {
	m map[string]any
}

// NewCachePckLoader creates a loader over m. m is not copied.
func NewCachePckLoader(m map[string]any, opts *PckOptions) (*CachePckLoader, error) {
	if m == nil {
		return nil, fmt.Errorf("%w: nil cache", pck.ErrFormat)
	}
	b := &cacheBackend{m: m}
	l, err := newPckLoader(TypeCache, CachePath, b, opts)
	if err != nil {
		return nil, err
	}
	return &CachePckLoader{pckLoader: l, b: b}, nil
}

func restoreCachePckLoader(h *handoff, opts *PckOptions) (PckLoader, error) {
	if len(h.Data) == 0 {
		return NewCachePckLoader(map[string]any{}, opts)
	}
	v, err := pck.Decode(h.Data)
	if err != nil {
		return nil, fmt.Errorf("%w: cache data: %s", pck.ErrFormat, err)
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: cache data is %T, not an object", pck.ErrFormat, v)
	}
	return NewCachePckLoader(m, opts)
}

func (b *cacheBackend) open() error  { return nil }
func (b *cacheBackend) close() error { return nil }

func (b *cacheBackend) keys() ([]string, error) {
	var res []string
	for k, v := range b.m {
		if sub, ok := v.(map[string]any); ok {
			for kk := range sub {
				res = append(res, k+"/"+kk)
			}
			continue
		}
		res = append(res, k)
	}
	sort.Strings(res)
	return res, nil
}

func (b *cacheBackend) get(key string) (any, error) {
	parts := strings.Split(strings.Trim(key, "/"), "/")
	switch len(parts) {
	case 1:
		if v, ok := b.m[key]; ok {
			return v, nil
		}
	case 2:
		if sub, ok := b.m[parts[0]].(map[string]any); ok {
			if v, ok := sub[parts[1]]; ok {
				return v, nil
			}
		}
	default:
		return nil, fmt.Errorf("%w: wrong key '%s'", pck.ErrFormat, key)
	}
	return nil, fmt.Errorf("%w: '%s' in '%s'", pck.ErrKeyNotFound, key, CachePath)
}

// MarshalJSON includes the data because a cache has no file to re-open
func (l *CachePckLoader) MarshalJSON() ([]byte, error) {
	d, err := pck.Encode(l.b.m, pck.EncodeOptions{Compact: true})
	if err != nil {
		return nil, err
	}
	return json.Marshal(handoff{Type: TypeCache, Path: CachePath, Data: d})
}
