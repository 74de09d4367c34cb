package savers

import (
	"github.com/kjk/pckstore/loaders"
	"github.com/kjk/pckstore/pck"
)

// CachePckSaver writes groups to an in-memory map of the shape
// read by loaders.CachePckLoader: top-level values and one map per group
type CachePckSaver struct {
	*pckSaver
	b *cacheBackend
}

var _ PckSaver = &CachePckSaver{}

type cacheBackend struct {
	m map[string]any
}

// NewCachePckSaver creates a saver writing to m. With nil m,
// a new map is created by Open.
func NewCachePckSaver(m map[string]any, opts *Options) *CachePckSaver {
	b := &cacheBackend{m: m}
	logger := opts.logger()
	return &CachePckSaver{
		pckSaver: &pckSaver{typ: loaders.TypeCache, path: loaders.CachePath, b: b, logger: logger},
		b:        b,
	}
}

// Store returns the map written to
func (s *CachePckSaver) Store() map[string]any {
	return s.b.m
}

func (b *cacheBackend) open() error {
	if b.m == nil {
		b.m = map[string]any{}
	}
	return nil
}

func (b *cacheBackend) write(group string, data map[string]any) error {
	if pck.IsTopGroup(group) {
		for k, v := range data {
			b.m[k] = v
		}
		return nil
	}
	if g, ok := b.m[group].(map[string]any); ok {
		for k, v := range data {
			g[k] = v
		}
		return nil
	}
	g := make(map[string]any, len(data))
	for k, v := range data {
		g[k] = v
	}
	b.m[group] = g
	return nil
}

func (b *cacheBackend) close() error { return nil }
