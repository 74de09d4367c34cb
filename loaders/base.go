package loaders

import (
	"fmt"
	"regexp"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/kjk/pckstore/pck"
)

// keyFinder implements key search shared by all loaders
type keyFinder struct {
	keys []string
}

// Keys returns all keys, in loader's order
func (f *keyFinder) Keys() []string {
	return append([]string(nil), f.keys...)
}

func (f *keyFinder) filter(match func(k string) bool) []string {
	var res []string
	for _, k := range f.keys {
		if match(k) {
			res = append(res, k)
		}
	}
	return res
}

// Find returns keys containing all of subs
func (f *keyFinder) Find(subs ...string) []string {
	return f.filter(func(k string) bool {
		for _, s := range subs {
			if !strings.Contains(k, s) {
				return false
			}
		}
		return true
	})
}

// FindAny returns keys containing at least one of subs
func (f *keyFinder) FindAny(subs ...string) []string {
	return f.filter(func(k string) bool {
		for _, s := range subs {
			if strings.Contains(k, s) {
				return true
			}
		}
		return false
	})
}

func compileAll(patterns []string) ([]*regexp.Regexp, error) {
	res := make([]*regexp.Regexp, len(patterns))
	for i, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, err
		}
		res[i] = re
	}
	return res, nil
}

// Refind returns keys matching all of regexp patterns
func (f *keyFinder) Refind(patterns ...string) ([]string, error) {
	res, err := compileAll(patterns)
	if err != nil {
		return nil, err
	}
	return f.filter(func(k string) bool {
		for _, re := range res {
			if !re.MatchString(k) {
				return false
			}
		}
		return true
	}), nil
}

// RefindAny returns keys matching at least one of regexp patterns
func (f *keyFinder) RefindAny(patterns ...string) ([]string, error) {
	res, err := compileAll(patterns)
	if err != nil {
		return nil, err
	}
	return f.filter(func(k string) bool {
		for _, re := range res {
			if re.MatchString(k) {
				return true
			}
		}
		return false
	}), nil
}

func (f *keyFinder) has(key string) bool {
	for _, k := range f.keys {
		if k == key {
			return true
		}
	}
	return false
}

// handoff is the serialized form of a loader. It never includes
// open handles: a restored loader opens its backend again.
type handoff struct {
	Type string `json:"type"`
	Path string `json:"path"`
	// only for cache loaders
	Data json.RawMessage `json:"data,omitempty"`
}

func marshalHandoff(typ, path string) ([]byte, error) {
	return json.Marshal(handoff{Type: typ, Path: path})
}

func unmarshalHandoff(d []byte) (*handoff, error) {
	var h handoff
	if err := json.Unmarshal(d, &h); err != nil {
		return nil, fmt.Errorf("%w: %s", pck.ErrFormat, err)
	}
	if h.Type == "" || h.Path == "" {
		return nil, fmt.Errorf("%w: loader without type or path", pck.ErrFormat)
	}
	return &h, nil
}
