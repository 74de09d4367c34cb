package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/kjk/pckstore/loaders"
	"github.com/kjk/pckstore/logstore"
	"github.com/kjk/pckstore/pck"
	"github.com/kjk/pckstore/savers"
	"github.com/kjk/pckstore/zipstore"
)

func (e *env) pckOptions() *loaders.PckOptions {
	return &loaders.PckOptions{Logger: e.logger}
}

func (e *env) logstoreOptions() *logstore.Options {
	o := logstore.DefaultOptions()
	o.SortKeys = e.conf.SortKeys
	o.CacheOn = e.conf.Cache
	o.Logger = e.logger
	return o
}

func (e *env) zipstoreOptions() *zipstore.Options {
	o := zipstore.DefaultOptions()
	o.SortKeys = e.conf.SortKeys
	o.CacheOn = e.conf.Cache
	o.Logger = e.logger
	return o
}

func isJsonl(path string) bool {
	lower := strings.ToLower(path)
	return strings.HasSuffix(lower, ".jsonl") || strings.HasSuffix(lower, ".jsonl.gz") || strings.HasSuffix(lower, ".jsonl-gz")
}

func isJsonz(path string) bool {
	return strings.ToLower(filepath.Ext(path)) == ".jsonz"
}

// checkExists fails for missing sources, stores create missing files on Open
func checkExists(path string) error {
	st, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("%w: %s", pck.ErrPathAccess, err)
	}
	if st.IsDir() {
		return fmt.Errorf("%w: '%s' is a directory", pck.ErrPathAccess, path)
	}
	return nil
}

type cmdKeys struct {
	Path   string   `arg:"" help:"Pck file, directory, archive, sftp:// or s3:// path."`
	Raw    bool     `help:"List raw files instead of pck keys."`
	Groups bool     `help:"List groups instead of keys."`
	Find   []string `short:"f" help:"Only keys containing all of these."`
	Regexp []string `short:"r" help:"Only keys matching all of these regular expressions."`
}

// finder is implemented by both raw and pck loaders
type finder interface {
	Find(subs ...string) []string
	Refind(patterns ...string) ([]string, error)
}

func filterKeys(f finder, keys []string, subs []string, patterns []string) ([]string, error) {
	if len(subs) > 0 {
		keys = intersect(keys, f.Find(subs...))
	}
	if len(patterns) > 0 {
		res, err := f.Refind(patterns...)
		if err != nil {
			return nil, err
		}
		keys = intersect(keys, res)
	}
	return keys, nil
}

// intersect returns elements of a that are in b, in order of a
func intersect(a, b []string) []string {
	in := make(map[string]bool, len(b))
	for _, s := range b {
		in[s] = true
	}
	var res []string
	for _, s := range a {
		if in[s] {
			res = append(res, s)
		}
	}
	return res
}

func (c *cmdKeys) Run(e *env) error {
	var f finder
	var keys []string
	if c.Raw {
		l, err := loaders.NewRawLoader(c.Path, e.conf.rawOptions(e.logger))
		if err != nil {
			return err
		}
		f, keys = l, l.Keys()
	} else {
		l, err := loaders.NewPckLoader(c.Path, e.pckOptions())
		if err != nil {
			return err
		}
		if c.Groups {
			for _, g := range l.DataGroups() {
				fmt.Fprintln(e.stdout, g)
			}
			return nil
		}
		f, keys = l, l.Keys()
	}
	keys, err := filterKeys(f, keys, c.Find, c.Regexp)
	if err != nil {
		return err
	}
	for _, k := range keys {
		fmt.Fprintln(e.stdout, k)
	}
	return nil
}

type cmdGet struct {
	Path   string   `arg:"" help:"Pck file."`
	Keys   []string `arg:"" help:"Keys to print. A key ending with '/' prints the whole group."`
	Format string   `short:"o" enum:"json,toon" default:"json" help:"Output format: json or toon."`
}

func (c *cmdGet) Run(e *env) error {
	l, err := loaders.NewPckLoader(c.Path, e.pckOptions())
	if err != nil {
		return err
	}
	if err = l.Open(); err != nil {
		return err
	}
	defer l.Close()
	for _, k := range c.Keys {
		var v any
		if g, ok := strings.CutSuffix(k, "/"); ok {
			v, err = l.GetByGroup(g)
		} else {
			v, err = l.Get(k)
		}
		if err != nil {
			return err
		}
		d, err := formatValue(v, c.Format, e.conf.SortKeys, e.color)
		if err != nil {
			return fmt.Errorf("can't format '%s': %w", k, err)
		}
		if len(c.Keys) > 1 {
			fmt.Fprintf(e.stdout, "%s:\n", k)
		}
		if _, err = e.stdout.Write(d); err != nil {
			return err
		}
	}
	return nil
}

type cmdSlim struct {
	Src       string `arg:"" help:"Source .jsonl or .jsonz store."`
	Dst       string `arg:"" help:"Destination. A .jsonl.gz destination is compressed."`
	Overwrite bool   `help:"Overwrite existing destination."`
	Recompact bool   `help:"Re-encode records instead of copying them (.jsonl only)."`
}

func (c *cmdSlim) Run(e *env) error {
	if err := checkExists(c.Src); err != nil {
		return err
	}
	switch {
	case isJsonl(c.Src):
		s, err := logstore.Open(c.Src, e.logstoreOptions())
		if err != nil {
			return err
		}
		return s.Slim(c.Dst, logstore.SlimOptions{Overwrite: c.Overwrite, Recompact: c.Recompact})
	case isJsonz(c.Src):
		s, err := zipstore.Open(c.Src, e.zipstoreOptions())
		if err != nil {
			return err
		}
		return s.Slim(c.Dst, c.Overwrite)
	}
	return fmt.Errorf("%w: '%s' is not a .jsonl or .jsonz store", pck.ErrFormat, c.Src)
}

type cmdFinalize struct {
	Src       string `arg:"" help:"Source .jsonl or .jsonz store."`
	Dst       string `arg:"" help:"Destination. .jsonl stores get .jsonl.gz extension."`
	Overwrite bool   `help:"Overwrite existing destination."`
}

func (c *cmdFinalize) Run(e *env) error {
	if err := checkExists(c.Src); err != nil {
		return err
	}
	switch {
	case isJsonl(c.Src):
		s, err := logstore.Open(c.Src, e.logstoreOptions())
		if err != nil {
			return err
		}
		path, err := s.Finalize(c.Dst, c.Overwrite)
		if err != nil {
			return err
		}
		fmt.Fprintln(e.stdout, path)
		return nil
	case isJsonz(c.Src):
		s, err := zipstore.Open(c.Src, e.zipstoreOptions())
		if err != nil {
			return err
		}
		if err = s.Finalize(c.Dst, c.Overwrite); err != nil {
			return err
		}
		fmt.Fprintln(e.stdout, c.Dst)
		return nil
	}
	return fmt.Errorf("%w: '%s' is not a .jsonl or .jsonz store", pck.ErrFormat, c.Src)
}

type cmdImport struct {
	Src      string `arg:"" help:"Source .jsonl store."`
	Dst      string `arg:"" help:"Destination .jsonz store, created if missing."`
	ReEncode bool   `name:"reencode" help:"Decode and encode records instead of copying them."`
}

func (c *cmdImport) Run(e *env) error {
	if err := checkExists(c.Src); err != nil {
		return err
	}
	if !isJsonl(c.Src) || !isJsonz(c.Dst) {
		return fmt.Errorf("%w: import needs a .jsonl source and a .jsonz destination", pck.ErrFormat)
	}
	src, err := logstore.Open(c.Src, e.logstoreOptions())
	if err != nil {
		return err
	}
	dst, err := zipstore.Open(c.Dst, e.zipstoreOptions())
	if err != nil {
		return err
	}
	e.logger.Info("importing", "src", c.Src, "dst", c.Dst, "records", len(src.KeysWithoutBackup()))
	return dst.BulkImport(src, c.ReEncode)
}

type cmdConvert struct {
	Src string `arg:"" help:"Source pck file."`
	Dst string `arg:"" help:"Destination: .npz, .bolt, .jsonl or .jsonz file."`
}

func (c *cmdConvert) Run(e *env) error {
	l, err := loaders.NewPckLoader(c.Src, e.pckOptions())
	if err != nil {
		return err
	}
	s, err := savers.NewPckSaver(c.Dst, &savers.Options{Logger: e.logger})
	if err != nil {
		return err
	}
	if err = savers.Convert(l, s); err != nil {
		return err
	}
	e.logger.Info("converted", "src", c.Src, "dst", s.Path(), "keys", len(l.Keys()))
	return nil
}
