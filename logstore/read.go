package logstore

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/kjk/pckstore/pck"
	"github.com/klauspost/compress/gzip"
)

// forEachRawLine calls fn with the line (including '\n') of every key.
// keys must be in the index.
// Uncompressed files are read in the order of keys, seeking to each line.
// Compressed files are read in a single forward pass, in the order of offsets.
func (s *Store) forEachRawLine(keys []string, fn func(i int, line []byte) error) error {
	if len(keys) == 0 {
		return nil
	}
	f, err := os.Open(s.path)
	if err != nil {
		return fmt.Errorf("%w: %s", pck.ErrPathAccess, err)
	}
	defer f.Close()

	if !s.isCompressed {
		br := bufio.NewReaderSize(f, 64*1024)
		for i, k := range keys {
			off := s.index[k].Offset
			if _, err = f.Seek(off, io.SeekStart); err != nil {
				return fmt.Errorf("failed to seek to offset %d: %w", off, err)
			}
			br.Reset(f)
			line, err := readLine(br)
			if err != nil {
				return fmt.Errorf("failed to read record '%s' at offset %d: %w", k, off, err)
			}
			if err = fn(i, line); err != nil {
				return err
			}
		}
		return nil
	}

	order := make([]int, len(keys))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return s.index[keys[order[a]]].Offset < s.index[keys[order[b]]].Offset
	})

	gr, err := gzip.NewReader(bufio.NewReader(f))
	if err != nil {
		return fmt.Errorf("%w: %s", pck.ErrFormat, err)
	}
	defer gr.Close()
	br := bufio.NewReaderSize(gr, 64*1024)
	var pos int64
	lastOff := int64(-1)
	var line []byte
	for _, i := range order {
		k := keys[i]
		off := s.index[k].Offset
		if off != lastOff {
			if off < pos {
				return fmt.Errorf("%w: offset %d of '%s' is inside the previous record", pck.ErrFormat, off, k)
			}
			if _, err = io.CopyN(io.Discard, br, off-pos); err != nil {
				return fmt.Errorf("failed to skip to offset %d: %w", off, err)
			}
			line, err = readLine(br)
			if err != nil {
				return fmt.Errorf("failed to read record '%s' at offset %d: %w", k, off, err)
			}
			pos = off + int64(len(line))
			lastOff = off
		}
		if err = fn(i, line); err != nil {
			return err
		}
	}
	return nil
}

func readLine(br *bufio.Reader) ([]byte, error) {
	line, err := br.ReadBytes('\n')
	if err == io.EOF && len(line) > 0 {
		err = nil
	}
	return line, err
}

// GetRawRecords returns encoded records without the trailing newline.
// Absent keys get nil.
func (s *Store) GetRawRecords(keys ...string) ([][]byte, error) {
	res := make([][]byte, len(keys))
	var todo []string
	var todoIdx []int
	for i, k := range keys {
		if _, ok := s.index[k]; ok {
			todo = append(todo, k)
			todoIdx = append(todoIdx, i)
		}
	}
	err := s.forEachRawLine(todo, func(i int, line []byte) error {
		res[todoIdx[i]] = bytes.TrimRight(line, "\r\n")
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// GetRecords returns decoded records for keys, in the same order.
// Absent keys get nil.
func (s *Store) GetRecords(keys ...string) ([]any, error) {
	res := make([]any, len(keys))
	var todo []string
	var todoIdx []int
	for i, k := range keys {
		if _, ok := s.index[k]; !ok {
			continue
		}
		if v, ok := s.cache[k]; ok {
			res[i] = v
			continue
		}
		todo = append(todo, k)
		todoIdx = append(todoIdx, i)
	}
	err := s.forEachRawLine(todo, func(i int, line []byte) error {
		k := todo[i]
		v, err := pck.Decode(line)
		if err != nil {
			return fmt.Errorf("%w: record '%s' in '%s': %s", pck.ErrFormat, k, s.path, err)
		}
		res[todoIdx[i]] = v
		if s.opts.CacheOn {
			s.cache[k] = v
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// GetRecord returns decoded record for key or pck.ErrKeyNotFound
func (s *Store) GetRecord(key string) (any, error) {
	if !s.Has(key) {
		return nil, fmt.Errorf("%w: '%s' in '%s'", pck.ErrKeyNotFound, key, s.path)
	}
	res, err := s.GetRecords(key)
	if err != nil {
		return nil, err
	}
	return res[0], nil
}
