package logstore

import (
	"bufio"
	"io"
	"path/filepath"
	"strings"

	"github.com/kjk/pckstore/atomicfile"
	"github.com/kjk/pckstore/pck"
	"github.com/kjk/pckstore/u"
)

// SlimOptions configures Slim
type SlimOptions struct {
	// Overwrite allows replacing an existing file
	Overwrite bool
	// Recompact re-encodes records in compact form instead of copying them
	Recompact bool
}

// Slim writes a new store at outPath without backup records.
// The output is gzip-compressed (and read-only) if outPath ends in
// .jsonl.gz or .jsonl-gz. The store itself is not modified.
func (s *Store) Slim(outPath string, opts SlimOptions) error {
	if err := pck.CheckWritable(outPath, opts.Overwrite); err != nil {
		s.logger.Error("can't write slim store", "path", outPath, "error", err)
		return err
	}
	keys := s.KeysWithoutBackup()
	recompactOpts := pck.EncodeOptions{SortKeys: s.opts.SortKeys, Compact: true}

	return atomicfile.WriteFile(outPath, func(w io.Writer) error {
		var gw io.WriteCloser
		if hasCompressedExt(outPath) {
			gw = u.NewGzipWriter(w)
			w = gw
		}
		bw := bufio.NewWriterSize(w, 64*1024)

		index := make(map[string]Entry, len(keys))
		var offset, count int64
		err := s.forEachRawLine(keys, func(i int, line []byte) error {
			if opts.Recompact {
				v, err := pck.Decode(line)
				if err != nil {
					return err
				}
				if line, err = pck.Encode(v, recompactOpts); err != nil {
					return err
				}
				line = append(line, '\n')
			}
			if _, err := bw.Write(line); err != nil {
				return err
			}
			count++
			index[keys[i]] = Entry{Offset: offset, Seq: count}
			offset += int64(len(line))
			return nil
		})
		if err != nil {
			return err
		}
		indexLine, err := s.encodeIndex(index, count)
		if err != nil {
			return err
		}
		if _, err = bw.Write(append(indexLine, '\n')); err != nil {
			return err
		}
		if err = bw.Flush(); err != nil {
			return err
		}
		if gw != nil {
			return gw.Close()
		}
		return nil
	})
}

// FinalPath returns outPath with the extension changed to .jsonl.gz,
// unless it already ends in .jsonl.gz or .jsonl-gz
func FinalPath(outPath string) string {
	if hasCompressedExt(outPath) {
		return outPath
	}
	name := strings.TrimSuffix(outPath, ".gz")
	name = strings.TrimSuffix(name, filepath.Ext(name))
	return name + ".jsonl.gz"
}

// Finalize writes a compacted, gzip-compressed copy of the store.
// Returns the path of the written file, which has .jsonl.gz extension.
func (s *Store) Finalize(outPath string, overwrite bool) (string, error) {
	finalPath := FinalPath(outPath)
	if finalPath != outPath {
		s.logger.Warn("changed extension", "from", outPath, "to", finalPath)
	}
	opts := SlimOptions{
		Overwrite: overwrite,
		Recompact: true,
	}
	return finalPath, s.Slim(finalPath, opts)
}
