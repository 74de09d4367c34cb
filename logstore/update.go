package logstore

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/kjk/pckstore/pck"
)

// Update appends records in sorted key order.
// See UpdateOrdered.
func (s *Store) Update(records map[string]any) error {
	keys := make([]string, 0, len(records))
	for k := range records {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return s.UpdateOrdered(keys, records)
}

// UpdateOrdered appends records for keys, in that order, and rewrites the index.
// A key that already exists keeps its old record under "<key>-backup-<n>".
// Records that can't be encoded are logged and skipped.
// Compressed stores return pck.ErrReadOnly and are not modified.
func (s *Store) UpdateOrdered(keys []string, records map[string]any) (err error) {
	if s.isCompressed {
		s.logger.Error("can't update compressed store", "path", s.path)
		return fmt.Errorf("%w: %s", pck.ErrReadOnly, s.path)
	}

	f, err := os.OpenFile(s.path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return fmt.Errorf("%w: %s", pck.ErrPathAccess, err)
	}
	defer func() {
		errClose := f.Close()
		if err == nil {
			err = errClose
		}
	}()

	// the index line is overwritten by new records
	if err = f.Truncate(s.writeCursor); err != nil {
		return err
	}
	if _, err = f.Seek(s.writeCursor, io.SeekStart); err != nil {
		return err
	}

	index := s.Index()
	count := s.recordCount
	offset := s.writeCursor
	w := bufio.NewWriterSize(f, 64*1024)
	var updated []string
	for _, key := range keys {
		v, ok := records[key]
		if !ok {
			continue
		}
		line, err := pck.Encode(v, s.encodeOptions())
		if err != nil {
			s.logger.Error("failed to encode record", "path", s.path, "key", key, "error", err)
			continue
		}
		line = append(line, '\n')
		if _, err = w.Write(line); err != nil {
			s.restoreIndex(f)
			return err
		}
		if old, ok := index[key]; ok {
			backup := freeBackupKey(index, key)
			s.logger.Debug("backup record", "key", key, "backup", backup)
			index[backup] = old
		}
		count++
		index[key] = Entry{Offset: offset, Seq: count}
		offset += int64(len(line))
		updated = append(updated, key)
	}

	indexLine, err := s.encodeIndex(index, count)
	if err == nil {
		_, err = w.Write(append(indexLine, '\n'))
	}
	if err == nil {
		err = w.Flush()
	}
	if err != nil {
		s.restoreIndex(f)
		return err
	}

	s.index = index
	s.recordCount = count
	s.writeCursor = offset
	for _, k := range updated {
		delete(s.cache, k)
	}
	return nil
}

// freeBackupKey returns "<key>-backup-<n>" with the smallest n not in index.
// When all are taken, the last one is reused.
func freeBackupKey(index map[string]Entry, key string) string {
	var backup string
	for i := 0; i < pck.MaxBackups; i++ {
		backup = pck.BackupKey(key, i)
		if _, ok := index[backup]; !ok {
			break
		}
	}
	return backup
}

// restoreIndex puts back the index line after a failed update so that
// the file stays readable
func (s *Store) restoreIndex(f *os.File) {
	if s.writeCursor == 0 && len(s.index) == 0 {
		_ = f.Truncate(0)
		return
	}
	line, err := s.encodeIndex(s.index, s.recordCount)
	if err != nil {
		return
	}
	if err = f.Truncate(s.writeCursor); err != nil {
		return
	}
	_, _ = f.WriteAt(append(line, '\n'), s.writeCursor)
}
