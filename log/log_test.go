package log

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alecthomas/assert"
)

func TestNew(t *testing.T) {
	var buf bytes.Buffer
	l := New(slog.LevelInfo, &buf)
	l.Debug("hidden")
	l.Warn("update failed", "key", "x", "empty", "")
	s := buf.String()
	assert.False(t, strings.Contains(s, "hidden"))
	assert.True(t, strings.Contains(s, "update failed"))
	assert.True(t, strings.Contains(s, "key=x"))
	assert.False(t, strings.Contains(s, "empty="))
	// not a terminal so no escape codes
	assert.False(t, strings.Contains(s, "\x1b["))
}

func TestParseLevel(t *testing.T) {
	l, err := ParseLevel("warn")
	assert.NoError(t, err)
	assert.Equal(t, slog.LevelWarn, l)
	_, err = ParseLevel("loud")
	assert.Error(t, err)
}

func TestOrDiscard(t *testing.T) {
	assert.Equal(t, Discard(), OrDiscard(nil))
	l := New(slog.LevelInfo, &bytes.Buffer{})
	assert.Equal(t, l, OrDiscard(l))
	assert.False(t, Discard().Enabled(context.Background(), slog.LevelError))
}

func TestWriteDaily(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs")
	l, wd := NewWithDir(slog.LevelInfo, dir)
	l.Info("hello", "path", "a.jsonl")
	assert.NoError(t, wd.Close())

	name := time.Now().UTC().Format("2006-01-02") + ".txt"
	d, err := os.ReadFile(filepath.Join(dir, name))
	assert.NoError(t, err)
	assert.True(t, strings.Contains(string(d), "hello"))
	assert.True(t, strings.Contains(string(d), "path=a.jsonl"))

	// nil is a no-op
	var nilWd *WriteDaily
	n, err := nilWd.Write([]byte("x"))
	assert.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.NoError(t, nilWd.Close())
}
