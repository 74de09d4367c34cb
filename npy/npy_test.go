package npy

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/alecthomas/assert"
	"github.com/kjk/pckstore/pck"
)

func roundtrip(t *testing.T, v any) any {
	var buf bytes.Buffer
	assert.NoError(t, Write(&buf, v))
	got, err := Read(&buf)
	assert.NoError(t, err)
	assert.Equal(t, 0, buf.Len())
	return got
}

func TestScalars(t *testing.T) {
	assert.Equal(t, 2.5, roundtrip(t, 2.5))
	assert.Equal(t, int64(-3), roundtrip(t, int64(-3)))
	assert.Equal(t, int64(7), roundtrip(t, 7))
	assert.Equal(t, true, roundtrip(t, true))
	assert.Equal(t, "zażółć", roundtrip(t, "zażółć"))
	assert.Equal(t, "", roundtrip(t, ""))
	// single element arrays become scalars
	assert.Equal(t, 1.5, roundtrip(t, []float64{1.5}))
}

func TestArrays(t *testing.T) {
	a := pck.NewArray([]float64{1, 2, 3, 4, 5, 6}, 2, 3)
	assert.Equal(t, a, roundtrip(t, a))

	ia := pck.NewIntArray([]int64{1, 2, 3})
	assert.Equal(t, ia, roundtrip(t, ia))
	assert.Equal(t, ia, roundtrip(t, []int{1, 2, 3}))
	assert.Equal(t, pck.NewArray([]float64{0.5, 1}), roundtrip(t, []float64{0.5, 1}))

	assert.Equal(t, []bool{true, false}, roundtrip(t, []bool{true, false}))
	assert.Equal(t, []string{"a", "bcd", ""}, roundtrip(t, []string{"a", "bcd", ""}))

	nested := []any{[]any{int64(1), int64(2)}, []any{int64(3), int64(4)}}
	assert.Equal(t, pck.NewIntArray([]int64{1, 2, 3, 4}, 2, 2), roundtrip(t, nested))
}

func TestHeader(t *testing.T) {
	var buf bytes.Buffer
	assert.NoError(t, Write(&buf, []float64{1, 2, 3}))
	d := buf.Bytes()
	assert.Equal(t, magic, string(d[:6]))
	assert.Equal(t, byte(1), d[6])
	hlen := int(d[8]) | int(d[9])<<8
	assert.Equal(t, 0, (10+hlen)%64)
	hdr := string(d[10 : 10+hlen])
	assert.Equal(t, "{'descr': '<f8', 'fortran_order': False, 'shape': (3,), }", strings.TrimRight(hdr, " \n"))
	assert.Equal(t, byte('\n'), hdr[len(hdr)-1])
	assert.Equal(t, 10+hlen+3*8, len(d))
}

func TestFormatShape(t *testing.T) {
	assert.Equal(t, "()", formatShape(nil))
	assert.Equal(t, "(3,)", formatShape([]int{3}))
	assert.Equal(t, "(2, 3)", formatShape([]int{2, 3}))
}

func TestErrors(t *testing.T) {
	var buf bytes.Buffer
	err := Write(&buf, map[string]any{"a": 1})
	assert.True(t, errors.Is(err, pck.ErrFormat))
	err = Write(&buf, &pck.Array{Shape: []int{3}, Data: []float64{1}})
	assert.True(t, errors.Is(err, pck.ErrFormat))

	_, err = Read(bytes.NewReader([]byte("not npy at all")))
	assert.True(t, errors.Is(err, pck.ErrFormat))

	// truncated data
	buf.Reset()
	assert.NoError(t, Write(&buf, []float64{1, 2, 3}))
	d := buf.Bytes()
	_, err = Read(bytes.NewReader(d[:len(d)-4]))
	assert.True(t, errors.Is(err, pck.ErrFormat))

	buf.Reset()
	assert.NoError(t, writeHeader(&buf, "<c16", []int{2}))
	_, err = Read(&buf)
	assert.True(t, errors.Is(err, pck.ErrFormat))
}
