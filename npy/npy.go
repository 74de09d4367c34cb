package npy

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/kjk/pckstore/pck"
)

const (
	magic = "\x93NUMPY"

	descrFloat = "<f8"
	descrInt   = "<i8"
	descrBool  = "|b1"

	// header is padded so that data starts at a multiple of this
	headerAlign = 64
)

var (
	reDescr   = regexp.MustCompile(`'descr':\s*'([^']*)'`)
	reFortran = regexp.MustCompile(`'fortran_order':\s*(True|False)`)
	reShape   = regexp.MustCompile(`'shape':\s*\(([^)]*)\)`)
)

func formatShape(shape []int) string {
	switch len(shape) {
	case 0:
		return "()"
	case 1:
		return fmt.Sprintf("(%d,)", shape[0])
	}
	parts := make([]string, len(shape))
	for i, n := range shape {
		parts[i] = strconv.Itoa(n)
	}
	return "(" + strings.Join(parts, ", ") + ")"
}

func writeHeader(w io.Writer, descr string, shape []int) error {
	dict := fmt.Sprintf("{'descr': '%s', 'fortran_order': False, 'shape': %s, }", descr, formatShape(shape))
	// magic + version + header length
	prefixLen := len(magic) + 2 + 2
	total := prefixLen + len(dict) + 1
	pad := (headerAlign - total%headerAlign) % headerAlign
	hdr := dict + strings.Repeat(" ", pad) + "\n"
	if len(hdr) > math.MaxUint16 {
		return fmt.Errorf("%w: npy header too long", pck.ErrFormat)
	}

	var buf bytes.Buffer
	buf.WriteString(magic)
	buf.Write([]byte{1, 0})
	_ = binary.Write(&buf, binary.LittleEndian, uint16(len(hdr)))
	buf.WriteString(hdr)
	_, err := w.Write(buf.Bytes())
	return err
}

func writeFloats(w io.Writer, shape []int, d []float64) error {
	if err := writeHeader(w, descrFloat, shape); err != nil {
		return err
	}
	return binary.Write(w, binary.LittleEndian, d)
}

func writeInts(w io.Writer, shape []int, d []int64) error {
	if err := writeHeader(w, descrInt, shape); err != nil {
		return err
	}
	return binary.Write(w, binary.LittleEndian, d)
}

func writeBools(w io.Writer, shape []int, d []bool) error {
	if err := writeHeader(w, descrBool, shape); err != nil {
		return err
	}
	return binary.Write(w, binary.LittleEndian, d)
}

// strings are fixed-size, UTF-32 encoded
func writeStrings(w io.Writer, shape []int, d []string) error {
	n := 1
	for _, s := range d {
		n = max(n, utf8.RuneCountInString(s))
	}
	if err := writeHeader(w, "<U"+strconv.Itoa(n), shape); err != nil {
		return err
	}
	buf := make([]uint32, n)
	for _, s := range d {
		clear(buf)
		i := 0
		for _, r := range s {
			buf[i] = uint32(r)
			i++
		}
		if err := binary.Write(w, binary.LittleEndian, buf); err != nil {
			return err
		}
	}
	return nil
}

func intsToInt64(d []int) []int64 {
	res := make([]int64, len(d))
	for i, v := range d {
		res[i] = int64(v)
	}
	return res
}

// Write writes v in .npy format. Supported are float64, int, int64, bool
// and string values, slices of them and *pck.Array.
func Write(w io.Writer, v any) error {
	switch x := v.(type) {
	case float64:
		return writeFloats(w, nil, []float64{x})
	case float32:
		return writeFloats(w, nil, []float64{float64(x)})
	case int64:
		return writeInts(w, nil, []int64{x})
	case int:
		return writeInts(w, nil, []int64{int64(x)})
	case bool:
		return writeBools(w, nil, []bool{x})
	case string:
		return writeStrings(w, nil, []string{x})
	case []float64:
		return writeFloats(w, []int{len(x)}, x)
	case []int64:
		return writeInts(w, []int{len(x)}, x)
	case []int:
		return writeInts(w, []int{len(x)}, intsToInt64(x))
	case []bool:
		return writeBools(w, []int{len(x)}, x)
	case []string:
		return writeStrings(w, []int{len(x)}, x)
	case *pck.Array:
		if err := x.Validate(); err != nil {
			return err
		}
		if !x.IsInt() {
			return writeFloats(w, x.Shape, x.Data)
		}
		d := make([]int64, len(x.Data))
		for i, f := range x.Data {
			d[i] = int64(f)
		}
		return writeInts(w, x.Shape, d)
	}
	if a, ok := pck.AsArray(v); ok {
		return Write(w, a)
	}
	return fmt.Errorf("%w: can't store %T as npy", pck.ErrFormat, v)
}

type header struct {
	descr string
	shape []int
}

func (h *header) size() int {
	n := 1
	for _, d := range h.shape {
		n *= d
	}
	return n
}

func readHeader(r io.Reader) (*header, error) {
	var pre [8]byte
	if _, err := io.ReadFull(r, pre[:]); err != nil {
		return nil, fmt.Errorf("%w: npy: %s", pck.ErrFormat, err)
	}
	if string(pre[:6]) != magic {
		return nil, fmt.Errorf("%w: not a npy file", pck.ErrFormat)
	}
	var hlen int
	switch pre[6] {
	case 1:
		var n uint16
		if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
			return nil, fmt.Errorf("%w: npy: %s", pck.ErrFormat, err)
		}
		hlen = int(n)
	case 2, 3:
		var n uint32
		if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
			return nil, fmt.Errorf("%w: npy: %s", pck.ErrFormat, err)
		}
		hlen = int(n)
	default:
		return nil, fmt.Errorf("%w: unsupported npy version %d.%d", pck.ErrFormat, pre[6], pre[7])
	}
	d := make([]byte, hlen)
	if _, err := io.ReadFull(r, d); err != nil {
		return nil, fmt.Errorf("%w: npy header: %s", pck.ErrFormat, err)
	}
	s := string(d)

	m := reDescr.FindStringSubmatch(s)
	if m == nil {
		return nil, fmt.Errorf("%w: npy header without descr: %s", pck.ErrFormat, s)
	}
	h := &header{descr: m[1]}
	if m = reFortran.FindStringSubmatch(s); m != nil && m[1] == "True" {
		return nil, fmt.Errorf("%w: fortran order npy is not supported", pck.ErrFormat)
	}
	m = reShape.FindStringSubmatch(s)
	if m == nil {
		return nil, fmt.Errorf("%w: npy header without shape: %s", pck.ErrFormat, s)
	}
	for _, part := range strings.Split(m[1], ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSuffix(part, "L"))
		if err != nil || n < 0 {
			return nil, fmt.Errorf("%w: invalid npy shape: %s", pck.ErrFormat, m[1])
		}
		h.shape = append(h.shape, n)
	}
	return h, nil
}

// Read reads a value written in .npy format.
// Arrays with a single element are returned as a scalar
// (float64, int64, bool or string). Numeric arrays are returned as *pck.Array,
// other arrays as []bool or []string.
func Read(r io.Reader) (any, error) {
	h, err := readHeader(r)
	if err != nil {
		return nil, err
	}
	n := h.size()
	readErr := func(err error) error {
		return fmt.Errorf("%w: npy data: %s", pck.ErrFormat, err)
	}
	switch {
	case h.descr == descrFloat:
		d := make([]float64, n)
		if err = binary.Read(r, binary.LittleEndian, d); err != nil {
			return nil, readErr(err)
		}
		if n == 1 {
			return d[0], nil
		}
		return &pck.Array{Shape: h.shape, Data: d, DType: pck.DTypeFloat}, nil
	case h.descr == descrInt:
		d := make([]int64, n)
		if err = binary.Read(r, binary.LittleEndian, d); err != nil {
			return nil, readErr(err)
		}
		if n == 1 {
			return d[0], nil
		}
		return pck.NewIntArray(d, h.shape...), nil
	case h.descr == descrBool:
		d := make([]bool, n)
		if err = binary.Read(r, binary.LittleEndian, d); err != nil {
			return nil, readErr(err)
		}
		if n == 1 {
			return d[0], nil
		}
		return d, nil
	case strings.HasPrefix(h.descr, "<U"):
		size, err := strconv.Atoi(h.descr[2:])
		if err != nil || size <= 0 {
			return nil, fmt.Errorf("%w: invalid npy descr '%s'", pck.ErrFormat, h.descr)
		}
		res := make([]string, n)
		buf := make([]uint32, size)
		for i := range res {
			if err = binary.Read(r, binary.LittleEndian, buf); err != nil {
				return nil, readErr(err)
			}
			var sb strings.Builder
			for _, c := range buf {
				if c == 0 {
					break
				}
				sb.WriteRune(rune(c))
			}
			res[i] = sb.String()
		}
		if n == 1 {
			return res[0], nil
		}
		return res, nil
	}
	return nil, fmt.Errorf("%w: unsupported npy descr '%s'", pck.ErrFormat, h.descr)
}
