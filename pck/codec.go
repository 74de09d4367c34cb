package pck

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"reflect"
	"strconv"
	"strings"

	gojson "github.com/goccy/go-json"
	"github.com/tidwall/pretty"
)

const (
	bytesTagPrefix = "base64("
	bytesTagSuffix = ")64b"
)

// EncodeOptions controls the text produced by Encode.
// Decoding is not affected by them.
type EncodeOptions struct {
	// SortKeys sorts object keys at every level, including objects
	// produced from structs
	SortKeys bool
	// Compact removes whitespace between tokens. Otherwise ", " and ": "
	// are used as separators. Output is always a single line.
	Compact bool
}

// TagBytes returns the string form of d stored in JSON
func TagBytes(d []byte) string {
	return bytesTagPrefix + base64.StdEncoding.EncodeToString(d) + bytesTagSuffix
}

// GuessBytes reverses TagBytes. Strings that don't match the tag
// are returned unchanged.
func GuessBytes(s string) any {
	if !strings.HasPrefix(s, bytesTagPrefix) || !strings.HasSuffix(s, bytesTagSuffix) {
		return s
	}
	if len(s) < len(bytesTagPrefix)+len(bytesTagSuffix) {
		return s
	}
	body := s[len(bytesTagPrefix) : len(s)-len(bytesTagSuffix)]
	d, err := base64.StdEncoding.DecodeString(body)
	if err != nil {
		return s
	}
	return d
}

// floatNumber formats f so that it always reads back as a float:
// 2.0 is written as "2.0", not "2"
func floatNumber(f float64, bitSize int) gojson.Number {
	s := strconv.FormatFloat(f, 'g', -1, bitSize)
	if !strings.ContainsAny(s, ".eEIN") {
		s += ".0"
	}
	return gojson.Number(s)
}

// lower converts values JSON can't represent ([]byte, *Array) into
// values it can. Floats are written with a fraction or exponent.
// Maps and slices are copied only when needed.
func lower(v any) any {
	switch x := v.(type) {
	case nil, string, bool, int, int64, int32, uint, uint64,
		[]int64, []int, []string, []bool:
		return v
	case float64:
		return floatNumber(x, 64)
	case float32:
		return floatNumber(float64(x), 32)
	case []float64:
		res := make([]any, len(x))
		for i, f := range x {
			res[i] = floatNumber(f, 64)
		}
		return res
	case []byte:
		return TagBytes(x)
	case *Array:
		if x == nil {
			return nil
		}
		return lower(x.Nested())
	case Array:
		return lower(x.Nested())
	case map[string]any:
		res := make(map[string]any, len(x))
		for k, el := range x {
			res[k] = lower(el)
		}
		return res
	case []any:
		res := make([]any, len(x))
		for i, el := range x {
			res[i] = lower(el)
		}
		return res
	}
	return lowerReflect(v)
}

// lowerReflect handles named float types and typed containers like
// map[string][]byte, [][]byte or map[string]float64
func lowerReflect(v any) any {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Float32:
		return floatNumber(rv.Float(), 32)
	case reflect.Float64:
		return floatNumber(rv.Float(), 64)
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return v
		}
		res := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			res[iter.Key().String()] = lower(iter.Value().Interface())
		}
		return res
	case reflect.Slice, reflect.Array:
		switch rv.Type().Elem().Kind() {
		case reflect.Interface, reflect.Map, reflect.Slice, reflect.Array, reflect.Ptr,
			reflect.Float32, reflect.Float64:
		default:
			return v
		}
		n := rv.Len()
		res := make([]any, n)
		for i := 0; i < n; i++ {
			res[i] = lower(rv.Index(i).Interface())
		}
		return res
	}
	return v
}

// Encode serializes a record to a single line of JSON (without trailing newline)
func Encode(v any, opts EncodeOptions) ([]byte, error) {
	var buf bytes.Buffer
	enc := gojson.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(lower(v)); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrSerialization, err)
	}
	d := bytes.TrimRight(buf.Bytes(), "\n")
	if opts.SortKeys {
		d = pretty.Ugly(pretty.PrettyOptions(d, &pretty.Options{SortKeys: true}))
	}
	if !opts.Compact {
		d = spaceSeparators(d)
	}
	return d, nil
}

// spaceSeparators turns compact JSON into the ", " / ": " layout
func spaceSeparators(d []byte) []byte {
	res := make([]byte, 0, len(d)+len(d)/8)
	inString := false
	escaped := false
	for _, c := range d {
		res = append(res, c)
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case ',', ':':
			res = append(res, ' ')
		}
	}
	return res
}

// Decode parses a JSON record. Integers decode as int64, other numbers
// as float64 and tagged strings as []byte.
func Decode(d []byte) (any, error) {
	dec := gojson.NewDecoder(bytes.NewReader(d))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return normalize(v), nil
}

type jsonNumber interface {
	Int64() (int64, error)
	Float64() (float64, error)
	String() string
}

func normalize(v any) any {
	switch x := v.(type) {
	case string:
		return GuessBytes(x)
	case jsonNumber:
		s := x.String()
		if !strings.ContainsAny(s, ".eE") {
			if n, err := x.Int64(); err == nil {
				return n
			}
		}
		f, err := x.Float64()
		if err != nil {
			return s
		}
		return f
	case map[string]any:
		for k, el := range x {
			x[k] = normalize(el)
		}
		return x
	case []any:
		for i, el := range x {
			x[i] = normalize(el)
		}
		return x
	}
	return v
}
