package pck

import (
	"fmt"
)

const (
	// DTypeFloat is the element type of float64 arrays
	DTypeFloat = "f8"
	// DTypeInt is the element type of int64 arrays (stored as float64)
	DTypeInt = "i8"
)

// Array is a dense n-dimensional numeric array in row-major (C) order.
// A nil or empty Shape means a scalar with one element in Data.
type Array struct {
	Shape []int
	Data  []float64
	// DType is DTypeFloat or DTypeInt. Empty means DTypeFloat.
	DType string
}

// NewArray creates a float array. No shape means 1-dimensional.
func NewArray(data []float64, shape ...int) *Array {
	if len(shape) == 0 {
		shape = []int{len(data)}
	}
	return &Array{Shape: shape, Data: data, DType: DTypeFloat}
}

// NewIntArray creates an integer array. No shape means 1-dimensional.
func NewIntArray(data []int64, shape ...int) *Array {
	if len(shape) == 0 {
		shape = []int{len(data)}
	}
	d := make([]float64, len(data))
	for i, v := range data {
		d[i] = float64(v)
	}
	return &Array{Shape: shape, Data: d, DType: DTypeInt}
}

// IsInt returns true if elements are integers
func (a *Array) IsInt() bool {
	return a.DType == DTypeInt
}

// Size returns number of elements as implied by Shape
func (a *Array) Size() int {
	n := 1
	for _, d := range a.Shape {
		n *= d
	}
	return n
}

// Validate checks that Data matches Shape
func (a *Array) Validate() error {
	if a.Size() != len(a.Data) {
		return fmt.Errorf("%w: array shape %v needs %d elements, has %d", ErrFormat, a.Shape, a.Size(), len(a.Data))
	}
	return nil
}

func (a *Array) elem(i int) any {
	if a.IsInt() {
		return int64(a.Data[i])
	}
	return a.Data[i]
}

// Nested returns the array as nested []any lists, or a scalar for 0-d arrays
func (a *Array) Nested() any {
	if len(a.Shape) == 0 {
		if len(a.Data) == 0 {
			return nil
		}
		return a.elem(0)
	}
	pos := 0
	var build func(dim int) []any
	build = func(dim int) []any {
		n := a.Shape[dim]
		res := make([]any, n)
		for i := 0; i < n; i++ {
			if dim == len(a.Shape)-1 {
				if pos < len(a.Data) {
					res[i] = a.elem(pos)
				}
				pos++
			} else {
				res[i] = build(dim + 1)
			}
		}
		return res
	}
	return build(0)
}

// MarshalJSON lets arrays nested in arbitrary structs encode as lists
func (a *Array) MarshalJSON() ([]byte, error) {
	if err := a.Validate(); err != nil {
		return nil, err
	}
	return Encode(a.Nested(), EncodeOptions{Compact: true})
}

func toFloat(v any) (float64, bool, bool) {
	switch x := v.(type) {
	case int64:
		return float64(x), true, true
	case int:
		return float64(x), true, true
	case int32:
		return float64(x), true, true
	case float64:
		return x, false, true
	case float32:
		return float64(x), false, true
	}
	return 0, false, false
}

// AsArray converts a rectangular, non-empty list of numbers (possibly nested)
// into an Array. Typed numeric slices are accepted too.
func AsArray(v any) (*Array, bool) {
	switch x := v.(type) {
	case *Array:
		return x, x != nil
	case []float64:
		if len(x) == 0 {
			return nil, false
		}
		return NewArray(append([]float64(nil), x...)), true
	case []int64:
		if len(x) == 0 {
			return nil, false
		}
		return NewIntArray(x), true
	case []int:
		if len(x) == 0 {
			return nil, false
		}
		d := make([]int64, len(x))
		for i, n := range x {
			d[i] = int64(n)
		}
		return NewIntArray(d), true
	case []any:
	default:
		return nil, false
	}

	var shape []int
	for cur := v; ; {
		l, ok := cur.([]any)
		if !ok {
			break
		}
		if len(l) == 0 {
			return nil, false
		}
		shape = append(shape, len(l))
		cur = l[0]
	}

	a := &Array{Shape: shape, DType: DTypeInt}
	var walk func(cur any, dim int) bool
	walk = func(cur any, dim int) bool {
		if dim == len(shape) {
			f, isInt, ok := toFloat(cur)
			if !ok {
				return false
			}
			if !isInt {
				a.DType = DTypeFloat
			}
			a.Data = append(a.Data, f)
			return true
		}
		l, ok := cur.([]any)
		if !ok || len(l) != shape[dim] {
			return false
		}
		for _, el := range l {
			if !walk(el, dim+1) {
				return false
			}
		}
		return true
	}
	if !walk(v, 0) {
		return nil, false
	}
	return a, true
}
