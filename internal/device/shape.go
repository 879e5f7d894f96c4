package device

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Shape is the ordered list of dimension sizes. An empty shape is a scalar.
type Shape []int

// NumElements returns the product of the dimensions (1 for a scalar).
func (s Shape) NumElements() int {
	n := 1
	for _, d := range s {
		n *= d
	}
	return n
}

// Rank returns the number of dimensions.
func (s Shape) Rank() int { return len(s) }

// Equal reports whether both shapes have identical dimensions.
func (s Shape) Equal(other Shape) bool {
	if len(s) != len(other) {
		return false
	}
	for i := range s {
		if s[i] != other[i] {
			return false
		}
	}
	return true
}

// Validate rejects negative dimensions and shapes whose element count does
// not fit in an int.
func (s Shape) Validate() error {
	empty := false
	for i, d := range s {
		if d < 0 {
			return fmt.Errorf("shape %v: negative dimension %d at axis %d", []int(s), d, i)
		}
		if d == 0 {
			empty = true
		}
	}
	if empty {
		return nil
	}
	n := 1
	for _, d := range s {
		if n > math.MaxInt/d {
			return fmt.Errorf("shape %v: element count overflows int", []int(s))
		}
		n *= d
	}
	return nil
}

// Clone returns an independent copy.
func (s Shape) Clone() Shape {
	if s == nil {
		return Shape{}
	}
	out := make(Shape, len(s))
	copy(out, s)
	return out
}

func (s Shape) String() string {
	return fmt.Sprint([]int(s))
}

// Encode renders the shape as comma separated dimensions ("2,2"; "" for a scalar).
func (s Shape) Encode() string {
	parts := make([]string, len(s))
	for i, d := range s {
		parts[i] = strconv.Itoa(d)
	}
	return strings.Join(parts, ",")
}

// ParseShape is the inverse of Shape.Encode. It also accepts "2x2".
func ParseShape(str string) (Shape, error) {
	str = strings.TrimSpace(str)
	if str == "" {
		return Shape{}, nil
	}
	sep := ","
	if strings.Contains(str, "x") {
		sep = "x"
	}
	fields := strings.Split(str, sep)
	out := make(Shape, len(fields))
	for i, f := range fields {
		d, err := strconv.Atoi(strings.TrimSpace(f))
		if err != nil {
			return nil, fmt.Errorf("parse shape %q: %w", str, err)
		}
		out[i] = d
	}
	if err := out.Validate(); err != nil {
		return nil, err
	}
	return out, nil
}
