package record

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"strings"
	"unicode/utf8"
)

var (
	ErrSchemaMismatch = errors.New("record: schema/values mismatch")
	ErrTypeMismatch   = errors.New("record: value does not match attribute type")
	ErrValueTooLong   = errors.New("record: value exceeds declared length")
)

// Record is one tuple: a value per attribute plus its null bitmap. size is
// the exact encoded length and is kept in sync by every mutator.
type Record struct {
	Values []any
	Nulls  []bool
	size   int
}

// New builds a record for s. Values are coerced to the canonical Go type of
// their attribute (int32, float64, bool, string); nil marks a null.
// Not-null constraints are the caller's business, not the codec's.
func New(s Schema, values []any) (*Record, error) {
	if len(values) != s.NumAttrs() {
		return nil, fmt.Errorf("%w: want %d values, got %d", ErrSchemaMismatch, s.NumAttrs(), len(values))
	}
	r := &Record{
		Values: make([]any, len(values)),
		Nulls:  make([]bool, len(values)),
	}
	for i, a := range s.Attrs {
		v, err := Coerce(a, values[i])
		if err != nil {
			return nil, err
		}
		r.Values[i] = v
		r.Nulls[i] = v == nil
	}
	r.size = computeSize(s, r)
	return r, nil
}

// Size is the number of bytes the record takes on a page.
func (r *Record) Size() int { return r.size }

func (r *Record) Len() int { return len(r.Values) }

func (r *Record) Value(i int) any { return r.Values[i] }

func (r *Record) IsNull(i int) bool { return r.Nulls[i] }

func (r *Record) Equal(o *Record) bool {
	if o == nil || len(r.Values) != len(o.Values) || r.size != o.size {
		return false
	}
	for i := range r.Values {
		if r.Nulls[i] != o.Nulls[i] {
			return false
		}
		if !r.Nulls[i] && Compare(r.Values[i], o.Values[i]) != 0 {
			return false
		}
	}
	return true
}

func (r *Record) Clone() *Record {
	return &Record{
		Values: slices.Clone(r.Values),
		Nulls:  slices.Clone(r.Nulls),
		size:   r.size,
	}
}

// AppendValue adds a trailing value for the newly added attribute a.
func (r *Record) AppendValue(a Attribute, v any) error {
	v, err := Coerce(a, v)
	if err != nil {
		return err
	}
	r.Values = append(r.Values, v)
	r.Nulls = append(r.Nulls, v == nil)
	r.size += 1 + valueSize(a, v)
	return nil
}

// RemoveValue drops the value at i; a is the attribute being removed.
func (r *Record) RemoveValue(i int, a Attribute) {
	r.size -= 1 + valueSize(a, r.Values[i])
	r.Values = append(r.Values[:i], r.Values[i+1:]...)
	r.Nulls = append(r.Nulls[:i], r.Nulls[i+1:]...)
}

func (r *Record) String() string {
	parts := make([]string, len(r.Values))
	for i, v := range r.Values {
		if r.Nulls[i] {
			parts[i] = "null"
			continue
		}
		if s, ok := v.(string); ok {
			parts[i] = fmt.Sprintf("%q", s)
			continue
		}
		parts[i] = fmt.Sprint(v)
	}
	return "(" + strings.Join(parts, ", ") + ")"
}

func computeSize(s Schema, r *Record) int {
	n := len(r.Values) // null bitmap
	for i, a := range s.Attrs {
		n += valueSize(a, r.Values[i])
	}
	return n
}

func valueSize(a Attribute, v any) int {
	if v == nil {
		return 0
	}
	switch a.Type {
	case TypeInteger:
		return 4
	case TypeDouble:
		return 8
	case TypeBoolean:
		return 1
	case TypeChar:
		return a.Length
	case TypeVarchar:
		return 4 + len(v.(string))
	}
	return 0
}

// Coerce converts v to the canonical type of a, checking declared lengths.
func Coerce(a Attribute, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch a.Type {
	case TypeInteger:
		if x, ok := asInt32(v); ok {
			return x, nil
		}
	case TypeDouble:
		if x, ok := asFloat64(v); ok {
			return x, nil
		}
	case TypeBoolean:
		if x, ok := v.(bool); ok {
			return x, nil
		}
	case TypeChar:
		if x, ok := v.(string); ok {
			if len(x) > a.Length {
				return nil, fmt.Errorf("%w: %s char(%d) got %d bytes", ErrValueTooLong, a.Name, a.Length, len(x))
			}
			// NUL is the padding byte on disk
			if strings.IndexByte(x, 0) >= 0 {
				return nil, fmt.Errorf("%w: %s char(%d) holds a NUL byte", ErrTypeMismatch, a.Name, a.Length)
			}
			return x, nil
		}
	case TypeVarchar:
		if x, ok := v.(string); ok {
			if !utf8.ValidString(x) {
				return nil, fmt.Errorf("%w: %s is not valid UTF-8", ErrTypeMismatch, a.Name)
			}
			if n := utf8.RuneCountInString(x); n > a.Length {
				return nil, fmt.Errorf("%w: %s varchar(%d) got %d chars", ErrValueTooLong, a.Name, a.Length, n)
			}
			return x, nil
		}
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownType, a.Name)
	}
	return nil, fmt.Errorf("%w: %s %s got %T", ErrTypeMismatch, a.Name, a.TypeName(), v)
}

// ---- small helpers to accept multiple numeric types ----
func asInt32(v any) (int32, bool) {
	switch x := v.(type) {
	case int32:
		return x, true
	case int:
		if x >= math.MinInt32 && x <= math.MaxInt32 {
			return int32(x), true
		}
	case int64:
		if x >= math.MinInt32 && x <= math.MaxInt32 {
			return int32(x), true
		}
	case int16:
		return int32(x), true
	case int8:
		return int32(x), true
	}
	return 0, false
}

func asFloat64(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int32:
		return float64(x), true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	}
	return 0, false
}
